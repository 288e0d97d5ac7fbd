package registry

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

func TestWinningSide(t *testing.T) {
	tests := []struct {
		name   string
		accept int64
		reject int64
		want   domain.VoteSide
	}{
		{"accept majority", 45, 20, domain.VoteAccept},
		{"reject majority", 10, 50, domain.VoteReject},
		{"exact tie rejects", 50, 50, domain.VoteReject},
		{"zero both rejects", 0, 0, domain.VoteReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := winningSide(big.NewInt(tt.accept), big.NewInt(tt.reject))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLosingPoolNet(t *testing.T) {
	// 0.02 BNB losing pool, 5% fee -> 0.019 BNB.
	net := losingPoolNet(bnb(20), 500)
	require.Equal(t, bnb(19), net)

	// Zero fee passes the pool through untouched.
	require.Equal(t, bnb(20), losingPoolNet(bnb(20), 0))

	// Floor semantics: 7 wei at 5% fee -> 7*9500/10000 = 6 (floored from 6.65).
	require.Equal(t, big.NewInt(6), losingPoolNet(big.NewInt(7), 500))
}

func TestPayoutForFloorsShare(t *testing.T) {
	// Three winners with equal stakes splitting a 100-wei net pool: each
	// share floors to 33, leaving 1 wei of accepted slack in escrow.
	stake := big.NewInt(10)
	totalWinning := big.NewInt(30)
	net := big.NewInt(100)

	p := payoutFor(stake, totalWinning, net)
	require.Equal(t, big.NewInt(43), p) // 10 principal + floor(10*100/30)=33
}

func TestPayoutForZeroWinningTotal(t *testing.T) {
	// Degenerate case (authority forced an empty side): principal only.
	p := payoutFor(big.NewInt(10), big.NewInt(0), big.NewInt(100))
	require.Equal(t, big.NewInt(10), p)
}

func TestPayoutConservation(t *testing.T) {
	// Sum of payouts never exceeds winning principal + net losing pool,
	// with slack bounded by the number of winning claimants.
	stakes := []*big.Int{big.NewInt(17), big.NewInt(29), big.NewInt(54), big.NewInt(1)}
	totalWinning := big.NewInt(0)
	for _, s := range stakes {
		totalWinning.Add(totalWinning, s)
	}
	totalLosing := big.NewInt(977)
	net := losingPoolNet(totalLosing, 500)

	sum := big.NewInt(0)
	for _, s := range stakes {
		sum.Add(sum, payoutFor(s, totalWinning, net))
	}

	ceiling := new(big.Int).Add(totalWinning, net)
	require.LessOrEqual(t, sum.Cmp(ceiling), 0, "pool over-distributed")

	slack := new(big.Int).Sub(ceiling, sum)
	require.LessOrEqual(t, slack.Int64(), int64(len(stakes)), "slack exceeds one unit per claimant")
}
