package registry

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

func TestClaimBeforeFinalizationFails(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.reg.CreateDispute(env.ctx, marketContract, 1, disputer, "r", bnb(15))
	require.NoError(t, err)

	_, err = env.reg.ClaimStake(env.ctx, d.ID, disputer)
	require.ErrorIs(t, err, domain.ErrDisputeNotFinalized)
}

func TestClaimWithoutVoteFails(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.reg.CreateDispute(env.ctx, marketContract, 1, disputer, "r", bnb(15))
	require.NoError(t, err)
	env.advance(73 * time.Hour)
	_, err = env.reg.FinalizeDispute(env.ctx, d.ID)
	require.NoError(t, err)

	_, err = env.reg.ClaimStake(env.ctx, d.ID, voterB)
	require.ErrorIs(t, err, domain.ErrNoVoteRecord)
}

// Full settlement walkthrough: disputer 0.015 Accept, one 0.03 Accept vote,
// one 0.02 Reject vote. Accept wins 0.045 > 0.02; the 0.02 losing pool nets
// to 0.019 after the 5% fee and splits pro rata across the Accept side.
func TestClaimSettlementProRata(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.reg.CreateDispute(env.ctx, marketContract, 1, disputer, "resolution is wrong", bnb(15))
	require.NoError(t, err)

	_, err = env.reg.VoteOnDispute(env.ctx, d.ID, voterA, domain.VoteAccept, bnb(30))
	require.NoError(t, err)
	_, err = env.reg.VoteOnDispute(env.ctx, d.ID, voterB, domain.VoteReject, bnb(20))
	require.NoError(t, err)

	env.advance(73 * time.Hour)
	final, err := env.reg.FinalizeDispute(env.ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DisputeStatusResolved, final.Status)
	require.Equal(t, domain.DisputeOutcomeAccept, final.Outcome)

	escrowBefore := final.EscrowBalance
	require.Equal(t, bnb(65), escrowBefore)

	// Disputer: 0.015 principal + floor(0.015 * 0.019 / 0.045).
	wantDisputerShare := new(big.Int).Mul(bnb(15), bnb(19))
	wantDisputerShare.Quo(wantDisputerShare, bnb(45))
	p1, err := env.reg.ClaimStake(env.ctx, d.ID, disputer)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(bnb(15), wantDisputerShare), p1)

	// Accept voter: 0.03 principal + floor(0.03 * 0.019 / 0.045).
	wantVoterShare := new(big.Int).Mul(bnb(30), bnb(19))
	wantVoterShare.Quo(wantVoterShare, bnb(45))
	p2, err := env.reg.ClaimStake(env.ctx, d.ID, voterA)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(bnb(30), wantVoterShare), p2)

	// Losing voter forfeits.
	_, err = env.reg.ClaimStake(env.ctx, d.ID, voterB)
	require.ErrorIs(t, err, domain.ErrLosingSideForfeits)

	// Escrow holds exactly the fee plus rounding slack, and never went
	// negative: fee = 5% of 0.02 = 0.001, slack from two floored shares.
	got, err := env.reg.GetDisputeInfo(env.ctx, d.ID)
	require.NoError(t, err)
	paid := new(big.Int).Add(p1, p2)
	require.Equal(t, new(big.Int).Sub(escrowBefore, paid), got.EscrowBalance)

	fee := bnb(1) // 0.001 BNB
	slack := new(big.Int).Sub(got.EscrowBalance, fee)
	require.True(t, slack.Sign() >= 0)
	require.True(t, slack.Cmp(big.NewInt(2)) <= 0, "slack exceeds one wei per winning claimant")
}

func TestClaimIsIdempotentSafe(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.reg.CreateDispute(env.ctx, marketContract, 1, disputer, "r", bnb(15))
	require.NoError(t, err)
	_, err = env.reg.VoteOnDispute(env.ctx, d.ID, voterB, domain.VoteReject, bnb(5))
	require.NoError(t, err)

	env.advance(73 * time.Hour)
	_, err = env.reg.FinalizeDispute(env.ctx, d.ID)
	require.NoError(t, err)

	// Winning claim pays once, then always AlreadyClaimed.
	p, err := env.reg.ClaimStake(env.ctx, d.ID, disputer)
	require.NoError(t, err)
	require.True(t, p.Sign() > 0)
	for i := 0; i < 3; i++ {
		_, err = env.reg.ClaimStake(env.ctx, d.ID, disputer)
		require.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	}

	// Losing claim forfeits once, then AlreadyClaimed on retries.
	_, err = env.reg.ClaimStake(env.ctx, d.ID, voterB)
	require.ErrorIs(t, err, domain.ErrLosingSideForfeits)
	_, err = env.reg.ClaimStake(env.ctx, d.ID, voterB)
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// Exactly one paying payout and one forfeit marker were recorded.
	payouts := env.store.ListByDisputePayouts(d.ID)
	var paid, forfeits int
	for _, rec := range payouts {
		if rec.Forfeited {
			forfeits++
		} else {
			paid++
		}
	}
	require.Equal(t, 1, paid)
	require.Equal(t, 1, forfeits)
}

func TestClaimAfterAuthorityOverride(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.reg.CreateDispute(env.ctx, marketContract, 1, disputer, "r", bnb(10))
	require.NoError(t, err)
	_, err = env.reg.VoteOnDispute(env.ctx, d.ID, voterA, domain.VoteReject, bnb(50))
	require.NoError(t, err)

	// Authority accepts the dispute against a 5x Reject majority; the
	// Accept side claims as winners.
	_, err = env.reg.AuthorityResolveDispute(env.ctx, authority, d.ID, true, "override")
	require.NoError(t, err)

	p, err := env.reg.ClaimStake(env.ctx, d.ID, disputer)
	require.NoError(t, err)
	// 0.01 principal + full net losing pool 0.05*0.95 (sole winner).
	want := new(big.Int).Add(bnb(10), losingPoolNet(bnb(50), 500))
	require.Equal(t, want, p)

	_, err = env.reg.ClaimStake(env.ctx, d.ID, voterA)
	require.ErrorIs(t, err, domain.ErrLosingSideForfeits)
}

func TestCalculatePotentialWinnings(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.reg.CreateDispute(env.ctx, marketContract, 1, disputer, "r", bnb(15))
	require.NoError(t, err)
	_, err = env.reg.VoteOnDispute(env.ctx, d.ID, voterA, domain.VoteReject, bnb(10))
	require.NoError(t, err)

	// Unresolved: projection follows the currently leading side. Accept
	// leads 0.015 to 0.01, so the disputer projects principal plus the full
	// net losing pool (they are the only Accept voter).
	w, err := env.reg.CalculatePotentialWinnings(env.ctx, d.ID, disputer)
	require.NoError(t, err)
	require.True(t, w.IsWinningSide)
	require.Equal(t, new(big.Int).Add(bnb(15), losingPoolNet(bnb(10), 500)), w.Amount)

	w, err = env.reg.CalculatePotentialWinnings(env.ctx, d.ID, voterA)
	require.NoError(t, err)
	require.False(t, w.IsWinningSide)
	require.Zero(t, w.Amount.Sign())

	// The lead flips when Reject overtakes: 0.02 > 0.015.
	_, err = env.reg.VoteOnDispute(env.ctx, d.ID, voterB, domain.VoteReject, bnb(10))
	require.NoError(t, err)
	w, err = env.reg.CalculatePotentialWinnings(env.ctx, d.ID, disputer)
	require.NoError(t, err)
	require.False(t, w.IsWinningSide)

	// After finalization the projection uses the fixed totals.
	env.advance(73 * time.Hour)
	_, err = env.reg.FinalizeDispute(env.ctx, d.ID)
	require.NoError(t, err)
	w, err = env.reg.CalculatePotentialWinnings(env.ctx, d.ID, voterA)
	require.NoError(t, err)
	require.True(t, w.IsWinningSide)

	// No vote record: distinct error.
	_, err = env.reg.CalculatePotentialWinnings(env.ctx, d.ID, "0xnobody")
	require.ErrorIs(t, err, domain.ErrNoVoteRecord)
}
