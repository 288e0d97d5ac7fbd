package chain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

type fakeMarkets struct {
	markets map[uint64]domain.Market
}

func (f *fakeMarkets) Market(_ context.Context, id uint64) (domain.Market, error) {
	return f.markets[id], nil
}

type fakeBalances struct {
	balances map[string]map[string]*big.Int // token -> holder -> balance
}

func (f *fakeBalances) BalanceOf(_ context.Context, token, holder string) (*big.Int, error) {
	if b, ok := f.balances[token][holder]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

const (
	yesToken = "0x1000000000000000000000000000000000000001"
	noToken  = "0x1000000000000000000000000000000000000002"
	holder   = "0x2000000000000000000000000000000000000001"
)

func TestClaimableUnresolvedMarket(t *testing.T) {
	consumer := NewSettlementConsumer(
		&fakeMarkets{markets: map[uint64]domain.Market{
			1: {ID: 1, Status: domain.MarketOpen, EndTime: time.Now().Add(time.Hour), YesToken: yesToken, NoToken: noToken},
		}},
		&fakeBalances{},
	)

	c, err := consumer.Claimable(context.Background(), 1, holder)
	require.NoError(t, err)
	require.False(t, c.Resolved)
	require.Zero(t, c.Amount.Sign())
	require.Empty(t, c.WinningToken)
}

func TestClaimableYesOutcome(t *testing.T) {
	consumer := NewSettlementConsumer(
		&fakeMarkets{markets: map[uint64]domain.Market{
			2: {ID: 2, Status: domain.MarketResolved, Outcome: domain.OutcomeYes, YesToken: yesToken, NoToken: noToken},
		}},
		&fakeBalances{balances: map[string]map[string]*big.Int{
			yesToken: {holder: big.NewInt(1_500_000)},
			noToken:  {holder: big.NewInt(9_999_999)},
		}},
	)

	c, err := consumer.Claimable(context.Background(), 2, holder)
	require.NoError(t, err)
	require.True(t, c.Resolved)
	require.Equal(t, yesToken, c.WinningToken)
	require.Equal(t, big.NewInt(1_500_000), c.Amount)
}

func TestClaimableNoOutcomeOnDisputedMarket(t *testing.T) {
	consumer := NewSettlementConsumer(
		&fakeMarkets{markets: map[uint64]domain.Market{
			3: {ID: 3, Status: domain.MarketDisputed, Outcome: domain.OutcomeNo, YesToken: yesToken, NoToken: noToken},
		}},
		&fakeBalances{balances: map[string]map[string]*big.Int{
			noToken: {holder: big.NewInt(42)},
		}},
	)

	c, err := consumer.Claimable(context.Background(), 3, holder)
	require.NoError(t, err)
	require.True(t, c.Resolved)
	require.Equal(t, noToken, c.WinningToken)
	require.Equal(t, big.NewInt(42), c.Amount)
}

func TestClaimableUndecidedOutcomeStaysUnresolved(t *testing.T) {
	consumer := NewSettlementConsumer(
		&fakeMarkets{markets: map[uint64]domain.Market{
			4: {ID: 4, Status: domain.MarketResolved, Outcome: domain.OutcomeUndecided, YesToken: yesToken, NoToken: noToken},
		}},
		&fakeBalances{},
	)

	c, err := consumer.Claimable(context.Background(), 4, holder)
	require.NoError(t, err)
	require.False(t, c.Resolved)
}

func TestEncryptDecryptKeyRoundTrip(t *testing.T) {
	const keyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	blob, err := EncryptKey("0x"+keyHex, "correct horse battery staple")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, keyHex, got)

	_, err = DecryptKey(blob, "wrong password")
	require.Error(t, err)
}
