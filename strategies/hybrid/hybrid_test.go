package hybrid

import (
	"testing"

	"github.com/defistate/defistate-amm/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStrategy(t *testing.T, params Params) *Strategy {
	t.Helper()
	s, err := New(params)
	require.NoError(t, err)
	return s
}

func TestParams_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Params)
	}{
		{name: "gamma above scale", mutate: func(p *Params) { p.Gamma = 1_000_001 }},
		{name: "mid fee above out fee", mutate: func(p *Params) { p.MidFee = 400 }},
		{name: "out fee of 100%", mutate: func(p *Params) { p.OutFee = 10_000 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.mutate(&p)
			_, err := New(p)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
	assert.NoError(t, DefaultParams().Validate())
}

func TestQuoteAmountOut(t *testing.T) {
	s := newStrategy(t, DefaultParams())
	assert.Equal(t, engine.HybridCFMM, s.Kind())

	got, err := s.QuoteAmountOut(10_000_000, 100_000_000, 100_000_000, 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_518_054), got)

	_, err = s.QuoteAmountOut(1, 100_000_000, 100_000_000, 30)
	assert.ErrorIs(t, err, engine.ErrInsufficientLiquidity, "zero output is rejected")
}

func TestInvariantAndPrice(t *testing.T) {
	s := newStrategy(t, DefaultParams())

	d, err := s.Invariant(1_000_000, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000_000), d.Uint64())

	price, err := s.Price(1_000_000, 2_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), price)

	pure := newStrategy(t, Params{Gamma: 1_000_000, MidFee: 30, OutFee: 300})
	price, err = pure.Price(1_000_000, 2_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), price, "gamma of one is the constant-product price")

	_, err = s.Invariant(0, 1)
	assert.ErrorIs(t, err, engine.ErrInsufficientLiquidity)
	_, err = s.Price(1, 0)
	assert.ErrorIs(t, err, engine.ErrInsufficientLiquidity)
}

func TestDynamicFee(t *testing.T) {
	s := newStrategy(t, DefaultParams())

	testCases := []struct {
		name     string
		x, y     uint64
		expected uint64
	}{
		{name: "balanced pays the mid fee", x: 1_000_000, y: 1_000_000, expected: 30},
		{name: "half imbalance", x: 3_000_000, y: 1_000_000, expected: 165},
		{name: "deep imbalance approaches the out fee", x: 1_000_000, y: 100_000_000, expected: 294},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fee, err := s.DynamicFee(tc.x, tc.y)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, fee)
			assert.LessOrEqual(t, fee, s.Params().OutFee)
		})
	}
}

func TestQuoteWithInvariant(t *testing.T) {
	s := newStrategy(t, DefaultParams())

	got, err := s.QuoteWithInvariant(3_000_000, 1_000_000, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(498_873), got)

	_, err = s.QuoteWithInvariant(500_000, 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, engine.ErrInsufficientLiquidity, "small trades leave the approximated reserve above reserveOut")

	_, err = s.QuoteWithInvariant(0, 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, engine.ErrInsufficientLiquidity)
}

func TestUpdateGamma(t *testing.T) {
	s := newStrategy(t, DefaultParams())

	testCases := []struct {
		name            string
		current, target uint64
		gamma           uint64
		expected        uint64
	}{
		{name: "large deviation raises gamma", current: 1_020_000, target: 1_000_000, gamma: 500_000, expected: 500_002},
		{name: "small deviation rounds to no change", current: 1_005_000, target: 1_000_000, gamma: 500_000, expected: 500_000},
		{name: "capped at one", current: 3_000_000, target: 1_000_000, gamma: 999_999, expected: 1_000_000},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gamma, err := s.UpdateGamma(tc.current, tc.target, tc.gamma)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, gamma)
		})
	}

	steep := newStrategy(t, Params{Gamma: 500_000, MidFee: 30, OutFee: 300, AdjustmentStep: 1_000_000})
	gamma, err := steep.UpdateGamma(1_005_000, 1_000_000, 1_000)
	require.NoError(t, err)
	assert.Zero(t, gamma, "lowering saturates at zero")

	_, err = s.UpdateGamma(1, 0, 500_000)
	assert.ErrorIs(t, err, engine.ErrOverflow)
}

func TestLiquidityAccounting(t *testing.T) {
	s := newStrategy(t, DefaultParams())

	supply, err := s.InitialLPSupply(100_000_000, 100_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), supply)

	supply, err = s.InitialLPSupply(1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), supply, "initial supply is floored at 1000")

	minted, err := s.LPTokensToMint(10_000_000, 100_000_000, 100_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), minted)
}
