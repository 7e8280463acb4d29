package stableswap

import (
	"math"
	"testing"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/strategies/constantproduct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteAmountOut(t *testing.T) {
	testCases := []struct {
		name       string
		amountIn   uint64
		reserveIn  uint64
		reserveOut uint64
		feeBps     uint64
		expected   uint64
		expectErr  error
	}{
		{name: "Balanced pool", amountIn: 10_000_000, reserveIn: 100_000_000, reserveOut: 100_000_000, feeBps: 30, expected: 9_969_502},
		{name: "Deep pool has tiny impact", amountIn: 1_000_000, reserveIn: 1_000_000_000, reserveOut: 1_000_000_000, feeBps: 0, expected: 999_995},
		{name: "Output would drain reserve", amountIn: 200_000_000, reserveIn: 100_000_000, reserveOut: 100_000_000, expectErr: engine.ErrInsufficientLiquidity},
		{name: "Impact exceeds input on a shallow pool", amountIn: 100, reserveIn: 1, reserveOut: 1, expectErr: engine.ErrOverflow},
		{name: "Zero amount in", amountIn: 0, reserveIn: 1, reserveOut: 1, expectErr: engine.ErrInsufficientLiquidity},
		{name: "Fee of 100%", amountIn: 1, reserveIn: 1, reserveOut: 1, feeBps: 10_000, expectErr: engine.ErrInsufficientLiquidity},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := New().QuoteAmountOut(tc.amountIn, tc.reserveIn, tc.reserveOut, tc.feeBps)
			if tc.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestLowerSlippageThanConstantProduct(t *testing.T) {
	stable, err := New().QuoteAmountOut(10_000_000, 100_000_000, 100_000_000, 30)
	require.NoError(t, err)
	cp, err := constantproduct.New().QuoteAmountOut(10_000_000, 100_000_000, 100_000_000, 30)
	require.NoError(t, err)

	assert.Greater(t, stable, uint64(9_900_000))
	assert.Greater(t, stable, cp)
}

func TestLiquidityAccounting(t *testing.T) {
	s := New()
	assert.Equal(t, engine.StableSwap, s.Kind())

	supply, err := s.InitialLPSupply(100_000_000, 100_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000_000), supply)

	_, err = s.InitialLPSupply(math.MaxUint64, 1)
	assert.ErrorIs(t, err, engine.ErrOverflow)

	minted, err := s.LPTokensToMint(50_000_000, 100_000_000, 200_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), minted)

	a, b, err := s.WithdrawAmounts(100_000_000, 100_000_000, 100_000_000, 200_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000_000), a)
	assert.Equal(t, uint64(50_000_000), b)
}
