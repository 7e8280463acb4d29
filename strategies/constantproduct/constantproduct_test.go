package constantproduct

import (
	"math"
	"testing"

	"github.com/defistate/defistate-amm/engine"
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
		{
			name:      "Balanced pool with 0.3% fee",
			amountIn:  10_000_000,
			reserveIn: 100_000_000, reserveOut: 100_000_000,
			feeBps:   30,
			expected: 9_066_108,
		},
		{
			name:      "No fee",
			amountIn:  1_000_000,
			reserveIn: 100_000_000, reserveOut: 50_000_000,
			feeBps:   0,
			expected: 495_049,
		},
		{
			name:      "Fee-adjusted input floors to zero",
			amountIn:  1,
			reserveIn: 100_000_000, reserveOut: 100_000_000,
			feeBps:   30,
			expected: 0,
		},
		{
			name:      "Large reserves need the wide intermediate",
			amountIn:  math.MaxUint64 / 2,
			reserveIn: math.MaxUint64 / 2, reserveOut: math.MaxUint64,
			feeBps:   0,
			expected: math.MaxUint64 / 2,
		},
		{name: "Zero amount in", amountIn: 0, reserveIn: 1, reserveOut: 1, expectErr: engine.ErrInsufficientLiquidity},
		{name: "Zero reserve in", amountIn: 1, reserveIn: 0, reserveOut: 1, expectErr: engine.ErrInsufficientLiquidity},
		{name: "Zero reserve out", amountIn: 1, reserveIn: 1, reserveOut: 0, expectErr: engine.ErrInsufficientLiquidity},
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
			assert.Less(t, got, tc.reserveOut)
		})
	}
}

func TestLiquidityAccounting(t *testing.T) {
	s := New()
	assert.Equal(t, engine.ConstantProduct, s.Kind())

	supply, err := s.InitialLPSupply(100_000_000, 100_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), supply)

	supply, err = s.InitialLPSupply(1_000_000, 4_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), supply)

	minted, err := s.LPTokensToMint(50_000_000, 100_000_000, 100_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000_000), minted)

	a, b, err := s.WithdrawAmounts(50_000_000, 100_000_000, 200_000_000, 100_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000_000), a)
	assert.Equal(t, uint64(100_000_000), b)

	_, err = s.LPTokensToMint(math.MaxUint64, 1, math.MaxUint64)
	assert.ErrorIs(t, err, engine.ErrOverflow)

	_, _, err = s.WithdrawAmounts(101, 1, 1, 100)
	assert.ErrorIs(t, err, engine.ErrInsufficientLiquidity)

	_, err = s.InitialLPSupply(0, 1)
	assert.ErrorIs(t, err, engine.ErrInsufficientLiquidity)
}
