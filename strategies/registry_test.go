package strategies

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/strategies/constantmean"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	reserve = uint64(100_000_000)
	feeBps  = uint64(30)
)

func newSet(t *testing.T) Set {
	t.Helper()
	set, err := NewSet(DefaultConfig())
	require.NoError(t, err)
	return set
}

// randUint64 returns a value in [1, limit].
func randUint64(t *testing.T, limit uint64) uint64 {
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(limit))
	require.NoError(t, err)
	return n.Uint64() + 1
}

func TestNew(t *testing.T) {
	for _, kind := range engine.StrategyKinds() {
		s, err := New(kind, DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, kind, s.Kind())
	}

	_, err := New(engine.InvalidStrategy, DefaultConfig())
	assert.ErrorIs(t, err, engine.ErrUnknownStrategy)

	cfg := DefaultConfig()
	cfg.ConstantMean = constantmean.Weights{A: 1, B: 1}
	_, err = New(engine.ConstantMean, cfg)
	assert.ErrorIs(t, err, constantmean.ErrInvalidWeights)
	assert.Error(t, cfg.Validate())
	_, err = NewSet(cfg)
	assert.Error(t, err)

	_, err = newSet(t).Get(engine.StrategyKind(42))
	assert.ErrorIs(t, err, engine.ErrUnknownStrategy)
}

func TestNoDrain(t *testing.T) {
	for kind, s := range newSet(t) {
		t.Run(kind.String(), func(t *testing.T) {
			for i := 0; i < 500; i++ {
				amountIn := randUint64(t, 1<<40)
				reserveIn := randUint64(t, 1<<40)
				reserveOut := randUint64(t, 1<<40)
				fee := randUint64(t, 10_000) - 1

				out, err := s.QuoteAmountOut(amountIn, reserveIn, reserveOut, fee)
				if err != nil {
					continue
				}
				assert.Less(t, out, reserveOut)
			}
		})
	}
}

func TestMonotoneOutput(t *testing.T) {
	const step = reserve / 10

	for kind, s := range newSet(t) {
		t.Run(kind.String(), func(t *testing.T) {
			var outs []uint64
			for amountIn := step; amountIn <= 5*step; amountIn += step / 4 {
				out, err := s.QuoteAmountOut(amountIn, reserve, reserve, feeBps)
				require.NoError(t, err)
				if len(outs) > 0 {
					assert.GreaterOrEqual(t, out, outs[len(outs)-1], "output must not fall as input grows")
				}
				outs = append(outs, out)
			}

			if kind == engine.StableSwap {
				// linear curve: marginal output is flat up to rounding
				return
			}
			for i := 2; i < len(outs); i++ {
				prev := outs[i-1] - outs[i-2]
				next := outs[i] - outs[i-1]
				assert.LessOrEqual(t, next, prev+2, "marginal output must not grow beyond rounding")
			}
		})
	}
}

func TestKnownValues(t *testing.T) {
	set := newSet(t)

	cp, err := set[engine.ConstantProduct].QuoteAmountOut(10_000_000, reserve, reserve, feeBps)
	require.NoError(t, err)
	assert.Greater(t, cp, uint64(9_000_000))
	assert.Less(t, cp, uint64(9_100_000))

	stable, err := set[engine.StableSwap].QuoteAmountOut(10_000_000, reserve, reserve, feeBps)
	require.NoError(t, err)
	assert.Greater(t, stable, uint64(9_900_000))

	supply, err := set[engine.ConstantProduct].InitialLPSupply(reserve, reserve)
	require.NoError(t, err)
	assert.Equal(t, reserve, supply)

	supply, err = set[engine.StableSwap].InitialLPSupply(reserve, reserve)
	require.NoError(t, err)
	assert.Equal(t, 2*reserve, supply)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	for kind, s := range newSet(t) {
		t.Run(kind.String(), func(t *testing.T) {
			for i := 0; i < 200; i++ {
				depositA := randUint64(t, 1<<40)
				depositB := randUint64(t, 1<<40)

				supply, err := s.InitialLPSupply(depositA, depositB)
				require.NoError(t, err)
				require.NotZero(t, supply)

				a, b, err := s.WithdrawAmounts(supply, depositA, depositB, supply)
				require.NoError(t, err)
				assert.LessOrEqual(t, a, depositA)
				assert.LessOrEqual(t, b, depositB)

				// a second depositor never withdraws more than they put in
				minted, err := s.LPTokensToMint(depositA, depositA, supply)
				require.NoError(t, err)
				if minted == 0 {
					continue
				}
				a, b, err = s.WithdrawAmounts(minted, 2*depositA, 2*depositB, supply+minted)
				require.NoError(t, err)
				assert.LessOrEqual(t, a, depositA)
				assert.LessOrEqual(t, b, depositB)
			}
		})
	}
}

func TestRejections(t *testing.T) {
	for kind, s := range newSet(t) {
		t.Run(kind.String(), func(t *testing.T) {
			checks := map[string]error{}

			_, checks["zero amount in"] = s.QuoteAmountOut(0, reserve, reserve, feeBps)
			_, checks["zero reserve in"] = s.QuoteAmountOut(1_000, 0, reserve, feeBps)
			_, checks["zero reserve out"] = s.QuoteAmountOut(1_000, reserve, 0, feeBps)
			_, checks["fee of 100%"] = s.QuoteAmountOut(1_000, reserve, reserve, 10_000)
			_, checks["fee above 100%"] = s.QuoteAmountOut(1_000, reserve, reserve, 20_000)
			_, checks["initial zero a"] = s.InitialLPSupply(0, reserve)
			_, checks["initial zero b"] = s.InitialLPSupply(reserve, 0)
			_, checks["mint zero amount"] = s.LPTokensToMint(0, reserve, reserve)
			_, checks["mint zero reserve"] = s.LPTokensToMint(1, 0, reserve)
			_, checks["mint zero supply"] = s.LPTokensToMint(1, reserve, 0)
			_, _, checks["withdraw zero"] = s.WithdrawAmounts(0, reserve, reserve, reserve)
			_, _, checks["withdraw above supply"] = s.WithdrawAmounts(reserve+1, reserve, reserve, reserve)
			_, _, checks["withdraw zero supply"] = s.WithdrawAmounts(1, reserve, reserve, 0)

			for name, err := range checks {
				assert.ErrorIs(t, err, engine.ErrInsufficientLiquidity, name)
			}
		})
	}
}
