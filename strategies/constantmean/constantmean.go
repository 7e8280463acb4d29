// Package constantmean prices weighted two-asset pools. Equal weights reduce
// to the constant-product curve; unequal weights use a linear price-impact
// approximation of the weighted invariant rather than the exact power formula.
package constantmean

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/fixedpoint"
	"github.com/defistate/defistate-amm/strategies/lpshare"
)

var ErrInvalidWeights = errors.New("invalid weights")

// Weights are the token weights on the 1e6 scale. They must be positive and sum to 1e6.
type Weights struct {
	A uint64 `mapstructure:"weight-a" json:"a"`
	B uint64 `mapstructure:"weight-b" json:"b"`
}

// DefaultWeights is the balanced 50/50 pool.
func DefaultWeights() Weights {
	return Weights{A: 500_000, B: 500_000}
}

func (w Weights) Validate() error {
	if w.A == 0 || w.B == 0 {
		return fmt.Errorf("%w: weights must be positive (a=%d, b=%d)", ErrInvalidWeights, w.A, w.B)
	}
	if w.A+w.B != fixedpoint.Scale {
		return fmt.Errorf("%w: weights must sum to %d (a=%d, b=%d)", ErrInvalidWeights, fixedpoint.Scale, w.A, w.B)
	}
	return nil
}

func (w Weights) balanced() bool { return w.A == w.B }

type Strategy struct {
	weights Weights
}

func New(weights Weights) (*Strategy, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Strategy{weights: weights}, nil
}

func (s *Strategy) Kind() engine.StrategyKind { return engine.ConstantMean }

func (s *Strategy) Weights() Weights { return s.weights }

func (s *Strategy) QuoteAmountOut(amountIn, reserveIn, reserveOut, feeBps uint64) (uint64, error) {
	if err := engine.CheckSwap(amountIn, reserveIn, reserveOut, feeBps); err != nil {
		return 0, err
	}
	amountInWithFee, err := fixedpoint.ApplyFee(amountIn, feeBps)
	if err != nil {
		return 0, err
	}

	var amountOut uint64
	if s.weights.balanced() {
		amountOut, err = balancedOut(amountInWithFee, reserveIn, reserveOut)
	} else {
		amountOut, err = s.weightedOut(amountInWithFee, reserveIn, reserveOut)
	}
	if err != nil {
		return 0, fmt.Errorf("constant mean quote: %w", err)
	}
	if err := engine.CheckNoDrain(amountOut, reserveOut); err != nil {
		return 0, err
	}
	return amountOut, nil
}

// balancedOut returns reserveOut - reserveIn*reserveOut/(reserveIn+aif).
// The new out reserve is floored, so the output rounds in the trader's favour.
func balancedOut(amountInWithFee, reserveIn, reserveOut uint64) (uint64, error) {
	newReserveIn := fixedpoint.New(reserveIn).Add(amountInWithFee)
	newReserveOut := fixedpoint.New(reserveIn).Mul(reserveOut).DivWide(newReserveIn)
	return fixedpoint.New(reserveOut).SubWide(newReserveOut).Uint64()
}

// weightedOut applies the linear approximation
// reserveOut * (aif*1e6/(reserveIn*1e6/wA)) * wB / 1e12.
func (s *Strategy) weightedOut(amountInWithFee, reserveIn, reserveOut uint64) (uint64, error) {
	scaledReserveIn := fixedpoint.New(reserveIn).Mul(fixedpoint.Scale).Div(s.weights.A)
	impact := fixedpoint.New(amountInWithFee).Mul(fixedpoint.Scale).DivWide(scaledReserveIn)
	adjusted := impact.Mul(s.weights.B).Div(fixedpoint.Scale)
	return fixedpoint.New(reserveOut).MulWide(adjusted).Div(fixedpoint.Scale).Uint64()
}

// InitialLPSupply returns the weighted average of the two deposits.
func (s *Strategy) InitialLPSupply(amountA, amountB uint64) (uint64, error) {
	if err := engine.CheckInitialDeposit(amountA, amountB); err != nil {
		return 0, err
	}
	return s.WeightedProduct(amountA, amountB)
}

// LPTokensToMint scales the deposit's share of reserveA by weight A. For a
// balanced pool a deposit of x% of reserveA mints x/2% of lpSupply.
func (s *Strategy) LPTokensToMint(amountA, reserveA, lpSupply uint64) (uint64, error) {
	if err := engine.CheckMint(amountA, reserveA, lpSupply); err != nil {
		return 0, err
	}
	contribution := fixedpoint.New(amountA).Mul(fixedpoint.Scale).Div(reserveA)
	weighted := contribution.Mul(s.weights.A).Div(fixedpoint.Scale)
	minted, err := fixedpoint.New(lpSupply).MulWide(weighted).Div(fixedpoint.Scale).Uint64()
	if err != nil {
		return 0, fmt.Errorf("constant mean mint: %w", err)
	}
	return minted, nil
}

func (s *Strategy) WithdrawAmounts(lpAmount, reserveA, reserveB, lpSupply uint64) (uint64, uint64, error) {
	return lpshare.WithdrawScaled(lpAmount, reserveA, reserveB, lpSupply)
}

// WeightedProduct returns (reserveA*wA + reserveB*wB)/(wA+wB), the additive
// stand-in for the weighted geometric mean.
func (s *Strategy) WeightedProduct(reserveA, reserveB uint64) (uint64, error) {
	total := s.weights.A + s.weights.B
	weightedB := fixedpoint.New(reserveB).Mul(s.weights.B)
	return fixedpoint.New(reserveA).Mul(s.weights.A).AddWide(weightedB).Div(total).Uint64()
}

// SpotPrice returns the price of A in units of B on the 1e6 scale:
// (reserveB/wB) / (reserveA/wA).
func (s *Strategy) SpotPrice(reserveA, reserveB uint64) (uint64, error) {
	if reserveA == 0 || reserveB == 0 {
		return 0, fmt.Errorf("%w: empty reserves (%d, %d)", engine.ErrInsufficientLiquidity, reserveA, reserveB)
	}
	denominator := fixedpoint.New(reserveA).Mul(s.weights.B)
	return fixedpoint.New(reserveB).Mul(s.weights.A).Mul(fixedpoint.Scale).DivWide(denominator).Uint64()
}
