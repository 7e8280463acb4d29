// Package hybrid blends a constant-product curve with a stable-swap style
// (x+y)^2/4 term through gamma.
//
// The pricing contract uses a plain 50/50 blend of a constant-product quote and
// a conservative stable quote. The invariant, price, dynamic fee and gamma
// update are auxiliary operations for callers that rebalance periodically;
// QuoteWithInvariant prices against the blended invariant with the dynamic fee.
package hybrid

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/fixedpoint"
	"github.com/defistate/defistate-amm/strategies/lpshare"
)

const (
	// minInitialSupply keeps tiny first deposits from collapsing to a handful of lp units.
	minInitialSupply uint64 = 1_000
	// rebalanceThreshold is the price deviation (1% on the 1e6 scale) above
	// which UpdateGamma raises gamma instead of lowering it.
	rebalanceThreshold uint64 = 10_000
)

var ErrInvalidParams = errors.New("invalid hybrid params")

// Params tune the hybrid curve. Gamma and FeeGamma are on the 1e6 scale; fees in bps.
type Params struct {
	Gamma              uint64 `mapstructure:"gamma" json:"gamma"`
	MidFee             uint64 `mapstructure:"mid-fee" json:"midFee"`
	OutFee             uint64 `mapstructure:"out-fee" json:"outFee"`
	AllowedExtraProfit uint64 `mapstructure:"allowed-extra-profit" json:"allowedExtraProfit"`
	FeeGamma           uint64 `mapstructure:"fee-gamma" json:"feeGamma"`
	AdjustmentStep     uint64 `mapstructure:"adjustment-step" json:"adjustmentStep"`
	MAHalfTime         uint64 `mapstructure:"ma-half-time" json:"maHalfTime"` // millis
}

func DefaultParams() Params {
	return Params{
		Gamma:              500_000,
		MidFee:             30,
		OutFee:             300,
		AllowedExtraProfit: 2_000_000,
		FeeGamma:           100_000,
		AdjustmentStep:     146,
		MAHalfTime:         600_000,
	}
}

func (p Params) Validate() error {
	switch {
	case p.Gamma > fixedpoint.Scale:
		return fmt.Errorf("%w: gamma %d above %d", ErrInvalidParams, p.Gamma, fixedpoint.Scale)
	case p.MidFee > p.OutFee:
		return fmt.Errorf("%w: mid fee %d above out fee %d", ErrInvalidParams, p.MidFee, p.OutFee)
	case p.OutFee >= fixedpoint.BasisPoints:
		return fmt.Errorf("%w: out fee %d bps", ErrInvalidParams, p.OutFee)
	}
	return nil
}

type Strategy struct {
	params Params
}

func New(params Params) (*Strategy, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Strategy{params: params}, nil
}

func (s *Strategy) Kind() engine.StrategyKind { return engine.HybridCFMM }

func (s *Strategy) Params() Params { return s.params }

// QuoteAmountOut returns cp/2 + min(aif, reserveOut/2)/2 where cp is the
// constant-product output.
func (s *Strategy) QuoteAmountOut(amountIn, reserveIn, reserveOut, feeBps uint64) (uint64, error) {
	if err := engine.CheckSwap(amountIn, reserveIn, reserveOut, feeBps); err != nil {
		return 0, err
	}
	amountInWithFee, err := fixedpoint.ApplyFee(amountIn, feeBps)
	if err != nil {
		return 0, err
	}

	denominator := fixedpoint.New(reserveIn).Add(amountInWithFee)
	cpOut, err := fixedpoint.New(amountInWithFee).Mul(reserveOut).DivWide(denominator).Uint64()
	if err != nil {
		return 0, fmt.Errorf("hybrid quote: %w", err)
	}
	stableOut := min(amountInWithFee, reserveOut/2)

	amountOut := cpOut/2 + stableOut/2
	if amountOut == 0 {
		return 0, fmt.Errorf("%w: zero output", engine.ErrInsufficientLiquidity)
	}
	if err := engine.CheckNoDrain(amountOut, reserveOut); err != nil {
		return 0, err
	}
	return amountOut, nil
}

// InitialLPSupply returns isqrt(Invariant(a, b)), floored at 1000.
func (s *Strategy) InitialLPSupply(amountA, amountB uint64) (uint64, error) {
	if err := engine.CheckInitialDeposit(amountA, amountB); err != nil {
		return 0, err
	}
	d, err := s.invariant(amountA, amountB)
	if err != nil {
		return 0, err
	}
	supply, err := d.Sqrt().Uint64()
	if err != nil {
		return 0, fmt.Errorf("hybrid initial supply: %w", err)
	}
	return max(supply, minInitialSupply), nil
}

func (s *Strategy) LPTokensToMint(amountA, reserveA, lpSupply uint64) (uint64, error) {
	return lpshare.MintScaled(amountA, reserveA, lpSupply)
}

func (s *Strategy) WithdrawAmounts(lpAmount, reserveA, reserveB, lpSupply uint64) (uint64, uint64, error) {
	return lpshare.WithdrawScaled(lpAmount, reserveA, reserveB, lpSupply)
}

// Invariant returns D = x*y*g/1e6 + ((x+y)^2/4)*(1e6-g)/1e6.
func (s *Strategy) Invariant(x, y uint64) (*uint256.Int, error) {
	d, err := s.invariant(x, y)
	if err != nil {
		return nil, err
	}
	return d.Int()
}

func (s *Strategy) invariant(x, y uint64) (*fixedpoint.Wide, error) {
	if x == 0 || y == 0 {
		return nil, fmt.Errorf("%w: empty reserves (%d, %d)", engine.ErrInsufficientLiquidity, x, y)
	}
	gamma := s.params.Gamma

	cpWeighted := fixedpoint.New(x).Mul(y).Mul(gamma).Div(fixedpoint.Scale)

	sum := fixedpoint.New(x).Add(y)
	stable := sum.Clone().MulWide(sum).Div(4)
	stableWeighted := stable.Mul(fixedpoint.Scale - gamma).Div(fixedpoint.Scale)

	d := cpWeighted.AddWide(stableWeighted)
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("hybrid invariant: %w", err)
	}
	return d, nil
}

// Price returns the gamma-weighted blend of the constant-product price y/x
// and the stable price 1.0, on the 1e6 scale.
func (s *Strategy) Price(x, y uint64) (uint64, error) {
	if x == 0 || y == 0 {
		return 0, fmt.Errorf("%w: empty reserves (%d, %d)", engine.ErrInsufficientLiquidity, x, y)
	}
	gamma := s.params.Gamma

	cpWeighted := fixedpoint.New(y).Mul(fixedpoint.Scale).Div(x).Mul(gamma).Div(fixedpoint.Scale)
	stableWeighted := fixedpoint.New(fixedpoint.Scale).Mul(fixedpoint.Scale - gamma).Div(fixedpoint.Scale)

	price, err := cpWeighted.AddWide(stableWeighted).Uint64()
	if err != nil {
		return 0, fmt.Errorf("hybrid price: %w", err)
	}
	return price, nil
}

// DynamicFee interpolates between MidFee and OutFee by how far x sits from
// half of x+y, capped at OutFee.
func (s *Strategy) DynamicFee(x, y uint64) (uint64, error) {
	if x == 0 || y == 0 {
		return 0, fmt.Errorf("%w: empty reserves (%d, %d)", engine.ErrInsufficientLiquidity, x, y)
	}
	expectedX := fixedpoint.New(x).Add(y).Div(2)
	current := fixedpoint.New(x)

	var deviation *fixedpoint.Wide
	if current.Cmp(expectedX) > 0 {
		deviation = current.SubWide(expectedX)
	} else {
		deviation = expectedX.Clone().SubWide(current)
	}
	imbalance := deviation.Mul(fixedpoint.Scale).DivWide(expectedX)

	feeRange, err := fixedpoint.CheckedSub(s.params.OutFee, s.params.MidFee)
	if err != nil {
		return 0, fmt.Errorf("hybrid fee range: %w", err)
	}
	adjustment, err := imbalance.Mul(feeRange).Div(fixedpoint.Scale).Uint64()
	if err != nil {
		return 0, fmt.Errorf("hybrid fee adjustment: %w", err)
	}
	fee, err := fixedpoint.CheckedAdd(s.params.MidFee, adjustment)
	if err != nil {
		return 0, fmt.Errorf("hybrid fee: %w", err)
	}
	return min(fee, s.params.OutFee), nil
}

// QuoteWithInvariant prices a swap against the blended invariant using the
// dynamic fee: the new out reserve is approximated as min(2D/(reserveIn+aif), reserveOut).
// For balanced pools this only yields output once amountIn exceeds reserveIn.
func (s *Strategy) QuoteWithInvariant(amountIn, reserveIn, reserveOut uint64) (uint64, error) {
	if amountIn == 0 {
		return 0, fmt.Errorf("%w: zero amount in", engine.ErrInsufficientLiquidity)
	}
	fee, err := s.DynamicFee(reserveIn, reserveOut)
	if err != nil {
		return 0, err
	}
	amountInWithFee, err := fixedpoint.ApplyFee(amountIn, fee)
	if err != nil {
		return 0, err
	}
	d, err := s.invariant(reserveIn, reserveOut)
	if err != nil {
		return 0, err
	}

	newReserveIn := fixedpoint.New(reserveIn).Add(amountInWithFee)
	newReserveOut, err := d.Mul(2).DivWide(newReserveIn).Min(fixedpoint.New(reserveOut)).Uint64()
	if err != nil {
		return 0, fmt.Errorf("hybrid invariant quote: %w", err)
	}

	amountOut := reserveOut - newReserveOut
	if amountOut == 0 {
		return 0, fmt.Errorf("%w: zero output", engine.ErrInsufficientLiquidity)
	}
	if err := engine.CheckNoDrain(amountOut, reserveOut); err != nil {
		return 0, err
	}
	return amountOut, nil
}

// UpdateGamma nudges gamma by deviation*AdjustmentStep/1e6, where deviation
// is |current-target|/target on the 1e6 scale. Deviations above 1% raise
// gamma; smaller ones lower it, stopping at zero. The result is capped at 1e6.
func (s *Strategy) UpdateGamma(currentPrice, targetPrice, currentGamma uint64) (uint64, error) {
	var diff uint64
	if currentPrice > targetPrice {
		diff = currentPrice - targetPrice
	} else {
		diff = targetPrice - currentPrice
	}

	deviation, err := fixedpoint.MulDiv(diff, fixedpoint.Scale, targetPrice)
	if err != nil {
		return 0, fmt.Errorf("hybrid price deviation: %w", err)
	}
	adjustment, err := fixedpoint.MulDiv(deviation, s.params.AdjustmentStep, fixedpoint.Scale)
	if err != nil {
		return 0, fmt.Errorf("hybrid gamma adjustment: %w", err)
	}

	var gamma uint64
	if deviation > rebalanceThreshold {
		if gamma, err = fixedpoint.CheckedAdd(currentGamma, adjustment); err != nil {
			return 0, fmt.Errorf("hybrid gamma: %w", err)
		}
	} else if currentGamma > adjustment {
		gamma = currentGamma - adjustment
	}
	return min(gamma, fixedpoint.Scale), nil
}
