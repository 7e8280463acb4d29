// Package concentrated prices pools as if all liquidity sat in one synthetic
// sqrt-price band around the spot price. There is no tick ladder: the band is
// rebuilt from the reserves on every quote, so this is a single-tick
// approximation of a concentrated-liquidity market, not a production one.
package concentrated

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/fixedpoint"
	"github.com/defistate/defistate-amm/strategies/lpshare"
)

// initialLiquidityDivisor scales liquidity units down to lp tokens on the first deposit.
const initialLiquidityDivisor uint64 = 1_000

var ErrInvalidBand = errors.New("invalid band")

// PriceRange is a sqrt-price band on the 1e6 scale.
type PriceRange struct {
	SqrtPriceLower   uint64 `json:"sqrtPriceLower"`
	SqrtPriceUpper   uint64 `json:"sqrtPriceUpper"`
	SqrtPriceCurrent uint64 `json:"sqrtPriceCurrent"`
}

// InRange reports whether lower <= current <= upper.
func (r PriceRange) InRange() bool {
	return r.SqrtPriceLower <= r.SqrtPriceCurrent && r.SqrtPriceCurrent <= r.SqrtPriceUpper
}

// initialRange is the band assumed for the first deposit: price 1.0, ±10%.
var initialRange = PriceRange{
	SqrtPriceLower:   900_000,
	SqrtPriceUpper:   1_100_000,
	SqrtPriceCurrent: 1_000_000,
}

// RangeAround returns the band [spot*(1-band), spot*(1+band)] with spot as current.
func RangeAround(spot, bandBps uint64) (PriceRange, error) {
	if bandBps == 0 || bandBps >= fixedpoint.BasisPoints {
		return PriceRange{}, fmt.Errorf("%w: %d bps", ErrInvalidBand, bandBps)
	}
	lower, err := fixedpoint.MulDiv(spot, fixedpoint.BasisPoints-bandBps, fixedpoint.BasisPoints)
	if err != nil {
		return PriceRange{}, err
	}
	upper, err := fixedpoint.MulDiv(spot, fixedpoint.BasisPoints+bandBps, fixedpoint.BasisPoints)
	if err != nil {
		return PriceRange{}, err
	}
	return PriceRange{SqrtPriceLower: lower, SqrtPriceUpper: upper, SqrtPriceCurrent: spot}, nil
}

// Config controls the width of the synthetic band.
type Config struct {
	BandBps uint64 `mapstructure:"band-bps" json:"bandBps"`
}

func DefaultConfig() Config {
	return Config{BandBps: 1_000}
}

func (c Config) Validate() error {
	if c.BandBps == 0 || c.BandBps >= fixedpoint.BasisPoints {
		return fmt.Errorf("%w: %d bps, want (0, %d)", ErrInvalidBand, c.BandBps, fixedpoint.BasisPoints)
	}
	return nil
}

type Strategy struct {
	cfg Config
}

func New(cfg Config) (*Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Strategy{cfg: cfg}, nil
}

func (s *Strategy) Kind() engine.StrategyKind { return engine.ConcentratedLiquidity }

func (s *Strategy) Config() Config { return s.cfg }

// QuoteAmountOut derives L from the reserves inside a band around
// reserveOut/reserveIn, then pays out (aif*L/(L+aif)) * reserveOut / L.
func (s *Strategy) QuoteAmountOut(amountIn, reserveIn, reserveOut, feeBps uint64) (uint64, error) {
	if err := engine.CheckSwap(amountIn, reserveIn, reserveOut, feeBps); err != nil {
		return 0, err
	}
	amountInWithFee, err := fixedpoint.ApplyFee(amountIn, feeBps)
	if err != nil {
		return 0, err
	}

	spot, err := fixedpoint.MulDiv(reserveOut, fixedpoint.Scale, reserveIn)
	if err != nil {
		return 0, fmt.Errorf("concentrated spot price: %w", err)
	}
	if spot == 0 {
		return 0, fmt.Errorf("%w: spot price rounds to zero (%d/%d)", engine.ErrInsufficientLiquidity, reserveOut, reserveIn)
	}
	band, err := RangeAround(spot, s.cfg.BandBps)
	if err != nil {
		return 0, err
	}
	liquidity, err := liquidity(reserveIn, reserveOut, band)
	if err != nil {
		return 0, err
	}

	denominator := liquidity.Clone().Add(amountInWithFee)
	ratio := fixedpoint.New(amountInWithFee).MulWide(liquidity).DivWide(denominator)
	amountOut, err := ratio.Mul(reserveOut).DivWide(liquidity).Uint64()
	if err != nil {
		return 0, fmt.Errorf("concentrated quote: %w", err)
	}
	if err := engine.CheckNoDrain(amountOut, reserveOut); err != nil {
		return 0, err
	}
	return amountOut, nil
}

// InitialLPSupply measures the deposit as liquidity units in the band
// [0.9, 1.1] around price 1.0, scaled down by 1000 and floored at 1.
func (s *Strategy) InitialLPSupply(amountA, amountB uint64) (uint64, error) {
	if err := engine.CheckInitialDeposit(amountA, amountB); err != nil {
		return 0, err
	}
	l, err := liquidity(amountA, amountB, initialRange)
	if err != nil {
		return 0, err
	}
	supply, err := l.Div(initialLiquidityDivisor).Uint64()
	if err != nil {
		return 0, fmt.Errorf("concentrated initial supply: %w", err)
	}
	return max(supply, 1), nil
}

func (s *Strategy) LPTokensToMint(amountA, reserveA, lpSupply uint64) (uint64, error) {
	return lpshare.MintScaled(amountA, reserveA, lpSupply)
}

func (s *Strategy) WithdrawAmounts(lpAmount, reserveA, reserveB, lpSupply uint64) (uint64, uint64, error) {
	return lpshare.WithdrawScaled(lpAmount, reserveA, reserveB, lpSupply)
}

// Liquidity returns min(L0, L1) where
// L0 = amount0*current*upper/(upper-current) and L1 = amount1*1e6/(current-lower).
// A side whose denominator is zero is unbounded and defers to the other side.
// L is a 128-bit value.
func Liquidity(amount0, amount1 uint64, r PriceRange) (*uint256.Int, error) {
	l, err := liquidity(amount0, amount1, r)
	if err != nil {
		return nil, err
	}
	return l.Int()
}

func liquidity(amount0, amount1 uint64, r PriceRange) (*fixedpoint.Wide, error) {
	if !r.InRange() {
		return nil, fmt.Errorf("%w: price %d outside [%d, %d]", engine.ErrInsufficientLiquidity, r.SqrtPriceCurrent, r.SqrtPriceLower, r.SqrtPriceUpper)
	}

	l0 := fixedpoint.Max()
	if r.SqrtPriceCurrent < r.SqrtPriceUpper {
		l0 = fixedpoint.New(amount0).
			Mul(r.SqrtPriceCurrent).
			Mul(r.SqrtPriceUpper).
			Div(r.SqrtPriceUpper - r.SqrtPriceCurrent)
	}
	l1 := fixedpoint.Max()
	if r.SqrtPriceCurrent > r.SqrtPriceLower {
		l1 = fixedpoint.New(amount1).
			Mul(fixedpoint.Scale).
			Div(r.SqrtPriceCurrent - r.SqrtPriceLower)
	}

	l := l0.Min(l1)
	if err := l.Err(); err != nil {
		return nil, fmt.Errorf("concentrated liquidity: %w", err)
	}
	if l.IsZero() || l.IsMax() {
		return nil, fmt.Errorf("%w: degenerate liquidity %s", engine.ErrInsufficientLiquidity, l)
	}
	return l, nil
}

func wide(l *uint256.Int) *fixedpoint.Wide {
	if l == nil {
		return fixedpoint.New(0)
	}
	return fixedpoint.FromInt(l)
}

func checkRange(r PriceRange) error {
	if r.SqrtPriceLower > r.SqrtPriceUpper {
		return fmt.Errorf("%w: inverted range [%d, %d]", engine.ErrInsufficientLiquidity, r.SqrtPriceLower, r.SqrtPriceUpper)
	}
	return nil
}

// Token0Amount returns L*(upper-from)/(from*upper) with from = max(current, lower).
// Below the band all liquidity is token0; above it token0 is exhausted.
func Token0Amount(liquidity *uint256.Int, r PriceRange) (uint64, error) {
	if err := checkRange(r); err != nil {
		return 0, err
	}
	if r.SqrtPriceCurrent > r.SqrtPriceUpper {
		return 0, nil
	}

	from := max(r.SqrtPriceCurrent, r.SqrtPriceLower)
	denominator := fixedpoint.New(from).Mul(r.SqrtPriceUpper)
	amount, err := wide(liquidity).Mul(r.SqrtPriceUpper - from).DivWide(denominator).Uint64()
	if err != nil {
		return 0, fmt.Errorf("concentrated token0: %w", err)
	}
	return amount, nil
}

// Token1Amount returns L*(to-lower) with to = min(current, upper), in
// liquidity*sqrt-price units. Above the band all liquidity is token1; below
// it token1 is exhausted.
func Token1Amount(liquidity *uint256.Int, r PriceRange) (uint64, error) {
	amount, err := token1(liquidity, r)
	if err != nil {
		return 0, err
	}
	out, err := amount.Uint64()
	if err != nil {
		return 0, fmt.Errorf("concentrated token1: %w", err)
	}
	return out, nil
}

// Token1AmountScaled is Token1Amount divided by 1e6, the inverse of the
// token1 side of Liquidity.
func Token1AmountScaled(liquidity *uint256.Int, r PriceRange) (uint64, error) {
	amount, err := token1(liquidity, r)
	if err != nil {
		return 0, err
	}
	out, err := amount.Div(fixedpoint.Scale).Uint64()
	if err != nil {
		return 0, fmt.Errorf("concentrated token1: %w", err)
	}
	return out, nil
}

func token1(liquidity *uint256.Int, r PriceRange) (*fixedpoint.Wide, error) {
	if err := checkRange(r); err != nil {
		return nil, err
	}
	if r.SqrtPriceCurrent < r.SqrtPriceLower {
		return fixedpoint.New(0), nil
	}

	to := min(r.SqrtPriceCurrent, r.SqrtPriceUpper)
	amount := wide(liquidity).Mul(to - r.SqrtPriceLower)
	if err := amount.Err(); err != nil {
		return nil, fmt.Errorf("concentrated token1: %w", err)
	}
	return amount, nil
}

// NewSqrtPrice returns the sqrt price after swapping amountIn against
// liquidity: current*L/(L+amountIn) when selling token0, and
// current + amountIn*1e6/L when selling token1.
func NewSqrtPrice(current uint64, liquidity *uint256.Int, amountIn uint64, zeroForOne bool) (uint64, error) {
	if liquidity == nil || liquidity.IsZero() {
		return 0, fmt.Errorf("%w: zero liquidity", engine.ErrInsufficientLiquidity)
	}
	l := fixedpoint.FromInt(liquidity)
	var next *fixedpoint.Wide
	if zeroForOne {
		denominator := l.Clone().Add(amountIn)
		next = l.Mul(current).DivWide(denominator)
	} else {
		delta := fixedpoint.New(amountIn).Mul(fixedpoint.Scale).DivWide(l)
		next = fixedpoint.New(current).AddWide(delta)
	}
	price, err := next.Uint64()
	if err != nil {
		return 0, fmt.Errorf("concentrated sqrt price: %w", err)
	}
	return price, nil
}
