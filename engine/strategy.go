package engine

import "fmt"

// PricingStrategy is the contract every curve implements. Implementations are
// pure: they read only their arguments and their own construction parameters.
type PricingStrategy interface {
	// QuoteAmountOut returns the output amount for a swap of amountIn against
	// (reserveIn, reserveOut) after deducting feeBps. The result is always
	// strictly less than reserveOut.
	QuoteAmountOut(amountIn, reserveIn, reserveOut, feeBps uint64) (uint64, error)
	// InitialLPSupply returns the lp tokens minted for the first deposit into an empty pool.
	InitialLPSupply(amountA, amountB uint64) (uint64, error)
	// LPTokensToMint returns the lp tokens minted for a deposit of amountA into a funded pool.
	LPTokensToMint(amountA, reserveA, lpSupply uint64) (uint64, error)
	// WithdrawAmounts returns the reserves released by burning lpAmount.
	WithdrawAmounts(lpAmount, reserveA, reserveB, lpSupply uint64) (amountA, amountB uint64, err error)
	Kind() StrategyKind
}

// CheckSwap validates the inputs shared by every quote.
func CheckSwap(amountIn, reserveIn, reserveOut, feeBps uint64) error {
	switch {
	case amountIn == 0:
		return fmt.Errorf("%w: zero amount in", ErrInsufficientLiquidity)
	case reserveIn == 0 || reserveOut == 0:
		return fmt.Errorf("%w: empty reserves (%d, %d)", ErrInsufficientLiquidity, reserveIn, reserveOut)
	case feeBps >= 10_000:
		return fmt.Errorf("%w: fee %d bps", ErrInsufficientLiquidity, feeBps)
	}
	return nil
}

// CheckNoDrain rejects outputs that would empty the output reserve.
func CheckNoDrain(amountOut, reserveOut uint64) error {
	if amountOut >= reserveOut {
		return fmt.Errorf("%w: output %d would drain reserve %d", ErrInsufficientLiquidity, amountOut, reserveOut)
	}
	return nil
}

func CheckInitialDeposit(amountA, amountB uint64) error {
	if amountA == 0 || amountB == 0 {
		return fmt.Errorf("%w: initial deposit (%d, %d)", ErrInsufficientLiquidity, amountA, amountB)
	}
	return nil
}

func CheckMint(amountA, reserveA, lpSupply uint64) error {
	if amountA == 0 || reserveA == 0 || lpSupply == 0 {
		return fmt.Errorf("%w: mint amount=%d reserve=%d supply=%d", ErrInsufficientLiquidity, amountA, reserveA, lpSupply)
	}
	return nil
}

func CheckWithdraw(lpAmount, lpSupply uint64) error {
	if lpAmount == 0 || lpSupply == 0 || lpAmount > lpSupply {
		return fmt.Errorf("%w: withdraw %d of supply %d", ErrInsufficientLiquidity, lpAmount, lpSupply)
	}
	return nil
}
