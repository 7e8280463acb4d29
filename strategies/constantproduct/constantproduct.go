// Package constantproduct prices pools on the x*y=k invariant.
package constantproduct

import (
	"fmt"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/fixedpoint"
	"github.com/defistate/defistate-amm/strategies/lpshare"
)

type Strategy struct{}

func New() Strategy { return Strategy{} }

func (Strategy) Kind() engine.StrategyKind { return engine.ConstantProduct }

// QuoteAmountOut returns aif*reserveOut/(reserveIn+aif) where aif is amountIn
// net of the fee.
func (Strategy) QuoteAmountOut(amountIn, reserveIn, reserveOut, feeBps uint64) (uint64, error) {
	if err := engine.CheckSwap(amountIn, reserveIn, reserveOut, feeBps); err != nil {
		return 0, err
	}
	amountInWithFee, err := fixedpoint.ApplyFee(amountIn, feeBps)
	if err != nil {
		return 0, err
	}

	denominator := fixedpoint.New(reserveIn).Add(amountInWithFee)
	amountOut, err := fixedpoint.New(amountInWithFee).Mul(reserveOut).DivWide(denominator).Uint64()
	if err != nil {
		return 0, fmt.Errorf("constant product quote: %w", err)
	}
	if err := engine.CheckNoDrain(amountOut, reserveOut); err != nil {
		return 0, err
	}
	return amountOut, nil
}

// InitialLPSupply returns the geometric mean of the two deposits.
func (Strategy) InitialLPSupply(amountA, amountB uint64) (uint64, error) {
	if err := engine.CheckInitialDeposit(amountA, amountB); err != nil {
		return 0, err
	}
	return fixedpoint.SqrtProduct(amountA, amountB)
}

func (Strategy) LPTokensToMint(amountA, reserveA, lpSupply uint64) (uint64, error) {
	return lpshare.Mint(amountA, reserveA, lpSupply)
}

func (Strategy) WithdrawAmounts(lpAmount, reserveA, reserveB, lpSupply uint64) (uint64, uint64, error) {
	return lpshare.Withdraw(lpAmount, reserveA, reserveB, lpSupply)
}
