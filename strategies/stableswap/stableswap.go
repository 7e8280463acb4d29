// Package stableswap prices pools of like-valued assets with a reduced
// price-impact term: the output is the fee-adjusted input minus
// aif*10000/(reserveIn+reserveOut).
package stableswap

import (
	"fmt"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/fixedpoint"
	"github.com/defistate/defistate-amm/strategies/lpshare"
)

// slippageFactor scales the price impact against total pool depth.
const slippageFactor uint64 = 10_000

type Strategy struct{}

func New() Strategy { return Strategy{} }

func (Strategy) Kind() engine.StrategyKind { return engine.StableSwap }

func (Strategy) QuoteAmountOut(amountIn, reserveIn, reserveOut, feeBps uint64) (uint64, error) {
	if err := engine.CheckSwap(amountIn, reserveIn, reserveOut, feeBps); err != nil {
		return 0, err
	}
	amountInWithFee, err := fixedpoint.ApplyFee(amountIn, feeBps)
	if err != nil {
		return 0, err
	}

	depth := fixedpoint.New(reserveIn).Add(reserveOut)
	priceImpact := fixedpoint.New(amountInWithFee).Mul(slippageFactor).DivWide(depth)
	amountOut, err := fixedpoint.New(amountInWithFee).SubWide(priceImpact).Uint64()
	if err != nil {
		return 0, fmt.Errorf("stable swap quote: %w", err)
	}
	if err := engine.CheckNoDrain(amountOut, reserveOut); err != nil {
		return 0, err
	}
	return amountOut, nil
}

// InitialLPSupply returns amountA+amountB, treating both assets as equal in value.
func (Strategy) InitialLPSupply(amountA, amountB uint64) (uint64, error) {
	if err := engine.CheckInitialDeposit(amountA, amountB); err != nil {
		return 0, err
	}
	return fixedpoint.CheckedAdd(amountA, amountB)
}

func (Strategy) LPTokensToMint(amountA, reserveA, lpSupply uint64) (uint64, error) {
	return lpshare.Mint(amountA, reserveA, lpSupply)
}

func (Strategy) WithdrawAmounts(lpAmount, reserveA, reserveB, lpSupply uint64) (uint64, uint64, error) {
	return lpshare.Withdraw(lpAmount, reserveA, reserveB, lpSupply)
}
