// Package lpshare implements the two liquidity-token accounting schemes shared
// by the curves: exact proportional shares, and shares routed through a 1e6
// scaled ratio (which floors twice).
package lpshare

import (
	"fmt"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/fixedpoint"
)

// Mint returns floor(amountA*lpSupply/reserveA).
func Mint(amountA, reserveA, lpSupply uint64) (uint64, error) {
	if err := engine.CheckMint(amountA, reserveA, lpSupply); err != nil {
		return 0, err
	}
	minted, err := fixedpoint.MulDiv(amountA, lpSupply, reserveA)
	if err != nil {
		return 0, fmt.Errorf("lp mint: %w", err)
	}
	return minted, nil
}

// Withdraw returns floor(lpAmount*reserve/lpSupply) for each reserve.
func Withdraw(lpAmount, reserveA, reserveB, lpSupply uint64) (uint64, uint64, error) {
	if err := engine.CheckWithdraw(lpAmount, lpSupply); err != nil {
		return 0, 0, err
	}
	amountA, err := fixedpoint.MulDiv(lpAmount, reserveA, lpSupply)
	if err != nil {
		return 0, 0, fmt.Errorf("lp withdraw a: %w", err)
	}
	amountB, err := fixedpoint.MulDiv(lpAmount, reserveB, lpSupply)
	if err != nil {
		return 0, 0, fmt.Errorf("lp withdraw b: %w", err)
	}
	return amountA, amountB, nil
}

// MintScaled returns lpSupply*(amountA*1e6/reserveA)/1e6.
func MintScaled(amountA, reserveA, lpSupply uint64) (uint64, error) {
	if err := engine.CheckMint(amountA, reserveA, lpSupply); err != nil {
		return 0, err
	}
	proportion, err := fixedpoint.New(amountA).Mul(fixedpoint.Scale).Div(reserveA).Uint64()
	if err != nil {
		return 0, fmt.Errorf("lp mint proportion: %w", err)
	}
	minted, err := fixedpoint.ApplyRatio(lpSupply, proportion)
	if err != nil {
		return 0, fmt.Errorf("lp mint: %w", err)
	}
	return minted, nil
}

// WithdrawScaled returns reserve*(lpAmount*1e6/lpSupply)/1e6 for each reserve.
func WithdrawScaled(lpAmount, reserveA, reserveB, lpSupply uint64) (uint64, uint64, error) {
	if err := engine.CheckWithdraw(lpAmount, lpSupply); err != nil {
		return 0, 0, err
	}
	// lpAmount <= lpSupply so the proportion never exceeds Scale.
	proportion, err := fixedpoint.ScaledRatio(lpAmount, lpSupply)
	if err != nil {
		return 0, 0, fmt.Errorf("lp withdraw proportion: %w", err)
	}
	amountA, err := fixedpoint.ApplyRatio(reserveA, proportion)
	if err != nil {
		return 0, 0, fmt.Errorf("lp withdraw a: %w", err)
	}
	amountB, err := fixedpoint.ApplyRatio(reserveB, proportion)
	if err != nil {
		return 0, 0, fmt.Errorf("lp withdraw b: %w", err)
	}
	return amountA, amountB, nil
}
