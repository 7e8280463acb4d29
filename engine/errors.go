package engine

import (
	"errors"

	"github.com/defistate/defistate-amm/fixedpoint"
)

var (
	// ErrInsufficientLiquidity covers every precondition violation of a pricing
	// operation: zero amounts, empty reserves, lp amounts above supply, fees of
	// 100% or more and outputs that would drain a reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrOverflow is returned when a checked arithmetic step exceeds its working width.
	ErrOverflow = fixedpoint.ErrOverflow

	// ErrUnknownStrategy is returned for a StrategyKind outside the supported set.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrTokenMismatch is returned when a token is not one of the pool's two mints.
	ErrTokenMismatch = errors.New("token mismatch")
)
