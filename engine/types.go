package engine

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// StrategyKind is the discriminant of the pricing curve governing a pool.
// It is fixed when the pool is created.
type StrategyKind uint8

const (
	InvalidStrategy StrategyKind = iota
	ConstantProduct
	ConstantMean
	StableSwap
	ConcentratedLiquidity
	HybridCFMM
)

var strategyNames = map[StrategyKind]string{
	ConstantProduct:       "constant-product",
	ConstantMean:          "constant-mean",
	StableSwap:            "stable-swap",
	ConcentratedLiquidity: "concentrated-liquidity",
	HybridCFMM:            "hybrid-cfmm",
}

// StrategyKinds lists every supported kind in declaration order.
func StrategyKinds() []StrategyKind {
	return []StrategyKind{ConstantProduct, ConstantMean, StableSwap, ConcentratedLiquidity, HybridCFMM}
}

func (k StrategyKind) String() string {
	if name, ok := strategyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// Valid reports whether k names one of the supported curves.
func (k StrategyKind) Valid() bool {
	_, ok := strategyNames[k]
	return ok
}

func (k StrategyKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *StrategyKind) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategyKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseStrategyKind accepts the kebab-case names produced by String,
// case-insensitively, with underscores treated as dashes.
func ParseStrategyKind(s string) (StrategyKind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for kind, name := range strategyNames {
		if name == normalized {
			return kind, nil
		}
	}
	return InvalidStrategy, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Pool is the persistent record of one trading pair.
type Pool struct {
	ID       solana.PublicKey `json:"id"`
	TokenA   solana.PublicKey `json:"tokenA"`
	TokenB   solana.PublicKey `json:"tokenB"`
	ReserveA uint64           `json:"reserveA"`
	ReserveB uint64           `json:"reserveB"`
	LPSupply uint64           `json:"lpSupply"`
	FeeBps   uint64           `json:"feeBps"` // i.e 30 for 0.3%
	Strategy StrategyKind     `json:"strategy"`
	Bump     uint8            `json:"bump"`
}

// IsEmpty reports whether the pool has never received liquidity
// (or has been fully drained by withdrawals).
func (p Pool) IsEmpty() bool {
	return p.ReserveA == 0 && p.ReserveB == 0
}

// Reserves returns (reserveIn, reserveOut) for a swap paying tokenIn.
func (p Pool) Reserves(tokenIn solana.PublicKey) (reserveIn, reserveOut uint64, err error) {
	switch {
	case tokenIn.Equals(p.TokenA):
		return p.ReserveA, p.ReserveB, nil
	case tokenIn.Equals(p.TokenB):
		return p.ReserveB, p.ReserveA, nil
	}
	return 0, 0, fmt.Errorf("%w: pool %s does not contain %s", ErrTokenMismatch, p.ID, tokenIn)
}
