package differ

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/logging"
)

// Logger is the structured logger the differ writes to.
type Logger = logging.Logger

// SnapshotDiff carries the pool changes between two ledger snapshots.
type SnapshotDiff struct {
	Timestamp    uint64             `json:"timestamp"`
	FromSequence uint64             `json:"fromSequence"`
	FromHash     common.Hash        `json:"fromHash"`
	ToSequence   uint64             `json:"toSequence"`
	ToHash       common.Hash        `json:"toHash"`
	Additions    []engine.Pool      `json:"additions,omitempty"`
	Updates      []engine.Pool      `json:"updates,omitempty"`
	Deletions    []solana.PublicKey `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no pool changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}
