// Package patcher rebuilds a snapshot from its predecessor and a diff.
package patcher

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/defistate/defistate-amm/differ"
	"github.com/defistate/defistate-amm/engine"
)

var (
	// ErrSequenceMismatch is returned when a diff does not start at the snapshot's sequence.
	ErrSequenceMismatch = errors.New("patcher: sequence mismatch")
	// ErrHashMismatch is returned when the patched pools do not hash to the diff's target.
	ErrHashMismatch = errors.New("patcher: hash mismatch")
)

// Patch applies diff to old and returns the resulting snapshot. old is not
// modified. The result is verified against diff.ToHash.
func Patch(old *engine.Snapshot, diff *differ.SnapshotDiff) (*engine.Snapshot, error) {
	if old.Sequence != diff.FromSequence {
		return nil, fmt.Errorf("%w: snapshot=%d diff=%d", ErrSequenceMismatch, old.Sequence, diff.FromSequence)
	}
	if old.Hash != diff.FromHash {
		return nil, fmt.Errorf("%w: diff was built against %s, snapshot is %s", ErrHashMismatch, diff.FromHash, old.Hash)
	}

	pools := make(map[solana.PublicKey]engine.Pool, len(old.Pools)+len(diff.Additions))
	for _, pool := range old.Pools {
		pools[pool.ID] = pool
	}
	for _, id := range diff.Deletions {
		if _, ok := pools[id]; !ok {
			return nil, fmt.Errorf("patcher: deleted pool %s not in snapshot", id)
		}
		delete(pools, id)
	}
	for _, pool := range diff.Updates {
		if _, ok := pools[pool.ID]; !ok {
			return nil, fmt.Errorf("patcher: updated pool %s not in snapshot", pool.ID)
		}
		pools[pool.ID] = pool
	}
	for _, pool := range diff.Additions {
		if _, ok := pools[pool.ID]; ok {
			return nil, fmt.Errorf("patcher: added pool %s already in snapshot", pool.ID)
		}
		pools[pool.ID] = pool
	}

	next := make([]engine.Pool, 0, len(pools))
	for _, pool := range pools {
		next = append(next, pool)
	}
	snapshot := engine.NewSnapshot(diff.ToSequence, diff.Timestamp, next)
	if snapshot.Hash != diff.ToHash {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrHashMismatch, snapshot.Hash, diff.ToHash)
	}
	return &snapshot, nil
}
