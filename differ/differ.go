package differ

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/defistate-amm/engine"
)

// SnapshotDifferConfig holds the differ's dependencies.
type SnapshotDifferConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *SnapshotDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// SnapshotDiffer computes the changes between two ledger snapshots.
type SnapshotDiffer struct {
	metrics *Metrics
	logger  Logger
}

// NewSnapshotDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewSnapshotDiffer(cfg *SnapshotDifferConfig) (*SnapshotDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SnapshotDiffer{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
	}, nil
}

// Diff returns the changes that turn old into new. Both snapshots must carry
// valid hashes and new must not precede old.
func (d *SnapshotDiffer) Diff(old, new *engine.Snapshot) (*SnapshotDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer timer.ObserveDuration()

	if !old.Verify() || !new.Verify() {
		return nil, errors.New("differ: snapshot hash does not match its pools")
	}
	if new.Sequence < old.Sequence {
		return nil, fmt.Errorf("differ: new sequence %d precedes old sequence %d", new.Sequence, old.Sequence)
	}

	diff := Pools(old.Pools, new.Pools)
	diff.Timestamp = uint64(time.Now().UnixMilli())
	diff.FromSequence = old.Sequence
	diff.FromHash = old.Hash
	diff.ToSequence = new.Sequence
	diff.ToHash = new.Hash

	d.metrics.changes.WithLabelValues("addition").Add(float64(len(diff.Additions)))
	d.metrics.changes.WithLabelValues("update").Add(float64(len(diff.Updates)))
	d.metrics.changes.WithLabelValues("deletion").Add(float64(len(diff.Deletions)))
	d.logger.Debug("snapshot diff",
		"from", old.Sequence, "to", new.Sequence,
		"additions", len(diff.Additions), "updates", len(diff.Updates), "deletions", len(diff.Deletions))
	return diff, nil
}

// Pools diffs two pool lists by ID. Outputs are sorted by pool ID.
func Pools(old, new []engine.Pool) *SnapshotDiff {
	oldPools := make(map[solana.PublicKey]engine.Pool, len(old))
	for _, pool := range old {
		oldPools[pool.ID] = pool
	}
	newIDs := make(map[solana.PublicKey]struct{}, len(new))

	diff := &SnapshotDiff{}
	for _, pool := range new {
		newIDs[pool.ID] = struct{}{}
		prev, ok := oldPools[pool.ID]
		switch {
		case !ok:
			diff.Additions = append(diff.Additions, pool)
		case prev != pool:
			diff.Updates = append(diff.Updates, pool)
		}
	}
	for _, pool := range old {
		if _, ok := newIDs[pool.ID]; !ok {
			diff.Deletions = append(diff.Deletions, pool.ID)
		}
	}

	engine.SortPools(diff.Additions)
	engine.SortPools(diff.Updates)
	slices.SortFunc(diff.Deletions, func(a, b solana.PublicKey) int {
		return bytes.Compare(a[:], b[:])
	})
	return diff
}
