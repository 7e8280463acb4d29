package patcher

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/defistate-amm/differ"
	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/logging"
)

func pool(seed byte, reserve uint64) engine.Pool {
	return engine.Pool{
		ID:       solana.PublicKey{seed},
		TokenA:   solana.PublicKey{seed, 1},
		TokenB:   solana.PublicKey{seed, 2},
		ReserveA: reserve,
		ReserveB: reserve * 2,
		LPSupply: reserve,
		FeeBps:   30,
		Strategy: engine.ConstantProduct,
	}
}

func newDiffer(t *testing.T) *differ.SnapshotDiffer {
	t.Helper()
	d, err := differ.NewSnapshotDiffer(&differ.SnapshotDifferConfig{
		Registry: prometheus.NewRegistry(),
		Logger:   logging.Nop(),
	})
	require.NoError(t, err)
	return d
}

func TestPatch_RoundTrip(t *testing.T) {
	old := engine.NewSnapshot(4, 1, []engine.Pool{pool(1, 100), pool(2, 200), pool(3, 300)})
	new := engine.NewSnapshot(7, 2, []engine.Pool{pool(1, 100), pool(2, 250), pool(4, 400)})

	diff, err := newDiffer(t).Diff(&old, &new)
	require.NoError(t, err)
	assert.Len(t, diff.Additions, 1)
	assert.Len(t, diff.Updates, 1)
	assert.Equal(t, []solana.PublicKey{{3}}, diff.Deletions)

	patched, err := Patch(&old, diff)
	require.NoError(t, err)
	assert.Equal(t, new.Sequence, patched.Sequence)
	assert.Equal(t, new.Hash, patched.Hash)
	assert.Equal(t, new.Pools, patched.Pools)

	// the input snapshot is untouched
	assert.Equal(t, uint64(200), old.Pools[1].ReserveA)
	assert.True(t, old.Verify())
}

func TestPatch_Rejects(t *testing.T) {
	old := engine.NewSnapshot(4, 1, []engine.Pool{pool(1, 100)})
	new := engine.NewSnapshot(5, 2, []engine.Pool{pool(1, 150)})
	diff, err := newDiffer(t).Diff(&old, &new)
	require.NoError(t, err)

	t.Run("out of order", func(t *testing.T) {
		stale := engine.NewSnapshot(3, 1, old.Pools)
		_, err := Patch(&stale, diff)
		assert.ErrorIs(t, err, ErrSequenceMismatch)
	})

	t.Run("tampered update", func(t *testing.T) {
		bad := *diff
		bad.Updates = []engine.Pool{pool(1, 151)}
		_, err := Patch(&old, &bad)
		assert.ErrorIs(t, err, ErrHashMismatch)
	})

	t.Run("diverged base", func(t *testing.T) {
		other := engine.NewSnapshot(4, 1, []engine.Pool{pool(1, 99)})
		_, err := Patch(&other, diff)
		assert.ErrorIs(t, err, ErrHashMismatch)
	})

	t.Run("unknown deletion", func(t *testing.T) {
		bad := *diff
		bad.Deletions = []solana.PublicKey{{9}}
		_, err := Patch(&old, &bad)
		assert.Error(t, err)
	})
}
