package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/defistate-amm/differ"
	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/ledger"
	"github.com/defistate/defistate-amm/logging"
	"github.com/defistate/defistate-amm/rpcapi"
	"github.com/defistate/defistate-amm/strategies"
)

func pool(seed byte, reserve uint64) engine.Pool {
	return engine.Pool{
		ID:       solana.PublicKey{seed},
		TokenA:   solana.PublicKey{seed, 1},
		TokenB:   solana.PublicKey{seed, 2},
		ReserveA: reserve,
		ReserveB: reserve,
		LPSupply: reserve,
		FeeBps:   30,
		Strategy: engine.ConstantProduct,
	}
}

func event(t *testing.T, eventType string, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(SubscriptionEvent{Type: eventType, Payload: data, SentAt: time.Now().UnixNano()})
	require.NoError(t, err)
	return raw
}

func diffEvent(t *testing.T, old, new engine.Snapshot) json.RawMessage {
	t.Helper()
	diff := differ.Pools(old.Pools, new.Pools)
	diff.FromSequence, diff.FromHash = old.Sequence, old.Hash
	diff.ToSequence, diff.ToHash = new.Sequence, new.Hash
	diff.Timestamp = new.Timestamp
	return event(t, rpcapi.EventDiff, diff)
}

func TestStreamProcessor(t *testing.T) {
	s1 := engine.NewSnapshot(1, 1, []engine.Pool{pool(1, 100)})
	s2 := engine.NewSnapshot(2, 2, []engine.Pool{pool(1, 150), pool(2, 10)})
	s3 := engine.NewSnapshot(3, 3, []engine.Pool{pool(2, 10)})
	ctx := context.Background()

	t.Run("full then diffs", func(t *testing.T) {
		sp := NewStreamProcessor(logging.Nop(), 4)
		require.NoError(t, sp.ProcessMessage(ctx, event(t, rpcapi.EventFull, s1)))
		require.NoError(t, sp.ProcessMessage(ctx, diffEvent(t, s1, s2)))
		require.NoError(t, sp.ProcessMessage(ctx, diffEvent(t, s2, s3)))

		for _, want := range []engine.Snapshot{s1, s2, s3} {
			got := <-sp.State()
			assert.Equal(t, want.Sequence, got.Sequence)
			assert.Equal(t, want.Hash, got.Hash)
			assert.Equal(t, want.Pools, got.Pools)
		}
		assert.Equal(t, s3.Hash, sp.Last().Hash)
	})

	t.Run("diff before full", func(t *testing.T) {
		sp := NewStreamProcessor(logging.Nop(), 1)
		err := sp.ProcessMessage(ctx, diffEvent(t, s1, s2))
		assert.ErrorIs(t, err, ErrOutOfSync)
	})

	t.Run("out of order diff", func(t *testing.T) {
		sp := NewStreamProcessor(logging.Nop(), 1)
		require.NoError(t, sp.ProcessMessage(ctx, event(t, rpcapi.EventFull, s1)))
		<-sp.State()
		err := sp.ProcessMessage(ctx, diffEvent(t, s2, s3))
		assert.ErrorIs(t, err, ErrOutOfSync)
		assert.Equal(t, s1.Hash, sp.Last().Hash, "snapshot kept after rejected diff")
	})

	t.Run("tampered full", func(t *testing.T) {
		sp := NewStreamProcessor(logging.Nop(), 1)
		bad := s1
		bad.Pools = []engine.Pool{pool(1, 101)}
		err := sp.ProcessMessage(ctx, event(t, rpcapi.EventFull, bad))
		assert.ErrorIs(t, err, ErrOutOfSync)
		assert.Nil(t, sp.Last())
	})

	t.Run("unknown type", func(t *testing.T) {
		sp := NewStreamProcessor(logging.Nop(), 1)
		assert.ErrorContains(t, sp.ProcessMessage(ctx, event(t, "patch", s1)), "unknown event type")
		assert.Error(t, sp.ProcessMessage(ctx, json.RawMessage(`{`)))
	})
}

func TestStreamProcessor_FullBufferHonorsContext(t *testing.T) {
	s1 := engine.NewSnapshot(1, 1, []engine.Pool{pool(1, 100)})
	s2 := engine.NewSnapshot(2, 2, []engine.Pool{pool(1, 150)})

	canceled := func(t *testing.T) context.Context {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	expiring := func(t *testing.T) context.Context {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		t.Cleanup(cancel)
		return ctx
	}

	testCases := []struct {
		name string
		ctx  func(t *testing.T) context.Context
		next json.RawMessage
		err  error
	}{
		{name: "full event", ctx: canceled, next: event(t, rpcapi.EventFull, s2), err: context.Canceled},
		{name: "diff event", ctx: expiring, next: diffEvent(t, s1, s2), err: context.DeadlineExceeded},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sp := NewStreamProcessor(logging.Nop(), 1)
			require.NoError(t, sp.ProcessMessage(context.Background(), event(t, rpcapi.EventFull, s1)))

			ctx := tc.ctx(t)
			done := make(chan error, 1)
			go func() { done <- sp.ProcessMessage(ctx, tc.next) }()
			select {
			case err := <-done:
				assert.ErrorIs(t, err, tc.err)
			case <-time.After(5 * time.Second):
				t.Fatal("ProcessMessage blocked past its context")
			}

			assert.Equal(t, s1.Hash, sp.Last().Hash, "snapshot unchanged when the send is abandoned")
			assert.Len(t, sp.State(), 1)
		})
	}
}

func TestNewClient_Config(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, Config{Logger: logging.Nop(), BufferSize: 1})
	assert.EqualError(t, err, "config: URL is required")
	_, err = NewClient(ctx, Config{URL: "ws://x", Logger: logging.Nop()})
	assert.EqualError(t, err, "config: BufferSize must be greater than 0")
	_, err = NewClient(ctx, Config{URL: "ws://x", BufferSize: 1})
	assert.EqualError(t, err, "config: Logger is required")
}

func TestClient_FollowsLedger(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	set, err := strategies.NewSet(strategies.DefaultConfig())
	require.NoError(t, err)
	l, err := ledger.New(&ledger.Config{
		ProgramID:  solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"),
		Strategies: set,
		Registry:   reg,
		Logger:     logging.Nop(),
	})
	require.NoError(t, err)
	d, err := differ.NewSnapshotDiffer(&differ.SnapshotDifferConfig{Registry: reg, Logger: logging.Nop()})
	require.NoError(t, err)
	api, err := rpcapi.New(&rpcapi.Config{Ledger: l, Differ: d, Logger: logging.Nop()})
	require.NoError(t, err)
	srv, err := rpcapi.NewServer(api)
	require.NoError(t, err)
	defer srv.Stop()
	httpServer := httptest.NewServer(rpcapi.Handler(srv, []string{"*"}))
	defer httpServer.Close()

	c, err := NewClient(ctx, Config{
		URL:        "ws" + strings.TrimPrefix(httpServer.URL, "http"),
		Logger:     logging.Nop(),
		BufferSize: 16,
	})
	require.NoError(t, err)

	first := <-c.State()
	assert.Empty(t, first.Pools)

	tokenA := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	tokenB := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	p, err := l.CreatePool(ctx, tokenA, tokenB, 30, engine.StableSwap)
	require.NoError(t, err)
	_, err = l.Deposit(ctx, p.ID, 5_000_000, 5_000_000)
	require.NoError(t, err)

	want := l.Snapshot()
	for {
		select {
		case got := <-c.State():
			if got.Sequence < want.Sequence {
				continue
			}
			assert.Equal(t, want.Hash, got.Hash)
			assert.Equal(t, want.Pools, got.Pools)
			cancel()
			_, open := <-c.Err()
			assert.False(t, open)
			return
		case <-ctx.Done():
			t.Fatal("timed out waiting for snapshot")
		}
	}
}
