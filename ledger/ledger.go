// Package ledger owns the pool records and drives the pricing curves.
//
// Every mutation of a pool runs under that pool's mutex: the new record is
// computed on a copy, persisted through the optional Store, and only then
// swapped in. A failure at any step leaves the committed record untouched.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/fixedpoint"
	"github.com/defistate/defistate-amm/logging"
	"github.com/defistate/defistate-amm/strategies"
)

// PoolSeed prefixes the seeds of every pool address.
var PoolSeed = []byte("pool")

var (
	ErrPoolNotFound     = errors.New("pool not found")
	ErrPoolExists       = errors.New("pool already exists")
	ErrSlippageExceeded = errors.New("slippage tolerance exceeded")
	ErrInvalidFee       = errors.New("invalid fee")
	ErrTokenMismatch    = engine.ErrTokenMismatch
)

// Store persists committed pool records.
type Store interface {
	SavePools(ctx context.Context, pools []engine.Pool) error
	LoadPools(ctx context.Context) ([]engine.Pool, error)
}

// Config holds the ledger's dependencies. Store is optional.
type Config struct {
	ProgramID  solana.PublicKey
	Strategies strategies.Set
	Store      Store
	Registry   prometheus.Registerer
	Logger     logging.Logger
}

func (c *Config) validate() error {
	if c.ProgramID.IsZero() {
		return errors.New("config: ProgramID cannot be zero")
	}
	if c.Strategies == nil {
		return errors.New("config: Strategies cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// DepositResult reports the amounts taken and lp tokens minted by a deposit.
type DepositResult struct {
	AmountA  uint64      `json:"amountA"`
	AmountB  uint64      `json:"amountB"`
	LPMinted uint64      `json:"lpMinted"`
	Pool     engine.Pool `json:"pool"`
}

// WithdrawResult reports the amounts released by burning lp tokens.
type WithdrawResult struct {
	AmountA  uint64      `json:"amountA"`
	AmountB  uint64      `json:"amountB"`
	LPBurned uint64      `json:"lpBurned"`
	Pool     engine.Pool `json:"pool"`
}

// SwapResult reports an executed swap.
type SwapResult struct {
	TokenIn   solana.PublicKey `json:"tokenIn"`
	TokenOut  solana.PublicKey `json:"tokenOut"`
	AmountIn  uint64           `json:"amountIn"`
	AmountOut uint64           `json:"amountOut"`
	Pool      engine.Pool      `json:"pool"`
}

// Quote is a priced but unexecuted swap.
type Quote struct {
	PoolID    solana.PublicKey `json:"poolId"`
	TokenIn   solana.PublicKey `json:"tokenIn"`
	TokenOut  solana.PublicKey `json:"tokenOut"`
	AmountIn  uint64           `json:"amountIn"`
	AmountOut uint64           `json:"amountOut"`
	FeeBps    uint64           `json:"feeBps"`
}

type entry struct {
	mu       sync.Mutex
	pool     engine.Pool
	strategy engine.PricingStrategy
}

// Ledger is safe for concurrent use. Operations on different pools run in
// parallel; operations on one pool are serialized.
type Ledger struct {
	programID  solana.PublicKey
	strategies strategies.Set
	store      Store
	metrics    *Metrics
	logger     logging.Logger

	mu    sync.RWMutex // guards pools, not the entries' contents
	pools map[solana.PublicKey]*entry

	sequence atomic.Uint64

	subMu       sync.Mutex
	subscribers map[chan uint64]struct{}
}

func New(cfg *Config) (*Ledger, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		programID:   cfg.ProgramID,
		strategies:  cfg.Strategies,
		store:       cfg.Store,
		metrics:     NewMetrics(cfg.Registry),
		logger:      cfg.Logger,
		pools:       make(map[solana.PublicKey]*entry),
		subscribers: make(map[chan uint64]struct{}),
	}, nil
}

// PoolAddress derives the program address of the (tokenA, tokenB) pool.
// Token order is significant.
func PoolAddress(programID, tokenA, tokenB solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{PoolSeed, tokenA[:], tokenB[:]}, programID)
}

// Load restores pools from the store. It must run before any other operation.
func (l *Ledger) Load(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	pools, err := l.store.LoadPools(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pools: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pool := range pools {
		if err := l.validateRecord(pool); err != nil {
			return 0, err
		}
		strategy, err := l.strategies.Get(pool.Strategy)
		if err != nil {
			return 0, fmt.Errorf("pool %s: %w", pool.ID, err)
		}
		l.pools[pool.ID] = &entry{pool: pool, strategy: strategy}
	}
	l.metrics.pools.Set(float64(len(l.pools)))
	l.logger.Info("restored pools", "count", len(pools))
	return len(pools), nil
}

func (l *Ledger) validateRecord(pool engine.Pool) error {
	if pool.FeeBps >= fixedpoint.BasisPoints {
		return fmt.Errorf("pool %s: %w: %d bps", pool.ID, ErrInvalidFee, pool.FeeBps)
	}
	id, bump, err := PoolAddress(l.programID, pool.TokenA, pool.TokenB)
	if err != nil {
		return fmt.Errorf("pool %s: derive address: %w", pool.ID, err)
	}
	if !id.Equals(pool.ID) || bump != pool.Bump {
		return fmt.Errorf("pool %s: stored address does not match program %s", pool.ID, l.programID)
	}
	return nil
}

// CreatePool registers an empty pool for (tokenA, tokenB) priced by kind.
func (l *Ledger) CreatePool(ctx context.Context, tokenA, tokenB solana.PublicKey, feeBps uint64, kind engine.StrategyKind) (pool engine.Pool, err error) {
	start := time.Now()
	defer func() { l.metrics.observe("create_pool", kind.String(), start, err) }()

	if feeBps >= fixedpoint.BasisPoints {
		return engine.Pool{}, fmt.Errorf("%w: %d bps, must be below %d", ErrInvalidFee, feeBps, fixedpoint.BasisPoints)
	}
	if tokenA.Equals(tokenB) {
		return engine.Pool{}, fmt.Errorf("%w: pool tokens must differ (%s)", ErrTokenMismatch, tokenA)
	}
	strategy, err := l.strategies.Get(kind)
	if err != nil {
		return engine.Pool{}, err
	}
	id, bump, err := PoolAddress(l.programID, tokenA, tokenB)
	if err != nil {
		return engine.Pool{}, fmt.Errorf("derive pool address: %w", err)
	}

	pool = engine.Pool{
		ID:       id,
		TokenA:   tokenA,
		TokenB:   tokenB,
		FeeBps:   feeBps,
		Strategy: kind,
		Bump:     bump,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pools[id]; ok {
		return engine.Pool{}, fmt.Errorf("%w: %s", ErrPoolExists, id)
	}
	if err := l.persist(ctx, pool); err != nil {
		return engine.Pool{}, err
	}
	l.pools[id] = &entry{pool: pool, strategy: strategy}
	l.metrics.pools.Set(float64(len(l.pools)))
	l.advance()

	l.logger.Info("pool created", "pool", id, "tokenA", tokenA, "tokenB", tokenB, "feeBps", feeBps, "strategy", kind)
	return pool, nil
}

// Deposit adds liquidity. An empty pool takes both maxima and mints the
// curve's initial supply; a funded pool takes the largest amounts at the
// current reserve ratio that fit within the maxima.
func (l *Ledger) Deposit(ctx context.Context, poolID solana.PublicKey, maxA, maxB uint64) (res DepositResult, err error) {
	start := time.Now()
	e, err := l.entry(poolID)
	if err != nil {
		l.metrics.observe("deposit", "", start, err)
		return DepositResult{}, err
	}
	defer func() { l.metrics.observe("deposit", e.strategy.Kind().String(), start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.pool

	var amountA, amountB, minted uint64
	switch {
	case next.IsEmpty():
		amountA, amountB = maxA, maxB
		if minted, err = e.strategy.InitialLPSupply(maxA, maxB); err != nil {
			return DepositResult{}, fmt.Errorf("deposit into %s: %w", poolID, err)
		}
	case next.ReserveA == 0 || next.ReserveB == 0:
		return DepositResult{}, fmt.Errorf("%w: pool %s has one-sided reserves", engine.ErrInsufficientLiquidity, poolID)
	default:
		if amountA, amountB, err = proportionalAmounts(maxA, maxB, next.ReserveA, next.ReserveB); err != nil {
			return DepositResult{}, fmt.Errorf("deposit into %s: %w", poolID, err)
		}
		if minted, err = e.strategy.LPTokensToMint(amountA, next.ReserveA, next.LPSupply); err != nil {
			return DepositResult{}, fmt.Errorf("deposit into %s: %w", poolID, err)
		}
	}
	if minted == 0 {
		return DepositResult{}, fmt.Errorf("%w: deposit of (%d, %d) mints no lp tokens", engine.ErrInsufficientLiquidity, amountA, amountB)
	}

	if next.ReserveA, err = fixedpoint.CheckedAdd(next.ReserveA, amountA); err != nil {
		return DepositResult{}, err
	}
	if next.ReserveB, err = fixedpoint.CheckedAdd(next.ReserveB, amountB); err != nil {
		return DepositResult{}, err
	}
	if next.LPSupply, err = fixedpoint.CheckedAdd(next.LPSupply, minted); err != nil {
		return DepositResult{}, err
	}

	if err := l.commit(ctx, e, next); err != nil {
		return DepositResult{}, err
	}
	l.logger.Debug("deposit", "pool", poolID, "amountA", amountA, "amountB", amountB, "lpMinted", minted)
	return DepositResult{AmountA: amountA, AmountB: amountB, LPMinted: minted, Pool: next}, nil
}

// proportionalAmounts returns min(maxA, reserveA*maxB/reserveB) and
// min(maxB, reserveB*maxA/reserveA).
func proportionalAmounts(maxA, maxB, reserveA, reserveB uint64) (uint64, uint64, error) {
	matchedA, err := fixedpoint.MulDiv(reserveA, maxB, reserveB)
	if err != nil {
		if !errors.Is(err, fixedpoint.ErrOverflow) {
			return 0, 0, err
		}
		// maxB is worth more than any uint64 of A, so maxA binds.
		matchedA = maxA
	}
	matchedB, err := fixedpoint.MulDiv(reserveB, maxA, reserveA)
	if err != nil {
		if !errors.Is(err, fixedpoint.ErrOverflow) {
			return 0, 0, err
		}
		matchedB = maxB
	}
	return min(maxA, matchedA), min(maxB, matchedB), nil
}

// Withdraw burns lpAmount and releases the curve's share of both reserves.
func (l *Ledger) Withdraw(ctx context.Context, poolID solana.PublicKey, lpAmount uint64) (res WithdrawResult, err error) {
	start := time.Now()
	e, err := l.entry(poolID)
	if err != nil {
		l.metrics.observe("withdraw", "", start, err)
		return WithdrawResult{}, err
	}
	defer func() { l.metrics.observe("withdraw", e.strategy.Kind().String(), start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.pool

	amountA, amountB, err := e.strategy.WithdrawAmounts(lpAmount, next.ReserveA, next.ReserveB, next.LPSupply)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("withdraw from %s: %w", poolID, err)
	}
	if next.ReserveA, err = fixedpoint.CheckedSub(next.ReserveA, amountA); err != nil {
		return WithdrawResult{}, err
	}
	if next.ReserveB, err = fixedpoint.CheckedSub(next.ReserveB, amountB); err != nil {
		return WithdrawResult{}, err
	}
	if next.LPSupply, err = fixedpoint.CheckedSub(next.LPSupply, lpAmount); err != nil {
		return WithdrawResult{}, err
	}

	if err := l.commit(ctx, e, next); err != nil {
		return WithdrawResult{}, err
	}
	l.logger.Debug("withdraw", "pool", poolID, "lpBurned", lpAmount, "amountA", amountA, "amountB", amountB)
	return WithdrawResult{AmountA: amountA, AmountB: amountB, LPBurned: lpAmount, Pool: next}, nil
}

// Swap sells amountIn of tokenIn for the pool's other token, failing with
// ErrSlippageExceeded when the output is below minAmountOut.
func (l *Ledger) Swap(ctx context.Context, poolID, tokenIn solana.PublicKey, amountIn, minAmountOut uint64) (res SwapResult, err error) {
	start := time.Now()
	e, err := l.entry(poolID)
	if err != nil {
		l.metrics.observe("swap", "", start, err)
		return SwapResult{}, err
	}
	defer func() { l.metrics.observe("swap", e.strategy.Kind().String(), start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.pool

	q, err := quote(e, tokenIn, amountIn)
	if err != nil {
		return SwapResult{}, err
	}
	if q.AmountOut < minAmountOut {
		return SwapResult{}, fmt.Errorf("%w: output %d below minimum %d", ErrSlippageExceeded, q.AmountOut, minAmountOut)
	}

	if tokenIn.Equals(next.TokenA) {
		next.ReserveA, err = fixedpoint.CheckedAdd(next.ReserveA, amountIn)
		if err == nil {
			next.ReserveB, err = fixedpoint.CheckedSub(next.ReserveB, q.AmountOut)
		}
	} else {
		next.ReserveB, err = fixedpoint.CheckedAdd(next.ReserveB, amountIn)
		if err == nil {
			next.ReserveA, err = fixedpoint.CheckedSub(next.ReserveA, q.AmountOut)
		}
	}
	if err != nil {
		return SwapResult{}, fmt.Errorf("swap on %s: %w", poolID, err)
	}

	if err := l.commit(ctx, e, next); err != nil {
		return SwapResult{}, err
	}
	l.logger.Debug("swap", "pool", poolID, "tokenIn", tokenIn, "amountIn", amountIn, "amountOut", q.AmountOut)
	return SwapResult{
		TokenIn:   q.TokenIn,
		TokenOut:  q.TokenOut,
		AmountIn:  amountIn,
		AmountOut: q.AmountOut,
		Pool:      next,
	}, nil
}

// Quote prices a swap against the committed reserves without executing it.
func (l *Ledger) Quote(poolID, tokenIn solana.PublicKey, amountIn uint64) (q Quote, err error) {
	start := time.Now()
	e, err := l.entry(poolID)
	if err != nil {
		l.metrics.observe("quote", "", start, err)
		return Quote{}, err
	}
	defer func() { l.metrics.observe("quote", e.strategy.Kind().String(), start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	return quote(e, tokenIn, amountIn)
}

// quote must be called with e.mu held.
func quote(e *entry, tokenIn solana.PublicKey, amountIn uint64) (Quote, error) {
	pool := e.pool
	reserveIn, reserveOut, err := pool.Reserves(tokenIn)
	if err != nil {
		return Quote{}, err
	}
	tokenOut := pool.TokenB
	if tokenIn.Equals(pool.TokenB) {
		tokenOut = pool.TokenA
	}

	amountOut, err := e.strategy.QuoteAmountOut(amountIn, reserveIn, reserveOut, pool.FeeBps)
	if err != nil {
		return Quote{}, fmt.Errorf("quote on %s: %w", pool.ID, err)
	}
	return Quote{
		PoolID:    pool.ID,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		FeeBps:    pool.FeeBps,
	}, nil
}

// Pool returns the committed record of poolID.
func (l *Ledger) Pool(poolID solana.PublicKey) (engine.Pool, error) {
	e, err := l.entry(poolID)
	if err != nil {
		return engine.Pool{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool, nil
}

// Pools returns every committed record sorted by ID.
func (l *Ledger) Pools() []engine.Pool {
	return l.Snapshot().Pools
}

// Snapshot returns a consistent view of every pool at the current sequence.
func (l *Ledger) Snapshot() engine.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]*entry, 0, len(l.pools))
	for _, e := range l.pools {
		entries = append(entries, e)
	}
	// fixed lock order; operations only ever hold one entry lock
	slices.SortFunc(entries, func(a, b *entry) int {
		return bytes.Compare(a.pool.ID[:], b.pool.ID[:])
	})

	pools := make([]engine.Pool, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		defer e.mu.Unlock()
		pools[i] = e.pool
	}
	return engine.NewSnapshot(l.sequence.Load(), uint64(time.Now().UnixMilli()), pools)
}

// Sequence returns the number of commits so far.
func (l *Ledger) Sequence() uint64 {
	return l.sequence.Load()
}

// Subscribe returns a channel that receives the sequence after commits. Slow
// receivers miss intermediate values but always see the latest one.
// The returned func unsubscribes and closes the channel.
func (l *Ledger) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)
	l.subMu.Lock()
	l.subscribers[ch] = struct{}{}
	l.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subscribers, ch)
			l.subMu.Unlock()
			close(ch)
		})
	}
}

func (l *Ledger) entry(poolID solana.PublicKey) (*entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	return e, nil
}

// commit persists next and swaps it in. It must be called with e.mu held.
func (l *Ledger) commit(ctx context.Context, e *entry, next engine.Pool) error {
	if err := l.persist(ctx, next); err != nil {
		return err
	}
	e.pool = next
	l.advance()
	return nil
}

func (l *Ledger) persist(ctx context.Context, pool engine.Pool) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.SavePools(ctx, []engine.Pool{pool}); err != nil {
		l.logger.Error("persist pool failed", "pool", pool.ID, "error", err)
		return fmt.Errorf("persist pool %s: %w", pool.ID, err)
	}
	return nil
}

func (l *Ledger) advance() {
	seq := l.sequence.Add(1)
	l.metrics.sequence.Set(float64(seq))

	l.subMu.Lock()
	defer l.subMu.Unlock()
	for ch := range l.subscribers {
		select {
		case ch <- seq:
		default:
			// drop the stale value so the latest one is delivered
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- seq:
			default:
			}
		}
	}
}
