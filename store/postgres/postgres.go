// Package postgres persists pool records in a Postgres table through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS amm_pools (
	id         TEXT PRIMARY KEY,
	token_a    TEXT NOT NULL,
	token_b    TEXT NOT NULL,
	reserve_a  NUMERIC(20, 0) NOT NULL,
	reserve_b  NUMERIC(20, 0) NOT NULL,
	lp_supply  NUMERIC(20, 0) NOT NULL,
	fee_bps    NUMERIC(20, 0) NOT NULL,
	strategy   TEXT NOT NULL,
	bump       SMALLINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertPool = `
INSERT INTO amm_pools (
	id, token_a, token_b, reserve_a, reserve_b, lp_supply, fee_bps, strategy, bump, created_at, updated_at
) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9, now(), now())
ON CONFLICT (id)
DO UPDATE SET
	reserve_a = EXCLUDED.reserve_a,
	reserve_b = EXCLUDED.reserve_b,
	lp_supply = EXCLUDED.lp_supply,
	updated_at = now()`

const selectPools = `
SELECT id, token_a, token_b, reserve_a::text, reserve_b::text, lp_supply::text, fee_bps::text, strategy, bump
FROM amm_pools
ORDER BY id`

// Options configure Open. A zero MaxRetries tries once.
type Options struct {
	DSN          string
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       logging.Logger
}

// Store provides Postgres persistence for pools.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects, retrying transient failures with exponential backoff, and
// ensures the pools table exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.DSN == "" {
		return nil, errors.New("pg dsn is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	if opts.RetryBackoff > 0 {
		policy.InitialInterval = opts.RetryBackoff
		policy.MaxInterval = opts.RetryBackoff * 10
	}
	notify := func(err error, next time.Duration) {
		opts.Logger.Warn("postgres connect failed, retrying", "error", err, "backoff", next)
	}
	connect := func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		if _, err := pool.Exec(ctx, schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
		return pool, nil
	}

	pool, err := backoff.Retry(ctx, connect,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(max(opts.MaxRetries, 0)+1)),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// SavePools upserts a batch of pools in one transaction.
func (s *Store) SavePools(ctx context.Context, pools []engine.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, pool := range pools {
			batch.Queue(upsertPool, encodePool(pool)...)
		}

		br := tx.SendBatch(ctx, batch)
		for range pools {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert pool: %w", err)
			}
		}
		return br.Close()
	})
}

// LoadPools returns every stored pool sorted by ID.
func (s *Store) LoadPools(ctx context.Context) ([]engine.Pool, error) {
	rows, err := s.pool.Query(ctx, selectPools)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var pools []engine.Pool
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.tokenA, &r.tokenB, &r.reserveA, &r.reserveB, &r.lpSupply, &r.feeBps, &r.strategy, &r.bump); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		pool, err := r.decode()
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	engine.SortPools(pools)
	return pools, nil
}

// encodePool returns the upsert arguments. Amounts travel as decimal text so
// the full uint64 range survives the signed bigint wire types.
func encodePool(p engine.Pool) []any {
	return []any{
		p.ID.String(),
		p.TokenA.String(),
		p.TokenB.String(),
		strconv.FormatUint(p.ReserveA, 10),
		strconv.FormatUint(p.ReserveB, 10),
		strconv.FormatUint(p.LPSupply, 10),
		strconv.FormatUint(p.FeeBps, 10),
		p.Strategy.String(),
		int16(p.Bump),
	}
}

type row struct {
	id, tokenA, tokenB                   string
	reserveA, reserveB, lpSupply, feeBps string
	strategy                             string
	bump                                 int16
}

func (r row) decode() (engine.Pool, error) {
	var (
		p   engine.Pool
		err error
	)
	keys := []struct {
		dst *solana.PublicKey
		src string
	}{{&p.ID, r.id}, {&p.TokenA, r.tokenA}, {&p.TokenB, r.tokenB}}
	for _, k := range keys {
		if *k.dst, err = solana.PublicKeyFromBase58(k.src); err != nil {
			return engine.Pool{}, fmt.Errorf("decode pool %s key %q: %w", r.id, k.src, err)
		}
	}

	amounts := []struct {
		dst *uint64
		src string
	}{{&p.ReserveA, r.reserveA}, {&p.ReserveB, r.reserveB}, {&p.LPSupply, r.lpSupply}, {&p.FeeBps, r.feeBps}}
	for _, a := range amounts {
		if *a.dst, err = strconv.ParseUint(a.src, 10, 64); err != nil {
			return engine.Pool{}, fmt.Errorf("decode pool %s amount %q: %w", r.id, a.src, err)
		}
	}

	if p.Strategy, err = engine.ParseStrategyKind(r.strategy); err != nil {
		return engine.Pool{}, fmt.Errorf("decode pool %s: %w", r.id, err)
	}
	if r.bump < 0 || r.bump > 255 {
		return engine.Pool{}, fmt.Errorf("decode pool %s: bump %d out of range", r.id, r.bump)
	}
	p.Bump = uint8(r.bump)
	return p, nil
}
