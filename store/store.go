// Package store defines the persistence collaborator of the ledger and opens
// the configured backend.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/logging"
	"github.com/defistate/defistate-amm/store/jsonl"
	"github.com/defistate/defistate-amm/store/postgres"
)

// Store persists committed pool records. SavePools must be atomic for the
// whole batch from the caller's point of view: on error none of the records
// may be considered committed.
type Store interface {
	SavePools(ctx context.Context, pools []engine.Pool) error
	// LoadPools returns the latest record of every pool.
	LoadPools(ctx context.Context) ([]engine.Pool, error)
	Close() error
}

const (
	DriverNone     = "none"
	DriverJSONL    = "jsonl"
	DriverPostgres = "postgres"
)

// Config selects and parameterizes a backend.
type Config struct {
	Driver       string        `mapstructure:"driver"`
	Path         string        `mapstructure:"path"`
	DSN          string        `mapstructure:"dsn"`
	MaxRetries   int           `mapstructure:"max-retries"`
	RetryBackoff time.Duration `mapstructure:"retry-backoff"`
}

// Open returns the backend named by cfg.Driver, or nil for DriverNone.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverJSONL:
		s, err = jsonl.New(cfg.Path, logger)
	case DriverPostgres:
		s, err = postgres.Open(ctx, postgres.Options{
			DSN:          cfg.DSN,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       logger,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
