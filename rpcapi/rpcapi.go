// Package rpcapi exposes a ledger over go-ethereum's JSON-RPC server under the
// "amm" namespace, including a pool stream subscription that sends one full
// snapshot followed by diffs.
package rpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gagliardetto/solana-go"

	"github.com/defistate/defistate-amm/differ"
	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/indexer"
	"github.com/defistate/defistate-amm/ledger"
	"github.com/defistate/defistate-amm/logging"
)

const (
	// Namespace is the namespace under which the API is registered.
	Namespace = "amm"
	// PoolStreamSubscriptionMethod is the subscription name for full and diff events.
	PoolStreamSubscriptionMethod = "subscribePoolStream"

	EventFull = "full"
	EventDiff = "diff"
)

// Event is the envelope of every subscription notification.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  int64  `json:"sentAt"` // unix nanos
}

// Error codes returned alongside ledger failures.
const (
	CodeInvalidParams         = -32602
	CodePoolNotFound          = -38001
	CodePoolExists            = -38002
	CodeSlippageExceeded      = -38003
	CodeInsufficientLiquidity = -38004
	CodeOverflow              = -38005
	CodeInternal              = -32603
)

type apiError struct {
	err  error
	code int
}

func (e *apiError) Error() string  { return e.err.Error() }
func (e *apiError) ErrorCode() int { return e.code }
func (e *apiError) Unwrap() error  { return e.err }

func wrap(err error) error {
	if err == nil {
		return nil
	}
	code := CodeInternal
	switch {
	case errors.Is(err, ledger.ErrPoolNotFound):
		code = CodePoolNotFound
	case errors.Is(err, ledger.ErrPoolExists):
		code = CodePoolExists
	case errors.Is(err, ledger.ErrSlippageExceeded):
		code = CodeSlippageExceeded
	case errors.Is(err, engine.ErrInsufficientLiquidity):
		code = CodeInsufficientLiquidity
	case errors.Is(err, engine.ErrOverflow):
		code = CodeOverflow
	case errors.Is(err, ledger.ErrInvalidFee),
		errors.Is(err, ledger.ErrTokenMismatch),
		errors.Is(err, engine.ErrUnknownStrategy):
		code = CodeInvalidParams
	}
	return &apiError{err: err, code: code}
}

// Config holds the API's dependencies.
type Config struct {
	Ledger *ledger.Ledger
	Differ *differ.SnapshotDiffer
	Logger logging.Logger
}

func (c *Config) validate() error {
	if c.Ledger == nil {
		return errors.New("config: Ledger cannot be nil")
	}
	if c.Differ == nil {
		return errors.New("config: Differ cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// API is the receiver registered under Namespace.
type API struct {
	ledger *ledger.Ledger
	differ *differ.SnapshotDiffer
	logger logging.Logger
}

func New(cfg *Config) (*API, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &API{ledger: cfg.Ledger, differ: cfg.Differ, logger: cfg.Logger}, nil
}

// NewServer returns an rpc server with api registered.
func NewServer(api *API) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(Namespace, api); err != nil {
		return nil, fmt.Errorf("register %s api: %w", Namespace, err)
	}
	return srv, nil
}

// Handler serves websocket upgrades and plain HTTP JSON-RPC on one address.
func Handler(srv *rpc.Server, allowedOrigins []string) http.Handler {
	ws := srv.WebsocketHandler(allowedOrigins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			ws.ServeHTTP(w, r)
			return
		}
		srv.ServeHTTP(w, r)
	})
}

func (api *API) CreatePool(ctx context.Context, tokenA, tokenB solana.PublicKey, feeBps uint64, strategy engine.StrategyKind) (engine.Pool, error) {
	pool, err := api.ledger.CreatePool(ctx, tokenA, tokenB, feeBps, strategy)
	return pool, wrap(err)
}

func (api *API) Deposit(ctx context.Context, pool solana.PublicKey, maxA, maxB uint64) (ledger.DepositResult, error) {
	res, err := api.ledger.Deposit(ctx, pool, maxA, maxB)
	return res, wrap(err)
}

func (api *API) Withdraw(ctx context.Context, pool solana.PublicKey, lpAmount uint64) (ledger.WithdrawResult, error) {
	res, err := api.ledger.Withdraw(ctx, pool, lpAmount)
	return res, wrap(err)
}

func (api *API) Swap(ctx context.Context, pool, tokenIn solana.PublicKey, amountIn, minAmountOut uint64) (ledger.SwapResult, error) {
	res, err := api.ledger.Swap(ctx, pool, tokenIn, amountIn, minAmountOut)
	return res, wrap(err)
}

func (api *API) Quote(pool, tokenIn solana.PublicKey, amountIn uint64) (ledger.Quote, error) {
	q, err := api.ledger.Quote(pool, tokenIn, amountIn)
	return q, wrap(err)
}

func (api *API) Pool(pool solana.PublicKey) (engine.Pool, error) {
	p, err := api.ledger.Pool(pool)
	return p, wrap(err)
}

func (api *API) Pools() []engine.Pool {
	return api.ledger.Pools()
}

// PoolsForPair returns the pools trading tokenA against tokenB in either order.
func (api *API) PoolsForPair(tokenA, tokenB solana.PublicKey) []engine.Pool {
	return indexer.New(api.ledger.Pools()).GetByPair(tokenA, tokenB)
}

func (api *API) Snapshot() engine.Snapshot {
	return api.ledger.Snapshot()
}

// SubscribePoolStream sends a full snapshot, then a diff whenever the ledger
// sequence advances. Diffs are computed against the last snapshot sent on
// this subscription, so skipped sequences are folded into the next diff.
func (api *API) SubscribePoolStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()

	// subscribe before the first snapshot so no commit is missed in between
	updates, cancel := api.ledger.Subscribe()
	go func() {
		defer cancel()
		last := api.ledger.Snapshot()
		if err := notify(notifier, sub.ID, EventFull, last); err != nil {
			api.logger.Warn("pool stream send failed", "subscription", sub.ID, "error", err)
			return
		}
		api.logger.Debug("pool stream started", "subscription", sub.ID, "sequence", last.Sequence)

		for {
			select {
			case _, ok := <-updates:
				if !ok {
					return
				}
				next := api.ledger.Snapshot()
				if next.Sequence == last.Sequence {
					continue
				}
				diff, err := api.differ.Diff(&last, &next)
				if err != nil {
					api.logger.Error("pool stream diff failed", "subscription", sub.ID, "error", err)
					return
				}
				if err := notify(notifier, sub.ID, EventDiff, diff); err != nil {
					api.logger.Warn("pool stream send failed", "subscription", sub.ID, "error", err)
					return
				}
				last = next
			case err := <-sub.Err():
				api.logger.Debug("pool stream closed", "subscription", sub.ID, "error", err)
				return
			}
		}
	}()
	return sub, nil
}

func notify(notifier *rpc.Notifier, id rpc.ID, eventType string, payload any) error {
	raw, err := json.Marshal(Event{Type: eventType, Payload: payload, SentAt: time.Now().UnixNano()})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return notifier.Notify(id, json.RawMessage(raw))
}
