// Package client follows a remote ledger's pool stream and maintains a
// verified local snapshot.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/defistate-amm/differ"
	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/logging"
	"github.com/defistate/defistate-amm/patcher"
	"github.com/defistate/defistate-amm/rpcapi"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// ErrOutOfSync is returned by ProcessMessage when a diff cannot be applied to
// the current snapshot. The stream must be restarted from a full event.
var ErrOutOfSync = errors.New("stream out of sync")

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     logging.Logger
	BufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// StreamProcessor parses events, applies diffs to the latest snapshot and
// broadcasts every verified snapshot. It is decoupled from the networking layer.
type StreamProcessor struct {
	last    *engine.Snapshot
	stateCh chan *engine.Snapshot
	logger  logging.Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(logger logging.Logger, bufferSize uint) *StreamProcessor {
	return &StreamProcessor{
		logger:  logger,
		stateCh: make(chan *engine.Snapshot, bufferSize),
	}
}

// State returns a read-only channel for receiving new snapshots.
func (sp *StreamProcessor) State() <-chan *engine.Snapshot {
	return sp.stateCh
}

// Last returns the most recent verified snapshot, or nil before the first full event.
func (sp *StreamProcessor) Last() *engine.Snapshot {
	return sp.last
}

// Reset forgets the current snapshot so the next event must be a full one.
func (sp *StreamProcessor) Reset() {
	sp.last = nil
}

// ProcessMessage accepts one raw event, processes it, and updates the
// internal snapshot. It blocks while the state buffer is full and returns
// ctx's error if ctx ends first, leaving the snapshot unchanged.
func (sp *StreamProcessor) ProcessMessage(ctx context.Context, rawData json.RawMessage) error {
	start := time.Now()
	var event SubscriptionEvent
	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case rpcapi.EventFull:
		return sp.handleFull(ctx, event, start)
	case rpcapi.EventDiff:
		return sp.handleDiff(ctx, event, start)
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleFull(ctx context.Context, event SubscriptionEvent, start time.Time) error {
	var snapshot engine.Snapshot
	if err := json.Unmarshal(event.Payload, &snapshot); err != nil {
		return fmt.Errorf("unmarshal full payload: %w", err)
	}
	engine.SortPools(snapshot.Pools)
	if !snapshot.Verify() {
		return fmt.Errorf("%w: full snapshot %d fails hash check", ErrOutOfSync, snapshot.Sequence)
	}

	sp.logLatency(&snapshot, time.Since(start), event.SentAt, rpcapi.EventFull)
	if err := sp.publish(ctx, &snapshot); err != nil {
		return err
	}
	sp.last = &snapshot
	return nil
}

func (sp *StreamProcessor) handleDiff(ctx context.Context, event SubscriptionEvent, start time.Time) error {
	var diff differ.SnapshotDiff
	if err := json.Unmarshal(event.Payload, &diff); err != nil {
		return fmt.Errorf("unmarshal diff payload: %w", err)
	}
	if sp.last == nil {
		return fmt.Errorf("%w: diff %d->%d before full snapshot", ErrOutOfSync, diff.FromSequence, diff.ToSequence)
	}
	if diff.FromSequence != sp.last.Sequence {
		sp.logger.Warn("out-of-order diff",
			"last_sequence", sp.last.Sequence,
			"diff_from", diff.FromSequence,
			"diff_to", diff.ToSequence,
		)
		return fmt.Errorf("%w: have %d, diff starts at %d", ErrOutOfSync, sp.last.Sequence, diff.FromSequence)
	}

	next, err := patcher.Patch(sp.last, &diff)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutOfSync, err)
	}

	sp.logLatency(next, time.Since(start), event.SentAt, rpcapi.EventDiff)
	if err := sp.publish(ctx, next); err != nil {
		return err
	}
	sp.last = next
	return nil
}

func (sp *StreamProcessor) publish(ctx context.Context, s *engine.Snapshot) error {
	select {
	case sp.stateCh <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sp *StreamProcessor) logLatency(s *engine.Snapshot, processing time.Duration, sentAt int64, eventType string) {
	transport := time.Now().Add(-processing).Sub(time.Unix(0, sentAt))
	sp.logger.Debug("snapshot processed",
		"sequence", s.Sequence,
		"type", eventType,
		"pools", len(s.Pools),
		"latency_transport_ms", transport.Milliseconds(),
		"latency_proc_ms", processing.Milliseconds(),
	)
}

// Client manages the connection and uses StreamProcessor for logic.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    logging.Logger
}

// NewClient starts following cfg.URL until ctx is canceled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}
	go client.run(ctx, cfg.URL)
	return client, nil
}

// State delegates to the processor's snapshot channel.
func (c *Client) State() <-chan *engine.Snapshot {
	return c.processor.State()
}

// Err returns a channel that is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

func newReconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialReconnectDelay
	b.MaxInterval = maxReconnectDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	return b
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	delay := newReconnectBackOff()

	for {
		if ctx.Err() != nil {
			c.logger.Info("client context canceled, shutting down")
			return
		}

		c.logger.Info("connecting to rpc server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			wait := delay.NextBackOff()
			c.logger.Error("connect failed, will retry", "error", err, "delay", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		c.logger.Info("connected to rpc server")
		delay.Reset()

		err = c.subscribeAndProcess(ctx, rpcClient)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.logger.Info("context canceled, shutting down")
			return
		}
		wait := delay.NextBackOff()
		c.logger.Error("subscription ended, will reconnect", "error", err, "delay", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()
	// each subscription starts with a full event
	c.processor.Reset()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, rpcapi.Namespace, rawCh, rpcapi.PoolStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("subscribed, waiting for data")
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(ctx, rawData); err != nil {
				if errors.Is(err, ErrOutOfSync) || ctx.Err() != nil {
					return err
				}
				c.logger.Error("error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
