package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/jointaccount/internal/ledger"
)

const (
	defaultInterval = 500 * time.Millisecond
	defaultBatch    = ledger.DefaultEventPage
)

// Source is the read side of the ledger event log.
type Source interface {
	Events(ctx context.Context, afterSeq uint64, limit int) ([]ledger.Event, error)
}

// Sink receives events in log order. Deliver may be called again for an
// event that was already accepted and must tolerate that.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev ledger.Event) error
}

// CursorStore remembers the last sequence number every sink accepted.
type CursorStore interface {
	Load(ctx context.Context) (uint64, error)
	Save(ctx context.Context, seq uint64) error
}

// Relay tails the ledger event log and fans each event out to the sinks. The
// cursor only advances once all sinks accepted an event, so a crash or a
// failing sink leads to redelivery rather than loss.
type Relay struct {
	source   Source
	cursor   CursorStore
	sinks    []Sink
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// Option tunes a Relay.
type Option func(*Relay)

// WithInterval sets how long the relay sleeps when the log is drained.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatch sets how many events are read per poll.
func WithBatch(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// NewRelay wires a relay from the ledger to the given sinks.
func NewRelay(source Source, cursor CursorStore, sinks []Sink, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		source:   source,
		cursor:   cursor,
		sinks:    sinks,
		interval: defaultInterval,
		batch:    defaultBatch,
		logger:   logger.With("component", "event_relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run pumps until ctx is cancelled. Delivery errors are logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("event relay started", slog.Duration("interval", r.interval), slog.Int("sinks", len(r.sinks)))
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("event relay stopped")
			return nil
		case <-timer.C:
		}

		n, err := r.Pump(ctx)
		wait := r.interval
		switch {
		case err != nil && ctx.Err() == nil:
			r.logger.Warn("event relay pump failed", slog.Int("delivered", n), slog.Any("error", err))
		case n == r.batch:
			// More events are likely waiting.
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Pump delivers one page of events and returns how many were delivered.
func (r *Relay) Pump(ctx context.Context) (int, error) {
	after, err := r.cursor.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	page, err := r.source.Events(ctx, after, r.batch)
	if err != nil {
		return 0, fmt.Errorf("read events after %d: %w", after, err)
	}

	delivered := 0
	for _, ev := range page {
		if err := r.deliver(ctx, ev); err != nil {
			return delivered, err
		}
		if err := r.cursor.Save(ctx, ev.Seq); err != nil {
			return delivered, fmt.Errorf("save cursor %d: %w", ev.Seq, err)
		}
		delivered++
	}
	if delivered > 0 {
		r.logger.Debug("events relayed", slog.Int("count", delivered), slog.Uint64("cursor", page[len(page)-1].Seq))
	}
	return delivered, nil
}

func (r *Relay) deliver(ctx context.Context, ev ledger.Event) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range r.sinks {
		g.Go(func() error {
			if err := sink.Deliver(gctx, ev); err != nil {
				return fmt.Errorf("sink %s seq %d: %w", sink.Name(), ev.Seq, err)
			}
			return nil
		})
	}
	return g.Wait()
}
