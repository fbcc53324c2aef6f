// Package telemetry dispatches usage and experiment-result events to the
// backend without ever blocking or failing a resolution.
//
// Every send runs as a detached goroutine with its own deadline. Delivery
// failures are logged and counted, never returned: resolution correctness is
// independent of telemetry delivery.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/promptwire/pkg/models"
)

// Sender is the backend surface the dispatcher needs.
type Sender interface {
	SendUsage(ctx context.Context, event *models.UsageEvent) error
	SendExperimentResult(ctx context.Context, experimentID string, event *models.ExperimentResultEvent) error
}

// Outcome reports one completed dispatch to an optional observer hook.
type Outcome struct {
	// Kind is "usage" or "experiment_result".
	Kind string
	Err  error
}

// Dispatcher fans events out to the backend in the background.
type Dispatcher struct {
	sender  Sender
	logger  *slog.Logger
	timeout time.Duration
	observe func(Outcome)

	wg       sync.WaitGroup
	failures atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithTimeout bounds each background send.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithObserver registers a hook called after every dispatch, successful or
// not. Used to feed metrics.
func WithObserver(fn func(Outcome)) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// NewDispatcher creates a dispatcher over the given sender.
func NewDispatcher(sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		logger:  slog.Default().With("component", "telemetry"),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RecordUsage submits a usage event in the background and returns immediately.
func (d *Dispatcher) RecordUsage(event *models.UsageEvent) {
	d.dispatch("usage", func(ctx context.Context) error {
		return d.sender.SendUsage(ctx, event)
	})
}

// RecordExperimentResult submits an experiment result event in the background
// and returns immediately.
func (d *Dispatcher) RecordExperimentResult(experimentID string, event *models.ExperimentResultEvent) {
	d.dispatch("experiment_result", func(ctx context.Context) error {
		return d.sender.SendExperimentResult(ctx, experimentID, event)
	})
}

func (d *Dispatcher) dispatch(kind string, send func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := send(ctx)
		if err != nil {
			d.failures.Add(1)
			d.logger.Warn("event delivery failed", "kind", kind, "error", err)
		}
		if d.observe != nil {
			d.observe(Outcome{Kind: kind, Err: err})
		}
	}()
}

// Close waits for in-flight sends to finish, bounded by ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failures returns the number of events that could not be delivered.
func (d *Dispatcher) Failures() uint64 {
	return d.failures.Load()
}
