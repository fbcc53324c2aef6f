// Package backoff provides jittered exponential delays for the SDK's two
// collaborator boundaries: backend fetch retries and realtime reconnects.
// The resolution core itself never retries.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy parameterizes exponential backoff.
type Policy struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor multiplies the delay on each attempt.
	Factor float64
	// Jitter in [0,1] randomizes the delay upward by up to that fraction.
	Jitter float64
}

// DefaultPolicy suits short-lived HTTP fetches: 100ms initial, 5s cap.
func DefaultPolicy() Policy {
	return Policy{Initial: 100 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: 0.1}
}

// ReconnectPolicy suits long-lived websocket reconnects: 500ms initial, 30s cap.
func ReconnectPolicy() Policy {
	return Policy{Initial: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: 0.2}
}

// Delay returns the backoff duration before the given 1-indexed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter needs no crypto randomness
}

// delayWithRand computes the delay using an explicit random value in [0,1),
// keeping the arithmetic deterministic for tests.
func (p Policy) delayWithRand(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	total := base + base*p.Jitter*random
	if limit := float64(p.Max); total > limit {
		total = limit
	}
	return time.Duration(total)
}

// Sleep waits for the attempt's delay or until ctx is done, whichever comes
// first, returning ctx.Err() on cancellation.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
