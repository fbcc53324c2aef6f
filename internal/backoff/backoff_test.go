package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayGrowth(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // capped
		{9, time.Second},
	}
	for _, tt := range tests {
		if got := p.delayWithRand(tt.attempt, 0); got != tt.want {
			t.Errorf("delay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayJitter(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Minute, Factor: 2, Jitter: 0.5}
	base := p.delayWithRand(1, 0)
	high := p.delayWithRand(1, 0.999)
	if base != 100*time.Millisecond {
		t.Errorf("base delay = %v", base)
	}
	if high <= base || high > 150*time.Millisecond {
		t.Errorf("jittered delay = %v, want in (100ms, 150ms]", high)
	}
}

func TestSleepCompletes(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}
	if err := p.Sleep(context.Background(), 1); err != nil {
		t.Fatalf("Sleep err = %v", err)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Initial: time.Hour, Max: time.Hour, Factor: 1}
	done := make(chan error, 1)
	go func() { done <- p.Sleep(ctx, 1) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Sleep err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after cancellation")
	}
}
