package promptwire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/haasonsaas/promptwire/internal/realtime"
	"github.com/haasonsaas/promptwire/internal/telemetry"
	"github.com/haasonsaas/promptwire/pkg/models"
)

type fakeBackend struct {
	mu          sync.Mutex
	prompts     []*models.Prompt
	experiments []*models.Experiment
	fetchErr    error

	listPromptCalls int
	usage           []*models.UsageEvent
	results         []*models.ExperimentResultEvent
}

func (f *fakeBackend) ListPrompts(ctx context.Context) ([]*models.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listPromptCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.prompts, nil
}

func (f *fakeBackend) GetPrompt(ctx context.Context, id string) (*models.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	for _, p := range f.prompts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, errors.New("no such prompt")
}

func (f *fakeBackend) ListExperiments(ctx context.Context) ([]*models.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.experiments, nil
}

func (f *fakeBackend) GetExperiment(ctx context.Context, id string) (*models.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.experiments {
		if x.ID == id {
			return x, nil
		}
	}
	return nil, errors.New("no such experiment")
}

func (f *fakeBackend) GetExperimentAnalytics(ctx context.Context, id string) ([]models.VariantAnalytics, error) {
	return nil, nil
}

func (f *fakeBackend) SendUsage(ctx context.Context, event *models.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage = append(f.usage, event)
	return nil
}

func (f *fakeBackend) SendExperimentResult(ctx context.Context, experimentID string, event *models.ExperimentResultEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, event)
	return nil
}

func (f *fakeBackend) sentUsage() []*models.UsageEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.UsageEvent(nil), f.usage...)
}

func (f *fakeBackend) sentResults() []*models.ExperimentResultEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.ExperimentResultEvent(nil), f.results...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	handlers map[models.ChangeKind][]realtime.Handler
}

func (f *fakeNotifier) Connect(ctx context.Context) error { return nil }
func (f *fakeNotifier) Close()                            {}

func (f *fakeNotifier) Subscribe(kind models.ChangeKind, handler realtime.Handler) *realtime.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[models.ChangeKind][]realtime.Handler)
	}
	f.handlers[kind] = append(f.handlers[kind], handler)
	return &realtime.Subscription{}
}

func (f *fakeNotifier) emit(kind models.ChangeKind, ev models.ChangeEvent) {
	f.mu.Lock()
	hs := append([]realtime.Handler(nil), f.handlers[kind]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// newTestClient builds a client against a fake backend, replacing the HTTP
// layer and the telemetry sender.
func newTestClient(t *testing.T, backend Backend, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		APIURL:    "http://127.0.0.1:0",
		APIKey:    "pw_test",
		ProjectID: "proj-1",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	// The test client never dials out, so realtime stays off here;
	// notifier-dependent paths swap in a fakeNotifier directly.
	cfg.EnableRealtime = false
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.backend = backend
	c.events = telemetry.NewDispatcher(backend, telemetry.WithLogger(c.logger))
	return c
}

// drain flushes in-flight telemetry so the fake's event slices are final.
func drain(t *testing.T, c *Client) {
	t.Helper()
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func greetingPrompt() *models.Prompt {
	return &models.Prompt{
		ID:      "p1",
		Name:    "greeting",
		Content: "Hello {{name}}, {{tone}}!",
		Variables: map[string]any{
			"tone": "welcome aboard",
		},
		Version: 3,
		Status:  models.PromptStatusPublished,
	}
}

func checkoutExperiment() *models.Experiment {
	return &models.Experiment{
		ID:     "x1",
		Name:   "checkout-copy",
		Status: models.ExperimentStatusRunning,
		Variants: []models.Variant{
			{ID: "control", Name: "control", PromptID: "p1", Traffic: 0.5},
			{ID: "treatment", Name: "treatment", PromptID: "p2", Traffic: 0.5},
		},
	}
}

func TestGetPromptRendersWithOverrides(t *testing.T) {
	backend := &fakeBackend{prompts: []*models.Prompt{greetingPrompt()}}
	c := newTestClient(t, backend, nil)

	got, err := c.GetPrompt(context.Background(), "greeting", &ResolveOptions{
		SessionID: "s1",
		Variables: map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if want := "Hello Ada, welcome aboard!"; got != want {
		t.Fatalf("rendered = %q, want %q", got, want)
	}

	drain(t, c)
	usage := backend.sentUsage()
	if len(usage) != 1 {
		t.Fatalf("usage events = %d, want 1", len(usage))
	}
	ev := usage[0]
	if !ev.Success || ev.PromptID != "p1" || ev.SessionID != "s1" {
		t.Fatalf("unexpected usage event: %+v", ev)
	}
}

func TestGetPromptResolvesByID(t *testing.T) {
	backend := &fakeBackend{prompts: []*models.Prompt{greetingPrompt()}}
	c := newTestClient(t, backend, nil)

	got, err := c.GetPrompt(context.Background(), "p1", &ResolveOptions{
		Variables: map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if want := "Hello Ada, welcome aboard!"; got != want {
		t.Fatalf("rendered = %q, want %q", got, want)
	}
	drain(t, c)
}

func TestGetPromptUnknownEmitsSingleFailureEvent(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(t, backend, nil)

	_, err := c.GetPrompt(context.Background(), "missing", &ResolveOptions{SessionID: "s1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	drain(t, c)
	usage := backend.sentUsage()
	if len(usage) != 1 {
		t.Fatalf("usage events = %d, want exactly 1", len(usage))
	}
	ev := usage[0]
	if ev.Success {
		t.Fatal("failure event marked success")
	}
	if ev.PromptID != "missing" || ev.SessionID != "s1" {
		t.Fatalf("unexpected failure event: %+v", ev)
	}
	if _, ok := ev.Metadata["error"]; !ok {
		t.Fatal("failure event missing error metadata")
	}
}

func TestGetPromptBackendUnavailable(t *testing.T) {
	backend := &fakeBackend{fetchErr: errors.New("connection refused")}
	c := newTestClient(t, backend, nil)

	_, err := c.GetPrompt(context.Background(), "greeting", nil)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}

	var rerr *ResolveError
	if !errors.As(err, &rerr) {
		t.Fatalf("err %T should be *ResolveError", err)
	}
	if rerr.Entity != "prompt" || rerr.Name != "greeting" {
		t.Fatalf("unexpected resolve error: %+v", rerr)
	}
	drain(t, c)
}

func TestGetPromptReadsThroughCacheOnce(t *testing.T) {
	backend := &fakeBackend{prompts: []*models.Prompt{greetingPrompt()}}
	c := newTestClient(t, backend, func(cfg *Config) { cfg.CachePrompts = true })

	for i := 0; i < 3; i++ {
		if _, err := c.GetPrompt(context.Background(), "greeting", nil); err != nil {
			t.Fatalf("GetPrompt #%d: %v", i, err)
		}
	}
	drain(t, c)

	backend.mu.Lock()
	calls := backend.listPromptCalls
	backend.mu.Unlock()
	if calls != 1 {
		t.Fatalf("backend list calls = %d, want 1 (cache should absorb repeats)", calls)
	}
}

func TestGetExperimentPromptAssignsDeterministically(t *testing.T) {
	backend := &fakeBackend{
		prompts: []*models.Prompt{
			greetingPrompt(),
			{ID: "p2", Name: "greeting-v2", Content: "Hey {{name}}!", Status: models.PromptStatusPublished},
		},
		experiments: []*models.Experiment{checkoutExperiment()},
	}
	c := newTestClient(t, backend, nil)

	// "abc" hashes below the control variant's 0.5 cumulative share.
	res, err := c.GetExperimentPrompt(context.Background(), "checkout-copy", &ResolveOptions{
		SessionID: "abc",
		Variables: map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("GetExperimentPrompt: %v", err)
	}
	if res.VariantID != "control" {
		t.Fatalf("variant = %q, want control", res.VariantID)
	}
	if want := "Hello Ada, welcome aboard!"; res.Content != want {
		t.Fatalf("content = %q, want %q", res.Content, want)
	}

	again, err := c.GetExperimentPrompt(context.Background(), "checkout-copy", &ResolveOptions{SessionID: "abc"})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again.VariantID != res.VariantID {
		t.Fatalf("same session resolved to %q then %q", res.VariantID, again.VariantID)
	}

	drain(t, c)
	results := backend.sentResults()
	if len(results) != 2 {
		t.Fatalf("result events = %d, want 2", len(results))
	}
	ev := results[0]
	if !ev.Success || ev.ExperimentID != "x1" || ev.VariantID != "control" || ev.SessionID != "abc" {
		t.Fatalf("unexpected result event: %+v", ev)
	}
}

func TestGetExperimentPromptPausedIsNotFound(t *testing.T) {
	paused := checkoutExperiment()
	paused.Status = models.ExperimentStatusPaused
	backend := &fakeBackend{experiments: []*models.Experiment{paused}}
	c := newTestClient(t, backend, nil)

	_, err := c.GetExperimentPrompt(context.Background(), "checkout-copy", &ResolveOptions{SessionID: "abc"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	drain(t, c)
	results := backend.sentResults()
	if len(results) != 1 {
		t.Fatalf("result events = %d, want 1", len(results))
	}
	ev := results[0]
	if ev.Success || ev.ExperimentID != "x1" || ev.VariantID != "" {
		t.Fatalf("unexpected failure event: %+v", ev)
	}
}

func TestGetExperimentPromptUnknownEmitsUsageFailure(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(t, backend, nil)

	_, err := c.GetExperimentPrompt(context.Background(), "no-such-test", &ResolveOptions{SessionID: "s1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	drain(t, c)
	if results := backend.sentResults(); len(results) != 0 {
		t.Fatalf("result events = %d, want 0 for unknown experiment", len(results))
	}
	usage := backend.sentUsage()
	if len(usage) != 1 || usage[0].Success {
		t.Fatalf("expected one failure usage event, got %+v", usage)
	}
}

func TestGetExperimentPromptStrictTraffic(t *testing.T) {
	skewed := checkoutExperiment()
	skewed.Variants[0].Traffic = 0.3
	skewed.Variants[1].Traffic = 0.3
	backend := &fakeBackend{experiments: []*models.Experiment{skewed}}
	c := newTestClient(t, backend, func(cfg *Config) { cfg.StrictVariants = true })

	_, err := c.GetExperimentPrompt(context.Background(), "checkout-copy", &ResolveOptions{SessionID: "abc"})
	if !errors.Is(err, ErrInvalidExperiment) {
		t.Fatalf("err = %v, want ErrInvalidExperiment", err)
	}

	drain(t, c)
	results := backend.sentResults()
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected one failure result event, got %+v", results)
	}
}

func TestRecordFeedback(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(t, backend, nil)

	c.RecordFeedback("x1", "control", true, map[string]any{"rating": 5}, "s9")
	drain(t, c)

	results := backend.sentResults()
	if len(results) != 1 {
		t.Fatalf("result events = %d, want 1", len(results))
	}
	ev := results[0]
	if !ev.Success || ev.ExperimentID != "x1" || ev.VariantID != "control" || ev.SessionID != "s9" {
		t.Fatalf("unexpected feedback event: %+v", ev)
	}
	if ev.Feedback["rating"] != 5 {
		t.Fatalf("feedback payload = %+v", ev.Feedback)
	}
}

func TestOnWithoutRealtime(t *testing.T) {
	c := newTestClient(t, &fakeBackend{}, nil)
	defer drain(t, c)

	if _, err := c.On(models.ChangePromptUpdated, func(models.ChangeEvent) {}); !errors.Is(err, ErrRealtimeDisabled) {
		t.Fatalf("err = %v, want ErrRealtimeDisabled", err)
	}
}

func TestPushEventsKeepCacheFresh(t *testing.T) {
	backend := &fakeBackend{prompts: []*models.Prompt{greetingPrompt()}}
	c := newTestClient(t, backend, func(cfg *Config) { cfg.CachePrompts = true })
	nt := &fakeNotifier{}
	c.notifier = nt
	c.wireCacheInvalidation()

	if _, err := c.GetPrompt(context.Background(), "greeting", nil); err != nil {
		t.Fatalf("warm resolve: %v", err)
	}

	updated := greetingPrompt()
	updated.Content = "Hi {{name}}."
	updated.Version = 4
	nt.emit(models.ChangePromptUpdated, models.ChangeEvent{
		Kind:   models.ChangePromptUpdated,
		Prompt: updated,
	})

	got, err := c.GetPrompt(context.Background(), "greeting", &ResolveOptions{
		Variables: map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("post-update resolve: %v", err)
	}
	if want := "Hi Ada."; got != want {
		t.Fatalf("rendered = %q, want %q (cache should hold the pushed snapshot)", got, want)
	}

	nt.emit(models.ChangePromptDeleted, models.ChangeEvent{
		Kind:     models.ChangePromptDeleted,
		PromptID: "p1",
	})
	if _, ok := c.store.GetPrompt("p1"); ok {
		t.Fatal("deleted prompt still cached")
	}
	drain(t, c)
}

func TestOffCancelsSubscription(t *testing.T) {
	c := newTestClient(t, &fakeBackend{}, nil)
	defer drain(t, c)

	// Nil-safe even when realtime is off and no subscription exists.
	c.Off(nil)
}
