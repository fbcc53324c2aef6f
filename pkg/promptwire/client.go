// Package promptwire is the client SDK for the Promptwire prompt-management
// service: versioned prompt templates, deterministic A/B experiment
// assignment, local caching with push invalidation, and best-effort usage
// telemetry.
package promptwire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/promptwire/internal/api"
	"github.com/haasonsaas/promptwire/internal/assign"
	"github.com/haasonsaas/promptwire/internal/cache"
	"github.com/haasonsaas/promptwire/internal/observability"
	"github.com/haasonsaas/promptwire/internal/realtime"
	"github.com/haasonsaas/promptwire/internal/telemetry"
	tmpl "github.com/haasonsaas/promptwire/internal/template"
	"github.com/haasonsaas/promptwire/pkg/models"
)

// Backend is the service surface the client resolves against. Implemented by
// the HTTP client in internal/api; faked in tests.
type Backend interface {
	ListPrompts(ctx context.Context) ([]*models.Prompt, error)
	GetPrompt(ctx context.Context, id string) (*models.Prompt, error)
	ListExperiments(ctx context.Context) ([]*models.Experiment, error)
	GetExperiment(ctx context.Context, id string) (*models.Experiment, error)
	GetExperimentAnalytics(ctx context.Context, id string) ([]models.VariantAnalytics, error)
	SendUsage(ctx context.Context, event *models.UsageEvent) error
	SendExperimentResult(ctx context.Context, experimentID string, event *models.ExperimentResultEvent) error
}

// notifier is the slice of the realtime client the façade depends on.
type notifier interface {
	Connect(ctx context.Context) error
	Close()
	Subscribe(kind models.ChangeKind, handler realtime.Handler) *realtime.Subscription
}

// Client resolves prompts and experiment assignments for one project.
//
// A Client is safe for concurrent use. Construct it with New, call
// Initialize once to connect realtime and warm the cache, and Close it when
// done to drain in-flight telemetry.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	backend  Backend
	store    *cache.Store
	notifier notifier
	events   *telemetry.Dispatcher
}

// New creates a client from cfg. No network traffic happens until
// Initialize or the first resolution.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, fmt.Errorf("promptwire: APIURL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("promptwire: APIKey is required")
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("promptwire: ProjectID is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "promptwire")

	apiOpts := []api.Option{api.WithLogger(logger.With("component", "promptwire.api"))}
	if cfg.HTTPClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(cfg.HTTPClient))
	}
	backend := api.NewClient(cfg.APIURL, cfg.APIKey, cfg.ProjectID, apiOpts...)

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		backend: backend,
	}

	c.events = telemetry.NewDispatcher(backend,
		telemetry.WithLogger(logger.With("component", "promptwire.telemetry")),
		telemetry.WithObserver(func(o telemetry.Outcome) {
			c.metrics.ObserveTelemetry(o.Kind, o.Err)
		}),
	)

	if cfg.CachePrompts {
		c.store = cache.NewStore(cfg.CacheTTL)
	}
	if cfg.EnableRealtime {
		c.notifier = realtime.NewClient(cfg.APIURL, cfg.APIKey, cfg.ProjectID,
			realtime.WithLogger(logger.With("component", "promptwire.realtime")))
	}
	if c.notifier != nil {
		c.wireCacheInvalidation()
	}

	return c, nil
}

// Initialize connects the realtime channel (when enabled) and warms the
// cache (when enabled). A warm failure is logged, not fatal: resolution falls
// back to read-through fetches.
func (c *Client) Initialize(ctx context.Context) error {
	if c.notifier != nil {
		if err := c.notifier.Connect(ctx); err != nil {
			return fmt.Errorf("promptwire: realtime connect: %w", err)
		}
	}
	if c.store != nil {
		c.warmCache(ctx)
	}
	return nil
}

// Close disconnects realtime and drains in-flight telemetry, bounded by ctx.
func (c *Client) Close(ctx context.Context) error {
	if c.notifier != nil {
		c.notifier.Close()
	}
	return c.events.Close(ctx)
}

// GetPrompt resolves a prompt by name or id and renders it.
//
// The prompt's default variables are overlaid with opts.Variables before
// rendering; placeholders covered by neither are left verbatim. Every call,
// successful or not, emits exactly one usage event in the background.
func (c *Client) GetPrompt(ctx context.Context, nameOrID string, opts *ResolveOptions) (string, error) {
	start := time.Now()
	o := normalizeOptions(opts)
	sessionID := o.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}

	ctx, span := c.tracer.Start(ctx, "promptwire.get_prompt",
		attribute.String("prompt", nameOrID))
	var rerr error
	defer func() { observability.EndSpan(span, rerr) }()

	prompt, err := c.lookupPrompt(ctx, nameOrID)
	if err != nil {
		rerr = err
		c.events.RecordUsage(&models.UsageEvent{
			PromptID:  nameOrID,
			SessionID: sessionID,
			UserID:    o.UserID,
			Success:   false,
			Latency:   time.Since(start).Milliseconds(),
			Metadata:  failureMetadata(o.Metadata, err),
		})
		c.observeResolution("prompt", start, err)
		return "", err
	}

	rendered := tmpl.Render(prompt.Content, mergeVariables(prompt.Variables, o.Variables))

	c.events.RecordUsage(&models.UsageEvent{
		PromptID:  prompt.ID,
		SessionID: sessionID,
		UserID:    o.UserID,
		Success:   true,
		Latency:   time.Since(start).Milliseconds(),
		Metadata:  o.Metadata,
	})
	c.observeResolution("prompt", start, nil)
	return rendered, nil
}

// GetExperimentPrompt resolves an experiment by name: it deterministically
// assigns the session to a variant, renders the variant's prompt, and emits
// an experiment result event.
//
// Only Running experiments resolve; any other status is ErrNotFound. With no
// SessionID in opts a random one is generated, making the assignment valid
// for this call only.
func (c *Client) GetExperimentPrompt(ctx context.Context, name string, opts *ResolveOptions) (*ExperimentResult, error) {
	start := time.Now()
	o := normalizeOptions(opts)
	sessionID := o.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}

	ctx, span := c.tracer.Start(ctx, "promptwire.get_experiment_prompt",
		attribute.String("experiment", name))
	var rerr error
	defer func() { observability.EndSpan(span, rerr) }()

	experiment, err := c.lookupExperiment(ctx, name)
	if err != nil {
		rerr = err
		// No experiment id to post a result against, so the failure is
		// recorded as a usage event keyed by the requested name.
		c.events.RecordUsage(&models.UsageEvent{
			PromptID:  name,
			SessionID: sessionID,
			UserID:    o.UserID,
			Success:   false,
			Latency:   time.Since(start).Milliseconds(),
			Metadata:  failureMetadata(o.Metadata, err),
		})
		c.observeResolution("experiment", start, err)
		return nil, err
	}

	fail := func(err error) (*ExperimentResult, error) {
		rerr = err
		c.events.RecordExperimentResult(experiment.ID, &models.ExperimentResultEvent{
			ExperimentID: experiment.ID,
			SessionID:    sessionID,
			UserID:       o.UserID,
			Success:      false,
			Latency:      time.Since(start).Milliseconds(),
			Metadata:     failureMetadata(o.Metadata, err),
		})
		c.observeResolution("experiment", start, err)
		return nil, err
	}

	if !experiment.IsRunning() || len(experiment.Variants) == 0 {
		return fail(notFoundErr("experiment", name,
			fmt.Errorf("status %s with %d variants is not servable", experiment.Status, len(experiment.Variants))))
	}
	if c.cfg.StrictVariants {
		if err := assign.ValidateTraffic(experiment.Variants); err != nil {
			return fail(&ResolveError{
				Kind: FailureInvalidExperiment, Entity: "experiment", Name: name, Cause: err,
			})
		}
	}

	variant := assign.Select(sessionID, experiment.Variants)
	span.SetAttributes(attribute.String("variant", variant.ID))

	prompt, err := c.promptByID(ctx, variant.PromptID)
	if err != nil {
		return fail(err)
	}

	variables := mergeVariables(prompt.Variables, o.Variables)
	content := tmpl.Render(prompt.Content, variables)

	c.events.RecordExperimentResult(experiment.ID, &models.ExperimentResultEvent{
		ExperimentID: experiment.ID,
		VariantID:    variant.ID,
		SessionID:    sessionID,
		UserID:       o.UserID,
		Success:      true,
		Latency:      time.Since(start).Milliseconds(),
		Metadata:     o.Metadata,
	})
	c.observeResolution("experiment", start, nil)

	return &ExperimentResult{
		VariantID: variant.ID,
		Content:   content,
		Variables: variables,
	}, nil
}

// RecordFeedback emits a delayed outcome signal for a previously assigned
// variant, independent of any resolution call. Delivery is best-effort and
// detached; the method never blocks on the network.
func (c *Client) RecordFeedback(experimentID, variantID string, success bool, feedback map[string]any, sessionID string) {
	if sessionID == "" {
		sessionID = newSessionID()
	}
	c.events.RecordExperimentResult(experimentID, &models.ExperimentResultEvent{
		ExperimentID: experimentID,
		VariantID:    variantID,
		SessionID:    sessionID,
		Success:      success,
		Feedback:     feedback,
	})
}

// ExperimentAnalytics fetches the service's per-variant aggregates.
func (c *Client) ExperimentAnalytics(ctx context.Context, experimentID string) ([]models.VariantAnalytics, error) {
	analytics, err := c.backend.GetExperimentAnalytics(ctx, experimentID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, notFoundErr("experiment", experimentID, err)
		}
		return nil, backendErr("experiment", experimentID, err)
	}
	return analytics, nil
}

// On registers a handler for one entity-change kind. It fails synchronously
// with ErrRealtimeDisabled when the client was built without realtime.
func (c *Client) On(kind models.ChangeKind, handler func(models.ChangeEvent)) (*realtime.Subscription, error) {
	if c.notifier == nil {
		return nil, ErrRealtimeDisabled
	}
	return c.notifier.Subscribe(kind, handler), nil
}

// Off cancels a subscription returned by On. Nil-safe.
func (c *Client) Off(sub *realtime.Subscription) {
	sub.Cancel()
}

// lookupPrompt resolves by id first, then by name, reading through to the
// backend on a cache miss.
func (c *Client) lookupPrompt(ctx context.Context, nameOrID string) (*models.Prompt, error) {
	if c.store != nil {
		if p, ok := c.store.GetPrompt(nameOrID); ok {
			c.metrics.ObserveCacheLookup(true)
			return p, nil
		}
		if p, ok := c.store.GetPromptByName(nameOrID); ok {
			c.metrics.ObserveCacheLookup(true)
			return p, nil
		}
		c.metrics.ObserveCacheLookup(false)
	}

	prompts, err := c.backend.ListPrompts(ctx)
	if err != nil {
		return nil, c.classifyFetchErr("prompt", nameOrID, err)
	}
	for _, p := range prompts {
		if p.ID == nameOrID || p.Name == nameOrID {
			if c.store != nil {
				c.store.PutPrompt(p)
			}
			return p, nil
		}
	}
	return nil, notFoundErr("prompt", nameOrID, nil)
}

// promptByID resolves a variant's prompt reference.
func (c *Client) promptByID(ctx context.Context, id string) (*models.Prompt, error) {
	if c.store != nil {
		if p, ok := c.store.GetPrompt(id); ok {
			c.metrics.ObserveCacheLookup(true)
			return p, nil
		}
		c.metrics.ObserveCacheLookup(false)
	}
	p, err := c.backend.GetPrompt(ctx, id)
	if err != nil {
		return nil, c.classifyFetchErr("prompt", id, err)
	}
	if c.store != nil {
		c.store.PutPrompt(p)
	}
	return p, nil
}

// lookupExperiment resolves an experiment by name, reading through to the
// backend on a cache miss.
func (c *Client) lookupExperiment(ctx context.Context, name string) (*models.Experiment, error) {
	if c.store != nil {
		if x, ok := c.store.GetExperimentByName(name); ok {
			c.metrics.ObserveCacheLookup(true)
			return x, nil
		}
		c.metrics.ObserveCacheLookup(false)
	}

	experiments, err := c.backend.ListExperiments(ctx)
	if err != nil {
		return nil, c.classifyFetchErr("experiment", name, err)
	}
	var found *models.Experiment
	for _, x := range experiments {
		if c.store != nil {
			c.store.PutExperiment(x)
		}
		if x.Name == name || x.ID == name {
			found = x
		}
	}
	if found == nil {
		return nil, notFoundErr("experiment", name, nil)
	}
	return found, nil
}

func (c *Client) classifyFetchErr(entity, name string, err error) error {
	if errors.Is(err, api.ErrNotFound) {
		return notFoundErr(entity, name, err)
	}
	return backendErr(entity, name, err)
}

// warmCache pre-populates the store with the project's prompts and
// experiments. Best-effort: a failed warm leaves resolution on the
// read-through path.
func (c *Client) warmCache(ctx context.Context) {
	prompts, err := c.backend.ListPrompts(ctx)
	if err != nil {
		c.logger.Warn("cache warm failed", "entity", "prompts", "error", err)
	} else {
		for _, p := range prompts {
			c.store.PutPrompt(p)
		}
	}

	experiments, err := c.backend.ListExperiments(ctx)
	if err != nil {
		c.logger.Warn("cache warm failed", "entity", "experiments", "error", err)
	} else {
		for _, x := range experiments {
			c.store.PutExperiment(x)
		}
	}
}

// wireCacheInvalidation keeps the store aligned with push notifications:
// created/updated events replace the snapshot wholesale, deleted events drop
// both index entries.
func (c *Client) wireCacheInvalidation() {
	count := func(ev models.ChangeEvent) {
		c.metrics.ObserveRealtimeEvent(string(ev.Kind))
	}

	c.notifier.Subscribe(models.ChangePromptCreated, func(ev models.ChangeEvent) {
		count(ev)
		if c.store != nil && ev.Prompt != nil {
			c.store.PutPrompt(ev.Prompt)
		}
	})
	c.notifier.Subscribe(models.ChangePromptUpdated, func(ev models.ChangeEvent) {
		count(ev)
		if c.store != nil && ev.Prompt != nil {
			c.store.PutPrompt(ev.Prompt)
		}
	})
	c.notifier.Subscribe(models.ChangePromptDeleted, func(ev models.ChangeEvent) {
		count(ev)
		if c.store != nil {
			c.store.InvalidatePrompt(ev.EntityID())
		}
	})
	c.notifier.Subscribe(models.ChangeExperimentCreated, func(ev models.ChangeEvent) {
		count(ev)
		if c.store != nil && ev.Experiment != nil {
			c.store.PutExperiment(ev.Experiment)
		}
	})
	c.notifier.Subscribe(models.ChangeExperimentUpdated, func(ev models.ChangeEvent) {
		count(ev)
		if c.store != nil && ev.Experiment != nil {
			c.store.PutExperiment(ev.Experiment)
		}
	})
	c.notifier.Subscribe(models.ChangeExperimentDeleted, func(ev models.ChangeEvent) {
		count(ev)
		if c.store != nil {
			c.store.InvalidateExperiment(ev.EntityID())
		}
	})
}

func (c *Client) observeResolution(kind string, start time.Time, err error) {
	outcome := "success"
	var rerr *ResolveError
	switch {
	case err == nil:
	case errors.As(err, &rerr):
		outcome = string(rerr.Kind)
	default:
		outcome = string(FailureBackendUnavailable)
	}
	c.metrics.ObserveResolution(kind, outcome, time.Since(start).Seconds())
}

func normalizeOptions(opts *ResolveOptions) ResolveOptions {
	if opts == nil {
		return ResolveOptions{}
	}
	return *opts
}
