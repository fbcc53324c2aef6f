package promptwire

import (
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/haasonsaas/promptwire/internal/observability"
)

// Config configures a Client. Every client owns its configuration outright;
// there is no package-level client or shared credential state.
type Config struct {
	// APIURL is the service base URL, e.g. "https://api.promptwire.dev".
	APIURL string

	// APIKey authenticates every call. Scoped to one project.
	APIKey string

	// ProjectID selects the project all lookups and events belong to.
	ProjectID string

	// EnableRealtime joins the project's change channel so cached entities
	// are replaced or invalidated on push instead of waiting out the TTL.
	EnableRealtime bool

	// CachePrompts keeps prompt and experiment snapshots in memory.
	// Without it every resolution is a live fetch.
	CachePrompts bool

	// CacheTTL bounds snapshot staleness; zero selects the default (5m).
	CacheTTL time.Duration

	// StrictVariants rejects experiments whose variant traffic does not
	// sum to 1.0 instead of relying on the last-variant fallback.
	StrictVariants bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics, when set, receives resolution, cache, telemetry, and
	// realtime counters.
	Metrics *observability.Metrics

	// Tracer, when set, wraps resolutions and backend fetches in spans.
	Tracer *observability.Tracer

	// HTTPClient overrides the backend HTTP client, including its timeout.
	HTTPClient *http.Client
}

// ResolveOptions carries per-call inputs for prompt and experiment resolution.
type ResolveOptions struct {
	// Variables override the prompt's defaults during rendering.
	Variables map[string]any

	// SessionID keys variant assignment. Callers wanting stable
	// assignment across calls and processes must supply their own; when
	// absent a random, non-reproducible token is generated per call.
	SessionID string

	// UserID is attached to telemetry events.
	UserID string

	// Metadata is attached verbatim to telemetry events.
	Metadata map[string]any
}

// ExperimentResult is a resolved experiment assignment.
type ExperimentResult struct {
	// VariantID is the winning variant.
	VariantID string

	// Content is the variant's prompt rendered with the effective variables.
	Content string

	// Variables is the effective mapping used for rendering: prompt
	// defaults overlaid with the caller's overrides.
	Variables map[string]any
}

const sessionAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newSessionID returns a short random alphanumeric token. Deliberately not
// reproducible: stable assignment requires a caller-supplied session key.
func newSessionID() string {
	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = sessionAlphabet[rand.Intn(len(sessionAlphabet))] // #nosec G404 -- identity token, not a secret
	}
	return string(buf)
}

// mergeVariables overlays caller overrides on prompt defaults.
func mergeVariables(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// failureMetadata clones the caller metadata and records the failure reason,
// so the failure event explains itself without mutating caller state.
func failureMetadata(metadata map[string]any, cause error) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["error"] = cause.Error()
	return out
}
