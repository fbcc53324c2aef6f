package promptwire

import (
	"errors"
	"fmt"
)

// Sentinel errors for resolution failures. Use errors.Is against these; the
// concrete error in the chain is usually a *ResolveError carrying the
// requested name and the underlying cause.
var (
	// ErrNotFound reports a prompt or experiment absent after a live
	// fetch, or an experiment that is not running.
	ErrNotFound = errors.New("not found")

	// ErrBackendUnavailable reports a failed read-through fetch.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInvalidExperiment reports an experiment whose variant list failed
	// strict traffic validation. Only returned with StrictVariants set.
	ErrInvalidExperiment = errors.New("invalid experiment")

	// ErrRealtimeDisabled reports handler registration on a client
	// constructed without realtime enabled.
	ErrRealtimeDisabled = errors.New("realtime is disabled; enable it in the client configuration")
)

// FailureKind discriminates resolution failures.
type FailureKind string

const (
	FailureNotFound           FailureKind = "not_found"
	FailureBackendUnavailable FailureKind = "backend_unavailable"
	FailureInvalidExperiment  FailureKind = "invalid_experiment"
)

// ResolveError is a failed prompt or experiment resolution.
type ResolveError struct {
	// Kind categorizes the failure.
	Kind FailureKind

	// Entity is "prompt" or "experiment".
	Entity string

	// Name is the name or id the caller asked for.
	Name string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("%s %q: %s", e.Entity, e.Name, e.Kind)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// Is maps failure kinds onto the package sentinels so callers can use
// errors.Is without inspecting the struct.
func (e *ResolveError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == FailureNotFound
	case ErrBackendUnavailable:
		return e.Kind == FailureBackendUnavailable
	case ErrInvalidExperiment:
		return e.Kind == FailureInvalidExperiment
	default:
		return false
	}
}

func notFoundErr(entity, name string, cause error) *ResolveError {
	return &ResolveError{Kind: FailureNotFound, Entity: entity, Name: name, Cause: cause}
}

func backendErr(entity, name string, cause error) *ResolveError {
	return &ResolveError{Kind: FailureBackendUnavailable, Entity: entity, Name: name, Cause: cause}
}
