package models

// UsageEvent records one prompt resolution attempt, success or failure.
// Events are immutable and delivered to the service best-effort.
type UsageEvent struct {
	PromptID  string `json:"promptId"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	Success   bool   `json:"success"`

	// Latency is the resolution wall time in milliseconds.
	Latency int64 `json:"latency,omitempty"`

	Tokens   int            `json:"tokens,omitempty"`
	Cost     float64        `json:"cost,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExperimentResultEvent records the outcome of one experiment resolution or a
// delayed feedback signal for a previously assigned variant.
//
// The wire names retain the service's "abTest" vocabulary for compatibility
// with the deployed REST and push surfaces.
type ExperimentResultEvent struct {
	ExperimentID string `json:"abTestId"`
	VariantID    string `json:"variantId"`
	SessionID    string `json:"sessionId"`
	UserID       string `json:"userId,omitempty"`
	Success      bool   `json:"success"`

	// Latency is the resolution wall time in milliseconds; zero for
	// delayed feedback events.
	Latency int64 `json:"latency,omitempty"`

	Feedback map[string]any `json:"feedback,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChangeKind names one realtime entity-change event.
type ChangeKind string

const (
	ChangePromptCreated     ChangeKind = "prompt-created"
	ChangePromptUpdated     ChangeKind = "prompt-updated"
	ChangePromptDeleted     ChangeKind = "prompt-deleted"
	ChangeExperimentCreated ChangeKind = "ab-test-created"
	ChangeExperimentUpdated ChangeKind = "ab-test-updated"
	ChangeExperimentDeleted ChangeKind = "ab-test-deleted"
)

// ChangeEvent is one entity-change notification pushed by the service.
// Created/updated events carry a full snapshot; deleted events carry the id.
type ChangeEvent struct {
	Kind ChangeKind `json:"type"`

	Prompt   *Prompt `json:"prompt,omitempty"`
	PromptID string  `json:"promptId,omitempty"`

	Experiment   *Experiment `json:"abTest,omitempty"`
	ExperimentID string      `json:"abTestId,omitempty"`
}

// EntityID returns the id of the entity the event refers to, preferring the
// snapshot's own id over the bare id field.
func (e *ChangeEvent) EntityID() string {
	switch {
	case e.Prompt != nil:
		return e.Prompt.ID
	case e.Experiment != nil:
		return e.Experiment.ID
	case e.PromptID != "":
		return e.PromptID
	default:
		return e.ExperimentID
	}
}
