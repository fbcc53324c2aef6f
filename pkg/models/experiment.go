package models

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

const (
	ExperimentStatusDraft     ExperimentStatus = "DRAFT"
	ExperimentStatusRunning   ExperimentStatus = "RUNNING"
	ExperimentStatusPaused    ExperimentStatus = "PAUSED"
	ExperimentStatusCompleted ExperimentStatus = "COMPLETED"
)

// Experiment is an A/B test over a set of weighted prompt variants.
//
// Variant order is significant: the variants partition the unit interval in
// stored order, and assignment walks them cumulatively. Only Running
// experiments are served.
type Experiment struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Status ExperimentStatus `json:"status"`

	// Variants is the ordered traffic partition. Traffic fractions are
	// validated to sum to 1.0 (±0.001) at creation time by the service.
	Variants []Variant `json:"variants"`
}

// IsRunning reports whether the experiment may be served.
func (e *Experiment) IsRunning() bool {
	return e != nil && e.Status == ExperimentStatusRunning
}

// Variant is one arm of an experiment, serving a single prompt version.
type Variant struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// PromptID references the prompt version this arm serves.
	PromptID string `json:"promptId"`

	// Traffic is this arm's share of the unit interval, in [0,1].
	Traffic float64 `json:"traffic"`
}
