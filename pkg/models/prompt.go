// Package models provides the domain types exchanged with the Promptwire service.
package models

// PromptStatus is the lifecycle state of a prompt version.
type PromptStatus string

const (
	PromptStatusDraft     PromptStatus = "DRAFT"
	PromptStatusPublished PromptStatus = "PUBLISHED"
	PromptStatusArchived  PromptStatus = "ARCHIVED"
)

// Prompt is one immutable version of a named template.
//
// A new version is a new Prompt record sharing the name lineage; records are
// never mutated in place once served. Updates arrive as whole new snapshots
// over the realtime channel.
type Prompt struct {
	// ID is the stable identity of this version.
	ID string `json:"id"`

	// Name is unique within a project and shared across versions.
	Name string `json:"name"`

	// Content is the template body with {{identifier}} placeholders.
	Content string `json:"content"`

	// Variables maps placeholder names to their default values.
	Variables map[string]any `json:"variables"`

	// Version increases monotonically within a name lineage.
	Version int `json:"version"`

	Status PromptStatus `json:"status"`
}
