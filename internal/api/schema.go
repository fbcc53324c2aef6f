package api

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/promptwire/pkg/models"
)

// Entity snapshots cross a trust boundary twice: REST responses and realtime
// pushes. Both paths run the snapshot through these schemas before it can
// reach the cache, so a malformed payload is rejected at the edge instead of
// surfacing later as a nil-variant panic mid-resolution.

const promptSchema = `{
  "type": "object",
  "required": ["id", "name", "content"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "content": {"type": "string"},
    "variables": {"type": ["object", "null"]},
    "version": {"type": "integer", "minimum": 0},
    "status": {"enum": ["DRAFT", "PUBLISHED", "ARCHIVED"]}
  }
}`

const experimentSchema = `{
  "type": "object",
  "required": ["id", "name", "status", "variants"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "status": {"enum": ["DRAFT", "RUNNING", "PAUSED", "COMPLETED"]},
    "variants": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "promptId", "traffic"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "promptId": {"type": "string", "minLength": 1},
          "traffic": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`

type schemaRegistry struct {
	once       sync.Once
	initErr    error
	prompt     *jsonschema.Schema
	experiment *jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		prompt, err := jsonschema.CompileString("prompt", promptSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.prompt = prompt

		experiment, err := jsonschema.CompileString("experiment", experimentSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.experiment = experiment
	})
	return schemas.initErr
}

// DecodePrompt validates and unmarshals one prompt snapshot.
func DecodePrompt(raw []byte) (*models.Prompt, error) {
	if err := validate(raw, func() *jsonschema.Schema { return schemas.prompt }); err != nil {
		return nil, fmt.Errorf("prompt snapshot: %w", err)
	}
	var p models.Prompt
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("prompt snapshot: %w", err)
	}
	return &p, nil
}

// DecodeExperiment validates and unmarshals one experiment snapshot.
func DecodeExperiment(raw []byte) (*models.Experiment, error) {
	if err := validate(raw, func() *jsonschema.Schema { return schemas.experiment }); err != nil {
		return nil, fmt.Errorf("experiment snapshot: %w", err)
	}
	var x models.Experiment
	if err := json.Unmarshal(raw, &x); err != nil {
		return nil, fmt.Errorf("experiment snapshot: %w", err)
	}
	return &x, nil
}

func validate(raw []byte, schema func() *jsonschema.Schema) error {
	if err := initSchemas(); err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema().Validate(payload)
}
