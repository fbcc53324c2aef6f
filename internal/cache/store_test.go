package cache

import (
	"testing"
	"time"

	"github.com/haasonsaas/promptwire/pkg/models"
)

func prompt(id, name string) *models.Prompt {
	return &models.Prompt{
		ID:      id,
		Name:    name,
		Content: "Hello {{user}}",
		Version: 1,
		Status:  models.PromptStatusPublished,
	}
}

func experiment(id, name string) *models.Experiment {
	return &models.Experiment{
		ID:     id,
		Name:   name,
		Status: models.ExperimentStatusRunning,
		Variants: []models.Variant{
			{ID: "v1", Name: "control", PromptID: "p1", Traffic: 1.0},
		},
	}
}

func TestPromptDualIndex(t *testing.T) {
	s := NewStore(0)
	s.PutPrompt(prompt("p1", "greeting"))

	if p, ok := s.GetPrompt("p1"); !ok || p.Name != "greeting" {
		t.Fatalf("GetPrompt: %+v, %v", p, ok)
	}
	if p, ok := s.GetPromptByName("greeting"); !ok || p.ID != "p1" {
		t.Fatalf("GetPromptByName: %+v, %v", p, ok)
	}
}

func TestExpiry(t *testing.T) {
	ttl := 5 * time.Minute
	s := NewStore(ttl)
	now := time.Now()
	s.putPromptAt(prompt("p1", "greeting"), now)

	if _, ok := s.GetPromptAt("p1", now.Add(ttl-time.Second)); !ok {
		t.Error("entry missing just before ttl")
	}
	if _, ok := s.GetPromptAt("p1", now.Add(ttl+time.Second)); ok {
		t.Error("entry present just after ttl")
	}
	// The expired read evicts both indexes.
	if _, ok := s.GetPromptByNameAt("greeting", now); ok {
		t.Error("name index still populated after expiry eviction")
	}
}

func TestExpiryViaNameEvictsID(t *testing.T) {
	ttl := time.Minute
	s := NewStore(ttl)
	now := time.Now()
	s.putPromptAt(prompt("p1", "greeting"), now)

	if _, ok := s.GetPromptByNameAt("greeting", now.Add(2*ttl)); ok {
		t.Fatal("expired entry served by name")
	}
	if _, ok := s.GetPromptAt("p1", now); ok {
		t.Error("id index still populated after expiry eviction")
	}
}

func TestInvalidateAtomicity(t *testing.T) {
	s := NewStore(0)
	s.PutPrompt(prompt("p1", "greeting"))
	s.InvalidatePrompt("p1")

	if _, ok := s.GetPrompt("p1"); ok {
		t.Error("id index populated after invalidate")
	}
	if _, ok := s.GetPromptByName("greeting"); ok {
		t.Error("name index populated after invalidate")
	}

	s.PutExperiment(experiment("x1", "exp"))
	s.InvalidateExperiment("x1")
	if _, ok := s.GetExperiment("x1"); ok {
		t.Error("experiment id index populated after invalidate")
	}
	if _, ok := s.GetExperimentByName("exp"); ok {
		t.Error("experiment name index populated after invalidate")
	}
}

func TestPutReplacesWholesale(t *testing.T) {
	s := NewStore(0)
	s.PutPrompt(prompt("p1", "greeting"))

	updated := prompt("p1", "greeting")
	updated.Content = "Hey {{user}}!"
	updated.Version = 2
	s.PutPrompt(updated)

	p, ok := s.GetPromptByName("greeting")
	if !ok || p.Version != 2 || p.Content != "Hey {{user}}!" {
		t.Fatalf("stale snapshot after replacement: %+v", p)
	}
}

func TestPutRenameDropsOldNameBinding(t *testing.T) {
	s := NewStore(0)
	s.PutPrompt(prompt("p1", "old-name"))

	renamed := prompt("p1", "new-name")
	s.PutPrompt(renamed)

	if _, ok := s.GetPromptByName("old-name"); ok {
		t.Error("old name still resolves after rename")
	}
	if p, ok := s.GetPromptByName("new-name"); !ok || p.ID != "p1" {
		t.Errorf("new name lookup: %+v, %v", p, ok)
	}
}

func TestExperimentByName(t *testing.T) {
	s := NewStore(0)
	s.PutExperiment(experiment("x1", "checkout-copy"))

	x, ok := s.GetExperimentByName("checkout-copy")
	if !ok || x.ID != "x1" {
		t.Fatalf("GetExperimentByName: %+v, %v", x, ok)
	}
}

func TestClear(t *testing.T) {
	s := NewStore(0)
	s.PutPrompt(prompt("p1", "a"))
	s.PutExperiment(experiment("x1", "b"))
	s.Clear()

	if st := s.Stats(); st.Prompts != 0 || st.Experiments != 0 {
		t.Errorf("store not empty after Clear: %+v", st)
	}
}

func TestStats(t *testing.T) {
	s := NewStore(0)
	s.PutPrompt(prompt("p1", "a"))
	s.GetPrompt("p1")
	s.GetPrompt("nope")

	st := s.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", st)
	}
}
