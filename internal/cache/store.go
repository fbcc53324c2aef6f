// Package cache provides the in-memory entity store backing prompt and
// experiment resolution.
package cache

import (
	"sync"
	"time"

	"github.com/haasonsaas/promptwire/pkg/models"
)

// DefaultTTL bounds entry staleness when no TTL is configured.
const DefaultTTL = 5 * time.Minute

// entry wraps a snapshot with its insertion time. The timestamp lives here,
// in the envelope, so cache metadata never leaks into the domain types.
type entry[T any] struct {
	value    T
	cachedAt time.Time
}

// Store holds prompt and experiment snapshots with per-entry expiry.
//
// Prompts and experiments are indexed both by id and by name; the two indexes
// are always updated under one lock, so a reader can never observe an entity
// present in one index and absent in the other. Entries are replaced
// wholesale and never mutated in place. Expiry is lazy: an expired entry is
// evicted by the read that discovers it.
type Store struct {
	mu                sync.Mutex
	ttl               time.Duration
	promptsByID       map[string]*entry[*models.Prompt]
	promptsByName     map[string]*entry[*models.Prompt]
	experimentsByID   map[string]*entry[*models.Experiment]
	experimentsByName map[string]*entry[*models.Experiment]

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewStore creates a store. A non-positive ttl selects DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:               ttl,
		promptsByID:       make(map[string]*entry[*models.Prompt]),
		promptsByName:     make(map[string]*entry[*models.Prompt]),
		experimentsByID:   make(map[string]*entry[*models.Experiment]),
		experimentsByName: make(map[string]*entry[*models.Experiment]),
	}
}

// PutPrompt stores a prompt snapshot under both its id and its name,
// unconditionally replacing any prior entry.
func (s *Store) PutPrompt(p *models.Prompt) {
	s.putPromptAt(p, time.Now())
}

func (s *Store) putPromptAt(p *models.Prompt, now time.Time) {
	if p == nil {
		return
	}
	e := &entry[*models.Prompt]{value: p, cachedAt: now}
	s.mu.Lock()
	defer s.mu.Unlock()
	// A rename leaves the old name index pointing at a stale snapshot;
	// drop the previous name binding before inserting the new one.
	if prev, ok := s.promptsByID[p.ID]; ok && prev.value.Name != p.Name {
		delete(s.promptsByName, prev.value.Name)
	}
	s.promptsByID[p.ID] = e
	s.promptsByName[p.Name] = e
}

// PutExperiment stores an experiment snapshot under both its id and its name.
func (s *Store) PutExperiment(x *models.Experiment) {
	s.putExperimentAt(x, time.Now())
}

func (s *Store) putExperimentAt(x *models.Experiment, now time.Time) {
	if x == nil {
		return
	}
	e := &entry[*models.Experiment]{value: x, cachedAt: now}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.experimentsByID[x.ID]; ok && prev.value.Name != x.Name {
		delete(s.experimentsByName, prev.value.Name)
	}
	s.experimentsByID[x.ID] = e
	s.experimentsByName[x.Name] = e
}

// GetPrompt returns the prompt stored under id, if present and unexpired.
func (s *Store) GetPrompt(id string) (*models.Prompt, bool) {
	return s.GetPromptAt(id, time.Now())
}

// GetPromptAt is GetPrompt with an explicit clock, for tests.
func (s *Store) GetPromptAt(id string, now time.Time) (*models.Prompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.promptsByID[id]
	if !ok {
		s.misses++
		return nil, false
	}
	if s.expired(e.cachedAt, now) {
		s.evictPromptLocked(e.value)
		s.misses++
		return nil, false
	}
	s.hits++
	return e.value, true
}

// GetPromptByName returns the prompt stored under name, if present and unexpired.
func (s *Store) GetPromptByName(name string) (*models.Prompt, bool) {
	return s.GetPromptByNameAt(name, time.Now())
}

// GetPromptByNameAt is GetPromptByName with an explicit clock, for tests.
func (s *Store) GetPromptByNameAt(name string, now time.Time) (*models.Prompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.promptsByName[name]
	if !ok {
		s.misses++
		return nil, false
	}
	if s.expired(e.cachedAt, now) {
		s.evictPromptLocked(e.value)
		s.misses++
		return nil, false
	}
	s.hits++
	return e.value, true
}

// GetExperiment returns the experiment stored under id, if present and unexpired.
func (s *Store) GetExperiment(id string) (*models.Experiment, bool) {
	return s.GetExperimentAt(id, time.Now())
}

// GetExperimentAt is GetExperiment with an explicit clock, for tests.
func (s *Store) GetExperimentAt(id string, now time.Time) (*models.Experiment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.experimentsByID[id]
	if !ok {
		s.misses++
		return nil, false
	}
	if s.expired(e.cachedAt, now) {
		s.evictExperimentLocked(e.value)
		s.misses++
		return nil, false
	}
	s.hits++
	return e.value, true
}

// GetExperimentByName returns the experiment stored under name, if present
// and unexpired.
func (s *Store) GetExperimentByName(name string) (*models.Experiment, bool) {
	return s.GetExperimentByNameAt(name, time.Now())
}

// GetExperimentByNameAt is GetExperimentByName with an explicit clock, for tests.
func (s *Store) GetExperimentByNameAt(name string, now time.Time) (*models.Experiment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.experimentsByName[name]
	if !ok {
		s.misses++
		return nil, false
	}
	if s.expired(e.cachedAt, now) {
		s.evictExperimentLocked(e.value)
		s.misses++
		return nil, false
	}
	s.hits++
	return e.value, true
}

// InvalidatePrompt removes the prompt stored under id from both indexes.
func (s *Store) InvalidatePrompt(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.promptsByID[id]; ok {
		s.evictPromptLocked(e.value)
	}
}

// InvalidateExperiment removes the experiment stored under id from both indexes.
func (s *Store) InvalidateExperiment(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.experimentsByID[id]; ok {
		s.evictExperimentLocked(e.value)
	}
}

// Clear drops every entry. Used on full refresh.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptsByID = make(map[string]*entry[*models.Prompt])
	s.promptsByName = make(map[string]*entry[*models.Prompt])
	s.experimentsByID = make(map[string]*entry[*models.Experiment])
	s.experimentsByName = make(map[string]*entry[*models.Experiment])
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Prompts     int
	Experiments int
}

// Stats returns current counters and sizes.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Prompts:     len(s.promptsByID),
		Experiments: len(s.experimentsByID),
	}
}

func (s *Store) expired(cachedAt, now time.Time) bool {
	return now.Sub(cachedAt) > s.ttl
}

func (s *Store) evictPromptLocked(p *models.Prompt) {
	delete(s.promptsByID, p.ID)
	delete(s.promptsByName, p.Name)
	s.evictions++
}

func (s *Store) evictExperimentLocked(x *models.Experiment) {
	delete(s.experimentsByID, x.ID)
	delete(s.experimentsByName, x.Name)
	s.evictions++
}
