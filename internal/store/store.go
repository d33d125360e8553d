// Package store holds the in-memory entity collections: checklists, steps,
// and execution-log entries, each keyed by id.
//
// The core merge and projection components are synchronous; the mutex here
// only guards against the host's goroutines (HTTP handlers, poll loop)
// touching the collections concurrently.
package store

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/reconcile"
)

// Store is the in-memory entity store. The zero value is not usable; use New.
type Store struct {
	mu         sync.RWMutex
	checklists map[string]models.Checklist
	steps      map[string]models.Step
	entries    map[string]models.LogEntry
	logger     *slog.Logger
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		checklists: make(map[string]models.Checklist),
		steps:      make(map[string]models.Step),
		entries:    make(map[string]models.LogEntry),
		logger:     logger,
	}
}

// ApplyBatch folds a diff batch into the store via the reconciler. Each
// collection is applied independently; a malformed row in one collection
// never affects the others.
func (s *Store) ApplyBatch(b models.DiffBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(b.Checklists) > 0 {
		s.checklists = reconcile.ApplyChecklists(s.checklists, b.Checklists, s.logger)
	}
	if len(b.Steps) > 0 {
		s.steps = reconcile.ApplySteps(s.steps, b.Steps, s.logger)
	}
	if len(b.Entries) > 0 {
		s.entries = reconcile.ApplyEntries(s.entries, b.Entries, s.logger)
	}
}

// Checklist returns the checklist with the given id.
func (s *Store) Checklist(id string) (models.Checklist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.checklists[id]
	return c, ok
}

// Checklists returns every checklist ordered by (ordinal, title, id).
func (s *Store) Checklists() []models.Checklist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Checklist, 0, len(s.checklists))
	for _, c := range s.checklists {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Step returns the step with the given id.
func (s *Store) Step(id string) (models.Step, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.steps[id]
	return st, ok
}

// Steps returns the steps of one checklist ordered by ordinal.
func (s *Store) Steps(checklistID string) []models.Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Step
	for _, st := range s.steps {
		if st.ChecklistID == checklistID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// StepCount returns the number of steps owned by a checklist.
func (s *Store) StepCount(checklistID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, st := range s.steps {
		if st.ChecklistID == checklistID {
			n++
		}
	}
	return n
}

// ChecklistCount returns the number of checklists.
func (s *Store) ChecklistCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.checklists)
}

// Entry returns the log entry with the given id.
func (s *Store) Entry(id string) (models.LogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// OpenEntry returns the open (no end time) Normal entry for a step, if any.
func (s *Store) OpenEntry(stepID string) (models.LogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.StepID == stepID && e.Kind == models.KindNormal && e.EndAt == 0 {
			return e, true
		}
	}
	return models.LogEntry{}, false
}

// EntriesBetween returns log entries whose start falls in [from, to).
// checklistID narrows the result when non-empty. The slice is unordered;
// the run reconstructor owns ordering.
func (s *Store) EntriesBetween(checklistID string, from, to int64) []models.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LogEntry
	for _, e := range s.entries {
		if checklistID != "" && e.ChecklistID != checklistID {
			continue
		}
		at := e.StartAt
		if at == 0 {
			at = e.UpdatedAt
		}
		if at >= from && at < to {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot returns a JSON image of every collection, with deterministic
// element order so that identical states serialise identically.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := models.Snapshot{
		Checklists: make([]models.Checklist, 0, len(s.checklists)),
		Steps:      make([]models.Step, 0, len(s.steps)),
		Entries:    make([]models.LogEntry, 0, len(s.entries)),
	}
	for _, c := range s.checklists {
		snap.Checklists = append(snap.Checklists, c)
	}
	for _, st := range s.steps {
		snap.Steps = append(snap.Steps, st)
	}
	for _, e := range s.entries {
		snap.Entries = append(snap.Entries, e)
	}
	sort.Slice(snap.Checklists, func(i, j int) bool { return snap.Checklists[i].ID < snap.Checklists[j].ID })
	sort.Slice(snap.Steps, func(i, j int) bool { return snap.Steps[i].ID < snap.Steps[j].ID })
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].ID < snap.Entries[j].ID })
	return json.Marshal(snap)
}

// Restore replaces the store contents with a snapshot previously produced by
// Snapshot.
func (s *Store) Restore(data []byte) error {
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checklists = make(map[string]models.Checklist, len(snap.Checklists))
	for _, c := range snap.Checklists {
		s.checklists[c.ID] = c
	}
	s.steps = make(map[string]models.Step, len(snap.Steps))
	for _, st := range snap.Steps {
		s.steps[st.ID] = st
	}
	s.entries = make(map[string]models.LogEntry, len(snap.Entries))
	for _, e := range snap.Entries {
		s.entries[e.ID] = e
	}
	return nil
}
