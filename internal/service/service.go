// Package service coordinates the entity store, sync coordinator, and
// notifier for the presentation surfaces (HTTP API, MCP).
//
// Every mutation follows the same shape: build a diff batch, apply it
// optimistically to the local store, queue it for push, broadcast a pull
// signal to sibling contexts, and schedule a verification pull. Push
// failures never block the local update.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/notify"
	"github.com/starford/raido/internal/runview"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/syncer"
)

// ChangeFunc is called after each local mutation so the host can broadcast
// entity-change events to presentation contexts.
type ChangeFunc func(kind, id string)

// Service is the orchestration layer over the sync core.
type Service struct {
	store    *store.Store
	sync     *syncer.Coordinator
	notifier *notify.Notifier
	device   string
	logger   *slog.Logger
	onChange ChangeFunc
	now      func() int64
}

// Config wires a Service.
type Config struct {
	Store    *store.Store
	Sync     *syncer.Coordinator
	Notifier *notify.Notifier
	Device   string
	Logger   *slog.Logger
	OnChange ChangeFunc
	// Now overrides the clock in tests; defaults to time.Now in ms.
	Now func() int64
}

// New creates a service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Service{
		store:    cfg.Store,
		sync:     cfg.Sync,
		notifier: cfg.Notifier,
		device:   cfg.Device,
		logger:   logger,
		onChange: cfg.OnChange,
		now:      now,
	}
}

// Checklists returns every checklist in display order.
func (s *Service) Checklists(_ context.Context) []models.Checklist {
	return s.store.Checklists()
}

// Checklist returns one checklist with its steps.
func (s *Service) Checklist(_ context.Context, id string) (models.Checklist, []models.Step, error) {
	c, ok := s.store.Checklist(id)
	if !ok {
		return models.Checklist{}, nil, apperr.ErrNotFound
	}
	return c, s.store.Steps(id), nil
}

// CreateChecklist creates a checklist at the end of the current ordering.
func (s *Service) CreateChecklist(ctx context.Context, title string) (models.Checklist, error) {
	id := uuid.NewString()
	ord := s.store.ChecklistCount()
	s.mutate(ctx, models.DiffBatch{Checklists: []models.ChecklistDiff{{
		ID:        id,
		Title:     title,
		Ordinal:   &ord,
		UpdatedAt: s.now(),
		UpdatedBy: s.device,
	}}}, "checklist.created", id)
	c, _ := s.store.Checklist(id)
	return c, nil
}

// UpdateChecklist renames and/or reorders a checklist.
func (s *Service) UpdateChecklist(ctx context.Context, id, title string, ordinal *int) (models.Checklist, error) {
	cur, ok := s.store.Checklist(id)
	if !ok {
		return models.Checklist{}, apperr.ErrNotFound
	}
	if title == "" {
		title = cur.Title
	}
	ord := cur.Ordinal
	if ordinal != nil {
		ord = *ordinal
	}
	s.mutate(ctx, models.DiffBatch{Checklists: []models.ChecklistDiff{{
		ID:        id,
		Title:     title,
		Ordinal:   &ord,
		UpdatedAt: s.now(),
		UpdatedBy: s.device,
	}}}, "checklist.updated", id)
	c, _ := s.store.Checklist(id)
	return c, nil
}

// DeleteChecklist tombstones a checklist and all of its steps. Log entries
// are kept; their display degrades to placeholders.
func (s *Service) DeleteChecklist(ctx context.Context, id string) error {
	if _, ok := s.store.Checklist(id); !ok {
		return apperr.ErrNotFound
	}
	at := s.now()
	batch := models.DiffBatch{Checklists: []models.ChecklistDiff{{
		ID: id, UpdatedAt: at, UpdatedBy: s.device, DeletedAt: &at,
	}}}
	for _, st := range s.store.Steps(id) {
		batch.Steps = append(batch.Steps, models.StepDiff{
			ID: st.ID, ChecklistID: id, UpdatedAt: at, UpdatedBy: s.device, DeletedAt: &at,
		})
	}
	s.mutate(ctx, batch, "checklist.deleted", id)
	return nil
}

// AddStep appends a step to a checklist.
func (s *Service) AddStep(ctx context.Context, checklistID, title string) (models.Step, error) {
	if _, ok := s.store.Checklist(checklistID); !ok {
		return models.Step{}, apperr.ErrNotFound
	}
	id := uuid.NewString()
	ord := s.store.StepCount(checklistID)
	s.mutate(ctx, models.DiffBatch{Steps: []models.StepDiff{{
		ID:          id,
		ChecklistID: checklistID,
		Title:       title,
		Ordinal:     &ord,
		UpdatedAt:   s.now(),
		UpdatedBy:   s.device,
	}}}, "step.created", id)
	st, _ := s.store.Step(id)
	return st, nil
}

// UpdateStep renames, reorders, or toggles a step.
func (s *Service) UpdateStep(ctx context.Context, id, title string, ordinal *int, done *bool) (models.Step, error) {
	cur, ok := s.store.Step(id)
	if !ok {
		return models.Step{}, apperr.ErrNotFound
	}
	if title == "" {
		title = cur.Title
	}
	ord := cur.Ordinal
	if ordinal != nil {
		ord = *ordinal
	}
	isDone := cur.Done
	if done != nil {
		isDone = *done
	}
	s.mutate(ctx, models.DiffBatch{Steps: []models.StepDiff{{
		ID:          id,
		ChecklistID: cur.ChecklistID,
		Title:       title,
		Ordinal:     &ord,
		Done:        isDone,
		UpdatedAt:   s.now(),
		UpdatedBy:   s.device,
	}}}, "step.updated", id)
	st, _ := s.store.Step(id)
	return st, nil
}

// DeleteStep tombstones a step.
func (s *Service) DeleteStep(ctx context.Context, id string) error {
	cur, ok := s.store.Step(id)
	if !ok {
		return apperr.ErrNotFound
	}
	at := s.now()
	s.mutate(ctx, models.DiffBatch{Steps: []models.StepDiff{{
		ID: id, ChecklistID: cur.ChecklistID, UpdatedAt: at, UpdatedBy: s.device, DeletedAt: &at,
	}}}, "step.deleted", id)
	return nil
}

// StartStep opens a Normal log entry for a step. An already-open entry for
// the same step is a conflict.
func (s *Service) StartStep(ctx context.Context, stepID string) (models.LogEntry, error) {
	st, ok := s.store.Step(stepID)
	if !ok {
		return models.LogEntry{}, apperr.ErrNotFound
	}
	if _, open := s.store.OpenEntry(stepID); open {
		return models.LogEntry{}, apperr.ErrConflict
	}
	id := uuid.NewString()
	at := s.now()
	s.mutate(ctx, models.DiffBatch{Entries: []models.EntryDiff{{
		ID:          id,
		ChecklistID: st.ChecklistID,
		StepID:      stepID,
		StartAt:     at,
		Kind:        models.KindNormal.String(),
		UpdatedAt:   at,
		UpdatedBy:   s.device,
	}}}, "entry.created", id)
	e, _ := s.store.Entry(id)
	return e, nil
}

// FinishStep closes the open entry for a step and marks the step done.
func (s *Service) FinishStep(ctx context.Context, stepID string) (models.LogEntry, error) {
	st, ok := s.store.Step(stepID)
	if !ok {
		return models.LogEntry{}, apperr.ErrNotFound
	}
	open, ok := s.store.OpenEntry(stepID)
	if !ok {
		return models.LogEntry{}, apperr.ErrNotFound
	}
	at := s.now()
	done := true
	s.mutate(ctx, models.DiffBatch{
		Entries: []models.EntryDiff{{
			ID:          open.ID,
			ChecklistID: open.ChecklistID,
			StepID:      stepID,
			StartAt:     open.StartAt,
			EndAt:       at,
			Kind:        models.KindNormal.String(),
			UpdatedAt:   at,
			UpdatedBy:   s.device,
		}},
		Steps: []models.StepDiff{{
			ID:          stepID,
			ChecklistID: st.ChecklistID,
			Title:       st.Title,
			Ordinal:     &st.Ordinal,
			Done:        done,
			UpdatedAt:   at,
			UpdatedBy:   s.device,
		}},
	}, "entry.updated", open.ID)
	e, _ := s.store.Entry(open.ID)
	return e, nil
}

// Mark writes a structural marker entry (run boundary or leading idle time)
// for a checklist. start/end may be zero for boundary markers stamped now.
func (s *Service) Mark(ctx context.Context, checklistID string, kind models.EntryKind, start, end int64) (models.LogEntry, error) {
	if kind == models.KindNormal {
		return models.LogEntry{}, apperr.ErrConflict
	}
	if _, ok := s.store.Checklist(checklistID); !ok {
		return models.LogEntry{}, apperr.ErrNotFound
	}
	at := s.now()
	if start == 0 {
		start = at
	}
	id := uuid.NewString()
	s.mutate(ctx, models.DiffBatch{Entries: []models.EntryDiff{{
		ID:          id,
		ChecklistID: checklistID,
		StepID:      models.MarkerStepID,
		StartAt:     start,
		EndAt:       end,
		Kind:        kind.String(),
		UpdatedAt:   at,
		UpdatedBy:   s.device,
	}}}, "entry.created", id)
	e, _ := s.store.Entry(id)
	return e, nil
}

// Runs reconstructs the runs whose entries start inside [from, to). Before
// projecting, the bounded history view is checked for the structural cursor
// gap and backfilled when needed. desc reverses the canonical order.
func (s *Service) Runs(ctx context.Context, checklistID string, from, to int64, desc bool) ([]models.Run, error) {
	if s.sync != nil {
		if _, err := s.sync.EnsureWindow(ctx, syncer.PurposeHistory, to); err != nil && !errors.Is(err, apperr.ErrSyncInFlight) {
			// The projection still serves last-known-good state.
			s.logger.Warn("runs: backfill failed", slog.String("error", err.Error()))
		}
	}
	entries := s.store.EntriesBetween(checklistID, from, to)
	runs := runview.Build(entries, s.store)
	if desc {
		runs = runview.Descending(runs)
	}
	return runs, nil
}

// DeleteRun tombstones every contributing log entry of a reconstructed run.
func (s *Service) DeleteRun(ctx context.Context, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	at := s.now()
	var batch models.DiffBatch
	for _, id := range entryIDs {
		e, ok := s.store.Entry(id)
		if !ok {
			continue
		}
		batch.Entries = append(batch.Entries, models.EntryDiff{
			ID: id, ChecklistID: e.ChecklistID, UpdatedAt: at, UpdatedBy: s.device, DeletedAt: &at,
		})
	}
	s.mutate(ctx, batch, "entry.deleted", "")
	return nil
}

// TriggerPull runs a pull on demand.
func (s *Service) TriggerPull(ctx context.Context, purpose string) error {
	if purpose == "" {
		purpose = syncer.PurposeLive
	}
	return s.sync.Pull(ctx, purpose)
}

// TriggerPush flushes the pending outbox on demand.
func (s *Service) TriggerPush(ctx context.Context) error {
	return s.sync.Flush(ctx)
}

// TriggerReset forces a full repull from the epoch.
func (s *Service) TriggerReset(ctx context.Context, purpose string) error {
	if purpose == "" {
		purpose = syncer.PurposeLive
	}
	if err := s.sync.Reset(ctx, purpose); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.Publish(notify.Signal{Type: notify.TypeReset, Purpose: purpose})
	}
	return nil
}

// SyncStatus reports the pending outbox depth and last push failure.
func (s *Service) SyncStatus() (pending int, lastErr error) {
	return s.sync.PendingPushes(), s.sync.LastPushError()
}

// mutate applies a batch optimistically, queues it for push, and notifies.
func (s *Service) mutate(ctx context.Context, batch models.DiffBatch, changeKind, changeID string) {
	s.store.ApplyBatch(batch)
	if s.onChange != nil {
		s.onChange(changeKind, changeID)
	}

	if s.sync != nil {
		if err := s.sync.Push(ctx, batch); err != nil {
			s.logger.Warn("service: push failed, queued for retry",
				slog.String("change", changeKind),
				slog.String("error", err.Error()))
		} else if err := s.sync.Pull(ctx, syncer.PurposeLive); err != nil && !errors.Is(err, apperr.ErrSyncInFlight) {
			// Verification pull reconciles any divergence the push raced with.
			s.logger.Warn("service: verification pull failed", slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil {
		s.notifier.Publish(notify.Signal{Type: notify.TypePull, Purpose: syncer.PurposeLive})
	}
}
