// Package reconcile implements the pure merge functions that fold remote
// change batches into entity collections.
//
// The contract for every Apply function is the same: a tombstoned row removes
// its id (no-op when absent), any other row is an unconditional upsert with
// apply-latest-wins semantics. Diffs arrive pre-ordered by the remote side
// and are not re-ordered here. Rows without an id are skipped and logged,
// never fatal. The input map is not mutated; callers own persistence and
// notification of the returned collection.
package reconcile

import (
	"log/slog"
	"maps"
	"sort"

	"github.com/starford/raido/internal/models"
)

// ApplyChecklists merges a checklist diff batch into cur and returns the
// next collection.
func ApplyChecklists(cur map[string]models.Checklist, diffs []models.ChecklistDiff, logger *slog.Logger) map[string]models.Checklist {
	next := maps.Clone(cur)
	if next == nil {
		next = make(map[string]models.Checklist)
	}
	for _, d := range diffs {
		if d.ID == "" {
			logger.Warn("reconcile: checklist diff missing id, skipped")
			continue
		}
		if d.DeletedAt != nil {
			delete(next, d.ID)
			continue
		}
		ord := len(next)
		if d.Ordinal != nil {
			ord = *d.Ordinal
		} else if prev, ok := next[d.ID]; ok {
			ord = prev.Ordinal
		}
		next[d.ID] = models.Checklist{
			ID:      d.ID,
			Title:   d.Title,
			Ordinal: ord,
			Meta:    models.Meta{UpdatedAt: d.UpdatedAt, UpdatedBy: d.UpdatedBy},
		}
	}
	return next
}

// ApplySteps merges a step diff batch into cur. After the batch, step
// ordinals are renumbered so that every checklist's steps occupy exactly
// the contiguous range 0..n-1.
func ApplySteps(cur map[string]models.Step, diffs []models.StepDiff, logger *slog.Logger) map[string]models.Step {
	next := maps.Clone(cur)
	if next == nil {
		next = make(map[string]models.Step)
	}
	for _, d := range diffs {
		if d.ID == "" {
			logger.Warn("reconcile: step diff missing id, skipped")
			continue
		}
		if d.DeletedAt != nil {
			delete(next, d.ID)
			continue
		}
		ord := siblingCount(next, d.ChecklistID)
		if d.Ordinal != nil {
			ord = *d.Ordinal
		} else if prev, ok := next[d.ID]; ok {
			ord = prev.Ordinal
		}
		next[d.ID] = models.Step{
			ID:          d.ID,
			ChecklistID: d.ChecklistID,
			Title:       d.Title,
			Ordinal:     ord,
			Done:        d.Done,
			Meta:        models.Meta{UpdatedAt: d.UpdatedAt, UpdatedBy: d.UpdatedBy},
		}
	}
	renumberSteps(next)
	return next
}

// ApplyEntries merges a log-entry diff batch into cur. The wire kind string
// is resolved to the closed EntryKind enum here, once, at ingestion.
func ApplyEntries(cur map[string]models.LogEntry, diffs []models.EntryDiff, logger *slog.Logger) map[string]models.LogEntry {
	next := maps.Clone(cur)
	if next == nil {
		next = make(map[string]models.LogEntry)
	}
	for _, d := range diffs {
		if d.ID == "" {
			logger.Warn("reconcile: entry diff missing id, skipped")
			continue
		}
		if d.DeletedAt != nil {
			delete(next, d.ID)
			continue
		}
		next[d.ID] = models.LogEntry{
			ID:          d.ID,
			ChecklistID: d.ChecklistID,
			StepID:      d.StepID,
			StartAt:     d.StartAt,
			EndAt:       d.EndAt,
			DurationMS:  d.DurationMS,
			Kind:        models.ParseEntryKind(d.Kind),
			Meta:        models.Meta{UpdatedAt: d.UpdatedAt, UpdatedBy: d.UpdatedBy},
		}
	}
	return next
}

func siblingCount(steps map[string]models.Step, checklistID string) int {
	n := 0
	for _, s := range steps {
		if s.ChecklistID == checklistID {
			n++
		}
	}
	return n
}

// renumberSteps reassigns ordinals per checklist: stable sort on the current
// ordinal, then 0..n-1.
func renumberSteps(steps map[string]models.Step) {
	byList := make(map[string][]string)
	for id, s := range steps {
		byList[s.ChecklistID] = append(byList[s.ChecklistID], id)
	}
	for _, ids := range byList {
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := steps[ids[i]], steps[ids[j]]
			if a.Ordinal != b.Ordinal {
				return a.Ordinal < b.Ordinal
			}
			return ids[i] < ids[j]
		})
		for i, id := range ids {
			s := steps[id]
			s.Ordinal = i
			steps[id] = s
		}
	}
}
