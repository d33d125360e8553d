// Package runview projects the flat, multi-device-merged execution log into
// bounded usage sessions (Runs).
//
// The projection is pure and idempotent: the same merged log slice always
// yields structurally identical Runs, so it can be re-run freely after every
// pull.
package runview

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/models"
)

// IdleGap is the inactivity window that splits a run when no explicit
// boundary marker is present.
const IdleGap = 15 * time.Minute

// PlaceholderStepTitle is shown when a row's step cannot be resolved, e.g.
// the step was tombstoned in the same batch that delivered the entry.
const PlaceholderStepTitle = "(deleted step)"

// Lookup resolves titles for rows. The entity store satisfies it.
type Lookup interface {
	Step(id string) (models.Step, bool)
	Checklist(id string) (models.Checklist, bool)
}

// Build reconstructs Runs from a window of merged, tombstone-filtered log
// entries. The result is in canonical order: started-at ascending, checklist
// title as the tie-break.
func Build(entries []models.LogEntry, lookup Lookup) []models.Run {
	groups := make(map[string][]models.LogEntry)
	for _, e := range entries {
		groups[e.ChecklistID] = append(groups[e.ChecklistID], e)
	}

	checklistIDs := make([]string, 0, len(groups))
	for id := range groups {
		checklistIDs = append(checklistIDs, id)
	}
	sort.Strings(checklistIDs)

	var runs []models.Run
	for _, id := range checklistIDs {
		runs = append(runs, buildChecklist(id, groups[id], lookup)...)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt != runs[j].StartedAt {
			return runs[i].StartedAt < runs[j].StartedAt
		}
		return runs[i].ChecklistTitle < runs[j].ChecklistTitle
	})
	return runs
}

// Descending returns a reversed copy of the canonical order. Descending is
// defined as the reversal, not an independent sort.
func Descending(runs []models.Run) []models.Run {
	out := make([]models.Run, len(runs))
	for i, r := range runs {
		out[len(runs)-1-i] = r
	}
	return out
}

// buildChecklist walks one checklist's entries in (start, last-write) order,
// splitting them into run buffers on explicit markers and on idle gaps.
func buildChecklist(checklistID string, entries []models.LogEntry, lookup Lookup) []models.Run {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.StartAt != b.StartAt {
			return a.StartAt < b.StartAt
		}
		return a.UpdatedAt < b.UpdatedAt
	})

	title := PlaceholderStepTitle
	if c, ok := lookup.Checklist(checklistID); ok {
		title = c.Title
	}

	var runs []models.Run
	var buf []models.LogEntry
	var lastActionEnd int64

	flush := func() {
		if run, ok := flushBuffer(checklistID, title, buf, lookup); ok {
			runs = append(runs, run)
		}
		buf = nil
		lastActionEnd = 0
	}

	gapMS := IdleGap.Milliseconds()
	for _, e := range entries {
		switch {
		case e.Kind == models.KindRunStart || e.Kind == models.KindProcrastination:
			flush()
		case lastActionEnd > 0 && e.StartAt-lastActionEnd >= gapMS:
			flush()
		}

		buf = append(buf, e)

		if e.Kind == models.KindRunEnd {
			// An explicit end closes the run even if more entries for
			// this checklist follow; they begin a new one.
			flush()
			continue
		}
		if e.Kind == models.KindNormal && e.EndAt > 0 {
			lastActionEnd = e.EndAt
		}
	}
	flush()

	return runs
}

// flushBuffer turns a buffer into a Run. Markers contribute metadata only;
// buffers that produce zero rows are discarded.
func flushBuffer(checklistID, checklistTitle string, buf []models.LogEntry, lookup Lookup) (models.Run, bool) {
	if len(buf) == 0 {
		return models.Run{}, false
	}

	var (
		rows          []models.Row
		ids           []string
		startedAt     int64
		firstNormalAt int64
		pending       *models.Interval
		pendingID     string
		prevEnd       int64
		actionMS      int64
		procMS        int64
	)

	for _, e := range buf {
		ids = append(ids, e.ID)

		switch e.Kind {
		case models.KindRunStart:
			if startedAt == 0 {
				startedAt = startOrWrite(e)
			}

		case models.KindRunEnd:
			// Boundary only; carries no row and no start time.

		case models.KindProcrastination:
			// Only the most recent pending marker survives until a
			// Normal entry consumes it.
			pending = &models.Interval{Start: e.StartAt, End: e.EndAt, DurationMS: e.ActionDuration()}
			pendingID = e.ID

		case models.KindNormal:
			if firstNormalAt == 0 {
				firstNormalAt = startOrWrite(e)
			}

			action := models.Interval{Start: e.StartAt, End: e.EndAt, DurationMS: e.ActionDuration()}

			var proc *models.Interval
			rowIDs := []string{e.ID}
			if pending != nil {
				proc = pending
				rowIDs = append(rowIDs, pendingID)
				pending = nil
				pendingID = ""
			} else if prevEnd > 0 && e.StartAt > prevEnd {
				// Implicit idle time between steps counts as
				// procrastination even without an explicit marker.
				proc = &models.Interval{Start: prevEnd, End: e.StartAt, DurationMS: e.StartAt - prevEnd}
			}

			rows = append(rows, models.Row{
				StepTitle:       stepTitle(e, lookup),
				EntryIDs:        rowIDs,
				Procrastination: proc,
				Action:          action,
			})
			actionMS += action.DurationMS
			if proc != nil {
				procMS += proc.DurationMS
			}
			if e.EndAt > 0 {
				prevEnd = e.EndAt
			}
		}
	}

	if len(rows) == 0 {
		return models.Run{}, false
	}
	if startedAt == 0 {
		startedAt = firstNormalAt
	}

	return models.Run{
		ID:                runID(checklistID, startedAt, buf[0].ID),
		ChecklistID:       checklistID,
		ChecklistTitle:    checklistTitle,
		StartedAt:         startedAt,
		Rows:              rows,
		ActionMS:          actionMS,
		ProcrastinationMS: procMS,
		EntryIDs:          ids,
	}, true
}

func stepTitle(e models.LogEntry, lookup Lookup) string {
	if e.StepID == models.MarkerStepID {
		return PlaceholderStepTitle
	}
	if s, ok := lookup.Step(e.StepID); ok {
		return s.Title
	}
	return PlaceholderStepTitle
}

func startOrWrite(e models.LogEntry) int64 {
	if e.StartAt > 0 {
		return e.StartAt
	}
	return e.UpdatedAt
}

// runID derives a stable ephemeral id, so re-running the projection over the
// same log set yields identical Runs.
func runID(checklistID string, startedAt int64, firstEntryID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s:%d:%s", checklistID, startedAt, firstEntryID)).String()
}
