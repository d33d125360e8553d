package runview

import (
	"reflect"
	"testing"
	"time"

	"github.com/starford/raido/internal/models"
)

// fakeLookup resolves titles from plain maps.
type fakeLookup struct {
	steps      map[string]models.Step
	checklists map[string]models.Checklist
}

func (f fakeLookup) Step(id string) (models.Step, bool) {
	s, ok := f.steps[id]
	return s, ok
}

func (f fakeLookup) Checklist(id string) (models.Checklist, bool) {
	c, ok := f.checklists[id]
	return c, ok
}

func lookup() fakeLookup {
	return fakeLookup{
		steps: map[string]models.Step{
			"sA": {ID: "sA", ChecklistID: "cl", Title: "Step A"},
			"sB": {ID: "sB", ChecklistID: "cl", Title: "Step B"},
		},
		checklists: map[string]models.Checklist{
			"cl":  {ID: "cl", Title: "Study"},
			"cl2": {ID: "cl2", Title: "Chores"},
		},
	}
}

// at converts hh:mm on an arbitrary fixed day to ms epoch.
func at(hh, mm int) int64 {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute).UnixMilli()
}

func normal(id, step string, start, end int64) models.LogEntry {
	return models.LogEntry{
		ID: id, ChecklistID: "cl", StepID: step,
		StartAt: start, EndAt: end, Kind: models.KindNormal,
		Meta: models.Meta{UpdatedAt: end},
	}
}

func marker(id string, kind models.EntryKind, start int64) models.LogEntry {
	return models.LogEntry{
		ID: id, ChecklistID: "cl", StepID: models.MarkerStepID,
		StartAt: start, Kind: kind,
		Meta: models.Meta{UpdatedAt: start},
	}
}

func TestScenarioA_ImplicitProcrastination(t *testing.T) {
	entries := []models.LogEntry{
		normal("e1", "sA", at(9, 0), at(9, 5)),
		normal("e2", "sB", at(9, 6), at(9, 10)),
	}

	runs := Build(entries, lookup())
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if len(run.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(run.Rows))
	}
	if run.Rows[0].Procrastination != nil {
		t.Error("row 1 should carry no procrastination")
	}
	proc := run.Rows[1].Procrastination
	if proc == nil {
		t.Fatal("row 2 should carry implicit procrastination")
	}
	if proc.Start != at(9, 5) || proc.End != at(9, 6) {
		t.Errorf("procrastination interval = [%d,%d], want [%d,%d]", proc.Start, proc.End, at(9, 5), at(9, 6))
	}
	if want := int64(time.Minute / time.Millisecond); proc.DurationMS != want {
		t.Errorf("procrastination duration = %d ms, want %d", proc.DurationMS, want)
	}
	if run.Rows[0].StepTitle != "Step A" || run.Rows[1].StepTitle != "Step B" {
		t.Errorf("row titles = %q, %q", run.Rows[0].StepTitle, run.Rows[1].StepTitle)
	}
}

func TestScenarioB_ExplicitBoundaries(t *testing.T) {
	entries := []models.LogEntry{
		marker("m1", models.KindRunStart, at(8, 0)),
		normal("e1", "sA", at(8, 1), at(8, 3)),
		marker("m2", models.KindRunEnd, at(8, 3)),
	}

	runs := Build(entries, lookup())
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if len(run.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(run.Rows))
	}
	if run.StartedAt != at(8, 0) {
		t.Errorf("started at %d, want marker time %d", run.StartedAt, at(8, 0))
	}
	if len(run.EntryIDs) != 3 {
		t.Errorf("expected all 3 contributing ids recorded, got %v", run.EntryIDs)
	}
}

func TestScenarioC_GapSplitsRuns(t *testing.T) {
	entries := []models.LogEntry{
		normal("e1", "sA", at(8, 0), at(8, 10)),
		normal("e2", "sB", at(8, 40), at(8, 45)),
	}

	runs := Build(entries, lookup())
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs for a 30-minute gap, got %d", len(runs))
	}
	if runs[0].StartedAt != at(8, 0) || runs[1].StartedAt != at(8, 40) {
		t.Errorf("run starts = %d, %d", runs[0].StartedAt, runs[1].StartedAt)
	}
}

func TestGapThresholdBoundary(t *testing.T) {
	// Under the threshold: one run.
	runs := Build([]models.LogEntry{
		normal("e1", "sA", at(8, 0), at(8, 10)),
		normal("e2", "sB", at(8, 24), at(8, 30)),
	}, lookup())
	if len(runs) != 1 {
		t.Errorf("14-minute gap: expected 1 run, got %d", len(runs))
	}

	// At the threshold: split.
	runs = Build([]models.LogEntry{
		normal("e1", "sA", at(8, 0), at(8, 10)),
		normal("e2", "sB", at(8, 25), at(8, 30)),
	}, lookup())
	if len(runs) != 2 {
		t.Errorf("15-minute gap: expected 2 runs, got %d", len(runs))
	}
}

func TestRunEndClosesEvenWithLaterEntries(t *testing.T) {
	entries := []models.LogEntry{
		normal("e1", "sA", at(9, 0), at(9, 5)),
		marker("m1", models.KindRunEnd, at(9, 5)),
		normal("e2", "sB", at(9, 6), at(9, 8)),
	}

	runs := Build(entries, lookup())
	if len(runs) != 2 {
		t.Fatalf("expected RunEnd to split runs, got %d", len(runs))
	}
	if len(runs[0].Rows) != 1 || len(runs[1].Rows) != 1 {
		t.Errorf("rows per run = %d, %d, want 1 and 1", len(runs[0].Rows), len(runs[1].Rows))
	}
}

func TestOrphanRunEndProducesNothing(t *testing.T) {
	runs := Build([]models.LogEntry{
		marker("m1", models.KindRunEnd, at(9, 0)),
	}, lookup())
	if len(runs) != 0 {
		t.Errorf("orphan RunEnd produced %d runs", len(runs))
	}
}

func TestMarkerOnlyBufferDiscarded(t *testing.T) {
	runs := Build([]models.LogEntry{
		marker("m1", models.KindRunStart, at(9, 0)),
		marker("m2", models.KindRunEnd, at(9, 1)),
	}, lookup())
	if len(runs) != 0 {
		t.Errorf("marker-only buffer produced %d runs", len(runs))
	}
}

func TestPendingProcrastinationAttachesToNextRow(t *testing.T) {
	pbf := models.LogEntry{
		ID: "p1", ChecklistID: "cl", StepID: models.MarkerStepID,
		StartAt: at(9, 0), EndAt: at(9, 10), Kind: models.KindProcrastination,
		Meta: models.Meta{UpdatedAt: at(9, 10)},
	}
	entries := []models.LogEntry{
		pbf,
		normal("e1", "sA", at(9, 10), at(9, 20)),
	}

	runs := Build(entries, lookup())
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	row := runs[0].Rows[0]
	if row.Procrastination == nil {
		t.Fatal("leading procrastination not attached")
	}
	if row.Procrastination.Start != at(9, 0) || row.Procrastination.End != at(9, 10) {
		t.Errorf("procrastination interval = [%d,%d]", row.Procrastination.Start, row.Procrastination.End)
	}
	// The marker never becomes its own row, but its id contributes.
	if len(runs[0].Rows) != 1 {
		t.Errorf("marker emitted a row")
	}
	found := false
	for _, id := range row.EntryIDs {
		if id == "p1" {
			found = true
		}
	}
	if !found {
		t.Errorf("marker id missing from row ids: %v", row.EntryIDs)
	}
}

func TestConsecutiveProcrastinationMarkersLastWins(t *testing.T) {
	p1 := models.LogEntry{
		ID: "p1", ChecklistID: "cl", StepID: models.MarkerStepID,
		StartAt: at(9, 0), EndAt: at(9, 2), Kind: models.KindProcrastination,
		Meta: models.Meta{UpdatedAt: at(9, 2)},
	}
	p2 := models.LogEntry{
		ID: "p2", ChecklistID: "cl", StepID: models.MarkerStepID,
		StartAt: at(9, 3), EndAt: at(9, 8), Kind: models.KindProcrastination,
		Meta: models.Meta{UpdatedAt: at(9, 8)},
	}
	entries := []models.LogEntry{p1, p2, normal("e1", "sA", at(9, 8), at(9, 15))}

	runs := Build(entries, lookup())
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	proc := runs[0].Rows[0].Procrastination
	if proc == nil {
		t.Fatal("no procrastination attached")
	}
	// Only the most recent marker survives; the first is discarded with
	// its marker-only buffer.
	if proc.Start != at(9, 3) || proc.End != at(9, 8) {
		t.Errorf("procrastination = [%d,%d], want the later marker's interval", proc.Start, proc.End)
	}
}

func TestStartInferredFromFirstNormal(t *testing.T) {
	runs := Build([]models.LogEntry{
		normal("e1", "sA", at(10, 0), at(10, 5)),
	}, lookup())
	if len(runs) != 1 || runs[0].StartedAt != at(10, 0) {
		t.Fatalf("run start = %v, want %d", runs, at(10, 0))
	}

	// Start absent entirely: fall back to the last-write time.
	e := models.LogEntry{
		ID: "e2", ChecklistID: "cl", StepID: "sA",
		Kind: models.KindNormal, Meta: models.Meta{UpdatedAt: at(11, 0)},
	}
	runs = Build([]models.LogEntry{e}, lookup())
	if len(runs) != 1 || runs[0].StartedAt != at(11, 0) {
		t.Fatalf("run start fallback = %v, want %d", runs, at(11, 0))
	}
}

func TestExplicitDurationPreferred(t *testing.T) {
	e := normal("e1", "sA", at(9, 0), at(9, 10))
	e.DurationMS = 120000 // explicit 2 minutes, shorter than end-start

	runs := Build([]models.LogEntry{e}, lookup())
	if runs[0].Rows[0].Action.DurationMS != 120000 {
		t.Errorf("action duration = %d, want explicit 120000", runs[0].Rows[0].Action.DurationMS)
	}
}

func TestDeletedStepDegradesToPlaceholder(t *testing.T) {
	runs := Build([]models.LogEntry{
		normal("e1", "gone-step", at(9, 0), at(9, 5)),
	}, lookup())
	if got := runs[0].Rows[0].StepTitle; got != PlaceholderStepTitle {
		t.Errorf("step title = %q, want placeholder", got)
	}
}

func TestPurity(t *testing.T) {
	entries := []models.LogEntry{
		marker("m1", models.KindRunStart, at(8, 0)),
		normal("e1", "sA", at(8, 1), at(8, 3)),
		normal("e2", "sB", at(8, 5), at(8, 9)),
		marker("m2", models.KindRunEnd, at(8, 9)),
		normal("e3", "sA", at(12, 0), at(12, 30)),
	}

	first := Build(entries, lookup())
	second := Build(entries, lookup())
	if !reflect.DeepEqual(first, second) {
		t.Error("re-running reconstruction over the same log set diverged")
	}
}

func TestCanonicalOrderAndDescending(t *testing.T) {
	entries := []models.LogEntry{
		normal("e1", "sA", at(9, 0), at(9, 5)),
		{
			ID: "e2", ChecklistID: "cl2", StepID: "sA",
			StartAt: at(9, 0), EndAt: at(9, 4), Kind: models.KindNormal,
			Meta: models.Meta{UpdatedAt: at(9, 4)},
		},
		normal("e3", "sB", at(11, 0), at(11, 5)),
	}

	runs := Build(entries, lookup())
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	// Equal start times tie-break on checklist title: Chores < Study.
	if runs[0].ChecklistTitle != "Chores" || runs[1].ChecklistTitle != "Study" {
		t.Errorf("tie-break order = %q, %q", runs[0].ChecklistTitle, runs[1].ChecklistTitle)
	}
	if runs[2].StartedAt != at(11, 0) {
		t.Errorf("last run start = %d", runs[2].StartedAt)
	}

	desc := Descending(runs)
	for i := range runs {
		if !reflect.DeepEqual(desc[i], runs[len(runs)-1-i]) {
			t.Fatal("descending is not the reversal of canonical order")
		}
	}
}

func TestAggregateDurations(t *testing.T) {
	entries := []models.LogEntry{
		normal("e1", "sA", at(9, 0), at(9, 5)),  // 5 min action
		normal("e2", "sB", at(9, 7), at(9, 10)), // 2 min gap, 3 min action
	}

	runs := Build(entries, lookup())
	run := runs[0]
	if want := 8 * time.Minute.Milliseconds(); run.ActionMS != want {
		t.Errorf("action total = %d, want %d", run.ActionMS, want)
	}
	if want := 2 * time.Minute.Milliseconds(); run.ProcrastinationMS != want {
		t.Errorf("procrastination total = %d, want %d", run.ProcrastinationMS, want)
	}
}
