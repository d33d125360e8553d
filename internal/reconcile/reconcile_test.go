package reconcile

import (
	"log/slog"
	"reflect"
	"testing"

	"github.com/starford/raido/internal/models"
)

var discard = slog.New(slog.DiscardHandler)

func ord(n int) *int { return &n }

func tomb(at int64) *int64 { return &at }

func TestApplyChecklistsUpsertAndTombstone(t *testing.T) {
	cur := map[string]models.Checklist{}

	next := ApplyChecklists(cur, []models.ChecklistDiff{
		{ID: "a", Title: "Morning", Ordinal: ord(0), UpdatedAt: 10, UpdatedBy: "d1"},
		{ID: "b", Title: "Evening", Ordinal: ord(1), UpdatedAt: 11, UpdatedBy: "d1"},
	}, discard)
	if len(next) != 2 {
		t.Fatalf("expected 2 checklists, got %d", len(next))
	}
	if len(cur) != 0 {
		t.Error("input collection was mutated")
	}

	next = ApplyChecklists(next, []models.ChecklistDiff{
		{ID: "a", UpdatedAt: 12, UpdatedBy: "d2", DeletedAt: tomb(12)},
	}, discard)
	if _, ok := next["a"]; ok {
		t.Error("tombstoned checklist still present")
	}
	if _, ok := next["b"]; !ok {
		t.Error("unrelated checklist removed")
	}
}

func TestApplyIdempotence(t *testing.T) {
	diffs := []models.StepDiff{
		{ID: "s1", ChecklistID: "c", Title: "One", Ordinal: ord(0), UpdatedAt: 1},
		{ID: "s2", ChecklistID: "c", Title: "Two", Ordinal: ord(1), UpdatedAt: 2},
		{ID: "s3", ChecklistID: "c", UpdatedAt: 3, DeletedAt: tomb(3)},
	}

	once := ApplySteps(nil, diffs, discard)
	twice := ApplySteps(once, diffs, discard)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("applying the same batch twice diverged:\nonce:  %#v\ntwice: %#v", once, twice)
	}
}

func TestTombstonePrecedenceWithinBatch(t *testing.T) {
	// Tombstone for an id must win regardless of upsert position in the
	// same batch? Diffs are applied in remote order, so the later row
	// wins; a tombstone last always removes.
	diffs := []models.ChecklistDiff{
		{ID: "x", Title: "Keep me", Ordinal: ord(0), UpdatedAt: 1},
		{ID: "x", UpdatedAt: 2, DeletedAt: tomb(2)},
	}
	next := ApplyChecklists(nil, diffs, discard)
	if _, ok := next["x"]; ok {
		t.Error("tombstone did not remove id present earlier in batch")
	}
}

func TestResurrectionIsFreshUpsert(t *testing.T) {
	next := ApplyChecklists(nil, []models.ChecklistDiff{
		{ID: "x", Title: "Old", Ordinal: ord(3), UpdatedAt: 1},
		{ID: "x", UpdatedAt: 2, DeletedAt: tomb(2)},
		{ID: "x", Title: "New", UpdatedAt: 3},
	}, discard)
	got, ok := next["x"]
	if !ok {
		t.Fatal("resurrected checklist missing")
	}
	if got.Title != "New" {
		t.Errorf("title = %q, want %q", got.Title, "New")
	}
	// Ordinal defaults to current length, not the pre-tombstone value.
	if got.Ordinal != 0 {
		t.Errorf("ordinal = %d, want 0", got.Ordinal)
	}
}

func TestStepOrdinalContiguity(t *testing.T) {
	next := ApplySteps(nil, []models.StepDiff{
		{ID: "a", ChecklistID: "c1", Title: "A", Ordinal: ord(5), UpdatedAt: 1},
		{ID: "b", ChecklistID: "c1", Title: "B", Ordinal: ord(2), UpdatedAt: 1},
		{ID: "c", ChecklistID: "c1", Title: "C", Ordinal: ord(9), UpdatedAt: 1},
		{ID: "z", ChecklistID: "c2", Title: "Z", Ordinal: ord(7), UpdatedAt: 1},
	}, discard)

	seen := map[int]string{}
	for id, s := range next {
		if s.ChecklistID != "c1" {
			continue
		}
		if prev, dup := seen[s.Ordinal]; dup {
			t.Errorf("duplicate ordinal %d for %s and %s", s.Ordinal, prev, id)
		}
		seen[s.Ordinal] = id
	}
	for i := range 3 {
		if _, ok := seen[i]; !ok {
			t.Errorf("missing ordinal %d in c1", i)
		}
	}
	if next["b"].Ordinal != 0 || next["a"].Ordinal != 1 || next["c"].Ordinal != 2 {
		t.Errorf("relative order not preserved: a=%d b=%d c=%d",
			next["a"].Ordinal, next["b"].Ordinal, next["c"].Ordinal)
	}
	if next["z"].Ordinal != 0 {
		t.Errorf("other checklist ordinal = %d, want 0", next["z"].Ordinal)
	}
}

func TestOrdinalContiguityAfterDelete(t *testing.T) {
	base := ApplySteps(nil, []models.StepDiff{
		{ID: "a", ChecklistID: "c", Ordinal: ord(0), UpdatedAt: 1},
		{ID: "b", ChecklistID: "c", Ordinal: ord(1), UpdatedAt: 1},
		{ID: "c", ChecklistID: "c", Ordinal: ord(2), UpdatedAt: 1},
	}, discard)

	next := ApplySteps(base, []models.StepDiff{
		{ID: "b", ChecklistID: "c", UpdatedAt: 2, DeletedAt: tomb(2)},
	}, discard)

	if next["a"].Ordinal != 0 || next["c"].Ordinal != 1 {
		t.Errorf("ordinals after delete: a=%d c=%d, want 0 and 1",
			next["a"].Ordinal, next["c"].Ordinal)
	}
}

func TestDefaultOrdinalIsSiblingCount(t *testing.T) {
	base := ApplySteps(nil, []models.StepDiff{
		{ID: "a", ChecklistID: "c", Ordinal: ord(0), UpdatedAt: 1},
		{ID: "b", ChecklistID: "c", Ordinal: ord(1), UpdatedAt: 1},
	}, discard)

	next := ApplySteps(base, []models.StepDiff{
		{ID: "new", ChecklistID: "c", Title: "New", UpdatedAt: 2},
	}, discard)
	if next["new"].Ordinal != 2 {
		t.Errorf("new step ordinal = %d, want 2", next["new"].Ordinal)
	}
}

func TestMalformedRowSkipped(t *testing.T) {
	next := ApplyEntries(nil, []models.EntryDiff{
		{ID: "", ChecklistID: "c", UpdatedAt: 1},
		{ID: "ok", ChecklistID: "c", StepID: "s", StartAt: 5, Kind: "normal", UpdatedAt: 1},
	}, discard)
	if len(next) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(next))
	}
	if _, ok := next["ok"]; !ok {
		t.Error("valid row was not applied")
	}
}

func TestEntryKindResolvedAtIngestion(t *testing.T) {
	next := ApplyEntries(nil, []models.EntryDiff{
		{ID: "e1", ChecklistID: "c", StepID: models.MarkerStepID, StartAt: 1, Kind: "run_start", UpdatedAt: 1},
		{ID: "e2", ChecklistID: "c", StepID: "s", StartAt: 2, Kind: "something-unknown", UpdatedAt: 1},
	}, discard)
	if next["e1"].Kind != models.KindRunStart {
		t.Errorf("e1 kind = %v, want KindRunStart", next["e1"].Kind)
	}
	if next["e2"].Kind != models.KindNormal {
		t.Errorf("unknown kind should degrade to KindNormal, got %v", next["e2"].Kind)
	}
}

func TestApplyLatestWinsNoTimestampComparison(t *testing.T) {
	// The reconciler trusts remote batch order: a later row overwrites an
	// earlier one even when its updated_at is older.
	next := ApplyChecklists(nil, []models.ChecklistDiff{
		{ID: "x", Title: "Newer", Ordinal: ord(0), UpdatedAt: 100},
		{ID: "x", Title: "Older", Ordinal: ord(0), UpdatedAt: 50},
	}, discard)
	if next["x"].Title != "Older" {
		t.Errorf("title = %q, want last-applied %q", next["x"].Title, "Older")
	}
}
