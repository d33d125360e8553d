// Package testutil provides shared test helpers for setting up local
// databases and seeded stores.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/raido/internal/localdb"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *localdb.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "raido-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := localdb.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a store pre-seeded with one checklist and two steps.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(nil)
	ord0, ord1 := 0, 1
	s.ApplyBatch(models.DiffBatch{
		Checklists: []models.ChecklistDiff{
			{ID: "cl1", Title: "Morning routine", Ordinal: &ord0, UpdatedAt: 1, UpdatedBy: "seed"},
		},
		Steps: []models.StepDiff{
			{ID: "s1", ChecklistID: "cl1", Title: "Stretch", Ordinal: &ord0, UpdatedAt: 1, UpdatedBy: "seed"},
			{ID: "s2", ChecklistID: "cl1", Title: "Flashcards", Ordinal: &ord1, UpdatedAt: 1, UpdatedBy: "seed"},
		},
	})
	return s
}
