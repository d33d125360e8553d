package models

// Collection names used on the wire and as snapshot keys.
const (
	CollectionChecklists = "checklists"
	CollectionSteps      = "steps"
	CollectionEntries    = "entries"
)

// Collections lists every synced collection name in canonical order.
var Collections = []string{CollectionChecklists, CollectionSteps, CollectionEntries}

// ChecklistDiff is one change row for the checklists collection.
// A non-nil DeletedAt is a tombstone. A nil Ordinal on an unseen id means
// "append at the end of the current siblings".
type ChecklistDiff struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Ordinal   *int   `json:"ordinal,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
	UpdatedBy string `json:"updated_by"`
	DeletedAt *int64 `json:"deleted_at"`
}

// StepDiff is one change row for the steps collection.
type StepDiff struct {
	ID          string `json:"id"`
	ChecklistID string `json:"checklist_id"`
	Title       string `json:"title"`
	Ordinal     *int   `json:"ordinal,omitempty"`
	Done        bool   `json:"done"`
	UpdatedAt   int64  `json:"updated_at"`
	UpdatedBy   string `json:"updated_by"`
	DeletedAt   *int64 `json:"deleted_at"`
}

// EntryDiff is one change row for the entries collection. Kind travels as a
// free-form string and is resolved to an EntryKind exactly once on apply.
type EntryDiff struct {
	ID          string `json:"id"`
	ChecklistID string `json:"checklist_id"`
	StepID      string `json:"step_id"`
	StartAt     int64  `json:"start_at"`
	EndAt       int64  `json:"end_at,omitempty"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
	Kind        string `json:"kind"`
	UpdatedAt   int64  `json:"updated_at"`
	UpdatedBy   string `json:"updated_by"`
	DeletedAt   *int64 `json:"deleted_at"`
}

// DiffBatch groups change rows by collection, as delivered by one pull or
// carried by one push. Collections are applied independently; there are no
// cross-collection transactions.
type DiffBatch struct {
	Checklists []ChecklistDiff `json:"checklists,omitempty"`
	Steps      []StepDiff      `json:"steps,omitempty"`
	Entries    []EntryDiff     `json:"entries,omitempty"`
}

// Empty reports whether the batch carries no rows at all.
func (b DiffBatch) Empty() bool {
	return len(b.Checklists) == 0 && len(b.Steps) == 0 && len(b.Entries) == 0
}

// Merge appends every row of other onto b, preserving order.
func (b DiffBatch) Merge(other DiffBatch) DiffBatch {
	b.Checklists = append(b.Checklists, other.Checklists...)
	b.Steps = append(b.Steps, other.Steps...)
	b.Entries = append(b.Entries, other.Entries...)
	return b
}
