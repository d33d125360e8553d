package api

import "github.com/starford/raido/internal/models"

// CreateChecklistRequest is the request body for creating a checklist.
type CreateChecklistRequest struct {
	Title string `json:"title" example:"Morning routine" validate:"required"`
}

// UpdateChecklistRequest is the request body for renaming or reordering a checklist.
type UpdateChecklistRequest struct {
	Title   string `json:"title,omitempty" example:"Evening routine"`
	Ordinal *int   `json:"ordinal,omitempty" example:"2"`
}

// CreateStepRequest is the request body for adding a step.
type CreateStepRequest struct {
	Title string `json:"title" example:"Review flashcards" validate:"required"`
}

// UpdateStepRequest is the request body for editing a step.
type UpdateStepRequest struct {
	Title   string `json:"title,omitempty"`
	Ordinal *int   `json:"ordinal,omitempty"`
	Done    *bool  `json:"done,omitempty"`
}

// MarkerRequest is the request body for writing a structural marker entry.
// Kind is one of run_start, run_end, procrastination_before_first.
type MarkerRequest struct {
	Kind  string `json:"kind" example:"run_start" validate:"required"`
	Start int64  `json:"start,omitempty"`
	End   int64  `json:"end,omitempty"`
}

// DeleteRunRequest lists the contributing entry ids of a run to tombstone.
type DeleteRunRequest struct {
	EntryIDs []string `json:"entry_ids" validate:"required"`
}

// SyncRequest selects the cursor purpose for a manual sync trigger.
type SyncRequest struct {
	Purpose string `json:"purpose,omitempty" example:"live"`
}

// ChecklistDetail is a checklist with its ordered steps.
type ChecklistDetail struct {
	models.Checklist
	Steps []models.Step `json:"steps"`
}

// ChecklistListResponse wraps the checklist listing.
type ChecklistListResponse struct {
	Checklists []models.Checklist `json:"checklists" validate:"required"`
}

// RunListResponse wraps reconstructed runs.
type RunListResponse struct {
	Runs []models.Run `json:"runs" validate:"required"`
}

// SyncStatusResponse reports outbox depth and the last push failure.
type SyncStatusResponse struct {
	Pending   int    `json:"pending"`
	LastError string `json:"last_error,omitempty"`
}
