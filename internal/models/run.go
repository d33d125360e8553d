package models

// Interval is a closed time span in ms-epoch coordinates.
type Interval struct {
	Start      int64 `json:"start"`
	End        int64 `json:"end"`
	DurationMS int64 `json:"duration_ms"`
}

// Row is one reconstructed step execution inside a Run.
type Row struct {
	StepTitle       string    `json:"step_title"`
	EntryIDs        []string  `json:"entry_ids"`
	Procrastination *Interval `json:"procrastination,omitempty"`
	Action          Interval  `json:"action"`
}

// Run is a reconstructed, bounded usage session for one checklist. Runs are
// derived views: they are never persisted or synced.
type Run struct {
	ID                string `json:"id"`
	ChecklistID       string `json:"checklist_id"`
	ChecklistTitle    string `json:"checklist_title"`
	StartedAt         int64  `json:"started_at"`
	Rows              []Row  `json:"rows"`
	ActionMS          int64  `json:"action_ms"`
	ProcrastinationMS int64  `json:"procrastination_ms"`
	// EntryIDs records every contributing raw log-entry id, markers
	// included, so a run can be deleted as one bulk tombstone push.
	EntryIDs []string `json:"entry_ids"`
}
