// Package models defines the domain types for Raido.
package models

// MarkerStepID is the sentinel step id carried by log entries that are
// structural markers rather than records of a completed step.
const MarkerStepID = "-"

// EntryKind is the closed discriminator for log entries. It is resolved once
// from the wire string at ingestion and never re-interpreted downstream.
type EntryKind int

// Entry kinds.
const (
	KindNormal EntryKind = iota
	KindRunStart
	KindRunEnd
	KindProcrastination // leading idle time before the first step of a run
)

// ParseEntryKind maps a wire kind string to its EntryKind. Unknown strings
// degrade to KindNormal rather than failing.
func ParseEntryKind(s string) EntryKind {
	switch s {
	case "run_start":
		return KindRunStart
	case "run_end":
		return KindRunEnd
	case "procrastination_before_first":
		return KindProcrastination
	default:
		return KindNormal
	}
}

// String returns the wire representation of the kind.
func (k EntryKind) String() string {
	switch k {
	case KindRunStart:
		return "run_start"
	case KindRunEnd:
		return "run_end"
	case KindProcrastination:
		return "procrastination_before_first"
	default:
		return "normal"
	}
}

// Meta carries last-write metadata shared by all synced entities.
// Timestamps are ms since the Unix epoch, matching the wire format.
type Meta struct {
	UpdatedAt int64  `json:"updated_at"`
	UpdatedBy string `json:"updated_by"`
}

// Checklist is a routine definition.
type Checklist struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Ordinal int    `json:"ordinal"`
	Meta
}

// Step is one step of a checklist. Ordinals within a checklist are kept
// contiguous (0..n-1) by the reconciler after every merge.
type Step struct {
	ID          string `json:"id"`
	ChecklistID string `json:"checklist_id"`
	Title       string `json:"title"`
	Ordinal     int    `json:"ordinal"`
	Done        bool   `json:"done"`
	Meta
}

// LogEntry is one execution-log record. StartAt/EndAt of zero mean absent
// (an absent end marks the entry as still open).
type LogEntry struct {
	ID          string    `json:"id"`
	ChecklistID string    `json:"checklist_id"`
	StepID      string    `json:"step_id"`
	StartAt     int64     `json:"start_at"`
	EndAt       int64     `json:"end_at,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	Kind        EntryKind `json:"kind"`
	Meta
}

// IsMarker reports whether the entry is structural rather than a step record.
func (e LogEntry) IsMarker() bool {
	return e.Kind != KindNormal
}

// ActionDuration returns the effective duration in ms: the explicit duration
// when present, otherwise end-start when both are known, otherwise zero.
func (e LogEntry) ActionDuration() int64 {
	if e.DurationMS > 0 {
		return e.DurationMS
	}
	if e.StartAt > 0 && e.EndAt > e.StartAt {
		return e.EndAt - e.StartAt
	}
	return 0
}

// Snapshot is the JSON-serialisable image of every collection, used for
// reload survival through the persistent local store.
type Snapshot struct {
	Checklists []Checklist `json:"checklists"`
	Steps      []Step      `json:"steps"`
	Entries    []LogEntry  `json:"entries"`
}
