// Package wardupdate implements the ward-round diff engine: interpreting
// dictation into a structured diff against a patient's record, refining it
// over a conversational session, and merging approved diffs atomically with
// single-level undo.
package wardupdate

import (
	"github.com/google/uuid"

	"github.com/wardround/wardround/internal/domain/record"
)

// Diff is the unit of proposed change against one patient snapshot. It is a
// value object: produced by the interpreter (or built directly by a caller),
// validated once, and consumed exactly once by the merge engine. Date fields
// are wire strings (YYYY-MM-DD); ValidateDiff checks they parse.
type Diff struct {
	NewIssues         []NewIssue             `json:"new_issues,omitempty"`
	IssueUpdates      []IssueUpdate          `json:"issue_updates,omitempty"`
	Investigations    []InvestigationUpdate  `json:"investigations,omitempty"`
	NewTasks          []NewTask              `json:"new_tasks,omitempty"`
	CompleteTaskIDs   []uuid.UUID            `json:"complete_task_ids,omitempty"`
	CompleteTaskTexts []string               `json:"complete_task_texts,omitempty"`
	DischargeDate     *DischargeDateChange   `json:"discharge_date,omitempty"`
	AdmissionFlags    *AdmissionFlagChange   `json:"admission_flags,omitempty"`
	SkipChecklist     []string               `json:"skip_checklist,omitempty"`
}

// NewIssue proposes a new clinical issue with optional initial subpoints.
type NewIssue struct {
	Title     string         `json:"title"`
	Status    string         `json:"status,omitempty"`
	Subpoints []SubpointSpec `json:"subpoints,omitempty"`
}

// IssueUpdate proposes a status change and/or appended subpoints for an
// existing issue. Existing subpoints are never replaced through a diff.
type IssueUpdate struct {
	IssueID      uuid.UUID      `json:"issue_id"`
	Status       string         `json:"status,omitempty"`
	NewSubpoints []SubpointSpec `json:"new_subpoints,omitempty"`
}

// SubpointSpec is the wire form of a proposed subpoint. Kind selects which
// fields are meaningful; dates arrive as strings and are validated before
// apply.
type SubpointSpec struct {
	Kind           record.SubpointKind `json:"kind"`
	Text           string              `json:"text,omitempty"`
	Name           string              `json:"name,omitempty"`
	Date           string              `json:"date,omitempty"`
	StopDate       string              `json:"stop_date,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	ShowDayCounter bool                `json:"show_day_counter,omitempty"`
	ChecklistKey   string              `json:"checklist_key,omitempty"`
}

// InvestigationUpdate upserts an investigation: lab points append to the
// named series, imaging summaries replace the previous one.
type InvestigationUpdate struct {
	Name    string                   `json:"name"`
	Kind    record.InvestigationKind `json:"kind"`
	Points  []LabPointSpec           `json:"points,omitempty"`
	Summary string                   `json:"summary,omitempty"`
}

// LabPointSpec is one proposed dated lab value.
type LabPointSpec struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// NewTask proposes a follow-up task. The checklist scheduler sets Origin,
// ProcedureID and ScheduledDayOffset; interpreter-produced tasks leave them
// empty and are treated as manual.
type NewTask struct {
	Text               string            `json:"text"`
	Origin             record.TaskOrigin `json:"origin,omitempty"`
	ProcedureID        *uuid.UUID        `json:"procedure_id,omitempty"`
	ScheduledDayOffset *int              `json:"scheduled_day_offset,omitempty"`
}

// DischargeDateChange carries the old/new pair used for stale-diff
// detection: Old must still match the record at apply time.
type DischargeDateChange struct {
	Old string `json:"old,omitempty"`
	New string `json:"new,omitempty"`
}

// AdmissionFlagChange flips the admission/discharge checklist booleans.
type AdmissionFlagChange struct {
	AdmissionDone *bool `json:"admission_done,omitempty"`
	DischargeDone *bool `json:"discharge_done,omitempty"`
}

// Empty reports whether the diff proposes no changes at all.
func (d *Diff) Empty() bool {
	if d == nil {
		return true
	}
	return len(d.NewIssues) == 0 &&
		len(d.IssueUpdates) == 0 &&
		len(d.Investigations) == 0 &&
		len(d.NewTasks) == 0 &&
		len(d.CompleteTaskIDs) == 0 &&
		len(d.CompleteTaskTexts) == 0 &&
		d.DischargeDate == nil &&
		d.AdmissionFlags == nil &&
		len(d.SkipChecklist) == 0
}
