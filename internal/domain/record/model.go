package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PatientStatus is the admission status of a patient.
type PatientStatus string

const (
	PatientActive     PatientStatus = "active"
	PatientDischarged PatientStatus = "discharged"
)

// IssueStatus is the two-state lifecycle of a clinical issue.
type IssueStatus string

const (
	IssueOpen     IssueStatus = "open"
	IssueResolved IssueStatus = "resolved"
)

// TaskStatus is the two-state lifecycle of a follow-up task.
type TaskStatus string

const (
	TaskOpen TaskStatus = "open"
	TaskDone TaskStatus = "done"
)

// TaskOrigin records how a task came to exist.
type TaskOrigin string

const (
	OriginManual    TaskOrigin = "manual"
	OriginChecklist TaskOrigin = "procedure-checklist"
)

// InvestigationKind distinguishes lab series from imaging summaries.
type InvestigationKind string

const (
	InvestigationLab     InvestigationKind = "lab"
	InvestigationImaging InvestigationKind = "imaging"
)

// Patient is the aggregate root for one admitted patient's clinical record.
// All merge-engine mutations go through Store.Update so that writes for the
// same patient never interleave.
type Patient struct {
	ID                    uuid.UUID       `json:"id"`
	Name                  string          `json:"name"`
	MRN                   string          `json:"mrn,omitempty"`
	DateOfBirth           *Date           `json:"date_of_birth,omitempty"`
	Ward                  string          `json:"ward,omitempty"`
	Bed                   string          `json:"bed,omitempty"`
	Status                PatientStatus   `json:"status"`
	Issues                []Issue         `json:"issues"`
	Investigations        []Investigation `json:"investigations"`
	Tasks                 []Task          `json:"tasks"`
	Checklist             ChecklistFlags  `json:"checklist"`
	ExpectedDischargeDate *Date           `json:"expected_discharge_date,omitempty"`
	LastUpdatedAt         time.Time       `json:"last_updated_at"`
	CreatedAt             time.Time       `json:"created_at"`

	// Version is bumped by the store on every successful Update and backs
	// the compare-and-swap write path.
	Version int `json:"version"`

	// History holds pre-apply snapshots, newest last, bounded by the merge
	// engine's history limit. Snapshots carry no history of their own.
	History []HistoryEntry `json:"history,omitempty"`
}

// ChecklistFlags tracks the admission/discharge paperwork state plus any
// checklist items the clinician explicitly skipped.
type ChecklistFlags struct {
	AdmissionDone bool     `json:"admission_done"`
	DischargeDone bool     `json:"discharge_done"`
	SkippedItems  []string `json:"skipped_items,omitempty"`
}

// Issue is one clinical problem with an ordered, append-only subpoint trail.
type Issue struct {
	ID            uuid.UUID   `json:"id"`
	Title         string      `json:"title"`
	Status        IssueStatus `json:"status"`
	Subpoints     []Subpoint  `json:"subpoints"`
	LastUpdatedAt time.Time   `json:"last_updated_at"`
}

// Task is a unit of follow-up work. Checklist-derived tasks carry the
// (ProcedureID, ScheduledDayOffset, Text) triple that makes scheduling
// idempotent.
type Task struct {
	ID                 uuid.UUID  `json:"id"`
	Text               string     `json:"text"`
	Status             TaskStatus `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	Origin             TaskOrigin `json:"origin,omitempty"`
	ProcedureID        *uuid.UUID `json:"procedure_id,omitempty"`
	ScheduledDayOffset *int       `json:"scheduled_day_offset,omitempty"`
}

// Investigation is either a named lab series (points accumulate, monotonic by
// date) or a named imaging summary (replaced in place).
type Investigation struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Kind      InvestigationKind `json:"kind"`
	Points    []LabPoint        `json:"points,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// LabPoint is one dated value in a lab series.
type LabPoint struct {
	Date  Date   `json:"date"`
	Value string `json:"value"`
}

// HistoryEntry is one undo-capable snapshot taken immediately before a merge.
type HistoryEntry struct {
	RecordedAt time.Time `json:"recorded_at"`
	Source     string    `json:"source"`
	Dictation  string    `json:"dictation,omitempty"`
	State      *Patient  `json:"state"`
}

// FindIssue returns the issue with the given id, or nil.
func (p *Patient) FindIssue(id uuid.UUID) *Issue {
	for i := range p.Issues {
		if p.Issues[i].ID == id {
			return &p.Issues[i]
		}
	}
	return nil
}

// FindTask returns the task with the given id, or nil.
func (p *Patient) FindTask(id uuid.UUID) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// FindInvestigation returns the investigation with the given name (exact,
// case-sensitive), or nil.
func (p *Patient) FindInvestigation(name string) *Investigation {
	for i := range p.Investigations {
		if p.Investigations[i].Name == name {
			return &p.Investigations[i]
		}
	}
	return nil
}

// OpenTasks returns the tasks still awaiting completion.
func (p *Patient) OpenTasks() []Task {
	var open []Task
	for _, t := range p.Tasks {
		if t.Status == TaskOpen {
			open = append(open, t)
		}
	}
	return open
}

// HasChecklistTask reports whether a task with the given
// (procedureID, dayOffset, text) triple already exists, open or done.
func (p *Patient) HasChecklistTask(procedureID uuid.UUID, dayOffset int, text string) bool {
	for _, t := range p.Tasks {
		if t.ProcedureID != nil && *t.ProcedureID == procedureID &&
			t.ScheduledDayOffset != nil && *t.ScheduledDayOffset == dayOffset &&
			t.Text == text {
			return true
		}
	}
	return false
}

// RemoveSubpoint deletes the subpoint with the given id from whichever issue
// holds it and cascades: every task whose ProcedureID references the removed
// subpoint is deleted with it. Returns an error if the subpoint is unknown.
func (p *Patient) RemoveSubpoint(subpointID uuid.UUID) error {
	found := false
	for i := range p.Issues {
		iss := &p.Issues[i]
		for j := range iss.Subpoints {
			if iss.Subpoints[j].ID == subpointID {
				iss.Subpoints = append(iss.Subpoints[:j], iss.Subpoints[j+1:]...)
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		return fmt.Errorf("subpoint %s not found", subpointID)
	}

	kept := p.Tasks[:0]
	for _, t := range p.Tasks {
		if t.ProcedureID != nil && *t.ProcedureID == subpointID {
			continue
		}
		kept = append(kept, t)
	}
	p.Tasks = kept
	return nil
}

// Snapshot returns a deep copy of the patient without its history stack,
// suitable for storing as an undo entry or handing to the interpreter.
func (p *Patient) Snapshot() *Patient {
	c := p.Clone()
	c.History = nil
	return c
}

// Clone returns a deep copy of the patient, history included.
func (p *Patient) Clone() *Patient {
	c := *p
	c.DateOfBirth = cloneDate(p.DateOfBirth)
	c.ExpectedDischargeDate = cloneDate(p.ExpectedDischargeDate)

	c.Issues = make([]Issue, len(p.Issues))
	for i, iss := range p.Issues {
		c.Issues[i] = iss
		c.Issues[i].Subpoints = cloneSubpoints(iss.Subpoints)
	}

	c.Investigations = make([]Investigation, len(p.Investigations))
	for i, inv := range p.Investigations {
		c.Investigations[i] = inv
		c.Investigations[i].Points = append([]LabPoint(nil), inv.Points...)
	}

	c.Tasks = make([]Task, len(p.Tasks))
	for i, t := range p.Tasks {
		c.Tasks[i] = t
		if t.CompletedAt != nil {
			ts := *t.CompletedAt
			c.Tasks[i].CompletedAt = &ts
		}
		if t.ProcedureID != nil {
			id := *t.ProcedureID
			c.Tasks[i].ProcedureID = &id
		}
		if t.ScheduledDayOffset != nil {
			d := *t.ScheduledDayOffset
			c.Tasks[i].ScheduledDayOffset = &d
		}
	}

	c.Checklist.SkippedItems = append([]string(nil), p.Checklist.SkippedItems...)

	if p.History != nil {
		c.History = make([]HistoryEntry, len(p.History))
		for i, h := range p.History {
			c.History[i] = h
			if h.State != nil {
				c.History[i].State = h.State.Clone()
			}
		}
	}
	return &c
}

// RestoreFrom overwrites the patient's clinical state with the snapshot,
// leaving ID, Version and the remaining history stack untouched. Used by the
// merge engine's undo path.
func (p *Patient) RestoreFrom(snap *Patient) {
	history := p.History
	id := p.ID
	version := p.Version

	restored := snap.Clone()
	*p = *restored
	p.ID = id
	p.Version = version
	p.History = history
}

func cloneDate(d *Date) *Date {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func cloneSubpoints(sps []Subpoint) []Subpoint {
	out := make([]Subpoint, len(sps))
	for i, sp := range sps {
		out[i] = sp
		out[i].Detail = sp.Detail.cloneDetail()
	}
	return out
}
