package wardupdate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardround/wardround/internal/domain/record"
)

func newTestEngine(t *testing.T) (*Engine, *record.MemoryStore) {
	t.Helper()
	store := record.NewMemoryStore()
	return NewEngine(store, 5, zerolog.Nop()), store
}

func createPatient(t *testing.T, store *record.MemoryStore, p *record.Patient) *record.Patient {
	t.Helper()
	if p == nil {
		p = &record.Patient{Name: "Jane Doe"}
	}
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestApplyNewIssueWithSubpoints(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)

	diff := &Diff{NewIssues: []NewIssue{{
		Title: "Complete heart block",
		Subpoints: []SubpointSpec{
			{Kind: record.SubpointNote, Text: "Mobitz II overnight"},
			{Kind: record.SubpointProcedure, Name: "Pacemaker insertion", Date: "2025-03-01", ChecklistKey: "pacemaker"},
		},
	}}}

	updated, err := engine.Apply(context.Background(), p.ID, diff, "new issue heart block", "session")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(updated.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(updated.Issues))
	}
	iss := updated.Issues[0]
	if iss.Title != "Complete heart block" || iss.Status != record.IssueOpen {
		t.Errorf("unexpected issue: %+v", iss)
	}
	if len(iss.Subpoints) != 2 {
		t.Fatalf("expected 2 subpoints, got %d", len(iss.Subpoints))
	}
	proc, ok := iss.Subpoints[1].Detail.(record.ProcedureDetail)
	if !ok || proc.ChecklistKey != "pacemaker" {
		t.Errorf("unexpected procedure detail: %+v", iss.Subpoints[1].Detail)
	}
	if len(updated.History) != 1 || updated.History[0].Dictation != "new issue heart block" {
		t.Errorf("history not recorded: %+v", updated.History)
	}
}

func TestApplyAllOrNothing(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)

	// A diff with one valid part and one invalid part must apply neither.
	diff := &Diff{
		NewIssues:    []NewIssue{{Title: "AKI"}},
		IssueUpdates: []IssueUpdate{{IssueID: uuid.New(), Status: "resolved"}},
	}

	_, err := engine.Apply(context.Background(), p.ID, diff, "", "session")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	got, _ := store.Get(context.Background(), p.ID)
	if len(got.Issues) != 0 || len(got.History) != 0 || got.Version != 1 {
		t.Errorf("rejected diff left partial effects: %+v", got)
	}
}

func TestApplyStaleDischargeDate(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)
	ctx := context.Background()

	// Record the discharge date as Jan 11.
	if _, err := engine.Apply(ctx, p.ID, &Diff{
		DischargeDate: &DischargeDateChange{New: "2025-01-11"},
	}, "", "direct"); err != nil {
		t.Fatal(err)
	}

	// A diff generated when the date was still Jan 10 must be rejected.
	stale := &Diff{DischargeDate: &DischargeDateChange{Old: "2025-01-10", New: "2025-01-12"}}
	_, err := engine.Apply(ctx, p.ID, stale, "", "session")
	var sderr *StaleDiffError
	if !errors.As(err, &sderr) {
		t.Fatalf("expected StaleDiffError, got %v", err)
	}

	got, _ := store.Get(ctx, p.ID)
	if got.ExpectedDischargeDate == nil || got.ExpectedDischargeDate.String() != "2025-01-11" {
		t.Errorf("stale diff changed the record: %v", got.ExpectedDischargeDate)
	}

	// A fresh diff carrying the current date goes through.
	fresh := &Diff{DischargeDate: &DischargeDateChange{Old: "2025-01-11", New: "2025-01-12"}}
	updated, err := engine.Apply(ctx, p.ID, fresh, "", "session")
	if err != nil {
		t.Fatalf("fresh diff rejected: %v", err)
	}
	if updated.ExpectedDischargeDate.String() != "2025-01-12" {
		t.Errorf("discharge date = %v, want 2025-01-12", updated.ExpectedDischargeDate)
	}
}

func TestApplyClearsDischargeDate(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)
	ctx := context.Background()

	if _, err := engine.Apply(ctx, p.ID, &Diff{DischargeDate: &DischargeDateChange{New: "2025-01-11"}}, "", "direct"); err != nil {
		t.Fatal(err)
	}
	updated, err := engine.Apply(ctx, p.ID, &Diff{DischargeDate: &DischargeDateChange{Old: "2025-01-11", New: ""}}, "", "direct")
	if err != nil {
		t.Fatal(err)
	}
	if updated.ExpectedDischargeDate != nil {
		t.Errorf("expected discharge date cleared, got %v", updated.ExpectedDischargeDate)
	}
}

func TestApplyEmptyDischargeDateChangeIsNoOp(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)
	ctx := context.Background()

	if _, err := engine.Apply(ctx, p.ID, &Diff{DischargeDate: &DischargeDateChange{New: "2025-01-11"}}, "", "direct"); err != nil {
		t.Fatal(err)
	}

	// Old and new both unset carries no directive and must not clear the
	// date the record already holds.
	updated, err := engine.Apply(ctx, p.ID, &Diff{
		DischargeDate: &DischargeDateChange{},
		NewTasks:      []NewTask{{Text: "Chase discharge summary"}},
	}, "", "direct")
	if err != nil {
		t.Fatal(err)
	}
	if updated.ExpectedDischargeDate == nil || updated.ExpectedDischargeDate.String() != "2025-01-11" {
		t.Errorf("empty change must leave the date alone, got %v", updated.ExpectedDischargeDate)
	}
	if len(updated.Tasks) != 1 {
		t.Errorf("expected the accompanying task to be added, got %d tasks", len(updated.Tasks))
	}
}

func TestApplyChecklistTasksIdempotent(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)
	ctx := context.Background()

	procID := uuid.New()
	day1 := 1
	diff := &Diff{NewTasks: []NewTask{{
		Text:               "Check wound site",
		Origin:             record.OriginChecklist,
		ProcedureID:        &procID,
		ScheduledDayOffset: &day1,
	}}}

	if _, err := engine.ApplyQuick(ctx, p.ID, diff, "checklist"); err != nil {
		t.Fatal(err)
	}
	updated, err := engine.ApplyQuick(ctx, p.ID, diff, "checklist")
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Tasks) != 1 {
		t.Errorf("duplicate checklist task scheduled: %d tasks", len(updated.Tasks))
	}

	// Completing the task does not let the triple come back.
	if _, err := engine.ApplyQuick(ctx, p.ID, &Diff{CompleteTaskIDs: []uuid.UUID{updated.Tasks[0].ID}}, "direct"); err != nil {
		t.Fatal(err)
	}
	again, err := engine.ApplyQuick(ctx, p.ID, diff, "checklist")
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Tasks) != 1 {
		t.Errorf("completed checklist task was rescheduled: %d tasks", len(again.Tasks))
	}
}

func TestApplyCompleteTaskByText(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)
	ctx := context.Background()

	if _, err := engine.ApplyQuick(ctx, p.ID, &Diff{NewTasks: []NewTask{
		{Text: "Repeat CXR tomorrow"},
		{Text: "Repeat U&E in the morning"},
		{Text: "Chase echo report"},
	}}, "direct"); err != nil {
		t.Fatal(err)
	}

	// "Repeat" matches two open tasks: ambiguous, so neither completes.
	updated, err := engine.ApplyQuick(ctx, p.ID, &Diff{CompleteTaskTexts: []string{"Repeat"}}, "session")
	if err != nil {
		t.Fatal(err)
	}
	if open := updated.OpenTasks(); len(open) != 3 {
		t.Errorf("ambiguous completion mutated tasks: %d open", len(open))
	}

	// "echo" matches exactly one, case-insensitively.
	updated, err = engine.ApplyQuick(ctx, p.ID, &Diff{CompleteTaskTexts: []string{"ECHO"}}, "session")
	if err != nil {
		t.Fatal(err)
	}
	if open := updated.OpenTasks(); len(open) != 2 {
		t.Errorf("expected 2 open tasks after unique match, got %d", len(open))
	}
	done := updated.FindTask(taskByText(t, updated, "Chase echo report").ID)
	if done.Status != record.TaskDone || done.CompletedAt == nil {
		t.Errorf("matched task not completed: %+v", done)
	}

	// No match at all is a no-op too.
	updated, err = engine.ApplyQuick(ctx, p.ID, &Diff{CompleteTaskTexts: []string{"colonoscopy"}}, "session")
	if err != nil {
		t.Fatal(err)
	}
	if open := updated.OpenTasks(); len(open) != 2 {
		t.Errorf("zero-match completion mutated tasks: %d open", len(open))
	}
}

func taskByText(t *testing.T, p *record.Patient, text string) *record.Task {
	t.Helper()
	for i := range p.Tasks {
		if p.Tasks[i].Text == text {
			return &p.Tasks[i]
		}
	}
	t.Fatalf("task %q not found", text)
	return nil
}

func TestApplyLabPointsStayMonotonic(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)
	ctx := context.Background()

	if _, err := engine.ApplyQuick(ctx, p.ID, &Diff{Investigations: []InvestigationUpdate{{
		Name:   "CRP",
		Kind:   record.InvestigationLab,
		Points: []LabPointSpec{{Date: "2025-03-05", Value: "120"}},
	}}}, "direct"); err != nil {
		t.Fatal(err)
	}

	// A back-dated point lands in order, not at the end.
	updated, err := engine.ApplyQuick(ctx, p.ID, &Diff{Investigations: []InvestigationUpdate{{
		Name:   "CRP",
		Kind:   record.InvestigationLab,
		Points: []LabPointSpec{{Date: "2025-03-03", Value: "200"}, {Date: "2025-03-07", Value: "60"}},
	}}}, "direct")
	if err != nil {
		t.Fatal(err)
	}

	inv := updated.FindInvestigation("CRP")
	if inv == nil || len(inv.Points) != 3 {
		t.Fatalf("unexpected series: %+v", inv)
	}
	for i := 1; i < len(inv.Points); i++ {
		if inv.Points[i].Date.Before(inv.Points[i-1].Date) {
			t.Errorf("series out of order at %d: %+v", i, inv.Points)
		}
	}
}

func TestApplyImagingSummaryReplaces(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)
	ctx := context.Background()

	for _, summary := range []string{"Small left effusion", "Effusion resolved"} {
		if _, err := engine.ApplyQuick(ctx, p.ID, &Diff{Investigations: []InvestigationUpdate{{
			Name:    "CXR",
			Kind:    record.InvestigationImaging,
			Summary: summary,
		}}}, "direct"); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := store.Get(ctx, p.ID)
	inv := got.FindInvestigation("CXR")
	if len(got.Investigations) != 1 || inv.Summary != "Effusion resolved" {
		t.Errorf("imaging summary not replaced in place: %+v", got.Investigations)
	}
}

func TestUndoLastIsExactInverse(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)
	ctx := context.Background()

	first := &Diff{NewIssues: []NewIssue{{Title: "CAP"}}}
	second := &Diff{
		NewTasks:      []NewTask{{Text: "Chase sputum culture"}},
		DischargeDate: &DischargeDateChange{New: "2025-03-10"},
	}

	if _, err := engine.Apply(ctx, p.ID, first, "cap", "session"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Apply(ctx, p.ID, second, "tasks", "session"); err != nil {
		t.Fatal(err)
	}

	undone, err := engine.UndoLast(ctx, p.ID)
	if err != nil {
		t.Fatalf("UndoLast failed: %v", err)
	}
	if len(undone.Tasks) != 0 || undone.ExpectedDischargeDate != nil {
		t.Errorf("second apply not reverted: %+v", undone)
	}
	if len(undone.Issues) != 1 || undone.Issues[0].Title != "CAP" {
		t.Errorf("first apply was also reverted: %+v", undone.Issues)
	}
	if len(undone.History) != 1 {
		t.Errorf("history stack = %d entries, want 1", len(undone.History))
	}

	// Second undo reverts the first apply; a third has nothing left.
	undone, err = engine.UndoLast(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(undone.Issues) != 0 {
		t.Errorf("first apply not reverted: %+v", undone.Issues)
	}
	if _, err := engine.UndoLast(ctx, p.ID); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestHistoryBounded(t *testing.T) {
	engine, store := newTestEngine(t) // limit 5
	p := createPatient(t, store, nil)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := engine.ApplyQuick(ctx, p.ID, &Diff{NewTasks: []NewTask{{Text: "t"}}}, "direct"); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := store.Get(ctx, p.ID)
	if len(got.History) != 5 {
		t.Errorf("history = %d entries, want 5", len(got.History))
	}
	// The oldest retained snapshot is from before the fourth apply.
	if snap := got.History[0].State; len(snap.Tasks) != 3 {
		t.Errorf("oldest snapshot has %d tasks, want 3", len(snap.Tasks))
	}
}

func TestApplyAdmissionFlagsAndSkips(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)
	ctx := context.Background()

	yes := true
	updated, err := engine.ApplyQuick(ctx, p.ID, &Diff{
		AdmissionFlags: &AdmissionFlagChange{AdmissionDone: &yes},
		SkipChecklist:  []string{"vte-assessment", "vte-assessment"},
	}, "direct")
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Checklist.AdmissionDone || updated.Checklist.DischargeDone {
		t.Errorf("unexpected flags: %+v", updated.Checklist)
	}
	if len(updated.Checklist.SkippedItems) != 1 {
		t.Errorf("skip list not deduplicated: %v", updated.Checklist.SkippedItems)
	}
}

func TestApplyFixedClock(t *testing.T) {
	engine, store := newTestEngine(t)
	p := createPatient(t, store, nil)
	fixed := time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	updated, err := engine.ApplyQuick(context.Background(), p.ID, &Diff{NewIssues: []NewIssue{{Title: "CAP"}}}, "direct")
	if err != nil {
		t.Fatal(err)
	}
	if !updated.LastUpdatedAt.Equal(fixed) || !updated.Issues[0].LastUpdatedAt.Equal(fixed) {
		t.Errorf("timestamps not taken from the engine clock: %v / %v", updated.LastUpdatedAt, updated.Issues[0].LastUpdatedAt)
	}
}
