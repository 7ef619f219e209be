package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardround/wardround/internal/domain/record"
)

func newTestService(t *testing.T) (*Service, *record.MemoryStore) {
	t.Helper()
	store := record.NewMemoryStore()
	return NewService(store, zerolog.Nop()), store
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, Intake{}); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := svc.Create(ctx, Intake{Name: "Jane Doe", DateOfBirth: "not-a-date"}); err == nil {
		t.Error("expected error for malformed date of birth")
	}

	p, err := svc.Create(ctx, Intake{Name: "Jane Doe", MRN: "A123", DateOfBirth: "1954-06-02", Ward: "7A", Bed: "12"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Status != record.PatientActive || p.DateOfBirth.String() != "1954-06-02" {
		t.Errorf("unexpected patient: %+v", p)
	}
}

func TestUpdateDemographics(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, Intake{Name: "Jane Doe", Ward: "7A"})
	if err != nil {
		t.Fatal(err)
	}

	bed := "3"
	updated, err := svc.UpdateDemographics(ctx, p.ID, Demographics{Bed: &bed})
	if err != nil {
		t.Fatalf("UpdateDemographics failed: %v", err)
	}
	if updated.Bed != "3" || updated.Ward != "7A" || updated.Name != "Jane Doe" {
		t.Errorf("partial update went wrong: %+v", updated)
	}

	empty := ""
	if _, err := svc.UpdateDemographics(ctx, p.ID, Demographics{Name: &empty}); err == nil {
		t.Error("expected error clearing the name")
	}
}

func TestIssueLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, Intake{Name: "Jane Doe"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.AddIssue(ctx, p.ID, "CAP")
	if err != nil {
		t.Fatalf("AddIssue failed: %v", err)
	}
	issueID := updated.Issues[0].ID

	updated, err = svc.SetIssueStatus(ctx, p.ID, issueID, record.IssueResolved)
	if err != nil {
		t.Fatalf("SetIssueStatus failed: %v", err)
	}
	if updated.Issues[0].Status != record.IssueResolved {
		t.Errorf("status = %s", updated.Issues[0].Status)
	}

	if _, err := svc.SetIssueStatus(ctx, p.ID, issueID, "pending"); err == nil {
		t.Error("expected error for invalid status")
	}
	if _, err := svc.SetIssueStatus(ctx, p.ID, uuid.New(), record.IssueOpen); err == nil {
		t.Error("expected error for unknown issue")
	}
	if _, err := svc.AddIssue(ctx, p.ID, ""); err == nil {
		t.Error("expected error for empty title")
	}
}

func TestDeleteSubpointCascades(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, Intake{Name: "Jane Doe"})
	if err != nil {
		t.Fatal(err)
	}

	procID := uuid.New()
	offset := 1
	if _, err := store.Update(ctx, p.ID, func(p *record.Patient) error {
		p.Issues = append(p.Issues, record.Issue{
			ID:     uuid.New(),
			Title:  "Complete heart block",
			Status: record.IssueOpen,
			Subpoints: []record.Subpoint{{
				ID: procID,
				Detail: record.ProcedureDetail{
					Name:         "Pacemaker insertion",
					Date:         record.NewDate(2025, time.March, 1),
					ChecklistKey: "pacemaker",
				},
			}},
		})
		p.Tasks = append(p.Tasks, record.Task{
			ID:                 uuid.New(),
			Text:               "Check wound site",
			Status:             record.TaskOpen,
			Origin:             record.OriginChecklist,
			ProcedureID:        &procID,
			ScheduledDayOffset: &offset,
		})
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	updated, err := svc.DeleteSubpoint(ctx, p.ID, procID)
	if err != nil {
		t.Fatalf("DeleteSubpoint failed: %v", err)
	}
	if len(updated.Issues[0].Subpoints) != 0 || len(updated.Tasks) != 0 {
		t.Errorf("cascade incomplete: %d subpoints, %d tasks", len(updated.Issues[0].Subpoints), len(updated.Tasks))
	}
}

func TestTaskLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, Intake{Name: "Jane Doe"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.AddTask(ctx, p.ID, "Chase echo report")
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	taskID := updated.Tasks[0].ID

	updated, err = svc.CompleteTask(ctx, p.ID, taskID)
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if updated.Tasks[0].Status != record.TaskDone || updated.Tasks[0].CompletedAt == nil {
		t.Errorf("task not completed: %+v", updated.Tasks[0])
	}

	// Completing twice is a no-op, not an error.
	if _, err := svc.CompleteTask(ctx, p.ID, taskID); err != nil {
		t.Errorf("double complete errored: %v", err)
	}
	if _, err := svc.CompleteTask(ctx, p.ID, uuid.New()); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestDischargeAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, Intake{Name: "Jane Doe"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Discharge(ctx, p.ID)
	if err != nil {
		t.Fatalf("Discharge failed: %v", err)
	}
	if updated.Status != record.PatientDischarged {
		t.Errorf("status = %s", updated.Status)
	}

	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, p.ID); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
