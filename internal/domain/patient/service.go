// Package patient provides the clinician-direct surface over the record
// store: intake, demographics, discharge, and hand edits to issues,
// subpoints and tasks. Dictation-driven changes go through the ward-update
// engine instead.
package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardround/wardround/internal/domain/record"
)

type Service struct {
	store  record.Store
	logger zerolog.Logger
}

func NewService(store record.Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Intake holds the fields a new admission needs.
type Intake struct {
	Name        string `json:"name"`
	MRN         string `json:"mrn"`
	DateOfBirth string `json:"date_of_birth"`
	Ward        string `json:"ward"`
	Bed         string `json:"bed"`
}

func (s *Service) Create(ctx context.Context, in Intake) (*record.Patient, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	p := &record.Patient{
		Name:   in.Name,
		MRN:    in.MRN,
		Ward:   in.Ward,
		Bed:    in.Bed,
		Status: record.PatientActive,
	}
	if in.DateOfBirth != "" {
		dob, err := record.ParseDate(in.DateOfBirth)
		if err != nil {
			return nil, err
		}
		p.DateOfBirth = &dob
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient admitted")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*record.Patient, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*record.Patient, int, error) {
	return s.store.List(ctx, limit, offset)
}

// Demographics are the fields editable after intake.
type Demographics struct {
	Name *string `json:"name,omitempty"`
	Ward *string `json:"ward,omitempty"`
	Bed  *string `json:"bed,omitempty"`
}

func (s *Service) UpdateDemographics(ctx context.Context, id uuid.UUID, d Demographics) (*record.Patient, error) {
	return s.update(ctx, id, func(p *record.Patient) error {
		if d.Name != nil {
			if *d.Name == "" {
				return fmt.Errorf("name cannot be empty")
			}
			p.Name = *d.Name
		}
		if d.Ward != nil {
			p.Ward = *d.Ward
		}
		if d.Bed != nil {
			p.Bed = *d.Bed
		}
		return nil
	})
}

func (s *Service) Discharge(ctx context.Context, id uuid.UUID) (*record.Patient, error) {
	return s.update(ctx, id, func(p *record.Patient) error {
		p.Status = record.PatientDischarged
		return nil
	})
}

// Delete removes a patient entirely. Irreversible by explicit clinician
// action only.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) AddIssue(ctx context.Context, id uuid.UUID, title string) (*record.Patient, error) {
	if title == "" {
		return nil, fmt.Errorf("issue title is required")
	}
	return s.update(ctx, id, func(p *record.Patient) error {
		p.Issues = append(p.Issues, record.Issue{
			ID:            uuid.New(),
			Title:         title,
			Status:        record.IssueOpen,
			LastUpdatedAt: time.Now().UTC(),
		})
		return nil
	})
}

func (s *Service) SetIssueStatus(ctx context.Context, id, issueID uuid.UUID, status record.IssueStatus) (*record.Patient, error) {
	if status != record.IssueOpen && status != record.IssueResolved {
		return nil, fmt.Errorf("invalid issue status: %s", status)
	}
	return s.update(ctx, id, func(p *record.Patient) error {
		issue := p.FindIssue(issueID)
		if issue == nil {
			return fmt.Errorf("issue %s not found", issueID)
		}
		issue.Status = status
		issue.LastUpdatedAt = time.Now().UTC()
		return nil
	})
}

// DeleteSubpoint removes a subpoint by hand. Deleting a procedure or
// antibiotic subpoint cascades to its checklist-derived tasks.
func (s *Service) DeleteSubpoint(ctx context.Context, id, subpointID uuid.UUID) (*record.Patient, error) {
	return s.update(ctx, id, func(p *record.Patient) error {
		return p.RemoveSubpoint(subpointID)
	})
}

func (s *Service) AddTask(ctx context.Context, id uuid.UUID, text string) (*record.Patient, error) {
	if text == "" {
		return nil, fmt.Errorf("task text is required")
	}
	return s.update(ctx, id, func(p *record.Patient) error {
		p.Tasks = append(p.Tasks, record.Task{
			ID:        uuid.New(),
			Text:      text,
			Status:    record.TaskOpen,
			CreatedAt: time.Now().UTC(),
			Origin:    record.OriginManual,
		})
		return nil
	})
}

func (s *Service) CompleteTask(ctx context.Context, id, taskID uuid.UUID) (*record.Patient, error) {
	return s.update(ctx, id, func(p *record.Patient) error {
		t := p.FindTask(taskID)
		if t == nil {
			return fmt.Errorf("task %s not found", taskID)
		}
		if t.Status == record.TaskDone {
			return nil
		}
		t.Status = record.TaskDone
		now := time.Now().UTC()
		t.CompletedAt = &now
		return nil
	})
}

func (s *Service) update(ctx context.Context, id uuid.UUID, fn record.Mutator) (*record.Patient, error) {
	return s.store.Update(ctx, id, func(p *record.Patient) error {
		if err := fn(p); err != nil {
			return err
		}
		p.LastUpdatedAt = time.Now().UTC()
		return nil
	})
}
