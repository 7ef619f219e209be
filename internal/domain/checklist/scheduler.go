package checklist

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardround/wardround/internal/domain/record"
	"github.com/wardround/wardround/internal/domain/wardupdate"
)

// Proposal is one task the scheduler wants to exist.
type Proposal struct {
	Text        string
	ProcedureID uuid.UUID
	DayOffset   int
}

// Due is the pure derivation at the heart of the scheduler: for every
// procedure subpoint with a checklist key, every template entry whose day
// offset has been reached and which has no identical-triple task yet.
// Calling it twice with no intervening state change yields the same result;
// it never proposes retracting a task.
func Due(reg *Registry, p *record.Patient, now time.Time) []Proposal {
	var due []Proposal
	for _, issue := range p.Issues {
		for _, sp := range issue.Subpoints {
			proc, ok := sp.Detail.(record.ProcedureDetail)
			if !ok || proc.ChecklistKey == "" {
				continue
			}
			dayCount := proc.Date.DaysUntil(now)
			for _, entry := range reg.Template(proc.ChecklistKey) {
				if entry.DayOffset > dayCount {
					continue
				}
				if p.HasChecklistTask(sp.ID, entry.DayOffset, entry.Text) {
					continue
				}
				due = append(due, Proposal{
					Text:        entry.Text,
					ProcedureID: sp.ID,
					DayOffset:   entry.DayOffset,
				})
			}
		}
	}
	return due
}

// Scheduler turns due proposals into tasks through the merge engine, so the
// additions ride the same per-patient write serialization and undo history
// as every other mutation.
type Scheduler struct {
	reg    *Registry
	engine *wardupdate.Engine
	store  record.Store
	logger zerolog.Logger
}

// NewScheduler builds a scheduler over the given registry, engine and store.
func NewScheduler(reg *Registry, engine *wardupdate.Engine, store record.Store, logger zerolog.Logger) *Scheduler {
	return &Scheduler{reg: reg, engine: engine, store: store, logger: logger}
}

// Evaluate computes the due tasks for the patient at the given time and adds
// any that are missing. Idempotent: re-running with no state change adds
// nothing (the engine re-checks the triple under the patient's write lock).
// Returns the tasks added on this evaluation.
func (s *Scheduler) Evaluate(ctx context.Context, patientID uuid.UUID, now time.Time) ([]record.Task, error) {
	p, err := s.store.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}

	proposals := Due(s.reg, p, now)
	if len(proposals) == 0 {
		return nil, nil
	}

	diff := &wardupdate.Diff{}
	for _, prop := range proposals {
		prop := prop
		diff.NewTasks = append(diff.NewTasks, wardupdate.NewTask{
			Text:               prop.Text,
			Origin:             record.OriginChecklist,
			ProcedureID:        &prop.ProcedureID,
			ScheduledDayOffset: &prop.DayOffset,
		})
	}

	updated, err := s.engine.ApplyQuick(ctx, patientID, diff, "checklist")
	if err != nil {
		return nil, err
	}

	var added []record.Task
	for _, t := range updated.Tasks {
		if t.Origin != record.OriginChecklist || t.ProcedureID == nil || t.ScheduledDayOffset == nil {
			continue
		}
		for _, prop := range proposals {
			if *t.ProcedureID == prop.ProcedureID && *t.ScheduledDayOffset == prop.DayOffset && t.Text == prop.Text {
				added = append(added, t)
				break
			}
		}
	}

	s.logger.Info().
		Str("patient_id", patientID.String()).
		Int("proposed", len(proposals)).
		Msg("checklist evaluation complete")
	return added, nil
}
