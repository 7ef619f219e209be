package wardupdate

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardround/wardround/internal/domain/record"
)

// DefaultHistoryLimit bounds the per-patient undo stack.
const DefaultHistoryLimit = 20

// Engine merges approved diffs into the record store. Every apply runs
// all-or-nothing against one snapshot under the store's per-patient write
// serialization: validation (including the stale-date check) happens before
// any mutation, so a rejected diff leaves zero partial effects.
type Engine struct {
	store        record.Store
	historyLimit int
	logger       zerolog.Logger
	now          func() time.Time
}

// NewEngine creates a merge engine. historyLimit <= 0 falls back to
// DefaultHistoryLimit.
func NewEngine(store record.Store, historyLimit int, logger zerolog.Logger) *Engine {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Engine{
		store:        store,
		historyLimit: historyLimit,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Apply merges the diff into the patient's record, recording the pre-apply
// snapshot for undo. rawDictation is kept alongside the history entry for
// audit; source labels where the diff came from ("session", "direct",
// "checklist").
func (e *Engine) Apply(ctx context.Context, patientID uuid.UUID, d *Diff, rawDictation, source string) (*record.Patient, error) {
	return e.store.Update(ctx, patientID, func(p *record.Patient) error {
		if err := ValidateDiff(d, p); err != nil {
			return err
		}

		now := e.now()
		snapshot := p.Snapshot()

		e.applyIssues(p, d, now)
		e.applyInvestigations(p, d, now)
		e.applyTasks(p, d, now, patientID)
		applyDischargeDate(p, d)
		applyFlags(p, d)

		p.History = append(p.History, record.HistoryEntry{
			RecordedAt: now,
			Source:     source,
			Dictation:  rawDictation,
			State:      snapshot,
		})
		if len(p.History) > e.historyLimit {
			p.History = p.History[len(p.History)-e.historyLimit:]
		}
		p.LastUpdatedAt = now
		return nil
	})
}

// ApplyQuick is the session-less path for direct diff submission (plain
// text-box entry or the checklist scheduler).
func (e *Engine) ApplyQuick(ctx context.Context, patientID uuid.UUID, d *Diff, source string) (*record.Patient, error) {
	return e.Apply(ctx, patientID, d, "", source)
}

// UndoLast pops the most recent history entry and restores it as the current
// state. Single-level undo: the undone state is not retained for redo.
func (e *Engine) UndoLast(ctx context.Context, patientID uuid.UUID) (*record.Patient, error) {
	return e.store.Update(ctx, patientID, func(p *record.Patient) error {
		if len(p.History) == 0 {
			return ErrNothingToUndo
		}
		last := p.History[len(p.History)-1]
		p.History = p.History[:len(p.History)-1]
		p.RestoreFrom(last.State)
		return nil
	})
}

func (e *Engine) applyIssues(p *record.Patient, d *Diff, now time.Time) {
	for _, ni := range d.NewIssues {
		status := record.IssueStatus(ni.Status)
		if status == "" {
			status = record.IssueOpen
		}
		issue := record.Issue{
			ID:            uuid.New(),
			Title:         ni.Title,
			Status:        status,
			LastUpdatedAt: now,
		}
		for _, spec := range ni.Subpoints {
			issue.Subpoints = append(issue.Subpoints, buildSubpoint(spec, now))
		}
		p.Issues = append(p.Issues, issue)
	}

	for _, iu := range d.IssueUpdates {
		issue := p.FindIssue(iu.IssueID)
		if issue == nil {
			continue // rejected by validation; unreachable after it
		}
		if iu.Status != "" {
			issue.Status = record.IssueStatus(iu.Status)
		}
		for _, spec := range iu.NewSubpoints {
			issue.Subpoints = append(issue.Subpoints, buildSubpoint(spec, now))
		}
		issue.LastUpdatedAt = now
	}
}

// buildSubpoint mints a record.Subpoint from a validated spec. Date parse
// errors are unreachable post-validation.
func buildSubpoint(spec SubpointSpec, now time.Time) record.Subpoint {
	sp := record.Subpoint{
		ID:         uuid.New(),
		RecordedAt: now,
	}
	switch spec.Kind {
	case record.SubpointNote:
		sp.Detail = record.NoteDetail{Text: spec.Text}
	case record.SubpointProcedure:
		date, err := record.ParseDate(spec.Date)
		if err != nil {
			break // validated earlier
		}
		sp.Detail = record.ProcedureDetail{
			Name:           spec.Name,
			Date:           date,
			Notes:          spec.Notes,
			ShowDayCounter: spec.ShowDayCounter,
			ChecklistKey:   spec.ChecklistKey,
		}
	case record.SubpointAntibiotic:
		start, err := record.ParseDate(spec.Date)
		if err != nil {
			break // validated earlier
		}
		detail := record.AntibioticDetail{
			Name:      spec.Name,
			StartDate: start,
			Notes:     spec.Notes,
		}
		if spec.StopDate != "" {
			if stop, err := record.ParseDate(spec.StopDate); err == nil {
				detail.StopDate = &stop
			}
		}
		sp.Detail = detail
	}
	return sp
}

func (e *Engine) applyInvestigations(p *record.Patient, d *Diff, now time.Time) {
	for _, upd := range d.Investigations {
		inv := p.FindInvestigation(upd.Name)
		if inv == nil {
			p.Investigations = append(p.Investigations, record.Investigation{
				ID:        uuid.New(),
				Name:      upd.Name,
				Kind:      upd.Kind,
				UpdatedAt: now,
			})
			inv = &p.Investigations[len(p.Investigations)-1]
		}
		switch upd.Kind {
		case record.InvestigationLab:
			for _, pt := range upd.Points {
				date, err := record.ParseDate(pt.Date)
				if err != nil {
					continue // validated earlier
				}
				inv.Points = insertLabPoint(inv.Points, record.LabPoint{Date: date, Value: pt.Value})
			}
		case record.InvestigationImaging:
			inv.Summary = upd.Summary
		}
		inv.UpdatedAt = now
	}
}

// insertLabPoint keeps the series monotonic by date.
func insertLabPoint(points []record.LabPoint, pt record.LabPoint) []record.LabPoint {
	i := len(points)
	for i > 0 && pt.Date.Before(points[i-1].Date) {
		i--
	}
	points = append(points, record.LabPoint{})
	copy(points[i+1:], points[i:])
	points[i] = pt
	return points
}

func (e *Engine) applyTasks(p *record.Patient, d *Diff, now time.Time, patientID uuid.UUID) {
	for _, nt := range d.NewTasks {
		origin := nt.Origin
		if origin == "" {
			origin = record.OriginManual
		}
		if origin == record.OriginChecklist &&
			nt.ProcedureID != nil && nt.ScheduledDayOffset != nil &&
			p.HasChecklistTask(*nt.ProcedureID, *nt.ScheduledDayOffset, nt.Text) {
			continue // idempotent scheduling
		}
		p.Tasks = append(p.Tasks, record.Task{
			ID:                 uuid.New(),
			Text:               nt.Text,
			Status:             record.TaskOpen,
			CreatedAt:          now,
			Origin:             origin,
			ProcedureID:        nt.ProcedureID,
			ScheduledDayOffset: nt.ScheduledDayOffset,
		})
	}

	for _, id := range d.CompleteTaskIDs {
		if t := p.FindTask(id); t != nil && t.Status == record.TaskOpen {
			completeTask(t, now)
		}
	}

	for _, text := range d.CompleteTaskTexts {
		match := matchOpenTask(p, text)
		if match == nil {
			e.logger.Info().
				Str("patient_id", patientID.String()).
				Str("text", text).
				Msg("task completion by text skipped: zero or multiple matches")
			continue
		}
		completeTask(match, now)
	}
}

// matchOpenTask resolves a completion-by-text directive: case-insensitive
// substring over open tasks. Zero or multiple matches resolve to nil — a
// no-op favouring safety over precision.
func matchOpenTask(p *record.Patient, text string) *record.Task {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}
	var match *record.Task
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.Status != record.TaskOpen {
			continue
		}
		if strings.Contains(strings.ToLower(t.Text), needle) {
			if match != nil {
				return nil // ambiguous
			}
			match = t
		}
	}
	return match
}

func completeTask(t *record.Task, now time.Time) {
	t.Status = record.TaskDone
	ts := now
	t.CompletedAt = &ts
}

func applyDischargeDate(p *record.Patient, d *Diff) {
	if d.DischargeDate == nil {
		return
	}
	if d.DischargeDate.Old == "" && d.DischargeDate.New == "" {
		return
	}
	if d.DischargeDate.New == "" {
		p.ExpectedDischargeDate = nil
		return
	}
	date, err := record.ParseDate(d.DischargeDate.New)
	if err != nil {
		return // validated earlier
	}
	p.ExpectedDischargeDate = &date
}

func applyFlags(p *record.Patient, d *Diff) {
	if d.AdmissionFlags != nil {
		if d.AdmissionFlags.AdmissionDone != nil {
			p.Checklist.AdmissionDone = *d.AdmissionFlags.AdmissionDone
		}
		if d.AdmissionFlags.DischargeDone != nil {
			p.Checklist.DischargeDone = *d.AdmissionFlags.DischargeDone
		}
	}
	for _, item := range d.SkipChecklist {
		if !containsString(p.Checklist.SkippedItems, item) {
			p.Checklist.SkippedItems = append(p.Checklist.SkippedItems, item)
		}
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
