package wardupdate

import (
	"fmt"

	"github.com/wardround/wardround/internal/domain/record"
)

// ValidateDiff decides whether a diff is well-formed and safe to preview
// against the given snapshot. Pure: no side effects on either argument.
//
// Task completion by text is deliberately not validated here — it is
// resolved at apply time by substring match and silently no-ops on zero or
// multiple matches.
func ValidateDiff(d *Diff, snapshot *record.Patient) error {
	if d == nil {
		return &ValidationError{Kind: MalformedDiff, Msg: "diff is nil"}
	}
	if d.Empty() {
		return &ValidationError{Kind: MalformedDiff, Msg: "diff proposes no changes"}
	}

	for _, ni := range d.NewIssues {
		if ni.Title == "" {
			return &ValidationError{Kind: MalformedDiff, Msg: "new issue has no title"}
		}
		if err := validateStatus(ni.Status); err != nil {
			return err
		}
		for _, sp := range ni.Subpoints {
			if err := validateSubpointSpec(sp); err != nil {
				return err
			}
		}
	}

	for _, iu := range d.IssueUpdates {
		if snapshot.FindIssue(iu.IssueID) == nil {
			return &ValidationError{
				Kind: UnknownIssueReference,
				Msg:  fmt.Sprintf("issue %s does not exist on this patient", iu.IssueID),
			}
		}
		if err := validateStatus(iu.Status); err != nil {
			return err
		}
		for _, sp := range iu.NewSubpoints {
			if err := validateSubpointSpec(sp); err != nil {
				return err
			}
		}
	}

	for _, inv := range d.Investigations {
		switch inv.Kind {
		case record.InvestigationLab:
			for _, pt := range inv.Points {
				if _, err := record.ParseDate(pt.Date); err != nil {
					return &ValidationError{Kind: MalformedDate, Msg: err.Error()}
				}
			}
		case record.InvestigationImaging:
			// Summary replacement needs no date.
		default:
			return &ValidationError{
				Kind: MalformedDiff,
				Msg:  fmt.Sprintf("unknown investigation kind %q", inv.Kind),
			}
		}
	}

	for _, id := range d.CompleteTaskIDs {
		if snapshot.FindTask(id) == nil {
			return &ValidationError{
				Kind: UnknownTaskReference,
				Msg:  fmt.Sprintf("task %s does not exist on this patient", id),
			}
		}
	}

	if d.DischargeDate != nil {
		if err := validateDischargeDate(d.DischargeDate, snapshot); err != nil {
			return err
		}
	}

	return nil
}

func validateDischargeDate(ch *DischargeDateChange, snapshot *record.Patient) error {
	// Old and new both unset carries no directive; there is nothing to
	// compare the record against.
	if ch.Old == "" && ch.New == "" {
		return nil
	}

	var oldDate *record.Date
	if ch.Old != "" {
		parsed, err := record.ParseDate(ch.Old)
		if err != nil {
			return &ValidationError{Kind: MalformedDate, Msg: err.Error()}
		}
		oldDate = &parsed
	}
	if ch.New != "" {
		if _, err := record.ParseDate(ch.New); err != nil {
			return &ValidationError{Kind: MalformedDate, Msg: err.Error()}
		}
	}

	current := snapshot.ExpectedDischargeDate
	switch {
	case oldDate == nil && current == nil:
		return nil
	case oldDate != nil && current != nil && oldDate.Equal(*current):
		return nil
	}
	return &StaleDiffError{
		Field:    "expected_discharge_date",
		Expected: ch.Old,
		Actual:   dateString(current),
	}
}

func validateSubpointSpec(sp SubpointSpec) error {
	switch sp.Kind {
	case record.SubpointNote:
		if sp.Text == "" {
			return &ValidationError{Kind: MalformedDiff, Msg: "note subpoint has no text"}
		}
	case record.SubpointProcedure:
		if sp.Name == "" {
			return &ValidationError{Kind: MalformedDiff, Msg: "procedure subpoint has no name"}
		}
		if _, err := record.ParseDate(sp.Date); err != nil {
			return &ValidationError{Kind: MalformedDate, Msg: err.Error()}
		}
	case record.SubpointAntibiotic:
		if sp.Name == "" {
			return &ValidationError{Kind: MalformedDiff, Msg: "antibiotic subpoint has no name"}
		}
		if _, err := record.ParseDate(sp.Date); err != nil {
			return &ValidationError{Kind: MalformedDate, Msg: err.Error()}
		}
		if sp.StopDate != "" {
			if _, err := record.ParseDate(sp.StopDate); err != nil {
				return &ValidationError{Kind: MalformedDate, Msg: err.Error()}
			}
		}
	default:
		return &ValidationError{
			Kind: MalformedDiff,
			Msg:  fmt.Sprintf("unknown subpoint kind %q", sp.Kind),
		}
	}
	return nil
}

func validateStatus(s string) error {
	switch s {
	case "", string(record.IssueOpen), string(record.IssueResolved):
		return nil
	}
	return &ValidationError{
		Kind: MalformedDiff,
		Msg:  fmt.Sprintf("invalid issue status %q", s),
	}
}

func dateString(d *record.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
