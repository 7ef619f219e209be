package wardupdate

import (
	"context"
	"time"

	"github.com/wardround/wardround/internal/domain/record"
)

// Turn is one dictation-to-diff round trip within a session.
type Turn struct {
	Dictation        string    `json:"dictation"`
	Diff             *Diff     `json:"diff,omitempty"`
	AssistantMessage string    `json:"assistant_message,omitempty"`
	HumanSummary     string    `json:"human_summary,omitempty"`
	At               time.Time `json:"at"`
}

// InterpretRequest is what the text-understanding collaborator sees: the
// dictation, a snapshot of the patient's current state, and for refinement
// turns the full prior history so changes stay cumulative.
type InterpretRequest struct {
	Dictation  string
	Snapshot   *record.Patient
	PriorTurns []Turn
}

// Interpretation is the collaborator's answer: a candidate diff plus
// commentary for the clinician.
type Interpretation struct {
	Diff             *Diff
	AssistantMessage string
	HumanSummary     string
}

// Interpreter turns dictation into a candidate diff. Implementations make a
// single external call per invocation, honour the context deadline, and
// perform no side effects on the record store. Failures surface as errors;
// the engine never invents a diff on failure and never retries
// automatically.
type Interpreter interface {
	Interpret(ctx context.Context, req InterpretRequest) (*Interpretation, error)
}
