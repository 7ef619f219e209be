package wardupdate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSession means the session id does not exist (or was swept).
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionTerminal means the session was already applied or discarded.
	ErrSessionTerminal = errors.New("session already terminal")

	// ErrSessionAlreadyOpen means the patient already has an open session
	// and the caller did not ask for it to be discarded.
	ErrSessionAlreadyOpen = errors.New("patient already has an open session")

	// ErrTurnInFlight means a prior turn's interpreter call is still
	// outstanding; sessions allow one in-flight call at a time.
	ErrTurnInFlight = errors.New("a turn is already in flight for this session")

	// ErrNoDiffAvailable means apply was requested but the latest turn
	// produced no valid diff.
	ErrNoDiffAvailable = errors.New("no diff available to apply")

	// ErrNothingToUndo means the patient has no history entry to restore.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrInterpretTimeout marks a collaborator call that exceeded its
	// deadline. The session is left in its pre-call state.
	ErrInterpretTimeout = errors.New("interpretation timed out")
)

// InterpretError is any non-timeout collaborator failure: transport errors,
// non-200 responses, refusals, or malformed output. Never auto-retried; the
// clinician retries by hand.
type InterpretError struct {
	Reason string
	Err    error
}

func (e *InterpretError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("interpretation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("interpretation failed: %s", e.Reason)
}

func (e *InterpretError) Unwrap() error { return e.Err }

// ValidationKind enumerates the ways a diff can be rejected before apply.
type ValidationKind string

const (
	UnknownIssueReference ValidationKind = "unknown-issue-reference"
	UnknownTaskReference  ValidationKind = "unknown-task-reference"
	MalformedDate         ValidationKind = "malformed-date"
	MalformedDiff         ValidationKind = "malformed-diff"
)

// ValidationError rejects a diff that references state absent from the
// snapshot or is internally inconsistent. The diff is never partially
// applied.
type ValidationError struct {
	Kind ValidationKind
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid diff (%s): %s", e.Kind, e.Msg)
}

// StaleDiffError signals that the record changed between diff generation and
// apply. The caller should re-run interpretation against a fresh snapshot.
type StaleDiffError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *StaleDiffError) Error() string {
	return fmt.Sprintf("stale diff: %s was %q when the diff was generated but is now %q; re-run against the current record",
		e.Field, e.Expected, e.Actual)
}
