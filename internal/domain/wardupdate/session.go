package wardupdate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardround/wardround/internal/domain/record"
)

// SessionOutcome is the terminal state of a conversation session.
type SessionOutcome string

const (
	SessionOpen      SessionOutcome = "open"
	SessionApplied   SessionOutcome = "applied"
	SessionDiscarded SessionOutcome = "discarded"
)

// DefaultRetention is how long terminal sessions linger for audit before the
// sweeper removes them.
const DefaultRetention = 30 * time.Minute

// Session is one dictation-to-commit interaction for a single patient.
type Session struct {
	ID        uuid.UUID      `json:"id"`
	PatientID uuid.UUID      `json:"patient_id"`
	Turns     []Turn         `json:"turns"`
	Outcome   SessionOutcome `json:"outcome"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// LatestDiff returns the newest turn's diff, or nil when the latest turn
// produced none (interpretation or validation failure).
func (s *Session) LatestDiff() *Diff {
	if len(s.Turns) == 0 {
		return nil
	}
	return s.Turns[len(s.Turns)-1].Diff
}

func (s *Session) terminal() bool { return s.Outcome != SessionOpen }

// session is the manager's internal state: the public Session plus the
// in-flight marker that enforces one outstanding interpreter call.
type session struct {
	Session
	inFlight bool
}

// SessionManager owns the lifecycle of dictation sessions: it creates them,
// accumulates turns through the interpreter, and finalizes each session
// exactly once (apply or discard). Sessions live in memory; terminal ones
// are swept after the retention window.
type SessionManager struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*session
	byPatient map[uuid.UUID]uuid.UUID // open session per patient

	interp    Interpreter
	engine    *Engine
	store     record.Store
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSessionManager creates a manager. retention <= 0 falls back to
// DefaultRetention.
func NewSessionManager(interp Interpreter, engine *Engine, store record.Store, retention time.Duration, logger zerolog.Logger) *SessionManager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SessionManager{
		sessions:  make(map[uuid.UUID]*session),
		byPatient: make(map[uuid.UUID]uuid.UUID),
		interp:    interp,
		engine:    engine,
		store:     store,
		retention: retention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start creates a session for the patient and runs its first turn. If the
// patient already has an open session the caller must decide: with
// discardOpen false Start fails with ErrSessionAlreadyOpen; with it true the
// prior session is discarded first. Never silent.
//
// If the interpreter call fails or the context is cancelled, no session is
// left behind.
func (m *SessionManager) Start(ctx context.Context, patientID uuid.UUID, dictation string, discardOpen bool) (*Session, error) {
	snapshot, err := m.store.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if openID, ok := m.byPatient[patientID]; ok {
		if !discardOpen {
			m.mu.Unlock()
			return nil, ErrSessionAlreadyOpen
		}
		if prior, ok := m.sessions[openID]; ok {
			prior.Outcome = SessionDiscarded
			prior.UpdatedAt = m.now()
		}
		delete(m.byPatient, patientID)
	}

	now := m.now()
	sess := &session{Session: Session{
		ID:        uuid.New(),
		PatientID: patientID,
		Outcome:   SessionOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	sess.inFlight = true
	m.sessions[sess.ID] = sess
	m.byPatient[patientID] = sess.ID
	m.mu.Unlock()

	turn, err := m.runTurn(ctx, sess.ID, dictation, snapshot.Snapshot(), nil)

	m.mu.Lock()
	defer m.mu.Unlock()
	sess.inFlight = false
	if err != nil {
		// Back to the pre-call state: the session never existed.
		delete(m.sessions, sess.ID)
		if m.byPatient[patientID] == sess.ID {
			delete(m.byPatient, patientID)
		}
		return nil, err
	}
	sess.Turns = append(sess.Turns, *turn)
	sess.UpdatedAt = m.now()
	out := sess.Session
	return &out, nil
}

// Continue adds a refinement turn, passing the full turn history to the
// interpreter so refinements are cumulative. On interpreter failure or
// cancellation the session keeps its prior turns and stays open.
func (m *SessionManager) Continue(ctx context.Context, sessionID uuid.UUID, dictation string) (*Turn, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrUnknownSession
	}
	if sess.terminal() {
		m.mu.Unlock()
		return nil, ErrSessionTerminal
	}
	if sess.inFlight {
		m.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	sess.inFlight = true
	patientID := sess.PatientID
	prior := append([]Turn(nil), sess.Turns...)
	m.mu.Unlock()

	snapshot, err := m.store.Get(ctx, patientID)
	if err != nil {
		m.clearInFlight(sessionID)
		return nil, err
	}

	turn, err := m.runTurn(ctx, sessionID, dictation, snapshot.Snapshot(), prior)

	m.mu.Lock()
	defer m.mu.Unlock()
	sess.inFlight = false
	if err != nil {
		return nil, err
	}
	sess.Turns = append(sess.Turns, *turn)
	sess.UpdatedAt = m.now()
	return turn, nil
}

// Apply hands the session's latest valid diff to the merge engine and marks
// the session applied. Fails with ErrNoDiffAvailable if the latest turn
// produced no diff.
func (m *SessionManager) Apply(ctx context.Context, sessionID uuid.UUID) (*record.Patient, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrUnknownSession
	}
	if sess.terminal() {
		m.mu.Unlock()
		return nil, ErrSessionTerminal
	}
	if sess.inFlight {
		m.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	diff := sess.LatestDiff()
	if diff == nil {
		m.mu.Unlock()
		return nil, ErrNoDiffAvailable
	}
	patientID := sess.PatientID
	dictation := sess.Turns[len(sess.Turns)-1].Dictation
	sess.inFlight = true
	m.mu.Unlock()

	patient, err := m.engine.Apply(ctx, patientID, diff, dictation, "session")
	if err != nil {
		m.clearInFlight(sessionID)
		return nil, err
	}

	m.mu.Lock()
	sess.inFlight = false
	sess.Outcome = SessionApplied
	sess.UpdatedAt = m.now()
	if m.byPatient[patientID] == sessionID {
		delete(m.byPatient, patientID)
	}
	m.mu.Unlock()
	return patient, nil
}

// Discard marks the session discarded. Discarding an already-discarded
// session is a no-op, not an error; discarding an applied session is.
func (m *SessionManager) Discard(sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	switch sess.Outcome {
	case SessionDiscarded:
		return nil
	case SessionApplied:
		return ErrSessionTerminal
	}
	sess.Outcome = SessionDiscarded
	sess.UpdatedAt = m.now()
	if m.byPatient[sess.PatientID] == sessionID {
		delete(m.byPatient, sess.PatientID)
	}
	return nil
}

// Get returns a copy of the session.
func (m *SessionManager) Get(sessionID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	out := sess.Session
	out.Turns = append([]Turn(nil), sess.Turns...)
	return &out, nil
}

// Sweep removes terminal sessions whose last activity is older than the
// retention window. Returns how many were removed.
func (m *SessionManager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, sess := range m.sessions {
		if sess.terminal() && now.Sub(sess.UpdatedAt) > m.retention {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps on an interval until the context is cancelled.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now.UTC()); n > 0 {
				m.logger.Debug().Int("removed", n).Msg("swept terminal sessions")
			}
		}
	}
}

func (m *SessionManager) clearInFlight(sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.inFlight = false
	}
}

// runTurn makes the single interpreter call for a turn and validates the
// returned diff. A diff that fails validation is recorded as a turn with no
// diff so the clinician sees why and can refine or discard.
func (m *SessionManager) runTurn(ctx context.Context, sessionID uuid.UUID, dictation string, snapshot *record.Patient, prior []Turn) (*Turn, error) {
	result, err := m.interp.Interpret(ctx, InterpretRequest{
		Dictation:  dictation,
		Snapshot:   snapshot,
		PriorTurns: prior,
	})
	if err != nil {
		m.logger.Warn().Err(err).
			Str("session_id", sessionID.String()).
			Msg("interpretation failed")
		return nil, err
	}

	turn := Turn{
		Dictation:        dictation,
		Diff:             result.Diff,
		AssistantMessage: result.AssistantMessage,
		HumanSummary:     result.HumanSummary,
		At:               m.now(),
	}
	if result.Diff != nil {
		if verr := ValidateDiff(result.Diff, snapshot); verr != nil {
			m.logger.Warn().Err(verr).
				Str("session_id", sessionID.String()).
				Msg("interpreter produced an invalid diff")
			turn.Diff = nil
			if turn.AssistantMessage != "" {
				turn.AssistantMessage += "\n\n"
			}
			turn.AssistantMessage += "The proposed changes could not be validated: " + verr.Error()
		}
	}
	return &turn, nil
}
