package wardupdate

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wardround/wardround/internal/domain/record"
	"github.com/wardround/wardround/internal/platform/auth"
)

type Handler struct {
	sessions *SessionManager
	engine   *Engine
}

func NewHandler(sessions *SessionManager, engine *Engine) *Handler {
	return &Handler{sessions: sessions, engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("admin", "physician", "nurse")
	g := api.Group("", role)

	g.POST("/patients/:id/ward-updates", h.StartSession)
	g.GET("/ward-updates/:id", h.GetSession)
	g.POST("/ward-updates/:id/turns", h.ContinueSession)
	g.POST("/ward-updates/:id/apply", h.ApplySession)
	g.POST("/ward-updates/:id/discard", h.DiscardSession)

	g.POST("/patients/:id/diff", h.ApplyDirectDiff)
	g.POST("/patients/:id/undo", h.UndoLast)
}

// StartSession begins a dictation session. Body: {"dictation": "...",
// "discard_open": bool}. With discard_open false a patient that already has
// an open session yields 409.
func (h *Handler) StartSession(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var body struct {
		Dictation   string `json:"dictation"`
		DiscardOpen bool   `json:"discard_open"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Dictation == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "dictation is required")
	}

	sess, err := h.sessions.Start(c.Request().Context(), patientID, body.Dictation, body.DiscardOpen)
	if err != nil {
		return wardUpdateError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	sess, err := h.sessions.Get(id)
	if err != nil {
		return wardUpdateError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ContinueSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	var body struct {
		Dictation string `json:"dictation"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Dictation == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "dictation is required")
	}

	turn, err := h.sessions.Continue(c.Request().Context(), id, body.Dictation)
	if err != nil {
		return wardUpdateError(err)
	}
	return c.JSON(http.StatusOK, turn)
}

func (h *Handler) ApplySession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	patient, err := h.sessions.Apply(c.Request().Context(), id)
	if err != nil {
		return wardUpdateError(err)
	}
	return c.JSON(http.StatusOK, patient)
}

func (h *Handler) DiscardSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	if err := h.sessions.Discard(id); err != nil {
		return wardUpdateError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ApplyDirectDiff is the session-less path: a diff built by the caller (a
// plain text-box form, a script) applied in one shot.
func (h *Handler) ApplyDirectDiff(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var d Diff
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patient, err := h.engine.ApplyQuick(c.Request().Context(), patientID, &d, "direct")
	if err != nil {
		return wardUpdateError(err)
	}
	return c.JSON(http.StatusOK, patient)
}

func (h *Handler) UndoLast(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	patient, err := h.engine.UndoLast(c.Request().Context(), patientID)
	if err != nil {
		return wardUpdateError(err)
	}
	return c.JSON(http.StatusOK, patient)
}

// wardUpdateError maps the engine's error taxonomy onto HTTP statuses with
// structured bodies: {"kind": ..., "message": ...}.
func wardUpdateError(err error) error {
	var verr *ValidationError
	var serr *StaleDiffError
	var ierr *InterpretError

	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, errBody(string(verr.Kind), verr.Error()))
	case errors.As(err, &serr):
		return echo.NewHTTPError(http.StatusConflict, errBody("stale-diff-conflict", serr.Error()))
	case errors.Is(err, ErrInterpretTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, errBody("interpretation-timeout", err.Error()))
	case errors.As(err, &ierr):
		return echo.NewHTTPError(http.StatusBadGateway, errBody("interpretation-error", err.Error()))
	case errors.Is(err, ErrUnknownSession):
		return echo.NewHTTPError(http.StatusNotFound, errBody("unknown-session", err.Error()))
	case errors.Is(err, ErrSessionTerminal):
		return echo.NewHTTPError(http.StatusConflict, errBody("session-already-terminal", err.Error()))
	case errors.Is(err, ErrSessionAlreadyOpen):
		return echo.NewHTTPError(http.StatusConflict, errBody("session-already-open", err.Error()))
	case errors.Is(err, ErrTurnInFlight):
		return echo.NewHTTPError(http.StatusConflict, errBody("turn-in-flight", err.Error()))
	case errors.Is(err, ErrNoDiffAvailable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, errBody("no-diff-available", err.Error()))
	case errors.Is(err, ErrNothingToUndo):
		return echo.NewHTTPError(http.StatusConflict, errBody("nothing-to-undo", err.Error()))
	case errors.Is(err, record.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, errBody("patient-not-found", err.Error()))
	}
	return echo.NewHTTPError(http.StatusInternalServerError, errBody("internal", err.Error()))
}

func errBody(kind, message string) map[string]string {
	return map[string]string{"kind": kind, "message": message}
}
