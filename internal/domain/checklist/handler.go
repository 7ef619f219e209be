package checklist

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wardround/wardround/internal/domain/record"
	"github.com/wardround/wardround/internal/platform/auth"
)

type Handler struct {
	sched *Scheduler
	reg   *Registry
}

func NewHandler(sched *Scheduler, reg *Registry) *Handler {
	return &Handler{sched: sched, reg: reg}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("admin", "physician", "nurse")
	g := api.Group("", role)

	g.POST("/patients/:id/checklist/evaluate", h.Evaluate)
	g.GET("/checklist/templates", h.ListTemplates)
}

// Evaluate re-derives the due checklist tasks for a patient. The UI calls
// this on its refresh tick; it is safe to call at any time.
func (h *Handler) Evaluate(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	added, err := h.sched.Evaluate(c.Request().Context(), patientID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if added == nil {
		added = []record.Task{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"added": added})
}

func (h *Handler) ListTemplates(c echo.Context) error {
	out := make(map[string][]Entry, len(h.reg.Keys()))
	for _, key := range h.reg.Keys() {
		out[key] = h.reg.Template(key)
	}
	return c.JSON(http.StatusOK, out)
}
