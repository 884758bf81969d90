package handler

import (
	"net/http"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/audit"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/middleware"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/labstack/echo/v4"
)

// EventHandler exposes the audit log to admins.
type EventHandler struct {
	recorder *audit.Recorder
}

func NewEventHandler(recorder *audit.Recorder) *EventHandler {
	return &EventHandler{recorder: recorder}
}

// List handles GET /api/events?limit=&offset=&type=
func (h *EventHandler) List(c echo.Context) error {
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}

	events, err := h.recorder.List(c.Request().Context(), user, audit.Page{
		Limit:  intQuery(c, "limit"),
		Offset: intQuery(c, "offset"),
		Type:   model.EventType(c.QueryParam("type")),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}
