package handler

import (
	"errors"
	"net/http"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/copilot"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/middleware"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ChatHandler serves the visitor assistant.
type ChatHandler struct {
	orchestrator *copilot.Orchestrator
}

func NewChatHandler(orchestrator *copilot.Orchestrator) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator}
}

// Chat handles POST /api/chat with {"history": [{"role": "user", "text": "..."}]}.
func (h *ChatHandler) Chat(c echo.Context) error {
	log := logger.FromEcho(c)
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}

	var req struct {
		History []copilot.Turn `json:"history"`
	}
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse chat request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	reply, err := h.orchestrator.Respond(c.Request().Context(), user, req.History)
	if errors.Is(err, copilot.ErrEmptyHistory) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Chat exchange completed", zap.Int("actions", len(reply.Actions)))
	return c.JSON(http.StatusOK, reply)
}
