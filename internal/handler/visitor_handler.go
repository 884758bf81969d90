package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/audit"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/lifecycle"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/middleware"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// VisitorHandler exposes the visitor lifecycle over HTTP.
type VisitorHandler struct {
	engine   *lifecycle.Engine
	recorder *audit.Recorder
}

func NewVisitorHandler(engine *lifecycle.Engine, recorder *audit.Recorder) *VisitorHandler {
	return &VisitorHandler{engine: engine, recorder: recorder}
}

type createVisitorRequest struct {
	Names         []string   `json:"names"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	Purpose       string     `json:"purpose"`
	ScheduleHint  string     `json:"schedule_hint"`
	ScheduledTime *time.Time `json:"scheduled_time"`
}

// Create handles POST /api/visitors
func (h *VisitorHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}

	var req createVisitorRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse visitor request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	names := req.Names
	if req.Name != "" {
		names = append(names, req.Name)
	}

	result, err := h.engine.Create(c.Request().Context(), user, lifecycle.CreateInput{
		Names:        names,
		Phone:        req.Phone,
		Purpose:      req.Purpose,
		ScheduleHint: req.ScheduleHint,
		ScheduledAt:  req.ScheduledTime,
	})
	if err != nil {
		return respondError(c, err)
	}

	resp := echo.Map{"visitors": result.Visitors}
	if result.ScheduleNote != "" {
		resp["schedule_note"] = result.ScheduleNote
	}
	return c.JSON(http.StatusCreated, resp)
}

// List handles GET /api/visitors?status=&all=&limit=
func (h *VisitorHandler) List(c echo.Context) error {
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}

	includeClosed, _ := strconv.ParseBool(c.QueryParam("all"))
	visitors, err := h.engine.List(c.Request().Context(), user, lifecycle.ListQuery{
		Status:        c.QueryParam("status"),
		IncludeClosed: includeClosed,
		Limit:         intQuery(c, "limit"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"visitors": visitors, "count": len(visitors)})
}

// Get handles GET /api/visitors/:id. The response carries the visitor's audit history.
func (h *VisitorHandler) Get(c echo.Context) error {
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}
	id, ok := idParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid visitor id"})
	}

	visitor, err := h.engine.Get(c.Request().Context(), user, id)
	if err != nil {
		return respondError(c, err)
	}
	history, err := h.recorder.ForVisitor(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"visitor": visitor, "history": history})
}

// Approve moves a PENDING visitor to APPROVED.
func (h *VisitorHandler) Approve(c echo.Context) error {
	return h.transition(c, func(c echo.Context, id uint) (*model.Visitor, error) {
		return h.engine.Approve(c.Request().Context(), mustRequester(c), id)
	})
}

// Deny accepts an optional {"reason": "..."} body.
func (h *VisitorHandler) Deny(c echo.Context) error {
	return h.transition(c, func(c echo.Context, id uint) (*model.Visitor, error) {
		var req struct {
			Reason string `json:"reason"`
		}
		if c.Request().ContentLength != 0 {
			if err := c.Bind(&req); err != nil {
				return nil, &lifecycle.Error{Kind: lifecycle.KindValidation, Message: "invalid request", Err: err}
			}
		}
		return h.engine.Deny(c.Request().Context(), mustRequester(c), id, req.Reason)
	})
}

// CheckIn records arrival of an APPROVED visitor.
func (h *VisitorHandler) CheckIn(c echo.Context) error {
	return h.transition(c, func(c echo.Context, id uint) (*model.Visitor, error) {
		return h.engine.CheckIn(c.Request().Context(), mustRequester(c), id)
	})
}

// CheckOut records departure of a CHECKED_IN visitor.
func (h *VisitorHandler) CheckOut(c echo.Context) error {
	return h.transition(c, func(c echo.Context, id uint) (*model.Visitor, error) {
		return h.engine.CheckOut(c.Request().Context(), mustRequester(c), id)
	})
}

func (h *VisitorHandler) transition(c echo.Context, op func(echo.Context, uint) (*model.Visitor, error)) error {
	if _, ok := middleware.Requester(c); !ok {
		return unauthenticated(c)
	}
	id, ok := idParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid visitor id"})
	}

	visitor, err := op(c, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"visitor": visitor})
}

// mustRequester is only called after transition has checked the requester is present.
func mustRequester(c echo.Context) model.User {
	user, _ := middleware.Requester(c)
	return user
}
