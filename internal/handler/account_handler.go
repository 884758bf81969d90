package handler

import (
	"net/http"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/account"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/middleware"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AccountHandler serves login, user administration and device registration.
type AccountHandler struct {
	accounts *account.Service
}

func NewAccountHandler(accounts *account.Service) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Login handles POST /auth/login
func (h *AccountHandler) Login(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	session, err := h.accounts.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// Me returns the requester's own record.
func (h *AccountHandler) Me(c echo.Context) error {
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AccountHandler) ListUsers(c echo.Context) error {
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}
	users, err := h.accounts.ListUsers(c.Request().Context(), user)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

func (h *AccountHandler) CreateUser(c echo.Context) error {
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}
	var req account.NewUser
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	created, err := h.accounts.CreateUser(c.Request().Context(), user, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// UpdateUser handles PATCH /api/users/:id for role and household changes.
func (h *AccountHandler) UpdateUser(c echo.Context) error {
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}
	id, ok := idParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req account.UserUpdate
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	updated, err := h.accounts.UpdateUser(c.Request().Context(), user, id, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *AccountHandler) CreateHousehold(c echo.Context) error {
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}
	var req struct {
		FlatNumber string `json:"flat_number"`
		Name       string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	household, err := h.accounts.CreateHousehold(c.Request().Context(), user, req.FlatNumber, req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, household)
}

// RegisterDevice handles POST /api/devices. A repeated registration answers 200 instead of 201.
func (h *AccountHandler) RegisterDevice(c echo.Context) error {
	user, ok := middleware.Requester(c)
	if !ok {
		return unauthenticated(c)
	}
	var req struct {
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	device, created, err := h.accounts.RegisterDevice(c.Request().Context(), user, req.Token, req.Platform)
	if err != nil {
		return respondError(c, err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, device)
}
