package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/account"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/audit"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/lifecycle"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const internalErrorText = "Something went wrong, please try again"

var lifecycleStatus = map[lifecycle.Kind]int{
	lifecycle.KindValidation: http.StatusBadRequest,
	lifecycle.KindPermission: http.StatusForbidden,
	lifecycle.KindNotFound:   http.StatusNotFound,
	lifecycle.KindState:      http.StatusConflict,
	lifecycle.KindDependency: http.StatusInternalServerError,
}

// respondError writes err as {"error": message} with a status matching its kind.
// Messages of unclassified errors never reach the client.
func respondError(c echo.Context, err error) error {
	log := logger.FromEcho(c)

	var le *lifecycle.Error
	if errors.As(err, &le) {
		status := lifecycleStatus[le.Kind]
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, echo.Map{"error": le.Message})
	}

	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, account.ErrAdminOnly), errors.Is(err, audit.ErrAdminOnly):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, account.ErrUserNotFound), errors.Is(err, account.ErrHouseholdNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, account.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, account.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}

	log.Error("Request failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": internalErrorText})
}

// unauthenticated answers requests that reached a handler without a requester.
func unauthenticated(c echo.Context) error {
	logger.FromEcho(c).Error("Requester missing from context")
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
}

func idParam(c echo.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func intQuery(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}
