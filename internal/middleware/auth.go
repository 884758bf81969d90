package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/account"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/jwtutil"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const requesterKey = "requester"

// UserLoader resolves the account behind a token.
type UserLoader interface {
	Load(ctx context.Context, id uint) (*model.User, error)
}

// JWTAuthMiddleware validates the bearer token and stores the current user record as the
// requester. Role and household always come from the database, not from the token.
func JWTAuthMiddleware(jwtUtil *jwtutil.JWTUtil, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				log.Warn("Missing authorization header")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Missing authorization header"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn("Invalid authorization header format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid authorization header format"})
			}

			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid or expired token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired token"})
			}

			user, err := users.Load(c.Request().Context(), claims.UserID)
			if errors.Is(err, account.ErrUserNotFound) {
				log.Warn("Token for deleted user", zap.Uint("user_id", claims.UserID))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired token"})
			}
			if err != nil {
				log.Error("Failed to load requester", zap.Uint("user_id", claims.UserID), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Could not authenticate right now, please try again"})
			}

			c.Set(requesterKey, *user)
			logger.SetEcho(c, log.With(zap.Uint("user_id", user.ID), zap.String("role", string(user.Role))))

			return next(c)
		}
	}
}

// Requester returns the authenticated user stored by JWTAuthMiddleware.
func Requester(c echo.Context) (model.User, bool) {
	user, ok := c.Get(requesterKey).(model.User)
	return user, ok
}

// SetRequester stores user as the requester. Used by tests and internal callers.
func SetRequester(c echo.Context, user model.User) {
	c.Set(requesterKey, user)
}
