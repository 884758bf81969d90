package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PerUserRateLimiter limits requests per authenticated user, falling back to the client IP.
// It must run after JWTAuthMiddleware.
func PerUserRateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if user, ok := Requester(c); ok {
				return "user:" + strconv.FormatUint(uint64(user.ID), 10), nil
			}
			return "ip:" + c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logger.FromEcho(c).Warn("Rate limit exceeded", zap.String("identifier", identifier))
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "Too many requests, please slow down"})
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "Could not identify the caller"})
		},
	})
}
