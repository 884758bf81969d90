package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/account"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/jwtutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers map[uint]model.User

func (s stubUsers) Load(_ context.Context, id uint) (*model.User, error) {
	if id == 500 {
		return nil, errors.New("connection refused")
	}
	u, ok := s[id]
	if !ok {
		return nil, account.ErrUserNotFound
	}
	return &u, nil
}

func newAuthServer(t *testing.T, users stubUsers) (*echo.Echo, *jwtutil.JWTUtil) {
	t.Helper()
	tokens := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "k", ExpirationHours: 1})
	e := echo.New()
	e.Use(RequestIDMiddleware())
	g := e.Group("/api", JWTAuthMiddleware(tokens, users))
	g.GET("/me", func(c echo.Context) error {
		u, ok := Requester(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": u.ID, "role": u.Role})
	})
	return e, tokens
}

func get(e *echo.Echo, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthMiddleware(t *testing.T) {
	users := stubUsers{7: {ID: 7, Username: "guard", Role: model.RoleGuard}}
	e, tokens := newAuthServer(t, users)

	rec := get(e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = get(e, "Token abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(e, "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the role claim is stale; the stored record wins
	token, err := tokens.GenerateToken(7, "guard", string(model.RoleResident), nil)
	require.NoError(t, err)
	rec = get(e, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"role":"GUARD"}`, rec.Body.String())

	gone, err := tokens.GenerateToken(8, "gone", string(model.RoleAdmin), nil)
	require.NoError(t, err)
	rec = get(e, "Bearer "+gone)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	broken, err := tokens.GenerateToken(500, "x", string(model.RoleAdmin), nil)
	require.NoError(t, err)
	rec = get(e, "Bearer "+broken)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddleware_KeepsIncomingID(t *testing.T) {
	e := echo.New()
	e.Use(RequestIDMiddleware())
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(echo.HeaderXRequestID))
}

func TestPerUserRateLimiter(t *testing.T) {
	e := echo.New()
	e.POST("/chat", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if id := c.Request().Header.Get("X-User"); id == "1" {
					SetRequester(c, model.User{ID: 1})
				} else {
					SetRequester(c, model.User{ID: 2})
				}
				return next(c)
			}
		},
		PerUserRateLimiter(0.001, 2),
	)

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("1"))
	assert.Equal(t, http.StatusOK, send("1"))
	assert.Equal(t, http.StatusTooManyRequests, send("1"))
	assert.Equal(t, http.StatusOK, send("2"))
}
