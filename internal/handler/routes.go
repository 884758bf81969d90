package handler

import (
	"github.com/labstack/echo/v4"
)

// Routes groups the handlers and middleware mounted by Register.
type Routes struct {
	Visitors    *VisitorHandler
	Accounts    *AccountHandler
	Events      *EventHandler
	Chat        *ChatHandler
	Auth        echo.MiddlewareFunc
	ChatLimiter echo.MiddlewareFunc
}

// Register mounts the public and authenticated routes on e.
func Register(e *echo.Echo, r Routes) {
	e.GET("/health", HealthCheck)

	auth := e.Group("/auth")
	auth.POST("/login", r.Accounts.Login)

	api := e.Group("/api", r.Auth)
	api.GET("/me", r.Accounts.Me)

	visitors := api.Group("/visitors")
	visitors.GET("", r.Visitors.List)
	visitors.POST("", r.Visitors.Create)
	visitors.GET("/:id", r.Visitors.Get)
	visitors.POST("/:id/approve", r.Visitors.Approve)
	visitors.POST("/:id/deny", r.Visitors.Deny)
	visitors.POST("/:id/checkin", r.Visitors.CheckIn)
	visitors.POST("/:id/checkout", r.Visitors.CheckOut)

	api.GET("/events", r.Events.List)

	if r.ChatLimiter != nil {
		api.POST("/chat", r.Chat.Chat, r.ChatLimiter)
	} else {
		api.POST("/chat", r.Chat.Chat)
	}

	api.POST("/devices", r.Accounts.RegisterDevice)

	users := api.Group("/users")
	users.GET("", r.Accounts.ListUsers)
	users.POST("", r.Accounts.CreateUser)
	users.PATCH("/:id", r.Accounts.UpdateUser)

	api.POST("/households", r.Accounts.CreateHousehold)
}
