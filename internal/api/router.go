package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/gateway"
)

// Dependencies holds all handler instances and middleware for route wiring.
type Dependencies struct {
	Auth      *AuthHandler
	Users     *UserHandler
	Channels  *ChannelHandler
	Members   *MemberHandler
	Messages  *MessageHandler
	Reactions *ReactionHandler
	Uploads   *UploadHandler
	Gateway   *gateway.Manager

	TokenService *auth.TokenService
	RateLimiter  RateLimiter
}

// SetupRouter registers all routes on the Echo instance.
func SetupRouter(e *echo.Echo, deps *Dependencies) {
	e.Validator = NewRequestValidator()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// WebSocket gateway
	e.GET("/gateway", deps.Gateway.HandleWebSocket)

	v1 := e.Group("/api/v1")

	// Auth routes: no auth middleware, stricter rate limit
	authGroup := v1.Group("/auth", RateLimitMiddleware(deps.RateLimiter, authLimit))
	authGroup.POST("/register", deps.Auth.Register)
	authGroup.POST("/login", deps.Auth.Login)
	authGroup.POST("/refresh", deps.Auth.Refresh)

	// Protected routes require JWT auth + general rate limit
	protected := v1.Group("", deps.TokenService.Middleware(),
		RateLimitMiddleware(deps.RateLimiter, apiLimit),
	)

	protected.POST("/auth/logout", deps.Auth.Logout)

	// Users
	protected.GET("/users/@me", deps.Users.GetMe)
	protected.PATCH("/users/@me", deps.Users.UpdateMe)
	protected.PUT("/users/@me/avatar", deps.Users.UploadAvatar)

	// Channels
	protected.GET("/channels", deps.Channels.ListChannels)
	protected.POST("/channels", deps.Channels.CreateChannel)
	protected.POST("/channels/direct", deps.Channels.OpenDirect)
	protected.GET("/channels/:id", deps.Channels.GetChannel)

	// Members
	protected.PUT("/channels/:id/members/:user_id", deps.Members.AddMember)
	protected.DELETE("/channels/:id/members/:user_id", deps.Members.RemoveMember)

	// Messages
	protected.GET("/channels/:id/messages", deps.Messages.GetMessages)
	protected.POST("/channels/:id/messages", deps.Messages.SendMessage,
		RateLimitMiddleware(deps.RateLimiter, composeLimit),
	)
	protected.PATCH("/channels/:id/messages/:message_id", deps.Messages.EditMessage)

	// Reactions
	protected.PUT("/channels/:id/messages/:message_id/reactions/:emoji", deps.Reactions.AddReaction)
	protected.DELETE("/channels/:id/messages/:message_id/reactions/:emoji", deps.Reactions.RemoveReaction)

	// Attachments
	protected.POST("/channels/:id/attachments", deps.Uploads.Upload)
}
