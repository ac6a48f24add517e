// internal/app/router.go
package app

import (
	"context"
	"net/http"
	"time"

	authDomain "stockwatch/internal/domain/auth"
	authHandler "stockwatch/internal/handlers/auth"
	financeHandler "stockwatch/internal/handlers/finance"
	notifyHandler "stockwatch/internal/handlers/notification"
	researchHandler "stockwatch/internal/handlers/research"
	wsHandler "stockwatch/internal/handlers/websocket"
	"stockwatch/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	AuthHandler     *authHandler.AuthHandler
	NotifHandler    *notifyHandler.NotificationHandler
	FinanceHandler  *financeHandler.FinanceHandler
	ResearchHandler *researchHandler.ResearchHandler
	WSHandler       *wsHandler.WebSocketHandler
	AuthMiddleware  *middleware.AuthMiddleware
	Health          Pinger
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	// ==================== Health Check ====================
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if h.Health != nil {
			if err := h.Health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Finance proxy ====================
	finance := r.Group("/api")
	{
		finance.GET("/quote/:symbol", h.FinanceHandler.Quote)
		finance.GET("/historical/:symbol", h.FinanceHandler.Historical)
		finance.GET("/market-indices", h.FinanceHandler.MarketIndices)
		finance.GET("/top-movers", h.FinanceHandler.TopMovers)

		// Research
		finance.GET("/news", h.ResearchHandler.News)
		finance.GET("/overview/:symbol", h.ResearchHandler.Overview)
		finance.POST("/chat", h.ResearchHandler.Chat)
	}

	api := r.Group("/api/v1")

	// ==================== WebSocket ====================
	api.GET("/ws/notifications", h.WSHandler.HandleConnection)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/register", h.AuthHandler.Register)
		authPublic.POST("/login", h.AuthHandler.Login)
		authPublic.POST("/refresh", h.AuthHandler.Refresh)
		authPublic.POST("/reset-password-request", h.AuthHandler.RequestPasswordReset)
		authPublic.POST("/reset-password", h.AuthHandler.ResetPassword)

		// An expired access token must not block logout; its jti is
		// blacklisted when it still validates.
		authPublic.POST("/logout", h.AuthMiddleware.OptionalAuth(), h.AuthHandler.Logout)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.POST("/revoke-all-sessions", h.AuthHandler.RevokeAllSessions)
		authProtected.POST("/change-password", h.AuthHandler.ChangePassword)
		authProtected.GET("/me", h.AuthHandler.Me)
		authProtected.PATCH("/preferences", h.AuthHandler.UpdatePreferences)
	}

	// ==================== Notifications ====================
	notifications := api.Group("/notifications")
	notifications.Use(h.AuthMiddleware.Auth())
	{
		notifications.GET("/history", h.NotifHandler.GetHistory)
		notifications.POST("/:id/read", h.NotifHandler.MarkAsRead)
		notifications.POST("/mark-all-read", h.NotifHandler.MarkAllAsRead)
		notifications.POST("/clear", h.NotifHandler.Clear)

		notifications.GET("/preferences", h.NotifHandler.GetPreferences)
		notifications.PATCH("/preferences", h.NotifHandler.UpdatePreferences)

		alerts := notifications.Group("/price-alerts")
		alerts.Use(h.AuthMiddleware.RequirePermission(authDomain.PermManageAlerts))
		{
			alerts.GET("", h.NotifHandler.ListPriceAlerts)
			alerts.POST("", h.NotifHandler.CreatePriceAlert)
			alerts.PATCH("/:id", h.NotifHandler.UpdatePriceAlert)
			alerts.DELETE("/:id", h.NotifHandler.DeletePriceAlert)
		}
	}

	// ==================== ADMIN ROUTES ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.POST("/notifications", h.NotifHandler.CreateNotification)
		admin.GET("/ws/stats", h.WSHandler.Stats)
	}
}
