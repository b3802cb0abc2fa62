package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Lifeline/pkg/middleware"
	"Lifeline/pkg/websocket"
)

// RegisterRoutes 统一注册路由
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RateLimiterMiddleware())

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 实时通道
	r.GET(websocket.RouteWebSocket, h.gate.AuthRequired(), h.HandleWebSocket)
	r.GET(websocket.RouteWebSocketStats, h.ws.GetStats)
	r.GET(websocket.RouteWebSocketHealth, h.ws.HealthCheck)
	r.GET("/ws/presence", h.gate.AuthRequired(), h.gate.AdminRequired(), h.GetPresence)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/logout", h.gate.AuthRequired(), h.Logout)
	}

	users := api.Group("/users", h.gate.AuthRequired())
	{
		users.GET("", h.gate.AdminRequired(), h.ListUsers)
		users.GET("/profile", h.GetProfile)
		users.PUT("/profile", h.UpdateProfile)
		users.PUT("/location", h.UpdateLocation)
		users.POST("/toggleResponder", h.ToggleResponder)
	}

	sosGroup := api.Group("/sos", h.gate.AuthRequired())
	{
		sosGroup.POST("/trigger", h.TriggerSOS)
		sosGroup.GET("/nearby", h.GetNearbyHelpers)
		sosGroup.POST("/accept/:sosId", h.AcceptSOS)
		sosGroup.POST("/resolve/:sosId", h.ResolveSOS)
		sosGroup.GET("/active", h.GetActiveSOS)
		sosGroup.GET("/all", h.gate.AdminRequired(), h.GetAllSOSAlerts)
	}

	admin := api.Group("/admin", h.gate.AuthRequired(), h.gate.AdminRequired())
	{
		admin.POST("/rate-limiter", h.UpdateRateLimiterConfig)
	}
}
