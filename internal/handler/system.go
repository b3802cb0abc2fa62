package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Lifeline/pkg/middleware"
	"Lifeline/pkg/response"
)

// UpdateRateLimiterConfig 动态更新限流配置（管理员）
// POST /api/admin/rate-limiter
func (h *Handlers) UpdateRateLimiterConfig(c *gin.Context) {
	var config middleware.RateLimiterConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}

	middleware.SetRateLimiterConfig(config)
	response.Success(c, "rate limiter config updated", nil)
}

// HealthCheck 健康检查：数据库连通性 + 实时通道状态
// GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "up",
		"websocket": gin.H{
			"connections": h.hub.GetConnectionCount(),
		},
	})
}
