package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler WebSocket HTTP处理器
type Handler struct {
	hub *Hub
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
	}
}

// GetStats 获取WebSocket统计信息
func (h *Handler) GetStats(c *gin.Context) {
	stats := gin.H{
		"total_connections":   h.hub.GetConnectionCount(),
		"max_connections":     h.hub.config.MaxConnections,
		"heartbeat_interval":  h.hub.config.HeartbeatInterval.String(),
		"connection_timeout":  h.hub.config.ConnectionTimeout.String(),
		"message_buffer_size": h.hub.config.MessageBufferSize,
		"enable_compression":  h.hub.config.EnableCompression,
		"message_queue_size":  h.hub.config.MessageQueueSize,
		"read_buffer_size":    h.hub.config.ReadBufferSize,
		"write_buffer_size":   h.hub.config.WriteBufferSize,
		"max_message_size":    h.hub.config.MaxMessageSize,
		"shard_count":         h.hub.config.ShardCount,
		"broadcast_workers":   h.hub.config.BroadcastWorkerCount,
		"drop_on_full":        h.hub.config.DropOnFull,
	}

	c.JSON(http.StatusOK, stats)
}

// HealthCheck WebSocket健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	// 检查Hub是否正常运行
	if h.hub.ctx.Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"error":   "WebSocket Hub已关闭",
			"details": h.hub.ctx.Err().Error(),
		})
		return
	}

	// 检查连接数是否正常
	totalConnections := h.hub.GetConnectionCount()
	maxConnections := h.hub.config.MaxConnections

	status := "healthy"
	if totalConnections >= maxConnections*9/10 { // 90%以上认为警告
		status = "warning"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"total_connections": totalConnections,
		"max_connections":   maxConnections,
		"connection_usage":  float64(totalConnections) / float64(maxConnections) * 100,
		"hub_running":       true,
		"timestamp":         time.Now().Unix(),
	})
}
