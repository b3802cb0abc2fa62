package handlers

import (
	"github.com/gin-gonic/gin"

	"Lifeline/internal/auth"
	"Lifeline/pkg/response"
	"Lifeline/pkg/websocket"
)

// HandleWebSocket 升级实时连接（认证后）
// GET /ws
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	user := auth.CurrentUser(c)
	websocket.HandleWebSocket(h.hub, c.Writer, c.Request, user.ID)
}

// GetPresence 在线登记表快照（诊断用，管理员）
// GET /ws/presence
func (h *Handlers) GetPresence(c *gin.Context) {
	snapshot := h.registry.Snapshot()
	response.OK(c, gin.H{"count": len(snapshot), "helpers": snapshot})
}
