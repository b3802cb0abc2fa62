package handlers

import (
	"gorm.io/gorm"

	"Lifeline/internal/auth"
	"Lifeline/internal/presence"
	"Lifeline/internal/sos"
	"Lifeline/pkg/websocket"
)

// Handlers 聚合所有HTTP处理器依赖
type Handlers struct {
	db       *gorm.DB
	svc      *sos.Service
	gate     *auth.Gate
	tokens   *auth.Manager
	hub      *websocket.Hub
	registry *presence.Registry
	ws       *websocket.Handler
}

// New 创建Handlers
func New(db *gorm.DB, svc *sos.Service, gate *auth.Gate, tokens *auth.Manager,
	hub *websocket.Hub, registry *presence.Registry) *Handlers {
	return &Handlers{
		db:       db,
		svc:      svc,
		gate:     gate,
		tokens:   tokens,
		hub:      hub,
		registry: registry,
		ws:       websocket.NewHandler(hub),
	}
}
