package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"Lifeline/internal/geo"
)

// 警报状态。active 可转移到 resolved 或 cancelled，终态不再转移。
// cancelled 在模式中保留但当前没有操作会触达它。
const (
	AlertStatusActive    = "active"
	AlertStatusResolved  = "resolved"
	AlertStatusCancelled = "cancelled"
)

// DefaultSOSMessage 触发时未携带消息的默认文案
const DefaultSOSMessage = "Please help me"

// SOSAlert 一次求助警报。victim 创建后不可变，记录永不物理删除。
type SOSAlert struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	VictimID string `gorm:"size:36;index" json:"victimId"`

	Location geo.Point `gorm:"type:text" json:"location"` // 持久化为 [lng, lat]
	Message  string    `gorm:"size:512" json:"message"`
	Status   string    `gorm:"size:16;index;default:active" json:"status"`

	ResolvedByID *string `gorm:"size:36" json:"resolvedBy"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate 生成ID并补默认值
func (a *SOSAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AlertStatusActive
	}
	if a.Message == "" {
		a.Message = DefaultSOSMessage
	}
	return nil
}

// CanTransition 状态机转移表。resolved 上的重复 resolve 是历史行为，
// 在服务层单独放行，这里只描述严格的转移。
func CanTransition(from, to string) bool {
	if from == AlertStatusActive {
		return to == AlertStatusResolved || to == AlertStatusCancelled
	}
	return false
}

// SOSResponder 警报与响应者的关联表。
// (alert_id, user_id) 唯一约束保证同一响应者不会被重复记录。
type SOSResponder struct {
	ID      uint   `gorm:"primaryKey"`
	AlertID string `gorm:"size:36;uniqueIndex:idx_alert_user" json:"alertId"`
	UserID  string `gorm:"size:36;uniqueIndex:idx_alert_user" json:"userId"`

	CreatedAt time.Time `json:"createdAt"`
}
