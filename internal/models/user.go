package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"Lifeline/internal/geo"
)

// User 用户（身份）实体。核心只读写 SOS 相关字段，资料类字段由外围系统维护。
type User struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Name     string `gorm:"size:128" json:"name"`
	Email    string `gorm:"size:255;uniqueIndex" json:"email"`
	Phone    string `gorm:"size:32" json:"phone"`
	Password string `gorm:"size:128" json:"-"` // bcrypt哈希，永不序列化

	IsAdmin  bool `json:"isAdmin"`
	IsBanned bool `json:"isBanned"`

	// SOS 相关字段
	IsResponder bool       `json:"isResponder"` // 是否愿意响应求助
	CanSendSOS  bool       `gorm:"default:true" json:"canSendSOS"`
	LastSOSAt   *time.Time `json:"lastSOSAt"`

	// 位置字段，持久化为 [lng, lat]
	Location            geo.Point  `gorm:"type:text" json:"location"`
	LastKnownLocationAt *time.Time `json:"lastKnownLocationAt"`

	IsOnline bool `json:"isOnline"` // 实时在线状态

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate 生成ID并规范化邮箱
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return nil
}

// BeforeSave 邮箱统一小写
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return nil
}

// Contact 对外暴露的身份投影，绝不包含凭证
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// AsContact 转为联系人投影
func (u *User) AsContact() Contact {
	return Contact{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}

func (u *User) GetID() string { return u.ID }
