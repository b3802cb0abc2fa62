package sos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"Lifeline/internal/models"
	"Lifeline/pkg/logger"
)

// CooldownSweeper 周期性恢复触发资格。
// 触发后 canSendSOS 被置 false 以限制重复求助，冷却窗口过后由本任务重新放开。
type CooldownSweeper struct {
	db       *gorm.DB
	cooldown time.Duration

	// 恢复后的缓存失效回调
	onIdentityChange func(userID string)
}

// NewCooldownSweeper 创建冷却恢复任务
func NewCooldownSweeper(db *gorm.DB, cooldown time.Duration, onIdentityChange func(string)) *CooldownSweeper {
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	return &CooldownSweeper{db: db, cooldown: cooldown, onIdentityChange: onIdentityChange}
}

// Run 实现 scheduler.Job
func (c *CooldownSweeper) Run(ctx context.Context) {
	cutoff := time.Now().Add(-c.cooldown)

	var ids []string
	if err := c.db.WithContext(ctx).Model(&models.User{}).
		Where("can_send_sos = ? AND last_sos_at IS NOT NULL AND last_sos_at < ?", false, cutoff).
		Pluck("id", &ids).Error; err != nil {
		logger.Errorf("cooldown sweep query failed: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	if err := c.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ?", ids).
		Update("can_send_sos", true).Error; err != nil {
		logger.Errorf("cooldown sweep update failed: %v", err)
		return
	}

	if c.onIdentityChange != nil {
		for _, id := range ids {
			c.onIdentityChange(id)
		}
	}
	logger.Infof("sos cooldown expired for %d user(s)", len(ids))
}
