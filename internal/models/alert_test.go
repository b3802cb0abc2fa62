package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Lifeline/internal/geo"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(AlertStatusActive, AlertStatusResolved))
	assert.True(t, CanTransition(AlertStatusActive, AlertStatusCancelled))

	// 终态不再转移
	assert.False(t, CanTransition(AlertStatusResolved, AlertStatusActive))
	assert.False(t, CanTransition(AlertStatusResolved, AlertStatusCancelled))
	assert.False(t, CanTransition(AlertStatusCancelled, AlertStatusActive))
	assert.False(t, CanTransition(AlertStatusActive, AlertStatusActive))
}

func TestAlertDefaults(t *testing.T) {
	db, err := InitDB("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	alert := SOSAlert{
		VictimID: "victim-1",
		Location: geo.NewPoint(28.6139, 77.2090),
	}
	require.NoError(t, db.Create(&alert).Error)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, AlertStatusActive, alert.Status)
	assert.Equal(t, DefaultSOSMessage, alert.Message)

	// 坐标以 [lng, lat] 持久化并能完整读回
	var reloaded SOSAlert
	require.NoError(t, db.First(&reloaded, "id = ?", alert.ID).Error)
	assert.InDelta(t, 28.6139, reloaded.Location.Lat, 1e-9)
	assert.InDelta(t, 77.2090, reloaded.Location.Lng, 1e-9)
}

func TestResponderUniqueConstraint(t *testing.T) {
	db, err := InitDB("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	first := SOSResponder{AlertID: "alert-1", UserID: "user-1"}
	require.NoError(t, db.Create(&first).Error)

	dup := SOSResponder{AlertID: "alert-1", UserID: "user-1"}
	assert.Error(t, db.Create(&dup).Error)

	other := SOSResponder{AlertID: "alert-1", UserID: "user-2"}
	assert.NoError(t, db.Create(&other).Error)
}

func TestUserEmailNormalization(t *testing.T) {
	db, err := InitDB("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	user := User{Name: "Asha", Email: "  Asha@Example.COM "}
	require.NoError(t, db.Create(&user).Error)
	assert.Equal(t, "asha@example.com", user.Email)
	assert.NotEmpty(t, user.ID)

	// 未显式赋值时数据库默认放行触发
	var reloaded User
	require.NoError(t, db.First(&reloaded, "id = ?", user.ID).Error)
	assert.True(t, reloaded.CanSendSOS)
}
