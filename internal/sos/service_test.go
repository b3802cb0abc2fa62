package sos

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"Lifeline/internal/geo"
	"Lifeline/internal/models"
	"Lifeline/pkg/errors"
)

// fakeBroadcaster 记录广播事件
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

type broadcastEvent struct {
	Event   string
	Payload interface{}
}

func (f *fakeBroadcaster) Broadcast(event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastEvent{Event: event, Payload: payload})
}

func (f *fakeBroadcaster) all() []broadcastEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broadcastEvent, len(f.events))
	copy(out, f.events)
	return out
}

func newTestService(t *testing.T, opts ...Option) (*Service, *gorm.DB, *fakeBroadcaster) {
	t.Helper()

	db, err := models.InitDB("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	notifier := &fakeBroadcaster{}
	svc := NewService(db, geo.NewLocalIndex(), notifier, opts...)
	return svc, db, notifier
}

func createUser(t *testing.T, db *gorm.DB, name string, mutate ...func(*models.User)) *models.User {
	t.Helper()
	user := &models.User{
		Name:  name,
		Email: fmt.Sprintf("%s@example.com", name),
		Phone: "+911234567890",
	}
	for _, fn := range mutate {
		fn(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestTriggerCreatesActiveAlert(t *testing.T) {
	svc, db, notifier := newTestService(t)
	ctx := context.Background()

	victim := createUser(t, db, "victim")
	loc := geo.NewPoint(28.6139, 77.2090)

	view, err := svc.Trigger(ctx, victim.ID, loc, "Trapped near the market")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusActive, view.Status)
	assert.Equal(t, "Trapped near the market", view.Message)
	assert.Equal(t, victim.ID, view.Victim.ID)
	assert.InDelta(t, 28.6139, view.Location.Lat, 1e-9)
	assert.InDelta(t, 77.2090, view.Location.Lng, 1e-9)
	assert.Empty(t, view.Responders)
	assert.Nil(t, view.ResolvedBy)

	// 触发后进入冷却，位置同步到受害者档案
	var reloaded models.User
	require.NoError(t, db.First(&reloaded, "id = ?", victim.ID).Error)
	assert.False(t, reloaded.CanSendSOS)
	require.NotNil(t, reloaded.LastSOSAt)
	assert.InDelta(t, loc.Lat, reloaded.Location.Lat, 1e-9)

	// new-sos 广播携带警报要素
	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, "new-sos", events[0].Event)
	payload, ok := events[0].Payload.(NewSOSEvent)
	require.True(t, ok)
	assert.Equal(t, view.ID, payload.SOSID)
	assert.Equal(t, victim.ID, payload.VictimID)
	assert.Equal(t, "Trapped near the market", payload.Message)
}

func TestTriggerDefaultMessage(t *testing.T) {
	svc, db, _ := newTestService(t)

	victim := createUser(t, db, "quiet")
	view, err := svc.Trigger(context.Background(), victim.ID, geo.NewPoint(10, 10), "   ")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSOSMessage, view.Message)
}

func TestTriggerBlockedDuringCooldown(t *testing.T) {
	svc, db, notifier := newTestService(t)
	ctx := context.Background()

	victim := createUser(t, db, "repeat")
	_, err := svc.Trigger(ctx, victim.ID, geo.NewPoint(10, 10), "")
	require.NoError(t, err)

	_, err = svc.Trigger(ctx, victim.ID, geo.NewPoint(10, 10), "")
	require.Error(t, err)
	assert.Equal(t, 400, errors.GetCode(err))
	assert.Equal(t, "You can't send SOS right now", errors.GetMessage(err))

	// 第二次触发不广播
	assert.Len(t, notifier.all(), 1)
}

func TestTriggerValidation(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	victim := createUser(t, db, "edge")

	_, err := svc.Trigger(ctx, victim.ID, geo.Point{Lat: 91, Lng: 0}, "")
	require.Error(t, err)
	assert.Equal(t, 400, errors.GetCode(err))

	_, err = svc.Trigger(ctx, "missing-user", geo.NewPoint(10, 10), "")
	require.Error(t, err)
	assert.Equal(t, 404, errors.GetCode(err))
}

func TestAcceptLifecycle(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	victim := createUser(t, db, "victim")
	helper := createUser(t, db, "helper")

	view, err := svc.Trigger(ctx, victim.ID, geo.NewPoint(10, 10), "")
	require.NoError(t, err)

	// 受害者不能响应自己
	_, err = svc.Accept(ctx, view.ID, victim.ID)
	require.Error(t, err)
	assert.Equal(t, 409, errors.GetCode(err))
	assert.Equal(t, "You can't accept your own SOS", errors.GetMessage(err))

	accepted, err := svc.Accept(ctx, view.ID, helper.ID)
	require.NoError(t, err)
	require.Len(t, accepted.Responders, 1)
	assert.Equal(t, helper.ID, accepted.Responders[0].ID)

	// 重复登记被拒绝
	_, err = svc.Accept(ctx, view.ID, helper.ID)
	require.Error(t, err)
	assert.Equal(t, 409, errors.GetCode(err))
	assert.Equal(t, "You have already accepted this SOS", errors.GetMessage(err))

	// 不存在的警报
	_, err = svc.Accept(ctx, "no-such-alert", helper.ID)
	require.Error(t, err)
	assert.Equal(t, 404, errors.GetCode(err))
	assert.Equal(t, "SOS not found or already resolved", errors.GetMessage(err))
}

func TestAcceptAfterResolveRejected(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	victim := createUser(t, db, "victim")
	helper := createUser(t, db, "helper")

	view, err := svc.Trigger(ctx, victim.ID, geo.NewPoint(10, 10), "")
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, view.ID, helper.ID)
	require.NoError(t, err)

	_, err = svc.Accept(ctx, view.ID, helper.ID)
	require.Error(t, err)
	assert.Equal(t, 404, errors.GetCode(err))
	assert.Equal(t, "SOS not found or already resolved", errors.GetMessage(err))
}

func TestConcurrentAcceptSingleEntry(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	victim := createUser(t, db, "victim")
	helper := createUser(t, db, "helper")

	view, err := svc.Trigger(ctx, victim.ID, geo.NewPoint(10, 10), "")
	require.NoError(t, err)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Accept(ctx, view.ID, helper.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, 409, errors.GetCode(err))
		}
	}
	assert.Equal(t, 1, succeeded)

	var count int64
	require.NoError(t, db.Model(&models.SOSResponder{}).
		Where("alert_id = ? AND user_id = ?", view.ID, helper.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolve(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	victim := createUser(t, db, "victim")
	first := createUser(t, db, "first")
	second := createUser(t, db, "second")

	view, err := svc.Trigger(ctx, victim.ID, geo.NewPoint(10, 10), "")
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, view.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, first.ID, *resolved.ResolvedBy)

	// 重复 resolve 覆盖 resolvedBy
	resolved, err = svc.Resolve(ctx, view.ID, second.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, second.ID, *resolved.ResolvedBy)

	_, err = svc.Resolve(ctx, "no-such-alert", first.ID)
	require.Error(t, err)
	assert.Equal(t, 404, errors.GetCode(err))
	assert.Equal(t, "SOS not found", errors.GetMessage(err))
}

func TestResolveReleasesAlertLock(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	victim := createUser(t, db, "victim")
	helper := createUser(t, db, "helper")

	view, err := svc.Trigger(ctx, victim.ID, geo.NewPoint(10, 10), "")
	require.NoError(t, err)

	// 活跃期间锁条目存在
	_, err = svc.Accept(ctx, view.ID, helper.ID)
	require.NoError(t, err)
	_, held := svc.alertLocks.Load(view.ID)
	assert.True(t, held)

	// 解除后条目被回收
	_, err = svc.Resolve(ctx, view.ID, helper.ID)
	require.NoError(t, err)
	_, held = svc.alertLocks.Load(view.ID)
	assert.False(t, held)

	// 对不存在警报的操作不留下条目
	_, err = svc.Accept(ctx, "ghost-alert", helper.ID)
	require.Error(t, err)
	_, held = svc.alertLocks.Load("ghost-alert")
	assert.False(t, held)
}

func TestResolvePolicyDenies(t *testing.T) {
	policy := func(identityID string, alert *models.SOSAlert) bool {
		return identityID == alert.VictimID
	}
	svc, db, _ := newTestService(t, WithResolvePolicy(policy))
	ctx := context.Background()

	victim := createUser(t, db, "victim")
	stranger := createUser(t, db, "stranger")

	view, err := svc.Trigger(ctx, victim.ID, geo.NewPoint(10, 10), "")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, view.ID, stranger.ID)
	require.Error(t, err)
	assert.Equal(t, 403, errors.GetCode(err))

	resolved, err := svc.Resolve(ctx, view.ID, victim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
}

func TestListActiveOrdering(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	a := createUser(t, db, "a")
	b := createUser(t, db, "b")
	c := createUser(t, db, "c")

	first, err := svc.Trigger(ctx, a.ID, geo.NewPoint(10, 10), "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := svc.Trigger(ctx, b.ID, geo.NewPoint(11, 11), "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	third, err := svc.Trigger(ctx, c.ID, geo.NewPoint(12, 12), "")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, second.ID, a.ID)
	require.NoError(t, err)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, third.ID, active[0].ID)
	assert.Equal(t, first.ID, active[1].ID)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestNearbyFiltersAndOrders(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	center := geo.NewPoint(28.6139, 77.2090)

	near := createUser(t, db, "near", func(u *models.User) {
		u.IsResponder = true
		u.IsOnline = true
	})
	far := createUser(t, db, "far", func(u *models.User) {
		u.IsResponder = true
		u.IsOnline = true
	})
	offline := createUser(t, db, "offline", func(u *models.User) {
		u.IsResponder = true
	})
	bystander := createUser(t, db, "bystander", func(u *models.User) {
		u.IsOnline = true
	})

	// near ~1.2km、far ~3.4km，offline/bystander 也在范围内但会被过滤
	require.NoError(t, svc.UpdateLocation(ctx, near.ID, geo.NewPoint(28.6239, 77.2140)))
	require.NoError(t, svc.UpdateLocation(ctx, far.ID, geo.NewPoint(28.6439, 77.2090)))
	require.NoError(t, svc.UpdateLocation(ctx, offline.ID, geo.NewPoint(28.6150, 77.2100)))
	require.NoError(t, svc.UpdateLocation(ctx, bystander.ID, geo.NewPoint(28.6150, 77.2100)))

	helpers, err := svc.Nearby(ctx, center, 5000)
	require.NoError(t, err)
	require.Len(t, helpers, 2)
	assert.Equal(t, near.ID, helpers[0].ID)
	assert.Equal(t, far.ID, helpers[1].ID)
	assert.Less(t, helpers[0].Distance, helpers[1].Distance)

	// 小半径把远端排除
	helpers, err = svc.Nearby(ctx, center, 2000)
	require.NoError(t, err)
	require.Len(t, helpers, 1)
	assert.Equal(t, near.ID, helpers[0].ID)

	// 非法中心点
	_, err = svc.Nearby(ctx, geo.Point{Lat: 0, Lng: 200}, 5000)
	require.Error(t, err)
	assert.Equal(t, 400, errors.GetCode(err))
	assert.Equal(t, "Latitude and longitude required", errors.GetMessage(err))
}

func TestNearbyDefaultRadius(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	center := geo.NewPoint(28.6139, 77.2090)
	helper := createUser(t, db, "edge", func(u *models.User) {
		u.IsResponder = true
		u.IsOnline = true
	})
	// 距中心约4.4km，默认5km半径应命中
	require.NoError(t, svc.UpdateLocation(ctx, helper.ID, geo.NewPoint(28.6539, 77.2090)))

	helpers, err := svc.Nearby(ctx, center, 0)
	require.NoError(t, err)
	require.Len(t, helpers, 1)
	assert.Equal(t, helper.ID, helpers[0].ID)
}

func TestUpdateLocation(t *testing.T) {
	invalidated := make([]string, 0, 2)
	svc, db, _ := newTestService(t, WithIdentityChangeHook(func(userID string) {
		invalidated = append(invalidated, userID)
	}))
	ctx := context.Background()

	user := createUser(t, db, "mover")
	loc := geo.NewPoint(12.9716, 77.5946)
	require.NoError(t, svc.UpdateLocation(ctx, user.ID, loc))

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, "id = ?", user.ID).Error)
	assert.InDelta(t, loc.Lat, reloaded.Location.Lat, 1e-9)
	assert.InDelta(t, loc.Lng, reloaded.Location.Lng, 1e-9)
	require.NotNil(t, reloaded.LastKnownLocationAt)
	assert.Contains(t, invalidated, user.ID)

	err := svc.UpdateLocation(ctx, "ghost", loc)
	require.Error(t, err)
	assert.Equal(t, 404, errors.GetCode(err))

	err = svc.UpdateLocation(ctx, user.ID, geo.Point{Lat: -95, Lng: 0})
	require.Error(t, err)
	assert.Equal(t, 400, errors.GetCode(err))
}

func TestFullRescueScenario(t *testing.T) {
	svc, db, notifier := newTestService(t)
	ctx := context.Background()

	victim := createUser(t, db, "v")
	responder := createUser(t, db, "r", func(u *models.User) {
		u.IsResponder = true
		u.IsOnline = true
	})
	require.NoError(t, svc.UpdateLocation(ctx, responder.ID, geo.NewPoint(28.615, 77.205)))

	// 无消息触发，落默认文案
	view, err := svc.Trigger(ctx, victim.ID, geo.NewPoint(28.61, 77.20), "")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusActive, view.Status)
	assert.Equal(t, models.DefaultSOSMessage, view.Message)
	assert.Empty(t, view.Responders)
	require.Len(t, notifier.all(), 1)

	// 响应者在2km半径内可被发现
	helpers, err := svc.Nearby(ctx, geo.NewPoint(28.61, 77.20), 2000)
	require.NoError(t, err)
	require.Len(t, helpers, 1)
	assert.Equal(t, responder.ID, helpers[0].ID)

	// 接受后进入响应者列表
	view, err = svc.Accept(ctx, view.ID, responder.ID)
	require.NoError(t, err)
	require.Len(t, view.Responders, 1)
	assert.Equal(t, responder.ID, view.Responders[0].ID)

	// 解除
	view, err = svc.Resolve(ctx, view.ID, responder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, view.Status)
	require.NotNil(t, view.ResolvedBy)
	assert.Equal(t, responder.ID, *view.ResolvedBy)
}
