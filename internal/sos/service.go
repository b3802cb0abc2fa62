package sos

import (
	"context"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"Lifeline/internal/geo"
	"Lifeline/internal/models"
	"Lifeline/pkg/errors"
	"Lifeline/pkg/logger"
)

// DefaultNearbyRadiusMeters 未指定半径时的近邻查询默认值
const DefaultNearbyRadiusMeters = 5000

// Broadcaster 通知分发器。当前实现为全量广播，不与在线登记表求交；
// 接口隔离使得将来可以替换为定向投递而不触碰生命周期引擎。
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// ResolvePolicy 判定某身份能否解除某警报。
// 默认恒真，与原始行为一致（任何已认证身份可解除任意警报）。
type ResolvePolicy func(identityID string, alert *models.SOSAlert) bool

// Service 警报生命周期引擎 + 近邻查询服务
type Service struct {
	db         *gorm.DB
	geoIndex   geo.Index
	notifier   Broadcaster
	canResolve ResolvePolicy

	// 身份字段变更回调（用于认证层缓存失效）
	onIdentityChange func(userID string)

	// 每个警报一把锁，保证 accept/resolve 的读改写互斥；
	// 终态后条目被回收，映射只随 active 警报数增长
	alertLocks sync.Map
}

// Option Service可选配置
type Option func(*Service)

// WithResolvePolicy 注入解除策略
func WithResolvePolicy(p ResolvePolicy) Option {
	return func(s *Service) { s.canResolve = p }
}

// WithIdentityChangeHook 注入身份变更回调
func WithIdentityChangeHook(fn func(userID string)) Option {
	return func(s *Service) { s.onIdentityChange = fn }
}

// NewService 创建服务
func NewService(db *gorm.DB, geoIndex geo.Index, notifier Broadcaster, opts ...Option) *Service {
	s := &Service{
		db:         db,
		geoIndex:   geoIndex,
		notifier:   notifier,
		canResolve: func(string, *models.SOSAlert) bool { return true },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lockFor(alertID string) *sync.Mutex {
	v, _ := s.alertLocks.LoadOrStore(alertID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// releaseLock 警报进入终态后回收锁条目，避免映射随历史警报无限增长。
// 迟到的 accept/resolve 会临时重建条目，正确性由状态检查兜底。
func (s *Service) releaseLock(alertID string) {
	s.alertLocks.Delete(alertID)
}

// LatLng 请求/响应边界的坐标形态
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// boundaryLatLng 内部坐标到边界形态的唯一转换点
func boundaryLatLng(p geo.Point) LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}

// NewSOSEvent new-sos 广播事件载荷
type NewSOSEvent struct {
	VictimID string `json:"victimId"`
	SOSID    string `json:"sosId"`
	Location LatLng `json:"location"`
	Message  string `json:"message"`
}

// AlertView 警报的展示投影，受害者与响应者身份已展开
type AlertView struct {
	ID         string           `json:"id"`
	Victim     models.Contact   `json:"victim"`
	Location   LatLng           `json:"location"`
	Message    string           `json:"message"`
	Status     string           `json:"status"`
	Responders []models.Contact `json:"responders"`
	ResolvedBy *string          `json:"resolvedBy"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Helper 近邻查询结果中的一个响应者
type Helper struct {
	models.Contact
	Location LatLng  `json:"location"`
	Distance float64 `json:"distanceMeters"`
}

// Trigger 触发一次求助。
// 警报落库与受害者状态更新在同一事务内；广播失败不回滚（至多一次持久写，
// 通知尽力而为）。
func (s *Service) Trigger(ctx context.Context, victimID string, loc geo.Point, message string) (*AlertView, error) {
	if !loc.Valid() {
		return nil, errors.Validation("Latitude and longitude are required")
	}

	var victim models.User
	if err := s.db.WithContext(ctx).First(&victim, "id = ?", victimID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("User not found")
		}
		return nil, errors.Internal(err)
	}

	if !victim.CanSendSOS {
		return nil, errors.Policy("You can't send SOS right now")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		message = models.DefaultSOSMessage
	}

	alert := models.SOSAlert{
		VictimID: victimID,
		Location: loc,
		Message:  message,
		Status:   models.AlertStatusActive,
	}

	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&alert).Error; err != nil {
			return err
		}
		return tx.Model(&victim).Updates(map[string]interface{}{
			"can_send_sos":           false,
			"last_sos_at":            now,
			"location":               loc,
			"last_known_location_at": now,
		}).Error
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	if s.onIdentityChange != nil {
		s.onIdentityChange(victimID)
	}

	// 地理索引与广播都在持久写之后，失败只记为投递缺口
	if err := s.geoIndex.Upsert(ctx, victimID, loc); err != nil {
		logger.Warnf("geo index update failed for user %s: %v", victimID, err)
	}

	if s.notifier != nil {
		s.notifier.Broadcast("new-sos", NewSOSEvent{
			VictimID: victimID,
			SOSID:    alert.ID,
			Location: boundaryLatLng(loc),
			Message:  message,
		})
	}

	return s.expandAlert(ctx, &alert)
}

// Accept 登记响应者。警报必须处于 active，受害者不能响应自己，
// 同一响应者不能重复登记。并发 accept 由警报级互斥串行化。
func (s *Service) Accept(ctx context.Context, alertID, responderID string) (*AlertView, error) {
	mu := s.lockFor(alertID)
	mu.Lock()
	defer mu.Unlock()

	var alert models.SOSAlert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", alertID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.releaseLock(alertID)
			return nil, errors.NotFound("SOS not found or already resolved")
		}
		return nil, errors.Internal(err)
	}
	if alert.Status != models.AlertStatusActive {
		s.releaseLock(alertID)
		return nil, errors.NotFound("SOS not found or already resolved")
	}

	if alert.VictimID == responderID {
		return nil, errors.Conflict("You can't accept your own SOS")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.SOSResponder{}).
		Where("alert_id = ? AND user_id = ?", alertID, responderID).
		Count(&count).Error; err != nil {
		return nil, errors.Internal(err)
	}
	if count > 0 {
		return nil, errors.Conflict("You have already accepted this SOS")
	}

	entry := models.SOSResponder{AlertID: alertID, UserID: responderID}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		// 唯一约束兜底：锁外写入者先到时按重复处理
		return nil, errors.Conflict("You have already accepted this SOS")
	}

	return s.expandAlert(ctx, &alert)
}

// Resolve 标记警报已解除。
// 有意不校验当前状态与解除者和警报的关系：重复 resolve 覆盖 resolvedBy，
// 策略通过 canResolve 注入，默认放行。
func (s *Service) Resolve(ctx context.Context, alertID, resolverID string) (*AlertView, error) {
	mu := s.lockFor(alertID)
	mu.Lock()
	defer mu.Unlock()

	var alert models.SOSAlert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", alertID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.releaseLock(alertID)
			return nil, errors.NotFound("SOS not found")
		}
		return nil, errors.Internal(err)
	}

	if !s.canResolve(resolverID, &alert) {
		return nil, errors.Forbidden("You are not allowed to resolve this SOS")
	}

	alert.Status = models.AlertStatusResolved
	alert.ResolvedByID = &resolverID
	if err := s.db.WithContext(ctx).Save(&alert).Error; err != nil {
		return nil, errors.Internal(err)
	}
	s.releaseLock(alertID)

	return s.expandAlert(ctx, &alert)
}

// ListActive 按创建时间倒序返回所有 active 警报
func (s *Service) ListActive(ctx context.Context) ([]AlertView, error) {
	return s.list(ctx, s.db.WithContext(ctx).Where("status = ?", models.AlertStatusActive))
}

// ListAll 按创建时间倒序返回全部历史（管理员操作，权限在网关层校验）
func (s *Service) ListAll(ctx context.Context) ([]AlertView, error) {
	return s.list(ctx, s.db.WithContext(ctx))
}

func (s *Service) list(ctx context.Context, q *gorm.DB) ([]AlertView, error) {
	var alerts []models.SOSAlert
	if err := q.Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, errors.Internal(err)
	}

	views := make([]AlertView, 0, len(alerts))
	for i := range alerts {
		view, err := s.expandAlert(ctx, &alerts[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// Nearby 近邻查询：center 半径 radiusMeters 内、isResponder 且 isOnline 的
// 身份投影，距离升序。距离排序来自底层球面索引，半径为闭区间。
func (s *Service) Nearby(ctx context.Context, center geo.Point, radiusMeters float64) ([]Helper, error) {
	if !center.Valid() {
		return nil, errors.Validation("Latitude and longitude required")
	}
	if radiusMeters <= 0 {
		radiusMeters = DefaultNearbyRadiusMeters
	}

	members, err := s.geoIndex.Search(ctx, center, radiusMeters)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if len(members) == 0 {
		return []Helper{}, nil
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errors.Internal(err)
	}
	byID := make(map[string]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	// 按索引返回的距离顺序过滤，保持升序
	helpers := make([]Helper, 0, len(members))
	for _, m := range members {
		user, ok := byID[m.ID]
		if !ok || !user.IsResponder || !user.IsOnline {
			continue
		}
		helpers = append(helpers, Helper{
			Contact:  user.AsContact(),
			Location: boundaryLatLng(m.Location),
			Distance: m.Distance,
		})
	}
	return helpers, nil
}

// UpdateLocation 更新身份位置，数据库与地理索引同步写
func (s *Service) UpdateLocation(ctx context.Context, userID string, loc geo.Point) error {
	if !loc.Valid() {
		return errors.Validation("Latitude and longitude are required")
	}

	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"location":               loc,
			"last_known_location_at": now,
		})
	if result.Error != nil {
		return errors.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NotFound("User not found")
	}

	if s.onIdentityChange != nil {
		s.onIdentityChange(userID)
	}

	if err := s.geoIndex.Upsert(ctx, userID, loc); err != nil {
		logger.Warnf("geo index update failed for user %s: %v", userID, err)
	}
	return nil
}

// expandAlert 展开受害者与响应者身份，生成展示投影
func (s *Service) expandAlert(ctx context.Context, alert *models.SOSAlert) (*AlertView, error) {
	var entries []models.SOSResponder
	if err := s.db.WithContext(ctx).Where("alert_id = ?", alert.ID).
		Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, errors.Internal(err)
	}

	ids := make([]string, 0, len(entries)+1)
	ids = append(ids, alert.VictimID)
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errors.Internal(err)
	}
	byID := make(map[string]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	view := &AlertView{
		ID:         alert.ID,
		Location:   boundaryLatLng(alert.Location),
		Message:    alert.Message,
		Status:     alert.Status,
		Responders: make([]models.Contact, 0, len(entries)),
		ResolvedBy: alert.ResolvedByID,
		CreatedAt:  alert.CreatedAt,
		UpdatedAt:  alert.UpdatedAt,
	}
	if victim, ok := byID[alert.VictimID]; ok {
		view.Victim = victim.AsContact()
	}
	for _, e := range entries {
		if u, ok := byID[e.UserID]; ok {
			view.Responders = append(view.Responders, u.AsContact())
		}
	}
	return view, nil
}
