package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimiterConfig 限流配置
//
// Rate: "100-M"、Identifier: "ip"/"user"
// PerRouteRates: {"/api/sos/trigger": "5-M"}
// SkipPaths: ["/health", "/metrics"] 前缀匹配
type RateLimiterConfig struct {
	Rate          string            `json:"rate"`
	PerRouteRates map[string]string `json:"per_route_rates"`
	Identifier    string            `json:"identifier"`
	SkipPaths     []string          `json:"skip_paths"`
	AddHeaders    bool              `json:"add_headers"`
	DenyStatus    int               `json:"deny_status"`
	DenyMessage   string            `json:"deny_message"`
}

// RateLimiter 面向实例的限流器，按速率缓存 limiter
type RateLimiter struct {
	cfg            *RateLimiterConfig
	store          limiter.Store
	limitersByRate map[string]*limiter.Limiter
	mu             sync.RWMutex

	denied *prometheus.CounterVec
}

// NewRateLimiter 构造函数
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	return &RateLimiter{
		cfg:            &cfg,
		store:          store,
		limitersByRate: make(map[string]*limiter.Limiter),
	}
}

// WithDeniedCounter 配置拒绝计数指标
func (l *RateLimiter) WithDeniedCounter(counter *prometheus.CounterVec) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.denied = counter
	return l
}

// Middleware 返回 Gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := l.getConfig()

		if pathSkipped(*cfg, c.FullPath(), c.Request.URL.Path) {
			c.Next()
			return
		}

		key := buildLimitKey(*cfg, c)
		rateStr, perRoute := l.pickRateForRoute(cfg, c)
		if perRoute {
			// 路由级速率独立计数，避免与全局计数器串扰
			key += ":" + c.FullPath()
		}
		lim := l.getLimiter(rateStr)

		context, err := lim.Get(c, key)
		if err != nil {
			c.Next()
			return
		}
		if cfg.AddHeaders {
			setStandardHeaders(c, context)
		}
		if context.Reached {
			setRetryAfter(c, time.Until(time.Unix(context.Reset, 0)))
			l.reportDeny(c)
			denyTooMany(c, *cfg)
			return
		}

		c.Next()
	}
}

func (l *RateLimiter) reportDeny(c *gin.Context) {
	l.mu.RLock()
	counter := l.denied
	l.mu.RUnlock()
	if counter != nil {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		counter.WithLabelValues(route).Inc()
	}
}

func (l *RateLimiter) getLimiter(rateStr string) *limiter.Limiter {
	l.mu.RLock()
	lim, ok := l.limitersByRate[rateStr]
	l.mu.RUnlock()
	if ok {
		return lim
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limitersByRate[rateStr]; ok {
		return lim
	}
	r, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r = limiter.Rate{Period: time.Minute, Limit: 100}
	}
	lim = limiter.New(l.store, r)
	l.limitersByRate[rateStr] = lim
	return lim
}

func (l *RateLimiter) pickRateForRoute(cfg *RateLimiterConfig, c *gin.Context) (string, bool) {
	if cfg.PerRouteRates != nil {
		if full := c.FullPath(); full != "" {
			if r, ok := cfg.PerRouteRates[full]; ok && r != "" {
				return r, true
			}
		}
	}
	if cfg.Rate != "" {
		return cfg.Rate, false
	}
	return "100-M", false
}

func (l *RateLimiter) getConfig() *RateLimiterConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// UpdateConfig 动态更新配置
func (l *RateLimiter) UpdateConfig(cfg RateLimiterConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = &cfg
}

// -------------------- 全局封装 --------------------
var (
	rateLimiterMutex  sync.RWMutex
	rateLimiterConfig = &RateLimiterConfig{
		Rate:       "100-M",
		Identifier: "ip",
		AddHeaders: true,
		DenyStatus: http.StatusTooManyRequests,
		SkipPaths:  []string{"/health", "/metrics"},
	}
	globalRL *RateLimiter

	rateLimitDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_deny_total",
		Help: "Denied requests by rate limiter",
	}, []string{"route"})
)

// SetRateLimiterConfig 动态更新限流配置
func SetRateLimiterConfig(config RateLimiterConfig) {
	rateLimiterMutex.Lock()
	defer rateLimiterMutex.Unlock()
	rateLimiterConfig = &config
	if globalRL != nil {
		globalRL.UpdateConfig(config)
	}
}

// GetRateLimiterConfig 获取当前配置（拷贝）
func GetRateLimiterConfig() RateLimiterConfig {
	rateLimiterMutex.RLock()
	defer rateLimiterMutex.RUnlock()
	return *rateLimiterConfig
}

// RateLimiterMiddleware 全局限流中间件
func RateLimiterMiddleware() gin.HandlerFunc {
	rateLimiterMutex.Lock()
	if globalRL == nil {
		globalRL = NewRateLimiter(*rateLimiterConfig, memory.NewStore()).
			WithDeniedCounter(rateLimitDenied)
	}
	rl := globalRL
	rateLimiterMutex.Unlock()
	return rl.Middleware()
}

func pathSkipped(cfg RateLimiterConfig, fullPath, rawPath string) bool {
	if len(cfg.SkipPaths) == 0 {
		return false
	}
	p := fullPath
	if p == "" {
		p = rawPath
	}
	for _, pref := range cfg.SkipPaths {
		if pref != "" && strings.HasPrefix(p, pref) {
			return true
		}
	}
	return false
}

func buildLimitKey(cfg RateLimiterConfig, c *gin.Context) string {
	if cfg.Identifier == "user" {
		if v, ok := c.Get("identity"); ok {
			if s, ok := v.(interface{ GetID() string }); ok {
				return "user:" + s.GetID()
			}
		}
	}
	ip := c.ClientIP()
	return "ip:" + strings.TrimPrefix(ip, "::ffff:")
}

func setStandardHeaders(c *gin.Context, ctx limiter.Context) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
	resetSec := int(time.Until(time.Unix(ctx.Reset, 0)).Seconds())
	if resetSec < 0 {
		resetSec = 0
	}
	c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))
}

func setRetryAfter(c *gin.Context, d time.Duration) {
	sec := int(d.Seconds())
	if sec < 0 {
		sec = 0
	}
	c.Header("Retry-After", strconv.Itoa(sec))
}

func denyTooMany(c *gin.Context, cfg RateLimiterConfig) {
	status := cfg.DenyStatus
	if status == 0 {
		status = http.StatusTooManyRequests
	}
	msg := cfg.DenyMessage
	if msg == "" {
		msg = "Too many requests from this IP, please try again later."
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
