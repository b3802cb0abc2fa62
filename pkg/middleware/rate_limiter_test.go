package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(cfg RateLimiterConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(cfg, nil).Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterDeniesOverLimit(t *testing.T) {
	r := newLimitedRouter(RateLimiterConfig{Rate: "2-M", Identifier: "ip", AddHeaders: true})

	assert.Equal(t, http.StatusOK, get(r, "/ping").Code)
	w := get(r, "/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = get(r, "/ping")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Too many requests")
}

func TestRateLimiterSkipPaths(t *testing.T) {
	r := newLimitedRouter(RateLimiterConfig{Rate: "1-M", SkipPaths: []string{"/health"}})

	assert.Equal(t, http.StatusOK, get(r, "/ping").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/ping").Code)

	// 跳过路径不计数也不受限
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/health").Code)
	}
}

func TestRateLimiterPerRouteOverride(t *testing.T) {
	r := newLimitedRouter(RateLimiterConfig{
		Rate:          "100-M",
		PerRouteRates: map[string]string{"/ping": "1-M"},
	})

	assert.Equal(t, http.StatusOK, get(r, "/ping").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/ping").Code)
	assert.Equal(t, http.StatusOK, get(r, "/health").Code)
}

func TestRateLimiterConfigUpdate(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: "1-M"}, nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	assert.Equal(t, http.StatusOK, get(r, "/ping").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/ping").Code)

	// 动态放开阈值后立即生效
	rl.UpdateConfig(RateLimiterConfig{Rate: "100-M"})
	assert.Equal(t, http.StatusOK, get(r, "/ping").Code)
}
