package auth

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"Lifeline/internal/models"
	"Lifeline/pkg/errors"
	"Lifeline/pkg/response"
)

// IdentityKey gin上下文中已认证用户的键
const IdentityKey = "identity"

// Gate 认证网关：解析Bearer凭证并装载身份记录。
// 身份记录带短TTL进程内缓存，避免每个请求都打数据库。
type Gate struct {
	manager *Manager
	db      *gorm.DB
	cache   *gocache.Cache
}

// NewGate 创建认证网关
func NewGate(manager *Manager, db *gorm.DB) *Gate {
	return &Gate{
		manager: manager,
		db:      db,
		cache:   gocache.New(time.Minute, 5*time.Minute),
	}
}

// AuthRequired 认证中间件：无凭证或身份不存在返回401，凭证非法返回403
func (g *Gate) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(401, gin.H{"success": false, "error": "Unauthorized: No token provided"})
			return
		}

		userID, err := g.manager.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(errors.GetCode(err), gin.H{"success": false, "error": errors.GetMessage(err)})
			return
		}

		user, err := g.loadUser(userID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(IdentityKey, user)
		c.Next()
	}
}

// AdminRequired 管理员校验，必须位于 AuthRequired 之后
func (g *Gate) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin {
			c.AbortWithStatusJSON(403, gin.H{"success": false, "error": "Access denied. Admins only."})
			return
		}
		c.Next()
	}
}

// Authenticate 供非HTTP入口（如WebSocket升级前）复用的凭证校验
func (g *Gate) Authenticate(token string) (*models.User, error) {
	userID, err := g.manager.ParseToken(token)
	if err != nil {
		return nil, err
	}
	return g.loadUser(userID)
}

// InvalidateCache 身份字段变更后清除缓存条目
func (g *Gate) InvalidateCache(userID string) {
	g.cache.Delete(userID)
}

func (g *Gate) loadUser(userID string) (*models.User, error) {
	if cached, ok := g.cache.Get(userID); ok {
		if user, ok := cached.(*models.User); ok {
			return user, nil
		}
	}

	var user models.User
	if err := g.db.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Unauthorized("Unauthorized: User not found")
		}
		return nil, errors.Internal(err)
	}

	g.cache.Set(userID, &user, gocache.DefaultExpiration)
	return &user, nil
}

// CurrentUser 从gin上下文取当前已认证用户
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// extractToken 从 Authorization 头或 cookie 提取凭证
func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie("token"); err == nil {
		return cookie
	}
	// WebSocket 握手场景允许 query 传递
	return c.Query("token")
}
