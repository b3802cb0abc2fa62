package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"Lifeline/internal/auth"
	"Lifeline/internal/geo"
	"Lifeline/internal/models"
	"Lifeline/pkg/response"
)

// defaultLocation 注册未携带坐标时的兜底位置（新德里）
var defaultLocation = geo.NewPoint(28.6139, 77.2090)

// userProfile 身份投影，携带SOS相关状态但绝不包含凭证
func userProfile(u *models.User) gin.H {
	return gin.H{
		"id":          u.ID,
		"name":        u.Name,
		"email":       u.Email,
		"phone":       u.Phone,
		"isAdmin":     u.IsAdmin,
		"isResponder": u.IsResponder,
		"canSendSOS":  u.CanSendSOS,
		"isOnline":    u.IsOnline,
		"location":    gin.H{"lat": u.Location.Lat, "lng": u.Location.Lng},
	}
}

// Register 注册新用户并签发令牌
// POST /api/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req struct {
		Name     string   `json:"name" binding:"required"`
		Email    string   `json:"email" binding:"required"`
		Phone    string   `json:"phone"`
		Password string   `json:"password" binding:"required"`
		Lat      *float64 `json:"lat"`
		Lng      *float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "Name, email and password are required", nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	user := models.User{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Password:   hash,
		CanSendSOS: true,
	}
	// 未提供坐标时落在默认位置
	if req.Lat != nil && req.Lng != nil {
		user.Location = geo.NewPoint(*req.Lat, *req.Lng)
	} else {
		user.Location = defaultLocation
	}

	if err := h.db.Create(&user).Error; err != nil {
		response.Fail(c, "Email already registered", nil)
		return
	}

	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{"token": token, "user": userProfile(&user)})
}

// Login 校验密码，刷新位置与在线状态，签发令牌
// POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req struct {
		Email    string   `json:"email" binding:"required"`
		Password string   `json:"password" binding:"required"`
		Lat      *float64 `json:"lat"`
		Lng      *float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "Email and password are required", nil)
		return
	}

	// 与注册时的规范化保持一致，邮箱大小写不敏感
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := h.db.First(&user, "email = ?", email).Error; err != nil {
		c.JSON(401, gin.H{"success": false, "error": "Invalid credentials"})
		return
	}
	if err := auth.VerifyPassword(user.Password, req.Password); err != nil {
		c.JSON(401, gin.H{"success": false, "error": "Invalid credentials"})
		return
	}

	if err := h.db.Model(&user).Update("is_online", true).Error; err != nil {
		response.Error(c, err)
		return
	}
	user.IsOnline = true

	// 登录携带坐标时刷新位置（数据库 + 地理索引）
	if req.Lat != nil && req.Lng != nil {
		loc := geo.NewPoint(*req.Lat, *req.Lng)
		if err := h.svc.UpdateLocation(c.Request.Context(), user.ID, loc); err == nil {
			user.Location = loc
		}
	}
	h.gate.InvalidateCache(user.ID)

	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"token": token, "user": userProfile(&user)})
}

// Logout 下线
// POST /api/auth/logout
func (h *Handlers) Logout(c *gin.Context) {
	user := auth.CurrentUser(c)

	if err := h.db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("is_online", false).Error; err != nil && err != gorm.ErrRecordNotFound {
		response.Error(c, err)
		return
	}
	h.gate.InvalidateCache(user.ID)

	response.Success(c, "Logged out", nil)
}
