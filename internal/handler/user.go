package handlers

import (
	"github.com/gin-gonic/gin"

	"Lifeline/internal/auth"
	"Lifeline/internal/geo"
	"Lifeline/internal/models"
	"Lifeline/pkg/response"
)

// GetProfile 当前用户资料
// GET /api/users/profile
func (h *Handlers) GetProfile(c *gin.Context) {
	user := auth.CurrentUser(c)
	response.OK(c, gin.H{"user": userProfile(user)})
}

// UpdateProfile 更新资料（仅 name/phone）
// PUT /api/users/profile
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}

	user := auth.CurrentUser(c)
	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Phone != "" {
		updates["phone"] = req.Phone
	}
	if len(updates) > 0 {
		if err := h.db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			response.Error(c, err)
			return
		}
		h.gate.InvalidateCache(user.ID)
	}

	response.Success(c, "Profile updated successfully", nil)
}

// ListUsers 管理员用户列表
// GET /api/users
func (h *Handlers) ListUsers(c *gin.Context) {
	var users []models.User
	if err := h.db.Find(&users).Error; err != nil {
		response.Error(c, err)
		return
	}

	out := make([]gin.H, 0, len(users))
	for i := range users {
		out = append(out, userProfile(&users[i]))
	}
	response.OK(c, gin.H{"count": len(out), "users": out})
}

// UpdateLocation 刷新当前用户位置
// PUT /api/users/location
func (h *Handlers) UpdateLocation(c *gin.Context) {
	var req struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		response.Fail(c, "Latitude and longitude are required", nil)
		return
	}

	user := auth.CurrentUser(c)
	if err := h.svc.UpdateLocation(c.Request.Context(), user.ID, geo.NewPoint(*req.Lat, *req.Lng)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, "Location updated successfully", nil)
}

// ToggleResponder 切换响应者模式
// POST /api/users/toggleResponder
func (h *Handlers) ToggleResponder(c *gin.Context) {
	user := auth.CurrentUser(c)

	newValue := !user.IsResponder
	if err := h.db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("is_responder", newValue).Error; err != nil {
		response.Error(c, err)
		return
	}
	h.gate.InvalidateCache(user.ID)

	mode := "DISABLED"
	if newValue {
		mode = "ENABLED"
	}
	response.OK(c, gin.H{"message": "Responder mode " + mode, "isResponder": newValue})
}
