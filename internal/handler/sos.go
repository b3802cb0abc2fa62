package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"Lifeline/internal/auth"
	"Lifeline/internal/geo"
	"Lifeline/internal/sos"
	"Lifeline/pkg/response"
)

// TriggerSOS 触发一次求助
// POST /api/sos/trigger
func (h *Handlers) TriggerSOS(c *gin.Context) {
	var req struct {
		Lat     *float64 `json:"lat"`
		Lng     *float64 `json:"lng"`
		Message string   `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		response.Fail(c, "Latitude and longitude are required", nil)
		return
	}

	user := auth.CurrentUser(c)
	view, err := h.svc.Trigger(c.Request.Context(), user.ID, geo.NewPoint(*req.Lat, *req.Lng), req.Message)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{"sos": view})
}

// GetNearbyHelpers 查询附近在线响应者
// GET /api/sos/nearby?lat=..&lng=..&radius=..
func (h *Handlers) GetNearbyHelpers(c *gin.Context) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" || lngStr == "" {
		response.Fail(c, "Latitude and longitude required", nil)
		return
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lng, errLng := strconv.ParseFloat(lngStr, 64)
	if errLat != nil || errLng != nil {
		response.Fail(c, "Latitude and longitude required", nil)
		return
	}

	radius := float64(sos.DefaultNearbyRadiusMeters)
	if r := c.Query("radius"); r != "" {
		if parsed, err := strconv.ParseFloat(r, 64); err == nil && parsed > 0 {
			radius = parsed
		}
	}

	helpers, err := h.svc.Nearby(c.Request.Context(), geo.NewPoint(lat, lng), radius)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"count": len(helpers), "helpers": helpers})
}

// AcceptSOS 登记为警报响应者
// POST /api/sos/accept/:sosId
func (h *Handlers) AcceptSOS(c *gin.Context) {
	user := auth.CurrentUser(c)

	view, err := h.svc.Accept(c.Request.Context(), c.Param("sosId"), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"message": "You have been added as a responder", "sos": view})
}

// ResolveSOS 标记警报已解除
// POST /api/sos/resolve/:sosId
func (h *Handlers) ResolveSOS(c *gin.Context) {
	user := auth.CurrentUser(c)

	view, err := h.svc.Resolve(c.Request.Context(), c.Param("sosId"), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"message": "SOS marked as resolved", "sos": view})
}

// GetActiveSOS 列出所有 active 警报（地图视图用）
// GET /api/sos/active
func (h *Handlers) GetActiveSOS(c *gin.Context) {
	alerts, err := h.svc.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"count": len(alerts), "alerts": alerts})
}

// GetAllSOSAlerts 管理员查询全部历史
// GET /api/sos/all
func (h *Handlers) GetAllSOSAlerts(c *gin.Context) {
	alerts, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"total": len(alerts), "sosAlerts": alerts})
}
