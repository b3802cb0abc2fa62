package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Lifeline/pkg/errors"
	"Lifeline/pkg/logger"
)

// Success 成功响应
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data gin.H) {
	out := gin.H{"success": true}
	for k, v := range data {
		out[k] = v
	}
	c.JSON(http.StatusCreated, out)
}

// OK 成功响应，调用方自定义响应体
func OK(c *gin.Context, data gin.H) {
	out := gin.H{"success": true}
	for k, v := range data {
		out[k] = v
	}
	c.JSON(http.StatusOK, out)
}

// Fail 失败响应（400）
func Fail(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   message,
		"data":    data,
	})
}

// Error 按错误分类返回对应状态码；内部错误只回generic消息
func Error(c *gin.Context, err error) {
	code := errors.GetCode(err)
	if code >= http.StatusInternalServerError {
		logger.Errorf("internal error: %+v", err)
		c.JSON(code, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	c.JSON(code, gin.H{"success": false, "error": errors.GetMessage(err)})
}
