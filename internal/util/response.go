package util

import (
	"errors"
	"net/http"

	"cashbook/internal/models"

	"github.com/gin-gonic/gin"
)

// 通用返回结构里的 data 使用 map
type Response map[string]interface{}

// 业务错误码
const (
	CodeOK           = 0
	CodeInvalidParam = 40001
	CodeAuth         = 40101
	CodeNotFound     = 40401
	CodeNoRate       = 40901
	CodeServerErr    = 50001
)

// Success 统一成功返回
func Success(c *gin.Context, data Response) {
	c.JSON(http.StatusOK, gin.H{
		"code": CodeOK,
		"data": data,
	})
}

// Error 统一错误返回
func Error(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
	})
}

// StatusOf 把领域错误映射为 HTTP 状态码和业务错误码
func StatusOf(err error) (int, int) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, CodeInvalidParam
	case errors.Is(err, models.ErrNoConversionRate):
		return http.StatusConflict, CodeNoRate
	default:
		return http.StatusInternalServerError, CodeServerErr
	}
}

// Fail 按错误类别返回；存储错误不把内部细节暴露给调用方
func Fail(c *gin.Context, err error) {
	status, code := StatusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "存储失败"
	}
	_ = c.Error(err)
	Error(c, status, code, msg)
}
