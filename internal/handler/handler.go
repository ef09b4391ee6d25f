// Package handler exposes the ledger over JSON. Amounts travel as
// strings ("12.50" or "1/3") so no precision is lost.
package handler

import (
	"net/http"
	"time"

	"cashbook/internal/util"

	"github.com/gin-gonic/gin"
)

// bindJSON 解析请求体，失败时直接返回 400
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误: "+err.Error())
		return false
	}
	return true
}

// queryTime 读取可选的时间参数，格式错误时返回 400
func queryTime(c *gin.Context, key string) (*time.Time, bool) {
	t, err := util.ParseOptionalTime(c.Query(key))
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, key+": "+err.Error())
		return nil, false
	}
	return t, true
}

// queryBool 读取可选的布尔参数
func queryBool(c *gin.Context, key string) (*bool, bool) {
	b, err := util.ParseOptionalBool(c.Query(key))
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, key+": "+err.Error())
		return nil, false
	}
	return b, true
}
