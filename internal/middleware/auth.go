package middleware

import (
	"net/http"
	"strings"
	"time"

	"cashbook/internal/util"

	"github.com/gin-gonic/gin"
)

// CallerKey 是 context 里保存调用方 subject 的 key
const CallerKey = "caller"

// AuthMiddleware 校验 JWT，并在 context 里放入调用方 subject。
// jwtSecret 为空时不鉴权（本地单机使用）。
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSecret == "" {
			c.Next()
			return
		}

		var tokenStr string

		// 1) Header: Authorization: Bearer xxx
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenStr = strings.TrimSpace(parts[1])
			}
		}

		// 2) URL 查询参数 ?token=xxx（用于下载等无法自定义 Header 的场景）
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}

		// 3) Cookie cb_token
		if tokenStr == "" {
			if cookie, err := c.Cookie("cb_token"); err == nil {
				tokenStr = cookie
			}
		}

		if tokenStr == "" {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "缺少访问令牌")
			c.Abort()
			return
		}

		claims, err := util.ParseToken(jwtSecret, tokenStr)
		if err != nil || claims.ExpiresAt == nil || claims.ExpiresAt.Before(time.Now()) {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "令牌无效或已过期")
			c.Abort()
			return
		}

		c.Set(CallerKey, claims.Subject)
		c.Next()
	}
}
