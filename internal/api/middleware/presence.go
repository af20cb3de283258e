package middleware

import (
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/presence"

	"github.com/gin-gonic/gin"
)

// PresenceMiddleware 已登录请求刷新最后活跃时间，需放在 AuthMiddleware 之后
func PresenceMiddleware(store presence.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := c.GetUint64(consts.UserIDKey); uid != 0 {
			store.Touch(c.Request.Context(), uid)
		}
		c.Next()
	}
}
