package middleware

import (
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/response"
	"Parley/internal/pkg/security"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 负责验证 JWT 并将用户身份信息注入 Context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := security.BearerToken(c.GetHeader("Authorization"))

		claims, err := security.Authenticate(c.Request.Context(), token)
		if err != nil {
			if security.IsAuthError(err) {
				response.Fail(c, http.StatusUnauthorized, "Token 无效或已过期")
				return
			}
			log.ErrorContext(c.Request.Context(), "鉴权异常", "err", err)
			response.Fail(c, http.StatusInternalServerError, "未知错误")
			return
		}

		c.Set(consts.UserIDKey, claims.UserID)
		c.Set(consts.RolesKey, claims.Roles)
		c.Next()
	}
}
