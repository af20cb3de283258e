package middleware

import (
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/response"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// CheckRoles 当前用户至少拥有一个指定角色
func CheckRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles := c.GetStringSlice(consts.RolesKey)
		if !slices.ContainsFunc(requiredRoles, func(r string) bool { return slices.Contains(roles, r) }) {
			response.Fail(c, http.StatusForbidden, "权限不足：无权访问该资源")
			return
		}
		c.Next()
	}
}
