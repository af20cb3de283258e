package handler

import (
	"Parley/internal/gateway"
	"Parley/internal/pkg/response"
	"Parley/internal/pkg/security"
	"Parley/internal/service"
	"errors"
	log "log/slog"

	"github.com/gin-gonic/gin"
)

type WsHandler struct {
	gateway *gateway.Gateway
}

func NewWsHandler(gw *gateway.Gateway) *WsHandler {
	return &WsHandler{gateway: gw}
}

// Connect 先鉴权再升级，鉴权失败直接返回 401
func (s *WsHandler) Connect(c *gin.Context) {
	token := security.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}

	claims, err := security.Authenticate(c.Request.Context(), token)
	if err != nil {
		if security.IsAuthError(err) {
			log.WarnContext(c.Request.Context(), "WS 鉴权失败", "err", err)
			response.Error(c, service.UnauthorizedError)
			return
		}
		response.Error(c, err)
		return
	}

	if err = s.gateway.Serve(c.Writer, c.Request, claims.UserID); err != nil {
		if errors.Is(err, gateway.ErrHubStopped) {
			log.WarnContext(c.Request.Context(), "IM Hub 已停止，拒绝连接", "user_id", claims.UserID)
			return
		}
		log.WarnContext(c.Request.Context(), "WS 协议升级失败", "user_id", claims.UserID, "err", err)
	}
}

// Stats 管理端查看本实例连接概况
func (s *WsHandler) Stats(c *gin.Context) {
	users, conns := s.gateway.Stats()
	response.Success(c, gin.H{
		"users":       users,
		"connections": conns,
	})
}
