package api

import (
	"Parley/internal/api/middleware"
	"Parley/internal/pkg/logger"
	"Parley/internal/pkg/presence"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup, store presence.Store, logIndex string) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r, logIndex)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		messageGroup := apiGroup.Group("/messages")
		{
			// 握手阶段自行鉴权，失败时在升级前返回 401
			messageGroup.GET("/ws", group.WsHandler.Connect)

			authGroup := messageGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware(), middleware.PresenceMiddleware(store))
			{
				authGroup.GET("/conversation/:otherUserId", group.IMHandler.GetHistory)
				authGroup.POST("/:messageId/seen", group.IMHandler.MarkSeen)
				authGroup.GET("/list", group.IMHandler.GetConversationList)
				authGroup.POST("/send", group.IMHandler.SendText)
				authGroup.POST("/send-voice", group.IMHandler.SendUploadedVoice)
			}

			adminGroup := authGroup.Group("/admin")
			adminGroup.Use(middleware.CheckRoles("ADMIN"))
			{
				adminGroup.GET("/stats", group.WsHandler.Stats)
			}
		}

		mediaGroup := apiGroup.Group("/media")
		{
			mediaGroup.Use(middleware.AuthMiddleware(), middleware.PresenceMiddleware(store))
			mediaGroup.POST("/upload", group.MediaHandler.Upload)
		}
	}

	return r
}
