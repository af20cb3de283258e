package api

import (
	"Parley/internal/api/handler"
	"Parley/internal/pkg/presence"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestSetupRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	r := SetupRouter(&HandlersGroup{
		IMHandler:    handler.NewIMHandler(nil),
		WsHandler:    handler.NewWsHandler(nil),
		MediaHandler: handler.NewMediaHandler(nil, 0),
	}, presence.NewStore(rdb, 0), "test")

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/api/ping", http.StatusOK},
		{http.MethodGet, "/api/messages/ws", http.StatusUnauthorized},
		{http.MethodGet, "/api/messages/list", http.StatusUnauthorized},
		{http.MethodGet, "/api/messages/conversation/2", http.StatusUnauthorized},
		{http.MethodPost, "/api/messages/65f000000000000000000000/seen", http.StatusUnauthorized},
		{http.MethodPost, "/api/messages/send", http.StatusUnauthorized},
		{http.MethodPost, "/api/messages/send-voice", http.StatusUnauthorized},
		{http.MethodGet, "/api/messages/admin/stats", http.StatusUnauthorized},
		{http.MethodPost, "/api/media/upload", http.StatusUnauthorized},
		{http.MethodOptions, "/api/messages/list", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Origin", "http://localhost:3000")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
		})
	}
}
