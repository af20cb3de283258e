package gateway

import (
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client 单个 WebSocket 连接
type Client struct {
	id     string
	userID uint64
	conn   *websocket.Conn
	// 只由 Hub.Run 写入与关闭
	send chan []byte
}

func newClient(conn *websocket.Conn, userID uint64, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
	}
}

// readPump 同一连接的事件按顺序逐个处理
func (c *Client) readPump(ctx context.Context, g *Gateway) {
	defer func() {
		g.hub.Unregister(c)
		g.presence.Touch(ctx, c.userID)
		_ = c.conn.Close()
		log.InfoContext(ctx, "用户 WS 连接已断开", "user_id", c.userID)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WarnContext(ctx, "WS 读取失败", "user_id", c.userID, "err", err)
			}
			return
		}
		// 超限帧整帧丢弃后回复错误，连接保持打开
		data, oversized, err := readFrame(r, g.readLimit)
		if err != nil {
			log.WarnContext(ctx, "WS 读取帧失败", "user_id", c.userID, "err", err)
			return
		}
		if oversized != nil {
			g.rejectOversized(ctx, c, oversized)
			continue
		}
		g.handle(ctx, c, data)
	}
}

// writePump send 被 Hub 关闭后发送 close 帧并退出
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.WarnContext(ctx, "WS 推送失败", "user_id", c.userID, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
