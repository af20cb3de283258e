// Package gateway WebSocket 网关：连接注册、事件分发与在线状态广播
package gateway

import (
	"Parley/internal/api/config"
	"Parley/internal/api/dto"
	"Parley/internal/pkg/conversation"
	"Parley/internal/pkg/logger"
	"Parley/internal/pkg/media"
	"Parley/internal/pkg/presence"
	"Parley/internal/pkg/util"
	"Parley/internal/service"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var ErrHubStopped = errors.New("im hub stopped")

type Gateway struct {
	hub        *Hub
	svc        service.IMService
	presence   presence.Store
	upgrader   websocket.Upgrader
	readLimit  int64
	sendBuffer int
}

func NewGateway(hub *Hub, svc service.IMService, store presence.Store, cfg config.IMConfig) *Gateway {
	readLimit := cfg.ReadLimitBytes
	if readLimit <= 0 {
		readLimit = 28 * config.MiB
	}
	return &Gateway{
		hub:      hub,
		svc:      svc,
		presence: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		readLimit:  readLimit,
		sendBuffer: cfg.SendBuffer,
	}
}

// Serve 升级连接并阻塞到连接关闭，调用前需完成鉴权
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, userID uint64) error {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := newClient(conn, userID, g.sendBuffer)
	// 断开连接不应中断正在进行的入库
	ctx := logger.WithConnID(context.WithoutCancel(r.Context()), c.id)

	if !g.hub.Register(c) {
		_ = conn.Close()
		return ErrHubStopped
	}
	g.presence.Touch(ctx, userID)
	log.InfoContext(ctx, "用户 WS 连接已建立", "user_id", userID)

	go c.writePump(ctx)
	c.readPump(ctx, g)
	return nil
}

// Stats 本实例在线用户数与连接数
func (g *Gateway) Stats() (users, conns int) {
	return g.hub.Stats()
}

func (g *Gateway) handle(ctx context.Context, c *Client, data []byte) {
	var in dto.InFrame
	if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
		g.fail(ctx, c, &in, fmt.Errorf("%w: malformed frame", service.ErrParamInvalid))
		return
	}
	g.presence.Touch(ctx, c.userID)

	switch in.Event {
	case dto.EventJoin:
		g.onJoin(ctx, c, &in)
	case dto.EventTyping:
		g.onTyping(c, &in)
	case dto.EventSendText:
		g.onSendText(ctx, c, &in)
	case dto.EventSendVoice:
		g.onSendVoice(ctx, c, &in)
	case dto.EventMarkSeen:
		g.onMarkSeen(ctx, c, &in)
	default:
		g.fail(ctx, c, &in, fmt.Errorf("%w: unknown event %q", service.ErrParamInvalid, in.Event))
	}
}

func (g *Gateway) rejectOversized(ctx context.Context, c *Client, hint *frameHint) {
	g.presence.Touch(ctx, c.userID)
	log.WarnContext(ctx, "WS 帧超过大小限制", "user_id", c.userID, "event", hint.event, "limit", g.readLimit)
	g.fail(ctx, c, &dto.InFrame{Event: hint.event, AckID: hint.ackID}, media.ErrPayloadTooLarge)
}

func decode[T any](in *dto.InFrame) (*T, error) {
	var req T
	if len(in.Data) == 0 {
		return nil, service.ErrParamInvalid
	}
	if err := json.Unmarshal(in.Data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrParamInvalid, err)
	}
	return &req, nil
}

func decodeValid[T any](in *dto.InFrame) (*T, error) {
	req, err := decode[T](in)
	if err != nil {
		return nil, err
	}
	if err = util.ValidateDTO(req); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrParamInvalid, err)
	}
	return req, nil
}

func (g *Gateway) onJoin(ctx context.Context, c *Client, in *dto.InFrame) {
	req, err := decodeValid[dto.JoinReq](in)
	if err != nil {
		g.fail(ctx, c, in, err)
		return
	}
	room, err := conversation.ID(c.userID, req.PeerID)
	if err != nil {
		g.fail(ctx, c, in, service.ErrSelfMessage)
		return
	}
	g.hub.Join(room, c)
	g.ack(c, in, nil)
}

// onTyping 尽力而为，任何失败都静默丢弃
func (g *Gateway) onTyping(c *Client, in *dto.InFrame) {
	req, err := decodeValid[dto.TypingReq](in)
	if err != nil {
		return
	}
	room, err := conversation.ID(c.userID, req.PeerID)
	if err != nil {
		return
	}
	g.hub.DeliverToRoom(room, dto.EventTyping, &dto.TypingEvent{UserID: c.userID, IsTyping: req.IsTyping}, c.userID)
}

func (g *Gateway) onSendText(ctx context.Context, c *Client, in *dto.InFrame) {
	req, err := decode[dto.SendTextReq](in)
	if err != nil {
		g.fail(ctx, c, in, err)
		return
	}
	msg, err := g.svc.SendText(ctx, c.userID, req)
	if err != nil {
		g.fail(ctx, c, in, err)
		return
	}
	g.ack(c, in, msg)
}

func (g *Gateway) onSendVoice(ctx context.Context, c *Client, in *dto.InFrame) {
	req, err := decode[dto.SendVoiceReq](in)
	if err != nil {
		g.fail(ctx, c, in, err)
		return
	}
	msg, err := g.svc.SendVoice(ctx, c.userID, req)
	if err != nil {
		g.fail(ctx, c, in, err)
		return
	}
	g.ack(c, in, msg)
}

// onMarkSeen 消息不存在或调用方不是接收者时静默忽略，不暴露消息是否存在
func (g *Gateway) onMarkSeen(ctx context.Context, c *Client, in *dto.InFrame) {
	req, err := decodeValid[dto.MarkSeenReq](in)
	if err != nil {
		g.fail(ctx, c, in, err)
		return
	}
	msg, transitioned, err := g.svc.MarkSeen(ctx, c.userID, req.MessageID)
	switch {
	case errors.Is(err, service.ErrMessageNotFound), errors.Is(err, service.ErrNotReceiver):
		g.ack(c, in, nil)
		return
	case err != nil:
		g.fail(ctx, c, in, err)
		return
	}
	if !transitioned {
		g.ack(c, in, nil)
		return
	}
	g.hub.Reply(c, dto.EventMessageSeenAck, service.SeenEventFromDTO(msg), in.AckID)
}

// ack 仅在请求携带 ackId 时回执
func (g *Gateway) ack(c *Client, in *dto.InFrame, msg *dto.MessageDTO) {
	if in.AckID == "" {
		return
	}
	g.hub.Reply(c, dto.EventAck, &dto.AckResp{Success: true, Message: msg}, in.AckID)
}

// fail 错误只回给发起连接，连接保持打开
func (g *Gateway) fail(ctx context.Context, c *Client, in *dto.InFrame, err error) {
	code, _ := service.StatusOf(err)
	msg := service.PublicMessage(err)
	if code >= service.InternalServerError {
		log.ErrorContext(ctx, "WS 事件处理失败", "event", in.Event, "user_id", c.userID, "err", err)
	}

	if in.AckID != "" {
		g.hub.Reply(c, dto.EventAck, &dto.AckResp{Success: false, Error: msg}, in.AckID)
		return
	}
	g.hub.Reply(c, dto.EventError, &dto.ErrorResp{Event: in.Event, Code: code, Message: msg}, "")
}
