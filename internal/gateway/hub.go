package gateway

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/consts"
	"context"
	log "log/slog"
	"sync"

	"github.com/goccy/go-json"
)

type targetKind string

const (
	targetUsers  targetKind = "users"
	targetRoom   targetKind = "room"
	targetAll    targetKind = "all"
	targetClient targetKind = "client"
)

// delivery 一次投递，frame 在调用方协程内完成编码
type delivery struct {
	kind        targetKind
	userIDs     []uint64
	room        string
	client      *Client
	excludeUser uint64
	frame       []byte
}

type joinRequest struct {
	room   string
	client *Client
}

// Hub 独占 Registry，所有注册、注销、加入房间与投递都在 Run 协程内串行执行。
// 只有 Run 协程会写入或关闭 Client.send。
type Hub struct {
	registry   *Registry
	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	deliver    chan *delivery
	queries    chan func(*Registry)

	done     chan struct{}
	stopOnce sync.Once

	relay *Relay
}

func NewHub() *Hub {
	return &Hub{
		registry:   NewRegistry(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		deliver:    make(chan *delivery, 1024),
		queries:    make(chan func(*Registry)),
		done:       make(chan struct{}),
	}
}

// UseRelay 开启跨实例转发，需在 Run 之前调用
func (h *Hub) UseRelay(r *Relay) {
	h.relay = r
}

func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run 事件循环，ctx 取消后关闭全部连接的发送队列
func (h *Hub) Run(ctx context.Context) {
	log.Info("IM Hub started")
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			if h.registry.Register(c.userID, c) {
				h.broadcastPresence(c.userID, consts.PresenceOnline)
			}
			log.Debug("WS 连接注册", "user_id", c.userID, "conn_id", c.id, "conns", len(h.registry.HandlesFor(c.userID)))

		case c := <-h.unregister:
			if !h.registry.Has(c) {
				continue
			}
			last := h.registry.Unregister(c.userID, c)
			close(c.send)
			if last {
				h.broadcastPresence(c.userID, consts.PresenceOffline)
			}
			log.Debug("WS 连接注销", "user_id", c.userID, "conn_id", c.id, "last", last)

		case j := <-h.join:
			h.registry.Join(j.room, j.client)

		case d := <-h.deliver:
			h.dispatch(d)

		case fn := <-h.queries:
			fn(h.registry)
		}
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() {
		close(h.done)
		for _, c := range h.registry.All() {
			h.registry.Unregister(c.userID, c)
			close(c.send)
		}
		log.Info("IM Hub stopped")
	})
}

func (h *Hub) dispatch(d *delivery) {
	switch d.kind {
	case targetUsers:
		seen := make(map[uint64]struct{}, len(d.userIDs))
		for _, uid := range d.userIDs {
			if _, dup := seen[uid]; dup {
				continue
			}
			seen[uid] = struct{}{}
			for _, c := range h.registry.HandlesFor(uid) {
				h.push(c, d.frame)
			}
		}
	case targetRoom:
		for _, c := range h.registry.RoomMembers(d.room) {
			if c.userID == d.excludeUser {
				continue
			}
			h.push(c, d.frame)
		}
	case targetAll:
		for _, c := range h.registry.All() {
			h.push(c, d.frame)
		}
	case targetClient:
		if h.registry.Has(d.client) {
			h.push(d.client, d.frame)
		}
	}
}

// push 发送队列已满时丢弃该帧，不阻塞事件循环
func (h *Hub) push(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		log.Warn("WS 发送队列已满，丢弃消息", "user_id", c.userID, "conn_id", c.id)
	}
}

func (h *Hub) broadcastPresence(userID uint64, status string) {
	frame, err := encodeFrame(dto.EventPresenceUpdate, &dto.PresenceUpdate{UserID: userID, Status: status}, "")
	if err != nil {
		log.Error("presence 编码失败", "err", err)
		return
	}
	d := &delivery{kind: targetAll, frame: frame}
	h.dispatch(d)
	if h.relay != nil {
		go h.relay.Publish(context.Background(), d)
	}
}

// Register 阻塞直到 Hub 接收；Hub 已停止时返回 false
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) Join(room string, c *Client) {
	select {
	case h.join <- joinRequest{room: room, client: c}:
	case <-h.done:
	}
}

// enqueue 投递到本地连接，不经过 relay
func (h *Hub) enqueue(d *delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}

// publish 本地投递并转发给其他实例
func (h *Hub) publish(ctx context.Context, d *delivery) {
	h.enqueue(d)
	if h.relay != nil && d.kind != targetClient {
		h.relay.Publish(ctx, d)
	}
}

// DeliverToUsers 投递到指定用户的全部连接
func (h *Hub) DeliverToUsers(event string, payload any, userIDs ...uint64) {
	frame, err := encodeFrame(event, payload, "")
	if err != nil {
		log.Error("WS 消息编码失败", "event", event, "err", err)
		return
	}
	h.publish(context.Background(), &delivery{kind: targetUsers, userIDs: userIDs, frame: frame})
}

// DeliverToRoom 投递给房间成员，跳过 excludeUser 的所有连接
func (h *Hub) DeliverToRoom(room, event string, payload any, excludeUser uint64) {
	frame, err := encodeFrame(event, payload, "")
	if err != nil {
		log.Error("WS 消息编码失败", "event", event, "err", err)
		return
	}
	h.publish(context.Background(), &delivery{kind: targetRoom, room: room, excludeUser: excludeUser, frame: frame})
}

// Reply 仅回复给发起请求的连接
func (h *Hub) Reply(c *Client, event string, payload any, ackID string) {
	frame, err := encodeFrame(event, payload, ackID)
	if err != nil {
		log.Error("WS 回执编码失败", "event", event, "err", err)
		return
	}
	h.enqueue(&delivery{kind: targetClient, client: c, frame: frame})
}

func (h *Hub) IsLocallyOnline(userID uint64) bool {
	res := make(chan bool, 1)
	if !h.query(func(r *Registry) { res <- r.IsLocallyOnline(userID) }) {
		return false
	}
	return <-res
}

// Stats 在线用户数与连接数
func (h *Hub) Stats() (users, conns int) {
	res := make(chan [2]int, 1)
	if !h.query(func(r *Registry) { res <- [2]int{r.Users(), len(r.All())} }) {
		return 0, 0
	}
	s := <-res
	return s[0], s[1]
}

func (h *Hub) query(fn func(*Registry)) bool {
	select {
	case h.queries <- fn:
		return true
	case <-h.done:
		return false
	}
}

func encodeFrame(event string, payload any, ackID string) ([]byte, error) {
	return json.Marshal(&dto.OutFrame{Event: event, Data: payload, AckID: ackID})
}
