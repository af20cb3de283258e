package gateway

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRelayChannel = "im:relay"

// Envelope 跨实例转发的投递
type Envelope struct {
	Node        string          `json:"node"`
	Kind        targetKind      `json:"kind"`
	UserIDs     []uint64        `json:"userIds,omitempty"`
	Room        string          `json:"room,omitempty"`
	ExcludeUser uint64          `json:"excludeUser,omitempty"`
	Frame       json.RawMessage `json:"frame"`
}

// Relay 通过 Redis Pub/Sub 把投递广播到其他网关实例，在线判断仍以本地为准
type Relay struct {
	rdb     redis.UniversalClient
	channel string
	node    string
	hub     *Hub
}

func NewRelay(rdb redis.UniversalClient, channel string, hub *Hub) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	r := &Relay{rdb: rdb, channel: channel, node: uuid.NewString(), hub: hub}
	hub.UseRelay(r)
	return r
}

func (r *Relay) Node() string {
	return r.node
}

// Publish 失败只记日志，本地投递不受影响
func (r *Relay) Publish(ctx context.Context, d *delivery) {
	env := &Envelope{
		Node:        r.node,
		Kind:        d.kind,
		UserIDs:     d.userIDs,
		Room:        d.room,
		ExcludeUser: d.excludeUser,
		Frame:       d.frame,
	}
	b, err := json.Marshal(env)
	if err != nil {
		log.ErrorContext(ctx, "relay 编码失败", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err = r.rdb.Publish(ctx, r.channel, b).Err(); err != nil {
		log.WarnContext(ctx, "relay 发布失败", "channel", r.channel, "err", err)
	}
}

// Run 订阅频道并把其他实例的投递注入本地 Hub，ctx 取消后退出
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer func() {
		_ = sub.Close()
	}()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	log.Info("IM relay subscribed", "channel", r.channel, "node", r.node)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) handle(payload string) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Warn("relay 消息格式错误", "err", err)
		return
	}
	if env.Node == r.node {
		return
	}
	switch env.Kind {
	case targetUsers, targetRoom, targetAll:
	default:
		return
	}
	r.hub.enqueue(&delivery{
		kind:        env.Kind,
		userIDs:     env.UserIDs,
		room:        env.Room,
		excludeUser: env.ExcludeUser,
		frame:       env.Frame,
	})
}
