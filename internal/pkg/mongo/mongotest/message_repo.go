// Package mongotest 提供 MessageRepo 的内存实现，供上层包测试使用
package mongotest

import (
	"Parley/internal/pkg/mongo"
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageRepo struct {
	mu   sync.Mutex
	msgs map[primitive.ObjectID]*mongo.Message
	// 固定时钟，每次 Create 前进 1ms，保证顺序可预期
	clock time.Time
	// FailCreate 不为空时 Create 直接返回该错误
	FailCreate error
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{
		msgs:  make(map[primitive.ObjectID]*mongo.Message),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func clone(m *mongo.Message) *mongo.Message {
	c := *m
	if m.Voice != nil {
		v := *m.Voice
		c.Voice = &v
	}
	return &c
}

func (r *MessageRepo) Create(_ context.Context, msg *mongo.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate != nil {
		return r.FailCreate
	}
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	r.clock = r.clock.Add(time.Millisecond)
	msg.CreatedAt = r.clock
	r.msgs[msg.ID] = clone(msg)
	return nil
}

// Put 直接写入一条记录，保留调用方给定的 CreatedAt
func (r *MessageRepo) Put(msg *mongo.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	r.msgs[msg.ID] = clone(msg)
}

func (r *MessageRepo) FindByID(_ context.Context, id string) (*mongo.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[oid]
	if !ok {
		return nil, nil
	}
	return clone(m), nil
}

// sorted 返回满足条件的消息，created_at 倒序，_id 倒序
func (r *MessageRepo) sorted(keep func(*mongo.Message) bool) []*mongo.Message {
	res := make([]*mongo.Message, 0)
	for _, m := range r.msgs {
		if keep(m) {
			res = append(res, clone(m))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID.Hex() > res[j].ID.Hex()
	})
	return res
}

func (r *MessageRepo) FindByConversation(_ context.Context, q mongo.HistoryQuery) ([]*mongo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.sorted(func(m *mongo.Message) bool {
		if m.ConversationID != q.ConversationID || !m.VisibleTo(q.ViewerID) {
			return false
		}
		return q.Before == nil || m.CreatedAt.Before(*q.Before)
	})
	if q.Limit > 0 && len(res) > q.Limit {
		res = res[:q.Limit]
	}
	return res, nil
}

func (r *MessageRepo) CountOlderThan(_ context.Context, conversationID string, viewerID uint64, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.msgs {
		if m.ConversationID == conversationID && m.VisibleTo(viewerID) && m.CreatedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) MarkSeen(_ context.Context, id string, receiverID uint64, at time.Time) (*mongo.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[oid]
	if !ok || m.ReceiverID != receiverID || m.IsSeen {
		return nil, nil
	}
	m.IsSeen = true
	seenAt := at
	m.SeenAt = &seenAt
	return clone(m), nil
}

func (r *MessageRepo) LatestPerCounterpart(_ context.Context, userID uint64) ([]*mongo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	res := make([]*mongo.Message, 0)
	for _, m := range r.sorted(func(m *mongo.Message) bool { return m.VisibleTo(userID) }) {
		if _, ok := seen[m.ConversationID]; ok {
			continue
		}
		seen[m.ConversationID] = struct{}{}
		res = append(res, m)
	}
	return res, nil
}

func (r *MessageRepo) EnsureIndexes(context.Context) error {
	return nil
}

// Len 当前记录数
func (r *MessageRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}
