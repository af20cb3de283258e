// Package presence 基于 Redis 的最后活跃时间记录，跨进程推导在线状态
package presence

import (
	"Parley/internal/pkg/consts"
	"context"
	"errors"
	log "log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultOnlineThreshold = 5 * time.Minute

// Status 用户在线状态
type Status struct {
	Online     bool       `json:"online"`
	LastActive *time.Time `json:"lastActive"`
}

type Store interface {
	Touch(ctx context.Context, userID uint64)
	StatusOf(ctx context.Context, userID uint64) Status
	StatusOfMany(ctx context.Context, userIDs []uint64) map[uint64]Status
}

type redisStore struct {
	rdb       redis.UniversalClient
	threshold time.Duration
	now       func() time.Time
}

func NewStore(rdb redis.UniversalClient, threshold time.Duration) Store {
	if threshold <= 0 {
		threshold = DefaultOnlineThreshold
	}
	return &redisStore{rdb: rdb, threshold: threshold, now: time.Now}
}

func key(userID uint64) string {
	return consts.IMPresenceKey + strconv.FormatUint(userID, 10)
}

// Touch 覆盖写入最后活跃时间，失败只记日志
func (s *redisStore) Touch(ctx context.Context, userID uint64) {
	if userID == 0 {
		return
	}
	ms := s.now().UnixMilli()
	if err := s.rdb.Set(ctx, key(userID), ms, 0).Err(); err != nil {
		log.WarnContext(ctx, "presence touch failed", "userID", userID, "err", err)
	}
}

func (s *redisStore) StatusOf(ctx context.Context, userID uint64) Status {
	val, err := s.rdb.Get(ctx, key(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WarnContext(ctx, "presence read failed", "userID", userID, "err", err)
		}
		return Status{}
	}
	return s.derive(val)
}

func (s *redisStore) StatusOfMany(ctx context.Context, userIDs []uint64) map[uint64]Status {
	res := make(map[uint64]Status, len(userIDs))
	if len(userIDs) == 0 {
		return res
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = key(id)
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		log.WarnContext(ctx, "presence batch read failed", "count", len(keys), "err", err)
		for _, id := range userIDs {
			res[id] = Status{}
		}
		return res
	}

	for i, id := range userIDs {
		str, ok := vals[i].(string)
		if !ok {
			res[id] = Status{}
			continue
		}
		res[id] = s.derive(str)
	}
	return res
}

func (s *redisStore) derive(val string) Status {
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return Status{}
	}
	last := time.UnixMilli(ms)
	return Status{
		Online:     s.now().Sub(last) <= s.threshold,
		LastActive: &last,
	}
}
