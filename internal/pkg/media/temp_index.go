package media

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/consts"
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// TempIndex 记录批量上传后尚未被消息引用的媒体
type TempIndex interface {
	Remember(ctx context.Context, key string, meta dto.MediaTempMetadata) error
	// Claim 取出并删除记录，记录不存在时返回 ErrTempNotFound
	Claim(ctx context.Context, key string) (*dto.MediaTempMetadata, error)
	All(ctx context.Context) (map[string]dto.MediaTempMetadata, error)
	Forget(ctx context.Context, key string) error
}

type redisTempIndex struct {
	rdb redis.UniversalClient
}

func NewRedisTempIndex(rdb redis.UniversalClient) TempIndex {
	return &redisTempIndex{rdb: rdb}
}

func (s *redisTempIndex) Remember(ctx context.Context, key string, meta dto.MediaTempMetadata) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, consts.MediaTempKey, key, string(b)).Err()
}

func (s *redisTempIndex) Claim(ctx context.Context, key string) (*dto.MediaTempMetadata, error) {
	val, err := s.rdb.HGet(ctx, consts.MediaTempKey, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTempNotFound
		}
		return nil, err
	}

	// HDEL 返回 0 说明已被并发请求认领
	n, err := s.rdb.HDel(ctx, consts.MediaTempKey, key).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrTempNotFound
	}

	var meta dto.MediaTempMetadata
	if err = json.Unmarshal([]byte(val), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *redisTempIndex) All(ctx context.Context) (map[string]dto.MediaTempMetadata, error) {
	raw, err := s.rdb.HGetAll(ctx, consts.MediaTempKey).Result()
	if err != nil {
		return nil, err
	}
	res := make(map[string]dto.MediaTempMetadata, len(raw))
	for k, v := range raw {
		var meta dto.MediaTempMetadata
		if err := json.Unmarshal([]byte(v), &meta); err != nil {
			// 格式损坏的记录按已过期处理
			meta = dto.MediaTempMetadata{}
		}
		res[k] = meta
	}
	return res, nil
}

func (s *redisTempIndex) Forget(ctx context.Context, key string) error {
	return s.rdb.HDel(ctx, consts.MediaTempKey, key).Err()
}
