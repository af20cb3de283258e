package job

import (
	"Parley/internal/pkg/media"
	"Parley/internal/pkg/storage"
	"context"
	"errors"
	log "log/slog"
	"time"
)

// MediaCleanupJob 回收批量上传后超时未被消息引用的媒体
type MediaCleanupJob struct {
	index      media.TempIndex
	store      storage.BlobStore
	expiration time.Duration
	now        func() time.Time
}

func NewMediaCleanupJob(index media.TempIndex, store storage.BlobStore, expiration time.Duration) *MediaCleanupJob {
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &MediaCleanupJob{
		index:      index,
		store:      store,
		expiration: expiration,
		now:        time.Now,
	}
}

func (s *MediaCleanupJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	s.Cleanup(ctx)
}

// Cleanup 返回本次清理的数量
func (s *MediaCleanupJob) Cleanup(ctx context.Context) int {
	log.InfoContext(ctx, "start media cleanup job")

	allMedia, err := s.index.All(ctx)
	if err != nil {
		log.ErrorContext(ctx, "failed to get media temp hash", "err", err)
		return 0
	}

	deadline := s.now().Add(-s.expiration).Unix()
	count := 0

	for fileKey, meta := range allMedia {
		if meta.CreatedAt > deadline {
			continue
		}

		// 先认领再删对象，避免与发送语音并发时删掉刚被引用的文件
		claimed, err := s.index.Claim(ctx, fileKey)
		if err != nil {
			if !errors.Is(err, media.ErrTempNotFound) {
				log.ErrorContext(ctx, "failed to claim expired media", "fileKey", fileKey, "err", err)
			}
			continue
		}

		if err = s.store.Delete(ctx, fileKey); err != nil {
			log.ErrorContext(ctx, "failed to delete expired file from storage", "fileKey", fileKey, "err", err)
			if err = s.index.Remember(ctx, fileKey, *claimed); err != nil {
				log.ErrorContext(ctx, "failed to restore media temp record", "fileKey", fileKey, "err", err)
			}
			continue
		}

		count++
		log.InfoContext(ctx, "cleanup expired media resource", "fileKey", fileKey, "mime", claimed.MimeType)
	}

	if count > 0 {
		log.InfoContext(ctx, "media cleanup job finished", "cleaned_count", count)
	}
	return count
}
