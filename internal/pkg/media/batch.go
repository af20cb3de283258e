package media

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/storage"
	"context"
	"fmt"
	"io"
	log "log/slog"
	"mime/multipart"
	"os"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Limits 批量上传校验阈值
type Limits struct {
	MaxImageBytes    int64
	MaxAudioBytes    int64
	MaxBatchBytes    int64
	MaxVoiceDuration time.Duration
}

type staged struct {
	header   *multipart.FileHeader
	path     string
	size     int64
	mime     string
	ext      string
	duration time.Duration
}

// BatchUploader 图片/语音批量上传：先落临时文件逐一校验，全部通过后才写入存储
type BatchUploader struct {
	store   storage.BlobStore
	prober  Prober
	index   TempIndex
	limits  Limits
	tempDir string
	now     func() time.Time
}

func NewBatchUploader(store storage.BlobStore, prober Prober, index TempIndex, limits Limits, tempDir string) *BatchUploader {
	return &BatchUploader{
		store:   store,
		prober:  prober,
		index:   index,
		limits:  limits,
		tempDir: tempDir,
		now:     time.Now,
	}
}

// Upload 任一文件校验失败时，本批次已写入的临时文件全部删除后再返回错误；
// 临时记录归属 uploaderID，只有上传者本人能认领
func (u *BatchUploader) Upload(ctx context.Context, uploaderID uint64, files []*multipart.FileHeader) ([]*dto.MediaUploadDTO, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	var batch []*staged
	defer func() {
		for _, s := range batch {
			_ = os.Remove(s.path)
		}
	}()

	var total int64
	for _, fh := range files {
		s, err := u.stage(fh)
		if s != nil {
			batch = append(batch, s)
		}
		if err != nil {
			return nil, err
		}

		total += s.size
		if total > u.limits.MaxBatchBytes {
			return nil, ErrBatchTooLarge
		}

		if err = u.validate(ctx, s); err != nil {
			return nil, err
		}
	}

	return u.commit(ctx, uploaderID, batch)
}

// stage 写入临时文件；写入过程中超出单文件上限即停止
func (u *BatchUploader) stage(fh *multipart.FileHeader) (*staged, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(u.tempDir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	s := &staged{header: fh, path: tmp.Name()}

	limit := max(u.limits.MaxImageBytes, u.limits.MaxAudioBytes)
	n, err := io.Copy(tmp, io.LimitReader(src, limit+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return s, fmt.Errorf("write temp file: %w", err)
	}
	s.size = n
	if n > limit {
		return s, ErrPayloadTooLarge
	}
	return s, nil
}

func (u *BatchUploader) validate(ctx context.Context, s *staged) error {
	mt, err := mimetype.DetectFile(s.path)
	if err != nil {
		return fmt.Errorf("detect mime: %w", err)
	}
	s.mime = baseType(mt)
	s.ext = mt.Extension()

	switch Classify(mt) {
	case KindImage:
		if s.size > u.limits.MaxImageBytes {
			return ErrPayloadTooLarge
		}
	case KindAudio:
		if s.size > u.limits.MaxAudioBytes {
			return ErrPayloadTooLarge
		}
		d, err := u.prober.Duration(ctx, s.path)
		if err != nil {
			log.WarnContext(ctx, "probe voice duration failed", "file", s.header.Filename, "err", err)
			return ErrProbeFailed
		}
		if d > u.limits.MaxVoiceDuration {
			return ErrVoiceTooLong
		}
		s.duration = d
	default:
		return ErrUnsupportedMedia
	}
	return nil
}

// commit 上传到存储；中途失败则回滚本批次已上传的对象
func (u *BatchUploader) commit(ctx context.Context, uploaderID uint64, batch []*staged) ([]*dto.MediaUploadDTO, error) {
	res := make([]*dto.MediaUploadDTO, 0, len(batch))
	var uploaded []string

	rollback := func() {
		for _, key := range uploaded {
			if err := u.store.Delete(ctx, key); err != nil {
				log.ErrorContext(ctx, "rollback uploaded media failed", "key", key, "err", err)
			}
			_ = u.index.Forget(ctx, key)
		}
	}

	for _, s := range batch {
		ext := s.ext
		if ext == "" {
			ext = path.Ext(s.header.Filename)
		}
		key := "upload/" + u.now().Format("2006/01/02/") + uuid.NewString() + ext

		f, err := os.Open(s.path)
		if err != nil {
			rollback()
			return nil, err
		}
		err = u.store.PutNew(ctx, key, f, s.size, s.mime)
		_ = f.Close()
		if err != nil {
			rollback()
			return nil, err
		}
		uploaded = append(uploaded, key)

		meta := dto.MediaTempMetadata{
			UploaderID: uploaderID,
			MimeType:   s.mime,
			Size:       s.size,
			Duration:   s.duration.Seconds(),
			CreatedAt:  u.now().Unix(),
		}
		if err = u.index.Remember(ctx, key, meta); err != nil {
			rollback()
			return nil, err
		}

		res = append(res, &dto.MediaUploadDTO{
			URL:      u.store.URL(key),
			Key:      key,
			Mime:     s.mime,
			Size:     s.size,
			Duration: meta.Duration,
			Original: s.header.Filename,
		})
	}
	return res, nil
}
