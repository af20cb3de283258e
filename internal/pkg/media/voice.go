package media

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/storage"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const maxNameAttempts = 1000

// Attachment 语音附件写入后的元数据
type Attachment struct {
	Key       string
	URL       string
	Filename  string
	SizeBytes int64
	MimeType  string
}

// VoiceHandler 解码、校验并落盘语音消息附件
type VoiceHandler struct {
	store    storage.BlobStore
	maxBytes int64
	now      func() time.Time
}

func NewVoiceHandler(store storage.BlobStore, maxBytes int64) *VoiceHandler {
	return &VoiceHandler{store: store, maxBytes: maxBytes, now: time.Now}
}

// Decode 先按编码长度估算解码后大小，超限直接拒绝，避免无谓的解码与写入
func (h *VoiceHandler) Decode(p dto.BinaryPayload) ([]byte, error) {
	if p.Empty() {
		return nil, ErrEmptyPayload
	}
	if len(p.Raw) > 0 {
		if int64(len(p.Raw)) > h.maxBytes {
			return nil, ErrPayloadTooLarge
		}
		return p.Raw, nil
	}

	encoded := p.Encoded
	if strings.HasPrefix(encoded, "data:") {
		_, after, ok := strings.Cut(encoded, ",")
		if !ok {
			return nil, ErrInvalidPayload
		}
		encoded = after
	}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrEmptyPayload
	}

	if estimateDecodedLen(encoded) > h.maxBytes {
		return nil, ErrPayloadTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, ErrInvalidPayload
		}
	}
	if int64(len(data)) > h.maxBytes {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}

func estimateDecodedLen(s string) int64 {
	n := int64(len(s))
	pad := int64(len(s) - len(strings.TrimRight(s, "=")))
	return n*3/4 - pad
}

// Save 写入语音附件；文件名由时间戳构成，仅在目标已存在时追加序号
func (h *VoiceHandler) Save(ctx context.Context, conversationID string, p dto.BinaryPayload) (*Attachment, error) {
	data, err := h.Decode(p)
	if err != nil {
		return nil, err
	}

	mt := mimetype.Detect(data)
	if Classify(mt) != KindAudio {
		return nil, ErrUnsupportedMedia
	}

	ts := h.now()
	stem := fmt.Sprintf("voice_%s_%03d", ts.Format("20060102_150405"), ts.Nanosecond()/int(time.Millisecond))
	ext := mt.Extension()

	for n := 0; n < maxNameAttempts; n++ {
		filename := stem + ext
		if n > 0 {
			filename = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		key := "voice/" + conversationID + "/" + filename

		err = h.store.PutNew(ctx, key, bytes.NewReader(data), int64(len(data)), baseType(mt))
		if errors.Is(err, storage.ErrObjectExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("write voice attachment: %w", err)
		}

		return &Attachment{
			Key:       key,
			URL:       h.store.URL(key),
			Filename:  filename,
			SizeBytes: int64(len(data)),
			MimeType:  baseType(mt),
		}, nil
	}
	return nil, ErrNameExhausted
}
