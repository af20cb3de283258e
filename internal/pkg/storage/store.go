// Package storage 语音与媒体附件的持久化存储
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectExists = errors.New("object already exists")

// BlobStore 附件存储后端
type BlobStore interface {
	// PutNew 写入新对象；同名对象已存在时返回 ErrObjectExists，绝不覆盖
	PutNew(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, name string) error
	URL(name string) string
}
