package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
)

type minioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioStore publicBase 形如 https://media.example.com，对象 URL 为 publicBase/bucket/name
func NewMinioStore(client *minio.Client, bucket, publicBase string) BlobStore {
	return &minioStore{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicBase, "/"),
	}
}

func (s *minioStore) PutNew(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	// 条件写入 If-None-Match: *，由服务端保证同名对象只写入一次；分片上传不带该条件，已知大小时走单次 PUT
	opts := minio.PutObjectOptions{
		ContentType:      contentType,
		DisableMultipart: size >= 0,
	}
	opts.SetMatchETagExcept("*")

	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, opts)
	if err != nil {
		if minio.ToErrorResponse(err).Code == minio.PreconditionFailed {
			return ErrObjectExists
		}
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

func (s *minioStore) Delete(ctx context.Context, name string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *minioStore) URL(name string) string {
	return s.publicURL + "/" + s.bucket + "/" + (&url.URL{Path: name}).EscapedPath()
}
