package minio

import (
	"Parley/internal/api/config"
	"context"
	"fmt"
	log "log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewClient 初始化 MinIO 客户端并确保主桶存在
func NewClient(ctx context.Context, cfg config.MinIOConfig) (*minio.Client, error) {
	var endpoint string
	var useSSL bool
	if cfg.InternalEndpoint != "" {
		endpoint = cfg.InternalEndpoint
		useSSL = cfg.InternalUseSSL
	} else {
		endpoint = cfg.ExternalEndpoint
		useSSL = true
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MainBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to minio server: %w", err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.MainBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MainBucket, err)
		}
		log.Info("MinIO bucket created", "bucket", cfg.MainBucket)
	}

	log.Info("MinIO initialized successfully", "endpoint", endpoint)
	return client, nil
}

// PublicBase 对外访问对象时使用的地址前缀
func PublicBase(cfg config.MinIOConfig) string {
	if cfg.UsePublicLink && cfg.ExternalEndpoint != "" {
		return "https://" + cfg.ExternalEndpoint
	}
	if cfg.InternalUseSSL {
		return "https://" + cfg.InternalEndpoint
	}
	return "http://" + cfg.InternalEndpoint
}
