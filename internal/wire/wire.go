package wire

import (
	"Parley/internal/api"
	"Parley/internal/api/config"
	"Parley/internal/api/handler"
	"Parley/internal/gateway"
	"Parley/internal/job"
	"Parley/internal/pkg/cron"
	"Parley/internal/pkg/media"
	"Parley/internal/pkg/minio"
	"Parley/internal/pkg/mongo"
	"Parley/internal/pkg/presence"
	"Parley/internal/pkg/storage"
	"Parley/internal/repository"
	"Parley/internal/service"
	"context"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	mongodb "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const (
	storageDriverMinio = "minio"
	storageDriverLocal = "local"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router  *gin.Engine
	DB      *gorm.DB
	Hub     *gateway.Hub
	Relay   *gateway.Relay
	CronMgr *cron.Manager
}

func BuildApplication(ctx context.Context, db *gorm.DB, mongoDB *mongodb.Database, rdb *redis.Client, cfg *config.Config) (*ApplicationContainer, error) {
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepo(db)
	messageRepo := mongo.NewMessageRepo(mongoDB)
	if err = messageRepo.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure message indexes: %w", err)
	}

	presenceStore := presence.NewStore(rdb, cfg.IM.OnlineThreshold)
	tempIndex := media.NewRedisTempIndex(rdb)

	hub := gateway.NewHub()
	var relay *gateway.Relay
	if cfg.IM.Relay.Enabled {
		relay = gateway.NewRelay(rdb, cfg.IM.Relay.Channel, hub)
		log.Info("IM 跨实例转发已开启", "channel", cfg.IM.Relay.Channel, "node", relay.Node())
	}

	voiceHandler := media.NewVoiceHandler(blobs, cfg.IM.VoiceMaxBytes)
	imService := service.NewIMService(messageRepo, userRepo, voiceHandler, blobs, tempIndex, presenceStore, hub)
	gw := gateway.NewGateway(hub, imService, presenceStore, cfg.IM)

	uploadDir := tempDir(cfg.Upload.TempDir)
	if err = os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload temp dir: %w", err)
	}
	uploader := media.NewBatchUploader(blobs, media.FFprobe{Path: cfg.LibPath.FFprobe}, tempIndex, media.Limits{
		MaxImageBytes:    cfg.Upload.MaxImageBytes,
		MaxAudioBytes:    cfg.Upload.MaxAudioBytes,
		MaxBatchBytes:    cfg.Upload.MaxBatchBytes,
		MaxVoiceDuration: cfg.Upload.MaxVoiceDuration,
	}, uploadDir)

	handlers := &api.HandlersGroup{
		IMHandler:    handler.NewIMHandler(imService),
		WsHandler:    handler.NewWsHandler(gw),
		MediaHandler: handler.NewMediaHandler(uploader, cfg.Upload.MaxBatchBytes),
	}

	router := api.SetupRouter(handlers, presenceStore, cfg.Logstash.Index)
	if cfg.Storage.Driver == storageDriverLocal {
		router.Static(cfg.Storage.PublicURL, cfg.Storage.LocalDir)
	}

	cronMgr := cron.NewCronManager(cfg.Upload.CleanupSpec, job.NewMediaCleanupJob(tempIndex, blobs, cfg.Upload.TempExpiration))

	return &ApplicationContainer{
		Router:  router,
		DB:      db,
		Hub:     hub,
		Relay:   relay,
		CronMgr: cronMgr,
	}, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.Storage.Driver {
	case storageDriverLocal:
		return storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicURL)
	case storageDriverMinio, "":
		client, err := minio.NewClient(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return storage.NewMinioStore(client, cfg.MinIO.MainBucket, minio.PublicBase(cfg.MinIO)), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func tempDir(dir string) string {
	if dir == "" {
		return filepath.Join(os.TempDir(), "parley-upload")
	}
	return dir
}
