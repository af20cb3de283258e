package cron

import (
	"Parley/internal/job"
	"fmt"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultCleanupSpec 每小时整点回收过期临时媒体
const DefaultCleanupSpec = "0 0 * * * *"

type Manager struct {
	engine          *cron.Cron
	cleanupSpec     string
	mediaCleanupJob *job.MediaCleanupJob
}

// NewCronManager cleanupSpec 为带秒字段的 cron 表达式，空串取 DefaultCleanupSpec
func NewCronManager(cleanupSpec string, mediaCleanupJob *job.MediaCleanupJob) *Manager {
	if cleanupSpec == "" {
		cleanupSpec = DefaultCleanupSpec
	}
	return &Manager{
		engine:          cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cleanupSpec:     cleanupSpec,
		mediaCleanupJob: mediaCleanupJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.cleanupSpec, s.mediaCleanupJob); err != nil {
		return fmt.Errorf("register media cleanup %q: %w", s.cleanupSpec, err)
	}
	return nil
}

func (s *Manager) Entries() int {
	return len(s.engine.Entries())
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动")
	s.engine.Start()
}

// Stop 等待正在执行的任务结束
func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
