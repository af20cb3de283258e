package cron

import log "log/slog"

// InitCron 注册全部任务后启动引擎；表达式非法时不启动
func InitCron(mgr *Manager) error {
	if err := mgr.RegisterJobs(); err != nil {
		return err
	}
	mgr.Start()
	log.Info("Cron Jobs started", "entries", mgr.Entries(), "media_cleanup", mgr.cleanupSpec)
	return nil
}
