package logger

import (
	"context"
	log "log/slog"
	"time"

	"go.mongodb.org/mongo-driver/event"
)

const mongoCmdLogLimit = 1000

// 写命令携带消息正文，不输出命令详情
var mongoWriteCommands = map[string]struct{}{
	"insert":        {},
	"update":        {},
	"findAndModify": {},
}

func NewMongoMonitor(slowThreshold time.Duration) *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(ctx context.Context, evt *event.CommandStartedEvent) {
			fields := []any{
				log.String("command", evt.CommandName),
				log.String("database", evt.DatabaseName),
				log.Int64("request_id", evt.RequestID),
			}
			if _, write := mongoWriteCommands[evt.CommandName]; !write {
				cmdStr := evt.Command.String()
				if len(cmdStr) > mongoCmdLogLimit {
					cmdStr = cmdStr[:mongoCmdLogLimit] + "...[truncated]"
				}
				fields = append(fields, log.String("cmd_detail", cmdStr))
			}
			log.DebugContext(ctx, "MongoDB Started", fields...)
		},
		Succeeded: func(ctx context.Context, evt *event.CommandSucceededEvent) {
			fields := []any{
				log.String("command", evt.CommandName),
				log.Duration("latency", evt.Duration),
				log.Int64("request_id", evt.RequestID),
			}
			if evt.Duration > slowThreshold {
				log.WarnContext(ctx, "MongoDB Slow", fields...)
				return
			}
			log.DebugContext(ctx, "MongoDB Success", fields...)
		},
		Failed: func(ctx context.Context, evt *event.CommandFailedEvent) {
			log.ErrorContext(ctx, "MongoDB Error",
				log.String("command", evt.CommandName),
				log.Duration("latency", evt.Duration),
				log.Int64("request_id", evt.RequestID),
				log.Any("err", evt.Failure),
			)
		},
	}
}
