package logger

import (
	"context"
	log "log/slog"
)

type ctxKey string

// TraceIDKey 定义 Context 中的 Key
const TraceIDKey = "trace_id"

const (
	traceCtxKey ctxKey = TraceIDKey
	connCtxKey  ctxKey = "conn_id"
)

// WithTraceID 将 trace_id 写入 ctx
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceCtxKey, traceID)
}

// WithConnID WebSocket 连接级别的标识，同一连接的日志可串联
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connCtxKey, connID)
}

// TraceID 读取 ctx 中的 trace_id
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceCtxKey).(string)
	return id
}

// ContextHandler 包装器，用于从 ctx 中提取 trace_id / conn_id
type ContextHandler struct {
	log.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r log.Record) error {
	if ctx != nil {
		if traceID, ok := ctx.Value(traceCtxKey).(string); ok {
			r.AddAttrs(log.String(TraceIDKey, traceID))
		}
		if connID, ok := ctx.Value(connCtxKey).(string); ok {
			r.AddAttrs(log.String("conn_id", connID))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []log.Attr) log.Handler {
	return &ContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) log.Handler {
	return &ContextHandler{h.Handler.WithGroup(name)}
}
