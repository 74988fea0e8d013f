package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	dispatchIDKey ctxKey = "dispatch_id"
	userKey       ctxKey = "user"
	commandKey    ctxKey = "command"
)

// WithDispatch tags ctx with the identifiers of one command dispatch.
func WithDispatch(ctx context.Context, dispatchID, user, command string) context.Context {
	ctx = context.WithValue(ctx, dispatchIDKey, dispatchID)
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, commandKey, command)
}

// DispatchID returns the dispatch id stored by WithDispatch, if any.
func DispatchID(ctx context.Context) string {
	id, _ := ctx.Value(dispatchIDKey).(string)
	return id
}

// ContextLogger provides context-aware logging
type ContextLogger struct {
	logger *zap.SugaredLogger
}

func NewContextLogger(logger *zap.SugaredLogger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext returns a logger carrying the dispatch fields found on ctx.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.SugaredLogger {
	var fields []interface{}
	for _, key := range []ctxKey{dispatchIDKey, userKey, commandKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, string(key), v)
		}
	}
	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}

func (cl *ContextLogger) LogError(ctx context.Context, err error, message string, keysAndValues ...interface{}) {
	cl.WithContext(ctx).With("error", err).Errorw(message, keysAndValues...)
}

func (cl *ContextLogger) LogInfo(ctx context.Context, message string, keysAndValues ...interface{}) {
	cl.WithContext(ctx).Infow(message, keysAndValues...)
}

func (cl *ContextLogger) LogDebug(ctx context.Context, message string, keysAndValues ...interface{}) {
	cl.WithContext(ctx).Debugw(message, keysAndValues...)
}

func (cl *ContextLogger) LogWarn(ctx context.Context, message string, keysAndValues ...interface{}) {
	cl.WithContext(ctx).Warnw(message, keysAndValues...)
}
