// Package logger wires up the process-wide structured logger, following
// the teacher's common/logger package: a single glog.Logger built on top
// of Laisky's zap fork, created once via sync.Once, with request-scoped
// children obtained by adding fields rather than via a global mutable logger.
package logger

import (
	"context"
	"sync"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/songquanpeng/smart-router-gateway/internal/ctxkey"
)

// Logger is the process-wide base logger. It starts out as the library's
// shared logger (glog.Shared) and Setup replaces it. Request-scoped code
// should call FromContext instead of touching this directly.
var Logger glog.Logger = glog.Shared

var setupOnce sync.Once

// Setup initializes Logger at info level, or at debug level when debug is
// true. It is
// idempotent; subsequent calls are no-ops.
func Setup(debug bool) {
	setupOnce.Do(func() {
		level := glog.LevelInfo
		if debug {
			level = glog.LevelDebug
		}
		var err error
		Logger, err = glog.NewConsoleWithName("smart-router-gateway", level)
		if err != nil {
			// Fall back to the library's shared logger rather than crash startup on a
			// logging misconfiguration; this mirrors the teacher's defensive
			// stance of never letting logger setup take the process down.
			Logger = glog.Shared
		}
	})
}

// ResetForTests clears the setup guard so tests can reconfigure the level.
func ResetForTests() {
	setupOnce = sync.Once{}
}

// WithFields returns a child logger carrying the given key/value pairs as
// zap fields, replacing the teacher's gmw.GetLogger(c).With(...) pattern
// with one that does not require a gin.Context.
func WithFields(base glog.Logger, fields ...zap.Field) glog.Logger {
	if base == nil {
		base = Logger
	}
	return base.With(fields...)
}

// NewRequestLogger returns a context carrying a child logger tagged with
// the given request id, plus the logger itself for immediate use.
func NewRequestLogger(ctx context.Context, requestID string) (context.Context, glog.Logger) {
	lg := WithFields(Logger, zap.String("request_id", requestID))
	ctx = context.WithValue(ctx, ctxkey.Logger, lg)
	ctx = context.WithValue(ctx, ctxkey.RequestID, requestID)
	return ctx, lg
}

// FromContext extracts the request-scoped logger, falling back to the
// process-wide Logger when the context carries none (e.g. background tasks
// started before the first request, like the recovery loop at boot).
func FromContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return Logger
	}
	if lg, ok := ctx.Value(ctxkey.Logger).(glog.Logger); ok && lg != nil {
		return lg
	}
	return Logger
}
