package core

import "github.com/hupe1980/agentengine/logging"

// scopedLogger prefixes every record with a fixed set of key/value pairs so
// tool logs carry the invocation and function call they belong to.
type scopedLogger struct {
	logger logging.Logger
	attrs  []any
}

func newScopedLogger(l logging.Logger, attrs ...any) *scopedLogger {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &scopedLogger{logger: l, attrs: attrs}
}

func (l *scopedLogger) with(args []any) []any {
	if len(l.attrs) == 0 {
		return args
	}
	out := make([]any, 0, len(l.attrs)+len(args))
	out = append(out, l.attrs...)
	return append(out, args...)
}

// Logger returns the unscoped logger.
func (l *scopedLogger) Logger() logging.Logger { return l.logger }

// LogDebug logs at debug level with the scope attributes.
func (l *scopedLogger) LogDebug(msg string, args ...any) { l.logger.Debug(msg, l.with(args)...) }

// LogInfo logs at info level with the scope attributes.
func (l *scopedLogger) LogInfo(msg string, args ...any) { l.logger.Info(msg, l.with(args)...) }

// LogWarn logs at warn level with the scope attributes.
func (l *scopedLogger) LogWarn(msg string, args ...any) { l.logger.Warn(msg, l.with(args)...) }

// LogError logs at error level with the scope attributes.
func (l *scopedLogger) LogError(msg string, args ...any) { l.logger.Error(msg, l.with(args)...) }
