// Package telemetry is the engine's ambient logging and metrics surface.
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.Logger, threaded into every pipeline goroutine at
// construction time with component/stream/serial fields attached.
type Logger struct {
	z *zap.Logger
}

// NewLogger builds a production-style zap logger. verbose switches the
// level from Info to Debug, mirroring the teacher's ALL/DEBUG/INFO/WARN/
// ERROR level constants.
func NewLogger(verbose bool) *Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// With returns a child logger carrying the given component name.
func (l *Logger) With(component string) *Logger {
	return &Logger{z: l.z.With(zap.String("component", component))}
}

// WithStream returns a child logger additionally tagged with a stream index.
func (l *Logger) WithStream(streamIndex int) *Logger {
	return &Logger{z: l.z.With(zap.Int("stream", streamIndex))}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Fatal logs at Error with the wrapped error and returns so callers can
// still run their own deferred cleanup before os.Exit.
func (l *Logger) Fatal(msg string, err error) {
	l.z.Error(msg, zap.Error(err))
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Serial is a convenience field constructor so call sites read naturally:
// log.Info("flush", telemetry.Serial(s)).
func Serial(s int64) zap.Field { return zap.Int64("serial", s) }
