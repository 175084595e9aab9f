// Package zaplog builds the server logger.
package zaplog

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to w at the given level. If w is nil,
// logs are written to standard error.
func New(w io.Writer, level zap.AtomicLevel) *zap.Logger {
	if w == nil {
		w = os.Stderr
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	return zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr)))
}

// Step changes the level by delta. A negative delta makes the logger more
// verbose. The result is clamped to the debug..fatal range.
func Step(level zap.AtomicLevel, delta int) zapcore.Level {
	l := level.Level() + zapcore.Level(delta)
	if l < zapcore.DebugLevel {
		l = zapcore.DebugLevel
	}
	if l > zapcore.FatalLevel {
		l = zapcore.FatalLevel
	}
	level.SetLevel(l)
	return l
}
