package zaplog

import (
	"bytes"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	log := New(&buf, level).Named("worker")

	log.Debug("Hidden")
	log.Info("Worker exited", zap.Int64("worker", 7))
	assert.NilError(t, log.Sync())

	out := buf.String()
	assert.Check(t, !bytes.Contains(buf.Bytes(), []byte("Hidden")))
	assert.Check(t, is.Contains(out, "INFO"))
	assert.Check(t, is.Contains(out, "worker"))
	assert.Check(t, is.Contains(out, "Worker exited"))
	assert.Check(t, is.Contains(out, `{"worker": 7}`))

	level.SetLevel(zap.DebugLevel)
	log.Debug("Shown")
	assert.Check(t, is.Contains(buf.String(), "Shown"))
}

func TestStep(t *testing.T) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)

	assert.Equal(t, Step(level, -1), zapcore.DebugLevel)
	assert.Equal(t, Step(level, -1), zapcore.DebugLevel)
	assert.Equal(t, Step(level, 2), zapcore.WarnLevel)
	assert.Equal(t, Step(level, 10), zapcore.FatalLevel)
	assert.Equal(t, level.Level(), zapcore.FatalLevel)
}
