package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// withObserver swaps the package's logger for an in-memory one for the
// duration of the test, restoring the real logger on cleanup.
func withObserver(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	prevBase, prevSugar := base, sugar
	base = zap.New(core)
	sugar = base.Sugar()
	t.Cleanup(func() {
		base, sugar = prevBase, prevSugar
	})
	return logs
}

func TestSetLevelGatesEmit(t *testing.T) {
	logs := withObserver(t)
	prevLevel := Level(current.Load())
	t.Cleanup(func() { SetLevel(prevLevel) })

	SetLevel(WARNING)
	Debug("debug %d", 1)
	Info("info %d", 1)
	require.Equal(t, 0, logs.Len(), "Debug/Info should be gated out below WARNING")

	Warn("warn %d", 1)
	Error("error %d", 1)
	assert.Equal(t, 2, logs.Len())
}

func TestWithAttachesFields(t *testing.T) {
	logs := withObserver(t)
	SetLevel(INFO)

	With("job", uint32(7)).Infow("flushed")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "flushed", entries[0].Message)
	assert.Equal(t, uint32(7), entries[0].ContextMap()["job"])
}
