package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiviewdfx/hilogd/internal/logbuffer"
	"github.com/hiviewdfx/hilogd/internal/logmodel"
	"github.com/hiviewdfx/hilogd/internal/wire"
)

func TestPipelineDecodesAndInsertsValidFrames(t *testing.T) {
	buf := logbuffer.New(logbuffer.DefaultBuffLen)
	p := New(buf)
	go p.Run()

	rec := logmodel.LogRecord{
		Type:      logmodel.LogApp,
		Level:     logmodel.LevelInfo,
		Timestamp: logmodel.NewTimeStamp(1, 0),
		Pid:       1,
		Tid:       1,
		Domain:    1,
		Tag:       "t",
		Content:   "hello",
	}
	p.Submit(wire.Encode(rec))

	require.Eventually(t, func() bool {
		return buf.Len() == 1
	}, time.Second, 5*time.Millisecond)

	p.Close()
}

func TestPipelineDropsMalformedFrames(t *testing.T) {
	buf := logbuffer.New(logbuffer.DefaultBuffLen)
	p := New(buf)
	go p.Run()

	p.Submit([]byte{0x01})
	p.Close()

	assert.Equal(t, 0, buf.Len())
}
