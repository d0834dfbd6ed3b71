package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiviewdfx/hilogd/internal/logbuffer"
	"github.com/hiviewdfx/hilogd/internal/logmodel"
	"github.com/hiviewdfx/hilogd/internal/persist"
	"github.com/hiviewdfx/hilogd/internal/reader"
)

func TestDumpReplaysExistingRecords(t *testing.T) {
	buf := logbuffer.New(logbuffer.DefaultBuffLen)
	buf.Insert(logmodel.LogRecord{
		Type:      logmodel.LogApp,
		Level:     logmodel.LevelInfo,
		Timestamp: logmodel.NewTimeStamp(1, 0),
		Tag:       "t",
		Content:   "hello",
	})

	s := New(buf, persist.NewDispatcher(buf))
	recs := s.Dump(reader.Condition{Types: reader.AllTypesMask, Levels: reader.AllLevelsMask}, 0)
	require.Len(t, recs, 1)
	assert.Equal(t, "hello", recs[0].Content)
}

func TestDumpRespectsLimit(t *testing.T) {
	buf := logbuffer.New(logbuffer.DefaultBuffLen)
	for i := uint32(0); i < 5; i++ {
		buf.Insert(logmodel.LogRecord{
			Type:      logmodel.LogApp,
			Timestamp: logmodel.NewTimeStamp(i, 0),
			Tag:       "t",
			Content:   "x",
		})
	}
	s := New(buf, persist.NewDispatcher(buf))
	recs := s.Dump(reader.Condition{Types: reader.AllTypesMask, Levels: reader.AllLevelsMask}, 2)
	assert.Len(t, recs, 2)
}

func TestSetAndGetBuffLen(t *testing.T) {
	buf := logbuffer.New(logbuffer.DefaultBuffLen)
	s := New(buf, persist.NewDispatcher(buf))

	code := s.SetBuffLen(logmodel.LogApp, 8192)
	assert.Equal(t, 0, int(code))
	assert.Equal(t, 8192, s.GetBuffLen(logmodel.LogApp))
}

func TestKillPersistWithUnknownIDReturnsMinusOne(t *testing.T) {
	buf := logbuffer.New(logbuffer.DefaultBuffLen)
	s := New(buf, persist.NewDispatcher(buf))

	code := s.KillPersist(999)
	assert.EqualValues(t, -1, code)
}
