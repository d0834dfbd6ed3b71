package logbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiviewdfx/hilogd/internal/logmodel"
	"github.com/hiviewdfx/hilogd/internal/reader"
)

func rec(sec uint32, typ logmodel.LogType, tag, content string) logmodel.LogRecord {
	return logmodel.LogRecord{
		Type:      typ,
		Level:     logmodel.LevelInfo,
		Timestamp: logmodel.NewTimeStamp(sec, 0),
		Pid:       100,
		Tid:       100,
		Domain:    0x0d005678,
		Tag:       tag,
		Content:   content,
	}
}

func TestInsertRejectsMalformedRecords(t *testing.T) {
	b := New(DefaultBuffLen)

	tooLongTag := make([]byte, logmodel.MaxTagLen)
	long := rec(1, logmodel.LogApp, string(tooLongTag), "x")
	assert.Equal(t, 0, b.Insert(long))

	empty := rec(1, logmodel.LogApp, "t", "")
	assert.Equal(t, 0, b.Insert(empty))

	tooLongContent := make([]byte, logmodel.MaxLogLen)
	big := rec(1, logmodel.LogApp, "t", string(tooLongContent))
	assert.Equal(t, 0, b.Insert(big))

	assert.Equal(t, 0, b.Len())
}

func TestInsertAccumulatesCacheLen(t *testing.T) {
	b := New(DefaultBuffLen)

	require.Greater(t, b.Insert(rec(10, logmodel.LogApp, "a", "one")), 0)
	require.Greater(t, b.Insert(rec(20, logmodel.LogApp, "a", "two")), 0)
	require.Greater(t, b.Insert(rec(15, logmodel.LogApp, "a", "between")), 0)

	stats := b.StatsByType(logmodel.LogApp)
	assert.EqualValues(t, len("one")+1+len("two")+1+len("between")+1, stats.CacheLen)
}

type captureSink struct {
	recs []*logmodel.LogRecord
}

func (s *captureSink) WriteData(rec *logmodel.LogRecord, id reader.SendID) {
	if rec != nil {
		s.recs = append(s.recs, rec)
	}
}

func TestQueryDeliversInTimestampOrder(t *testing.T) {
	b := New(DefaultBuffLen)
	// The late record stays within insertSorted's 5-second reorder window;
	// one further behind the tail than that is appended instead.
	require.Greater(t, b.Insert(rec(10, logmodel.LogApp, "a", "one")), 0)
	require.Greater(t, b.Insert(rec(14, logmodel.LogApp, "a", "three")), 0)
	require.Greater(t, b.Insert(rec(12, logmodel.LogApp, "a", "two")), 0)

	sink := &captureSink{}
	h := reader.New(reader.Condition{Types: reader.AllTypesMask, Levels: reader.AllLevelsMask}, sink, true)
	b.AddReader(h)

	for b.Query(h) {
	}

	require.Len(t, sink.recs, 3)
	assert.Equal(t, "one", sink.recs[0].Content)
	assert.Equal(t, "two", sink.recs[1].Content)
	assert.Equal(t, "three", sink.recs[2].Content)
}

func TestQueryOnlyMatchesFilteredType(t *testing.T) {
	b := New(DefaultBuffLen)
	require.Greater(t, b.Insert(rec(1, logmodel.LogApp, "a", "app")), 0)
	require.Greater(t, b.Insert(rec(2, logmodel.LogInit, "a", "init")), 0)

	sink := &captureSink{}
	cond := reader.Condition{Types: uint16(1) << uint16(logmodel.LogInit), Levels: reader.AllLevelsMask}
	h := reader.New(cond, sink, true)
	b.AddReader(h)

	for b.Query(h) {
	}

	require.Len(t, sink.recs, 1)
	assert.Equal(t, "init", sink.recs[0].Content)
}

func TestEvictionDropsOldestAndRepairsReaderCursor(t *testing.T) {
	b := New(200)

	sink := &captureSink{}
	h := reader.New(reader.Condition{Types: reader.AllTypesMask, Levels: reader.AllLevelsMask}, sink, true)
	b.AddReader(h)

	content := make([]byte, 40)
	for i := uint32(0); i < 10; i++ {
		b.Insert(rec(i, logmodel.LogApp, "a", string(content)))
	}

	// With a 200-byte quota and ~41-byte records, earlier records must have
	// been evicted; the buffer should hold fewer than 10.
	assert.Less(t, b.Len(), 10)

	for b.Query(h) {
	}
	assert.NotEmpty(t, sink.recs)
}

func TestSetBuffLenValidatesInput(t *testing.T) {
	b := New(DefaultBuffLen)
	assert.Equal(t, DefaultBuffLen, b.GetBuffLen(logmodel.LogApp))

	code := b.SetBuffLen(logmodel.LogApp, 4096)
	assert.True(t, code.Error() == "OK" || code == 0)
	assert.Equal(t, 4096, b.GetBuffLen(logmodel.LogApp))

	bad := b.SetBuffLen(logmodel.LogApp, -1)
	assert.NotZero(t, bad)
}

func TestDeleteRemovesOnlyMatchingType(t *testing.T) {
	b := New(DefaultBuffLen)
	b.Insert(rec(1, logmodel.LogApp, "a", "app"))
	b.Insert(rec(2, logmodel.LogInit, "a", "init"))

	removed := b.Delete(logmodel.LogApp)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, b.Len())
}

func TestConditionMatchExclusionsOverrideInclusions(t *testing.T) {
	r := rec(1, logmodel.LogApp, "secret", "x")
	cond := reader.Condition{
		Types:  reader.AllTypesMask,
		Levels: reader.AllLevelsMask,
		Tags:   []string{"secret"},
		NoTags: []string{"secret"},
	}
	assert.False(t, ConditionMatch(cond, &r))
}

func TestConditionMatchDomainStrictAndFuzzy(t *testing.T) {
	r := rec(1, logmodel.LogApp, "t", "x")
	r.Domain = 0x0d001234

	base := reader.Condition{Types: reader.AllTypesMask, Levels: reader.AllLevelsMask}

	strict := base
	strict.Domains = []uint32{0x0d001234}
	assert.True(t, ConditionMatch(strict, &r))

	fuzzy := base
	fuzzy.Domains = []uint32{0x0d001234 >> logmodel.DomainModuleBits}
	assert.True(t, ConditionMatch(fuzzy, &r))

	miss := base
	miss.Domains = []uint32{0x0d009999}
	assert.False(t, ConditionMatch(miss, &r))
}

func TestClearStatsByTypeResetsCounters(t *testing.T) {
	b := New(DefaultBuffLen)
	b.Insert(rec(1, logmodel.LogApp, "a", "app"))

	before := b.StatsByType(logmodel.LogApp)
	assert.NotZero(t, before.CacheLen)

	code := b.ClearStatsByType(logmodel.LogApp)
	assert.Equal(t, 0, int(code))

	after := b.StatsByType(logmodel.LogApp)
	assert.Zero(t, after.CacheLen)
}
