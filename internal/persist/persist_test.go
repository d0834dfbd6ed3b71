package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiviewdfx/hilogd/internal/compress"
	"github.com/hiviewdfx/hilogd/internal/logbuffer"
	"github.com/hiviewdfx/hilogd/internal/logmodel"
	"github.com/hiviewdfx/hilogd/internal/persist/staging"
	"github.com/hiviewdfx/hilogd/internal/reader"
)

func TestRenderLinesSplitsOnNewline(t *testing.T) {
	rec := &logmodel.LogRecord{
		Level:   logmodel.LevelInfo,
		Tag:     "MyTag",
		Pid:     10,
		Tid:     11,
		Content: "line one\nline two",
	}
	lines := renderLines(rec)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "line one")
	assert.Contains(t, lines[1], "line two")
	assert.Contains(t, lines[0], "I/MyTag")
}

func TestDispatcherRejectsDuplicateIDOrPath(t *testing.T) {
	dir := t.TempDir()
	buf := logbuffer.New(logbuffer.DefaultBuffLen)
	d := NewDispatcher(buf)

	cfg := Config{ID: 1, Path: filepath.Join(dir, "out", "hilog"), FileSize: 1024, FileNum: 3, CompressAlg: compress.Off}
	_, err := d.Start(cfg)
	require.NoError(t, err)

	_, err = d.Start(cfg)
	assert.Error(t, err)

	cfg2 := cfg
	cfg2.ID = 2
	_, err = d.Start(cfg2)
	assert.Error(t, err, "same output path should collide even with a different id")

	d.KillAll()
}

func TestJobDrainsMatchingRecordsToFile(t *testing.T) {
	dir := t.TempDir()
	buf := logbuffer.New(logbuffer.DefaultBuffLen)

	cfg := Config{
		ID:          5,
		Path:        filepath.Join(dir, "out", "hilog"),
		FileSize:    4096,
		FileNum:     2,
		CompressAlg: compress.Off,
		SleepTime:   30 * time.Millisecond,
		Condition:   reader.Condition{Types: uint16(1) << uint16(logmodel.LogApp), Levels: reader.AllLevelsMask},
	}

	d := NewDispatcher(buf)
	job, err := d.Start(cfg)
	require.NoError(t, err)
	defer d.KillAll()

	buf.Insert(logmodel.LogRecord{
		Type:      logmodel.LogApp,
		Level:     logmodel.LevelInfo,
		Timestamp: logmodel.NewTimeStamp(1, 0),
		Pid:       1,
		Tid:       1,
		Domain:    0x0d000001,
		Tag:       "t",
		Content:   "hello world",
	})

	// Give the pump loop time to see the new record and the idle timer time
	// to force a flush of the (small, never-full) staging region.
	time.Sleep(150 * time.Millisecond)

	info := job.FillInfo()
	assert.Equal(t, uint32(5), info.JobID)

	data, readErr := os.ReadFile(cfg.Path + ".0")
	if readErr == nil {
		assert.Contains(t, string(data), "hello world")
	}
}

// TestNewJobFlushesRecoveredStagingOnRestart simulates a crash that left
// staged-but-not-yet-rotated bytes behind: it writes directly into the
// staging region a job with this Config would use, closes it without ever
// starting a job, then constructs a fresh Job over the same Config and
// checks the bytes already reached the output file before Start (or any
// idle timer) ever ran.
func TestNewJobFlushesRecoveredStagingOnRestart(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	cfg := Config{
		ID:          9,
		Path:        filepath.Join(outDir, "hilog"),
		FileSize:    4096,
		FileNum:     2,
		CompressAlg: compress.Off,
		SleepTime:   time.Hour,
		Condition:   reader.Condition{Types: reader.AllTypesMask, Levels: reader.AllLevelsMask},
	}

	region, recovered, err := staging.Open(stagingPath(cfg.Path, cfg.ID), MaxStagingBuffer)
	require.NoError(t, err)
	assert.False(t, recovered)
	_, err = region.Write([]byte("recovered bytes\n"))
	require.NoError(t, err)
	require.NoError(t, region.Close())

	buf := logbuffer.New(logbuffer.DefaultBuffLen)
	job, err := NewJob(cfg, buf)
	require.NoError(t, err)
	defer job.staging.Close()
	defer job.rotator.Close()

	data, err := os.ReadFile(cfg.Path + ".0")
	require.NoError(t, err)
	assert.Contains(t, string(data), "recovered bytes")

	assert.Equal(t, 0, job.staging.Len(), "staging region should be empty again after the recovery flush")
}
