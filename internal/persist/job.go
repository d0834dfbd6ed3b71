// Package persist implements the persister jobs that drain a LogBuffer
// into rotated, optionally compressed files, and the dispatcher that
// enforces one job per (job id, output path).
package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hiviewdfx/hilogd/internal/compress"
	"github.com/hiviewdfx/hilogd/internal/herrors"
	"github.com/hiviewdfx/hilogd/internal/log"
	"github.com/hiviewdfx/hilogd/internal/logbuffer"
	"github.com/hiviewdfx/hilogd/internal/logmodel"
	"github.com/hiviewdfx/hilogd/internal/persist/rotator"
	"github.com/hiviewdfx/hilogd/internal/persist/staging"
	"github.com/hiviewdfx/hilogd/internal/reader"
)

// MaxStagingBuffer is the staging region's fixed capacity, matching
// MAX_PERSISTER_BUFFER_SIZE.
const MaxStagingBuffer = 16 * 1024

// DefaultSleep is how long an idle job waits before forcing a partial
// flush of whatever is staged, matching the persister's default sleepTime.
const DefaultSleep = 5 * time.Second

// Config describes a persister job to start.
type Config struct {
	ID           uint32
	Path         string // output base path; rotated files are Path.0, Path.1, ...
	CompressType uint16
	CompressAlg  compress.Algorithm
	SleepTime    time.Duration
	FileSize     uint32
	FileNum      uint32
	Condition    reader.Condition
}

// QueryResult mirrors LogPersistQueryResult, what the control surface
// reports for a running job.
type QueryResult struct {
	JobID        uint32
	FilePath     string
	CompressType uint16
	CompressAlg  compress.Algorithm
	FileSize     uint32
	FileNum      uint32
	Types        uint16
}

// Job drains one reader.Handle's matches into a rotated, optionally
// compressed file family.
type Job struct {
	cfg        Config
	buffer     *logbuffer.Buffer
	handle     *reader.Handle
	rotator    *rotator.Rotator
	staging    *staging.Region
	compressor compress.Compressor
	log        *zap.SugaredLogger

	mu      sync.Mutex
	pending []string

	toExit chan struct{}
	exited chan struct{}
}

func stagingPath(path string, id uint32) string {
	dir := filepath.Dir(path)
	return filepath.Join(dir, fmt.Sprintf(".%d", id))
}

// NewJob constructs and initializes (but does not start) a persister job.
func NewJob(cfg Config, buf *logbuffer.Buffer) (*Job, error) {
	if filepath.Dir(cfg.Path) == "." && filepath.Base(cfg.Path) == cfg.Path {
		return nil, herrors.PersistPathError(cfg.Path)
	}
	dir := filepath.Dir(cfg.Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, herrors.PersistPathError(err.Error())
		}
	}

	comp, err := compress.New(cfg.CompressAlg)
	if err != nil {
		return nil, err
	}

	region, recovered, err := staging.Open(stagingPath(cfg.Path, cfg.ID), MaxStagingBuffer)
	if err != nil {
		return nil, err
	}

	rot := rotator.New(cfg.Path, cfg.FileSize, cfg.FileNum, "", cfg.ID)
	if err := rot.Init(); err != nil {
		region.Close()
		return nil, herrors.RotatorError(err.Error())
	}

	if cfg.SleepTime <= 0 {
		cfg.SleepTime = DefaultSleep
	}

	j := &Job{
		cfg:        cfg,
		buffer:     buf,
		rotator:    rot,
		staging:    region,
		compressor: comp,
		log:        log.With("job", cfg.ID, "path", cfg.Path),
		toExit:     make(chan struct{}),
		exited:     make(chan struct{}),
	}
	j.handle = reader.New(cfg.Condition, j, false)

	if recovered {
		// A crash left staged-but-not-yet-rotated bytes behind; flush them
		// to the rotator now instead of waiting for the next idle timeout
		// or overflow to notice them.
		j.mu.Lock()
		err := j.flushLocked()
		j.mu.Unlock()
		if err != nil {
			region.Close()
			return nil, err
		}
	}

	return j, nil
}

// WriteData implements reader.Sink: it is called by LogBuffer.Query on
// this job's handle. rec is nil at end-of-stream, which a persister job
// simply ignores — the idle timeout in run() is what forces a flush of a
// partially filled staging region.
func (j *Job) WriteData(rec *logmodel.LogRecord, _ reader.SendID) {
	if rec == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, renderLines(rec)...)
	j.drainPendingLocked()
}

// drainPendingLocked pushes as many pending lines as fit into the staging
// region, flushing (compress + rotate) and retrying whenever it fills up.
// Caller must hold j.mu.
func (j *Job) drainPendingLocked() {
	for len(j.pending) > 0 {
		line := []byte(j.pending[0] + "\n")
		if _, err := j.staging.Write(line); err != nil {
			if ferr := j.flushLocked(); ferr != nil {
				j.log.Errorw("flush failed", "error", ferr)
				return
			}
			if len(line) > j.staging.Remaining() {
				// A single rendered line is larger than the whole staging
				// region; nothing we do will ever make it fit. Drop it
				// rather than loop forever.
				j.log.Errorw("dropping oversized line", "bytes", len(line))
				j.pending = j.pending[1:]
			}
			continue
		}
		j.pending = j.pending[1:]
	}
}

// flushLocked compresses (if configured) and rotates whatever is currently
// staged, then resets the staging cursor. Caller must hold j.mu.
func (j *Job) flushLocked() error {
	if j.staging.Len() == 0 {
		return nil
	}
	data := append([]byte(nil), j.staging.Bytes()...)

	var out []byte
	if j.cfg.CompressAlg == compress.Off {
		out = data
	} else {
		compressed, err := j.compressor.Compress(data)
		if err != nil {
			return err
		}
		out = compressed
	}

	if err := j.rotator.Input(out); err != nil {
		return err
	}
	if j.cfg.CompressAlg != compress.Off {
		j.rotator.FinishInput()
	}
	return j.staging.Reset()
}

// Start launches the job's pump goroutine.
func (j *Job) Start() {
	j.buffer.AddReader(j.handle)
	go j.run()
}

func (j *Job) run() {
	defer close(j.exited)
	for {
		select {
		case <-j.toExit:
			j.mu.Lock()
			j.flushLocked()
			j.mu.Unlock()
			return
		default:
		}

		if j.buffer.Query(j.handle) {
			continue
		}

		timer := time.NewTimer(j.cfg.SleepTime)
		select {
		case <-j.handle.Wake():
			timer.Stop()
		case <-timer.C:
			j.mu.Lock()
			if err := j.flushLocked(); err != nil {
				j.log.Errorw("idle flush failed", "error", err)
			}
			j.mu.Unlock()
		case <-j.toExit:
			timer.Stop()
			j.mu.Lock()
			j.flushLocked()
			j.mu.Unlock()
			return
		}
	}
}

// Exit stops the pump goroutine, flushes any remaining staged data, and
// releases the job's resources.
func (j *Job) Exit() error {
	close(j.toExit)
	<-j.exited
	j.buffer.RemoveReader(j.handle)

	var err error
	if cerr := j.rotator.Close(); cerr != nil {
		err = cerr
	}
	if cerr := j.staging.Close(); err == nil && cerr != nil {
		err = cerr
	}
	os.Remove(stagingPath(j.cfg.Path, j.cfg.ID))
	os.Remove(stagingPath(j.cfg.Path, j.cfg.ID) + ".info")
	return err
}

// Identify reports whether this job's id matches id.
func (j *Job) Identify(id uint32) bool { return j.cfg.ID == id }

// Path returns the job's configured output base path.
func (j *Job) Path() string { return j.cfg.Path }

// FillInfo reports the job's current configuration for the control surface.
func (j *Job) FillInfo() QueryResult {
	fileSize, fileNum := j.rotator.FillInfo()
	return QueryResult{
		JobID:        j.cfg.ID,
		FilePath:     j.cfg.Path,
		CompressType: j.cfg.CompressType,
		CompressAlg:  j.cfg.CompressAlg,
		FileSize:     fileSize,
		FileNum:      fileNum,
		Types:        j.cfg.Condition.Types,
	}
}
