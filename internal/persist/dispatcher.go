package persist

import (
	"sync"

	"github.com/hiviewdfx/hilogd/internal/errcode"
	"github.com/hiviewdfx/hilogd/internal/herrors"
	"github.com/hiviewdfx/hilogd/internal/logbuffer"
)

// Dispatcher is the persister job registry: it enforces that no two live
// jobs share a job id or an output path, matching log_persister.cpp's
// logPersisters list plus its Init-time collision check.
type Dispatcher struct {
	mu     sync.Mutex
	buffer *logbuffer.Buffer
	byID   map[uint32]*Job
	byPath map[string]uint32
}

// NewDispatcher builds a Dispatcher that starts jobs against buf.
func NewDispatcher(buf *logbuffer.Buffer) *Dispatcher {
	return &Dispatcher{
		buffer: buf,
		byID:   make(map[uint32]*Job),
		byPath: make(map[string]uint32),
	}
}

// Start registers and launches a new persister job, failing with
// herrors.PersisterCollisionError if cfg.ID or cfg.Path is already in use.
func (d *Dispatcher) Start(cfg Config) (*Job, error) {
	d.mu.Lock()
	if _, ok := d.byID[cfg.ID]; ok {
		d.mu.Unlock()
		return nil, herrors.PersisterCollisionError(cfg.Path)
	}
	if _, ok := d.byPath[cfg.Path]; ok {
		d.mu.Unlock()
		return nil, herrors.PersisterCollisionError(cfg.Path)
	}
	d.mu.Unlock()

	job, err := NewJob(cfg, d.buffer)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if _, ok := d.byID[cfg.ID]; ok {
		d.mu.Unlock()
		return nil, herrors.PersisterCollisionError(cfg.Path)
	}
	d.byID[cfg.ID] = job
	d.byPath[cfg.Path] = cfg.ID
	d.mu.Unlock()

	job.Start()
	return job, nil
}

// ErrNoSuchJob is what Kill returns when id names no running job, matching
// LogPersister::Kill's "return found ? 0 : -1;".
const ErrNoSuchJob errcode.Code = -1

// Kill stops and unregisters the job identified by id.
func (d *Dispatcher) Kill(id uint32) errcode.Code {
	d.mu.Lock()
	job, ok := d.byID[id]
	if !ok {
		d.mu.Unlock()
		return ErrNoSuchJob
	}
	delete(d.byID, id)
	delete(d.byPath, job.Path())
	d.mu.Unlock()

	job.Exit()
	return errcode.OK
}

// Query returns FillInfo snapshots for every job whose type mask
// intersects typeMask.
func (d *Dispatcher) Query(typeMask uint16) []QueryResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	var results []QueryResult
	for _, job := range d.byID {
		if job.cfg.Condition.Types&typeMask != 0 {
			results = append(results, job.FillInfo())
		}
	}
	return results
}

// KillAll stops every registered job, used on daemon shutdown.
func (d *Dispatcher) KillAll() {
	d.mu.Lock()
	jobs := make([]*Job, 0, len(d.byID))
	for _, job := range d.byID {
		jobs = append(jobs, job)
	}
	d.byID = make(map[uint32]*Job)
	d.byPath = make(map[string]uint32)
	d.mu.Unlock()

	for _, job := range jobs {
		job.Exit()
	}
}
