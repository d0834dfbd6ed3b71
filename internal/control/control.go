// Package control is the in-process command surface for administrative
// operations: buffer sizing and statistics, one-shot dumps, and persister
// job lifecycle. It has no transport of its own — cmd/hilogd wires a
// concrete ingress (socket, CLI flag, test) to these methods.
package control

import (
	"github.com/hiviewdfx/hilogd/internal/errcode"
	"github.com/hiviewdfx/hilogd/internal/logbuffer"
	"github.com/hiviewdfx/hilogd/internal/logmodel"
	"github.com/hiviewdfx/hilogd/internal/persist"
	"github.com/hiviewdfx/hilogd/internal/reader"
)

// Surface bundles the buffer and the persister dispatcher behind the
// operations a control client can invoke.
type Surface struct {
	Buffer     *logbuffer.Buffer
	Dispatcher *persist.Dispatcher
}

// New builds a Surface over buf and dispatcher.
func New(buf *logbuffer.Buffer, dispatcher *persist.Dispatcher) *Surface {
	return &Surface{Buffer: buf, Dispatcher: dispatcher}
}

// SetBuffLen resizes type t's byte quota.
func (s *Surface) SetBuffLen(t logmodel.LogType, size int) errcode.Code {
	return s.Buffer.SetBuffLen(t, size)
}

// GetBuffLen reports type t's current byte quota.
func (s *Surface) GetBuffLen(t logmodel.LogType) int {
	return s.Buffer.GetBuffLen(t)
}

// ClearBuffer deletes every record of type t and returns the count removed.
func (s *Surface) ClearBuffer(t logmodel.LogType) int {
	return s.Buffer.Delete(t)
}

// StatsByType returns type t's cacheLen/printLen/dropped snapshot.
func (s *Surface) StatsByType(t logmodel.LogType) logbuffer.TypeStats {
	return s.Buffer.StatsByType(t)
}

// StatsByDomain returns domain's cacheLen/printLen/dropped snapshot.
func (s *Surface) StatsByDomain(domain uint32) logbuffer.TypeStats {
	return s.Buffer.StatsByDomain(domain)
}

// ClearStatsByType zeroes type t's reporting counters.
func (s *Surface) ClearStatsByType(t logmodel.LogType) errcode.Code {
	return s.Buffer.ClearStatsByType(t)
}

// ClearStatsByDomain zeroes domain's reporting counters.
func (s *Surface) ClearStatsByDomain(domain uint32) errcode.Code {
	return s.Buffer.ClearStatsByDomain(domain)
}

// StartPersist launches a new persister job.
func (s *Surface) StartPersist(cfg persist.Config) (*persist.Job, error) {
	return s.Dispatcher.Start(cfg)
}

// KillPersist stops the persister job identified by id.
func (s *Surface) KillPersist(id uint32) errcode.Code {
	return s.Dispatcher.Kill(id)
}

// QueryPersist lists running jobs whose type mask intersects typeMask.
func (s *Surface) QueryPersist(typeMask uint16) []persist.QueryResult {
	return s.Dispatcher.Query(typeMask)
}

// collectSink accumulates matched records for Dump, up to limit (0 means
// unbounded).
type collectSink struct {
	limit int
	recs  []logmodel.LogRecord
}

func (c *collectSink) WriteData(rec *logmodel.LogRecord, _ reader.SendID) {
	if rec == nil {
		return
	}
	if c.limit > 0 && len(c.recs) >= c.limit {
		return
	}
	c.recs = append(c.recs, *rec)
}

// Dump registers a transient reader matching cond, drains every currently
// matching record (replaying from the start of the buffer), and
// unregisters it before returning. limit caps how many records are
// collected; 0 means unbounded.
func (s *Surface) Dump(cond reader.Condition, limit int) []logmodel.LogRecord {
	sink := &collectSink{limit: limit}
	h := reader.New(cond, sink, true)

	s.Buffer.AddReader(h)
	defer s.Buffer.RemoveReader(h)

	for {
		if limit > 0 && len(sink.recs) >= limit {
			break
		}
		if !s.Buffer.Query(h) {
			break
		}
	}
	return sink.recs
}
