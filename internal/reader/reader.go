// Package reader implements the long-lived cursor over a LogBuffer: a query
// predicate, a cursor pair (readPos/lastPos), and a pluggable delivery Sink.
// Persister jobs (internal/persist) and live-tail sessions
// (internal/livetail) are both built on top of a Handle; they differ only
// in which Sink they plug in.
package reader

import (
	"container/list"
	"sync"

	"github.com/hiviewdfx/hilogd/internal/logmodel"
)

// SendID is the 2-bit delivery tag attached to every Sink.WriteData call,
// matching SENDIDN/SENDIDA/SENDIDS in hilog_common.h.
type SendID uint8

const (
	SendEnd    SendID = 0 // end of stream reached, no more matches right now
	SendNormal SendID = 1 // rec carries a matched record
	SendNotify SendID = 2 // new-data-available wakeup (not delivered via WriteData; see NotifyForNewData)
)

// AllTypesMask selects every LogType. Types is checked with an
// unconditional bitwise AND, so a Condition meant to match every type must
// set this explicitly rather than leave Types at its zero value, which
// matches no type.
const AllTypesMask uint16 = 1<<logmodel.LogTypeMax - 1

// AllLevelsMask selects every Level, for the same reason AllTypesMask
// exists: Levels is checked with an unconditional bitwise AND.
const AllLevelsMask uint8 = 0xff

// Condition is a query predicate: inclusion and exclusion lists for type,
// level, pid, domain, and tag. logmodel.MaxPids/MaxDomains/MaxTags name the
// per-list limits; Condition does not enforce them, and ConditionMatch
// accepts lists of any length.
type Condition struct {
	Types   uint16 // bitmask: bit (1<<logmodel.LogType) selects that type
	Levels  uint8  // bitmask: bit (1<<logmodel.Level) selects that level
	Pids    []uint32
	Domains []uint32
	Tags    []string

	NoTypes   uint16
	NoLevels  uint8
	NoPids    []uint32
	NoDomains []uint32
	NoTags    []string
}

// IsKlogOnly reports whether this condition selects exactly the kernel log
// type, the one case routed to the separate klog list.
func (c Condition) IsKlogOnly() bool {
	return c.Types == uint16(1)<<uint16(logmodel.LogKmsg)
}

// Sink is the delivery capability a Handle hands matched records to. It is
// called while LogBuffer.Query holds the buffer's read lock: a persister
// Sink copies into its staging region (flushing to the rotator when the
// region is full), a live-tail Sink writes straight to its websocket
// connection under a bounded write deadline.
type Sink interface {
	WriteData(rec *logmodel.LogRecord, sendID SendID)
}

// Handle is a registered reader's state. The zero value is not usable;
// build one with New.
type Handle struct {
	Condition Condition
	sink      Sink

	// readPos/lastPos are cursors into the LogBuffer's internal
	// container/list.List for this handle's target list. nil means
	// "list end" — container/list already uses nil as its own one-past-end
	// sentinel from Element.Next(), so it doubles as a list-end marker
	// without a separate sentinel value. These fields are
	// mutated only by LogBuffer, always while holding its buffer lock
	// (exclusively during eviction/delete repair, for-shared during
	// Query), so eviction's repair never runs while any Query is in
	// flight; concurrent Queries each touch only their own handle.
	readPos *list.Element
	lastPos *list.Element

	// flagsMu guards reload/notified/sendID: Insert calls NotifyForNewData
	// only after releasing the buffer lock, so these three fields can be
	// written concurrently with a Query call already in flight on this
	// handle.
	flagsMu  sync.Mutex
	reload   bool
	notified bool
	sendID   SendID

	// wake is signaled by NotifyForNewData; a persister or live-tail pump
	// loop selects on it instead of busy-polling Query.
	wake chan struct{}
}

// New builds a Handle for cond, delivering matches to sink. Pass reload true
// to have the first Query replay from the beginning of the target list
// instead of only seeing records inserted after registration.
func New(cond Condition, sink Sink, reload bool) *Handle {
	return &Handle{
		Condition: cond,
		sink:      sink,
		reload:    reload,
		wake:      make(chan struct{}, 1),
	}
}

// Wake exposes the notification channel for pump loops (internal/persist,
// internal/livetail) to select on alongside a sleep timeout.
func (h *Handle) Wake() <-chan struct{} {
	return h.wake
}

// SetReload requests that the next Query reset the cursor to the target
// list's head before resuming normal forward matching.
func (h *Handle) SetReload(v bool) {
	h.flagsMu.Lock()
	h.reload = v
	h.flagsMu.Unlock()
}

// SetSendID overrides the tag attached to the next WriteData call; LogBuffer
// calls this immediately before delivering a match or an end-of-stream
// marker.
func (h *Handle) SetSendID(id SendID) {
	h.flagsMu.Lock()
	h.sendID = id
	h.flagsMu.Unlock()
}

// WriteData hands rec (nil for end-of-stream) to the sink tagged with the
// handle's current send id.
func (h *Handle) WriteData(rec *logmodel.LogRecord) {
	h.flagsMu.Lock()
	id := h.sendID
	h.flagsMu.Unlock()
	h.sink.WriteData(rec, id)
}

// NotifyForNewData is called by LogBuffer.Insert, after it has released the
// buffer lock, for every reader whose list just received a record. It sets
// the notified flag Query consults and wakes anything blocked on Wake().
func (h *Handle) NotifyForNewData() {
	h.flagsMu.Lock()
	h.notified = true
	h.flagsMu.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// --- accessors used only by internal/logbuffer; kept unexported-by-convention via the small surface below ---

// TakeReload consumes and clears the reload flag, reporting whether it was set.
func (h *Handle) TakeReload() bool {
	h.flagsMu.Lock()
	defer h.flagsMu.Unlock()
	v := h.reload
	h.reload = false
	return v
}

// TakeNotified consumes and clears the notified flag, reporting whether it was set.
func (h *Handle) TakeNotified() bool {
	h.flagsMu.Lock()
	defer h.flagsMu.Unlock()
	v := h.notified
	h.notified = false
	return v
}

// ClearNotified clears the notified flag without reporting its prior value,
// used by LogBuffer.Query when the list is exhausted with no match.
func (h *Handle) ClearNotified() {
	h.flagsMu.Lock()
	h.notified = false
	h.flagsMu.Unlock()
}

// ReadPos/LastPos/SetReadPos/SetLastPos give internal/logbuffer direct
// access to the cursor pair; they are exported-but-internal since the
// cursor concretely is an iterator into LogBuffer's own list.
func (h *Handle) ReadPos() *list.Element     { return h.readPos }
func (h *Handle) LastPos() *list.Element     { return h.lastPos }
func (h *Handle) SetReadPos(e *list.Element) { h.readPos = e }
func (h *Handle) SetLastPos(e *list.Element) { h.lastPos = e }

// RepairCursor advances readPos/lastPos off a record about to be erased,
// so a cursor never dereferences a freed element during eviction or Delete.
func (h *Handle) RepairCursor(erased, successor *list.Element) {
	if h.readPos == erased {
		h.readPos = successor
	}
	if h.lastPos == erased {
		h.lastPos = successor
	}
}
