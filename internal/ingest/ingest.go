// Package ingest decouples receiving raw wire frames from inserting them
// into the log buffer: a slow Insert (evicting, notifying readers) should
// never make whatever reads the ingress socket block, so received frames
// go onto an unbounded queue that a single goroutine drains into the
// buffer.
package ingest

import (
	"github.com/eapache/channels"

	"github.com/hiviewdfx/hilogd/internal/errcode"
	"github.com/hiviewdfx/hilogd/internal/log"
	"github.com/hiviewdfx/hilogd/internal/logbuffer"
	"github.com/hiviewdfx/hilogd/internal/wire"
)

// Pipeline drains decoded wire frames into a Buffer on a dedicated
// goroutine, so the ingress transport (a socket listener, a test harness)
// never waits on buffer eviction or reader notification.
type Pipeline struct {
	queue  *channels.InfiniteChannel
	buffer *logbuffer.Buffer
	done   chan struct{}
}

// New builds a Pipeline feeding buf.
func New(buf *logbuffer.Buffer) *Pipeline {
	return &Pipeline{
		queue:  channels.NewInfiniteChannel(),
		buffer: buf,
		done:   make(chan struct{}),
	}
}

// Submit enqueues a raw ingress frame for decoding and insertion. It never
// blocks: the queue is unbounded, so a slow consumer never stalls the
// producer. The buffer does not reject a well-formed record when a type's
// quota is exhausted; it evicts that type's oldest records instead.
func (p *Pipeline) Submit(frame []byte) {
	p.queue.In() <- frame
}

// Run drains the queue until Close is called. It decodes each frame and
// inserts it, logging (but not failing on) malformed frames.
func (p *Pipeline) Run() {
	for v := range p.queue.Out() {
		frame, ok := v.([]byte)
		if !ok {
			continue
		}
		rec, code := wire.Decode(frame)
		if code != errcode.OK {
			log.Debug("ingest: dropped malformed frame: %v", code)
			continue
		}
		if p.buffer.Insert(rec) == 0 {
			log.Debug("ingest: buffer rejected record for type %d", rec.Type)
		}
	}
	close(p.done)
}

// Close stops accepting new frames and waits for Run to drain the queue
// and return.
func (p *Pipeline) Close() {
	p.queue.Close()
	<-p.done
}
