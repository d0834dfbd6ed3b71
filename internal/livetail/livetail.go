// Package livetail implements the network live-tail sink: a websocket
// session that receives every record matching its QueryCondition as the
// buffer inserts it, plus a client-adjustable tag glob filter the session
// can narrow without resubscribing. Each session owns a reader.Handle
// registered directly with the log buffer rather than subscribing to a
// global broadcast.
package livetail

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hiviewdfx/hilogd/internal/config"
	"github.com/hiviewdfx/hilogd/internal/log"
	"github.com/hiviewdfx/hilogd/internal/logbuffer"
	"github.com/hiviewdfx/hilogd/internal/logmodel"
	"github.com/hiviewdfx/hilogd/internal/reader"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Catalog tracks active live-tail sessions, for Stats reporting.
type Catalog struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

// NewCatalog builds an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{subs: map[*Subscriber]struct{}{}}
}

func (c *Catalog) add(s *Subscriber) {
	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()
}

func (c *Catalog) remove(s *Subscriber) {
	c.mu.Lock()
	delete(c.subs, s)
	c.mu.Unlock()
}

// Count reports how many live-tail sessions are currently connected.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// SubscribeMessage is an inbound message narrowing which tags a session
// wants to see, sent at any point during the session's lifetime.
type SubscribeMessage struct {
	TagPatterns []string `msgpack:"tag_patterns"`
}

// ErrorMessage reports a malformed SubscribeMessage back to the client.
type ErrorMessage struct {
	Error string `msgpack:"error"`
}

// RecordPayload is the wire shape a matched LogRecord is marshaled into.
type RecordPayload struct {
	Level   uint8  `msgpack:"level"`
	Type    uint8  `msgpack:"type"`
	Sec     uint32 `msgpack:"sec"`
	Nsec    uint32 `msgpack:"nsec"`
	Pid     uint32 `msgpack:"pid"`
	Tid     uint32 `msgpack:"tid"`
	Domain  uint32 `msgpack:"domain"`
	Tag     string `msgpack:"tag"`
	Content string `msgpack:"content"`
}

func toPayload(rec *logmodel.LogRecord) RecordPayload {
	return RecordPayload{
		Level:   uint8(rec.Level),
		Type:    uint8(rec.Type),
		Sec:     rec.Timestamp.Sec,
		Nsec:    rec.Timestamp.Nsec,
		Pid:     rec.Pid,
		Tid:     rec.Tid,
		Domain:  rec.Domain,
		Tag:     rec.Tag,
		Content: rec.Content,
	}
}

// Subscriber is one connected live-tail session. It implements reader.Sink
// so LogBuffer.Query can deliver matches to it directly.
type Subscriber struct {
	mu   sync.Mutex
	c    *websocket.Conn
	done chan struct{}

	patternsMu  sync.RWMutex
	tagPatterns []glob.Glob

	buffer *logbuffer.Buffer
	handle *reader.Handle
}

func (s *Subscriber) tagAllowed(tag string) bool {
	s.patternsMu.RLock()
	defer s.patternsMu.RUnlock()
	if len(s.tagPatterns) == 0 {
		return true
	}
	for _, g := range s.tagPatterns {
		if g.Match(tag) {
			return true
		}
	}
	return false
}

// WriteData implements reader.Sink.
func (s *Subscriber) WriteData(rec *logmodel.LogRecord, _ reader.SendID) {
	if rec == nil {
		return
	}
	if !s.tagAllowed(rec.Tag) {
		return
	}
	buf, err := msgpack.Marshal(toPayload(rec))
	if err != nil {
		log.Error("livetail: failed to marshal record: %v", err)
		return
	}
	if err := s.writeOut(buf); err != nil {
		log.Error("livetail: failed to send record: %v", err)
	}
}

func (s *Subscriber) writeOut(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.SetWriteDeadline(time.Now().Add(writeWait))
	return s.c.WriteMessage(websocket.BinaryMessage, buf)
}

func (s *Subscriber) handleInbound(msg SubscribeMessage) error {
	patterns := make([]glob.Glob, 0, len(msg.TagPatterns))
	for _, p := range msg.TagPatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return fmt.Errorf("%q is not a valid tag pattern", p)
		}
		patterns = append(patterns, g)
	}
	s.patternsMu.Lock()
	s.tagPatterns = patterns
	s.patternsMu.Unlock()
	return nil
}

func (s *Subscriber) consume() {
	defer func() {
		close(s.done)
	}()

	s.c.SetReadDeadline(time.Now().Add(pongWait))
	s.c.SetPongHandler(func(string) error {
		return s.c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, buf, err := s.c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Error("livetail: unexpected websocket closure: %v", err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage, websocket.BinaryMessage:
			var m SubscribeMessage
			if err := msgpack.Unmarshal(buf, &m); err != nil {
				log.Error("livetail: failed to unmarshal inbound message: %v", err)
				continue
			}
			if err := s.handleInbound(m); err != nil {
				errBuf, _ := msgpack.Marshal(ErrorMessage{Error: err.Error()})
				if werr := s.writeOut(errBuf); werr != nil {
					log.Error("livetail: failed to send error message: %v", werr)
				}
			}
		case websocket.CloseMessage:
			return
		}
	}
}

// pump drains matching records from the buffer into the session, falling
// back to a ping keepalive while idle, until the session's consume loop
// exits.
func (s *Subscriber) pump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		if s.buffer.Query(s.handle) {
			continue
		}
		select {
		case <-s.handle.Wake():
		case <-ticker.C:
			s.mu.Lock()
			s.c.SetWriteDeadline(time.Now().Add(writeWait))
			s.c.WriteMessage(websocket.PingMessage, []byte{})
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

// conditionFromQuery parses the initial subscription filter from the
// upgrade request's query string: types=app,sec and tags=foo,bar.
func conditionFromQuery(r *http.Request) (reader.Condition, error) {
	cond := reader.Condition{Types: reader.AllTypesMask, Levels: reader.AllLevelsMask}
	q := r.URL.Query()

	if typesParam := q.Get("types"); typesParam != "" {
		mask, err := config.TypesToMask(strings.Split(typesParam, ","))
		if err != nil {
			return cond, err
		}
		cond.Types = mask
	}
	if tagsParam := q.Get("tags"); tagsParam != "" {
		cond.Tags = strings.Split(tagsParam, ",")
	}
	return cond, nil
}

// Handler upgrades an HTTP request to a websocket live-tail session
// against buf, tracking it in catalog for the lifetime of the connection.
func Handler(buf *logbuffer.Buffer, catalog *Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cond, err := conditionFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("livetail: failed to upgrade connection: %v", err)
			return
		}

		s := &Subscriber{
			c:      ws,
			done:   make(chan struct{}),
			buffer: buf,
		}
		s.handle = reader.New(cond, s, false)

		buf.AddReader(s.handle)
		catalog.add(s)
		log.Info("livetail: new session from %v", ws.RemoteAddr())

		go func() {
			s.consume()
			catalog.remove(s)
			buf.RemoveReader(s.handle)
			ws.Close()
		}()
		go s.pump()
	}
}
