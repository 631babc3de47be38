package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"vaultchain/core/events"
	"vaultchain/core/types"

	"nhooyr.io/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second

	eventHistoryLimit = 2048
	subscriberBuffer  = 32
)

// StreamEvent is one committed module event in stream form. Seq doubles as
// the resume cursor.
type StreamEvent struct {
	Seq       uint64            `json:"seq"`
	Type      string            `json:"type"`
	Payload   map[string]string `json:"payload"`
	EmittedAt time.Time         `json:"emittedAt"`
}

type attributed interface {
	Event() *types.Event
}

// Hub fans committed module events out to websocket subscribers. It keeps a
// bounded replay history so reconnecting clients can resume from a cursor,
// and drops events for subscribers whose channels are full rather than
// blocking the committing mutation.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan StreamEvent
	history []StreamEvent
	now     func() time.Time
}

// NewHub constructs an empty event hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan StreamEvent), now: time.Now}
}

// SetNowFunc overrides the stream timestamp source. Passing nil restores
// time.Now.
func (h *Hub) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	h.mu.Lock()
	h.now = now
	h.mu.Unlock()
}

// Emit implements events.Emitter. Delivery to a full subscriber channel is
// skipped; the replay history covers the gap until the subscriber catches up
// or reconnects with its last cursor.
func (h *Hub) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	payload := map[string]string{}
	if conv, ok := evt.(attributed); ok {
		if detail := conv.Event(); detail != nil && detail.Attributes != nil {
			payload = detail.Attributes
		}
	}

	h.mu.Lock()
	h.seq++
	entry := StreamEvent{Seq: h.seq, Type: evt.EventType(), Payload: payload, EmittedAt: h.now().UTC()}
	h.history = append(h.history, entry)
	if len(h.history) > eventHistoryLimit {
		excess := len(h.history) - eventHistoryLimit
		trimmed := make([]StreamEvent, eventHistoryLimit)
		copy(trimmed, h.history[excess:])
		h.history = trimmed
	}
	subscribers := make([]chan StreamEvent, 0, len(h.subs))
	for _, ch := range h.subs {
		subscribers = append(subscribers, ch)
	}
	h.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Subscribe registers a stream subscriber starting after the supplied cursor.
// History entries newer than the cursor are returned as backlog; an
// unparseable cursor replays the full retained history.
func (h *Hub) Subscribe(ctx context.Context, cursor string) (<-chan StreamEvent, func(), []StreamEvent) {
	updates := make(chan StreamEvent, subscriberBuffer)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = updates
	backlog := make([]StreamEvent, 0, len(h.history))
	for _, entry := range h.history {
		if entry.Seq > since {
			backlog = append(backlog, entry)
		}
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			sub, ok := h.subs[id]
			if ok {
				delete(h.subs, id)
				close(sub)
			}
			h.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.hub == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor string) error {
	updates, cancel, backlog := s.hub.Subscribe(ctx, cursor)
	defer cancel()

	for _, entry := range backlog {
		if err := writeStreamEvent(ctx, conn, entry); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeStreamEvent(ctx, conn, entry); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, entry StreamEvent) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	writeCtx, cancelWrite := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancelWrite()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
