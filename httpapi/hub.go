package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/codebench/internal/logx"
	"pkt.systems/codebench/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64                  `json:"seq"`
	Type      string                  `json:"type"`
	Operation schema.OperationName    `json:"operation,omitempty"`
	Session   *schema.SessionSnapshot `json:"session,omitempty"`
	Editor    *EditorView             `json:"editor,omitempty"`
	Codegen   *CodegenView            `json:"codegen,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

const streamEventSnapshot = "snapshot"

// Hub broadcasts events per session.
type Hub struct {
	mu          sync.Mutex
	sessions    map[schema.SessionID]*sessionHub
	historySize int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 64
	}
	return &Hub{
		sessions:    make(map[schema.SessionID]*sessionHub),
		historySize: historySize,
	}
}

// OnSessionEvent implements core.EventSink.
func (h *Hub) OnSessionEvent(event schema.SessionEvent) {
	log := logx.WithSession(context.Background(), event.SessionID)
	log.Trace("hub session event", "type", event.Type, "op", event.Operation)
	snap := event.Snapshot
	h.publish(event.SessionID, newStreamEvent(string(event.Type), event.Operation, snap))
	if event.Type == schema.SessionEventClosed {
		h.mu.Lock()
		if sh := h.sessions[event.SessionID]; sh != nil {
			sh.history = nil
			if len(sh.subs) == 0 {
				delete(h.sessions, event.SessionID)
			}
		}
		h.mu.Unlock()
	}
}

func newStreamEvent(kind string, op schema.OperationName, snap schema.SessionSnapshot) StreamEvent {
	editor := NewEditorView(snap)
	codegen := NewCodegenView(snap)
	return StreamEvent{
		Type:      kind,
		Operation: op,
		Session:   &snap,
		Editor:    &editor,
		Codegen:   &codegen,
		Timestamp: time.Now(),
	}
}

// Subscribe registers a subscriber for a session and returns the current
// sequence number.
func (h *Hub) Subscribe(sessionID schema.SessionID) (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh := h.getOrCreateSessionHubLocked(sessionID)
	ch := make(chan StreamEvent, 256)
	sh.subs[ch] = struct{}{}
	seq := sh.seq
	log := logx.WithSession(context.Background(), sessionID)
	log.Info("hub subscribe", "subs", len(sh.subs), "history", len(sh.history))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(sh.subs, ch)
			close(ch)
			remaining := len(sh.subs)
			if remaining == 0 && len(sh.history) == 0 && h.sessions[sessionID] == sh {
				delete(h.sessions, sessionID)
			}
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(sessionID schema.SessionID, after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh := h.sessions[sessionID]
	if sh == nil {
		return nil
	}
	events := make([]StreamEvent, 0, len(sh.history))
	for _, event := range sh.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	logx.WithSession(context.Background(), sessionID).Debug("hub replay", "after", after, "count", len(events))
	return events
}

func (h *Hub) publish(sessionID schema.SessionID, event StreamEvent) {
	h.mu.Lock()
	sh := h.getOrCreateSessionHubLocked(sessionID)
	sh.seq++
	event.Seq = sh.seq
	sh.history = append(sh.history, event)
	if len(sh.history) > h.historySize {
		sh.history = sh.history[len(sh.history)-h.historySize:]
	}
	dropped := 0
	for sub := range sh.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		logx.WithSession(context.Background(), sessionID).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

func (h *Hub) getOrCreateSessionHubLocked(sessionID schema.SessionID) *sessionHub {
	sh := h.sessions[sessionID]
	if sh == nil {
		sh = &sessionHub{
			subs: make(map[chan StreamEvent]struct{}),
		}
		h.sessions[sessionID] = sh
	}
	return sh
}

type sessionHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}
