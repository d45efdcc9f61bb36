package chat

import (
	"log"
	"sync"

	"github.com/zhouzirui/tecnoaigent/backend/internal/model/chat"
)

const subscriberBuffer = 32

// hub fans session events out to the page streams watching them.
type hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan chat.Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan chat.Event]struct{})}
}

func (h *hub) subscribe(sessionID string) (<-chan chat.Event, func()) {
	ch := make(chan chat.Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan chat.Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[sessionID]; ok {
			if _, live := set[ch]; live {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// publish never blocks; a subscriber that falls behind misses events but every
// event carries a full snapshot, so the next one resynchronizes it.
func (h *hub) publish(event chat.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
			log.Printf("[chat] dropping %s event for slow subscriber session=%s", event.Type, event.SessionID)
		}
	}
}

func (h *hub) closeSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[sessionID] {
		select {
		case ch <- chat.Event{Type: chat.EventClosed, SessionID: sessionID}:
		default:
		}
		close(ch)
	}
	delete(h.subs, sessionID)
}
