package service

import (
	"sync"

	"slowclaw/internal/publish/models"
)

const subscriberBuffer = 64

// hub fans one task's progress events out to subscribers. Late subscribers
// get the full history first, so every subscriber sees the same ordered
// sequence. A subscriber whose buffer is full misses events rather than
// stalling the task.
type hub struct {
	mu      sync.Mutex
	history []models.ProgressEvent
	subs    map[int]chan models.ProgressEvent
	next    int
	closed  bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan models.ProgressEvent)}
}

func (h *hub) publish(ev models.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.history = append(h.history, ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) subscribe() (<-chan models.ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.ProgressEvent, len(h.history)+subscriberBuffer)
	for _, ev := range h.history {
		ch <- ev
	}
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// close ends every subscription after the terminal event.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *hub) events() []models.ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.ProgressEvent, len(h.history))
	copy(out, h.history)
	return out
}
