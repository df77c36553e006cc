package logs

import (
	"sync"

	"github.com/google/uuid"
)

// Hub fans tailed lines out to stream subscribers. A slow subscriber drops
// lines rather than stalling the tail loop.
type Hub struct {
	mu   sync.Mutex
	subs map[string]chan LogLine
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan LogLine)}
}

// Subscribe registers a receiver with the given buffer. cancel closes the channel.
func (h *Hub) Subscribe(buf int) (id string, lines <-chan LogLine, cancel func()) {
	if buf <= 0 {
		buf = 256
	}
	id = uuid.NewString()
	ch := make(chan LogLine, buf)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(l LogLine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- l:
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
