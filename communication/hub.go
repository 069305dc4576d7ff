package communication

import (
	"context"
	"sync"

	"github.com/cometbft/cometbft/libs/log"
)

// Hub fans committed notifications out to live subscribers such as websocket
// connections. A subscriber that falls behind loses notifications rather than
// stalling block commit.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Notification
	next   uint64
	buffer int
	logger log.Logger
}

func NewHub(buffer int, logger log.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Hub{subs: make(map[uint64]chan Notification), buffer: buffer, logger: logger}
}

// Subscribe returns a notification channel and a function that ends the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Notification, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Notify(_ context.Context, n Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.logger.Error("dropping notification for slow subscriber", "subscriber", id, "type", n.Type)
		}
	}
	return nil
}
