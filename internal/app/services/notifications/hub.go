package notifications

import (
	"sync"
	"sync/atomic"

	"github.com/conedex/conedex/internal/app/domain/notification"
)

const defaultBuffer = 16

// Hub fans new notifications out to live subscribers in this process.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
}

// Subscription receives notifications for one user until closed.
type Subscription struct {
	C      <-chan notification.Notification
	ch     chan notification.Notification
	userID string
	hub    *Hub
	once   sync.Once
}

// NewHub creates a hub whose subscriptions buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a subscription for userID.
func (h *Hub) Subscribe(userID string) *Subscription {
	ch := make(chan notification.Notification, h.buffer)
	sub := &Subscription{C: ch, ch: ch, userID: userID, hub: h}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		delete(h.subs[s.userID], s)
		if len(h.subs[s.userID]) == 0 {
			delete(h.subs, s.userID)
		}
		close(s.ch)
		h.mu.Unlock()
	})
}

// Publish delivers n to every subscription of its user. A full subscription
// drops the message.
func (h *Hub) Publish(n notification.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[n.UserID] {
		select {
		case sub.ch <- n:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Dropped returns how many messages were dropped for slow subscribers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
