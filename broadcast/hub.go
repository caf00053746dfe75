// Package broadcast fans a room's ordered event stream out to any number of
// observers. The hub is the single serialization point: the room reactor is
// the only publisher, and sequence numbers are assigned under the hub lock,
// so every subscriber sees the same total order.
package broadcast

import (
	"sync"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

const defaultSubscriberBuffer = 128

// Hub multiplexes one room's event stream to attached observers. Observers
// may attach and detach at any time without affecting delivery to others; a
// subscriber that falls behind its buffer loses events rather than blocking
// the room.
type Hub struct {
	roomID string
	logger logging.Logger

	mu          sync.Mutex
	seq         uint64
	subscribers map[uint64]chan core.Event
	nextSubID   uint64
	closed      bool
}

// NewHub constructs a hub for one room.
func NewHub(roomID string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Hub{
		roomID:      roomID,
		logger:      logger,
		subscribers: make(map[uint64]chan core.Event),
	}
}

// Subscribe attaches an observer and returns its event channel plus a cancel
// function. The channel is closed on cancel or hub close. Subscribing to a
// closed hub yields an immediately closed channel.
func (h *Hub) Subscribe() (<-chan core.Event, func()) {
	ch := make(chan core.Event, defaultSubscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.nextSubID++
	id := h.nextSubID
	h.subscribers[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish assigns the next sequence number to ev and delivers it to all
// subscribers. Events published after Close are dropped.
func (h *Hub) Publish(ev core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.seq++
	ev.Seq = h.seq
	for id, sub := range h.subscribers {
		select {
		case sub <- ev:
			continue
		default:
		}
		// Full buffer: evict the oldest undelivered event so the subscriber
		// keeps receiving the most recent stream.
		select {
		case old := <-sub:
			h.logger.Warn("dropping oldest event for slow subscriber", "room_id", h.roomID, "subscriber", id, "dropped_seq", old.Seq, "dropped_type", old.Type)
		default:
		}
		select {
		case sub <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of attached observers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close detaches all observers and closes their channels. Idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		close(sub)
	}
}
