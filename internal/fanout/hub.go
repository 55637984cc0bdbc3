package fanout

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
)

// ErrStreamingDisabled is returned by Router.Listen when no Hub is configured.
var ErrStreamingDisabled = errors.New("live zone streaming is disabled")

// DefaultListenerBuffer is the per-listener queue length.
const DefaultListenerBuffer = 16

// Hub delivers published messages to in-process listeners. Delivery never
// blocks the publisher: a listener whose queue is full misses the message
// and can catch up through FetchFor.
type Hub struct {
	mu        sync.Mutex
	listeners map[string]map[chan domain.ZoneMessage]struct{}
	buffer    int
	logger    *slog.Logger
}

// NewHub creates a Hub. A non-positive buffer uses DefaultListenerBuffer.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultListenerBuffer
	}
	return &Hub{
		listeners: make(map[string]map[chan domain.ZoneMessage]struct{}),
		buffer:    buffer,
		logger:    logger,
	}
}

func listenKey(district string, audience domain.Audience) string {
	return district + "/" + string(audience)
}

// Listen registers a listener for district and audience. The returned stop
// function unregisters it and closes the channel; it is safe to call more
// than once.
func (h *Hub) Listen(district string, audience domain.Audience) (<-chan domain.ZoneMessage, func()) {
	ch := make(chan domain.ZoneMessage, h.buffer)
	key := listenKey(district, audience)

	h.mu.Lock()
	set, ok := h.listeners[key]
	if !ok {
		set = make(map[chan domain.ZoneMessage]struct{})
		h.listeners[key] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners[key], ch)
			if len(h.listeners[key]) == 0 {
				delete(h.listeners, key)
			}
			close(ch)
		})
	}
	return ch, stop
}

// Broadcast hands msg to every listener of its audience. Citizen messages
// also reach the district's moderators.
func (h *Hub) Broadcast(msg domain.ZoneMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deliver(listenKey(msg.District, msg.Audience), msg)
	if msg.Audience == domain.AudienceCitizens {
		h.deliver(listenKey(msg.District, domain.AudienceModerators), msg)
	}
}

// Listeners reports how many listeners are registered for district and audience.
func (h *Hub) Listeners(district string, audience domain.Audience) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[listenKey(district, audience)])
}

func (h *Hub) deliver(key string, msg domain.ZoneMessage) {
	for ch := range h.listeners[key] {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("zone listener queue full, dropping message",
				"message_id", msg.ID, "listener", key)
		}
	}
}
