// events/hub.go
package events

import (
	"log"
	"sync"
)

// Event names carried over the push channel. Clients that miss one can
// reach the same state by polling the REST surface.
const (
	EventNewBlock            = "newBlock"
	EventInterruptionStarted = "interruptionStarted"
	EventInterruptionEnded   = "interruptionEnded"
	EventSubscriptionExpired = "subscriptionExpired"
	EventNewNotification     = "newNotification"
	EventPriceUpdate         = "bitcoinPriceUpdate"
)

// Event is one push message. UserID empty means broadcast.
type Event struct {
	Name    string      `json:"event"`
	UserID  string      `json:"-"`
	Payload interface{} `json:"payload"`
}

// Publisher is the capability services use to push events. Ledger logic
// never touches transport wiring directly; the hub (or a no-op in tests)
// is injected at construction.
type Publisher interface {
	Emit(event string, payload interface{})
	EmitToUser(userID string, event string, payload interface{})
}

// Subscriber is one connected stream. Events are dropped rather than
// blocked when its buffer is full.
type Subscriber struct {
	UserID string
	C      chan Event
}

// Hub fans events out to connected SSE streams in-process.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a stream for the given user (empty userID receives
// broadcasts only).
func (h *Hub) Subscribe(userID string, buffer int) *Subscriber {
	sub := &Subscriber{UserID: userID, C: make(chan Event, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.C)
	}
	h.mu.Unlock()
}

// Emit broadcasts an event to every subscriber.
func (h *Hub) Emit(event string, payload interface{}) {
	h.dispatch(Event{Name: event, Payload: payload}, func(*Subscriber) bool { return true })
}

// EmitToUser delivers an event to the subscribers of a single user.
func (h *Hub) EmitToUser(userID string, event string, payload interface{}) {
	h.dispatch(Event{Name: event, UserID: userID, Payload: payload}, func(s *Subscriber) bool {
		return s.UserID == userID
	})
}

func (h *Hub) dispatch(ev Event, match func(*Subscriber) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !match(sub) {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			// Slow consumer; push is best-effort.
			log.Printf("[events] dropped %s event for slow subscriber (user=%q)", ev.Name, sub.UserID)
		}
	}
}

// NopPublisher discards all events. Used in tests and as a safe default.
type NopPublisher struct{}

func (NopPublisher) Emit(string, interface{})               {}
func (NopPublisher) EmitToUser(string, string, interface{}) {}
