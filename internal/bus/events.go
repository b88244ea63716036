// Package bus is the in-process publish/subscribe layer plus the
// outward WebSocket broadcast to external observers.
package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Event is one system event. Data is event-specific payload, already
// shaped for the observer wire format.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types fanned out to observers.
const (
	EventMessageReceived     = "message_received"
	EventMessageSent         = "message_sent"
	EventConnectionStatus    = "connection_status_changed"
	EventAIResponseGenerated = "ai_response_generated"
	EventErrorOccurred       = "error_occurred"
	EventConnection          = "connection"
	EventStatus              = "status"
)

// EventHandler is a subscriber callback.
type EventHandler func(Event)

const defaultMaxHistory = 100

// EventBus maps event types to ordered handler lists. Handlers run
// synchronously in registration order, each inside its own fault
// boundary so one panicking subscriber never takes down the rest. A
// bounded buffer of recent events backs Replay for late observers.
type EventBus struct {
	mu         sync.RWMutex
	handlers   map[string][]namedHandler
	history    []Event
	maxHistory int
	logger     *slog.Logger
}

type namedHandler struct {
	id      string
	handler EventHandler
}

func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		handlers:   make(map[string][]namedHandler),
		maxHistory: defaultMaxHistory,
		logger:     logger,
	}
}

// On registers a handler for eventType. "*" subscribes to everything.
// The returned id can be passed to Off.
func (eb *EventBus) On(eventType string, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eventType + "-" + strconv.Itoa(len(eb.handlers[eventType]))
	eb.handlers[eventType] = append(eb.handlers[eventType], namedHandler{id: id, handler: handler})
	return id
}

// Off removes a handler by id.
func (eb *EventBus) Off(eventType, id string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	handlers := eb.handlers[eventType]
	for i, h := range handlers {
		if h.id == id {
			eb.handlers[eventType] = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

// Emit delivers the event to every matching handler. A missing
// timestamp is filled in.
func (eb *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.Lock()
	if len(eb.history) >= eb.maxHistory {
		eb.history = eb.history[1:]
	}
	eb.history = append(eb.history, event)
	handlers := make([]namedHandler, 0, len(eb.handlers[event.Type])+len(eb.handlers["*"]))
	handlers = append(handlers, eb.handlers[event.Type]...)
	handlers = append(handlers, eb.handlers["*"]...)
	eb.mu.Unlock()

	for _, h := range handlers {
		func(nh namedHandler) {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "event", event.Type, "handler", nh.id, "panic", r)
				}
			}()
			nh.handler(event)
		}(h)
	}
}

// Replay returns buffered events of the given type emitted at or
// after since. "*" matches every type.
func (eb *EventBus) Replay(eventType string, since time.Time) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var out []Event
	for _, e := range eb.history {
		if eventType != "*" && e.Type != eventType {
			continue
		}
		if e.Timestamp.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// HistoryLen returns the number of buffered events.
func (eb *EventBus) HistoryLen() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.history)
}

// HandlerCount returns the number of handlers registered for
// eventType.
func (eb *EventBus) HandlerCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}
