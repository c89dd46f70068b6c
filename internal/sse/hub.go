package sse

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event is one server-sent event.
type Event struct {
	Type string // "running", "completed", "failed"
	Data string // JSON payload
}

// Hub is an in-memory pub/sub hub keyed by topic (one topic per job).
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[chan Event]struct{}
}

func New() *Hub {
	return &Hub{
		clients: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe registers a listener on topic. The returned func must be called
// to release it.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[chan Event]struct{})
	}
	h.clients[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients[topic], ch)
			if len(h.clients[topic]) == 0 {
				delete(h.clients, topic)
			}
			h.mu.Unlock()
		})
	}
	return ch, unsub
}

// Publish sends an event to every subscriber of topic. Slow subscribers whose
// buffer is full miss the event.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients[topic] {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishJSON marshals payload as the event data.
func (h *Hub) PublishJSON(topic, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("sse: marshal event", "type", eventType, "error", err)
		return
	}
	h.Publish(topic, Event{Type: eventType, Data: string(data)})
}

// subscribers returns the number of listeners on topic.
func (h *Hub) subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[topic])
}
