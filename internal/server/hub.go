package server

import (
	"sync"

	"livetrade/internal/ledger"
	"livetrade/internal/schema"
	"livetrade/internal/session"
)

const (
	EventTrade    = "trade"
	EventPosition = "position"
)

// Event is one message of the websocket stream.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Data      any    `json:"data"`
}

type subscription[T any] struct {
	ch chan T
}

type hub[T any] struct {
	mu   sync.RWMutex
	subs map[*subscription[T]]struct{}
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[*subscription[T]]struct{})}
}

func (h *hub[T]) Subscribe(buffer int) *subscription[T] {
	sub := &subscription[T]{ch: make(chan T, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub[T]) Unsubscribe(sub *subscription[T]) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
	h.mu.Unlock()
}

// Broadcast never blocks; a slow subscriber misses values.
func (h *hub[T]) Broadcast(value T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- value:
		default:
		}
	}
}

func (h *hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Hub fans session events out to stream subscribers.
type Hub struct {
	events *hub[Event]
}

func NewHub() *Hub {
	return &Hub{events: newHub[Event]()}
}

// Listener returns the session listener that publishes into the hub. It is
// meant for session.Config.Observer.
func (h *Hub) Listener(sessionID string) session.Listener {
	return session.ListenerFuncs{
		Trade: func(trade schema.Trade) {
			h.events.Broadcast(Event{Type: EventTrade, SessionID: sessionID, Data: trade})
		},
		Position: func(pos ledger.Position) {
			h.events.Broadcast(Event{Type: EventPosition, SessionID: sessionID, Data: pos})
		},
	}
}

// Subscribers returns the number of connected stream clients.
func (h *Hub) Subscribers() int {
	return h.events.Len()
}
