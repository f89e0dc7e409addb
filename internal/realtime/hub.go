// Package realtime binds authenticated websocket sessions to per-school
// event rooms and fans events out within a room.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event is one realtime message. Data is kept opaque; the hub never inspects
// payloads beyond the size cap enforced at the socket.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
	At   time.Time       `json:"at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(name string, data json.RawMessage) Event {
	return Event{Name: name, Data: data, At: time.Now().UTC()}
}

// Hub fans events out to subscribers grouped into rooms. A session only ever
// joins the room of its own school.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[int]chan Event
	next  int
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[int]chan Event)}
}

// Subscribe registers a subscriber in the given room. The channel is closed
// when the context ends.
func (h *Hub) Subscribe(ctx context.Context, room string) <-chan Event {
	ch := make(chan Event, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	subs, ok := h.rooms[room]
	if !ok {
		subs = make(map[int]chan Event)
		h.rooms[room] = subs
	}
	subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if subs, ok := h.rooms[room]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.rooms, room)
			}
		}
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to every subscriber in the room.
func (h *Hub) Publish(room string, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.rooms[room] {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// RoomSize reports the number of active subscribers in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
