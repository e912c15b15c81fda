// Package projection builds local timelines from routed events.
// Handles ordering and per-room grouping. Does not emit events.
package projection

import (
	"chat-router/domain/event"
	"context"
	"sync"
)

// Timeline keeps a per-room ordered record of routed events, usable by
// hosts for inspection and debugging.
type Timeline struct {
	mu    sync.Mutex
	rooms map[string][]event.RoutedEvent
}

func NewTimeline() *Timeline {
	return &Timeline{rooms: make(map[string][]event.RoutedEvent)}
}

func (t *Timeline) Consume(_ context.Context, e event.RoutedEvent) error {
	t.mu.Lock()
	t.rooms[e.RoomID()] = append(t.rooms[e.RoomID()], e)
	t.mu.Unlock()
	return nil
}

// Room returns the room's events in arrival order.
func (t *Timeline) Room(roomID string) []event.RoutedEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]event.RoutedEvent(nil), t.rooms[roomID]...)
}

// Len reports how many events have been recorded for the room.
func (t *Timeline) Len(roomID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms[roomID])
}
