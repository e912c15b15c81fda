//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-router/domain"
	"chat-router/domain/event"
	"context"
	"reflect"
)

// Subscription is the handle on one observation of an external stream.
// Unsubscribe releases the router's interest without destroying the
// underlying document.
type Subscription interface {
	Unsubscribe() error
}

// MessageDelta is one change record from a chat document's message list.
// A batch may carry several records; only insert payloads hold data the
// router reads, delete payloads are ignored.
type MessageDelta struct {
	Insert []domain.Message
}

// ChatDocument is the consumed contract of a collaborative chat transcript:
// a subscribable ordered list of message deltas.
type ChatDocument interface {
	ObserveMessages(cb func(deltas []MessageDelta)) Subscription
}

// PresenceMap is a client -> state map broadcast to all participants.
// The same contract covers per-room awareness and the process-wide map.
type PresenceMap interface {
	States() map[int64]domain.ClientState
	Observe(cb func()) Subscription
}

// NotebookDocument is the consumed contract of a collaborative notebook:
// a presence map plus a deep-change stream over its cell list.
type NotebookDocument interface {
	Awareness() PresenceMap
	ObserveCells(cb func()) Subscription
}

// RoomResolver resolves a document path to a room identifier.
// "" means the path maps to no room.
type RoomResolver interface {
	ResolveRoom(ctx context.Context, path string) (string, error)
}

// DocumentResolver resolves a room identifier to its notebook document.
// A nil document with a nil error means the room is unavailable; the router
// logs and abandons the attempt, no retry.
type DocumentResolver interface {
	ResolveNotebook(ctx context.Context, roomID string) (NotebookDocument, error)
}

// EventSink consumes derived events for observability and side effects.
// Sinks get best-effort delivery; a failing sink never blocks routing.
type EventSink interface {
	Consume(ctx context.Context, e event.RoutedEvent) error
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming on the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
