// Package event defines the derived events the router dispatches to sinks.
package event

import (
	"time"

	"github.com/google/uuid"
)

// RoutedEvent is any derived event produced by the router.
type RoutedEvent interface {
	RoomID() string
}

// ChatConnected is emitted once when a chat document is attached to a room.
type ChatConnected struct {
	Room string
	At   time.Time
}

func (e ChatConnected) RoomID() string { return e.Room }

// ChatReset is emitted when a room's chat document identity is replaced
// while the room stays logically the same.
type ChatReset struct {
	Room string
	At   time.Time
}

func (e ChatReset) RoomID() string { return e.Room }

// MessageRouted is emitted for every plain message fanned out to observers.
type MessageRouted struct {
	ID     uuid.UUID
	Room   string
	Sender string
	Body   string
	At     time.Time
}

func (e MessageRouted) RoomID() string { return e.Room }

// SlashCommandRouted is emitted for every slash command fanned out to
// pattern observers. Body holds the trimmed remainder, not the raw body.
type SlashCommandRouted struct {
	ID      uuid.UUID
	Room    string
	Command string
	Sender  string
	Body    string
	At      time.Time
}

func (e SlashCommandRouted) RoomID() string { return e.Room }

// CellFocusChanged is emitted when a user moved focus to a different cell
// after the notebook had been edited since the user's state was last checked.
type CellFocusChanged struct {
	Room         string
	Username     string
	PreviousCell string
	Cell         string
	NotebookPath string
	At           time.Time
}

func (e CellFocusChanged) RoomID() string { return e.Room }
