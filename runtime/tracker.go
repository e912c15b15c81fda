// Package runtime handles event routing, observer registries, and the
// activity-detection lifecycle. It orchestrates the system without owning
// the underlying collaborative documents.
package runtime

import (
	"chat-router/contract"
	"time"
)

// Set holds usernames.
type Set map[string]struct{}

// RoomTracker is the per-room activity record. One exists for a room exactly
// while ActiveUsers is non-empty: created lazily the first time a user's
// focus resolves to the room, destroyed the instant the set drains.
type RoomTracker struct {
	RoomID      string
	Document    contract.NotebookDocument
	LastEdit    time.Time
	LastTrigger time.Time
	ActiveUsers Set

	presenceSub contract.Subscription
	editSub     contract.Subscription
}

func NewRoomTracker(roomID string, doc contract.NotebookDocument) *RoomTracker {
	return &RoomTracker{
		RoomID:      roomID,
		Document:    doc,
		ActiveUsers: make(Set),
	}
}

// UserRoomState is a user's last-observed position in one room.
// An empty ActiveCell means the user has not been sighted in the room yet.
type UserRoomState struct {
	ActiveCell   string
	NotebookPath string
	LastCheck    time.Time
}

// UserTracker is the per-user record. Created lazily on the first activity
// observation for the username, destroyed when its last observer id is
// removed.
type UserTracker struct {
	Username        string
	CurrentDocument string // notebook path, "" when none
	ObserverIDs     map[int]struct{}
	RoomStates      map[string]*UserRoomState
}

func NewUserTracker(username string) *UserTracker {
	return &UserTracker{
		Username:    username,
		ObserverIDs: make(map[int]struct{}),
		RoomStates:  make(map[string]*UserRoomState),
	}
}
