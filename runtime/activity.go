package runtime

import (
	"chat-router/contract"
	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultCooldown is the minimum time between two activity notifications
// originating from the same room.
const DefaultCooldown = time.Second

// ActivityCallback receives (username, previous active cell, notebook path)
// when the user moved focus to a different cell following an edit.
type ActivityCallback func(username, previousCell, notebookPath string)

type observerRegistration struct {
	id       int
	username string
	callback ActivityCallback
}

// ActivityEngine correlates the global presence stream with per-room edit
// and presence streams and fans out derived activity events. It owns the
// reference-counted attach/detach of RoomTrackers driven by UserTracker
// membership.
//
// All registry mutation is serialized by one mutex, realizing the single
// logical thread of execution; document resolution runs as deferred tasks
// that re-check membership before mutating, so a task completing after its
// target was detached is a safe no-op.
type ActivityEngine struct {
	mu       sync.Mutex
	log      *slog.Logger
	cooldown time.Duration
	now      func() time.Time

	rooms     contract.RoomResolver
	documents contract.DocumentResolver
	global    contract.PresenceMap
	globalSub contract.Subscription

	tasks *workers.TaskQueue
	emit  func(e event.RoutedEvent)

	nextID    int
	observers map[int]*observerRegistration
	users     map[string]*UserTracker
	trackers  map[string]*RoomTracker
}

// NewActivityEngine subscribes to the global presence map once, at
// construction, and keeps that subscription until Shutdown.
func NewActivityEngine(
	log *slog.Logger,
	global contract.PresenceMap,
	rooms contract.RoomResolver,
	documents contract.DocumentResolver,
	tasks *workers.TaskQueue,
	cooldown time.Duration,
	emit func(e event.RoutedEvent),
) *ActivityEngine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if emit == nil {
		emit = func(event.RoutedEvent) {}
	}
	e := &ActivityEngine{
		log:       log,
		cooldown:  cooldown,
		now:       time.Now,
		rooms:     rooms,
		documents: documents,
		global:    global,
		tasks:     tasks,
		emit:      emit,
		observers: make(map[int]*observerRegistration),
		users:     make(map[string]*UserTracker),
		trackers:  make(map[string]*RoomTracker),
	}
	e.globalSub = global.Observe(e.onGlobalPresence)
	return e
}

// ObserveNotebookActivity registers a callback for one user's cell-focus
// activity and returns the observer id. Resolution of the user's currently
// focused document happens asynchronously and may complete after return.
func (e *ActivityEngine) ObserveNotebookActivity(username string, cb ActivityCallback) int {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.observers[id] = &observerRegistration{id: id, username: username, callback: cb}
	user, ok := e.users[username]
	if !ok {
		user = NewUserTracker(username)
		e.users[username] = user
	}
	user.ObserverIDs[id] = struct{}{}
	e.mu.Unlock()

	e.log.Info(fmt.Sprintf("Registered notebook activity callback %d for user %s", id, username))
	e.tasks.Submit("resolve-initial-focus", func(ctx context.Context) {
		e.resolveInitialFocus(ctx, username)
	})
	return id
}

// UnobserveNotebookActivity removes one registration. When the owning user
// has no registration left, the UserTracker is dropped and every RoomTracker
// recomputes its active users; trackers left empty are torn down and their
// subscriptions released. Returns false for an unknown id.
func (e *ActivityEngine) UnobserveNotebookActivity(id int) bool {
	e.mu.Lock()
	reg, ok := e.observers[id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.observers, id)

	if user, ok := e.users[reg.username]; ok {
		delete(user.ObserverIDs, id)
		if len(user.ObserverIDs) == 0 {
			delete(e.users, reg.username)
		}
	}

	var released []*RoomTracker
	for roomID, tracker := range e.trackers {
		for username := range tracker.ActiveUsers {
			user, live := e.users[username]
			if !live || len(user.ObserverIDs) == 0 {
				delete(tracker.ActiveUsers, username)
			}
		}
		if len(tracker.ActiveUsers) == 0 {
			delete(e.trackers, roomID)
			released = append(released, tracker)
		}
	}
	e.mu.Unlock()

	for _, tracker := range released {
		e.release(tracker)
	}
	e.log.Info(fmt.Sprintf("Unregistered notebook activity callback %d", id))
	return true
}

// onGlobalPresence reacts to changes in the process-wide presence map.
// A known user whose focused notebook differs from the stored one triggers
// an asynchronous focus switch; everything else is skipped.
func (e *ActivityEngine) onGlobalPresence() {
	type focusSwitch struct {
		username string
		newPath  string
		prevPath string
	}

	states := e.global.States()

	e.mu.Lock()
	var switches []focusSwitch
	for _, state := range states {
		user, known := e.users[state.Username]
		if !known {
			continue
		}
		path := domain.NotebookPathFromCurrent(state.Current)
		if path == "" || path == user.CurrentDocument {
			continue
		}
		prev := user.CurrentDocument
		user.CurrentDocument = path
		switches = append(switches, focusSwitch{state.Username, path, prev})
	}
	e.mu.Unlock()

	for _, sw := range switches {
		sw := sw
		e.tasks.Submit("focus-switch", func(ctx context.Context) {
			e.switchFocus(ctx, sw.username, sw.newPath, sw.prevPath)
		})
	}
}

// resolveInitialFocus finds the user's currently focused notebook in the
// global presence map and attaches its room, if any.
func (e *ActivityEngine) resolveInitialFocus(ctx context.Context, username string) {
	var path string
	for _, state := range e.global.States() {
		if state.Username != username {
			continue
		}
		if p := domain.NotebookPathFromCurrent(state.Current); p != "" {
			path = p
		}
	}
	if path == "" {
		return
	}

	e.mu.Lock()
	user, ok := e.users[username]
	if !ok {
		// Unobserved before resolution completed.
		e.mu.Unlock()
		return
	}
	prev := user.CurrentDocument
	user.CurrentDocument = path
	e.mu.Unlock()

	e.switchFocus(ctx, username, path, prev)
}

// switchFocus attaches the room behind newPath and detaches the user from
// the room behind prevPath when it is no longer their focus. Resolution
// failures are logged and the attempt abandoned, no retry.
func (e *ActivityEngine) switchFocus(ctx context.Context, username, newPath, prevPath string) {
	if newPath != "" {
		roomID, err := e.rooms.ResolveRoom(ctx, newPath)
		switch {
		case err != nil:
			e.log.Error(fmt.Sprintf("Error resolving room for %q: %v", newPath, err))
		case roomID != "":
			e.attachRoom(ctx, roomID, username)
		}
	}

	if prevPath == "" || prevPath == newPath {
		return
	}
	roomID, err := e.rooms.ResolveRoom(ctx, prevPath)
	switch {
	case err != nil:
		e.log.Error(fmt.Sprintf("Error resolving room for %q: %v", prevPath, err))
	case roomID != "":
		e.detachRoom(roomID, username)
	}
}

// attachRoom adds the user to the room's tracker, creating the tracker and
// subscribing its presence and edit streams on first use.
func (e *ActivityEngine) attachRoom(ctx context.Context, roomID, username string) {
	e.mu.Lock()
	user, live := e.users[username]
	if !live {
		e.mu.Unlock()
		return
	}
	if tracker, ok := e.trackers[roomID]; ok {
		tracker.ActiveUsers[username] = struct{}{}
		if _, ok := user.RoomStates[roomID]; !ok {
			user.RoomStates[roomID] = &UserRoomState{}
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	doc, err := e.documents.ResolveNotebook(ctx, roomID)
	if err != nil {
		e.log.Error(fmt.Sprintf("Error getting notebook document for %s: %v", roomID, err))
		return
	}
	if doc == nil {
		e.log.Warn(fmt.Sprintf("Notebook document for %s unavailable", roomID))
		return
	}

	presenceSub := doc.Awareness().Observe(func() { e.onRoomPresence(roomID) })
	editSub := doc.ObserveCells(func() { e.onRoomEdit(roomID) })

	e.mu.Lock()
	user, live = e.users[username]
	if !live {
		// Detached while resolving; leave no tracker behind.
		e.mu.Unlock()
		e.unsubscribeQuietly(roomID, presenceSub, editSub)
		return
	}
	if tracker, ok := e.trackers[roomID]; ok {
		// An interleaved task created the tracker first.
		tracker.ActiveUsers[username] = struct{}{}
		if _, ok := user.RoomStates[roomID]; !ok {
			user.RoomStates[roomID] = &UserRoomState{}
		}
		e.mu.Unlock()
		e.unsubscribeQuietly(roomID, presenceSub, editSub)
		return
	}

	tracker := NewRoomTracker(roomID, doc)
	tracker.ActiveUsers[username] = struct{}{}
	tracker.presenceSub = presenceSub
	tracker.editSub = editSub
	e.trackers[roomID] = tracker
	if _, ok := user.RoomStates[roomID]; !ok {
		user.RoomStates[roomID] = &UserRoomState{}
	}
	e.mu.Unlock()

	e.log.Info(fmt.Sprintf("Tracking room %s for user %s", roomID, username))
}

// detachRoom removes the user from the room's tracker and tears the tracker
// down once its active-user set drains.
func (e *ActivityEngine) detachRoom(roomID, username string) {
	e.mu.Lock()
	tracker, ok := e.trackers[roomID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(tracker.ActiveUsers, username)
	var released *RoomTracker
	if len(tracker.ActiveUsers) == 0 {
		delete(e.trackers, roomID)
		released = tracker
	}
	e.mu.Unlock()

	if released != nil {
		e.release(released)
	}
}

// onRoomEdit records the edit timestamp for the room. Timestamp only; an
// edit by itself never fires an activity notification.
func (e *ActivityEngine) onRoomEdit(roomID string) {
	e.mu.Lock()
	if tracker, ok := e.trackers[roomID]; ok {
		tracker.LastEdit = e.now()
	}
	e.mu.Unlock()
}

// onRoomPresence runs the debounce state machine over the room's presence
// map. A user's first sighting only records a baseline; an unchanged cell
// leaves state untouched; a changed cell notifies iff the room was edited
// since the user's last recorded check AND the per-room cooldown elapsed.
func (e *ActivityEngine) onRoomPresence(roomID string) {
	e.mu.Lock()
	tracker, ok := e.trackers[roomID]
	if !ok {
		e.mu.Unlock()
		return
	}
	doc := tracker.Document
	e.mu.Unlock()

	// Snapshot outside the lock; the awareness read is an external call.
	states := doc.Awareness().States()

	type firing struct {
		username     string
		previousCell string
		cell         string
		notebookPath string
		callbacks    []ActivityCallback
	}

	e.mu.Lock()
	tracker, ok = e.trackers[roomID]
	if !ok {
		// Torn down while snapshotting.
		e.mu.Unlock()
		return
	}

	var firings []firing
	for _, state := range states {
		user, known := e.users[state.Username]
		if !known {
			continue
		}
		if state.ActiveCellID == "" {
			continue
		}

		st, ok := user.RoomStates[roomID]
		if !ok {
			st = &UserRoomState{}
			user.RoomStates[roomID] = st
		}

		now := e.now()
		if st.ActiveCell == "" {
			// First sighting: record the baseline, never notify.
			st.ActiveCell = state.ActiveCellID
			st.NotebookPath = state.NotebookPath
			st.LastCheck = now
			continue
		}
		if st.ActiveCell == state.ActiveCellID {
			// Unchanged; LastCheck deliberately not refreshed.
			continue
		}

		editedSince := tracker.LastEdit.After(st.LastCheck)
		cooledDown := now.Sub(tracker.LastTrigger) >= e.cooldown
		if editedSince && cooledDown {
			// The gate is a room-wide rate limiter, not a per-user one.
			tracker.LastTrigger = now
			firings = append(firings, firing{
				username:     state.Username,
				previousCell: st.ActiveCell,
				cell:         state.ActiveCellID,
				notebookPath: state.NotebookPath,
				callbacks:    e.callbacksForLocked(state.Username),
			})
		}

		st.ActiveCell = state.ActiveCellID
		st.NotebookPath = state.NotebookPath
		st.LastCheck = now
	}
	e.mu.Unlock()

	for _, f := range firings {
		for _, cb := range f.callbacks {
			e.safely(f.username, func() { cb(f.username, f.previousCell, f.notebookPath) })
		}
		e.emit(event.CellFocusChanged{
			Room:         roomID,
			Username:     f.username,
			PreviousCell: f.previousCell,
			Cell:         f.cell,
			NotebookPath: f.notebookPath,
			At:           e.now(),
		})
	}
}

// callbacksForLocked collects the user's callbacks in registration order.
// Caller holds e.mu.
func (e *ActivityEngine) callbacksForLocked(username string) []ActivityCallback {
	user, ok := e.users[username]
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(user.ObserverIDs))
	for id := range user.ObserverIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	callbacks := make([]ActivityCallback, 0, len(ids))
	for _, id := range ids {
		if reg, ok := e.observers[id]; ok {
			callbacks = append(callbacks, reg.callback)
		}
	}
	return callbacks
}

func (e *ActivityEngine) safely(username string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error(fmt.Sprintf("Activity observer error for user %s: %v", username, r))
		}
	}()
	fn()
}

// release unsubscribes a torn-down tracker's streams, logging failures as
// warnings.
func (e *ActivityEngine) release(tracker *RoomTracker) {
	e.unsubscribeQuietly(tracker.RoomID, tracker.presenceSub, tracker.editSub)
	e.log.Info(fmt.Sprintf("Stopped tracking room %s", tracker.RoomID))
}

func (e *ActivityEngine) unsubscribeQuietly(roomID string, subs ...contract.Subscription) {
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			e.log.Warn(fmt.Sprintf("Failed to unobserve room %s: %v", roomID, err))
		}
	}
}

// OnNotebookReset re-registers a tracked room on the replacement notebook
// document: the old stream handles are released best-effort and both streams
// re-subscribed on the new document. A no-op when the room is untracked.
func (e *ActivityEngine) OnNotebookReset(roomID string, doc contract.NotebookDocument) {
	e.mu.Lock()
	tracker, ok := e.trackers[roomID]
	if !ok {
		e.mu.Unlock()
		return
	}
	oldPresence, oldEdit := tracker.presenceSub, tracker.editSub
	tracker.Document = doc
	tracker.presenceSub = doc.Awareness().Observe(func() { e.onRoomPresence(roomID) })
	tracker.editSub = doc.ObserveCells(func() { e.onRoomEdit(roomID) })
	e.mu.Unlock()

	e.log.Warn(fmt.Sprintf("Detected notebook document reset in room %q", roomID))
	e.unsubscribeQuietly(roomID, oldPresence, oldEdit)
}

// Shutdown releases the global presence subscription and every room
// tracker. Safe to call multiple times.
func (e *ActivityEngine) Shutdown() {
	e.mu.Lock()
	globalSub := e.globalSub
	e.globalSub = nil
	released := make([]*RoomTracker, 0, len(e.trackers))
	for roomID, tracker := range e.trackers {
		delete(e.trackers, roomID)
		released = append(released, tracker)
	}
	e.observers = make(map[int]*observerRegistration)
	e.users = make(map[string]*UserTracker)
	e.mu.Unlock()

	if globalSub != nil {
		if err := globalSub.Unsubscribe(); err != nil {
			e.log.Warn(fmt.Sprintf("Failed to unobserve global presence: %v", err))
		}
	}
	for _, tracker := range released {
		e.release(tracker)
	}
}
