package runtime

import (
	"chat-router/contract"
	"chat-router/domain"
	"chat-router/domain/event"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// ChatInitCallback fires when a chat document is connected to a room.
type ChatInitCallback func(roomID string, doc contract.ChatDocument)

// ChatResetCallback fires when a room's chat document identity is replaced.
type ChatResetCallback func(roomID string, doc contract.ChatDocument)

// SlashCommandCallback receives (roomID, clean command, trimmed message).
type SlashCommandCallback func(roomID, command string, msg domain.Message)

// ChatMessageCallback receives (roomID, original message) for plain messages.
type ChatMessageCallback func(roomID string, msg domain.Message)

// patternObservers keeps one registered pattern and its callback list.
// Entries are kept in registration order; every matching pattern gets its
// full callback list invoked, no precedence among patterns.
type patternObservers struct {
	pattern   domain.CommandPattern
	callbacks []SlashCommandCallback
}

type chatConnection struct {
	doc contract.ChatDocument
	sub contract.Subscription
}

// MessageDispatcher classifies inserted chat entries into slash-command or
// plain-message events and fans them out to registered observers. It owns
// the per-room registries and the chat connection lifecycle: exactly one
// delta subscription per room at a time.
type MessageDispatcher struct {
	mu                 sync.Mutex
	log                *slog.Logger
	chatInitObservers  []ChatInitCallback
	chatResetObservers []ChatResetCallback
	slashObservers     map[string][]*patternObservers
	msgObservers       map[string][]ChatMessageCallback
	connections        map[string]*chatConnection
	emit               func(e event.RoutedEvent)
	now                func() time.Time
}

func NewMessageDispatcher(log *slog.Logger, emit func(e event.RoutedEvent)) *MessageDispatcher {
	if emit == nil {
		emit = func(event.RoutedEvent) {}
	}
	return &MessageDispatcher{
		log:            log,
		slashObservers: make(map[string][]*patternObservers),
		msgObservers:   make(map[string][]ChatMessageCallback),
		connections:    make(map[string]*chatConnection),
		emit:           emit,
		now:            time.Now,
	}
}

// ObserveChatInit registers a callback for newly connected chats.
// Chat-init observers are global, not per room.
func (d *MessageDispatcher) ObserveChatInit(cb ChatInitCallback) {
	d.mu.Lock()
	d.chatInitObservers = append(d.chatInitObservers, cb)
	d.mu.Unlock()
	d.log.Info("Registered new chat initialization callback")
}

// ObserveChatReset registers a callback for chat document resets.
func (d *MessageDispatcher) ObserveChatReset(cb ChatResetCallback) {
	d.mu.Lock()
	d.chatResetObservers = append(d.chatResetObservers, cb)
	d.mu.Unlock()
	d.log.Info("Registered new chat reset callback")
}

// ObserveSlashCommand registers a callback for slash commands matching
// pattern in one room. The pattern is compiled here, once; an invalid
// pattern degrades to "matches nothing" rather than failing registration.
func (d *MessageDispatcher) ObserveSlashCommand(roomID, pattern string, cb SlashCommandCallback) {
	d.mu.Lock()
	entries := d.slashObservers[roomID]
	entry, found := lo.Find(entries, func(e *patternObservers) bool {
		return e.pattern.Raw == pattern
	})
	if !found {
		entry = &patternObservers{pattern: domain.NewCommandPattern(pattern)}
		d.slashObservers[roomID] = append(entries, entry)
	}
	entry.callbacks = append(entry.callbacks, cb)
	d.mu.Unlock()
	d.log.Info(fmt.Sprintf("Registered slash command callback for pattern: %s", pattern))
}

// ObserveChatMessage registers a callback for regular (non-slash) messages
// in one room.
func (d *MessageDispatcher) ObserveChatMessage(roomID string, cb ChatMessageCallback) {
	d.mu.Lock()
	d.msgObservers[roomID] = append(d.msgObservers[roomID], cb)
	d.mu.Unlock()
	d.log.Info("Registered message callback")
}

// ConnectChat attaches a chat document to the router: stores the document,
// subscribes to its message delta stream, and synchronously notifies
// chat-init observers. A warning no-op when the room is already connected.
func (d *MessageDispatcher) ConnectChat(roomID string, doc contract.ChatDocument) {
	d.mu.Lock()
	if _, ok := d.connections[roomID]; ok {
		d.mu.Unlock()
		d.log.Warn(fmt.Sprintf("Chat %s already connected to router", roomID))
		return
	}
	conn := &chatConnection{doc: doc}
	d.connections[roomID] = conn
	d.mu.Unlock()

	sub := doc.ObserveMessages(func(deltas []contract.MessageDelta) {
		d.onMessageDeltas(roomID, deltas)
	})

	d.mu.Lock()
	conn.sub = sub
	d.mu.Unlock()

	d.log.Info(fmt.Sprintf("Connected chat %s to router", roomID))
	d.notifyChatInit(roomID, doc)
	d.emit(event.ChatConnected{Room: roomID, At: d.now()})
}

// DisconnectChat releases the room's delta subscription and forgets the
// connection. An unsubscribe failure is logged as a warning; bookkeeping is
// removed regardless.
func (d *MessageDispatcher) DisconnectChat(roomID string) {
	d.mu.Lock()
	conn, ok := d.connections[roomID]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.connections, roomID)
	d.mu.Unlock()

	if conn.sub != nil {
		if err := conn.sub.Unsubscribe(); err != nil {
			d.log.Warn(fmt.Sprintf("Failed to unobserve chat %s: %v", roomID, err))
		}
	}
	d.log.Info(fmt.Sprintf("Disconnected chat %s from router", roomID))
}

// OnChatReset records the replacement document for a room and notifies
// chat-reset observers. The old delta subscription is deliberately left in
// place; only the stored reference moves.
func (d *MessageDispatcher) OnChatReset(roomID string, doc contract.ChatDocument) {
	d.mu.Lock()
	if conn, ok := d.connections[roomID]; ok {
		conn.doc = doc
	}
	observers := append([]ChatResetCallback(nil), d.chatResetObservers...)
	d.mu.Unlock()

	d.log.Warn(fmt.Sprintf("Detected chat document reset in room %q", roomID))
	for _, cb := range observers {
		d.safely("Reset chat", roomID, func() { cb(roomID, doc) })
	}
	d.emit(event.ChatReset{Room: roomID, At: d.now()})
}

// onMessageDeltas decodes a delta batch into messages and routes them in
// array order. Entries flagged as raw_time echoes or deleted never reach
// an observer.
func (d *MessageDispatcher) onMessageDeltas(roomID string, deltas []contract.MessageDelta) {
	for _, delta := range deltas {
		for _, msg := range delta.Insert {
			if msg.RawTime || msg.Deleted {
				continue
			}
			d.Route(roomID, msg)
		}
	}
}

// Route classifies one message. A body whose first token starts with "/" is
// a slash command: the command token is split off, the leading slash
// stripped, and a trimmed copy fanned out to every matching pattern. Any
// other body goes untouched to the plain-message observers.
func (d *MessageDispatcher) Route(roomID string, msg domain.Message) {
	if msg.Deleted {
		return
	}

	first := domain.FirstWord(msg.Body)
	if first != "" && strings.HasPrefix(first, "/") {
		command, remainder := domain.SplitCommand(msg.Body)
		clean := strings.TrimPrefix(command, "/")
		trimmed := msg.WithBody(remainder)
		d.notifySlashObservers(roomID, clean, trimmed)
		d.emit(event.SlashCommandRouted{
			ID:      msg.ID,
			Room:    roomID,
			Command: clean,
			Sender:  msg.Sender,
			Body:    remainder,
			At:      d.now(),
		})
		return
	}

	d.notifyMsgObservers(roomID, msg)
	d.emit(event.MessageRouted{
		ID:     msg.ID,
		Room:   roomID,
		Sender: msg.Sender,
		Body:   msg.Body,
		At:     d.now(),
	})
}

func (d *MessageDispatcher) notifyChatInit(roomID string, doc contract.ChatDocument) {
	d.mu.Lock()
	observers := append([]ChatInitCallback(nil), d.chatInitObservers...)
	d.mu.Unlock()

	for _, cb := range observers {
		d.safely("New chat", roomID, func() { cb(roomID, doc) })
	}
}

func (d *MessageDispatcher) notifySlashObservers(roomID, command string, msg domain.Message) {
	type matched struct {
		raw       string
		callbacks []SlashCommandCallback
	}

	d.mu.Lock()
	var matches []matched
	for _, entry := range d.slashObservers[roomID] {
		if entry.pattern.Matches(command) {
			matches = append(matches, matched{
				raw:       entry.pattern.Raw,
				callbacks: append([]SlashCommandCallback(nil), entry.callbacks...),
			})
		}
	}
	d.mu.Unlock()

	for _, m := range matches {
		for _, cb := range m.callbacks {
			d.safely(fmt.Sprintf("Slash command (pattern %q)", m.raw), roomID, func() {
				cb(roomID, command, msg)
			})
		}
	}
}

func (d *MessageDispatcher) notifyMsgObservers(roomID string, msg domain.Message) {
	d.mu.Lock()
	observers := append([]ChatMessageCallback(nil), d.msgObservers[roomID]...)
	d.mu.Unlock()

	for _, cb := range observers {
		d.safely("Message", roomID, func() { cb(roomID, msg) })
	}
}

// safely runs one observer callback, recovering and logging a panic so a
// faulty observer cannot suppress the remaining callbacks.
func (d *MessageDispatcher) safely(kind, roomID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error(fmt.Sprintf("%s observer error for %s: %v", kind, roomID, r))
		}
	}()
	fn()
}

// Cleanup disconnects every connected chat and clears every observer
// registry. Safe to call multiple times.
func (d *MessageDispatcher) Cleanup() {
	d.mu.Lock()
	roomIDs := lo.Keys(d.connections)
	d.mu.Unlock()

	for _, roomID := range roomIDs {
		d.DisconnectChat(roomID)
	}

	d.mu.Lock()
	d.chatInitObservers = nil
	d.chatResetObservers = nil
	d.slashObservers = make(map[string][]*patternObservers)
	d.msgObservers = make(map[string][]ChatMessageCallback)
	d.mu.Unlock()
}
