package runtime

import (
	"chat-router/contract"
	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Router is the single object external code talks to. It composes the
// message dispatcher and the activity engine, exposes the registration and
// connect/disconnect operations, and performs best-effort cleanup on
// shutdown. The router owns all registries and trackers; documents are only
// referenced, never owned.
type Router struct {
	log        *slog.Logger
	dispatcher *MessageDispatcher
	activity   *ActivityEngine
	tasks      *workers.TaskQueue

	mu          sync.Mutex
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

// NewRouter wires a router against the external collaborators: the global
// presence map, the path -> room resolver, and the room -> document
// resolver. tasks must be running (under a supervisor or via Flush) for
// activity resolution to make progress.
func NewRouter(
	log *slog.Logger,
	global contract.PresenceMap,
	rooms contract.RoomResolver,
	documents contract.DocumentResolver,
	tasks *workers.TaskQueue,
	cooldown time.Duration,
	sinkTimeout time.Duration,
) *Router {
	r := &Router{
		log:         log,
		tasks:       tasks,
		sinkTimeout: sinkTimeout,
	}
	r.dispatcher = NewMessageDispatcher(log, r.emit)
	r.activity = NewActivityEngine(log, global, rooms, documents, tasks, cooldown, r.emit)
	return r
}

// Add registers sinks receiving every routed event, best-effort.
func (r *Router) Add(sinks ...contract.EventSink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, sinks...)
	r.mu.Unlock()
}

func (r *Router) ObserveChatInit(cb ChatInitCallback)   { r.dispatcher.ObserveChatInit(cb) }
func (r *Router) ObserveChatReset(cb ChatResetCallback) { r.dispatcher.ObserveChatReset(cb) }

func (r *Router) ObserveSlashCommand(roomID, pattern string, cb SlashCommandCallback) {
	r.dispatcher.ObserveSlashCommand(roomID, pattern, cb)
}

func (r *Router) ObserveChatMessage(roomID string, cb ChatMessageCallback) {
	r.dispatcher.ObserveChatMessage(roomID, cb)
}

func (r *Router) ObserveNotebookActivity(username string, cb ActivityCallback) int {
	return r.activity.ObserveNotebookActivity(username, cb)
}

func (r *Router) UnobserveNotebookActivity(id int) bool {
	return r.activity.UnobserveNotebookActivity(id)
}

func (r *Router) ConnectChat(roomID string, doc contract.ChatDocument) {
	r.dispatcher.ConnectChat(roomID, doc)
}

func (r *Router) DisconnectChat(roomID string) { r.dispatcher.DisconnectChat(roomID) }

func (r *Router) OnChatReset(roomID string, doc contract.ChatDocument) {
	r.dispatcher.OnChatReset(roomID, doc)
}

func (r *Router) OnNotebookReset(roomID string, doc contract.NotebookDocument) {
	r.activity.OnNotebookReset(roomID, doc)
}

// Route feeds one message through the dispatcher. Hosts normally rely on
// the delta subscription installed by ConnectChat; Route exists for direct
// injection.
func (r *Router) Route(roomID string, msg domain.Message) {
	r.dispatcher.Route(roomID, msg)
}

// Flush synchronously drains the deferred-task queue. Tests and scripted
// hosts use it to make asynchronous resolution deterministic.
func (r *Router) Flush(ctx context.Context) {
	if r.tasks != nil {
		r.tasks.Flush(ctx)
	}
}

// Cleanup disconnects every connected chat, releases every activity
// subscription, and clears every observer registry. Safe to call multiple
// times.
func (r *Router) Cleanup() {
	r.log.Info("Cleaning up router...")
	if r.tasks != nil {
		r.tasks.Flush(context.Background())
	}
	r.dispatcher.Cleanup()
	r.activity.Shutdown()
	r.log.Info("Router cleanup complete")
}

// emit fans one routed event out to the registered sinks. Each sink gets
// its own deadline; a failing sink is logged and never blocks routing.
func (r *Router) emit(e event.RoutedEvent) {
	r.mu.Lock()
	sinks := append([]contract.EventSink(nil), r.sinks...)
	timeout := r.sinkTimeout
	r.mu.Unlock()

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for _, sink := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := sink.Consume(ctx, e); err != nil {
			r.log.Warn(fmt.Sprintf("Sink failed to consume event for room %s: %v", e.RoomID(), err))
		}
		cancel()
	}
}
