package main

import (
	"chat-router/contract"
	"chat-router/document"
	"chat-router/domain"
	"chat-router/internal"
	"chat-router/projection"
	"chat-router/repositories"
	"chat-router/runtime"
	"chat-router/runtime/workers"
	"chat-router/sink"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the router against in-memory documents and plays a short
// scripted session: a chat with slash commands and a notebook with two
// users moving between cells. It doubles as a smoke test of the full
// pipeline, including the optional badger journal.
func run() error {
	// 1. Configuration & Logger
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Sinks (timeline projection, optional badger journal)
	timeline := projection.NewTimeline()
	sinks := []contract.EventSink{timeline}
	if config.JournalEnabled {
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		repository := repositories.NewJournalRepository(db, log, config.LimitEntries)
		sinks = append(sinks, sink.NewJournalSink(repository, log))
	}

	// 3. External collaborators (in-memory for the demo)
	const (
		chatRoom     = "text:chat:general"
		notebookRoom = "json:notebook:analysis"
		notebookPath = "analysis.ipynb"
	)
	global := document.NewPresenceMap()
	notebook := document.NewNotebook(notebookPath)
	rooms := document.NewRoomResolver(map[string]string{notebookPath: notebookRoom})
	documents := document.NewDocumentResolver(map[string]contract.NotebookDocument{
		notebookRoom: notebook,
	})
	chat := document.NewChatDocument()

	// 4. Router, task queue, supervision
	tasks := workers.NewTaskQueue(log, config.TaskBufferSize)
	router := runtime.NewRouter(log, global, rooms, documents, tasks,
		config.ActivityCooldown, config.SinkTimeout)
	router.Add(sinks...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(log)
	sup.Add(tasks)
	go sup.Run(ctx)

	// 5. Observers
	router.ObserveChatInit(func(roomID string, _ contract.ChatDocument) {
		log.Info("Chat initialized", "room", roomID)
	})
	router.ObserveSlashCommand(chatRoom, "help", func(roomID, command string, msg domain.Message) {
		log.Info("Slash command", "room", roomID, "command", command, "args", msg.Body)
	})
	router.ObserveSlashCommand(chatRoom, "export-(json|csv)", func(roomID, command string, msg domain.Message) {
		log.Info("Export requested", "room", roomID, "format", command)
	})
	router.ObserveChatMessage(chatRoom, func(roomID string, msg domain.Message) {
		log.Info("Plain message", "room", roomID, "sender", msg.Sender, "body", msg.Body)
	})
	router.ObserveNotebookActivity("alice", func(username, previousCell, path string) {
		log.Info("Activity", "user", username, "left_cell", previousCell, "notebook", path)
	})

	// 6. Scripted session
	router.ConnectChat(chatRoom, chat)
	chat.Append(
		domain.Message{ID: uuid.New(), Body: "/help getting-started", Sender: "alice", Time: time.Now()},
		domain.Message{ID: uuid.New(), Body: "/export-csv results", Sender: "bob", Time: time.Now()},
		domain.Message{ID: uuid.New(), Body: "hello everyone", Sender: "bob", Time: time.Now()},
	)

	global.Set(1, domain.ClientState{Username: "alice", Current: domain.NotebookTag + notebookPath})
	router.Flush(ctx)

	notebook.SetPresence(1, domain.ClientState{
		Username: "alice", ActiveCellID: "cell-1", NotebookPath: notebookPath,
	})
	notebook.EditCells()
	notebook.SetPresence(1, domain.ClientState{
		Username: "alice", ActiveCellID: "cell-2", NotebookPath: notebookPath,
	})

	log.Info(fmt.Sprintf("Recorded %d chat events and %d notebook events",
		timeline.Len(chatRoom), timeline.Len(notebookRoom)))

	// 7. Wait for Stop, then clean up
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case <-time.After(100 * time.Millisecond):
		// Demo session complete.
	}

	router.Cleanup()
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
