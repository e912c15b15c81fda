package sink

import (
	"chat-router/domain/event"
	"chat-router/repositories"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) (JournalSink, repositories.JournalRepository) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repository := repositories.NewJournalRepository(db, slog.Default(), nil)
	return NewJournalSink(repository, slog.Default()), repository
}

func Test_Sink_Persists_Slash_Commands_With_Their_Message_Identity(t *testing.T) {
	req := require.New(t)
	journal, repository := newTestSink(t)
	ctx := context.Background()
	at := time.Now().UTC()
	id := uuid.New()

	err := journal.Consume(ctx, event.SlashCommandRouted{
		ID:      id,
		Room:    "text:chat:general",
		Command: "help",
		Sender:  "alice",
		Body:    "getting-started",
		At:      at,
	})
	req.NoError(err)

	entries, err := repository.Entries("text:chat:general")
	req.NoError(err)
	req.Len(entries, 1)
	req.Equal(id, entries[0].ID)
	req.Equal("slash-command", entries[0].Kind)
	req.Equal("help", entries[0].Command)
	req.Equal("getting-started", entries[0].Body)
	req.Equal("alice", entries[0].Username)
}

func Test_Sink_Persists_One_Entry_Per_Event_Kind(t *testing.T) {
	req := require.New(t)
	journal, repository := newTestSink(t)
	ctx := context.Background()
	at := time.Now().UTC()
	room := "json:notebook:analysis"

	events := []event.RoutedEvent{
		event.ChatConnected{Room: room, At: at},
		event.ChatReset{Room: room, At: at.Add(time.Second)},
		event.MessageRouted{ID: uuid.New(), Room: room, Sender: "bob", Body: "hello", At: at.Add(2 * time.Second)},
		event.CellFocusChanged{Room: room, Username: "alice", Cell: "cell-2", NotebookPath: "analysis.ipynb", At: at.Add(3 * time.Second)},
	}
	for _, e := range events {
		req.NoError(journal.Consume(ctx, e))
	}

	entries, err := repository.Entries(room)
	req.NoError(err)
	req.Len(entries, len(events))
	req.Equal("chat-connected", entries[0].Kind)
	req.Equal("chat-reset", entries[1].Kind)
	req.Equal("message", entries[2].Kind)
	req.Equal("cell-focus-changed", entries[3].Kind)
	req.Equal("analysis.ipynb", entries[3].Body)
}
