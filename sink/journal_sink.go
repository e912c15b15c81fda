package sink

import (
	"chat-router/domain/event"
	"chat-router/repositories"
	"context"
	"log/slog"

	"github.com/google/uuid"
)

func newEntryID() uuid.UUID { return uuid.New() }

// JournalSink persists routed events through the journal repository.
type JournalSink struct {
	repository repositories.IJournalRepository
	log        *slog.Logger
}

func NewJournalSink(repository repositories.IJournalRepository, log *slog.Logger) JournalSink {
	return JournalSink{repository: repository, log: log}
}

func (s JournalSink) Consume(_ context.Context, e event.RoutedEvent) error {
	entry, ok := toEntry(e)
	if !ok {
		return nil
	}
	return s.repository.Append(entry)
}

func toEntry(e event.RoutedEvent) (repositories.JournalEntry, bool) {
	switch evt := e.(type) {
	case event.ChatConnected:
		return repositories.JournalEntry{
			ID:   newEntryID(),
			Room: evt.Room,
			Kind: "chat-connected",
			At:   evt.At,
		}, true
	case event.ChatReset:
		return repositories.JournalEntry{
			ID:   newEntryID(),
			Room: evt.Room,
			Kind: "chat-reset",
			At:   evt.At,
		}, true
	case event.MessageRouted:
		return repositories.JournalEntry{
			ID:       evt.ID,
			Room:     evt.Room,
			Kind:     "message",
			Username: evt.Sender,
			Body:     evt.Body,
			At:       evt.At,
		}, true
	case event.SlashCommandRouted:
		return repositories.JournalEntry{
			ID:       evt.ID,
			Room:     evt.Room,
			Kind:     "slash-command",
			Username: evt.Sender,
			Command:  evt.Command,
			Body:     evt.Body,
			At:       evt.At,
		}, true
	case event.CellFocusChanged:
		return repositories.JournalEntry{
			ID:       newEntryID(),
			Room:     evt.Room,
			Kind:     "cell-focus-changed",
			Username: evt.Username,
			Body:     evt.NotebookPath,
			At:       evt.At,
		}, true
	}
	return repositories.JournalEntry{}, false
}
