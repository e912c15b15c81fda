//go:generate go run go.uber.org/mock/mockgen -source=journal.go -destination=../mocks/mock_journal_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// IJournalRepository persists routed events per room.
type IJournalRepository interface {
	Append(entry JournalEntry) error
	Entries(room string) ([]JournalEntry, error)
}

// JournalEntry is the on-disk shape of one routed event.
type JournalEntry struct {
	ID       uuid.UUID
	Room     string
	Kind     string
	Username string
	Command  string
	Body     string
	At       time.Time
}

type JournalRepository struct {
	db           *badger.DB
	log          *slog.Logger
	limitEntries *int
}

func NewJournalRepository(db *badger.DB, log *slog.Logger, limitEntries *int) JournalRepository {
	return JournalRepository{db: db, log: log, limitEntries: limitEntries}
}

type diskEntry struct {
	ID       string `cbor:"id"`
	Room     string `cbor:"room"`
	Kind     string `cbor:"kind"`
	Username string `cbor:"username,omitempty"`
	Command  string `cbor:"command,omitempty"`
	Body     string `cbor:"body,omitempty"`
	At       int64  `cbor:"at"`
}

// Append persists one entry. The key is formatted as
// "evt:{room}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     events arrive at the same nanosecond.
func (j JournalRepository) Append(entry JournalEntry) error {
	key := fmt.Sprintf("evt:%s:%019d:%s",
		entry.Room,
		entry.At.UnixNano(),
		entry.ID,
	)
	bytes, err := cbor.Marshal(fromJournalEntry(entry))
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// Entries retrieves a room's events via a prefix scan. Thanks to the padded
// timestamp in the key, entries come back naturally sorted by time. The scan
// stops once the configured limitEntries is reached.
func (j JournalRepository) Entries(room string) ([]JournalEntry, error) {
	var raw [][]byte
	err := j.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("evt:%s:", room))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if j.limitEntries != nil && len(raw) == *j.limitEntries {
				j.log.Debug(fmt.Sprintf("Maximum of %d entries reached", *j.limitEntries))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var entries []JournalEntry
	for _, b := range raw {
		var disk diskEntry
		if err = cbor.Unmarshal(b, &disk); err != nil {
			return nil, err
		}
		entry, err := toJournalEntry(disk)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func fromJournalEntry(entry JournalEntry) diskEntry {
	return diskEntry{
		ID:       entry.ID.String(),
		Room:     entry.Room,
		Kind:     entry.Kind,
		Username: entry.Username,
		Command:  entry.Command,
		Body:     entry.Body,
		At:       entry.At.UnixNano(),
	}
}

func toJournalEntry(disk diskEntry) (JournalEntry, error) {
	parsedID, err := uuid.Parse(disk.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	return JournalEntry{
		ID:       parsedID,
		Room:     disk.Room,
		Kind:     disk.Kind,
		Username: disk.Username,
		Command:  disk.Command,
		Body:     disk.Body,
		At:       time.Unix(0, disk.At).UTC(),
	}, nil
}
