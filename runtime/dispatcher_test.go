package runtime

import (
	"chat-router/contract"
	"chat-router/document"
	"chat-router/domain"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() *MessageDispatcher {
	return NewMessageDispatcher(slog.Default(), nil)
}

func newChatMessage(body, sender string) domain.Message {
	return domain.Message{ID: uuid.New(), Body: body, Sender: sender, Time: time.Now().UTC()}
}

func TestDispatcher_ConnectChat_Notifies_Init_Observers(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()
	chat := document.NewChatDocument()

	// Given a registered chat-init observer
	var gotRoom string
	var gotDoc contract.ChatDocument
	dispatcher.ObserveChatInit(func(roomID string, doc contract.ChatDocument) {
		gotRoom = roomID
		gotDoc = doc
	})

	// When a chat connects
	dispatcher.ConnectChat("test-room", chat)

	// Then the observer fired synchronously with the room and document
	req.Equal("test-room", gotRoom)
	req.Equal(contract.ChatDocument(chat), gotDoc)
	req.Equal(1, chat.ObserverCount())
}

func TestDispatcher_ConnectChat_Twice_Keeps_One_Subscription(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()
	chat := document.NewChatDocument()

	initCalls := 0
	dispatcher.ObserveChatInit(func(string, contract.ChatDocument) { initCalls++ })

	// When the same room connects twice
	dispatcher.ConnectChat("test-room", chat)
	dispatcher.ConnectChat("test-room", chat)

	// Then the second connect is a warning no-op
	req.Equal(1, initCalls)
	req.Equal(1, chat.ObserverCount())
}

func TestDispatcher_DisconnectChat_Releases_Subscription(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()
	chat := document.NewChatDocument()
	dispatcher.ConnectChat("test-room", chat)

	dispatcher.DisconnectChat("test-room")

	req.Equal(0, chat.ObserverCount())

	// Disconnecting an unknown room is a no-op
	dispatcher.DisconnectChat("unknown-room")
}

func TestDispatcher_Routes_Slash_Command_With_Trimmed_Body(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()

	var gotRoom, gotCommand string
	var gotMsg domain.Message
	dispatcher.ObserveSlashCommand("test-room", "help", func(roomID, command string, msg domain.Message) {
		gotRoom = roomID
		gotCommand = command
		gotMsg = msg
	})

	original := newChatMessage("/help topic", "user")
	dispatcher.Route("test-room", original)

	req.Equal("test-room", gotRoom)
	req.Equal("help", gotCommand)
	req.Equal("topic", gotMsg.Body)
	// Metadata carried, original untouched.
	req.Equal(original.ID, gotMsg.ID)
	req.Equal("/help topic", original.Body)
}

func TestDispatcher_Routes_Slash_Command_Without_Arguments(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()

	var gotBody *string
	dispatcher.ObserveSlashCommand("test-room", "export", func(_, _ string, msg domain.Message) {
		gotBody = &msg.Body
	})

	dispatcher.Route("test-room", newChatMessage("/export", "user"))

	req.NotNil(gotBody)
	req.Equal("", *gotBody)
}

func TestDispatcher_Routes_Plain_Message_Untouched(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()

	var got []domain.Message
	dispatcher.ObserveChatMessage("test-room", func(_ string, msg domain.Message) {
		got = append(got, msg)
	})
	slashCalled := false
	dispatcher.ObserveSlashCommand("test-room", ".*", func(_, _ string, _ domain.Message) {
		slashCalled = true
	})

	msg := newChatMessage("Hello world", "user")
	dispatcher.Route("test-room", msg)

	req.Len(got, 1)
	req.Equal(msg, got[0])
	req.False(slashCalled)
}

func TestDispatcher_Blank_Body_Goes_To_Plain_Observers(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()

	count := 0
	dispatcher.ObserveChatMessage("test-room", func(string, domain.Message) { count++ })

	dispatcher.Route("test-room", newChatMessage("   ", "user"))

	req.Equal(1, count)
}

func TestDispatcher_Pattern_Routing_Registration_Order(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()

	var calls []string
	dispatcher.ObserveSlashCommand("test-room", "ai-.*", func(_, command string, _ domain.Message) {
		calls = append(calls, "wildcard:"+command)
	})
	dispatcher.ObserveSlashCommand("test-room", "ai-review", func(_, command string, _ domain.Message) {
		calls = append(calls, "exact:"+command)
	})

	dispatcher.Route("test-room", newChatMessage("/ai-review file.py", "user"))

	// Every matching pattern fires, in pattern registration order.
	req.Equal([]string{"wildcard:ai-review", "exact:ai-review"}, calls)
}

func TestDispatcher_Multiple_Callbacks_Same_Pattern(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()

	var calls []string
	dispatcher.ObserveSlashCommand("test-room", "help", func(_, _ string, msg domain.Message) {
		calls = append(calls, "first:"+msg.Body)
	})
	dispatcher.ObserveSlashCommand("test-room", "help", func(_, _ string, msg domain.Message) {
		calls = append(calls, "second:"+msg.Body)
	})

	dispatcher.Route("test-room", newChatMessage("/help topic", "user"))

	req.Equal([]string{"first:topic", "second:topic"}, calls)
}

func TestDispatcher_Panicking_Observer_Does_Not_Suppress_Others(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()

	survived := false
	dispatcher.ObserveSlashCommand("test-room", "help", func(_, _ string, _ domain.Message) {
		panic("observer failure")
	})
	dispatcher.ObserveSlashCommand("test-room", "help", func(_, _ string, _ domain.Message) {
		survived = true
	})

	dispatcher.Route("test-room", newChatMessage("/help", "user"))

	req.True(survived)
}

func TestDispatcher_Trimming_Table(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()

	var gotCommand, gotBody string
	dispatcher.ObserveSlashCommand("test-room", "test.*", func(_, command string, msg domain.Message) {
		gotCommand = command
		gotBody = msg.Body
	})

	cases := []struct {
		body    string
		command string
		trimmed string
	}{
		{"/test hello world", "test", "hello world"},
		{"/test", "test", ""},
		{"/test    multiple   spaces", "test", "multiple   spaces"},
		{"/test-command with-args", "test-command", "with-args"},
	}
	for _, c := range cases {
		gotCommand, gotBody = "", ""
		dispatcher.Route("test-room", newChatMessage(c.body, "user"))
		req.Equal(c.command, gotCommand, c.body)
		req.Equal(c.trimmed, gotBody, c.body)
	}
}

func TestDispatcher_Deltas_Filter_RawTime_And_Deleted(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()
	chat := document.NewChatDocument()

	var slashBodies, plainBodies []string
	dispatcher.ObserveSlashCommand("test-room", "help", func(_, _ string, msg domain.Message) {
		slashBodies = append(slashBodies, msg.Body)
	})
	dispatcher.ObserveChatMessage("test-room", func(_ string, msg domain.Message) {
		plainBodies = append(plainBodies, msg.Body)
	})
	dispatcher.ConnectChat("test-room", chat)

	// When a delta batch carries echoes, deletions, and real messages
	chat.Append(
		domain.Message{ID: uuid.New(), Body: "/help echoed", RawTime: true},
		domain.Message{ID: uuid.New(), Body: "/help removed", Deleted: true},
		domain.Message{ID: uuid.New(), Body: "removed too", Deleted: true},
		domain.Message{ID: uuid.New(), Body: "/help real"},
		domain.Message{ID: uuid.New(), Body: "real too"},
	)

	// Then only the real messages reached observers
	req.Equal([]string{"real"}, slashBodies)
	req.Equal([]string{"real too"}, plainBodies)
}

func TestDispatcher_OnChatReset_Updates_Reference_Without_Resubscribing(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()
	chat := document.NewChatDocument()
	replacement := document.NewChatDocument()

	var resetRoom string
	var resetDoc contract.ChatDocument
	dispatcher.ObserveChatReset(func(roomID string, doc contract.ChatDocument) {
		resetRoom = roomID
		resetDoc = doc
	})
	dispatcher.ConnectChat("test-room", chat)

	dispatcher.OnChatReset("test-room", replacement)

	// Reset observers fired with the replacement document.
	req.Equal("test-room", resetRoom)
	req.Equal(contract.ChatDocument(replacement), resetDoc)
	// The delta subscription stays on the old document; none was created
	// on the replacement.
	req.Equal(1, chat.ObserverCount())
	req.Equal(0, replacement.ObserverCount())
}

func TestDispatcher_Cleanup_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	dispatcher := newTestDispatcher()
	chat := document.NewChatDocument()

	dispatcher.ObserveChatInit(func(string, contract.ChatDocument) {})
	dispatcher.ObserveSlashCommand("test-room", "help", func(string, string, domain.Message) {})
	dispatcher.ObserveChatMessage("test-room", func(string, domain.Message) {})
	dispatcher.ConnectChat("test-room", chat)

	dispatcher.Cleanup()
	dispatcher.Cleanup()

	req.Equal(0, chat.ObserverCount())
	req.Empty(dispatcher.chatInitObservers)
	req.Empty(dispatcher.slashObservers)
	req.Empty(dispatcher.msgObservers)
	req.Empty(dispatcher.connections)
}
