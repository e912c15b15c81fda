package projection

import (
	"chat-router/domain/event"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTimeline_Groups_Events_Per_Room_In_Arrival_Order(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	ctx := context.Background()
	at := time.Now().UTC()

	first := event.ChatConnected{Room: "room-a", At: at}
	second := event.MessageRouted{ID: uuid.New(), Room: "room-a", Sender: "alice", Body: "hi", At: at}
	other := event.CellFocusChanged{Room: "room-b", Username: "bob", Cell: "cell-1", At: at}

	req.NoError(timeline.Consume(ctx, first))
	req.NoError(timeline.Consume(ctx, other))
	req.NoError(timeline.Consume(ctx, second))

	req.Equal([]event.RoutedEvent{first, second}, timeline.Room("room-a"))
	req.Equal([]event.RoutedEvent{other}, timeline.Room("room-b"))
	req.Equal(2, timeline.Len("room-a"))
	req.Equal(0, timeline.Len("room-c"))
	req.Empty(timeline.Room("room-c"))
}
