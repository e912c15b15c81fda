package workers

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaskQueue_Flush_Runs_Tasks_In_Submission_Order(t *testing.T) {
	req := require.New(t)
	queue := NewTaskQueue(slog.Default(), 16)

	// Given three tasks submitted from the same source
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		queue.Submit("record", func(ctx context.Context) {
			order = append(order, i)
		})
	}

	// When the queue is drained
	queue.Flush(context.Background())

	// Then tasks ran in submission order and the queue is empty
	req.Equal([]int{1, 2, 3}, order)
	queue.Flush(context.Background())
	req.Equal([]int{1, 2, 3}, order)
}

func TestTaskQueue_Panicking_Task_Does_Not_Stop_The_Queue(t *testing.T) {
	req := require.New(t)
	queue := NewTaskQueue(slog.Default(), 16)

	ran := false
	queue.Submit("boom", func(ctx context.Context) {
		panic("boom")
	})
	queue.Submit("after", func(ctx context.Context) {
		ran = true
	})

	queue.Flush(context.Background())

	req.True(ran)
}

func TestTaskQueue_Full_Queue_Drops_Task(t *testing.T) {
	req := require.New(t)
	queue := NewTaskQueue(slog.Default(), 1)

	count := 0
	queue.Submit("kept", func(ctx context.Context) { count++ })
	queue.Submit("dropped", func(ctx context.Context) { count++ })

	queue.Flush(context.Background())

	req.Equal(1, count)
}
