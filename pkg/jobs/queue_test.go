package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := New("test", func(ctx context.Context, task Task[string]) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		assert.Equal(t, "hello", task.Payload)
		assert.Equal(t, 2, task.Attempt)
		close(done)
		return nil
	}, Options[string]{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Submit("task-1", "hello"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not retried to completion")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueGivesUpAfterRetries(t *testing.T) {
	abandoned := make(chan Task[int], 1)
	q := New("doomed", func(ctx context.Context, task Task[int]) error {
		return errors.New("permanent")
	}, Options[int]{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		OnGiveUp:   func(task Task[int], err error) { abandoned <- task },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Offer("task-1", 42))

	select {
	case task := <-abandoned:
		assert.Equal(t, 42, task.Payload)
		assert.Equal(t, 2, task.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("task was never abandoned")
	}
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := New("idle", func(context.Context, Task[int]) error { return nil }, Options[int]{})
	assert.ErrorIs(t, q.Submit("task-1", 1), ErrNotRunning)
	assert.ErrorIs(t, q.Offer("task-1", 1), ErrNotRunning)

	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.Offer("task-2", 2), ErrNotRunning)
}

func TestQueueOfferFull(t *testing.T) {
	block := make(chan struct{})
	q := New("full", func(ctx context.Context, task Task[int]) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, Options[int]{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(block)

	// the worker takes the first task, the second sits in the buffer
	require.NoError(t, q.Submit("a", 1))
	require.Eventually(t, func() bool { return len(q.tasks) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Offer("b", 2))

	assert.ErrorIs(t, q.Offer("c", 3), ErrQueueFull)
}
