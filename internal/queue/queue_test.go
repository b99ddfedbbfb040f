package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/omochice/relay-chat/internal/queue"
)

func TestQueue_FIFO(t *testing.T) {
	q := queue.New[int]()
	for i := 0; i < 5; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d) error = %v", i, err)
		}
	}

	if got := q.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}

	for i := 0; i < 5; i++ {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() ok = false at %d", i)
		}
		if got != i {
			t.Errorf("TryPop() = %d, want %d", got, i)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("TryPop() on empty queue should report false")
	}
}

func TestQueue_PushAfterClose(t *testing.T) {
	q := queue.New[string]()
	q.Close()

	if err := q.Push("late"); !errors.Is(err, queue.ErrClosed) {
		t.Errorf("Push() error = %v, want ErrClosed", err)
	}
}

func TestQueue_RecvDrainsBeforeClosed(t *testing.T) {
	q := queue.New[string]()
	_ = q.Push("a")
	_ = q.Push("b")
	q.Close()

	ctx := context.Background()
	for _, want := range []string{"a", "b"} {
		got, err := q.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if got != want {
			t.Errorf("Recv() = %q, want %q", got, want)
		}
	}

	if _, err := q.Recv(ctx); !errors.Is(err, queue.ErrClosed) {
		t.Errorf("Recv() error = %v, want ErrClosed", err)
	}
}

func TestQueue_RecvContextCancel(t *testing.T) {
	q := queue.New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := q.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Recv() error = %v, want DeadlineExceeded", err)
	}
}

func TestQueue_ReadySignalsEachItem(t *testing.T) {
	q := queue.New[int]()
	_ = q.Push(1)
	_ = q.Push(2)
	q.Close()

	var got []int
	closed := false
	for !closed {
		select {
		case <-q.Ready():
			v, ok := q.TryPop()
			if !ok {
				closed = q.Closed()
				continue
			}
			got = append(got, v)
		case <-time.After(time.Second):
			t.Fatalf("Ready() not signalled, got %v so far", got)
		}
	}

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("received %v, want [1 2]", got)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := queue.New[int]()
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Push(i)
			}
		}()
	}
	wg.Wait()

	if got := q.Len(); got != producers*perProducer {
		t.Errorf("Len() = %d, want %d", got, producers*perProducer)
	}
}
