package tasks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEventQueueFIFO(t *testing.T) {
	queue := NewEventQueue()

	for _, status := range []string{StatusSubmitted, StatusWorking, StatusCompleted} {
		if err := queue.Enqueue(&Event{TaskID: "t1", Status: status}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	ctx := context.Background()
	for _, want := range []string{StatusSubmitted, StatusWorking, StatusCompleted} {
		event, err := queue.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if event.Status != want {
			t.Errorf("Expected %s, got %s", want, event.Status)
		}
	}
}

func TestEventQueueBlockingDequeue(t *testing.T) {
	queue := NewEventQueue()

	done := make(chan *Event, 1)
	go func() {
		event, err := queue.Dequeue(context.Background())
		if err != nil {
			t.Errorf("Dequeue failed: %v", err)
		}
		done <- event
	}()

	// Give the consumer time to block.
	time.Sleep(20 * time.Millisecond)
	if err := queue.Enqueue(&Event{TaskID: "t1", Status: StatusWorking}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case event := <-done:
		if event.Status != StatusWorking {
			t.Errorf("Unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("Blocked consumer never woke up")
	}
}

func TestEventQueueDequeueContextCancel(t *testing.T) {
	queue := NewEventQueue()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := queue.Dequeue(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue ignored cancellation")
	}
}

func TestEventQueueTapFanOut(t *testing.T) {
	queue := NewEventQueue()
	tapA := queue.Tap()
	tapB := queue.Tap()
	if tapA == nil || tapB == nil {
		t.Fatal("Tap on an open queue should succeed")
	}

	if err := queue.Enqueue(&Event{TaskID: "t1", Status: StatusWorking}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	ctx := context.Background()
	for name, q := range map[string]*EventQueue{"parent": queue, "tapA": tapA, "tapB": tapB} {
		event, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue on %s failed: %v", name, err)
		}
		if event.Status != StatusWorking {
			t.Errorf("%s received wrong event: %+v", name, event)
		}
	}
}

func TestEventQueueTapMissesEarlierEvents(t *testing.T) {
	queue := NewEventQueue()
	queue.Enqueue(&Event{TaskID: "t1", Status: StatusSubmitted})

	tap := queue.Tap()
	queue.Enqueue(&Event{TaskID: "t1", Status: StatusWorking})

	if tap.Len() != 1 {
		t.Errorf("Tap should only see events after its creation, has %d", tap.Len())
	}
	event, err := tap.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if event.Status != StatusWorking {
		t.Errorf("Tap received pre-existing event: %+v", event)
	}
}

func TestEventQueueCloseCascades(t *testing.T) {
	queue := NewEventQueue()
	tap := queue.Tap()

	queue.Close()

	if !queue.Closed() || !tap.Closed() {
		t.Error("Close should cascade to taps")
	}
	if err := queue.Enqueue(&Event{TaskID: "t1", Status: StatusCompleted}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue on closed queue should fail, got %v", err)
	}
	if _, err := queue.Dequeue(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Dequeue on an empty closed queue should fail, got %v", err)
	}

	// Idempotent.
	queue.Close()
	queue.Close()
}

func TestEventQueueDrainsAfterClose(t *testing.T) {
	queue := NewEventQueue()
	tap := queue.Tap()

	queue.Enqueue(&Event{TaskID: "t1", Status: StatusCompleted})
	queue.Close()

	// Consumers that have not caught up yet still receive the terminal
	// event, then end-of-stream.
	ctx := context.Background()
	for name, q := range map[string]*EventQueue{"parent": queue, "tap": tap} {
		event, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue on closed %s failed: %v", name, err)
		}
		if event.Status != StatusCompleted {
			t.Errorf("%s lost the terminal event, got %+v", name, event)
		}
		if _, err := q.Dequeue(ctx); !errors.Is(err, ErrQueueClosed) {
			t.Errorf("Drained %s should report ErrQueueClosed, got %v", name, err)
		}
	}
}

func TestEventQueueTapAfterClose(t *testing.T) {
	queue := NewEventQueue()
	queue.Close()

	if queue.Tap() != nil {
		t.Error("Tap on a closed queue should return nil")
	}
}

func TestQueueManagerCreateOrGet(t *testing.T) {
	manager := NewQueueManager()

	first := manager.CreateOrGet("t1")
	second := manager.CreateOrGet("t1")
	if first != second {
		t.Error("CreateOrGet should return the same queue per task")
	}
	if manager.CreateOrGet("t2") == first {
		t.Error("Distinct tasks should get distinct queues")
	}
	if manager.Len() != 2 {
		t.Errorf("Expected 2 queues, got %d", manager.Len())
	}
}

func TestQueueManagerGetAndTap(t *testing.T) {
	manager := NewQueueManager()

	if manager.Get("missing") != nil {
		t.Error("Get on unknown task should return nil")
	}
	if manager.Tap("missing") != nil {
		t.Error("Tap on unknown task should return nil")
	}

	queue := manager.CreateOrGet("t1")
	if manager.Get("t1") != queue {
		t.Error("Get should return the created queue")
	}

	tap := manager.Tap("t1")
	if tap == nil {
		t.Fatal("Tap on a live task should succeed")
	}
	queue.Enqueue(&Event{TaskID: "t1", Status: StatusWorking})
	if tap.Len() != 1 {
		t.Error("Tap should receive fan-out events")
	}
}

func TestQueueManagerCloseIdempotent(t *testing.T) {
	manager := NewQueueManager()
	queue := manager.CreateOrGet("t1")
	tap := manager.Tap("t1")

	manager.Close("t1")
	if !queue.Closed() || !tap.Closed() {
		t.Error("Manager close should cascade through the queue to taps")
	}
	if manager.Get("t1") != nil {
		t.Error("Closed task should be removed from the manager")
	}

	// Closing again, and closing a task that never existed, are no-ops.
	manager.Close("t1")
	manager.Close("never-created")
}
