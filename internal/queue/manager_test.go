package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/models"
)

func newTestQueue(t *testing.T, visibility time.Duration, maxReceive int) *Manager {
	t.Helper()

	mgr, err := NewManager(t.TempDir(), "test", visibility, maxReceive, arbor.NewLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestEnqueueReceiveDelete(t *testing.T) {
	mgr := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	msg := models.QueueMessage{JobID: "job-1", Type: models.MessageTypeAnalyze}
	if err := mgr.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	received, deleteFn, err := mgr.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if received.JobID != "job-1" {
		t.Errorf("Expected job-1, got %s", received.JobID)
	}

	if err := deleteFn(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Queue should now be empty
	_, _, err = mgr.Receive(ctx)
	if !errors.Is(err, ErrNoMessage) {
		t.Errorf("Expected ErrNoMessage after delete, got %v", err)
	}
}

func TestReceiveEmptyQueue(t *testing.T) {
	mgr := newTestQueue(t, time.Minute, 3)

	_, _, err := mgr.Receive(context.Background())
	if !errors.Is(err, ErrNoMessage) {
		t.Errorf("Expected ErrNoMessage, got %v", err)
	}
}

func TestVisibilityTimeoutRedelivery(t *testing.T) {
	mgr := newTestQueue(t, 50*time.Millisecond, 3)
	ctx := context.Background()

	if err := mgr.Enqueue(ctx, models.QueueMessage{JobID: "job-2", Type: models.MessageTypeAnalyze}); err != nil {
		t.Fatal(err)
	}

	// First receive claims the message without deleting it
	if _, _, err := mgr.Receive(ctx); err != nil {
		t.Fatalf("First receive failed: %v", err)
	}

	// Invisible while within the visibility timeout
	_, _, err := mgr.Receive(ctx)
	if !errors.Is(err, ErrNoMessage) {
		t.Errorf("Expected message to be invisible, got %v", err)
	}

	// Redelivered once the timeout passes
	time.Sleep(80 * time.Millisecond)
	received, deleteFn, err := mgr.Receive(ctx)
	if err != nil {
		t.Fatalf("Expected redelivery, got %v", err)
	}
	if received.JobID != "job-2" {
		t.Errorf("Expected job-2, got %s", received.JobID)
	}
	if err := deleteFn(); err != nil {
		t.Fatal(err)
	}
}

func TestMaxReceiveDropsPoisonPill(t *testing.T) {
	mgr := newTestQueue(t, time.Millisecond, 2)
	ctx := context.Background()

	if err := mgr.Enqueue(ctx, models.QueueMessage{JobID: "job-3", Type: models.MessageTypeAnalyze}); err != nil {
		t.Fatal(err)
	}

	// Exhaust the receive budget without ever deleting
	for i := 0; i < 2; i++ {
		time.Sleep(5 * time.Millisecond)
		if _, _, err := mgr.Receive(ctx); err != nil {
			t.Fatalf("Receive %d failed: %v", i+1, err)
		}
	}

	// Third attempt drops the message instead of redelivering it
	time.Sleep(5 * time.Millisecond)
	_, _, err := mgr.Receive(ctx)
	if !errors.Is(err, ErrNoMessage) {
		t.Errorf("Expected poison pill to be dropped, got %v", err)
	}
}

func TestReceiveOrdersByEnqueueTime(t *testing.T) {
	mgr := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	for _, id := range []string{"first", "second"} {
		if err := mgr.Enqueue(ctx, models.QueueMessage{JobID: id, Type: models.MessageTypeAnalyze}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond) // distinct index timestamps
	}

	received, deleteFn, err := mgr.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if received.JobID != "first" {
		t.Errorf("Expected first enqueued message, got %s", received.JobID)
	}
	deleteFn()
}
