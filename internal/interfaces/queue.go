package interfaces

import (
	"context"

	"github.com/ternarybob/censeo/internal/models"
)

// QueueManager is the asynchronous task queue boundary. Delivery is
// at-least-once: a message not deleted before its visibility timeout
// expires is redelivered, up to the configured max receive count.
type QueueManager interface {
	// Enqueue adds a message to the queue.
	Enqueue(ctx context.Context, msg models.QueueMessage) error

	// Receive pulls the next visible message. It returns the message and a
	// delete function the worker calls once the message has been fully
	// handled; an undeleted message becomes visible again after the
	// visibility timeout. Returns ErrNoMessage when the queue is empty.
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)

	Close() error
}
