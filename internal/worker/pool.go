// -----------------------------------------------------------------------
// Worker Pool - Polls the queue and feeds messages to the executor
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/queue"
)

// Pool runs a fixed number of polling workers over the queue. Each worker
// receives one message at a time and hands it to the executor; the message
// is deleted only when the executor reports it handled.
type Pool struct {
	queue        interfaces.QueueManager
	executor     *Executor
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a worker pool.
func NewPool(q interfaces.QueueManager, executor *Executor, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Pool{
		queue:        q,
		executor:     executor,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Start launches the workers. They run until Stop is called.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	p.logger.Info().
		Int("concurrency", p.concurrency).
		Str("poll_interval", p.pollInterval.String()).
		Msg("Worker pool started")
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	// Stagger startup so workers do not poll in lockstep
	select {
	case <-time.After(time.Duration(id) * 100 * time.Millisecond):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx, id)
		}
	}
}

// drain processes messages until the queue is empty or the context ends.
func (p *Pool) drain(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, deleteFn, err := p.queue.Receive(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrNoMessage) {
				p.logger.Error().Err(err).Int("worker", id).Msg("Failed to receive message")
			}
			return
		}

		if err := p.executor.Execute(ctx, msg); err != nil {
			// Leave the message for redelivery after the visibility timeout
			p.logger.Error().
				Err(err).
				Str("job_id", msg.JobID).
				Int("worker", id).
				Msg("Executor failed, message left for redelivery")
			continue
		}

		if err := deleteFn(); err != nil {
			p.logger.Warn().
				Err(err).
				Str("job_id", msg.JobID).
				Msg("Failed to delete handled message; idempotency guard will absorb redelivery")
		}
	}
}
