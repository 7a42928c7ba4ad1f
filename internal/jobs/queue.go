package jobs

import (
	"context"
	"time"

	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/models"
)

// Queue carries jobs from Submit to the workers. *cache.Queue satisfies it.
// Dequeue returns (nil, nil) when the timeout passes without a job.
type Queue interface {
	Enqueue(ctx context.Context, job models.Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error)
}

// ChanQueue is the in-process queue used when Redis is not configured.
type ChanQueue struct {
	ch chan models.Job
}

// NewChanQueue returns a queue holding up to size pending jobs.
func NewChanQueue(size int) *ChanQueue {
	if size <= 0 {
		size = 64
	}
	return &ChanQueue{ch: make(chan models.Job, size)}
}

func (q *ChanQueue) Enqueue(ctx context.Context, job models.Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return apperr.Conflict("job queue is full")
	}
}

func (q *ChanQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case job := <-q.ch:
		return &job, nil
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, nil
	}
}
