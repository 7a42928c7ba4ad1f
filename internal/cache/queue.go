package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voyagen/guidevault/internal/models"
)

// DefaultQueue is the Redis list key used for refresh and scan jobs.
const DefaultQueue = "guidevault:jobs"

// Queue is a Redis list used as a FIFO of jobs.
type Queue struct {
	r    *Redis
	name string
}

// NewQueue returns the queue stored under the list key name.
func NewQueue(r *Redis, name string) *Queue {
	if name == "" {
		name = DefaultQueue
	}
	return &Queue{r: r, name: name}
}

// Enqueue pushes a job onto the left side of the list.
func (q *Queue) Enqueue(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	return q.r.client.LPush(ctx, q.name, data).Err()
}

// Dequeue blocks until a job is available on the right side of the list
// or the timeout expires. When the timeout elapses without a job, or ctx is
// cancelled, (nil, nil) is returned so the caller can loop and check for
// shutdown.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error) {
	result, err := q.r.client.BRPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(result) < 2 {
		return nil, nil
	}
	var job models.Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue unmarshal: %w", err)
	}
	return &job, nil
}
