package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/cache"
	"github.com/voyagen/guidevault/internal/models"
)

// State is the progress of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Status is what get_job reports.
type Status struct {
	Job       models.Job      `json:"job"`
	State     State           `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StatusStore keeps job statuses for a while after they finish.
type StatusStore interface {
	Put(ctx context.Context, st Status) error
	Get(ctx context.Context, jobID string) (*Status, error)
}

// statusTTL is how long a status stays readable.
const statusTTL = time.Hour

// MemoryStatus keeps statuses in process memory.
type MemoryStatus struct {
	mu   sync.Mutex
	byID map[string]Status
}

func NewMemoryStatus() *MemoryStatus {
	return &MemoryStatus{byID: make(map[string]Status)}
}

func (m *MemoryStatus) Put(_ context.Context, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := st.UpdatedAt.Add(-statusTTL)
	for id, old := range m.byID {
		if old.UpdatedAt.Before(cutoff) {
			delete(m.byID, id)
		}
	}
	m.byID[st.Job.ID] = st
	return nil
}

func (m *MemoryStatus) Get(_ context.Context, jobID string) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[jobID]
	if !ok {
		return nil, apperr.NotFound("job %s", jobID)
	}
	return &st, nil
}

// RedisStatus keeps statuses in Redis so any instance can answer for a job
// another instance ran.
type RedisStatus struct {
	r *cache.Redis
}

func NewRedisStatus(r *cache.Redis) *RedisStatus {
	return &RedisStatus{r: r}
}

func (s *RedisStatus) Put(ctx context.Context, st Status) error {
	return cache.Set(ctx, s.r, "job:"+st.Job.ID, st, statusTTL)
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (*Status, error) {
	st, err := cache.Get[Status](ctx, s.r, "job:"+jobID)
	if cache.IsMiss(err) {
		return nil, apperr.NotFound("job %s", jobID)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}
