// Package jobs runs refreshes and catalog scans in the background so that
// API calls can return immediately with a job id.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/metrics"
	"github.com/voyagen/guidevault/internal/models"
)

const pollTimeout = 2 * time.Second

// Executor performs the work behind each job kind. *service.Engine
// satisfies it.
type Executor interface {
	RefreshSource(ctx context.Context, sourceID int64) (models.RefreshStats, error)
	RefreshAll(ctx context.Context) ([]models.RefreshOutcome, error)
	ScanChannels(ctx context.Context, accountID int64) (models.ScanResult, error)
}

// Options configures a Runner.
type Options struct {
	Queue    Queue
	Status   StatusStore
	Executor Executor
	Workers  int
	Log      *logrus.Entry
}

// Runner pulls jobs off a queue with a fixed number of workers.
type Runner struct {
	queue   Queue
	status  StatusStore
	exec    Executor
	workers int
	log     *logrus.Entry
	wg      sync.WaitGroup
}

func New(opts Options) *Runner {
	r := &Runner{
		queue:   opts.Queue,
		status:  opts.Status,
		exec:    opts.Executor,
		workers: opts.Workers,
		log:     opts.Log,
	}
	if r.queue == nil {
		r.queue = NewChanQueue(0)
	}
	if r.status == nil {
		r.status = NewMemoryStatus()
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	if r.log == nil {
		r.log = logrus.NewEntry(logrus.StandardLogger())
	}
	r.log = r.log.WithField("component", "jobs")
	return r
}

// Submit validates and enqueues a job and returns it with its new id.
func (r *Runner) Submit(ctx context.Context, kind models.JobKind, sourceID, accountID int64) (models.Job, error) {
	switch kind {
	case models.JobRefreshSource:
		if sourceID <= 0 {
			return models.Job{}, apperr.Validation("source_id is required")
		}
	case models.JobScanAccount:
		if accountID <= 0 {
			return models.Job{}, apperr.Validation("account_id is required")
		}
	case models.JobRefreshAll:
	default:
		return models.Job{}, apperr.Validation("unknown job kind %q", kind)
	}
	job := models.Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		SourceID:   sourceID,
		AccountID:  accountID,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := r.status.Put(ctx, Status{Job: job, State: StateQueued, UpdatedAt: job.EnqueuedAt}); err != nil {
		return models.Job{}, fmt.Errorf("record job: %w", err)
	}
	if err := r.queue.Enqueue(ctx, job); err != nil {
		return models.Job{}, err
	}
	r.log.WithFields(logrus.Fields{"job_id": job.ID, "kind": kind}).Debug("job queued")
	return job, nil
}

// Status returns the recorded status of a job.
func (r *Runner) Status(ctx context.Context, jobID string) (*Status, error) {
	return r.status.Get(ctx, jobID)
}

// Start launches the workers. They stop when ctx is cancelled; Wait blocks
// until they have.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.work(ctx)
		}()
	}
	r.log.WithField("workers", r.workers).Info("job runner started")
}

// Wait blocks until every worker has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) work(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := r.queue.Dequeue(ctx, pollTimeout)
		if err != nil {
			r.log.WithError(err).Warn("dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(pollTimeout):
			}
			continue
		}
		if job == nil {
			continue
		}
		r.run(ctx, *job)
	}
}

func (r *Runner) run(ctx context.Context, job models.Job) {
	log := r.log.WithFields(logrus.Fields{"job_id": job.ID, "kind": job.Kind})
	start := time.Now()
	r.put(ctx, Status{Job: job, State: StateRunning, UpdatedAt: start.UTC()})

	var (
		result any
		err    error
	)
	switch job.Kind {
	case models.JobRefreshSource:
		result, err = r.exec.RefreshSource(ctx, job.SourceID)
	case models.JobRefreshAll:
		result, err = r.exec.RefreshAll(ctx)
	case models.JobScanAccount:
		result, err = r.exec.ScanChannels(ctx, job.AccountID)
	default:
		err = apperr.Validation("unknown job kind %q", job.Kind)
	}
	metrics.JobsProcessed.WithLabelValues(string(job.Kind), metrics.Result(err)).Inc()

	st := Status{Job: job, State: StateSucceeded, UpdatedAt: time.Now().UTC()}
	if err != nil {
		st.State = StateFailed
		st.Error = err.Error()
		log.WithError(err).Warn("job failed")
	} else {
		if raw, merr := json.Marshal(result); merr == nil {
			st.Result = raw
		}
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("job done")
	}
	r.put(context.WithoutCancel(ctx), st)
}

func (r *Runner) put(ctx context.Context, st Status) {
	if err := r.status.Put(ctx, st); err != nil {
		r.log.WithError(err).WithField("job_id", st.Job.ID).Warn("record job status")
	}
}
