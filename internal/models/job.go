package models

import "time"

// JobKind names a background job.
type JobKind string

const (
	JobRefreshSource JobKind = "refresh_source"
	JobRefreshAll    JobKind = "refresh_all"
	JobScanAccount   JobKind = "scan_account"
)

// Job is a queued refresh or scan request.
type Job struct {
	ID         string    `json:"id"`
	Kind       JobKind   `json:"kind"`
	SourceID   int64     `json:"source_id,omitempty"`
	AccountID  int64     `json:"account_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
