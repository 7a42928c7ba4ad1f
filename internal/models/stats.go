package models

import "time"

// RefreshStats counts the rows written by one source refresh.
type RefreshStats struct {
	SourceID     int64 `json:"source_id"`
	ChannelCount int   `json:"channel_count"`
	ProgramCount int   `json:"program_count"`
}

// EpgStats describes what is currently stored for a source.
type EpgStats struct {
	ChannelCount int        `json:"channel_count"`
	ProgramCount int        `json:"program_count"`
	LastRefresh  *time.Time `json:"last_refresh,omitempty"`
}

// ScanResult summarises one catalog reconciliation.
type ScanResult struct {
	TotalChannels   int   `json:"total_channels"`
	NewChannels     int   `json:"new_channels"`
	UpdatedChannels int   `json:"updated_channels"`
	RemovedChannels int   `json:"removed_channels"`
	ScanDurationMs  int64 `json:"scan_duration_ms"`
}

// RefreshOutcome is one source's result inside a refresh-all run.
type RefreshOutcome struct {
	SourceID int64         `json:"source_id"`
	Name     string        `json:"name"`
	Stats    *RefreshStats `json:"stats,omitempty"`
	Error    string        `json:"error,omitempty"`
}
