package models

import "time"

// ScheduleSetting is the process-wide daily refresh schedule.
type ScheduleSetting struct {
	Hour                 int        `json:"hour"`
	Minute               int        `json:"minute"`
	Enabled              bool       `json:"enabled"`
	LastScheduledRefresh *time.Time `json:"last_scheduled_refresh,omitempty"`
}
