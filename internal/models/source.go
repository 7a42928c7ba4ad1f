package models

import "time"

// EpgSource is an XMLTV guide feed.
type EpgSource struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Format      SourceFormat `json:"format"`
	RefreshHour int          `json:"refresh_hour"`
	LastRefresh *time.Time   `json:"last_refresh,omitempty"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
