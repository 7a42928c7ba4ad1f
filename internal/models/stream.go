package models

import "time"

// CatalogStream is a live stream offered by a provider account.
// (AccountID, StreamID) is its identity across rescans.
type CatalogStream struct {
	ID           int64         `json:"id"`
	AccountID    int64         `json:"account_id"`
	StreamID     string        `json:"stream_id"`
	Name         string        `json:"name"`
	StreamIcon   *string       `json:"stream_icon,omitempty"`
	CategoryID   *string       `json:"category_id,omitempty"`
	CategoryName *string       `json:"category_name,omitempty"`
	Qualities    []QualityTier `json:"qualities"`
	IsPromoted   bool          `json:"-"` // mapped to a synthetic channel
	MappingCount int           `json:"mapping_count"`
	LinkStatus   LinkStatus    `json:"link_status"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ChannelStreamMapping links a guide channel to a catalog stream. Priority 0
// is served first; a channel has at most one primary mapping.
type ChannelStreamMapping struct {
	ID              int64     `json:"id"`
	GuideChannelID  int64     `json:"guide_channel_id"`
	CatalogStreamID int64     `json:"catalog_stream_id"`
	IsPrimary       bool      `json:"is_primary"`
	IsManual        bool      `json:"is_manual"`
	Priority        int       `json:"priority"`
	StreamName      string    `json:"stream_name,omitempty"` // populated by read queries
	CreatedAt       time.Time `json:"created_at"`
}

// ScoredStream is a search hit.
type ScoredStream struct {
	CatalogStream
	FuzzyScore float64 `json:"fuzzy_score"`
}
