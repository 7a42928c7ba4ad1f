package models

import "time"

// GuideChannel is an XMLTV channel, or a synthetic channel created by
// promoting an orphan stream (SourceID is nil for those).
type GuideChannel struct {
	ID           int64   `json:"id"`
	SourceID     *int64  `json:"source_id,omitempty"`
	ChannelID    string  `json:"channel_id"`
	DisplayName  string  `json:"display_name"`
	Icon         *string `json:"icon,omitempty"`
	IsSynthetic  bool    `json:"is_synthetic"`
	IsEnabled    bool    `json:"is_enabled"`
	DisplayOrder *int    `json:"plex_display_order,omitempty"`
	MatchCount   int     `json:"match_count"` // populated by read queries
}

// Program is one guide entry of a channel.
type Program struct {
	ID             int64     `json:"id"`
	GuideChannelID int64     `json:"guide_channel_id"`
	Title          string    `json:"title"`
	Description    *string   `json:"description,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Category       *string   `json:"category,omitempty"`
	EpisodeInfo    *string   `json:"episode_info,omitempty"`
}

// ChannelDraft is a parsed channel before it is stored.
type ChannelDraft struct {
	ChannelID   string
	DisplayName string
	Icon        *string
}

// ProgramDraft is a parsed programme before it is stored; ChannelID refers
// to a ChannelDraft of the same document.
type ProgramDraft struct {
	ChannelID   string
	Title       string
	Description *string
	Category    *string
	EpisodeInfo *string
	StartTime   time.Time
	EndTime     time.Time
}
