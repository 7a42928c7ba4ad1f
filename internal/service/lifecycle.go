package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/fetcher"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/store"
)

// Listing bounds for channel and catalog pages.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// ChannelQuery is the payload of get_xmltv_channels.
type ChannelQuery struct {
	SourceID  *int64 `json:"source_id,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
	Synthetic *bool  `json:"synthetic,omitempty"`
	Search    string `json:"search,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// StreamQuery is the payload of get_xtream_streams.
type StreamQuery struct {
	AccountID *int64            `json:"account_id,omitempty"`
	Status    models.LinkStatus `json:"status,omitempty"`
	Search    string            `json:"search,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	Offset    int               `json:"offset,omitempty"`
}

func page(limit, offset int) (int, int, error) {
	if limit < 0 || offset < 0 {
		return 0, 0, apperr.Validation("limit and offset must not be negative")
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	return min(limit, MaxPageSize), offset, nil
}

// Channels implements get_xmltv_channels.
func (e *Engine) Channels(ctx context.Context, q ChannelQuery) ([]models.GuideChannel, error) {
	limit, offset, err := page(q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	return e.store.ListChannels(ctx, store.ChannelFilter{
		SourceID:  q.SourceID,
		Enabled:   q.Enabled,
		Synthetic: q.Synthetic,
		Search:    strings.TrimSpace(q.Search),
		Limit:     limit,
		Offset:    offset,
	})
}

// EnabledLineup implements get_enabled_lineup: enabled channels in display
// order, unordered channels last.
func (e *Engine) EnabledLineup(ctx context.Context) ([]models.GuideChannel, error) {
	enabled := true
	return e.store.ListChannels(ctx, store.ChannelFilter{Enabled: &enabled, LineupOrder: true})
}

// ToggleChannel implements toggle_xmltv_channel.
func (e *Engine) ToggleChannel(ctx context.Context, channelID int64) (*models.GuideChannel, error) {
	ch, err := e.store.ToggleChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"channel_id": channelID, "enabled": ch.IsEnabled}).Info("channel toggled")
	return ch, nil
}

// SetChannelDisplayOrder implements set_channel_display_order; nil clears it.
func (e *Engine) SetChannelDisplayOrder(ctx context.Context, channelID int64, order *int) (*models.GuideChannel, error) {
	if order != nil && *order < 0 {
		return nil, apperr.Validation("display order must not be negative")
	}
	return e.store.SetChannelDisplayOrder(ctx, channelID, order)
}

// ChannelPrograms implements get_channel_programs.
func (e *Engine) ChannelPrograms(ctx context.Context, channelID int64, from, to time.Time) ([]models.Program, error) {
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return nil, apperr.Validation("window end must be after its start")
	}
	if _, err := e.store.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	return e.store.ListPrograms(ctx, channelID, store.ProgramWindow{From: from, To: to})
}

// CatalogStreams implements get_xtream_streams.
func (e *Engine) CatalogStreams(ctx context.Context, q StreamQuery) ([]models.CatalogStream, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperr.Validation("status must be orphan, linked or promoted, got %q", q.Status)
	}
	limit, offset, err := page(q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	return e.store.ListCatalogStreams(ctx, store.CatalogFilter{
		AccountID: q.AccountID,
		Status:    q.Status,
		Search:    strings.TrimSpace(q.Search),
		Limit:     limit,
		Offset:    offset,
	})
}

// CatalogStream implements get_xtream_stream.
func (e *Engine) CatalogStream(ctx context.Context, streamID int64) (*models.CatalogStream, error) {
	return e.store.GetCatalogStream(ctx, streamID)
}

// UnlinkStream implements unlink_xtream_stream and returns how many
// mappings were removed.
func (e *Engine) UnlinkStream(ctx context.Context, streamID int64) (int, error) {
	n, err := e.store.UnlinkStream(ctx, streamID)
	if err != nil {
		return 0, err
	}
	e.log.WithFields(logrus.Fields{"stream_id": streamID, "mappings": n}).Info("stream unlinked")
	return n, nil
}

// PromoteOrphan implements promote_orphan_to_plex. A blank display name is
// rejected; a blank icon is stored as none.
func (e *Engine) PromoteOrphan(ctx context.Context, streamID int64, displayName, icon string) (*models.GuideChannel, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, apperr.Validation("display name is required")
	}
	var iconPtr *string
	if icon = strings.TrimSpace(icon); icon != "" {
		u, err := fetcher.ValidateURL(icon)
		if err != nil {
			return nil, err
		}
		s := u.String()
		iconPtr = &s
	}
	ch, err := e.store.PromoteStream(ctx, streamID, displayName, iconPtr)
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"stream_id": streamID, "channel_id": ch.ID}).Info("orphan stream promoted")
	return ch, nil
}

// DeleteChannel removes a synthetic channel. Its stream becomes an orphan
// again unless other channels still map it.
func (e *Engine) DeleteChannel(ctx context.Context, channelID int64) error {
	if err := e.store.DeleteSyntheticChannel(ctx, channelID); err != nil {
		return err
	}
	e.log.WithField("channel_id", channelID).Info("synthetic channel deleted")
	return nil
}
