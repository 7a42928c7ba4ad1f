package store

import (
	"context"
	"strconv"
	"time"

	"github.com/voyagen/guidevault/internal/models"
)

// Store defines persistence for EPG sources, guide channels and programmes,
// the stream catalog, channel-stream mappings and the refresh schedule.
//
// Methods that mutate several rows (ReplaceGuide, ReconcileCatalog and the
// mapping operations) are atomic: readers see either the previous or the
// new state, never a mixture.
type Store interface {
	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error

	// CreateSource inserts a source. A source with the same url is a duplicate.
	CreateSource(ctx context.Context, in NewSource) (*models.EpgSource, error)
	// ListSources returns all sources ordered by name.
	ListSources(ctx context.Context) ([]models.EpgSource, error)
	// GetSource returns a single source by id.
	GetSource(ctx context.Context, sourceID int64) (*models.EpgSource, error)
	// UpdateSource applies the non-nil fields and returns the updated source.
	UpdateSource(ctx context.Context, sourceID int64, fields SourceUpdate) (*models.EpgSource, error)
	// DeleteSource deletes a source with its channels and programmes.
	DeleteSource(ctx context.Context, sourceID int64) error
	// ReplaceGuide swaps the parsed channels and programmes of a source in
	// and sets its last refresh time. Synthetic channels are not touched.
	ReplaceGuide(ctx context.Context, sourceID int64, channels []models.ChannelDraft, programs []models.ProgramDraft, refreshedAt time.Time) (models.RefreshStats, error)
	// SourceStats counts what is stored for a source.
	SourceStats(ctx context.Context, sourceID int64) (*models.EpgStats, error)

	// GetChannel returns a guide channel with its match count.
	GetChannel(ctx context.Context, channelID int64) (*models.GuideChannel, error)
	// ListChannels returns guide channels matching the filter.
	ListChannels(ctx context.Context, filter ChannelFilter) ([]models.GuideChannel, error)
	// ToggleChannel flips a channel's lineup flag. Enabling a channel
	// without mappings is a validation error.
	ToggleChannel(ctx context.Context, channelID int64) (*models.GuideChannel, error)
	// SetChannelDisplayOrder sets or clears a channel's lineup position.
	SetChannelDisplayOrder(ctx context.Context, channelID int64, order *int) (*models.GuideChannel, error)
	// DeleteSyntheticChannel deletes a channel created by promotion.
	DeleteSyntheticChannel(ctx context.Context, channelID int64) error
	// ListPrograms returns a channel's programmes overlapping the window.
	ListPrograms(ctx context.Context, channelID int64, window ProgramWindow) ([]models.Program, error)

	// ReconcileCatalog makes the stored catalog of an account equal to
	// streams (keyed by StreamID). Streams that disappeared are deleted
	// together with their mappings.
	ReconcileCatalog(ctx context.Context, accountID int64, streams []models.CatalogStream) (models.ScanResult, error)
	// ListCatalogStreams returns catalog streams matching the filter.
	ListCatalogStreams(ctx context.Context, filter CatalogFilter) ([]models.CatalogStream, error)
	// GetCatalogStream returns a catalog stream by id.
	GetCatalogStream(ctx context.Context, streamID int64) (*models.CatalogStream, error)

	// ListMappings returns a channel's mappings ordered by priority.
	ListMappings(ctx context.Context, channelID int64) ([]models.ChannelStreamMapping, error)
	// AddMapping maps a stream to a channel and returns the channel's mappings.
	AddMapping(ctx context.Context, channelID, streamID int64, primary bool) ([]models.ChannelStreamMapping, error)
	// RemoveMapping deletes a mapping and returns the remaining mappings of its channel.
	RemoveMapping(ctx context.Context, mappingID int64) ([]models.ChannelStreamMapping, error)
	// SetPrimaryMapping makes the channel's mapping to streamID primary.
	SetPrimaryMapping(ctx context.Context, channelID, streamID int64) ([]models.ChannelStreamMapping, error)
	// UnlinkStream removes every mapping of a stream; returns how many.
	UnlinkStream(ctx context.Context, streamID int64) (int, error)
	// PromoteStream creates an enabled synthetic channel served by an orphan stream.
	PromoteStream(ctx context.Context, streamID int64, displayName string, icon *string) (*models.GuideChannel, error)

	// GetSchedule returns the refresh schedule.
	GetSchedule(ctx context.Context) (*models.ScheduleSetting, error)
	// SaveSchedule stores hour, minute and enabled; the last run time is kept.
	SaveSchedule(ctx context.Context, s models.ScheduleSetting) (*models.ScheduleSetting, error)
	// MarkScheduledRefresh records when the last scheduled refresh ran.
	MarkScheduledRefresh(ctx context.Context, at time.Time) error
}

// NewSource holds the fields of a source to create.
type NewSource struct {
	Name        string
	URL         string
	Format      models.SourceFormat
	RefreshHour int
	IsActive    bool
}

// SourceUpdate holds mutable fields of a source.
// Pointer fields: nil = don't change, non-nil = set.
type SourceUpdate struct {
	Name        *string
	URL         *string
	Format      *models.SourceFormat
	RefreshHour *int
	IsActive    *bool
}

// ChannelFilter holds optional filters for listing channels.
type ChannelFilter struct {
	SourceID  *int64
	Enabled   *bool
	Synthetic *bool
	Search    string // case-insensitive substring match on display name
	// LineupOrder sorts by display order (unset last), then name.
	LineupOrder bool
	Limit       int // 0 = no limit
	Offset      int
}

// CatalogFilter holds optional filters for listing catalog streams.
type CatalogFilter struct {
	AccountID *int64
	Status    models.LinkStatus // empty = any
	Search    string
	Limit     int // 0 = no limit
	Offset    int
}

// ProgramWindow bounds a programme query; zero times are unbounded.
type ProgramWindow struct {
	From time.Time
	To   time.Time
}

// DefaultSchedule is the schedule of a fresh installation.
var DefaultSchedule = models.ScheduleSetting{Hour: 3, Minute: 0, Enabled: true}

// SyntheticChannelID is the channel id given to the channel a stream is promoted to.
func SyntheticChannelID(streamID int64) string {
	return "promoted-" + strconv.FormatInt(streamID, 10)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
	_ Store = (*CachedStore)(nil)
)
