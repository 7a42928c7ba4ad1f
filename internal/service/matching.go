package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/matching"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/store"
)

// SearchRequest is the payload of search_xtream_streams.
type SearchRequest struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit,omitempty"`
	AccountID *int64  `json:"account_id,omitempty"`
	MinScore  float64 `json:"min_score,omitempty"`
}

// SearchStreams implements search_xtream_streams. A blank query returns an
// empty result without touching the store.
func (e *Engine) SearchStreams(ctx context.Context, req SearchRequest) ([]models.ScoredStream, error) {
	if strings.TrimSpace(req.Query) == "" {
		return []models.ScoredStream{}, nil
	}
	if req.Limit < 0 {
		return nil, apperr.Validation("limit must not be negative")
	}
	if req.MinScore < 0 || req.MinScore > 1 {
		return nil, apperr.Validation("min_score must be between 0 and 1")
	}
	minScore := req.MinScore
	if minScore == 0 {
		minScore = matching.DefaultMinScore
	}

	streams, err := e.store.ListCatalogStreams(ctx, store.CatalogFilter{AccountID: req.AccountID})
	if err != nil {
		return nil, err
	}
	hits := matching.Search(req.Query, streams, matching.Options{Limit: req.Limit, MinScore: minScore})
	if hits == nil {
		hits = []models.ScoredStream{}
	}
	return hits, nil
}

// AddManualStreamMapping implements add_manual_stream_mapping.
func (e *Engine) AddManualStreamMapping(ctx context.Context, channelID, streamID int64, primary bool) ([]models.ChannelStreamMapping, error) {
	list, err := e.store.AddMapping(ctx, channelID, streamID, primary)
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"channel_id": channelID, "stream_id": streamID, "primary": primary}).Info("stream mapped")
	return list, nil
}

// RemoveStreamMapping implements remove_stream_mapping.
func (e *Engine) RemoveStreamMapping(ctx context.Context, mappingID int64) ([]models.ChannelStreamMapping, error) {
	list, err := e.store.RemoveMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	e.log.WithField("mapping_id", mappingID).Info("stream mapping removed")
	return list, nil
}

// SetPrimaryStream implements set_primary_stream.
func (e *Engine) SetPrimaryStream(ctx context.Context, channelID, streamID int64) ([]models.ChannelStreamMapping, error) {
	return e.store.SetPrimaryMapping(ctx, channelID, streamID)
}

// ChannelMappings implements get_channel_mappings.
func (e *Engine) ChannelMappings(ctx context.Context, channelID int64) ([]models.ChannelStreamMapping, error) {
	if _, err := e.store.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	return e.store.ListMappings(ctx, channelID)
}
