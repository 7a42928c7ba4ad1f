package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/service"
)

// command runs one named operation on raw JSON parameters.
type command func(ctx context.Context, params json.RawMessage) (any, error)

// typed adapts an operation with a parameter struct to a command. Unknown
// parameter names are rejected.
func typed[P any](op func(ctx context.Context, p P) (any, error)) command {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p P
		if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&p); err != nil {
				return nil, apperr.Validation("invalid params: %v", err)
			}
		}
		return op(ctx, p)
	}
}

func untyped(op func(ctx context.Context) (any, error)) command {
	return typed(func(ctx context.Context, _ struct{}) (any, error) { return op(ctx) })
}

type idParams struct {
	ID int64 `json:"id"`
}

type sourceIDParams struct {
	SourceID int64 `json:"source_id"`
}

type channelParams struct {
	ChannelID int64 `json:"channel_id"`
}

type streamParams struct {
	StreamID int64 `json:"stream_id"`
}

type updateSourceParams struct {
	ID int64 `json:"id"`
	service.SourcePatch
}

type toggleSourceParams struct {
	ID     int64 `json:"id"`
	Active *bool `json:"active"`
}

type refreshParams struct {
	ID    int64 `json:"id"`
	Async bool  `json:"async,omitempty"`
}

type asyncParams struct {
	Async bool `json:"async,omitempty"`
}

type mappingParams struct {
	ChannelID int64 `json:"channel_id"`
	StreamID  int64 `json:"stream_id"`
	IsPrimary bool  `json:"is_primary,omitempty"`
}

type mappingIDParams struct {
	MappingID int64 `json:"mapping_id"`
}

type scanParams struct {
	AccountID int64 `json:"account_id"`
	Async     bool  `json:"async,omitempty"`
}

type promoteParams struct {
	StreamID    int64  `json:"stream_id"`
	DisplayName string `json:"display_name"`
	IconURL     string `json:"icon_url,omitempty"`
}

type scheduleParams struct {
	Hour    *int  `json:"hour"`
	Minute  *int  `json:"minute"`
	Enabled *bool `json:"enabled,omitempty"`
}

type displayOrderParams struct {
	ChannelID int64 `json:"channel_id"`
	Order     *int  `json:"order"`
}

type programParams struct {
	ChannelID int64     `json:"channel_id"`
	From      time.Time `json:"from,omitzero"`
	To        time.Time `json:"to,omitzero"`
}

type jobParams struct {
	JobID string `json:"job_id"`
}

func (s *Server) commandTable() map[string]command {
	return map[string]command{
		"add_xmltv_source": typed(func(ctx context.Context, p service.SourceInput) (any, error) {
			return s.engine.AddSource(ctx, p)
		}),
		"get_xmltv_sources": untyped(func(ctx context.Context) (any, error) {
			return s.engine.Sources(ctx)
		}),
		"update_xmltv_source": typed(func(ctx context.Context, p updateSourceParams) (any, error) {
			return s.engine.UpdateSource(ctx, p.ID, p.SourcePatch)
		}),
		"delete_xmltv_source": typed(func(ctx context.Context, p idParams) (any, error) {
			if err := s.engine.DeleteSource(ctx, p.ID); err != nil {
				return nil, err
			}
			return map[string]any{"id": p.ID, "deleted": true}, nil
		}),
		"toggle_xmltv_source": typed(func(ctx context.Context, p toggleSourceParams) (any, error) {
			if p.Active == nil {
				return nil, apperr.Validation("active is required")
			}
			return s.engine.ToggleSource(ctx, p.ID, *p.Active)
		}),
		"refresh_epg_source": typed(func(ctx context.Context, p refreshParams) (any, error) {
			return s.refreshSource(ctx, p.ID, p.Async)
		}),
		"refresh_all_epg_sources": typed(func(ctx context.Context, p asyncParams) (any, error) {
			return s.refreshAll(ctx, p.Async)
		}),
		"get_epg_stats": typed(func(ctx context.Context, p sourceIDParams) (any, error) {
			return s.engine.Stats(ctx, p.SourceID)
		}),
		"search_xtream_streams": typed(func(ctx context.Context, p service.SearchRequest) (any, error) {
			return s.engine.SearchStreams(ctx, p)
		}),
		"add_manual_stream_mapping": typed(func(ctx context.Context, p mappingParams) (any, error) {
			return s.engine.AddManualStreamMapping(ctx, p.ChannelID, p.StreamID, p.IsPrimary)
		}),
		"remove_stream_mapping": typed(func(ctx context.Context, p mappingIDParams) (any, error) {
			return s.engine.RemoveStreamMapping(ctx, p.MappingID)
		}),
		"set_primary_stream": typed(func(ctx context.Context, p mappingParams) (any, error) {
			return s.engine.SetPrimaryStream(ctx, p.ChannelID, p.StreamID)
		}),
		"toggle_xmltv_channel": typed(func(ctx context.Context, p channelParams) (any, error) {
			return s.engine.ToggleChannel(ctx, p.ChannelID)
		}),
		"scan_channels": typed(func(ctx context.Context, p scanParams) (any, error) {
			return s.scan(ctx, p.AccountID, p.Async)
		}),
		"unlink_xtream_stream": typed(func(ctx context.Context, p streamParams) (any, error) {
			n, err := s.engine.UnlinkStream(ctx, p.StreamID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"stream_id": p.StreamID, "removed": n}, nil
		}),
		"promote_orphan_to_plex": typed(func(ctx context.Context, p promoteParams) (any, error) {
			return s.engine.PromoteOrphan(ctx, p.StreamID, p.DisplayName, p.IconURL)
		}),
		"get_epg_schedule": untyped(func(ctx context.Context) (any, error) {
			return s.sched.Schedule(ctx)
		}),
		"set_epg_schedule": typed(s.setSchedule),
		"get_xmltv_channels": typed(func(ctx context.Context, p service.ChannelQuery) (any, error) {
			return s.engine.Channels(ctx, p)
		}),
		"get_enabled_lineup": untyped(func(ctx context.Context) (any, error) {
			return s.engine.EnabledLineup(ctx)
		}),
		"set_channel_display_order": typed(func(ctx context.Context, p displayOrderParams) (any, error) {
			return s.engine.SetChannelDisplayOrder(ctx, p.ChannelID, p.Order)
		}),
		"delete_xmltv_channel": typed(func(ctx context.Context, p channelParams) (any, error) {
			if err := s.engine.DeleteChannel(ctx, p.ChannelID); err != nil {
				return nil, err
			}
			return map[string]any{"channel_id": p.ChannelID, "deleted": true}, nil
		}),
		"get_channel_programs": typed(func(ctx context.Context, p programParams) (any, error) {
			return s.engine.ChannelPrograms(ctx, p.ChannelID, p.From, p.To)
		}),
		"get_channel_mappings": typed(func(ctx context.Context, p channelParams) (any, error) {
			return s.engine.ChannelMappings(ctx, p.ChannelID)
		}),
		"get_xtream_streams": typed(func(ctx context.Context, p service.StreamQuery) (any, error) {
			return s.engine.CatalogStreams(ctx, p)
		}),
		"get_xtream_stream": typed(func(ctx context.Context, p streamParams) (any, error) {
			return s.engine.CatalogStream(ctx, p.StreamID)
		}),
		"get_provider_accounts": untyped(func(context.Context) (any, error) {
			return s.engine.ProviderAccounts(), nil
		}),
		"get_job": typed(func(ctx context.Context, p jobParams) (any, error) {
			if p.JobID == "" {
				return nil, apperr.Validation("job_id is required")
			}
			return s.jobs.Status(ctx, p.JobID)
		}),
	}
}

func (s *Server) refreshSource(ctx context.Context, sourceID int64, async bool) (any, error) {
	if !async {
		return s.engine.RefreshSource(ctx, sourceID)
	}
	if _, err := s.engine.Source(ctx, sourceID); err != nil {
		return nil, err
	}
	return s.submit(ctx, models.JobRefreshSource, sourceID, 0)
}

func (s *Server) refreshAll(ctx context.Context, async bool) (any, error) {
	if !async {
		return s.engine.RefreshAll(ctx)
	}
	return s.submit(ctx, models.JobRefreshAll, 0, 0)
}

func (s *Server) scan(ctx context.Context, accountID int64, async bool) (any, error) {
	if !async {
		return s.engine.ScanChannels(ctx, accountID)
	}
	if _, ok := s.engine.Account(accountID); !ok {
		return nil, apperr.NotFound("account %d", accountID)
	}
	return s.submit(ctx, models.JobScanAccount, 0, accountID)
}

func (s *Server) submit(ctx context.Context, kind models.JobKind, sourceID, accountID int64) (any, error) {
	job, err := s.jobs.Submit(ctx, kind, sourceID, accountID)
	if err != nil {
		return nil, err
	}
	return accepted{JobID: job.ID}, nil
}

func (s *Server) setSchedule(ctx context.Context, p scheduleParams) (any, error) {
	if p.Hour == nil || p.Minute == nil {
		return nil, apperr.Validation("hour and minute are required")
	}
	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	} else if cur, err := s.sched.Schedule(ctx); err == nil {
		enabled = cur.Enabled
	}
	return s.sched.SetSchedule(ctx, *p.Hour, *p.Minute, enabled)
}

// handleRPC runs POST /api/rpc/{command}; the body holds the parameters.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("command")
	cmd, ok := s.commands[name]
	if !ok {
		s.writeErr(w, r, apperr.NotFound("command %q", name))
		return
	}
	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		s.writeErr(w, r, err)
		return
	}
	result, err := cmd(r.Context(), raw)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if result == nil {
		result = map[string]any{}
	}
	writeResult(w, http.StatusOK, result)
}
