package server

import (
	"net/http"

	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/service"
)

// --- source handlers ---

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.engine.Sources(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if sources == nil {
		sources = []models.EpgSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req service.SourceInput
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	src, err := s.engine.AddSource(r.Context(), req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	src, err := s.engine.Source(r.Context(), sourceID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req service.SourcePatch
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	src, err := s.engine.UpdateSource(r.Context(), sourceID, req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.engine.DeleteSource(r.Context(), sourceID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	res, err := s.refreshSource(r.Context(), sourceID, isAsync(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.refreshAll(r.Context(), isAsync(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (s *Server) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	stats, err := s.engine.Stats(r.Context(), sourceID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- channel handlers ---

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	var (
		q   service.ChannelQuery
		err error
	)
	if q.SourceID, err = queryInt64(r, "source_id"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if q.Enabled, err = queryBool(r, "enabled"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if q.Synthetic, err = queryBool(r, "synthetic"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if q.Offset, err = queryInt(r, "offset"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	q.Search = r.URL.Query().Get("search")

	channels, err := s.engine.Channels(r.Context(), q)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleLineup(w http.ResponseWriter, r *http.Request) {
	channels, err := s.engine.EnabledLineup(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleToggleChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	ch, err := s.engine.ToggleChannel(r.Context(), channelID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

type displayOrderRequest struct {
	Order *int `json:"order"`
}

func (s *Server) handleSetDisplayOrder(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req displayOrderRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	ch, err := s.engine.SetChannelDisplayOrder(r.Context(), channelID, req.Order)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.engine.DeleteChannel(r.Context(), channelID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChannelPrograms(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	from, err := queryTime(r, "from")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	progs, err := s.engine.ChannelPrograms(r.Context(), channelID, from, to)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progs)
}

// --- mapping handlers ---

func (s *Server) handleChannelMappings(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	list, err := s.engine.ChannelMappings(r.Context(), channelID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type mappingRequest struct {
	StreamID  int64 `json:"stream_id"`
	IsPrimary bool  `json:"is_primary,omitempty"`
}

func (s *Server) handleAddMapping(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req mappingRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	list, err := s.engine.AddManualStreamMapping(r.Context(), channelID, req.StreamID, req.IsPrimary)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (s *Server) handleSetPrimary(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req mappingRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	list, err := s.engine.SetPrimaryStream(r.Context(), channelID, req.StreamID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRemoveMapping(w http.ResponseWriter, r *http.Request) {
	mappingID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	list, err := s.engine.RemoveStreamMapping(r.Context(), mappingID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- catalog handlers ---

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	var (
		q   service.StreamQuery
		err error
	)
	if q.AccountID, err = queryInt64(r, "account_id"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if q.Offset, err = queryInt(r, "offset"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	q.Status = models.LinkStatus(r.URL.Query().Get("status"))
	q.Search = r.URL.Query().Get("search")

	streams, err := s.engine.CatalogStreams(r.Context(), q)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streams)
}

func (s *Server) handleSearchStreams(w http.ResponseWriter, r *http.Request) {
	var (
		req service.SearchRequest
		err error
	)
	req.Query = r.URL.Query().Get("q")
	if req.Limit, err = queryInt(r, "limit"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if req.AccountID, err = queryInt64(r, "account_id"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	hits, err := s.engine.SearchStreams(r.Context(), req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	streamID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	stream, err := s.engine.CatalogStream(r.Context(), streamID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stream)
}

func (s *Server) handleUnlinkStream(w http.ResponseWriter, r *http.Request) {
	streamID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	n, err := s.engine.UnlinkStream(r.Context(), streamID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stream_id": streamID, "removed": n})
}

type promoteRequest struct {
	DisplayName string `json:"display_name"`
	IconURL     string `json:"icon_url,omitempty"`
}

func (s *Server) handlePromoteStream(w http.ResponseWriter, r *http.Request) {
	streamID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req promoteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	ch, err := s.engine.PromoteOrphan(r.Context(), streamID, req.DisplayName, req.IconURL)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, _ *http.Request) {
	accounts := s.engine.ProviderAccounts()
	if accounts == nil {
		accounts = []models.ProviderAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleScanAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	res, err := s.scan(r.Context(), accountID, isAsync(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

// --- schedule and job handlers ---

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	setting, err := s.sched.Schedule(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

func (s *Server) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleParams
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	setting, err := s.setSchedule(r.Context(), req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeErr(w, r, apperr.Validation("job id is required"))
		return
	}
	st, err := s.jobs.Status(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
