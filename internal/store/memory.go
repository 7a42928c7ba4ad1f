package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/lineup"
	"github.com/voyagen/guidevault/internal/models"
)

// Memory implements Store in process memory. One lock guards all state, so
// every method is atomic with respect to every other. Used when no
// DATABASE_URL is configured and by tests.
type Memory struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	sources  map[int64]*models.EpgSource
	channels map[int64]*models.GuideChannel
	programs map[int64][]models.Program // by guide channel id
	streams  map[int64]*models.CatalogStream
	mappings map[int64][]models.ChannelStreamMapping // by guide channel id, in priority order
	schedule models.ScheduleSetting
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		sources:  make(map[int64]*models.EpgSource),
		channels: make(map[int64]*models.GuideChannel),
		programs: make(map[int64][]models.Program),
		streams:  make(map[int64]*models.CatalogStream),
		mappings: make(map[int64][]models.ChannelStreamMapping),
		schedule: DefaultSchedule,
	}
}

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *Memory) Ping(context.Context) error { return nil }

// --- sources ---

func (m *Memory) CreateSource(_ context.Context, in NewSource) (*models.EpgSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.urlTaken(in.URL, 0) {
		return nil, apperr.Duplicate("source with url %q", in.URL)
	}
	now := m.now().UTC()
	src := &models.EpgSource{
		ID:          m.nextID(),
		Name:        in.Name,
		URL:         in.URL,
		Format:      in.Format,
		RefreshHour: in.RefreshHour,
		IsActive:    in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.sources[src.ID] = src
	out := *src
	return &out, nil
}

func (m *Memory) urlTaken(url string, exceptID int64) bool {
	for _, s := range m.sources {
		if s.ID != exceptID && s.URL == url {
			return true
		}
	}
	return false
}

func (m *Memory) ListSources(context.Context) ([]models.EpgSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.EpgSource, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetSource(_ context.Context, sourceID int64) (*models.EpgSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[sourceID]
	if !ok {
		return nil, apperr.NotFound("source %d", sourceID)
	}
	out := *s
	return &out, nil
}

func (m *Memory) UpdateSource(_ context.Context, sourceID int64, f SourceUpdate) (*models.EpgSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[sourceID]
	if !ok {
		return nil, apperr.NotFound("source %d", sourceID)
	}
	if f.URL != nil && m.urlTaken(*f.URL, sourceID) {
		return nil, apperr.Duplicate("source with url %q", *f.URL)
	}
	if f.Name != nil {
		s.Name = *f.Name
	}
	if f.URL != nil {
		s.URL = *f.URL
	}
	if f.Format != nil {
		s.Format = *f.Format
	}
	if f.RefreshHour != nil {
		s.RefreshHour = *f.RefreshHour
	}
	if f.IsActive != nil {
		s.IsActive = *f.IsActive
	}
	s.UpdatedAt = m.now().UTC()
	out := *s
	return &out, nil
}

func (m *Memory) DeleteSource(_ context.Context, sourceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[sourceID]; !ok {
		return apperr.NotFound("source %d", sourceID)
	}
	for id, c := range m.channels {
		if c.SourceID != nil && *c.SourceID == sourceID {
			m.deleteChannel(id)
		}
	}
	delete(m.sources, sourceID)
	return nil
}

func (m *Memory) deleteChannel(id int64) {
	delete(m.channels, id)
	delete(m.programs, id)
	delete(m.mappings, id)
}

func (m *Memory) ReplaceGuide(_ context.Context, sourceID int64, channels []models.ChannelDraft, programs []models.ProgramDraft, refreshedAt time.Time) (models.RefreshStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[sourceID]
	if !ok {
		return models.RefreshStats{}, apperr.NotFound("source %d", sourceID)
	}

	existing := make(map[string]*models.GuideChannel)
	for _, c := range m.channels {
		if c.SourceID != nil && *c.SourceID == sourceID && !c.IsSynthetic {
			existing[c.ChannelID] = c
		}
	}

	byChannelID := make(map[string]int64, len(channels))
	for _, d := range channels {
		if _, dup := byChannelID[d.ChannelID]; dup {
			continue
		}
		if c, ok := existing[d.ChannelID]; ok {
			c.DisplayName = d.DisplayName
			c.Icon = d.Icon
			delete(existing, d.ChannelID)
			byChannelID[d.ChannelID] = c.ID
			delete(m.programs, c.ID)
			continue
		}
		sid := sourceID
		c := &models.GuideChannel{
			ID:          m.nextID(),
			SourceID:    &sid,
			ChannelID:   d.ChannelID,
			DisplayName: d.DisplayName,
			Icon:        d.Icon,
		}
		m.channels[c.ID] = c
		byChannelID[d.ChannelID] = c.ID
	}
	for _, gone := range existing {
		m.deleteChannel(gone.ID)
	}

	stats := models.RefreshStats{SourceID: sourceID, ChannelCount: len(byChannelID)}
	for _, p := range programs {
		chID, ok := byChannelID[p.ChannelID]
		if !ok {
			continue
		}
		m.programs[chID] = append(m.programs[chID], models.Program{
			ID:             m.nextID(),
			GuideChannelID: chID,
			Title:          p.Title,
			Description:    p.Description,
			StartTime:      p.StartTime.UTC(),
			EndTime:        p.EndTime.UTC(),
			Category:       p.Category,
			EpisodeInfo:    p.EpisodeInfo,
		})
		stats.ProgramCount++
	}

	at := refreshedAt.UTC()
	src.LastRefresh = &at
	src.UpdatedAt = m.now().UTC()
	return stats, nil
}

func (m *Memory) SourceStats(_ context.Context, sourceID int64) (*models.EpgStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[sourceID]
	if !ok {
		return nil, apperr.NotFound("source %d", sourceID)
	}
	stats := &models.EpgStats{LastRefresh: src.LastRefresh}
	for _, c := range m.channels {
		if c.SourceID != nil && *c.SourceID == sourceID && !c.IsSynthetic {
			stats.ChannelCount++
			stats.ProgramCount += len(m.programs[c.ID])
		}
	}
	return stats, nil
}

// --- channels ---

func (m *Memory) channelView(c *models.GuideChannel) models.GuideChannel {
	out := *c
	out.MatchCount = len(m.mappings[c.ID])
	return out
}

func (m *Memory) GetChannel(_ context.Context, channelID int64) (*models.GuideChannel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[channelID]
	if !ok {
		return nil, apperr.NotFound("channel %d", channelID)
	}
	out := m.channelView(c)
	return &out, nil
}

func (m *Memory) ListChannels(_ context.Context, f ChannelFilter) ([]models.GuideChannel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.GuideChannel, 0)
	for _, c := range m.channels {
		if f.SourceID != nil && (c.SourceID == nil || *c.SourceID != *f.SourceID) {
			continue
		}
		if f.Enabled != nil && c.IsEnabled != *f.Enabled {
			continue
		}
		if f.Synthetic != nil && c.IsSynthetic != *f.Synthetic {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.DisplayName), search) {
			continue
		}
		out = append(out, m.channelView(c))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.LineupOrder {
			switch {
			case a.DisplayOrder != nil && b.DisplayOrder == nil:
				return true
			case a.DisplayOrder == nil && b.DisplayOrder != nil:
				return false
			case a.DisplayOrder != nil && *a.DisplayOrder != *b.DisplayOrder:
				return *a.DisplayOrder < *b.DisplayOrder
			}
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.ID < b.ID
	})
	return page(out, f.Offset, f.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (m *Memory) ToggleChannel(_ context.Context, channelID int64) (*models.GuideChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[channelID]
	if !ok {
		return nil, apperr.NotFound("channel %d", channelID)
	}
	if !c.IsEnabled && len(m.mappings[channelID]) == 0 {
		return nil, apperr.Validation("cannot enable channel without stream source")
	}
	c.IsEnabled = !c.IsEnabled
	out := m.channelView(c)
	return &out, nil
}

func (m *Memory) SetChannelDisplayOrder(_ context.Context, channelID int64, order *int) (*models.GuideChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[channelID]
	if !ok {
		return nil, apperr.NotFound("channel %d", channelID)
	}
	if order != nil {
		v := *order
		order = &v
	}
	c.DisplayOrder = order
	out := m.channelView(c)
	return &out, nil
}

func (m *Memory) DeleteSyntheticChannel(_ context.Context, channelID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[channelID]
	if !ok {
		return apperr.NotFound("channel %d", channelID)
	}
	if !c.IsSynthetic {
		return apperr.Validation("channel %d belongs to an epg source and is replaced by its refresh", channelID)
	}
	m.deleteChannel(channelID)
	return nil
}

func (m *Memory) ListPrograms(_ context.Context, channelID int64, w ProgramWindow) ([]models.Program, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.channels[channelID]; !ok {
		return nil, apperr.NotFound("channel %d", channelID)
	}
	out := make([]models.Program, 0)
	for _, p := range m.programs[channelID] {
		if !w.From.IsZero() && !p.EndTime.After(w.From) {
			continue
		}
		if !w.To.IsZero() && !p.StartTime.Before(w.To) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- catalog ---

type streamLinks struct {
	count    int
	promoted bool
}

func (m *Memory) links() map[int64]streamLinks {
	out := make(map[int64]streamLinks)
	for chID, list := range m.mappings {
		synthetic := m.channels[chID].IsSynthetic
		for _, mp := range list {
			l := out[mp.CatalogStreamID]
			l.count++
			l.promoted = l.promoted || synthetic
			out[mp.CatalogStreamID] = l
		}
	}
	return out
}

func streamView(s *models.CatalogStream, l streamLinks) models.CatalogStream {
	out := *s
	out.Qualities = append([]models.QualityTier(nil), s.Qualities...)
	out.IsPromoted = l.promoted
	out.MappingCount = l.count
	out.LinkStatus = models.DeriveLinkStatus(l.promoted, l.count)
	return out
}

func (m *Memory) ReconcileCatalog(_ context.Context, accountID int64, streams []models.CatalogStream) (models.ScanResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := make(map[string]*models.CatalogStream)
	for _, s := range m.streams {
		if s.AccountID == accountID {
			existing[s.StreamID] = s
		}
	}

	now := m.now().UTC()
	var res models.ScanResult
	seen := make(map[string]bool, len(streams))
	for _, in := range streams {
		if seen[in.StreamID] {
			continue
		}
		seen[in.StreamID] = true
		res.TotalChannels++
		if cur, ok := existing[in.StreamID]; ok {
			cur.Name = in.Name
			cur.StreamIcon = in.StreamIcon
			cur.CategoryID = in.CategoryID
			cur.CategoryName = in.CategoryName
			cur.Qualities = append([]models.QualityTier(nil), in.Qualities...)
			cur.UpdatedAt = now
			delete(existing, in.StreamID)
			res.UpdatedChannels++
			continue
		}
		s := in
		s.ID = m.nextID()
		s.AccountID = accountID
		s.Qualities = append([]models.QualityTier(nil), in.Qualities...)
		s.UpdatedAt = now
		m.streams[s.ID] = &s
		res.NewChannels++
	}

	gone := make(map[int64]bool, len(existing))
	for _, s := range existing {
		gone[s.ID] = true
		delete(m.streams, s.ID)
		res.RemovedChannels++
	}
	m.dropStreamMappings(gone)
	return res, nil
}

// dropStreamMappings removes every mapping to the given streams and
// reorders the affected channels. Returns how many mappings were removed.
func (m *Memory) dropStreamMappings(streamIDs map[int64]bool) int {
	if len(streamIDs) == 0 {
		return 0
	}
	n := 0
	for chID, list := range m.mappings {
		var ids []int64
		for _, mp := range list {
			if streamIDs[mp.CatalogStreamID] {
				ids = append(ids, mp.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		kept, removed := lineup.Remove(list, ids...)
		n += len(removed)
		if len(kept) == 0 {
			delete(m.mappings, chID)
		} else {
			m.mappings[chID] = kept
		}
	}
	return n
}

func (m *Memory) ListCatalogStreams(_ context.Context, f CatalogFilter) ([]models.CatalogStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	links := m.links()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.CatalogStream, 0, len(m.streams))
	for _, s := range m.streams {
		if f.AccountID != nil && s.AccountID != *f.AccountID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.Name), search) {
			continue
		}
		v := streamView(s, links[s.ID])
		if f.Status != "" && v.LinkStatus != f.Status {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Offset, f.Limit), nil
}

func (m *Memory) GetCatalogStream(_ context.Context, streamID int64) (*models.CatalogStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[streamID]
	if !ok {
		return nil, apperr.NotFound("stream %d", streamID)
	}
	v := streamView(s, m.links()[streamID])
	return &v, nil
}

// --- mappings ---

func (m *Memory) mappingView(list []models.ChannelStreamMapping) []models.ChannelStreamMapping {
	out := make([]models.ChannelStreamMapping, len(list))
	for i, mp := range list {
		if s, ok := m.streams[mp.CatalogStreamID]; ok {
			mp.StreamName = s.Name
		}
		out[i] = mp
	}
	return out
}

func (m *Memory) ListMappings(_ context.Context, channelID int64) ([]models.ChannelStreamMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.channels[channelID]; !ok {
		return nil, apperr.NotFound("channel %d", channelID)
	}
	return m.mappingView(m.mappings[channelID]), nil
}

func (m *Memory) AddMapping(_ context.Context, channelID, streamID int64, primary bool) ([]models.ChannelStreamMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[channelID]; !ok {
		return nil, apperr.NotFound("channel %d", channelID)
	}
	if _, ok := m.streams[streamID]; !ok {
		return nil, apperr.NotFound("stream %d", streamID)
	}
	list := m.mappings[channelID]
	for _, mp := range list {
		if mp.CatalogStreamID == streamID {
			return nil, apperr.Duplicate("mapping of stream %d to channel %d", streamID, channelID)
		}
	}
	mp := models.ChannelStreamMapping{
		ID:              m.nextID(),
		GuideChannelID:  channelID,
		CatalogStreamID: streamID,
		IsManual:        true,
		CreatedAt:       m.now().UTC(),
	}
	m.mappings[channelID] = lineup.Add(list, mp, primary)
	return m.mappingView(m.mappings[channelID]), nil
}

func (m *Memory) RemoveMapping(_ context.Context, mappingID int64) ([]models.ChannelStreamMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chID, list := range m.mappings {
		for _, mp := range list {
			if mp.ID != mappingID {
				continue
			}
			kept, _ := lineup.Remove(list, mappingID)
			if len(kept) == 0 {
				delete(m.mappings, chID)
			} else {
				m.mappings[chID] = kept
			}
			return m.mappingView(kept), nil
		}
	}
	return nil, apperr.NotFound("mapping %d", mappingID)
}

func (m *Memory) SetPrimaryMapping(_ context.Context, channelID, streamID int64) ([]models.ChannelStreamMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[channelID]; !ok {
		return nil, apperr.NotFound("channel %d", channelID)
	}
	out, ok := lineup.SetPrimary(m.mappings[channelID], streamID)
	if !ok {
		return nil, apperr.NotFound("mapping of stream %d to channel %d", streamID, channelID)
	}
	m.mappings[channelID] = out
	return m.mappingView(out), nil
}

func (m *Memory) UnlinkStream(_ context.Context, streamID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[streamID]
	if !ok {
		return 0, apperr.NotFound("stream %d", streamID)
	}
	if streamView(s, m.links()[streamID]).LinkStatus == models.StatusPromoted {
		return 0, apperr.Validation("stream %d is promoted and cannot be unlinked", streamID)
	}
	return m.dropStreamMappings(map[int64]bool{streamID: true}), nil
}

func (m *Memory) PromoteStream(_ context.Context, streamID int64, displayName string, icon *string) (*models.GuideChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[streamID]
	if !ok {
		return nil, apperr.NotFound("stream %d", streamID)
	}
	if status := streamView(s, m.links()[streamID]).LinkStatus; status != models.StatusOrphan {
		return nil, apperr.Validation("stream %d is %s; only orphan streams can be promoted", streamID, status)
	}
	chanID := SyntheticChannelID(streamID)
	for _, c := range m.channels {
		if c.IsSynthetic && c.ChannelID == chanID {
			return nil, apperr.Duplicate("synthetic channel %q", chanID)
		}
	}
	c := &models.GuideChannel{
		ID:          m.nextID(),
		ChannelID:   chanID,
		DisplayName: displayName,
		Icon:        icon,
		IsSynthetic: true,
		IsEnabled:   true,
	}
	m.channels[c.ID] = c
	m.mappings[c.ID] = []models.ChannelStreamMapping{{
		ID:              m.nextID(),
		GuideChannelID:  c.ID,
		CatalogStreamID: streamID,
		IsPrimary:       true,
		IsManual:        true,
		Priority:        0,
		CreatedAt:       m.now().UTC(),
	}}
	out := m.channelView(c)
	return &out, nil
}

// --- schedule ---

func (m *Memory) GetSchedule(context.Context) (*models.ScheduleSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.schedule
	return &out, nil
}

func (m *Memory) SaveSchedule(_ context.Context, s models.ScheduleSetting) (*models.ScheduleSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule.Hour = s.Hour
	m.schedule.Minute = s.Minute
	m.schedule.Enabled = s.Enabled
	out := m.schedule
	return &out, nil
}

func (m *Memory) MarkScheduledRefresh(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := at.UTC()
	m.schedule.LastScheduledRefresh = &t
	return nil
}
