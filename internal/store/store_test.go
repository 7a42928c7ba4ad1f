package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/lineup"
	"github.com/voyagen/guidevault/internal/models"
)

var refreshTime = time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// runStoreSuite exercises behaviour every Store implementation must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("Sources", func(t *testing.T) { testSources(t, newStore(t)) })
	t.Run("ReplaceGuide", func(t *testing.T) { testReplaceGuide(t, newStore(t)) })
	t.Run("Programs", func(t *testing.T) { testPrograms(t, newStore(t)) })
	t.Run("Mappings", func(t *testing.T) { testMappings(t, newStore(t)) })
	t.Run("ToggleChannel", func(t *testing.T) { testToggleChannel(t, newStore(t)) })
	t.Run("ReconcileCatalog", func(t *testing.T) { testReconcile(t, newStore(t)) })
	t.Run("Lifecycle", func(t *testing.T) { testLifecycle(t, newStore(t)) })
	t.Run("ListChannels", func(t *testing.T) { testListChannels(t, newStore(t)) })
	t.Run("Schedule", func(t *testing.T) { testSchedule(t, newStore(t)) })
}

func createSource(t *testing.T, s Store, name, url string) *models.EpgSource {
	t.Helper()
	src, err := s.CreateSource(context.Background(), NewSource{Name: name, URL: url, Format: models.FormatAuto, RefreshHour: 3, IsActive: true})
	require.NoError(t, err)
	return src
}

func channelDrafts(ids ...string) []models.ChannelDraft {
	out := make([]models.ChannelDraft, len(ids))
	for i, id := range ids {
		out[i] = models.ChannelDraft{ChannelID: id, DisplayName: "Name " + id}
	}
	return out
}

func programDraft(channelID, title string, start time.Time) models.ProgramDraft {
	return models.ProgramDraft{ChannelID: channelID, Title: title, StartTime: start, EndTime: start.Add(time.Hour)}
}

// guideChannel returns the channel of a source with the given feed id.
func guideChannel(t *testing.T, s Store, sourceID int64, channelID string) models.GuideChannel {
	t.Helper()
	list, err := s.ListChannels(context.Background(), ChannelFilter{SourceID: &sourceID})
	require.NoError(t, err)
	for _, c := range list {
		if c.ChannelID == channelID {
			return c
		}
	}
	t.Fatalf("channel %s not found", channelID)
	return models.GuideChannel{}
}

func catalog(ids ...string) []models.CatalogStream {
	out := make([]models.CatalogStream, len(ids))
	for i, id := range ids {
		out[i] = models.CatalogStream{StreamID: id, Name: "Stream " + id, Qualities: []models.QualityTier{models.QualityHD}}
	}
	return out
}

func catalogStream(t *testing.T, s Store, accountID int64, streamID string) models.CatalogStream {
	t.Helper()
	list, err := s.ListCatalogStreams(context.Background(), CatalogFilter{AccountID: &accountID})
	require.NoError(t, err)
	for _, c := range list {
		if c.StreamID == streamID {
			return c
		}
	}
	t.Fatalf("stream %s not found", streamID)
	return models.CatalogStream{}
}

func streamIDs(list []models.ChannelStreamMapping) []int64 {
	out := make([]int64, len(list))
	for i, m := range list {
		out[i] = m.CatalogStreamID
	}
	return out
}

func testSources(t *testing.T, s Store) {
	ctx := context.Background()
	b := createSource(t, s, "Beta", "http://b.example/guide.xml")
	a := createSource(t, s, "Alpha", "http://a.example/guide.xml")
	assert.Equal(t, models.FormatAuto, a.Format)
	assert.True(t, a.IsActive)
	assert.Nil(t, a.LastRefresh)

	_, err := s.CreateSource(ctx, NewSource{Name: "Again", URL: a.URL, Format: models.FormatXML})
	require.ErrorIs(t, err, apperr.ErrDuplicate)
	assert.Contains(t, err.Error(), "already exists")

	list, err := s.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Name)
	assert.Equal(t, "Beta", list[1].Name)

	updated, err := s.UpdateSource(ctx, b.ID, SourceUpdate{Name: ptr("Gamma"), Format: ptr(models.FormatXMLGz), IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Gamma", updated.Name)
	assert.Equal(t, models.FormatXMLGz, updated.Format)
	assert.False(t, updated.IsActive)
	assert.Equal(t, b.URL, updated.URL)

	_, err = s.UpdateSource(ctx, b.ID, SourceUpdate{URL: ptr(a.URL)})
	assert.ErrorIs(t, err, apperr.ErrDuplicate)

	_, err = s.GetSource(ctx, 999999)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Contains(t, err.Error(), "not found")

	_, err = s.ReplaceGuide(ctx, a.ID, channelDrafts("x"), nil, refreshTime)
	require.NoError(t, err)
	require.NoError(t, s.DeleteSource(ctx, a.ID))
	assert.ErrorIs(t, s.DeleteSource(ctx, a.ID), apperr.ErrNotFound)
	chans, err := s.ListChannels(ctx, ChannelFilter{SourceID: &a.ID})
	require.NoError(t, err)
	assert.Empty(t, chans)
}

func testReplaceGuide(t *testing.T, s Store) {
	ctx := context.Background()
	src := createSource(t, s, "Guide", "http://g.example/guide.xml")

	_, err := s.ReplaceGuide(ctx, 999999, nil, nil, refreshTime)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	stats, err := s.ReplaceGuide(ctx, src.ID, channelDrafts("a", "b", "a"), []models.ProgramDraft{
		programDraft("a", "A1", refreshTime),
		programDraft("b", "B1", refreshTime),
		programDraft("zzz", "unknown channel", refreshTime),
	}, refreshTime)
	require.NoError(t, err)
	assert.Equal(t, models.RefreshStats{SourceID: src.ID, ChannelCount: 2, ProgramCount: 2}, stats)

	first := guideChannel(t, s, src.ID, "a")

	// A channel kept across refreshes keeps its id and its mappings.
	_, err = s.ReconcileCatalog(ctx, 1, catalog("s1"))
	require.NoError(t, err)
	stream := catalogStream(t, s, 1, "s1")
	_, err = s.AddMapping(ctx, first.ID, stream.ID, true)
	require.NoError(t, err)
	_, err = s.ReconcileCatalog(ctx, 1, catalog("s1", "s2"))
	require.NoError(t, err)
	orphan := catalogStream(t, s, 1, "s2")
	synth, err := s.PromoteStream(ctx, orphan.ID, "Synthetic", nil)
	require.NoError(t, err)

	later := refreshTime.Add(24 * time.Hour)
	stats, err = s.ReplaceGuide(ctx, src.ID, []models.ChannelDraft{{ChannelID: "a", DisplayName: "Renamed"}, {ChannelID: "c", DisplayName: "C"}},
		[]models.ProgramDraft{programDraft("a", "A2", later)}, later)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChannelCount)
	assert.Equal(t, 1, stats.ProgramCount)

	again := guideChannel(t, s, src.ID, "a")
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Renamed", again.DisplayName)
	assert.Equal(t, 1, again.MatchCount)

	chans, err := s.ListChannels(ctx, ChannelFilter{SourceID: &src.ID})
	require.NoError(t, err)
	var ids []string
	for _, c := range chans {
		ids = append(ids, c.ChannelID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	progs, err := s.ListPrograms(ctx, again.ID, ProgramWindow{})
	require.NoError(t, err)
	require.Len(t, progs, 1)
	assert.Equal(t, "A2", progs[0].Title)

	got, err := s.GetChannel(ctx, synth.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSynthetic)

	src2, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.NotNil(t, src2.LastRefresh)
	assert.True(t, later.Equal(*src2.LastRefresh))

	st, err := s.SourceStats(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ChannelCount)
	assert.Equal(t, 1, st.ProgramCount)
	require.NotNil(t, st.LastRefresh)
	assert.True(t, later.Equal(*st.LastRefresh))

	// An empty guide clears everything the source owned.
	stats, err = s.ReplaceGuide(ctx, src.ID, nil, nil, later)
	require.NoError(t, err)
	assert.Zero(t, stats.ChannelCount)
	chans, err = s.ListChannels(ctx, ChannelFilter{SourceID: &src.ID})
	require.NoError(t, err)
	assert.Empty(t, chans)
}

func testPrograms(t *testing.T, s Store) {
	ctx := context.Background()
	src := createSource(t, s, "P", "http://p.example/guide.xml")
	_, err := s.ReplaceGuide(ctx, src.ID, channelDrafts("a"), []models.ProgramDraft{
		programDraft("a", "third", refreshTime.Add(2*time.Hour)),
		programDraft("a", "first", refreshTime),
		programDraft("a", "second", refreshTime.Add(time.Hour)),
	}, refreshTime)
	require.NoError(t, err)
	ch := guideChannel(t, s, src.ID, "a")

	all, err := s.ListPrograms(ctx, ch.ID, ProgramWindow{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Title)
	assert.Equal(t, time.UTC, all[0].StartTime.Location())

	win, err := s.ListPrograms(ctx, ch.ID, ProgramWindow{From: refreshTime.Add(90 * time.Minute), To: refreshTime.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, win, 1)
	assert.Equal(t, "second", win[0].Title)

	_, err = s.ListPrograms(ctx, 999999, ProgramWindow{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testMappings(t *testing.T, s Store) {
	ctx := context.Background()
	src := createSource(t, s, "M", "http://m.example/guide.xml")
	_, err := s.ReplaceGuide(ctx, src.ID, channelDrafts("a"), nil, refreshTime)
	require.NoError(t, err)
	ch := guideChannel(t, s, src.ID, "a")
	_, err = s.ReconcileCatalog(ctx, 1, catalog("s1", "s2", "s3"))
	require.NoError(t, err)
	s1 := catalogStream(t, s, 1, "s1")
	s2 := catalogStream(t, s, 1, "s2")
	s3 := catalogStream(t, s, 1, "s3")

	list, err := s.AddMapping(ctx, ch.ID, s1.ID, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsPrimary)
	assert.True(t, list[0].IsManual)
	assert.Equal(t, "Stream s1", list[0].StreamName)

	list, err = s.AddMapping(ctx, ch.ID, s2.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{s1.ID, s2.ID}, streamIDs(list))
	assert.Equal(t, 1, list[1].Priority)
	assert.False(t, list[1].IsPrimary)

	// New primary demotes the old one.
	list, err = s.AddMapping(ctx, ch.ID, s3.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{s3.ID, s1.ID, s2.ID}, streamIDs(list))
	assert.True(t, list[0].IsPrimary)
	assert.False(t, list[1].IsPrimary)
	require.NoError(t, lineup.Validate(list))

	_, err = s.AddMapping(ctx, ch.ID, s3.ID, false)
	require.ErrorIs(t, err, apperr.ErrDuplicate)
	_, err = s.AddMapping(ctx, ch.ID, 999999, false)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.AddMapping(ctx, 999999, s1.ID, false)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	list, err = s.SetPrimaryMapping(ctx, ch.ID, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{s2.ID, s3.ID, s1.ID}, streamIDs(list))
	require.NoError(t, lineup.Validate(list))
	_, err = s.SetPrimaryMapping(ctx, ch.ID, 999999)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// Removing the primary promotes the next mapping and closes the gap.
	list, err = s.RemoveMapping(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{s3.ID, s1.ID}, streamIDs(list))
	assert.True(t, list[0].IsPrimary)
	require.NoError(t, lineup.Validate(list))

	_, err = s.RemoveMapping(ctx, 999999)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	stored, err := s.ListMappings(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, list, stored)

	got, err := s.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MatchCount)
}

func testToggleChannel(t *testing.T, s Store) {
	ctx := context.Background()
	src := createSource(t, s, "T", "http://t.example/guide.xml")
	_, err := s.ReplaceGuide(ctx, src.ID, channelDrafts("a"), nil, refreshTime)
	require.NoError(t, err)
	ch := guideChannel(t, s, src.ID, "a")
	assert.False(t, ch.IsEnabled)

	_, err = s.ToggleChannel(ctx, ch.ID)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "cannot enable channel without stream source")

	_, err = s.ReconcileCatalog(ctx, 1, catalog("s1"))
	require.NoError(t, err)
	_, err = s.AddMapping(ctx, ch.ID, catalogStream(t, s, 1, "s1").ID, false)
	require.NoError(t, err)

	on, err := s.ToggleChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, on.IsEnabled)
	off, err := s.ToggleChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, off.IsEnabled)

	_, err = s.ToggleChannel(ctx, 999999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testReconcile(t *testing.T, s Store) {
	ctx := context.Background()
	res, err := s.ReconcileCatalog(ctx, 1, catalog("s1", "s2", "s3", "s1"))
	require.NoError(t, err)
	assert.Equal(t, models.ScanResult{TotalChannels: 3, NewChannels: 3}, res)

	src := createSource(t, s, "R", "http://r.example/guide.xml")
	_, err = s.ReplaceGuide(ctx, src.ID, channelDrafts("a"), nil, refreshTime)
	require.NoError(t, err)
	ch := guideChannel(t, s, src.ID, "a")
	for _, id := range []string{"s2", "s3"} {
		_, err = s.AddMapping(ctx, ch.ID, catalogStream(t, s, 1, id).ID, false)
		require.NoError(t, err)
	}
	_, err = s.SetPrimaryMapping(ctx, ch.ID, catalogStream(t, s, 1, "s2").ID)
	require.NoError(t, err)
	s1 := catalogStream(t, s, 1, "s1")

	next := catalog("s1", "s3", "s4")
	next[0].Name = "Stream one renamed"
	res, err = s.ReconcileCatalog(ctx, 1, next)
	require.NoError(t, err)
	assert.Equal(t, models.ScanResult{TotalChannels: 3, NewChannels: 1, UpdatedChannels: 2, RemovedChannels: 1}, res)

	renamed := catalogStream(t, s, 1, "s1")
	assert.Equal(t, s1.ID, renamed.ID)
	assert.Equal(t, "Stream one renamed", renamed.Name)

	// s2 was the primary; s3 takes over at priority 0.
	list, err := s.ListMappings(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, catalogStream(t, s, 1, "s3").ID, list[0].CatalogStreamID)
	assert.True(t, list[0].IsPrimary)
	assert.Equal(t, 0, list[0].Priority)

	// Another account's catalog is independent.
	res, err = s.ReconcileCatalog(ctx, 2, catalog("s1"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewChannels)
	one, err := s.ListCatalogStreams(ctx, CatalogFilter{AccountID: ptr(int64(1))})
	require.NoError(t, err)
	assert.Len(t, one, 3)
}

func testLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.ReconcileCatalog(ctx, 1, catalog("s1", "s2"))
	require.NoError(t, err)
	s1 := catalogStream(t, s, 1, "s1")
	assert.Equal(t, models.StatusOrphan, s1.LinkStatus)

	src := createSource(t, s, "L", "http://l.example/guide.xml")
	_, err = s.ReplaceGuide(ctx, src.ID, channelDrafts("a", "b"), nil, refreshTime)
	require.NoError(t, err)
	a := guideChannel(t, s, src.ID, "a")
	b := guideChannel(t, s, src.ID, "b")
	_, err = s.AddMapping(ctx, a.ID, s1.ID, true)
	require.NoError(t, err)
	_, err = s.AddMapping(ctx, b.ID, s1.ID, true)
	require.NoError(t, err)

	linked, err := s.GetCatalogStream(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLinked, linked.LinkStatus)
	assert.Equal(t, 2, linked.MappingCount)

	_, err = s.PromoteStream(ctx, s1.ID, "Nope", nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	n, err := s.UnlinkStream(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	orphan, err := s.GetCatalogStream(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOrphan, orphan.LinkStatus)

	ch, err := s.PromoteStream(ctx, s1.ID, "Promoted One", ptr("http://icon.example/1.png"))
	require.NoError(t, err)
	assert.True(t, ch.IsSynthetic)
	assert.True(t, ch.IsEnabled)
	assert.Nil(t, ch.SourceID)
	assert.Equal(t, SyntheticChannelID(s1.ID), ch.ChannelID)
	assert.Equal(t, 1, ch.MatchCount)

	promoted, err := s.GetCatalogStream(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPromoted, promoted.LinkStatus)

	maps, err := s.ListMappings(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, maps, 1)
	assert.True(t, maps[0].IsPrimary)
	assert.Equal(t, 0, maps[0].Priority)

	_, err = s.UnlinkStream(ctx, s1.ID)
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = s.PromoteStream(ctx, s1.ID, "Again", nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	byStatus, err := s.ListCatalogStreams(ctx, CatalogFilter{Status: models.StatusPromoted})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, s1.ID, byStatus[0].ID)
	byStatus, err = s.ListCatalogStreams(ctx, CatalogFilter{Status: models.StatusOrphan})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "s2", byStatus[0].StreamID)

	assert.ErrorIs(t, s.DeleteSyntheticChannel(ctx, a.ID), apperr.ErrValidation)
	require.NoError(t, s.DeleteSyntheticChannel(ctx, ch.ID))
	back, err := s.GetCatalogStream(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOrphan, back.LinkStatus)

	_, err = s.UnlinkStream(ctx, 999999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.PromoteStream(ctx, 999999, "X", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testListChannels(t *testing.T, s Store) {
	ctx := context.Background()
	src := createSource(t, s, "C", "http://c.example/guide.xml")
	_, err := s.ReplaceGuide(ctx, src.ID, []models.ChannelDraft{
		{ChannelID: "1", DisplayName: "Delta"},
		{ChannelID: "2", DisplayName: "Alpha"},
		{ChannelID: "3", DisplayName: "Charlie 50%"},
	}, nil, refreshTime)
	require.NoError(t, err)

	byName, err := s.ListChannels(ctx, ChannelFilter{})
	require.NoError(t, err)
	require.Len(t, byName, 3)
	assert.Equal(t, "Alpha", byName[0].DisplayName)

	delta := guideChannel(t, s, src.ID, "1")
	_, err = s.SetChannelDisplayOrder(ctx, delta.ID, ptr(1))
	require.NoError(t, err)
	lineupOrder, err := s.ListChannels(ctx, ChannelFilter{LineupOrder: true})
	require.NoError(t, err)
	assert.Equal(t, "Delta", lineupOrder[0].DisplayName)
	assert.Equal(t, "Alpha", lineupOrder[1].DisplayName)

	found, err := s.ListChannels(ctx, ChannelFilter{Search: "50%"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Charlie 50%", found[0].DisplayName)

	paged, err := s.ListChannels(ctx, ChannelFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "Charlie 50%", paged[0].DisplayName)

	enabled, err := s.ListChannels(ctx, ChannelFilter{Enabled: ptr(true)})
	require.NoError(t, err)
	assert.Empty(t, enabled)

	_, err = s.SetChannelDisplayOrder(ctx, 999999, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testSchedule(t *testing.T, s Store) {
	ctx := context.Background()
	got, err := s.GetSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, *got)

	saved, err := s.SaveSchedule(ctx, models.ScheduleSetting{Hour: 5, Minute: 30, Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, 5, saved.Hour)
	assert.Equal(t, 30, saved.Minute)
	assert.False(t, saved.Enabled)

	require.NoError(t, s.MarkScheduledRefresh(ctx, refreshTime))
	got, err = s.GetSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Hour)
	require.NotNil(t, got.LastScheduledRefresh)
	assert.True(t, refreshTime.Equal(*got.LastScheduledRefresh))

	// Saving keeps the last run.
	saved, err = s.SaveSchedule(ctx, models.ScheduleSetting{Hour: 6, Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, saved.LastScheduledRefresh)
}
