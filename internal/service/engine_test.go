package service

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/cache"
	"github.com/voyagen/guidevault/internal/fetcher"
	"github.com/voyagen/guidevault/internal/logging"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/store"
	"github.com/voyagen/guidevault/internal/xmltv/xmltvtest"
	"github.com/voyagen/guidevault/internal/xtream"
)

var fixedNow = time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	calls  atomic.Int32
	gate   chan struct{} // when set, Fetch blocks until it is closed
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string][]byte{}, errs: map[string]error{}}
}

func (f *fakeFetcher) serve(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetcher.Result, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, apperr.Network("GET "+url, errors.New("HTTP 404"))
	}
	return &fetcher.Result{Body: body, FinalURL: url}, nil
}

type fakeCatalog struct {
	accounts []models.ProviderAccount
	streams  map[int64][]xtream.LiveStream
	err      error
}

func (c *fakeCatalog) Accounts() []models.ProviderAccount { return c.accounts }

func (c *fakeCatalog) Account(id int64) (models.ProviderAccount, bool) {
	for _, a := range c.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return models.ProviderAccount{}, false
}

func (c *fakeCatalog) LiveStreams(_ context.Context, acct models.ProviderAccount) ([]xtream.LiveStream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.streams[acct.ID], nil
}

type fakeLocker struct{ err error }

func (l fakeLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

type harness struct {
	engine  *Engine
	store   *store.Memory
	fetch   *fakeFetcher
	catalog *fakeCatalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: store.NewMemory(),
		fetch: newFakeFetcher(),
		catalog: &fakeCatalog{
			accounts: []models.ProviderAccount{{ID: 1, Name: "main", Kind: models.AccountXtream, URL: "http://iptv.example"}},
			streams: map[int64][]xtream.LiveStream{1: {
				{StreamID: "101", Name: "UK: BBC One FHD", CategoryID: "5", CategoryName: "UK"},
				{StreamID: "102", Name: "UK: BBC Two HD", CategoryID: "5", CategoryName: "UK"},
				{StreamID: "103", Name: "US: CNN", Icon: "http://img.example/cnn.png"},
			}},
		},
	}
	h.engine = New(Options{
		Store:    h.store,
		Fetcher:  h.fetch,
		Catalogs: h.catalog,
		Log:      logging.Discard(),
		Now:      func() time.Time { return fixedNow },
	})
	return h
}

func (h *harness) addSource(t *testing.T, name, url string) *models.EpgSource {
	t.Helper()
	src, err := h.engine.AddSource(context.Background(), SourceInput{Name: name, URL: url})
	require.NoError(t, err)
	return src
}

func (h *harness) scan(t *testing.T) {
	t.Helper()
	_, err := h.engine.ScanChannels(context.Background(), 1)
	require.NoError(t, err)
}

func (h *harness) streamByName(t *testing.T, name string) models.CatalogStream {
	t.Helper()
	list, err := h.store.ListCatalogStreams(context.Background(), store.CatalogFilter{})
	require.NoError(t, err)
	for _, s := range list {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("stream %q not in catalog", name)
	return models.CatalogStream{}
}

func (h *harness) firstChannel(t *testing.T, sourceID int64) models.GuideChannel {
	t.Helper()
	list, err := h.store.ListChannels(context.Background(), store.ChannelFilter{SourceID: &sourceID})
	require.NoError(t, err)
	require.NotEmpty(t, list)
	return list[0]
}

func TestAddSourceValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.AddSource(ctx, SourceInput{Name: "  ", URL: "http://epg.example/a.xml"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.engine.AddSource(ctx, SourceInput{Name: "a", URL: "not a url"})
	assert.ErrorContains(t, err, "invalid url")

	_, err = h.engine.AddSource(ctx, SourceInput{Name: "a", URL: "ftp://epg.example/a.xml"})
	assert.ErrorContains(t, err, "scheme not allowed")

	_, err = h.engine.AddSource(ctx, SourceInput{Name: "a", URL: "http://epg.example/a.xml", Format: "json"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	bad := 24
	_, err = h.engine.AddSource(ctx, SourceInput{Name: "a", URL: "http://epg.example/a.xml", RefreshHour: &bad})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAddSourceDefaultsAndDuplicate(t *testing.T) {
	h := newHarness(t)
	src := h.addSource(t, " Guide ", "http://epg.example/a.xml")
	assert.Equal(t, "Guide", src.Name)
	assert.Equal(t, models.FormatAuto, src.Format)
	assert.Equal(t, 3, src.RefreshHour)
	assert.True(t, src.IsActive)
	assert.Nil(t, src.LastRefresh)

	_, err := h.engine.AddSource(context.Background(), SourceInput{Name: "other", URL: "http://epg.example/a.xml"})
	assert.ErrorContains(t, err, "already exists")
}

func TestUpdateToggleDeleteSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := h.addSource(t, "Guide", "http://epg.example/a.xml")

	gz := models.FormatXMLGz
	upd, err := h.engine.UpdateSource(ctx, src.ID, SourcePatch{Format: &gz})
	require.NoError(t, err)
	assert.Equal(t, models.FormatXMLGz, upd.Format)
	assert.Equal(t, "Guide", upd.Name)

	bad := "gopher://x"
	_, err = h.engine.UpdateSource(ctx, src.ID, SourcePatch{URL: &bad})
	assert.ErrorContains(t, err, "scheme not allowed")

	off, err := h.engine.ToggleSource(ctx, src.ID, false)
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	require.NoError(t, h.engine.DeleteSource(ctx, src.ID))
	_, err = h.engine.Source(ctx, src.ID)
	assert.ErrorContains(t, err, "not found")
	assert.ErrorContains(t, h.engine.DeleteSource(ctx, src.ID), "not found")
}

func TestRefreshSourceIngestsGuide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := h.addSource(t, "Guide", "http://epg.example/a.xml.gz")
	h.fetch.serve(src.URL, xmltvtest.Gzip(xmltvtest.Generate("a", 3, 4)))

	stats, err := h.engine.RefreshSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChannelCount)
	assert.Equal(t, 12, stats.ProgramCount)

	got, err := h.engine.Stats(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ChannelCount)
	assert.Equal(t, 12, got.ProgramCount)
	require.NotNil(t, got.LastRefresh)
	assert.True(t, got.LastRefresh.Equal(fixedNow))
}

func TestRefreshSourceFailureKeepsGuide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := h.addSource(t, "Guide", "http://epg.example/a.xml")
	h.fetch.serve(src.URL, xmltvtest.Generate("a", 2, 2))
	_, err := h.engine.RefreshSource(ctx, src.ID)
	require.NoError(t, err)

	h.fetch.serve(src.URL, []byte("<tv><programme"))
	_, err = h.engine.RefreshSource(ctx, src.ID)
	assert.ErrorIs(t, err, apperr.ErrParse)

	h.fetch.fail(src.URL, apperr.Network("GET", errors.New("connection refused")))
	_, err = h.engine.RefreshSource(ctx, src.ID)
	assert.ErrorIs(t, err, apperr.ErrNetwork)

	stats, err := h.engine.Stats(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChannelCount)
	assert.Equal(t, 4, stats.ProgramCount)
}

func TestRefreshDeclaredGzipServedWithContentEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := xmltvtest.Generate(r.URL.Path[1:3], 2, 3)
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write(doc)
		_ = zw.Close()
	}))
	defer srv.Close()

	h := newHarness(t)
	h.engine.fetch = fetcher.New(fetcher.Options{AllowPrivate: true})
	ctx := context.Background()

	for _, format := range []models.SourceFormat{models.FormatXMLGz, models.FormatAuto} {
		src, err := h.engine.AddSource(ctx, SourceInput{Name: string(format), URL: srv.URL + "/" + string(format) + "/guide.xml.gz", Format: format})
		require.NoError(t, err)
		stats, err := h.engine.RefreshSource(ctx, src.ID)
		require.NoError(t, err, format)
		assert.Equal(t, 2, stats.ChannelCount, format)
		assert.Equal(t, 6, stats.ProgramCount, format)
	}
}

func TestRefreshFailuresAreLogged(t *testing.T) {
	h := newHarness(t)
	logger, hook := logtest.NewNullLogger()
	h.engine.log = logrus.NewEntry(logger)
	ctx := context.Background()

	src, err := h.engine.AddSource(ctx, SourceInput{Name: "Broken", URL: "http://epg.example/broken.xml.gz", Format: models.FormatXMLGz})
	require.NoError(t, err)
	h.fetch.serve(src.URL, []byte("definitely not gzip"))
	good := h.addSource(t, "Good", "http://epg.example/good.xml")
	h.fetch.serve(good.URL, xmltvtest.Generate("g", 1, 1))

	outcomes, err := h.engine.RefreshAll(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	var decodeLogged, outcomeLogged bool
	for _, e := range hook.AllEntries() {
		if e.Data["source_id"] != src.ID {
			continue
		}
		switch e.Message {
		case "epg decompress failed":
			decodeLogged = true
			assert.Contains(t, e.Data, logrus.ErrorKey)
		case "refresh-all: source failed":
			outcomeLogged = true
			assert.Contains(t, e.Data, logrus.ErrorKey)
			assert.Equal(t, "Broken", e.Data["source"])
			assert.Equal(t, logrus.WarnLevel, e.Level)
		}
	}
	assert.True(t, decodeLogged, "decompress failure logged by the refresh")
	assert.True(t, outcomeLogged, "failed source logged by refresh-all")
}

func TestRefreshSourceUnknown(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.RefreshSource(context.Background(), 99)
	assert.ErrorContains(t, err, "not found")
}

func TestRefreshSourceSharesConcurrentRuns(t *testing.T) {
	h := newHarness(t)
	src := h.addSource(t, "Guide", "http://epg.example/a.xml")
	h.fetch.serve(src.URL, xmltvtest.Generate("a", 1, 1))
	h.fetch.gate = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.engine.RefreshSource(context.Background(), src.ID)
		}()
	}
	require.Eventually(t, func() bool { return h.fetch.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(h.fetch.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), h.fetch.calls.Load())
}

func TestRefreshSourceLockedElsewhere(t *testing.T) {
	h := newHarness(t)
	src := h.addSource(t, "Guide", "http://epg.example/a.xml")
	h.fetch.serve(src.URL, xmltvtest.Generate("a", 1, 1))

	h.engine.locker = fakeLocker{err: cache.ErrLocked}
	_, err := h.engine.RefreshSource(context.Background(), src.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Zero(t, h.fetch.calls.Load())

	h.engine.locker = fakeLocker{err: errors.New("redis down")}
	_, err = h.engine.RefreshSource(context.Background(), src.ID)
	assert.NoError(t, err)
}

func TestRefreshAllSkipsInactiveAndIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	good := h.addSource(t, "Good", "http://epg.example/good.xml")
	bad := h.addSource(t, "Bad", "http://epg.example/bad.xml")
	idle := h.addSource(t, "Idle", "http://epg.example/idle.xml")
	_, err := h.engine.ToggleSource(ctx, idle.ID, false)
	require.NoError(t, err)
	h.fetch.serve(good.URL, xmltvtest.Generate("g", 2, 3))
	h.fetch.serve(idle.URL, xmltvtest.Generate("i", 2, 3))

	outcomes, err := h.engine.RefreshAll(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	byID := map[int64]models.RefreshOutcome{}
	for _, o := range outcomes {
		byID[o.SourceID] = o
	}
	require.NotNil(t, byID[good.ID].Stats)
	assert.Equal(t, 6, byID[good.ID].Stats.ProgramCount)
	assert.Empty(t, byID[good.ID].Error)
	assert.Nil(t, byID[bad.ID].Stats)
	assert.NotEmpty(t, byID[bad.ID].Error)
	assert.Equal(t, int32(2), h.fetch.calls.Load())
}

func TestScanChannels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.ScanChannels(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalChannels)
	assert.Equal(t, 3, res.NewChannels)

	bbc := h.streamByName(t, "UK: BBC One FHD")
	assert.Equal(t, []models.QualityTier{models.QualityFHD}, bbc.Qualities)
	require.NotNil(t, bbc.CategoryName)
	assert.Equal(t, "UK", *bbc.CategoryName)
	assert.Nil(t, bbc.StreamIcon)
	assert.Equal(t, models.StatusOrphan, bbc.LinkStatus)

	h.catalog.streams[1] = h.catalog.streams[1][:2]
	h.catalog.streams[1][1].Name = "UK: BBC Two 4K"
	res, err = h.engine.ScanChannels(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalChannels)
	assert.Equal(t, 0, res.NewChannels)
	assert.Equal(t, 2, res.UpdatedChannels)
	assert.Equal(t, 1, res.RemovedChannels)

	_, err = h.engine.ScanChannels(ctx, 7)
	assert.ErrorContains(t, err, "not found")

	h.catalog.err = apperr.Network("xtream get_live_streams on iptv.example", errors.New("HTTP 503"))
	_, err = h.engine.ScanChannels(ctx, 1)
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Len(t, h.engine.ProviderAccounts(), 1)
}

func TestSearchStreams(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hits, err := h.engine.SearchStreams(ctx, SearchRequest{Query: "  "})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NotNil(t, hits)

	h.scan(t)
	hits, err = h.engine.SearchStreams(ctx, SearchRequest{Query: "bbc one"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "UK: BBC One FHD", hits[0].Name)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].FuzzyScore, hits[i].FuzzyScore)
	}

	hits, err = h.engine.SearchStreams(ctx, SearchRequest{Query: "bbc", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	other := int64(2)
	hits, err = h.engine.SearchStreams(ctx, SearchRequest{Query: "bbc", AccountID: &other})
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = h.engine.SearchStreams(ctx, SearchRequest{Query: "bbc", MinScore: 2})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMappingLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := h.addSource(t, "Guide", "http://epg.example/a.xml")
	h.fetch.serve(src.URL, xmltvtest.Generate("a", 2, 1))
	_, err := h.engine.RefreshSource(ctx, src.ID)
	require.NoError(t, err)
	h.scan(t)

	ch := h.firstChannel(t, src.ID)
	one := h.streamByName(t, "UK: BBC One FHD")
	two := h.streamByName(t, "UK: BBC Two HD")

	_, err = h.engine.ToggleChannel(ctx, ch.ID)
	assert.ErrorContains(t, err, "cannot enable channel without stream source")

	list, err := h.engine.AddManualStreamMapping(ctx, ch.ID, one.ID, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsPrimary)

	list, err = h.engine.AddManualStreamMapping(ctx, ch.ID, two.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, two.ID, list[1].CatalogStreamID)
	assert.Equal(t, 1, list[1].Priority)

	_, err = h.engine.AddManualStreamMapping(ctx, ch.ID, two.ID, false)
	assert.ErrorContains(t, err, "already exists")

	list, err = h.engine.SetPrimaryStream(ctx, ch.ID, two.ID)
	require.NoError(t, err)
	assert.Equal(t, two.ID, list[0].CatalogStreamID)
	assert.True(t, list[0].IsPrimary)
	assert.False(t, list[1].IsPrimary)

	enabled, err := h.engine.ToggleChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, enabled.IsEnabled)

	lineup, err := h.engine.EnabledLineup(ctx)
	require.NoError(t, err)
	require.Len(t, lineup, 1)
	assert.Equal(t, ch.ID, lineup[0].ID)

	list, err = h.engine.RemoveStreamMapping(ctx, list[0].ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, one.ID, list[0].CatalogStreamID)
	assert.True(t, list[0].IsPrimary)

	got, err := h.engine.ChannelMappings(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, list, got)

	_, err = h.engine.ChannelMappings(ctx, 9999)
	assert.ErrorContains(t, err, "not found")
}

func TestUnlinkAndPromote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := h.addSource(t, "Guide", "http://epg.example/a.xml")
	h.fetch.serve(src.URL, xmltvtest.Generate("a", 1, 1))
	_, err := h.engine.RefreshSource(ctx, src.ID)
	require.NoError(t, err)
	h.scan(t)

	ch := h.firstChannel(t, src.ID)
	one := h.streamByName(t, "UK: BBC One FHD")
	cnn := h.streamByName(t, "US: CNN")
	_, err = h.engine.AddManualStreamMapping(ctx, ch.ID, one.ID, true)
	require.NoError(t, err)

	_, err = h.engine.PromoteOrphan(ctx, one.ID, "BBC One", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	n, err := h.engine.UnlinkStream(ctx, one.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.StatusOrphan, h.streamByName(t, "UK: BBC One FHD").LinkStatus)

	_, err = h.engine.PromoteOrphan(ctx, cnn.ID, "   ", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.engine.PromoteOrphan(ctx, cnn.ID, "CNN", "javascript:alert(1)")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	synth, err := h.engine.PromoteOrphan(ctx, cnn.ID, "CNN International", "http://img.example/cnn.png")
	require.NoError(t, err)
	assert.True(t, synth.IsSynthetic)
	assert.True(t, synth.IsEnabled)
	assert.Nil(t, synth.SourceID)
	assert.Equal(t, models.StatusPromoted, h.streamByName(t, "US: CNN").LinkStatus)

	_, err = h.engine.UnlinkStream(ctx, cnn.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	promoted, err := h.engine.CatalogStreams(ctx, StreamQuery{Status: models.StatusPromoted})
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, cnn.ID, promoted[0].ID)

	require.NoError(t, h.engine.DeleteChannel(ctx, synth.ID))
	assert.Equal(t, models.StatusOrphan, h.streamByName(t, "US: CNN").LinkStatus)
	assert.ErrorIs(t, h.engine.DeleteChannel(ctx, ch.ID), apperr.ErrValidation)
}

func TestChannelQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := h.addSource(t, "Guide", "http://epg.example/a.xml")
	h.fetch.serve(src.URL, xmltvtest.Generate("a", 3, 4))
	_, err := h.engine.RefreshSource(ctx, src.ID)
	require.NoError(t, err)

	list, err := h.engine.Channels(ctx, ChannelQuery{SourceID: &src.ID, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = h.engine.Channels(ctx, ChannelQuery{Search: "channel 2"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a Channel 2", list[0].DisplayName)

	_, err = h.engine.Channels(ctx, ChannelQuery{Offset: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	ch := list[0]
	order := 5
	got, err := h.engine.SetChannelDisplayOrder(ctx, ch.ID, &order)
	require.NoError(t, err)
	require.NotNil(t, got.DisplayOrder)
	assert.Equal(t, 5, *got.DisplayOrder)
	neg := -1
	_, err = h.engine.SetChannelDisplayOrder(ctx, ch.ID, &neg)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	progs, err := h.engine.ChannelPrograms(ctx, ch.ID, xmltvtest.Base.Add(90*time.Minute), xmltvtest.Base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, progs, 2)
	assert.Equal(t, "Show 1", progs[0].Title)

	_, err = h.engine.ChannelPrograms(ctx, ch.ID, xmltvtest.Base, xmltvtest.Base)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.engine.CatalogStreams(ctx, StreamQuery{Status: "lost"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
