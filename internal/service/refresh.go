package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/cache"
	"github.com/voyagen/guidevault/internal/metrics"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/xmltv"
	"golang.org/x/sync/errgroup"
)

// RefreshSource fetches, decodes and parses a source's guide and swaps it
// into the store. Concurrent calls for the same source share one run. The
// run is detached from ctx cancellation and bounded by the refresh timeout,
// so a caller that goes away does not leave a half-finished ingest behind.
func (e *Engine) RefreshSource(ctx context.Context, sourceID int64) (models.RefreshStats, error) {
	key := strconv.FormatInt(sourceID, 10)
	ch := e.refreshes.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.refreshTimeout)
		defer cancel()
		return e.refresh(runCtx, sourceID)
	})
	select {
	case <-ctx.Done():
		return models.RefreshStats{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.RefreshStats{}, res.Err
		}
		return res.Val.(models.RefreshStats), nil
	}
}

func (e *Engine) refresh(ctx context.Context, sourceID int64) (stats models.RefreshStats, err error) {
	start := time.Now()
	log := e.log.WithField("source_id", sourceID)
	defer func() {
		metrics.RefreshesTotal.WithLabelValues(metrics.Result(err)).Inc()
		metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	}()

	src, err := e.store.GetSource(ctx, sourceID)
	if err != nil {
		return stats, err
	}

	unlock, err := e.lock(ctx, log, "refresh:"+strconv.FormatInt(sourceID, 10))
	if err != nil {
		return stats, apperr.Conflict("refresh of source %d already running", sourceID)
	}
	defer unlock()

	res, err := e.fetch.Fetch(ctx, src.URL)
	if err != nil {
		log.WithError(err).Warn("epg fetch failed")
		return stats, err
	}
	data, format, err := xmltv.Decode(src.Format, res.Body)
	if err != nil {
		log.WithError(err).WithField("format", src.Format).Warn("epg decompress failed")
		return stats, err
	}
	doc, err := xmltv.Parse(data)
	if err != nil {
		log.WithError(err).Warn("epg parse failed")
		return stats, err
	}
	if doc.Unresolved > 0 {
		log.WithField("dropped", doc.Unresolved).Warn("programmes reference unknown channels")
	}

	stats, err = e.store.ReplaceGuide(ctx, sourceID, doc.Channels, doc.Programs, e.now().UTC())
	if err != nil {
		log.WithError(err).Error("epg guide replace failed")
		return stats, err
	}
	metrics.ProgramsIngested.Add(float64(stats.ProgramCount))
	log.WithFields(logrus.Fields{
		"format":      format,
		"bytes":       len(res.Body),
		"channels":    stats.ChannelCount,
		"programs":    stats.ProgramCount,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("epg source refreshed")
	return stats, nil
}

// RefreshAll refreshes every active source, a few at a time. A failing
// source does not stop the others; its error is reported in its outcome.
func (e *Engine) RefreshAll(ctx context.Context) ([]models.RefreshOutcome, error) {
	sources, err := e.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	var active []models.EpgSource
	for _, s := range sources {
		if s.IsActive {
			active = append(active, s)
		}
	}

	outcomes := make([]models.RefreshOutcome, len(active))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, src := range active {
		g.Go(func() error {
			out := models.RefreshOutcome{SourceID: src.ID, Name: src.Name}
			stats, err := e.RefreshSource(ctx, src.ID)
			if err != nil {
				out.Error = err.Error()
				e.log.WithError(err).WithFields(logrus.Fields{
					"source_id": src.ID,
					"source":    src.Name,
				}).Warn("refresh-all: source failed")
			} else {
				out.Stats = &stats
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
	}
	entry := e.log.WithFields(logrus.Fields{"sources": len(active), "failed": failed})
	if failed > 0 {
		entry.Warn("refresh-all finished with failures")
	} else {
		entry.Info("refresh-all finished")
	}
	return outcomes, nil
}

// lock takes the cross-process lock for key. It fails only when another
// holder has it; a Redis outage degrades to running unlocked.
func (e *Engine) lock(ctx context.Context, log *logrus.Entry, key string) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	unlock, err := e.locker.TryLock(ctx, key, e.refreshTimeout)
	switch {
	case errors.Is(err, cache.ErrLocked):
		return nil, err
	case err != nil:
		log.WithError(err).Warn("lock unavailable, continuing without it")
		return func() {}, nil
	}
	return unlock, nil
}
