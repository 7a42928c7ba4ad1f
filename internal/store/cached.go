package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/guidevault/internal/cache"
	"github.com/voyagen/guidevault/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlSources  = 2 * time.Minute
	ttlSource   = 5 * time.Minute
	ttlStats    = 1 * time.Minute
	ttlChannels = 1 * time.Minute
	ttlChannel  = 5 * time.Minute
	ttlPrograms = 5 * time.Minute
	ttlStreams  = 1 * time.Minute
	ttlMappings = 2 * time.Minute
	ttlSchedule = 10 * time.Minute
)

// linkGen names the generation counter behind every key whose value depends
// on guide rows or channel-stream links. Such keys embed the generation, so
// a load that started before a write can only repopulate a retired key.
const linkGen = "links"

// CachedStore wraps a Store with a Redis caching layer.
// Read-heavy operations are served from cache when possible;
// write operations invalidate the relevant cache keys.
type CachedStore struct {
	inner Store
	cache *cache.Redis
	log   *logrus.Entry
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis, log *logrus.Entry) *CachedStore {
	return &CachedStore{inner: inner, cache: c, log: log.WithField("component", "cache")}
}

// readThrough serves key from the cache or loads and stores it.
func readThrough[T any](ctx context.Context, c *CachedStore, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, err := cache.Get[T](ctx, c.cache, key); err == nil {
		return v, nil
	} else if !cache.IsMiss(err) {
		c.log.WithError(err).WithField("key", key).Warn("cache get failed")
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache set failed")
	}
	return v, nil
}

// readLinked is readThrough under the current link generation.
func readLinked[T any](ctx context.Context, c *CachedStore, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	gen, err := cache.Generation(ctx, c.cache, linkGen)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache generation read failed")
		return load()
	}
	return readThrough(ctx, c, fmt.Sprintf("%s:%d:%s", linkGen, gen, key), ttl, load)
}

func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.cache.Ping(ctx); err != nil {
		c.log.WithError(err).Warn("redis ping failed")
	}
	return c.inner.Ping(ctx)
}

// --- cached read operations ---

func (c *CachedStore) ListSources(ctx context.Context) ([]models.EpgSource, error) {
	return readThrough(ctx, c, "sources:all", ttlSources, func() ([]models.EpgSource, error) {
		return c.inner.ListSources(ctx)
	})
}

func (c *CachedStore) GetSource(ctx context.Context, sourceID int64) (*models.EpgSource, error) {
	return readThrough(ctx, c, fmt.Sprintf("source:%d", sourceID), ttlSource, func() (*models.EpgSource, error) {
		return c.inner.GetSource(ctx, sourceID)
	})
}

func (c *CachedStore) SourceStats(ctx context.Context, sourceID int64) (*models.EpgStats, error) {
	return readThrough(ctx, c, fmt.Sprintf("stats:%d", sourceID), ttlStats, func() (*models.EpgStats, error) {
		return c.inner.SourceStats(ctx, sourceID)
	})
}

func (c *CachedStore) GetChannel(ctx context.Context, channelID int64) (*models.GuideChannel, error) {
	return readLinked(ctx, c, fmt.Sprintf("channel:%d", channelID), ttlChannel, func() (*models.GuideChannel, error) {
		return c.inner.GetChannel(ctx, channelID)
	})
}

func (c *CachedStore) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.GuideChannel, error) {
	return readLinked(ctx, c, "channels:"+keyHash(filter), ttlChannels, func() ([]models.GuideChannel, error) {
		return c.inner.ListChannels(ctx, filter)
	})
}

func (c *CachedStore) ListPrograms(ctx context.Context, channelID int64, window ProgramWindow) ([]models.Program, error) {
	key := fmt.Sprintf("programs:%d:%s", channelID, keyHash(window))
	return readLinked(ctx, c, key, ttlPrograms, func() ([]models.Program, error) {
		return c.inner.ListPrograms(ctx, channelID, window)
	})
}

func (c *CachedStore) ListCatalogStreams(ctx context.Context, filter CatalogFilter) ([]models.CatalogStream, error) {
	return readLinked(ctx, c, "streams:"+keyHash(filter), ttlStreams, func() ([]models.CatalogStream, error) {
		return c.inner.ListCatalogStreams(ctx, filter)
	})
}

func (c *CachedStore) GetCatalogStream(ctx context.Context, streamID int64) (*models.CatalogStream, error) {
	return readLinked(ctx, c, fmt.Sprintf("stream:%d", streamID), ttlStreams, func() (*models.CatalogStream, error) {
		return c.inner.GetCatalogStream(ctx, streamID)
	})
}

func (c *CachedStore) ListMappings(ctx context.Context, channelID int64) ([]models.ChannelStreamMapping, error) {
	return readLinked(ctx, c, fmt.Sprintf("mappings:%d", channelID), ttlMappings, func() ([]models.ChannelStreamMapping, error) {
		return c.inner.ListMappings(ctx, channelID)
	})
}

func (c *CachedStore) GetSchedule(ctx context.Context) (*models.ScheduleSetting, error) {
	return readThrough(ctx, c, "schedule", ttlSchedule, func() (*models.ScheduleSetting, error) {
		return c.inner.GetSchedule(ctx)
	})
}

// --- write operations with cache invalidation ---

func (c *CachedStore) CreateSource(ctx context.Context, in NewSource) (*models.EpgSource, error) {
	src, err := c.inner.CreateSource(ctx, in)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, "sources:all")
	return src, nil
}

func (c *CachedStore) UpdateSource(ctx context.Context, sourceID int64, fields SourceUpdate) (*models.EpgSource, error) {
	src, err := c.inner.UpdateSource(ctx, sourceID, fields)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, fmt.Sprintf("source:%d", sourceID), "sources:all")
	return src, nil
}

func (c *CachedStore) DeleteSource(ctx context.Context, sourceID int64) error {
	if err := c.inner.DeleteSource(ctx, sourceID); err != nil {
		return err
	}
	c.invalidate(ctx, fmt.Sprintf("source:%d", sourceID), fmt.Sprintf("stats:%d", sourceID), "sources:all")
	c.invalidateLinked(ctx)
	return nil
}

func (c *CachedStore) ReplaceGuide(ctx context.Context, sourceID int64, channels []models.ChannelDraft, programs []models.ProgramDraft, refreshedAt time.Time) (models.RefreshStats, error) {
	stats, err := c.inner.ReplaceGuide(ctx, sourceID, channels, programs, refreshedAt)
	if err != nil {
		return stats, err
	}
	c.invalidate(ctx, fmt.Sprintf("source:%d", sourceID), fmt.Sprintf("stats:%d", sourceID), "sources:all")
	c.invalidateLinked(ctx)
	return stats, nil
}

func (c *CachedStore) ToggleChannel(ctx context.Context, channelID int64) (*models.GuideChannel, error) {
	ch, err := c.inner.ToggleChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	c.invalidateLinked(ctx)
	return ch, nil
}

func (c *CachedStore) SetChannelDisplayOrder(ctx context.Context, channelID int64, order *int) (*models.GuideChannel, error) {
	ch, err := c.inner.SetChannelDisplayOrder(ctx, channelID, order)
	if err != nil {
		return nil, err
	}
	c.invalidateLinked(ctx)
	return ch, nil
}

func (c *CachedStore) DeleteSyntheticChannel(ctx context.Context, channelID int64) error {
	if err := c.inner.DeleteSyntheticChannel(ctx, channelID); err != nil {
		return err
	}
	c.invalidateLinked(ctx)
	return nil
}

func (c *CachedStore) ReconcileCatalog(ctx context.Context, accountID int64, streams []models.CatalogStream) (models.ScanResult, error) {
	res, err := c.inner.ReconcileCatalog(ctx, accountID, streams)
	if err != nil {
		return res, err
	}
	c.invalidateLinked(ctx)
	return res, nil
}

func (c *CachedStore) AddMapping(ctx context.Context, channelID, streamID int64, primary bool) ([]models.ChannelStreamMapping, error) {
	list, err := c.inner.AddMapping(ctx, channelID, streamID, primary)
	if err != nil {
		return nil, err
	}
	c.invalidateLinked(ctx)
	return list, nil
}

func (c *CachedStore) RemoveMapping(ctx context.Context, mappingID int64) ([]models.ChannelStreamMapping, error) {
	list, err := c.inner.RemoveMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	c.invalidateLinked(ctx)
	return list, nil
}

func (c *CachedStore) SetPrimaryMapping(ctx context.Context, channelID, streamID int64) ([]models.ChannelStreamMapping, error) {
	list, err := c.inner.SetPrimaryMapping(ctx, channelID, streamID)
	if err != nil {
		return nil, err
	}
	c.invalidateLinked(ctx)
	return list, nil
}

func (c *CachedStore) UnlinkStream(ctx context.Context, streamID int64) (int, error) {
	n, err := c.inner.UnlinkStream(ctx, streamID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.invalidateLinked(ctx)
	}
	return n, nil
}

func (c *CachedStore) PromoteStream(ctx context.Context, streamID int64, displayName string, icon *string) (*models.GuideChannel, error) {
	ch, err := c.inner.PromoteStream(ctx, streamID, displayName, icon)
	if err != nil {
		return nil, err
	}
	c.invalidateLinked(ctx)
	return ch, nil
}

func (c *CachedStore) SaveSchedule(ctx context.Context, s models.ScheduleSetting) (*models.ScheduleSetting, error) {
	out, err := c.inner.SaveSchedule(ctx, s)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, "schedule")
	return out, nil
}

func (c *CachedStore) MarkScheduledRefresh(ctx context.Context, at time.Time) error {
	if err := c.inner.MarkScheduledRefresh(ctx, at); err != nil {
		return err
	}
	c.invalidate(ctx, "schedule")
	return nil
}

// --- helpers ---

// invalidateLinked retires every guide and link entry, then drops the
// retired keys.
func (c *CachedStore) invalidateLinked(ctx context.Context) {
	if _, err := cache.Bump(ctx, c.cache, linkGen); err != nil {
		c.log.WithError(err).Warn("cache generation bump failed")
	}
	c.invalidatePattern(ctx, linkGen+":*")
}

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil && !cache.IsMiss(err) {
		c.log.WithError(err).WithField("keys", keys).Warn("cache del failed")
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			c.log.WithError(err).WithField("pattern", p).Warn("cache del pattern failed")
		}
	}
}

// keyHash produces a short deterministic hash of a filter value so it can
// be used as part of a cache key. Pointer fields hash by value.
func keyHash(v any) string {
	raw, _ := json.Marshal(v)
	h := sha256.Sum256(raw)
	return fmt.Sprintf("%x", h[:8])
}
