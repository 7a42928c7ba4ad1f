// Package service implements the guidevault commands on top of a Store:
// EPG source management and refresh, catalog scans, stream matching and the
// stream lifecycle.
package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/guidevault/internal/fetcher"
	"github.com/voyagen/guidevault/internal/store"
	"golang.org/x/sync/singleflight"
)

// GuideFetcher downloads a guide document. *fetcher.Fetcher satisfies it.
type GuideFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error)
}

// Locker takes a cross-process lock. *cache.Redis satisfies it; it returns
// cache.ErrLocked when another holder has the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Options configures an Engine. Store, Fetcher and Catalogs are required.
type Options struct {
	Store    store.Store
	Fetcher  GuideFetcher
	Catalogs CatalogSource
	Locker   Locker // nil disables cross-process refresh locking
	Log      *logrus.Entry

	RefreshTimeout     time.Duration
	RefreshConcurrency int
	Now                func() time.Time
}

// Engine carries out the guidevault commands. It is safe for concurrent use.
type Engine struct {
	store    store.Store
	fetch    GuideFetcher
	catalogs CatalogSource
	locker   Locker
	log      *logrus.Entry
	now      func() time.Time

	refreshTimeout time.Duration
	concurrency    int

	refreshes singleflight.Group // keyed by source id
	scans     singleflight.Group // keyed by account id
}

// New returns an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		store:          opts.Store,
		fetch:          opts.Fetcher,
		catalogs:       opts.Catalogs,
		locker:         opts.Locker,
		log:            opts.Log,
		now:            opts.Now,
		refreshTimeout: opts.RefreshTimeout,
		concurrency:    opts.RefreshConcurrency,
	}
	if e.log == nil {
		e.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.refreshTimeout <= 0 {
		e.refreshTimeout = 2 * time.Minute
	}
	if e.concurrency <= 0 {
		e.concurrency = 4
	}
	return e
}

// Ping reports whether the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}
