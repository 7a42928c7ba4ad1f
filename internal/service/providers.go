package service

import (
	"context"
	"sync"

	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/fetcher"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/xtream"
)

// CatalogSource lists provider accounts and their live streams.
type CatalogSource interface {
	Accounts() []models.ProviderAccount
	Account(id int64) (models.ProviderAccount, bool)
	LiveStreams(ctx context.Context, acct models.ProviderAccount) ([]xtream.LiveStream, error)
}

// ProviderCatalog serves the configured accounts. Xtream accounts go through
// the player_api with one rate-limited client per account; m3u accounts are
// downloaded with the guarded fetcher.
type ProviderCatalog struct {
	accounts []models.ProviderAccount
	fetch    *fetcher.Fetcher
	opts     xtream.Options

	mu      sync.Mutex
	clients map[int64]*xtream.Client
}

// NewProviderCatalog returns a catalog over accounts. opts.HTTP defaults to
// the fetcher's guarded client.
func NewProviderCatalog(accounts []models.ProviderAccount, f *fetcher.Fetcher, opts xtream.Options) *ProviderCatalog {
	if opts.HTTP == nil && f != nil {
		opts.HTTP = f.Client()
	}
	return &ProviderCatalog{
		accounts: accounts,
		fetch:    f,
		opts:     opts,
		clients:  make(map[int64]*xtream.Client),
	}
}

func (p *ProviderCatalog) Accounts() []models.ProviderAccount {
	out := make([]models.ProviderAccount, len(p.accounts))
	copy(out, p.accounts)
	return out
}

func (p *ProviderCatalog) Account(id int64) (models.ProviderAccount, bool) {
	for _, a := range p.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return models.ProviderAccount{}, false
}

func (p *ProviderCatalog) LiveStreams(ctx context.Context, acct models.ProviderAccount) ([]xtream.LiveStream, error) {
	if acct.Kind == models.AccountM3U {
		if p.fetch == nil {
			return nil, apperr.Validation("account %d: m3u accounts need a fetcher", acct.ID)
		}
		return xtream.FetchPlaylist(ctx, p.fetch, acct.URL)
	}
	c, err := p.client(acct)
	if err != nil {
		return nil, err
	}
	return c.LiveStreams(ctx)
}

func (p *ProviderCatalog) client(acct models.ProviderAccount) (*xtream.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[acct.ID]; ok {
		return c, nil
	}
	c, err := xtream.NewClient(acct.URL, acct.Username, acct.Password, p.opts)
	if err != nil {
		return nil, err
	}
	p.clients[acct.ID] = c
	return c, nil
}
