package shopify

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"shopsync/config"
)

// LookupFunc resolves a shop key to its connection record. Backed by the
// shops registry in the store; the auth layer that fills that registry is
// outside this package.
type LookupFunc func(shop string) (Connect, error)

// Factory hands out per-shop API clients. All clients for one shop share a
// single token bucket, so concurrent sync runs against the same shop contend
// on one rate limit.
type Factory struct {
	cfg    *config.ShopifyConfig
	lookup LookupFunc

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	clients  map[string]*Client
}

func NewFactory(cfg *config.ShopifyConfig, lookup LookupFunc) *Factory {
	return &Factory{
		cfg:      cfg,
		lookup:   lookup,
		limiters: make(map[string]*rate.Limiter),
		clients:  make(map[string]*Client),
	}
}

// ClientFor returns the API client for a shop, creating it on first use.
func (f *Factory) ClientFor(shop string) (*Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[shop]; ok {
		return c, nil
	}
	connect, err := f.lookup(shop)
	if err != nil {
		return nil, fmt.Errorf("resolve shop %q: %w", shop, err)
	}
	limiter, ok := f.limiters[shop]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.cfg.RatePerSec), f.cfg.RateBurst)
		f.limiters[shop] = limiter
	}
	c := newClient(connect, baseURL(connect.Domain, f.cfg.APIVersion), limiter,
		f.cfg.Timeout, f.cfg.MaxRetries, f.cfg.RetryBackoff, f.cfg.PageLimit)
	f.clients[shop] = c
	return c, nil
}

// Evict drops a cached client, forcing the next ClientFor to re-resolve the
// connection (after a token rotation or shop removal).
func (f *Factory) Evict(shop string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.clients, shop)
}

func baseURL(domain, apiVersion string) string {
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return fmt.Sprintf("%s/admin/api/%s", strings.TrimRight(domain, "/"), apiVersion)
}
