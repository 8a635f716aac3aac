package rates

import (
	"context"
	"sync"
	"time"

	"github.com/canbulut/fxbatch/internal/models"
)

type cachedRate struct {
	rate    models.ExchangeRate
	fetched time.Time
}

// CachingProvider wraps a Provider with a per-pair TTL cache so a bulk run over a file
// full of the same currency pair does not hammer the rate service once per record.
type CachingProvider struct {
	delegate Provider
	ttl      time.Duration

	mu    sync.RWMutex
	cache map[string]cachedRate
}

// NewCachingProvider wraps delegate with a TTL cache. A non-positive ttl disables caching.
func NewCachingProvider(delegate Provider, ttl time.Duration) *CachingProvider {
	return &CachingProvider{
		delegate: delegate,
		ttl:      ttl,
		cache:    make(map[string]cachedRate),
	}
}

func (p *CachingProvider) GetRate(ctx context.Context, sourceCurrency, targetCurrency string) (models.ExchangeRate, error) {
	key := sourceCurrency + "/" + targetCurrency

	if p.ttl > 0 {
		p.mu.RLock()
		c, ok := p.cache[key]
		p.mu.RUnlock()
		if ok && time.Since(c.fetched) < p.ttl {
			return c.rate, nil
		}
	}

	rate, err := p.delegate.GetRate(ctx, sourceCurrency, targetCurrency)
	if err != nil {
		return models.ExchangeRate{}, err
	}

	if p.ttl > 0 {
		p.mu.Lock()
		p.cache[key] = cachedRate{rate: rate, fetched: time.Now()}
		p.mu.Unlock()
	}
	return rate, nil
}
