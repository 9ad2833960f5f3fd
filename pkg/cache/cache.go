package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

type Config struct {
	MaxEntries int64         `envconfig:"MAX_ENTRIES" split_words:"true" default:"4096"`
	TTL        time.Duration `envconfig:"TTL" split_words:"true" default:"5m"`
}

// ResultCache short-circuits identical queries from the same caller within
// the TTL window.
type ResultCache struct {
	inner *ristretto.Cache[string, *contractx.ExecutionResult]
	ttl   time.Duration
}

var _ contractx.ResultCache = (*ResultCache)(nil)

func New(cfg Config) (*ResultCache, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	inner, err := ristretto.NewCache(&ristretto.Config[string, *contractx.ExecutionResult]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &ResultCache{inner: inner, ttl: ttl}, nil
}

func (c *ResultCache) Get(key string) (*contractx.ExecutionResult, bool) {
	return c.inner.Get(key)
}

func (c *ResultCache) Set(key string, res *contractx.ExecutionResult) {
	c.inner.SetWithTTL(key, res, 1, c.ttl)
}

// Key builds the cache key for one caller+query pair.
func Key(callerID, query string) string {
	return callerID + "|" + query
}
