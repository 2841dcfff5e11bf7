package fetch

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/akz4ol/histgate/internal/config"
)

// PatternCache memoizes browse(pattern) -> resolved name list results behind
// a Redis cache. When Redis is unreachable (or unconfigured) it fails open:
// Lookup always reports a miss and Store is a no-op, so pattern resolution
// simply falls back to calling the remote browse endpoint on every query
// (spec §4.5, "Redis-backed pattern cache with graceful fallback").
type PatternCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPatternCache builds a cache from configuration. A blank cfg.URL yields
// a disabled cache (every Lookup is a miss) without attempting to connect.
func NewPatternCache(cfg config.RedisConfig, logger zerolog.Logger) *PatternCache {
	pc := &PatternCache{ttl: cfg.TTL, logger: logger}
	if cfg.URL == "" {
		return pc
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid pattern cache redis URL, disabling cache")
		return pc
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("pattern cache redis unreachable, falling back to always-resolve")
		client.Close()
		return pc
	}

	pc.client = client
	return pc
}

// Close releases the underlying Redis connection, if any.
func (c *PatternCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Enabled reports whether a live Redis connection backs this cache.
func (c *PatternCache) Enabled() bool {
	return c.client != nil
}

func cacheKey(table, pattern string) string {
	return "histgate:pattern:" + table + ":" + pattern
}

// Lookup returns a previously cached, deduplicated name list for (table,
// browsePattern), or (nil, false) on a miss or when the cache is disabled.
func (c *PatternCache) Lookup(ctx context.Context, table, browsePattern string) ([]string, bool) {
	if c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKey(table, browsePattern)).Result()
	if err != nil {
		return nil, false
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, false
	}
	return names, true
}

// Store caches a resolved name list. Failures are logged and otherwise
// ignored: caching is an optimisation, never a correctness dependency.
func (c *PatternCache) Store(ctx context.Context, table, browsePattern string, names []string) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(table, browsePattern), raw, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("table", table).Msg("pattern cache store failed")
	}
}

// normalizeTable lower-cases a table name so cache keys are stable regardless
// of its casing; schema qualifiers are not stripped.
func normalizeTable(name string) string {
	return strings.ToLower(name)
}
