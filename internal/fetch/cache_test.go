package fetch

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/akz4ol/histgate/internal/config"
)

func TestPatternCacheDisabledWhenURLBlank(t *testing.T) {
	c := NewPatternCache(config.RedisConfig{}, zerolog.Nop())
	if c.Enabled() {
		t.Fatal("expected cache to be disabled with no URL configured")
	}
	if _, ok := c.Lookup(context.Background(), "tagvalues", "Plant1.*"); ok {
		t.Fatal("expected a miss on a disabled cache")
	}
	// Store must be a no-op, never panic, when disabled.
	c.Store(context.Background(), "tagvalues", "Plant1.*", []string{"Plant1.PV1"})
}

func TestPatternCacheFailsOpenOnUnreachableRedis(t *testing.T) {
	c := NewPatternCache(config.RedisConfig{URL: "redis://127.0.0.1:1"}, zerolog.Nop())
	if c.Enabled() {
		t.Fatal("expected cache to be disabled when Redis is unreachable")
	}
}
