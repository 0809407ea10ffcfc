package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"curator-backend/internal/config"
)

func testConfig() config.Cache {
	return config.Cache{MaxItems: 3, MaxMemory: 1 << 20, TTL: time.Minute}
}

func TestGetSet(t *testing.T) {
	c := New(testConfig(), nil)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", []byte("v"), 0)
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestTTLExpiry(t *testing.T) {
	c := New(testConfig(), nil)
	now := time.Now()
	c.nowFunc = func() time.Time { return now }

	c.Set("k", []byte("v"), time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestLRUEviction(t *testing.T) {
	c := New(testConfig(), nil)
	c.Set("a", []byte("1"), 0)
	c.Set("b", []byte("2"), 0)
	c.Set("c", []byte("3"), 0)

	// Touch "a" so "b" becomes the eviction victim.
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Set("d", []byte("4"), 0)
	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(config.Cache{MaxItems: 10, MaxMemory: 1 << 20, TTL: time.Minute}, nil)
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("discovery:folder-1:%d", i), []byte("x"), 0)
	}
	c.Set("discovery:folder-2:0", []byte("y"), 0)

	assert.Equal(t, 3, c.InvalidatePrefix("discovery:folder-1:"))

	_, ok := c.Get("discovery:folder-2:0")
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	c := New(testConfig(), nil)
	c.Set("k", []byte("v"), 0)
	c.Get("k")
	c.Get("nope")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Items)
}

func TestOversizedValueSkipped(t *testing.T) {
	c := New(config.Cache{MaxItems: 10, MaxMemory: 8, TTL: time.Minute}, nil)
	c.Set("k", make([]byte, 64), 0)
	_, ok := c.Get("k")
	assert.False(t, ok)
}
