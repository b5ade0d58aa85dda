package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)

	_, ok := c.Get("a") // a becomes most recent
	assert.True(t, ok)

	c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUOverwriteAndDelete(t *testing.T) {
	c := NewLRU[string](4, 0)
	c.Set("k", "v1")
	c.Set("k", "v2")
	v, _ := c.Get("k")
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, c.Size())

	c.Delete("k")
	c.Delete("missing")
	assert.Equal(t, 0, c.Size())
}

func TestLRUExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU[int](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)
	now = now.Add(2 * time.Minute)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired()) // b
	assert.Equal(t, 1, c.Size())
}

func TestLRUWithoutTTLNeverExpires(t *testing.T) {
	c := NewLRU[int](10, 0)
	c.Set("a", 1)
	assert.Equal(t, 0, c.CleanExpired())
	assert.Equal(t, 1, c.Size())
}

func TestJanitorSweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU[int](10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	now = now.Add(time.Hour)

	j := NewJanitor()
	j.Register("test", c)
	assert.Equal(t, 1, j.Sweep(context.Background()))
	assert.Equal(t, 0, c.Size())
}

func TestJanitorStartStop(t *testing.T) {
	j := NewJanitor()
	j.Start(context.Background(), time.Millisecond)
	j.Start(context.Background(), time.Millisecond) // second start is a no-op
	j.Stop()
	j.Stop()
}
