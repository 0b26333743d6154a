package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBoundedLRUCacheEvictsLeastRecent(t *testing.T) {
	c := NewBoundedLRUCache[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())

	c.Remove("a")
	assert.Equal(t, 1, c.Size())
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestBoundedTTLCacheExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewBoundedTTLCache[uint64, string](4, 20*time.Second)
	c.SetClock(func() time.Time { return now })

	c.Set(1, "pool")
	now = now.Add(19 * time.Second)
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "pool", v)

	now = now.Add(time.Second)
	_, ok = c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestBoundedLRUCacheAdd(t *testing.T) {
	c := NewBoundedLRUCache[string, struct{}](8)
	assert.True(t, c.Add("h1", struct{}{}))
	assert.False(t, c.Add("h1", struct{}{}))
	assert.True(t, c.Add("h2", struct{}{}))
}
