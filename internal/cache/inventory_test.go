package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegativeSize(t *testing.T) {
	_, err := New[string](-1, time.Minute)
	assert.ErrorIs(t, err, ErrNegativeSize)
}

func TestAddGet(t *testing.T) {
	c, err := New[string](0, time.Minute)
	require.NoError(t, err)

	c.Add("vm-1", "VirtualMachine:vm-1")
	v, ok := c.Get("vm-1")
	assert.True(t, ok)
	assert.Equal(t, "VirtualMachine:vm-1", v)

	_, ok = c.Get("vm-2")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c, err := New[int](0, time.Minute)
	require.NoError(t, err)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Add("a", 1)

	now = now.Add(2 * time.Minute)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	c, err := New[int](2, time.Minute)
	require.NoError(t, err)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestGetDoesNotRefreshPosition(t *testing.T) {
	c, err := New[int](2, time.Minute)
	require.NoError(t, err)

	c.Add("a", 1)
	c.Add("b", 2)
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Add("c", 3)

	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestReAddRefreshesPosition(t *testing.T) {
	c, err := New[int](2, time.Minute)
	require.NoError(t, err)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("a", 10)
	c.Add("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestRemove(t *testing.T) {
	c, err := New[int](0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, c.ttl)

	c.Add("a", 1)
	c.Remove("a")
	c.Remove("missing")
	assert.Zero(t, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c, err := New[int](10, time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Add(string(rune('a'+i%26)), i)
			c.Get("a")
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 10)
}
