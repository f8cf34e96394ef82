package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetGet(t *testing.T) {
	c := New[[]float32](Options{})
	defer c.Close()

	c.Set("q", []float32{1, 2})
	v, ok := c.Get("q")
	assert.True(t, ok)
	assert.Equal(t, []float32{1, 2}, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestExpiration(t *testing.T) {
	c := New[string](Options{TTL: 5 * time.Millisecond})
	defer c.Close()

	c.Set("k", "v")
	time.Sleep(15 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestMaxItemsEvicts(t *testing.T) {
	c := New[int](Options{MaxItems: 2})
	defer c.Close()

	var evicted []string
	c.SetOnEvicted(func(k string, _ int) { evicted = append(evicted, k) })

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)
	assert.Equal(t, 2, c.Count())
	assert.Empty(t, evicted)

	c.Set("c", 4)
	assert.Equal(t, 2, c.Count())
	assert.Len(t, evicted, 1)

	v, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 4, v)
}

func TestDelete(t *testing.T) {
	c := New[int](Options{CleanupInterval: time.Millisecond})
	defer c.Close()

	c.Set("a", 1)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}
