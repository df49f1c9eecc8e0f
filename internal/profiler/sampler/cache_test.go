package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/cpuprof/internal/profiler/stack"
)

func TestStackCache_HitAndMiss(t *testing.T) {
	c := newStackCache(2)
	pcs := []uintptr{0x10, 0x20}
	frames := []stack.Frame{{Address: 0x10, Symbol: "main.a"}}

	key := c.hash(pcs)
	_, _, ok := c.get(key, pcs)
	assert.False(t, ok)

	c.put(key, pcs, frames, true)
	got, keep, ok := c.get(key, pcs)
	require.True(t, ok)
	assert.True(t, keep)
	assert.Equal(t, frames, got)
	assert.Equal(t, int64(1), c.hits)
	assert.Equal(t, int64(1), c.misses)
}

func TestStackCache_CopiesKey(t *testing.T) {
	c := newStackCache(4)
	pcs := []uintptr{0x10, 0x20}
	key := c.hash(pcs)
	c.put(key, pcs, nil, false)

	pcs[0] = 0x99
	_, _, ok := c.get(key, pcs)
	assert.False(t, ok, "mutating the caller's slice must not alias the cached key")

	_, keep, ok := c.get(key, []uintptr{0x10, 0x20})
	assert.True(t, ok)
	assert.False(t, keep, "skipped stacks are cached too")
}

func TestStackCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newStackCache(2)
	a, b, d := []uintptr{1}, []uintptr{2}, []uintptr{3}

	c.put(c.hash(a), a, nil, true)
	c.put(c.hash(b), b, nil, true)
	_, _, ok := c.get(c.hash(a), a)
	require.True(t, ok)

	c.put(c.hash(d), d, nil, true)
	assert.Equal(t, 2, c.len())

	_, _, ok = c.get(c.hash(b), b)
	assert.False(t, ok, "b was least recently used")
	_, _, ok = c.get(c.hash(a), a)
	assert.True(t, ok)
	_, _, ok = c.get(c.hash(d), d)
	assert.True(t, ok)
}

func TestStackCache_HashDistinguishesOrder(t *testing.T) {
	c := newStackCache(1)
	assert.NotEqual(t, c.hash([]uintptr{1, 2}), c.hash([]uintptr{2, 1}))
	assert.Equal(t, c.hash([]uintptr{1, 2}), c.hash([]uintptr{1, 2}))
}
