package sampler

import (
	"container/list"
	"encoding/binary"
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/cpuprof/internal/profiler/stack"
)

// defaultCacheSize bounds the number of distinct resolved stacks kept.
const defaultCacheSize = 4096

// stackCache is an LRU of symbolized stacks keyed by their program counters.
// Most ticks see the same stacks again, so resolution is skipped for them.
//
// stackCache is not safe for concurrent use.
type stackCache struct {
	capacity int
	items    map[uint64]*list.Element
	lruList  *list.List
	buf      []byte
	hits     int64
	misses   int64
}

type cacheEntry struct {
	key    uint64
	pcs    []uintptr
	frames []stack.Frame
	// keep is false for stacks that must not be sampled.
	keep bool
}

func newStackCache(capacity int) *stackCache {
	return &stackCache{
		capacity: capacity,
		items:    make(map[uint64]*list.Element),
		lruList:  list.New(),
	}
}

func (c *stackCache) hash(pcs []uintptr) uint64 {
	c.buf = c.buf[:0]
	for _, pc := range pcs {
		c.buf = binary.LittleEndian.AppendUint64(c.buf, uint64(pc))
	}
	return xxh3.Hash(c.buf)
}

// get returns the cached resolution of pcs.
func (c *stackCache) get(key uint64, pcs []uintptr) (frames []stack.Frame, keep, ok bool) {
	elem, found := c.items[key]
	if !found {
		c.misses++
		return nil, false, false
	}
	entry := elem.Value.(*cacheEntry)
	if !slices.Equal(entry.pcs, pcs) {
		c.misses++
		return nil, false, false
	}
	c.hits++
	c.lruList.MoveToFront(elem)
	return entry.frames, entry.keep, true
}

// put stores a resolution, replacing any entry with the same key.
func (c *stackCache) put(key uint64, pcs []uintptr, frames []stack.Frame, keep bool) {
	entry := &cacheEntry{key: key, pcs: slices.Clone(pcs), frames: frames, keep: keep}
	if elem, ok := c.items[key]; ok {
		elem.Value = entry
		c.lruList.MoveToFront(elem)
		return
	}

	c.items[key] = c.lruList.PushFront(entry)
	if c.lruList.Len() > c.capacity {
		oldest := c.lruList.Back()
		c.lruList.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

func (c *stackCache) len() int {
	return c.lruList.Len()
}
