package target

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache 进程内 LRU 缓存，作为缓存场景的默认被测对象。
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
	now      func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// CacheStats 缓存统计
type CacheStats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRatio 返回 0-1 之间的命中率。
func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewMemoryCache 创建容量为 capacity 的 LRU 缓存。
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Execute 处理 CacheGet/CacheSet/CacheDelete。
func (c *MemoryCache) Execute(ctx context.Context, op Operation) Result {
	if err := ctx.Err(); err != nil {
		return Fail("canceled", err)
	}
	switch o := op.(type) {
	case CacheGet:
		v, ok := c.Get(o.Key)
		return Result{Success: true, Hit: ok, Bytes: int64(len(v))}
	case CacheSet:
		c.Set(o.Key, o.Value, o.TTL)
		return Result{Success: true, Bytes: int64(len(o.Value))}
	case CacheDelete:
		c.Delete(o.Key)
		return OK()
	default:
		return unsupported(op)
	}
}

// Get 读取 key。
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return entry.value, true
}

// Set 写入 key，超出容量时淘汰最久未使用的条目。
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&cacheEntry{key: key, value: value, expiresAt: expiresAt})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
		c.evictions.Add(1)
	}
}

// Delete 删除 key。
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

// Stats 返回统计信息。
func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	size := c.order.Len()
	c.mu.Unlock()
	return CacheStats{
		Size:      size,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
