package querycache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the default, process-local backend.
type MemoryCache struct {
	mu  sync.RWMutex
	m   map[string]entry
	ttl time.Duration
	now func() time.Time

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		m:   make(map[string]entry),
		ttl: ttl,
		now: time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.m[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	e := entry{value: append([]byte(nil), value...)}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.m[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
	return nil
}

// StartCleanup sweeps expired entries every interval until Close.
func (c *MemoryCache) StartCleanup(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCleanup != nil || interval <= 0 {
		return
	}
	c.stopCleanup = make(chan struct{})

	c.wg.Add(1)
	go c.cleanupLoop(interval, c.stopCleanup)
}

func (c *MemoryCache) Close() {
	c.mu.Lock()
	stop := c.stopCleanup
	c.stopCleanup = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	c.wg.Wait()
}

func (c *MemoryCache) cleanupLoop(interval time.Duration, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.expire()
		case <-stop:
			return
		}
	}
}

func (c *MemoryCache) expire() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.m {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(c.m, key)
		}
	}
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
