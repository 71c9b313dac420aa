package collector

import (
	"math"
	"sync"
	"time"
)

// valueCache remembers the last forwarded value per key for a TTL so that
// unchanged readings are not re-ingested on every poll.
type valueCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]cached
}

type cached struct {
	v  float64
	at time.Time
}

func newValueCache(ttl time.Duration) *valueCache {
	return &valueCache{ttl: ttl, now: time.Now, data: make(map[string]cached, 256)}
}

// seen reports whether v equals the unexpired cached value for key.
// Otherwise it stores v and returns false.
func (c *valueCache) seen(key string, v float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.data[key]; ok && now.Sub(e.at) <= c.ttl && floatsEqual(e.v, v) {
		return true
	}
	c.data[key] = cached{v: v, at: now}
	return false
}

func floatsEqual(a, b float64) bool {
	const eps = 1e-9
	return math.Abs(a-b) <= eps*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
