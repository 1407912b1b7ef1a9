package geo

import "sync"

type pair struct {
	a, b Point
}

// DistanceCache memoizes DistanceMeters for callers that re-evaluate the
// same pairs on every tick. Entries are dropped wholesale once the cache
// reaches its capacity.
type DistanceCache struct {
	mu       sync.Mutex
	entries  map[pair]float64
	capacity int
}

func NewDistanceCache(capacity int) *DistanceCache {
	if capacity < 1 {
		capacity = 1
	}
	return &DistanceCache{
		entries:  make(map[pair]float64, capacity),
		capacity: capacity,
	}
}

func (c *DistanceCache) Distance(a, b Point) float64 {
	// distance is symmetric, store one orientation only
	key := pair{a, b}
	if b.Lat < a.Lat || (b.Lat == a.Lat && b.Lon < a.Lon) {
		key = pair{b, a}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.entries[key]; ok {
		return d
	}
	if len(c.entries) >= c.capacity {
		clear(c.entries)
	}
	d := DistanceMeters(key.a, key.b)
	c.entries[key] = d
	return d
}

func (c *DistanceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
