package cache

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of committed entries.
	Len int

	// Hits is the number of lookups answered with a committed value.
	Hits uint64

	// Misses is the number of lookups that handed the build to the caller.
	Misses uint64

	// Waits is the number of lookups that blocked on a peer's build.
	Waits uint64

	// Inserts is the number of committed builds.
	Inserts uint64

	// Aborts is the number of builds released without a value.
	Aborts uint64

	// Evictions is the number of entries dropped by the policy.
	Evictions uint64

	// HitRate is Hits / (Hits + Misses), or 0 if there were no lookups.
	HitRate float64
}

// Stats returns current cache statistics.
// This operation is mostly lock-free (atomic counters).
func (c *Once[K, V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Len:       c.Len(),
		Hits:      hits,
		Misses:    misses,
		Waits:     c.waits.Load(),
		Inserts:   c.inserts.Load(),
		Aborts:    c.aborts.Load(),
		Evictions: c.evictions.Load(),
		HitRate:   hitRate,
	}
}

// ResetStats resets all statistics counters to zero.
func (c *Once[K, V]) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.waits.Store(0)
	c.inserts.Store(0)
	c.aborts.Store(0)
	c.evictions.Store(0)
}
