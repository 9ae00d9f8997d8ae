package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Options configures a Once cache.
type Options[K comparable, V any] struct {
	// Name labels the cache in panics, errors and observer events.
	Name string

	// Policy selects eviction victims. Nil means unbounded.
	Policy Policy[K]

	// Release is called for every value that leaves the cache, either
	// through eviction or Close. It runs without any cache lock held.
	Release func(K, V)

	// Observer receives hit/miss/wait/insert/abort/evict events.
	Observer Observer
}

// Once is a sharded, thread-safe, build-once cache.
//
// Every key moves through at most two states: preparing (a single caller is
// constructing the value) and committed. Find on a committed key is a read
// lock and a map lookup. Find on a preparing key blocks until the builder
// calls Insert or Abort.
//
// The zero value is not usable; create caches with New.
type Once[K comparable, V any] struct {
	shards   [DefaultShardCount]*onceShard[K, V]
	hasher   Hasher[K]
	name     string
	policy   Policy[K]
	release  func(K, V)
	observer Observer

	// Statistics (atomic for zero-allocation reads)
	hits      atomic.Uint64
	misses    atomic.Uint64
	waits     atomic.Uint64
	inserts   atomic.Uint64
	aborts    atomic.Uint64
	evictions atomic.Uint64
}

// onceShard is a single shard of the cache.
// The condition variable is bound to the shard's write lock and is
// broadcast whenever a key in the shard leaves the preparing set.
type onceShard[K comparable, V any] struct {
	mu        sync.RWMutex
	cond      *sync.Cond
	entries   map[K]V
	preparing map[K]struct{}

	// waiters counts callers blocked on a preparing key.
	waiters map[K]int

	// orphaned holds keys that left the preparing set (or were evicted)
	// without a reachable value while callers were waiting on them. The
	// first waiter to wake takes over the build.
	orphaned map[K]struct{}
}

// New creates an empty cache. The hasher selects the shard for each key.
func New[K comparable, V any](hasher Hasher[K], opts Options[K, V]) *Once[K, V] {
	name := opts.Name
	if name == "" {
		name = "cache"
	}
	c := &Once[K, V]{
		hasher:   hasher,
		name:     name,
		policy:   opts.Policy,
		release:  opts.Release,
		observer: opts.Observer,
	}
	for i := range c.shards {
		s := &onceShard[K, V]{
			entries:   make(map[K]V),
			preparing: make(map[K]struct{}),
			waiters:   make(map[K]int),
			orphaned:  make(map[K]struct{}),
		}
		s.cond = sync.NewCond(&s.mu)
		c.shards[i] = s
	}
	return c
}

// Name returns the cache label.
func (c *Once[K, V]) Name() string {
	return c.name
}

// getShard returns the shard for a given key.
func (c *Once[K, V]) getShard(key K) *onceShard[K, V] {
	return c.shards[c.hasher(key)&shardMask]
}

// Find returns the committed value for key.
//
// If the key is committed, Find returns (value, true). If another caller is
// building the key, Find blocks until that build completes and then returns
// the committed value. Otherwise Find marks the key as preparing and returns
// (zero, false): the caller now owns the build and must finish it with
// Insert or Abort.
//
// Find panics if a build it waited on completed without committing a value
// and without being aborted, since no valid state explains that outcome.
func (c *Once[K, V]) Find(key K) (V, bool) {
	s := c.getShard(key)

	// Fast path: read lock on the committed map
	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		c.hit(key)
		return v, true
	}

	s.mu.Lock()
	// Re-check after acquiring write lock (may have been committed)
	if v, ok := s.entries[key]; ok {
		s.mu.Unlock()
		c.hit(key)
		return v, true
	}

	if _, busy := s.preparing[key]; !busy {
		s.preparing[key] = struct{}{}
		delete(s.orphaned, key)
		s.mu.Unlock()
		c.miss()
		var zero V
		return zero, false
	}

	c.waits.Add(1)
	c.emit(EventWait)
	s.waiters[key]++
	for {
		s.cond.Wait()
		if _, busy := s.preparing[key]; !busy {
			break
		}
	}
	if s.waiters[key]--; s.waiters[key] == 0 {
		delete(s.waiters, key)
	}

	if v, ok := s.entries[key]; ok {
		s.mu.Unlock()
		c.hit(key)
		return v, true
	}
	if _, ok := s.orphaned[key]; ok {
		// The build was abandoned. This caller becomes the new builder;
		// remaining waiters keep waiting on it.
		delete(s.orphaned, key)
		s.preparing[key] = struct{}{}
		s.mu.Unlock()
		c.miss()
		var zero V
		return zero, false
	}
	s.mu.Unlock()
	panic(fmt.Sprintf("cache %s: key %v not committed after its build finished", c.name, key))
}

// Insert commits value for key, removes the key from the preparing set and
// wakes every caller waiting on the shard.
//
// Insert panics if the key already holds a committed value: a key is built
// at most once.
func (c *Once[K, V]) Insert(key K, value V) {
	s := c.getShard(key)

	s.mu.Lock()
	if _, dup := s.entries[key]; dup {
		s.mu.Unlock()
		panic(fmt.Sprintf("cache %s: key %v committed twice", c.name, key))
	}
	delete(s.preparing, key)
	s.entries[key] = value
	s.mu.Unlock()
	s.cond.Broadcast()

	c.inserts.Add(1)
	c.emit(EventInsert)

	if c.policy != nil {
		c.evict(c.policy.Admitted(key))
	}
}

// Abort releases a key reserved by Find without committing a value.
// One waiter, if any, takes over the build; otherwise the next Find on the
// key becomes the builder.
func (c *Once[K, V]) Abort(key K) {
	s := c.getShard(key)

	s.mu.Lock()
	if _, busy := s.preparing[key]; !busy {
		s.mu.Unlock()
		return
	}
	delete(s.preparing, key)
	if s.waiters[key] > 0 {
		s.orphaned[key] = struct{}{}
	}
	s.mu.Unlock()
	s.cond.Broadcast()

	c.aborts.Add(1)
	c.emit(EventAbort)
}

// Get returns the value for key, calling build if this caller is the first
// to miss it. A failed or panicking build is aborted so waiters are not
// stranded, and the build error is returned wrapped.
func (c *Once[K, V]) Get(key K, build func(K) (V, error)) (V, error) {
	if v, ok := c.Find(key); ok {
		return v, nil
	}

	committed := false
	defer func() {
		if !committed {
			c.Abort(key)
		}
	}()

	v, err := build(key)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("%s %v: %w", c.name, key, err)
	}
	c.Insert(key, v)
	committed = true
	return v, nil
}

// Remove drops the committed value for key and returns it. The release
// function is not called: the caller now owns the value. Keys still being
// built are not affected.
func (c *Once[K, V]) Remove(key K) (V, bool) {
	s := c.getShard(key)
	s.mu.Lock()
	v, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
		if s.waiters[key] > 0 {
			s.orphaned[key] = struct{}{}
		}
	}
	s.mu.Unlock()
	if ok && c.policy != nil {
		c.policy.Forget(key)
	}
	return v, ok
}

// Peek returns the committed value without reserving the key on a miss.
func (c *Once[K, V]) Peek(key K) (V, bool) {
	s := c.getShard(key)
	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()
	return v, ok
}

// Preparing reports whether key is currently being built.
func (c *Once[K, V]) Preparing(key K) bool {
	s := c.getShard(key)
	s.mu.RLock()
	_, ok := s.preparing[key]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of committed entries across all shards.
func (c *Once[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// Range calls fn for every committed entry until fn returns false.
// fn runs with the shard read lock held and must not call back into the
// cache.
func (c *Once[K, V]) Range(fn func(K, V) bool) {
	for _, s := range c.shards {
		s.mu.RLock()
		for k, v := range s.entries {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Close drops every committed value, passing each to the release function.
// Keys still being built are left alone; their builders may insert after
// Close, and the cache remains usable.
func (c *Once[K, V]) Close() {
	type kv struct {
		k K
		v V
	}
	var dropped []kv
	for _, s := range c.shards {
		s.mu.Lock()
		for k, v := range s.entries {
			dropped = append(dropped, kv{k, v})
		}
		s.entries = make(map[K]V)
		s.mu.Unlock()
	}
	for _, e := range dropped {
		if c.policy != nil {
			c.policy.Forget(e.k)
		}
		if c.release != nil {
			c.release(e.k, e.v)
		}
	}
}

// evict removes the policy's victims. Each victim's shard is locked on its
// own so no two shard locks are ever held together.
func (c *Once[K, V]) evict(victims []K) {
	for _, key := range victims {
		s := c.getShard(key)
		s.mu.Lock()
		v, ok := s.entries[key]
		if ok {
			delete(s.entries, key)
			if s.waiters[key] > 0 {
				s.orphaned[key] = struct{}{}
			}
		}
		s.mu.Unlock()
		if !ok {
			continue
		}
		c.evictions.Add(1)
		c.emit(EventEvict)
		if c.release != nil {
			c.release(key, v)
		}
	}
}

func (c *Once[K, V]) hit(key K) {
	c.hits.Add(1)
	c.emit(EventHit)
	if c.policy != nil {
		c.policy.Touched(key)
	}
}

func (c *Once[K, V]) miss() {
	c.misses.Add(1)
	c.emit(EventMiss)
}

func (c *Once[K, V]) emit(ev Event) {
	if c.observer != nil {
		c.observer.Observe(c.name, ev)
	}
}
