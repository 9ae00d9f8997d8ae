// Package cache provides the keyed build-once cache shared by every GPU
// resource manager.
//
// A [Once] maps a key to a value that is constructed exactly once for the
// lifetime of the cache. The first caller that misses a key becomes its
// builder; concurrent callers asking for the same key block until the
// builder commits the value with [Once.Insert] and then observe that same
// value. Construction itself runs outside any cache lock, so a slow build
// only stalls the callers waiting on that particular key.
//
//	pipelines := cache.New[Kind, PipelineID](cache.Uint64Hasher, cache.Options[Kind, PipelineID]{Name: "pipeline"})
//	if id, ok := pipelines.Find(kind); ok {
//	    return id
//	}
//	id := buildPipeline(kind) // this caller owns the build
//	pipelines.Insert(kind, id)
//
// [Once.Get] wraps the find/build/insert sequence and releases the key with
// [Once.Abort] when the build fails, so waiters are not stranded.
//
// # Sharding
//
// Keys are spread over 16 shards, each with its own RWMutex and condition
// variable. Hits take only a shard read lock.
//
// # Eviction
//
// Caches grow without bound unless a [Policy] is installed. [LRU] is the
// bundled policy; any other policy can be plugged in through [Options].
package cache
