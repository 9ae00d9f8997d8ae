package cache

// Policy decides which committed keys a cache may drop.
//
// Admitted is called after a key is committed and returns the keys that
// should be evicted as a result. Touched is called on every hit. Forget is
// called when a key leaves the cache for any other reason (Close). All
// methods may be called concurrently.
//
// A nil Policy means the cache grows without bound.
type Policy[K comparable] interface {
	Admitted(key K) (victims []K)
	Touched(key K)
	Forget(key K)
}

// Event identifies a cache occurrence reported to an Observer.
type Event uint8

const (
	// EventHit is a lookup served from the committed map, including
	// lookups that waited for a peer's build.
	EventHit Event = iota
	// EventMiss is a lookup that made the caller responsible for a build.
	EventMiss
	// EventWait is a lookup that blocked on a peer's in-flight build.
	EventWait
	// EventInsert is a committed build.
	EventInsert
	// EventAbort is a build released without a value.
	EventAbort
	// EventEvict is a committed value dropped by the policy.
	EventEvict
)

// String returns the event name used as a metric label.
func (e Event) String() string {
	switch e {
	case EventHit:
		return "hit"
	case EventMiss:
		return "miss"
	case EventWait:
		return "wait"
	case EventInsert:
		return "insert"
	case EventAbort:
		return "abort"
	case EventEvict:
		return "evict"
	default:
		return "unknown"
	}
}

// Observer receives cache events, typically to feed metrics.
// Implementations must be safe for concurrent use and must not call back
// into the cache.
type Observer interface {
	Observe(cache string, ev Event)
}
