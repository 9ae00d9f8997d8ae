package parallel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/SJTU-IPADS/Spars-artifacts/geom"
)

// DefaultReorderWindow is how far past the next expected task the
// collector looks for a result it may deliver early.
const DefaultReorderWindow = 3

// Per-task collection states.
const (
	statusPending uint32 = iota // being rendered
	statusReady                 // produced, not yet consumed
	statusTaken                 // delivered to the consumer
)

// Collector reassembles the results of a frame's tasks, produced in any
// order by workers, into a sequence a single consumer can record.
//
// Results are delivered in task ID order, except that a ready task within
// the reorder window may be delivered ahead of earlier tasks when its
// bounds overlap none of the earlier tasks that are still outstanding.
// Such tasks paint disjoint pixels, so either order gives the same image.
//
// Thread safety: Produce is safe for concurrent use by workers. Reset and
// Consume must be called from the single consumer goroutine.
type Collector[R any] struct {
	window int

	bounds  []geom.Rect
	results []R
	errs    []error
	status  []atomic.Uint32
	next    int
	taken   int

	rendered atomic.Int64

	mu         sync.Mutex
	cond       *sync.Cond
	maybeReady bool

	early atomic.Int64
	waits atomic.Int64
}

// NewCollector creates a collector with the given reorder window.
// A window <= 0 means DefaultReorderWindow; a window of 1 disables
// out-of-order delivery.
func NewCollector[R any](window int) *Collector[R] {
	if window <= 0 {
		window = DefaultReorderWindow
	}
	c := &Collector[R]{window: window}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Window returns the reorder window.
func (c *Collector[R]) Window() int {
	return c.window
}

// Reset prepares the collector for a frame whose task i has bounds[i].
// It must not be called while the previous frame has results outstanding.
func (c *Collector[R]) Reset(bounds []geom.Rect) {
	n := len(bounds)
	c.bounds = bounds
	c.results = make([]R, n)
	c.errs = make([]error, n)
	c.status = make([]atomic.Uint32, n)
	c.next = 0
	c.taken = 0
	c.rendered.Store(0)

	c.mu.Lock()
	c.maybeReady = false
	c.mu.Unlock()
}

// Len returns the number of tasks in the current frame.
func (c *Collector[R]) Len() int {
	return len(c.status)
}

// Produce publishes the result of task id. A non-nil err is handed to the
// consumer in place of the result.
func (c *Collector[R]) Produce(id uint32, r R, err error) {
	if int(id) >= len(c.status) {
		panic(fmt.Sprintf("collector: produce task %d out of range [0,%d)", id, len(c.status)))
	}
	c.results[id] = r
	c.errs[id] = err
	// Counted before the result becomes visible, so a consumer that sees
	// READY also sees the count and the frame drains with rendered == Len.
	c.rendered.Add(1)
	if !c.status[id].CompareAndSwap(statusPending, statusReady) {
		panic(fmt.Sprintf("collector: task %d produced twice", id))
	}

	c.mu.Lock()
	c.maybeReady = true
	c.cond.Signal()
	c.mu.Unlock()
}

// Consume returns the next deliverable result and its task ID, blocking
// until one is available. It must be called exactly Len times per frame;
// an extra call panics.
func (c *Collector[R]) Consume() (uint32, R, error) {
	if c.taken >= len(c.status) {
		panic(fmt.Sprintf("collector: consume past end of frame (%d tasks)", len(c.status)))
	}
	for {
		if id, ok := c.poll(); ok {
			return c.take(id)
		}

		c.mu.Lock()
		for !c.maybeReady {
			c.waits.Add(1)
			c.cond.Wait()
		}
		c.maybeReady = false
		c.mu.Unlock()
	}
}

// poll picks the task to deliver now, if any, without blocking. At least
// one task must still be outstanding.
func (c *Collector[R]) poll() (int, bool) {
	for {
		switch c.status[c.next].Load() {
		case statusReady:
			id := c.next
			c.next++
			return id, true

		case statusTaken:
			// Delivered early; skip it.
			c.next++

		default:
			id, ok := c.earlyCandidate()
			if ok {
				c.early.Add(1)
			}
			return id, ok
		}
	}
}

// earlyCandidate scans the reorder window for a ready task whose bounds
// overlap none of the outstanding tasks before it. The scan only runs
// while the number of rendered tasks says one could be in the window.
func (c *Collector[R]) earlyCandidate() (int, bool) {
	rendered := c.rendered.Load()
	next := int64(c.next)
	if rendered <= next || rendered > next+int64(c.window) {
		return 0, false
	}

	var obstacles []geom.Rect
	end := min(c.next+c.window, len(c.status))
	for i := c.next; i < end; i++ {
		if c.status[i].Load() != statusReady {
			obstacles = append(obstacles, c.bounds[i])
			continue
		}
		for _, o := range obstacles {
			if o.Overlaps(c.bounds[i]) {
				return 0, false
			}
		}
		return i, true
	}
	return 0, false
}

func (c *Collector[R]) take(id int) (uint32, R, error) {
	c.status[id].Store(statusTaken)
	c.taken++
	r, err := c.results[id], c.errs[id]
	var zero R
	c.results[id] = zero
	return uint32(id), r, err //nolint:gosec // id < task count
}

// EarlyTakes returns the number of results delivered ahead of their turn
// since the collector was created.
func (c *Collector[R]) EarlyTakes() int64 {
	return c.early.Load()
}

// Waits returns the number of times the consumer blocked.
func (c *Collector[R]) Waits() int64 {
	return c.waits.Load()
}
