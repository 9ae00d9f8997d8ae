package parallel

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/SJTU-IPADS/Spars-artifacts/task"
)

// ErrPoolClosed is returned by Run after Close.
var ErrPoolClosed = errors.New("parallel: pool closed")

// RenderFunc turns a task into a draw result. It runs on worker
// goroutines and must be safe for concurrent use.
type RenderFunc[R any] func(t *task.Task) (R, error)

// ConsumeFunc receives results in collection order on the goroutine that
// called Run.
type ConsumeFunc[R any] func(id uint32, r R) error

// Pool is a fixed set of worker goroutines that render the tasks of one
// frame at a time.
//
// Workers pull tasks from a Distributor and publish results to a
// Collector. The goroutine calling Run is the single consumer.
//
// Thread safety: Run and Close may be called from any goroutine; frames
// are serialized.
type Pool[R any] struct {
	// workers is the number of worker goroutines.
	workers int

	render RenderFunc[R]
	dist   *Distributor
	coll   *Collector[R]
	logger *slog.Logger

	// mu serializes frames and shutdown.
	mu sync.Mutex

	// wg waits for all workers to exit.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting frames.
	running atomic.Bool
}

// NewPool starts workers goroutines rendering with fn. If workers is 0 or
// negative, GOMAXPROCS is used. window is the collector reorder window.
func NewPool[R any](workers, window int, fn RenderFunc[R], logger *slog.Logger) *Pool[R] {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Pool[R]{
		workers: workers,
		render:  fn,
		dist:    NewDistributor(),
		coll:    NewCollector[R](window),
		logger:  logger,
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

// worker claims tasks until it receives a poison task.
func (p *Pool[R]) worker(id int) {
	defer p.wg.Done()

	for {
		t := p.dist.Next()
		if t.IsPoison() {
			p.logger.Debug("worker exiting", slog.Int("worker", id))
			return
		}
		r, err := p.render(t)
		if err != nil {
			err = fmt.Errorf("task %d (%s): %w", t.ID, t.Kind, err)
		}
		p.coll.Produce(t.ID, r, err)
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool[R]) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool accepts frames.
func (p *Pool[R]) IsRunning() bool {
	return p.running.Load()
}

// Collector exposes the pool's collector for statistics.
func (p *Pool[R]) Collector() *Collector[R] {
	return p.coll
}

// Run renders every task of list and hands each result to consume.
//
// All tasks are collected even after a failure, so no worker is left
// publishing into a stale frame. The first render or consume error is
// returned; consume is not called after it.
func (p *Pool[R]) Run(list *task.List, consume ConsumeFunc[R]) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() {
		return ErrPoolClosed
	}

	n := list.Len()
	if n == 0 {
		return nil
	}

	p.coll.Reset(list.Bounds())
	p.dist.Reset(list.Tasks)

	var first error
	for range n {
		id, r, err := p.coll.Consume()
		if first != nil {
			continue
		}
		if err != nil {
			first = err
			continue
		}
		if err := consume(id, r); err != nil {
			first = err
		}
	}
	return first
}

// Close stops the workers and waits for them to exit. It is safe to call
// Close more than once.
func (p *Pool[R]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.dist.ResetPoison(p.workers)
	p.wg.Wait()
}
