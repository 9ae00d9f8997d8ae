package parallel

import (
	"sync"
	"sync/atomic"

	"github.com/SJTU-IPADS/Spars-artifacts/task"
)

// batch is one published task list together with its claim cursor.
// Every Reset publishes a fresh batch, so a stale cursor increment can
// never index into a newer list.
type batch struct {
	tasks  []*task.Task
	cursor atomic.Int64
}

func (b *batch) claim() (*task.Task, bool) {
	idx := b.cursor.Add(1) - 1
	if idx < int64(len(b.tasks)) {
		return b.tasks[idx], true
	}
	return nil, false
}

// Distributor hands the tasks of a frame to worker goroutines.
//
// Next claims tasks with an atomic fetch-add and takes no lock while tasks
// remain. Once a list is exhausted, callers park on a condition variable
// until Reset publishes the next one. Each task of a list is returned by
// exactly one Next call.
//
// Thread safety: Next is safe for concurrent use. Reset and ResetPoison
// are called by a single frame driver.
type Distributor struct {
	mu   sync.Mutex
	cond *sync.Cond
	cur  atomic.Pointer[batch]
}

// NewDistributor creates a distributor with an empty task list.
func NewDistributor() *Distributor {
	d := &Distributor{}
	d.cond = sync.NewCond(&d.mu)
	d.cur.Store(&batch{})
	return d
}

// Reset publishes tasks and wakes every parked worker.
func (d *Distributor) Reset(tasks []*task.Task) {
	d.mu.Lock()
	d.cur.Store(&batch{tasks: tasks})
	d.cond.Broadcast()
	d.mu.Unlock()
}

// ResetPoison publishes n poison tasks, one per worker.
func (d *Distributor) ResetPoison(n int) {
	tasks := make([]*task.Task, n)
	for i := range tasks {
		tasks[i] = task.Poison()
	}
	d.Reset(tasks)
}

// Next returns the next unclaimed task, blocking until one is published.
func (d *Distributor) Next() *task.Task {
	if t, ok := d.cur.Load().claim(); ok {
		return t
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if t, ok := d.cur.Load().claim(); ok {
			return t
		}
		d.cond.Wait()
	}
}
