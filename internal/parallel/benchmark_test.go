package parallel

import (
	"sync"
	"testing"

	"github.com/SJTU-IPADS/Spars-artifacts/geom"
	"github.com/SJTU-IPADS/Spars-artifacts/task"
)

func noop(*task.Task) (uint32, error) { return 0, nil }

func discard(uint32, uint32) error { return nil }

// =============================================================================
// Component Benchmarks - Pool
// =============================================================================

// BenchmarkPool_Create benchmarks starting and stopping a pool.
func BenchmarkPool_Create(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		p := NewPool(0, 0, noop, nil) // Use GOMAXPROCS
		p.Close()
	}
}

func benchmarkPoolRun(b *testing.B, n int, fn RenderFunc[uint32]) {
	p := NewPool(0, 0, fn, nil)
	defer p.Close()
	list := makeList(n)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := p.Run(list, discard); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPool_Run_10 benchmarks a frame of 10 tasks.
func BenchmarkPool_Run_10(b *testing.B) { benchmarkPoolRun(b, 10, noop) }

// BenchmarkPool_Run_100 benchmarks a frame of 100 tasks.
func BenchmarkPool_Run_100(b *testing.B) { benchmarkPoolRun(b, 100, noop) }

// BenchmarkPool_Run_1000 benchmarks a frame of 1000 tasks.
func BenchmarkPool_Run_1000(b *testing.B) { benchmarkPoolRun(b, 1000, noop) }

// BenchmarkPool_Run_WithWork benchmarks frames whose tasks do real work.
func BenchmarkPool_Run_WithWork(b *testing.B) {
	// Simulate vertex generation.
	benchmarkPoolRun(b, 100, func(t *task.Task) (uint32, error) {
		buf := make([]float32, 4096)
		for i := range buf {
			buf[i] = float32(i) * t.Bounds.W
		}
		return uint32(len(buf)), nil
	})
}

// =============================================================================
// Component Benchmarks - Distributor
// =============================================================================

// BenchmarkDistributor_Next benchmarks claiming tasks from several workers.
func BenchmarkDistributor_Next(b *testing.B) {
	const workers = 4
	d := NewDistributor()
	tasks := makeTasks(b.N)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for !d.Next().IsPoison() {
			}
		}()
	}

	b.ReportAllocs()
	b.ResetTimer()

	d.Reset(tasks)
	// Poison is published behind the real tasks once they are gone.
	for {
		if cur := d.cur.Load(); cur.cursor.Load() >= int64(len(tasks)) {
			break
		}
	}
	b.StopTimer()
	d.ResetPoison(workers)
	wg.Wait()
}

// =============================================================================
// Component Benchmarks - Collector
// =============================================================================

// BenchmarkCollector_InOrder benchmarks producing and consuming a frame in
// ID order on one goroutine.
func BenchmarkCollector_InOrder(b *testing.B) {
	bounds := make([]geom.Rect, 256)
	c := NewCollector[uint32](0)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.Reset(bounds)
		for id := range uint32(len(bounds)) {
			c.Produce(id, id, nil)
			c.Consume()
		}
	}
}

// BenchmarkCollector_Reversed benchmarks a frame produced back to front
// before the consumer starts.
func BenchmarkCollector_Reversed(b *testing.B) {
	bounds := make([]geom.Rect, 256)
	for i := range bounds {
		bounds[i] = geom.XYWH(float32(i)*20, 0, 10, 10)
	}
	c := NewCollector[uint32](0)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.Reset(bounds)
		for id := len(bounds) - 1; id >= 0; id-- {
			c.Produce(uint32(id), 0, nil)
		}
		for range bounds {
			c.Consume()
		}
	}
}
