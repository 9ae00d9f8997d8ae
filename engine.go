package spars

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/SJTU-IPADS/Spars-artifacts/internal/parallel"
	"github.com/SJTU-IPADS/Spars-artifacts/render"
	"github.com/SJTU-IPADS/Spars-artifacts/scene"
	"github.com/SJTU-IPADS/Spars-artifacts/task"
)

// FrameStats describes one rendered frame.
type FrameStats struct {
	// Frame is the engine's frame counter, starting at 1.
	Frame uint64
	// Slot is the frame buffer slot the frame's buffers live in.
	Slot int

	// Animated is the number of animations that moved their node.
	Animated int

	Cmds   int // draw commands batched
	Tasks  int // tasks after batching
	Merged int // commands merged into an earlier task
	Draws  int // indexed draws recorded

	// EarlyTakes counts tasks collected ahead of an earlier outstanding
	// task; Waits counts times the consumer blocked.
	EarlyTakes int64
	Waits      int64

	// Released is the number of evicted GPU objects destroyed after the
	// frame was submitted.
	Released int

	Duration time.Duration
}

// EngineStats is a snapshot of engine counters.
type EngineStats struct {
	Frames    uint64
	Last      FrameStats
	Resources render.ResourceStats
}

// Engine renders scene trees with a pool of worker goroutines.
//
// Each frame is batched into draw tasks, handed to workers through a
// distributor, and collected back by the calling goroutine, which records
// the draws in order (or early, for tasks that overlap nothing still
// outstanding). GPU objects shared between tasks are built once through
// render.Resources.
//
// Thread safety: RenderFrame calls are serialized. Stats and Close may be
// called from any goroutine.
type Engine struct {
	id   string
	log  *slog.Logger
	opts engineOptions

	res      *render.Resources
	bufs     *render.FrameBuffers
	renderer *render.Renderer
	batcher  task.Batcher
	pool     *parallel.Pool[render.DrawResource]

	metrics  *metrics
	gatherer prometheus.Gatherer

	// slot is the frame buffer slot of the frame being rendered. Workers
	// read it after the frame's tasks are published.
	slot atomic.Int32

	// mu serializes frames and shutdown.
	mu     sync.Mutex
	frames uint64
	last   FrameStats
	closed atomic.Bool
}

// NewEngine creates an engine and starts its workers.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	logger := o.logger
	if logger == nil {
		logger = Logger()
	}
	logger = logger.With(slog.String("engine", id))

	if o.device == nil {
		logger.Info("no device configured, using null device")
		o.device = render.NewNullDevice()
	}

	var gatherer prometheus.Gatherer
	if o.registry == nil {
		reg := prometheus.NewRegistry()
		o.registry, gatherer = reg, reg
	} else if g, ok := o.registry.(prometheus.Gatherer); ok {
		gatherer = g
	}
	m := newMetrics(o.registry, id)

	res, err := render.NewResources(o.device, render.ResourceOptions{
		Logger:        logger,
		Observer:      m,
		AssetRoot:     o.assetRoot,
		Fonts:         o.fonts,
		ImageCapacity: o.imageCapacity,
		AtlasCapacity: o.atlasCapacity,
	})
	if err != nil {
		m.unregister()
		return nil, fmt.Errorf("spars: %w", err)
	}

	e := &Engine{
		id:       id,
		log:      logger,
		opts:     o,
		res:      res,
		bufs:     render.NewFrameBuffers(o.device, o.frameSlots),
		batcher:  task.Batcher{Lookback: o.lookback, Logger: logger},
		metrics:  m,
		gatherer: gatherer,
	}
	e.renderer = render.NewRenderer(res, e.bufs, o.viewport, logger)
	e.pool = parallel.NewPool(o.workers, o.window, e.draw, logger)

	logger.Info("engine created",
		slog.Int("workers", e.pool.Workers()),
		slog.Int("lookback", o.lookback),
		slog.Int("window", o.window),
		slog.Int("frame_slots", e.bufs.Slots()))
	return e, nil
}

// draw runs on worker goroutines.
func (e *Engine) draw(t *task.Task) (render.DrawResource, error) {
	return e.renderer.Draw(t, int(e.slot.Load()))
}

// ID returns the engine's instance ID, used as the engine log attribute
// and metric label.
func (e *Engine) ID() string { return e.id }

// Workers returns the number of worker goroutines.
func (e *Engine) Workers() int { return e.pool.Workers() }

// Resources returns the engine's resource caches.
func (e *Engine) Resources() *render.Resources { return e.res }

// Gatherer returns the registry the engine's metrics can be gathered from,
// or nil when WithRegistry was given a Registerer that is not a Gatherer.
func (e *Engine) Gatherer() prometheus.Gatherer { return e.gatherer }

// Warmup builds the pipeline of every primitive kind concurrently, so the
// first frame does not pay for pipeline creation.
func (e *Engine) Warmup(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range scene.Kinds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := e.res.Pipeline(kind); err != nil {
				return fmt.Errorf("spars: warm up %s pipeline: %w", kind, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.log.Info("pipelines warmed up", slog.Int("kinds", len(scene.Kinds)))
	return nil
}

// RenderFrame renders the scene rooted at root into rec.
//
// Animations registered with WithAnimations are stepped first. The scene
// is then batched into tasks, which workers turn into draw resources while
// the calling goroutine records them. A nil root renders an empty frame.
//
// The frame is always ended on rec, even when a task fails or ctx is
// cancelled, so rec is ready for the next frame. The first task error is
// returned; later draws of the frame are not recorded.
func (e *Engine) RenderFrame(ctx context.Context, root *scene.Node, rec render.Recorder) (FrameStats, error) {
	if rec == nil {
		return FrameStats{}, ErrNilRecorder
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return FrameStats{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return FrameStats{}, err
	}

	start := time.Now()
	e.frames++
	st := FrameStats{Frame: e.frames, Slot: int((e.frames - 1) % uint64(e.bufs.Slots()))}

	st.Animated = e.opts.animations.Step(start)
	list := e.batcher.Build(root)
	st.Cmds, st.Tasks, st.Merged = list.Cmds, list.Len(), list.Merged

	e.bufs.ResetFrame(st.Slot)
	e.slot.Store(int32(st.Slot))

	coll := e.pool.Collector()
	early0, waits0 := coll.EarlyTakes(), coll.Waits()

	var err error
	if err = rec.Begin(e.renderer.Viewport()); err != nil {
		return st, e.frameFailed(st, fmt.Errorf("spars: frame %d: begin: %w", st.Frame, err))
	}
	enc := render.NewEncoder(rec)
	err = e.pool.Run(list, func(_ uint32, d render.DrawResource) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		enc.Encode(d)
		return nil
	})
	endErr := rec.End()
	st.Released = e.res.FlushReleased()

	st.Draws = enc.Draws()
	st.EarlyTakes = coll.EarlyTakes() - early0
	st.Waits = coll.Waits() - waits0
	st.Duration = time.Since(start)
	e.last = st
	e.observe(st)

	switch {
	case err != nil:
		return st, e.frameFailed(st, fmt.Errorf("spars: frame %d: %w", st.Frame, err))
	case endErr != nil:
		return st, e.frameFailed(st, fmt.Errorf("spars: frame %d: end: %w", st.Frame, endErr))
	}

	e.log.Debug("frame rendered",
		slog.Uint64("frame", st.Frame),
		slog.Int("tasks", st.Tasks),
		slog.Int("merged", st.Merged),
		slog.Int64("early", st.EarlyTakes),
		slog.Duration("duration", st.Duration))
	return st, nil
}

func (e *Engine) frameFailed(st FrameStats, err error) error {
	e.metrics.frameErrors.Inc()
	e.log.Error("frame failed", slog.Uint64("frame", st.Frame), slog.Any("err", err))
	return err
}

func (e *Engine) observe(st FrameStats) {
	m := e.metrics
	m.frames.Inc()
	m.tasks.Observe(float64(st.Tasks))
	m.merged.Add(float64(st.Merged))
	m.early.Add(float64(st.EarlyTakes))
	m.waits.Add(float64(st.Waits))
	m.released.Add(float64(st.Released))
	m.duration.Observe(st.Duration.Seconds())

	rs := e.res.Stats()
	m.cacheSize.WithLabelValues(render.CachePipelines).Set(float64(rs.Pipelines.Len))
	m.cacheSize.WithLabelValues(render.CacheImages).Set(float64(rs.Images.Len))
	m.cacheSize.WithLabelValues(render.CacheAtlases).Set(float64(rs.Atlases.Len))
	m.cacheSize.WithLabelValues(render.CacheDescriptors).Set(float64(rs.Descriptors.Len))
}

// Stats returns the engine's counters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineStats{Frames: e.frames, Last: e.last, Resources: e.res.Stats()}
}

// Close stops the workers and destroys every GPU object the engine
// created. It waits for a frame in progress. Calling Close again is a
// no-op.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pool.Close()
	e.res.Close()
	e.bufs.Close()
	e.metrics.unregister()
	e.log.Info("engine closed", slog.Uint64("frames", e.frames))
	return nil
}
