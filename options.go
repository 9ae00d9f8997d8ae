package spars

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SJTU-IPADS/Spars-artifacts/internal/parallel"
	"github.com/SJTU-IPADS/Spars-artifacts/render"
	"github.com/SJTU-IPADS/Spars-artifacts/scene"
	"github.com/SJTU-IPADS/Spars-artifacts/task"
)

// EngineOption configures an Engine during creation.
//
// Example:
//
//	// Null device, one worker per CPU
//	e, err := spars.NewEngine()
//
//	// Host GPU device, fixed worker count
//	e, err := spars.NewEngine(spars.WithDevice(dev), spars.WithWorkers(4))
type EngineOption func(*engineOptions)

// engineOptions holds optional configuration for Engine creation.
type engineOptions struct {
	workers    int
	lookback   int
	window     int
	frameSlots int

	device   render.Device
	registry prometheus.Registerer
	logger   *slog.Logger
	viewport render.Viewport

	fonts         render.FontResolver
	assetRoot     string
	imageCapacity int
	atlasCapacity int

	animations *scene.Animations
}

// defaultOptions returns the default engine options.
func defaultOptions() engineOptions {
	return engineOptions{
		workers:    0, // GOMAXPROCS
		lookback:   task.DefaultLookback,
		window:     parallel.DefaultReorderWindow,
		frameSlots: render.DefaultFrameSlots,
		viewport:   render.Viewport{Width: 1080, Height: 1920},
	}
}

// WithWorkers sets the number of worker goroutines. Zero or negative uses
// GOMAXPROCS.
func WithWorkers(n int) EngineOption {
	return func(o *engineOptions) {
		o.workers = n
	}
}

// WithBatchLookback sets how many tasks the batcher scans backward for a
// merge target.
func WithBatchLookback(n int) EngineOption {
	return func(o *engineOptions) {
		if n > 0 {
			o.lookback = n
		}
	}
}

// WithReorderWindow sets how far ahead of the next in-order task the
// collector may take a finished, non-overlapping task.
func WithReorderWindow(n int) EngineOption {
	return func(o *engineOptions) {
		if n > 0 {
			o.window = n
		}
	}
}

// WithFrameSlots sets how many frames of vertex and index buffers stay
// alive. Two lets the GPU read one frame while the next is built.
func WithFrameSlots(n int) EngineOption {
	return func(o *engineOptions) {
		if n > 0 {
			o.frameSlots = n
		}
	}
}

// WithDevice sets the device GPU objects are created on. Without it the
// engine uses a render.NullDevice.
func WithDevice(dev render.Device) EngineOption {
	return func(o *engineOptions) {
		o.device = dev
	}
}

// WithRegistry registers the engine's metrics on reg. Without it metrics
// go to a private registry returned by Engine.Registry.
func WithRegistry(reg prometheus.Registerer) EngineOption {
	return func(o *engineOptions) {
		o.registry = reg
	}
}

// WithLogger sets the engine's logger. Without it the engine uses Logger().
func WithLogger(l *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = l
	}
}

// WithViewport sets the frame size in pixels.
func WithViewport(width, height float32) EngineOption {
	return func(o *engineOptions) {
		o.viewport = render.Viewport{Width: width, Height: height}
	}
}

// WithFontResolver overrides how font files named by text commands are
// read.
func WithFontResolver(r render.FontResolver) EngineOption {
	return func(o *engineOptions) {
		o.fonts = r
	}
}

// WithAssetRoot sets the directory relative image and font paths resolve
// against.
func WithAssetRoot(dir string) EngineOption {
	return func(o *engineOptions) {
		o.assetRoot = dir
	}
}

// WithEvictionPolicy bounds the image and glyph atlas caches with LRU
// eviction. Zero keeps a cache unbounded, which is the default.
func WithEvictionPolicy(images, atlases int) EngineOption {
	return func(o *engineOptions) {
		o.imageCapacity = max(images, 0)
		o.atlasCapacity = max(atlases, 0)
	}
}

// WithAnimations steps anims before every frame is batched.
func WithAnimations(anims *scene.Animations) EngineOption {
	return func(o *engineOptions) {
		o.animations = anims
	}
}
