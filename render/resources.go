package render

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/SJTU-IPADS/Spars-artifacts/cache"
	"github.com/SJTU-IPADS/Spars-artifacts/scene"
)

// Cache names, used as metric labels.
const (
	CachePipelines   = "pipelines"
	CacheImages      = "images"
	CacheAtlases     = "atlases"
	CacheDescriptors = "descriptors"
)

// Texture is a resident image.
type Texture struct {
	ID     TextureID
	View   ViewID
	Width  int
	Height int
}

// FontResolver returns the font file bytes for a font path. The empty path
// names the default font.
type FontResolver func(path string) ([]byte, error)

// ResourceOptions configures a Resources manager.
type ResourceOptions struct {
	Logger   *slog.Logger
	Observer cache.Observer

	// AssetRoot is prepended to relative image and font paths.
	AssetRoot string

	// Fonts overrides font file loading.
	Fonts FontResolver

	// ImageCapacity and AtlasCapacity bound the number of resident
	// images and glyph atlases with LRU eviction. Zero means unbounded.
	ImageCapacity int
	AtlasCapacity int
}

// ResourceStats is a snapshot of every cache's counters.
type ResourceStats struct {
	Pipelines   cache.Stats
	Images      cache.Stats
	Atlases     cache.Stats
	Descriptors cache.Stats
}

// Resources owns the GPU objects shared by draw tasks: one pipeline per
// primitive kind, one texture per image file, one glyph atlas per font and
// pixel height, and one descriptor per texture view.
//
// Every lookup is build-once: concurrent workers asking for the same
// missing key wait for a single builder instead of creating duplicates.
//
// Objects dropped by eviction may still be referenced by draws recorded
// earlier in the frame, so their destruction is deferred to FlushReleased.
type Resources struct {
	dev    Device
	log    *slog.Logger
	loader ImageLoader
	fonts  FontResolver

	pipelines   *cache.Once[scene.Kind, PipelineID]
	images      *cache.Once[string, *Texture]
	atlases     *cache.Once[scene.FontKey, *GlyphAtlas]
	descriptors *cache.Once[ViewID, DescriptorID]

	maxDescriptors int64
	liveDescriptor atomic.Int64

	mu      sync.Mutex
	pending []func()
	retired []ViewID
}

func kindHasher(k scene.Kind) uint64 { return cache.IntHasher(int(k)) }

func fontHasher(k scene.FontKey) uint64 {
	return cache.Combine(cache.StringHasher(k.Path), uint64(math.Float32bits(k.PixelHeight)))
}

func viewHasher(v ViewID) uint64 { return cache.Uint64Hasher(uint64(v)) }

// NewResources creates a resource manager over dev.
func NewResources(dev Device, opts ResourceOptions) (*Resources, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limits := dev.Limits()

	r := &Resources{
		dev: dev,
		log: logger,
		loader: ImageLoader{
			Root:    opts.AssetRoot,
			MaxSize: int(limits.MaxTextureSize),
		},
		maxDescriptors: int64(limits.MaxDescriptors),
	}
	r.fonts = opts.Fonts
	if r.fonts == nil {
		r.fonts = r.readFont
	}

	r.pipelines = cache.New(kindHasher, cache.Options[scene.Kind, PipelineID]{
		Name:     CachePipelines,
		Observer: opts.Observer,
		Release: func(_ scene.Kind, id PipelineID) {
			r.later(func() { r.dev.DestroyPipeline(id) })
		},
	})
	r.descriptors = cache.New(viewHasher, cache.Options[ViewID, DescriptorID]{
		Name:     CacheDescriptors,
		Observer: opts.Observer,
		Release: func(_ ViewID, id DescriptorID) {
			r.dropDescriptor(id)
		},
	})

	imgOpts := cache.Options[string, *Texture]{
		Name:     CacheImages,
		Observer: opts.Observer,
		Release: func(_ string, t *Texture) {
			r.retire(t.View, t.ID)
		},
	}
	if opts.ImageCapacity > 0 {
		imgOpts.Policy = cache.NewLRU[string](opts.ImageCapacity)
	}
	r.images = cache.New(cache.StringHasher, imgOpts)

	atlasOpts := cache.Options[scene.FontKey, *GlyphAtlas]{
		Name:     CacheAtlases,
		Observer: opts.Observer,
		Release: func(_ scene.FontKey, a *GlyphAtlas) {
			r.retire(a.View, a.Texture)
		},
	}
	if opts.AtlasCapacity > 0 {
		atlasOpts.Policy = cache.NewLRU[scene.FontKey](opts.AtlasCapacity)
	}
	r.atlases = cache.New(fontHasher, atlasOpts)

	return r, nil
}

// Device returns the device resources are created on.
func (r *Resources) Device() Device { return r.dev }

// Pipeline returns the pipeline for a primitive kind, building it on first
// use.
func (r *Resources) Pipeline(kind scene.Kind) (PipelineID, error) {
	return r.pipelines.Get(kind, func(kind scene.Kind) (PipelineID, error) {
		desc, err := PipelineFor(kind)
		if err != nil {
			return InvalidID, err
		}
		id, err := r.dev.CreatePipeline(desc)
		if err != nil {
			return InvalidID, err
		}
		r.log.Debug("render: pipeline created", "kind", kind, "id", id)
		return id, nil
	})
}

// Image returns the texture for an image file, loading and uploading it on
// first use.
func (r *Resources) Image(path string) (*Texture, error) {
	return r.images.Get(path, func(path string) (*Texture, error) {
		img, err := r.loader.Load(path)
		if err != nil {
			return nil, err
		}
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		id, view, err := r.dev.CreateTexture(TextureDesc{
			Label:  path,
			Width:  uint32(w), //nolint:gosec // bounded by MaxTextureSize
			Height: uint32(h), //nolint:gosec // bounded by MaxTextureSize
			Format: FormatRGBA8,
		}, img.Pix)
		if err != nil {
			return nil, err
		}
		r.log.Debug("render: image uploaded", "path", path, "width", w, "height", h)
		return &Texture{ID: id, View: view, Width: w, Height: h}, nil
	})
}

// Atlas returns the glyph atlas for a font at a pixel height, rasterizing
// and uploading it on first use.
func (r *Resources) Atlas(key scene.FontKey) (*GlyphAtlas, error) {
	return r.atlases.Get(key, func(key scene.FontKey) (*GlyphAtlas, error) {
		data, err := r.fonts(key.Path)
		if err != nil {
			return nil, err
		}
		a, err := RasterizeAtlas(key, data)
		if err != nil {
			return nil, err
		}
		a.Texture, a.View, err = r.dev.CreateTexture(TextureDesc{
			Label:  fmt.Sprintf("atlas %s@%v", key.Path, key.PixelHeight),
			Width:  a.Width(),
			Height: a.Height(),
			Format: FormatR8,
		}, a.Pixels)
		if err != nil {
			return nil, err
		}
		a.Pixels = nil
		r.log.Debug("render: glyph atlas uploaded",
			"font", key.Path, "pixel_height", key.PixelHeight,
			"cell_width", a.CellWidth, "cell_height", a.CellHeight)
		return a, nil
	})
}

// Descriptor returns the descriptor binding view to pipeline. A view
// belongs to exactly one texture, so the view alone keys the descriptor.
func (r *Resources) Descriptor(pipeline PipelineID, view ViewID) (DescriptorID, error) {
	return r.descriptors.Get(view, func(view ViewID) (DescriptorID, error) {
		if r.maxDescriptors > 0 && r.liveDescriptor.Add(1) > r.maxDescriptors {
			r.liveDescriptor.Add(-1)
			return InvalidID, ErrDescriptorLimit
		}
		id, err := r.dev.CreateDescriptor(DescriptorDesc{
			Label:    fmt.Sprintf("view %d", view),
			Pipeline: pipeline,
			View:     view,
		})
		if err != nil {
			if r.maxDescriptors > 0 {
				r.liveDescriptor.Add(-1)
			}
			return InvalidID, err
		}
		return id, nil
	})
}

// Descriptors returns the number of live descriptors.
func (r *Resources) Descriptors() int { return r.descriptors.Len() }

// retire queues a texture for destruction. Its descriptor stays usable
// until the flush, since draws recorded this frame may still bind it.
func (r *Resources) retire(view ViewID, id TextureID) {
	r.mu.Lock()
	r.retired = append(r.retired, view)
	r.pending = append(r.pending, func() { r.dev.DestroyTexture(id) })
	r.mu.Unlock()
}

// dropView removes the descriptor of a retired view.
func (r *Resources) dropView(view ViewID) {
	if id, ok := r.descriptors.Remove(view); ok {
		r.dropDescriptor(id)
	}
}

func (r *Resources) dropDescriptor(id DescriptorID) {
	if r.maxDescriptors > 0 {
		r.liveDescriptor.Add(-1)
	}
	r.later(func() { r.dev.DestroyDescriptor(id) })
}

// later queues a device destroy call until the next FlushReleased.
func (r *Resources) later(fn func()) {
	r.mu.Lock()
	r.pending = append(r.pending, fn)
	r.mu.Unlock()
}

// FlushReleased destroys every object released since the last flush and
// returns how many there were. Call it once the frame that might still
// reference them has been submitted.
func (r *Resources) FlushReleased() int {
	r.mu.Lock()
	retired := r.retired
	r.retired = nil
	r.mu.Unlock()
	for _, view := range retired {
		r.dropView(view)
	}

	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

// Stats returns the counters of every cache.
func (r *Resources) Stats() ResourceStats {
	return ResourceStats{
		Pipelines:   r.pipelines.Stats(),
		Images:      r.images.Stats(),
		Atlases:     r.atlases.Stats(),
		Descriptors: r.descriptors.Stats(),
	}
}

// Close destroys every resident object. Descriptors go first since they
// reference pipelines and views.
func (r *Resources) Close() {
	r.descriptors.Close()
	r.images.Close()
	r.atlases.Close()
	r.pipelines.Close()
	r.FlushReleased()
}

func (r *Resources) readFont(path string) ([]byte, error) {
	if path == "" {
		return goregular.TTF, nil
	}
	data, err := os.ReadFile(r.loader.Resolve(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFontNotFound, path)
	}
	return data, err
}
