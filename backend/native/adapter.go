// Package native implements render.Device over gogpu/wgpu/hal.
package native

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/SJTU-IPADS/Spars-artifacts/render"
)

// pipelineObjects are the HAL objects behind one render.PipelineID.
type pipelineObjects struct {
	shader   hal.ShaderModule
	bgl      hal.BindGroupLayout // nil for untextured pipelines
	layout   hal.PipelineLayout
	pipeline hal.RenderPipeline
	coverage bool
}

type textureObjects struct {
	texture hal.Texture
	view    hal.TextureView
	viewID  render.ViewID
	width   uint32
	height  uint32
}

type descriptorObjects struct {
	params   hal.Buffer
	group    hal.BindGroup
	bindings []uint32
}

// Textured bind group layout: params uniform, the texture view and the
// shared sampler.
const (
	bindingParams  = 0
	bindingTexture = 1
	bindingSampler = 2
)

// Adapter implements render.Device using a HAL device and queue supplied
// by the host.
//
// Thread Safety: Adapter is safe for concurrent use. Handle maps are
// protected by a mutex; HAL calls run outside it.
type Adapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	limits render.Limits
	format gputypes.TextureFormat
	spirv  bool
	log    *slog.Logger

	// 0 is render.InvalidID.
	nextID atomic.Uint64

	pipelines   map[render.PipelineID]*pipelineObjects
	buffers     map[render.BufferID]hal.Buffer
	textures    map[render.TextureID]*textureObjects
	views       map[render.ViewID]render.TextureID
	descriptors map[render.DescriptorID]*descriptorObjects

	// sampler is created with the first descriptor and shared by all.
	samplerMu sync.Mutex
	sampler   hal.Sampler
}

var _ render.Device = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLimits overrides the limits reported to the engine.
func WithLimits(l render.Limits) Option {
	return func(a *Adapter) { a.limits = l }
}

// WithFormat sets the color target format pipelines render into.
// The default is BGRA8Unorm.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(a *Adapter) { a.format = f }
}

// WithSPIRV compiles WGSL to SPIR-V with naga before creating shader
// modules, for HAL backends that do not accept WGSL.
func WithSPIRV() Option {
	return func(a *Adapter) { a.spirv = true }
}

// WithLogger sets the adapter's logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// New wraps a HAL device and queue.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Adapter, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	a := &Adapter{
		device:      device,
		queue:       queue,
		limits:      render.DefaultLimits(),
		format:      gputypes.TextureFormatBGRA8Unorm,
		pipelines:   make(map[render.PipelineID]*pipelineObjects),
		buffers:     make(map[render.BufferID]hal.Buffer),
		textures:    make(map[render.TextureID]*textureObjects),
		views:       make(map[render.ViewID]render.TextureID),
		descriptors: make(map[render.DescriptorID]*descriptorObjects),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.New(slog.DiscardHandler)
	}
	a.nextID.Store(1)
	return a, nil
}

// NewFromProvider adapts a host device provider. The provider must expose
// HalDevice() and HalQueue() returning hal.Device and hal.Queue. Its
// surface format is used as the color target unless WithFormat overrides it.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Adapter, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNotHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNotHAL, hp.HalQueue())
	}
	if f := provider.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		opts = append([]Option{WithFormat(f)}, opts...)
	}
	return New(device, queue, opts...)
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// Format returns the color target format.
func (a *Adapter) Format() gputypes.TextureFormat { return a.format }

// Limits implements render.Device.
func (a *Adapter) Limits() render.Limits { return a.limits }

// === Pipelines ===

func vertexFormat(components uint32) (f gputypes.VertexFormat, err error) {
	switch components {
	case 2:
		return gputypes.VertexFormatFloat32x2, nil
	case 3:
		return gputypes.VertexFormatFloat32x3, nil
	case 4:
		return gputypes.VertexFormatFloat32x4, nil
	default:
		return f, fmt.Errorf("native: unsupported vertex attribute with %d components", components)
	}
}

// CreatePipeline implements render.Device.
func (a *Adapter) CreatePipeline(desc render.PipelineDesc) (render.PipelineID, error) {
	attrs := make([]gputypes.VertexAttribute, len(desc.Attributes))
	for i, attr := range desc.Attributes {
		f, err := vertexFormat(attr.Components)
		if err != nil {
			return render.InvalidID, err
		}
		attrs[i] = gputypes.VertexAttribute{Format: f, Offset: uint64(attr.Offset), ShaderLocation: attr.Location}
	}

	src, err := a.shaderSource(desc.Shader)
	if err != nil {
		return render.InvalidID, err
	}

	p := &pipelineObjects{coverage: desc.Coverage}
	p.shader, err = a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label + "_shader",
		Source: src,
	})
	if err != nil {
		return render.InvalidID, fmt.Errorf("native: pipeline %q: create shader module: %w", desc.Label, err)
	}

	var groups []hal.BindGroupLayout
	if desc.Textured {
		p.bgl, err = a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label: desc.Label + "_bgl",
			Entries: []gputypes.BindGroupLayoutEntry{
				{
					Binding:    bindingParams,
					Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
					Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
				},
				{
					Binding:    bindingTexture,
					Visibility: gputypes.ShaderStageFragment,
					Texture: &gputypes.TextureBindingLayout{
						SampleType:    gputypes.TextureSampleTypeFloat,
						ViewDimension: gputypes.TextureViewDimension2D,
					},
				},
				{
					Binding:    bindingSampler,
					Visibility: gputypes.ShaderStageFragment,
					Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
				},
			},
		})
		if err != nil {
			a.destroyPipelineObjects(p)
			return render.InvalidID, fmt.Errorf("native: pipeline %q: create bind group layout: %w", desc.Label, err)
		}
		groups = []hal.BindGroupLayout{p.bgl}
	}

	p.layout, err = a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_layout",
		BindGroupLayouts: groups,
	})
	if err != nil {
		a.destroyPipelineObjects(p)
		return render.InvalidID, fmt.Errorf("native: pipeline %q: create layout: %w", desc.Label, err)
	}

	premul := gputypes.BlendStatePremultiplied()
	p.pipeline, err = a.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
			Buffers: []gputypes.VertexBufferLayout{{
				ArrayStride: uint64(desc.Stride),
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes:  attrs,
			}},
		},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    a.format,
				Blend:     &premul,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		a.destroyPipelineObjects(p)
		return render.InvalidID, fmt.Errorf("native: pipeline %q: create render pipeline: %w", desc.Label, err)
	}

	id := render.PipelineID(a.newID())
	a.mu.Lock()
	a.pipelines[id] = p
	a.mu.Unlock()

	a.log.Debug("native: pipeline created", "label", desc.Label, "id", id, "textured", desc.Textured)
	return id, nil
}

// destroyPipelineObjects releases pipeline objects in reverse creation order.
func (a *Adapter) destroyPipelineObjects(p *pipelineObjects) {
	if p.pipeline != nil {
		a.device.DestroyRenderPipeline(p.pipeline)
	}
	if p.layout != nil {
		a.device.DestroyPipelineLayout(p.layout)
	}
	if p.bgl != nil {
		a.device.DestroyBindGroupLayout(p.bgl)
	}
	if p.shader != nil {
		a.device.DestroyShaderModule(p.shader)
	}
}

// DestroyPipeline implements render.Device.
func (a *Adapter) DestroyPipeline(id render.PipelineID) {
	a.mu.Lock()
	p, ok := a.pipelines[id]
	delete(a.pipelines, id)
	a.mu.Unlock()

	if !ok {
		a.log.Warn("native: destroy of unknown pipeline", "id", id)
		return
	}
	a.destroyPipelineObjects(p)
}

// === Buffers ===

// CreateBuffer implements render.Device.
func (a *Adapter) CreateBuffer(desc render.BufferDesc, data []byte) (render.BufferID, error) {
	if len(data) == 0 {
		return render.InvalidID, fmt.Errorf("native: buffer %q is empty", desc.Label)
	}
	var usage gputypes.BufferUsage
	switch desc.Usage {
	case render.BufferUsageVertex:
		usage = gputypes.BufferUsageVertex
	case render.BufferUsageIndex:
		usage = gputypes.BufferUsageIndex
	default:
		return render.InvalidID, fmt.Errorf("native: buffer %q has usage %s", desc.Label, desc.Usage)
	}

	// Queue writes must be a multiple of 4 bytes.
	if pad := len(data) % 4; pad != 0 {
		data = append(data[:len(data):len(data)], make([]byte, 4-pad)...)
	}

	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  uint64(len(data)),
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return render.InvalidID, fmt.Errorf("native: create buffer %q: %w", desc.Label, err)
	}
	a.queue.WriteBuffer(buf, 0, data)

	id := render.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = buf
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer implements render.Device.
func (a *Adapter) DestroyBuffer(id render.BufferID) {
	a.mu.Lock()
	buf, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()

	if !ok {
		a.log.Warn("native: destroy of unknown buffer", "id", id)
		return
	}
	a.device.DestroyBuffer(buf)
}

// === Textures ===

func textureFormat(f render.TextureFormat) gputypes.TextureFormat {
	if f == render.FormatR8 {
		return gputypes.TextureFormatR8Unorm
	}
	return gputypes.TextureFormatRGBA8Unorm
}

// CreateTexture implements render.Device.
func (a *Adapter) CreateTexture(desc render.TextureDesc, pixels []byte) (render.TextureID, render.ViewID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return render.InvalidID, render.InvalidID, fmt.Errorf("native: texture %q is empty", desc.Label)
	}
	if desc.Width > a.limits.MaxTextureSize || desc.Height > a.limits.MaxTextureSize {
		return render.InvalidID, render.InvalidID, fmt.Errorf("native: texture %q %dx%d exceeds %d",
			desc.Label, desc.Width, desc.Height, a.limits.MaxTextureSize)
	}
	bpp := uint32(desc.Format.BytesPerPixel())
	if want := int(desc.Width * desc.Height * bpp); len(pixels) != want {
		return render.InvalidID, render.InvalidID, fmt.Errorf("native: texture %q has %d bytes, want %d",
			desc.Label, len(pixels), want)
	}

	size := hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1}
	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        textureFormat(desc.Format),
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return render.InvalidID, render.InvalidID, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}
	view, err := a.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: desc.Label + "_view"})
	if err != nil {
		a.device.DestroyTexture(tex)
		return render.InvalidID, render.InvalidID, fmt.Errorf("native: create view of %q: %w", desc.Label, err)
	}

	a.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		pixels,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: desc.Width * bpp, RowsPerImage: desc.Height},
		&size,
	)

	id := render.TextureID(a.newID())
	viewID := render.ViewID(a.newID())
	a.mu.Lock()
	a.textures[id] = &textureObjects{texture: tex, view: view, viewID: viewID, width: desc.Width, height: desc.Height}
	a.views[viewID] = id
	a.mu.Unlock()
	return id, viewID, nil
}

// DestroyTexture implements render.Device. The texture's view goes with it.
func (a *Adapter) DestroyTexture(id render.TextureID) {
	a.mu.Lock()
	t, ok := a.textures[id]
	if ok {
		delete(a.textures, id)
		delete(a.views, t.viewID)
	}
	a.mu.Unlock()

	if !ok {
		a.log.Warn("native: destroy of unknown texture", "id", id)
		return
	}
	a.device.DestroyTextureView(t.view)
	a.device.DestroyTexture(t.texture)
}

// === Descriptors ===

// textureParams encodes the uniform block textured shaders read: texture
// size, coverage flag and padding.
func textureParams(width, height uint32, coverage bool) []byte {
	b := make([]byte, render.TextureParamsSize)
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(float32(width)))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(float32(height)))
	if coverage {
		binary.LittleEndian.PutUint32(b[8:], math.Float32bits(1))
	}
	return b
}

// CreateDescriptor implements render.Device.
func (a *Adapter) CreateDescriptor(desc render.DescriptorDesc) (render.DescriptorID, error) {
	a.mu.RLock()
	p, okPipeline := a.pipelines[desc.Pipeline]
	var t *textureObjects
	texID, okView := a.views[desc.View]
	if okView {
		t = a.textures[texID]
	}
	n := len(a.descriptors)
	a.mu.RUnlock()

	if !okPipeline {
		return render.InvalidID, fmt.Errorf("%w: pipeline %d: %w", render.ErrInvalidHandle, desc.Pipeline, ErrUnknownHandle)
	}
	if !okView || t == nil {
		return render.InvalidID, fmt.Errorf("%w: view %d: %w", render.ErrInvalidHandle, desc.View, ErrUnknownHandle)
	}
	if p.bgl == nil {
		return render.InvalidID, fmt.Errorf("native: descriptor %q: pipeline %d is not textured", desc.Label, desc.Pipeline)
	}
	if n >= a.limits.MaxDescriptors {
		return render.InvalidID, render.ErrDescriptorLimit
	}

	sampler, err := a.linearSampler()
	if err != nil {
		return render.InvalidID, fmt.Errorf("native: descriptor %q: %w", desc.Label, err)
	}

	params, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label + "_params",
		Size:  render.TextureParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return render.InvalidID, fmt.Errorf("native: descriptor %q: create params: %w", desc.Label, err)
	}
	a.queue.WriteBuffer(params, 0, textureParams(t.width, t.height, p.coverage))

	entries := []gputypes.BindGroupEntry{
		{Binding: bindingParams, Resource: gputypes.BufferBinding{
			Buffer: params.NativeHandle(), Offset: 0, Size: render.TextureParamsSize,
		}},
		{Binding: bindingTexture, Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}},
		{Binding: bindingSampler, Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()}},
	}
	group, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  p.bgl,
		Entries: entries,
	})
	if err != nil {
		a.device.DestroyBuffer(params)
		return render.InvalidID, fmt.Errorf("native: descriptor %q: create bind group: %w", desc.Label, err)
	}

	bindings := make([]uint32, len(entries))
	for i, e := range entries {
		bindings[i] = e.Binding
	}

	id := render.DescriptorID(a.newID())
	a.mu.Lock()
	a.descriptors[id] = &descriptorObjects{params: params, group: group, bindings: bindings}
	a.mu.Unlock()
	return id, nil
}

// linearSampler returns the sampler every descriptor binds, creating it
// on first use.
func (a *Adapter) linearSampler() (hal.Sampler, error) {
	a.samplerMu.Lock()
	defer a.samplerMu.Unlock()
	if a.sampler != nil {
		return a.sampler, nil
	}
	sampler, err := a.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "texture_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler: %w", err)
	}
	a.sampler = sampler
	return sampler, nil
}

// Bindings returns the binding numbers of a descriptor's bind group.
func (a *Adapter) Bindings(id render.DescriptorID) []uint32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.descriptors[id]
	if !ok {
		return nil
	}
	return append([]uint32(nil), d.bindings...)
}

// Close destroys the shared sampler. Objects created through the
// render.Device methods are owned by the engine and destroyed by it.
func (a *Adapter) Close() {
	a.samplerMu.Lock()
	defer a.samplerMu.Unlock()
	if a.sampler != nil {
		a.device.DestroySampler(a.sampler)
		a.sampler = nil
	}
}

// DestroyDescriptor implements render.Device.
func (a *Adapter) DestroyDescriptor(id render.DescriptorID) {
	a.mu.Lock()
	d, ok := a.descriptors[id]
	delete(a.descriptors, id)
	a.mu.Unlock()

	if !ok {
		a.log.Warn("native: destroy of unknown descriptor", "id", id)
		return
	}
	a.device.DestroyBindGroup(d.group)
	a.device.DestroyBuffer(d.params)
}

// Live returns the number of live pipelines, buffers, textures and
// descriptors.
func (a *Adapter) Live() (pipelines, buffers, textures, descriptors int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.pipelines), len(a.buffers), len(a.textures), len(a.descriptors)
}

// lookup helpers used by the recorder.

func (a *Adapter) pipeline(id render.PipelineID) (hal.RenderPipeline, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.pipelines[id]
	if !ok {
		return nil, false
	}
	return p.pipeline, true
}

func (a *Adapter) buffer(id render.BufferID) (hal.Buffer, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.buffers[id]
	return b, ok
}

func (a *Adapter) bindGroup(id render.DescriptorID) (hal.BindGroup, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.descriptors[id]
	if !ok {
		return nil, false
	}
	return d.group, true
}
