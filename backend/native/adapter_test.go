package native

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/SJTU-IPADS/Spars-artifacts/backend"
	"github.com/SJTU-IPADS/Spars-artifacts/geom"
	"github.com/SJTU-IPADS/Spars-artifacts/render"
	"github.com/SJTU-IPADS/Spars-artifacts/scene"
	"github.com/SJTU-IPADS/Spars-artifacts/task"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

func newTestAdapter(t *testing.T, opts ...Option) *Adapter {
	t.Helper()
	device, queue := createNoopDevice(t)
	a, err := New(device, queue, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func mustPipeline(t *testing.T, a *Adapter, kind scene.Kind) render.PipelineID {
	t.Helper()
	desc, err := render.PipelineFor(kind)
	if err != nil {
		t.Fatal(err)
	}
	id, err := a.CreatePipeline(desc)
	if err != nil {
		t.Fatalf("CreatePipeline(%s) error = %v", kind, err)
	}
	return id
}

// =============================================================================
// Construction
// =============================================================================

func TestNewNilDevice(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, ErrNilDevice) {
		t.Errorf("New(nil, nil) error = %v, want ErrNilDevice", err)
	}
}

type halHost struct {
	gpucontext.DeviceProvider
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat
}

func (h halHost) HalDevice() any                        { return h.device }
func (h halHost) HalQueue() any                         { return h.queue }
func (h halHost) SurfaceFormat() gputypes.TextureFormat { return h.format }

type plainHost struct {
	gpucontext.DeviceProvider
}

func TestNewFromProvider(t *testing.T) {
	device, queue := createNoopDevice(t)

	a, err := NewFromProvider(halHost{device: device, queue: queue, format: gputypes.TextureFormatRGBA8Unorm})
	if err != nil {
		t.Fatalf("NewFromProvider() error = %v", err)
	}
	if a.Format() != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("Format() = %v, want surface format", a.Format())
	}

	a, err = NewFromProvider(halHost{device: device, queue: queue, format: gputypes.TextureFormatUndefined})
	if err != nil {
		t.Fatalf("NewFromProvider() error = %v", err)
	}
	if a.Format() != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("Format() = %v, want default", a.Format())
	}

	if _, err := NewFromProvider(plainHost{}); !errors.Is(err, ErrNotHAL) {
		t.Errorf("NewFromProvider(plain) error = %v, want ErrNotHAL", err)
	}
	if _, err := NewFromProvider(halHost{device: nil, queue: queue}); !errors.Is(err, ErrNotHAL) {
		t.Errorf("NewFromProvider(nil device) error = %v, want ErrNotHAL", err)
	}
}

// =============================================================================
// Device objects
// =============================================================================

func TestAdapterPipelines(t *testing.T) {
	a := newTestAdapter(t)

	ids := make(map[render.PipelineID]bool)
	for _, kind := range scene.Kinds {
		ids[mustPipeline(t, a, kind)] = true
	}
	if len(ids) != len(scene.Kinds) {
		t.Errorf("distinct pipelines = %d, want %d", len(ids), len(scene.Kinds))
	}
	if p, _, _, _ := a.Live(); p != len(scene.Kinds) {
		t.Errorf("live pipelines = %d, want %d", p, len(scene.Kinds))
	}

	for id := range ids {
		a.DestroyPipeline(id)
	}
	a.DestroyPipeline(12345) // unknown handles are ignored
	if p, _, _, _ := a.Live(); p != 0 {
		t.Errorf("live pipelines after destroy = %d", p)
	}
}

func TestAdapterPipelineBadAttribute(t *testing.T) {
	a := newTestAdapter(t)
	desc, _ := render.PipelineFor(scene.KindRect)
	desc.Attributes = []render.VertexAttribute{{Components: 7}}
	if _, err := a.CreatePipeline(desc); err == nil {
		t.Error("expected error for 7-component attribute")
	}
}

func TestAdapterBuffers(t *testing.T) {
	a := newTestAdapter(t)

	id, err := a.CreateBuffer(render.BufferDesc{Label: "odd", Usage: render.BufferUsageVertex}, make([]byte, 6))
	if err != nil {
		t.Fatalf("CreateBuffer(6 bytes) error = %v", err)
	}
	if _, err := a.CreateBuffer(render.BufferDesc{Usage: render.BufferUsageIndex}, nil); err == nil {
		t.Error("expected error for empty buffer")
	}
	if _, err := a.CreateBuffer(render.BufferDesc{}, make([]byte, 4)); err == nil {
		t.Error("expected error for missing usage")
	}

	a.DestroyBuffer(id)
	if _, b, _, _ := a.Live(); b != 0 {
		t.Errorf("live buffers = %d, want 0", b)
	}
}

func TestAdapterTextureValidation(t *testing.T) {
	a := newTestAdapter(t, WithLimits(render.Limits{MaxTextureSize: 4, MaxDescriptors: 4}))

	tests := []struct {
		name    string
		desc    render.TextureDesc
		pixels  int
		wantErr bool
	}{
		{"rgba ok", render.TextureDesc{Width: 2, Height: 2, Format: render.FormatRGBA8}, 16, false},
		{"r8 ok", render.TextureDesc{Width: 4, Height: 1, Format: render.FormatR8}, 4, false},
		{"empty", render.TextureDesc{Width: 0, Height: 1, Format: render.FormatR8}, 0, true},
		{"too large", render.TextureDesc{Width: 8, Height: 1, Format: render.FormatR8}, 8, true},
		{"short data", render.TextureDesc{Width: 2, Height: 2, Format: render.FormatRGBA8}, 12, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex, view, err := a.CreateTexture(tt.desc, make([]byte, tt.pixels))
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateTexture() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (tex == render.InvalidID || view == render.InvalidID) {
				t.Errorf("CreateTexture() = (%d, %d)", tex, view)
			}
		})
	}
}

func TestAdapterDescriptors(t *testing.T) {
	a := newTestAdapter(t, WithLimits(render.Limits{MaxTextureSize: 64, MaxDescriptors: 1}))
	image := mustPipeline(t, a, scene.KindImage)
	rect := mustPipeline(t, a, scene.KindRect)
	tex, view, err := a.CreateTexture(render.TextureDesc{Width: 2, Height: 2, Format: render.FormatRGBA8}, make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.CreateDescriptor(render.DescriptorDesc{Pipeline: rect, View: view}); err == nil {
		t.Error("expected error binding a texture to an untextured pipeline")
	}

	d, err := a.CreateDescriptor(render.DescriptorDesc{Label: "a", Pipeline: image, View: view})
	if err != nil {
		t.Fatalf("CreateDescriptor() error = %v", err)
	}
	if got, want := a.Bindings(d), []uint32{0, 1, 2}; !slices.Equal(got, want) {
		t.Errorf("Bindings() = %v, want %v", got, want)
	}
	if a.Bindings(render.InvalidID) != nil {
		t.Error("Bindings(InvalidID) should be nil")
	}
	if _, err := a.CreateDescriptor(render.DescriptorDesc{Pipeline: image, View: view}); !errors.Is(err, render.ErrDescriptorLimit) {
		t.Errorf("second CreateDescriptor() error = %v, want ErrDescriptorLimit", err)
	}

	a.DestroyDescriptor(d)
	a.DestroyTexture(tex)
	_, err = a.CreateDescriptor(render.DescriptorDesc{Pipeline: image, View: view})
	if !errors.Is(err, render.ErrInvalidHandle) || !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("CreateDescriptor(destroyed view) error = %v, want invalid handle", err)
	}
	if _, _, tx, ds := a.Live(); tx != 0 || ds != 0 {
		t.Errorf("live textures, descriptors = %d, %d", tx, ds)
	}
}

func TestAdapterSharedSampler(t *testing.T) {
	a := newTestAdapter(t)
	text := mustPipeline(t, a, scene.KindText)
	_, view, err := a.CreateTexture(render.TextureDesc{Width: 4, Height: 4, Format: render.FormatR8}, make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	if a.sampler != nil {
		t.Fatal("sampler created before the first descriptor")
	}

	d1, err := a.CreateDescriptor(render.DescriptorDesc{Label: "d1", Pipeline: text, View: view})
	if err != nil {
		t.Fatal(err)
	}
	first := a.sampler
	if first == nil {
		t.Fatal("sampler = nil after CreateDescriptor()")
	}
	d2, err := a.CreateDescriptor(render.DescriptorDesc{Label: "d2", Pipeline: text, View: view})
	if err != nil {
		t.Fatal(err)
	}
	if a.sampler != first {
		t.Error("second descriptor created a new sampler")
	}
	if got := a.Bindings(d2); len(got) != 3 {
		t.Errorf("len(Bindings()) = %d, want 3", len(got))
	}

	a.DestroyDescriptor(d1)
	a.DestroyDescriptor(d2)
	a.Close()
	if a.sampler != nil {
		t.Error("Close() did not release the sampler")
	}
	a.Close()
}

func TestTextureParams(t *testing.T) {
	b := textureParams(2, 0, true)
	if len(b) != render.TextureParamsSize {
		t.Fatalf("len = %d, want %d", len(b), render.TextureParamsSize)
	}
	// 2.0f, 0.0f, 1.0f, 0.0f little-endian.
	want := []byte{0, 0, 0, 0x40, 0, 0, 0, 0, 0, 0, 0x80, 0x3f, 0, 0, 0, 0}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("textureParams() = %x, want %x", b, want)
		}
	}
}

func TestCompileSPIRV(t *testing.T) {
	const src = `@vertex
fn vs_main(@location(0) p: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(p, 0.0, 1.0);
}
`
	words, err := compileSPIRV(src)
	if err != nil {
		t.Fatalf("compileSPIRV() error = %v", err)
	}
	if len(words) == 0 || words[0] != 0x07230203 {
		t.Errorf("compileSPIRV() does not start with the SPIR-V magic number")
	}
	if _, err := compileSPIRV("fn broken("); err == nil {
		t.Error("expected error for invalid WGSL")
	}
}

// =============================================================================
// Recorder
// =============================================================================

func TestRecorderFrame(t *testing.T) {
	a := newTestAdapter(t)
	res, err := render.NewResources(a, render.ResourceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	bufs := render.NewFrameBuffers(a, 1)
	defer bufs.Close()
	vp := render.Viewport{Width: 320.5, Height: 200}
	r := render.NewRenderer(res, bufs, vp, nil)

	rec := a.NewRecorder()
	defer rec.Close()
	if err := rec.Begin(vp); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	enc := render.NewEncoder(rec)
	tasks := []*task.Task{
		task.New(0, scene.RectCmd(geom.XYWH(0, 0, 10, 10), scene.Paint{A: 1}), nil),
		task.New(1, scene.TextCmd(scene.Text{X: 5, Y: 40, PixelHeight: 14, Str: "ok"}, scene.Paint{A: 1}), nil),
	}
	for _, tk := range tasks {
		d, err := r.Draw(tk, 0)
		if err != nil {
			t.Fatalf("Draw(%d) error = %v", tk.ID, err)
		}
		enc.Encode(d)
	}
	if err := rec.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	if rec.Draws() != 2 || rec.Frames() != 1 {
		t.Errorf("Draws() = %d, Frames() = %d, want 2, 1", rec.Draws(), rec.Frames())
	}
	if w, h := rec.Size(); w != 321 || h != 200 {
		t.Errorf("Size() = %dx%d, want 321x200", w, h)
	}
}

func TestRecorderUnknownHandle(t *testing.T) {
	a := newTestAdapter(t)
	rec := a.NewRecorder()
	defer rec.Close()

	if err := rec.Begin(render.Viewport{Width: 8, Height: 8}); err != nil {
		t.Fatal(err)
	}
	rec.BindPipeline(999)
	rec.DrawIndexed(3)
	err := rec.End()
	if !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("End() error = %v, want ErrUnknownHandle", err)
	}
	if rec.Draws() != 0 {
		t.Errorf("Draws() = %d, want 0", rec.Draws())
	}

	// The error does not carry into the next frame.
	if err := rec.Begin(render.Viewport{Width: 8, Height: 8}); err != nil {
		t.Fatal(err)
	}
	if err := rec.End(); err != nil {
		t.Errorf("End() of clean frame error = %v", err)
	}
}

func TestRecorderFrameState(t *testing.T) {
	a := newTestAdapter(t)
	rec := a.NewRecorder()
	defer rec.Close()

	if err := rec.End(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("End() without Begin error = %v, want ErrNoFrame", err)
	}
	if err := rec.Begin(render.Viewport{Width: 4, Height: 4}); err != nil {
		t.Fatal(err)
	}
	if err := rec.Begin(render.Viewport{Width: 4, Height: 4}); !errors.Is(err, ErrFrameOpen) {
		t.Errorf("nested Begin() error = %v, want ErrFrameOpen", err)
	}
	if err := rec.End(); err != nil {
		t.Errorf("End() error = %v", err)
	}
}

func TestRegisteredBackend(t *testing.T) {
	device, queue := createNoopDevice(t)

	b, err := backend.Open(backend.BackendNative, halHost{device: device, queue: queue})
	if err != nil {
		t.Fatalf("Open(native) error = %v", err)
	}
	defer b.Close()
	if _, ok := b.Device.(*Adapter); !ok {
		t.Errorf("Device = %T, want *Adapter", b.Device)
	}

	if _, err := backend.Open(backend.BackendNative, nil); !errors.Is(err, ErrNotHAL) {
		t.Errorf("Open(native, nil) error = %v, want ErrNotHAL", err)
	}
	b, err = backend.Default(nil)
	if err != nil || b.Name != backend.BackendNull {
		t.Errorf("Default(nil) = %v, %v; want null backend", b, err)
	}
}
