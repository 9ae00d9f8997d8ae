package native

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/SJTU-IPADS/Spars-artifacts/render"
)

// DefaultFenceTimeout bounds how long End waits for a submitted frame.
const DefaultFenceTimeout = 5 * time.Second

// Recorder implements render.Recorder by encoding one HAL render pass per
// frame into an offscreen color target sized to the viewport.
//
// Bind calls naming unknown handles are recorded as the frame's error and
// returned from End; the draw that depends on them is skipped.
type Recorder struct {
	a       *Adapter
	timeout time.Duration

	mu      sync.Mutex
	width   uint32
	height  uint32
	target  hal.Texture
	view    hal.TextureView
	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder
	err     error
	skip    bool
	frames  int
	draws   int
}

var _ render.Recorder = (*Recorder)(nil)

// NewRecorder returns a recorder submitting to the adapter's queue.
func (a *Adapter) NewRecorder() *Recorder {
	return &Recorder{a: a, timeout: DefaultFenceTimeout}
}

// SetFenceTimeout changes how long End waits for the GPU.
func (r *Recorder) SetFenceTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

func targetSize(v float32) uint32 {
	if v < 1 {
		return 1
	}
	return uint32(math.Ceil(float64(v)))
}

// ensureTarget (re)creates the color target when the viewport size changes.
func (r *Recorder) ensureTarget(w, h uint32) error {
	if r.target != nil && r.width == w && r.height == h {
		return nil
	}
	r.destroyTarget()

	dev := r.a.device
	tex, err := dev.CreateTexture(&hal.TextureDescriptor{
		Label:         "frame_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        r.a.format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("native: create frame target: %w", err)
	}
	view, err := dev.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: "frame_target_view"})
	if err != nil {
		dev.DestroyTexture(tex)
		return fmt.Errorf("native: create frame target view: %w", err)
	}
	r.target, r.view, r.width, r.height = tex, view, w, h
	r.a.log.Debug("native: frame target created", "width", w, "height", h)
	return nil
}

func (r *Recorder) destroyTarget() {
	if r.view != nil {
		r.a.device.DestroyTextureView(r.view)
		r.view = nil
	}
	if r.target != nil {
		r.a.device.DestroyTexture(r.target)
		r.target = nil
	}
}

// Begin implements render.Recorder.
func (r *Recorder) Begin(vp render.Viewport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder != nil {
		return ErrFrameOpen
	}
	if err := r.ensureTarget(targetSize(vp.Width), targetSize(vp.Height)); err != nil {
		return err
	}

	encoder, err := r.a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame_encoder"})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}

	r.encoder = encoder
	r.pass = encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "frame_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       r.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}},
	})
	r.err = nil
	r.skip = false
	return nil
}

// fail records the first error of the frame and skips the next draw.
// Callers hold r.mu.
func (r *Recorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
	r.skip = true
}

// BindPipeline implements render.Recorder.
func (r *Recorder) BindPipeline(id render.PipelineID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pass == nil {
		return
	}
	p, ok := r.a.pipeline(id)
	if !ok {
		r.fail(fmt.Errorf("%w: pipeline %d", ErrUnknownHandle, id))
		return
	}
	r.pass.SetPipeline(p)
}

// BindVertexBuffer implements render.Recorder.
func (r *Recorder) BindVertexBuffer(id render.BufferID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pass == nil {
		return
	}
	b, ok := r.a.buffer(id)
	if !ok {
		r.fail(fmt.Errorf("%w: vertex buffer %d", ErrUnknownHandle, id))
		return
	}
	r.pass.SetVertexBuffer(0, b, 0)
}

// BindIndexBuffer implements render.Recorder.
func (r *Recorder) BindIndexBuffer(id render.BufferID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pass == nil {
		return
	}
	b, ok := r.a.buffer(id)
	if !ok {
		r.fail(fmt.Errorf("%w: index buffer %d", ErrUnknownHandle, id))
		return
	}
	r.pass.SetIndexBuffer(b, gputypes.IndexFormatUint32, 0)
}

// BindDescriptor implements render.Recorder.
func (r *Recorder) BindDescriptor(id render.DescriptorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pass == nil {
		return
	}
	g, ok := r.a.bindGroup(id)
	if !ok {
		r.fail(fmt.Errorf("%w: descriptor %d", ErrUnknownHandle, id))
		return
	}
	r.pass.SetBindGroup(0, g, nil)
}

// DrawIndexed implements render.Recorder.
func (r *Recorder) DrawIndexed(indexCount uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pass == nil {
		return
	}
	if r.skip {
		r.skip = false
		return
	}
	r.pass.DrawIndexed(indexCount, 1, 0, 0, 0)
	r.draws++
}

// End implements render.Recorder. It submits the frame and waits for the
// GPU to finish with it, so buffers and textures the frame referenced may
// be destroyed afterwards.
func (r *Recorder) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return ErrNoFrame
	}
	encoder := r.encoder
	r.pass.End()
	r.pass, r.encoder = nil, nil
	r.frames++

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("native: end encoding: %w", err)
	}
	dev := r.a.device
	defer dev.FreeCommandBuffer(cmdBuf)

	fence, err := dev.CreateFence()
	if err != nil {
		return fmt.Errorf("native: create fence: %w", err)
	}
	defer dev.DestroyFence(fence)

	if err := r.a.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("native: submit frame: %w", err)
	}
	ok, err := dev.Wait(fence, 1, r.timeout)
	if err != nil {
		return fmt.Errorf("native: wait for frame: %w", err)
	}
	if !ok {
		return ErrFenceTimeout
	}
	return r.err
}

// Frames returns the number of frames ended.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Draws returns the number of draws issued across all frames.
func (r *Recorder) Draws() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draws
}

// Size returns the current color target size.
func (r *Recorder) Size() (width, height uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// Close releases the color target. An open frame is discarded.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder != nil {
		r.pass.End()
		r.encoder.DiscardEncoding()
		r.pass, r.encoder = nil, nil
	}
	r.destroyTarget()
}
