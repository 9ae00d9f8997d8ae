package render

import (
	"testing"

	"github.com/SJTU-IPADS/Spars-artifacts/geom"
	"github.com/SJTU-IPADS/Spars-artifacts/scene"
	"github.com/SJTU-IPADS/Spars-artifacts/task"
)

func newTestRenderer(t *testing.T, dev *NullDevice, opts ResourceOptions) (*Renderer, *FrameBuffers) {
	t.Helper()
	res := newTestResources(t, dev, opts)
	bufs := NewFrameBuffers(dev, 2)
	return NewRenderer(res, bufs, Viewport{Width: 640, Height: 480}, nil), bufs
}

func taskOf(id uint32, c scene.Cmd) *task.Task {
	return task.New(id, c, nil)
}

// =============================================================================
// Renderer
// =============================================================================

func TestRendererDrawRects(t *testing.T) {
	dev := NewNullDevice()
	r, bufs := newTestRenderer(t, dev, ResourceOptions{})

	tk := taskOf(3, scene.RectCmd(geom.XYWH(0, 0, 10, 10), scene.Paint{A: 1}))
	tk.BatchWith(scene.RectCmd(geom.XYWH(20, 0, 10, 10), scene.Paint{A: 1}), geom.XYWH(20, 0, 10, 10), nil)

	d, err := r.Draw(tk, 0)
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if d.TaskID != 3 || d.Kind != scene.KindRect {
		t.Errorf("Draw() = %v", d)
	}
	if d.IndexCount != 12 {
		t.Errorf("IndexCount = %d, want 12", d.IndexCount)
	}
	if d.HasDescriptor {
		t.Error("rect draw has a descriptor")
	}
	if bufs.Live(0) != 2 || bufs.Live(1) != 0 {
		t.Errorf("slot buffers = (%d, %d), want (2, 0)", bufs.Live(0), bufs.Live(1))
	}
}

func TestRendererDrawTextured(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png", 4, 4)
	dev := NewNullDevice()
	r, _ := newTestRenderer(t, dev, ResourceOptions{AssetRoot: dir})

	img, err := r.Draw(taskOf(0, scene.ImageCmd(scene.Image{Rect: geom.XYWH(0, 0, 4, 4), Path: "a.png"}, scene.Paint{})), 0)
	if err != nil {
		t.Fatalf("Draw(image) error = %v", err)
	}
	if !img.HasDescriptor || img.IndexCount != 6 {
		t.Errorf("Draw(image) = %+v", img)
	}

	txt, err := r.Draw(taskOf(1, scene.TextCmd(scene.Text{PixelHeight: 14, Str: "hi"}, scene.Paint{A: 1})), 0)
	if err != nil {
		t.Fatalf("Draw(text) error = %v", err)
	}
	if !txt.HasDescriptor || txt.IndexCount != 12 {
		t.Errorf("Draw(text) = %+v", txt)
	}
	if txt.Descriptor == img.Descriptor || txt.Pipeline == img.Pipeline {
		t.Error("text and image draws share a descriptor or pipeline")
	}
	if got := dev.Created(ObjectDescriptor); got != 2 {
		t.Errorf("descriptors created = %d, want 2", got)
	}
}

func TestRendererDrawErrors(t *testing.T) {
	r, _ := newTestRenderer(t, NewNullDevice(), ResourceOptions{AssetRoot: t.TempDir()})

	if _, err := r.Draw(taskOf(0, scene.ImageCmd(scene.Image{Path: "missing.png"}, scene.Paint{})), 0); err == nil {
		t.Error("expected error for missing image")
	}
	if _, err := r.Draw(&task.Task{ID: 9}, 0); err == nil {
		t.Error("expected error for task without a kind")
	}
}

func TestRendererPaintMismatch(t *testing.T) {
	r, _ := newTestRenderer(t, NewNullDevice(), ResourceOptions{})

	tk := taskOf(0, scene.CircleCmd(scene.Circle{X: 5, Y: 5, R: 5}, scene.Paint{A: 1}))
	tk.Circles = append(tk.Circles, scene.Circle{X: 50, Y: 50, R: 5})

	d, err := r.Draw(tk, 1)
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if d.IndexCount != 3*circleMinSegments {
		t.Errorf("IndexCount = %d, want one circle (%d)", d.IndexCount, 3*circleMinSegments)
	}
}

func TestRendererEmptyText(t *testing.T) {
	dev := NewNullDevice()
	r, bufs := newTestRenderer(t, dev, ResourceOptions{})

	d, err := r.Draw(taskOf(0, scene.TextCmd(scene.Text{PixelHeight: 14, Str: "   "}, scene.Paint{A: 1})), 0)
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if !d.Empty() {
		t.Errorf("Draw(blank text) = %v, want empty", d)
	}
	if bufs.Live(0) != 0 {
		t.Errorf("blank text allocated %d buffers", bufs.Live(0))
	}
}

// =============================================================================
// FrameBuffers
// =============================================================================

func TestFrameBuffersResetFrame(t *testing.T) {
	dev := NewNullDevice()
	bufs := NewFrameBuffers(dev, 0)
	if bufs.Slots() != DefaultFrameSlots {
		t.Fatalf("Slots() = %d, want %d", bufs.Slots(), DefaultFrameSlots)
	}

	for range 3 {
		if _, err := bufs.Alloc(1, BufferDesc{Usage: BufferUsageVertex}, make([]byte, 16)); err != nil {
			t.Fatalf("Alloc() error = %v", err)
		}
	}
	if n := bufs.ResetFrame(0); n != 0 {
		t.Errorf("ResetFrame(0) freed %d bytes, want 0", n)
	}
	if n := bufs.ResetFrame(1); n != 48 {
		t.Errorf("ResetFrame(1) freed %d bytes, want 48", n)
	}
	if got := dev.Live(ObjectBuffer); got != 0 {
		t.Errorf("live buffers = %d, want 0", got)
	}
}

func TestFrameBuffersSlotOutOfRange(t *testing.T) {
	bufs := NewFrameBuffers(NewNullDevice(), 2)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for slot 2")
		}
	}()
	bufs.ResetFrame(2)
}

// =============================================================================
// Recording
// =============================================================================

func TestEncoderSkipsRedundantBinds(t *testing.T) {
	rec := NewCommandStream()
	if err := rec.Begin(Viewport{Width: 1, Height: 1}); err != nil {
		t.Fatal(err)
	}
	enc := NewEncoder(rec)
	enc.Encode(DrawResource{Pipeline: 1, VertexBuffer: 10, IndexBuffer: 11, IndexCount: 6})
	enc.Encode(DrawResource{Pipeline: 1, VertexBuffer: 12, IndexBuffer: 13, IndexCount: 6})
	enc.Encode(DrawResource{Pipeline: 2})
	enc.Encode(DrawResource{Pipeline: 2, VertexBuffer: 14, IndexBuffer: 15, IndexCount: 3,
		Descriptor: 7, HasDescriptor: true})
	if err := rec.End(); err != nil {
		t.Fatal(err)
	}

	want := "Begin BindPipeline(1) BindVertexBuffer(10) BindIndexBuffer(11) DrawIndexed(6) " +
		"BindVertexBuffer(12) BindIndexBuffer(13) DrawIndexed(6) " +
		"BindPipeline(2) BindDescriptor(7) BindVertexBuffer(14) BindIndexBuffer(15) DrawIndexed(3) End"
	if got := rec.String(); got != want {
		t.Errorf("stream =\n%s\nwant\n%s", got, want)
	}
	if enc.Draws() != 3 || rec.Draws() != 3 {
		t.Errorf("draws = (%d, %d), want 3", enc.Draws(), rec.Draws())
	}
}

func TestCommandStreamFrames(t *testing.T) {
	rec := NewCommandStream()
	if err := rec.End(); err == nil {
		t.Error("expected error for End without Begin")
	}
	_ = rec.Begin(Viewport{Width: 2, Height: 2})
	if err := rec.Begin(Viewport{}); err == nil {
		t.Error("expected error for nested Begin")
	}
	rec.DrawIndexed(3)
	_ = rec.End()

	_ = rec.Begin(Viewport{Width: 4, Height: 4})
	if len(rec.Ops()) != 1 {
		t.Errorf("new frame holds %d ops, want 1", len(rec.Ops()))
	}
	if rec.Frames() != 1 || rec.Viewport().Width != 4 {
		t.Errorf("Frames() = %d, Viewport() = %v", rec.Frames(), rec.Viewport())
	}
}

func TestOpCodeString(t *testing.T) {
	if OpDrawIndexed.String() != "DrawIndexed" {
		t.Errorf("OpDrawIndexed.String() = %q", OpDrawIndexed.String())
	}
	if OpCode(99).String() != "Unknown" {
		t.Errorf("OpCode(99).String() = %q", OpCode(99).String())
	}
}
