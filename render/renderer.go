package render

import (
	"fmt"
	"log/slog"

	"github.com/SJTU-IPADS/Spars-artifacts/scene"
	"github.com/SJTU-IPADS/Spars-artifacts/task"
)

// DrawResource is everything needed to record one draw task: the pipeline,
// the frame's vertex and index buffers, and for textured kinds the
// descriptor binding the texture.
type DrawResource struct {
	TaskID uint32
	Kind   scene.Kind

	Pipeline     PipelineID
	VertexBuffer BufferID
	IndexBuffer  BufferID
	IndexCount   uint32

	Descriptor    DescriptorID
	HasDescriptor bool
}

// Empty reports whether the resource draws nothing.
func (d DrawResource) Empty() bool { return d.IndexCount == 0 }

func (d DrawResource) String() string {
	return fmt.Sprintf("draw(%d %s idx=%d)", d.TaskID, d.Kind, d.IndexCount)
}

// Renderer turns draw tasks into DrawResources. Draw is safe for
// concurrent use; the viewport must not change while a frame is in flight.
type Renderer struct {
	res  *Resources
	bufs *FrameBuffers
	vp   Viewport
	log  *slog.Logger
}

// NewRenderer creates a renderer that builds geometry for vp.
func NewRenderer(res *Resources, bufs *FrameBuffers, vp Viewport, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{res: res, bufs: bufs, vp: vp, log: logger}
}

// Viewport returns the target size geometry is built for.
func (r *Renderer) Viewport() Viewport { return r.vp }

// SetViewport changes the target size. Call it between frames.
func (r *Renderer) SetViewport(vp Viewport) { r.vp = vp }

// Resources returns the resource manager draws are built from.
func (r *Renderer) Resources() *Resources { return r.res }

// Draw builds the resources of t in frame slot. Shared objects come from
// the build-once caches; vertex and index buffers belong to the slot.
func (r *Renderer) Draw(t *task.Task, slot int) (DrawResource, error) {
	d := DrawResource{TaskID: t.ID, Kind: t.Kind}

	pipeline, err := r.res.Pipeline(t.Kind)
	if err != nil {
		return d, err
	}
	d.Pipeline = pipeline

	var mesh Mesh
	switch t.Kind {
	case scene.KindRect:
		n := r.paints(t, len(t.Rects))
		mesh = RectMesh(r.vp, t.Rects[:n], t.Paints[:n])
	case scene.KindCircle:
		n := r.paints(t, len(t.Circles))
		mesh = CircleMesh(r.vp, t.Circles[:n], t.Paints[:n])
	case scene.KindRRect:
		n := r.paints(t, len(t.RRects))
		mesh = RRectMesh(r.vp, t.RRects[:n], t.Paints[:n])
	case scene.KindImage:
		tex, err := r.res.Image(t.Image.Path)
		if err != nil {
			return d, err
		}
		if d.Descriptor, err = r.res.Descriptor(pipeline, tex.View); err != nil {
			return d, err
		}
		d.HasDescriptor = true
		mesh = ImageMesh(r.vp, t.Image)
	case scene.KindText:
		atlas, err := r.res.Atlas(t.Font())
		if err != nil {
			return d, err
		}
		if d.Descriptor, err = r.res.Descriptor(pipeline, atlas.View); err != nil {
			return d, err
		}
		d.HasDescriptor = true
		n := r.paints(t, len(t.Texts))
		mesh = TextMesh(r.vp, t.Texts[:n], t.Paints[:n], atlas)
	default:
		return d, fmt.Errorf("render: task %d has no drawable kind", t.ID)
	}

	if mesh.Empty() {
		return d, nil
	}
	label := fmt.Sprintf("task %d", t.ID)
	if d.VertexBuffer, err = r.bufs.Alloc(slot, BufferDesc{Label: label, Usage: BufferUsageVertex}, mesh.VertexBytes()); err != nil {
		return d, err
	}
	if d.IndexBuffer, err = r.bufs.Alloc(slot, BufferDesc{Label: label, Usage: BufferUsageIndex}, mesh.IndexBytes()); err != nil {
		return d, err
	}
	d.IndexCount = uint32(len(mesh.Indices)) //nolint:gosec // bounded by task size
	return d, nil
}

// paints returns how many primitives of t can be drawn. A task whose paint
// list does not match its geometry is drawn up to the shorter of the two.
func (r *Renderer) paints(t *task.Task, shapes int) int {
	if len(t.Paints) != shapes {
		r.log.Warn("render: paint count mismatch",
			"task", t.ID, "kind", t.Kind, "shapes", shapes, "paints", len(t.Paints))
	}
	return min(shapes, len(t.Paints))
}
