package render

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"

	"github.com/SJTU-IPADS/Spars-artifacts/geom"
	"github.com/SJTU-IPADS/Spars-artifacts/scene"
)

// Viewport is the pixel size of the render target. Geometry is generated
// in normalized device coordinates with y pointing down.
type Viewport struct {
	Width, Height float32
}

// X converts a pixel column to NDC.
func (v Viewport) X(x float32) float32 { return x/v.Width*2 - 1 }

// Y converts a pixel row to NDC.
func (v Viewport) Y(y float32) float32 { return y/v.Height*2 - 1 }

// Mesh is interleaved float32 vertex data with 32-bit indices.
type Mesh struct {
	Vertices []float32
	Indices  []uint32
}

// Empty reports whether the mesh draws nothing.
func (m *Mesh) Empty() bool { return len(m.Indices) == 0 }

// VertexBytes returns the vertex data in little-endian byte order.
func (m *Mesh) VertexBytes() []byte {
	out := make([]byte, len(m.Vertices)*4)
	for i, f := range m.Vertices {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// IndexBytes returns the index data in little-endian byte order.
func (m *Mesh) IndexBytes() []byte {
	out := make([]byte, len(m.Indices)*4)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}

// Fan segment minimums.
const (
	circleMinSegments = 20
	rrectMinSegments  = 5
)

// quad appends the indices of a quad whose first vertex is base.
func (m *Mesh) quad(base uint32) {
	m.Indices = append(m.Indices, base, base+1, base+2, base+2, base+3, base)
}

// RectMesh builds one quad per rectangle, vertices (x, y, r, g, b).
func RectMesh(vp Viewport, rects []geom.Rect, paints []scene.Paint) Mesh {
	var m Mesh
	m.Vertices = make([]float32, 0, len(rects)*4*colorVertexFloats)
	m.Indices = make([]uint32, 0, len(rects)*6)
	for i, r := range rects {
		m.colorRect(vp, r.X, r.Y, r.Right(), r.Bottom(), paints[i], false)
	}
	return m
}

// colorRect appends a quad spanning [l,r]x[t,b] in pixels. With alpha
// set the vertices carry RGBA instead of RGB.
func (m *Mesh) colorRect(vp Viewport, l, t, r, b float32, p scene.Paint, alpha bool) {
	stride := uint32(colorVertexFloats)
	if alpha {
		stride = rrectVertexFloats
	}
	base := uint32(len(m.Vertices)) / stride
	for _, pt := range [4][2]float32{{l, t}, {r, t}, {r, b}, {l, b}} {
		m.Vertices = append(m.Vertices, vp.X(pt[0]), vp.Y(pt[1]), p.R, p.G, p.B)
		if alpha {
			m.Vertices = append(m.Vertices, p.A)
		}
	}
	m.quad(base)
}

// CircleMesh builds a triangle fan per circle: a center vertex followed by
// max(20, r/4) ring vertices.
func CircleMesh(vp Viewport, circles []scene.Circle, paints []scene.Paint) Mesh {
	var m Mesh
	var base uint32
	for i, c := range circles {
		p := paints[i]
		segments := max(circleMinSegments, int(c.R/4))

		m.Vertices = append(m.Vertices, vp.X(c.X), vp.Y(c.Y), p.R, p.G, p.B)
		step := 2 * math32.Pi / float32(segments)
		for j := range segments {
			a := float32(j) * step
			x := c.X + c.R*math32.Cos(a)
			y := c.Y + c.R*math32.Sin(a)
			m.Vertices = append(m.Vertices, vp.X(x), vp.Y(y), p.R, p.G, p.B)
		}

		n := uint32(segments)
		for j := uint32(0); j < n-1; j++ {
			m.Indices = append(m.Indices, base, base+j+1, base+j+2)
		}
		m.Indices = append(m.Indices, base, base+n, base+1)
		base += n + 1
	}
	return m
}

// RRectMesh builds each rounded rectangle from four corner fans and three
// rectangles, vertices (x, y, r, g, b, a). The radius is clamped to half
// the shorter side.
func RRectMesh(vp Viewport, rrects []scene.RRect, paints []scene.Paint) Mesh {
	var m Mesh
	for i, rr := range rrects {
		p := paints[i]
		radius := min(min(rr.W, rr.H)/2, rr.R)
		if radius <= 0 {
			m.colorRect(vp, rr.X, rr.Y, rr.X+rr.W, rr.Y+rr.H, p, true)
			continue
		}
		segments := max(rrectMinSegments, int(radius/16))

		l, t := rr.X+radius, rr.Y+radius
		r, b := rr.X+rr.W-radius, rr.Y+rr.H-radius
		corners := [4]struct{ cx, cy, start float32 }{
			{l, t, math32.Pi / 2},   // top-left
			{r, t, 0},               // top-right
			{l, b, math32.Pi},       // bottom-left
			{r, b, 1.5 * math32.Pi}, // bottom-right
		}
		step := (math32.Pi / 2) / float32(segments)
		for _, c := range corners {
			base := uint32(len(m.Vertices)) / rrectVertexFloats
			m.Vertices = append(m.Vertices, vp.X(c.cx), vp.Y(c.cy), p.R, p.G, p.B, p.A)
			for j := 0; j <= segments; j++ {
				a := c.start + float32(j)*step
				x := c.cx + radius*math32.Cos(a)
				y := c.cy - radius*math32.Sin(a)
				m.Vertices = append(m.Vertices, vp.X(x), vp.Y(y), p.R, p.G, p.B, p.A)
			}
			for j := uint32(0); j < uint32(segments); j++ {
				m.Indices = append(m.Indices, base, base+j+1, base+j+2)
			}
		}

		m.colorRect(vp, l, rr.Y, r, t, p, true)         // top band
		m.colorRect(vp, rr.X, t, rr.X+rr.W, b, p, true) // middle
		m.colorRect(vp, l, b, r, rr.Y+rr.H, p, true)    // bottom band
	}
	return m
}

// ImageMesh builds the textured quad of an image, vertices (x, y, u, v).
func ImageMesh(vp Viewport, img scene.Image) Mesh {
	r := img.Rect
	var m Mesh
	m.Vertices = []float32{
		vp.X(r.X), vp.Y(r.Y), 0, 0,
		vp.X(r.Right()), vp.Y(r.Y), 1, 0,
		vp.X(r.Right()), vp.Y(r.Bottom()), 1, 1,
		vp.X(r.X), vp.Y(r.Bottom()), 0, 1,
	}
	m.quad(0)
	return m
}

// TextMesh builds one quad per glyph, vertices (x, y, u, v, r, g, b).
func TextMesh(vp Viewport, texts []scene.Text, paints []scene.Paint, atlas *GlyphAtlas) Mesh {
	var m Mesh
	var base uint32
	for i, t := range texts {
		p := paints[i]
		for _, q := range atlas.Layout(t) {
			m.Vertices = append(m.Vertices,
				vp.X(q.X0), vp.Y(q.Y0), q.U0, q.V0, p.R, p.G, p.B,
				vp.X(q.X1), vp.Y(q.Y0), q.U1, q.V0, p.R, p.G, p.B,
				vp.X(q.X1), vp.Y(q.Y1), q.U1, q.V1, p.R, p.G, p.B,
				vp.X(q.X0), vp.Y(q.Y1), q.U0, q.V1, p.R, p.G, p.B,
			)
			m.quad(base)
			base += 4
		}
	}
	return m
}
