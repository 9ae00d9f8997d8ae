// Package geom holds the axis-aligned rectangle shared by the batcher and
// the collector.
package geom

import "fmt"

// Rect is an axis-aligned rectangle in absolute pixel coordinates.
// X and Y are the top-left corner.
type Rect struct {
	X, Y, W, H float32
}

// XYWH creates a rectangle.
func XYWH(x, y, w, h float32) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// Overlaps reports whether r and o intersect.
//
// Edges are half-open: rectangles that only share an edge do not overlap
// (a.X+a.W <= b.X is disjoint). The batcher and the collector both depend
// on this exact convention.
func (r Rect) Overlaps(o Rect) bool {
	return !(r.X+r.W <= o.X ||
		o.X+o.W <= r.X ||
		r.Y+r.H <= o.Y ||
		o.Y+o.H <= r.Y)
}

// Union returns the smallest rectangle containing r and o.
func (r Rect) Union(o Rect) Rect {
	minX := min(r.X, o.X)
	minY := min(r.Y, o.Y)
	maxX := max(r.X+r.W, o.X+o.W)
	maxY := max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy float32) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

// Right returns X+W.
func (r Rect) Right() float32 { return r.X + r.W }

// Bottom returns Y+H.
func (r Rect) Bottom() float32 { return r.Y + r.H }

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g %gx%g)", r.X, r.Y, r.W, r.H)
}
