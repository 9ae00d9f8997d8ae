// Package task turns a scene tree into the ordered list of draw tasks that
// the worker pool renders.
package task

import (
	"fmt"

	"github.com/SJTU-IPADS/Spars-artifacts/geom"
	"github.com/SJTU-IPADS/Spars-artifacts/scene"
)

// PoisonID is the ID carried by shutdown tasks.
const PoisonID uint32 = 0xdeaddead

// Result is the outcome of trying to merge a command into a task.
type Result uint8

const (
	// Success means the command was absorbed into the task.
	Success Result = iota
	// FailOverlap means the task cannot absorb the command and overlaps
	// it; scanning further back would reorder overlapping geometry.
	FailOverlap
	// FailNoOverlap means the task cannot absorb the command but is
	// disjoint from it, so scanning may continue.
	FailNoOverlap
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case FailOverlap:
		return "FailOverlap"
	case FailNoOverlap:
		return "FailNoOverlap"
	default:
		return fmt.Sprintf("Result(%d)", r)
	}
}

// Task is a batch of same-kind commands in absolute coordinates.
//
// Only the payload slice matching Kind is populated; Paints runs parallel
// to it. An image task holds exactly one image.
type Task struct {
	ID     uint32
	Kind   scene.Kind
	Bounds geom.Rect

	Rects   []geom.Rect
	Circles []scene.Circle
	RRects  []scene.RRect
	Texts   []scene.Text
	Image   scene.Image
	Paints  []scene.Paint

	poison bool
}

// New wraps a single command into a fresh task with the given ID.
func New(id uint32, c scene.Cmd, n *scene.Node) *Task {
	t := &Task{ID: id, Kind: c.Kind, Bounds: c.Bounds(n)}
	t.absorb(c.Absolute(n))
	return t
}

// Poison returns a shutdown task. A worker that receives it exits.
func Poison() *Task {
	return &Task{ID: PoisonID, poison: true}
}

// IsPoison reports whether t is a shutdown task.
func (t *Task) IsPoison() bool {
	return t.poison
}

// Len returns the number of primitives in the task.
func (t *Task) Len() int {
	switch t.Kind {
	case scene.KindRect:
		return len(t.Rects)
	case scene.KindCircle:
		return len(t.Circles)
	case scene.KindRRect:
		return len(t.RRects)
	case scene.KindText:
		return len(t.Texts)
	case scene.KindImage:
		return 1
	default:
		return 0
	}
}

// Font returns the glyph atlas key of a text task.
func (t *Task) Font() scene.FontKey {
	if len(t.Texts) == 0 {
		return scene.FontKey{}
	}
	return t.Texts[0].Font()
}

// BatchWith tries to absorb c, whose absolute bounding box is bounds, into
// t. Commands merge when they share a kind; text also requires the same
// font and pixel height. Images never merge.
func (t *Task) BatchWith(c scene.Cmd, bounds geom.Rect, n *scene.Node) Result {
	if t.compatible(c) {
		t.absorb(c.Absolute(n))
		t.Bounds = t.Bounds.Union(bounds)
		return Success
	}
	if t.Bounds.Overlaps(bounds) {
		return FailOverlap
	}
	return FailNoOverlap
}

func (t *Task) compatible(c scene.Cmd) bool {
	if t.poison || t.Kind != c.Kind {
		return false
	}
	switch t.Kind {
	case scene.KindImage:
		return false
	case scene.KindText:
		return len(t.Texts) == 0 || t.Font() == c.Text.Font()
	default:
		return true
	}
}

// absorb appends an absolute-coordinate command's geometry.
func (t *Task) absorb(c scene.Cmd) {
	switch c.Kind {
	case scene.KindRect:
		t.Rects = append(t.Rects, c.Rect)
	case scene.KindCircle:
		t.Circles = append(t.Circles, c.Circle)
	case scene.KindRRect:
		t.RRects = append(t.RRects, c.RRect)
	case scene.KindText:
		t.Texts = append(t.Texts, c.Text)
	case scene.KindImage:
		t.Image = c.Image
	}
	t.Paints = append(t.Paints, c.Paint)
}

func (t *Task) String() string {
	if t.poison {
		return "task(poison)"
	}
	return fmt.Sprintf("task(%d %s x%d %v)", t.ID, t.Kind, t.Len(), t.Bounds)
}
