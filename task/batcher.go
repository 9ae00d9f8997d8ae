package task

import (
	"log/slog"

	"github.com/SJTU-IPADS/Spars-artifacts/geom"
	"github.com/SJTU-IPADS/Spars-artifacts/scene"
)

// DefaultLookback is the number of tasks the batcher scans backward when
// looking for a merge target.
const DefaultLookback = 5

// List is the ordered task list of one frame. Task i has ID i.
type List struct {
	Tasks []*Task

	// Cmds is the number of commands batched into the list.
	Cmds int

	// Merged is the number of commands absorbed into an existing task.
	Merged int
}

// Len returns the number of tasks.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Tasks)
}

// Bounds returns the bounding box of every task in ID order.
func (l *List) Bounds() []geom.Rect {
	if l == nil {
		return nil
	}
	out := make([]geom.Rect, len(l.Tasks))
	for i, t := range l.Tasks {
		out[i] = t.Bounds
	}
	return out
}

// Batcher converts a scene tree into a task list.
//
// Nodes are visited in pre-order. The commands of an invisible node are
// skipped, but its children are still visited. Each command is merged into
// the nearest compatible task within Lookback steps from the end of the
// list, unless an incompatible overlapping task sits in between.
type Batcher struct {
	// Lookback bounds the backward scan. Zero means DefaultLookback.
	Lookback int

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// Build batches the subtree rooted at root. A nil root yields an empty list.
func (b *Batcher) Build(root *scene.Node) *List {
	l := &List{}
	if root == nil {
		return l
	}

	root.Walk(func(n *scene.Node) bool {
		if !n.Visible {
			return true
		}
		for _, c := range n.Cmds {
			if c.Kind == scene.KindNone {
				continue
			}
			b.add(l, c, n)
		}
		return true
	})

	if b.Logger != nil {
		b.Logger.Debug("batched frame",
			slog.Int("cmds", l.Cmds),
			slog.Int("tasks", len(l.Tasks)),
			slog.Int("merged", l.Merged))
	}
	return l
}

func (b *Batcher) add(l *List, c scene.Cmd, n *scene.Node) {
	l.Cmds++
	bounds := c.Bounds(n)

	lookback := b.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

scan:
	for i := 0; i < lookback && i < len(l.Tasks); i++ {
		switch l.Tasks[len(l.Tasks)-1-i].BatchWith(c, bounds, n) {
		case Success:
			l.Merged++
			return
		case FailOverlap:
			break scan
		case FailNoOverlap:
		}
	}

	l.Tasks = append(l.Tasks, New(uint32(len(l.Tasks)), c, n)) //nolint:gosec // task count fits in uint32
}
