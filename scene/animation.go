package scene

import (
	"sync"
	"time"
)

// Animation mutates a node once per frame.
type Animation interface {
	// Animate advances the animation to now and reports whether the target
	// moved.
	Animate(now time.Time) bool

	// Target returns the animated node.
	Target() *Node

	Name() string
}

// HorizontalMove moves a node horizontally at a constant speed, looping
// over [StartX, EndX). Speed is in pixels per second and negative for
// leftward motion. Positions are absolute and snapped to whole pixels.
type HorizontalMove struct {
	StartX float64
	EndX   float64
	Speed  float64

	target  *Node
	last    time.Time
	current float64
}

// NewHorizontalMove creates a horizontal loop animation for target.
func NewHorizontalMove(target *Node, startX, endX, speed float64) *HorizontalMove {
	return &HorizontalMove{StartX: startX, EndX: endX, Speed: speed, target: target}
}

// Animate implements Animation.
func (a *HorizontalMove) Animate(now time.Time) bool {
	if a.last.IsZero() {
		a.current = a.StartX
	} else {
		a.current += now.Sub(a.last).Seconds() * a.Speed
		if (a.Speed > 0 && a.current >= a.EndX) || (a.Speed < 0 && a.current <= a.EndX) {
			a.current = a.StartX
		}
	}
	a.last = now

	newAbs := float32(int32(a.current))
	if newAbs == a.target.AbsX {
		return false
	}
	a.target.SetRel(a.target.RelX+newAbs-a.target.AbsX, a.target.RelY)
	return true
}

// Target implements Animation.
func (a *HorizontalMove) Target() *Node { return a.target }

// Name implements Animation.
func (a *HorizontalMove) Name() string { return "HorizontalMove" }

// Animations is the set of animations applied before each frame.
// It is safe for concurrent use, though Step is normally called from the
// frame goroutine only.
type Animations struct {
	mu   sync.Mutex
	list []Animation
}

// Add registers an animation.
func (l *Animations) Add(a Animation) {
	l.mu.Lock()
	l.list = append(l.list, a)
	l.mu.Unlock()
}

// Len returns the number of registered animations.
func (l *Animations) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}

// Step advances every animation to now and returns how many moved their
// target.
func (l *Animations) Step(now time.Time) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	moved := 0
	for _, a := range l.list {
		if a.Animate(now) {
			moved++
		}
	}
	return moved
}
