package render

import (
	"fmt"
	"sync"
)

// DefaultFrameSlots is the number of frames that may be in flight at once.
const DefaultFrameSlots = 2

// FrameBuffers is an arena of per-frame vertex and index buffers.
//
// Draws allocate their buffers in the slot of the frame they belong to;
// ResetFrame destroys everything a slot holds once the GPU is done with
// that frame. Alloc is safe for concurrent use.
type FrameBuffers struct {
	dev   Device
	slots []frameSlot
}

type frameSlot struct {
	mu      sync.Mutex
	buffers []BufferID
	bytes   int
}

// NewFrameBuffers creates an arena with n slots. n <= 0 selects
// DefaultFrameSlots.
func NewFrameBuffers(dev Device, n int) *FrameBuffers {
	if n <= 0 {
		n = DefaultFrameSlots
	}
	return &FrameBuffers{dev: dev, slots: make([]frameSlot, n)}
}

// Slots returns the number of frame slots.
func (f *FrameBuffers) Slots() int { return len(f.slots) }

func (f *FrameBuffers) slot(i int) *frameSlot {
	if i < 0 || i >= len(f.slots) {
		panic(fmt.Sprintf("render: frame slot %d out of range [0,%d)", i, len(f.slots)))
	}
	return &f.slots[i]
}

// Alloc creates a buffer holding data and ties its lifetime to slot.
func (f *FrameBuffers) Alloc(slot int, desc BufferDesc, data []byte) (BufferID, error) {
	s := f.slot(slot)
	id, err := f.dev.CreateBuffer(desc, data)
	if err != nil {
		return InvalidID, fmt.Errorf("render: %s buffer %q: %w", desc.Usage, desc.Label, err)
	}
	s.mu.Lock()
	s.buffers = append(s.buffers, id)
	s.bytes += len(data)
	s.mu.Unlock()
	return id, nil
}

// Live returns the number of buffers held by slot.
func (f *FrameBuffers) Live(slot int) int {
	s := f.slot(slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers)
}

// ResetFrame destroys every buffer in slot and returns the bytes freed.
func (f *FrameBuffers) ResetFrame(slot int) int {
	s := f.slot(slot)
	s.mu.Lock()
	buffers, n := s.buffers, s.bytes
	s.buffers, s.bytes = nil, 0
	s.mu.Unlock()

	for _, id := range buffers {
		f.dev.DestroyBuffer(id)
	}
	return n
}

// Close releases every slot.
func (f *FrameBuffers) Close() {
	for i := range f.slots {
		f.ResetFrame(i)
	}
}
