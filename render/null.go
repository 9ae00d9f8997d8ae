package render

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Object kinds tracked by NullDevice.
const (
	ObjectPipeline   = "pipeline"
	ObjectBuffer     = "buffer"
	ObjectTexture    = "texture"
	ObjectDescriptor = "descriptor"
)

// NullDevice is a Device that allocates handles without touching a GPU.
// It validates handle lifetimes and counts objects, which makes it the
// device of choice for tests and headless runs.
type NullDevice struct {
	limits Limits

	// Hook, if set, runs before every create call with the object kind.
	// A non-nil error fails the call. It must be safe for concurrent use.
	Hook func(object string) error

	nextID atomic.Uint64

	mu      sync.Mutex
	live    map[uint64]string
	created map[string]int
	bytes   int64
}

// NewNullDevice creates a NullDevice with DefaultLimits.
func NewNullDevice() *NullDevice {
	return NewNullDeviceWithLimits(DefaultLimits())
}

// NewNullDeviceWithLimits creates a NullDevice reporting limits.
func NewNullDeviceWithLimits(limits Limits) *NullDevice {
	d := &NullDevice{
		limits:  limits,
		live:    make(map[uint64]string),
		created: make(map[string]int),
	}
	d.nextID.Store(InvalidID)
	return d
}

func (d *NullDevice) create(object string, size int) (uint64, error) {
	if d.Hook != nil {
		if err := d.Hook(object); err != nil {
			return InvalidID, err
		}
	}
	id := d.nextID.Add(1)

	d.mu.Lock()
	d.live[id] = object
	d.created[object]++
	d.bytes += int64(size)
	d.mu.Unlock()
	return id, nil
}

func (d *NullDevice) destroy(object string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live[id] != object {
		panic(fmt.Sprintf("null device: destroy unknown %s %d", object, id))
	}
	delete(d.live, id)
}

func (d *NullDevice) check(object string, id uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live[id] != object {
		return fmt.Errorf("%w: %s %d", ErrInvalidHandle, object, id)
	}
	return nil
}

// CreatePipeline implements Device.
func (d *NullDevice) CreatePipeline(desc PipelineDesc) (PipelineID, error) {
	if desc.Stride == 0 || len(desc.Attributes) == 0 {
		return InvalidID, fmt.Errorf("null device: pipeline %q has no vertex layout", desc.Label)
	}
	id, err := d.create(ObjectPipeline, 0)
	return PipelineID(id), err
}

// CreateBuffer implements Device.
func (d *NullDevice) CreateBuffer(_ BufferDesc, data []byte) (BufferID, error) {
	id, err := d.create(ObjectBuffer, len(data))
	return BufferID(id), err
}

// CreateTexture implements Device.
func (d *NullDevice) CreateTexture(desc TextureDesc, pixels []byte) (TextureID, ViewID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return InvalidID, InvalidID, fmt.Errorf("null device: texture %q is empty", desc.Label)
	}
	if desc.Width > d.limits.MaxTextureSize || desc.Height > d.limits.MaxTextureSize {
		return InvalidID, InvalidID, fmt.Errorf("null device: texture %q %dx%d exceeds %d",
			desc.Label, desc.Width, desc.Height, d.limits.MaxTextureSize)
	}
	want := int(desc.Width) * int(desc.Height) * desc.Format.BytesPerPixel()
	if len(pixels) != want {
		return InvalidID, InvalidID, fmt.Errorf("null device: texture %q has %d bytes, want %d",
			desc.Label, len(pixels), want)
	}
	id, err := d.create(ObjectTexture, len(pixels))
	// The view shares the texture's handle.
	return TextureID(id), ViewID(id), err
}

// CreateDescriptor implements Device.
func (d *NullDevice) CreateDescriptor(desc DescriptorDesc) (DescriptorID, error) {
	if err := d.check(ObjectPipeline, uint64(desc.Pipeline)); err != nil {
		return InvalidID, err
	}
	if err := d.check(ObjectTexture, uint64(desc.View)); err != nil {
		return InvalidID, err
	}
	id, err := d.create(ObjectDescriptor, 0)
	return DescriptorID(id), err
}

// DestroyPipeline implements Device.
func (d *NullDevice) DestroyPipeline(id PipelineID) { d.destroy(ObjectPipeline, uint64(id)) }

// DestroyBuffer implements Device.
func (d *NullDevice) DestroyBuffer(id BufferID) { d.destroy(ObjectBuffer, uint64(id)) }

// DestroyTexture implements Device.
func (d *NullDevice) DestroyTexture(id TextureID) { d.destroy(ObjectTexture, uint64(id)) }

// DestroyDescriptor implements Device.
func (d *NullDevice) DestroyDescriptor(id DescriptorID) { d.destroy(ObjectDescriptor, uint64(id)) }

// Limits implements Device.
func (d *NullDevice) Limits() Limits { return d.limits }

// Live returns the number of live objects of the given kind.
func (d *NullDevice) Live(object string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, o := range d.live {
		if o == object {
			n++
		}
	}
	return n
}

// Created returns the total number of objects of the given kind created.
func (d *NullDevice) Created(object string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[object]
}

// Bytes returns the total number of bytes uploaded.
func (d *NullDevice) Bytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytes
}

var _ Device = (*NullDevice)(nil)
