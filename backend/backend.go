package backend

import (
	"errors"

	"github.com/SJTU-IPADS/Spars-artifacts/render"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend names.
const (
	// BackendNative drives a host-supplied gogpu/wgpu HAL device.
	BackendNative = "native"

	// BackendNull records frames without a GPU.
	BackendNull = "null"
)

// Backend pairs the device resources are created on with the recorder
// frames are encoded into.
type Backend struct {
	// Name is the registered backend identifier.
	Name string

	Device   render.Device
	Recorder render.Recorder

	close func()
}

// New assembles a backend. closeFn, if non-nil, runs once on Close.
func New(name string, dev render.Device, rec render.Recorder, closeFn func()) *Backend {
	return &Backend{Name: name, Device: dev, Recorder: rec, close: closeFn}
}

// Close releases backend resources. The backend should not be used after
// Close is called.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
		b.close = nil
	}
}

// Factory opens a backend for a host device. provider may be nil for
// backends that need no GPU.
type Factory func(provider render.DeviceHandle) (*Backend, error)

func init() {
	Register(BackendNull, func(render.DeviceHandle) (*Backend, error) {
		return New(BackendNull, render.NewNullDevice(), render.NewCommandStream(), nil), nil
	})
}
