package main

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// noopHost is a headless device provider backed by the noop HAL. It lets
// the native backend run its full encode and submit path without a GPU.
type noopHost struct {
	gpucontext.DeviceProvider

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
}

func openNoopHost() (*noopHost, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("create noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("noop instance has no adapters")
	}
	opened, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open noop adapter: %w", err)
	}
	return &noopHost{instance: instance, device: opened.Device, queue: opened.Queue}, nil
}

func (h *noopHost) HalDevice() any { return h.device }
func (h *noopHost) HalQueue() any  { return h.queue }

func (h *noopHost) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatBGRA8Unorm
}

func (h *noopHost) Close() {
	h.device.Destroy()
	h.instance.Destroy()
}
