package native

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// halProvider is implemented by hosts that expose their hal device and
// queue next to the gpucontext interfaces.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider wraps the device shared by a host such as gogpu. The
// provider must also expose HalDevice() and HalQueue().
func NewFromProvider(provider gpucontext.DeviceProvider, cfg Config) (*Device, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, ErrNoHALProvider
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, ErrNoHALProvider
	}
	return New(device, queue, cfg)
}

// SurfaceFormat returns the provider's surface format as a gpucore format,
// ready for the swapchain description.
func SurfaceFormat(provider gpucontext.DeviceProvider) gpucore.Format {
	return FormatOf(provider.SurfaceFormat())
}
