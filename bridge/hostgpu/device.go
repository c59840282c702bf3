// Package hostgpu provides the WebGPU-backed host integration: a device
// wrapper, a texture manager that uploads viewport pixels to GPU textures,
// and a GLFW window that stands in for a host panel in the demo harness.
package hostgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Device bundles the WebGPU instance, adapter, device and queue the texture
// manager uploads through.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface
}

// deviceConfig collects device creation parameters.
type deviceConfig struct {
	forceFallbackAdapter bool
	surfaceDescriptor    *wgpu.SurfaceDescriptor
}

// DeviceOption is a functional option for configuring device creation.
type DeviceOption func(*deviceConfig)

// WithForceFallbackAdapter requests the software fallback adapter.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - DeviceOption: option function to apply
func WithForceFallbackAdapter(force bool) DeviceOption {
	return func(c *deviceConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithSurface makes the adapter compatible with a presentation surface and
// keeps the created surface on the device.
//
// Parameters:
//   - descriptor: the surface descriptor, e.g. from a GLFW window
//
// Returns:
//   - DeviceOption: option function to apply
func WithSurface(descriptor *wgpu.SurfaceDescriptor) DeviceOption {
	return func(c *deviceConfig) {
		c.surfaceDescriptor = descriptor
	}
}

// NewDevice creates a WebGPU device. Without a surface option the device is
// headless, which is all the texture manager needs.
//
// Parameters:
//   - options: functional options for device configuration
//
// Returns:
//   - *Device: the new device
//   - error: error if no adapter or device is available
func NewDevice(options ...DeviceOption) (*Device, error) {
	var cfg deviceConfig
	for _, opt := range options {
		opt(&cfg)
	}

	d := &Device{instance: wgpu.CreateInstance(nil)}
	if cfg.surfaceDescriptor != nil {
		d.surface = d.instance.CreateSurface(cfg.surfaceDescriptor)
	}

	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("hostgpu: request adapter: %w", err)
	}
	d.adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Viewport Device",
	})
	if err != nil {
		return nil, fmt.Errorf("hostgpu: request device: %w", err)
	}
	d.device = device
	d.queue = device.GetQueue()

	return d, nil
}

// WGPUDevice returns the underlying WebGPU device.
//
// Returns:
//   - *wgpu.Device: the device
func (d *Device) WGPUDevice() *wgpu.Device {
	return d.device
}

// Queue returns the device's submission queue.
//
// Returns:
//   - *wgpu.Queue: the queue
func (d *Device) Queue() *wgpu.Queue {
	return d.queue
}

// Surface returns the presentation surface, or nil for a headless device.
//
// Returns:
//   - *wgpu.Surface: the surface
func (d *Device) Surface() *wgpu.Surface {
	return d.surface
}

// Close releases the device's GPU objects. Textures created through the
// device must be released first.
func (d *Device) Close() {
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.surface != nil {
		d.surface.Release()
		d.surface = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}
