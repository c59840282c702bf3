package hostgpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
	"github.com/Carmen-Shannon/oxy-viewport/common"
)

// TextureManager creates and updates GPU display textures for viewports.
// Textures are RGBA32Float, matching the engine's frame buffer, and are
// bindable for the host's blit pass.
type TextureManager struct {
	mu   *sync.Mutex
	dev  *Device
	live int
}

var _ host.TextureManager = &TextureManager{}

// NewTextureManager creates a texture manager uploading through the given
// device.
//
// Parameters:
//   - dev: the WebGPU device
//
// Returns:
//   - *TextureManager: the new manager
func NewTextureManager(dev *Device) *TextureManager {
	return &TextureManager{mu: &sync.Mutex{}, dev: dev}
}

// Live returns the number of currently held textures.
//
// Returns:
//   - int: acquired minus released
func (m *TextureManager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

func (m *TextureManager) AcquireTexture(name string, desc host.TextureDescription, pixels []host.Pixel) (host.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("hostgpu: texture %q: zero dimension %dx%d", name, desc.Width, desc.Height)
	}
	if uint32(len(pixels)) != desc.Width*desc.Height {
		return nil, fmt.Errorf("hostgpu: texture %q: %d pixels for %dx%d", name, len(pixels), desc.Width, desc.Height)
	}

	tex, err := m.dev.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     name,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        wgpu.TextureFormatRGBA32Float,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("hostgpu: create texture %q: %w", name, err)
	}

	t := &texture{mgr: m, desc: desc, tex: tex}
	if err := t.Update(pixels); err != nil {
		tex.Release()
		return nil, err
	}

	m.mu.Lock()
	m.live++
	m.mu.Unlock()
	return t, nil
}

func (m *TextureManager) ReleaseTexture(t host.Texture) {
	gt, ok := t.(*texture)
	if !ok || gt.tex == nil {
		return
	}
	gt.tex.Release()
	gt.tex = nil

	m.mu.Lock()
	m.live--
	m.mu.Unlock()
}

// texture is a GPU-backed host.Texture.
type texture struct {
	mgr  *TextureManager
	desc host.TextureDescription
	tex  *wgpu.Texture
}

var _ host.Texture = &texture{}

func (t *texture) Update(pixels []host.Pixel) error {
	if uint32(len(pixels)) != t.desc.Width*t.desc.Height {
		return fmt.Errorf("hostgpu: texture update: %d pixels for %dx%d", len(pixels), t.desc.Width, t.desc.Height)
	}
	if t.tex == nil {
		return fmt.Errorf("hostgpu: texture update: texture released")
	}

	t.mgr.dev.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		common.SliceToBytes(pixels),
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  t.desc.BytesPerRow(),
			RowsPerImage: t.desc.Height,
		},
		&wgpu.Extent3D{
			Width:              t.desc.Width,
			Height:             t.desc.Height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (t *texture) Description() host.TextureDescription {
	return t.desc
}

func (t *texture) Handle() any {
	return t.tex
}
