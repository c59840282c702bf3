package bridge

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/config"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/render"
)

func newBridge(t *testing.T, options ...BridgeOption) Bridge {
	t.Helper()
	b := New(options...)
	t.Cleanup(func() { b.Shutdown(false) })
	return b
}

func TestCreateAndLookupViewport(t *testing.T) {
	b := newBridge(t)

	vp, err := b.CreateViewport("modelPanel1", render.NewSoftwareContext(), host.NewMemoryView(32, 32))
	require.NoError(t, err)
	require.NotNil(t, vp)

	got, ok := b.Viewport("modelPanel1")
	require.True(t, ok)
	assert.Same(t, vp, got)

	_, ok = b.Viewport("modelPanel2")
	assert.False(t, ok)

	_, err = b.CreateViewport("modelPanel1", render.NewSoftwareContext(), host.NewMemoryView(32, 32))
	assert.Error(t, err, "one viewport per panel")
}

func TestRemoveViewportReleasesResources(t *testing.T) {
	textures := host.NewMemoryTextureManager()
	b := newBridge(t, WithTextureManager(textures))

	vp, err := b.CreateViewport("modelPanel1", render.NewSoftwareContext(), host.NewMemoryView(32, 32))
	require.NoError(t, err)
	require.NoError(t, vp.Setup())
	require.Equal(t, 1, textures.Live())

	b.RemoveViewport("modelPanel1", false)

	assert.Equal(t, 0, textures.Live())
	_, ok := b.Viewport("modelPanel1")
	assert.False(t, ok)

	// Removing an unknown panel is a no-op.
	b.RemoveViewport("modelPanel1", false)
}

func TestBridgeSettingsConfigureViewports(t *testing.T) {
	settings := config.Default()
	settings.UseAnimationCache = false
	b := newBridge(t, WithSettings(settings))

	vp, err := b.CreateViewport("modelPanel1", render.NewSoftwareContext(), host.NewMemoryView(16, 16))
	require.NoError(t, err)

	assert.False(t, vp.UseAnimationCache())
	assert.Equal(t, settings, b.Settings())
}

func TestShutdownClosesViewportsAndRefusesNewWork(t *testing.T) {
	textures := host.NewMemoryTextureManager()
	b := New(WithTextureManager(textures))

	vp1, err := b.CreateViewport("modelPanel1", render.NewSoftwareContext(), host.NewMemoryView(16, 16))
	require.NoError(t, err)
	vp2, err := b.CreateViewport("modelPanel2", render.NewSoftwareContext(), host.NewMemoryView(16, 16))
	require.NoError(t, err)
	require.NoError(t, vp1.Setup())
	require.NoError(t, vp2.Setup())
	require.Equal(t, 2, textures.Live())

	b.Shutdown(false)

	assert.Equal(t, 0, textures.Live())
	assert.False(t, vp1.IsRunning())
	assert.False(t, vp2.IsRunning())

	_, err = b.CreateViewport("modelPanel3", render.NewSoftwareContext(), host.NewMemoryView(16, 16))
	assert.Error(t, err)

	// A second shutdown is a no-op.
	b.Shutdown(false)
}

func TestRenderFrameProducesConvergedPixels(t *testing.T) {
	b := newBridge(t)
	ctx := render.NewSoftwareContext(render.WithIterationCaps(8, 4))

	const width, height = 16, 8
	dst := make([]host.Pixel, width*height)

	require.NoError(t, b.RenderFrame(ctx, width, height, dst, nil))

	// Every pixel is opaque and the gradient reaches full brightness at
	// the far corner.
	for i, px := range dst {
		require.Equal(t, float32(1), px.A, "pixel %d not opaque", i)
	}
	corner := dst[(height-1)*width+(width-1)]
	assert.InDelta(t, float32(width-1)/float32(width), corner.R, 1e-5)
	assert.InDelta(t, float32(height-1)/float32(height), corner.G, 1e-5)
}

func TestRenderFrameReportsProgress(t *testing.T) {
	b := newBridge(t)
	ctx := render.NewSoftwareContext(render.WithIterationCaps(8, 4))

	dst := make([]host.Pixel, 8*8)
	var calls atomic.Int32
	var last atomic.Uint32

	require.NoError(t, b.RenderFrame(ctx, 8, 8, dst, func(progress float32) {
		calls.Add(1)
		last.Store(uint32(progress * 1000))
	}))

	assert.Greater(t, calls.Load(), int32(0))
	assert.Equal(t, uint32(1000), last.Load(), "the final callback reports full progress")
}

func TestRenderFrameValidatesArguments(t *testing.T) {
	b := newBridge(t)
	ctx := render.NewSoftwareContext()

	assert.Error(t, b.RenderFrame(ctx, 0, 8, make([]host.Pixel, 64), nil))
	assert.Error(t, b.RenderFrame(ctx, 8, 8, make([]host.Pixel, 10), nil))
}
