// Package bridge is the top-level entry point tying the viewport machinery
// together: it owns the shared render-thread dispatcher, tracks one viewport
// per host panel, and offers offscreen frame rendering for snapshots and
// batch output. A host embeds one Bridge for its whole session.
package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/config"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/profiler"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/render"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/renderhelper"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/renderthread"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/viewport"
)

// Bridge owns the render thread and the per-panel viewports.
type Bridge interface {
	// CreateViewport creates and registers a viewport for a host panel.
	// Bridge-level settings configure the viewport; per-call options
	// override them.
	//
	// Parameters:
	//   - panelName: the host panel to bind to
	//   - ctx: the render context the viewport drives
	//   - view: the host 3D view the viewport draws into
	//   - options: viewport options overriding the bridge settings
	//
	// Returns:
	//   - viewport.Viewport: the new viewport
	//   - error: error if the panel already has a viewport or the bridge
	//     is shut down
	CreateViewport(panelName string, ctx render.Context, view host.View, options ...viewport.ViewportOption) (viewport.Viewport, error)

	// Viewport looks up the viewport bound to a panel.
	//
	// Parameters:
	//   - panelName: the host panel name
	//
	// Returns:
	//   - viewport.Viewport: the viewport, or nil
	//   - bool: true if the panel has a viewport
	Viewport(panelName string) (viewport.Viewport, bool)

	// RemoveViewport tears down and unregisters a panel's viewport.
	// Unknown panels are ignored.
	//
	// Parameters:
	//   - panelName: the host panel name
	//   - panelDestroyed: true when the panel itself is destroyed
	RemoveViewport(panelName string, panelDestroyed bool)

	// Tick runs work the render thread posted back for the main thread.
	// The host calls it once per idle or draw cycle, from the main thread.
	Tick()

	// RenderFrame renders one frame of ctx to convergence, offscreen, and
	// copies the result into dst. Blocks until the frame is done. Progress
	// callbacks arrive on a helper goroutine while rendering.
	//
	// Parameters:
	//   - ctx: the render context to drive
	//   - width: frame width in pixels
	//   - height: frame height in pixels
	//   - dst: destination pixels, length at least width*height
	//   - onProgress: progress callback, nil for none
	//
	// Returns:
	//   - error: error if the render or the readback fails
	RenderFrame(ctx render.Context, width, height uint32, dst []host.Pixel, onProgress renderhelper.UpdateFunc) error

	// Settings returns the bridge's effective settings.
	//
	// Returns:
	//   - config.Settings: the settings
	Settings() config.Settings

	// Shutdown closes every viewport and stops the render thread. The
	// bridge cannot be used afterwards.
	//
	// Parameters:
	//   - hostExiting: true during host application shutdown
	Shutdown(hostExiting bool)
}

// bridge implements the Bridge interface.
type bridge struct {
	settings   config.Settings
	dispatcher renderthread.Dispatcher
	textures   host.TextureManager
	anim       host.AnimationControl
	stats      *profiler.Stats

	mu        *sync.Mutex
	viewports map[string]viewport.Viewport

	closed atomic.Bool
}

var _ Bridge = &bridge{}

func (b *bridge) CreateViewport(panelName string, ctx render.Context, view host.View, options ...viewport.ViewportOption) (viewport.Viewport, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("bridge: shut down")
	}

	vpOptions := []viewport.ViewportOption{
		viewport.WithFrameCacheLimit(b.settings.FrameCacheLimit),
		viewport.WithMaxTextureSize(b.settings.MaxTextureSize),
		viewport.WithAnimationCache(b.settings.UseAnimationCache),
	}
	if b.textures != nil {
		vpOptions = append(vpOptions, viewport.WithTextureManager(b.textures))
	}
	if b.anim != nil {
		vpOptions = append(vpOptions, viewport.WithAnimationControl(b.anim))
	}
	if b.stats != nil {
		vpOptions = append(vpOptions, viewport.WithStats(b.stats))
	}
	vpOptions = append(vpOptions, options...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.viewports[panelName]; exists {
		return nil, fmt.Errorf("bridge: panel %s already has a viewport", panelName)
	}

	vp, err := viewport.NewViewport(panelName, ctx, view, b.dispatcher, vpOptions...)
	if err != nil {
		return nil, err
	}
	b.viewports[panelName] = vp
	return vp, nil
}

func (b *bridge) Viewport(panelName string) (viewport.Viewport, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vp, ok := b.viewports[panelName]
	return vp, ok
}

func (b *bridge) RemoveViewport(panelName string, panelDestroyed bool) {
	b.mu.Lock()
	vp, ok := b.viewports[panelName]
	if ok {
		delete(b.viewports, panelName)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	vp.Removed(panelDestroyed)
	vp.Close(false)
}

func (b *bridge) Tick() {
	b.dispatcher.DrainMain()
}

func (b *bridge) RenderFrame(ctx render.Context, width, height uint32, dst []host.Pixel, onProgress renderhelper.UpdateFunc) error {
	if b.closed.Load() {
		return fmt.Errorf("bridge: shut down")
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("bridge: render frame: zero dimension %dx%d", width, height)
	}
	if uint32(len(dst)) < width*height {
		return fmt.Errorf("bridge: render frame: destination holds %d pixels, need %d", len(dst), width*height)
	}

	helper := renderhelper.NewHelper()
	if onProgress != nil {
		helper.SetData(ctx, onProgress)
		helper.Start()
		defer helper.StopAndJoin()
	}

	return b.dispatcher.RunStatusAndWait(func() error {
		if err := ctx.Resize(width, height, false, nil); err != nil {
			return err
		}
		if ctx.IsDirty() {
			if err := ctx.Freshen(); err != nil {
				return err
			}
		}

		unlock := ctx.Lock("bridge.renderFrame")
		ctx.SetState(render.StateRendering)
		unlock()
		defer func() {
			unlock := ctx.Lock("bridge.renderFrame.done")
			ctx.SetState(render.StateIdle)
			unlock()
		}()

		if err := ctx.Render(true); err != nil {
			return err
		}
		return ctx.ReadFrameBuffer(dst, width, height, render.FullRegion(width, height), false)
	})
}

func (b *bridge) Settings() config.Settings {
	return b.settings
}

func (b *bridge) Shutdown(hostExiting bool) {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	viewports := make([]viewport.Viewport, 0, len(b.viewports))
	for _, vp := range b.viewports {
		viewports = append(viewports, vp)
	}
	b.viewports = make(map[string]viewport.Viewport)
	b.mu.Unlock()

	for _, vp := range viewports {
		vp.Close(hostExiting)
	}

	b.dispatcher.DrainMain()
	b.dispatcher.Stop()
}
