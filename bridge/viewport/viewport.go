// Package viewport drives one interactive render view. Each viewport owns a
// render context, a CPU pixel buffer, a display texture and a bounded frame
// cache, and splits its work between the host's main thread and the shared
// render thread: the main thread uploads pixels and dispatches setup, the
// render thread runs the incremental render loop and all context mutations.
//
// Two locks order all cross-thread access. The context lock serializes
// whole render phases against state transitions; the pixels lock guards the
// CPU pixel buffer and the display texture. When both are needed the context
// lock is taken first.
package viewport

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/profiler"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/render"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/renderthread"
)

// maxRenderErrors is the consecutive-failure budget of the render loop. The
// failure that reaches it stops the loop and latches a fault; a successful
// iteration pays one failure back down.
const maxRenderErrors = 3

// Viewport is one interactive render view bound to a host panel.
//
// Setup, Refresh, CameraChanged, Removed, Close and the blit hooks are
// main-thread entry points; everything they need on the render thread is
// dispatched internally.
type Viewport interface {
	// Setup synchronizes the viewport with the host view before a draw:
	// it uploads any pixels produced since the last draw, then runs the
	// per-draw setup pass on the render thread. Any failure latched by the
	// render loop since the previous call surfaces here.
	//
	// Returns:
	//   - error: setup failure, state stays consistent for retry
	Setup() error

	// Refresh surfaces any failure latched by the render loop.
	//
	// Returns:
	//   - error: the latched failure, or nil
	Refresh() error

	// CameraChanged re-anchors the context on the camera at path and marks
	// the scene dirty.
	//
	// Parameters:
	//   - path: the camera's scene path
	//
	// Returns:
	//   - error: error if the camera cannot be resolved
	CameraChanged(path string) error

	// Removed handles the host panel being undocked or torn down. The
	// render loop stops; texture and cache stay alive so a re-docked panel
	// resumes on its next Setup.
	//
	// Parameters:
	//   - panelDestroyed: true when the panel is destroyed, false when it
	//     is only being re-parented
	Removed(panelDestroyed bool)

	// Close stops the render loop and releases the viewport's resources.
	// With hostExiting true the display texture is deliberately leaked,
	// since the host's device may already be gone.
	//
	// Parameters:
	//   - hostExiting: true during host application shutdown
	Close(hostExiting bool)

	// Texture returns the current display texture, or nil before the first
	// frame.
	//
	// Returns:
	//   - host.Texture: the display texture
	Texture() host.Texture

	// HasTextureChanged reports and clears the texture-changed flag. The
	// flag is set whenever the display texture is created or replaced.
	//
	// Returns:
	//   - bool: true if the texture changed since the last call
	HasTextureChanged() bool

	// SetUseAnimationCache toggles cached playback rendering.
	//
	// Parameters:
	//   - enabled: whether playback frames may be served from the cache
	SetUseAnimationCache(enabled bool)

	// UseAnimationCache reports whether cached playback rendering is
	// enabled.
	//
	// Returns:
	//   - bool: the current setting
	UseAnimationCache() bool

	// SetMode selects the viewport render mode and restarts accumulation.
	//
	// Parameters:
	//   - mode: the render mode
	SetMode(mode render.Mode)

	// ClearTextureCache drops all cached playback frames.
	ClearTextureCache()

	// PreBlit is called right before the host copies the display texture
	// to screen. On the interop path it holds the pixels lock until
	// PostBlit so the engine cannot resolve into the shared surface
	// mid-copy.
	PreBlit()

	// PostBlit releases what PreBlit acquired.
	PostBlit()

	// IsRunning reports whether the render loop is scheduled.
	//
	// Returns:
	//   - bool: true if the loop is live
	IsRunning() bool

	// PanelName returns the host panel this viewport is bound to.
	//
	// Returns:
	//   - string: the panel name
	PanelName() string
}

// viewport implements the Viewport interface.
type viewport struct {
	panelName  string
	ctx        render.Context
	view       host.View
	textures   host.TextureManager
	anim       host.AnimationControl
	dispatcher renderthread.Dispatcher
	stats      *profiler.Stats

	maxTextureSize uint32

	useAnimationCache atomic.Bool
	running           atomic.Bool
	pixelsUpdated     atomic.Bool
	textureChanged    atomic.Bool

	// ctxMu serializes direct render/scene calls into the context.
	ctxMu *sync.Mutex

	// pixelsMu guards pixels and texture. Lock order: ctx.Lock, ctxMu,
	// pixelsMu.
	pixelsMu *sync.Mutex
	pixels   []host.Pixel
	texture  host.Texture

	// Render thread only.
	cache         *FrameCache
	renderErrors  int
	loopScheduled bool

	// Main thread only.
	blitLocked bool

	fault *Fault
}

var _ Viewport = &viewport{}

// NewViewport creates a viewport bound to a host panel. The render loop does
// not start until the first Setup.
//
// Parameters:
//   - panelName: the host panel to bind to
//   - ctx: the render context the viewport drives
//   - view: the host 3D view the viewport draws into
//   - dispatcher: the shared render-thread dispatcher
//   - options: functional options for viewport configuration
//
// Returns:
//   - Viewport: the new viewport
//   - error: error if a required argument is missing
func NewViewport(panelName string, ctx render.Context, view host.View, dispatcher renderthread.Dispatcher, options ...ViewportOption) (Viewport, error) {
	if panelName == "" {
		return nil, fmt.Errorf("new viewport: empty panel name")
	}
	if ctx == nil || view == nil || dispatcher == nil {
		return nil, fmt.Errorf("new viewport %s: context, view and dispatcher are required", panelName)
	}

	v := &viewport{
		panelName:      panelName,
		ctx:            ctx,
		view:           view,
		textures:       host.NewMemoryTextureManager(),
		anim:           host.NewStaticAnimationControl(),
		dispatcher:     dispatcher,
		maxTextureSize: defaultMaxTextureSize,
		ctxMu:          &sync.Mutex{},
		pixelsMu:       &sync.Mutex{},
		cache:          NewFrameCache(defaultFrameCacheLimit),
		fault:          &Fault{},
	}
	v.useAnimationCache.Store(true)

	for _, opt := range options {
		opt(v)
	}

	return v, nil
}

func (v *viewport) Setup() error {
	if !v.ctx.IsInteropActive() && v.pixelsUpdated.Load() {
		v.pixelsMu.Lock()
		w, h := v.ctx.Width(), v.ctx.Height()
		var err error
		if w != 0 && h != 0 && uint32(len(v.pixels)) >= w*h {
			err = v.updateTexture(v.pixels, w, h)
			if err == nil {
				v.pixelsUpdated.Store(false)
			}
		}
		v.pixelsMu.Unlock()
		if err != nil {
			return err
		}
	}

	return v.dispatcher.RunStatusAndWait(v.doSetup)
}

// doSetup is the per-draw setup pass. Render thread only.
func (v *viewport) doSetup() error {
	if err := v.fault.Check(); err != nil {
		return err
	}

	w, h, err := v.targetSize()
	if err != nil {
		return err
	}

	animating := v.anim.IsPlaying() || v.anim.IsScrubbing()
	v.ctx.UpdateLimits(animating)

	// Cached playback replaces the live loop. Interop shares the frame
	// buffer with the display surface, so cached frames cannot serve it.
	useCache := animating && v.useAnimationCache.Load() && !v.ctx.IsInteropActive()
	if v.running.Load() && useCache {
		v.stopLoop()
	}

	if w != v.ctx.Width() || h != v.ctx.Height() {
		if err := v.resize(w, h); err != nil {
			return err
		}
	}

	if err := v.refreshContext(); err != nil {
		return err
	}

	// A fault latched while this pass ran surfaces now, not on the next
	// draw.
	if err := v.fault.Check(); err != nil {
		return err
	}

	if useCache {
		return v.renderCached(w, h)
	}
	if !v.running.Load() {
		v.start()
	}
	return nil
}

// targetSize returns the view's output size clamped to the texture limit,
// preserving aspect ratio.
func (v *viewport) targetSize() (uint32, uint32, error) {
	w, h, err := v.view.TargetSize()
	if err != nil {
		return 0, 0, fmt.Errorf("viewport %s: target size: %w", v.panelName, err)
	}

	limit := v.maxTextureSize
	if limit > 0 {
		if w > h && w > limit {
			h = h * limit / w
			w = limit
		} else if h > limit {
			w = w * limit / h
			h = limit
		}
	}
	return w, h, nil
}

// refreshContext synchronizes the engine scene when the dirty flag is set.
// Render thread only.
func (v *viewport) refreshContext() error {
	if !v.ctx.IsDirty() {
		return nil
	}

	prev := v.ctx.State()
	unlock := v.ctx.Lock("viewport.refreshContext")
	defer unlock()

	v.ctx.SetState(render.StateUpdating)
	err := v.ctx.Freshen()
	if prev == render.StateRendering {
		v.ctx.SetState(render.StateRendering)
	} else {
		v.ctx.SetState(render.StateIdle)
	}
	return err
}

// start schedules the render loop. Returns false without scheduling when the
// frame buffer is zero-sized. Render thread only.
func (v *viewport) start() bool {
	if v.running.Load() {
		v.stopLoop()
	}
	if v.ctx.Width() == 0 || v.ctx.Height() == 0 {
		return false
	}

	unlock := v.ctx.Lock("viewport.start")
	v.ctx.SetState(render.StateRendering)
	unlock()

	v.renderErrors = 0
	v.running.Store(true)
	// The dispatcher accumulates loop tasks, so a tick still scheduled
	// from a previous start must not be installed twice.
	if !v.loopScheduled {
		v.loopScheduled = true
		v.dispatcher.KeepRunning(v.tick)
	}
	return true
}

// stopLoop asks the loop to unschedule. Render thread only; the loop cannot
// be mid-tick while another render-thread task runs, so no wait is needed.
func (v *viewport) stopLoop() {
	unlock := v.ctx.Lock("viewport.stopLoop")
	v.ctx.SetState(render.StateExiting)
	unlock()
	v.running.Store(false)
}

// stop halts the render loop and waits for it to quiesce, draining work the
// render thread posts back meanwhile. Main thread only.
func (v *viewport) stop() {
	for v.running.Load() && v.dispatcher.IsRunning() {
		v.dispatcher.DrainMain()

		unlock := v.ctx.Lock("viewport.stop")
		v.ctx.SetState(render.StateExiting)
		unlock()
		v.ctx.AbortRender()

		time.Sleep(10 * time.Millisecond)
	}
	v.running.Store(false)
}

// tick is the scheduled loop task. Runs on the render thread.
func (v *viewport) tick() bool {
	if !v.running.Load() {
		v.loopScheduled = false
		return false
	}
	keep := v.safeTick()
	v.running.Store(keep)
	if !keep {
		v.loopScheduled = false
	}
	return keep
}

// safeTick shields the dispatcher from panics escaping a render iteration.
func (v *viewport) safeTick() (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			v.fault.Set(fmt.Errorf("viewport %s: render loop panic: %v", v.panelName, r))
			v.view.ScheduleRefresh()
			keep = false
		}
	}()
	return v.runLoopTick()
}

// runLoopTick performs one pass of the render loop: render an iteration when
// there is work, otherwise idle briefly. Returns false to unschedule.
func (v *viewport) runLoopTick() bool {
	switch v.ctx.State() {
	case render.StateExiting:
		return false

	case render.StateRendering:
		if v.ctx.CameraAttributeChanged() || v.ctx.NeedsRedraw() || v.ctx.KeepRenderRunning() {
			if err := v.renderIteration(); err != nil {
				v.renderErrors++
				log.Printf("viewport %s: render iteration failed (%d in a row): %v", v.panelName, v.renderErrors, err)
				if v.stats != nil {
					v.stats.RecordError()
				}
				v.view.ScheduleRefresh()
				if v.renderErrors >= maxRenderErrors {
					v.fault.Set(fmt.Errorf("viewport %s: render failed %d times in a row: %w", v.panelName, v.renderErrors, err))
					return false
				}
			} else {
				if v.renderErrors > 0 {
					v.renderErrors--
				}
				v.view.ScheduleRefresh()
			}
			time.Sleep(2 * time.Millisecond)
		} else {
			time.Sleep(5 * time.Millisecond)
		}

	default:
		time.Sleep(5 * time.Millisecond)
	}
	return true
}

// renderIteration renders one incremental iteration and publishes the result
// to the pixel buffer. Render thread only.
func (v *viewport) renderIteration() error {
	unlock := v.ctx.Lock("viewport.render")
	defer unlock()

	v.ctxMu.Lock()
	err := v.ctx.Render(false)
	v.ctxMu.Unlock()
	if err != nil {
		return err
	}

	v.pixelsMu.Lock()
	defer v.pixelsMu.Unlock()
	if err := v.readFrameBuffer(nil); err != nil {
		return err
	}
	if v.stats != nil {
		v.stats.RecordIteration()
	}
	return nil
}

// readFrameBuffer publishes the resolved frame. With a nil frame the pixels
// go to the viewport's own buffer and the updated flag is raised; otherwise
// they go into the given cached frame. On the interop path the engine
// resolves straight into the shared surface instead. Callers targeting the
// viewport buffer hold pixelsMu.
func (v *viewport) readFrameBuffer(frame *StoredFrame) error {
	if v.ctx.IsInteropActive() {
		return v.ctx.ResolveFrameBuffer()
	}

	w, h := v.ctx.Width(), v.ctx.Height()
	if w == 0 || h == 0 {
		return nil
	}
	region := render.FullRegion(w, h)

	if frame != nil {
		return v.ctx.ReadFrameBuffer(frame.Pixels(), w, h, region, false)
	}
	if err := v.ctx.ReadFrameBuffer(v.pixels, w, h, region, false); err != nil {
		return err
	}
	v.pixelsUpdated.Store(true)
	return nil
}

// resize reallocates the frame buffer, pixel buffer and display texture for
// the new size, drops the frame cache and re-anchors the camera. Render
// thread only.
func (v *viewport) resize(w, h uint32) error {
	unlockCtx := v.ctx.Lock("viewport.resize")
	defer unlockCtx()
	v.ctxMu.Lock()
	defer v.ctxMu.Unlock()
	v.pixelsMu.Lock()
	defer v.pixelsMu.Unlock()

	v.cache.Clear()
	if v.texture != nil {
		v.textures.ReleaseTexture(v.texture)
		v.texture = nil
		v.textureChanged.Store(true)
	}

	var err error
	if v.ctx.IsInteropActive() {
		err = v.resizeInterop(w, h)
	} else {
		err = v.resizeStandard(w, h)
	}
	if err != nil {
		return fmt.Errorf("viewport %s: resize to %dx%d: %w", v.panelName, w, h, err)
	}

	camPath, err := v.view.CameraPath()
	if err != nil {
		return fmt.Errorf("viewport %s: camera path: %w", v.panelName, err)
	}
	if camPath != "" {
		if err := v.ctx.SetCamera(camPath, true); err != nil {
			return fmt.Errorf("viewport %s: re-anchor camera %s: %w", v.panelName, camPath, err)
		}
	}

	v.ctx.SetDirty()
	return nil
}

// resizeStandard handles the CPU-copy path. Caller holds all three locks.
func (v *viewport) resizeStandard(w, h uint32) error {
	if err := v.ctx.Resize(w, h, false, nil); err != nil {
		return err
	}
	v.pixels = make([]host.Pixel, int(w)*int(h))
	v.clearPixels()
	if w == 0 || h == 0 {
		return nil
	}
	return v.updateTexture(v.pixels, w, h)
}

// resizeInterop handles the shared-surface path: the texture must exist
// before the context resize so its handle can be shared with the engine.
// Caller holds all three locks.
func (v *viewport) resizeInterop(w, h uint32) error {
	v.pixels = make([]host.Pixel, int(w)*int(h))
	v.clearPixels()
	if w != 0 && h != 0 {
		if err := v.updateTexture(v.pixels, w, h); err != nil {
			return err
		}
	}

	var handle any
	if v.texture != nil {
		handle = v.texture.Handle()
	}
	return v.ctx.Resize(w, h, true, handle)
}

// clearPixels fills the pixel buffer with opaque black. Caller holds
// pixelsMu.
func (v *viewport) clearPixels() {
	for i := range v.pixels {
		v.pixels[i] = host.Pixel{A: 1}
	}
}

// updateTexture pushes pixels into the display texture, creating or
// replacing it when the size changed. Caller holds pixelsMu.
func (v *viewport) updateTexture(pixels []host.Pixel, w, h uint32) error {
	if v.texture != nil {
		desc := v.texture.Description()
		if desc.Width == w && desc.Height == h {
			if err := v.texture.Update(pixels); err != nil {
				return err
			}
			if v.stats != nil {
				v.stats.RecordUpload()
			}
			return nil
		}
		v.textures.ReleaseTexture(v.texture)
		v.texture = nil
	}

	t, err := v.textures.AcquireTexture(v.panelName, host.TextureDescription{Width: w, Height: h}, pixels)
	if err != nil {
		return err
	}
	v.texture = t
	v.textureChanged.Store(true)
	if v.stats != nil {
		v.stats.RecordUpload()
	}
	return nil
}

// renderCached serves the current frame from the playback cache, rendering
// it to convergence only when the scene-state fingerprint has not been seen
// at this size. Render thread only.
func (v *viewport) renderCached(w, h uint32) error {
	if w == 0 || h == 0 {
		return nil
	}

	// The cached frame goes straight to the texture; a stale live-loop
	// frame must not overwrite it on the next Setup.
	v.pixelsUpdated.Store(false)

	key := fmt.Sprintf("%s;%d", v.panelName, v.ctx.StateHash())
	frame := v.cache.Frame(key)

	if frame.Resize(w, h) {
		unlock := v.ctx.Lock("viewport.renderCached")
		v.ctxMu.Lock()
		err := v.ctx.Render(true)
		if err == nil {
			err = v.readFrameBuffer(frame)
		}
		v.ctxMu.Unlock()
		unlock()
		if err != nil {
			return fmt.Errorf("viewport %s: cached frame render: %w", v.panelName, err)
		}
		if v.stats != nil {
			v.stats.RecordCacheMiss()
		}
	} else if v.stats != nil {
		v.stats.RecordCacheHit()
	}

	v.pixelsMu.Lock()
	defer v.pixelsMu.Unlock()
	return v.updateTexture(frame.Pixels(), w, h)
}

func (v *viewport) Refresh() error {
	return v.fault.Check()
}

func (v *viewport) CameraChanged(path string) error {
	return v.dispatcher.RunStatusAndWait(func() error {
		v.ctxMu.Lock()
		defer v.ctxMu.Unlock()
		if err := v.ctx.SetCamera(path, true); err != nil {
			return fmt.Errorf("viewport %s: camera changed to %s: %w", v.panelName, path, err)
		}
		v.ctx.SetDirty()
		return nil
	})
}

func (v *viewport) Removed(panelDestroyed bool) {
	_ = panelDestroyed
	v.stop()
}

func (v *viewport) Close(hostExiting bool) {
	v.stop()
	v.dispatcher.RunAndWait(func() {
		v.cleanUp(hostExiting)
	})
}

// cleanUp releases the viewport's resources. Runs on the render thread, or
// inline once the dispatcher has stopped.
func (v *viewport) cleanUp(hostExiting bool) {
	v.ctxMu.Lock()
	v.ctx.CleanScene()
	v.ctxMu.Unlock()

	v.pixelsMu.Lock()
	defer v.pixelsMu.Unlock()
	v.cache.Clear()
	if v.texture != nil && !hostExiting {
		// During host shutdown the device owning the texture may already
		// be gone, so the texture is leaked on purpose.
		v.textures.ReleaseTexture(v.texture)
		v.texture = nil
	}
	v.pixels = nil
}

func (v *viewport) Texture() host.Texture {
	v.pixelsMu.Lock()
	defer v.pixelsMu.Unlock()
	return v.texture
}

func (v *viewport) HasTextureChanged() bool {
	return v.textureChanged.Swap(false)
}

func (v *viewport) SetUseAnimationCache(enabled bool) {
	v.useAnimationCache.Store(enabled)
	v.view.ScheduleRefresh()
}

func (v *viewport) UseAnimationCache() bool {
	return v.useAnimationCache.Load()
}

func (v *viewport) SetMode(mode render.Mode) {
	v.dispatcher.RunAndWait(func() {
		v.ctxMu.Lock()
		v.ctx.SetMode(mode)
		v.ctx.SetDirty()
		v.ctxMu.Unlock()
	})
	v.view.ScheduleRefresh()
}

func (v *viewport) ClearTextureCache() {
	// The cache is render-thread owned.
	v.dispatcher.RunAndWait(func() {
		v.cache.Clear()
	})
	v.view.ScheduleRefresh()
}

func (v *viewport) PreBlit() {
	if v.ctx.IsInteropActive() {
		v.pixelsMu.Lock()
		v.blitLocked = true
	}
}

func (v *viewport) PostBlit() {
	if v.blitLocked {
		v.blitLocked = false
		v.pixelsMu.Unlock()
	}
}

func (v *viewport) IsRunning() bool {
	return v.running.Load()
}

func (v *viewport) PanelName() string {
	return v.panelName
}
