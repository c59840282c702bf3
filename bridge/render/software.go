package render

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
)

// SoftwareContext is a reference Context implementation that accumulates a
// procedural test pattern on the CPU. It honours the full state-machine,
// dirty-tracking and convergence contract, which makes it the backing
// context for the test suites and the demo harness.
type softwareContext struct {
	// lockMu backs the scoped context lock. It is held across whole render
	// phases, so it must stay distinct from mu or any getter called while
	// the scoped lock is held would deadlock.
	lockMu sync.Mutex

	mu sync.Mutex // guards the data fields below

	state atomic.Int32
	dirty atomic.Bool
	abort atomic.Bool

	cameraChanged atomic.Bool
	needsRedraw   atomic.Bool

	// Guarded by mu.
	width, height uint32
	fb            []host.Pixel
	interop       bool
	sharedHandle  any
	cameraPath    string
	mode          Mode
	sceneRev      uint64
	iterations    int
	iterationCap  int
	updateCb      func(progress float32)

	interactiveCap int
	animatingCap   int
}

var _ Context = &softwareContext{}

// SoftwareContextOption is a functional option for configuring a software
// context.
type SoftwareContextOption func(*softwareContext)

// WithIterationCaps sets the convergence iteration budgets applied by
// UpdateLimits for interactive and animating use.
//
// Parameters:
//   - interactive: iterations to convergence while interactive (default 32)
//   - animating: iterations to convergence during playback (default 4)
//
// Returns:
//   - SoftwareContextOption: option function to apply
func WithIterationCaps(interactive, animating int) SoftwareContextOption {
	return func(c *softwareContext) {
		if interactive > 0 {
			c.interactiveCap = interactive
		}
		if animating > 0 {
			c.animatingCap = animating
		}
	}
}

// WithInterop makes the context report GPU-interop sharing as active.
//
// Parameters:
//   - interop: whether interop sharing is active
//
// Returns:
//   - SoftwareContextOption: option function to apply
func WithInterop(interop bool) SoftwareContextOption {
	return func(c *softwareContext) {
		c.interop = interop
	}
}

// NewSoftwareContext creates a software render context in StateIdle with a
// zero-sized frame buffer.
//
// Parameters:
//   - options: functional options for context configuration
//
// Returns:
//   - Context: the new context
func NewSoftwareContext(options ...SoftwareContextOption) Context {
	c := &softwareContext{
		cameraPath:     "persp",
		interactiveCap: 32,
		animatingCap:   4,
	}

	for _, opt := range options {
		opt(c)
	}
	c.iterationCap = c.interactiveCap

	c.dirty.Store(true)
	return c
}

func (c *softwareContext) State() State {
	return State(c.state.Load())
}

func (c *softwareContext) SetState(s State) {
	// Exiting is terminal for the render loop: nothing inside the context
	// ever leaves it. Only an explicit owner restart to StateRendering or
	// StateIdle transitions away, always under the scoped lock.
	if State(c.state.Load()) == StateExiting && s != StateRendering && s != StateIdle {
		return
	}
	c.state.Store(int32(s))
}

func (c *softwareContext) Lock(reason string) func() {
	_ = reason
	c.lockMu.Lock()
	return c.lockMu.Unlock
}

func (c *softwareContext) IsDirty() bool {
	return c.dirty.Load()
}

func (c *softwareContext) SetDirty() {
	c.dirty.Store(true)
	c.needsRedraw.Store(true)
	c.mu.Lock()
	c.sceneRev++
	c.mu.Unlock()
}

func (c *softwareContext) Freshen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Scene changed: restart sample accumulation.
	c.iterations = 0
	c.dirty.Store(false)
	return nil
}

func (c *softwareContext) IsInteropActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interop
}

func (c *softwareContext) Width() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width
}

func (c *softwareContext) Height() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *softwareContext) Resize(w, h uint32, interop bool, sharedHandle any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = w
	c.height = h
	c.interop = interop
	c.sharedHandle = sharedHandle
	c.fb = make([]host.Pixel, int(w)*int(h))
	c.iterations = 0
	c.needsRedraw.Store(true)
	return nil
}

func (c *softwareContext) Render(blocking bool) error {
	c.abort.Store(false)

	for {
		c.mu.Lock()
		if c.width == 0 || c.height == 0 {
			c.mu.Unlock()
			return fmt.Errorf("render: zero-sized frame buffer")
		}
		c.iterations++
		c.accumulate()
		iter, limit := c.iterations, c.iterationCap
		cb := c.updateCb
		c.mu.Unlock()

		if cb != nil {
			cb(float32(iter) / float32(limit))
		}
		if !blocking || iter >= limit || c.abort.Load() {
			return nil
		}
	}
}

// accumulate writes one iteration of the procedural pattern. Caller holds mu.
func (c *softwareContext) accumulate() {
	w, h := int(c.width), int(c.height)
	// Brightness converges towards 1 as iterations approach the cap.
	gain := float32(c.iterations) / float32(c.iterationCap)
	if gain > 1 {
		gain = 1
	}
	tint := float32(c.sceneRev%7) / 7

	for y := 0; y < h; y++ {
		fy := float32(y) / float32(h)
		for x := 0; x < w; x++ {
			fx := float32(x) / float32(w)
			px := &c.fb[y*w+x]
			px.R = fx * gain
			px.G = fy * gain
			px.B = tint * gain
			px.A = 1
		}
	}
}

func (c *softwareContext) AbortRender() {
	c.abort.Store(true)
}

func (c *softwareContext) ReadFrameBuffer(dst []host.Pixel, w, h uint32, region Region, flipY bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w != c.width || h != c.height {
		return fmt.Errorf("read frame buffer: %dx%d requested from %dx%d buffer", w, h, c.width, c.height)
	}
	if uint32(len(dst)) < w*h {
		return fmt.Errorf("read frame buffer: destination holds %d pixels, need %d", len(dst), w*h)
	}
	if region.Right >= w || region.Bottom >= h || region.Left > region.Right || region.Top > region.Bottom {
		return fmt.Errorf("read frame buffer: region %+v outside %dx%d", region, w, h)
	}

	for y := region.Top; y <= region.Bottom; y++ {
		srcRow := y
		if flipY {
			srcRow = h - 1 - y
		}
		src := c.fb[srcRow*w+region.Left : srcRow*w+region.Right+1]
		copy(dst[y*w+region.Left:y*w+region.Right+1], src)
	}
	return nil
}

func (c *softwareContext) ResolveFrameBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.interop {
		return fmt.Errorf("resolve frame buffer: interop sharing not active")
	}
	return nil
}

func (c *softwareContext) StateHash() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := fnv.New64a()
	fmt.Fprintf(hash, "%d;%s;%d;%dx%d", c.sceneRev, c.cameraPath, c.mode, c.width, c.height)
	return hash.Sum64()
}

func (c *softwareContext) UpdateLimits(animating bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if animating {
		c.iterationCap = c.animatingCap
	} else {
		c.iterationCap = c.interactiveCap
	}
}

func (c *softwareContext) SetCamera(path string, reanchor bool) error {
	if path == "" {
		return fmt.Errorf("set camera: empty path")
	}
	c.mu.Lock()
	changed := c.cameraPath != path
	c.cameraPath = path
	if changed || reanchor {
		c.sceneRev++
		c.iterations = 0
	}
	c.mu.Unlock()

	if changed || reanchor {
		c.cameraChanged.Store(true)
	}
	return nil
}

func (c *softwareContext) CameraAttributeChanged() bool {
	return c.cameraChanged.Swap(false)
}

func (c *softwareContext) NeedsRedraw() bool {
	return c.needsRedraw.Swap(false)
}

func (c *softwareContext) KeepRenderRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iterations < c.iterationCap
}

func (c *softwareContext) SetMode(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	c.sceneRev++
	c.iterations = 0
}

func (c *softwareContext) SetRenderUpdateCallback(fn func(progress float32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateCb = fn
}

func (c *softwareContext) CleanScene() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fb = nil
	c.width = 0
	c.height = 0
}
