// Package render defines the boundary to the external ray-tracing engine:
// the context state machine, the scoped context lock, and the operations the
// viewport bridge drives the engine through. The real engine lives behind
// the Context interface; a reference software implementation that renders a
// procedural pattern is provided for tests and the demo harness.
package render

import "github.com/Carmen-Shannon/oxy-viewport/bridge/host"

// State is the render context's lifecycle state.
type State int32

const (
	// StateIdle means the context holds a scene but no work is scheduled.
	StateIdle State = iota
	// StateUpdating means the scene is being synchronized with the host.
	StateUpdating
	// StateRendering means the live render loop is producing iterations.
	StateRendering
	// StatePaused means rendering is suspended but resumable.
	StatePaused
	// StateExiting means the context is shutting the render loop down. The
	// loop never continues past it; only an explicit owner restart under
	// the scoped lock transitions away.
	StateExiting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateUpdating:
		return "Updating"
	case StateRendering:
		return "Rendering"
	case StatePaused:
		return "Paused"
	case StateExiting:
		return "Exiting"
	default:
		return "Unknown"
	}
}

// Mode selects the engine's viewport render mode.
type Mode int32

const (
	ModeGlobalIllumination Mode = iota
	ModeDirectIllumination
	ModeDirectIlluminationNoShadow
	ModeWireframe
	ModeMaterialID
	ModePosition
	ModeNormal
	ModeTexcoord
	ModeAmbientOcclusion
)

// Region is an inclusive pixel rectangle within the frame buffer.
type Region struct {
	Left, Right uint32
	Top, Bottom uint32
}

// FullRegion returns the region spanning a w by h frame buffer.
//
// Parameters:
//   - w: frame buffer width in pixels
//   - h: frame buffer height in pixels
//
// Returns:
//   - Region: the full-frame region
func FullRegion(w, h uint32) Region {
	return Region{Left: 0, Right: w - 1, Top: 0, Bottom: h - 1}
}

// Context is the render engine boundary. Implementations own the engine-side
// scene, GPU resources and frame buffer. All state transitions must happen
// while holding the context's scoped lock; StateExiting is terminal.
//
// Unless noted otherwise, methods must be called from the render thread.
type Context interface {
	// State returns the current lifecycle state. Safe from any goroutine.
	State() State

	// SetState transitions the lifecycle state. The caller must hold the
	// scoped lock. StateExiting is only left through an explicit restart
	// to StateRendering or StateIdle.
	//
	// Parameters:
	//   - s: the new state
	SetState(s State)

	// Lock acquires the scoped context lock without forcing a state
	// transition and returns the function that releases it. Safe from any
	// goroutine.
	//
	// Parameters:
	//   - reason: a debug label identifying the lock site
	//
	// Returns:
	//   - func(): the unlock function
	Lock(reason string) func()

	// IsDirty reports whether the scene needs synchronization before the
	// next render. Safe from any goroutine.
	IsDirty() bool

	// SetDirty marks the scene as needing synchronization. Safe from any
	// goroutine.
	SetDirty()

	// Freshen synchronizes the engine scene with the host scene graph.
	// Clears the dirty flag on success.
	//
	// Returns:
	//   - error: error if synchronization fails
	Freshen() error

	// IsInteropActive reports whether the frame buffer is shared directly
	// with the display surface, skipping the CPU-side pixel copy.
	IsInteropActive() bool

	// Width returns the frame buffer width in pixels.
	Width() uint32

	// Height returns the frame buffer height in pixels.
	Height() uint32

	// Resize reallocates the frame buffer.
	//
	// Parameters:
	//   - w: new width in pixels
	//   - h: new height in pixels
	//   - interop: whether to share the buffer with the display surface
	//   - sharedHandle: backend texture handle for the interop path, nil otherwise
	//
	// Returns:
	//   - error: error if reallocation fails
	Resize(w, h uint32, interop bool, sharedHandle any) error

	// Render performs render work. With blocking true the call runs
	// iterations until the image converges; otherwise it performs a single
	// incremental iteration.
	//
	// Parameters:
	//   - blocking: whether to render to convergence
	//
	// Returns:
	//   - error: error if the iteration fails
	Render(blocking bool) error

	// AbortRender asks the engine to abandon the in-flight render as soon
	// as possible. Safe from any goroutine.
	AbortRender()

	// ReadFrameBuffer copies the resolved frame buffer into dst.
	//
	// Parameters:
	//   - dst: destination pixels, length at least w*h
	//   - w: frame buffer width in pixels
	//   - h: frame buffer height in pixels
	//   - region: the pixel rectangle to read
	//   - flipY: whether to flip the image vertically during the copy
	//
	// Returns:
	//   - error: error if the read fails
	ReadFrameBuffer(dst []host.Pixel, w, h uint32, region Region, flipY bool) error

	// ResolveFrameBuffer resolves accumulated samples into the shared
	// surface. Only meaningful on the interop path, where ReadFrameBuffer
	// is skipped.
	//
	// Returns:
	//   - error: error if the resolve fails
	ResolveFrameBuffer() error

	// StateHash returns a fingerprint of the renderable scene state.
	// Deterministic: the same scene state always yields the same hash, so
	// equal hashes of the same panel may share a cached frame.
	//
	// Returns:
	//   - uint64: the scene-state fingerprint
	StateHash() uint64

	// UpdateLimits adjusts iteration budgets for interactive or playback
	// use.
	//
	// Parameters:
	//   - animating: true while playback or scrubbing is active
	UpdateLimits(animating bool)

	// SetCamera attaches the camera at the given scene path.
	//
	// Parameters:
	//   - path: the camera's scene path
	//   - reanchor: whether to re-anchor the view on the new camera
	//
	// Returns:
	//   - error: error if the camera cannot be resolved
	SetCamera(path string, reanchor bool) error

	// CameraAttributeChanged reports and clears the camera-changed flag.
	CameraAttributeChanged() bool

	// NeedsRedraw reports and clears the pending-redraw flag.
	NeedsRedraw() bool

	// KeepRenderRunning reports whether rendering has not yet converged
	// and further iterations are wanted.
	KeepRenderRunning() bool

	// SetMode selects the viewport render mode.
	//
	// Parameters:
	//   - mode: the render mode
	SetMode(mode Mode)

	// SetRenderUpdateCallback registers a per-iteration progress callback
	// fired from within Render. Pass nil to clear.
	//
	// Parameters:
	//   - fn: callback receiving render progress in [0,1]
	SetRenderUpdateCallback(fn func(progress float32))

	// CleanScene releases the engine-side scene resources. Must be the
	// last call into the context.
	CleanScene()
}
