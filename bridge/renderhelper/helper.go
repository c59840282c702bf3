// Package renderhelper pumps engine render-progress callbacks onto a
// dedicated update goroutine. The engine fires its progress callback from
// deep inside a render call, where reading the frame buffer back or touching
// the display would deadlock; the helper instead records the progress,
// wakes its own goroutine, and lets that goroutine run the display update.
// A progress callback arriving while the scene is dirty aborts the render
// instead, so stale iterations never finish before a scene sync.
package renderhelper

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/render"
)

// UpdateFunc receives render progress in [0,1] on the update goroutine.
type UpdateFunc func(progress float32)

// Helper owns the update goroutine bridging engine progress callbacks to
// display updates.
type Helper interface {
	// SetData binds the helper to a context and an update callback. Must
	// be called before Start; rebinding requires StopAndJoin first.
	//
	// Parameters:
	//   - ctx: the render context to observe, nil detaches
	//   - onUpdate: the display update to run per progress signal
	SetData(ctx render.Context, onUpdate UpdateFunc)

	// Start registers the progress callback with the context and launches
	// the update goroutine. A helper without a context does nothing.
	// Idempotent while running.
	Start()

	// SetStopFlag asks the update goroutine to exit without waiting for
	// it. Safe from any goroutine, including the update callback itself.
	SetStopFlag()

	// StopAndJoin unregisters the progress callback, stops the update
	// goroutine and waits for it to finish. The helper can be started
	// again afterwards.
	StopAndJoin()

	// Progress returns the most recent progress value.
	//
	// Returns:
	//   - float32: render progress in [0,1]
	Progress() float32
}

// helper implements the Helper interface.
type helper struct {
	mu       *sync.Mutex
	ctx      render.Context
	onUpdate UpdateFunc

	progress atomic.Uint32

	signal   chan struct{}
	quit     chan struct{}
	quitOnce *sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
}

var _ Helper = &helper{}

// NewHelper creates a stopped helper with no context bound.
//
// Returns:
//   - Helper: the new helper
func NewHelper() Helper {
	return &helper{
		mu:       &sync.Mutex{},
		signal:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		quitOnce: &sync.Once{},
	}
}

func (h *helper) SetData(ctx render.Context, onUpdate UpdateFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctx = ctx
	h.onUpdate = onUpdate
}

func (h *helper) Start() {
	h.mu.Lock()
	ctx := h.ctx
	h.mu.Unlock()
	if ctx == nil {
		return
	}

	if !h.running.CompareAndSwap(false, true) {
		return
	}

	h.quit = make(chan struct{})
	h.quitOnce = &sync.Once{}

	ctx.SetRenderUpdateCallback(h.onRenderUpdate)

	h.wg.Add(1)
	go h.run()
}

func (h *helper) SetStopFlag() {
	if !h.running.Load() {
		return
	}
	h.quitOnce.Do(func() {
		close(h.quit)
	})
}

func (h *helper) StopAndJoin() {
	if !h.running.Load() {
		return
	}

	h.mu.Lock()
	ctx := h.ctx
	h.mu.Unlock()
	if ctx != nil {
		ctx.SetRenderUpdateCallback(nil)
	}

	h.SetStopFlag()
	h.wg.Wait()

	// Deliver a signal the goroutine raced against quit on, so the last
	// recorded progress always reaches the callback.
	select {
	case <-h.signal:
		h.mu.Lock()
		onUpdate := h.onUpdate
		h.mu.Unlock()
		if onUpdate != nil {
			onUpdate(h.Progress())
		}
	default:
	}

	h.running.Store(false)
}

func (h *helper) Progress() float32 {
	return math.Float32frombits(h.progress.Load())
}

// onRenderUpdate is the engine progress callback. It runs inside the render
// call, so it must not block: a dirty scene aborts the render, anything else
// records the progress and wakes the update goroutine.
func (h *helper) onRenderUpdate(progress float32) {
	h.mu.Lock()
	ctx := h.ctx
	h.mu.Unlock()
	if ctx == nil {
		return
	}

	if ctx.IsDirty() {
		ctx.AbortRender()
		return
	}

	h.progress.Store(math.Float32bits(progress))

	select {
	case h.signal <- struct{}{}:
	default:
		// An update is already pending; it will pick up the new progress.
	}
}

// run is the update goroutine body.
func (h *helper) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.quit:
			return
		case <-h.signal:
			h.mu.Lock()
			onUpdate := h.onUpdate
			h.mu.Unlock()
			if onUpdate != nil {
				onUpdate(h.Progress())
			}
		}
	}
}
