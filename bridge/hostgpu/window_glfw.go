package hostgpu

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
)

// Window is a GLFW window acting as the host panel in the demo harness. It
// implements host.View: the viewport reads its framebuffer size and posts
// refresh requests that the demo's draw loop consumes.
type Window struct {
	window *glfw.Window

	width  atomic.Uint32
	height atomic.Uint32

	refreshPending atomic.Bool
}

var _ host.View = &Window{}

// NewWindow creates the GLFW window. WebGPU brings its own graphics API, so
// no OpenGL context is created. Must be called from the main goroutine,
// which gets locked to its OS thread.
//
// Parameters:
//   - title: the window title
//   - width: initial width in pixels
//   - height: initial height in pixels
//
// Returns:
//   - *Window: the new window
//   - error: error if GLFW initialization or window creation fails
func NewWindow(title string, width, height int) (*Window, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("hostgpu: initialize GLFW: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("hostgpu: create window: %w", err)
	}

	w := &Window{window: win}
	fbWidth, fbHeight := win.GetFramebufferSize()
	w.width.Store(uint32(fbWidth))
	w.height.Store(uint32(fbHeight))

	win.SetFramebufferSizeCallback(func(_ *glfw.Window, newWidth, newHeight int) {
		w.width.Store(uint32(newWidth))
		w.height.Store(uint32(newHeight))
		w.refreshPending.Store(true)
	})

	return w, nil
}

// SurfaceDescriptor returns the WebGPU surface descriptor for the window.
//
// Returns:
//   - *wgpu.SurfaceDescriptor: the surface descriptor
func (w *Window) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w.window)
}

// Poll processes pending window events.
//
// Returns:
//   - bool: false once the window should close
func (w *Window) Poll() bool {
	glfw.PollEvents()
	return !w.window.ShouldClose()
}

// ConsumeRefresh reports and clears the pending-refresh flag.
//
// Returns:
//   - bool: true if a redraw was requested since the last call
func (w *Window) ConsumeRefresh() bool {
	return w.refreshPending.Swap(false)
}

// Destroy closes the window and shuts GLFW down.
func (w *Window) Destroy() {
	w.window.Destroy()
	glfw.Terminate()
}

func (w *Window) TargetSize() (uint32, uint32, error) {
	return w.width.Load(), w.height.Load(), nil
}

func (w *Window) CameraPath() (string, error) {
	return "persp", nil
}

func (w *Window) ScheduleRefresh() {
	w.refreshPending.Store(true)
}
