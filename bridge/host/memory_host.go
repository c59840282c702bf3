package host

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryView is an in-memory View implementation with a settable size and a
// refresh counter, standing in for the host's 3D view in tests.
type MemoryView struct {
	mu         sync.Mutex
	width      uint32
	height     uint32
	cameraPath string
	sizeErr    error

	refreshes atomic.Int64
}

var _ View = &MemoryView{}

// NewMemoryView creates a view with the given output target size.
//
// Parameters:
//   - width: output width in pixels
//   - height: output height in pixels
//
// Returns:
//   - *MemoryView: the new view
func NewMemoryView(width, height uint32) *MemoryView {
	return &MemoryView{width: width, height: height, cameraPath: "persp"}
}

// SetTargetSize changes the view's reported output size.
//
// Parameters:
//   - width: output width in pixels
//   - height: output height in pixels
func (v *MemoryView) SetTargetSize(width, height uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.width = width
	v.height = height
}

// SetCameraPath changes the view's attached camera path.
//
// Parameters:
//   - path: the camera path
func (v *MemoryView) SetCameraPath(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cameraPath = path
}

// SetSizeError makes TargetSize fail with the given error, for exercising
// setup failure paths.
//
// Parameters:
//   - err: the error to return, or nil to clear
func (v *MemoryView) SetSizeError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sizeErr = err
}

// Refreshes returns how many refreshes have been scheduled.
//
// Returns:
//   - int64: the refresh count
func (v *MemoryView) Refreshes() int64 {
	return v.refreshes.Load()
}

func (v *MemoryView) TargetSize() (uint32, uint32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sizeErr != nil {
		return 0, 0, v.sizeErr
	}
	return v.width, v.height, nil
}

func (v *MemoryView) CameraPath() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cameraPath, nil
}

func (v *MemoryView) ScheduleRefresh() {
	v.refreshes.Add(1)
}

// MemoryTextureManager is a software TextureManager that stores pixel data in
// ordinary slices. Used by tests and as a fallback when no GPU device is
// available.
type MemoryTextureManager struct {
	mu       sync.Mutex
	acquired int
	released int
}

var _ TextureManager = &MemoryTextureManager{}

// NewMemoryTextureManager creates an empty software texture manager.
//
// Returns:
//   - *MemoryTextureManager: the new manager
func NewMemoryTextureManager() *MemoryTextureManager {
	return &MemoryTextureManager{}
}

// Live returns the number of currently held textures.
//
// Returns:
//   - int: acquired minus released
func (m *MemoryTextureManager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired - m.released
}

func (m *MemoryTextureManager) AcquireTexture(name string, desc TextureDescription, pixels []Pixel) (Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture %q: zero dimension %dx%d", name, desc.Width, desc.Height)
	}
	if uint32(len(pixels)) != desc.Width*desc.Height {
		return nil, fmt.Errorf("texture %q: %d pixels for %dx%d", name, len(pixels), desc.Width, desc.Height)
	}

	m.mu.Lock()
	m.acquired++
	m.mu.Unlock()

	t := &memoryTexture{desc: desc}
	t.pixels = append(t.pixels, pixels...)
	return t, nil
}

func (m *MemoryTextureManager) ReleaseTexture(t Texture) {
	if t == nil {
		return
	}
	m.mu.Lock()
	m.released++
	m.mu.Unlock()
}

// memoryTexture is the software Texture backing MemoryTextureManager.
type memoryTexture struct {
	mu      sync.Mutex
	desc    TextureDescription
	pixels  []Pixel
	updates int
}

var _ Texture = &memoryTexture{}

func (t *memoryTexture) Update(pixels []Pixel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if uint32(len(pixels)) != t.desc.Width*t.desc.Height {
		return fmt.Errorf("texture update: %d pixels for %dx%d", len(pixels), t.desc.Width, t.desc.Height)
	}
	copy(t.pixels, pixels)
	t.updates++
	return nil
}

func (t *memoryTexture) Description() TextureDescription {
	return t.desc
}

func (t *memoryTexture) Handle() any {
	return nil
}

// Pixels returns a copy of the texture contents, for test assertions.
//
// Returns:
//   - []Pixel: the current contents
func (t *memoryTexture) Pixels() []Pixel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Pixel(nil), t.pixels...)
}

// StaticAnimationControl is an AnimationControl with settable flags.
type StaticAnimationControl struct {
	playing   atomic.Bool
	scrubbing atomic.Bool
}

var _ AnimationControl = &StaticAnimationControl{}

// NewStaticAnimationControl creates an AnimationControl reporting no
// playback.
//
// Returns:
//   - *StaticAnimationControl: the new control
func NewStaticAnimationControl() *StaticAnimationControl {
	return &StaticAnimationControl{}
}

// SetPlaying sets the playing flag.
//
// Parameters:
//   - playing: whether an animation is playing back
func (a *StaticAnimationControl) SetPlaying(playing bool) {
	a.playing.Store(playing)
}

// SetScrubbing sets the scrubbing flag.
//
// Parameters:
//   - scrubbing: whether the time slider is being dragged
func (a *StaticAnimationControl) SetScrubbing(scrubbing bool) {
	a.scrubbing.Store(scrubbing)
}

func (a *StaticAnimationControl) IsPlaying() bool {
	return a.playing.Load()
}

func (a *StaticAnimationControl) IsScrubbing() bool {
	return a.scrubbing.Load()
}
