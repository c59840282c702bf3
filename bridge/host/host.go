// Package host defines the boundary between the viewport bridge and the
// application hosting it: the 3D view a viewport panel draws into, the
// manager for hardware backed textures, animation playback state, and the
// dependency-graph node/plug/subscription surface the instancer and material
// nodes query. Everything the bridge consumes from the host goes through
// these interfaces; in-memory implementations suitable for tests and the
// demo harness live in this package as well.
package host

// Pixel is a single RGBA pixel with 32-bit float channels, matching the
// layout the render engine's frame buffer is read back in.
type Pixel struct {
	R, G, B, A float32
}

// TextureDescription describes a 2D RGBA float texture.
type TextureDescription struct {
	Width  uint32
	Height uint32
}

// BytesPerRow returns the row stride in bytes for the described texture.
//
// Returns:
//   - uint32: 16 bytes per pixel times the texture width
func (d TextureDescription) BytesPerRow() uint32 {
	return d.Width * 4 * 4
}

// Texture is a host-managed hardware backed texture. The bridge owns the
// texture it acquires and must release it through the TextureManager it came
// from.
type Texture interface {
	// Update replaces the texture contents with the supplied pixels.
	// The pixel slice length must equal width*height of the description.
	//
	// Parameters:
	//   - pixels: the new texture contents
	//
	// Returns:
	//   - error: error if the upload fails
	Update(pixels []Pixel) error

	// Description returns the texture's dimensions.
	//
	// Returns:
	//   - TextureDescription: the texture description
	Description() TextureDescription

	// Handle returns the backend resource handle for GPU-interop sharing,
	// or nil when the backing store has no shareable handle.
	//
	// Returns:
	//   - any: the backend handle (backend specific), or nil
	Handle() any
}

// TextureManager acquires and releases hardware backed textures on behalf of
// the host's renderer.
type TextureManager interface {
	// AcquireTexture creates a texture with the given description and
	// initial contents.
	//
	// Parameters:
	//   - name: a debug label for the texture (may be empty)
	//   - desc: the texture dimensions
	//   - pixels: initial contents, length desc.Width*desc.Height
	//
	// Returns:
	//   - Texture: the acquired texture
	//   - error: error if creation fails
	AcquireTexture(name string, desc TextureDescription, pixels []Pixel) (Texture, error)

	// ReleaseTexture returns a texture to the manager. Releasing a nil
	// texture is a no-op.
	//
	// Parameters:
	//   - t: the texture to release
	ReleaseTexture(t Texture)
}

// View is the host's 3D view behind one viewport panel.
type View interface {
	// TargetSize returns the current output target dimensions in pixels.
	//
	// Returns:
	//   - uint32: width in pixels
	//   - uint32: height in pixels
	//   - error: error if the view cannot be queried
	TargetSize() (uint32, uint32, error)

	// CameraPath returns the scene path of the camera currently attached
	// to the view.
	//
	// Returns:
	//   - string: the camera path, empty if no camera is attached
	//   - error: error if the view cannot be queried
	CameraPath() (string, error)

	// ScheduleRefresh asks the host to redraw the view on its next idle
	// cycle. Safe to call from any goroutine.
	ScheduleRefresh()
}

// AnimationControl reports the host's animation playback state, which decides
// whether frame caching applies and how aggressively the engine may render.
type AnimationControl interface {
	// IsPlaying returns true while an animation is playing back.
	IsPlaying() bool

	// IsScrubbing returns true while the user is dragging the time slider.
	IsScrubbing() bool
}

// Subscription is a typed handle for a host callback registration. The owner
// releases it on teardown, which guarantees the callback can never fire into
// a destroyed component.
type Subscription interface {
	// Release unregisters the callback. Safe to call more than once.
	Release()
}
