package viewport

import "github.com/Carmen-Shannon/oxy-viewport/bridge/host"

// StoredFrame is one cached frame of resolved pixels. A frame starts empty;
// Resize allocates its pixel storage and reports whether the frame still
// needs to be rendered into.
type StoredFrame struct {
	width  uint32
	height uint32
	pixels []host.Pixel
}

// Resize ensures the frame holds w by h pixels.
//
// Parameters:
//   - w: frame width in pixels
//   - h: frame height in pixels
//
// Returns:
//   - bool: true if the frame was (re)allocated and needs rendering
func (f *StoredFrame) Resize(w, h uint32) bool {
	if f.pixels != nil && f.width == w && f.height == h {
		return false
	}
	f.width = w
	f.height = h
	f.pixels = make([]host.Pixel, int(w)*int(h))
	return true
}

// Pixels returns the frame's pixel storage.
//
// Returns:
//   - []host.Pixel: the stored pixels
func (f *StoredFrame) Pixels() []host.Pixel {
	return f.pixels
}

// Width returns the frame width in pixels.
func (f *StoredFrame) Width() uint32 {
	return f.width
}

// Height returns the frame height in pixels.
func (f *StoredFrame) Height() uint32 {
	return f.height
}

// FrameCache maps scene-state fingerprints to stored frames, bounded to a
// fixed number of entries with oldest-insertion eviction. Not safe for
// concurrent use; the render thread owns it.
type FrameCache struct {
	limit  int
	frames map[string]*StoredFrame
	order  []string
}

// NewFrameCache creates a cache bounded to limit entries.
//
// Parameters:
//   - limit: maximum number of cached frames, values below 1 become 1
//
// Returns:
//   - *FrameCache: the new cache
func NewFrameCache(limit int) *FrameCache {
	if limit < 1 {
		limit = 1
	}
	return &FrameCache{
		limit:  limit,
		frames: make(map[string]*StoredFrame),
	}
}

// Frame returns the stored frame for key, creating an empty frame on first
// use. Inserting past the bound evicts the oldest entry.
//
// Parameters:
//   - key: the scene-state fingerprint key
//
// Returns:
//   - *StoredFrame: the cached frame
func (c *FrameCache) Frame(key string) *StoredFrame {
	if f, ok := c.frames[key]; ok {
		return f
	}

	if len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.frames, oldest)
	}

	f := &StoredFrame{}
	c.frames[key] = f
	c.order = append(c.order, key)
	return f
}

// Clear drops all cached frames.
func (c *FrameCache) Clear() {
	c.frames = make(map[string]*StoredFrame)
	c.order = nil
}

// Len returns the number of cached frames.
//
// Returns:
//   - int: the cache size
func (c *FrameCache) Len() int {
	return len(c.frames)
}
