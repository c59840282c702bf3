package viewport

import (
	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/profiler"
)

const (
	defaultMaxTextureSize  = 4096
	defaultFrameCacheLimit = 64
)

// ViewportOption is a functional option for configuring a viewport.
type ViewportOption func(*viewport)

// WithTextureManager sets the texture manager backing the display texture.
// Defaults to an in-memory manager.
//
// Parameters:
//   - textures: the texture manager to use
//
// Returns:
//   - ViewportOption: option function to apply
func WithTextureManager(textures host.TextureManager) ViewportOption {
	return func(v *viewport) {
		if textures != nil {
			v.textures = textures
		}
	}
}

// WithAnimationControl sets the playback-state source consulted during
// setup. Defaults to a control reporting no playback.
//
// Parameters:
//   - anim: the animation control to use
//
// Returns:
//   - ViewportOption: option function to apply
func WithAnimationControl(anim host.AnimationControl) ViewportOption {
	return func(v *viewport) {
		if anim != nil {
			v.anim = anim
		}
	}
}

// WithFrameCacheLimit bounds the playback frame cache.
//
// Parameters:
//   - limit: maximum number of cached frames (default 64)
//
// Returns:
//   - ViewportOption: option function to apply
func WithFrameCacheLimit(limit int) ViewportOption {
	return func(v *viewport) {
		if limit > 0 {
			v.cache = NewFrameCache(limit)
		}
	}
}

// WithMaxTextureSize clamps the viewport's output size. Zero disables the
// clamp.
//
// Parameters:
//   - size: maximum texture edge in pixels (default 4096)
//
// Returns:
//   - ViewportOption: option function to apply
func WithMaxTextureSize(size uint32) ViewportOption {
	return func(v *viewport) {
		v.maxTextureSize = size
	}
}

// WithStats attaches a profiler to the render loop.
//
// Parameters:
//   - stats: the stats collector, or nil to disable
//
// Returns:
//   - ViewportOption: option function to apply
func WithStats(stats *profiler.Stats) ViewportOption {
	return func(v *viewport) {
		v.stats = stats
	}
}

// WithAnimationCache sets the initial cached-playback toggle (default on).
//
// Parameters:
//   - enabled: whether playback frames may be served from the cache
//
// Returns:
//   - ViewportOption: option function to apply
func WithAnimationCache(enabled bool) ViewportOption {
	return func(v *viewport) {
		v.useAnimationCache.Store(enabled)
	}
}
