package bridge

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-viewport/bridge/config"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/host"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/profiler"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/renderthread"
	"github.com/Carmen-Shannon/oxy-viewport/bridge/viewport"
)

// BridgeOption is a functional option for configuring a Bridge.
type BridgeOption func(*bridge)

// WithSettings applies loaded settings to the bridge and the viewports it
// creates.
//
// Parameters:
//   - settings: the settings to apply
//
// Returns:
//   - BridgeOption: option function to apply
func WithSettings(settings config.Settings) BridgeOption {
	return func(b *bridge) {
		b.settings = settings
	}
}

// WithDispatcher supplies the render-thread dispatcher. Defaults to a fresh
// dispatcher owned by the bridge.
//
// Parameters:
//   - dispatcher: the dispatcher to use
//
// Returns:
//   - BridgeOption: option function to apply
func WithDispatcher(dispatcher renderthread.Dispatcher) BridgeOption {
	return func(b *bridge) {
		if dispatcher != nil {
			b.dispatcher = dispatcher
		}
	}
}

// WithTextureManager sets the texture manager shared by all viewports.
//
// Parameters:
//   - textures: the texture manager
//
// Returns:
//   - BridgeOption: option function to apply
func WithTextureManager(textures host.TextureManager) BridgeOption {
	return func(b *bridge) {
		b.textures = textures
	}
}

// WithAnimationControl sets the playback-state source shared by all
// viewports.
//
// Parameters:
//   - anim: the animation control
//
// Returns:
//   - BridgeOption: option function to apply
func WithAnimationControl(anim host.AnimationControl) BridgeOption {
	return func(b *bridge) {
		b.anim = anim
	}
}

// New creates a Bridge and starts its render thread.
//
// Parameters:
//   - options: functional options for bridge configuration
//
// Returns:
//   - Bridge: the new bridge
func New(options ...BridgeOption) Bridge {
	b := &bridge{
		settings:  config.Default(),
		mu:        &sync.Mutex{},
		viewports: make(map[string]viewport.Viewport),
	}

	for _, opt := range options {
		opt(b)
	}

	if b.dispatcher == nil {
		b.dispatcher = renderthread.NewDispatcher()
	}
	if b.settings.Profiling {
		b.stats = profiler.NewStats("viewport")
	}

	b.dispatcher.Start()
	return b
}
