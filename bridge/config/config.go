// Package config loads bridge settings from a TOML file. Every field has a
// working default so a missing or partial file never blocks startup.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"
)

// Settings holds the tunable bridge parameters.
type Settings struct {
	// UseAnimationCache enables cached playback rendering.
	UseAnimationCache bool `toml:"use_animation_cache"`

	// InteractiveIterations is the convergence budget while interactive.
	InteractiveIterations int `toml:"interactive_iterations"`

	// AnimatingIterations is the convergence budget during playback.
	AnimatingIterations int `toml:"animating_iterations"`

	// MaxTextureSize clamps viewport output; zero disables the clamp.
	MaxTextureSize uint32 `toml:"max_texture_size"`

	// FrameCacheLimit bounds the playback frame cache per viewport.
	FrameCacheLimit int `toml:"frame_cache_limit"`

	// TransformWorkers sizes the instancer's parallel transform pool.
	TransformWorkers int `toml:"transform_workers"`

	// Profiling enables per-second render-loop statistics logging.
	Profiling bool `toml:"profiling"`
}

// Default returns the settings used when no file overrides them.
//
// Returns:
//   - Settings: the default settings
func Default() Settings {
	return Settings{
		UseAnimationCache:     true,
		InteractiveIterations: 32,
		AnimatingIterations:   4,
		MaxTextureSize:        4096,
		FrameCacheLimit:       64,
		TransformWorkers:      runtime.NumCPU(),
		Profiling:             false,
	}
}

// Load reads settings from a TOML file, applying defaults for absent keys.
// A missing file yields the defaults without error.
//
// Parameters:
//   - path: the settings file path
//
// Returns:
//   - Settings: the loaded settings
//   - error: error if the file exists but cannot be read or parsed
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return s.validate()
}

// validate clamps out-of-range values back to their defaults.
func (s Settings) validate() (Settings, error) {
	if s.InteractiveIterations < 1 {
		s.InteractiveIterations = Default().InteractiveIterations
	}
	if s.AnimatingIterations < 1 {
		s.AnimatingIterations = Default().AnimatingIterations
	}
	if s.FrameCacheLimit < 1 {
		s.FrameCacheLimit = Default().FrameCacheLimit
	}
	if s.TransformWorkers < 1 {
		s.TransformWorkers = Default().TransformWorkers
	}
	return s, nil
}
