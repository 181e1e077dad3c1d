package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
)

const (
	maxFramesInFlight = 8
	maxRenderScale    = 4.0
)

type Config struct {
	Application ApplicationConfig `toml:"application"`
	FrameGraph  FrameGraphConfig  `toml:"framegraph"`
}

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position, if applicable.
	PosX uint32 `toml:"pos_x"`
	PosY uint32 `toml:"pos_y"`
	// Starting output resolution.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// One of debug, info, warn, error, fatal.
	LogLevel string `toml:"log_level"`
	// Headless runs on the in-memory backend without a window.
	Headless bool `toml:"headless"`
	// Frames stops the engine after that many frames. 0 runs until closed.
	Frames uint64 `toml:"frames"`
	// Workers is the size of the update job pool.
	Workers int `toml:"workers"`
}

type FrameGraphConfig struct {
	FramesInFlight uint32  `toml:"frames_in_flight"`
	RenderScale    float32 `toml:"render_scale"`
	MaxSyncPoints  int     `toml:"max_sync_points"`
	DumpGraph      bool    `toml:"dump_graph"`
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:     "Anima Frame Graph",
			PosX:     100,
			PosY:     100,
			Width:    1280,
			Height:   720,
			LogLevel: "info",
			Workers:  4,
		},
		FrameGraph: FrameGraphConfig{
			FramesInFlight: 2,
			RenderScale:    1.0,
			MaxSyncPoints:  256,
		},
	}
}

// Parse decodes TOML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%w: line %d column %d: %s", core.ErrInvalidConfig, row, col, derr.Error())
		}
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	app := c.Application
	if app.Width == 0 || app.Height == 0 {
		errs = append(errs, fmt.Errorf("application size %dx%d must be non-zero", app.Width, app.Height))
	}
	if _, err := core.ParseLogLevel(app.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if app.Workers < 1 {
		errs = append(errs, fmt.Errorf("application workers %d must be at least 1", app.Workers))
	}
	fg := c.FrameGraph
	if fg.FramesInFlight > maxFramesInFlight {
		errs = append(errs, fmt.Errorf("framegraph frames_in_flight %d exceeds %d", fg.FramesInFlight, maxFramesInFlight))
	}
	if fg.RenderScale <= 0 || fg.RenderScale > maxRenderScale {
		errs = append(errs, fmt.Errorf("framegraph render_scale %g out of range (0, %g]", fg.RenderScale, maxRenderScale))
	}
	if fg.MaxSyncPoints < 1 {
		errs = append(errs, fmt.Errorf("framegraph max_sync_points %d must be at least 1", fg.MaxSyncPoints))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Marshal encodes the configuration back to TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
