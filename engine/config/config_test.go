package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
)

const sample = `
[application]
name = "testbed"
width = 800
height = 600
log_level = "debug"
headless = true
frames = 3

[framegraph]
frames_in_flight = 3
render_scale = 0.5
dump_graph = true
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "testbed", cfg.Application.Name)
	assert.EqualValues(t, 800, cfg.Application.Width)
	assert.EqualValues(t, 600, cfg.Application.Height)
	assert.True(t, cfg.Application.Headless)
	assert.EqualValues(t, 3, cfg.Application.Frames)
	assert.EqualValues(t, 3, cfg.FrameGraph.FramesInFlight)
	assert.InDelta(t, 0.5, cfg.FrameGraph.RenderScale, 1e-6)
	assert.True(t, cfg.FrameGraph.DumpGraph)
	// untouched keys keep their defaults
	assert.Equal(t, Default().FrameGraph.MaxSyncPoints, cfg.FrameGraph.MaxSyncPoints)
	assert.Equal(t, Default().Application.Workers, cfg.Application.Workers)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"syntax":      "[application\nname = 1",
		"zero width":  "[application]\nwidth = 0",
		"log level":   "[application]\nlog_level = \"loud\"",
		"scale":       "[framegraph]\nrender_scale = 0.0",
		"in flight":   "[framegraph]\nframes_in_flight = 64",
		"sync points": "[framegraph]\nmax_sync_points = 0",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestMarshalParse(t *testing.T) {
	cfg := Default()
	cfg.Application.Name = "round"
	cfg.FrameGraph.RenderScale = 0.75
	data, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	require.NoError(t, err)
	defer w.Close()

	// an invalid write is ignored
	require.NoError(t, os.WriteFile(path, []byte("[framegraph]\nrender_scale = -1.0"), 0o644))
	time.Sleep(4 * settle)
	require.NoError(t, os.WriteFile(path, []byte("[framegraph]\nrender_scale = 2.0"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.InDelta(t, 2.0, cfg.FrameGraph.RenderScale, 1e-6)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
