package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-framegraph/engine/config"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/headless"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func headlessConfig(frames uint64) *config.Config {
	cfg := config.Default()
	cfg.Application.Headless = true
	cfg.Application.Frames = frames
	cfg.Application.LogLevel = "error"
	cfg.Application.Workers = 2
	return cfg
}

// presentGame records one pass writing the swapchain per frame.
func presentGame(cfg *config.Config, updates *atomic.Int32) *Game {
	g := &Game{Config: cfg}
	g.FnUpdate = func(deltaTime float64) error {
		updates.Add(1)
		g.FrameGraph.AddPass("present", func(b *framegraph.Builder) error {
			b.SetAsRenderToSwapchain()
			return nil
		}, func(fg *framegraph.FrameGraph, cmd framegraph.CommandList) error {
			cmd.Draw(3, 1, 0, 0)
			return nil
		}, nil)
		return nil
	}
	return g
}

func TestNewValidatesGame(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&Game{})
	assert.Error(t, err)

	update := func(float64) error { return nil }
	boom := errors.New("boom")
	_, err = New(&Game{FnUpdate: update, FnBoot: func(*config.Config) error { return boom }})
	assert.ErrorIs(t, err, boom)

	_, err = New(&Game{FnUpdate: update, FnBoot: func(cfg *config.Config) error {
		cfg.Application.Workers = 0
		return nil
	}})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	g := &Game{FnUpdate: update}
	e, err := New(g)
	require.NoError(t, err)
	assert.NotNil(t, g.Config)
	assert.Equal(t, EngineStageUninitialized, e.Stage())
	assert.Error(t, e.Run(context.Background()))
}

func TestRunHeadlessFrames(t *testing.T) {
	var updates atomic.Int32
	g := presentGame(headlessConfig(3), &updates)
	var initialized, shutdown bool
	var resized math.Extent2D
	g.FnInitialize = func() error {
		initialized = g.FrameGraph != nil && g.JobSystem != nil
		return nil
	}
	g.FnOnResize = func(w, h uint32) error {
		resized = math.Extent2D{Width: w, Height: h}
		return nil
	}
	g.FnShutdown = func() error {
		shutdown = true
		return nil
	}

	backend := headless.NewBackend(headless.NewDevice())
	e, err := New(g, WithBackend(backend))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())
	assert.True(t, initialized)
	assert.Equal(t, math.Extent2D{Width: 1280, Height: 720}, resized)
	assert.Same(t, g.FrameGraph, e.Renderer().Graph())

	require.NoError(t, e.Run(context.Background()))
	assert.EqualValues(t, 3, e.Frames())
	assert.EqualValues(t, 3, updates.Load())
	assert.EqualValues(t, 3, backend.FrameNumber)
	assert.Equal(t, 1, backend.Commands().Count(headless.CmdDraw))
	assert.Equal(t, framegraph.LayoutPresentSrc, backend.Device().GetSwapchainImage().GetLayout())

	require.NoError(t, e.Shutdown())
	assert.True(t, shutdown)
	assert.Equal(t, EngineStageUninitialized, e.Stage())
}

func TestQuitEventStopsRun(t *testing.T) {
	var updates atomic.Int32
	g := presentGame(headlessConfig(0), &updates)
	update := g.FnUpdate
	g.FnUpdate = func(deltaTime float64) error {
		if updates.Load() == 5 {
			core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
		}
		return update(deltaTime)
	}

	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after the quit event")
	}
	assert.GreaterOrEqual(t, e.Frames(), uint64(4))
}

func TestContextCancelStopsRun(t *testing.T) {
	var updates atomic.Int32
	e, err := New(presentGame(headlessConfig(0), &updates))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Positive(t, e.Frames())
}

func TestUpdateErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	e, err := New(&Game{Config: headlessConfig(0), FnUpdate: func(float64) error { return boom }})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	assert.ErrorIs(t, e.Run(context.Background()), boom)
	assert.Zero(t, e.Frames())
}

func TestResizeIsAppliedBetweenFrames(t *testing.T) {
	var updates atomic.Int32
	g := presentGame(headlessConfig(2), &updates)
	var seen math.Extent2D
	g.FnOnResize = func(w, h uint32) error {
		seen = math.Extent2D{Width: w, Height: h}
		return nil
	}
	device := headless.NewDevice()
	e, err := New(g, WithBackend(headless.NewBackend(device)))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	ctx := core.EventContext{}
	ctx.Data.U32[0], ctx.Data.U32[1] = 1024, 768
	core.EventFire(core.EVENT_CODE_RESIZED, nil, ctx)
	assert.Equal(t, math.Extent2D{Width: 1024, Height: 768}, seen)
	// nothing changes until the render actor picks it up
	assert.Equal(t, math.Extent2D{Width: 1280, Height: 720}, device.SwapchainExtent())

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, math.Extent2D{Width: 1024, Height: 768}, device.SwapchainExtent())
	assert.EqualValues(t, 2, e.Frames())
}

func TestMinimizedWindowSuspendsRendering(t *testing.T) {
	var updates atomic.Int32
	e, err := New(presentGame(headlessConfig(3), &updates))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	core.EventFire(core.EVENT_CODE_RESIZED, nil, core.EventContext{})
	require.NoError(t, e.Run(context.Background()))
	assert.Zero(t, e.Frames())
	assert.EqualValues(t, 3, updates.Load())
	assert.Zero(t, e.Renderer().Graph().UpdatePassCount())
}

func TestConfigReloadChangesRenderScale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	write := func(scale string) {
		data := "[application]\nheadless = true\nframes = 1\nlog_level = \"error\"\n[framegraph]\nrender_scale = " + scale + "\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	}
	write("1.0")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	var updates atomic.Int32
	e, err := New(presentGame(cfg, &updates), WithConfigPath(path))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	reloaded := make(chan float32, 16)
	listener := new(int)
	core.EventRegister(core.EVENT_CODE_CONFIG_RELOADED, listener, func(code core.SystemEventCode, sender interface{}, l interface{}, data core.EventContext) bool {
		assert.Equal(t, path, data.Data.C[0])
		reloaded <- data.Data.F32[0]
		return false
	})
	write("0.5")

	// a reload may observe the truncated file first
	timeout := time.After(5 * time.Second)
	for scale := float32(0); scale != 0.5; {
		select {
		case scale = <-reloaded:
		case <-timeout:
			t.Fatal("config was not reloaded")
		}
	}
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, float32(0.5), e.Renderer().RenderScale())
}
