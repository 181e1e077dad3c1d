package testbed

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-framegraph/engine"
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

func runTestbed(t *testing.T, frames uint64, bloom bool) (*TestGame, *engine.Engine, *headless.Backend) {
	t.Helper()
	cfg, err := config.Load("headless.toml")
	require.NoError(t, err)
	cfg.Application.Frames = frames
	cfg.Application.LogLevel = "error"

	tb := NewTestGame(cfg)
	tb.SetBloom(bloom)
	backend := headless.NewBackend(headless.NewDevice())
	e, err := engine.New(tb.Game, engine.WithBackend(backend))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	t.Cleanup(func() { require.NoError(t, e.Shutdown()) })

	require.NoError(t, e.Run(context.Background()))
	require.EqualValues(t, frames, e.Frames())
	return tb, e, backend
}

func TestDeferredFrame(t *testing.T) {
	tb, e, backend := runTestbed(t, 3, true)
	cmd := backend.Commands()

	assert.Equal(t, 3, cmd.Count(headless.CmdDraw))
	assert.Equal(t, 1, cmd.Count(headless.CmdDispatch))
	assert.Equal(t, 3, cmd.Count(headless.CmdBeginRenderpass))
	assert.Equal(t, 3, cmd.Count(headless.CmdEndRenderpass))

	// stats come back through the sync point of the frame before last
	stats := tb.LastStats()
	assert.Equal(t, 4, stats.Passes)
	assert.Equal(t, 6, stats.Resources)
	assert.Equal(t, 6, stats.Materialized)
	assert.Positive(t, stats.Frame)

	fg := e.Renderer().Graph()
	bloom, err := fg.GetRHITextureByName(BloomTexture)
	require.NoError(t, err)
	assert.Equal(t, framegraph.LayoutShaderReadOnly, bloom.GetLayout())
	assert.EqualValues(t, 640, bloom.(*headless.Texture).Description.Width)

	noise, err := fg.GetRHITextureByName(NoiseTexture)
	require.NoError(t, err)
	assert.Equal(t, framegraph.LayoutShaderReadOnly, noise.GetLayout())
	assert.Equal(t, framegraph.LayoutPresentSrc, backend.Device().GetSwapchainImage().GetLayout())
}

func TestSteadyStateBarriers(t *testing.T) {
	_, _, backend := runTestbed(t, 3, true)

	var gbufferWrites []framegraph.Barrier
	for _, b := range backend.Commands().Barriers() {
		if b.NewLayout == framegraph.LayoutColorAttachment && b.Handle != framegraph.SwapchainHandle {
			gbufferWrites = append(gbufferWrites, b)
		}
	}
	// albedo, normal and hdr come back from being sampled in the previous frame
	require.Len(t, gbufferWrites, 3)
	for _, b := range gbufferWrites {
		assert.Equal(t, framegraph.LayoutShaderReadOnly, b.OldLayout)
	}
}

func TestWithoutBloom(t *testing.T) {
	tb, _, backend := runTestbed(t, 2, false)
	assert.Zero(t, backend.Commands().Count(headless.CmdDispatch))
	assert.Equal(t, 3, tb.LastStats().Passes)
}

func TestFrameParameters(t *testing.T) {
	tb, _, _ := runTestbed(t, 1, true)
	st := tb.state()
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Equal(t, uint32(1280), st.width)
	assert.Equal(t, uint32(720), st.height)
	assert.Equal(t, float32(1), st.clear.W)
	assert.NotEqual(t, math.Vec4{}, st.clear)
}
