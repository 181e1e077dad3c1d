package renderer

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/headless"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// bootingBackend reports the swapchain as not ready while booting is set.
type bootingBackend struct {
	*headless.Backend
	booting bool
}

func (b *bootingBackend) BeginFrame(deltaTime float64) (framegraph.CommandList, error) {
	if b.booting {
		return nil, core.ErrSwapchainBooting
	}
	return b.Backend.BeginFrame(deltaTime)
}

func newRenderer(t *testing.T, scale float32) (*Renderer, *headless.Backend, *headless.Device) {
	t.Helper()
	device := headless.NewDevice()
	backend := headless.NewBackend(device)
	r := New(backend)
	require.NoError(t, r.Initialize("test", 800, 600, scale))
	return r, backend, device
}

// resolutions records the resolutions the next frame is built with.
func resolutions(r *Renderer) (render, output *math.Extent2D) {
	render, output = &math.Extent2D{}, &math.Extent2D{}
	r.Graph().AddPass("probe", func(b *framegraph.Builder) error {
		*render = b.RenderResolution()
		*output = b.OutputResolution()
		return nil
	}, nil, nil)
	return render, output
}

func TestDrawFrame(t *testing.T) {
	r, backend, device := newRenderer(t, 1)
	assert.Equal(t, math.Extent2D{Width: 800, Height: 600}, device.SwapchainExtent())

	fg := r.Graph()
	fg.AddPass("present", func(b *framegraph.Builder) error {
		b.SetAsRenderToSwapchain()
		return nil
	}, func(fg *framegraph.FrameGraph, cmd framegraph.CommandList) error {
		cmd.Draw(3, 1, 0, 0)
		return nil
	}, nil)
	fg.Swap()
	require.NoError(t, r.DrawFrame(0.016))

	assert.EqualValues(t, 1, backend.FrameNumber)
	assert.Equal(t, 1, backend.Commands().Count(headless.CmdDraw))
	assert.Equal(t, framegraph.LayoutPresentSrc, device.Swapchain().GetLayout())
	assert.EqualValues(t, 1, fg.Stats().Frame)
}

func TestDrawFrameSkipsWhileBooting(t *testing.T) {
	backend := &bootingBackend{Backend: headless.NewBackend(headless.NewDevice())}
	r := New(backend)
	require.NoError(t, r.Initialize("test", 800, 600, 1))

	ran := false
	r.Graph().AddPass("skipped", func(b *framegraph.Builder) error {
		ran = true
		return nil
	}, nil, nil)
	r.Graph().Swap()

	backend.booting = true
	require.NoError(t, r.DrawFrame(0.016))
	assert.False(t, ran)
	assert.Zero(t, backend.FrameNumber)

	// the skipped pass list is gone
	backend.booting = false
	r.Graph().Swap()
	require.NoError(t, r.DrawFrame(0.016))
	assert.False(t, ran)
	assert.EqualValues(t, 1, backend.FrameNumber)
}

func TestDrawFrameReportsExecutionErrors(t *testing.T) {
	r, backend, _ := newRenderer(t, 1)

	r.Graph().AddPass("bad", func(b *framegraph.Builder) error {
		_, err := b.CreateTexture("broken", framegraph.TextureDescription{})
		return err
	}, nil, nil)
	r.Graph().Swap()
	assert.ErrorIs(t, r.DrawFrame(0.016), core.ErrInvalidDescription)
	// the frame is still submitted
	assert.EqualValues(t, 1, backend.FrameNumber)
}

func TestResizeAndRenderScale(t *testing.T) {
	r, _, device := newRenderer(t, 0.5)
	assert.Equal(t, float32(0.5), r.RenderScale())

	render, output := resolutions(r)
	r.Graph().Swap()
	require.NoError(t, r.DrawFrame(0))
	assert.Equal(t, math.Extent2D{Width: 400, Height: 300}, *render)
	assert.Equal(t, math.Extent2D{Width: 800, Height: 600}, *output)

	require.NoError(t, r.OnResized(0, 0))
	require.NoError(t, r.OnResized(1600, 900))
	assert.Equal(t, math.Extent2D{Width: 1600, Height: 900}, device.SwapchainExtent())

	render, output = resolutions(r)
	r.Graph().Swap()
	require.NoError(t, r.DrawFrame(0))
	assert.Equal(t, math.Extent2D{Width: 800, Height: 450}, *render)
	assert.Equal(t, math.Extent2D{Width: 1600, Height: 900}, *output)

	r.SetRenderScale(0)
	assert.Equal(t, float32(0.5), r.RenderScale())
	r.SetRenderScale(1)
	render, _ = resolutions(r)
	r.Graph().Swap()
	require.NoError(t, r.DrawFrame(0))
	assert.Equal(t, math.Extent2D{Width: 1600, Height: 900}, *render)
}

func TestShutdownReleasesResources(t *testing.T) {
	r, _, device := newRenderer(t, 1)

	r.Graph().AddPass("A", func(b *framegraph.Builder) error {
		h, err := b.CreateTexture("X", framegraph.TextureDescription{
			Format:   framegraph.FormatRGBA8Unorm,
			Usage:    framegraph.UsageColorAttachment,
			SizeMode: framegraph.SizeOutputRelative,
		})
		if err != nil {
			return err
		}
		b.WriteTexture(h)
		return nil
	}, nil, nil)
	r.Graph().Swap()
	require.NoError(t, r.DrawFrame(0))
	require.Equal(t, 1, device.Live())

	require.NoError(t, r.Shutdown())
	assert.Zero(t, device.Live())
	assert.GreaterOrEqual(t, device.IdleWaits(), 2)
}

func TestInitializeFailure(t *testing.T) {
	device := headless.NewDevice()
	r := New(headless.NewBackend(device))
	assert.Error(t, r.Initialize("test", 800, 600, 0))
	assert.Nil(t, r.Graph())
	// the backend was shut down again
	assert.Equal(t, 1, device.IdleWaits())
}

func TestRendererTypeString(t *testing.T) {
	assert.Equal(t, "vulkan", Vulkan.String())
	assert.Equal(t, "headless", Headless.String())
}
