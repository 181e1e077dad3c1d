package framegraph_test

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/headless"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

var colorDesc = framegraph.TextureDescription{
	Format: framegraph.FormatRGBA8Unorm,
	Width:  1920,
	Height: 1080,
	Usage:  framegraph.UsageColorAttachment | framegraph.UsageSampled,
}

var depthDesc = framegraph.TextureDescription{
	Format: framegraph.FormatD32Float,
	Width:  1920,
	Height: 1080,
	Usage:  framegraph.UsageDepthStencil | framegraph.UsageSampled,
}

func newGraph(t *testing.T, opts ...headless.DeviceOption) (*framegraph.FrameGraph, *headless.Device) {
	t.Helper()
	opts = append([]headless.DeviceOption{headless.WithSwapchain(1920, 1080)}, opts...)
	device := headless.NewDevice(opts...)
	fg, err := framegraph.New(device, framegraph.WithResolution(1920, 1080, 1))
	require.NoError(t, err)
	return fg, device
}

// frame publishes the recorded passes and executes them.
func frame(t *testing.T, fg *framegraph.FrameGraph) *headless.CommandList {
	t.Helper()
	fg.Swap()
	cmd := headless.NewCommandList()
	require.NoError(t, fg.Execute(cmd))
	return cmd
}

// passesOf returns the resolved pass list of the next executed frame.
func passesOf(fg *framegraph.FrameGraph) *[]*framegraph.Pass {
	var passes []*framegraph.Pass
	fg.AddPostRender(func(fg *framegraph.FrameGraph, cmd framegraph.CommandList) error {
		passes = fg.RenderPasses()
		return nil
	})
	return &passes
}

func requirePanicsWith(t *testing.T, sentinel error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic wrapping %v", sentinel)
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.True(t, errors.Is(err, sentinel), "panic %v does not wrap %v", err, sentinel)
	}()
	fn()
}

func create(name string, desc framegraph.TextureDescription, out *framegraph.ResourceHandle) framegraph.SetupFunc {
	return func(b *framegraph.Builder) error {
		h, err := b.CreateTexture(name, desc)
		if err != nil {
			return err
		}
		b.WriteTexture(h)
		if out != nil {
			*out = h
		}
		return nil
	}
}

func read(name string) framegraph.SetupFunc {
	return func(b *framegraph.Builder) error {
		h, err := b.GetTexture(name)
		if err != nil {
			return err
		}
		b.ReadTexture(h)
		return nil
	}
}
