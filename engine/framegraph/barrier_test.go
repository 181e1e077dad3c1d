package framegraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/headless"
)

func TestColorThenSwapchainScenario(t *testing.T) {
	fg, _ := newGraph(t)

	var color framegraph.ResourceHandle
	fg.AddPass("A", create("Color", colorDesc, &color), nil, nil)
	fg.AddPass("B", func(b *framegraph.Builder) error {
		h, err := b.GetTexture("Color")
		if err != nil {
			return err
		}
		b.ReadTexture(h)
		b.SetAsRenderToSwapchain()
		return nil
	}, nil, nil)
	cmd := frame(t, fg)

	var batches []headless.Command
	for _, c := range cmd.Commands() {
		if c.Kind == headless.CmdPipelineBarrier {
			batches = append(batches, c)
		}
	}
	require.Len(t, batches, 4)

	// before A
	require.Len(t, batches[0].Barriers, 1)
	a := batches[0].Barriers[0]
	assert.Equal(t, color, a.Handle)
	assert.Equal(t, framegraph.LayoutUndefined, a.OldLayout)
	assert.Equal(t, framegraph.LayoutColorAttachment, a.NewLayout)
	assert.Equal(t, framegraph.StageTopOfPipe, batches[0].SrcStage)
	assert.Equal(t, framegraph.StageColorAttachmentOutput, batches[0].DstStage)

	// before B, the read first
	b := batches[1].Barriers[0]
	assert.Equal(t, color, b.Handle)
	assert.Equal(t, framegraph.LayoutColorAttachment, b.OldLayout)
	assert.Equal(t, framegraph.LayoutShaderReadOnly, b.NewLayout)
	assert.Equal(t, framegraph.AccessShaderRead, b.DstAccess)
	assert.Equal(t, framegraph.StageColorAttachmentOutput, batches[1].SrcStage)
	assert.Equal(t, framegraph.StageFragmentShader, batches[1].DstStage)

	// then the swapchain write
	sw := batches[2].Barriers[0]
	assert.Equal(t, framegraph.SwapchainHandle, sw.Handle)
	assert.Equal(t, framegraph.LayoutUndefined, sw.OldLayout)
	assert.Equal(t, framegraph.LayoutColorAttachment, sw.NewLayout)

	// after B
	present := batches[3].Barriers[0]
	assert.Equal(t, framegraph.SwapchainHandle, present.Handle)
	assert.Equal(t, framegraph.LayoutColorAttachment, present.OldLayout)
	assert.Equal(t, framegraph.LayoutPresentSrc, present.NewLayout)
	assert.Equal(t, framegraph.StageColorAttachmentOutput, batches[3].SrcStage)
	assert.Equal(t, framegraph.StageBottomOfPipe, batches[3].DstStage)

	// the next frame starts from the layouts the previous one left behind
	fg.AddPass("A", create("Color", colorDesc, nil), nil, nil)
	fg.AddPass("B", func(b *framegraph.Builder) error {
		b.SetAsRenderToSwapchain()
		return nil
	}, nil, nil)
	barriers := frame(t, fg).Barriers()
	require.Len(t, barriers, 3)
	assert.Equal(t, framegraph.LayoutShaderReadOnly, barriers[0].OldLayout)
	assert.Equal(t, framegraph.LayoutPresentSrc, barriers[1].OldLayout)
}

func TestBarrierContinuity(t *testing.T) {
	fg, _ := newGraph(t)

	fg.AddPass("W", func(b *framegraph.Builder) error {
		c, err := b.CreateTexture("color", colorDesc)
		if err != nil {
			return err
		}
		d, err := b.CreateTexture("depth", depthDesc)
		if err != nil {
			return err
		}
		b.WriteTexture(c)
		b.WriteDepthStencil(d)
		return nil
	}, nil, nil)
	fg.AddPass("P", func(b *framegraph.Builder) error {
		for _, name := range []string{"color", "depth"} {
			h, err := b.GetTexture(name)
			if err != nil {
				return err
			}
			b.ReadTexture(h)
		}
		return nil
	}, nil, nil)
	passes := passesOf(fg)
	frame(t, fg)

	require.Len(t, *passes, 2)
	w := (*passes)[0].IncomingBarriers()
	p := (*passes)[1].IncomingBarriers()

	// W: color write batch then depth write batch
	require.Len(t, w, 2)
	assert.Equal(t, framegraph.StageColorAttachmentOutput, w[0].DstStage)
	assert.Equal(t, framegraph.StageEarlyFragmentTest, w[1].DstStage)
	assert.Equal(t, framegraph.AccessDepthStencilAttachmentWrite, w[1].Barriers[0].DstAccess)

	// P: color read batch then depth read batch
	require.Len(t, p, 2)
	assert.Equal(t, w[0].Barriers[0].NewLayout, p[0].Barriers[0].OldLayout)
	assert.Equal(t, w[1].Barriers[0].NewLayout, p[1].Barriers[0].OldLayout)
	assert.Equal(t, framegraph.LayoutDepthStencilAttachment, p[1].Barriers[0].OldLayout)
	assert.Equal(t, framegraph.StageEarlyFragmentTest, p[1].SrcStage)
	assert.Equal(t, framegraph.StageFragmentShader, p[1].DstStage)
	assert.Equal(t, framegraph.AspectDepth, p[1].Barriers[0].Range.Aspect)
}

func TestReadAfterReadNeedsNoBarrier(t *testing.T) {
	fg, _ := newGraph(t)

	fg.AddPass("W", create("x", colorDesc, nil), nil, nil)
	fg.AddPass("R1", read("x"), nil, nil)
	fg.AddPass("R2", read("x"), nil, nil)
	passes := passesOf(fg)
	cmd := frame(t, fg)

	require.Len(t, *passes, 3)
	assert.Len(t, (*passes)[1].IncomingBarriers(), 1)
	assert.Empty(t, (*passes)[2].IncomingBarriers())
	assert.Equal(t, 2, cmd.Count(headless.CmdPipelineBarrier))
}

func TestReadFromNewStageNeedsBarrier(t *testing.T) {
	cases := []struct {
		name         string
		first, then  framegraph.PipelineStageFlags
		firstCompute bool
	}{
		{"compute then fragment", framegraph.StageComputeShader, framegraph.StageFragmentShader, true},
		{"fragment then compute", framegraph.StageFragmentShader, framegraph.StageComputeShader, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fg, _ := newGraph(t)
			addRead := func(name string, compute bool) {
				if compute {
					fg.AddComputePass(name, read("x"), nil, nil)
				} else {
					fg.AddPass(name, read("x"), nil, nil)
				}
			}

			fg.AddPass("W", create("x", colorDesc, nil), nil, nil)
			addRead("R1", tc.firstCompute)
			addRead("R2", !tc.firstCompute)
			addRead("R3", tc.firstCompute)
			fg.AddPass("W2", func(b *framegraph.Builder) error {
				h, err := b.GetTexture("x")
				if err != nil {
					return err
				}
				b.WriteTexture(h)
				return nil
			}, nil, nil)
			passes := passesOf(fg)
			frame(t, fg)
			require.Len(t, *passes, 5)

			r1 := (*passes)[1].IncomingBarriers()
			require.Len(t, r1, 1)
			assert.Equal(t, framegraph.LayoutColorAttachment, r1[0].Barriers[0].OldLayout)
			assert.Equal(t, framegraph.LayoutShaderReadOnly, r1[0].Barriers[0].NewLayout)
			assert.Equal(t, framegraph.StageColorAttachmentOutput, r1[0].SrcStage)
			assert.Equal(t, tc.first, r1[0].DstStage)

			// same layout, but the second stage has to wait for the first
			r2 := (*passes)[2].IncomingBarriers()
			require.Len(t, r2, 1)
			b := r2[0].Barriers[0]
			assert.Equal(t, framegraph.LayoutShaderReadOnly, b.OldLayout)
			assert.Equal(t, framegraph.LayoutShaderReadOnly, b.NewLayout)
			assert.Equal(t, framegraph.AccessShaderRead, b.DstAccess)
			assert.Equal(t, tc.first, r2[0].SrcStage)
			assert.Equal(t, tc.then, r2[0].DstStage)

			// both stages are covered now
			assert.Empty(t, (*passes)[3].IncomingBarriers())

			// the next write waits for every reader
			w2 := (*passes)[4].IncomingBarriers()
			require.Len(t, w2, 1)
			assert.Equal(t, framegraph.LayoutShaderReadOnly, w2[0].Barriers[0].OldLayout)
			assert.Equal(t, tc.first|tc.then, w2[0].SrcStage)
			assert.Equal(t, framegraph.AccessShaderRead, w2[0].Barriers[0].SrcAccess)
		})
	}
}

func TestSwapchainClosedOnce(t *testing.T) {
	fg, _ := newGraph(t)

	toSwapchain := func(b *framegraph.Builder) error {
		b.SetAsRenderToSwapchain()
		return nil
	}
	fg.AddPass("one", toSwapchain, nil, nil)
	fg.AddPass("two", toSwapchain, nil, nil)
	fg.AddPass("three", toSwapchain, nil, nil)
	barriers := frame(t, fg).Barriers()

	presents := 0
	for _, b := range barriers {
		if b.NewLayout == framegraph.LayoutPresentSrc {
			presents++
		}
	}
	assert.Equal(t, 1, presents)
	assert.Equal(t, framegraph.LayoutPresentSrc, barriers[len(barriers)-1].NewLayout)

	// a frame that never touches the swapchain does not present it
	fg.AddPass("offscreen", create("x", colorDesc, nil), nil, nil)
	for _, b := range frame(t, fg).Barriers() {
		assert.NotEqual(t, framegraph.SwapchainHandle, b.Handle)
	}
}

func TestComputePassUsesStorageLayout(t *testing.T) {
	fg, _ := newGraph(t)

	storage := framegraph.TextureDescription{
		Format: framegraph.FormatRGBA16Float,
		Width:  64,
		Height: 64,
		Usage:  framegraph.UsageUnorderedAccess | framegraph.UsageSampled,
	}
	fg.AddComputePass("simulate", create("field", storage, nil), func(fg *framegraph.FrameGraph, cmd framegraph.CommandList) error {
		cmd.Dispatch(8, 8, 1)
		return nil
	}, nil)
	fg.AddPass("shade", read("field"), nil, nil)
	passes := passesOf(fg)
	cmd := frame(t, fg)

	require.Len(t, *passes, 2)
	assert.Equal(t, framegraph.QueueCompute, (*passes)[0].Queue())
	w := (*passes)[0].IncomingBarriers()
	require.Len(t, w, 1)
	assert.Equal(t, framegraph.LayoutGeneral, w[0].Barriers[0].NewLayout)
	assert.Equal(t, framegraph.AccessShaderWrite, w[0].Barriers[0].DstAccess)
	assert.Equal(t, framegraph.StageComputeShader, w[0].DstStage)

	r := (*passes)[1].IncomingBarriers()
	require.Len(t, r, 1)
	assert.Equal(t, framegraph.LayoutGeneral, r[0].Barriers[0].OldLayout)
	assert.Equal(t, framegraph.StageComputeShader, r[0].SrcStage)
	assert.Equal(t, framegraph.StageFragmentShader, r[0].DstStage)

	assert.Equal(t, 1, cmd.Count(headless.CmdDispatch))
	// compute passes never open a renderpass
	assert.Zero(t, cmd.Count(headless.CmdBeginRenderpass))
}

func TestUseBeforeCreatePanics(t *testing.T) {
	fg, _ := newGraph(t)

	fg.AddPass("producer", create("late", colorDesc, nil), nil, nil)
	frame(t, fg)

	// the name is known from the previous frame but nothing creates it in this one
	fg.AddPass("consumer", read("late"), nil, nil)
	fg.Swap()
	requirePanicsWith(t, core.ErrMissingDependency, func() {
		_ = fg.Execute(headless.NewCommandList())
	})
}

func TestImportedTextureNeedsNoCreate(t *testing.T) {
	fg, device := newGraph(t)

	lutDesc := framegraph.TextureDescription{
		Format: framegraph.FormatRGBA8Unorm,
		Width:  16,
		Height: 16,
		Usage:  framegraph.UsageSampled,
	}
	requirePanicsWith(t, core.ErrWrongThread, func() { _, _ = fg.CreateTexture("lut", lutDesc) })
	assert.Zero(t, device.Live())

	var lut framegraph.ResourceHandle
	fg.AddPreRender(func(fg *framegraph.FrameGraph, cmd framegraph.CommandList) error {
		var err error
		lut, err = fg.CreateTexture("lut", lutDesc)
		return err
	})
	var seen framegraph.ResourceHandle
	fg.AddPass("grade", func(b *framegraph.Builder) error {
		h, err := b.GetTexture("lut")
		if err != nil {
			return err
		}
		seen = h
		b.ReadTexture(h)
		return nil
	}, nil, nil)
	barriers := frame(t, fg).Barriers()
	assert.Equal(t, 1, device.Live())
	assert.Equal(t, lut, seen)
	require.Len(t, barriers, 1)
	// never written, so the read starts from the layout it was created in
	assert.Equal(t, framegraph.LayoutUndefined, barriers[0].OldLayout)
	assert.Equal(t, framegraph.LayoutShaderReadOnly, barriers[0].NewLayout)
	assert.Equal(t, framegraph.StageTopOfPipe, barriers[0].SrcStage)

	res, err := fg.GetRHITexture(lut)
	require.NoError(t, err)
	assert.Equal(t, framegraph.LayoutShaderReadOnly, res.GetLayout())

	// still readable in the next frame
	fg.AddPass("grade", read("lut"), nil, nil)
	assert.Empty(t, frame(t, fg).Barriers())
}
