package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
)

// Renderer owns a backend and the frame graph built on top of its device. Apart
// from Graph, its methods belong to the render actor.
type Renderer struct {
	backend     Backend
	graph       *framegraph.FrameGraph
	output      math.Extent2D
	renderScale float32
}

func New(backend Backend) *Renderer {
	return &Renderer{backend: backend, renderScale: 1}
}

// Initialize brings the backend up and creates the frame graph. renderScale
// scales the render resolution relative to the output.
func (r *Renderer) Initialize(appName string, width, height uint32, renderScale float32, opts ...framegraph.Option) error {
	if err := r.backend.Initialize(appName, width, height); err != nil {
		return fmt.Errorf("renderer backend: %w", err)
	}
	r.renderScale = renderScale
	r.output = math.Extent2D{Width: width, Height: height}
	opts = append([]framegraph.Option{framegraph.WithResolution(width, height, renderScale)}, opts...)
	graph, err := framegraph.New(r.backend.Device(), opts...)
	if err != nil {
		return errors.Join(err, r.backend.Shutdown())
	}
	r.graph = graph
	return nil
}

func (r *Renderer) Graph() *framegraph.FrameGraph {
	return r.graph
}

func (r *Renderer) Backend() Backend {
	return r.backend
}

// DrawFrame records the frame graph's render slot into the backend's command list
// and submits it. A frame the swapchain is not ready for is skipped silently.
func (r *Renderer) DrawFrame(deltaTime float64) error {
	cmd, err := r.backend.BeginFrame(deltaTime)
	if errors.Is(err, core.ErrSwapchainBooting) {
		r.graph.Clear()
		return nil
	}
	if err != nil {
		return fmt.Errorf("begin frame: %w", err)
	}
	execErr := r.graph.Execute(cmd)
	if execErr != nil {
		core.LogError("frame graph execution failed: %s", execErr)
	}
	if err := r.backend.EndFrame(deltaTime); err != nil && !errors.Is(err, core.ErrSwapchainBooting) {
		return errors.Join(execErr, fmt.Errorf("end frame: %w", err))
	}
	return execErr
}

// OnResized propagates a new window size to the backend and the frame graph.
func (r *Renderer) OnResized(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	if err := r.backend.Resized(width, height); err != nil {
		return err
	}
	r.output = math.Extent2D{Width: width, Height: height}
	r.graph.SetOutputResolution(width, height)
	r.applyRenderScale()
	return nil
}

// SetRenderScale changes the render resolution relative to the output.
func (r *Renderer) SetRenderScale(scale float32) {
	if scale <= 0 || scale == r.renderScale {
		return
	}
	r.renderScale = scale
	r.applyRenderScale()
}

func (r *Renderer) RenderScale() float32 {
	return r.renderScale
}

func (r *Renderer) applyRenderScale() {
	render := r.output.Scale(r.renderScale)
	r.graph.SetRenderResolution(render.Width, render.Height)
}

func (r *Renderer) Shutdown() error {
	var errs []error
	if r.graph != nil {
		errs = append(errs, r.graph.Release())
	}
	errs = append(errs, r.backend.Shutdown())
	return errors.Join(errs...)
}
