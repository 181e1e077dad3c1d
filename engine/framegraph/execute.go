package framegraph

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
)

// FrameStage is the position of the render slot in the execution pipeline.
type FrameStage uint32

const (
	FrameNotStarted FrameStage = iota
	FrameBuilding
	FrameBarriersPlaced
	FrameExecuting
	FramePostExecuting
	FrameDone
)

func (s FrameStage) String() string {
	switch s {
	case FrameNotStarted:
		return "NotStarted"
	case FrameBuilding:
		return "Building"
	case FrameBarriersPlaced:
		return "BarriersPlaced"
	case FrameExecuting:
		return "Executing"
	case FramePostExecuting:
		return "PostExecuting"
	case FrameDone:
		return "Done"
	}
	return fmt.Sprintf("FrameStage(%d)", uint32(s))
}

func (fg *FrameGraph) Stage() FrameStage {
	return FrameStage(fg.stage.Load())
}

func (fg *FrameGraph) requireStage(op string, want FrameStage) {
	if got := fg.Stage(); got != want {
		contractViolation(core.ErrInvalidPhase, "%s requires stage %s, frame is in %s", op, want, got)
	}
}

// Execute runs the render slot: pre-render hooks, Build, PlaceBarriers, Render,
// Post and post-render hooks. The pass list is cleared whatever the outcome.
// Resources materialized before a failure stay cached.
func (fg *FrameGraph) Execute(cmd CommandList) error {
	defer fg.enterRender("Execute")()
	start := time.Now()
	defer fg.clear()

	if err := fg.applyPending(); err != nil {
		return err
	}

	slot := fg.slots[fg.renderSlot]
	for _, hook := range slot.preRender {
		if err := hook(fg, cmd); err != nil {
			return fmt.Errorf("pre-render hook: %w", err)
		}
	}
	if err := fg.build(); err != nil {
		return err
	}
	fg.placeBarriers()
	if err := fg.renderPasses(cmd); err != nil {
		return err
	}
	if err := fg.post(); err != nil {
		return err
	}
	for _, hook := range slot.postRender {
		if err := hook(fg, cmd); err != nil {
			return fmt.Errorf("post-render hook: %w", err)
		}
	}

	fg.frame++
	fg.metrics.Update(time.Since(start))
	fg.recordStats(len(slot.passes))
	return nil
}

// Build runs every pass's setup with a fresh Builder and materializes the declared
// textures. The first failing pass aborts the frame.
func (fg *FrameGraph) Build() error {
	defer fg.enterRender("Build")()
	return fg.build()
}

func (fg *FrameGraph) build() error {
	fg.requireStage("Build", FrameNotStarted)
	fg.stage.Store(uint32(FrameBuilding))
	fg.built = false

	for _, h := range fg.cache.imported() {
		if err := fg.materialize(h); err != nil {
			return err
		}
	}

	for _, p := range fg.slots[fg.renderSlot].passes {
		p.reset()
		b := &Builder{fg: fg, pass: p, active: true}
		err := p.setup(b)
		b.active = false
		if err != nil {
			return fmt.Errorf("setup of pass %q: %w", p.name, err)
		}
		for _, c := range p.creates {
			if err := fg.materialize(c.Handle); err != nil {
				return fmt.Errorf("pass %q: %w", p.name, err)
			}
		}
	}
	fg.built = true
	return nil
}

func (fg *FrameGraph) materialize(h ResourceHandle) error {
	desc, ok := fg.cache.Description(h)
	if !ok {
		contractViolation(core.ErrMissingDependency, "texture %s has no description", h)
	}
	resolved := desc.Resolve(fg.renderExtent, fg.outputExtent)
	_, created, err := fg.cache.Materialize(h, fg.device, resolved)
	if err != nil {
		return err
	}
	if created {
		core.LogDebug("materialized texture %q %dx%d %s", fg.cache.Name(h), resolved.Width, resolved.Height, resolved.Format)
	}
	return nil
}

// PlaceBarriers runs the barrier resolver over the built pass list.
func (fg *FrameGraph) PlaceBarriers() {
	defer fg.enterRender("PlaceBarriers")()
	fg.placeBarriers()
}

func (fg *FrameGraph) placeBarriers() {
	fg.requireStage("PlaceBarriers", FrameBuilding)
	if !fg.built {
		contractViolation(core.ErrInvalidPhase, "PlaceBarriers after a failed Build")
	}
	passes := fg.slots[fg.renderSlot].passes
	fg.resolution = ResolveBarriers(passes, lookup{fg: fg})
	for i, p := range passes {
		p.incomingBarriers = fg.resolution.Incoming[i]
	}
	fg.stage.Store(uint32(FrameBarriersPlaced))

	dump := fg.dump(passes)
	fg.mu.Lock()
	fg.lastDump = dump
	fg.mu.Unlock()
	if fg.dumpGraph {
		core.LogDebug("frame %d\n%s", fg.frame, dump)
	}
}

// Render issues each pass's barriers and records its commands in declaration
// order, then closes the frame by transitioning the swapchain for presentation.
func (fg *FrameGraph) Render(cmd CommandList) error {
	defer fg.enterRender("Render")()
	return fg.renderPasses(cmd)
}

func (fg *FrameGraph) renderPasses(cmd CommandList) error {
	fg.requireStage("Render", FrameBarriersPlaced)
	fg.stage.Store(uint32(FrameExecuting))

	for _, p := range fg.slots[fg.renderSlot].passes {
		for _, batch := range p.incomingBarriers {
			if err := fg.issue(cmd, batch); err != nil {
				return fmt.Errorf("pass %q: %w", p.name, err)
			}
		}
		if err := fg.runPass(cmd, p); err != nil {
			return err
		}
	}
	if fg.resolution.Final != nil {
		if err := fg.issue(cmd, *fg.resolution.Final); err != nil {
			return fmt.Errorf("present transition: %w", err)
		}
	}
	return nil
}

func (fg *FrameGraph) runPass(cmd CommandList, p *Pass) error {
	area := fg.renderArea(p)
	inRenderpass := p.renderpass != nil && p.queue == QueueGraphics
	if inRenderpass {
		begin, err := fg.renderpassBegin(p, area)
		if err != nil {
			return fmt.Errorf("pass %q: %w", p.name, err)
		}
		cmd.BeginRenderpass(begin)
	}

	if p.viewport != nil {
		cmd.SetViewport(*p.viewport)
	} else if inRenderpass {
		cmd.SetViewport(Viewport{Width: float32(area.Extent.Width), Height: float32(area.Extent.Height), MaxDepth: 1})
	}
	if p.scissor != nil {
		cmd.SetScissor(*p.scissor)
	} else if inRenderpass {
		cmd.SetScissor(area)
	}

	if p.execute != nil {
		if err := p.execute(fg, cmd); err != nil {
			if inRenderpass {
				cmd.EndRenderpass()
			}
			return fmt.Errorf("execute of pass %q: %w", p.name, err)
		}
	}
	if inRenderpass {
		cmd.EndRenderpass()
	}
	return nil
}

// issue submits a batch and moves the tracked layout of each resource.
func (fg *FrameGraph) issue(cmd CommandList, batch BarrierBatch) error {
	images := make([]ImageBarrier, 0, len(batch.Barriers))
	for _, b := range batch.Barriers {
		res, err := fg.GetRHITexture(b.Handle)
		if err != nil {
			if errors.Is(err, core.ErrSwapchainBooting) {
				return err
			}
			contractViolation(core.ErrMissingDependency, "barrier for %q: %s", fg.cache.Name(b.Handle), err)
		}
		images = append(images, ImageBarrier{Barrier: b, Resource: res})
	}
	cmd.PipelineBarrier(batch.SrcStage, batch.DstStage, images)
	for _, img := range images {
		img.Resource.SetLayout(img.NewLayout)
	}
	return nil
}

// renderArea is the extent of the pass's first attachment.
func (fg *FrameGraph) renderArea(p *Pass) math.Rect2D {
	targets := p.writes
	if h, ok := p.DepthStencilWrite(); ok {
		targets = append(append([]ResourceHandle(nil), targets...), h)
	}
	for _, h := range targets {
		if h.IsSwapchain() {
			return math.Rect2D{Extent: fg.outputExtent}
		}
		if desc, ok := fg.cache.Resolved(h); ok {
			return math.Rect2D{Extent: desc.Extent()}
		}
	}
	return math.Rect2D{Extent: fg.renderExtent}
}

func (fg *FrameGraph) renderpassBegin(p *Pass, area math.Rect2D) (RenderpassBegin, error) {
	begin := RenderpassBegin{
		Pass:        p.name,
		Description: *p.renderpass,
		RenderArea:  area,
	}
	for _, h := range p.writes {
		res, err := fg.GetRHITexture(h)
		if err != nil {
			return RenderpassBegin{}, err
		}
		begin.ColorTargets = append(begin.ColorTargets, res)
	}
	if h, ok := p.DepthStencilWrite(); ok {
		res, err := fg.GetRHITexture(h)
		if err != nil {
			return RenderpassBegin{}, err
		}
		begin.DepthTarget = res
	}
	return begin, nil
}

// Post runs the post callbacks in declaration order. Every callback runs; their
// errors are joined.
func (fg *FrameGraph) Post() error {
	defer fg.enterRender("Post")()
	return fg.post()
}

func (fg *FrameGraph) post() error {
	fg.requireStage("Post", FrameExecuting)
	fg.stage.Store(uint32(FramePostExecuting))

	var errs []error
	for _, p := range fg.slots[fg.renderSlot].passes {
		if p.post == nil {
			continue
		}
		if err := p.post(fg); err != nil {
			errs = append(errs, fmt.Errorf("post of pass %q: %w", p.name, err))
		}
	}
	fg.stage.Store(uint32(FrameDone))
	return errors.Join(errs...)
}

// Clear discards the render slot's passes and hooks.
func (fg *FrameGraph) Clear() {
	defer fg.enterRender("Clear")()
	fg.clear()
}

func (fg *FrameGraph) clear() {
	fg.slots[fg.renderSlot].clear()
	fg.resolution = Resolution{}
}

func (fg *FrameGraph) recordStats(passes int) {
	fps, ms, _ := fg.metrics.Frame()
	s := Stats{
		Frame:        fg.frame,
		Passes:       passes,
		Barriers:     fg.resolution.Count(),
		Resources:    fg.cache.Len(),
		Materialized: fg.cache.Materialized(),
		Epoch:        fg.cache.Epoch(),
		FPS:          fps,
		FrameTimeMS:  ms,
	}
	fg.mu.Lock()
	fg.stats = s
	fg.mu.Unlock()
}

func (fg *FrameGraph) dump(passes []*Pass) string {
	var sb strings.Builder
	name := fg.cache.Name
	for i, p := range passes {
		fmt.Fprintf(&sb, "%d %s [%s]\n", i, p.name, p.queue)
		for _, c := range p.creates {
			fmt.Fprintf(&sb, "  create %s %s\n", name(c.Handle), c.Description.Format)
		}
		for _, h := range p.reads {
			fmt.Fprintf(&sb, "  read %s\n", name(h))
		}
		for _, h := range p.writes {
			fmt.Fprintf(&sb, "  write %s\n", name(h))
		}
		if h, ok := p.DepthStencilWrite(); ok {
			fmt.Fprintf(&sb, "  depth %s\n", name(h))
		}
		formatBatches(&sb, "  ", p.incomingBarriers, name)
	}
	if fg.resolution.Final != nil {
		sb.WriteString("present\n")
		formatBatches(&sb, "  ", []BarrierBatch{*fg.resolution.Final}, name)
	}
	return sb.String()
}
