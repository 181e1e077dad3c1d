package framegraph

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
)

// Builder is handed to a pass's setup callback. It is the only way a pass can
// create resources, declare reads and writes or configure its pipeline. Using it
// after setup returned is a contract violation.
type Builder struct {
	fg     *FrameGraph
	pass   *Pass
	active bool
}

func (b *Builder) checkPhase(op string) {
	if b == nil || !b.active {
		name := "<nil>"
		if b != nil && b.pass != nil {
			name = b.pass.name
		}
		contractViolation(core.ErrInvalidPhase, "Builder.%s called outside the setup of pass %q", op, name)
	}
}

// checkHandle panics unless h names a resource of the current cache epoch or the swapchain.
func (b *Builder) checkHandle(op string, h ResourceHandle) {
	if h.IsSwapchain() {
		return
	}
	if h.IsValid() && h.Epoch() != b.fg.cache.Epoch() {
		contractViolation(core.ErrStaleHandle, "Builder.%s in pass %q: %s", op, b.pass.name, h)
	}
	if !b.fg.cache.Contains(h) {
		contractViolation(core.ErrMissingDependency, "Builder.%s in pass %q: unregistered handle %s", op, b.pass.name, h)
	}
}

// Pass returns the name of the pass being set up.
func (b *Builder) Pass() string {
	b.checkPhase("Pass")
	return b.pass.name
}

// CreateTexture registers name with desc, or returns the existing handle if name is
// known. A differing description for a known name is not applied; the existing handle
// is returned together with core.ErrDescriptionConflict. Repeated calls record the
// texture in the pass's creates once.
func (b *Builder) CreateTexture(name string, desc TextureDescription) (ResourceHandle, error) {
	b.checkPhase("CreateTexture")
	if err := desc.Validate(); err != nil {
		return InvalidHandle, fmt.Errorf("texture %q: %w", name, err)
	}

	h := b.fg.cache.AddOrReturn(name)
	effective, conflict, err := b.fg.cache.describe(h, desc)
	if err != nil {
		return InvalidHandle, err
	}
	if conflict {
		core.LogWarn("pass %q: texture %q already described as %+v, ignoring %+v", b.pass.name, name, effective, desc.normalized())
		return h, fmt.Errorf("%w: texture %q in pass %q", core.ErrDescriptionConflict, name, b.pass.name)
	}

	for _, c := range b.pass.creates {
		if c.Handle == h {
			return h, nil
		}
	}
	b.pass.creates = append(b.pass.creates, TextureCreate{Handle: h, Description: effective})
	return h, nil
}

// GetTexture looks a texture up by name without creating it.
func (b *Builder) GetTexture(name string) (ResourceHandle, error) {
	b.checkPhase("GetTexture")
	h, err := b.fg.cache.GetID(name)
	if err != nil {
		return InvalidHandle, fmt.Errorf("%w: %q", core.ErrUnknownResource, name)
	}
	return h, nil
}

func (b *Builder) ReadTexture(h ResourceHandle) {
	b.checkPhase("ReadTexture")
	b.checkHandle("ReadTexture", h)
	if !slices.Contains(b.pass.reads, h) {
		b.pass.reads = append(b.pass.reads, h)
	}
}

func (b *Builder) WriteTexture(h ResourceHandle) {
	b.checkPhase("WriteTexture")
	b.checkHandle("WriteTexture", h)
	if !slices.Contains(b.pass.writes, h) {
		b.pass.writes = append(b.pass.writes, h)
	}
}

// WriteDepthStencil sets the single depth target of the pass. Last call wins.
func (b *Builder) WriteDepthStencil(h ResourceHandle) {
	b.checkPhase("WriteDepthStencil")
	b.checkHandle("WriteDepthStencil", h)
	b.pass.depthStencilWrite = h
}

func (b *Builder) SetShader(desc ShaderDescription) {
	b.checkPhase("SetShader")
	b.pass.shader = &desc
}

func (b *Builder) SetPipeline(desc PipelineDescription) {
	b.checkPhase("SetPipeline")
	b.pass.pipeline = &desc
}

func (b *Builder) SetViewport(width, height float32) {
	b.checkPhase("SetViewport")
	b.pass.viewport = &Viewport{Width: width, Height: height, MaxDepth: 1}
}

func (b *Builder) SetScissor(width, height uint32) {
	b.checkPhase("SetScissor")
	b.pass.scissor = &math.Rect2D{Extent: math.Extent2D{Width: width, Height: height}}
}

func (b *Builder) SetRenderpass(desc RenderpassDescription) {
	b.checkPhase("SetRenderpass")
	if desc.Name == "" {
		desc.Name = b.pass.name
	}
	b.pass.renderpass = &desc
}

// SetAsRenderToSwapchain marks the pass as writing the presentation target.
func (b *Builder) SetAsRenderToSwapchain() {
	b.checkPhase("SetAsRenderToSwapchain")
	b.pass.swapchainTarget = true
	if !slices.Contains(b.pass.writes, SwapchainHandle) {
		b.pass.writes = append(b.pass.writes, SwapchainHandle)
	}
}

func (b *Builder) SetQueue(queue QueueType) {
	b.checkPhase("SetQueue")
	b.pass.queue = queue
}

func (b *Builder) RenderResolution() math.Extent2D {
	b.checkPhase("RenderResolution")
	return b.fg.renderExtent
}

func (b *Builder) OutputResolution() math.Extent2D {
	b.checkPhase("OutputResolution")
	return b.fg.outputExtent
}
