package framegraph

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
)

// Barrier transitions one resource between two access/layout states. It is a
// plain value and owns nothing.
type Barrier struct {
	Handle    ResourceHandle
	SrcAccess AccessFlags
	DstAccess AccessFlags
	SrcStage  PipelineStageFlags
	DstStage  PipelineStageFlags
	OldLayout Layout
	NewLayout Layout
	Range     SubresourceRange
}

func (b Barrier) String() string {
	return fmt.Sprintf("%s: %s -> %s (%s -> %s)", b.Handle, b.OldLayout, b.NewLayout, b.SrcStage, b.DstStage)
}

// BarrierBatch is submitted as a single pipeline barrier command. SrcStage is the
// union of the source stages of its barriers.
type BarrierBatch struct {
	SrcStage PipelineStageFlags
	DstStage PipelineStageFlags
	Barriers []Barrier
}

func (b *BarrierBatch) add(barrier Barrier) {
	b.SrcStage |= barrier.SrcStage
	b.Barriers = append(b.Barriers, barrier)
}

// ResourceLookup is what the resolver needs to know about resources it did not
// see change during the scan.
type ResourceLookup interface {
	// Description of a cache resource, false for the swapchain or unknown handles.
	Description(h ResourceHandle) (TextureDescription, bool)
	// CurrentLayout is the runtime layout of the resource backing h, false if none.
	CurrentLayout(h ResourceHandle) (Layout, bool)
	// Imported reports handles created outside any pass, they are valid in every pass.
	Imported(h ResourceHandle) bool
}

// Resolution holds the barrier batches to issue before each pass, indexed like
// the pass list, and the batch closing the frame for presentation.
type Resolution struct {
	Incoming [][]BarrierBatch
	Final    *BarrierBatch
}

// Count is the number of individual barriers, the final transition included.
func (r Resolution) Count() int {
	n := 0
	for _, batches := range r.Incoming {
		for _, b := range batches {
			n += len(b.Barriers)
		}
	}
	if r.Final != nil {
		n += len(r.Final.Barriers)
	}
	return n
}

type resolver struct {
	lookup      ResourceLookup
	lastBarrier map[ResourceHandle]Barrier
	created     map[ResourceHandle]bool
	swapchain   bool
}

// ResolveBarriers scans passes in declaration order and computes the barriers each
// one needs, starting from the layouts the resources are currently in. Passes are
// never reordered. Within a pass the batches are color reads, depth reads, color
// writes and the depth write; empty batches are omitted.
//
// A handle that is not created by the same or an earlier pass, not imported and
// not the swapchain is a contract violation.
func ResolveBarriers(passes []*Pass, lookup ResourceLookup) Resolution {
	r := &resolver{
		lookup:      lookup,
		lastBarrier: make(map[ResourceHandle]Barrier),
		created:     make(map[ResourceHandle]bool),
	}
	res := Resolution{Incoming: make([][]BarrierBatch, len(passes))}
	for i, p := range passes {
		res.Incoming[i] = r.resolvePass(p)
	}
	res.Final = r.finalSwapchainBatch()
	return res
}

func (r *resolver) resolvePass(p *Pass) []BarrierBatch {
	for _, c := range p.creates {
		r.created[c.Handle] = true
	}

	compute := p.queue == QueueCompute
	readStage := StageFragmentShader
	if compute {
		readStage = StageComputeShader
	}
	colorReads := BarrierBatch{DstStage: readStage}
	depthReads := BarrierBatch{DstStage: readStage}
	for _, h := range p.reads {
		r.require(p, h)
		b, depth, ok := r.read(h, readStage)
		if !ok {
			continue
		}
		if depth {
			depthReads.add(b)
		} else {
			colorReads.add(b)
		}
	}

	colorWrites := BarrierBatch{DstStage: StageColorAttachmentOutput}
	if compute {
		colorWrites.DstStage = StageComputeShader
	}
	for _, h := range p.writes {
		r.require(p, h)
		if compute {
			colorWrites.add(r.write(h, LayoutGeneral, AccessShaderWrite, StageComputeShader))
		} else {
			colorWrites.add(r.write(h, LayoutColorAttachment, AccessColorAttachmentWrite, StageColorAttachmentOutput))
		}
	}

	depthWrites := BarrierBatch{DstStage: StageEarlyFragmentTest}
	if h, ok := p.DepthStencilWrite(); ok {
		r.require(p, h)
		depthWrites.add(r.write(h, LayoutDepthStencilAttachment, AccessDepthStencilAttachmentWrite, StageEarlyFragmentTest))
	}

	var batches []BarrierBatch
	for _, b := range []BarrierBatch{colorReads, depthReads, colorWrites, depthWrites} {
		if len(b.Barriers) > 0 {
			batches = append(batches, b)
		}
	}
	return batches
}

func (r *resolver) require(p *Pass, h ResourceHandle) {
	if h.IsSwapchain() {
		r.swapchain = true
		return
	}
	if r.created[h] || r.lookup.Imported(h) {
		return
	}
	contractViolation(core.ErrMissingDependency, "pass %q uses %s which no earlier pass creates", p.name, h)
}

func (r *resolver) isDepth(h ResourceHandle) bool {
	desc, ok := r.lookup.Description(h)
	return ok && desc.Format.IsDepth()
}

func (r *resolver) subresourceRange(h ResourceHandle) SubresourceRange {
	if desc, ok := r.lookup.Description(h); ok {
		return desc.SubresourceRange()
	}
	return SubresourceRange{Aspect: AspectColor, LevelCount: 1, LayerCount: 1}
}

func (r *resolver) write(h ResourceHandle, layout Layout, access AccessFlags, stage PipelineStageFlags) Barrier {
	b := Barrier{
		Handle:    h,
		OldLayout: LayoutUndefined,
		NewLayout: layout,
		SrcStage:  StageTopOfPipe,
		DstStage:  stage,
		SrcAccess: AccessNone,
		DstAccess: access,
		Range:     r.subresourceRange(h),
	}
	if last, ok := r.lastBarrier[h]; ok {
		b.OldLayout = last.NewLayout
		b.SrcStage = last.DstStage
		b.SrcAccess = last.DstAccess
	} else if current, ok := r.lookup.CurrentLayout(h); ok {
		b.OldLayout = current
	}
	r.lastBarrier[h] = b
	return b
}

// read returns false when the resource is already in a shader readable layout and
// visible to stage. A texture sampled by a new stage gets an execution barrier
// that keeps its layout.
func (r *resolver) read(h ResourceHandle, stage PipelineStageFlags) (Barrier, bool, bool) {
	depth := r.isDepth(h)
	b := Barrier{
		Handle:    h,
		NewLayout: LayoutShaderReadOnly,
		DstStage:  stage,
		DstAccess: AccessShaderRead,
		Range:     r.subresourceRange(h),
	}
	if last, ok := r.lastBarrier[h]; ok {
		if last.NewLayout == LayoutShaderReadOnly {
			// DstStage holds every stage the texture was made visible to since
			// its last transition.
			if last.DstStage&stage == stage {
				return Barrier{}, depth, false
			}
			b.OldLayout = LayoutShaderReadOnly
			b.SrcStage = last.DstStage
			b.SrcAccess = AccessNone
			covered := b
			covered.DstStage = last.DstStage | stage
			r.lastBarrier[h] = covered
			return b, depth, true
		}
		b.OldLayout = last.NewLayout
		b.SrcStage = last.DstStage
		b.SrcAccess = last.DstAccess
	} else if current, ok := r.lookup.CurrentLayout(h); ok {
		if current == LayoutShaderReadOnly {
			// still readable from an earlier frame
			return Barrier{}, depth, false
		}
		b.OldLayout = current
		b.SrcStage, b.SrcAccess = producerOf(current)
	} else if depth {
		b.OldLayout = LayoutDepthStencilAttachment
		b.SrcStage = StageEarlyFragmentTest
		b.SrcAccess = AccessDepthStencilAttachmentWrite
	} else {
		b.OldLayout = LayoutColorAttachment
		b.SrcStage = StageColorAttachmentOutput
		b.SrcAccess = AccessColorAttachmentWrite
	}
	r.lastBarrier[h] = b
	return b, depth, true
}

// producerOf is the stage and access that last touched a resource left in layout
// by an earlier frame.
func producerOf(layout Layout) (PipelineStageFlags, AccessFlags) {
	switch layout {
	case LayoutColorAttachment:
		return StageColorAttachmentOutput, AccessColorAttachmentWrite
	case LayoutDepthStencilAttachment:
		return StageEarlyFragmentTest, AccessDepthStencilAttachmentWrite
	case LayoutGeneral:
		return StageComputeShader, AccessShaderWrite
	}
	return StageTopOfPipe, AccessNone
}

func (r *resolver) finalSwapchainBatch() *BarrierBatch {
	if !r.swapchain {
		return nil
	}
	last, ok := r.lastBarrier[SwapchainHandle]
	if !ok || last.NewLayout == LayoutPresentSrc {
		return nil
	}
	b := Barrier{
		Handle:    SwapchainHandle,
		OldLayout: last.NewLayout,
		NewLayout: LayoutPresentSrc,
		SrcStage:  last.DstStage,
		DstStage:  StageBottomOfPipe,
		SrcAccess: last.DstAccess,
		DstAccess: AccessNone,
		Range:     r.subresourceRange(SwapchainHandle),
	}
	return &BarrierBatch{SrcStage: b.SrcStage, DstStage: b.DstStage, Barriers: []Barrier{b}}
}

func formatBatches(sb *strings.Builder, indent string, batches []BarrierBatch, name func(ResourceHandle) string) {
	for _, batch := range batches {
		fmt.Fprintf(sb, "%sbarrier %s -> %s\n", indent, batch.SrcStage, batch.DstStage)
		for _, b := range batch.Barriers {
			fmt.Fprintf(sb, "%s  %s: %s -> %s [%s -> %s]\n", indent, name(b.Handle), b.OldLayout, b.NewLayout, b.SrcAccess, b.DstAccess)
		}
	}
}
