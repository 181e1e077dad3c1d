package framegraph

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-framegraph/engine/containers"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
)

const (
	minFramesInFlight     = 2
	defaultMaxSyncPoints  = 256
	defaultOutputWidth    = 1280
	defaultOutputHeight   = 720
	defaultRenderScale    = 1.0
	maxRenderScaleAllowed = 4.0
)

// SyncPointFunc hands data from the render actor back to the update actor. It
// runs during Swap, between frames.
type SyncPointFunc func()

// RenderHook runs on the render actor around the passes of the slot it was added to.
type RenderHook func(fg *FrameGraph, cmd CommandList) error

type frameSlot struct {
	passes     []*Pass
	preRender  []RenderHook
	postRender []RenderHook
}

func (s *frameSlot) clear() {
	s.passes = nil
	s.preRender = nil
	s.postRender = nil
}

type options struct {
	framesInFlight uint32
	maxSyncPoints  int
	output         math.Extent2D
	renderScale    float32
	dumpGraph      bool
}

type Option func(*options)

// WithFramesInFlight asks for more pass-list slots than the device reports.
func WithFramesInFlight(n uint32) Option {
	return func(o *options) {
		o.framesInFlight = n
	}
}

func WithMaxSyncPoints(n int) Option {
	return func(o *options) {
		o.maxSyncPoints = n
	}
}

// WithResolution sets the initial output resolution and the render scale applied to it.
func WithResolution(width, height uint32, renderScale float32) Option {
	return func(o *options) {
		o.output = math.Extent2D{Width: width, Height: height}
		o.renderScale = renderScale
	}
}

// WithDumpGraph logs the resolved pass list at debug level every frame.
func WithDumpGraph(dump bool) Option {
	return func(o *options) {
		o.dumpGraph = dump
	}
}

// Stats is a snapshot of the last executed frame.
type Stats struct {
	Frame        uint64
	Passes       int
	Barriers     int
	Resources    int
	Materialized int
	Epoch        uint32
	FPS          float64
	FrameTimeMS  float64
}

// FrameGraph schedules passes across an update and a render actor. The update
// actor records passes into the update slot from any goroutine. The render actor
// turns the render slot into barriers and commands with Execute. Swap exchanges
// the two at frame boundaries.
type FrameGraph struct {
	device Device
	cache  *ResourceCache

	// mu guards everything the update actor touches
	mu                  sync.Mutex
	slots               []*frameSlot
	updateSlot          int
	renderSlot          int
	syncPoints          *containers.RingQueue[SyncPointFunc]
	pendingRender       *math.Extent2D
	pendingOutput       *math.Extent2D
	pendingDescriptions map[string]TextureDescription
	lastDump            string
	stats               Stats

	// render guards the render actor
	render       sync.Mutex
	stage        atomic.Uint32
	built        bool
	renderExtent math.Extent2D
	outputExtent math.Extent2D
	resolution   Resolution
	frame        uint64
	dumpGraph    bool
	metrics      *core.FrameMetrics
}

func New(device Device, opts ...Option) (*FrameGraph, error) {
	if device == nil {
		return nil, fmt.Errorf("framegraph: nil device")
	}
	o := options{
		maxSyncPoints: defaultMaxSyncPoints,
		output:        math.Extent2D{Width: defaultOutputWidth, Height: defaultOutputHeight},
		renderScale:   defaultRenderScale,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.output.IsZero() {
		return nil, fmt.Errorf("framegraph: zero output resolution %dx%d", o.output.Width, o.output.Height)
	}
	if o.renderScale <= 0 || o.renderScale > maxRenderScaleAllowed {
		return nil, fmt.Errorf("framegraph: render scale %f out of range (0, %f]", o.renderScale, maxRenderScaleAllowed)
	}

	n := uint32(minFramesInFlight)
	if d := device.GetFramesInFlightCount(); d > n {
		n = d
	}
	if o.framesInFlight > n {
		n = o.framesInFlight
	}

	fg := &FrameGraph{
		device:              device,
		cache:               NewResourceCache(),
		slots:               make([]*frameSlot, n),
		updateSlot:          0,
		renderSlot:          int(n) - 1,
		syncPoints:          containers.NewRingQueue[SyncPointFunc](o.maxSyncPoints),
		pendingDescriptions: make(map[string]TextureDescription),
		outputExtent:        o.output,
		renderExtent:        o.output.Scale(o.renderScale),
		dumpGraph:           o.dumpGraph,
		metrics:             core.NewFrameMetrics(),
	}
	for i := range fg.slots {
		fg.slots[i] = &frameSlot{}
	}
	core.LogDebug("frame graph created: %d slots, output %dx%d, render %dx%d", n,
		fg.outputExtent.Width, fg.outputExtent.Height, fg.renderExtent.Width, fg.renderExtent.Height)
	return fg, nil
}

// contractViolation reports a programming error. Frame state cannot be trusted
// after one, so it panics instead of returning.
func contractViolation(sentinel error, format string, args ...interface{}) {
	err := fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
	core.LogError("%s", err)
	panic(err)
}

// enterRender claims the render actor. Only one render actor call may run at a time.
func (fg *FrameGraph) enterRender(op string) func() {
	if !fg.render.TryLock() {
		contractViolation(core.ErrWrongThread, "%s called while another render actor call is running", op)
	}
	return fg.render.Unlock
}

// assertRenderActor panics unless a render actor call is in progress.
func (fg *FrameGraph) assertRenderActor(op string) {
	if fg.render.TryLock() {
		fg.render.Unlock()
		contractViolation(core.ErrWrongThread, "%s called outside the render actor", op)
	}
}

// AddPass appends a graphics pass to the update slot. execute and post may be nil.
func (fg *FrameGraph) AddPass(name string, setup SetupFunc, execute ExecuteFunc, post PostFunc) {
	fg.addPass(newPass(name, QueueGraphics, setup, execute, post))
}

// AddComputePass appends a pass whose writes are storage writes from compute shaders.
func (fg *FrameGraph) AddComputePass(name string, setup SetupFunc, execute ExecuteFunc, post PostFunc) {
	fg.addPass(newPass(name, QueueCompute, setup, execute, post))
}

func (fg *FrameGraph) addPass(p *Pass) {
	if p.setup == nil {
		contractViolation(core.ErrInvalidPhase, "pass %q has no setup callback", p.name)
	}
	fg.mu.Lock()
	defer fg.mu.Unlock()
	slot := fg.slots[fg.updateSlot]
	slot.passes = append(slot.passes, p)
}

// AddSyncPoint queues fn to run during the next Swap.
func (fg *FrameGraph) AddSyncPoint(fn SyncPointFunc) error {
	if fn == nil {
		return nil
	}
	fg.mu.Lock()
	defer fg.mu.Unlock()
	if err := fg.syncPoints.Enqueue(fn); err != nil {
		return fmt.Errorf("sync point: %w", err)
	}
	return nil
}

func (fg *FrameGraph) AddPreRender(fn RenderHook) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	slot := fg.slots[fg.updateSlot]
	slot.preRender = append(slot.preRender, fn)
}

func (fg *FrameGraph) AddPostRender(fn RenderHook) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	slot := fg.slots[fg.updateSlot]
	slot.postRender = append(slot.postRender, fn)
}

// Swap publishes the update slot to the render actor and starts a new, empty update
// slot. Queued sync points run after the exchange, outside the lock.
func (fg *FrameGraph) Swap() {
	defer fg.enterRender("Swap")()

	fg.mu.Lock()
	fg.renderSlot = fg.updateSlot
	fg.updateSlot = (fg.updateSlot + 1) % len(fg.slots)
	fg.slots[fg.updateSlot].clear()
	syncs := fg.syncPoints.Drain()
	fg.mu.Unlock()

	fg.stage.Store(uint32(FrameNotStarted))
	fg.built = false

	for _, fn := range syncs {
		fn()
	}
}

// UpdatePassCount is the number of passes recorded for the next frame so far.
func (fg *FrameGraph) UpdatePassCount() int {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return len(fg.slots[fg.updateSlot].passes)
}

// RenderPasses returns the pass list being executed. Render actor only.
func (fg *FrameGraph) RenderPasses() []*Pass {
	fg.assertRenderActor("RenderPasses")
	return append([]*Pass(nil), fg.slots[fg.renderSlot].passes...)
}

// SetRenderResolution changes the resolution render-relative textures follow. It
// takes effect at the start of the next Execute.
func (fg *FrameGraph) SetRenderResolution(width, height uint32) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.pendingRender = &math.Extent2D{Width: width, Height: height}
}

// SetOutputResolution changes the presentation resolution. It takes effect at the
// start of the next Execute.
func (fg *FrameGraph) SetOutputResolution(width, height uint32) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.pendingOutput = &math.Extent2D{Width: width, Height: height}
}

// RenderResolution is the resolution of the frame being, or last, executed.
func (fg *FrameGraph) RenderResolution() math.Extent2D {
	fg.assertRenderActor("RenderResolution")
	return fg.renderExtent
}

func (fg *FrameGraph) OutputResolution() math.Extent2D {
	fg.assertRenderActor("OutputResolution")
	return fg.outputExtent
}

// UpdateTextureDescription replaces the description of an existing texture. The old
// resource is destroyed after a GPU idle wait at the start of the next Execute and
// the new description wins over any request made by passes.
func (fg *FrameGraph) UpdateTextureDescription(name string, desc TextureDescription) error {
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("texture %q: %w", name, err)
	}
	if _, err := fg.cache.GetID(name); err != nil {
		return fmt.Errorf("%w: %q", core.ErrUnknownResource, name)
	}
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.pendingDescriptions[name] = desc.normalized()
	return nil
}

// CreateTexture registers and materializes a texture outside of any pass. Such a
// texture may be read or written by every pass without a creates entry and
// persists until Release. Render actor only, so call it from a pre or post render
// hook.
func (fg *FrameGraph) CreateTexture(name string, desc TextureDescription) (ResourceHandle, error) {
	fg.assertRenderActor("CreateTexture")
	if err := desc.Validate(); err != nil {
		return InvalidHandle, fmt.Errorf("texture %q: %w", name, err)
	}
	h := fg.cache.AddOrReturn(name)
	effective, conflict, err := fg.cache.describe(h, desc)
	if err != nil {
		return InvalidHandle, err
	}
	if conflict {
		return h, fmt.Errorf("%w: texture %q", core.ErrDescriptionConflict, name)
	}
	fg.cache.markImported(h)
	if _, _, err := fg.cache.Materialize(h, fg.device, effective.Resolve(fg.renderExtent, fg.outputExtent)); err != nil {
		return h, err
	}
	return h, nil
}

// GetTexture looks a texture up by name.
func (fg *FrameGraph) GetTexture(name string) (ResourceHandle, error) {
	h, err := fg.cache.GetID(name)
	if err != nil {
		return InvalidHandle, fmt.Errorf("%w: %q", core.ErrUnknownResource, name)
	}
	return h, nil
}

// GetRHITexture returns the backend resource for h. The swapchain sentinel resolves
// to the current presentable image.
func (fg *FrameGraph) GetRHITexture(h ResourceHandle) (Resource, error) {
	if h.IsSwapchain() {
		img := fg.device.GetSwapchainImage()
		if img == nil {
			return nil, core.ErrSwapchainBooting
		}
		return img, nil
	}
	return fg.cache.Get(h)
}

func (fg *FrameGraph) GetRHITextureByName(name string) (Resource, error) {
	h, err := fg.GetTexture(name)
	if err != nil {
		return nil, err
	}
	return fg.GetRHITexture(h)
}

// Cache exposes the resource cache for inspection.
func (fg *FrameGraph) Cache() *ResourceCache {
	return fg.cache
}

// Release waits until the GPU is idle and then destroys every cached resource.
// Handles issued before the call become stale. It blocks, so only call it on
// shutdown or similar transitions.
func (fg *FrameGraph) Release() error {
	defer fg.enterRender("Release")()

	if err := fg.device.GpuWaitForIdle(); err != nil {
		return fmt.Errorf("release: wait for idle: %w", err)
	}
	n := fg.cache.Materialized()
	fg.cache.Release()
	core.LogInfo("frame graph released %d resources, cache epoch is now %d", n, fg.cache.Epoch())
	return nil
}

// applyPending applies resolution and description changes queued by the update actor.
func (fg *FrameGraph) applyPending() error {
	fg.mu.Lock()
	render, output := fg.pendingRender, fg.pendingOutput
	descs := fg.pendingDescriptions
	fg.pendingRender, fg.pendingOutput = nil, nil
	fg.pendingDescriptions = make(map[string]TextureDescription)
	fg.mu.Unlock()

	newRender, newOutput := fg.renderExtent, fg.outputExtent
	if render != nil && !render.IsZero() {
		newRender = *render
	}
	if output != nil && !output.IsZero() {
		newOutput = *output
	}
	resized := newRender != fg.renderExtent || newOutput != fg.outputExtent
	if !resized && len(descs) == 0 {
		return nil
	}

	if err := fg.device.GpuWaitForIdle(); err != nil {
		return fmt.Errorf("apply pending changes: wait for idle: %w", err)
	}
	if resized {
		fg.renderExtent, fg.outputExtent = newRender, newOutput
		n := fg.cache.EvictRelative()
		core.LogInfo("resolution changed: render %dx%d, output %dx%d, %d resources evicted",
			newRender.Width, newRender.Height, newOutput.Width, newOutput.Height, n)
	}
	for name, desc := range descs {
		h, err := fg.cache.GetID(name)
		if err != nil {
			core.LogWarn("dropping description update for %q: %s", name, err)
			continue
		}
		if err := fg.cache.redescribe(h, desc); err != nil {
			return err
		}
		core.LogDebug("texture %q redescribed as %+v", name, desc)
	}
	return nil
}

// Stats returns a snapshot of the last executed frame.
func (fg *FrameGraph) Stats() Stats {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return fg.stats
}

// DebugDump returns the textual form of the last frame's resolved pass list.
func (fg *FrameGraph) DebugDump() string {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return fg.lastDump
}

// lookup adapts the frame graph to the barrier resolver.
type lookup struct {
	fg *FrameGraph
}

func (l lookup) Description(h ResourceHandle) (TextureDescription, bool) {
	if h.IsSwapchain() {
		return TextureDescription{}, false
	}
	return l.fg.cache.Description(h)
}

func (l lookup) CurrentLayout(h ResourceHandle) (Layout, bool) {
	res, err := l.fg.GetRHITexture(h)
	if err != nil {
		return LayoutUndefined, false
	}
	return res.GetLayout(), true
}

func (l lookup) Imported(h ResourceHandle) bool {
	return l.fg.cache.isImported(h)
}
