package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/anima-framegraph/engine/config"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
	"github.com/spaghettifunk/anima-framegraph/engine/platform"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/headless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const pumpInterval = time.Millisecond

type Option func(*Engine)

// WithBackend replaces the backend the configuration selects.
func WithBackend(b renderer.Backend) Option {
	return func(e *Engine) {
		e.backend = b
	}
}

// WithConfigPath reloads the configuration whenever the file changes.
func WithConfigPath(path string) Option {
	return func(e *Engine) {
		e.configPath = path
	}
}

// Engine runs a Game with two actors. The update actor calls the game's update,
// which records passes into the frame graph, then hands the frame over. The render
// actor swaps the pass lists and executes the frame it received while the update
// actor records the next one.
type Engine struct {
	stage      atomic.Uint32
	game       *Game
	cfg        *config.Config
	configPath string

	platform *platform.Platform
	backend  renderer.Backend
	renderer *renderer.Renderer
	jobs     *systems.JobSystem
	watcher  *config.Watcher
	clock    *core.Clock

	suspended atomic.Bool
	frames    atomic.Uint64

	// pending holds changes the render actor applies between frames
	mu            sync.Mutex
	pendingResize *math.Extent2D
	pendingConfig *config.Config

	quitOnce sync.Once
	quit     chan struct{}
}

func New(g *Game, opts ...Option) (*Engine, error) {
	if g == nil || g.FnUpdate == nil {
		return nil, fmt.Errorf("engine: game without an update function")
	}
	cfg := g.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if g.FnBoot != nil {
		if err := g.FnBoot(cfg); err != nil {
			return nil, fmt.Errorf("game boot: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g.Config = cfg

	e := &Engine{
		game:  g,
		cfg:   cfg,
		clock: core.NewClock(),
		quit:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Stage() Stage {
	return Stage(e.stage.Load())
}

// Renderer is nil before Initialize.
func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

// Frames is the number of frames the render actor submitted.
func (e *Engine) Frames() uint64 {
	return e.frames.Load()
}

func (e *Engine) Initialize() error {
	e.stage.Store(uint32(EngineStageInitializing))
	app := e.cfg.Application

	level, err := core.ParseLogLevel(app.LogLevel)
	if err != nil {
		return err
	}
	core.SetLogLevel(level)

	if !core.EventInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)

	if e.backend == nil {
		if app.Headless {
			e.backend = headless.NewBackend(headless.NewDevice(headless.WithFramesInFlight(e.cfg.FrameGraph.FramesInFlight)))
		} else {
			p, err := platform.New()
			if err != nil {
				return err
			}
			if err := p.Startup(app.Name, app.PosX, app.PosY, app.Width, app.Height); err != nil {
				return err
			}
			e.platform = p
			e.backend = vulkan.New(p, e.cfg.FrameGraph.FramesInFlight, level == core.DebugLevel)
		}
	}

	r := renderer.New(e.backend)
	fg := e.cfg.FrameGraph
	if err := r.Initialize(app.Name, app.Width, app.Height, fg.RenderScale,
		framegraph.WithFramesInFlight(fg.FramesInFlight),
		framegraph.WithMaxSyncPoints(fg.MaxSyncPoints),
		framegraph.WithDumpGraph(fg.DumpGraph),
	); err != nil {
		return err
	}
	e.renderer = r

	jobs, err := systems.NewJobSystem(app.Workers, app.Workers*2)
	if err != nil {
		return err
	}
	e.jobs = jobs

	if e.configPath != "" {
		w, err := config.NewWatcher(e.configPath, e.onConfigReloaded)
		if err != nil {
			return err
		}
		e.watcher = w
	}

	e.game.FrameGraph = e.renderer.Graph()
	e.game.JobSystem = e.jobs
	if e.game.FnInitialize != nil {
		if err := e.game.FnInitialize(); err != nil {
			return fmt.Errorf("game initialize: %w", err)
		}
	}
	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(app.Width, app.Height); err != nil {
			return err
		}
	}
	e.stage.Store(uint32(EngineStageInitialized))
	return nil
}

// Run blocks until the game quits, ctx is cancelled, the configured frame count
// is reached or an actor fails. Window events are pumped on the calling goroutine.
func (e *Engine) Run(ctx context.Context) error {
	if e.Stage() != EngineStageInitialized {
		return fmt.Errorf("engine: Run before Initialize")
	}
	e.stage.Store(uint32(EngineStageRunning))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	ready := make(chan float64)
	swapped := make(chan struct{})
	group.Go(func() error {
		select {
		case <-e.quit:
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	group.Go(func() error { return e.updateLoop(ctx, ready, swapped) })
	group.Go(func() error { return e.renderLoop(ctx, ready, swapped) })

	if e.platform != nil {
		ticker := time.NewTicker(pumpInterval)
	pump:
		for {
			select {
			case <-ctx.Done():
				break pump
			case <-ticker.C:
				e.platform.PumpMessages()
			}
		}
		ticker.Stop()
	}

	err := group.Wait()
	core.LogInfo("engine stopped after %d frames", e.Frames())
	return err
}

func (e *Engine) updateLoop(ctx context.Context, ready chan<- float64, swapped <-chan struct{}) error {
	e.clock.Start()
	last := e.clock.Elapsed()
	limit := e.cfg.Application.Frames

	for frame := uint64(0); ; frame++ {
		if limit > 0 && frame >= limit {
			e.RequestQuit()
			return nil
		}
		e.clock.Update()
		now := e.clock.Elapsed()
		delta := (now - last).Seconds()
		last = now

		if err := e.game.FnUpdate(delta); err != nil {
			return fmt.Errorf("game update: %w", err)
		}

		select {
		case ready <- delta:
		case <-ctx.Done():
			return nil
		}
		select {
		case <-swapped:
		case <-ctx.Done():
			return nil
		}
	}
}

func (e *Engine) renderLoop(ctx context.Context, ready <-chan float64, swapped chan<- struct{}) error {
	graph := e.renderer.Graph()
	for {
		var delta float64
		select {
		case delta = <-ready:
		case <-ctx.Done():
			return nil
		}

		graph.Swap()
		select {
		case swapped <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		if err := e.applyPending(); err != nil {
			return err
		}
		if e.suspended.Load() {
			graph.Clear()
			continue
		}
		if err := e.renderer.DrawFrame(delta); err != nil {
			return fmt.Errorf("frame %d: %w", e.Frames(), err)
		}
		e.frames.Add(1)
	}
}

// applyPending runs on the render actor between frames.
func (e *Engine) applyPending() error {
	e.mu.Lock()
	resize, cfg := e.pendingResize, e.pendingConfig
	e.pendingResize, e.pendingConfig = nil, nil
	e.mu.Unlock()

	if resize != nil {
		if err := e.renderer.OnResized(resize.Width, resize.Height); err != nil {
			return fmt.Errorf("resize: %w", err)
		}
	}
	if cfg != nil {
		if level, err := core.ParseLogLevel(cfg.Application.LogLevel); err == nil {
			core.SetLogLevel(level)
		}
		e.renderer.SetRenderScale(cfg.FrameGraph.RenderScale)
	}
	return nil
}

// RequestQuit stops Run. Safe to call from any goroutine, more than once.
func (e *Engine) RequestQuit() {
	e.quitOnce.Do(func() {
		close(e.quit)
	})
}

func (e *Engine) Shutdown() error {
	e.stage.Store(uint32(EngineStageShuttingDown))
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	if e.game.FnShutdown != nil {
		errs = append(errs, e.game.FnShutdown())
	}
	if e.jobs != nil {
		errs = append(errs, e.jobs.Shutdown())
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
	}
	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	core.EventUnregister(core.EVENT_CODE_RESIZED, e)
	errs = append(errs, core.EventShutdown())
	e.stage.Store(uint32(EngineStageUninitialized))
	return errors.Join(errs...)
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.RequestQuit()
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		if !e.suspended.Swap(true) {
			core.LogInfo("Window minimized, suspending application.")
		}
		return false
	}
	if e.suspended.Swap(false) {
		core.LogInfo("Window restored, resuming application.")
	}
	e.mu.Lock()
	e.pendingResize = &math.Extent2D{Width: width, Height: height}
	e.mu.Unlock()

	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(width, height); err != nil {
			core.LogError("game resize: %s", err)
		}
	}
	return false
}

func (e *Engine) onConfigReloaded(cfg *config.Config) {
	e.mu.Lock()
	e.pendingConfig = cfg
	e.mu.Unlock()

	ctx := core.EventContext{}
	ctx.Data.C[0] = e.configPath
	ctx.Data.F32[0] = cfg.FrameGraph.RenderScale
	core.EventFire(core.EVENT_CODE_CONFIG_RELOADED, e, ctx)
}
