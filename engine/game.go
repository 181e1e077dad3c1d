package engine

import (
	"github.com/spaghettifunk/anima-framegraph/engine/config"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/systems"
)

// Game is the application the engine drives. FrameGraph and JobSystem are set by
// the engine before FnInitialize runs.
type Game struct {
	Config     *config.Config
	FrameGraph *framegraph.FrameGraph
	JobSystem  *systems.JobSystem
	State      interface{}

	FnBoot       Boot
	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Boot runs before any subsystem exists and may adjust the configuration.
type Boot func(cfg *config.Config) error
type Initialize func() error

// Update runs on the update actor once per frame and records the frame's passes.
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
