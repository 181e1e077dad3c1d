package renderer

import "github.com/spaghettifunk/anima-framegraph/engine/framegraph"

// Backend is a graphics API implementation the renderer drives. BeginFrame hands
// out the command list the frame graph records into; EndFrame submits and
// presents it.
type Backend interface {
	Initialize(appName string, appWidth, appHeight uint32) error
	Shutdown() error
	Resized(width, height uint32) error
	BeginFrame(deltaTime float64) (framegraph.CommandList, error)
	EndFrame(deltaTime float64) error
	Device() framegraph.Device
}

type RendererType uint8

const (
	Vulkan RendererType = iota
	Headless
)

func (t RendererType) String() string {
	switch t {
	case Vulkan:
		return "vulkan"
	case Headless:
		return "headless"
	}
	return "unknown"
}
