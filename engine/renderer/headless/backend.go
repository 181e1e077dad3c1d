package headless

import (
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
)

// Backend renders into a Device and CommandList held in memory. The last
// submitted command list stays readable until the next BeginFrame.
type Backend struct {
	device      *Device
	commands    *CommandList
	recording   bool
	FrameNumber uint64
}

func NewBackend(device *Device) *Backend {
	return &Backend{
		device:   device,
		commands: NewCommandList(),
	}
}

func (b *Backend) Initialize(appName string, width, height uint32) error {
	if b.device.Swapchain() == nil {
		b.device.ResizeSwapchain(width, height)
	}
	core.LogInfo("headless renderer initialized for %s (%dx%d)", appName, width, height)
	return nil
}

func (b *Backend) Shutdown() error {
	return b.device.GpuWaitForIdle()
}

func (b *Backend) Resized(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	b.device.ResizeSwapchain(width, height)
	return nil
}

func (b *Backend) BeginFrame(deltaTime float64) (framegraph.CommandList, error) {
	b.commands.Reset()
	b.recording = true
	return b.commands, nil
}

func (b *Backend) EndFrame(deltaTime float64) error {
	if !b.recording {
		return nil
	}
	b.recording = false
	b.FrameNumber++
	return nil
}

func (b *Backend) Device() framegraph.Device {
	return b.device
}

// Commands returns the command list of the current or last frame.
func (b *Backend) Commands() *CommandList {
	return b.commands
}
