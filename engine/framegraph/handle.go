package framegraph

import "fmt"

// ResourceHandle identifies a virtual resource inside a ResourceCache.
// The low 32 bits are the arena index, the high 32 bits the cache epoch the
// handle was allocated in. Handles are plain values and can be copied freely
// between the update and the render actor.
type ResourceHandle uint64

const (
	// InvalidHandle is never returned for a registered name.
	InvalidHandle ResourceHandle = 0
	// SwapchainHandle refers to the current presentation target. It is not owned by
	// the cache and is resolved against the device every frame.
	SwapchainHandle ResourceHandle = ^ResourceHandle(0)
)

func newHandle(epoch, index uint32) ResourceHandle {
	return ResourceHandle(uint64(epoch)<<32 | uint64(index))
}

func (h ResourceHandle) Index() uint32 {
	return uint32(h)
}

func (h ResourceHandle) Epoch() uint32 {
	return uint32(h >> 32)
}

func (h ResourceHandle) IsSwapchain() bool {
	return h == SwapchainHandle
}

func (h ResourceHandle) IsValid() bool {
	return h != InvalidHandle
}

func (h ResourceHandle) String() string {
	switch h {
	case InvalidHandle:
		return "invalid"
	case SwapchainHandle:
		return "swapchain"
	}
	return fmt.Sprintf("#%d@%d", h.Index(), h.Epoch())
}
