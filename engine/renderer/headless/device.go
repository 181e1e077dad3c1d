package headless

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
)

// CreateHook lets tests fail texture creation.
type CreateHook func(desc framegraph.TextureDescription) error

// Device is an in-memory GPU. Work is "complete" as soon as it is recorded, so
// GpuWaitForIdle never blocks; it only shows up in the event log.
type Device struct {
	mu             sync.Mutex
	framesInFlight uint32
	swapchain      *Texture
	textures       map[uuid.UUID]*Texture
	createHook     CreateHook
	idleErr        error
	idleWaits      int
	events         *EventLog
}

type DeviceOption func(*Device)

func WithFramesInFlight(n uint32) DeviceOption {
	return func(d *Device) {
		d.framesInFlight = n
	}
}

// WithSwapchain gives the device a presentable image of the given size.
func WithSwapchain(width, height uint32) DeviceOption {
	return func(d *Device) {
		d.swapchain = d.newSwapchainImage(width, height)
	}
}

func WithCreateHook(hook CreateHook) DeviceOption {
	return func(d *Device) {
		d.createHook = hook
	}
}

// WithEventLog shares log with the device so callers can check the relative order
// of idle waits and resource destruction.
func WithEventLog(log *EventLog) DeviceOption {
	return func(d *Device) {
		d.events = log
	}
}

func NewDevice(opts ...DeviceOption) *Device {
	d := &Device{
		framesInFlight: 2,
		textures:       make(map[uuid.UUID]*Texture),
		events:         &EventLog{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) newSwapchainImage(width, height uint32) *Texture {
	return &Texture{
		device: d,
		ID:     uuid.New(),
		Name:   "swapchain",
		Description: framegraph.TextureDescription{
			Format:      framegraph.FormatBGRA8Unorm,
			Width:       width,
			Height:      height,
			Usage:       framegraph.UsageColorAttachment | framegraph.UsageTransferDst,
			MipLevels:   1,
			ArrayLayers: 1,
		},
		valid: true,
	}
}

func (d *Device) GpuWaitForIdle() error {
	d.mu.Lock()
	d.idleWaits++
	err := d.idleErr
	d.mu.Unlock()
	d.events.Add("wait-idle")
	return err
}

// FailIdleWait makes every following GpuWaitForIdle return err, nil restores it.
func (d *Device) FailIdleWait(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idleErr = err
}

func (d *Device) IdleWaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idleWaits
}

func (d *Device) GetSwapchainImage() framegraph.Resource {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.swapchain == nil {
		return nil
	}
	return d.swapchain
}

// Swapchain returns the concrete presentable image, nil if there is none.
func (d *Device) Swapchain() *Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.swapchain
}

// ResizeSwapchain replaces the presentable image. The new one starts Undefined.
func (d *Device) ResizeSwapchain(width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.swapchain = d.newSwapchainImage(width, height)
	core.LogDebug("headless swapchain recreated %dx%d", width, height)
}

func (d *Device) SwapchainExtent() math.Extent2D {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.swapchain == nil {
		return math.Extent2D{}
	}
	return d.swapchain.Description.Extent()
}

func (d *Device) GetFramesInFlightCount() uint32 {
	return d.framesInFlight
}

func (d *Device) NewTexture() framegraph.Resource {
	return &Texture{device: d}
}

func (d *Device) register(t *Texture) error {
	d.mu.Lock()
	hook := d.createHook
	d.mu.Unlock()
	if hook != nil {
		if err := hook(t.Description); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.textures[t.ID] = t
	d.mu.Unlock()
	d.events.Add(fmt.Sprintf("create %s", t.ID))
	return nil
}

func (d *Device) unregister(t *Texture) {
	d.mu.Lock()
	delete(d.textures, t.ID)
	d.mu.Unlock()
	d.events.Add(fmt.Sprintf("destroy %s", t.ID))
}

// Live is the number of created and not yet destroyed textures.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures)
}

func (d *Device) Events() *EventLog {
	return d.events
}

// EventLog is an append-only, concurrency safe list of device events.
type EventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *EventLog) Add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *EventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// Index returns the position of the first event with the given prefix, or -1.
func (l *EventLog) Index(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.events {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			return i
		}
	}
	return -1
}
