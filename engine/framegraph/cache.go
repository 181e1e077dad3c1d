package framegraph

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
)

type cacheEntry struct {
	name        string
	description TextureDescription
	described   bool
	// resolved is the description the resource was materialized with
	resolved TextureDescription
	resource Resource
	imported bool
	// overridden descriptions come from UpdateTextureDescription and win over pass requests
	overridden bool
}

// ResourceCache is a name to handle table plus the handle to resource storage for
// textures. Handles are indices into an append-only arena tagged with the cache
// epoch, so a handle is never reused even after Release.
type ResourceCache struct {
	mu      sync.RWMutex
	names   map[string]ResourceHandle
	entries []*cacheEntry
	epoch   uint32
}

func NewResourceCache() *ResourceCache {
	return &ResourceCache{
		names: make(map[string]ResourceHandle),
		// index 0 is reserved so that InvalidHandle never names a resource
		entries: make([]*cacheEntry, 1),
	}
}

// AddOrReturn returns the handle registered for name, registering it first if needed.
func (c *ResourceCache) AddOrReturn(name string) ResourceHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.names[name]; ok {
		return h
	}
	h := newHandle(c.epoch, uint32(len(c.entries)))
	c.entries = append(c.entries, &cacheEntry{name: name})
	c.names[name] = h
	return h
}

// GetID looks name up without registering it.
func (c *ResourceCache) GetID(name string) (ResourceHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if h, ok := c.names[name]; ok {
		return h, nil
	}
	return InvalidHandle, fmt.Errorf("%w: %q", core.ErrNotFound, name)
}

// entry must be called with mu held.
func (c *ResourceCache) entry(h ResourceHandle) (*cacheEntry, error) {
	if h.IsSwapchain() || !h.IsValid() {
		return nil, fmt.Errorf("%w: %s is not a cache handle", core.ErrNotFound, h)
	}
	if h.Epoch() != c.epoch {
		return nil, fmt.Errorf("%w: %s, cache epoch is %d", core.ErrStaleHandle, h, c.epoch)
	}
	if int(h.Index()) >= len(c.entries) || c.entries[h.Index()] == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, h)
	}
	return c.entries[h.Index()], nil
}

// Contains reports whether h was registered in the current epoch.
func (c *ResourceCache) Contains(h ResourceHandle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := c.entry(h)
	return err == nil
}

// Get returns the materialized resource. Callers must check the error: a handle
// that has not been materialized yet or that belongs to a released epoch fails.
func (c *ResourceCache) Get(h ResourceHandle) (Resource, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, err := c.entry(h)
	if err != nil {
		return nil, err
	}
	if e.resource == nil || !e.resource.ValidResource() {
		return nil, fmt.Errorf("%w: %q", core.ErrNotMaterialized, e.name)
	}
	return e.resource, nil
}

func (c *ResourceCache) Name(h ResourceHandle) string {
	if h.IsSwapchain() {
		return "swapchain"
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.entry(h)
	if err != nil {
		return h.String()
	}
	return e.name
}

// Description returns the requested description registered for h.
func (c *ResourceCache) Description(h ResourceHandle) (TextureDescription, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.entry(h)
	if err != nil || !e.described {
		return TextureDescription{}, false
	}
	return e.description, true
}

// Resolved returns the description h was materialized with.
func (c *ResourceCache) Resolved(h ResourceHandle) (TextureDescription, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.entry(h)
	if err != nil || e.resource == nil {
		return TextureDescription{}, false
	}
	return e.resolved, true
}

// describe records desc for h if h has none yet. It returns the description in
// effect and whether desc conflicts with it.
func (c *ResourceCache) describe(h ResourceHandle, desc TextureDescription) (TextureDescription, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entry(h)
	if err != nil {
		return TextureDescription{}, false, err
	}
	desc = desc.normalized()
	if !e.described {
		e.description = desc
		e.described = true
		return desc, false, nil
	}
	if e.overridden {
		return e.description, false, nil
	}
	return e.description, e.description != desc, nil
}

// redescribe replaces the description of h and destroys its resource so the next
// Build materializes it again. The caller guarantees the GPU is idle.
func (c *ResourceCache) redescribe(h ResourceHandle, desc TextureDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.entry(h)
	if err != nil {
		return err
	}
	if e.resource != nil {
		e.resource.Destroy()
		e.resource = nil
	}
	e.description = desc.normalized()
	e.described = true
	e.overridden = true
	return nil
}

// EvictRelative destroys every resource whose size follows the render or output
// resolution. Names and handles stay valid; the next Build materializes them again
// at the new size. The caller guarantees the GPU is idle.
func (c *ResourceCache) EvictRelative() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if e == nil || e.resource == nil || e.description.SizeMode == SizeAbsolute {
			continue
		}
		e.resource.Destroy()
		e.resource = nil
		n++
	}
	return n
}

func (c *ResourceCache) markImported(h ResourceHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, err := c.entry(h); err == nil {
		e.imported = true
	}
}

// imported returns the handles registered through FrameGraph.CreateTexture.
func (c *ResourceCache) imported() []ResourceHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var hs []ResourceHandle
	for i, e := range c.entries {
		if e != nil && e.imported {
			hs = append(hs, newHandle(c.epoch, uint32(i)))
		}
	}
	return hs
}

func (c *ResourceCache) isImported(h ResourceHandle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.entry(h)
	return err == nil && e.imported
}

// Materialize creates the resource for h with the resolved description unless it
// already exists. Creation failures are returned as is; the entry stays registered.
func (c *ResourceCache) Materialize(h ResourceHandle, device Device, resolved TextureDescription) (Resource, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.entry(h)
	if err != nil {
		return nil, false, err
	}
	if e.resource != nil && e.resource.ValidResource() {
		return e.resource, false, nil
	}
	res := device.NewTexture()
	if err := res.Create(device, resolved); err != nil {
		return nil, false, fmt.Errorf("create texture %q: %w", e.name, err)
	}
	e.resource = res
	e.resolved = resolved
	return res, true, nil
}

// Len returns the number of names registered in the current epoch.
func (c *ResourceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

// Materialized returns the number of live resources.
func (c *ResourceCache) Materialized() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if e != nil && e.resource != nil {
			n++
		}
	}
	return n
}

func (c *ResourceCache) Epoch() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Release destroys every materialized resource and starts a new epoch. Handles from
// the previous epoch become stale. The caller must have ensured that no in-flight GPU
// work references any of the resources.
func (c *ResourceCache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e == nil {
			continue
		}
		if e.resource != nil {
			e.resource.Destroy()
			e.resource = nil
		}
		c.entries[i] = nil
	}
	c.names = make(map[string]ResourceHandle)
	c.epoch++
}
