package headless

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
)

// Texture is a headless image. It only tracks its description and layout.
type Texture struct {
	device      *Device
	ID          uuid.UUID
	Name        string
	Description framegraph.TextureDescription
	layout      framegraph.Layout
	valid       bool
	destroyed   bool
}

func (t *Texture) Create(device framegraph.Device, desc framegraph.TextureDescription) error {
	d, ok := device.(*Device)
	if !ok {
		return fmt.Errorf("headless texture created on foreign device %T", device)
	}
	if t.valid {
		return fmt.Errorf("texture %s already created", t.ID)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("cannot create %dx%d texture", desc.Width, desc.Height)
	}
	t.device = d
	t.ID = uuid.New()
	t.Description = desc
	t.layout = framegraph.LayoutUndefined
	if err := d.register(t); err != nil {
		return err
	}
	t.valid = true
	return nil
}

func (t *Texture) ValidResource() bool {
	return t.valid
}

func (t *Texture) GetLayout() framegraph.Layout {
	return t.layout
}

func (t *Texture) SetLayout(layout framegraph.Layout) {
	t.layout = layout
}

func (t *Texture) Destroy() {
	if !t.valid {
		return
	}
	t.valid = false
	t.destroyed = true
	t.device.unregister(t)
}

func (t *Texture) Destroyed() bool {
	return t.destroyed
}
