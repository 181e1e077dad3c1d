package framegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
)

type fakeTexture struct {
	desc      TextureDescription
	layout    Layout
	valid     bool
	destroyed int
}

func (t *fakeTexture) Create(device Device, desc TextureDescription) error {
	t.desc = desc
	t.valid = true
	return nil
}

func (t *fakeTexture) ValidResource() bool     { return t.valid }
func (t *fakeTexture) GetLayout() Layout       { return t.layout }
func (t *fakeTexture) SetLayout(layout Layout) { t.layout = layout }
func (t *fakeTexture) Destroy() {
	t.valid = false
	t.destroyed++
}

type fakeDevice struct {
	created []*fakeTexture
}

func (d *fakeDevice) GpuWaitForIdle() error          { return nil }
func (d *fakeDevice) GetSwapchainImage() Resource    { return nil }
func (d *fakeDevice) GetFramesInFlightCount() uint32 { return 2 }
func (d *fakeDevice) NewTexture() Resource {
	t := &fakeTexture{}
	d.created = append(d.created, t)
	return t
}

var rgba = TextureDescription{Format: FormatRGBA8Unorm, Width: 4, Height: 4, Usage: UsageColorAttachment}

func TestHandleLayout(t *testing.T) {
	h := newHandle(3, 7)
	assert.EqualValues(t, 3, h.Epoch())
	assert.EqualValues(t, 7, h.Index())
	assert.True(t, h.IsValid())
	assert.False(t, h.IsSwapchain())
	assert.True(t, SwapchainHandle.IsSwapchain())
	assert.False(t, InvalidHandle.IsValid())
	assert.Equal(t, "#7@3", h.String())
}

func TestAddOrReturnIsStable(t *testing.T) {
	c := NewResourceCache()
	a := c.AddOrReturn("a")
	b := c.AddOrReturn("b")
	assert.NotEqual(t, InvalidHandle, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c.AddOrReturn("a"))

	id, err := c.GetID("a")
	require.NoError(t, err)
	assert.Equal(t, a, id)

	_, err = c.GetID("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 2, c.Len())
}

func TestGetBeforeMaterialize(t *testing.T) {
	c := NewResourceCache()
	h := c.AddOrReturn("a")
	_, err := c.Get(h)
	assert.ErrorIs(t, err, core.ErrNotMaterialized)

	d := &fakeDevice{}
	res, created, err := c.Materialize(h, d, rgba)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := c.Get(h)
	require.NoError(t, err)
	assert.Same(t, res, got)

	// a second materialization reuses the resource
	_, created, err = c.Materialize(h, d, rgba)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, d.created, 1)
}

func TestReleaseBumpsEpoch(t *testing.T) {
	c := NewResourceCache()
	d := &fakeDevice{}
	h := c.AddOrReturn("a")
	_, _, err := c.Materialize(h, d, rgba)
	require.NoError(t, err)

	c.Release()
	assert.Equal(t, 1, d.created[0].destroyed)
	assert.EqualValues(t, 1, c.Epoch())
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Materialized())

	_, err = c.Get(h)
	assert.ErrorIs(t, err, core.ErrStaleHandle)
	assert.False(t, c.Contains(h))

	// indices keep growing, so the new handle differs in index and epoch
	h2 := c.AddOrReturn("a")
	assert.NotEqual(t, h, h2)
	assert.Greater(t, h2.Index(), h.Index())
	assert.EqualValues(t, 1, h2.Epoch())
}

func TestDescribeFirstWins(t *testing.T) {
	c := NewResourceCache()
	h := c.AddOrReturn("a")

	eff, conflict, err := c.describe(h, rgba)
	require.NoError(t, err)
	assert.False(t, conflict)
	assert.EqualValues(t, 1, eff.MipLevels)

	_, conflict, err = c.describe(h, rgba)
	require.NoError(t, err)
	assert.False(t, conflict)

	bigger := rgba
	bigger.Width = 8
	eff, conflict, err = c.describe(h, bigger)
	require.NoError(t, err)
	assert.True(t, conflict)
	assert.EqualValues(t, 4, eff.Width)

	// an explicit override replaces the description and silences conflicts
	require.NoError(t, c.redescribe(h, bigger))
	eff, conflict, err = c.describe(h, rgba)
	require.NoError(t, err)
	assert.False(t, conflict)
	assert.EqualValues(t, 8, eff.Width)
}

func TestEvictRelative(t *testing.T) {
	c := NewResourceCache()
	d := &fakeDevice{}
	abs := c.AddOrReturn("abs")
	rel := c.AddOrReturn("rel")
	relDesc := TextureDescription{Format: FormatRGBA16Float, SizeMode: SizeRenderRelative, Scale: 0.5}
	_, _, err := c.describe(abs, rgba)
	require.NoError(t, err)
	_, _, err = c.describe(rel, relDesc)
	require.NoError(t, err)

	_, _, err = c.Materialize(abs, d, rgba)
	require.NoError(t, err)
	_, _, err = c.Materialize(rel, d, relDesc)
	require.NoError(t, err)

	assert.Equal(t, 1, c.EvictRelative())
	assert.Equal(t, 1, c.Materialized())
	assert.Zero(t, d.created[0].destroyed)
	assert.Equal(t, 1, d.created[1].destroyed)
	assert.True(t, c.Contains(rel))
}

func TestDescriptionValidate(t *testing.T) {
	assert.NoError(t, rgba.Validate())
	assert.ErrorIs(t, TextureDescription{Format: FormatRGBA8Unorm}.Validate(), core.ErrInvalidDescription)
	assert.ErrorIs(t, TextureDescription{Width: 1, Height: 1}.Validate(), core.ErrInvalidDescription)
	assert.ErrorIs(t, TextureDescription{Format: FormatD32Float, Width: 1, Height: 1, Usage: UsageColorAttachment}.Validate(), core.ErrInvalidDescription)
	assert.ErrorIs(t, TextureDescription{Format: FormatRGBA8Unorm, Width: 1, Height: 1, Usage: UsageDepthStencil}.Validate(), core.ErrInvalidDescription)
	assert.NoError(t, TextureDescription{Format: FormatRGBA8Unorm, SizeMode: SizeOutputRelative}.Validate())
}

func TestDescriptionResolve(t *testing.T) {
	render := TextureDescription{Format: FormatRGBA8Unorm, SizeMode: SizeRenderRelative, Scale: 0.5}
	r := render.Resolve(math.Extent2D{Width: 1920, Height: 1080}, math.Extent2D{Width: 3840, Height: 2160})
	assert.EqualValues(t, 960, r.Width)
	assert.EqualValues(t, 540, r.Height)

	output := TextureDescription{Format: FormatRGBA8Unorm, SizeMode: SizeOutputRelative}
	r = output.Resolve(math.Extent2D{Width: 1920, Height: 1080}, math.Extent2D{Width: 3840, Height: 2160})
	assert.EqualValues(t, 3840, r.Width)

	r = rgba.Resolve(math.Extent2D{Width: 1920, Height: 1080}, math.Extent2D{Width: 3840, Height: 2160})
	assert.EqualValues(t, 4, r.Width)

	depth := TextureDescription{Format: FormatD24UnormS8Uint, Width: 1, Height: 1}
	assert.Equal(t, AspectDepth|AspectStencil, depth.SubresourceRange().Aspect)
	assert.Equal(t, AspectColor, rgba.SubresourceRange().Aspect)
}
