package framegraph

import (
	"fmt"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
)

type Format uint8

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatRGBA32Float
	FormatR32Float
	FormatD32Float
	FormatD24UnormS8Uint
	FormatD32FloatS8Uint
)

var formatNames = [...]string{
	FormatUndefined:      "Undefined",
	FormatRGBA8Unorm:     "RGBA8Unorm",
	FormatRGBA8Srgb:      "RGBA8Srgb",
	FormatBGRA8Unorm:     "BGRA8Unorm",
	FormatRGBA16Float:    "RGBA16Float",
	FormatRGBA32Float:    "RGBA32Float",
	FormatR32Float:       "R32Float",
	FormatD32Float:       "D32Float",
	FormatD24UnormS8Uint: "D24UnormS8Uint",
	FormatD32FloatS8Uint: "D32FloatS8Uint",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

func (f Format) IsDepth() bool {
	switch f {
	case FormatD32Float, FormatD24UnormS8Uint, FormatD32FloatS8Uint:
		return true
	}
	return false
}

func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32FloatS8Uint
}

type TextureUsage uint32

const (
	UsageSampled TextureUsage = 1 << iota
	UsageColorAttachment
	UsageDepthStencil
	UsageUnorderedAccess
	UsageTransferSrc
	UsageTransferDst
)

/** @brief How the width and height of a texture description are interpreted. */
type SizeMode uint8

const (
	/** @brief Width and Height are pixels. */
	SizeAbsolute SizeMode = iota
	/** @brief The texture follows the render resolution multiplied by Scale. */
	SizeRenderRelative
	/** @brief The texture follows the output resolution multiplied by Scale. */
	SizeOutputRelative
)

/**
 * @brief Describes a texture requested by a pass. The first description
 * registered for a name wins until the cache is released.
 */
type TextureDescription struct {
	Format      Format
	Width       uint32
	Height      uint32
	Usage       TextureUsage
	MipLevels   uint32
	ArrayLayers uint32
	SizeMode    SizeMode
	/** @brief Only used by relative size modes. 0 means 1. */
	Scale float32
}

// normalized fills in defaults so two descriptions that mean the same thing compare equal.
func (d TextureDescription) normalized() TextureDescription {
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.ArrayLayers == 0 {
		d.ArrayLayers = 1
	}
	if d.SizeMode == SizeAbsolute {
		d.Scale = 0
	} else {
		if d.Scale == 0 {
			d.Scale = 1
		}
		d.Width, d.Height = 0, 0
	}
	return d
}

func (d TextureDescription) Validate() error {
	if d.Format == FormatUndefined {
		return fmt.Errorf("%w: undefined format", core.ErrInvalidDescription)
	}
	if d.SizeMode == SizeAbsolute && (d.Width == 0 || d.Height == 0) {
		return fmt.Errorf("%w: zero sized texture %dx%d", core.ErrInvalidDescription, d.Width, d.Height)
	}
	if d.SizeMode != SizeAbsolute && d.Scale < 0 {
		return fmt.Errorf("%w: negative scale %f", core.ErrInvalidDescription, d.Scale)
	}
	if d.Format.IsDepth() && d.Usage&UsageColorAttachment != 0 {
		return fmt.Errorf("%w: depth format %s used as color attachment", core.ErrInvalidDescription, d.Format)
	}
	if !d.Format.IsDepth() && d.Usage&UsageDepthStencil != 0 {
		return fmt.Errorf("%w: color format %s used as depth attachment", core.ErrInvalidDescription, d.Format)
	}
	return nil
}

// Resolve returns the description with concrete pixel dimensions.
func (d TextureDescription) Resolve(render, output math.Extent2D) TextureDescription {
	d = d.normalized()
	var e math.Extent2D
	switch d.SizeMode {
	case SizeRenderRelative:
		e = render.Scale(d.Scale)
	case SizeOutputRelative:
		e = output.Scale(d.Scale)
	default:
		return d
	}
	d.Width, d.Height = e.Width, e.Height
	return d
}

func (d TextureDescription) Extent() math.Extent2D {
	return math.Extent2D{Width: d.Width, Height: d.Height}
}

func (d TextureDescription) SubresourceRange() SubresourceRange {
	d = d.normalized()
	aspect := AspectColor
	if d.Format.IsDepth() {
		aspect = AspectDepth
		if d.Format.HasStencil() {
			aspect |= AspectStencil
		}
	}
	return SubresourceRange{
		Aspect:     aspect,
		LevelCount: d.MipLevels,
		LayerCount: d.ArrayLayers,
	}
}

type QueueType uint8

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
)

func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	}
	return fmt.Sprintf("QueueType(%d)", uint8(q))
}

type ShaderDescription struct {
	Name         string
	VertexPath   string
	FragmentPath string
	ComputePath  string
}

type CullMode uint8

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

type PipelineDescription struct {
	Name       string
	CullMode   CullMode
	DepthTest  bool
	DepthWrite bool
	Blend      bool
	Wireframe  bool
}

type LoadOp uint8

const (
	LoadOpDontCare LoadOp = iota
	LoadOpLoad
	LoadOpClear
)

type StoreOp uint8

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

/**
 * @brief Attachment behaviour of a pass. The attachments themselves are the
 * pass's color writes, in declaration order, and its depth stencil write.
 */
type RenderpassDescription struct {
	Name         string
	ColorLoad    LoadOp
	ColorStore   StoreOp
	DepthLoad    LoadOp
	DepthStore   StoreOp
	ClearColour  math.Vec4
	ClearDepth   float32
	ClearStencil uint32
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}
