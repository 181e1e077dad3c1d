package math

// Vec4 represents a 4D vector, used for clear colours.
type Vec4 struct {
	X, Y, Z, W float32
}

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

/** @brief The size of a 2d surface in pixels. */
type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

/**
 * @brief Scale returns the extent multiplied by s, rounded to the nearest pixel.
 * A non-zero extent never scales below 1x1.
 */
func (e Extent2D) Scale(s float32) Extent2D {
	if e.IsZero() {
		return Extent2D{}
	}
	return Extent2D{
		Width:  scaleDim(e.Width, s),
		Height: scaleDim(e.Height, s),
	}
}

func scaleDim(d uint32, s float32) uint32 {
	v := float64(d)*float64(s) + 0.5
	return uint32(Clamp(v, 1, float64(^uint32(0))))
}

/** @brief An offset and extent, used for viewports, scissors and render areas. */
type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}
