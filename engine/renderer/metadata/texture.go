package metadata

/**
 * @brief Parameters used by the resource factory to create an image.
 */
type TextureDescription struct {
	/** @brief Debug name. A unique name is generated when empty. */
	Name string
	/** @brief The texture Width. */
	Width uint32
	/** @brief The texture Height. */
	Height uint32
	/** @brief The texture Depth. 1 for 2D textures. */
	Depth uint32
	/** @brief The number of mip levels. */
	MipLevels uint32
	/** @brief The number of array layers. */
	ArrayLayers uint32
	/** @brief The pixel format. */
	Format PixelFormat
	/** @brief Declared uses. */
	Usage TextureUsage
	/** @brief Samples per texel. 1 for non-multisampled images. */
	SampleCount uint32
	/** @brief Indicates the image is backed by memory the host already filled. */
	Preinitialized bool
}

/** @brief Describes a buffer created by the resource factory. */
type BufferDescription struct {
	Name  string
	Size  uint64
	Usage BufferUsage
}

/** @brief A three-dimensional size. */
type Extent3D struct {
	Width, Height, Depth uint32
}

/** @brief A three-dimensional offset. */
type Offset3D struct {
	X, Y, Z uint32
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Rect struct {
	X, Y          int32
	Width, Height uint32
}

type ColorRGBA struct {
	R, G, B, A float32
}

var (
	ColorBlack       = ColorRGBA{0, 0, 0, 1}
	ColorTransparent = ColorRGBA{0, 0, 0, 0}
)
