package metadata

/** @brief The pixel format of an image. */
type PixelFormat int

const (
	PixelFormatUndefined PixelFormat = iota
	// Color, 8-bit channels.
	PixelFormatR8Unorm
	PixelFormatRG8Unorm
	PixelFormatRGBA8Unorm
	PixelFormatRGBA8Srgb
	PixelFormatBGRA8Unorm
	PixelFormatBGRA8Srgb
	// Color, 16-bit channels.
	PixelFormatR16Float
	PixelFormatRGBA16Float
	// Color, 32-bit channels.
	PixelFormatR32Float
	PixelFormatRGBA32Float
	// Depth/Stencil.
	PixelFormatD16Unorm
	PixelFormatD32Float
	PixelFormatD24UnormS8Uint
	PixelFormatD32FloatS8Uint

	PixelFormatCount
)

type formatInfo struct {
	name    string
	size    uint32
	depth   bool
	stencil bool
}

var formatInfos = [PixelFormatCount]formatInfo{
	PixelFormatUndefined:      {"Undefined", 0, false, false},
	PixelFormatR8Unorm:        {"R8Unorm", 1, false, false},
	PixelFormatRG8Unorm:       {"RG8Unorm", 2, false, false},
	PixelFormatRGBA8Unorm:     {"RGBA8Unorm", 4, false, false},
	PixelFormatRGBA8Srgb:      {"RGBA8Srgb", 4, false, false},
	PixelFormatBGRA8Unorm:     {"BGRA8Unorm", 4, false, false},
	PixelFormatBGRA8Srgb:      {"BGRA8Srgb", 4, false, false},
	PixelFormatR16Float:       {"R16Float", 2, false, false},
	PixelFormatRGBA16Float:    {"RGBA16Float", 8, false, false},
	PixelFormatR32Float:       {"R32Float", 4, false, false},
	PixelFormatRGBA32Float:    {"RGBA32Float", 16, false, false},
	PixelFormatD16Unorm:       {"D16Unorm", 2, true, false},
	PixelFormatD32Float:       {"D32Float", 4, true, false},
	PixelFormatD24UnormS8Uint: {"D24UnormS8Uint", 4, true, true},
	PixelFormatD32FloatS8Uint: {"D32FloatS8Uint", 8, true, true},
}

func (f PixelFormat) IsValid() bool {
	return f > PixelFormatUndefined && f < PixelFormatCount
}

/** @brief The size in bytes of a single texel, 0 for invalid formats. */
func (f PixelFormat) BytesPerPixel() uint32 {
	if !f.IsValid() {
		return 0
	}
	return formatInfos[f].size
}

func (f PixelFormat) HasDepth() bool {
	return f.IsValid() && formatInfos[f].depth
}

func (f PixelFormat) HasStencil() bool {
	return f.IsValid() && formatInfos[f].stencil
}

func (f PixelFormat) IsDepthStencil() bool {
	return f.HasDepth() || f.HasStencil()
}

func (f PixelFormat) String() string {
	if f < 0 || f >= PixelFormatCount {
		return "PixelFormat(invalid)"
	}
	return formatInfos[f].name
}
