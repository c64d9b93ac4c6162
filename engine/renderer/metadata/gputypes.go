package metadata

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// FormatFromGPUTypes maps a WebGPU-style texture format onto a PixelFormat.
func FormatFromGPUTypes(f gputypes.TextureFormat) (PixelFormat, error) {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return PixelFormatR8Unorm, nil
	case gputypes.TextureFormatRGBA8Unorm:
		return PixelFormatRGBA8Unorm, nil
	case gputypes.TextureFormatBGRA8Unorm:
		return PixelFormatBGRA8Unorm, nil
	case gputypes.TextureFormatDepth24PlusStencil8:
		return PixelFormatD24UnormS8Uint, nil
	case gputypes.TextureFormatUndefined:
		return PixelFormatUndefined, fmt.Errorf("texture format is undefined")
	}
	return PixelFormatUndefined, fmt.Errorf("texture format %v has no equivalent", f)
}

// UsageFromGPUTypes maps WebGPU-style texture usage bits onto TextureUsage.
// Depth formats turn a render-attachment usage into a depth/stencil one.
func UsageFromGPUTypes(u gputypes.TextureUsage, format PixelFormat) TextureUsage {
	var out TextureUsage
	if u&gputypes.TextureUsageTextureBinding != 0 {
		out |= TextureUsageSampled
	}
	if u&gputypes.TextureUsageRenderAttachment != 0 {
		if format.IsDepthStencil() {
			out |= TextureUsageDepthStencil
		} else {
			out |= TextureUsageRenderTarget
		}
	}
	if u&(gputypes.TextureUsageCopySrc|gputypes.TextureUsageCopyDst) != 0 {
		out |= TextureUsageTransfer
	}
	return out
}
