package metadata

import "strings"

/** @brief Declared uses of an image. Drives validation and the resting layout. */
type TextureUsage uint32

const (
	/** @brief The image can be sampled in shaders. */
	TextureUsageSampled TextureUsage = 1 << iota
	/** @brief The image can be read and written as a storage image. */
	TextureUsageStorage
	/** @brief The image can be a color attachment. */
	TextureUsageRenderTarget
	/** @brief The image can be a depth/stencil attachment. */
	TextureUsageDepthStencil
	/** @brief The image can be the source or destination of transfers. */
	TextureUsageTransfer
)

func (u TextureUsage) Has(want TextureUsage) bool {
	return u&want == want
}

func (u TextureUsage) String() string {
	if u == 0 {
		return "None"
	}
	names := []string{}
	for _, f := range [...]struct {
		bit  TextureUsage
		name string
	}{
		{TextureUsageSampled, "Sampled"},
		{TextureUsageStorage, "Storage"},
		{TextureUsageRenderTarget, "RenderTarget"},
		{TextureUsageDepthStencil, "DepthStencil"},
		{TextureUsageTransfer, "Transfer"},
	} {
		if u.Has(f.bit) {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, "|")
}

/** @brief Declared uses of a buffer. Drives the upload visibility barrier. */
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndirect
	BufferUsageTransfer
)

func (u BufferUsage) Has(want BufferUsage) bool {
	return u&want == want
}

/** @brief The kind of pipeline bound to a session. Picks the validator path. */
type PipelineKind int

const (
	PipelineKindGraphics PipelineKind = iota
	PipelineKindCompute
	PipelineKindRayTracing
)

func (k PipelineKind) String() string {
	switch k {
	case PipelineKindGraphics:
		return "Graphics"
	case PipelineKindCompute:
		return "Compute"
	case PipelineKindRayTracing:
		return "RayTracing"
	}
	return "PipelineKind(invalid)"
}

/** @brief Width of the indices in an index buffer. */
type IndexFormat int

const (
	IndexFormatUint16 IndexFormat = iota
	IndexFormatUint32
)

/** @brief Filtering used by blits. */
type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)
