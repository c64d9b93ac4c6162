package metadata

/**
 * @brief The hardware memory arrangement of an image subresource.
 * Dictates which operations may access it without a further transition.
 */
type Layout int

const (
	/** @brief Contents are undefined. Only valid as the old side of a transition. */
	LayoutUndefined Layout = iota
	/** @brief Backed by memory written by the host before creation. */
	LayoutPreinitialized
	/** @brief Source of a copy, blit or resolve. */
	LayoutTransferSrc
	/** @brief Destination of a copy, blit or resolve. */
	LayoutTransferDst
	/** @brief Sampled or read from shaders. */
	LayoutShaderReadOnly
	/** @brief Bound as a color attachment of the active framebuffer. */
	LayoutColorAttachment
	/** @brief Bound as the depth/stencil attachment of the active framebuffer. */
	LayoutDepthStencilAttachment
	/** @brief Ready to be handed to the presentation engine. */
	LayoutPresentSource
	/** @brief Any access, used for storage images. */
	LayoutGeneral

	/** @brief The number of layouts. Not a valid layout. */
	LayoutCount
)

var layoutNames = [LayoutCount]string{
	LayoutUndefined:              "Undefined",
	LayoutPreinitialized:         "Preinitialized",
	LayoutTransferSrc:            "TransferSrc",
	LayoutTransferDst:            "TransferDst",
	LayoutShaderReadOnly:         "ShaderReadOnly",
	LayoutColorAttachment:        "ColorAttachment",
	LayoutDepthStencilAttachment: "DepthStencilAttachment",
	LayoutPresentSource:          "PresentSource",
	LayoutGeneral:                "General",
}

func (l Layout) IsValid() bool {
	return l >= 0 && l < LayoutCount
}

func (l Layout) String() string {
	if !l.IsValid() {
		return "Layout(invalid)"
	}
	return layoutNames[l]
}
