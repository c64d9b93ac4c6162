package metadata

/**
 * @brief Decoded pixels ready to be uploaded with UpdateTexture.
 */
type ImageResourceData struct {
	/** @brief The pixel format of Pixels. Always tightly packed. */
	Format PixelFormat
	/** @brief The width of the image. */
	Width uint32
	/** @brief The height of the image. */
	Height uint32
	/** @brief The pixel data of the image, row-major, no padding. */
	Pixels []uint8
}

/** @brief Parameters used when loading an image. */
type ImageResourceParams struct {
	/** @brief Indicates if the image should be flipped on the y-axis when loaded. */
	FlipY bool
}
