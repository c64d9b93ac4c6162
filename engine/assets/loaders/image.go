package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// ImageLoader decodes PNG, JPEG, BMP and TIFF files into tightly packed
// RGBA8 pixels.
type ImageLoader struct{}

func (il *ImageLoader) Load(path string, params interface{}) (*metadata.Resource, error) {
	var flipY bool
	if p, ok := params.(*metadata.ImageResourceParams); ok && p != nil {
		flipY = p.FlipY
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	src, format, err := image.Decode(file)
	if err != nil {
		err = fmt.Errorf("failed to decode image %s: %w", path, err)
		core.LogError("%s", err)
		return nil, err
	}
	data := DecodeRGBA(src, flipY)
	core.LogDebug("decoded %s image %s (%dx%d)", format, path, data.Width, data.Height)

	return &metadata.Resource{
		Type:     metadata.ResourceTypeImage,
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

func (il *ImageLoader) Unload(r *metadata.Resource) error {
	r.Data = nil
	r.DataSize = 0
	return nil
}

// DecodeRGBA converts src into RGBA8 rows with no padding, optionally
// flipped on the y axis.
func DecodeRGBA(src image.Image, flipY bool) *metadata.ImageResourceData {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	if flipY {
		row := make([]uint8, dst.Stride)
		for top, bottom := 0, b.Dy()-1; top < bottom; top, bottom = top+1, bottom-1 {
			t := dst.Pix[top*dst.Stride : (top+1)*dst.Stride]
			u := dst.Pix[bottom*dst.Stride : (bottom+1)*dst.Stride]
			copy(row, t)
			copy(t, u)
			copy(u, row)
		}
	}

	return &metadata.ImageResourceData{
		Format: metadata.PixelFormatRGBA8Unorm,
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Pixels: dst.Pix,
	}
}

// Resize scales img to width x height with a bilinear filter. It is used to
// fit loaded pixels to an existing texture's extent.
func Resize(img *metadata.ImageResourceData, width, height uint32) *metadata.ImageResourceData {
	if img.Width == width && img.Height == height {
		return img
	}
	src := &image.RGBA{
		Pix:    img.Pixels,
		Stride: int(img.Width) * 4,
		Rect:   image.Rect(0, 0, int(img.Width), int(img.Height)),
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return &metadata.ImageResourceData{
		Format: metadata.PixelFormatRGBA8Unorm,
		Width:  width,
		Height: height,
		Pixels: dst.Pix,
	}
}
