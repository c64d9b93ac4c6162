package headless

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

type replayState struct {
	q            *Queue
	inRenderPass bool
	framebuffer  *gpu.Framebuffer
	pipeline     gpu.Pipeline
	sets         map[uint32]gpu.ResourceSet
	errs         []error
}

func (r *replayState) fail(i int, c Command, format string, args ...any) {
	r.errs = append(r.errs, fmt.Errorf("command %d (%v): %s", i, c.Kind, fmt.Sprintf(format, args...)))
}

// expect checks that every subresource of a range holds want.
func (r *replayState) expect(i int, c Command, img *gpu.Image, baseMip, mipCount, baseLayer, layerCount uint32, want metadata.Layout) {
	layouts := r.q.deviceLayouts(img)
	for mip := baseMip; mip < baseMip+mipCount; mip++ {
		for layer := baseLayer; layer < baseLayer+layerCount; layer++ {
			if have := layouts[int(mip)*int(img.ArrayLayers)+int(layer)]; have != want {
				r.fail(i, c, "%s mip %d layer %d is %v, want %v", img, mip, layer, have, want)
				return
			}
		}
	}
}

func (r *replayState) outsidePass(i int, c Command) {
	if r.inRenderPass {
		r.fail(i, c, "recorded inside a render pass")
	}
}

// replay executes commands against host memory. The queue mutex is held.
func (q *Queue) replay(commands []Command) error {
	r := &replayState{q: q, sets: make(map[uint32]gpu.ResourceSet)}
	for i, c := range commands {
		switch c.Kind {
		case CommandPipelineBarrier:
			if r.inRenderPass && len(c.Barrier.Images) > 0 {
				r.fail(i, c, "layout transition inside a render pass")
			}
			for _, ib := range c.Barrier.Images {
				r.expect(i, c, ib.Image, ib.BaseMip, ib.MipCount, ib.BaseLayer, ib.LayerCount, ib.OldLayout)
				layouts := q.deviceLayouts(ib.Image)
				for mip := ib.BaseMip; mip < ib.BaseMip+ib.MipCount; mip++ {
					for layer := ib.BaseLayer; layer < ib.BaseLayer+ib.LayerCount; layer++ {
						layouts[int(mip)*int(ib.Image.ArrayLayers)+int(layer)] = ib.NewLayout
					}
				}
			}

		case CommandBeginRenderPass:
			r.outsidePass(i, c)
			for _, a := range c.Framebuffer.ColorTargets {
				r.expect(i, c, a.Image, a.Mip, 1, a.Layer, 1, metadata.LayoutColorAttachment)
			}
			if d := c.Framebuffer.DepthTarget; d != nil {
				r.expect(i, c, d.Image, d.Mip, 1, d.Layer, 1, metadata.LayoutDepthStencilAttachment)
			}
			r.inRenderPass = true
			r.framebuffer = c.Framebuffer

		case CommandEndRenderPass:
			if !r.inRenderPass {
				r.fail(i, c, "no render pass is active")
			}
			r.inRenderPass = false

		case CommandClearColor, CommandClearDepthStencil:
			if !r.inRenderPass {
				r.fail(i, c, "clear outside a render pass")
			}

		case CommandCopyBuffer:
			r.outsidePass(i, c)
			dst := c.Buffer.Handle().(*Buffer)
			copy(dst.data[c.Offset:c.Offset+c.Size], c.Staging.data[:c.Size])

		case CommandCopyBufferToImage:
			r.outsidePass(i, c)
			u := c.Upload
			r.expect(i, c, c.DstImage, u.Mip, 1, u.Layer, 1, metadata.LayoutTransferDst)
			dst := c.DstImage.Handle().(*Image)
			r.copyBox(c.Staging.data, u.Extent, metadata.Offset3D{}, u.Extent,
				dst, u.Mip, u.Layer, u.Offset)

		case CommandCopyImage, CommandResolveImage:
			r.outsidePass(i, c)
			cp := c.Copy
			r.expect(i, c, c.SrcImage, cp.SrcMip, 1, cp.SrcLayer, cp.LayerCount, metadata.LayoutTransferSrc)
			r.expect(i, c, c.DstImage, cp.DstMip, 1, cp.DstLayer, cp.LayerCount, metadata.LayoutTransferDst)
			src, dst := c.SrcImage.Handle().(*Image), c.DstImage.Handle().(*Image)
			for l := uint32(0); l < cp.LayerCount; l++ {
				r.copyBox(src.data[src.index(cp.SrcMip, cp.SrcLayer+l)], src.extents[cp.SrcMip], cp.SrcOffset, cp.Extent,
					dst, cp.DstMip, cp.DstLayer+l, cp.DstOffset)
			}

		case CommandBlitImage:
			r.outsidePass(i, c)
			b := c.Blit
			r.expect(i, c, c.SrcImage, b.SrcMip, 1, b.BaseLayer, b.LayerCount, metadata.LayoutTransferSrc)
			r.expect(i, c, c.DstImage, b.DstMip, 1, b.BaseLayer, b.LayerCount, metadata.LayoutTransferDst)
			blit(c.SrcImage.Handle().(*Image), c.DstImage.Handle().(*Image), b)

		case CommandBindPipeline:
			r.pipeline = c.Pipeline

		case CommandBindResourceSet:
			r.sets[c.Index] = c.Set

		case CommandDrawIndexed:
			if !r.inRenderPass {
				r.fail(i, c, "draw outside a render pass")
			}
			r.expectBindings(i, c, func(gpu.BindingKind) metadata.Layout { return metadata.LayoutShaderReadOnly })

		case CommandDispatch, CommandTraceRays:
			r.outsidePass(i, c)
			r.expectBindings(i, c, func(k gpu.BindingKind) metadata.Layout {
				if k == gpu.BindingStorageImage {
					return metadata.LayoutGeneral
				}
				return metadata.LayoutShaderReadOnly
			})
		}
	}
	if r.inRenderPass {
		r.errs = append(r.errs, errors.New("command buffer ends inside a render pass"))
	}
	if len(r.errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidation, errors.Join(r.errs...))
	}
	return nil
}

func (r *replayState) expectBindings(i int, c Command, layoutOf func(gpu.BindingKind) metadata.Layout) {
	if r.pipeline == nil {
		r.fail(i, c, "no pipeline bound")
		return
	}
	for _, set := range r.sets {
		for _, b := range set.Bindings() {
			if b.Image == nil {
				continue
			}
			r.expect(i, c, b.Image, 0, b.Image.MipLevels, 0, b.Image.ArrayLayers, layoutOf(b.Kind))
		}
	}
}

// copyBox copies a box of texels from a tightly packed source of srcExtent
// into one subresource of dst.
func (r *replayState) copyBox(src []byte, srcExtent metadata.Extent3D, srcOffset metadata.Offset3D, extent metadata.Extent3D,
	dst *Image, mip, layer uint32, dstOffset metadata.Offset3D) {
	bpp := int(dst.bpp)
	row := int(extent.Width) * bpp
	out := dst.data[dst.index(mip, layer)]
	for z := uint32(0); z < extent.Depth; z++ {
		for y := uint32(0); y < extent.Height; y++ {
			s := ((int(srcOffset.Z+z)*int(srcExtent.Height)+int(srcOffset.Y+y))*int(srcExtent.Width) + int(srcOffset.X)) * bpp
			d := dst.texel(mip, dstOffset.X, dstOffset.Y+y, dstOffset.Z+z)
			copy(out[d:d+row], src[s:s+row])
		}
	}
}

// blit scales with nearest sampling, which is enough for a host backend.
func blit(src, dst *Image, b gpu.ImageBlit) {
	bpp := int(src.bpp)
	for l := b.BaseLayer; l < b.BaseLayer+b.LayerCount; l++ {
		in := src.data[src.index(b.SrcMip, l)]
		out := dst.data[dst.index(b.DstMip, l)]
		for z := uint32(0); z < b.DstExtent.Depth; z++ {
			sz := z * b.SrcExtent.Depth / b.DstExtent.Depth
			for y := uint32(0); y < b.DstExtent.Height; y++ {
				sy := y * b.SrcExtent.Height / b.DstExtent.Height
				for x := uint32(0); x < b.DstExtent.Width; x++ {
					sx := x * b.SrcExtent.Width / b.DstExtent.Width
					s := src.texel(b.SrcMip, sx, sy, sz)
					d := dst.texel(b.DstMip, x, y, z)
					copy(out[d:d+bpp], in[s:s+bpp])
				}
			}
		}
	}
}
