package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// checkBindings rejects binding kinds the tracker does not know. For draws it
// also rejects images that are attachments of the bound framebuffer, and for
// dispatches images bound both as sampled and as storage images, which need
// different layouts.
func (s *Session) checkBindings(draw bool) (hasAccelerationStructure bool, err error) {
	kinds := make(map[*Image]BindingKind)
	for slot, bs := range s.sets {
		if bs.set == nil {
			continue
		}
		for i, b := range bs.set.Bindings() {
			switch b.Kind {
			case BindingSampledImage, BindingStorageImage:
				if b.Image == nil {
					return false, fmt.Errorf("%w: slot %d binding %d has no image", core.ErrInvalidOperation, slot, i)
				}
				if draw && s.isAttachment(b.Image) {
					return false, fmt.Errorf("%w: %s is bound as an attachment and as %v", core.ErrInvalidOperation, b.Image, b.Kind)
				}
				if k, ok := kinds[b.Image]; ok && k != b.Kind && !draw {
					return false, fmt.Errorf("%w: %s is bound as %v and as %v", core.ErrInvalidOperation, b.Image, k, b.Kind)
				}
				kinds[b.Image] = b.Kind
			case BindingUniformBuffer, BindingStorageBuffer:
			case BindingAccelerationStructure:
				hasAccelerationStructure = true
			default:
				err := fmt.Errorf("%w: slot %d binding %d of kind %v", core.ErrUnsupportedResource, slot, i, b.Kind)
				core.LogError("%s", err)
				return false, err
			}
		}
	}
	return hasAccelerationStructure, nil
}

func (s *Session) isAttachment(img *Image) bool {
	if s.framebuffer == nil {
		return false
	}
	for _, c := range s.framebuffer.ColorTargets {
		if c.Image == img {
			return true
		}
	}
	return s.framebuffer.DepthTarget != nil && s.framebuffer.DepthTarget.Image == img
}

func (s *Session) transitionBindings(layoutOf func(BindingKind) metadata.Layout) error {
	m := s.batch.mark()
	for _, bs := range s.sets {
		if bs.set == nil {
			continue
		}
		for _, b := range bs.set.Bindings() {
			if b.Image == nil {
				continue
			}
			l := layoutOf(b.Kind)
			if l == metadata.LayoutUndefined {
				continue
			}
			if _, err := s.batch.transition(b.Image, 0, b.Image.MipLevels, 0, b.Image.ArrayLayers, l); err != nil {
				s.batch.rollback(m)
				return err
			}
		}
	}
	return nil
}

// validateForDraw moves every sampled and storage image of the bound sets to
// ShaderReadOnly. A render pass active while transitions are needed is
// ended; the draw begins it again.
func (s *Session) validateForDraw() error {
	if s.texturesInShaderReadLayout {
		return nil
	}
	if _, err := s.checkBindings(true); err != nil {
		return err
	}
	err := s.transitionBindings(func(k BindingKind) metadata.Layout {
		if k == BindingSampledImage || k == BindingStorageImage {
			return metadata.LayoutShaderReadOnly
		}
		return metadata.LayoutUndefined
	})
	if err != nil {
		return err
	}
	if !s.batch.empty() {
		s.ensureInactive()
	}
	s.texturesInShaderReadLayout = true
	s.texturesInGeneralLayout = false
	core.MetricsRecordValidation()
	return nil
}

// validateForCompute moves storage images of the bound sets to General and
// sampled images to ShaderReadOnly. For ray dispatches, bound acceleration
// structures get a build-to-trace memory barrier every time.
func (s *Session) validateForCompute(rays bool) error {
	hasAS, err := s.checkBindings(false)
	if err != nil {
		return err
	}
	if !s.texturesInGeneralLayout {
		err := s.transitionBindings(func(k BindingKind) metadata.Layout {
			switch k {
			case BindingStorageImage:
				return metadata.LayoutGeneral
			case BindingSampledImage:
				return metadata.LayoutShaderReadOnly
			}
			return metadata.LayoutUndefined
		})
		if err != nil {
			return err
		}
		s.texturesInGeneralLayout = true
		s.texturesInShaderReadLayout = false
		core.MetricsRecordValidation()
	}
	if rays && hasAS {
		s.batch.addMemory(
			barrier.AccessAccelerationStructureWrite, barrier.AccessAccelerationStructureRead,
			barrier.StageAccelerationStructureBuild, barrier.StageRayTracingShader,
		)
	}
	return nil
}
