package gpu

import (
	"fmt"
	"slices"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// barrierBatch collects the barriers a single operation needs so they can
// be recorded as one command. Layouts are committed to the image tables when
// a transition is queued; the batch must be flushed before the next command.
type barrierBatch struct {
	srcStage barrier.Stage
	dstStage barrier.Stage
	memory   []MemoryBarrier
	images   []ImageBarrier

	// Layout tables of every image touched since the recording began, as
	// they were before the first transition.
	origins map[*Image][]metadata.Layout
}

// batchMark is a position in the batch that rollback returns to.
type batchMark struct {
	srcStage, dstStage barrier.Stage
	memory, images     int
}

func (b *barrierBatch) empty() bool {
	return len(b.memory) == 0 && len(b.images) == 0 && b.srcStage == barrier.StageNone
}

func (b *barrierBatch) reset() {
	b.srcStage, b.dstStage = barrier.StageNone, barrier.StageNone
	b.memory = b.memory[:0]
	b.images = b.images[:0]
}

// forget drops the recorded origins, making the current tables the ones
// restore returns to.
func (b *barrierBatch) forget() {
	clear(b.origins)
}

// restore puts back the tables every touched image had when the recording
// began and empties the batch.
func (b *barrierBatch) restore() {
	for img, layouts := range b.origins {
		copy(img.layouts.layouts, layouts)
	}
	b.forget()
	b.reset()
}

func (b *barrierBatch) mark() batchMark {
	return batchMark{b.srcStage, b.dstStage, len(b.memory), len(b.images)}
}

// rollback drops everything queued after m and returns the affected
// subresources to the layouts they had before.
func (b *barrierBatch) rollback(m batchMark) {
	for i := len(b.images) - 1; i >= m.images; i-- {
		ib := b.images[i]
		for l := ib.BaseLayer; l < ib.BaseLayer+ib.LayerCount; l++ {
			ib.Image.layouts.set(ib.BaseMip, l, ib.OldLayout)
		}
	}
	b.images = b.images[:m.images]
	b.memory = b.memory[:m.memory]
	b.srcStage, b.dstStage = m.srcStage, m.dstStage
}

func (b *barrierBatch) addExecution(src, dst barrier.Stage) {
	b.srcStage |= src
	b.dstStage |= dst
}

func (b *barrierBatch) addMemory(srcAccess, dstAccess barrier.Access, src, dst barrier.Stage) {
	b.memory = append(b.memory, MemoryBarrier{SrcAccess: srcAccess, DstAccess: dstAccess})
	b.addExecution(src, dst)
}

// transition queues the barriers moving a subresource range of img into
// newLayout. Subresources already in newLayout are skipped; consecutive
// layers of one mip sharing an old layout are merged into one barrier.
// Nothing is committed when any transition is rejected. It reports whether
// any barrier was queued.
func (b *barrierBatch) transition(img *Image, baseMip, mipCount, baseLayer, layerCount uint32, newLayout metadata.Layout) (bool, error) {
	if err := img.layouts.checkRange(baseMip, mipCount, baseLayer, layerCount); err != nil {
		return false, err
	}
	if !newLayout.IsValid() || newLayout == metadata.LayoutUndefined || newLayout == metadata.LayoutPreinitialized {
		return false, fmt.Errorf("%w: transition of %s into %v", core.ErrUnsupportedTransition, img, newLayout)
	}

	type pending struct {
		ib      ImageBarrier
		barrier barrier.Barrier
	}
	var runs []pending

	for mip := baseMip; mip < baseMip+mipCount; mip++ {
		layer := baseLayer
		for layer < baseLayer+layerCount {
			old := img.layouts.layouts[img.layouts.index(mip, layer)]
			if old == newLayout {
				layer++
				continue
			}
			start := layer
			for layer < baseLayer+layerCount && img.layouts.layouts[img.layouts.index(mip, layer)] == old {
				layer++
			}
			bar, err := barrier.Synthesize(old, newLayout, img.Format)
			if err != nil {
				core.LogError("transition of %s mip %d: %s", img, mip, err.Error())
				return false, err
			}
			runs = append(runs, pending{
				ib: ImageBarrier{
					Image:      img,
					BaseMip:    mip,
					MipCount:   1,
					BaseLayer:  start,
					LayerCount: layer - start,
					OldLayout:  old,
					NewLayout:  newLayout,
					SrcAccess:  bar.SrcAccess,
					DstAccess:  bar.DstAccess,
					Aspect:     bar.Aspect,
				},
				barrier: bar,
			})
		}
	}

	if len(runs) > 0 {
		if b.origins == nil {
			b.origins = make(map[*Image][]metadata.Layout)
		}
		if _, ok := b.origins[img]; !ok {
			b.origins[img] = slices.Clone(img.layouts.layouts)
		}
	}
	for _, r := range runs {
		for l := r.ib.BaseLayer; l < r.ib.BaseLayer+r.ib.LayerCount; l++ {
			img.layouts.set(r.ib.BaseMip, l, newLayout)
		}
		b.images = append(b.images, r.ib)
		b.addExecution(r.barrier.SrcStage, r.barrier.DstStage)
	}
	return len(runs) > 0, nil
}

// flush records the batch as one barrier command and empties it.
func (b *barrierBatch) flush(enc CommandEncoder) {
	if b.empty() {
		return
	}
	pb := &PipelineBarrier{
		SrcStage: b.srcStage,
		DstStage: b.dstStage,
		Memory:   append([]MemoryBarrier(nil), b.memory...),
		Images:   append([]ImageBarrier(nil), b.images...),
	}
	enc.PipelineBarrier(pb)
	core.MetricsRecordBarrier(len(pb.Images))
	b.reset()
}
