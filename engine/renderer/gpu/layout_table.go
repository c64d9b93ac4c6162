package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// layoutTable stores one layout per (mip, layer), indexed mip*layers+layer.
type layoutTable struct {
	mipLevels   uint32
	arrayLayers uint32
	layouts     []metadata.Layout
}

func newLayoutTable(mipLevels, arrayLayers uint32, initial metadata.Layout) layoutTable {
	t := layoutTable{
		mipLevels:   mipLevels,
		arrayLayers: arrayLayers,
		layouts:     make([]metadata.Layout, int(mipLevels)*int(arrayLayers)),
	}
	for i := range t.layouts {
		t.layouts[i] = initial
	}
	return t
}

func (t *layoutTable) index(mip, layer uint32) int {
	return int(mip)*int(t.arrayLayers) + int(layer)
}

func (t *layoutTable) get(mip, layer uint32) (metadata.Layout, error) {
	if mip >= t.mipLevels || layer >= t.arrayLayers {
		return metadata.LayoutUndefined, fmt.Errorf("%w: mip %d layer %d of %dx%d", core.ErrInvalidSubresource, mip, layer, t.mipLevels, t.arrayLayers)
	}
	return t.layouts[t.index(mip, layer)], nil
}

func (t *layoutTable) set(mip, layer uint32, l metadata.Layout) {
	t.layouts[t.index(mip, layer)] = l
}

// checkRange validates a subresource range. Zero counts are rejected.
func (t *layoutTable) checkRange(baseMip, mipCount, baseLayer, layerCount uint32) error {
	if mipCount == 0 || layerCount == 0 ||
		uint64(baseMip)+uint64(mipCount) > uint64(t.mipLevels) ||
		uint64(baseLayer)+uint64(layerCount) > uint64(t.arrayLayers) {
		return fmt.Errorf("%w: mips [%d,+%d) layers [%d,+%d) of %dx%d", core.ErrInvalidSubresource,
			baseMip, mipCount, baseLayer, layerCount, t.mipLevels, t.arrayLayers)
	}
	return nil
}

// uniform reports the layout shared by every subresource, if any.
func (t *layoutTable) uniform() (metadata.Layout, bool) {
	for _, l := range t.layouts[1:] {
		if l != t.layouts[0] {
			return metadata.LayoutUndefined, false
		}
	}
	return t.layouts[0], true
}
