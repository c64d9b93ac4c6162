// Package barrier maps image layout transitions onto the access scopes,
// pipeline stages and aspects a pipeline barrier needs.
//
// Every layout has a natural access/stage pair describing how an image in
// that layout was last written or will next be accessed. A transition takes
// its source scope from the old layout and its destination scope from the
// new one.
package barrier

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// Stage is a mask of pipeline stages.
type Stage uint32

const (
	StageTopOfPipe Stage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
	StageHost
	StageAllGraphics
	StageAllCommands
	StageRayTracingShader
	StageAccelerationStructureBuild
	StageNone Stage = 0
)

var stageNames = [...]string{
	"TopOfPipe", "DrawIndirect", "VertexInput", "VertexShader", "FragmentShader",
	"EarlyFragmentTests", "LateFragmentTests", "ColorAttachmentOutput",
	"ComputeShader", "Transfer", "BottomOfPipe", "Host", "AllGraphics",
	"AllCommands", "RayTracingShader", "AccelerationStructureBuild",
}

func (s Stage) String() string { return maskString(uint32(s), stageNames[:]) }

// Access is a mask of memory access scopes.
type Access uint32

const (
	AccessIndirectCommandRead Access = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite
	AccessAccelerationStructureRead
	AccessAccelerationStructureWrite
	AccessNone Access = 0
)

var accessNames = [...]string{
	"IndirectCommandRead", "IndexRead", "VertexAttributeRead", "UniformRead",
	"ShaderRead", "ShaderWrite", "ColorAttachmentRead", "ColorAttachmentWrite",
	"DepthStencilAttachmentRead", "DepthStencilAttachmentWrite", "TransferRead",
	"TransferWrite", "HostRead", "HostWrite", "MemoryRead", "MemoryWrite",
	"AccelerationStructureRead", "AccelerationStructureWrite",
}

func (a Access) String() string { return maskString(uint32(a), accessNames[:]) }

// Aspect is a mask of image aspects.
type Aspect uint32

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
	AspectStencil
)

func (a Aspect) String() string {
	return maskString(uint32(a), []string{"Color", "Depth", "Stencil"})
}

func maskString(m uint32, names []string) string {
	if m == 0 {
		return "None"
	}
	parts := []string{}
	for i, n := range names {
		if m&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// Barrier is the synchronization scope of one layout transition.
type Barrier struct {
	SrcAccess Access
	DstAccess Access
	SrcStage  Stage
	DstStage  Stage
	Aspect    Aspect
}

type scope struct {
	access Access
	stage  Stage
}

// source holds the scope of the accesses that may have touched an image
// while it was in a layout.
var source = [metadata.LayoutCount]scope{
	metadata.LayoutUndefined:              {AccessNone, StageTopOfPipe},
	metadata.LayoutPreinitialized:         {AccessHostWrite, StageHost},
	metadata.LayoutTransferSrc:            {AccessTransferRead, StageTransfer},
	metadata.LayoutTransferDst:            {AccessTransferWrite, StageTransfer},
	metadata.LayoutShaderReadOnly:         {AccessShaderRead, StageFragmentShader | StageComputeShader},
	metadata.LayoutColorAttachment:        {AccessColorAttachmentWrite, StageColorAttachmentOutput},
	metadata.LayoutDepthStencilAttachment: {AccessDepthStencilAttachmentWrite, StageLateFragmentTests},
	metadata.LayoutPresentSource:          {AccessMemoryRead, StageBottomOfPipe},
	metadata.LayoutGeneral:                {AccessShaderRead | AccessShaderWrite, StageComputeShader},
}

// destination holds the scope of the accesses the new layout is entered for.
// Undefined and Preinitialized cannot be transitioned into.
var destination = [metadata.LayoutCount]*scope{
	metadata.LayoutUndefined:              nil,
	metadata.LayoutPreinitialized:         nil,
	metadata.LayoutTransferSrc:            {AccessTransferRead, StageTransfer},
	metadata.LayoutTransferDst:            {AccessTransferWrite, StageTransfer},
	metadata.LayoutShaderReadOnly:         {AccessShaderRead, StageFragmentShader | StageComputeShader},
	metadata.LayoutColorAttachment:        {AccessColorAttachmentRead | AccessColorAttachmentWrite, StageColorAttachmentOutput},
	metadata.LayoutDepthStencilAttachment: {AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite, StageEarlyFragmentTests | StageLateFragmentTests},
	metadata.LayoutPresentSource:          {AccessMemoryRead, StageBottomOfPipe},
	metadata.LayoutGeneral:                {AccessShaderRead | AccessShaderWrite, StageComputeShader},
}

// Synthesize returns the barrier for moving an image of the given format
// from oldLayout to newLayout.
// It fails with core.ErrUnsupportedTransition for layouts outside the table,
// which only happens when the Layout enum grows without this table.
func Synthesize(oldLayout, newLayout metadata.Layout, format metadata.PixelFormat) (Barrier, error) {
	if !oldLayout.IsValid() || !newLayout.IsValid() {
		return Barrier{}, fmt.Errorf("%w: %v -> %v", core.ErrUnsupportedTransition, oldLayout, newLayout)
	}
	dst := destination[newLayout]
	if dst == nil {
		return Barrier{}, fmt.Errorf("%w: %v -> %v", core.ErrUnsupportedTransition, oldLayout, newLayout)
	}
	src := source[oldLayout]
	return Barrier{
		SrcAccess: src.access,
		DstAccess: dst.access,
		SrcStage:  src.stage,
		DstStage:  dst.stage,
		Aspect:    AspectOf(format, oldLayout, newLayout),
	}, nil
}

// AspectOf returns the aspects a transition of an image with the given format
// must name. Stencil is only included when the transition enters or leaves
// the depth/stencil attachment layout.
func AspectOf(format metadata.PixelFormat, oldLayout, newLayout metadata.Layout) Aspect {
	if !format.IsDepthStencil() {
		return AspectColor
	}
	var a Aspect
	if format.HasDepth() {
		a |= AspectDepth
	}
	if format.HasStencil() {
		if oldLayout == metadata.LayoutDepthStencilAttachment || newLayout == metadata.LayoutDepthStencilAttachment || !format.HasDepth() {
			a |= AspectStencil
		}
	}
	return a
}

// FullAspect returns every aspect carried by format.
func FullAspect(format metadata.PixelFormat) Aspect {
	return AspectOf(format, metadata.LayoutDepthStencilAttachment, metadata.LayoutDepthStencilAttachment)
}

// BufferReadScope returns the scope of the first reads a buffer with the
// given usage may see after a transfer wrote it.
func BufferReadScope(usage metadata.BufferUsage) (Access, Stage) {
	var a Access
	var s Stage
	if usage.Has(metadata.BufferUsageVertex) {
		a |= AccessVertexAttributeRead
		s |= StageVertexInput
	}
	if usage.Has(metadata.BufferUsageIndex) {
		a |= AccessIndexRead
		s |= StageVertexInput
	}
	if usage.Has(metadata.BufferUsageIndirect) {
		a |= AccessIndirectCommandRead
		s |= StageDrawIndirect
	}
	if usage.Has(metadata.BufferUsageUniform) {
		a |= AccessUniformRead
		s |= StageVertexShader | StageFragmentShader | StageComputeShader
	}
	if usage.Has(metadata.BufferUsageStorage) {
		a |= AccessShaderRead | AccessShaderWrite
		s |= StageVertexShader | StageFragmentShader | StageComputeShader
	}
	if usage.Has(metadata.BufferUsageTransfer) {
		a |= AccessTransferRead | AccessTransferWrite
		s |= StageTransfer
	}
	if a == AccessNone {
		return AccessMemoryRead, StageAllCommands
	}
	return a, s
}
