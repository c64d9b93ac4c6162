package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

type BindingKind int

const (
	BindingSampledImage BindingKind = iota
	BindingStorageImage
	BindingUniformBuffer
	BindingStorageBuffer
	BindingAccelerationStructure
)

func (k BindingKind) String() string {
	switch k {
	case BindingSampledImage:
		return "SampledImage"
	case BindingStorageImage:
		return "StorageImage"
	case BindingUniformBuffer:
		return "UniformBuffer"
	case BindingStorageBuffer:
		return "StorageBuffer"
	case BindingAccelerationStructure:
		return "AccelerationStructure"
	}
	return fmt.Sprintf("BindingKind(%d)", int(k))
}

// Binding is one entry of a resource set. Image is set for image kinds,
// Buffer for buffer kinds. Acceleration structures carry neither.
type Binding struct {
	Kind   BindingKind
	Image  *Image
	Buffer *Buffer
}

// ResourceSet is a group of bindings bound to one slot of a pipeline.
type ResourceSet interface {
	Handle() any
	Bindings() []Binding
}

// BindingSet is the ResourceSet backends return from their factories.
type BindingSet struct {
	handle   any
	bindings []Binding
}

func NewBindingSet(handle any, bindings ...Binding) *BindingSet {
	return &BindingSet{handle: handle, bindings: bindings}
}

func (s *BindingSet) Handle() any         { return s.handle }
func (s *BindingSet) Bindings() []Binding { return s.bindings }

// Pipeline is a compiled graphics, compute or ray tracing pipeline.
type Pipeline interface {
	Kind() metadata.PipelineKind
	Handle() any
}

type PipelineHandle struct {
	kind   metadata.PipelineKind
	handle any
}

func NewPipeline(kind metadata.PipelineKind, handle any) *PipelineHandle {
	return &PipelineHandle{kind: kind, handle: handle}
}

func (p *PipelineHandle) Kind() metadata.PipelineKind { return p.kind }
func (p *PipelineHandle) Handle() any                 { return p.handle }
