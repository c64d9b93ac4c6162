package headless

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
	"github.com/spaghettifunk/anima/engine/renderer/staging"
)

type CommandKind int

const (
	CommandPipelineBarrier CommandKind = iota
	CommandBeginRenderPass
	CommandEndRenderPass
	CommandSetViewport
	CommandSetScissor
	CommandClearColor
	CommandClearDepthStencil
	CommandCopyBuffer
	CommandCopyBufferToImage
	CommandCopyImage
	CommandBlitImage
	CommandResolveImage
	CommandBindPipeline
	CommandBindVertexBuffer
	CommandBindIndexBuffer
	CommandBindResourceSet
	CommandDrawIndexed
	CommandDispatch
	CommandTraceRays
)

var commandNames = [...]string{
	"PipelineBarrier", "BeginRenderPass", "EndRenderPass", "SetViewport",
	"SetScissor", "ClearColor", "ClearDepthStencil", "CopyBuffer",
	"CopyBufferToImage", "CopyImage", "BlitImage", "ResolveImage",
	"BindPipeline", "BindVertexBuffer", "BindIndexBuffer", "BindResourceSet",
	"DrawIndexed", "Dispatch", "TraceRays",
}

func (k CommandKind) String() string {
	if k < 0 || int(k) >= len(commandNames) {
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
	return commandNames[k]
}

// Command is one recorded command. Only the fields relevant to Kind are set.
type Command struct {
	Kind CommandKind

	Barrier     *gpu.PipelineBarrier
	Framebuffer *gpu.Framebuffer
	Index       uint32
	Viewport    metadata.Viewport
	Rect        metadata.Rect
	Color       metadata.ColorRGBA
	Depth       float32
	Stencil     uint8
	Aspect      barrier.Aspect

	Staging   *Memory
	SrcImage  *gpu.Image
	DstImage  *gpu.Image
	Buffer    *gpu.Buffer
	Offset    uint64
	Size      uint64
	Upload    gpu.BufferImageCopy
	Copy      gpu.ImageCopy
	Blit      gpu.ImageBlit
	Filter    metadata.Filter
	Pipeline  gpu.Pipeline
	Set       gpu.ResourceSet
	IndexType metadata.IndexFormat

	// Group holds index count, instance count, first index and first
	// instance for draws, and the group or ray counts for dispatches.
	Group        [4]uint32
	VertexOffset int32
}

func (c Command) String() string {
	switch c.Kind {
	case CommandPipelineBarrier:
		return fmt.Sprintf("%v %v->%v images=%d memory=%d", c.Kind, c.Barrier.SrcStage, c.Barrier.DstStage,
			len(c.Barrier.Images), len(c.Barrier.Memory))
	case CommandCopyBuffer:
		return fmt.Sprintf("%v %s+%d size=%d", c.Kind, c.Buffer, c.Offset, c.Size)
	case CommandCopyBufferToImage:
		return fmt.Sprintf("%v %s mip=%d layer=%d", c.Kind, c.DstImage, c.Upload.Mip, c.Upload.Layer)
	case CommandBlitImage:
		return fmt.Sprintf("%v %s mip %d->%d", c.Kind, c.SrcImage, c.Blit.SrcMip, c.Blit.DstMip)
	case CommandCopyImage, CommandResolveImage:
		return fmt.Sprintf("%v %s->%s", c.Kind, c.SrcImage, c.DstImage)
	case CommandBindResourceSet:
		return fmt.Sprintf("%v slot=%d", c.Kind, c.Index)
	case CommandDrawIndexed, CommandDispatch, CommandTraceRays:
		return fmt.Sprintf("%v %v", c.Kind, c.Group)
	}
	return c.Kind.String()
}

// Encoder records commands for a Queue to replay.
type Encoder struct {
	features  gpu.Features
	recording bool
	ended     bool
	commands  []Command
}

var (
	ErrEncoderRecording    = errors.New("headless: encoder is already recording")
	ErrEncoderNotRecording = errors.New("headless: encoder is not recording")
)

func (e *Encoder) Features() gpu.Features { return e.features }

func (e *Encoder) Begin() error {
	if e.recording {
		return ErrEncoderRecording
	}
	e.recording = true
	e.ended = false
	e.commands = e.commands[:0]
	return nil
}

func (e *Encoder) End() error {
	if !e.recording {
		return ErrEncoderNotRecording
	}
	e.recording = false
	e.ended = true
	return nil
}

// Commands returns the commands of the current or last recording.
func (e *Encoder) Commands() []Command { return e.commands }

// Kinds returns the kinds of the recorded commands, in order.
func (e *Encoder) Kinds() []CommandKind {
	out := make([]CommandKind, len(e.commands))
	for i, c := range e.commands {
		out[i] = c.Kind
	}
	return out
}

func (e *Encoder) Count(kind CommandKind) int {
	n := 0
	for _, c := range e.commands {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func (e *Encoder) record(c Command) {
	e.commands = append(e.commands, c)
}

func (e *Encoder) PipelineBarrier(b *gpu.PipelineBarrier) {
	e.record(Command{Kind: CommandPipelineBarrier, Barrier: b})
}

func (e *Encoder) BeginRenderPass(fb *gpu.Framebuffer) {
	e.record(Command{Kind: CommandBeginRenderPass, Framebuffer: fb})
}

func (e *Encoder) EndRenderPass() {
	e.record(Command{Kind: CommandEndRenderPass})
}

func (e *Encoder) SetViewport(index uint32, vp metadata.Viewport) {
	e.record(Command{Kind: CommandSetViewport, Index: index, Viewport: vp})
}

func (e *Encoder) SetScissor(index uint32, rect metadata.Rect) {
	e.record(Command{Kind: CommandSetScissor, Index: index, Rect: rect})
}

func (e *Encoder) ClearColorAttachment(index uint32, color metadata.ColorRGBA, area metadata.Rect) {
	e.record(Command{Kind: CommandClearColor, Index: index, Color: color, Rect: area})
}

func (e *Encoder) ClearDepthStencilAttachment(depth float32, stencil uint8, aspect barrier.Aspect, area metadata.Rect) {
	e.record(Command{Kind: CommandClearDepthStencil, Depth: depth, Stencil: stencil, Aspect: aspect, Rect: area})
}

func (e *Encoder) CopyBuffer(src *staging.Buffer, dst *gpu.Buffer, dstOffset, size uint64) {
	e.record(Command{Kind: CommandCopyBuffer, Staging: src.Memory().Handle().(*Memory), Buffer: dst, Offset: dstOffset, Size: size})
}

func (e *Encoder) CopyBufferToImage(src *staging.Buffer, dst *gpu.Image, region gpu.BufferImageCopy) {
	e.record(Command{Kind: CommandCopyBufferToImage, Staging: src.Memory().Handle().(*Memory), DstImage: dst, Upload: region})
}

func (e *Encoder) CopyImage(src, dst *gpu.Image, region gpu.ImageCopy) {
	e.record(Command{Kind: CommandCopyImage, SrcImage: src, DstImage: dst, Copy: region})
}

func (e *Encoder) BlitImage(src, dst *gpu.Image, region gpu.ImageBlit, filter metadata.Filter) {
	e.record(Command{Kind: CommandBlitImage, SrcImage: src, DstImage: dst, Blit: region, Filter: filter})
}

func (e *Encoder) ResolveImage(src, dst *gpu.Image, region gpu.ImageCopy) {
	e.record(Command{Kind: CommandResolveImage, SrcImage: src, DstImage: dst, Copy: region})
}

func (e *Encoder) BindPipeline(p gpu.Pipeline) {
	e.record(Command{Kind: CommandBindPipeline, Pipeline: p})
}

func (e *Encoder) BindVertexBuffer(index uint32, b *gpu.Buffer, offset uint64) {
	e.record(Command{Kind: CommandBindVertexBuffer, Index: index, Buffer: b, Offset: offset})
}

func (e *Encoder) BindIndexBuffer(b *gpu.Buffer, format metadata.IndexFormat, offset uint64) {
	e.record(Command{Kind: CommandBindIndexBuffer, Buffer: b, IndexType: format, Offset: offset})
}

func (e *Encoder) BindResourceSet(p gpu.Pipeline, slot uint32, set gpu.ResourceSet) {
	e.record(Command{Kind: CommandBindResourceSet, Pipeline: p, Index: slot, Set: set})
}

func (e *Encoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	e.record(Command{
		Kind:         CommandDrawIndexed,
		Group:        [4]uint32{indexCount, instanceCount, firstIndex, firstInstance},
		VertexOffset: vertexOffset,
	})
}

func (e *Encoder) Dispatch(x, y, z uint32) {
	e.record(Command{Kind: CommandDispatch, Group: [4]uint32{x, y, z}})
}

func (e *Encoder) TraceRays(width, height, depth uint32) {
	e.record(Command{Kind: CommandTraceRays, Group: [4]uint32{width, height, depth}})
}

var _ gpu.CommandEncoder = (*Encoder)(nil)
