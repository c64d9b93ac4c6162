package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// Buffer is a device buffer created by the resource factory. Buffers carry
// no layout; uploads only need a visibility barrier.
type Buffer struct {
	ID    uint32
	Name  string
	Size  uint64
	Usage metadata.BufferUsage

	handle    any
	destroyed bool
}

func NewBuffer(desc metadata.BufferDescription, handle any) (*Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: buffer of 0 bytes", core.ErrInvalidOperation)
	}
	b := &Buffer{
		Name:   desc.Name,
		Size:   desc.Size,
		Usage:  desc.Usage,
		handle: handle,
	}
	if b.Name == "" {
		b.Name = core.GenerateName("buffer")
	}
	b.ID = core.IdentifierAcquireNewID(b)
	return b, nil
}

func (b *Buffer) Handle() any { return b.handle }

func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	if d, ok := b.handle.(Disposable); ok {
		d.Destroy()
	}
	if err := core.IdentifierReleaseID(b.ID); err != nil {
		core.LogWarn("%s", err)
	}
}

func (b *Buffer) Destroyed() bool { return b.destroyed }

func (b *Buffer) String() string { return b.Name }
