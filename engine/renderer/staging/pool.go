// Package staging pools host-visible buffers used as the intermediate hop of
// CPU to GPU uploads.
package staging

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima/engine/core"
)

// Memory is a host-visible allocation made by the device.
type Memory interface {
	// Map returns the mapped bytes of the allocation. The slice is valid
	// until Unmap.
	Map() ([]byte, error)
	Unmap()
	Destroy()
	// Handle returns the backend object the encoder copies from.
	Handle() any
}

// Allocator creates host-visible memory of at least size bytes.
type Allocator interface {
	AllocateStaging(size uint64) (Memory, error)
}

type bufferState int

const (
	stateAvailable bufferState = iota
	stateInUse
	stateDestroyed
)

func (s bufferState) String() string {
	switch s {
	case stateAvailable:
		return "available"
	case stateInUse:
		return "in use"
	case stateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Buffer is a staging buffer owned by a Pool and lent to one copy at a time.
type Buffer struct {
	mem      Memory
	capacity uint64
	state    bufferState
	pool     *Pool
}

func (b *Buffer) Capacity() uint64 { return b.capacity }

func (b *Buffer) Memory() Memory { return b.mem }

// Write maps the buffer, copies data at offset 0 and unmaps it.
func (b *Buffer) Write(data []byte) error {
	if b.state != stateInUse {
		return fmt.Errorf("%w: write to %s staging buffer", core.ErrInvalidOperation, b.state)
	}
	if uint64(len(data)) > b.capacity {
		return fmt.Errorf("%w: %d bytes into staging buffer of %d", core.ErrOutOfRange, len(data), b.capacity)
	}
	p, err := b.mem.Map()
	if err != nil {
		return fmt.Errorf("%w: map staging buffer: %v", core.ErrResourceAllocation, err)
	}
	copy(p, data)
	b.mem.Unmap()
	return nil
}

type Stats struct {
	Available int
	InUse     int
	Allocated uint64
	Destroyed uint64
}

// Pool keeps released staging buffers for reuse.
// Acquire and Release may be called from multiple goroutines.
type Pool struct {
	allocator Allocator

	mutex     sync.Mutex
	minimum   uint64
	maximum   uint64
	available []*Buffer
	inUse     map[*Buffer]struct{}
	allocated uint64
	destroyed uint64
}

// NewPool creates a pool allocating at least minimum bytes per buffer and
// recycling buffers no larger than maximum.
func NewPool(allocator Allocator, minimum, maximum uint64) *Pool {
	if minimum == 0 {
		minimum = core.DefaultStagingMinimumSize
	}
	if maximum < minimum {
		maximum = minimum
	}
	return &Pool{
		allocator: allocator,
		minimum:   minimum,
		maximum:   maximum,
		inUse:     make(map[*Buffer]struct{}),
	}
}

// Acquire returns the first available buffer holding at least size bytes,
// allocating a new one when none fits.
func (p *Pool) Acquire(size uint64) (*Buffer, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for i, b := range p.available {
		if b.capacity >= size {
			p.available = append(p.available[:i], p.available[i+1:]...)
			b.state = stateInUse
			p.inUse[b] = struct{}{}
			return b, nil
		}
	}

	capacity := max(p.minimum, size)
	mem, err := p.allocator.AllocateStaging(capacity)
	if err != nil {
		err = fmt.Errorf("%w: staging buffer of %d bytes: %v", core.ErrResourceAllocation, capacity, err)
		core.LogError("%s", err)
		return nil, err
	}
	b := &Buffer{
		mem:      mem,
		capacity: capacity,
		state:    stateInUse,
		pool:     p,
	}
	p.inUse[b] = struct{}{}
	p.allocated++
	core.MetricsRecordStagingAllocated()
	core.LogDebug("staging: allocated buffer of %d bytes", capacity)
	return b, nil
}

// Release returns b to the pool. The caller must have confirmed that the
// command buffer which read b has retired. Buffers larger than the
// configured maximum are destroyed.
func (p *Pool) Release(b *Buffer) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if b == nil || b.pool != p {
		return fmt.Errorf("%w: staging buffer does not belong to this pool", core.ErrInvalidOperation)
	}
	if _, ok := p.inUse[b]; !ok || b.state != stateInUse {
		return fmt.Errorf("%w: release of %s staging buffer", core.ErrInvalidOperation, b.state)
	}
	delete(p.inUse, b)

	if b.capacity > p.maximum {
		p.destroy(b)
		return nil
	}
	b.state = stateAvailable
	p.available = append(p.available, b)
	return nil
}

func (p *Pool) destroy(b *Buffer) {
	b.mem.Destroy()
	b.state = stateDestroyed
	p.destroyed++
	core.MetricsRecordStagingDestroyed()
	core.LogDebug("staging: destroyed buffer of %d bytes", b.capacity)
}

// SetLimits changes the allocation floor and the recycling ceiling.
// Pooled buffers above the new ceiling are destroyed right away.
func (p *Pool) SetLimits(minimum, maximum uint64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if minimum == 0 {
		minimum = core.DefaultStagingMinimumSize
	}
	if maximum < minimum {
		maximum = minimum
	}
	p.minimum, p.maximum = minimum, maximum

	kept := p.available[:0]
	for _, b := range p.available {
		if b.capacity > maximum {
			p.destroy(b)
			continue
		}
		kept = append(kept, b)
	}
	clear(p.available[len(kept):])
	p.available = kept
}

func (p *Pool) Limits() (minimum, maximum uint64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.minimum, p.maximum
}

func (p *Pool) Stats() Stats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return Stats{
		Available: len(p.available),
		InUse:     len(p.inUse),
		Allocated: p.allocated,
		Destroyed: p.destroyed,
	}
}

// Destroy frees every available buffer. Buffers still in use are destroyed
// when released.
func (p *Pool) Destroy() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, b := range p.available {
		p.destroy(b)
	}
	p.available = nil
	p.maximum = 0
}
