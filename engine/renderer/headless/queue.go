package headless

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/anima/engine/containers"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

// ErrValidation wraps every rule a replayed command buffer broke.
var ErrValidation = errors.New("headless: command buffer failed validation")

// Fence signals once the queue completed the submission it belongs to.
type Fence struct {
	queue    *Queue
	serial   uint64
	signaled bool
}

// Wait completes every submission up to and including this one. A stalled
// queue completes nothing; Wait then sleeps for timeout and returns false.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	if f.queue.completeThrough(f.serial) {
		return true, nil
	}
	time.Sleep(timeout)
	return false, nil
}

func (f *Fence) Signaled() bool {
	f.queue.mutex.Lock()
	defer f.queue.mutex.Unlock()
	return f.signaled
}

var _ gpu.Fence = (*Fence)(nil)

// Queue replays submitted encoders in order. The layouts it tracks are the
// ones the device would hold, built only from recorded barriers.
type Queue struct {
	mutex    sync.Mutex
	inFlight *containers.RingQueue[*Fence]
	serial   uint64
	stalled  bool
	layouts  map[*gpu.Image][]metadata.Layout
}

// NewQueue creates a queue keeping at most depth submissions in flight.
func (d *Device) NewQueue(depth int) *Queue {
	return &Queue{
		inFlight: containers.NewRingQueue[*Fence](max(depth, 1)),
		layouts:  make(map[*gpu.Image][]metadata.Layout),
	}
}

// SetStalled stops or resumes completion of submitted work.
func (q *Queue) SetStalled(stalled bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.stalled = stalled
}

func (q *Queue) InFlight() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.inFlight.Len()
}

// Submit replays the commands of an ended encoder and returns the fence of
// the submission. A full queue first completes its oldest submission.
func (q *Queue) Submit(enc *Encoder) (*Fence, error) {
	if enc == nil || !enc.ended {
		return nil, fmt.Errorf("%w: submit of an encoder that has not ended", core.ErrInvalidOperation)
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.inFlight.IsFull() {
		if q.stalled {
			return nil, containers.ErrQueueFull
		}
		q.completeOldest()
	}
	if err := q.replay(enc.commands); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	q.serial++
	f := &Fence{queue: q, serial: q.serial}
	if err := q.inFlight.Enqueue(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (q *Queue) completeOldest() bool {
	f, err := q.inFlight.Dequeue()
	if err != nil {
		return false
	}
	f.signaled = true
	return true
}

func (q *Queue) completeThrough(serial uint64) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for {
		f, err := q.inFlight.Peek()
		if err != nil || f.serial > serial {
			return true
		}
		if q.stalled {
			return false
		}
		q.completeOldest()
	}
}

// Poll completes the oldest submission. It reports whether one completed.
func (q *Queue) Poll() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.stalled {
		return false
	}
	return q.completeOldest()
}

// WaitIdle completes every submission unless the queue is stalled.
func (q *Queue) WaitIdle() bool {
	return q.completeThrough(q.serialNow())
}

func (q *Queue) serialNow() uint64 {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.serial
}

// Layout returns the device-side layout of a subresource.
func (q *Queue) Layout(img *gpu.Image, mip, layer uint32) metadata.Layout {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.deviceLayouts(img)[int(mip)*int(img.ArrayLayers)+int(layer)]
}

func (q *Queue) deviceLayouts(img *gpu.Image) []metadata.Layout {
	if l, ok := q.layouts[img]; ok {
		return l
	}
	initial := metadata.LayoutUndefined
	if h, ok := img.Handle().(*Image); ok && h.preinitialized {
		initial = metadata.LayoutPreinitialized
	}
	l := make([]metadata.Layout, int(img.MipLevels)*int(img.ArrayLayers))
	for i := range l {
		l[i] = initial
	}
	q.layouts[img] = l
	return l
}
