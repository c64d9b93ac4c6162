package vulkan

import "sync"

type LockGroup string

const (
	ResourceManagement        LockGroup = "resource_management"
	CommandBufferManagement   LockGroup = "command_buffer_management"
	RenderpassManagement      LockGroup = "renderpass_management"
	MemoryManagement          LockGroup = "memory_management"
	PipelineManagement        LockGroup = "pipeline_management"
	SynchronizationManagement LockGroup = "synchronization_management"
)

// LockPool serializes access to externally synchronized Vulkan objects.
// Queues are locked per family since several Queue values may share one.
type LockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // protects locks and queueMutexes

	queueMutexes map[uint32]*sync.Mutex
}

func NewLockPool() *LockPool {
	return &LockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

func (lp *LockPool) lock(group LockGroup) *sync.Mutex {
	lp.mu.Lock()
	l, ok := lp.locks[group]
	if !ok {
		l = &sync.Mutex{}
		lp.locks[group] = l
	}
	lp.mu.Unlock()

	l.Lock()
	return l
}

func (lp *LockPool) SafeCall(group LockGroup, fn func() error) error {
	l := lp.lock(group)
	defer l.Unlock()

	return fn()
}

func (lp *LockPool) queueLock(family uint32) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	l, ok := lp.queueMutexes[family]
	if !ok {
		l = &sync.Mutex{}
		lp.queueMutexes[family] = l
	}
	return l
}

func (lp *LockPool) SafeQueueCall(family uint32, fn func() error) error {
	l := lp.queueLock(family)
	l.Lock()
	defer l.Unlock()

	return fn()
}
