package fibermill

import (
	"sync/atomic"
)

// allocatorGlobalBound caps the lock-free global overflow stack so a burst
// of deallocations from idle workers cannot grow it without limit; beyond
// this a released Task's stack memory is actually destroyed.
const allocatorGlobalBound = 4096

// localPool is one worker's thread-local free list: a plain (non-atomic)
// singly linked stack, since only that worker's own goroutine ever touches
// it. Stored in the Allocator's ThreadCache keyed by workerID.
type localPool struct {
	head *Task
	len  int
}

// Allocator is the per-thread task/stack allocator: each worker keeps
// a thread-local free list refilled from a lock-free global overflow stack
// (a Treiber stack over Task.nextFree), a two-tier hot-local/cold-global
// shape that recycles whole Task records (including their guarded stack
// memory) instead of byte-buffer chunks, and is made safe for cross-worker
// release since a Task's final Deref can legitimately happen on any
// goroutine.
type Allocator struct {
	stackSize int
	maxLocal  int

	globalHead atomic.Pointer[Task]
	globalLen  atomic.Int64

	cache *ThreadCache

	nextTaskID atomic.Uint64
	created    atomic.Int64
	destroyed  atomic.Int64

	// trackFn, if set, is called once per freshly created Task (not on
	// recycle) so a diagnostic taskRegistry can observe it.
	trackFn func(*Task)
}

// NewAllocator creates an allocator for threadsCount workers. maxLocal
// bounds how far a refill from the global overflow stack may grow a
// worker's thread-local free list.
func NewAllocator(threadsCount, stackSize, maxLocal int) *Allocator {
	return &Allocator{
		stackSize: stackSize,
		maxLocal:  maxLocal,
		cache:     NewThreadCache(threadsCount * 2),
	}
}

func (a *Allocator) localPoolFor(workerID int) *localPool {
	key := uint64(workerID)
	if v, ok := a.cache.Get(key); ok {
		return v.(*localPool)
	}
	lp := &localPool{}
	a.cache.Set(key, lp)
	return lp
}

// InitializeThread pre-warms count Tasks with real guarded stacks onto
// workerID's thread-local free list.
func (a *Allocator) InitializeThread(workerID, count int) error {
	lp := a.localPoolFor(workerID)
	for i := 0; i < count; i++ {
		t, err := a.newTask()
		if err != nil {
			return err
		}
		t.nextFree = lp.head
		lp.head = t
		lp.len++
	}
	return nil
}

// DeinitializeThread destroys every Task remaining on workerID's free
// list. Every Task this thread created must have been returned to some
// free list (local or global) by the time the thread is torn down.
func (a *Allocator) DeinitializeThread(workerID int) error {
	lp := a.localPoolFor(workerID)
	for lp.head != nil {
		t := lp.head
		lp.head = t.nextFree
		lp.len--
		if err := destroyStackMemory(t.stack); err != nil {
			return err
		}
		a.destroyed.Add(1)
	}
	return nil
}

func (a *Allocator) newTask() (*Task, error) {
	mem, err := createStackMemory(a.stackSize)
	if err != nil {
		return nil, err
	}
	t := &Task{
		id:        a.nextTaskID.Add(1),
		stack:     mem,
		allocator: a,
	}
	a.created.Add(1)
	if a.trackFn != nil {
		a.trackFn(t)
	}
	return t, nil
}

// Allocate pops a Task from workerID's thread-local free list, refilling
// from the global overflow stack first if the local list is empty, else
// falls through to a fresh heap+mmap allocation.
func (a *Allocator) Allocate(workerID int, job Job) (*Task, error) {
	lp := a.localPoolFor(workerID)
	if lp.head == nil {
		a.refill(lp)
	}
	if lp.head != nil {
		t := lp.head
		lp.head = t.nextFree
		lp.len--
		t.nextFree = nil
		t.reset(job)
		return t, nil
	}
	t, err := a.newTask()
	if err != nil {
		return nil, err
	}
	t.reset(job)
	return t, nil
}

// refill moves a batch of Tasks from the global overflow stack onto lp.
func (a *Allocator) refill(lp *localPool) {
	const batch = 16
	for i := 0; i < batch && lp.len < a.maxLocal; i++ {
		head := a.globalHead.Load()
		if head == nil {
			return
		}
		next := head.nextFree
		if a.globalHead.CompareAndSwap(head, next) {
			a.globalLen.Add(-1)
			head.nextFree = lp.head
			lp.head = head
			lp.len++
		}
	}
}

// release returns t to circulation by pushing it onto the global overflow
// stack, from which a later Allocate refills its local list, or destroys it
// outright once the global stack's bound is reached. It never pushes onto a
// worker's local list directly.
func (a *Allocator) release(t *Task) {
	if a.globalLen.Load() >= allocatorGlobalBound {
		if err := destroyStackMemory(t.stack); err == nil {
			a.destroyed.Add(1)
		}
		return
	}
	for {
		head := a.globalHead.Load()
		t.nextFree = head
		if a.globalHead.CompareAndSwap(head, t) {
			a.globalLen.Add(1)
			return
		}
	}
}
