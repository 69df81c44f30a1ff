package fibermill

import (
	"sync/atomic"
	"unsafe"
)

// Job is the type-erased callable a Task executes. It receives a Ctx for
// the explicit suspend operations (Yield, Wait) that would otherwise be
// expressed as implicit-current-Task calls; Go has no portable
// thread-local storage, so the current Task is instead threaded
// explicitly as an opaque per-thread context argument to every operation.
type Job func(ctx *Ctx) (any, error)

// Task is the atomic unit of scheduling: a reference-counted handle with a
// marked-pointer waiter slot, suspension bookkeeping touched only by the
// worker currently executing it, and a fiber (goroutine-parked-on-channels)
// standing in for an embedded stack context.
type Task struct {
	id   uint64
	refs atomic.Int64

	// waiter is the single linearization point for this Task's lifecycle:
	// the pointee is the Task waiting on this one; the mark bit is "I have
	// finished." Touched by set_waiter (the suspender) and resolve (this
	// Task's own completion), which may race — the whole point of packing
	// both into one word.
	waiter MarkedPointer

	// waiting, manager, and yielding are touched only by the worker
	// currently resuming this Task, or (for waiting/yielding) by this
	// Task's own fiber goroutine between a channel send and the
	// corresponding receive — which the Go memory model already orders,
	// so no atomics are needed here.
	waiting *Task
	manager *Task
	yielding bool

	stack *stackMemory
	fiber *fiber

	job    Job
	result any
	err    error

	nextFree  *Task
	allocator *Allocator

	// finishedCh is closed by Resolve so goroutines outside the scheduler
	// (ToChannel, external Wait) have something to block on without
	// polling; Tasks suspended cooperatively never touch this channel.
	finishedCh chan struct{}
}

// awaitFinishedExternally blocks the calling goroutine (which must not be a
// Task's own fiber goroutine) until this Task resolves.
func (t *Task) awaitFinishedExternally() {
	<-t.finishedCh
}

// Ref acquires n additional references (default 1 via RefOne).
func (t *Task) Ref(n int64) {
	t.refs.Add(n)
}

// RefOne acquires a single reference, the common case.
func (t *Task) RefOne() { t.refs.Add(1) }

// Deref releases n references. If the count transitions to exactly zero,
// the Task is returned to its allocator (a Task with no allocator, such as
// the thread-shim, is simply left to the garbage collector). This transition must be unique per
// Task across its lifetime; a Deref observing refs already at or below
// zero is an invariant violation.
func (t *Task) Deref(n int64) {
	old := t.refs.Add(-n) + n
	if old < n {
		fatalfTask(ErrUseAfterFree, t, "deref of task %d by %d when refs was %d", t.id, n, old)
	}
	if old == n {
		if t.allocator != nil {
			t.allocator.release(t)
		}
	}
}

// DerefOne releases a single reference, the common case.
func (t *Task) DerefOne() { t.Deref(1) }

// SetWaiter installs w as the Task this one should wake on completion. It
// fails (returns false) if the completion mark is already set, meaning the
// Task finished before the waiter could be installed — the caller must
// re-enqueue itself rather than suspend.
func (t *Task) SetWaiter(w *Task) bool {
	for {
		ptr, mark := t.waiter.Load()
		if mark {
			return false
		}
		if ptr != nil {
			fatalfTask(ErrDoubleWaiter, t, "task %d already has a waiter installed", t.id)
		}
		if t.waiter.CAS(nil, false, unsafe.Pointer(w), false) {
			return true
		}
	}
}

// Resolve sets the completion mark and returns the previously installed
// waiter (nil if none raced in before completion).
func (t *Task) Resolve() *Task {
	for {
		ptr, mark := t.waiter.Load()
		if mark {
			fatalfTask(ErrDoubleWaiter, t, "task %d resolved twice", t.id)
		}
		if t.waiter.CAS(ptr, false, ptr, true) {
			close(t.finishedCh)
			return (*Task)(ptr)
		}
	}
}

// IsFinished observes only the completion mark.
func (t *Task) IsFinished() bool {
	_, mark := t.waiter.Load()
	return mark
}

// Result returns the callable's return value and error, valid only once
// IsFinished reports true.
func (t *Task) Result() (any, error) {
	return t.result, t.err
}

// reset prepares a recycled Task with a fresh job and zeroed transient
// state, reusing the existing guarded stack memory (the fiber's backing
// goroutine itself is relaunched, since Go goroutines are cheap to create
// relative to the OS-level context this models).
func (t *Task) reset(job Job) {
	t.waiter.Store(nil, false)
	t.waiting = nil
	t.manager = nil
	t.yielding = false
	t.job = job
	t.result = nil
	t.err = nil
	t.fiber = newFiber()
	t.finishedCh = make(chan struct{})
	t.refs.Store(0)
}

// fiberMain is the body run on the Task's dedicated goroutine: invoke the
// job, record its outcome, and report finished to whichever worker is
// currently resuming this Task; that worker then resolves the waiter slot.
func (t *Task) fiberMain(ctx *Ctx) {
	t.fiber.awaitResume()
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.err = fatalPanicError(r)
			}
		}()
		t.result, t.err = t.job(ctx)
	}()
	t.fiber.suspend(fiberFinished)
}

// Resume switches control to this Task's fiber: start its goroutine on the
// first call, then hand it the run signal and block until it suspends
// (yielded, started waiting on another Task) or finished.
func (t *Task) Resume(ctx *Ctx) fiberReason {
	if !t.fiber.started {
		t.fiber.start(func() { t.fiberMain(ctx) })
	}
	return t.fiber.resume().reason
}

// Yield is called from inside this Task's own fiber goroutine to suspend
// and request re-enqueue.
func (t *Task) Yield() {
	t.yielding = true
	t.fiber.suspend(fiberYielded)
	t.yielding = false
}

// BeginWait is called from inside this Task's own fiber goroutine to
// suspend on other until resolved. The caller must have already taken a
// reference on other; Resume's caller (the worker loop) is responsible for
// installing this Task as other's waiter and releasing that reference once
// the wait is satisfied.
func (t *Task) BeginWait(other *Task) {
	t.waiting = other
	t.fiber.suspend(fiberWaiting)
	t.waiting = nil
}
