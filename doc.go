// Package fibermill is a user-space cooperative task runtime built on
// stackful coroutines ("fibers") executed by a fixed pool of OS threads.
//
// # Architecture
//
// Application code calls [Submit] with a callable; the callable runs on a
// pooled fiber and may suspend on another task's completion ([Wait]) or
// voluntarily yield ([Ctx.Yield]) before resuming, possibly on a different OS
// thread. The runtime is built from three tightly coupled layers:
//
//   - The scheduler ([Init], the worker loop, [Submit]/[Wait]/[Ctx.Yield]/[Runtime.Stop]).
//   - Lock-free data structures the scheduler depends on: a sharded MPMC
//     queue of runnable tasks ([Queue]), a thread-indexed cache used by the
//     allocators ([ThreadCache]), and the safe-memory-reclamation machinery
//     (hazard pointers, [HazardDomain]; an epoch collector, [EpochDomain])
//     that permits wait-free lookups over nodes concurrently being freed.
//   - A per-thread task/stack allocator ([Allocator]) with a lock-free task
//     handle ([Task]) tracking references, waiters, and completion through a
//     single atomic marked pointer ([MarkedPointer]).
//
// # Platform support
//
// Stack memory for each fiber is a guarded, pre-faulted mapping allocated
// with platform syscalls (mmap/mprotect on Unix, VirtualAlloc/VirtualProtect
// on Windows); the actual control transfer between fibers is a goroutine
// parked on a pair of unbuffered channels, since Go exposes no portable way
// to repoint a raw stack pointer without assembly — see stack.go.
//
// # Thread safety
//
// [Submit] is safe from any goroutine, including from within a running task.
// [Wait] and [Ctx.Yield] must only be called from the fiber of the task that is
// suspending itself. A Task's waiter slot is the single linearization point
// for its completion; all other task fields are touched only by the worker
// currently executing it.
//
// # Usage
//
//	rt, err := fibermill.Init(fibermill.Settings{ThreadsCount: 4, JobsCapacity: 256, StackSize: 64 << 10})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Shutdown()
//
//	p, err := fibermill.Submit(rt, func(ctx *fibermill.Ctx) (int, error) { return 41 + 1, nil })
//	v, err := p.Wait()
package fibermill
