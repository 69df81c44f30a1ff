package fibermill

import (
	"errors"
	"fmt"
)

// Sentinel errors for each fatal category of the error taxonomy:
// configuration errors (programmer fault, fatal at Init), resource
// exhaustion (fatal, the runtime cannot proceed), and invariant violations
// (bugs, asserted in debug builds). CAS retries inside lock-free data
// structures are never surfaced as errors, they loop.
var (
	// ErrInvalidSettings is returned by Init when Settings fails validation
	// (threads_count or jobs_capacity below 1). An out-of-range stack_size
	// is clamped rather than rejected.
	ErrInvalidSettings = errors.New("fibermill: invalid settings")

	// ErrStackCreateFailed indicates the guarded-stack allocator could not
	// map memory for a new Task (address space exhausted).
	ErrStackCreateFailed = errors.New("fibermill: stack allocation failed")

	// ErrCacheFull indicates a thread-indexed cache insert found no free
	// slot. The cache is fixed-capacity and sized from Settings at Init.
	ErrCacheFull = errors.New("fibermill: thread cache is full")

	// ErrDoubleWaiter indicates set_waiter observed an already-installed
	// waiter — at most one waiter may ever be installed per Task.
	ErrDoubleWaiter = errors.New("fibermill: task already has a waiter")

	// ErrUseAfterFree indicates an operation referenced a Task whose
	// reference count had already reached zero.
	ErrUseAfterFree = errors.New("fibermill: use of a released task")

	// ErrNotRunning is returned by Submit when the runtime is not accepting
	// work: before Init, or once Stop or Shutdown has been called.
	ErrNotRunning = errors.New("fibermill: runtime is not running")

	// ErrAlreadyRunning is returned by Init when called on a runtime that
	// is already running.
	ErrAlreadyRunning = errors.New("fibermill: runtime already running")

	// ErrReentrantInit names the case of calling Init from within a task
	// body. No function in this package returns it: Init always builds a
	// fresh Runtime and performs no reentrancy check.
	ErrReentrantInit = errors.New("fibermill: cannot call Init from within a running task")

	// ErrTaskPanic wraps a recovered panic from a submitted callable,
	// surfaced through Promise.Wait's error rather than crashing the
	// worker that happened to be running it.
	ErrTaskPanic = errors.New("fibermill: task panicked")

	// ErrResultType is returned by Promise.Wait/ToChannel when the Task's
	// stored result cannot be type-asserted to the Promise's T — a
	// mismatched Submit[T]/Wait[T] pairing, surfaced as an error instead
	// of silently returning T's zero value.
	ErrResultType = errors.New("fibermill: result type mismatch")
)

// fatalPanicError wraps a recovered panic value as an error carrying
// ErrTaskPanic, so callers can errors.Is it regardless of the original
// panic value's type.
func fatalPanicError(r any) error {
	return fmt.Errorf("%w: %v", ErrTaskPanic, r)
}

// wrapf wraps one of the sentinels above with contextual detail, without
// panicking, for the call sites that return an error rather than asserting
// (settings validation, stack creation, Submit, result type checks).
func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// fatalf wraps one of the sentinels above with contextual detail and
// panics. A full thread cache and invariant violations use this helper so
// callers can recover at a task boundary and still errors.Is the cause;
// configuration errors and stack-creation failures are returned via wrapf.
func fatalf(sentinel error, format string, args ...any) {
	panic(fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)))
}
