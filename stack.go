package fibermill

import "fmt"

// pageSize is assumed to be 4KiB. Both guard-page implementations size the
// guard page and round the usable region up to multiples of this constant;
// the platform's real page size is not queried.
const pageSize = 4096

// stackMemory is a guarded, pre-faulted memory region backing one Task's
// conceptual stack. Go's runtime switches goroutines, not raw stack
// pointers, so this memory is never the thing actually context-switched
// (see switchFrame/fiber below); it exists so the size/guard-page/
// pre-fault contract is genuinely allocated and testable, and so an
// OutOfMemory failure mode is real rather than simulated.
type stackMemory struct {
	region []byte // includes the low guard page
	usable []byte // the slice above the guard page
}

// createStackMemory allocates a guarded region of at least size bytes,
// protecting the low page against access and pre-faulting the rest.
func createStackMemory(size int) (*stackMemory, error) {
	if size < 2*pageSize {
		size = 2 * pageSize
	}
	return platformCreateStackMemory(size)
}

func destroyStackMemory(m *stackMemory) error {
	if m == nil {
		return nil
	}
	return platformDestroyStackMemory(m)
}

// switchFrame is the payload exchanged on a resume/yield handoff: whatever
// data the switching side wants the other side to observe once scheduled.
type switchFrame struct {
	reason fiberReason
}

// fiberReason is why a Task's fiber goroutine stopped running and handed
// control back to its manager.
type fiberReason int

const (
	fiberFinished fiberReason = iota
	fiberYielded
	fiberWaiting
)

// fiber is the goroutine-parked-on-channels realization of a symmetric
// stack-switch context: exactly one of the two sides (the manager calling
// Resume, or the fiber's own goroutine) is ever runnable at a time, which
// is the property a raw-stack-pointer switch primitive would also need to
// guarantee. resumeCh carries "you may run" into the fiber; doneCh carries
// "I have suspended" back out.
type fiber struct {
	resumeCh chan struct{}
	doneCh   chan switchFrame
	started  bool
}

func newFiber() *fiber {
	return &fiber{
		resumeCh: make(chan struct{}),
		doneCh:   make(chan switchFrame),
	}
}

// start launches run as the fiber's backing goroutine, at most once per
// fiber. run (Task.fiberMain in the runtime) calls awaitResume before doing
// any work; start itself never calls run directly.
func (f *fiber) start(run func()) {
	if f.started {
		return
	}
	f.started = true
	go run()
}

// resume sends the target fiber a "run now" signal and blocks until it
// reports back that it has suspended or finished.
func (f *fiber) resume() switchFrame {
	f.resumeCh <- struct{}{}
	return <-f.doneCh
}

// awaitResume blocks the fiber's own goroutine until its manager calls
// resume again.
func (f *fiber) awaitResume() {
	<-f.resumeCh
}

// suspend reports reason to the manager and blocks this call until resumed.
// Called from inside the fiber's own goroutine only.
func (f *fiber) suspend(reason fiberReason) {
	f.doneCh <- switchFrame{reason: reason}
	if reason != fiberFinished {
		f.awaitResume()
	}
}

func (m *stackMemory) String() string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("stackMemory{usable=%d bytes}", len(m.usable))
}
