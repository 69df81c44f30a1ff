package fibermill

// Promise is the owning handle submit returns: it holds exactly one
// reference to the backing Task and, for value-returning jobs, reads the
// Task's result slot once resolved. The zero value is not usable; only
// Runtime.Submit constructs one.
//
// Non-copyable by convention (copying would duplicate a single logical
// reference without bumping the refcount) but cheaply movable. Go has no
// copy-suppression mechanism, so this is documentation rather than an
// enforced constraint.
type Promise[T any] struct {
	task     *Task
	released bool
}

func newPromise[T any](task *Task) *Promise[T] {
	return &Promise[T]{task: task}
}

// value reads the Task's result slot and type-asserts it to T. Called only
// after the Task is known finished (ToChannel/Wait enforce this).
func (p *Promise[T]) value() (T, error) {
	var zero T
	result, err := p.task.Result()
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	v, ok := result.(T)
	if !ok {
		return zero, wrapf(ErrResultType, "expected %T, got %T", zero, result)
	}
	return v, nil
}

// Wait blocks the calling goroutine until the Promise resolves and returns
// its value. Only for use from outside a running Task (e.g. the goroutine
// that called Runtime.Submit directly); a Job must instead call the
// package-level Wait(ctx, promise), which suspends its fiber cooperatively
// instead of parking an OS-level goroutine.
func (p *Promise[T]) Wait() (T, error) {
	p.task.awaitFinishedExternally()
	return p.value()
}

// Done reports whether the backing Task has finished, without blocking.
func (p *Promise[T]) Done() bool {
	return p.task.IsFinished()
}

// ToChannel returns a channel that receives the resolved value exactly
// once and is then closed, a convenience for composing many promises with
// select. It spawns a dedicated goroutine that blocks on the Task's
// completion channel (closed by Resolve); Wait is the primary, cheaper path
// for code already running inside a Task.
func (p *Promise[T]) ToChannel() <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		p.task.awaitFinishedExternally()
		v, err := p.value()
		ch <- Result[T]{Value: v, Err: err}
		close(ch)
	}()
	return ch
}

// Result is the payload delivered by Promise.ToChannel.
type Result[T any] struct {
	Value T
	Err   error
}

// Release drops this Promise's reference on the backing Task. Calls after
// the first have no effect; a Promise that is never released leaks its Task reference,
// which simply means the Task is never returned to its allocator.
func (p *Promise[T]) Release() {
	if p.released {
		return
	}
	p.released = true
	p.task.DerefOne()
}
