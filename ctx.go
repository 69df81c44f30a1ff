package fibermill

// Ctx is the explicit per-task handle passed to every Job, standing in for
// an implicit "current Task" resolved through OS thread-local storage. Go
// has no portable thread-local storage, so the ambient per-thread context is
// instead threaded explicitly through the call stack, which is the
// idiomatic Go shape for this kind of ambient state (the same reasoning
// behind context.Context).
type Ctx struct {
	task *Task
	rt   *Runtime
}

// Yield suspends the calling Task, requesting immediate re-enqueue once
// some worker is free to run it again. Equivalent to a no-op on semantic
// output; only scheduling timing changes.
func (c *Ctx) Yield() {
	c.task.Yield()
}

// Runtime returns the Runtime this Ctx's Task is executing on, for Jobs
// that need to Submit further work.
func (c *Ctx) Runtime() *Runtime {
	return c.rt
}

// Wait suspends the calling Task until p resolves, then returns p's value.
// A generic method cannot carry its own type parameter in Go, so Wait is a
// package-level function taking the Ctx explicitly rather than a method on
// Ctx or Promise.
func Wait[T any](ctx *Ctx, p *Promise[T]) (T, error) {
	p.task.RefOne()
	ctx.task.BeginWait(p.task)
	p.task.DerefOne()
	return p.value()
}
