package fibermill

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runtime is the scheduler: a shared runnable queue, a shared allocator,
// and the run-state machine every public operation checks.
//
// Rather than blocking the calling OS thread as the first worker until
// stop()+join, Init spawns every worker (including a thread-shim for the
// calling thread's own manager Task) as an internal goroutine and returns
// once they have all completed local initialization. This lets
// Submit/Wait be called from any goroutine, matching how the Loop pattern
// this is modeled on is a long-lived object rather than a blocking call —
// RunUntilStop is provided as a literal, blocking init/entry contract for
// callers that want one.
type Runtime struct {
	settings Settings
	queue    *Queue
	alloc    *Allocator
	state    *fastState
	metrics  *Metrics
	logger   Logger
	registry *taskRegistry

	group *errgroup.Group
}

// Init validates settings, spawns threads_count workers, pre-warms each
// worker's allocator pool and producer queue lane, and returns once every
// worker has finished local initialization. It returns ErrInvalidSettings
// wrapped with detail if settings fails validation.
func Init(settings Settings) (*Runtime, error) {
	settings, err := settings.normalize()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		settings: settings,
		queue:    NewQueue(settings.ThreadsCount),
		alloc:    NewAllocator(settings.ThreadsCount, settings.StackSize, settings.JobsCapacity*2),
		state:    newFastState(StateIdle),
		metrics:  newMetrics(),
		logger:   settings.Logger,
		registry: newTaskRegistry(),
	}
	rt.alloc.trackFn = rt.registry.Track

	if !rt.state.TryTransition(StateIdle, StateRunning) {
		return nil, wrapf(ErrAlreadyRunning, "runtime already running")
	}

	rt.group = &errgroup.Group{}
	ready := make(chan struct{}, settings.ThreadsCount)
	for w := 0; w < settings.ThreadsCount; w++ {
		workerID := w
		rt.group.Go(func() error {
			return rt.workerLoop(workerID, ready)
		})
	}
	for i := 0; i < settings.ThreadsCount; i++ {
		<-ready
	}

	logf(rt.logger, LevelInfo, "scheduler", -1, 0, nil,
		"initialized with %d workers, jobs_capacity=%d, stack_size=%d",
		settings.ThreadsCount, settings.JobsCapacity, settings.StackSize)

	return rt, nil
}

// workerLoop is the body of one worker goroutine: the thread-shim's
// manager Task, the dequeue/resume/inspect cycle, and symmetric teardown.
func (rt *Runtime) workerLoop(workerID int, ready chan<- struct{}) error {
	if err := rt.alloc.InitializeThread(workerID, rt.settings.JobsCapacity); err != nil {
		ready <- struct{}{}
		return err
	}
	// Prime the sharded queue's thread-local producer slot before any
	// work can reach this worker.
	rt.queue.homeProducer(uint64(workerID))

	shim := &Task{id: 0, finishedCh: make(chan struct{})}
	close(shim.finishedCh)

	ready <- struct{}{}

	backoff := rt.settings.WorkerPollBackoff
	for {
		task, ok := rt.queue.Dequeue(uint64(workerID))
		if !ok {
			if !rt.state.IsRunning() {
				break
			}
			time.Sleep(backoff)
			continue
		}

		task.manager = shim
		ctx := &Ctx{task: task, rt: rt}
		resumeStart := time.Now()
		reason := task.Resume(ctx)
		rt.metrics.recordResumeLatency(time.Since(resumeStart))

		switch reason {
		case fiberWaiting:
			w := task.waiting
			if w.SetWaiter(task) {
				rt.metrics.recordSuspend()
			} else {
				rt.queue.Enqueue(uint64(workerID), task)
			}
		case fiberYielded:
			rt.queue.Enqueue(uint64(workerID), task)
		case fiberFinished:
			waiter := task.Resolve()
			rt.metrics.recordCompletion()
			if waiter != nil {
				rt.queue.Enqueue(uint64(workerID), waiter)
			}
			// Releases only the scheduler's standing reference taken in
			// Submit; the Promise's own reference (if any) keeps task's
			// result/finishedCh valid until Promise.Release.
			task.DerefOne()
		}

		if !rt.state.IsRunning() {
			// Current Task is already finished above; exit without
			// picking up another.
			break
		}
	}

	if err := rt.alloc.DeinitializeThread(workerID); err != nil {
		return err
	}
	return nil
}

// Submit enqueues a Job returning any and returns an owning Promise[any].
// Typed callers should use the package-level generic Submit function
// instead, which wraps a typed callable for you.
func (rt *Runtime) Submit(job Job) (*Promise[any], error) {
	if !rt.state.CanAcceptWork() {
		return nil, wrapf(ErrNotRunning, "submit called while runtime is not running")
	}
	// workerID 0 is as good as any fixed lane for externally submitted
	// work: the sampling dequeue in Queue.Dequeue finds it regardless of
	// which worker's lane it lands on.
	task, err := rt.alloc.Allocate(0, job)
	if err != nil {
		if rt.settings.OnOverload != nil {
			rt.settings.OnOverload(err)
		}
		return nil, err
	}
	// Two references: one for the Promise returned below, one standing
	// reference for the scheduler's own custody of task while it is
	// runnable, executing, or parked as a waiter (queue/fiberWaiting/
	// fiberYielded all hand this second reference along unchanged; only
	// fiberFinished's DerefOne releases it). Without the split, the
	// Promise and the scheduler would be sharing a single reference and
	// completion would recycle task out from under a still-live Promise.
	task.Ref(2)
	rt.queue.Enqueue(0, task)
	rt.metrics.recordSubmit()
	return newPromise[any](task), nil
}

// Submit is the typed convenience wrapping f as a Job for Runtime.Submit.
func Submit[T any](rt *Runtime, f func(ctx *Ctx) (T, error)) (*Promise[T], error) {
	p, err := rt.Submit(func(ctx *Ctx) (any, error) {
		return f(ctx)
	})
	if err != nil {
		return nil, err
	}
	return newPromise[T](p.task), nil
}

// Stop signals every worker to finish its current Task and exit; it does
// not block. Call Shutdown afterward to join them.
func (rt *Runtime) Stop() {
	rt.state.TryTransition(StateRunning, StateStopping)
}

// Shutdown joins every worker goroutine, tearing down their allocator
// thread-local state, and transitions the runtime to StateStopped. It
// calls Stop first if the runtime is still running.
func (rt *Runtime) Shutdown() error {
	rt.Stop()
	err := rt.group.Wait()
	rt.state.Store(StateStopped)
	if err != nil {
		logf(rt.logger, LevelError, "scheduler", -1, 0, err, "worker reported an error during shutdown")
		return fmt.Errorf("fibermill: shutdown: %w", err)
	}
	return nil
}

// Metrics returns a snapshot of the runtime's current counters.
func (rt *Runtime) Metrics() Snapshot {
	return rt.metrics.snapshot()
}

// LiveTasks returns an upper bound on the number of Tasks currently
// allocated (created but not yet garbage collected), for leak detection in
// tests and for operational dashboards.
func (rt *Runtime) LiveTasks() int {
	return rt.registry.LiveCount()
}

// ScavengeTasks sweeps up to batchSize entries of the diagnostic task
// registry, dropping any whose Task has finished or been collected. It is
// never called automatically; callers that want bounded registry memory
// under long-running high-churn workloads should call it periodically.
func (rt *Runtime) ScavengeTasks(batchSize int) {
	rt.registry.Scavenge(batchSize)
}

// RunUntilStop submits entry and blocks the calling goroutine until Stop
// has been called and every worker has joined. Entry is responsible for
// calling ctx.Runtime().Stop() (directly or transitively) if the process
// should ever terminate.
func RunUntilStop(settings Settings, entry Job) error {
	rt, err := Init(settings)
	if err != nil {
		return err
	}
	p, err := rt.Submit(entry)
	if err != nil {
		_ = rt.Shutdown()
		return err
	}
	_, _ = p.Wait()
	for rt.state.IsRunning() {
		time.Sleep(rt.settings.WorkerPollBackoff)
	}
	return rt.Shutdown()
}
