package fibermill

import "sync/atomic"

// RunState is the scheduler's coarse lifecycle state, checked by Submit,
// Stop, RunUntilStop, and the worker loop itself.
type RunState uint64

const (
	// StateIdle is the state before Init has been called.
	StateIdle RunState = iota
	// StateRunning is the state from just before Init spawns its workers
	// until Stop.
	StateRunning
	// StateStopping is set by Stop; workers finish their current Task and exit.
	StateStopping
	// StateStopped is the terminal state once Shutdown has joined every worker.
	StateStopped
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// fastState is a cache-line padded atomic state machine: the run-state word
// is hit by every worker on every dequeue iteration, so it gets a cache line
// to itself to avoid false sharing against whatever happens to be adjacent
// in the Runtime struct.
type fastState struct {
	_ [cacheLineSize]byte
	v atomic.Uint64
	_ [cacheLineSize - wordSize]byte
}

func newFastState(initial RunState) *fastState {
	s := &fastState{}
	s.v.Store(uint64(initial))
	return s
}

func (s *fastState) Load() RunState { return RunState(s.v.Load()) }

func (s *fastState) Store(state RunState) { s.v.Store(uint64(state)) }

func (s *fastState) TryTransition(from, to RunState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *fastState) IsRunning() bool { return s.Load() == StateRunning }

// CanAcceptWork reports whether Submit may enqueue a new Task: only while
// fully running. Submissions made during Stopping are rejected with
// ErrNotRunning rather than racing the worker shutdown sequence.
func (s *fastState) CanAcceptWork() bool { return s.Load() == StateRunning }
