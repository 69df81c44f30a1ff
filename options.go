package fibermill

import "time"

// MinSignalStackSize is the smallest stack size this runtime will accept,
// mirroring the platform minimum usable signal-stack size (SIGSTKSZ on
// most Unix platforms; used here as a conservative floor on every
// platform).
const MinSignalStackSize = 32 * 1024

// MaxStackSize is the largest per-task stack this runtime will allocate.
const MaxStackSize = 1 << 30 // 1 GiB

// DefaultStackSize is used when Settings.StackSize is left at zero.
const DefaultStackSize = 256 * 1024

// Settings configures a runtime created by Init. ThreadsCount, JobsCapacity,
// and StackSize are the required core fields; Logger and OnOverload are
// additive ambient configuration.
type Settings struct {
	// ThreadsCount is the total number of worker goroutines Init starts.
	// The goroutine calling Init is not one of them; it returns from Init
	// once the workers are ready. Must be >= 1.
	ThreadsCount int

	// JobsCapacity is the number of Tasks pre-warmed per worker thread.
	// Each worker's producer queue lane is created once at worker start;
	// JobsCapacity does not prime or pre-fill the lanes. Must be >= 1.
	JobsCapacity int

	// StackSize is the number of bytes reserved for each Task's guarded
	// stack, clamped to [MinSignalStackSize, MaxStackSize]. Zero selects
	// DefaultStackSize.
	StackSize int

	// Logger receives structured diagnostics from the scheduler, allocator,
	// and reclamation subsystems. Defaults to a no-op logger.
	Logger Logger

	// OnOverload is invoked, off the hot path, when a Submit could not be
	// served from a thread's preallocated pool and the fallback heap
	// allocation itself is under memory pressure (see Allocator).
	OnOverload func(error)

	// WorkerPollBackoff is how long an idle worker sleeps between dequeue
	// attempts on the sharded queue. Zero selects a small built-in default.
	WorkerPollBackoff time.Duration
}

// Option mutates a Settings value. Provided for callers who prefer the
// functional-options idiom over a Settings struct literal, which remains
// the primary surface.
type Option func(*Settings)

// WithThreadsCount sets Settings.ThreadsCount.
func WithThreadsCount(n int) Option { return func(s *Settings) { s.ThreadsCount = n } }

// WithJobsCapacity sets Settings.JobsCapacity.
func WithJobsCapacity(n int) Option { return func(s *Settings) { s.JobsCapacity = n } }

// WithStackSize sets Settings.StackSize.
func WithStackSize(n int) Option { return func(s *Settings) { s.StackSize = n } }

// WithLogger sets Settings.Logger.
func WithLogger(l Logger) Option { return func(s *Settings) { s.Logger = l } }

// WithOnOverload sets Settings.OnOverload.
func WithOnOverload(f func(error)) Option { return func(s *Settings) { s.OnOverload = f } }

// NewSettings builds a Settings value from a base and a list of Options,
// applied in order. Unset fields keep the base's values.
func NewSettings(base Settings, opts ...Option) Settings {
	for _, opt := range opts {
		if opt != nil {
			opt(&base)
		}
	}
	return base
}

// normalize clamps and defaults a Settings value, returning ErrInvalidSettings
// wrapped with detail for anything that cannot be repaired by clamping.
func (s Settings) normalize() (Settings, error) {
	if s.ThreadsCount <= 0 {
		return s, wrapf(ErrInvalidSettings, "threads_count must be >= 1, got %d", s.ThreadsCount)
	}
	if s.JobsCapacity <= 0 {
		return s, wrapf(ErrInvalidSettings, "jobs_capacity must be >= 1, got %d", s.JobsCapacity)
	}
	if s.StackSize == 0 {
		s.StackSize = DefaultStackSize
	}
	if s.StackSize < MinSignalStackSize {
		s.StackSize = MinSignalStackSize
	}
	if s.StackSize > MaxStackSize {
		s.StackSize = MaxStackSize
	}
	if s.Logger == nil {
		s.Logger = NewNoOpLogger()
	}
	if s.WorkerPollBackoff <= 0 {
		s.WorkerPollBackoff = 50 * time.Microsecond
	}
	return s, nil
}
