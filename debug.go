package fibermill

import "fmt"

// Debug toggles the extra diagnostic payload attached to invariant-violation
// panics (§7's "Invariant violation" fatal category). It is a plain package
// variable rather than a build tag, following the teacher's cheap
// always-compiled debug-hook pattern (debug_faststate.go is a throwaway
// build-excluded probe, not this; the always-compiled-and-branched-on-a-bool
// shape is the teacher's FastState/LoopState debug assertions): invariant
// violations are fatal either way (§7 says so unconditionally), Debug only
// decides whether the panic carries a field-level dump of the offending
// Task to speed up diagnosis, or just the short message.
//
// Left false by default so the common case pays nothing beyond the
// already-mandatory panic; set it from an init function or a test's TestMain
// when chasing a scheduler bug.
var Debug = false

// debugDump renders a diagnostic snapshot of t's fields for a fatalf panic
// when Debug is enabled. Reads are best-effort: the Task may be concurrently
// mutated by whichever goroutine lost the race that triggered the fatal
// condition, so this is a snapshot, not a synchronized view.
func debugDump(t *Task) string {
	if !Debug || t == nil {
		return ""
	}
	ptr, mark := t.waiter.Load()
	return fmt.Sprintf(" [debug: task=%d refs=%d waiter=%p mark=%t waiting=%v yielding=%t]",
		t.id, t.refs.Load(), ptr, mark, t.waiting != nil, t.yielding)
}

// fatalfTask is fatalf with an optional Debug-gated dump of t's fields
// appended, for the invariant-violation call sites that have a Task handy.
func fatalfTask(sentinel error, t *Task, format string, args ...any) {
	fatalf(sentinel, format+debugDump(t), args...)
}
