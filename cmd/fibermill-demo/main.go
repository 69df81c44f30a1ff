// Command fibermill-demo is a minimal end-to-end exercise of the runtime's
// public surface: it starts a worker pool, fans a batch of tasks out across
// it, waits for all of them, prints a metrics snapshot, and shuts down.
//
// This is deliberately thin — the Example functions in the package's
// example_test.go demonstrate individual API surfaces; this binary exists so
// `go run ./cmd/fibermill-demo` gives a reader something to execute.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/joeycumines/fibermill"
)

func main() {
	threads := flag.Int("threads", runtime.NumCPU(), "worker count (the calling goroutine is not a worker)")
	tasks := flag.Int("tasks", 128, "number of fan-out tasks to submit")
	flag.Parse()

	if err := run(*threads, *tasks); err != nil {
		fmt.Fprintln(os.Stderr, "fibermill-demo:", err)
		os.Exit(1)
	}
}

func run(threads, tasks int) error {
	rt, err := fibermill.Init(fibermill.Settings{
		ThreadsCount: threads,
		JobsCapacity: tasks,
		StackSize:    64 << 10,
	})
	if err != nil {
		return err
	}
	defer rt.Shutdown()

	promises := make([]*fibermill.Promise[int], tasks)
	for i := 0; i < tasks; i++ {
		i := i
		p, err := fibermill.Submit(rt, func(ctx *fibermill.Ctx) (int, error) {
			return i * i, nil
		})
		if err != nil {
			return err
		}
		promises[i] = p
	}

	sum := 0
	for _, p := range promises {
		v, err := p.Wait()
		if err != nil {
			return err
		}
		sum += v
	}

	snap := rt.Metrics()
	fmt.Printf("fanned out %d tasks across %d workers: sum of squares = %d\n", tasks, threads, sum)
	fmt.Printf("submitted=%d completed=%d resume_p50=%s resume_p99=%s\n",
		snap.Submitted, snap.Completed, snap.ResumeLatencyP50, snap.ResumeLatencyP99)
	return nil
}
