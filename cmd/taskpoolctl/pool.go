package main

import (
	"flag"
	"os"

	taskpool "github.com/riftlab/taskpool"
	"github.com/riftlab/taskpool/internal/core"
)

// poolFlags registers the Config knobs shared by run/bench/serve on fs
// and returns a thunk that builds a Config from the parsed values.
func poolFlags(fs *flag.FlagSet) func() taskpool.Config {
	threads := fs.Int("threads", 4, "worker thread count")
	maxContexts := fs.Int("max-contexts", 8, "live Worker Contexts per thread")
	globalQueue := fs.Int("global-queue", 0, "global queue bound (0 = unbounded)")
	localQueue := fs.Int("local-queue", 0, "per-worker local queue bound (0 = unbounded)")
	stealing := fs.Bool("steal", true, "enable work stealing between idle workers")
	idleThreshold := fs.Int("idle-threshold", 2, "idle worker count the adjuster must exceed before shrinking")
	dynamic := fs.Bool("dynamic", false, "enable the pool adjuster")
	memLimit := fs.Int("memory-limit", 0, "per-runtime JS heap limit in MB (0 = unbounded)")
	verbose := fs.Bool("v", false, "log at DEBUG instead of WARN")

	return func() taskpool.Config {
		if *verbose {
			core.SetLevel(core.LevelDebug)
		}
		return taskpool.Config{
			ThreadCount:        *threads,
			MaxContexts:        *maxContexts,
			GlobalQueueSize:    *globalQueue,
			LocalQueueSize:     *localQueue,
			EnableWorkStealing: *stealing,
			IdleThreshold:      *idleThreshold,
			DynamicSizing:      *dynamic,
			MemoryLimitMB:      *memLimit,
		}
	}
}

// readScript loads a task script from disk, failing fast with a clear
// message rather than letting AddScriptTaskToPool report a queue error
// against a file that was never readable.
func readScript(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
