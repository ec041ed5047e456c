package main

import (
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	taskpool "github.com/riftlab/taskpool"
)

func benchCmd(args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	cfgFn := poolFlags(fs)
	n := fs.Int("n", 1000, "number of copies of the script to submit")
	timeout := fs.Int("timeout", 60000, "wait_for_idle timeout in milliseconds")
	bytecode := fs.Bool("bytecode", false, "compile the script once and submit every copy as a bytecode task")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("bench: expected a script path, e.g. taskpoolctl bench task.js -n 1000")
	}
	path := fs.Arg(0)
	// Flags may also follow the script path, as in "bench task.js -n 1000".
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return err
	}

	script, err := readScript(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var blob []byte
	if *bytecode {
		if blob, err = taskpool.CompileScript(script); err != nil {
			return fmt.Errorf("compiling %s: %w", path, err)
		}
	}

	pool, err := taskpool.InitThreadPool(cfgFn())
	if err != nil {
		return fmt.Errorf("initializing pool: %w", err)
	}
	defer pool.ShutdownThreadPool()

	var (
		succeeded atomic.Uint64
		failed    atomic.Uint64
		wg        sync.WaitGroup
	)
	wg.Add(*n)

	onDone := func(_ any, e error) {
		if e != nil {
			failed.Add(1)
		} else {
			succeeded.Add(1)
		}
		wg.Done()
	}

	start := time.Now()
	for i := 0; i < *n; i++ {
		var submitErr error
		if *bytecode {
			submitErr = pool.AddBytecodeTaskToPool(blob, onDone, nil)
		} else {
			submitErr = pool.AddScriptTaskToPool(script, onDone, nil)
		}
		if submitErr != nil {
			wg.Done()
			failed.Add(1)
			fmt.Printf("submit %d/%d failed: %v\n", i+1, *n, submitErr)
		}
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(time.Duration(*timeout) * time.Millisecond):
		return fmt.Errorf("timed out after %s waiting for %d/%d tasks", time.Duration(*timeout)*time.Millisecond, succeeded.Load()+failed.Load(), *n)
	}
	elapsed := time.Since(start)

	stats := pool.GetThreadPoolStats()
	fmt.Printf("submitted %d tasks from %s in %s (%.1f tasks/sec)\n", *n, path, elapsed, float64(*n)/elapsed.Seconds())
	fmt.Printf("  succeeded=%d failed=%d\n", succeeded.Load(), failed.Load())
	fmt.Printf("  active=%d idle=%d completed=%d total=%d utilization=%.1f%% avg_exec=%s\n",
		stats.ActiveThreads, stats.IdleThreads, stats.CompletedTasks, stats.TotalTasks,
		stats.UtilizationPct, stats.AvgExecutionTime)
	return nil
}
