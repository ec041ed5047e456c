package main

import (
	"flag"
	"fmt"
	"time"

	taskpool "github.com/riftlab/taskpool"
)

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgFn := poolFlags(fs)
	timeout := fs.Int("timeout", 10000, "wait_for_idle timeout in milliseconds")
	bytecode := fs.Bool("bytecode", false, "compile the script ahead of time and submit it as a bytecode task")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("run: expected a script path, e.g. taskpoolctl run task.js")
	}
	path := fs.Arg(0)

	script, err := readScript(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	pool, err := taskpool.InitThreadPool(cfgFn())
	if err != nil {
		return fmt.Errorf("initializing pool: %w", err)
	}
	defer pool.ShutdownThreadPool()

	start := time.Now()
	var taskErr error
	done := make(chan struct{})

	onDone := func(_ any, e error) {
		taskErr = e
		close(done)
	}

	if *bytecode {
		blob, err := taskpool.CompileScript(script)
		if err != nil {
			return fmt.Errorf("compiling %s: %w", path, err)
		}
		if err := pool.AddBytecodeTaskToPool(blob, onDone, nil); err != nil {
			return fmt.Errorf("submitting task: %w", err)
		}
	} else if err := pool.AddScriptTaskToPool(script, onDone, nil); err != nil {
		return fmt.Errorf("submitting task: %w", err)
	}

	select {
	case <-done:
	case <-time.After(time.Duration(*timeout) * time.Millisecond):
		return fmt.Errorf("timed out waiting for %s to complete", path)
	}

	elapsed := time.Since(start)
	if taskErr != nil {
		fmt.Printf("%s: error after %s: %v\n", path, elapsed, taskErr)
		return taskErr
	}
	fmt.Printf("%s: ok in %s\n", path, elapsed)
	return nil
}
