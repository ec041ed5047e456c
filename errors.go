package taskpool

import "errors"

var (
	// ErrInvalidConfig is returned by InitThreadPool for an invalid
	// Config.
	ErrInvalidConfig = errors.New("taskpool: invalid configuration")

	// ErrQueueFull is returned by AddScriptTaskToPool/AddBytecodeTaskToPool
	// when the global queue stayed full for the full enqueue timeout.
	ErrQueueFull = errors.New("taskpool: global queue full")

	// ErrShuttingDown is returned by add-task entry points once
	// ShutdownThreadPool has been called.
	ErrShuttingDown = errors.New("taskpool: pool is shutting down")
)
