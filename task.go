package taskpool

import "time"

// CompletionFunc is invoked exactly once per successfully enqueued task.
// For an executed task it runs on the worker thread that executed it,
// after its Worker Context is destroyed; err is non-nil if no context
// could be created, the payload could not be loaded, or evaluation
// raised an exception. A task still queued when its queue is destroyed
// (ShutdownThreadPool, or ResizeThreadPool removing its worker) gets the
// call from the destroying goroutine with ErrShuttingDown. arg is
// whatever was supplied to AddScriptTaskToPool/AddBytecodeTaskToPool.
type CompletionFunc func(arg any, err error)

// Task is the immutable-after-submission unit of work. Exclusively
// owned by a taskQueue while enqueued, exclusively owned by
// whichever worker dequeues it while executing, released once its
// completion callback returns.
type Task struct {
	ID uint64

	source   string
	bytecode []byte
	isScript bool

	callback CompletionFunc
	arg      any

	// pool is a non-owning back-pointer. Stealing a task re-tags it to
	// the stealing worker's pool — see DESIGN.md's "steal re-tag"
	// resolution — so it is never stale for a task still in flight.
	pool *Pool

	startedAt time.Time
	execTime  time.Duration
}
