// Package taskpool is a thread-pooled JavaScript task executor: a bounded
// global queue feeds worker threads that each own a Worker Runtime (one
// JS engine-runtime, one event loop, a bounded set of fresh per-task
// Worker Contexts), with work-stealing between per-worker local queues
// and optional dynamic pool resizing.
//
// Two engine backends are available, selected at build time:
// modernc.org/quickjs (default) and github.com/tommie/v8go (-tags v8).
package taskpool

import (
	"sync"
	"sync/atomic"

	"github.com/riftlab/taskpool/internal/core"
)

// Pool is the thread pool.
type Pool struct {
	cfg     Config
	backend core.Backend

	global *taskQueue

	workersMu sync.RWMutex
	workers   []*workerState

	mu sync.Mutex // serialises ResizeThreadPool against itself and GetThreadPoolStats

	shutdown atomic.Bool

	totalTasks      atomic.Uint64 // also the task-id allocator
	completedTasks  atomic.Uint64
	idleCount       atomic.Int64
	totalExecTimeNs atomic.Int64

	waitMu   sync.Mutex
	waitCond *sync.Cond

	idleMu   sync.Mutex
	idleCond *sync.Cond

	adjusterDone chan struct{}
}

// InitThreadPool allocates the pool, its global queue, and ThreadCount
// worker threads, starting the adjuster thread if DynamicSizing is set.
func InitThreadPool(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:     cfg,
		backend: newBackend(),
		global:  newTaskQueue(cfg.GlobalQueueSize),
	}
	p.waitCond = sync.NewCond(&p.waitMu)
	p.idleCond = sync.NewCond(&p.idleMu)

	p.workers = make([]*workerState, cfg.ThreadCount)
	for i := range p.workers {
		w := newWorkerState(int64(i), p)
		p.workers[i] = w
		go w.run()
	}

	if cfg.DynamicSizing {
		p.adjusterDone = make(chan struct{})
		go p.runAdjuster()
	}

	return p, nil
}

// AddScriptTaskToPool enqueues source to be evaluated as a module on the
// global queue, assigning it the next task id.
func (p *Pool) AddScriptTaskToPool(script string, cb CompletionFunc, arg any) error {
	return p.addTask(&Task{source: script, isScript: true, callback: cb, arg: arg})
}

// AddBytecodeTaskToPool enqueues a previously compiled bytecode blob.
func (p *Pool) AddBytecodeTaskToPool(bytecode []byte, cb CompletionFunc, arg any) error {
	buf := append([]byte(nil), bytecode...)
	return p.addTask(&Task{bytecode: buf, isScript: false, callback: cb, arg: arg})
}

func (p *Pool) addTask(task *Task) error {
	if p.shutdown.Load() {
		return ErrShuttingDown
	}

	task.ID = p.totalTasks.Add(1)
	task.pool = p

	if full := p.global.enqueue(task); full {
		return ErrQueueFull
	}
	return nil
}

// signalAdjusterIdle wakes the adjuster, broadcast whenever a worker
// flips to idle.
func (p *Pool) signalAdjusterIdle() {
	if !p.cfg.DynamicSizing {
		return
	}
	p.idleMu.Lock()
	p.idleCond.Broadcast()
	p.idleMu.Unlock()
}

// ShutdownThreadPool sets the shutdown flag, stops the adjuster if
// running, joins every worker, and drains both queues. Never fails.
func (p *Pool) ShutdownThreadPool() {
	p.shutdown.Store(true)

	if p.cfg.DynamicSizing {
		p.idleMu.Lock()
		p.idleCond.Broadcast()
		p.idleMu.Unlock()
		<-p.adjusterDone
	}

	p.workersMu.RLock()
	workers := append([]*workerState(nil), p.workers...)
	p.workersMu.RUnlock()

	for _, w := range workers {
		<-w.done
		w.local.destroy(ErrShuttingDown)
	}

	p.global.destroy(ErrShuttingDown)
	p.signalWaitCond()
}
