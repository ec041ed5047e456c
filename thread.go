package taskpool

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/riftlab/taskpool/internal/core"
)

// workerState is the per-thread state owned by one goroutine for its
// lifetime. id is an int64 so a shrink request can mark it negative:
// a single-writer/single-reader stop-request flag.
type workerState struct {
	id int64

	pool  *Pool
	local *taskQueue
	rt    core.Runtime

	idle           atomic.Bool
	tasksProcessed atomic.Uint64
	idleTimeNs     atomic.Int64
	busyTimeNs     atomic.Int64

	done chan struct{}
}

func newWorkerState(id int64, pool *Pool) *workerState {
	return &workerState{
		id:    id,
		pool:  pool,
		local: newTaskQueue(pool.cfg.LocalQueueSize),
		done:  make(chan struct{}),
	}
}

func (w *workerState) requestStop() { atomic.StoreInt64(&w.id, -1) }
func (w *workerState) stopping() bool { return atomic.LoadInt64(&w.id) < 0 }

// run is the worker main loop. It owns the Worker Runtime it creates
// for the lifetime of this goroutine — the runtime never migrates
// threads, only tasks do (via work stealing).
func (w *workerState) run() {
	defer close(w.done)

	rt, err := w.pool.backend.NewRuntime(core.EngineConfig{
		MaxContexts:   w.pool.cfg.MaxContexts,
		MemoryLimitMB: w.pool.cfg.MemoryLimitMB,
	})
	if err != nil {
		core.Errorf("worker: creating runtime: %v", err)
		return
	}
	w.rt = rt
	defer rt.Free()

	w.idle.Store(true)
	w.pool.idleCount.Add(1)
	phaseStart := time.Now()

	for !w.pool.shutdown.Load() && !w.stopping() {
		task := w.pool.dequeueForWorker(w)

		if task != nil {
			if w.idle.Load() {
				w.idle.Store(false)
				w.pool.idleCount.Add(-1)
				w.idleTimeNs.Add(int64(time.Since(phaseStart)))
				phaseStart = time.Now()
			}
			w.pool.executeTask(w, task)
			w.tasksProcessed.Add(1)
			continue
		}

		if !w.idle.Load() {
			w.idle.Store(true)
			w.pool.idleCount.Add(1)
			w.busyTimeNs.Add(int64(time.Since(phaseStart)))
			phaseStart = time.Now()
			w.pool.signalAdjusterIdle()
			w.pool.signalWaitCond()
		}

		if rt.RunLoopOnce() {
			continue
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w.idle.Load() {
		w.idleTimeNs.Add(int64(time.Since(phaseStart)))
	} else {
		w.busyTimeNs.Add(int64(time.Since(phaseStart)))
	}
}

// dequeueForWorker implements the dequeue order: global queue, then
// the worker's own local queue, then (if enabled) stealing from a peer.
func (p *Pool) dequeueForWorker(w *workerState) *Task {
	if t := p.global.dequeue(); t != nil {
		return t
	}
	if t := w.local.dequeue(); t != nil {
		return t
	}
	if p.cfg.EnableWorkStealing {
		return p.stealFrom(w)
	}
	return nil
}

// stealFrom picks a random starting peer and scans once, skipping self
// and any peer currently idle, trying a non-blocking steal on each. A
// stolen task is re-tagged to this pool before being returned — see
// DESIGN.md's "steal re-tag" resolution.
func (p *Pool) stealFrom(self *workerState) *Task {
	p.workersMu.RLock()
	peers := p.workers
	p.workersMu.RUnlock()

	n := len(peers)
	if n <= 1 {
		return nil
	}

	start := rand.Intn(n)
	for i := 0; i < n; i++ {
		peer := peers[(start+i)%n]
		if peer == self || peer == nil || peer.idle.Load() {
			continue
		}
		if task, ok := peer.local.stealOneIfMany(); ok {
			task.pool = p
			return task
		}
	}
	return nil
}

// executeTask dispatches a task to the engine, then folds in
// bookkeeping once the engine reports completion.
func (p *Pool) executeTask(w *workerState, task *Task) {
	task.startedAt = time.Now()

	onDone := func(err error) {
		task.execTime = time.Since(task.startedAt)
		p.completedTasks.Add(1)
		p.totalExecTimeNs.Add(int64(task.execTime))
		if task.callback != nil {
			task.callback(task.arg, err)
		}
		p.signalWaitCond()
	}

	var err error
	if task.isScript {
		err = w.rt.EvalJS(task.source, onDone)
	} else {
		err = w.rt.EvalBytecode(task.bytecode, onDone)
	}
	if err != nil {
		core.Warnf("task %d: %v", task.ID, err)
	}

	// Prime any timers the task just registered: after the engine call
	// returns, the worker performs one run-loop pass.
	w.rt.RunLoopOnce()
}
