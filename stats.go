package taskpool

import "time"

// Stats is the snapshot returned by GetThreadPoolStats.
type Stats struct {
	ActiveThreads   int
	IdleThreads     int
	QueuedTasks     int
	CompletedTasks  uint64
	TotalTasks      uint64
	UtilizationPct  float64

	// AvgExecutionTime is accumulated from totalExecTimeNs/completedTasks.
	// This is best-effort: the C original this package is modeled on
	// never accumulates total_exec_time at all. Accumulating it is cheap
	// here, so this package does it for real rather than leaving the
	// field permanently zero.
	AvgExecutionTime time.Duration
}

// GetThreadPoolStats captures a snapshot under the pool mutex: thread
// counts, queue depth, completion counters, and utilisation computed
// from the aggregated per-thread idle/busy time.
func (p *Pool) GetThreadPoolStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workersMu.RLock()
	workers := append([]*workerState(nil), p.workers...)
	p.workersMu.RUnlock()

	var idleNs, busyNs int64
	active, idle := 0, 0
	for _, w := range workers {
		if w == nil {
			continue
		}
		idleNs += w.idleTimeNs.Load()
		busyNs += w.busyTimeNs.Load()
		if w.idle.Load() {
			idle++
		} else {
			active++
		}
	}

	var utilization float64
	if total := idleNs + busyNs; total > 0 {
		utilization = float64(busyNs) / float64(total) * 100
	}

	completed := p.completedTasks.Load()
	var avgExec time.Duration
	if completed > 0 {
		avgExec = time.Duration(p.totalExecTimeNs.Load() / int64(completed))
	}

	return Stats{
		ActiveThreads:    active,
		IdleThreads:      idle,
		QueuedTasks:      p.global.len(),
		CompletedTasks:   completed,
		TotalTasks:       p.totalTasks.Load(),
		UtilizationPct:   utilization,
		AvgExecutionTime: avgExec,
	}
}

// WaitForIdle blocks until the global queue is empty and every worker
// is idle (quiescence), or timeoutMs elapses. Returns 0 on clean idle,
// 1 on timeout.
func (p *Pool) WaitForIdle(timeoutMs int) int {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	p.waitMu.Lock()
	defer p.waitMu.Unlock()

	for !p.isQuiescent() {
		if timeoutMs > 0 && !time.Now().Before(deadline) {
			return 1
		}
		if timeoutMs <= 0 {
			p.waitCond.Wait()
			continue
		}
		waitWithTimeout(p.waitCond, deadline)
	}
	return 0
}

func (p *Pool) isQuiescent() bool {
	if p.global.len() != 0 {
		return false
	}
	p.workersMu.RLock()
	defer p.workersMu.RUnlock()
	for _, w := range p.workers {
		if w == nil || !w.idle.Load() {
			return false
		}
	}
	return true
}

func (p *Pool) signalWaitCond() {
	p.waitMu.Lock()
	p.waitCond.Broadcast()
	p.waitMu.Unlock()
}
