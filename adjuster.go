package taskpool

import (
	"time"

	"github.com/riftlab/taskpool/internal/core"
)

// adjusterDamping is the minimum gap between two resize decisions, so a
// burst of idle/busy flips doesn't thrash the pool size.
const adjusterDamping = 1 * time.Second

// runAdjuster is the pool adjuster thread: it sleeps until signalled by
// a worker going idle (or shutdown), then decides whether to shrink or
// grow the pool based on idle/backlog pressure.
func (p *Pool) runAdjuster() {
	defer close(p.adjusterDone)

	for {
		p.idleMu.Lock()
		if !p.shutdown.Load() {
			p.idleCond.Wait()
		}
		p.idleMu.Unlock()

		if p.shutdown.Load() {
			return
		}

		p.workersMu.RLock()
		n := len(p.workers)
		p.workersMu.RUnlock()

		idle := int(p.idleCount.Load())
		backlog := p.global.len()

		switch {
		case backlog > 0 && idle == 0:
			if err := p.ResizeThreadPool(n + 1); err != nil {
				core.Warnf("adjuster: grow to %d: %v", n+1, err)
			}
		case idle > p.cfg.IdleThreshold && n > 1:
			if err := p.ResizeThreadPool(n - 1); err != nil {
				core.Warnf("adjuster: shrink to %d: %v", n-1, err)
			}
		}

		time.Sleep(adjusterDamping)
	}
}

// ResizeThreadPool grows or shrinks the live worker count. Growing
// spawns new workers; shrinking asks the
// newest workers to stop and joins them before trimming the slice.
// Shrunk worker slots are dropped rather than retained, since Go's
// garbage collector reclaims a workerState's memory once nothing
// references it — there's no pool-allocator benefit to keeping a dead
// slot around the way the C original would with a fixed array.
func (p *Pool) ResizeThreadPool(n int) error {
	if n < 1 {
		return ErrInvalidConfig
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.workersMu.Lock()
	cur := len(p.workers)

	if n == cur {
		p.workersMu.Unlock()
		return nil
	}

	if n > cur {
		for i := cur; i < n; i++ {
			w := newWorkerState(int64(i), p)
			p.workers = append(p.workers, w)
			go w.run()
		}
		p.workersMu.Unlock()
		return nil
	}

	toStop := append([]*workerState(nil), p.workers[n:]...)
	p.workers = p.workers[:n]
	p.workersMu.Unlock()

	for _, w := range toStop {
		w.requestStop()
	}
	for _, w := range toStop {
		<-w.done
		w.local.destroy(ErrShuttingDown)
	}
	return nil
}
