package taskpool

import (
	"testing"
	"time"
)

func TestResizeThreadPool_GrowAndShrink(t *testing.T) {
	p, err := InitThreadPool(Config{ThreadCount: 2, MaxContexts: 4})
	if err != nil {
		t.Fatalf("InitThreadPool: %v", err)
	}
	defer p.ShutdownThreadPool()

	if err := p.ResizeThreadPool(4); err != nil {
		t.Fatalf("ResizeThreadPool(4): %v", err)
	}
	if n := len(p.workers); n != 4 {
		t.Fatalf("worker count = %d after growing to 4, want 4", n)
	}

	if err := p.ResizeThreadPool(1); err != nil {
		t.Fatalf("ResizeThreadPool(1): %v", err)
	}
	if n := len(p.workers); n != 1 {
		t.Fatalf("worker count = %d after shrinking to 1, want 1", n)
	}
}

// TestRunAdjuster_ShrinksBelowInitialThreadCountToFloorOfOne exercises
// the adjuster's own decision switch (not ResizeThreadPool directly):
// on a pool whose workers keep going idle the adjuster must keep
// shrinking it down to the absolute floor of 1 worker, not stop at
// cfg.ThreadCount.
func TestRunAdjuster_ShrinksBelowInitialThreadCountToFloorOfOne(t *testing.T) {
	p, err := InitThreadPool(Config{
		ThreadCount:   3,
		MaxContexts:   4,
		DynamicSizing: true,
		IdleThreshold: 0,
	})
	if err != nil {
		t.Fatalf("InitThreadPool: %v", err)
	}
	defer p.ShutdownThreadPool()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		// Each trivial task makes a worker flip busy and back to idle,
		// which is what signals the adjuster.
		if err := p.AddScriptTaskToPool("1;", nil, nil); err != nil {
			t.Fatalf("AddScriptTaskToPool: %v", err)
		}
		p.workersMu.RLock()
		n := len(p.workers)
		p.workersMu.RUnlock()
		if n == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	p.workersMu.RLock()
	n := len(p.workers)
	p.workersMu.RUnlock()
	t.Fatalf("worker count = %d after 5s idle, want the adjuster to shrink it to the floor of 1", n)
}

func TestResizeThreadPool_RejectsNonPositive(t *testing.T) {
	p, err := InitThreadPool(Config{ThreadCount: 1, MaxContexts: 1})
	if err != nil {
		t.Fatalf("InitThreadPool: %v", err)
	}
	defer p.ShutdownThreadPool()

	if err := p.ResizeThreadPool(0); err != ErrInvalidConfig {
		t.Fatalf("ResizeThreadPool(0) error = %v, want ErrInvalidConfig", err)
	}
}

func TestResizeThreadPool_SameSizeNoOp(t *testing.T) {
	p, err := InitThreadPool(Config{ThreadCount: 2, MaxContexts: 1})
	if err != nil {
		t.Fatalf("InitThreadPool: %v", err)
	}
	defer p.ShutdownThreadPool()

	before := p.workers[0]
	if err := p.ResizeThreadPool(2); err != nil {
		t.Fatalf("ResizeThreadPool(2): %v", err)
	}
	if p.workers[0] != before {
		t.Fatalf("ResizeThreadPool to the same size replaced existing workers")
	}
}
