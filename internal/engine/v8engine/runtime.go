//go:build v8

package v8engine

import (
	"errors"
	"sync"

	"github.com/riftlab/taskpool/internal/core"
	v8 "github.com/tommie/v8go"
)

// microtaskDrainBound is the per-drain microtask safety cap. V8's
// PerformMicrotaskCheckpoint drains its whole queue in one call, so
// settle issues a single checkpoint and this backend never consults the
// constant; it mirrors the QuickJS backend's bound by name only.
const microtaskDrainBound = 1000

// ErrTooManyContexts is returned once a runtime already holds
// max_contexts live Worker Contexts.
var ErrTooManyContexts = errors.New("v8engine: worker runtime at max_contexts")

// Runtime is one Worker Runtime: a single v8.Isolate shared by a
// bounded set of per-task v8.Context values, plus the Timer Table they
// all register against.
type Runtime struct {
	cfg core.EngineConfig
	iso *v8.Isolate

	mu       sync.Mutex
	contexts map[*core.ContextHandle]*Context

	timers *core.TimerTable
}

var _ core.Runtime = (*Runtime)(nil)

// NewRuntime constructs a Worker Runtime: one Isolate, sized per
// EngineConfig.MemoryLimitMB via WithResourceConstraints.
func NewRuntime(cfg core.EngineConfig) (*Runtime, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}

	return &Runtime{
		cfg:      cfg,
		iso:      iso,
		contexts: make(map[*core.ContextHandle]*Context),
		timers:   core.NewTimerTable(),
	}, nil
}

func (rt *Runtime) newContext() (*Context, error) {
	rt.mu.Lock()
	if rt.cfg.MaxContexts > 0 && len(rt.contexts) >= rt.cfg.MaxContexts {
		rt.mu.Unlock()
		return nil, ErrTooManyContexts
	}
	rt.mu.Unlock()

	v8ctx := v8.NewContext(rt.iso)
	ctx := &Context{
		handle: &core.ContextHandle{},
		rt:     rt,
		ctx:    v8ctx,
	}

	if err := installBuiltins(ctx); err != nil {
		v8ctx.Close()
		return nil, err
	}

	rt.mu.Lock()
	if rt.cfg.MaxContexts > 0 && len(rt.contexts) >= rt.cfg.MaxContexts {
		rt.mu.Unlock()
		v8ctx.Close()
		return nil, ErrTooManyContexts
	}
	rt.contexts[ctx.handle] = ctx
	rt.mu.Unlock()

	return ctx, nil
}

func (rt *Runtime) freeContext(ctx *Context) {
	if !ctx.handle.MarkFreed() {
		return
	}

	rt.mu.Lock()
	delete(rt.contexts, ctx.handle)
	rt.mu.Unlock()

	ctx.ctx.Close()

	ctx.doneOnce.Do(func() {
		if ctx.onDone != nil {
			ctx.onDone(ctx.lastErr)
		}
	})
}

func (rt *Runtime) freeContextByHandle(h *core.ContextHandle) {
	rt.mu.Lock()
	ctx, ok := rt.contexts[h]
	rt.mu.Unlock()
	if ok {
		rt.freeContext(ctx)
	}
}

// RunLoopOnce fires every timer due across every live context once and
// reports whether any remain pending.
func (rt *Runtime) RunLoopOnce() bool {
	rt.timers.FireDue(rt.freeContextByHandle)
	return rt.timers.Len() > 0
}

// Free tears down every live context and disposes the Isolate.
func (rt *Runtime) Free() {
	rt.mu.Lock()
	live := make([]*Context, 0, len(rt.contexts))
	for _, ctx := range rt.contexts {
		live = append(live, ctx)
	}
	rt.mu.Unlock()

	for _, ctx := range live {
		rt.timers.RemoveAllForOwner(ctx.handle)
		ctx.handle.ResetTimers()
		rt.freeContext(ctx)
	}

	rt.iso.Dispose()
}
