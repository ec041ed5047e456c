//go:build !v8

package quickjs

import (
	"errors"
	"sync"

	"github.com/riftlab/taskpool/internal/core"
	"modernc.org/quickjs"
)

// microtaskDrainBound is the per-drain microtask safety cap.
const microtaskDrainBound = 1000

// ErrTooManyContexts is returned by EvalJS/EvalBytecode when a runtime
// already has max_contexts live Worker Contexts.
var ErrTooManyContexts = errors.New("quickjs: worker runtime at max_contexts")

// Runtime is one Worker Runtime: an owning thread's QuickJS backend, a
// bounded set of live Contexts, and the Timer Table shared by all of
// them. Its own mutex guards only the context set; the Timer Table
// carries its own lock, so the two never nest in a way that could invert.
type Runtime struct {
	cfg core.EngineConfig

	mu       sync.Mutex
	contexts map[*core.ContextHandle]*Context

	timers *core.TimerTable
}

var _ core.Runtime = (*Runtime)(nil)

// NewRuntime constructs a Worker Runtime. No QuickJS resource is actually
// allocated yet — each Worker Context owns its own VM, created lazily by
// EvalJS/EvalBytecode.
func NewRuntime(cfg core.EngineConfig) (*Runtime, error) {
	return &Runtime{
		cfg:      cfg,
		contexts: make(map[*core.ContextHandle]*Context),
		timers:   core.NewTimerTable(),
	}, nil
}

// newContext allocates a fresh VM-backed Worker Context, failing once
// max_contexts live contexts already exist.
func (rt *Runtime) newContext() (*Context, error) {
	rt.mu.Lock()
	if rt.cfg.MaxContexts > 0 && len(rt.contexts) >= rt.cfg.MaxContexts {
		rt.mu.Unlock()
		return nil, ErrTooManyContexts
	}
	rt.mu.Unlock()

	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, err
	}
	if rt.cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(rt.cfg.MemoryLimitMB) * 1024 * 1024)
	}

	ctx := &Context{
		vmRuntime: &vmRuntime{vm: vm},
		handle:    &core.ContextHandle{},
		rt:        rt,
		vm:        vm,
	}

	if err := installBuiltins(ctx); err != nil {
		vm.Close()
		return nil, err
	}

	rt.mu.Lock()
	if rt.cfg.MaxContexts > 0 && len(rt.contexts) >= rt.cfg.MaxContexts {
		rt.mu.Unlock()
		vm.Close()
		return nil, ErrTooManyContexts
	}
	rt.contexts[ctx.handle] = ctx
	rt.mu.Unlock()

	return ctx, nil
}

// freeContext tears a Worker Context down: removes it from the live set,
// closes its VM, and invokes its completion callback exactly once.
// MarkFreed guards against a racing timer close-finalisation trying to
// free the same context twice.
func (rt *Runtime) freeContext(ctx *Context) {
	if !ctx.handle.MarkFreed() {
		return
	}

	rt.mu.Lock()
	delete(rt.contexts, ctx.handle)
	rt.mu.Unlock()

	ctx.vm.Close()

	ctx.doneOnce.Do(func() {
		if ctx.onDone != nil {
			ctx.onDone(ctx.lastErr)
		}
	})
}

// freeContextByHandle resolves a bare ContextHandle (as carried inside a
// TimerRecord) back to its owning Context. Handles are only ever handed
// out to timers owned by contexts this runtime created, so a miss means
// the context was already freed by some other path.
func (rt *Runtime) freeContextByHandle(h *core.ContextHandle) {
	rt.mu.Lock()
	ctx, ok := rt.contexts[h]
	rt.mu.Unlock()
	if ok {
		rt.freeContext(ctx)
	}
}

// RunLoopOnce advances the event loop by one non-blocking poll: every
// timer currently due across every live context fires once. Returns
// whether timers remain pending afterward.
func (rt *Runtime) RunLoopOnce() bool {
	rt.timers.FireDue(rt.freeContextByHandle)
	return rt.timers.Len() > 0
}

// Free tears down every live context unconditionally, regardless of
// pending_free/active_timers state, and discards the Timer Table. Used
// for whole-runtime shutdown.
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
}
