//go:build !v8

package quickjs

import (
	"fmt"

	"github.com/riftlab/taskpool/internal/core"
	"github.com/riftlab/taskpool/internal/modwrap"
	"modernc.org/quickjs"
)

// EvalJS runs one task's source in a fresh Worker Context. onDone is
// invoked exactly once: synchronously if the context could not be
// created, from inside this call once the script has run and microtasks
// have drained if no timer is outstanding, or otherwise later, from
// RunLoopOnce, when the context's last timer closes.
func (rt *Runtime) EvalJS(source string, onDone func(error)) error {
	ctx, err := rt.newContext()
	if err != nil {
		onDone(err)
		return err
	}
	ctx.onDone = onDone

	wrapped := modwrap.Wrap(source)
	return rt.runAndSettle(ctx, wrapped)
}

// EvalBytecode runs a previously compiled blob. QuickJS has no
// reachable bytecode-cache API through modernc.org/quickjs, so the
// "bytecode" here is the wrapped source with an integrity header — see
// bytecode.go and DESIGN.md's bytecode-scheme resolution.
func (rt *Runtime) EvalBytecode(bytecode []byte, onDone func(error)) error {
	source, err := decodeBytecode(bytecode)
	if err != nil {
		onDone(err)
		return err
	}

	ctx, err := rt.newContext()
	if err != nil {
		onDone(err)
		return err
	}
	ctx.onDone = onDone

	return rt.runAndSettle(ctx, source)
}

// runAndSettle evaluates wrapped source in ctx, drains microtasks, and
// frees ctx immediately if it has become eligible for destruction:
// evaluate, drain, and only then check active_timers/pending_free.
func (rt *Runtime) runAndSettle(ctx *Context, wrapped string) error {
	v, err := ctx.vm.EvalValue(wrapped, quickjs.EvalGlobal)
	if err != nil {
		core.Errorf("task script exception: %v", err)
		ctx.lastErr = err
		freeable := ctx.handle.MarkPendingFree()
		executePendingJobs(ctx.vm, microtaskDrainBound)
		if freeable {
			rt.freeContext(ctx)
		}
		return fmt.Errorf("evaluating task script: %w", err)
	}
	v.Free()

	drained := executePendingJobs(ctx.vm, microtaskDrainBound)
	if drained == microtaskDrainBound {
		core.Warnf("microtask drain hit its %d-iteration bound without emptying", microtaskDrainBound)
	}

	// The task's own script has nothing left to run; whatever happens
	// next is timer callbacks. Mark the context pending-free so it is
	// destroyed either now (no outstanding timers) or as soon as the
	// last one closes (core.ContextHandle.DecTimers, driven by
	// RunLoopOnce).
	if ctx.handle.MarkPendingFree() {
		rt.freeContext(ctx)
	}

	return nil
}
