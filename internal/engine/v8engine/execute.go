//go:build v8

package v8engine

import (
	"fmt"

	"github.com/riftlab/taskpool/internal/core"
	"github.com/riftlab/taskpool/internal/modwrap"
	v8 "github.com/tommie/v8go"
)

// EvalJS runs one task's source in a fresh Worker Context.
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

// EvalBytecode runs a v8.UnboundScript's cached bytecode, compiled ahead
// of time via Compile/CreateCodeCache and reusing the cache v8go is
// built to produce.
func (rt *Runtime) EvalBytecode(bytecode []byte, onDone func(error)) error {
	ctx, err := rt.newContext()
	if err != nil {
		onDone(err)
		return err
	}
	ctx.onDone = onDone

	wrapped, cached, err := decodeBytecode(bytecode)
	if err != nil {
		ctx.lastErr = err
		rt.freeContext(ctx)
		return err
	}

	opts := v8.CompileOptions{}
	if cached != nil {
		opts.CachedData = cached
	}
	script, err := rt.iso.CompileUnboundScript(wrapped, "task.js", opts)
	if err != nil {
		core.Errorf("compiling cached task script: %v", err)
		ctx.lastErr = err
		freeable := ctx.handle.MarkPendingFree()
		if freeable {
			rt.freeContext(ctx)
		}
		return fmt.Errorf("compiling cached task script: %w", err)
	}

	return rt.runScript(ctx, script)
}

func (rt *Runtime) runAndSettle(ctx *Context, wrapped string) error {
	if _, err := ctx.ctx.RunScript(wrapped, "task.js"); err != nil {
		core.Errorf("task script exception: %v", err)
		ctx.lastErr = err
		freeable := ctx.handle.MarkPendingFree()
		ctx.RunMicrotasks()
		if freeable {
			rt.freeContext(ctx)
		}
		return fmt.Errorf("evaluating task script: %w", err)
	}
	return rt.settle(ctx)
}

func (rt *Runtime) runScript(ctx *Context, script *v8.UnboundScript) error {
	if _, err := script.Run(ctx.ctx); err != nil {
		core.Errorf("task script exception: %v", err)
		ctx.lastErr = err
		freeable := ctx.handle.MarkPendingFree()
		ctx.RunMicrotasks()
		if freeable {
			rt.freeContext(ctx)
		}
		return fmt.Errorf("evaluating task script: %w", err)
	}
	return rt.settle(ctx)
}

// settle drains microtasks and frees ctx if no script-registered timer
// is keeping it alive, same sequence as the QuickJS backend.
//
// V8's PerformMicrotaskCheckpoint empties the whole queue in one call
// (unlike QuickJS's one-job-at-a-time XJS_ExecutePendingJob), so a single
// checkpoint is enough; microtaskDrainBound exists only so both
// backends expose the same safety-bound concept.
func (rt *Runtime) settle(ctx *Context) error {
	ctx.RunMicrotasks()

	if ctx.handle.MarkPendingFree() {
		rt.freeContext(ctx)
	}
	return nil
}
