//go:build !v8

package quickjs

import (
	"fmt"
	"sync"

	"github.com/riftlab/taskpool/internal/core"
	"modernc.org/quickjs"
)

// Context is one Worker Context: a fresh QuickJS VM, good for exactly
// one task's evaluation. modernc.org/quickjs.VM bundles the
// engine-runtime and the evaluation scope into a single handle, so
// unlike the V8 backend (one Isolate, many Contexts), here a Worker
// Context IS a VM. Heavier per task, but it gives every context its own
// heap and satisfies max_contexts/active_timers exactly. See DESIGN.md,
// "QuickJS context model".
type Context struct {
	*vmRuntime

	handle *core.ContextHandle
	rt     *Runtime
	vm     *quickjs.VM

	doneOnce sync.Once
	onDone   func(error)
	lastErr  error
}

var _ core.JSRuntime = (*Context)(nil)

// vmRuntime implements core.JSRuntime against a single quickjs.VM.
type vmRuntime struct {
	vm *quickjs.VM
}

func (r *vmRuntime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

func (r *vmRuntime) EvalString(js string) (string, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

func (r *vmRuntime) EvalBool(js string) (bool, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", result)
	}
	return b, nil
}

func (r *vmRuntime) EvalInt(js string) (int, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected int, got %T", result)
	}
}

// RegisterFunc registers a Go function as a global JS function. Go
// multi-value (T, error) returns come back from the QuickJS wrapper as a
// JS array, so the registered name is wrapped in JS to unpack it into a
// plain return-or-throw.
func (r *vmRuntime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r)) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return r.Eval(wrapJS)
}

func (r *vmRuntime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

func (r *vmRuntime) RunMicrotasks() {
	executePendingJobs(r.vm, microtaskDrainBound)
}
