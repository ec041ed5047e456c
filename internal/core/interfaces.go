package core

// JSRuntime abstracts a single JS evaluation scope (a Worker Context)
// behind the common interface shared setup functions in internal/webapi
// build against, so those setup functions stay engine-agnostic.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// EvalInt evaluates JavaScript and returns the result as a Go int.
	EvalInt(js string) (int, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// Only primitive Go argument/return types (string, int, float64, bool)
	// are marshaled; a (T, error) return throws a TypeError on error.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable, auto-converting primitive Go types.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the engine's microtask queue.
	RunMicrotasks()
}

// Backend constructs engine-specific Worker Runtimes. internal/engine/quickjs
// and internal/engine/v8engine each provide one, selected at build time by
// the root package's backend_quickjs.go / backend_v8.go.
type Backend interface {
	NewRuntime(cfg EngineConfig) (Runtime, error)
}

// Runtime is the per-thread Worker Runtime contract: one JS
// engine-runtime, one event loop, a bounded set of short-lived
// contexts, and a Timer Table. The pool's worker loop drives it through
// exactly these four operations.
type Runtime interface {
	// EvalJS creates a fresh Worker Context, evaluates source as a module,
	// and invokes onDone exactly once after the context is fully
	// destroyed (immediately if eval completes with no live timers, later
	// from a timer close-finalisation otherwise). A non-nil returned error
	// means the task failed: either no context could be created (e.g.
	// max_contexts exceeded), in which case onDone has already run
	// synchronously before EvalJS returns, or evaluation raised an
	// exception, in which case onDone runs once the context is destroyed,
	// which may be after EvalJS returns if timers are still live.
	EvalJS(source string, onDone func(error)) error

	// EvalBytecode is the bytecode-payload counterpart of EvalJS.
	EvalBytecode(bytecode []byte, onDone func(error)) error

	// RunLoopOnce advances the event loop by one non-blocking poll,
	// firing at most the timers already due. Returns true while any
	// context on this runtime still has pending handles.
	RunLoopOnce() bool

	// Free tears down every context, the Timer Table, and the underlying
	// JS engine-runtime. Safe to call once, from the owning thread only.
	Free()
}

// Compiler is implemented by backends that can turn source into a
// bytecode payload ahead of time (see the root package's CompileScript).
type Compiler interface {
	Compile(source string) ([]byte, error)
}
