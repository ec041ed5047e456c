// Package core holds the engine-agnostic primitives shared by every JS
// engine backend: the Worker Context's active-timer/pending-free
// bookkeeping, the Timer Table, the JSRuntime/Backend/Runtime/Compiler
// contracts a backend implements, and the diagnostic logger.
package core
