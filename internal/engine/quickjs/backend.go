//go:build !v8

package quickjs

import "github.com/riftlab/taskpool/internal/core"

// Backend is the QuickJS core.Backend/core.Compiler implementation: the
// default engine, selected whenever the module is built without the
// "v8" build tag.
type Backend struct{}

// NewBackend constructs the QuickJS backend.
func NewBackend() *Backend { return &Backend{} }

var _ core.Backend = (*Backend)(nil)
var _ core.Compiler = (*Backend)(nil)

// NewRuntime constructs a new Worker Runtime for this backend.
func (b *Backend) NewRuntime(cfg core.EngineConfig) (core.Runtime, error) {
	return NewRuntime(cfg)
}

// Compile produces a bytecode blob for EvalBytecode.
func (b *Backend) Compile(source string) ([]byte, error) {
	return EncodeBytecode(source)
}
