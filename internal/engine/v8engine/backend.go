//go:build v8

package v8engine

import "github.com/riftlab/taskpool/internal/core"

// Backend is the V8 core.Backend/core.Compiler implementation, selected
// by building with -tags v8.
type Backend struct{}

// NewBackend constructs the V8 backend.
func NewBackend() *Backend { return &Backend{} }

var _ core.Backend = (*Backend)(nil)
var _ core.Compiler = (*Backend)(nil)

func (b *Backend) NewRuntime(cfg core.EngineConfig) (core.Runtime, error) {
	return NewRuntime(cfg)
}

func (b *Backend) Compile(source string) ([]byte, error) {
	return encodeBytecode(source)
}
