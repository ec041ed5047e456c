//go:build !v8

package taskpool

import (
	"github.com/riftlab/taskpool/internal/core"
	"github.com/riftlab/taskpool/internal/engine/quickjs"
)

// newBackend selects the default JS engine backend. Building with
// -tags v8 swaps this for backend_v8.go's V8-backed implementation.
func newBackend() core.Backend { return quickjs.NewBackend() }

func newCompiler() core.Compiler { return quickjs.NewBackend() }
