//go:build v8

package taskpool

import (
	"github.com/riftlab/taskpool/internal/core"
	"github.com/riftlab/taskpool/internal/engine/v8engine"
)

func newBackend() core.Backend { return v8engine.NewBackend() }

func newCompiler() core.Compiler { return v8engine.NewBackend() }
