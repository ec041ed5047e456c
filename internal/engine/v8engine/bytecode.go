//go:build v8

package v8engine

import (
	"encoding/binary"
	"fmt"

	"github.com/riftlab/taskpool/internal/modwrap"
	v8 "github.com/tommie/v8go"
)

// encodeBytecode wraps source, compiles it once on a throwaway isolate to
// obtain a v8.UnboundScript, and serialises its code cache via
// CreateCodeCache, v8go's real bytecode-cache entry point. The blob is
// [4-byte wrapped-source length][wrapped source][code cache].
func encodeBytecode(source string) ([]byte, error) {
	wrapped := modwrap.Wrap(source)

	iso := v8.NewIsolate()
	defer iso.Dispose()

	script, err := iso.CompileUnboundScript(wrapped, "task.js", v8.CompileOptions{})
	if err != nil {
		return nil, fmt.Errorf("compiling task script: %w", err)
	}
	cache := script.CreateCodeCache()

	body := []byte(wrapped)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(body)))

	blob := append(header, body...)
	blob = append(blob, cache...)
	return blob, nil
}

// decodeBytecode splits a blob produced by encodeBytecode back into the
// wrapped source and its cached data. The cache is advisory: if v8go
// rejects it as stale (V8 embeds a version/flags fingerprint in the
// cache itself), CompileUnboundScript still succeeds by recompiling from
// source, it just doesn't skip the parse.
func decodeBytecode(blob []byte) (source string, cached []byte, err error) {
	if len(blob) < 4 {
		return "", nil, fmt.Errorf("v8engine: bytecode blob too short (%d bytes)", len(blob))
	}
	srcLen := binary.LittleEndian.Uint32(blob[:4])
	if uint32(len(blob)-4) < srcLen {
		return "", nil, fmt.Errorf("v8engine: bytecode blob truncated")
	}
	source = string(blob[4 : 4+srcLen])
	cached = blob[4+srcLen:]
	if len(cached) == 0 {
		cached = nil
	}
	return source, cached, nil
}
