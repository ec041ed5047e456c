// Package modwrap turns a task's ES module source into a plain script a
// Worker Context can evaluate directly, exposing whatever the module
// exported under a single reserved global.
//
// Uses esbuild's Transform API (not a regex) to parse the module and
// re-emit it as an IIFE, because that's the only reliable way to turn
// arbitrary export syntax into a plain assignment.
package modwrap

import (
	esbuild "github.com/evanw/esbuild/pkg/api"
)

// ModuleGlobal is the reserved global a wrapped module's exports are
// attached to. Host scripts evaluated as plain scripts (no exports) are
// unaffected — the IIFE wrapping is harmless in that case.
const ModuleGlobal = "__module__"

// Wrap transforms source into an IIFE that assigns the module's exports
// (or its default export, unwrapped) to globalThis.__module__. If esbuild
// fails to parse the source, the source is returned unchanged so that the
// engine's own compile step surfaces the syntax error to the caller.
func Wrap(source string) string {
	result := esbuild.Transform(source, esbuild.TransformOptions{
		Format:     esbuild.FormatIIFE,
		GlobalName: "globalThis." + ModuleGlobal,
		Target:     esbuild.ESNext,
	})
	if len(result.Errors) > 0 {
		return source
	}
	code := string(result.Code)
	code += "if(globalThis." + ModuleGlobal + "&&globalThis." + ModuleGlobal +
		".default){globalThis." + ModuleGlobal + "=globalThis." + ModuleGlobal + ".default;}\n"
	return code
}
