package modwrap

import (
	"strings"
	"testing"
)

func TestWrap_PlainScriptPassesThrough(t *testing.T) {
	out := Wrap("1 + 1;")
	if !strings.Contains(out, "1 + 1") {
		t.Fatalf("Wrap(plain script) = %q, lost the original statement", out)
	}
}

func TestWrap_NamedExportReachesModuleGlobal(t *testing.T) {
	out := Wrap("export const answer = 42;")
	if !strings.Contains(out, "globalThis."+ModuleGlobal) {
		t.Fatalf("Wrap(named export) = %q, does not assign %s", out, ModuleGlobal)
	}
}

func TestWrap_DefaultExportIsUnwrapped(t *testing.T) {
	out := Wrap("export default function run() { return 1; }")
	if !strings.Contains(out, ModuleGlobal+".default") {
		t.Fatalf("Wrap(default export) = %q, missing the default-unwrap check", out)
	}
}

func TestWrap_InvalidSyntaxReturnsUnchanged(t *testing.T) {
	src := "this is not valid javascript !!! {{{"
	out := Wrap(src)
	if out != src {
		t.Fatalf("Wrap(invalid syntax) = %q, want the original source unchanged so the engine surfaces the error", out)
	}
}
