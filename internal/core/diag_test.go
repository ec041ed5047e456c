package core

import (
	"os"
	"strings"
	"testing"
)

func TestLogf_FiltersBelowCurrentLevel(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "diag")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	SetOutput(f)
	defer SetOutput(os.Stderr)

	SetLevel(LevelError)
	defer SetLevel(LevelWarn)

	Warnf("should be filtered out")
	Errorf("should appear: %d", 42)

	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "should be filtered out") {
		t.Fatalf("Warnf wrote output below the current level: %q", out)
	}
	if !strings.Contains(out, "should appear: 42") {
		t.Fatalf("Errorf output missing, got %q", out)
	}
	if !strings.Contains(out, "[ERROR]") {
		t.Fatalf("output missing level tag, got %q", out)
	}
}

func TestLevel_String(t *testing.T) {
	cases := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
		Level(99):  "UNKNOWN",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}
