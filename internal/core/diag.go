package core

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is a diagnostic severity level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// currentLevel is the process-wide filter, controlled at build/startup
// time rather than per call: a package variable set once at process
// start (e.g. from the -v flag in cmd/taskpoolctl) and read atomically on
// the hot path.
var currentLevel int32 = int32(LevelWarn)

// SetLevel adjusts the process-wide diagnostic filter.
func SetLevel(l Level) { atomic.StoreInt32(&currentLevel, int32(l)) }

var out = struct {
	mu sync.Mutex
	w  *os.File
}{w: os.Stderr}

// SetOutput redirects diagnostic output, mainly for tests.
func SetOutput(f *os.File) {
	out.mu.Lock()
	out.w = f
	out.mu.Unlock()
}

// Logf writes one diagnostic line in the fixed format:
// [YYYY-MM-DD HH:MM:SS] [LEVEL] file:line: message
// if level passes the current filter.
func Logf(l Level, format string, args ...any) {
	logAt(2, l, format, args...)
}

func logAt(skip int, l Level, format string, args ...any) {
	if int32(l) < atomic.LoadInt32(&currentLevel) {
		return
	}
	_, file, line, ok := runtime.Caller(skip)
	if ok {
		if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
			file = file[idx+1:]
		}
	} else {
		file, line = "?", 0
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("2006-01-02 15:04:05")
	out.mu.Lock()
	fmt.Fprintf(out.w, "[%s] [%s] %s:%d: %s\n", ts, l, file, line, msg)
	out.mu.Unlock()
}

// Warnf logs at WARN.
func Warnf(format string, args ...any) { logAt(2, LevelWarn, format, args...) }

// Errorf logs at ERROR.
func Errorf(format string, args ...any) { logAt(2, LevelError, format, args...) }

// Debugf logs at DEBUG.
func Debugf(format string, args ...any) { logAt(2, LevelDebug, format, args...) }
