//go:build v8

package v8engine

import (
	"strconv"
	"time"

	"github.com/riftlab/taskpool/internal/core"
	"github.com/riftlab/taskpool/internal/webapi"
)

// timersJS and consoleJS are identical in shape to the QuickJS backend's:
// the retained callback lives JS-side, Go only tracks scheduling
// metadata.
const timersJS = `
(function() {
	globalThis.__timerCallbacks = {};
	globalThis.setTimeout = function(fn, delay) {
		if (arguments.length === 0 || typeof fn !== 'function') {
			return 0;
		}
		var args = [];
		for (var i = 2; i < arguments.length; i++) args.push(arguments[i]);
		var id = __timerRegister(delay || 0, false);
		globalThis.__timerCallbacks[id] = { fn: fn, args: args };
		return id;
	};
	globalThis.setInterval = function(fn, interval) {
		if (arguments.length === 0 || typeof fn !== 'function') {
			return 0;
		}
		var args = [];
		for (var i = 2; i < arguments.length; i++) args.push(arguments[i]);
		var id = __timerRegister(interval || 0, true);
		globalThis.__timerCallbacks[id] = { fn: fn, args: args, interval: true };
		return id;
	};
	globalThis.clearTimeout = globalThis.clearInterval = function(id) {
		if (arguments.length === 0 || typeof id !== 'number') {
			return;
		}
		__timerClear(id);
		delete globalThis.__timerCallbacks[id];
	};
	globalThis.__fireTimer = function(id) {
		var entry = globalThis.__timerCallbacks[id];
		if (!entry) return;
		try {
			entry.fn.apply(null, entry.args);
		} finally {
			if (!entry.interval) delete globalThis.__timerCallbacks[id];
		}
	};
})();
`

func installTimers(ctx *Context) error {
	table := ctx.rt.timers

	if err := ctx.RegisterFunc("__timerRegister", func(delayMs int, isInterval bool) int {
		if delayMs < 0 {
			delayMs = 0
		}
		delay := time.Duration(delayMs) * time.Millisecond

		rec := &core.TimerRecord{
			Owner:    ctx.handle,
			Interval: isInterval,
			Delay:    delay,
		}
		rec.Fire = func() {
			call := "globalThis.__fireTimer(" + strconv.FormatUint(uint64(rec.ID), 10) + ")"
			if err := ctx.Eval(call); err != nil {
				core.Errorf("timer callback %d: %v", rec.ID, err)
			}
			// A nested clearInterval/clearTimeout inside the callback just
			// ran (__timerClear, below) and may have made ctx freeable.
			// Only check now that Eval has fully unwound: freeing ctx.ctx
			// while it's still executing this very callback would close
			// the engine out from under itself.
			if ctx.handle.PendingFree() && ctx.handle.ActiveTimers() == 0 {
				ctx.rt.freeContextByHandle(ctx.handle)
			}
		}
		id := table.Insert(rec, delay)
		ctx.handle.IncTimers()
		return int(id)
	}); err != nil {
		return err
	}

	if err := ctx.RegisterFunc("__timerClear", func(id int) {
		rec, ok := table.Find(uint32(id))
		if !ok {
			return
		}
		rec.MarkCleared()
		table.Remove(rec.ID)
		// Bookkeeping only. ctx may be mid-Eval right now (this can run
		// reentrantly from inside rec.Fire via the timer's own callback),
		// so the actual free happens once Fire's Eval call returns.
		ctx.handle.DecTimers()
	}); err != nil {
		return err
	}

	return ctx.Eval(timersJS)
}

const consoleJS = `
(function() {
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) {
					var arg = arguments[j];
					if (typeof arg === 'object' && arg !== null) {
						parts.push(JSON.stringify(arg));
					} else {
						parts.push(String(arg));
					}
				}
				__console(lvl, parts.join(' '));
			};
		})(levels[i]);
	}
	globalThis.console = con;
})();
`

func installConsole(ctx *Context) error {
	if err := ctx.RegisterFunc("__console", func(level, message string) {
		switch level {
		case "error":
			core.Errorf("%s", message)
		case "warn":
			core.Warnf("%s", message)
		case "debug":
			core.Debugf("%s", message)
		default:
			core.Logf(core.LevelInfo, "%s", message)
		}
	}); err != nil {
		return err
	}
	return ctx.Eval(consoleJS)
}

// installBuiltins wires up every Worker Context builtin: the core pair
// (console, timers) plus the optional accessor web APIs from
// internal/webapi, none of which touch core scheduling.
func installBuiltins(ctx *Context) error {
	if err := installConsole(ctx); err != nil {
		return err
	}
	if err := installTimers(ctx); err != nil {
		return err
	}
	for _, setup := range []func(core.JSRuntime) error{
		webapi.SetupGlobals,
		webapi.SetupEncoding,
		webapi.SetupWebAPIs,
		webapi.SetupURLSearchParamsExt,
		webapi.SetupConsoleExt,
		webapi.SetupCompression,
		webapi.SetupHTMLRewriter,
		webapi.SetupWebSocket,
	} {
		if err := setup(ctx); err != nil {
			return err
		}
	}
	return nil
}
