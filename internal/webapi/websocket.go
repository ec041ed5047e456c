package webapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/riftlab/taskpool/internal/core"
)

// wsDialTimeout bounds the outbound WebSocket handshake.
const wsDialTimeout = 10 * time.Second

// MaxWSMessageBytes is the maximum size of a single inbound WebSocket message.
const MaxWSMessageBytes = 64 * 1024

// wsConnState is the Go-side half of one outbound WebSocket, scoped to the
// Worker Context that opened it.
type wsConnState struct {
	conn   *websocket.Conn
	cancel context.CancelFunc

	mu     sync.Mutex
	events []wsEvent
	closed bool
}

// wsEvent is one queued occurrence (message/close/error), drained by the
// JS-side poll loop and replayed as a dispatch call.
type wsEvent struct {
	Type   string `json:"type"`
	Data   string `json:"data,omitempty"`
	Binary bool   `json:"binary,omitempty"`
	Code   int    `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// webSocketJS defines new WebSocket(url): a plain outbound client. There
// is no inbound HTTP connection in this executor to pair a server-side
// socket against, so only the client half exists here — polled from a
// self-rescheduling timer rather than pushed, since nothing drives the
// event loop between tasks.
const webSocketJS = `
(function() {

class WebSocket {
	constructor(url) {
		this._listeners = {};
		this._readyState = 0;
		this._url = String(url);
		this._connID = null;

		var self = this;
		try {
			this._connID = __wsOpen(this._url);
			this._readyState = 1;
			queueMicrotask(function() { self._dispatch('open', {}); });
			this._poll();
		} catch (e) {
			this._readyState = 3;
			queueMicrotask(function() { self._dispatch('error', { message: String(e) }); });
		}
	}

	_poll() {
		if (this._readyState >= 3 || this._connID === null) return;
		var self = this;
		setTimeout(function() {
			var batchJSON = __wsPoll(self._connID);
			var batch = batchJSON ? JSON.parse(batchJSON) : [];
			for (var i = 0; i < batch.length; i++) {
				var evt = batch[i];
				if (evt.type === 'message') {
					var data = evt.binary ? __b64ToBuffer(evt.data) : evt.data;
					self._dispatch('message', { data: data });
				} else if (evt.type === 'close') {
					self._readyState = 3;
					self._dispatch('close', { code: evt.code, reason: evt.reason, wasClean: true });
					return;
				} else if (evt.type === 'error') {
					self._dispatch('error', { message: evt.reason });
				}
			}
			self._poll();
		}, 20);
	}

	send(data) {
		if (this._readyState !== 1) {
			throw new TypeError('WebSocket is not open');
		}
		if (typeof data === 'string') {
			__wsSend(this._connID, data, false);
		} else if (data instanceof ArrayBuffer || ArrayBuffer.isView(data)) {
			__wsSend(this._connID, __bufferSourceToB64(data), true);
		} else {
			__wsSend(this._connID, String(data), false);
		}
	}

	close(code, reason) {
		if (this._readyState >= 2) return;
		this._readyState = 2;
		__wsClose(this._connID, code || 1000, reason || '');
	}

	addEventListener(type, handler) {
		if (!this._listeners[type]) this._listeners[type] = [];
		this._listeners[type].push(handler);
	}

	removeEventListener(type, handler) {
		var list = this._listeners[type];
		if (!list) return;
		this._listeners[type] = list.filter(function(h) { return h !== handler; });
	}

	_dispatch(type, event) {
		var prop = 'on' + type;
		if (typeof this[prop] === 'function') this[prop](event);
		var list = this._listeners[type] || [];
		for (var i = 0; i < list.length; i++) list[i](event);
	}

	get readyState() { return this._readyState; }
	get url() { return this._url; }
}

WebSocket.CONNECTING = 0;
WebSocket.OPEN = 1;
WebSocket.CLOSING = 2;
WebSocket.CLOSED = 3;

globalThis.WebSocket = WebSocket;

})();
`

// SetupWebSocket registers the outbound WebSocket class and its Go-backed
// dial/send/poll/close functions. State is scoped to closures captured at
// install time, so two Worker Contexts never share connections.
func SetupWebSocket(rt core.JSRuntime) error {
	var mu sync.Mutex
	conns := make(map[string]*wsConnState)
	var nextID int64

	if err := rt.RegisterFunc("__wsOpen", func(url string) (string, error) {
		dialCtx, cancel := context.WithTimeout(context.Background(), wsDialTimeout)
		conn, _, err := websocket.Dial(dialCtx, url, nil)
		cancel()
		if err != nil {
			return "", fmt.Errorf("websocket dial: %w", err)
		}
		conn.SetReadLimit(MaxWSMessageBytes)

		readCtx, readCancel := context.WithCancel(context.Background())
		state := &wsConnState{conn: conn, cancel: readCancel}

		mu.Lock()
		nextID++
		id := strconv.FormatInt(nextID, 10)
		conns[id] = state
		mu.Unlock()

		go func() {
			for {
				msgType, data, err := conn.Read(readCtx)
				if err != nil {
					state.mu.Lock()
					if !state.closed {
						state.closed = true
						state.events = append(state.events, wsEvent{Type: "close", Code: 1006, Reason: err.Error()})
					}
					state.mu.Unlock()
					return
				}

				evt := wsEvent{Type: "message"}
				if msgType == websocket.MessageBinary {
					evt.Binary = true
					evt.Data = base64.StdEncoding.EncodeToString(data)
				} else {
					evt.Data = string(data)
				}

				state.mu.Lock()
				state.events = append(state.events, evt)
				state.mu.Unlock()
			}
		}()

		return id, nil
	}); err != nil {
		return fmt.Errorf("registering __wsOpen: %w", err)
	}

	if err := rt.RegisterFunc("__wsSend", func(connID, data string, isBinary bool) error {
		mu.Lock()
		state, ok := conns[connID]
		mu.Unlock()
		if !ok {
			return fmt.Errorf("wsSend: unknown connection")
		}

		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if isBinary {
			decoded, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				return fmt.Errorf("wsSend: invalid base64")
			}
			return state.conn.Write(writeCtx, websocket.MessageBinary, decoded)
		}
		return state.conn.Write(writeCtx, websocket.MessageText, []byte(data))
	}); err != nil {
		return fmt.Errorf("registering __wsSend: %w", err)
	}

	if err := rt.RegisterFunc("__wsPoll", func(connID string) (string, error) {
		mu.Lock()
		state, ok := conns[connID]
		mu.Unlock()
		if !ok {
			return "[]", nil
		}

		state.mu.Lock()
		batch := state.events
		state.events = nil
		state.mu.Unlock()

		if len(batch) == 0 {
			return "[]", nil
		}
		data, err := json.Marshal(batch)
		if err != nil {
			return "[]", nil
		}
		return string(data), nil
	}); err != nil {
		return fmt.Errorf("registering __wsPoll: %w", err)
	}

	if err := rt.RegisterFunc("__wsClose", func(connID string, code int, reason string) error {
		mu.Lock()
		state, ok := conns[connID]
		mu.Unlock()
		if !ok {
			return nil
		}

		state.mu.Lock()
		already := state.closed
		state.closed = true
		state.mu.Unlock()
		if already {
			return nil
		}

		state.cancel()
		return state.conn.Close(websocket.StatusCode(code), reason)
	}); err != nil {
		return fmt.Errorf("registering __wsClose: %w", err)
	}

	return rt.Eval(webSocketJS)
}
