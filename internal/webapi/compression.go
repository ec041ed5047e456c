package webapi

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/riftlab/taskpool/internal/core"
)

// compressStreamState holds the Go-side state for one streaming compressor
// or decompressor running inside a single Worker Context. For compression
// the writer writes compressed chunks to buf. For decompression an
// io.Pipe feeds a background goroutine that runs the decompressor,
// producing decompressed output incrementally per chunk.
type compressStreamState struct {
	format string

	buf    bytes.Buffer
	writer io.WriteCloser

	decompPW   *io.PipeWriter
	decompMu   sync.Mutex
	decompOut  bytes.Buffer
	decompErr  error
	decompDone chan struct{}
}

// compressionJS implements CompressionStream and DecompressionStream.
// Each chunk is sent to Go-backed functions for real streaming compression.
const compressionJS = `
(function() {

function __chunkToUint8Array(chunk) {
	if (typeof chunk === 'string') {
		return new TextEncoder().encode(chunk);
	} else if (chunk instanceof ArrayBuffer) {
		return new Uint8Array(chunk);
	} else if (ArrayBuffer.isView(chunk)) {
		return new Uint8Array(chunk.buffer, chunk.byteOffset, chunk.byteLength);
	} else {
		return new TextEncoder().encode(String(chunk));
	}
}

class CompressionStream {
	constructor(format) {
		if (format !== 'gzip' && format !== 'deflate' && format !== 'deflate-raw' && format !== 'br') {
			throw new TypeError('Unsupported compression format: ' + format);
		}
		var streamID = __compressInit(format);
		var ts = new TransformStream({
			transform(chunk, controller) {
				var data = __chunkToUint8Array(chunk);
				var resultB64 = __compressChunk(streamID, __bufferSourceToB64(data));
				if (resultB64.length > 0) {
					controller.enqueue(new Uint8Array(__b64ToBuffer(resultB64)));
				}
			},
			flush(controller) {
				var resultB64 = __compressFlush(streamID);
				if (resultB64.length > 0) {
					controller.enqueue(new Uint8Array(__b64ToBuffer(resultB64)));
				}
			}
		});
		this.readable = ts.readable;
		this.writable = ts.writable;
	}
}

class DecompressionStream {
	constructor(format) {
		if (format !== 'gzip' && format !== 'deflate' && format !== 'deflate-raw' && format !== 'br') {
			throw new TypeError('Unsupported compression format: ' + format);
		}
		var streamID = __decompressInit(format);
		var ts = new TransformStream({
			transform(chunk, controller) {
				var data = __chunkToUint8Array(chunk);
				var resultB64 = __decompressChunk(streamID, __bufferSourceToB64(data));
				if (resultB64.length > 0) {
					controller.enqueue(new Uint8Array(__b64ToBuffer(resultB64)));
				}
			},
			flush(controller) {
				var resultB64 = __decompressFlush(streamID);
				if (resultB64.length > 0) {
					controller.enqueue(new Uint8Array(__b64ToBuffer(resultB64)));
				}
			}
		});
		this.readable = ts.readable;
		this.writable = ts.writable;
	}
}

globalThis.CompressionStream = CompressionStream;
globalThis.DecompressionStream = DecompressionStream;

})();
`

func newCompressWriter(buf *bytes.Buffer, format string) (io.WriteCloser, error) {
	switch format {
	case "gzip":
		return gzip.NewWriter(buf), nil
	case "deflate", "deflate-raw":
		return flate.NewWriter(buf, flate.DefaultCompression)
	case "br":
		return brotli.NewWriter(buf), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// SetupCompression registers Go-backed streaming compress/decompress
// functions scoped to this one Worker Context (the closures below capture
// a private stream table, so two contexts never share compressor state)
// and evaluates the CompressionStream/DecompressionStream classes.
func SetupCompression(rt core.JSRuntime) error {
	var mu sync.Mutex
	streams := make(map[string]*compressStreamState)
	var nextID int64

	if err := rt.RegisterFunc("__compressInit", func(format string) (string, error) {
		mu.Lock()
		defer mu.Unlock()

		cs := &compressStreamState{format: format}
		w, err := newCompressWriter(&cs.buf, format)
		if err != nil {
			return "", fmt.Errorf("compressInit: %w", err)
		}
		cs.writer = w

		nextID++
		id := strconv.FormatInt(nextID, 10)
		streams[id] = cs
		return id, nil
	}); err != nil {
		return fmt.Errorf("registering __compressInit: %w", err)
	}

	if err := rt.RegisterFunc("__compressChunk", func(streamID, dataB64 string) (string, error) {
		data, err := base64.StdEncoding.DecodeString(dataB64)
		if err != nil {
			return "", fmt.Errorf("compressChunk: invalid base64")
		}

		mu.Lock()
		cs, ok := streams[streamID]
		mu.Unlock()
		if !ok {
			return "", fmt.Errorf("compressChunk: unknown stream")
		}

		cs.buf.Reset()
		if _, err := cs.writer.Write(data); err != nil {
			return "", fmt.Errorf("compressChunk: %w", err)
		}
		return base64.StdEncoding.EncodeToString(cs.buf.Bytes()), nil
	}); err != nil {
		return fmt.Errorf("registering __compressChunk: %w", err)
	}

	if err := rt.RegisterFunc("__compressFlush", func(streamID string) (string, error) {
		mu.Lock()
		cs, ok := streams[streamID]
		if ok {
			delete(streams, streamID)
		}
		mu.Unlock()
		if !ok {
			return "", fmt.Errorf("compressFlush: unknown stream")
		}

		cs.buf.Reset()
		if err := cs.writer.Close(); err != nil {
			return "", fmt.Errorf("compressFlush: %w", err)
		}
		return base64.StdEncoding.EncodeToString(cs.buf.Bytes()), nil
	}); err != nil {
		return fmt.Errorf("registering __compressFlush: %w", err)
	}

	if err := rt.RegisterFunc("__decompressInit", func(format string) (string, error) {
		pr, pw := io.Pipe()
		cs := &compressStreamState{
			format:     format,
			decompPW:   pw,
			decompDone: make(chan struct{}),
		}

		go func() {
			defer close(cs.decompDone)
			defer pr.Close()

			var reader io.ReadCloser
			switch format {
			case "gzip":
				r, err := gzip.NewReader(pr)
				if err != nil {
					cs.decompMu.Lock()
					cs.decompErr = err
					cs.decompMu.Unlock()
					return
				}
				reader = r
			case "deflate", "deflate-raw":
				reader = flate.NewReader(pr)
			case "br":
				reader = io.NopCloser(brotli.NewReader(pr))
			default:
				cs.decompMu.Lock()
				cs.decompErr = fmt.Errorf("unsupported format %q", format)
				cs.decompMu.Unlock()
				return
			}
			defer reader.Close()

			buf := make([]byte, 32*1024)
			for {
				n, err := reader.Read(buf)
				if n > 0 {
					cs.decompMu.Lock()
					cs.decompOut.Write(buf[:n])
					cs.decompMu.Unlock()
				}
				if err != nil {
					if err != io.EOF {
						cs.decompMu.Lock()
						cs.decompErr = err
						cs.decompMu.Unlock()
					}
					return
				}
			}
		}()

		mu.Lock()
		nextID++
		id := strconv.FormatInt(nextID, 10)
		streams[id] = cs
		mu.Unlock()

		return id, nil
	}); err != nil {
		return fmt.Errorf("registering __decompressInit: %w", err)
	}

	if err := rt.RegisterFunc("__decompressChunk", func(streamID, dataB64 string) (string, error) {
		data, err := base64.StdEncoding.DecodeString(dataB64)
		if err != nil {
			return "", fmt.Errorf("decompressChunk: invalid base64")
		}

		mu.Lock()
		cs, ok := streams[streamID]
		mu.Unlock()
		if !ok {
			return "", fmt.Errorf("decompressChunk: unknown stream")
		}

		// PipeWriter.Write blocks until the reader goroutine consumes the
		// data, so write off the calling goroutine.
		errCh := make(chan error, 1)
		go func() { _, werr := cs.decompPW.Write(data); errCh <- werr }()
		if werr := <-errCh; werr != nil {
			return "", fmt.Errorf("decompressChunk: %w", werr)
		}

		cs.decompMu.Lock()
		out := make([]byte, cs.decompOut.Len())
		copy(out, cs.decompOut.Bytes())
		cs.decompOut.Reset()
		derr := cs.decompErr
		cs.decompMu.Unlock()
		if derr != nil {
			return "", fmt.Errorf("decompressChunk: %w", derr)
		}

		return base64.StdEncoding.EncodeToString(out), nil
	}); err != nil {
		return fmt.Errorf("registering __decompressChunk: %w", err)
	}

	if err := rt.RegisterFunc("__decompressFlush", func(streamID string) (string, error) {
		mu.Lock()
		cs, ok := streams[streamID]
		if ok {
			delete(streams, streamID)
		}
		mu.Unlock()
		if !ok {
			return "", fmt.Errorf("decompressFlush: unknown stream")
		}

		cs.decompPW.Close()
		<-cs.decompDone

		cs.decompMu.Lock()
		result := make([]byte, cs.decompOut.Len())
		copy(result, cs.decompOut.Bytes())
		derr := cs.decompErr
		cs.decompMu.Unlock()
		if derr != nil {
			return "", fmt.Errorf("decompressFlush: %w", derr)
		}

		return base64.StdEncoding.EncodeToString(result), nil
	}); err != nil {
		return fmt.Errorf("registering __decompressFlush: %w", err)
	}

	if err := rt.Eval(compressionJS); err != nil {
		return fmt.Errorf("evaluating compression.js: %w", err)
	}
	return nil
}
