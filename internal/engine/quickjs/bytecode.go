//go:build !v8

package quickjs

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/riftlab/taskpool/internal/modwrap"
)

// bytecodeMagic identifies a blob produced by EncodeBytecode. QuickJS has
// no reachable bytecode-serialisation entry point through
// modernc.org/quickjs (unlike V8's CompileUnboundScript/CreateCodeCache),
// so rather than fabricate a VM-level cache format this backend's
// "compiled" artifact is just the already-module-wrapped source with an
// integrity header: a compile step still runs once up front (the
// wrapping), and EvalBytecode still skips re-wrapping on every task.
// See DESIGN.md's bytecode-scheme resolution.
var bytecodeMagic = [4]byte{'Q', 'J', 'S', '1'}

// EncodeBytecode wraps source and prefixes it with a magic/length/CRC32
// header, producing the blob a Compiler.Compile caller hands back to
// callers that later pass it to Runtime.EvalBytecode.
func EncodeBytecode(source string) ([]byte, error) {
	wrapped := modwrap.Wrap(source)
	body := []byte(wrapped)

	header := make([]byte, 12)
	copy(header[0:4], bytecodeMagic[:])
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))
	binary.LittleEndian.PutUint32(header[8:12], crc32.ChecksumIEEE(body))

	return append(header, body...), nil
}

// decodeBytecode validates the header and returns the embedded,
// already-wrapped source.
func decodeBytecode(blob []byte) (string, error) {
	if len(blob) < 12 {
		return "", fmt.Errorf("quickjs: bytecode blob too short (%d bytes)", len(blob))
	}
	if [4]byte{blob[0], blob[1], blob[2], blob[3]} != bytecodeMagic {
		return "", fmt.Errorf("quickjs: bytecode blob has wrong magic")
	}
	length := binary.LittleEndian.Uint32(blob[4:8])
	wantCRC := binary.LittleEndian.Uint32(blob[8:12])
	body := blob[12:]
	if uint32(len(body)) != length {
		return "", fmt.Errorf("quickjs: bytecode blob length mismatch: header says %d, got %d", length, len(body))
	}
	if crc32.ChecksumIEEE(body) != wantCRC {
		return "", fmt.Errorf("quickjs: bytecode blob failed integrity check")
	}
	return string(body), nil
}
