// Command cabi exports the engine through a stable C ABI.  Build it
// with -buildmode=c-shared to produce the shared library consumed by
// the language bindings:
//
//	go build -buildmode=c-shared -o librq.so ./cabi
//
// The exported surface, signatures, and error codes are fixed; evolve
// by adding entry points, never by changing existing ones.  No
// engine-internal pointer ever crosses the boundary: sessions travel as
// opaque non-zero integers, 0 meaning "invalid".
package main

/*
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"encoding/json"
	"fmt"
	"unsafe"

	"github.com/LumeraProtocol/rq-library/pkg/processor"
	"github.com/LumeraProtocol/rq-library/pkg/session"
)

// versionString is returned by raptorq_version.
const versionString = "RaptorQ Library v0.2.0"

// Stable legacy codes shared by the original entry points.
const (
	codeOK             = 0
	codeGeneric        = -1
	codeInvalidSession = -4
	codeBufferTooSmall = -5
)

var registry = session.NewRegistry()

// copyToBuffer writes payload plus a NUL terminator into the
// caller-owned buffer.  When truncate is set an oversized payload is
// cut to fit (still NUL-terminated); otherwise it reports failure and
// writes nothing.
func copyToBuffer(buf *C.char, bufLen C.uintptr_t, payload string, truncate bool) bool {
	if buf == nil || bufLen == 0 {
		return false
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(bufLen))
	if len(payload)+1 > len(dst) {
		if !truncate {
			return false
		}
		n := copy(dst[:len(dst)-1], payload)
		dst[n] = 0
		return true
	}
	n := copy(dst, payload)
	dst[n] = 0
	return true
}

//export raptorq_init_session
func raptorq_init_session(symbolSize C.uint16_t, redundancyFactor C.uint8_t,
	maxMemoryMB C.uint64_t, concurrencyLimit C.uint64_t) C.uintptr_t {
	p, err := processor.New(processor.Config{
		SymbolSize:       uint16(symbolSize),
		RedundancyFactor: uint8(redundancyFactor),
		MaxMemoryMB:      uint64(maxMemoryMB),
		ConcurrencyLimit: uint64(concurrencyLimit),
	})
	if err != nil {
		return 0
	}
	return C.uintptr_t(registry.Register(p))
}

//export raptorq_free_session
func raptorq_free_session(sessionID C.uintptr_t) C.bool {
	return C.bool(registry.Free(uint64(sessionID)))
}

//export raptorq_encode_file
func raptorq_encode_file(sessionID C.uintptr_t, inputPath, outputDir *C.char,
	blockSize C.uintptr_t, resultBuffer *C.char, resultBufferLen C.uintptr_t) C.int32_t {
	if inputPath == nil || outputDir == nil || resultBuffer == nil {
		return codeGeneric
	}

	p, ok := registry.Lookup(uint64(sessionID))
	if !ok {
		return codeInvalidSession
	}

	result, err := p.EncodeFile(C.GoString(inputPath), C.GoString(outputDir), uint64(blockSize))
	if err != nil {
		return C.int32_t(processor.LegacyCode(err))
	}

	return writeResult(p, result, resultBuffer, resultBufferLen)
}

//export raptorq_create_metadata
func raptorq_create_metadata(sessionID C.uintptr_t, inputPath, outputDir *C.char,
	blockSize C.uintptr_t, returnLayout C.bool,
	resultBuffer *C.char, resultBufferLen C.uintptr_t) C.int32_t {
	if inputPath == nil || outputDir == nil || resultBuffer == nil {
		return codeGeneric
	}

	p, ok := registry.Lookup(uint64(sessionID))
	if !ok {
		return codeInvalidSession
	}

	result, err := p.CreateMetadata(C.GoString(inputPath), C.GoString(outputDir),
		uint64(blockSize), bool(returnLayout))
	if err != nil {
		return C.int32_t(processor.Code(err))
	}

	return writeResult(p, result, resultBuffer, resultBufferLen)
}

//export raptorq_decode_symbols
func raptorq_decode_symbols(sessionID C.uintptr_t, symbolsDir, outputPath, layoutPath *C.char) C.int32_t {
	if symbolsDir == nil || outputPath == nil || layoutPath == nil {
		return codeGeneric
	}

	p, ok := registry.Lookup(uint64(sessionID))
	if !ok {
		return codeInvalidSession
	}

	if err := p.DecodeSymbols(C.GoString(symbolsDir), C.GoString(outputPath), C.GoString(layoutPath)); err != nil {
		return C.int32_t(processor.LegacyCode(err))
	}
	return codeOK
}

//export raptorq_get_recommended_block_size
func raptorq_get_recommended_block_size(sessionID C.uintptr_t, fileSize C.uint64_t) C.uintptr_t {
	p, ok := registry.Lookup(uint64(sessionID))
	if !ok {
		return 0
	}
	return C.uintptr_t(p.RecommendedBlockSize(uint64(fileSize)))
}

//export raptorq_get_last_error
func raptorq_get_last_error(sessionID C.uintptr_t, errorBuffer *C.char, errorBufferLen C.uintptr_t) C.int32_t {
	if errorBuffer == nil {
		return codeGeneric
	}

	p, ok := registry.Lookup(uint64(sessionID))
	if !ok {
		return codeGeneric
	}

	// Truncation is a non-failure path: short buffers get as much of
	// the message as fits, always NUL-terminated.
	if !copyToBuffer(errorBuffer, errorBufferLen, p.LastError(), true) {
		return codeGeneric
	}
	return codeOK
}

//export raptorq_version
func raptorq_version(versionBuffer *C.char, versionBufferLen C.uintptr_t) C.int32_t {
	if versionBuffer == nil {
		return codeGeneric
	}
	if !copyToBuffer(versionBuffer, versionBufferLen, versionString, false) {
		return codeGeneric
	}
	return codeOK
}

// writeResult serializes an encode result into the caller's buffer.
func writeResult(p *processor.Processor, result *processor.Result,
	buf *C.char, bufLen C.uintptr_t) C.int32_t {
	payload, err := json.Marshal(result)
	if err != nil {
		p.RecordError(fmt.Errorf("serialize result: %w", err))
		return codeGeneric
	}
	if !copyToBuffer(buf, bufLen, string(payload), false) {
		p.RecordError(fmt.Errorf("%w: result is %d bytes, buffer holds %d",
			processor.ErrBufferTooSmall, len(payload)+1, int(bufLen)))
		return codeBufferTooSmall
	}
	return codeOK
}

func main() {}
