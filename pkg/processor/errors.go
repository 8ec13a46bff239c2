package processor

import (
	"errors"

	"github.com/LumeraProtocol/rq-library/pkg/governor"
)

// Error kinds surfaced at the call boundary.  Wrapping preserves the
// kind, so callers classify with errors.Is and map to the stable C ABI
// codes with Code or LegacyCode.
var (
	// ErrIO is an underlying filesystem failure.
	ErrIO = errors.New("io error")
	// ErrFileNotFound covers an absent input file, symbol directory, or
	// layout file.
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidPath is a path that exists but cannot serve its role.
	ErrInvalidPath = errors.New("invalid path")
	// ErrEncodingFailed is a codec rejection or serialization failure
	// during encode.
	ErrEncodingFailed = errors.New("encoding failed")
	// ErrDecodingFailed covers exhausted packets, malformed packets, bad
	// transmission parameters, and codec-internal failures.
	ErrDecodingFailed = errors.New("decoding failed")
	// ErrInvalidSession is an unknown or freed session handle.
	ErrInvalidSession = errors.New("invalid session")
	// ErrBufferTooSmall is a caller-supplied buffer that cannot hold the
	// payload.
	ErrBufferTooSmall = errors.New("result buffer too small")

	// ErrMemoryLimit and ErrConcurrencyLimit are the governor's
	// rejections, re-exported so callers need only this package.
	ErrMemoryLimit      = governor.ErrMemoryLimit
	ErrConcurrencyLimit = governor.ErrConcurrencyLimit
)

// Code maps an error chain to the rich C ABI codes used by the metadata
// entry points.
func Code(err error) int32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrFileNotFound):
		return -12
	case errors.Is(err, ErrInvalidPath):
		return -13
	case errors.Is(err, ErrEncodingFailed):
		return -14
	case errors.Is(err, ErrDecodingFailed):
		return -15
	case errors.Is(err, ErrMemoryLimit):
		return -16
	case errors.Is(err, ErrConcurrencyLimit):
		return -17
	case errors.Is(err, ErrIO):
		return -11
	default:
		return -1
	}
}

// LegacyCode maps an error chain to the original fixed codes of
// raptorq_encode_file and raptorq_decode_symbols.
func LegacyCode(err error) int32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrFileNotFound):
		return -2
	case errors.Is(err, ErrEncodingFailed), errors.Is(err, ErrDecodingFailed):
		return -3
	case errors.Is(err, ErrInvalidSession):
		return -4
	case errors.Is(err, ErrBufferTooSmall):
		return -5
	default:
		return -1
	}
}
