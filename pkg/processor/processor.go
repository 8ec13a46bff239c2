// Package processor implements the block-oriented encode and decode
// pipeline: a planner that cuts an input file into blocks the memory
// budget can hold, an encoder that turns each block into
// content-addressed symbol files plus a layout record, and a decoder
// that reconstructs the file from a sufficient subset of those symbols.
//
// The underlying codec requires a whole block to be resident in memory,
// so every knob here exists to keep peak memory and parallelism bounded
// while preserving byte-exact reconstruction.
package processor

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcutil/base58"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"github.com/LumeraProtocol/rq-library/pkg/governor"
)

const (
	// DefaultSymbolSize is the default payload budget per encoded
	// symbol, in bytes.
	DefaultSymbolSize uint16 = 50000
	// DefaultRedundancyFactor drives the repair symbol count.
	DefaultRedundancyFactor uint8 = 12
	// DefaultMaxMemoryMB bounds the per-block working set estimate.
	DefaultMaxMemoryMB uint64 = 16 * 1024
	// DefaultConcurrencyLimit caps simultaneous operations per session.
	DefaultConcurrencyLimit uint64 = 4

	// blockDirPrefix names per-block symbol subdirectories.
	blockDirPrefix = "block_"

	minSymbolSize = 4
)

// Config is the immutable per-session configuration.
type Config struct {
	SymbolSize       uint16 `json:"symbol_size"`
	RedundancyFactor uint8  `json:"redundancy_factor"`
	MaxMemoryMB      uint64 `json:"max_memory_mb"`
	ConcurrencyLimit uint64 `json:"concurrency_limit"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		SymbolSize:       DefaultSymbolSize,
		RedundancyFactor: DefaultRedundancyFactor,
		MaxMemoryMB:      DefaultMaxMemoryMB,
		ConcurrencyLimit: DefaultConcurrencyLimit,
	}
}

func (c Config) validate() error {
	if c.SymbolSize < minSymbolSize {
		return fmt.Errorf("symbol size %d below minimum %d", c.SymbolSize, minSymbolSize)
	}
	if c.RedundancyFactor == 0 {
		return fmt.Errorf("redundancy factor must be at least 1")
	}
	if c.MaxMemoryMB == 0 {
		return fmt.Errorf("max memory must be at least 1MB")
	}
	if c.ConcurrencyLimit == 0 {
		return fmt.Errorf("concurrency limit must be at least 1")
	}
	return nil
}

// Processor is one engine instance.  It is safe for concurrent use;
// the governor bounds how many operations actually run at once.
type Processor struct {
	config Config
	gov    *governor.Governor
	logger *zap.Logger

	lastErrMu sync.Mutex
	lastErr   string
}

// Option adjusts a Processor at construction time.
type Option func(*Processor) error

// WithLogger attaches a logger.  The default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) error { p.logger = l; return nil }
}

// New validates the configuration and returns a ready Processor.
func New(cfg Config, opts ...Option) (*Processor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Processor{
		config: cfg,
		gov:    governor.New(cfg.ConcurrencyLimit, cfg.MaxMemoryMB),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Config returns the session configuration.
func (p *Processor) Config() Config {
	return p.config
}

// LastError returns the human-readable message of the most recent
// failure, or the empty string.
func (p *Processor) LastError() string {
	p.lastErrMu.Lock()
	defer p.lastErrMu.Unlock()
	return p.lastErr
}

func (p *Processor) setLastError(err error) {
	p.lastErrMu.Lock()
	defer p.lastErrMu.Unlock()
	p.lastErr = err.Error()
}

// RecordError stores a failure that happened outside the processor, for
// example at a binding boundary, so callers can retrieve it through the
// usual last-error path.
func (p *Processor) RecordError(err error) {
	p.setLastError(err)
}

// blockHash digests a block's original bytes for the layout record.
func blockHash(data []byte) string {
	sum := blake3.Sum256(data)
	return base58.Encode(sum[:])
}

func blockID(index int) string {
	return fmt.Sprintf("%s%d", blockDirPrefix, index)
}
