package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LumeraProtocol/rq-library/pkg/codec"
)

func newTestProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func TestRecommendedBlockSizeSmallFile(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, DefaultConfig())

	// With the default 16GB budget a 10MB file never needs splitting.
	assert.Equal(t, uint64(0), p.RecommendedBlockSize(10<<20))
	assert.Equal(t, uint64(0), p.RecommendedBlockSize(0))
}

func TestRecommendedBlockSizeLargeFile(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxMemoryMB = 100
	p := newTestProcessor(t, cfg)

	blockSize := p.RecommendedBlockSize(1 << 30)
	assert.NotZero(t, blockSize)
	assert.Zero(t, blockSize%uint64(cfg.SymbolSize))
}

func TestRecommendedBlockSizeBoundary(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxMemoryMB = 15
	p := newTestProcessor(t, cfg)

	// safe_bytes = floor(15MiB / 1.5)
	safeBytes := uint64(15<<20) * 2 / 3
	assert.Equal(t, uint64(0), p.RecommendedBlockSize(safeBytes-1))
	assert.NotZero(t, p.RecommendedBlockSize(safeBytes))
}

func TestRecommendedBlockSizeGrowsWithMemory(t *testing.T) {
	t.Parallel()

	fileSize := uint64(100) << 30
	var previous uint64
	for _, memoryMB := range []uint64{1_000, 2_000, 4_000, 8_000} {
		cfg := DefaultConfig()
		cfg.MaxMemoryMB = memoryMB
		p := newTestProcessor(t, cfg)

		blockSize := p.RecommendedBlockSize(fileSize)
		assert.NotZero(t, blockSize)
		assert.GreaterOrEqual(t, blockSize, previous,
			"more memory should never shrink the block size")
		previous = blockSize
	}
}

func TestRecommendedBlockSizeCapsSymbolCount(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxMemoryMB = 10_000_000
	p := newTestProcessor(t, cfg)

	fileSize := uint64(8) << 40
	blockSize := p.RecommendedBlockSize(fileSize)
	require.NotZero(t, blockSize)

	maxSymbols := uint64(65535) / uint64(cfg.RedundancyFactor)
	if maxSymbols > codec.MaxSourceSymbols {
		maxSymbols = codec.MaxSourceSymbols
	}
	assert.Equal(t, maxSymbols*uint64(cfg.SymbolSize), blockSize)
}

func TestRepairSymbols(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SymbolSize = 4096
	cfg.RedundancyFactor = 12
	p := newTestProcessor(t, cfg)

	// At most one symbol of data: the redundancy factor as-is.
	assert.Equal(t, 12, p.repairSymbols(1))
	assert.Equal(t, 12, p.repairSymbols(4096))

	// Larger blocks scale with ceil(size * (factor-1) / symbol_size).
	assert.Equal(t, 22, p.repairSymbols(2*4096))
	assert.Equal(t, 23, p.repairSymbols(2*4096+1))
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	for name, mutate := range map[string]func(*Config){
		"symbol-size":  func(c *Config) { c.SymbolSize = 0 },
		"redundancy":   func(c *Config) { c.RedundancyFactor = 0 },
		"memory":       func(c *Config) { c.MaxMemoryMB = 0 },
		"concurrency":  func(c *Config) { c.ConcurrencyLimit = 0 },
		"tiny-symbols": func(c *Config) { c.SymbolSize = 2 },
	} {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}
