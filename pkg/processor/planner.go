package processor

import (
	"math"

	"github.com/LumeraProtocol/rq-library/pkg/codec"
)

const (
	// memorySafetyMargin discounts the configured budget before any
	// planning decision.
	memorySafetyMargin = 1.5

	mib = 1 << 20
)

// RecommendedBlockSize decides how an input of fileSize bytes should be
// cut.  Zero means the whole file fits comfortably and should be
// processed as a single block.
//
// Otherwise the target is a quarter of the discounted budget, rounded
// down to a whole number of symbols (at least one) and capped so that a
// block's source and repair symbols stay within the codec's limits.
func (p *Processor) RecommendedBlockSize(fileSize uint64) uint64 {
	maxMemoryBytes := p.config.MaxMemoryMB * mib
	safeBytes := uint64(float64(maxMemoryBytes) / memorySafetyMargin)
	if fileSize < safeBytes {
		return 0
	}

	symbolSize := uint64(p.config.SymbolSize)
	symbols := (safeBytes / 4) / symbolSize
	if symbols < 1 {
		symbols = 1
	}

	maxSymbols := uint64(codec.MaxSourceSymbols)
	if byCodeSpace := uint64(math.MaxUint16) / uint64(p.config.RedundancyFactor); byCodeSpace < maxSymbols {
		maxSymbols = byCodeSpace
	}
	if symbols > maxSymbols {
		symbols = maxSymbols
	}

	return symbols * symbolSize
}

// repairSymbols returns the repair symbol count for a block of the
// given size under the configured redundancy factor.
func (p *Processor) repairSymbols(size uint64) int {
	symbolSize := uint64(p.config.SymbolSize)
	factor := uint64(p.config.RedundancyFactor)
	if size <= symbolSize {
		return int(factor)
	}
	return int((size*(factor-1) + symbolSize - 1) / symbolSize)
}
