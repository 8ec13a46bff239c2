package processor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/LumeraProtocol/rq-library/pkg/codec"
	"github.com/LumeraProtocol/rq-library/pkg/layout"
)

// Result summarizes a completed encode (or metadata) run.
type Result struct {
	TotalSymbolsCount  uint64      `json:"total_symbols_count"`
	TotalRepairSymbols uint64      `json:"total_repair_symbols"`
	SymbolsDirectory   string      `json:"symbols_directory"`
	Blocks             []BlockInfo `json:"blocks"`
	LayoutFilePath     string      `json:"layout_file_path"`
	// LayoutContent carries the layout JSON inline when the caller asked
	// for it instead of a file.
	LayoutContent string `json:"layout_content,omitempty"`
}

// BlockInfo is the per-block summary inside a Result.
type BlockInfo struct {
	BlockID            string            `json:"block_id"`
	EncoderParameters  layout.Parameters `json:"encoder_parameters"`
	OriginalOffset     uint64            `json:"original_offset"`
	Size               uint64            `json:"size"`
	SymbolsCount       uint64            `json:"symbols_count"`
	SourceSymbolsCount uint64            `json:"source_symbols_count"`
	Hash               string            `json:"hash"`
}

// EncodeFile encodes inputPath into per-block symbol files under
// outputDir and writes the layout record last.  blockSize zero lets the
// planner choose; a non-zero value is honored as given.
func (p *Processor) EncodeFile(inputPath, outputDir string, blockSize uint64) (*Result, error) {
	res, err := p.process(inputPath, outputDir, blockSize, false, false)
	if err != nil {
		p.setLastError(err)
		return nil, err
	}
	return res, nil
}

// CreateMetadata runs the encode pipeline without writing symbol files:
// it computes symbol addresses and emits the layout, either to
// <outputDir>/_raptorq_layout.json or inline when returnLayout is set.
func (p *Processor) CreateMetadata(inputPath, outputDir string, blockSize uint64, returnLayout bool) (*Result, error) {
	res, err := p.process(inputPath, outputDir, blockSize, true, returnLayout)
	if err != nil {
		p.setLastError(err)
		return nil, err
	}
	return res, nil
}

func (p *Processor) process(inputPath, outputDir string, blockSize uint64, metadataOnly, returnLayout bool) (*Result, error) {
	release, err := p.gov.Admit()
	if err != nil {
		return nil, err
	}
	defer release()

	fileSize, err := statInput(inputPath)
	if err != nil {
		return nil, err
	}

	effectiveBlockSize, err := p.effectiveBlockSize(fileSize, blockSize)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("processing file",
		zap.String("path", inputPath),
		zap.Uint64("size", fileSize),
		zap.Uint64("block_size", effectiveBlockSize),
		zap.Bool("metadata_only", metadataOnly))

	if !(metadataOnly && returnLayout) {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create output dir %q: %s", ErrIO, outputDir, err)
		}
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %s", ErrIO, inputPath, err)
	}
	defer in.Close()

	blockCount := int((fileSize + effectiveBlockSize - 1) / effectiveBlockSize)
	result := &Result{
		SymbolsDirectory: outputDir,
		Blocks:           make([]BlockInfo, 0, blockCount),
	}
	blocks := make([]layout.Block, 0, blockCount)
	seen := make(map[string]string)

	for i := 0; i < blockCount; i++ {
		offset := uint64(i) * effectiveBlockSize
		size := effectiveBlockSize
		if remaining := fileSize - offset; remaining < size {
			size = remaining
		}

		data := make([]byte, size)
		if n, err := in.ReadAt(data, int64(offset)); err != nil && !(errors.Is(err, io.EOF) && n == len(data)) {
			return nil, fmt.Errorf("%w: read block %d at offset %d: %s", ErrIO, i, offset, err)
		}

		repair := p.repairSymbols(size)
		params, packets, err := codec.Encode(data, p.config.SymbolSize, repair)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %s", ErrEncodingFailed, i, err)
		}

		id := blockID(i)
		blockDir := filepath.Join(outputDir, id)
		if !metadataOnly {
			if err := os.MkdirAll(blockDir, 0o755); err != nil {
				return nil, fmt.Errorf("%w: create block dir %q: %s", ErrIO, blockDir, err)
			}
		}

		symbols := make([]string, 0, len(packets))
		for _, pkt := range packets {
			raw, err := pkt.MarshalBinary()
			if err != nil {
				return nil, fmt.Errorf("%w: serialize packet %d of block %d: %s", ErrEncodingFailed, pkt.BlockCode, i, err)
			}
			addr := codec.Address(raw)
			// Identical blocks produce identical packets, which share an
			// address but live in different block directories.  Only an
			// address reached by different packet bytes is a collision.
			digest := blockHash(raw)
			if prev, dup := seen[addr]; dup && prev != digest {
				return nil, fmt.Errorf("%w: content address collision on %s", ErrEncodingFailed, addr)
			}
			seen[addr] = digest

			if !metadataOnly {
				if err := os.WriteFile(filepath.Join(blockDir, addr), raw, 0o644); err != nil {
					return nil, fmt.Errorf("%w: write symbol %q: %s", ErrIO, addr, err)
				}
			}
			symbols = append(symbols, addr)
		}

		rawParams, err := params.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("%w: serialize parameters of block %d: %s", ErrEncodingFailed, i, err)
		}

		hash := blockHash(data)
		entry := layout.Block{
			BlockID:           id,
			OriginalOffset:    offset,
			Size:              size,
			EncoderParameters: layout.Parameters(rawParams),
			Symbols:           symbols,
			Hash:              hash,
		}
		blocks = append(blocks, entry)

		result.Blocks = append(result.Blocks, BlockInfo{
			BlockID:            id,
			EncoderParameters:  layout.Parameters(rawParams),
			OriginalOffset:     offset,
			Size:               size,
			SymbolsCount:       uint64(len(symbols)),
			SourceSymbolsCount: uint64(params.SourceSymbols),
			Hash:               hash,
		})
		result.TotalSymbolsCount += uint64(len(symbols))
		result.TotalRepairSymbols += uint64(repair)

		p.logger.Debug("encoded block", zap.Object("block", &entry))
	}

	lay := &layout.Layout{FileSize: fileSize, Blocks: blocks}
	layoutJSON, err := lay.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: serialize layout: %s", ErrEncodingFailed, err)
	}

	result.LayoutFilePath = filepath.Join(outputDir, layout.Filename)
	if returnLayout {
		result.LayoutContent = string(layoutJSON)
	} else {
		if err := os.WriteFile(result.LayoutFilePath, layoutJSON, 0o644); err != nil {
			return nil, fmt.Errorf("%w: write layout %q: %s", ErrIO, result.LayoutFilePath, err)
		}
		p.logger.Debug("saved layout file", zap.String("path", result.LayoutFilePath))
	}

	return result, nil
}

// effectiveBlockSize applies the planner when the caller passed zero
// and runs the single-block memory pre-flight.
func (p *Processor) effectiveBlockSize(fileSize, requested uint64) (uint64, error) {
	size := requested
	if size == 0 {
		size = p.RecommendedBlockSize(fileSize)
		if size == 0 {
			size = fileSize
		}
	}
	if size >= fileSize {
		// Single block: the whole file is resident at once.
		if err := p.gov.EnsureBlockFits(fileSize); err != nil {
			return 0, err
		}
		return fileSize, nil
	}
	return size, nil
}

func statInput(path string) (uint64, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return 0, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	case err != nil:
		return 0, fmt.Errorf("%w: stat %q: %s", ErrIO, path, err)
	case info.IsDir():
		return 0, fmt.Errorf("%w: %q is a directory", ErrInvalidPath, path)
	case info.Size() == 0:
		return 0, fmt.Errorf("%w: empty input: %s", ErrEncodingFailed, path)
	}
	return uint64(info.Size()), nil
}
