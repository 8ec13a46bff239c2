package processor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/btree"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/LumeraProtocol/rq-library/pkg/codec"
	"github.com/LumeraProtocol/rq-library/pkg/layout"
)

// DecodeSymbols reconstructs the original file at outputPath from the
// symbol files under symbolsDir, driven by the layout record at
// layoutPath.
func (p *Processor) DecodeSymbols(symbolsDir, outputPath, layoutPath string) error {
	if err := p.decode(symbolsDir, outputPath, layoutPath); err != nil {
		p.setLastError(err)
		return err
	}
	return nil
}

func (p *Processor) decode(symbolsDir, outputPath, layoutPath string) (err error) {
	release, admitErr := p.gov.Admit()
	if admitErr != nil {
		return admitErr
	}
	defer release()

	lay, err := p.readLayout(layoutPath)
	if err != nil {
		return err
	}

	if info, statErr := os.Stat(symbolsDir); errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("%w: symbols directory %s", ErrFileNotFound, symbolsDir)
	} else if statErr != nil {
		return fmt.Errorf("%w: stat %q: %s", ErrIO, symbolsDir, statErr)
	} else if !info.IsDir() {
		return fmt.Errorf("%w: %q is not a directory", ErrInvalidPath, symbolsDir)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("%w: create output %q: %s", ErrIO, outputPath, err)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	if err := out.Truncate(int64(lay.FileSize)); err != nil {
		return fmt.Errorf("%w: truncate output to %d: %s", ErrIO, lay.FileSize, err)
	}

	p.logger.Debug("decoding file",
		zap.String("output", outputPath),
		zap.Uint64("size", lay.FileSize),
		zap.Int("blocks", len(lay.Blocks)))

	// Walk blocks in ascending offset order regardless of layout order.
	var blockErr error
	lay.Index().Ascend(func(i btree.Item) bool {
		b := i.(layout.Item).Block
		if e := p.decodeBlock(symbolsDir, out, b); e != nil {
			blockErr = e
			return false
		}
		return true
	})
	if blockErr != nil {
		return blockErr
	}

	return nil
}

func (p *Processor) readLayout(layoutPath string) (*layout.Layout, error) {
	data, err := os.ReadFile(layoutPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: layout file %s", ErrFileNotFound, layoutPath)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read layout %q: %s", ErrIO, layoutPath, err)
	}

	lay, err := layout.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecodingFailed, err)
	}
	return lay, nil
}

// decodeBlock reconstructs one block and writes it at its recorded
// offset.  Packets come from the filenames the layout lists; when none
// of them are readable, every file in the block directory is tried as a
// candidate packet.
func (p *Processor) decodeBlock(symbolsDir string, out *os.File, b *layout.Block) error {
	blockDir := filepath.Join(symbolsDir, b.BlockID)
	if info, err := os.Stat(blockDir); err != nil || !info.IsDir() {
		// Symbols may sit directly in the symbols directory when the
		// host flattened the block layout.
		blockDir = symbolsDir
	}

	var params codec.Params
	if err := params.UnmarshalBinary(b.EncoderParameters); err != nil {
		return fmt.Errorf("%w: block %s: %s", ErrDecodingFailed, b.BlockID, err)
	}

	dec, err := codec.NewDecoder(params)
	if err != nil {
		return fmt.Errorf("%w: block %s: %s", ErrDecodingFailed, b.BlockID, err)
	}

	done, readable := p.feedSymbols(dec, blockDir, b.Symbols, b.BlockID)
	if !done && readable == 0 {
		// None of the listed names resolved; fall back to scanning the
		// directory for candidate packets.
		names, err := listFiles(blockDir)
		if err != nil {
			return fmt.Errorf("%w: block %s: %s", ErrDecodingFailed, b.BlockID, err)
		}
		done, readable = p.feedSymbols(dec, blockDir, names, b.BlockID)
	}
	if !done {
		return fmt.Errorf("%w: insufficient symbols for block %s: %d readable",
			ErrDecodingFailed, b.BlockID, readable)
	}

	data := dec.Block()
	if uint64(len(data)) != b.Size {
		return fmt.Errorf("%w: block %s reconstructed %d bytes, want %d",
			ErrDecodingFailed, b.BlockID, len(data), b.Size)
	}

	if b.Hash != "" {
		if actual := blockHash(data); actual != b.Hash {
			return fmt.Errorf("%w: hash mismatch for block %s: expected %s, actual %s",
				ErrDecodingFailed, b.BlockID, b.Hash, actual)
		}
	}

	if _, err := out.WriteAt(data, int64(b.OriginalOffset)); err != nil {
		return fmt.Errorf("%w: write block %s at offset %d: %s", ErrIO, b.BlockID, b.OriginalOffset, err)
	}

	p.logger.Debug("decoded block", zap.Object("block", b))
	return nil
}

// feedSymbols reads the named symbol files one at a time and feeds them
// into the decoder until it completes.  Unreadable and malformed files
// are skipped; readable reports how many files were actually consumed.
func (p *Processor) feedSymbols(dec *codec.Decoder, dir string, names []string, blockID string) (done bool, readable int) {
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		readable++

		var pkt codec.Packet
		if err := pkt.UnmarshalBinary(raw); err != nil {
			p.logger.Debug("skipping malformed symbol",
				zap.String("block", blockID), zap.String("symbol", name), zap.Error(err))
			continue
		}

		ok, err := dec.AddPacket(pkt)
		if err != nil {
			p.logger.Debug("codec rejected symbol",
				zap.String("block", blockID), zap.String("symbol", name), zap.Error(err))
			continue
		}
		if ok {
			return true, readable
		}
	}
	return false, readable
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
