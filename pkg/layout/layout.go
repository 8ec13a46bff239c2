// Package layout defines the metadata record that makes an encoded
// symbol set decodable: one entry per block with its transmission
// parameters, position in the original file, and symbol filenames.  The
// record is persisted as human-readable JSON next to the symbols and is
// the last artifact written by a successful encode.
package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/btree"
	"go.uber.org/zap/zapcore"

	"github.com/LumeraProtocol/rq-library/pkg/codec"
)

// Filename is the name of the layout file inside the symbols directory.
const Filename = "_raptorq_layout.json"

// Parameters is the per-block transmission parameter blob.  JSON form is
// an array of byte values, never base64, so the layout stays readable
// and compatible across language bindings.
type Parameters []byte

// MarshalJSON implements json.Marshaler.
func (p Parameters) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(p))
	for i, b := range p {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make(Parameters, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("encoder parameter %d out of byte range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*p = out
	return nil
}

// Block records everything needed to reconstruct one block: where its
// bytes belong in the original file and which symbol files feed its
// decoder.
type Block struct {
	// BlockID names the block and its symbol subdirectory, "block_<i>".
	BlockID string `json:"block_id"`
	// OriginalOffset is the byte offset of the block in the original file.
	OriginalOffset uint64 `json:"original_offset"`
	// Size is the exact number of original bytes the block covers.
	Size uint64 `json:"size"`
	// EncoderParameters initialize the block's decoder.  Always exactly
	// codec.ParamsSize bytes.
	EncoderParameters Parameters `json:"encoder_parameters"`
	// Symbols lists the symbol filenames in emission order: source
	// symbols in ascending index first, then repair symbols.
	Symbols []string `json:"symbols"`
	// Hash is the base58 BLAKE3-256 digest of the block's original
	// bytes.  Optional; decoders verify it when present.
	Hash string `json:"hash,omitempty"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (b *Block) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("BlockID", b.BlockID)
	enc.AddUint64("OriginalOffset", b.OriginalOffset)
	enc.AddUint64("Size", b.Size)
	enc.AddInt("Symbols", len(b.Symbols))
	return nil
}

// Layout is the persisted record for a whole file.  Blocks tile
// [0, FileSize) in ascending offset order.
type Layout struct {
	FileSize uint64  `json:"file_size"`
	Blocks   []Block `json:"blocks"`
}

// Item adapts a block for the offset-ordered index.
type Item struct {
	*Block
}

// Less implements btree.Item.
func (i Item) Less(than btree.Item) bool {
	return i.OriginalOffset < than.(Item).OriginalOffset
}

// Index builds a btree over the layout's blocks keyed by original
// offset.  Decoders walk it with Ascend to process blocks in file
// order regardless of the order they appear in the record.
func (l *Layout) Index() *btree.BTree {
	t := btree.New(16)
	for i := range l.Blocks {
		t.ReplaceOrInsert(Item{&l.Blocks[i]})
	}
	return t
}

// Validate checks the structural invariants of the record: required
// fields present, parameters exactly codec.ParamsSize bytes, and block
// offsets tiling [0, FileSize) with no gaps or overlaps.
func (l *Layout) Validate() error {
	if l.FileSize == 0 {
		return fmt.Errorf("layout has zero file_size")
	}
	if len(l.Blocks) == 0 {
		return fmt.Errorf("layout has an empty blocks array")
	}

	sorted := make([]*Block, len(l.Blocks))
	for i := range l.Blocks {
		sorted[i] = &l.Blocks[i]
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OriginalOffset < sorted[j].OriginalOffset
	})

	var next uint64
	for _, b := range sorted {
		if b.BlockID == "" {
			return fmt.Errorf("block at offset %d has no block_id", b.OriginalOffset)
		}
		if b.Size == 0 {
			return fmt.Errorf("block %s has zero size", b.BlockID)
		}
		if len(b.EncoderParameters) != codec.ParamsSize {
			return fmt.Errorf("block %s has %d encoder parameter bytes, want %d",
				b.BlockID, len(b.EncoderParameters), codec.ParamsSize)
		}
		if len(b.Symbols) == 0 {
			return fmt.Errorf("block %s lists no symbols", b.BlockID)
		}
		if b.OriginalOffset != next {
			return fmt.Errorf("block %s starts at %d, want %d: blocks must tile the file",
				b.BlockID, b.OriginalOffset, next)
		}
		next = b.OriginalOffset + b.Size
	}
	if next != l.FileSize {
		return fmt.Errorf("blocks cover %d bytes, file_size is %d", next, l.FileSize)
	}
	return nil
}

// Marshal renders the layout as indented JSON.
func (l *Layout) Marshal() ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}

// Parse decodes and validates a layout record.  Unknown fields are
// tolerated; missing required fields and non-tiling blocks are not.
func Parse(data []byte) (*Layout, error) {
	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Read loads a layout record from disk.
func Read(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// WriteFile persists the layout record at path.
func (l *Layout) WriteFile(path string) error {
	data, err := l.Marshal()
	if err != nil {
		return fmt.Errorf("serialize layout: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
