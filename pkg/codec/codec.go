// Package codec adapts a fountain-code primitive to block-oriented
// encoding and decoding.  A block of bytes goes in, an ordered list of
// addressable packets comes out; feeding enough packets back in
// reproduces the block.  The primitive is treated as a black box: the
// only state shared between the two directions is the 12-byte
// transmission parameter blob.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	fountain "github.com/google/gofountain"
)

const (
	// ParamsSize is the wire size of the transmission parameters.
	ParamsSize = 12

	// symbolAlignment is the XOR granularity of the underlying codec.
	symbolAlignment = 4

	// minSourceSymbols and MaxSourceSymbols bound the number of source
	// symbols per block accepted by the Raptor primitive.
	minSourceSymbols = 4
	// MaxSourceSymbols is the largest source symbol count a single
	// block may use.
	MaxSourceSymbols = 8192

	// maxBlockCode bounds the encoding symbol IDs.  The primitive
	// truncates block codes to 16 bits, so source plus repair symbols
	// must not exceed it.
	maxBlockCode = math.MaxUint16
)

// Params carries everything a decoder needs to reconstruct one block.
// It serializes to exactly ParamsSize bytes, little-endian:
//
//	| transfer_length u64 | symbol_size u16 | source_symbols u16 |
type Params struct {
	// TransferLength is the exact byte length of the original block.
	TransferLength uint64
	// SymbolSize is the payload budget per symbol the block was encoded
	// with.
	SymbolSize uint16
	// SourceSymbols is the source symbol count K used by the primitive.
	SourceSymbols uint16
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *Params) MarshalBinary() ([]byte, error) {
	dst := make([]byte, ParamsSize)
	binary.LittleEndian.PutUint64(dst[0:], p.TransferLength)
	binary.LittleEndian.PutUint16(dst[8:], p.SymbolSize)
	binary.LittleEndian.PutUint16(dst[10:], p.SourceSymbols)
	return dst, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *Params) UnmarshalBinary(src []byte) error {
	if len(src) != ParamsSize {
		return fmt.Errorf("transmission parameters length mismatch %d vs %d", len(src), ParamsSize)
	}
	p.TransferLength = binary.LittleEndian.Uint64(src[0:])
	p.SymbolSize = binary.LittleEndian.Uint16(src[8:])
	p.SourceSymbols = binary.LittleEndian.Uint16(src[10:])
	if p.TransferLength == 0 || p.SymbolSize == 0 {
		return fmt.Errorf("transmission parameters contain zero fields: %+v", p)
	}
	if p.SourceSymbols < minSourceSymbols || p.SourceSymbols > MaxSourceSymbols {
		return fmt.Errorf("source symbols %d outside [%d, %d]",
			p.SourceSymbols, minSourceSymbols, MaxSourceSymbols)
	}
	return nil
}

// SourceSymbols returns the source symbol count the adapter will use for
// a block of dataLen bytes split into symbolSize units.  The result is
// clamped to the primitive's supported range; callers that need the
// unclamped count should compute ceil(dataLen/symbolSize) themselves.
func SourceSymbols(dataLen uint64, symbolSize uint16) int {
	k := int((dataLen + uint64(symbolSize) - 1) / uint64(symbolSize))
	if k < minSourceSymbols {
		return minSourceSymbols
	}
	if k > MaxSourceSymbols {
		return MaxSourceSymbols
	}
	return k
}

// Encode turns one block into source and repair packets.  The first K
// packets carry block codes 0..K-1 in ascending order and reproduce the
// source data (the code is systematic); the following repair packets
// carry codes K..K+repair-1 in emission order.
//
// Encode copies the block before handing it to the primitive, which is
// destructive to its input.
func Encode(block []byte, symbolSize uint16, repair int) (Params, []Packet, error) {
	if len(block) == 0 {
		return Params{}, nil, fmt.Errorf("cannot encode an empty block")
	}
	if symbolSize < symbolAlignment {
		return Params{}, nil, fmt.Errorf("symbol size %d below alignment %d", symbolSize, symbolAlignment)
	}
	need := (uint64(len(block)) + uint64(symbolSize) - 1) / uint64(symbolSize)
	if need > MaxSourceSymbols {
		return Params{}, nil, fmt.Errorf("block of %d bytes needs %d source symbols, max %d",
			len(block), need, MaxSourceSymbols)
	}

	k := SourceSymbols(uint64(len(block)), symbolSize)
	if k+repair > maxBlockCode {
		return Params{}, nil, fmt.Errorf("%d source plus %d repair symbols exceed the %d block code space",
			k, repair, maxBlockCode)
	}

	ids := make([]int64, k+repair)
	for i := range ids {
		ids[i] = int64(i)
	}

	// EncodeLTBlocks scribbles over the message while building the
	// intermediate blocks.
	msg := make([]byte, len(block))
	copy(msg, block)

	c := fountain.NewRaptorCodec(k, symbolAlignment)
	lt := fountain.EncodeLTBlocks(msg, ids, c)

	packets := make([]Packet, len(lt))
	for i, b := range lt {
		packets[i] = Packet{BlockCode: uint32(b.BlockCode), Data: b.Data}
	}

	params := Params{
		TransferLength: uint64(len(block)),
		SymbolSize:     symbolSize,
		SourceSymbols:  uint16(k),
	}
	return params, packets, nil
}

// Decoder reconstructs a single block from packets fed in any order.
type Decoder struct {
	params Params
	dec    fountain.Decoder
	block  []byte
}

// NewDecoder initializes a decoder from a block's transmission
// parameters.
func NewDecoder(params Params) (*Decoder, error) {
	if params.TransferLength == 0 || params.SymbolSize == 0 {
		return nil, fmt.Errorf("transmission parameters contain zero fields: %+v", params)
	}
	if params.SourceSymbols < minSourceSymbols || params.SourceSymbols > MaxSourceSymbols {
		return nil, fmt.Errorf("source symbols %d outside [%d, %d]",
			params.SourceSymbols, minSourceSymbols, MaxSourceSymbols)
	}
	c := fountain.NewRaptorCodec(int(params.SourceSymbols), symbolAlignment)
	return &Decoder{
		params: params,
		dec:    c.NewDecoder(int(params.TransferLength)),
	}, nil
}

// AddPacket feeds one packet into the decoder.  It returns true once the
// block is fully reconstructed; further packets are ignored.  A failure
// inside the primitive is returned as an error and leaves the decoder
// usable for subsequent packets.
func (d *Decoder) AddPacket(p Packet) (bool, error) {
	if d.block != nil {
		return true, nil
	}

	done, err := d.safeAdd(p)
	if err != nil {
		return false, err
	}
	if !done {
		return false, nil
	}

	block, err := d.safeDecode()
	if err != nil {
		return false, err
	}
	if block == nil {
		return false, nil
	}
	d.block = block
	return true, nil
}

// Block returns the reconstructed block, or nil while the decoder is
// still short of packets.
func (d *Decoder) Block() []byte {
	return d.block
}

// safeAdd isolates the primitive: a panic while absorbing a malformed
// packet must not take down the host process.
func (d *Decoder) safeAdd(p Packet) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			done = false
			err = fmt.Errorf("codec rejected packet %d: %v", p.BlockCode, r)
		}
	}()
	done = d.dec.AddBlocks([]fountain.LTBlock{{BlockCode: int64(p.BlockCode), Data: p.Data}})
	return done, nil
}

func (d *Decoder) safeDecode() (block []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			block = nil
			err = fmt.Errorf("codec failed to finalize block: %v", r)
		}
	}()
	return d.dec.Decode(), nil
}
