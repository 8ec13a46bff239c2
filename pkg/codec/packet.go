package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/sha3"
)

// packetHeaderSize is the fixed prefix of a serialized packet:
//
//	| block_code u32 | checksum u32 | payload ... |
//
// Both header fields are little-endian.  The checksum is the least
// significant 32 bits of the XXH64 digest of the payload.
const packetHeaderSize = 8

// Packet is a single encoded symbol: the block code the primitive used
// to generate it plus the symbol payload.
type Packet struct {
	BlockCode uint32
	Data      []byte
}

// MarshalBinary returns the deterministic byte form of the packet.  The
// same bytes are written to disk and hashed for the content address.
func (p *Packet) MarshalBinary() ([]byte, error) {
	dst := make([]byte, packetHeaderSize+len(p.Data))
	binary.LittleEndian.PutUint32(dst[0:], p.BlockCode)
	binary.LittleEndian.PutUint32(dst[4:], uint32(xxhash.Sum64(p.Data)))
	copy(dst[packetHeaderSize:], p.Data)
	return dst, nil
}

// UnmarshalBinary parses a serialized packet, rejecting truncated frames
// and payloads whose checksum does not match.
func (p *Packet) UnmarshalBinary(src []byte) error {
	if len(src) < packetHeaderSize {
		return fmt.Errorf("packet length mismatch %d vs %d", len(src), packetHeaderSize)
	}
	payload := src[packetHeaderSize:]
	expected := binary.LittleEndian.Uint32(src[4:])
	if actual := uint32(xxhash.Sum64(payload)); actual != expected {
		return fmt.Errorf("packet checksum mismatch: expected: %d, actual: %d", expected, actual)
	}
	p.BlockCode = binary.LittleEndian.Uint32(src[0:])
	p.Data = make([]byte, len(payload))
	copy(p.Data, payload)
	return nil
}

// Address returns the content address of a serialized packet: the
// base58 rendering of its SHA3-256 digest.  Symbol files are stored
// under this name.
func Address(serialized []byte) string {
	sum := sha3.Sum256(serialized)
	return base58.Encode(sum[:])
}
