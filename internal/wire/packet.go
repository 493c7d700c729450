package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

const (
	packetMagic = "ICN1"

	TypeInterest = byte(0x01)
	TypeData     = byte(0x02)

	flagLZ4 = byte(0x01)

	// headerLen covers magic, type, flags, name length and chunk index.
	headerLen = len(packetMagic) + 1 + 1 + 2 + 4

	// MaxNameLen bounds encoded names.
	MaxNameLen = 1<<16 - 1

	// MaxDatagramLen is the largest packet every QUIC path accepts as a
	// single datagram frame.
	MaxDatagramLen = 1200

	// MaxPayloadLen bounds the decompressed size of a Data payload.
	MaxPayloadLen = MaxDatagramLen - headerLen
)

var (
	ErrShortPacket  = errors.New("wire: short packet")
	ErrBadMagic     = errors.New("wire: bad magic")
	ErrUnknownType  = errors.New("wire: unknown packet type")
	ErrNameTooLong  = errors.New("wire: name too long")
	ErrDecompress   = errors.New("wire: payload decompression failed")
	errNoSavingsLZ4 = errors.New("wire: payload not compressible")
)

// Packet is a decoded Interest or Data message.
type Packet struct {
	Type    byte
	Name    string
	Chunk   uint32
	Payload []byte
}

// IsInterest reports whether p asks for a chunk.
func (p Packet) IsInterest() bool { return p.Type == TypeInterest }

// IsData reports whether p carries a chunk.
func (p Packet) IsData() bool { return p.Type == TypeData }

// EncodeInterest encodes a request for chunk of name.
func EncodeInterest(name string, chunk uint32) ([]byte, error) {
	return encode(TypeInterest, 0, name, chunk, nil)
}

// EncodeData encodes a response. With compress set the payload is LZ4 block
// compressed when that makes it smaller, and sent as-is otherwise.
func EncodeData(name string, chunk uint32, payload []byte, compress bool) ([]byte, error) {
	if compress && len(payload) > 0 {
		if packed, err := compressBlock(payload); err == nil {
			return encodeCompressed(name, chunk, packed, len(payload))
		}
	}
	return encode(TypeData, 0, name, chunk, payload)
}

// Decode parses a packet produced by EncodeInterest or EncodeData.
// The returned payload does not alias buf.
func Decode(buf []byte) (Packet, error) {
	var p Packet
	if len(buf) < headerLen {
		return p, ErrShortPacket
	}
	if string(buf[:4]) != packetMagic {
		return p, ErrBadMagic
	}
	p.Type = buf[4]
	if p.Type != TypeInterest && p.Type != TypeData {
		return p, fmt.Errorf("%w: 0x%02x", ErrUnknownType, p.Type)
	}
	flags := buf[5]
	nameLen := int(binary.BigEndian.Uint16(buf[6:8]))
	off := 8
	if len(buf) < off+nameLen+4 {
		return p, ErrShortPacket
	}
	p.Name = string(buf[off : off+nameLen])
	off += nameLen
	p.Chunk = binary.BigEndian.Uint32(buf[off : off+4])
	off += 4

	rest := buf[off:]
	if flags&flagLZ4 != 0 {
		if len(rest) < 4 {
			return p, ErrShortPacket
		}
		rawLen := binary.BigEndian.Uint32(rest[:4])
		if rawLen > uint32(MaxPayloadLen) {
			return p, fmt.Errorf("%w: declared length %d exceeds %d", ErrDecompress, rawLen, MaxPayloadLen)
		}
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(rest[4:], out)
		if err != nil {
			return p, fmt.Errorf("%w: %v", ErrDecompress, err)
		}
		if n != int(rawLen) {
			return p, fmt.Errorf("%w: got %d bytes, declared %d", ErrDecompress, n, rawLen)
		}
		p.Payload = out
		return p, nil
	}
	if len(rest) > 0 {
		p.Payload = append([]byte(nil), rest...)
	}
	return p, nil
}

// PayloadBudget returns the largest Data payload for name that still fits
// in one datagram without compression.
func PayloadBudget(name string) int {
	return MaxDatagramLen - headerLen - len(name)
}

func encode(typ, flags byte, name string, chunk uint32, payload []byte) ([]byte, error) {
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	buf := make([]byte, headerLen+len(name)+len(payload))
	off := putHeader(buf, typ, flags, name, chunk)
	copy(buf[off:], payload)
	return buf, nil
}

func encodeCompressed(name string, chunk uint32, packed []byte, rawLen int) ([]byte, error) {
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	buf := make([]byte, headerLen+len(name)+4+len(packed))
	off := putHeader(buf, TypeData, flagLZ4, name, chunk)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(rawLen))
	copy(buf[off+4:], packed)
	return buf, nil
}

func putHeader(buf []byte, typ, flags byte, name string, chunk uint32) int {
	copy(buf[:4], packetMagic)
	buf[4] = typ
	buf[5] = flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(name)))
	off := 8 + copy(buf[8:], name)
	binary.BigEndian.PutUint32(buf[off:off+4], chunk)
	return off + 4
}

// compressBlock returns the LZ4 block for src, or errNoSavingsLZ4 when the
// block plus its length prefix would not be smaller than src.
func compressBlock(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 || n+4 >= len(src) {
		return nil, errNoSavingsLZ4
	}
	return dst[:n], nil
}
