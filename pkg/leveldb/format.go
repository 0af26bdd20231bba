package leveldb

import (
	"errors"
	"fmt"
)

const (
	// BlockSize is the size of a physical block in the log.
	BlockSize = 32 * 1024

	// HeaderSize is the size of a chunk header: checksum (4), length (2), type (1).
	HeaderSize = 7

	// WandbHeaderLength is the size of the file header preceding the first chunk.
	WandbHeaderLength = 7

	// WandbHeaderIdent opens every W&B transaction log.
	WandbHeaderIdent = ":W&B"

	// WandbHeaderMagic follows the ident in files written by the W&B SDK.
	WandbHeaderMagic = 0xBEE1

	// WandbVersion is the file format version written by the W&B SDK.
	WandbVersion = 0
)

// ChunkType identifies a chunk's role in reassembling a logical record.
type ChunkType uint8

const (
	// ChunkFull holds a complete record.
	ChunkFull ChunkType = 1
	// ChunkFirst opens a multi-chunk record.
	ChunkFirst ChunkType = 2
	// ChunkMiddle continues a multi-chunk record.
	ChunkMiddle ChunkType = 3
	// ChunkLast closes a multi-chunk record.
	ChunkLast ChunkType = 4
)

func (t ChunkType) valid() bool {
	return t >= ChunkFull && t <= ChunkLast
}

func (t ChunkType) String() string {
	switch t {
	case ChunkFull:
		return "FULL"
	case ChunkFirst:
		return "FIRST"
	case ChunkMiddle:
		return "MIDDLE"
	case ChunkLast:
		return "LAST"
	default:
		return fmt.Sprintf("ChunkType(%d)", uint8(t))
	}
}

// ErrInvalidFormat is returned when the file does not start with the W&B header.
var ErrInvalidFormat = errors.New("leveldb: invalid W&B file format")

// VerifyWandbHeader checks that buf starts with the W&B ident.
//
// Only the 4-byte ident is required to match. The magic and version bytes
// vary between SDK releases and are not validated.
func VerifyWandbHeader(buf []byte) error {
	if len(buf) < WandbHeaderLength {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidFormat, len(buf))
	}
	if ident := string(buf[:4]); ident != WandbHeaderIdent {
		return fmt.Errorf("%w: bad ident %q", ErrInvalidFormat, ident)
	}
	return nil
}
