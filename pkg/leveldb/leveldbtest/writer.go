// Package leveldbtest builds W&B log files in memory for tests.
package leveldbtest

import (
	"bytes"
	"encoding/binary"

	"github.com/wandb/runlens/pkg/leveldb"
)

// Writer encodes records using the W&B log framing.
type Writer struct {
	buf  bytes.Buffer
	algo leveldb.CRCAlgo
}

// NewWriter returns a writer that has already emitted the W&B file header.
func NewWriter(algo leveldb.CRCAlgo) *Writer {
	w := &Writer{algo: algo}
	w.buf.WriteString(leveldb.WandbHeaderIdent)
	w.buf.WriteByte(leveldb.WandbHeaderMagic & 0xff)
	w.buf.WriteByte(leveldb.WandbHeaderMagic >> 8)
	w.buf.WriteByte(leveldb.WandbVersion)
	return w
}

// Bytes returns the encoded file so far.
func (w *Writer) Bytes() []byte {
	return bytes.Clone(w.buf.Bytes())
}

// Len is the current file size.
func (w *Writer) Len() int { return w.buf.Len() }

// WriteRecord frames a payload, splitting it into FIRST, MIDDLE and LAST
// chunks where it crosses block boundaries.
func (w *Writer) WriteRecord(payload []byte) {
	first := true
	for {
		w.padBlockTail()

		avail := leveldb.BlockSize - w.buf.Len()%leveldb.BlockSize - leveldb.HeaderSize
		n := min(len(payload), avail)
		last := n == len(payload)

		var chunkType leveldb.ChunkType
		switch {
		case first && last:
			chunkType = leveldb.ChunkFull
		case first:
			chunkType = leveldb.ChunkFirst
		case last:
			chunkType = leveldb.ChunkLast
		default:
			chunkType = leveldb.ChunkMiddle
		}

		w.WriteChunk(chunkType, payload[:n])
		payload = payload[n:]
		first = false

		if last {
			return
		}
	}
}

// WriteChunk writes one chunk with a valid checksum. The caller is
// responsible for the chunk fitting in the current block.
func (w *Writer) WriteChunk(chunkType leveldb.ChunkType, payload []byte) {
	w.WriteChunkHeader(
		leveldb.ChunkChecksum(w.algo, chunkType, payload),
		len(payload),
		byte(chunkType),
	)
	w.buf.Write(payload)
}

// WriteChunkHeader writes a raw chunk header.
func (w *Writer) WriteChunkHeader(checksum uint32, length int, chunkType byte) {
	var header [leveldb.HeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], checksum)
	binary.LittleEndian.PutUint16(header[4:6], uint16(length))
	header[6] = chunkType
	w.buf.Write(header[:])
}

// WriteRaw appends bytes without framing.
func (w *Writer) WriteRaw(b []byte) {
	w.buf.Write(b)
}

// PadToBlock fills the rest of the current block with zeros.
func (w *Writer) PadToBlock() {
	if rem := w.buf.Len() % leveldb.BlockSize; rem != 0 {
		w.buf.Write(make([]byte, leveldb.BlockSize-rem))
	}
}

// padBlockTail zero-fills a block tail that cannot hold a chunk header.
func (w *Writer) padBlockTail() {
	if rem := leveldb.BlockSize - w.buf.Len()%leveldb.BlockSize; rem < leveldb.HeaderSize {
		w.buf.Write(make([]byte, rem))
	}
}
