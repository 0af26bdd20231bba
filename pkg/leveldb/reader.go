package leveldb

import (
	"encoding/binary"
	"io"
)

// Options configures a Reader.
type Options struct {
	// VerifyChecksums enables chunk checksum validation.
	//
	// A chunk whose checksum does not match is treated like an invalid
	// header: the reader advances one byte and keeps scanning.
	VerifyChecksums bool

	// CRCAlgo is the checksum used when VerifyChecksums is set.
	CRCAlgo CRCAlgo
}

// Stats counts what a Reader encountered while scanning.
type Stats struct {
	// Records is the number of logical records returned.
	Records int
	// Chunks is the number of well-formed chunks consumed.
	Chunks int
	// Resyncs is the number of times the reader advanced one byte past
	// an invalid chunk header.
	Resyncs int
	// PaddedBlocks is the number of block tails skipped as padding.
	PaddedBlocks int
	// ChecksumMismatches is the number of chunks rejected by checksum.
	ChecksumMismatches int
	// DroppedChunks is the number of MIDDLE or LAST chunks seen outside
	// a FIRST chain, plus FIRST chains replaced before completion.
	DroppedChunks int
	// Truncated is set if the data ended inside a chunk or a chain.
	Truncated bool
}

// Reader reassembles logical records from an in-memory W&B log.
//
// The reader never fails after construction: corruption is skipped and
// truncation ends the scan. It is not safe for concurrent use.
type Reader struct {
	buf  []byte
	off  int
	opts Options

	// chain holds the fragments of an open FIRST chain.
	chain   []byte
	inChain bool

	stats Stats
}

// NewReader validates the file header and returns a reader positioned at
// the first chunk.
func NewReader(buf []byte, opts Options) (*Reader, error) {
	if err := VerifyWandbHeader(buf); err != nil {
		return nil, err
	}
	return &Reader{buf: buf, off: WandbHeaderLength, opts: opts}, nil
}

// Offset is the position of the next unread byte.
func (r *Reader) Offset() int { return r.off }

// Stats returns counters for the scan so far.
func (r *Reader) Stats() Stats { return r.stats }

// Next returns the next logical record, or io.EOF when no complete record
// remains.
//
// A FULL record's payload aliases the input buffer and must not be modified.
func (r *Reader) Next() ([]byte, error) {
	for {
		if r.off >= len(r.buf) {
			return nil, r.finish()
		}

		// A block tail too short for a header is padding.
		if remaining := BlockSize - r.off%BlockSize; remaining < HeaderSize {
			r.skipToNextBlock()
			continue
		}

		if r.off+HeaderSize > len(r.buf) {
			return nil, r.truncate()
		}

		header := r.buf[r.off : r.off+HeaderSize]
		checksum := binary.LittleEndian.Uint32(header[0:4])
		length := int(binary.LittleEndian.Uint16(header[4:6]))
		chunkType := ChunkType(header[6])

		if length == 0 && chunkType == 0 {
			r.skipToNextBlock()
			continue
		}

		if !chunkType.valid() {
			r.off++
			r.stats.Resyncs++
			continue
		}

		start := r.off + HeaderSize
		end := start + length
		if end > len(r.buf) {
			return nil, r.truncate()
		}
		payload := r.buf[start:end]

		if r.opts.VerifyChecksums &&
			ChunkChecksum(r.opts.CRCAlgo, chunkType, payload) != checksum {
			r.off++
			r.stats.ChecksumMismatches++
			r.stats.Resyncs++
			continue
		}

		r.off = end
		r.stats.Chunks++

		if record, ok := r.accept(chunkType, payload); ok {
			r.stats.Records++
			return record, nil
		}
	}
}

// ReadAll returns every remaining logical record.
func (r *Reader) ReadAll() [][]byte {
	var records [][]byte
	for {
		record, err := r.Next()
		if err != nil {
			return records
		}
		records = append(records, record)
	}
}

// accept feeds a chunk into the reassembly state and reports whether it
// completed a record.
func (r *Reader) accept(chunkType ChunkType, payload []byte) ([]byte, bool) {
	switch chunkType {
	case ChunkFull:
		// An open chain survives a FULL chunk.
		return payload, true

	case ChunkFirst:
		if r.inChain {
			r.dropChain()
		}
		r.chain = append(r.chain[:0:0], payload...)
		r.inChain = true

	case ChunkMiddle:
		if !r.inChain {
			r.stats.DroppedChunks++
			return nil, false
		}
		r.chain = append(r.chain, payload...)

	case ChunkLast:
		if !r.inChain {
			r.stats.DroppedChunks++
			return nil, false
		}
		record := append(r.chain, payload...)
		r.chain = nil
		r.inChain = false
		return record, true
	}

	return nil, false
}

func (r *Reader) dropChain() {
	r.chain = nil
	r.inChain = false
	r.stats.DroppedChunks++
}

func (r *Reader) skipToNextBlock() {
	r.off += BlockSize - r.off%BlockSize
	r.stats.PaddedBlocks++
}

func (r *Reader) truncate() error {
	r.off = len(r.buf)
	r.stats.Truncated = true
	return r.finish()
}

func (r *Reader) finish() error {
	if r.inChain {
		r.chain = nil
		r.inChain = false
		r.stats.Truncated = true
	}
	return io.EOF
}
