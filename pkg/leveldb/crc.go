// Modified from upstream sources
// https://github.com/golang/leveldb/blob/master/crc/crc.go

// Copyright 2011 The LevelDB-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leveldb

import (
	"hash/crc32"
)

var tableCRC32ieee = crc32.MakeTable(crc32.IEEE)
var tableCRC32c = crc32.MakeTable(crc32.Castagnoli)

// CRCAlgo selects the checksum used for chunk validation.
type CRCAlgo uint8

const (
	// CRCAlgoCustom is the masked CRC-32C used by upstream leveldb.
	CRCAlgoCustom CRCAlgo = iota

	// CRCAlgoIEEE is plain CRC-32 (IEEE), which W&B transaction logs use.
	CRCAlgoIEEE
)

// ParseCRCAlgo maps a configuration name to a CRCAlgo.
func ParseCRCAlgo(name string) (CRCAlgo, bool) {
	switch name {
	case "ieee", "":
		return CRCAlgoIEEE, true
	case "custom", "crc32c":
		return CRCAlgoCustom, true
	default:
		return 0, false
	}
}

func (a CRCAlgo) String() string {
	if a == CRCAlgoIEEE {
		return "ieee"
	}
	return "custom"
}

type CRC32c uint32

func NewCRC32c(b []byte) CRC32c {
	return CRC32c(0).Update(b)
}

func (c CRC32c) Update(b []byte) CRC32c {
	return CRC32c(crc32.Update(uint32(c), tableCRC32c, b))
}

// Value returns the rotated and offset checksum.
func (c CRC32c) Value() uint32 {
	return uint32(c>>15|c<<17) + 0xa282ead8
}

func CRCStandard(b []byte) uint32 {
	return crc32.Checksum(b, tableCRC32ieee)
}

func CRCCustom(b []byte) uint32 {
	return NewCRC32c(b).Value()
}

// ChunkChecksum computes the checksum of a chunk, which covers the type
// byte followed by the payload.
func ChunkChecksum(algo CRCAlgo, chunkType ChunkType, payload []byte) uint32 {
	if algo == CRCAlgoIEEE {
		c := crc32.Update(0, tableCRC32ieee, []byte{byte(chunkType)})
		return crc32.Update(c, tableCRC32ieee, payload)
	}
	return NewCRC32c([]byte{byte(chunkType)}).Update(payload).Value()
}
