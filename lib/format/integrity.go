// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/binary"
	"fmt"
)

// Integrity table layout: a 12-byte header followed by one SHA-1 per
// slice of the resource area [HeaderSize, lookup table end).
const (
	// IntegrityHeaderSize is the fixed header: entry size, entry
	// count, and slice size, each u32.
	IntegrityHeaderSize = 12

	// IntegritySliceSize is the conventional number of resource-area
	// bytes covered by each integrity entry (10 MiB).
	IntegritySliceSize = 10 * 1024 * 1024
)

// IntegrityHeader describes an integrity table resource.
type IntegrityHeader struct {
	// EntrySize is the size of each table entry; always HashSize.
	EntrySize uint32

	// EntryCount is the number of hashed slices.
	EntryCount uint32

	// SliceSize is the number of resource-area bytes covered by each
	// entry (the final slice may be shorter).
	SliceSize uint32
}

// PutIntegrityHeader packs h into dst, which must be at least
// IntegrityHeaderSize bytes.
func PutIntegrityHeader(dst []byte, h IntegrityHeader) error {
	if len(dst) < IntegrityHeaderSize {
		return fmt.Errorf("%w: integrity header buffer is %d bytes, want %d", ErrInvalidParam, len(dst), IntegrityHeaderSize)
	}
	binary.LittleEndian.PutUint32(dst[0:4], h.EntrySize)
	binary.LittleEndian.PutUint32(dst[4:8], h.EntryCount)
	binary.LittleEndian.PutUint32(dst[8:12], h.SliceSize)
	return nil
}

// GetIntegrityHeader unpacks and validates an integrity table header.
func GetIntegrityHeader(src []byte) (IntegrityHeader, error) {
	if len(src) < IntegrityHeaderSize {
		return IntegrityHeader{}, fmt.Errorf("%w: integrity header buffer is %d bytes, want %d", ErrInvalidParam, len(src), IntegrityHeaderSize)
	}
	h := IntegrityHeader{
		EntrySize:  binary.LittleEndian.Uint32(src[0:4]),
		EntryCount: binary.LittleEndian.Uint32(src[4:8]),
		SliceSize:  binary.LittleEndian.Uint32(src[8:12]),
	}
	if h.EntrySize != HashSize {
		return IntegrityHeader{}, fmt.Errorf("%w: integrity entry size is %d, want %d", ErrCorrupt, h.EntrySize, HashSize)
	}
	if h.SliceSize == 0 {
		return IntegrityHeader{}, fmt.Errorf("%w: integrity slice size is zero", ErrCorrupt)
	}
	return h, nil
}

// IntegrityEntryCount returns the number of slices needed to cover
// areaSize bytes at the given slice size.
func IntegrityEntryCount(areaSize int64, sliceSize uint32) uint32 {
	if areaSize <= 0 {
		return 0
	}
	return uint32((areaSize + int64(sliceSize) - 1) / int64(sliceSize))
}
