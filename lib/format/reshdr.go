// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/binary"
	"fmt"
)

// ResHdrSize is the on-disk size of a resource header: a 7-byte
// compressed size, one flags byte, an 8-byte offset, and an 8-byte
// uncompressed size.
const ResHdrSize = 24

// Resource header flag bits.
const (
	// ResFlagFree marks an entry whose disk range is no longer
	// referenced and may be reclaimed on the next rebuild.
	ResFlagFree uint8 = 0x01

	// ResFlagMetadata marks an image metadata resource.
	ResFlagMetadata uint8 = 0x02

	// ResFlagCompressed marks a chunk-compressed resource.
	ResFlagCompressed uint8 = 0x04

	// ResFlagSpanned marks a resource continued in another split
	// part.
	ResFlagSpanned uint8 = 0x08

	// ResFlagPacked marks a stream stored inside a packed (solid)
	// resource shared with other streams.
	ResFlagPacked uint8 = 0x10
)

// maxSizeInWIM is the largest on-disk size representable in the
// 7-byte size field.
const maxSizeInWIM = 1<<56 - 1

// ResHdr describes one stored resource: where it lives in the WIM,
// how many bytes it occupies on disk, and how many bytes it expands
// to. A ResHdr inside a lookup entry is immutable once the resource
// is written; rewriting a stream produces a new entry.
type ResHdr struct {
	// OffsetInWIM is the byte offset of the resource from the start
	// of the WIM file.
	OffsetInWIM uint64

	// SizeInWIM is the on-disk (compressed) size in bytes, including
	// the chunk table for compressed resources. Must fit in 56 bits.
	SizeInWIM uint64

	// UncompressedSize is the size of the resource's content after
	// decompression.
	UncompressedSize uint64

	// Flags is a bitset of the ResFlag* values.
	Flags uint8
}

// IsCompressed reports whether the resource is chunk-compressed.
func (h ResHdr) IsCompressed() bool {
	return h.Flags&ResFlagCompressed != 0
}

// IsMetadata reports whether the resource holds image metadata.
func (h ResHdr) IsMetadata() bool {
	return h.Flags&ResFlagMetadata != 0
}

// IsPacked reports whether the entry references a stream inside a
// packed resource.
func (h ResHdr) IsPacked() bool {
	return h.Flags&ResFlagPacked != 0
}

// IsEmpty reports whether the header describes no resource at all
// (used for absent XML, boot metadata, and integrity sections).
func (h ResHdr) IsEmpty() bool {
	return h == ResHdr{}
}

// String implements fmt.Stringer for log output.
func (h ResHdr) String() string {
	s := fmt.Sprintf("%d bytes at %d", h.SizeInWIM, h.OffsetInWIM)
	if h.IsCompressed() {
		s += fmt.Sprintf(" (uncompresses to %d)", h.UncompressedSize)
	}
	return s
}

// PutResHdr packs h into dst, which must be at least ResHdrSize
// bytes. The size field occupies the low 7 bytes of the first 8-byte
// word with the flags byte above it.
func PutResHdr(dst []byte, h ResHdr) error {
	if len(dst) < ResHdrSize {
		return fmt.Errorf("%w: reshdr buffer is %d bytes, want %d", ErrInvalidParam, len(dst), ResHdrSize)
	}
	if h.SizeInWIM > maxSizeInWIM {
		return fmt.Errorf("%w: resource size %d exceeds the 7-byte size field", ErrInvalidParam, h.SizeInWIM)
	}
	binary.LittleEndian.PutUint64(dst[0:8], h.SizeInWIM|uint64(h.Flags)<<56)
	binary.LittleEndian.PutUint64(dst[8:16], h.OffsetInWIM)
	binary.LittleEndian.PutUint64(dst[16:24], h.UncompressedSize)
	return nil
}

// GetResHdr unpacks a resource header from src, which must be at
// least ResHdrSize bytes.
func GetResHdr(src []byte) (ResHdr, error) {
	if len(src) < ResHdrSize {
		return ResHdr{}, fmt.Errorf("%w: reshdr buffer is %d bytes, want %d", ErrInvalidParam, len(src), ResHdrSize)
	}
	sizeAndFlags := binary.LittleEndian.Uint64(src[0:8])
	return ResHdr{
		SizeInWIM:        sizeAndFlags & maxSizeInWIM,
		Flags:            uint8(sizeAndFlags >> 56),
		OffsetInWIM:      binary.LittleEndian.Uint64(src[8:16]),
		UncompressedSize: binary.LittleEndian.Uint64(src[16:24]),
	}, nil
}
