// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/ChloeTigre/wimlib/lib/format"
	"github.com/ChloeTigre/wimlib/lib/pipeline"
)

// chunkTableEntryWidth returns the width of one chunk table entry for
// a resource of the given uncompressed size.
func chunkTableEntryWidth(uncompressedSize uint64) int {
	if uncompressedSize < 4*1024*1024*1024 {
		return 4
	}
	return 8
}

// chunkCount returns ceil(size / chunkSize).
func chunkCount(size uint64, chunkSize uint32) int {
	if size == 0 {
		return 0
	}
	return int((size + uint64(chunkSize) - 1) / uint64(chunkSize))
}

// WriteFromBuffer appends data to f as one resource, compressing it
// through pipe, and returns the finished resource header and the
// SHA-1 of data. baseFlags is ORed into the header flags (METADATA
// for image metadata resources); the COMPRESSED flag is managed here.
//
// If the chunked form would occupy at least as many bytes as the
// content, the resource is rewritten raw and the COMPRESSED flag is
// left clear. The resource content is held in memory for the
// duration, which is also what makes the fallback a cheap rewind.
func WriteFromBuffer(f *os.File, data []byte, baseFlags uint8, pipe pipeline.ChunkPipeline) (format.ResHdr, format.Hash, error) {
	hash := format.HashBytes(data)

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return format.ResHdr{}, hash, fmt.Errorf("%w: seeking to end: %v", format.ErrWrite, err)
	}

	if len(data) == 0 {
		// The empty stream: a zero-size resource with no bytes on
		// disk. Its hash is still the SHA-1 of no input.
		return format.ResHdr{OffsetInWIM: uint64(offset), Flags: baseFlags}, hash, nil
	}

	hdr, err := writeChunked(f, offset, data, baseFlags, pipe)
	if err != nil {
		return format.ResHdr{}, hash, err
	}

	if !hdr.IsCompressed() {
		// Chunking did not pay: rewind and store raw.
		hdr, err = rewriteRaw(f, offset, data, baseFlags)
		if err != nil {
			return format.ResHdr{}, hash, err
		}
	}
	return hdr, hash, nil
}

// writeChunked writes the chunk table + chunks layout at offset. When
// the result would be at least as large as the input it truncates
// back to offset and returns a header without the COMPRESSED flag so
// the caller can store raw instead.
func writeChunked(f *os.File, offset int64, data []byte, baseFlags uint8, pipe pipeline.ChunkPipeline) (format.ResHdr, error) {
	chunkSize := pipe.ChunkSize()
	numChunks := chunkCount(uint64(len(data)), chunkSize)
	entryWidth := chunkTableEntryWidth(uint64(len(data)))
	tableSize := int64(numChunks-1) * int64(entryWidth)

	// Reserve the chunk table; end offsets are known only after
	// compression, so the table is backpatched at commit.
	if tableSize > 0 {
		if err := writeZeros(f, tableSize); err != nil {
			return format.ResHdr{}, err
		}
	}

	chunkEnds := make([]uint64, 0, numChunks)
	written := uint64(tableSize)

	emit := func(c pipeline.Chunk) error {
		if _, err := f.Write(c.Data); err != nil {
			return fmt.Errorf("%w: writing chunk: %v", format.ErrWrite, err)
		}
		written += uint64(len(c.Data))
		chunkEnds = append(chunkEnds, written)
		return nil
	}
	drain := func(all bool) error {
		for {
			c, ok, err := pipe.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := emit(c); err != nil {
				return err
			}
			if !all {
				return nil
			}
		}
	}

	for pos := 0; pos < len(data); pos += int(chunkSize) {
		end := min(pos+int(chunkSize), len(data))
		for !pipe.Submit(data[pos:end]) {
			if err := drain(false); err != nil {
				return format.ResHdr{}, err
			}
		}
	}
	if err := drain(true); err != nil {
		return format.ResHdr{}, err
	}

	if written >= uint64(len(data)) {
		// Not worth it. Roll the file back; the caller stores raw.
		if err := f.Truncate(offset); err != nil {
			return format.ResHdr{}, fmt.Errorf("%w: truncating failed compression attempt: %v", format.ErrWrite, err)
		}
		return format.ResHdr{OffsetInWIM: uint64(offset), Flags: baseFlags}, nil
	}

	// Backpatch the chunk table: end offsets of every chunk except
	// the last (whose end is the resource size itself).
	if tableSize > 0 {
		table := make([]byte, tableSize)
		for i, end := range chunkEnds[:numChunks-1] {
			if entryWidth == 4 {
				binary.LittleEndian.PutUint32(table[i*4:], uint32(end))
			} else {
				binary.LittleEndian.PutUint64(table[i*8:], end)
			}
		}
		if _, err := f.WriteAt(table, offset); err != nil {
			return format.ResHdr{}, fmt.Errorf("%w: committing chunk table: %v", format.ErrWrite, err)
		}
	}

	return format.ResHdr{
		OffsetInWIM:      uint64(offset),
		SizeInWIM:        written,
		UncompressedSize: uint64(len(data)),
		Flags:            baseFlags | format.ResFlagCompressed,
	}, nil
}

// rewriteRaw stores data uncompressed at offset, truncating anything
// beyond it.
func rewriteRaw(f *os.File, offset int64, data []byte, baseFlags uint8) (format.ResHdr, error) {
	if _, err := f.WriteAt(data, offset); err != nil {
		return format.ResHdr{}, fmt.Errorf("%w: writing raw resource: %v", format.ErrWrite, err)
	}
	if err := f.Truncate(offset + int64(len(data))); err != nil {
		return format.ResHdr{}, fmt.Errorf("%w: truncating raw resource: %v", format.ErrWrite, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return format.ResHdr{}, fmt.Errorf("%w: reseeking after raw rewrite: %v", format.ErrWrite, err)
	}
	return format.ResHdr{
		OffsetInWIM:      uint64(offset),
		SizeInWIM:        uint64(len(data)),
		UncompressedSize: uint64(len(data)),
		Flags:            baseFlags,
	}, nil
}

// WriteUncompressed appends size bytes from r as a raw resource,
// hashing them on the way through.
func WriteUncompressed(f *os.File, r io.Reader, size int64, baseFlags uint8) (format.ResHdr, format.Hash, error) {
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return format.ResHdr{}, format.Hash{}, fmt.Errorf("%w: seeking to end: %v", format.ErrWrite, err)
	}

	hasher := format.NewHasher()
	n, err := io.Copy(f, io.TeeReader(io.LimitReader(r, size), hasher))
	if err != nil {
		return format.ResHdr{}, format.Hash{}, fmt.Errorf("%w: writing raw resource: %v", format.ErrWrite, err)
	}
	if n != size {
		return format.ResHdr{}, format.Hash{}, fmt.Errorf("%w: source ended after %d of %d bytes", format.ErrRead, n, size)
	}

	return format.ResHdr{
		OffsetInWIM:      uint64(offset),
		SizeInWIM:        uint64(size),
		UncompressedSize: uint64(size),
		Flags:            baseFlags,
	}, hasher.Sum(), nil
}

// writeZeros appends n zero bytes to f.
func writeZeros(f *os.File, n int64) error {
	const zeroBlock = 64 * 1024
	var zeros [zeroBlock]byte
	for n > 0 {
		step := int64(zeroBlock)
		if step > n {
			step = n
		}
		if _, err := f.Write(zeros[:step]); err != nil {
			return fmt.Errorf("%w: reserving chunk table: %v", format.ErrWrite, err)
		}
		n -= step
	}
	return nil
}
