// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ChloeTigre/wimlib/lib/compress"
	"github.com/ChloeTigre/wimlib/lib/format"
)

// Reader streams the uncompressed content of one resource. It
// decompresses chunk-at-a-time for sequential consumers and supports
// seeking to a chunk index for random access.
type Reader struct {
	src       io.ReaderAt
	hdr       format.ResHdr
	chunkSize uint32

	// Compressed-resource geometry. chunkEnds[i] is the end offset
	// of chunk i relative to the resource start; chunkEnds of the
	// final chunk is SizeInWIM.
	numChunks    int
	tableSize    int64
	chunkEnds    []uint64
	decompressor compress.Decompressor

	// Current chunk buffer for sequential reads.
	chunkIndex int    // next chunk to decode
	buffered   []byte // undelivered tail of the current chunk
	remaining  uint64 // uncompressed bytes not yet delivered
	cbuf       []byte // scratch for compressed chunk bytes
	ubuf       []byte // scratch for decompressed chunk bytes
}

// OpenResource prepares a reader for the resource described by hdr.
// codec and chunkSize are the WIM-wide compression parameters; they
// are ignored for uncompressed resources.
func OpenResource(src io.ReaderAt, hdr format.ResHdr, codec compress.CodecID, chunkSize uint32) (*Reader, error) {
	r := &Reader{
		src:       src,
		hdr:       hdr,
		chunkSize: chunkSize,
		remaining: hdr.UncompressedSize,
	}
	if !hdr.IsCompressed() {
		if hdr.SizeInWIM != hdr.UncompressedSize {
			return nil, fmt.Errorf("%w: uncompressed resource has SizeInWIM %d but UncompressedSize %d",
				format.ErrCorrupt, hdr.SizeInWIM, hdr.UncompressedSize)
		}
		return r, nil
	}

	if chunkSize == 0 {
		return nil, fmt.Errorf("%w: compressed resource with zero chunk size", format.ErrInvalidParam)
	}
	if hdr.UncompressedSize == 0 {
		return nil, fmt.Errorf("%w: compressed resource with zero uncompressed size", format.ErrCorrupt)
	}
	decompressor, err := compress.NewDecompressor(codec, int(chunkSize))
	if err != nil {
		return nil, err
	}
	r.decompressor = decompressor
	r.numChunks = chunkCount(hdr.UncompressedSize, chunkSize)
	r.cbuf = make([]byte, chunkSize)
	r.ubuf = make([]byte, chunkSize)

	if err := r.readChunkTable(); err != nil {
		decompressor.Close()
		return nil, err
	}
	return r, nil
}

// readChunkTable loads and validates the chunk offset table.
func (r *Reader) readChunkTable() error {
	entryWidth := chunkTableEntryWidth(r.hdr.UncompressedSize)
	entries := r.numChunks - 1
	r.tableSize = int64(entries) * int64(entryWidth)
	r.chunkEnds = make([]uint64, r.numChunks)

	if entries > 0 {
		table := make([]byte, r.tableSize)
		if _, err := r.src.ReadAt(table, int64(r.hdr.OffsetInWIM)); err != nil {
			return fmt.Errorf("%w: reading chunk table: %v", format.ErrRead, err)
		}
		for i := 0; i < entries; i++ {
			if entryWidth == 4 {
				r.chunkEnds[i] = uint64(binary.LittleEndian.Uint32(table[i*4:]))
			} else {
				r.chunkEnds[i] = binary.LittleEndian.Uint64(table[i*8:])
			}
		}
	}
	r.chunkEnds[r.numChunks-1] = r.hdr.SizeInWIM

	// Ends must be strictly increasing and stay inside the resource,
	// and the first chunk must start after the table.
	prev := uint64(r.tableSize)
	for i, end := range r.chunkEnds {
		if end <= prev || end > r.hdr.SizeInWIM {
			return fmt.Errorf("%w: chunk %d has end offset %d (previous end %d, resource size %d)",
				format.ErrCorrupt, i, end, prev, r.hdr.SizeInWIM)
		}
		prev = end
	}
	return nil
}

// chunkUncompressedSize returns the uncompressed size of chunk i.
func (r *Reader) chunkUncompressedSize(i int) uint32 {
	if i < r.numChunks-1 {
		return r.chunkSize
	}
	tail := r.hdr.UncompressedSize - uint64(r.numChunks-1)*uint64(r.chunkSize)
	return uint32(tail)
}

// chunkStart returns the on-disk start of chunk i relative to the
// resource start.
func (r *Reader) chunkStart(i int) uint64 {
	if i == 0 {
		return uint64(r.tableSize)
	}
	return r.chunkEnds[i-1]
}

// decodeChunk reads and decompresses chunk i into the scratch buffer
// and returns the uncompressed bytes.
func (r *Reader) decodeChunk(i int) ([]byte, error) {
	start := r.chunkStart(i)
	end := r.chunkEnds[i]
	csize := end - start
	usize := r.chunkUncompressedSize(i)

	cdata := r.cbuf[:csize]
	if _, err := r.src.ReadAt(cdata, int64(r.hdr.OffsetInWIM)+int64(start)); err != nil {
		return nil, fmt.Errorf("%w: reading chunk %d: %v", format.ErrRead, i, err)
	}

	if csize == uint64(usize) {
		// Stored verbatim (incompressible chunk).
		return cdata, nil
	}

	udata := r.ubuf[:usize]
	if err := r.decompressor.DecompressBlock(cdata, udata); err != nil {
		return nil, fmt.Errorf("chunk %d: %w", i, err)
	}
	return udata, nil
}

// Read implements io.Reader over the uncompressed content.
func (r *Reader) Read(p []byte) (int, error) {
	if r.remaining == 0 && len(r.buffered) == 0 {
		return 0, io.EOF
	}

	if !r.hdr.IsCompressed() {
		n := uint64(len(p))
		if n > r.remaining {
			n = r.remaining
		}
		pos := int64(r.hdr.OffsetInWIM) + int64(r.hdr.UncompressedSize-r.remaining)
		read, err := r.src.ReadAt(p[:n], pos)
		r.remaining -= uint64(read)
		if err != nil && err != io.EOF {
			return read, fmt.Errorf("%w: reading raw resource: %v", format.ErrRead, err)
		}
		return read, nil
	}

	total := 0
	for len(p) > 0 {
		if len(r.buffered) == 0 {
			if r.chunkIndex >= r.numChunks {
				break
			}
			chunk, err := r.decodeChunk(r.chunkIndex)
			if err != nil {
				return total, err
			}
			r.chunkIndex++
			r.buffered = chunk
		}
		n := copy(p, r.buffered)
		r.buffered = r.buffered[n:]
		r.remaining -= uint64(n)
		p = p[n:]
		total += n
	}
	if total == 0 {
		return 0, io.EOF
	}
	return total, nil
}

// SeekChunk positions the sequential reader at the start of the given
// chunk index. Only valid for compressed resources.
func (r *Reader) SeekChunk(index int) error {
	if !r.hdr.IsCompressed() {
		return fmt.Errorf("%w: SeekChunk on an uncompressed resource", format.ErrInvalidParam)
	}
	if index < 0 || index >= r.numChunks {
		return fmt.Errorf("%w: chunk index %d out of range [0, %d)", format.ErrInvalidParam, index, r.numChunks)
	}
	r.chunkIndex = index
	r.buffered = nil
	r.remaining = r.hdr.UncompressedSize - uint64(index)*uint64(r.chunkSize)
	return nil
}

// ReadRange decodes exactly length bytes starting at the given
// uncompressed offset, locating the containing chunk and skipping
// prefix bytes. Used for packed members.
func (r *Reader) ReadRange(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || uint64(offset)+uint64(length) > r.hdr.UncompressedSize {
		return nil, fmt.Errorf("%w: range [%d, %d) outside resource of %d bytes",
			format.ErrInvalidParam, offset, offset+length, r.hdr.UncompressedSize)
	}
	out := make([]byte, length)
	if length == 0 {
		return out, nil
	}

	if !r.hdr.IsCompressed() {
		if _, err := r.src.ReadAt(out, int64(r.hdr.OffsetInWIM)+offset); err != nil {
			return nil, fmt.Errorf("%w: reading raw range: %v", format.ErrRead, err)
		}
		return out, nil
	}

	if err := r.SeekChunk(int(uint64(offset) / uint64(r.chunkSize))); err != nil {
		return nil, err
	}
	skip := uint64(offset) % uint64(r.chunkSize)
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
			return nil, fmt.Errorf("%w: skipping to range start: %v", format.ErrRead, err)
		}
	}
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: reading range: %v", format.ErrRead, err)
	}
	return out, nil
}

// Size returns the uncompressed size of the resource.
func (r *Reader) Size() uint64 {
	return r.hdr.UncompressedSize
}

// Close releases the reader's codec context.
func (r *Reader) Close() {
	if r.decompressor != nil {
		r.decompressor.Close()
		r.decompressor = nil
	}
}

// ReadAll reads the entire resource into memory and verifies the
// result against wantHash when it is nonzero. A mismatch after a
// complete read is a corruption error.
func ReadAll(src io.ReaderAt, hdr format.ResHdr, codec compress.CodecID, chunkSize uint32, wantHash format.Hash) ([]byte, error) {
	r, err := OpenResource(src, hdr, codec, chunkSize)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data := make([]byte, hdr.UncompressedSize)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: resource truncated", format.ErrRead)
		}
		return nil, err
	}
	if !wantHash.IsZero() {
		if got := format.HashBytes(data); got != wantHash {
			return nil, fmt.Errorf("%w: resource hash %s does not match expected %s",
				format.ErrCorrupt, got, wantHash)
		}
	}
	return data, nil
}
