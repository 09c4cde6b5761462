// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package wim

import (
	"fmt"
	"io"
	"os"

	"github.com/ChloeTigre/wimlib/lib/format"
	"github.com/ChloeTigre/wimlib/lib/resource"
)

// IntegrityStatus is the tri-state result of an integrity check.
type IntegrityStatus int

const (
	// IntegrityOK: every slice hash matches.
	IntegrityOK IntegrityStatus = iota

	// IntegrityNotOK: at least one slice hash differs.
	IntegrityNotOK

	// IntegrityNonexistent: the WIM carries no integrity table.
	IntegrityNonexistent
)

func (s IntegrityStatus) String() string {
	switch s {
	case IntegrityOK:
		return "ok"
	case IntegrityNotOK:
		return "not ok"
	case IntegrityNonexistent:
		return "nonexistent"
	default:
		return fmt.Sprintf("IntegrityStatus(%d)", int(s))
	}
}

// CheckIntegrity verifies the integrity table against the resource
// area [header end, lookup table end). When the result is
// IntegrityNotOK the returned index identifies the first failing
// slice.
func (w *WIM) CheckIntegrity() (IntegrityStatus, int, error) {
	if !w.hdr.HasIntegrityTable() {
		return IntegrityNonexistent, 0, nil
	}
	if w.file == nil {
		return IntegrityNonexistent, 0, fmt.Errorf("%w: WIM has no backing file", format.ErrInvalidParam)
	}

	data, err := resource.ReadAll(w.file, w.hdr.IntegrityData, w.codec, w.chunkSize, format.Hash{})
	if err != nil {
		return IntegrityNotOK, 0, fmt.Errorf("reading integrity table: %w", err)
	}
	ihdr, err := format.GetIntegrityHeader(data)
	if err != nil {
		return IntegrityNotOK, 0, err
	}
	want := data[format.IntegrityHeaderSize:]
	if uint64(len(want)) != uint64(ihdr.EntryCount)*format.HashSize {
		return IntegrityNotOK, 0, fmt.Errorf("%w: integrity table has %d hash bytes for %d entries",
			format.ErrCorrupt, len(want), ihdr.EntryCount)
	}

	areaEnd := int64(w.hdr.LookupTable.OffsetInWIM + w.hdr.LookupTable.SizeInWIM)
	got, err := integritySlices(w.file, areaEnd, ihdr.SliceSize, nil)
	if err != nil {
		return IntegrityNotOK, 0, err
	}
	if uint32(len(got)) != ihdr.EntryCount {
		return IntegrityNotOK, 0, fmt.Errorf("%w: resource area needs %d slices, table has %d",
			format.ErrCorrupt, len(got), ihdr.EntryCount)
	}

	for i, hash := range got {
		var stored format.Hash
		copy(stored[:], want[i*format.HashSize:])
		if hash != stored {
			return IntegrityNotOK, i, nil
		}
	}
	return IntegrityOK, 0, nil
}

// integritySlices hashes the resource area [HeaderSize, areaEnd) in
// sliceSize pieces. report, when non-nil, observes byte progress.
func integritySlices(f *os.File, areaEnd int64, sliceSize uint32, report func(done, total uint64) error) ([]format.Hash, error) {
	areaSize := areaEnd - format.HeaderSize
	if areaSize < 0 {
		return nil, fmt.Errorf("%w: resource area ends at %d", format.ErrCorrupt, areaEnd)
	}

	count := format.IntegrityEntryCount(areaSize, sliceSize)
	hashes := make([]format.Hash, 0, count)
	buf := make([]byte, sliceSize)
	var done uint64

	for offset := int64(format.HeaderSize); offset < areaEnd; offset += int64(sliceSize) {
		n := int64(sliceSize)
		if offset+n > areaEnd {
			n = areaEnd - offset
		}
		if _, err := f.ReadAt(buf[:n], offset); err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: reading resource area at %d: %v", format.ErrRead, offset, err)
		}
		hashes = append(hashes, format.HashBytes(buf[:n]))
		done += uint64(n)
		if report != nil {
			if err := report(done, uint64(areaSize)); err != nil {
				return nil, err
			}
		}
	}
	return hashes, nil
}

// writeIntegrityTable computes the integrity table over
// [HeaderSize, lookupEnd) of out and appends it as an uncompressed
// resource, returning its header. Given identical resource-area
// bytes this produces byte-identical integrity resources.
func (w *WIM) writeIntegrityTable(out *os.File, lookupEnd int64) (format.ResHdr, error) {
	hashes, err := integritySlices(out, lookupEnd, format.IntegritySliceSize, func(done, total uint64) error {
		return w.reportProgress(ProgressInfo{
			Event:          EventCalcIntegrity,
			CompletedBytes: done,
			TotalBytes:     total,
		})
	})
	if err != nil {
		return format.ResHdr{}, err
	}

	data := make([]byte, format.IntegrityHeaderSize+len(hashes)*format.HashSize)
	ihdr := format.IntegrityHeader{
		EntrySize:  format.HashSize,
		EntryCount: uint32(len(hashes)),
		SliceSize:  format.IntegritySliceSize,
	}
	if err := format.PutIntegrityHeader(data, ihdr); err != nil {
		return format.ResHdr{}, err
	}
	for i, hash := range hashes {
		copy(data[format.IntegrityHeaderSize+i*format.HashSize:], hash[:])
	}

	hdr, _, err := resource.WriteUncompressed(out, bytesReader(data), int64(len(data)), 0)
	return hdr, err
}
