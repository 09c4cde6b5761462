// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

// Package lookup implements the stream store: the in-memory mapping
// from a stream's SHA-1 to its lookup table entry (LTE), with
// deduplication, reference counting, and the on-disk serialization
// of the table.
//
// Entries whose bytes are still being fed ("unhashed") are kept on a
// side list instead of the hash index; once their content hash is
// known they are coalesced into the index like any other insert.
// Entries whose refcount reaches zero are only marked; reclamation
// happens when the next write rebuilds the table.
package lookup

import (
	"fmt"
	"io"
	"sort"

	"github.com/ChloeTigre/wimlib/lib/compress"
	"github.com/ChloeTigre/wimlib/lib/format"
)

// Location says where a stream's bytes currently live. Exactly one
// variant applies to an entry at any time; consumers switch over all
// four.
type Location interface {
	isLocation()
}

// LocationInWIM places the stream inside an opened WIM file.
type LocationInWIM struct {
	// File reads the WIM the resource lives in.
	File io.ReaderAt

	// Codec and ChunkSize are that WIM's compression parameters.
	Codec     compress.CodecID
	ChunkSize uint32
}

// LocationExternalWIM places the stream in a different WIM than the
// one being written (a referenced resource WIM). The referenced WIM
// must outlive the referring one.
type LocationExternalWIM struct {
	File      io.ReaderAt
	Codec     compress.CodecID
	ChunkSize uint32
}

// LocationBuffer holds the stream's bytes in memory.
type LocationBuffer struct {
	Data []byte
}

// LocationStagingFile holds the stream in a staging file on disk,
// spilled there while its content was being produced.
type LocationStagingFile struct {
	Path string
}

func (LocationInWIM) isLocation()       {}
func (LocationExternalWIM) isLocation() {}
func (LocationBuffer) isLocation()      {}
func (LocationStagingFile) isLocation() {}

// Entry is a lookup table entry: the identity and bookkeeping of one
// content-addressed stream. The ResHdr is immutable once the stream
// is on disk; rewriting a stream produces a new Entry.
type Entry struct {
	// Hash is the SHA-1 of the stream's uncompressed content. Only
	// meaningful when Unhashed is false.
	Hash format.Hash

	// ResHdr describes the on-disk resource for in-WIM streams.
	ResHdr format.ResHdr

	// RefCount counts references from image metadata trees plus any
	// out-of-band references held by the caller. Zero is permitted
	// transiently; such entries are reclaimed at the next write.
	RefCount uint32

	// PartNumber is the split-WIM part holding the resource.
	PartNumber uint16

	// Unhashed marks an entry whose bytes are still being fed; the
	// final hash is not yet known and the entry is not in the hash
	// index.
	Unhashed bool

	// Free marks an entry whose refcount dropped to zero; the next
	// write drops it.
	Free bool

	// Location says where the bytes live right now.
	Location Location

	// Out is planner scratch: the resource header the entry received
	// in the file currently being written.
	Out format.ResHdr
}

// Table is the stream store. It is mutated only by the control
// goroutine that owns the WIM; no internal locking.
type Table struct {
	byHash   map[format.Hash]*Entry
	unhashed []*Entry
}

// NewTable creates an empty stream store.
func NewTable() *Table {
	return &Table{byHash: make(map[format.Hash]*Entry)}
}

// Len returns the number of hashed entries.
func (t *Table) Len() int {
	return len(t.byHash)
}

// Lookup returns the entry for hash, or nil.
func (t *Table) Lookup(hash format.Hash) *Entry {
	return t.byHash[hash]
}

// InsertOrCoalesce adds e to the store. If an entry with the same
// hash already exists, the existing entry absorbs e's references and
// is returned; e is discarded. Otherwise e itself is returned.
func (t *Table) InsertOrCoalesce(e *Entry) *Entry {
	if e.Unhashed {
		panic("lookup: InsertOrCoalesce on an unhashed entry")
	}
	if existing, ok := t.byHash[e.Hash]; ok {
		existing.RefCount += e.RefCount
		if existing.RefCount > 0 {
			existing.Free = false
		}
		return existing
	}
	t.byHash[e.Hash] = e
	return e
}

// Decrement drops one reference from e. At zero the entry is marked
// free; the bytes stay on disk until the next write reclaims them.
func (t *Table) Decrement(e *Entry) {
	if e.RefCount > 0 {
		e.RefCount--
	}
	if e.RefCount == 0 {
		e.Free = true
	}
}

// AddUnhashed registers an entry whose content is still being fed.
func (t *Table) AddUnhashed(e *Entry) {
	e.Unhashed = true
	t.unhashed = append(t.unhashed, e)
}

// Unhashed returns the entries still waiting for their content hash.
func (t *Table) Unhashed() []*Entry {
	return t.unhashed
}

// RemoveUnhashed discards an unhashed entry whose content never
// materialized (a failed capture).
func (t *Table) RemoveUnhashed(e *Entry) {
	for i, candidate := range t.unhashed {
		if candidate == e {
			t.unhashed = append(t.unhashed[:i], t.unhashed[i+1:]...)
			return
		}
	}
}

// FinalizeUnhashed records the computed hash for e and moves it into
// the hash index, coalescing with any existing entry for the same
// content. Returns the entry that now represents the stream.
func (t *Table) FinalizeUnhashed(e *Entry, hash format.Hash) *Entry {
	for i, candidate := range t.unhashed {
		if candidate == e {
			t.unhashed = append(t.unhashed[:i], t.unhashed[i+1:]...)
			break
		}
	}
	e.Unhashed = false
	e.Hash = hash
	return t.InsertOrCoalesce(e)
}

// Entries returns the hashed entries in the deterministic write
// order: ascending resource offset, ties broken by hash. Entries in
// packed resources share an offset, which is what makes the
// tie-break necessary.
func (t *Table) Entries() []*Entry {
	entries := make([]*Entry, 0, len(t.byHash))
	for _, e := range t.byHash {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ResHdr.OffsetInWIM != entries[j].ResHdr.OffsetInWIM {
			return entries[i].ResHdr.OffsetInWIM < entries[j].ResHdr.OffsetInWIM
		}
		return bytesLess(entries[i].Hash, entries[j].Hash)
	})
	return entries
}

func bytesLess(a, b format.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// ForEach visits the hashed entries in deterministic order.
func (t *Table) ForEach(visit func(*Entry) error) error {
	for _, e := range t.Entries() {
		if err := visit(e); err != nil {
			return err
		}
	}
	return nil
}

// DropFree removes entries marked free with refcount zero. Called by
// the write planner once it commits a layout that no longer includes
// them.
func (t *Table) DropFree() int {
	dropped := 0
	for hash, e := range t.byHash {
		if e.Free && e.RefCount == 0 {
			delete(t.byHash, hash)
			dropped++
		}
	}
	return dropped
}

// TotalBytes sums the uncompressed sizes of all hashed entries.
func (t *Table) TotalBytes() uint64 {
	var total uint64
	for _, e := range t.byHash {
		total += e.ResHdr.UncompressedSize
	}
	return total
}

// Recalculate zeroes every refcount and re-derives them from the
// given per-image reference lists (one slice of stream hashes per
// image, duplicates counted). Some producers write WIMs with wrong
// counts, so nothing that deletes streams may run before this has.
// Returns the hashes that were referenced but absent from the store.
func (t *Table) Recalculate(imageRefs [][]format.Hash) []format.Hash {
	for _, e := range t.byHash {
		e.RefCount = 0
		e.Free = false
	}
	var missing []format.Hash
	for _, refs := range imageRefs {
		for _, hash := range refs {
			if e := t.byHash[hash]; e != nil {
				e.RefCount++
			} else {
				missing = append(missing, hash)
			}
		}
	}
	for _, e := range t.byHash {
		if e.RefCount == 0 {
			e.Free = true
		}
	}
	return missing
}

// Serialize packs the hashed entries (metadata included) into the
// on-disk lookup table: a run of 50-byte records in deterministic
// offset-ascending order. Unhashed entries are a caller bug.
func (t *Table) Serialize() ([]byte, error) {
	if len(t.unhashed) != 0 {
		return nil, fmt.Errorf("%w: %d streams still unhashed at serialization", format.ErrInvalidParam, len(t.unhashed))
	}
	entries := t.Entries()
	out := make([]byte, len(entries)*format.LookupEntrySize)
	for i, e := range entries {
		record := format.LookupEntry{
			ResHdr:     e.ResHdr,
			PartNumber: e.PartNumber,
			RefCount:   e.RefCount,
			Hash:       e.Hash,
		}
		if err := format.PutLookupEntry(out[i*format.LookupEntrySize:], record); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Parse reads a serialized lookup table. Stream entries land in the
// returned Table; metadata entries (image directory trees) are
// returned separately in on-disk order so the caller can map them to
// image indexes.
func Parse(data []byte) (*Table, []*Entry, error) {
	if len(data)%format.LookupEntrySize != 0 {
		return nil, nil, fmt.Errorf("%w: lookup table size %d is not a multiple of %d",
			format.ErrCorrupt, len(data), format.LookupEntrySize)
	}

	table := NewTable()
	var metadata []*Entry
	for off := 0; off < len(data); off += format.LookupEntrySize {
		record, err := format.GetLookupEntry(data[off:])
		if err != nil {
			return nil, nil, err
		}
		e := &Entry{
			Hash:       record.Hash,
			ResHdr:     record.ResHdr,
			RefCount:   record.RefCount,
			PartNumber: record.PartNumber,
		}
		if record.ResHdr.IsMetadata() {
			metadata = append(metadata, e)
			continue
		}
		if prior := table.byHash[e.Hash]; prior != nil {
			// Producers occasionally emit duplicate records; fold
			// them rather than fail.
			prior.RefCount += e.RefCount
			continue
		}
		table.byHash[e.Hash] = e
	}
	return table, metadata, nil
}
