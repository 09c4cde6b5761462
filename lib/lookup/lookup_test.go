// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package lookup

import (
	"errors"
	"testing"

	"github.com/ChloeTigre/wimlib/lib/format"
)

func entryFor(content string, offset uint64) *Entry {
	data := []byte(content)
	return &Entry{
		Hash: format.HashBytes(data),
		ResHdr: format.ResHdr{
			OffsetInWIM:      offset,
			SizeInWIM:        uint64(len(data)),
			UncompressedSize: uint64(len(data)),
		},
		RefCount: 1,
		Location: LocationBuffer{Data: data},
	}
}

func TestInsertOrCoalesceDedups(t *testing.T) {
	table := NewTable()

	first := entryFor("same content", 1000)
	second := entryFor("same content", 1000)

	got := table.InsertOrCoalesce(first)
	if got != first {
		t.Fatal("first insert did not keep the entry")
	}
	got = table.InsertOrCoalesce(second)
	if got != first {
		t.Error("duplicate insert did not coalesce onto the existing entry")
	}
	if first.RefCount != 2 {
		t.Errorf("RefCount = %d, want 2", first.RefCount)
	}
	if table.Len() != 1 {
		t.Errorf("Len = %d, want 1", table.Len())
	}
}

func TestDecrementMarksFree(t *testing.T) {
	table := NewTable()
	e := table.InsertOrCoalesce(entryFor("short-lived", 500))

	table.Decrement(e)
	if !e.Free || e.RefCount != 0 {
		t.Errorf("after decrement: RefCount=%d Free=%v", e.RefCount, e.Free)
	}

	// The entry is still present until a write reclaims it.
	if table.Lookup(e.Hash) != e {
		t.Error("free entry vanished before DropFree")
	}
	if dropped := table.DropFree(); dropped != 1 {
		t.Errorf("DropFree = %d, want 1", dropped)
	}
	if table.Lookup(e.Hash) != nil {
		t.Error("entry survived DropFree")
	}
}

func TestCoalesceRevivesFreeEntry(t *testing.T) {
	table := NewTable()
	e := table.InsertOrCoalesce(entryFor("revived", 500))
	table.Decrement(e)

	again := entryFor("revived", 500)
	got := table.InsertOrCoalesce(again)
	if got != e {
		t.Fatal("coalesce did not reuse the free entry")
	}
	if e.Free || e.RefCount != 1 {
		t.Errorf("revived entry: RefCount=%d Free=%v", e.RefCount, e.Free)
	}
}

func TestUnhashedLifecycle(t *testing.T) {
	table := NewTable()

	e := &Entry{Location: LocationStagingFile{Path: "/tmp/staging-0"}, RefCount: 1}
	table.AddUnhashed(e)

	if table.Len() != 0 {
		t.Error("unhashed entry appeared in the hash index")
	}
	if len(table.Unhashed()) != 1 {
		t.Fatal("unhashed list is empty")
	}
	if _, err := table.Serialize(); !errors.Is(err, format.ErrInvalidParam) {
		t.Errorf("Serialize with unhashed entries: got %v, want ErrInvalidParam", err)
	}

	hash := format.HashBytes([]byte("finalized"))
	final := table.FinalizeUnhashed(e, hash)
	if final != e || e.Unhashed {
		t.Error("finalize did not settle the entry")
	}
	if table.Lookup(hash) != e || len(table.Unhashed()) != 0 {
		t.Error("finalized entry not moved to the hash index")
	}

	// A second unhashed entry with identical content coalesces away.
	dup := &Entry{Location: LocationBuffer{Data: []byte("finalized")}, RefCount: 1}
	table.AddUnhashed(dup)
	got := table.FinalizeUnhashed(dup, hash)
	if got != e {
		t.Error("duplicate unhashed entry did not coalesce")
	}
	if e.RefCount != 2 {
		t.Errorf("RefCount = %d, want 2", e.RefCount)
	}
}

func TestEntriesDeterministicOrder(t *testing.T) {
	table := NewTable()
	table.InsertOrCoalesce(entryFor("at 3000", 3000))
	table.InsertOrCoalesce(entryFor("at 1000", 1000))
	table.InsertOrCoalesce(entryFor("at 2000", 2000))

	entries := table.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i-1].ResHdr.OffsetInWIM > entries[i].ResHdr.OffsetInWIM {
			t.Fatal("entries not offset-ascending")
		}
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	table := NewTable()
	a := table.InsertOrCoalesce(entryFor("stream a", 1000))
	b := table.InsertOrCoalesce(entryFor("stream b", 2000))
	b.RefCount = 5

	meta := entryFor("image metadata", 3000)
	meta.ResHdr.Flags |= format.ResFlagMetadata
	table.InsertOrCoalesce(meta)

	data, err := table.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if len(data) != 3*format.LookupEntrySize {
		t.Fatalf("serialized %d bytes, want %d", len(data), 3*format.LookupEntrySize)
	}

	parsed, metadata, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Len() != 2 {
		t.Errorf("parsed %d stream entries, want 2", parsed.Len())
	}
	if len(metadata) != 1 || metadata[0].Hash != meta.Hash {
		t.Errorf("metadata entries = %v", metadata)
	}
	if got := parsed.Lookup(b.Hash); got == nil || got.RefCount != 5 {
		t.Error("refcount not preserved through serialization")
	}
	if got := parsed.Lookup(a.Hash); got == nil || got.ResHdr != a.ResHdr {
		t.Error("reshdr not preserved through serialization")
	}
}

func TestParseRejectsRaggedTable(t *testing.T) {
	if _, _, err := Parse(make([]byte, format.LookupEntrySize+7)); !errors.Is(err, format.ErrCorrupt) {
		t.Errorf("got %v, want ErrCorrupt", err)
	}
}

func TestRecalculate(t *testing.T) {
	table := NewTable()
	a := table.InsertOrCoalesce(entryFor("stream a", 1000))
	b := table.InsertOrCoalesce(entryFor("stream b", 2000))
	c := table.InsertOrCoalesce(entryFor("stream c", 3000))

	// Seed with wrong counts, as buggy producers do.
	a.RefCount = 99
	b.RefCount = 0
	c.RefCount = 7

	ghost := format.HashBytes([]byte("referenced but missing"))
	missing := table.Recalculate([][]format.Hash{
		{a.Hash, b.Hash, a.Hash}, // image 1 references a twice
		{b.Hash, ghost},          // image 2
	})

	if a.RefCount != 2 {
		t.Errorf("a.RefCount = %d, want 2", a.RefCount)
	}
	if b.RefCount != 2 {
		t.Errorf("b.RefCount = %d, want 2", b.RefCount)
	}
	if c.RefCount != 0 || !c.Free {
		t.Errorf("unreferenced entry: RefCount=%d Free=%v", c.RefCount, c.Free)
	}
	if len(missing) != 1 || missing[0] != ghost {
		t.Errorf("missing = %v", missing)
	}
}

func TestTotalBytes(t *testing.T) {
	table := NewTable()
	table.InsertOrCoalesce(entryFor("1234567890", 1000))
	table.InsertOrCoalesce(entryFor("12345", 2000))
	if got := table.TotalBytes(); got != 15 {
		t.Errorf("TotalBytes = %d, want 15", got)
	}
}
