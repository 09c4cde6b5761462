// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestResHdrRoundTrip(t *testing.T) {
	hdrs := []ResHdr{
		{},
		{OffsetInWIM: 208, SizeInWIM: 12345, UncompressedSize: 65536, Flags: ResFlagCompressed},
		{OffsetInWIM: 1 << 40, SizeInWIM: maxSizeInWIM, UncompressedSize: 1 << 50, Flags: ResFlagMetadata | ResFlagCompressed},
		{OffsetInWIM: 4096, SizeInWIM: 4096, UncompressedSize: 4096, Flags: ResFlagPacked | ResFlagCompressed},
	}
	for _, want := range hdrs {
		var buf [ResHdrSize]byte
		if err := PutResHdr(buf[:], want); err != nil {
			t.Fatalf("PutResHdr(%+v) failed: %v", want, err)
		}
		got, err := GetResHdr(buf[:])
		if err != nil {
			t.Fatalf("GetResHdr failed: %v", err)
		}
		if got != want {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestResHdrLayout(t *testing.T) {
	// The flags byte sits above the 7-byte size in the first word.
	h := ResHdr{OffsetInWIM: 0x1122334455667788, SizeInWIM: 0xAABBCCDDEEFF, UncompressedSize: 42, Flags: ResFlagCompressed | ResFlagMetadata}
	var buf [ResHdrSize]byte
	if err := PutResHdr(buf[:], h); err != nil {
		t.Fatal(err)
	}
	if buf[7] != h.Flags {
		t.Errorf("flags byte = %#x, want %#x", buf[7], h.Flags)
	}
	if got := binary.LittleEndian.Uint64(buf[0:8]) & maxSizeInWIM; got != h.SizeInWIM {
		t.Errorf("size field = %#x, want %#x", got, h.SizeInWIM)
	}
	if got := binary.LittleEndian.Uint64(buf[8:16]); got != h.OffsetInWIM {
		t.Errorf("offset field = %#x, want %#x", got, h.OffsetInWIM)
	}
}

func TestResHdrSizeOverflow(t *testing.T) {
	var buf [ResHdrSize]byte
	err := PutResHdr(buf[:], ResHdr{SizeInWIM: 1 << 56})
	if !errors.Is(err, ErrInvalidParam) {
		t.Errorf("PutResHdr with 2^56 size: got %v, want ErrInvalidParam", err)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	want := &Header{
		Magic:      Magic,
		Version:    Version,
		Flags:      HdrFlagCompression | HdrFlagCompressLZX | HdrFlagRPFix,
		ChunkSize:  32768,
		GUID:       GUID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		PartNumber: 1,
		TotalParts: 1,
		ImageCount: 3,
		LookupTable: ResHdr{
			OffsetInWIM: 9999, SizeInWIM: 150, UncompressedSize: 150,
		},
		XMLData: ResHdr{
			OffsetInWIM: 10149, SizeInWIM: 512, UncompressedSize: 512,
		},
		BootIndex: 2,
		IntegrityData: ResHdr{
			OffsetInWIM: 10661, SizeInWIM: 52, UncompressedSize: 52,
		},
	}

	var buf [HeaderSize]byte
	if err := PutHeader(buf[:], want); err != nil {
		t.Fatalf("PutHeader failed: %v", err)
	}
	got, err := GetHeader(buf[:])
	if err != nil {
		t.Fatalf("GetHeader failed: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	// The header size field is fixed.
	if size := binary.LittleEndian.Uint32(buf[8:12]); size != HeaderSize {
		t.Errorf("header size field = %d, want %d", size, HeaderSize)
	}
	// Padding must be zero.
	if !bytes.Equal(buf[148:], make([]byte, HeaderSize-148)) {
		t.Error("header padding is not zeroed")
	}
}

func TestHeaderFieldOffsets(t *testing.T) {
	h := &Header{Magic: Magic, Version: Version, ChunkSize: 0x8000, ImageCount: 7, BootIndex: 5}
	var buf [HeaderSize]byte
	if err := PutHeader(buf[:], h); err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(buf[20:24]); got != 0x8000 {
		t.Errorf("chunk size at offset 20 = %#x, want 0x8000", got)
	}
	if got := binary.LittleEndian.Uint32(buf[44:48]); got != 7 {
		t.Errorf("image count at offset 44 = %d, want 7", got)
	}
	if got := binary.LittleEndian.Uint32(buf[120:124]); got != 5 {
		t.Errorf("boot index at offset 120 = %d, want 5", got)
	}
}

func TestGetHeaderRejectsGarbage(t *testing.T) {
	var buf [HeaderSize]byte
	copy(buf[:], "definitely not a WIM")
	_, err := GetHeader(buf[:])
	if !errors.Is(err, ErrNotAWIMFile) {
		t.Errorf("GetHeader on garbage: got %v, want ErrNotAWIMFile", err)
	}
}

func TestGetHeaderRejectsUnknownVersion(t *testing.T) {
	h := &Header{Magic: Magic, Version: Version}
	var buf [HeaderSize]byte
	if err := PutHeader(buf[:], h); err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(buf[12:16], 0x00020000)
	_, err := GetHeader(buf[:])
	if !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("GetHeader with bad version: got %v, want ErrUnknownVersion", err)
	}
}

func TestHeaderPipable(t *testing.T) {
	h := &Header{Magic: PipableMagic, Version: PipableVersion}
	var buf [HeaderSize]byte
	if err := PutHeader(buf[:], h); err != nil {
		t.Fatal(err)
	}
	got, err := GetHeader(buf[:])
	if err != nil {
		t.Fatalf("GetHeader on pipable header failed: %v", err)
	}
	if !got.IsPipable() {
		t.Error("IsPipable = false for pipable magic")
	}
}

func TestHeaderSetCompression(t *testing.T) {
	var h Header
	h.SetCompression(HdrFlagCompressXPRESS)
	if h.Flags&HdrFlagCompression == 0 || h.CompressionFlag() != HdrFlagCompressXPRESS {
		t.Errorf("after SetCompression(XPRESS): flags %#x", h.Flags)
	}
	h.SetCompression(HdrFlagCompressLZMS)
	if h.CompressionFlag() != HdrFlagCompressLZMS {
		t.Errorf("codec flag not replaced: flags %#x", h.Flags)
	}
	h.SetCompression(0)
	if h.Flags&HdrFlagCompression != 0 || h.CompressionFlag() != 0 {
		t.Errorf("after SetCompression(0): flags %#x", h.Flags)
	}
}

func TestLookupEntryRoundTrip(t *testing.T) {
	want := LookupEntry{
		ResHdr: ResHdr{
			OffsetInWIM: 208, SizeInWIM: 100, UncompressedSize: 400, Flags: ResFlagCompressed,
		},
		PartNumber: 1,
		RefCount:   7,
		Hash:       HashBytes([]byte("stream content")),
	}
	var buf [LookupEntrySize]byte
	if err := PutLookupEntry(buf[:], want); err != nil {
		t.Fatalf("PutLookupEntry failed: %v", err)
	}
	got, err := GetLookupEntry(buf[:])
	if err != nil {
		t.Fatalf("GetLookupEntry failed: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
	// Hash occupies the trailing 20 bytes.
	if !bytes.Equal(buf[30:50], want.Hash[:]) {
		t.Error("hash is not at offset 30")
	}
}

func TestIntegrityHeaderRoundTrip(t *testing.T) {
	want := IntegrityHeader{EntrySize: HashSize, EntryCount: 9, SliceSize: IntegritySliceSize}
	var buf [IntegrityHeaderSize]byte
	if err := PutIntegrityHeader(buf[:], want); err != nil {
		t.Fatal(err)
	}
	got, err := GetIntegrityHeader(buf[:])
	if err != nil {
		t.Fatalf("GetIntegrityHeader failed: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestIntegrityHeaderRejectsBadEntrySize(t *testing.T) {
	var buf [IntegrityHeaderSize]byte
	if err := PutIntegrityHeader(buf[:], IntegrityHeader{EntrySize: 32, EntryCount: 1, SliceSize: 4096}); err != nil {
		t.Fatal(err)
	}
	_, err := GetIntegrityHeader(buf[:])
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("got %v, want ErrCorrupt", err)
	}
}

func TestIntegrityEntryCount(t *testing.T) {
	cases := []struct {
		area  int64
		slice uint32
		want  uint32
	}{
		{0, IntegritySliceSize, 0},
		{1, IntegritySliceSize, 1},
		{IntegritySliceSize, IntegritySliceSize, 1},
		{IntegritySliceSize + 1, IntegritySliceSize, 2},
		{25 * 1024 * 1024, IntegritySliceSize, 3},
	}
	for _, c := range cases {
		if got := IntegrityEntryCount(c.area, c.slice); got != c.want {
			t.Errorf("IntegrityEntryCount(%d, %d) = %d, want %d", c.area, c.slice, got, c.want)
		}
	}
}

func TestHashHelpers(t *testing.T) {
	data := []byte("the quick brown fox")
	direct := HashBytes(data)

	hasher := NewHasher()
	hasher.Write(data[:7])
	hasher.Write(data[7:])
	if incremental := hasher.Sum(); incremental != direct {
		t.Errorf("incremental hash %s != direct hash %s", incremental, direct)
	}

	streamed, n, err := HashReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashReader failed: %v", err)
	}
	if n != int64(len(data)) || streamed != direct {
		t.Errorf("HashReader = (%s, %d), want (%s, %d)", streamed, n, direct, len(data))
	}

	parsed, err := ParseHash(direct.String())
	if err != nil {
		t.Fatalf("ParseHash failed: %v", err)
	}
	if parsed != direct {
		t.Error("ParseHash did not round trip String")
	}

	if (Hash{}).IsZero() != true || direct.IsZero() {
		t.Error("IsZero misbehaves")
	}
}
