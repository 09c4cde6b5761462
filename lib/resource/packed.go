// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/ChloeTigre/wimlib/lib/compress"
	"github.com/ChloeTigre/wimlib/lib/format"
	"github.com/ChloeTigre/wimlib/lib/pipeline"
)

// Packed resource sub-header layout.
const (
	packedMagic = "WPKS"

	// packedHeaderSize is magic + member count (u32) + total payload
	// size (u64) + codec id (u8) + 3 reserved bytes + chunk size
	// (u32). Packed resources carry their own compression
	// parameters, which may differ from the WIM-wide ones.
	packedHeaderSize = 4 + 4 + 8 + 1 + 3 + 4

	// packedMemberSize is hash + payload offset (u64) + length (u64).
	packedMemberSize = format.HashSize + 8 + 8
)

// PackedMember locates one stream inside a packed resource's
// uncompressed payload.
type PackedMember struct {
	Hash   format.Hash
	Offset uint64
	Size   uint64
}

// MemberData is one stream to be packed.
type MemberData struct {
	Hash format.Hash
	Data []byte
}

// WritePacked appends one packed resource holding every member's
// payload concatenated, and returns the container header plus the
// per-member resource headers to record in the lookup table. Member
// reshdrs share the container's offset and on-disk size and carry
// the PACKED flag; the member's own length lives in
// UncompressedSize. codec must be the codec pipe compresses with;
// it is recorded in the sub-header so readers need no out-of-band
// parameters.
func WritePacked(f *os.File, members []MemberData, codec compress.CodecID, pipe pipeline.ChunkPipeline) (format.ResHdr, []format.ResHdr, error) {
	if len(members) == 0 {
		return format.ResHdr{}, nil, fmt.Errorf("%w: packed resource needs at least one member", format.ErrInvalidParam)
	}

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return format.ResHdr{}, nil, fmt.Errorf("%w: seeking to end: %v", format.ErrWrite, err)
	}

	// Assemble the sub-header and the concatenated payload.
	var payloadSize uint64
	for i, m := range members {
		if len(m.Data) == 0 {
			return format.ResHdr{}, nil, fmt.Errorf("%w: packed member %d is empty", format.ErrInvalidParam, i)
		}
		payloadSize += uint64(len(m.Data))
	}

	subHeader := make([]byte, packedHeaderSize+len(members)*packedMemberSize)
	copy(subHeader, packedMagic)
	binary.LittleEndian.PutUint32(subHeader[4:8], uint32(len(members)))
	binary.LittleEndian.PutUint64(subHeader[8:16], payloadSize)
	subHeader[16] = uint8(codec)
	binary.LittleEndian.PutUint32(subHeader[20:24], pipe.ChunkSize())

	payload := make([]byte, 0, payloadSize)
	for i, m := range members {
		entry := subHeader[packedHeaderSize+i*packedMemberSize:]
		copy(entry, m.Hash[:])
		binary.LittleEndian.PutUint64(entry[format.HashSize:], uint64(len(payload)))
		binary.LittleEndian.PutUint64(entry[format.HashSize+8:], uint64(len(m.Data)))
		payload = append(payload, m.Data...)
	}

	if _, err := f.Write(subHeader); err != nil {
		return format.ResHdr{}, nil, fmt.Errorf("%w: writing packed sub-header: %v", format.ErrWrite, err)
	}

	// The chunked body is an ordinary resource over the payload,
	// nested after the sub-header.
	bodyOffset := offset + int64(len(subHeader))
	body, err := writeChunked(f, bodyOffset, payload, 0, pipe)
	if err != nil {
		return format.ResHdr{}, nil, err
	}
	if !body.IsCompressed() {
		body, err = rewriteRaw(f, bodyOffset, payload, 0)
		if err != nil {
			return format.ResHdr{}, nil, err
		}
	}

	container := format.ResHdr{
		OffsetInWIM:      uint64(offset),
		SizeInWIM:        uint64(len(subHeader)) + body.SizeInWIM,
		UncompressedSize: payloadSize,
		Flags:            format.ResFlagPacked | body.Flags&format.ResFlagCompressed,
	}

	memberHdrs := make([]format.ResHdr, len(members))
	for i, m := range members {
		memberHdrs[i] = format.ResHdr{
			OffsetInWIM:      container.OffsetInWIM,
			SizeInWIM:        container.SizeInWIM,
			UncompressedSize: uint64(len(m.Data)),
			Flags:            container.Flags,
		}
	}
	return container, memberHdrs, nil
}

// Packed reads members out of a packed resource.
type Packed struct {
	src       io.ReaderAt
	body      format.ResHdr
	codec     compress.CodecID
	chunkSize uint32
	members   []PackedMember
}

// OpenPacked parses the sub-header of a packed resource. hdr may be
// the container header or any member's header (they share the
// container geometry). The compression parameters come from the
// sub-header itself.
func OpenPacked(src io.ReaderAt, hdr format.ResHdr) (*Packed, error) {
	if !hdr.IsPacked() {
		return nil, fmt.Errorf("%w: resource is not packed", format.ErrInvalidParam)
	}

	fixed := make([]byte, packedHeaderSize)
	if _, err := src.ReadAt(fixed, int64(hdr.OffsetInWIM)); err != nil {
		return nil, fmt.Errorf("%w: reading packed sub-header: %v", format.ErrRead, err)
	}
	if string(fixed[:4]) != packedMagic {
		return nil, fmt.Errorf("%w: bad packed resource magic %q", format.ErrCorrupt, fixed[:4])
	}
	memberCount := binary.LittleEndian.Uint32(fixed[4:8])
	payloadSize := binary.LittleEndian.Uint64(fixed[8:16])
	codec := compress.CodecID(fixed[16])
	chunkSize := binary.LittleEndian.Uint32(fixed[20:24])
	if memberCount == 0 {
		return nil, fmt.Errorf("%w: packed resource with zero members", format.ErrCorrupt)
	}
	if !codec.Valid() {
		return nil, fmt.Errorf("%w: packed resource codec id %d", format.ErrInvalidCompressionType, codec)
	}

	table := make([]byte, int(memberCount)*packedMemberSize)
	if _, err := src.ReadAt(table, int64(hdr.OffsetInWIM)+packedHeaderSize); err != nil {
		return nil, fmt.Errorf("%w: reading packed member table: %v", format.ErrRead, err)
	}

	members := make([]PackedMember, memberCount)
	var covered uint64
	for i := range members {
		entry := table[i*packedMemberSize:]
		copy(members[i].Hash[:], entry[:format.HashSize])
		members[i].Offset = binary.LittleEndian.Uint64(entry[format.HashSize:])
		members[i].Size = binary.LittleEndian.Uint64(entry[format.HashSize+8:])
		if members[i].Offset != covered || members[i].Offset+members[i].Size > payloadSize {
			return nil, fmt.Errorf("%w: packed member %d has range [%d, %d) in a %d-byte payload",
				format.ErrCorrupt, i, members[i].Offset, members[i].Offset+members[i].Size, payloadSize)
		}
		covered += members[i].Size
	}
	if covered != payloadSize {
		return nil, fmt.Errorf("%w: packed members cover %d of %d payload bytes", format.ErrCorrupt, covered, payloadSize)
	}

	subHeaderSize := uint64(packedHeaderSize + len(table))
	body := format.ResHdr{
		OffsetInWIM:      hdr.OffsetInWIM + subHeaderSize,
		SizeInWIM:        hdr.SizeInWIM - subHeaderSize,
		UncompressedSize: payloadSize,
		Flags:            hdr.Flags & format.ResFlagCompressed,
	}
	return &Packed{
		src:       src,
		body:      body,
		codec:     codec,
		chunkSize: chunkSize,
		members:   members,
	}, nil
}

// Members returns the member table in payload order.
func (p *Packed) Members() []PackedMember {
	return p.members
}

// ReadMember decodes the payload of the member with the given hash.
func (p *Packed) ReadMember(hash format.Hash) ([]byte, error) {
	for _, m := range p.members {
		if m.Hash == hash {
			return p.readRange(m)
		}
	}
	return nil, fmt.Errorf("%w: stream %s is not in this packed resource", format.ErrInvalidParam, hash)
}

func (p *Packed) readRange(m PackedMember) ([]byte, error) {
	r, err := OpenResource(p.src, p.body, p.codec, p.chunkSize)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadRange(int64(m.Offset), int64(m.Size))
}
