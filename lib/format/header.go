// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the on-disk size of the WIM header at offset 0.
const HeaderSize = 208

// WIM magic values. A standard WIM begins with "MSWIM\0\0\0"; a
// pipable WIM begins with "WLPWM\0\0\0" so one-pass consumers can
// recognize it without seeking.
var (
	Magic        = [8]byte{'M', 'S', 'W', 'I', 'M', 0, 0, 0}
	PipableMagic = [8]byte{'W', 'L', 'P', 'W', 'M', 0, 0, 0}
)

// Format versions.
const (
	// Version is the standard image WIM version.
	Version uint32 = 0x00010d00

	// PipableVersion is the version written into pipable WIMs.
	PipableVersion uint32 = 0x10000
)

// Header flag bits.
const (
	HdrFlagReserved        uint32 = 0x00000001
	HdrFlagCompression     uint32 = 0x00000002
	HdrFlagReadonly        uint32 = 0x00000004
	HdrFlagSpanned         uint32 = 0x00000008
	HdrFlagResourceOnly    uint32 = 0x00000010
	HdrFlagMetadataOnly    uint32 = 0x00000020
	HdrFlagWriteInProgress uint32 = 0x00000040
	HdrFlagRPFix           uint32 = 0x00000080

	HdrFlagCompressXPRESS uint32 = 0x00020000
	HdrFlagCompressLZX    uint32 = 0x00040000
	HdrFlagCompressLZMS   uint32 = 0x00080000
)

// hdrFlagCompressMask covers all codec selection bits.
const hdrFlagCompressMask = HdrFlagCompressXPRESS | HdrFlagCompressLZX | HdrFlagCompressLZMS

// GUIDSize is the size of the WIM instance identifier.
const GUIDSize = 16

// GUID identifies a WIM instance. It survives in-place overwrites
// when the caller asks to retain it.
type GUID [GUIDSize]byte

// String renders the GUID in the conventional 8-4-4-4-12 form.
func (g GUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		binary.BigEndian.Uint16(g[8:10]),
		g[10:16])
}

// Header is the fixed 208-byte record at offset 0 of every WIM file.
// Fields appear in on-disk order.
type Header struct {
	Magic         [8]byte
	Version       uint32
	Flags         uint32
	ChunkSize     uint32
	GUID          GUID
	PartNumber    uint16
	TotalParts    uint16
	ImageCount    uint32
	LookupTable   ResHdr
	XMLData       ResHdr
	BootMetadata  ResHdr
	BootIndex     uint32
	IntegrityData ResHdr
}

// Byte offsets of the header fields. The header size field at offset
// 8 always holds HeaderSize.
const (
	hdrOffMagic      = 0
	hdrOffHeaderSize = 8
	hdrOffVersion    = 12
	hdrOffFlags      = 16
	hdrOffChunkSize  = 20
	hdrOffGUID       = 24
	hdrOffPartNumber = 40
	hdrOffTotalParts = 42
	hdrOffImageCount = 44
	hdrOffLookup     = 48
	hdrOffXML        = 72
	hdrOffBoot       = 96
	hdrOffBootIndex  = 120
	hdrOffIntegrity  = 124
	// Bytes 148..208 are zero padding.
)

// IsPipable reports whether the header carries the pipable magic.
func (h *Header) IsPipable() bool {
	return h.Magic == PipableMagic
}

// HasIntegrityTable reports whether an integrity table is present.
func (h *Header) HasIntegrityTable() bool {
	return h.IntegrityData.OffsetInWIM != 0
}

// SetCompression records the codec selection bits for the given
// header codec flag (one of the HdrFlagCompress* values, or 0 for an
// uncompressed WIM), replacing any prior selection.
func (h *Header) SetCompression(codecFlag uint32) {
	h.Flags &^= HdrFlagCompression | hdrFlagCompressMask
	if codecFlag != 0 {
		h.Flags |= HdrFlagCompression | codecFlag
	}
}

// CompressionFlag returns the codec selection bits, or 0 when the
// WIM is uncompressed.
func (h *Header) CompressionFlag() uint32 {
	if h.Flags&HdrFlagCompression == 0 {
		return 0
	}
	return h.Flags & hdrFlagCompressMask
}

// PutHeader packs h into dst, which must be at least HeaderSize
// bytes. The padding region is zeroed.
func PutHeader(dst []byte, h *Header) error {
	if len(dst) < HeaderSize {
		return fmt.Errorf("%w: header buffer is %d bytes, want %d", ErrInvalidParam, len(dst), HeaderSize)
	}
	clear(dst[:HeaderSize])
	copy(dst[hdrOffMagic:], h.Magic[:])
	binary.LittleEndian.PutUint32(dst[hdrOffHeaderSize:], HeaderSize)
	binary.LittleEndian.PutUint32(dst[hdrOffVersion:], h.Version)
	binary.LittleEndian.PutUint32(dst[hdrOffFlags:], h.Flags)
	binary.LittleEndian.PutUint32(dst[hdrOffChunkSize:], h.ChunkSize)
	copy(dst[hdrOffGUID:], h.GUID[:])
	binary.LittleEndian.PutUint16(dst[hdrOffPartNumber:], h.PartNumber)
	binary.LittleEndian.PutUint16(dst[hdrOffTotalParts:], h.TotalParts)
	binary.LittleEndian.PutUint32(dst[hdrOffImageCount:], h.ImageCount)
	for _, field := range []struct {
		off int
		hdr ResHdr
	}{
		{hdrOffLookup, h.LookupTable},
		{hdrOffXML, h.XMLData},
		{hdrOffBoot, h.BootMetadata},
		{hdrOffIntegrity, h.IntegrityData},
	} {
		if err := PutResHdr(dst[field.off:], field.hdr); err != nil {
			return err
		}
	}
	binary.LittleEndian.PutUint32(dst[hdrOffBootIndex:], h.BootIndex)
	return nil
}

// GetHeader unpacks and validates a header from src. It distinguishes
// "not a WIM at all" from "a WIM of an unsupported version".
func GetHeader(src []byte) (*Header, error) {
	if len(src) < HeaderSize {
		return nil, fmt.Errorf("%w: %d header bytes, want %d", ErrNotAWIMFile, len(src), HeaderSize)
	}

	var h Header
	copy(h.Magic[:], src[hdrOffMagic:hdrOffMagic+8])
	if h.Magic != Magic && h.Magic != PipableMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrNotAWIMFile, src[:8])
	}

	headerSize := binary.LittleEndian.Uint32(src[hdrOffHeaderSize:])
	if headerSize < HeaderSize {
		return nil, fmt.Errorf("%w: header size field is %d, want at least %d", ErrNotAWIMFile, headerSize, HeaderSize)
	}

	h.Version = binary.LittleEndian.Uint32(src[hdrOffVersion:])
	wantVersion := Version
	if h.IsPipable() {
		wantVersion = PipableVersion
	}
	if h.Version != wantVersion {
		return nil, fmt.Errorf("%w: version 0x%x", ErrUnknownVersion, h.Version)
	}

	h.Flags = binary.LittleEndian.Uint32(src[hdrOffFlags:])
	h.ChunkSize = binary.LittleEndian.Uint32(src[hdrOffChunkSize:])
	copy(h.GUID[:], src[hdrOffGUID:hdrOffGUID+GUIDSize])
	h.PartNumber = binary.LittleEndian.Uint16(src[hdrOffPartNumber:])
	h.TotalParts = binary.LittleEndian.Uint16(src[hdrOffTotalParts:])
	h.ImageCount = binary.LittleEndian.Uint32(src[hdrOffImageCount:])

	var err error
	if h.LookupTable, err = GetResHdr(src[hdrOffLookup:]); err != nil {
		return nil, err
	}
	if h.XMLData, err = GetResHdr(src[hdrOffXML:]); err != nil {
		return nil, err
	}
	if h.BootMetadata, err = GetResHdr(src[hdrOffBoot:]); err != nil {
		return nil, err
	}
	if h.IntegrityData, err = GetResHdr(src[hdrOffIntegrity:]); err != nil {
		return nil, err
	}
	h.BootIndex = binary.LittleEndian.Uint32(src[hdrOffBootIndex:])

	return &h, nil
}

// IsWIMFile reports whether data begins with either WIM magic. Used
// by callers that probe files before committing to a full parse.
func IsWIMFile(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	return bytes.Equal(data[:8], Magic[:]) || bytes.Equal(data[:8], PipableMagic[:])
}
