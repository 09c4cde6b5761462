// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/binary"
	"fmt"
)

// LookupEntrySize is the on-disk size of one lookup table entry:
// a 24-byte reshdr, a 2-byte part number, a 4-byte reference count,
// and a 20-byte SHA-1.
const LookupEntrySize = 50

// LookupEntry is the on-disk form of a lookup table entry. The
// in-memory bookkeeping (unhashed state, resource location) lives in
// lib/lookup; this record is only what the format persists.
type LookupEntry struct {
	ResHdr     ResHdr
	PartNumber uint16
	RefCount   uint32
	Hash       Hash
}

// PutLookupEntry packs e into dst, which must be at least
// LookupEntrySize bytes.
func PutLookupEntry(dst []byte, e LookupEntry) error {
	if len(dst) < LookupEntrySize {
		return fmt.Errorf("%w: lookup entry buffer is %d bytes, want %d", ErrInvalidParam, len(dst), LookupEntrySize)
	}
	if err := PutResHdr(dst[0:ResHdrSize], e.ResHdr); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(dst[24:26], e.PartNumber)
	binary.LittleEndian.PutUint32(dst[26:30], e.RefCount)
	copy(dst[30:50], e.Hash[:])
	return nil
}

// GetLookupEntry unpacks a lookup table entry from src, which must
// be at least LookupEntrySize bytes.
func GetLookupEntry(src []byte) (LookupEntry, error) {
	if len(src) < LookupEntrySize {
		return LookupEntry{}, fmt.Errorf("%w: lookup entry buffer is %d bytes, want %d", ErrInvalidParam, len(src), LookupEntrySize)
	}
	hdr, err := GetResHdr(src[0:ResHdrSize])
	if err != nil {
		return LookupEntry{}, err
	}
	e := LookupEntry{
		ResHdr:     hdr,
		PartNumber: binary.LittleEndian.Uint16(src[24:26]),
		RefCount:   binary.LittleEndian.Uint32(src[26:30]),
	}
	copy(e.Hash[:], src[30:50])
	return e, nil
}
