// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package format

import "errors"

// Stable error sentinels. These are the error codes surfaced across
// the public API; callers classify failures with errors.Is. Wrapped
// errors carry the operation context.
var (
	// ErrInvalidParam indicates a malformed argument: zero chunk
	// size, nil destination, an image index out of range.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrInvalidCompressionType indicates an unknown or unsupported
	// codec id.
	ErrInvalidCompressionType = errors.New("invalid compression type")

	// ErrInvalidChunkSize indicates a chunk size outside the valid
	// range for the selected codec (powers of two, 2^15 through
	// 2^26, codec-specific).
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrOpen indicates a failure opening the WIM file.
	ErrOpen = errors.New("could not open file")

	// ErrRead indicates a short or failed read.
	ErrRead = errors.New("read error")

	// ErrWrite indicates a short or failed write, seek, or fsync.
	ErrWrite = errors.New("write error")

	// ErrNotAWIMFile indicates the file does not begin with a WIM
	// magic value.
	ErrNotAWIMFile = errors.New("not a WIM file")

	// ErrUnknownVersion indicates a WIM magic with an unsupported
	// format version.
	ErrUnknownVersion = errors.New("unknown WIM version")

	// ErrDecompression indicates a chunk that failed to decompress
	// or decompressed to the wrong length.
	ErrDecompression = errors.New("decompression failed")

	// ErrCorrupt indicates structural corruption: an inconsistent
	// chunk table, a hash mismatch after a full-stream read, or a
	// truncated resource.
	ErrCorrupt = errors.New("WIM resource is corrupt")

	// ErrIntegrityNotOK indicates the integrity table does not match
	// the resource area bytes.
	ErrIntegrityNotOK = errors.New("integrity check failed")

	// ErrNoMem indicates an allocation failure reported by a codec.
	ErrNoMem = errors.New("out of memory")

	// ErrIsReadonly indicates the WIM header carries the readonly
	// flag and the caller did not ask to ignore it.
	ErrIsReadonly = errors.New("WIM is marked read-only")

	// ErrMetadataNotFound indicates an image whose metadata resource
	// is absent from the lookup table.
	ErrMetadataNotFound = errors.New("image metadata not found")
)

// Apply-side error sentinels. The filesystem apply adapters that
// materialize image trees surface these; they are declared here so
// the whole library shares one stable error surface.
var (
	ErrMkdir             = errors.New("could not create directory")
	ErrMknod             = errors.New("could not create special file")
	ErrLink              = errors.New("could not create hard link")
	ErrReparsePointFixup = errors.New("could not fix up absolute reparse point")
	ErrSetTimestamps     = errors.New("could not set timestamps")
	ErrSetSecurity       = errors.New("could not set security descriptor")
)
