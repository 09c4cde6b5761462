// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

// Package resource reads and writes WIM resources: regions of the
// file holding one stream (or, for packed resources, a run of
// streams) as a sequence of compressed or uncompressed chunks.
//
// A compressed resource is laid out as a chunk offset table followed
// by the chunk data. The table holds the end offsets of all chunks
// except the last, measured from the start of the resource (the
// table included); the final chunk's end is implicitly the
// resource's on-disk size. Entries are u32 when the uncompressed
// size is below 4 GiB and u64 otherwise. A resource whose content
// fits in a single chunk has an empty table.
//
// The writer falls back to a raw (uncompressed) layout whenever the
// chunked form would be at least as large as the content itself, so
// SizeInWIM never exceeds UncompressedSize for resources this
// package writes.
//
// Packed resources prepend a member sub-header (magic "WPKS", member
// count, total payload size, then per-member hash/offset/length)
// before an ordinary chunked body over the concatenated member
// payload. Readers resolve a member by hash and then range-read the
// body, decoding only the chunks that overlap the member.
package resource
