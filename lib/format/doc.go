// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

// Package format implements the on-disk primitives of the WIM
// container format: the 208-byte file header, the 24-byte resource
// header (reshdr), the 50-byte lookup table entry, the integrity
// table layout, and the SHA-1 hash type used as both content address
// and integrity check.
//
// Every on-disk integer is little-endian regardless of host, and all
// packing is explicit byte-offset arithmetic; structures are never
// cast from host memory layout. The pack/unpack pairs in this package
// are bit-exact: unpacking the packed form of any valid value yields
// the original value, and the byte layouts match the WIM format as
// produced by other implementations.
//
// The package also defines the stable error sentinels surfaced by the
// rest of the library (ErrNotAWIMFile, ErrUnknownVersion, ...), so
// that callers can classify failures with errors.Is without importing
// higher layers.
package format
