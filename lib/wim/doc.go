// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

// Package wim is the container engine: it owns an opened WIM file's
// header, stream store, and image metadata, and implements the write
// planner that builds new WIMs or appends to existing ones in place.
//
// A WIM value is driven by a single control goroutine. All file I/O
// and all lookup table mutation happen on that goroutine; the only
// internal concurrency is the chunk compression worker pool, which
// never touches the table or the file descriptors.
//
// Writes follow a fixed order (streams, image metadata, lookup
// table, XML data, optional integrity table, then the header at
// offset 0) so the header always commits last. In-place overwrite
// appends strictly after the existing end of the file and leaves
// every old section untouched until the final header write: a crash
// at any earlier point leaves the previous WIM fully intact.
package wim
