// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress defines the codec contract used by the WIM chunk
// pipeline and the concrete codecs behind the format's compression
// type ids (XPRESS, LZX, LZMS).
//
// A compressor operates on one chunk at a time. The output buffer
// handed to CompressBlock is always one byte smaller than the input,
// so a codec can never "succeed" by producing output at least as
// large as the input; it must return 0 instead, and the pipeline
// stores the chunk verbatim. Decompression requires the exact
// uncompressed size up front and fails on any mismatch.
//
// Dispatch is a closed switch over CodecID rather than a registration
// table: adding a codec is an enum extension plus one arm in each
// constructor. Every compressor owns its whole context; the parallel
// pipeline creates one per worker and never shares them.
//
// Compression levels use a 10/50/100 scale (low/medium/high). Level 0
// means "use the configured default", which falls back to
// DefaultLevel when no configuration is present. Defaults are carried
// in a Config record threaded through the write planner; there is no
// process-global level state.
package compress
