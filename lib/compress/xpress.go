// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/ChloeTigre/wimlib/lib/format"
)

// The XPRESS codec is backed by LZ4 block compression: a fast
// byte-oriented LZ77 family codec with the same latency profile the
// format expects from its "fast" compression type.

type xpressCompressor struct {
	maxBlockSize int
	level        lz4.CompressionLevel
	compressor   lz4.CompressorHC
	scratch      []byte
}

func newXPRESSCompressor(maxBlockSize int, level uint) (Compressor, error) {
	c := &xpressCompressor{
		maxBlockSize: maxBlockSize,
		scratch:      make([]byte, lz4.CompressBlockBound(maxBlockSize)),
	}
	// Map the 10/50/100 scale onto lz4's levels: the low third uses
	// the fast path, the rest scale through the HC levels.
	switch {
	case level < 35:
		c.level = lz4.Fast
	case level < 60:
		c.level = lz4.Level4
	case level < 85:
		c.level = lz4.Level6
	default:
		c.level = lz4.Level9
	}
	c.compressor = lz4.CompressorHC{Level: c.level}
	return c, nil
}

func (c *xpressCompressor) CompressBlock(in, out []byte) int {
	if len(in) > c.maxBlockSize || len(in) == 0 {
		return 0
	}

	var written int
	var err error
	if c.level == lz4.Fast {
		var fast lz4.Compressor
		written, err = fast.CompressBlock(in, c.scratch)
	} else {
		written, err = c.compressor.CompressBlock(in, c.scratch)
	}
	if err != nil || written == 0 || written > len(out) {
		// Incompressible, or it does not fit in len(in)-1 bytes:
		// the caller stores the chunk verbatim.
		return 0
	}
	copy(out, c.scratch[:written])
	return written
}

func (c *xpressCompressor) MaxBlockSize() int {
	return c.maxBlockSize
}

func (c *xpressCompressor) Close() {
	c.scratch = nil
}

type xpressDecompressor struct {
	maxBlockSize int
}

func newXPRESSDecompressor(maxBlockSize int) (Decompressor, error) {
	return &xpressDecompressor{maxBlockSize: maxBlockSize}, nil
}

func (d *xpressDecompressor) DecompressBlock(in, out []byte) error {
	if len(out) > d.maxBlockSize {
		return fmt.Errorf("%w: block of %d bytes exceeds max block size %d",
			format.ErrInvalidParam, len(out), d.maxBlockSize)
	}
	n, err := lz4.UncompressBlock(in, out)
	if err != nil {
		return fmt.Errorf("%w: xpress block: %v", format.ErrDecompression, err)
	}
	if n != len(out) {
		return fmt.Errorf("%w: xpress block decompressed to %d bytes, want %d",
			format.ErrDecompression, n, len(out))
	}
	return nil
}

func (d *xpressDecompressor) Close() {}
