// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"fmt"

	"github.com/ChloeTigre/wimlib/lib/format"
)

// verifyingCompressor wraps a Compressor and round-trips every
// successful block through a decompressor, comparing the result with
// the original input. Enabled by Config.VerifyCompression.
type verifyingCompressor struct {
	inner        Compressor
	decompressor Decompressor
	scratch      []byte

	// err records the first verification failure. CompressBlock has
	// no error return, so the failure is surfaced through
	// VerifyError.
	err error
}

// NewVerifying wraps compressor so every block it produces is checked
// against a fresh decompression. The returned compressor reports a
// corruption error through VerifyError; the caller must check it
// before trusting any output.
func NewVerifying(id CodecID, compressor Compressor) (Compressor, error) {
	decompressor, err := NewDecompressor(id, compressor.MaxBlockSize())
	if err != nil {
		compressor.Close()
		return nil, err
	}
	return &verifyingCompressor{
		inner:        compressor,
		decompressor: decompressor,
		scratch:      make([]byte, compressor.MaxBlockSize()),
	}, nil
}

func (v *verifyingCompressor) CompressBlock(in, out []byte) int {
	n := v.inner.CompressBlock(in, out)
	if n == 0 || v.err != nil {
		return n
	}

	buf := v.scratch[:len(in)]
	if err := v.decompressor.DecompressBlock(out[:n], buf); err != nil {
		v.err = fmt.Errorf("%w: compressed block failed to decompress: %v", format.ErrCorrupt, err)
		return n
	}
	if !bytes.Equal(buf, in) {
		v.err = fmt.Errorf("%w: compressed block did not decompress to its input", format.ErrCorrupt)
	}
	return n
}

func (v *verifyingCompressor) MaxBlockSize() int {
	return v.inner.MaxBlockSize()
}

func (v *verifyingCompressor) Close() {
	v.inner.Close()
	v.decompressor.Close()
}

// VerifyError returns the first round-trip failure observed by a
// verifying compressor, or nil. Returns nil for compressors that do
// not verify.
func VerifyError(c Compressor) error {
	if v, ok := c.(*verifyingCompressor); ok {
		return v.err
	}
	return nil
}
