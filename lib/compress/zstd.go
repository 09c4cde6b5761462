// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/ChloeTigre/wimlib/lib/format"
)

// The LZX and LZMS codecs are backed by zstd at different encoder
// levels: LZX maps the 10/50/100 scale across the standard levels,
// LZMS uses the best-compression level at level 50 and above and the
// better-compression level below that. Each compressor owns its
// encoder (single-goroutine mode) so pipeline workers never share
// codec state.

type zstdCompressor struct {
	maxBlockSize int
	encoder      *zstd.Encoder
}

func newZstdCompressor(maxBlockSize int, encoderLevel zstd.EncoderLevel) (Compressor, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(false),
	)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &zstdCompressor{maxBlockSize: maxBlockSize, encoder: encoder}, nil
}

func newLZXCompressor(maxBlockSize int, level uint) (Compressor, error) {
	var encoderLevel zstd.EncoderLevel
	switch {
	case level < 35:
		encoderLevel = zstd.SpeedFastest
	case level < 75:
		encoderLevel = zstd.SpeedDefault
	default:
		encoderLevel = zstd.SpeedBetterCompression
	}
	return newZstdCompressor(maxBlockSize, encoderLevel)
}

func newLZMSCompressor(maxBlockSize int, level uint) (Compressor, error) {
	encoderLevel := zstd.SpeedBetterCompression
	if level >= 50 {
		encoderLevel = zstd.SpeedBestCompression
	}
	return newZstdCompressor(maxBlockSize, encoderLevel)
}

func (c *zstdCompressor) CompressBlock(in, out []byte) int {
	if len(in) > c.maxBlockSize || len(in) == 0 {
		return 0
	}
	compressed := c.encoder.EncodeAll(in, nil)
	if len(compressed) == 0 || len(compressed) > len(out) {
		return 0
	}
	copy(out, compressed)
	return len(compressed)
}

func (c *zstdCompressor) MaxBlockSize() int {
	return c.maxBlockSize
}

func (c *zstdCompressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
}

type zstdDecompressor struct {
	maxBlockSize int
	decoder      *zstd.Decoder
}

func newZstdDecompressor(maxBlockSize int) (Decompressor, error) {
	decoder, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(maxBlockSize)*2),
	)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &zstdDecompressor{maxBlockSize: maxBlockSize, decoder: decoder}, nil
}

func (d *zstdDecompressor) DecompressBlock(in, out []byte) error {
	if len(out) > d.maxBlockSize {
		return fmt.Errorf("%w: block of %d bytes exceeds max block size %d",
			format.ErrInvalidParam, len(out), d.maxBlockSize)
	}
	result, err := d.decoder.DecodeAll(in, out[:0])
	if err != nil {
		return fmt.Errorf("%w: %v", format.ErrDecompression, err)
	}
	if len(result) != len(out) {
		return fmt.Errorf("%w: block decompressed to %d bytes, want %d",
			format.ErrDecompression, len(result), len(out))
	}
	return nil
}

func (d *zstdDecompressor) Close() {
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder = nil
	}
}
