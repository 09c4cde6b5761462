// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"fmt"

	"github.com/ChloeTigre/wimlib/lib/format"
)

// CodecID identifies a compression type. The numeric values are
// format constants stored (indirectly, via header flag bits) in the
// WIM file.
type CodecID uint8

const (
	// None stores chunks uncompressed.
	None CodecID = 0

	// XPRESS is the fast, low-ratio codec (the Windows default).
	XPRESS CodecID = 1

	// LZX is the higher-ratio codec used by most install images.
	LZX CodecID = 2

	// LZMS is the highest-ratio codec, used for solid archives.
	LZMS CodecID = 3
)

// String returns the conventional codec name.
func (id CodecID) String() string {
	switch id {
	case None:
		return "none"
	case XPRESS:
		return "xpress"
	case LZX:
		return "lzx"
	case LZMS:
		return "lzms"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// ParseCodecID parses a codec name as printed by String.
func ParseCodecID(name string) (CodecID, error) {
	switch name {
	case "none":
		return None, nil
	case "xpress":
		return XPRESS, nil
	case "lzx":
		return LZX, nil
	case "lzms":
		return LZMS, nil
	default:
		return 0, fmt.Errorf("%w: %q", format.ErrInvalidCompressionType, name)
	}
}

// HeaderFlag returns the WIM header codec selection bit for this
// codec, or 0 for None.
func (id CodecID) HeaderFlag() uint32 {
	switch id {
	case XPRESS:
		return format.HdrFlagCompressXPRESS
	case LZX:
		return format.HdrFlagCompressLZX
	case LZMS:
		return format.HdrFlagCompressLZMS
	default:
		return 0
	}
}

// CodecFromHeaderFlag maps the header codec selection bits back to a
// CodecID. Zero bits mean an uncompressed WIM.
func CodecFromHeaderFlag(flag uint32) (CodecID, error) {
	switch flag {
	case 0:
		return None, nil
	case format.HdrFlagCompressXPRESS:
		return XPRESS, nil
	case format.HdrFlagCompressLZX:
		return LZX, nil
	case format.HdrFlagCompressLZMS:
		return LZMS, nil
	default:
		return 0, fmt.Errorf("%w: header codec bits %#x", format.ErrInvalidCompressionType, flag)
	}
}

// Valid reports whether id names a known codec (including None).
func (id CodecID) Valid() bool {
	return id <= LZMS
}

// Per-codec valid chunk size ranges. All codecs require powers of
// two; the format caps the WIM-wide range at [2^15, 2^26].
const (
	minChunkSizeBits = 15
	maxChunkSizeBits = 26
)

// DefaultChunkSize returns the conventional chunk size for a codec.
func (id CodecID) DefaultChunkSize() uint32 {
	switch id {
	case LZMS:
		return 1 << 17
	default:
		return 1 << 15
	}
}

// ValidChunkSize reports whether size is an acceptable uncompressed
// chunk size for the codec.
func ValidChunkSize(id CodecID, size uint32) bool {
	if size == 0 || size&(size-1) != 0 {
		return false
	}
	if size < 1<<minChunkSizeBits || size > 1<<maxChunkSizeBits {
		return false
	}
	switch id {
	case XPRESS:
		return size <= 1<<16
	case LZX:
		return size <= 1<<21
	default:
		return true
	}
}

// Compressor compresses one chunk at a time.
type Compressor interface {
	// CompressBlock compresses in into out and returns the number of
	// bytes written, or 0 when the data cannot be represented in
	// len(out) bytes (incompressible). The pipeline always passes
	// len(out) == len(in)-1. len(in) must not exceed MaxBlockSize.
	CompressBlock(in, out []byte) int

	// MaxBlockSize is the block size the compressor was created for.
	MaxBlockSize() int

	// Close releases the compressor's context. The compressor must
	// not be used afterwards.
	Close()
}

// Decompressor decompresses one chunk at a time.
type Decompressor interface {
	// DecompressBlock decompresses in into out. len(out) must be the
	// exact uncompressed size of the block; any mismatch is an
	// error.
	DecompressBlock(in, out []byte) error

	// Close releases the decompressor's context.
	Close()
}

// NewCompressor creates a compressor for the given codec. level uses
// the 10/50/100 scale; 0 resolves through cfg (which may be nil) and
// then DefaultLevel.
func NewCompressor(id CodecID, maxBlockSize int, level uint, cfg *Config) (Compressor, error) {
	if maxBlockSize <= 0 {
		return nil, fmt.Errorf("%w: max block size %d", format.ErrInvalidParam, maxBlockSize)
	}
	level = cfg.resolveLevel(id, level)
	switch id {
	case XPRESS:
		return newXPRESSCompressor(maxBlockSize, level)
	case LZX:
		return newLZXCompressor(maxBlockSize, level)
	case LZMS:
		return newLZMSCompressor(maxBlockSize, level)
	default:
		return nil, fmt.Errorf("%w: codec id %d", format.ErrInvalidCompressionType, id)
	}
}

// NewDecompressor creates a decompressor for the given codec.
func NewDecompressor(id CodecID, maxBlockSize int) (Decompressor, error) {
	if maxBlockSize <= 0 {
		return nil, fmt.Errorf("%w: max block size %d", format.ErrInvalidParam, maxBlockSize)
	}
	switch id {
	case XPRESS:
		return newXPRESSDecompressor(maxBlockSize)
	case LZX, LZMS:
		return newZstdDecompressor(maxBlockSize)
	default:
		return nil, fmt.Errorf("%w: codec id %d", format.ErrInvalidCompressionType, id)
	}
}

// NeededMemory estimates the working memory a compressor for the
// given codec and block size will hold, including the scratch
// buffers the chunk pipeline allocates per context. An estimate of 0
// means the codec id is invalid.
func NeededMemory(id CodecID, maxBlockSize int, level uint) uint64 {
	if maxBlockSize <= 0 || !id.Valid() || id == None {
		return 0
	}
	block := uint64(maxBlockSize)
	switch id {
	case XPRESS:
		// lz4 block compression keeps a 64K hash table plus the
		// bound-sized scratch output.
		return block + block/255 + 64*1024
	case LZX:
		// zstd default windows plus scratch.
		return 2*block + 8*1024*1024
	default: // LZMS
		// Best-compression zstd keeps much larger match state.
		return 2*block + 32*1024*1024
	}
}
