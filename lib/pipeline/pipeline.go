// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline drives a codec over fixed-size uncompressed
// chunks, producing the compressed chunks a resource writer records
// in its chunk table.
//
// Both variants share one contract: submission order equals emission
// order; every submitted chunk produces exactly one emitted chunk
// whose uncompressed size equals the submitted size; the emitted
// bytes are the codec's output when it managed to shrink the chunk,
// or a verbatim copy of the input when it returned 0 (incompressible).
// The chunk size given at construction is the maximum submission
// size; only the final chunk of a stream may be smaller.
//
// The serial pipeline holds one chunk in flight: Submit reports
// false while an emitted chunk has not been collected. The parallel
// pipeline holds up to N chunks in flight across N workers, each
// with its own codec context, and emits strictly in submission order
// regardless of per-chunk completion order.
package pipeline

import (
	"fmt"

	"github.com/ChloeTigre/wimlib/lib/compress"
	"github.com/ChloeTigre/wimlib/lib/format"
)

// Chunk is one emitted chunk. Data is either codec output (when
// Compressed is true) or a verbatim copy of the submitted bytes.
// Data is only valid until the next call to Submit or Next.
type Chunk struct {
	Data             []byte
	UncompressedSize uint32
	Compressed       bool
}

// ChunkPipeline compresses a stream of chunks. Implementations are
// not safe for concurrent use by multiple goroutines; a single
// control goroutine drives Submit/Next.
type ChunkPipeline interface {
	// Submit offers one chunk (1..ChunkSize bytes). It reports false
	// when no slot is free, in which case the caller must drain with
	// Next before retrying.
	Submit(chunk []byte) bool

	// Next returns the oldest completed chunk. ok is false when no
	// submitted chunk is pending.
	Next() (c Chunk, ok bool, err error)

	// ChunkSize returns the maximum chunk size.
	ChunkSize() uint32

	// Close stops accepting chunks, discards any in-flight work, and
	// releases all codec contexts. It is safe to call more than
	// once.
	Close()
}

// NewSerial creates a single-context pipeline: one chunk in flight,
// compression happening inside Next.
func NewSerial(codec compress.CodecID, chunkSize uint32, cfg *compress.Config) (ChunkPipeline, error) {
	compressor, err := newCompressor(codec, chunkSize, cfg)
	if err != nil {
		return nil, err
	}
	return &serialPipeline{
		chunkSize:  chunkSize,
		compressor: compressor,
		udata:      make([]byte, chunkSize),
		cdata:      make([]byte, chunkSize-1),
	}, nil
}

// newCompressor builds the (optionally verifying) compressor every
// pipeline context uses.
func newCompressor(codec compress.CodecID, chunkSize uint32, cfg *compress.Config) (compress.Compressor, error) {
	if chunkSize == 0 {
		return nil, fmt.Errorf("%w: zero chunk size", format.ErrInvalidParam)
	}
	compressor, err := compress.NewCompressor(codec, int(chunkSize), 0, cfg)
	if err != nil {
		return nil, err
	}
	if cfg != nil && cfg.VerifyCompression {
		return compress.NewVerifying(codec, compressor)
	}
	return compressor, nil
}

// serialPipeline holds exactly one submitted chunk: Submit fails
// while a chunk is unread, and Next performs the compression.
type serialPipeline struct {
	chunkSize  uint32
	compressor compress.Compressor
	udata      []byte
	cdata      []byte
	ulen       uint32
	closed     bool
}

func (p *serialPipeline) Submit(chunk []byte) bool {
	if p.closed || p.ulen != 0 {
		return false
	}
	if len(chunk) == 0 || uint32(len(chunk)) > p.chunkSize {
		return false
	}
	copy(p.udata, chunk)
	p.ulen = uint32(len(chunk))
	return true
}

func (p *serialPipeline) Next() (Chunk, bool, error) {
	if p.ulen == 0 {
		return Chunk{}, false, nil
	}
	in := p.udata[:p.ulen]
	n := p.compressor.CompressBlock(in, p.cdata[:p.ulen-1])
	if err := compress.VerifyError(p.compressor); err != nil {
		return Chunk{}, false, err
	}

	c := Chunk{UncompressedSize: p.ulen}
	if n != 0 {
		c.Data = p.cdata[:n]
		c.Compressed = true
	} else {
		c.Data = in
	}
	p.ulen = 0
	return c, true, nil
}

func (p *serialPipeline) ChunkSize() uint32 {
	return p.chunkSize
}

func (p *serialPipeline) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.ulen = 0
	p.compressor.Close()
}
