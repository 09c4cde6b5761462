// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/ChloeTigre/wimlib/lib/compress"
)

const testChunkSize = 32768

func compressibleData(size int) []byte {
	pattern := []byte("chunk pipelines emit in submission order, always. ")
	return bytes.Repeat(pattern, size/len(pattern)+1)[:size]
}

// decompressChunk reverses one emitted chunk for verification.
func decompressChunk(t *testing.T, codec compress.CodecID, c Chunk) []byte {
	t.Helper()
	if !c.Compressed {
		return c.Data
	}
	d, err := compress.NewDecompressor(codec, testChunkSize)
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	defer d.Close()
	out := make([]byte, c.UncompressedSize)
	if err := d.DecompressBlock(c.Data, out); err != nil {
		t.Fatalf("DecompressBlock: %v", err)
	}
	return out
}

// runStream pushes chunks through a pipeline, draining as needed, and
// returns the reassembled uncompressed output.
func runStream(t *testing.T, p ChunkPipeline, codec compress.CodecID, chunks [][]byte) []byte {
	t.Helper()
	var out bytes.Buffer

	drain := func(block bool) {
		for {
			c, ok, err := p.Next()
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			if !ok {
				return
			}
			if int(c.UncompressedSize) != len(decompressChunk(t, codec, c)) {
				t.Fatal("uncompressed size disagrees with chunk payload")
			}
			out.Write(decompressChunk(t, codec, c))
			if !block {
				return
			}
		}
	}

	for _, chunk := range chunks {
		for !p.Submit(chunk) {
			drain(false)
		}
	}
	drain(true)
	return out.Bytes()
}

func pipelineVariants(t *testing.T, codec compress.CodecID) map[string]ChunkPipeline {
	t.Helper()
	serial, err := NewSerial(codec, testChunkSize, nil)
	if err != nil {
		t.Fatalf("NewSerial: %v", err)
	}
	parallel, err := NewParallel(codec, testChunkSize, nil, 4)
	if err != nil {
		t.Fatalf("NewParallel: %v", err)
	}
	return map[string]ChunkPipeline{"serial": serial, "parallel": parallel}
}

func TestPipelineRoundTrip(t *testing.T) {
	// 10 full chunks plus a short tail.
	var chunks [][]byte
	var want []byte
	for i := 0; i < 10; i++ {
		chunk := compressibleData(testChunkSize)
		chunk[0] = byte(i) // make chunks distinct
		chunks = append(chunks, chunk)
		want = append(want, chunk...)
	}
	tail := compressibleData(777)
	chunks = append(chunks, tail)
	want = append(want, tail...)

	for _, codec := range []compress.CodecID{compress.XPRESS, compress.LZX} {
		for name, p := range pipelineVariants(t, codec) {
			t.Run(fmt.Sprintf("%s/%s", codec, name), func(t *testing.T) {
				defer p.Close()
				got := runStream(t, p, codec, chunks)
				if !bytes.Equal(got, want) {
					t.Errorf("reassembled stream differs: got %d bytes, want %d", len(got), len(want))
				}
			})
		}
	}
}

func TestPipelineEmissionOrder(t *testing.T) {
	// Chunks with a distinct leading byte; emission must preserve
	// submission order even with workers racing.
	var chunks [][]byte
	for i := 0; i < 64; i++ {
		chunk := compressibleData(testChunkSize)
		chunk[0] = byte(i)
		chunks = append(chunks, chunk)
	}

	p, err := NewParallel(compress.XPRESS, testChunkSize, nil, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	next := byte(0)
	drain := func(block bool) {
		for {
			c, ok, err := p.Next()
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			if !ok {
				return
			}
			data := decompressChunk(t, compress.XPRESS, c)
			if data[0] != next {
				t.Fatalf("chunk %d emitted out of order (got leading byte %d)", next, data[0])
			}
			next++
			if !block {
				return
			}
		}
	}
	for _, chunk := range chunks {
		for !p.Submit(chunk) {
			drain(false)
		}
	}
	drain(true)
	if int(next) != len(chunks) {
		t.Errorf("emitted %d chunks, want %d", next, len(chunks))
	}
}

func TestPipelineIncompressibleVerbatim(t *testing.T) {
	chunk := make([]byte, testChunkSize)
	if _, err := rand.Read(chunk); err != nil {
		t.Fatal(err)
	}

	for name, p := range pipelineVariants(t, compress.LZX) {
		t.Run(name, func(t *testing.T) {
			defer p.Close()
			if !p.Submit(chunk) {
				t.Fatal("Submit refused the first chunk")
			}
			c, ok, err := p.Next()
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			if !ok {
				t.Fatal("Next returned no chunk")
			}
			if c.Compressed {
				t.Error("random data reported as compressed")
			}
			if !bytes.Equal(c.Data, chunk) {
				t.Error("verbatim chunk does not match input")
			}
			if c.UncompressedSize != testChunkSize {
				t.Errorf("UncompressedSize = %d, want %d", c.UncompressedSize, testChunkSize)
			}
		})
	}
}

func TestSerialSingleInFlight(t *testing.T) {
	p, err := NewSerial(compress.XPRESS, testChunkSize, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	chunk := compressibleData(testChunkSize)
	if !p.Submit(chunk) {
		t.Fatal("first Submit refused")
	}
	if p.Submit(chunk) {
		t.Error("second Submit accepted while a chunk is pending")
	}
	if _, ok, err := p.Next(); err != nil || !ok {
		t.Fatalf("Next = (%v, %v)", ok, err)
	}
	if !p.Submit(chunk) {
		t.Error("Submit refused after draining")
	}
}

func TestParallelSlotBackpressure(t *testing.T) {
	const workers = 3
	p, err := NewParallel(compress.XPRESS, testChunkSize, nil, workers)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	chunk := compressibleData(testChunkSize)
	accepted := 0
	for p.Submit(chunk) {
		accepted++
		if accepted > workers {
			break
		}
	}
	if accepted != workers {
		t.Errorf("accepted %d chunks without draining, want exactly %d slots", accepted, workers)
	}
}

func TestPipelineRejectsOversizedChunk(t *testing.T) {
	for name, p := range pipelineVariants(t, compress.XPRESS) {
		t.Run(name, func(t *testing.T) {
			defer p.Close()
			if p.Submit(make([]byte, testChunkSize+1)) {
				t.Error("Submit accepted an oversized chunk")
			}
			if p.Submit(nil) {
				t.Error("Submit accepted an empty chunk")
			}
		})
	}
}

func TestPipelineCloseReleasesWorkers(t *testing.T) {
	p, err := NewParallel(compress.LZX, testChunkSize, nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	chunk := compressibleData(testChunkSize)
	p.Submit(chunk)
	p.Submit(chunk)

	// Close with chunks in flight: must drain workers and be
	// idempotent, and Submit must refuse afterwards.
	p.Close()
	p.Close()
	if p.Submit(chunk) {
		t.Error("Submit accepted after Close")
	}
}

func TestNewSerialRejectsZeroChunkSize(t *testing.T) {
	if _, err := NewSerial(compress.XPRESS, 0, nil); err == nil {
		t.Error("NewSerial accepted a zero chunk size")
	}
}
