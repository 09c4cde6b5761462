// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"sync"

	"github.com/ChloeTigre/wimlib/lib/compress"
)

// parallelPipeline spreads chunk compression across a fixed pool of
// workers. Each worker owns its own codec context. Slots form a ring
// of size N: the control goroutine submits into the next free slot
// and emits from the oldest occupied one, so emission order always
// matches submission order no matter how the workers interleave.
type parallelPipeline struct {
	chunkSize uint32
	slots     []*slot
	work      chan *slot
	workers   sync.WaitGroup

	submitIndex uint64
	emitIndex   uint64
	inFlight    int
	closed      bool
}

// slot carries one chunk through a worker. The done channel is
// re-armed by the control goroutine before dispatch; the worker
// closes it when the slot's result fields are final.
type slot struct {
	udata []byte
	cdata []byte
	ulen  uint32
	clen  uint32 // 0 means incompressible: emit udata verbatim
	err   error
	done  chan struct{}
}

// NewParallel creates a pipeline with `workers` worker slots. A
// non-positive worker count resolves through cfg (one per logical
// CPU, capped by cfg.MaxThreads). Falls back to the serial pipeline
// when only one worker results.
func NewParallel(codec compress.CodecID, chunkSize uint32, cfg *compress.Config, workers int) (ChunkPipeline, error) {
	workers = cfg.Threads(workers)
	if workers == 1 || chunkSize == 0 {
		return NewSerial(codec, chunkSize, cfg)
	}

	p := &parallelPipeline{
		chunkSize: chunkSize,
		slots:     make([]*slot, workers),
		work:      make(chan *slot, workers),
	}
	for i := range p.slots {
		p.slots[i] = &slot{
			udata: make([]byte, chunkSize),
			cdata: make([]byte, chunkSize-1),
		}
	}

	// Create every codec context up front so a failure leaves
	// nothing running.
	compressors := make([]compress.Compressor, workers)
	for i := range compressors {
		c, err := newCompressor(codec, chunkSize, cfg)
		if err != nil {
			for _, prior := range compressors[:i] {
				prior.Close()
			}
			return nil, err
		}
		compressors[i] = c
	}

	p.workers.Add(workers)
	for _, c := range compressors {
		go p.worker(c)
	}
	return p, nil
}

func (p *parallelPipeline) worker(compressor compress.Compressor) {
	defer p.workers.Done()
	defer compressor.Close()

	for s := range p.work {
		in := s.udata[:s.ulen]
		n := compressor.CompressBlock(in, s.cdata[:s.ulen-1])
		s.clen = uint32(n)
		s.err = compress.VerifyError(compressor)
		close(s.done)
	}
}

func (p *parallelPipeline) Submit(chunk []byte) bool {
	if p.closed || p.inFlight == len(p.slots) {
		return false
	}
	if len(chunk) == 0 || uint32(len(chunk)) > p.chunkSize {
		return false
	}

	s := p.slots[p.submitIndex%uint64(len(p.slots))]
	copy(s.udata, chunk)
	s.ulen = uint32(len(chunk))
	s.clen = 0
	s.err = nil
	s.done = make(chan struct{})

	p.work <- s
	p.submitIndex++
	p.inFlight++
	return true
}

func (p *parallelPipeline) Next() (Chunk, bool, error) {
	if p.inFlight == 0 {
		return Chunk{}, false, nil
	}

	s := p.slots[p.emitIndex%uint64(len(p.slots))]
	<-s.done
	p.emitIndex++
	p.inFlight--

	if s.err != nil {
		return Chunk{}, false, s.err
	}
	c := Chunk{UncompressedSize: s.ulen}
	if s.clen != 0 {
		c.Data = s.cdata[:s.clen]
		c.Compressed = true
	} else {
		c.Data = s.udata[:s.ulen]
	}
	return c, true, nil
}

func (p *parallelPipeline) ChunkSize() uint32 {
	return p.chunkSize
}

// Close stops intake, lets in-flight chunks finish, and releases all
// worker contexts. Completed-but-unread chunks are discarded; no
// partial output is ever visible.
func (p *parallelPipeline) Close() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.work)
	p.workers.Wait()
	p.inFlight = 0
}
