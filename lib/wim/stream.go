// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package wim

import (
	"fmt"
	"io"

	"github.com/ChloeTigre/wimlib/lib/format"
	"github.com/ChloeTigre/wimlib/lib/lookup"
)

// StreamConsumer receives a stream's uncompressed content from
// ReadStream. Begin is called once before the first chunk, End once
// after the last (or after a failure, with the error). End's return
// value is what ReadStream returns when the read itself succeeded.
type StreamConsumer interface {
	Begin(e *lookup.Entry) error
	Chunk(data []byte) error
	End(status error) error
}

// readChunkSize is the buffer granularity for streaming reads handed
// to consumers.
const readChunkSize = 64 * 1024

// ReadStream feeds a stream's uncompressed content to consumer,
// verifying the hash for hashed entries read from a WIM file;
// in-memory and staged content is passed on as held. The consumer sees complete
// data or an error through End, never partial data presented as
// complete.
func (w *WIM) ReadStream(e *lookup.Entry, consumer StreamConsumer) error {
	if e == nil || consumer == nil {
		return fmt.Errorf("%w: nil stream or consumer", format.ErrInvalidParam)
	}
	if err := consumer.Begin(e); err != nil {
		return err
	}

	// entryBytes verifies the content hash for hashed in-WIM entries.
	data, err := w.entryBytes(e)
	if err != nil {
		consumer.End(err)
		return err
	}

	for off := 0; off < len(data); off += readChunkSize {
		end := min(off+readChunkSize, len(data))
		if err := consumer.Chunk(data[off:end]); err != nil {
			consumer.End(err)
			return err
		}
	}
	return consumer.End(nil)
}

// AddStream registers in-memory content as a stream and returns its
// entry, deduplicating against everything already in the store. Each
// call adds one reference, so capturing identical content twice
// yields one entry with refcount 2.
func (w *WIM) AddStream(data []byte) *lookup.Entry {
	copied := make([]byte, len(data))
	copy(copied, data)
	return w.table.InsertOrCoalesce(&lookup.Entry{
		Hash:     format.HashBytes(copied),
		ResHdr:   format.ResHdr{UncompressedSize: uint64(len(copied))},
		RefCount: 1,
		Location: lookup.LocationBuffer{Data: copied},
	})
}

// WriteStream ingests size bytes from src as a new stream, spilling
// them to a staging file while the hash is computed. The entry
// passes through the unhashed state and is coalesced against the
// store once the content hash is known.
func (w *WIM) WriteStream(src io.Reader, size int64) (*lookup.Entry, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative stream size", format.ErrInvalidParam)
	}
	staging, err := w.ensureStaging()
	if err != nil {
		return nil, err
	}

	entry := &lookup.Entry{RefCount: 1}
	w.table.AddUnhashed(entry)

	path, hash, n, err := staging.spill(src, size)
	if err != nil {
		w.table.RemoveUnhashed(entry)
		return nil, err
	}
	if n != size {
		staging.remove(path)
		w.table.RemoveUnhashed(entry)
		return nil, fmt.Errorf("%w: stream source ended after %d of %d bytes", format.ErrRead, n, size)
	}

	entry.ResHdr.UncompressedSize = uint64(size)
	entry.Location = lookup.LocationStagingFile{Path: path}
	final := w.table.FinalizeUnhashed(entry, hash)
	if final != entry {
		// Duplicate content already in the store: the staging copy
		// is redundant.
		staging.remove(path)
	}
	return final, nil
}

// StreamReader returns the full content of a stream. Convenience
// wrapper over the consumer interface for callers that want bytes.
func (w *WIM) StreamReader(e *lookup.Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil stream", format.ErrInvalidParam)
	}
	return w.entryBytes(e)
}
