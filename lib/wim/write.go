// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package wim

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ChloeTigre/wimlib/lib/compress"
	"github.com/ChloeTigre/wimlib/lib/format"
	"github.com/ChloeTigre/wimlib/lib/lookup"
	"github.com/ChloeTigre/wimlib/lib/pipeline"
	"github.com/ChloeTigre/wimlib/lib/resource"
)

// WriteFlag modifies Write and Overwrite.
type WriteFlag uint32

const (
	// WriteCheckIntegrity computes and appends an integrity table.
	WriteCheckIntegrity WriteFlag = 1 << iota

	// WriteNoCheckIntegrity suppresses the integrity table even when
	// the source WIM had one.
	WriteNoCheckIntegrity

	// WritePipable writes the pipable layout (forces a rebuild on
	// overwrite; pipable files cannot be appended in place).
	WritePipable

	// WriteNotPipable writes the standard layout even when the
	// source was pipable.
	WriteNotPipable

	// WriteRecompress recompresses every stream instead of reusing
	// on-disk resources.
	WriteRecompress

	// WriteFsync syncs file contents to stable storage before the
	// header commit, and the header after it.
	WriteFsync

	// WriteRebuild forces a full rebuild instead of an in-place
	// append.
	WriteRebuild

	// WriteSoftDelete permits in-place append after image deletion,
	// leaving the deleted streams as dead bytes.
	WriteSoftDelete

	// WriteIgnoreReadonly overrides the header readonly flag.
	WriteIgnoreReadonly

	// WriteSkipExternalWIMs omits streams that live in referenced
	// external WIMs (delta output).
	WriteSkipExternalWIMs

	// WriteRetainGUID keeps the WIM's GUID instead of generating a
	// fresh one.
	WriteRetainGUID

	// WritePackStreams groups small streams into packed (solid)
	// resources.
	WritePackStreams

	// WriteSendDoneWithFileMessages emits EventDoneWithFile after
	// each stream's source has been fully consumed.
	WriteSendDoneWithFileMessages
)

// packedStreamLimit is the size bound for streams grouped into a
// packed resource under WritePackStreams; larger streams are written
// individually.
const packedStreamLimit = 32 * 1024 * 1024

// abortingPipeline checks for a caller-requested abort between
// chunks on top of the real pipeline.
type abortingPipeline struct {
	pipeline.ChunkPipeline
	check func() error
}

func (p *abortingPipeline) Next() (pipeline.Chunk, bool, error) {
	if err := p.check(); err != nil {
		return pipeline.Chunk{}, false, err
	}
	return p.ChunkPipeline.Next()
}

// writeSession carries the state of one Write or Overwrite.
type writeSession struct {
	w       *WIM
	out     *os.File
	flags   WriteFlag
	threads int

	// appendBase is the file entries may be reused from (in-place
	// append); nil for a full write.
	appendBase *os.File

	codec     compress.CodecID
	chunkSize uint32

	pipe     pipeline.ChunkPipeline
	packPipe pipeline.ChunkPipeline

	// retainGUID keeps the GUID even without the RetainGUID flag
	// (overwrite semantics).
	retainGUID bool

	// results to apply to the in-memory state after the commit.
	written          []*lookup.Entry
	newHdr           format.Header
	completedStreams int
	totalStreams     int
	completedBytes   uint64
	totalBytes       uint64
}

func (s *writeSession) close() {
	if s.pipe != nil {
		s.pipe.Close()
		s.pipe = nil
	}
	if s.packPipe != nil {
		s.packPipe.Close()
		s.packPipe = nil
	}
}

// pipelineFor lazily builds the chunk pipeline for ordinary
// resources.
func (s *writeSession) pipelineFor() (pipeline.ChunkPipeline, error) {
	if s.codec == compress.None {
		return nil, nil
	}
	if s.pipe != nil {
		return s.pipe, nil
	}
	p, err := pipeline.NewParallel(s.codec, s.chunkSize, s.w.cfg, s.threads)
	if err != nil {
		return nil, err
	}
	s.pipe = &abortingPipeline{ChunkPipeline: p, check: s.abortCheck}
	return s.pipe, nil
}

// packPipelineFor lazily builds the pipeline for packed resources.
func (s *writeSession) packPipelineFor() (compress.CodecID, pipeline.ChunkPipeline, error) {
	codec, chunkSize := s.w.packCompression()
	if s.packPipe != nil {
		return codec, s.packPipe, nil
	}
	p, err := pipeline.NewParallel(codec, chunkSize, s.w.cfg, s.threads)
	if err != nil {
		return codec, nil, err
	}
	s.packPipe = &abortingPipeline{ChunkPipeline: p, check: s.abortCheck}
	return codec, s.packPipe, nil
}

func (s *writeSession) abortCheck() error {
	return s.w.reportProgress(ProgressInfo{
		Event:            EventWriteStreams,
		CompletedBytes:   s.completedBytes,
		TotalBytes:       s.totalBytes,
		CompletedStreams: s.completedStreams,
		TotalStreams:     s.totalStreams,
	})
}

// Write builds a complete new WIM at path. The in-memory WIM keeps
// its current backing; use Overwrite to update the file a WIM was
// opened from.
func (w *WIM) Write(path string, flags WriteFlag, numThreads int) error {
	if path == "" {
		return fmt.Errorf("%w: empty output path", format.ErrInvalidParam)
	}
	out, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", format.ErrOpen, err)
	}

	if err := w.writeTo(out, flags, numThreads); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: closing output: %v", format.ErrWrite, err)
	}
	return nil
}

// writeTo writes the full WIM layout into out (already positioned as
// an empty file). The in-memory entries keep their current backing.
func (w *WIM) writeTo(out *os.File, flags WriteFlag, numThreads int) error {
	session := &writeSession{
		w:         w,
		out:       out,
		flags:     flags,
		threads:   w.cfg.Threads(numThreads),
		codec:     w.outCodec,
		chunkSize: w.outChunkSize,
	}
	defer session.close()

	// Reserve the header region; the real header commits last.
	if _, err := out.Write(make([]byte, format.HeaderSize)); err != nil {
		return fmt.Errorf("%w: reserving header: %v", format.ErrWrite, err)
	}

	if err := w.writeContents(session); err != nil {
		return err
	}
	return w.commitHeader(session)
}

// writeContents performs planner steps 1..8: streams, metadata,
// lookup table, XML, integrity. The header fields for step 9 are
// left in session.newHdr.
func (w *WIM) writeContents(session *writeSession) error {
	if err := w.hashUnhashedStreams(); err != nil {
		return err
	}

	// Collect the stream entries to emit, in deterministic order.
	var emit []*lookup.Entry
	err := w.table.ForEach(func(e *lookup.Entry) error {
		if e.RefCount == 0 || e.Free {
			return nil
		}
		if _, external := e.Location.(lookup.LocationExternalWIM); external && session.flags&WriteSkipExternalWIMs != 0 {
			return nil
		}
		emit = append(emit, e)
		return nil
	})
	if err != nil {
		return err
	}

	// Partition into reused, packed, and individually written.
	var reused, packed, individual []*lookup.Entry
	for _, e := range emit {
		switch {
		case session.reusable(e):
			reused = append(reused, e)
		case session.flags&WritePackStreams != 0 && e.ResHdr.UncompressedSize > 0 &&
			e.ResHdr.UncompressedSize < packedStreamLimit && !e.ResHdr.IsMetadata():
			packed = append(packed, e)
		default:
			individual = append(individual, e)
		}
	}

	session.totalStreams = len(packed) + len(individual)
	for _, e := range individual {
		session.totalBytes += e.ResHdr.UncompressedSize
	}
	for _, e := range packed {
		session.totalBytes += e.ResHdr.UncompressedSize
	}

	for _, e := range reused {
		e.Out = e.ResHdr
	}
	if err := w.writeIndividualStreams(session, individual); err != nil {
		return err
	}
	if err := w.writePackedStreams(session, packed); err != nil {
		return err
	}
	if err := w.writeImageMetadata(session); err != nil {
		return err
	}

	session.written = append(append(individual, packed...), reused...)
	return w.writeTrailingSections(session)
}

// reusable reports whether an entry's on-disk resource can be kept
// as-is (append mode, same file, no recompression requested).
func (s *writeSession) reusable(e *lookup.Entry) bool {
	if s.appendBase == nil || s.flags&WriteRecompress != 0 {
		return false
	}
	loc, ok := e.Location.(lookup.LocationInWIM)
	return ok && loc.File == io.ReaderAt(s.appendBase)
}

// writeIndividualStreams writes each entry as its own resource.
func (w *WIM) writeIndividualStreams(session *writeSession, entries []*lookup.Entry) error {
	for _, e := range entries {
		if err := session.abortCheck(); err != nil {
			return err
		}

		data, err := w.entryBytes(e)
		if err != nil {
			return fmt.Errorf("reading stream %s: %w", e.Hash, err)
		}

		var hdr format.ResHdr
		var hash format.Hash
		pipe, err := session.pipelineFor()
		if err != nil {
			return err
		}
		baseFlags := e.ResHdr.Flags & format.ResFlagMetadata
		if pipe != nil {
			hdr, hash, err = resource.WriteFromBuffer(session.out, data, baseFlags, pipe)
		} else {
			hdr, hash, err = resource.WriteUncompressed(session.out, bytesReader(data), int64(len(data)), baseFlags)
		}
		if err != nil {
			return err
		}
		if hash != e.Hash {
			return fmt.Errorf("%w: stream %s read back as %s while writing", format.ErrCorrupt, e.Hash, hash)
		}
		e.Out = hdr

		session.completedStreams++
		session.completedBytes += hdr.UncompressedSize
		if session.flags&WriteSendDoneWithFileMessages != 0 {
			if err := w.reportProgress(ProgressInfo{
				Event:            EventDoneWithFile,
				CompletedStreams: session.completedStreams,
				TotalStreams:     session.totalStreams,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// writePackedStreams groups the given entries into one packed
// resource, ordered for compression locality (ascending size, then
// hash).
func (w *WIM) writePackedStreams(session *writeSession, entries []*lookup.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ResHdr.UncompressedSize != entries[j].ResHdr.UncompressedSize {
			return entries[i].ResHdr.UncompressedSize < entries[j].ResHdr.UncompressedSize
		}
		return entries[i].Hash.String() < entries[j].Hash.String()
	})

	members := make([]resource.MemberData, 0, len(entries))
	for _, e := range entries {
		if err := session.abortCheck(); err != nil {
			return err
		}
		data, err := w.entryBytes(e)
		if err != nil {
			return fmt.Errorf("reading stream %s: %w", e.Hash, err)
		}
		members = append(members, resource.MemberData{Hash: e.Hash, Data: data})
	}

	codec, pipe, err := session.packPipelineFor()
	if err != nil {
		return err
	}
	_, memberHdrs, err := resource.WritePacked(session.out, members, codec, pipe)
	if err != nil {
		return err
	}

	byHash := make(map[format.Hash]format.ResHdr, len(memberHdrs))
	for i, hdr := range memberHdrs {
		byHash[members[i].Hash] = hdr
	}
	for _, e := range entries {
		e.Out = byHash[e.Hash]
		session.completedStreams++
		session.completedBytes += e.ResHdr.UncompressedSize
		if session.flags&WriteSendDoneWithFileMessages != 0 {
			if err := w.reportProgress(ProgressInfo{
				Event:            EventDoneWithFile,
				CompletedStreams: session.completedStreams,
				TotalStreams:     session.totalStreams,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeImageMetadata writes (or reuses) each image's metadata
// resource, planner step 5.
func (w *WIM) writeImageMetadata(session *writeSession) error {
	for i, meta := range w.images {
		if err := w.reportProgress(ProgressInfo{Event: EventWriteMetadata, CompletedStreams: i, TotalStreams: len(w.images)}); err != nil {
			return err
		}

		if meta.entry == nil {
			return fmt.Errorf("image %d: %w", i+1, format.ErrMetadataNotFound)
		}
		if !meta.dirty && session.reusable(meta.entry) {
			meta.entry.Out = meta.entry.ResHdr
			continue
		}

		data, err := w.metadataBytes(meta)
		if err != nil {
			return fmt.Errorf("image %d: %w", i+1, err)
		}

		pipe, err := session.pipelineFor()
		if err != nil {
			return err
		}
		var hdr format.ResHdr
		if pipe != nil {
			hdr, _, err = resource.WriteFromBuffer(session.out, data, format.ResFlagMetadata, pipe)
		} else {
			hdr, _, err = resource.WriteUncompressed(session.out, bytesReader(data), int64(len(data)), format.ResFlagMetadata)
		}
		if err != nil {
			return fmt.Errorf("writing image %d metadata: %w", i+1, err)
		}
		meta.entry.Out = hdr
	}
	return nil
}

// writeTrailingSections performs planner steps 6..8: lookup table,
// XML data, integrity table, and prepares the header for step 9.
func (w *WIM) writeTrailingSections(session *writeSession) error {
	records := w.buildLookupRecords(session)

	tableBytes := make([]byte, len(records)*format.LookupEntrySize)
	for i, record := range records {
		if err := format.PutLookupEntry(tableBytes[i*format.LookupEntrySize:], record); err != nil {
			return err
		}
	}
	lookupHdr, _, err := resource.WriteUncompressed(session.out, bytesReader(tableBytes), int64(len(tableBytes)), 0)
	if err != nil {
		return fmt.Errorf("writing lookup table: %w", err)
	}

	xmlData := w.xmlData
	if xmlData == nil {
		xmlData = w.buildDefaultXML(w.table.TotalBytes())
	}
	xmlHdr, _, err := resource.WriteUncompressed(session.out, bytesReader(xmlData), int64(len(xmlData)), 0)
	if err != nil {
		return fmt.Errorf("writing XML data: %w", err)
	}

	hdr := w.hdr
	hdr.Magic = format.Magic
	hdr.Version = format.Version
	if session.flags&WritePipable != 0 {
		hdr.Magic = format.PipableMagic
		hdr.Version = format.PipableVersion
	}
	hdr.Flags &^= format.HdrFlagWriteInProgress
	hdr.ChunkSize = session.chunkSize
	hdr.SetCompression(session.codec.HeaderFlag())
	hdr.ImageCount = uint32(len(w.images))
	hdr.LookupTable = lookupHdr
	hdr.XMLData = xmlHdr
	hdr.IntegrityData = format.ResHdr{}
	hdr.BootMetadata = format.ResHdr{}
	if boot := hdr.BootIndex; boot != 0 && int(boot) <= len(w.images) {
		hdr.BootMetadata = w.images[boot-1].entry.Out
	}

	wantIntegrity := session.flags&WriteCheckIntegrity != 0 ||
		(w.hdr.HasIntegrityTable() && session.flags&WriteNoCheckIntegrity == 0 && session.appendBase != nil)
	if wantIntegrity && session.flags&WriteNoCheckIntegrity == 0 {
		lookupEnd := int64(lookupHdr.OffsetInWIM + lookupHdr.SizeInWIM)
		integrityHdr, err := w.writeIntegrityTable(session.out, lookupEnd)
		if err != nil {
			return err
		}
		hdr.IntegrityData = integrityHdr
	}

	if session.flags&WriteRetainGUID == 0 && session.appendBase == nil && !session.retainGUID {
		if err := randomizeGUID(&hdr); err != nil {
			return err
		}
	}

	session.newHdr = hdr
	return nil
}

// buildLookupRecords assembles the on-disk lookup records from the
// written entries plus image metadata, sorted offset-ascending with
// hash tie-break.
func (w *WIM) buildLookupRecords(session *writeSession) []format.LookupEntry {
	var records []format.LookupEntry
	for _, e := range session.written {
		records = append(records, format.LookupEntry{
			ResHdr:     e.Out,
			PartNumber: 1,
			RefCount:   e.RefCount,
			Hash:       e.Hash,
		})
	}
	for _, meta := range w.images {
		out := meta.entry.Out
		out.Flags |= format.ResFlagMetadata
		records = append(records, format.LookupEntry{
			ResHdr:     out,
			PartNumber: 1,
			RefCount:   meta.entry.RefCount,
			Hash:       meta.entry.Hash,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].ResHdr.OffsetInWIM != records[j].ResHdr.OffsetInWIM {
			return records[i].ResHdr.OffsetInWIM < records[j].ResHdr.OffsetInWIM
		}
		return records[i].Hash.String() < records[j].Hash.String()
	})
	return records
}

// commitHeader performs step 9: optional data sync, then the header
// at offset 0, making the new contents reachable.
func (w *WIM) commitHeader(session *writeSession) error {
	if session.flags&WriteFsync != 0 {
		if err := session.out.Sync(); err != nil {
			return fmt.Errorf("%w: syncing data before header commit: %v", format.ErrWrite, err)
		}
	}
	if w.testCommitHook != nil {
		if err := w.testCommitHook(); err != nil {
			return err
		}
	}

	buf := make([]byte, format.HeaderSize)
	if err := format.PutHeader(buf, &session.newHdr); err != nil {
		return err
	}
	if _, err := session.out.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: committing header: %v", format.ErrWrite, err)
	}
	if session.flags&WriteFsync != 0 {
		if err := session.out.Sync(); err != nil {
			return fmt.Errorf("%w: syncing header: %v", format.ErrWrite, err)
		}
	}
	return nil
}

// hashUnhashedStreams settles every unhashed entry before planning.
func (w *WIM) hashUnhashedStreams() error {
	pending := append([]*lookup.Entry(nil), w.table.Unhashed()...)
	for _, e := range pending {
		data, err := w.entryBytes(e)
		if err != nil {
			return fmt.Errorf("hashing pending stream: %w", err)
		}
		e.ResHdr.UncompressedSize = uint64(len(data))
		w.table.FinalizeUnhashed(e, format.HashBytes(data))
	}
	return nil
}

// adoptWrittenState re-points the in-memory entries at the freshly
// written file and refreshes the cached header. Called only after a
// successful header commit.
func (w *WIM) adoptWrittenState(session *writeSession) {
	location := lookup.LocationInWIM{File: session.out, Codec: session.codec, ChunkSize: session.chunkSize}
	for _, e := range session.written {
		e.ResHdr = e.Out
		e.Location = location
	}
	for _, meta := range w.images {
		meta.entry.ResHdr = meta.entry.Out
		meta.entry.ResHdr.Flags |= format.ResFlagMetadata
		meta.entry.Location = location
		meta.dirty = false
	}
	w.hdr = session.newHdr
	w.codec = session.codec
	w.chunkSize = session.chunkSize
	w.outCodec = session.codec
	w.outChunkSize = session.chunkSize
	w.table.DropFree()
	w.deletionOccurred = false

	if w.staging != nil {
		w.staging.destroy()
		w.staging = nil
	}
}

// randomizeGUID installs a fresh GUID into hdr.
func randomizeGUID(hdr *format.Header) error {
	if _, err := rand.Read(hdr.GUID[:]); err != nil {
		return fmt.Errorf("generating WIM GUID: %w", err)
	}
	return nil
}

// Overwrite updates the file this WIM was opened from: an in-place
// append when the layout allows it, otherwise a full rebuild into a
// temporary file renamed over the original. Either way the previous
// contents stay valid until the final header commit.
func (w *WIM) Overwrite(flags WriteFlag, numThreads int) error {
	if w.file == nil || w.filename == "" {
		return fmt.Errorf("%w: WIM has no backing file to overwrite", format.ErrInvalidParam)
	}
	if w.hdr.Flags&format.HdrFlagReadonly != 0 && flags&WriteIgnoreReadonly == 0 {
		return format.ErrIsReadonly
	}

	if w.canAppend(flags) {
		return w.overwriteInPlace(flags, numThreads)
	}
	return w.overwriteRebuild(flags, numThreads)
}

// canAppend decides whether in-place append is safe.
func (w *WIM) canAppend(flags WriteFlag) bool {
	if flags&(WriteRebuild|WriteRecompress|WritePipable|WritePackStreams) != 0 {
		return false
	}
	if w.hdr.IsPipable() {
		return false
	}
	if w.deletionOccurred && flags&WriteSoftDelete == 0 {
		return false
	}
	if w.outCodec != w.codec || w.outChunkSize != w.chunkSize {
		return false
	}
	return true
}

// overwriteInPlace appends new resources after the current end of
// the file, then new trailing sections, then the header. Reversible
// until the header commit.
func (w *WIM) overwriteInPlace(flags WriteFlag, numThreads int) error {
	out, err := os.OpenFile(w.filename, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: reopening for append: %v", format.ErrOpen, err)
	}
	defer out.Close()

	oldEnd, err := out.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("%w: finding end of file: %v", format.ErrWrite, err)
	}

	if err := w.lockForAppend(); err != nil {
		return err
	}
	defer w.unlockForAppend()

	// Flag the file while the append runs; a reader that sees this
	// knows the trailing bytes may be garbage. The old header's
	// section pointers remain valid throughout.
	if err := writeHeaderFlags(out, w.hdr.Flags|format.HdrFlagWriteInProgress); err != nil {
		return err
	}

	session := &writeSession{
		w:          w,
		out:        out,
		flags:      flags | WriteRetainGUID,
		threads:    w.cfg.Threads(numThreads),
		appendBase: w.file,
		codec:      w.codec,
		chunkSize:  w.chunkSize,
	}
	defer session.close()

	fail := func(err error) error {
		out.Truncate(oldEnd)
		writeHeaderFlags(out, w.hdr.Flags)
		return err
	}

	if err := w.writeContents(session); err != nil {
		return fail(err)
	}
	if err := w.commitHeader(session); err != nil {
		return fail(err)
	}

	session.out = w.file // entries read through the long-lived fd
	w.adoptWrittenState(session)
	return nil
}

// overwriteRebuild writes a complete new WIM beside the original and
// renames it into place.
func (w *WIM) overwriteRebuild(flags WriteFlag, numThreads int) error {
	dir := filepath.Dir(w.filename)
	tmp, err := os.CreateTemp(dir, filepath.Base(w.filename)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating rebuild temp file: %v", format.ErrOpen, err)
	}
	tmpPath := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	session := &writeSession{
		w:          w,
		out:        tmp,
		flags:      flags,
		threads:    w.cfg.Threads(numThreads),
		codec:      w.outCodec,
		chunkSize:  w.outChunkSize,
		retainGUID: true,
	}
	defer session.close()

	if _, err := tmp.Write(make([]byte, format.HeaderSize)); err != nil {
		return cleanup(fmt.Errorf("%w: reserving header: %v", format.ErrWrite, err))
	}
	if err := w.writeContents(session); err != nil {
		return cleanup(err)
	}
	if err := w.commitHeader(session); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("%w: syncing rebuilt WIM: %v", format.ErrWrite, err))
	}

	if err := os.Rename(tmpPath, w.filename); err != nil {
		return cleanup(fmt.Errorf("%w: renaming rebuilt WIM into place: %v", format.ErrWrite, err))
	}

	// Swap the backing file to the rebuilt one.
	oldFile := w.file
	w.file = tmp
	session.out = tmp
	w.adoptWrittenState(session)
	if oldFile != nil {
		oldFile.Close()
	}
	return nil
}

// writeHeaderFlags rewrites only the header flags word, leaving the
// rest of the header untouched.
func writeHeaderFlags(out *os.File, flags uint32) error {
	var buf [4]byte
	buf[0] = byte(flags)
	buf[1] = byte(flags >> 8)
	buf[2] = byte(flags >> 16)
	buf[3] = byte(flags >> 24)
	if _, err := out.WriteAt(buf[:], 16); err != nil {
		return fmt.Errorf("%w: rewriting header flags: %v", format.ErrWrite, err)
	}
	return nil
}
