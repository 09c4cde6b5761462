// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package wim

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ChloeTigre/wimlib/lib/compress"
	"github.com/ChloeTigre/wimlib/lib/format"
	"github.com/ChloeTigre/wimlib/lib/lookup"
	"github.com/ChloeTigre/wimlib/lib/resource"
)

// OpenFlag modifies Open's behavior.
type OpenFlag uint32

const (
	// OpenCheckIntegrity verifies the integrity table (when present)
	// during open and fails on a mismatch.
	OpenCheckIntegrity OpenFlag = 1 << iota

	// OpenWriteAccess opens the file read-write so the WIM can be
	// overwritten in place.
	OpenWriteAccess
)

// Options configures a WIM at construction.
type Options struct {
	// Logger receives warnings (wrong refcounts, integrity
	// mismatches on read paths). Defaults to an error-level text
	// handler on stderr.
	Logger *slog.Logger

	// Compression carries the default compression levels and the
	// verify-on-compress toggle. Nil means built-in defaults.
	Compression *compress.Config

	// Progress, when set, is called between streams and between
	// chunks during writes. Returning an error aborts the operation;
	// for in-place overwrite the file's previous state stays valid.
	Progress ProgressFunc
}

func (o *Options) logger() *slog.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// ImageMetadata tracks one image's directory tree resource.
type ImageMetadata struct {
	// entry is the metadata stream's lookup entry. Metadata entries
	// are addressed by SHA-1 like any other stream but carry the
	// METADATA resource flag.
	entry *lookup.Entry

	// tree caches the parsed directory tree once the image has been
	// read or modified.
	tree cachedTree

	// dirty marks metadata that must be re-serialized on the next
	// write.
	dirty bool
}

// cachedTree decouples the engine from the metadata encoding: the
// core only needs the raw bytes and the referenced stream hashes.
type cachedTree interface {
	// References returns the stream hashes the image references,
	// duplicates preserved.
	References() []format.Hash
}

// WIM is an opened or in-construction WIM container.
type WIM struct {
	file     *os.File // read side; nil for a WIM that was never on disk
	filename string

	hdr   format.Header
	table *lookup.Table

	images  []*ImageMetadata
	xmlData []byte

	codec     compress.CodecID
	chunkSize uint32

	// Output overrides for the next write; default to the input
	// parameters.
	outCodec     compress.CodecID
	outChunkSize uint32

	// Packed-resource overrides (pack-streams writes).
	outPackCodec     compress.CodecID
	outPackChunkSize uint32

	cfg      *compress.Config
	logger   *slog.Logger
	progress ProgressFunc

	currentImage     int
	deletionOccurred bool
	refCountsOK      bool
	lockedForAppend  bool

	staging *stagingArea

	// subwims holds back-references to WIMs whose resources this WIM
	// references; they must outlive this WIM.
	subwims []*WIM

	// testCommitHook runs immediately before the final header write.
	// Tests use it to simulate a crash between the data commit and
	// the header commit.
	testCommitHook func() error
}

// New creates an empty WIM that exists only in memory until written.
func New(codec compress.CodecID, chunkSize uint32, opts *Options) (*WIM, error) {
	if !codec.Valid() {
		return nil, fmt.Errorf("%w: codec id %d", format.ErrInvalidCompressionType, codec)
	}
	if chunkSize == 0 {
		chunkSize = codec.DefaultChunkSize()
	}
	if codec != compress.None && !compress.ValidChunkSize(codec, chunkSize) {
		return nil, fmt.Errorf("%w: %d is not valid for codec %s", format.ErrInvalidChunkSize, chunkSize, codec)
	}

	w := &WIM{
		table:        lookup.NewTable(),
		codec:        codec,
		chunkSize:    chunkSize,
		outCodec:     codec,
		outChunkSize: chunkSize,
		refCountsOK:  true,
		logger:       opts.logger(),
	}
	if opts != nil {
		w.cfg = opts.Compression
		w.progress = opts.Progress
	}

	w.hdr = format.Header{
		Magic:      format.Magic,
		Version:    format.Version,
		ChunkSize:  chunkSize,
		PartNumber: 1,
		TotalParts: 1,
	}
	w.hdr.SetCompression(codec.HeaderFlag())
	if _, err := rand.Read(w.hdr.GUID[:]); err != nil {
		return nil, fmt.Errorf("generating WIM GUID: %w", err)
	}
	return w, nil
}

// Open reads an existing WIM file.
func Open(path string, flags OpenFlag, opts *Options) (*WIM, error) {
	mode := os.O_RDONLY
	if flags&OpenWriteAccess != 0 {
		mode = os.O_RDWR
	}
	f, err := os.OpenFile(path, mode, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", format.ErrOpen, err)
	}

	w, err := openFromFile(f, path, flags, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func openFromFile(f *os.File, path string, flags OpenFlag, opts *Options) (*WIM, error) {
	headerBytes := make([]byte, format.HeaderSize)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", format.ErrNotAWIMFile, err)
	}
	hdr, err := format.GetHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	if hdr.TotalParts == 0 || hdr.PartNumber == 0 || hdr.PartNumber > hdr.TotalParts {
		return nil, fmt.Errorf("%w: part %d of %d", format.ErrCorrupt, hdr.PartNumber, hdr.TotalParts)
	}

	codec, err := compress.CodecFromHeaderFlag(hdr.CompressionFlag())
	if err != nil {
		return nil, err
	}
	if codec != compress.None && !compress.ValidChunkSize(codec, hdr.ChunkSize) {
		return nil, fmt.Errorf("%w: header chunk size %d for codec %s", format.ErrInvalidChunkSize, hdr.ChunkSize, codec)
	}

	w := &WIM{
		file:         f,
		filename:     path,
		hdr:          *hdr,
		codec:        codec,
		chunkSize:    hdr.ChunkSize,
		outCodec:     codec,
		outChunkSize: hdr.ChunkSize,
		logger:       opts.logger(),
	}
	if opts != nil {
		w.cfg = opts.Compression
		w.progress = opts.Progress
	}

	if err := w.loadLookupTable(); err != nil {
		return nil, err
	}
	if err := w.loadXMLData(); err != nil {
		return nil, err
	}

	if flags&OpenCheckIntegrity != 0 {
		status, badSlice, err := w.CheckIntegrity()
		if err != nil {
			return nil, err
		}
		if status == IntegrityNotOK {
			return nil, fmt.Errorf("%w: slice %d", format.ErrIntegrityNotOK, badSlice)
		}
	}
	return w, nil
}

// loadLookupTable reads and parses the lookup table, wiring every
// entry's location back to this file.
func (w *WIM) loadLookupTable() error {
	if w.hdr.LookupTable.IsEmpty() {
		w.table = lookup.NewTable()
		w.refCountsOK = w.hdr.ImageCount == 0
		if w.hdr.ImageCount != 0 {
			return fmt.Errorf("%w: %d images but no lookup table", format.ErrCorrupt, w.hdr.ImageCount)
		}
		return nil
	}

	data, err := resource.ReadAll(w.file, w.hdr.LookupTable, w.codec, w.chunkSize, format.Hash{})
	if err != nil {
		return fmt.Errorf("reading lookup table: %w", err)
	}
	table, metadataEntries, err := lookup.Parse(data)
	if err != nil {
		return err
	}

	location := lookup.LocationInWIM{File: w.file, Codec: w.codec, ChunkSize: w.chunkSize}
	if err := table.ForEach(func(e *lookup.Entry) error {
		e.Location = location
		return nil
	}); err != nil {
		return err
	}

	if uint32(len(metadataEntries)) != w.hdr.ImageCount {
		return fmt.Errorf("%w: header says %d images, lookup table has %d metadata entries",
			format.ErrCorrupt, w.hdr.ImageCount, len(metadataEntries))
	}
	w.images = make([]*ImageMetadata, len(metadataEntries))
	for i, e := range metadataEntries {
		e.Location = location
		w.images[i] = &ImageMetadata{entry: e}
	}

	w.table = table
	// Counts in files produced elsewhere are not trustworthy until
	// recalculated from the metadata trees.
	w.refCountsOK = len(w.images) == 0
	return nil
}

// loadXMLData reads the opaque XML info blob.
func (w *WIM) loadXMLData() error {
	if w.hdr.XMLData.IsEmpty() {
		return nil
	}
	data, err := resource.ReadAll(w.file, w.hdr.XMLData, w.codec, w.chunkSize, format.Hash{})
	if err != nil {
		return fmt.Errorf("reading XML data: %w", err)
	}
	w.xmlData = data
	return nil
}

// Close releases the file descriptors, the staging area, and the
// append lock if held. Safe on every exit path.
func (w *WIM) Close() error {
	var firstErr error
	if w.lockedForAppend {
		w.unlockForAppend()
	}
	if w.staging != nil {
		if err := w.staging.destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.staging = nil
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.file = nil
	}
	w.subwims = nil
	return firstErr
}

// ImageCount returns the number of images.
func (w *WIM) ImageCount() int {
	return len(w.images)
}

// GUID returns the WIM instance identifier.
func (w *WIM) GUID() format.GUID {
	return w.hdr.GUID
}

// Codec returns the WIM's compression type.
func (w *WIM) Codec() compress.CodecID {
	return w.codec
}

// ChunkSize returns the WIM-wide uncompressed chunk size.
func (w *WIM) ChunkSize() uint32 {
	return w.chunkSize
}

// XMLData returns the opaque XML info blob as read from the file, or
// nil when absent.
func (w *WIM) XMLData() []byte {
	return w.xmlData
}

// SetXMLData replaces the opaque XML info blob written by the next
// write.
func (w *WIM) SetXMLData(data []byte) {
	w.xmlData = data
}

// SetOutputCompression overrides the codec and chunk size used by
// the next write. A zero chunk size selects the codec default.
func (w *WIM) SetOutputCompression(codec compress.CodecID, chunkSize uint32) error {
	if !codec.Valid() {
		return fmt.Errorf("%w: codec id %d", format.ErrInvalidCompressionType, codec)
	}
	if chunkSize == 0 {
		chunkSize = codec.DefaultChunkSize()
	}
	if codec != compress.None && !compress.ValidChunkSize(codec, chunkSize) {
		return fmt.Errorf("%w: %d is not valid for codec %s", format.ErrInvalidChunkSize, chunkSize, codec)
	}
	w.outCodec = codec
	w.outChunkSize = chunkSize
	return nil
}

// SetPackCompression overrides the codec and chunk size for packed
// resources written under the pack-streams flag. Defaults to LZMS
// with its default chunk size.
func (w *WIM) SetPackCompression(codec compress.CodecID, chunkSize uint32) error {
	if !codec.Valid() || codec == compress.None {
		return fmt.Errorf("%w: codec id %d", format.ErrInvalidCompressionType, codec)
	}
	if chunkSize == 0 {
		chunkSize = codec.DefaultChunkSize()
	}
	if !compress.ValidChunkSize(codec, chunkSize) {
		return fmt.Errorf("%w: %d is not valid for codec %s", format.ErrInvalidChunkSize, chunkSize, codec)
	}
	w.outPackCodec = codec
	w.outPackChunkSize = chunkSize
	return nil
}

// packCompression resolves the packed-resource codec parameters.
func (w *WIM) packCompression() (compress.CodecID, uint32) {
	if w.outPackCodec != compress.None {
		return w.outPackCodec, w.outPackChunkSize
	}
	return compress.LZMS, compress.LZMS.DefaultChunkSize()
}

// Lookup exposes the stream store entry for a hash, or nil.
func (w *WIM) Lookup(hash format.Hash) *lookup.Entry {
	return w.table.Lookup(hash)
}

// ReferenceResources makes other's streams available to this WIM for
// metadata that references content stored elsewhere (delta and split
// workflows). other must outlive w.
func (w *WIM) ReferenceResources(other *WIM) {
	w.subwims = append(w.subwims, other)
	location := lookup.LocationExternalWIM{File: other.file, Codec: other.codec, ChunkSize: other.chunkSize}
	other.table.ForEach(func(e *lookup.Entry) error {
		if w.table.Lookup(e.Hash) != nil {
			return nil
		}
		w.table.InsertOrCoalesce(&lookup.Entry{
			Hash:     e.Hash,
			ResHdr:   e.ResHdr,
			Location: location,
		})
		return nil
	})
}
