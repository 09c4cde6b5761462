// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package wim

import (
	"fmt"
	"io"

	"github.com/ChloeTigre/wimlib/lib/compress"
	"github.com/ChloeTigre/wimlib/lib/dirtree"
	"github.com/ChloeTigre/wimlib/lib/format"
	"github.com/ChloeTigre/wimlib/lib/lookup"
	"github.com/ChloeTigre/wimlib/lib/resource"
)

// checkImageIndex validates a 1-based image index.
func (w *WIM) checkImageIndex(image int) error {
	if image < 1 || image > len(w.images) {
		return fmt.Errorf("%w: image %d (WIM has %d)", format.ErrInvalidParam, image, len(w.images))
	}
	return nil
}

// SelectImage makes the given 1-based image current, materializing
// its metadata.
func (w *WIM) SelectImage(image int) error {
	if err := w.checkImageIndex(image); err != nil {
		return err
	}
	if _, err := w.ImageTree(image); err != nil {
		return err
	}
	w.currentImage = image
	return nil
}

// ImageTree returns the parsed directory tree of the given 1-based
// image. The metadata resource is read once and cached.
func (w *WIM) ImageTree(image int) (*dirtree.Tree, error) {
	if err := w.checkImageIndex(image); err != nil {
		return nil, err
	}
	meta := w.images[image-1]
	if meta.tree != nil {
		return meta.tree.(*dirtree.Tree), nil
	}

	data, err := w.metadataBytes(meta)
	if err != nil {
		return nil, err
	}
	tree, err := dirtree.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("image %d: %w", image, err)
	}
	meta.tree = tree
	return tree, nil
}

// metadataBytes reads an image's metadata resource.
func (w *WIM) metadataBytes(meta *ImageMetadata) ([]byte, error) {
	if meta.entry == nil {
		return nil, format.ErrMetadataNotFound
	}
	return w.entryBytes(meta.entry)
}

// AddImage appends a new image built from the given directory tree
// and returns its 1-based index. Stream content the tree references
// must already be in the store (AddStream, WriteStream, or an opened
// source WIM).
func (w *WIM) AddImage(tree *dirtree.Tree) (int, error) {
	data, err := dirtree.Marshal(tree)
	if err != nil {
		return 0, err
	}

	// Every referenced stream gains a reference now, so dedup and
	// refcounts hold before the image is ever written.
	var missing int
	for _, hash := range tree.References() {
		e := w.table.Lookup(hash)
		if e == nil {
			missing++
			continue
		}
		e.RefCount++
		e.Free = false
	}
	if missing > 0 {
		return 0, fmt.Errorf("%w: image references %d streams not in the store", format.ErrInvalidParam, missing)
	}

	entry := &lookup.Entry{
		Hash:     format.HashBytes(data),
		ResHdr:   format.ResHdr{Flags: format.ResFlagMetadata, UncompressedSize: uint64(len(data))},
		RefCount: 1,
		Location: lookup.LocationBuffer{Data: data},
	}
	meta := &ImageMetadata{entry: entry, tree: tree, dirty: true}
	w.images = append(w.images, meta)
	w.hdr.ImageCount = uint32(len(w.images))
	return len(w.images), nil
}

// UpdateImage replaces an image's directory tree.
func (w *WIM) UpdateImage(image int, tree *dirtree.Tree) error {
	if err := w.checkImageIndex(image); err != nil {
		return err
	}
	if err := w.ensureRefCounts(); err != nil {
		return err
	}

	// Drop the old tree's references, add the new ones.
	old, err := w.ImageTree(image)
	if err != nil {
		return err
	}
	for _, hash := range tree.References() {
		e := w.table.Lookup(hash)
		if e == nil {
			return fmt.Errorf("%w: tree references stream %s not in the store", format.ErrInvalidParam, hash)
		}
		e.RefCount++
		e.Free = false
	}
	for _, hash := range old.References() {
		if e := w.table.Lookup(hash); e != nil {
			w.table.Decrement(e)
		}
	}

	data, err := dirtree.Marshal(tree)
	if err != nil {
		return err
	}
	meta := w.images[image-1]
	meta.entry = &lookup.Entry{
		Hash:     format.HashBytes(data),
		ResHdr:   format.ResHdr{Flags: format.ResFlagMetadata, UncompressedSize: uint64(len(data))},
		RefCount: 1,
		Location: lookup.LocationBuffer{Data: data},
	}
	meta.tree = tree
	meta.dirty = true
	return nil
}

// DeleteImage removes an image, dropping one reference from every
// stream it references. The stream bytes are reclaimed at the next
// rebuilding write; in-place append is no longer possible without
// the soft-delete flag.
func (w *WIM) DeleteImage(image int) error {
	if err := w.checkImageIndex(image); err != nil {
		return err
	}
	if err := w.ensureRefCounts(); err != nil {
		return err
	}

	tree, err := w.ImageTree(image)
	if err != nil {
		return err
	}
	for _, hash := range tree.References() {
		if e := w.table.Lookup(hash); e != nil {
			w.table.Decrement(e)
		}
	}

	w.images = append(w.images[:image-1], w.images[image:]...)
	w.hdr.ImageCount = uint32(len(w.images))
	if w.currentImage == image {
		w.currentImage = 0
	} else if w.currentImage > image {
		w.currentImage--
	}
	if w.hdr.BootIndex == uint32(image) {
		w.hdr.BootIndex = 0
	} else if w.hdr.BootIndex > uint32(image) {
		w.hdr.BootIndex--
	}
	w.deletionOccurred = true
	return nil
}

// ExportImage copies an image and every stream it references into
// dst. Streams dst already holds are deduplicated; only their
// refcounts grow.
func (w *WIM) ExportImage(image int, dst *WIM) (int, error) {
	tree, err := w.ImageTree(image)
	if err != nil {
		return 0, err
	}

	seen := make(map[format.Hash]bool)
	for _, hash := range tree.References() {
		if seen[hash] {
			continue
		}
		seen[hash] = true
		if dst.table.Lookup(hash) != nil {
			continue
		}
		src := w.table.Lookup(hash)
		if src == nil {
			return 0, fmt.Errorf("%w: image references stream %s not in the source store", format.ErrCorrupt, hash)
		}
		data, err := w.entryBytes(src)
		if err != nil {
			return 0, fmt.Errorf("exporting stream %s: %w", hash, err)
		}
		dst.table.InsertOrCoalesce(&lookup.Entry{
			Hash:     hash,
			ResHdr:   format.ResHdr{UncompressedSize: uint64(len(data))},
			Location: lookup.LocationBuffer{Data: data},
		})
	}
	return dst.AddImage(tree)
}

// SetBootIndex selects the image loaders boot from (0 disables).
func (w *WIM) SetBootIndex(image int) error {
	if image != 0 {
		if err := w.checkImageIndex(image); err != nil {
			return err
		}
	}
	w.hdr.BootIndex = uint32(image)
	return nil
}

// RecalculateRefCounts re-derives every stream's refcount from the
// image metadata trees. Required before deletions on WIMs produced
// by tools that write wrong counts.
func (w *WIM) RecalculateRefCounts() error {
	imageRefs := make([][]format.Hash, 0, len(w.images))
	for i := range w.images {
		tree, err := w.ImageTree(i + 1)
		if err != nil {
			return err
		}
		imageRefs = append(imageRefs, tree.References())
	}

	missing := w.table.Recalculate(imageRefs)
	for _, hash := range missing {
		w.logger.Warn("image references a stream absent from the lookup table",
			"hash", hash.String())
	}

	// Metadata entries are referenced by the header, not by trees.
	for _, meta := range w.images {
		if meta.entry != nil {
			meta.entry.RefCount = 1
			meta.entry.Free = false
		}
	}
	w.refCountsOK = true
	return nil
}

// ensureRefCounts recalculates refcounts once per WIM lifetime
// before any operation that decrements them.
func (w *WIM) ensureRefCounts() error {
	if w.refCountsOK {
		return nil
	}
	return w.RecalculateRefCounts()
}

// entryBytes materializes a stream's full content from wherever it
// lives, verifying the hash for hashed in-WIM entries.
func (w *WIM) entryBytes(e *lookup.Entry) ([]byte, error) {
	switch loc := e.Location.(type) {
	case lookup.LocationBuffer:
		return loc.Data, nil

	case lookup.LocationStagingFile:
		return w.staging.read(loc.Path)

	case lookup.LocationInWIM:
		return w.packedAwareRead(loc.File, e, loc.Codec, loc.ChunkSize)

	case lookup.LocationExternalWIM:
		return w.packedAwareRead(loc.File, e, loc.Codec, loc.ChunkSize)

	default:
		return nil, fmt.Errorf("%w: stream %s has no resource location", format.ErrCorrupt, e.Hash)
	}
}

// packedAwareRead reads an in-WIM resource, routing packed members
// through the packed sub-header.
func (w *WIM) packedAwareRead(file io.ReaderAt, e *lookup.Entry, codec compress.CodecID, chunkSize uint32) ([]byte, error) {
	if e.ResHdr.IsPacked() {
		packed, err := resource.OpenPacked(file, e.ResHdr)
		if err != nil {
			return nil, err
		}
		data, err := packed.ReadMember(e.Hash)
		if err != nil {
			return nil, err
		}
		if !e.Unhashed {
			if got := format.HashBytes(data); got != e.Hash {
				return nil, fmt.Errorf("%w: stream hash %s does not match expected %s", format.ErrCorrupt, got, e.Hash)
			}
		}
		return data, nil
	}

	wantHash := e.Hash
	if e.Unhashed {
		wantHash = format.Hash{}
	}
	return resource.ReadAll(file, e.ResHdr, codec, chunkSize, wantHash)
}
