// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package wim

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/ChloeTigre/wimlib/lib/format"
)

// stagingManifestName is the sidecar manifest inside a staging
// directory. It records every spill file so an interrupted process
// leaves an inventory a later cleanup can act on, rather than
// anonymous temp files.
const stagingManifestName = "manifest.cbor"

// stagingManifest is the CBOR sidecar record.
type stagingManifest struct {
	// Version is the manifest format version. Currently 1.
	Version int `json:"version"`

	// Files lists the live spill files, relative to the staging
	// directory.
	Files []stagingFile `json:"files"`
}

type stagingFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

const stagingManifestVersion = 1

// stagingArea owns a temp directory of spilled stream content for
// entries in the staging-file location state.
type stagingArea struct {
	dir     string
	files   map[string]int64 // name -> size
	counter int
}

// ensureStaging lazily creates the WIM's staging directory.
func (w *WIM) ensureStaging() (*stagingArea, error) {
	if w.staging != nil {
		return w.staging, nil
	}
	dir, err := os.MkdirTemp("", "wimlib-staging-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	w.staging = &stagingArea{dir: dir, files: make(map[string]int64)}
	if err := w.staging.saveManifest(); err != nil {
		os.RemoveAll(dir)
		w.staging = nil
		return nil, err
	}
	return w.staging, nil
}

// spill copies size bytes from src into a fresh staging file,
// hashing them on the way through. Returns the file path, the
// content hash, and the byte count actually copied.
func (s *stagingArea) spill(src io.Reader, size int64) (string, format.Hash, int64, error) {
	name := fmt.Sprintf("stream-%06d", s.counter)
	s.counter++
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", format.Hash{}, 0, fmt.Errorf("creating staging file: %w", err)
	}

	hasher := format.NewHasher()
	n, copyErr := io.Copy(f, io.TeeReader(io.LimitReader(src, size), hasher))
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(path)
		return "", format.Hash{}, n, fmt.Errorf("%w: spilling stream: %v", format.ErrWrite, copyErr)
	}
	if closeErr != nil {
		os.Remove(path)
		return "", format.Hash{}, n, fmt.Errorf("%w: closing staging file: %v", format.ErrWrite, closeErr)
	}

	s.files[name] = n
	if err := s.saveManifest(); err != nil {
		os.Remove(path)
		delete(s.files, name)
		return "", format.Hash{}, n, err
	}
	return path, hasher.Sum(), n, nil
}

// read returns a staging file's content.
func (s *stagingArea) read(path string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: staging area is gone", format.ErrCorrupt)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading staging file: %v", format.ErrRead, err)
	}
	return data, nil
}

// remove drops one spill file.
func (s *stagingArea) remove(path string) {
	os.Remove(path)
	delete(s.files, filepath.Base(path))
	s.saveManifest()
}

// saveManifest rewrites the sidecar manifest atomically.
func (s *stagingArea) saveManifest() error {
	manifest := stagingManifest{Version: stagingManifestVersion}
	for name, size := range s.files {
		manifest.Files = append(manifest.Files, stagingFile{Name: name, Size: size})
	}

	data, err := cbor.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("marshaling staging manifest: %w", err)
	}
	tmp := filepath.Join(s.dir, stagingManifestName+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing staging manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, stagingManifestName)); err != nil {
		return fmt.Errorf("committing staging manifest: %w", err)
	}
	return nil
}

// destroy removes the staging directory and everything in it.
func (s *stagingArea) destroy() error {
	if s == nil {
		return nil
	}
	return os.RemoveAll(s.dir)
}
