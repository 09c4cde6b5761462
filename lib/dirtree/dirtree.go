// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

// Package dirtree is the built-in image metadata collaborator: it
// serializes an image's directory tree (names, attributes,
// timestamps, per-stream content hashes, security descriptors) into
// the byte buffer the container engine stores as the image's
// metadata resource, and parses it back.
//
// The engine core treats metadata as opaque bytes; it only needs the
// list of stream hashes an image references, which References
// provides. Trees are encoded as CBOR with Core Deterministic
// Encoding so identical trees always produce identical metadata
// resources (and therefore identical metadata hashes).
package dirtree

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/ChloeTigre/wimlib/lib/format"
)

// TreeVersion is the current metadata format version.
const TreeVersion = 1

// File attribute bits, matching the conventional Windows values the
// capture collaborators produce.
const (
	AttrReadonly     uint32 = 0x0001
	AttrHidden       uint32 = 0x0002
	AttrSystem       uint32 = 0x0004
	AttrDirectory    uint32 = 0x0010
	AttrArchive      uint32 = 0x0020
	AttrNormal       uint32 = 0x0080
	AttrReparsePoint uint32 = 0x0400
)

// NoSecurityID marks a node without a security descriptor.
const NoSecurityID = int32(-1)

// Tree is one image's serialized directory tree.
type Tree struct {
	// Version is the metadata format version. Currently 1.
	Version int `json:"version"`

	// SecurityDescriptors holds the image's security descriptor
	// blobs; nodes reference them by index.
	SecurityDescriptors [][]byte `json:"security_descriptors,omitempty"`

	// Root is the image's root directory. Its name is empty.
	Root *Node `json:"root"`
}

// Node is a file or directory within an image.
type Node struct {
	// Name is the file name within its parent. Empty only for the
	// root.
	Name string `json:"name,omitempty"`

	// ShortName is the DOS 8.3 name, when one was captured.
	ShortName string `json:"short_name,omitempty"`

	// Attributes is the file attribute bitset (Attr* values).
	Attributes uint32 `json:"attributes"`

	// SecurityID indexes into the tree's security descriptor table,
	// or NoSecurityID.
	SecurityID int32 `json:"security_id"`

	// CreationTime, LastAccessTime and LastWriteTime are Windows
	// FILETIME values (100ns ticks since 1601).
	CreationTime   uint64 `json:"creation_time,omitempty"`
	LastAccessTime uint64 `json:"last_access_time,omitempty"`
	LastWriteTime  uint64 `json:"last_write_time,omitempty"`

	// Hash addresses the node's unnamed data stream. Zero for
	// directories and empty files.
	Hash format.Hash `json:"hash,omitempty"`

	// Size is the uncompressed size of the unnamed data stream.
	Size uint64 `json:"size,omitempty"`

	// Streams holds named (alternate) data streams.
	Streams []NamedStream `json:"streams,omitempty"`

	// Children holds directory contents. AddFile appends in insertion
	// order; Marshal sorts them by name.
	Children []*Node `json:"children,omitempty"`
}

// NamedStream is an alternate data stream attached to a node.
type NamedStream struct {
	Name string      `json:"name"`
	Hash format.Hash `json:"hash"`
	Size uint64      `json:"size"`
}

// IsDirectory reports whether the node is a directory.
func (n *Node) IsDirectory() bool {
	return n.Attributes&AttrDirectory != 0
}

// cborEncMode uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. Same logical tree always produces identical bytes.
var cborEncMode cbor.EncMode

// cborDecMode accepts standard CBOR; unknown fields are ignored for
// forward compatibility.
var cborDecMode cbor.DecMode

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("dirtree: CBOR encoder initialization failed: " + err.Error())
	}
	cborDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("dirtree: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal serializes a tree into metadata resource bytes. Children
// are sorted by name first so logically identical trees marshal
// identically regardless of construction order.
func Marshal(tree *Tree) ([]byte, error) {
	if tree == nil || tree.Root == nil {
		return nil, fmt.Errorf("%w: metadata tree has no root", format.ErrInvalidParam)
	}
	if !tree.Root.IsDirectory() {
		return nil, fmt.Errorf("%w: metadata root is not a directory", format.ErrInvalidParam)
	}
	normalize(tree.Root)
	out := *tree
	out.Version = TreeVersion
	data, err := cborEncMode.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata tree: %w", err)
	}
	return data, nil
}

// Unmarshal parses metadata resource bytes back into a tree.
func Unmarshal(data []byte) (*Tree, error) {
	var tree Tree
	if err := cborDecMode.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("%w: parsing metadata tree: %v", format.ErrCorrupt, err)
	}
	if tree.Version != TreeVersion {
		return nil, fmt.Errorf("%w: metadata tree version %d", format.ErrUnknownVersion, tree.Version)
	}
	if tree.Root == nil {
		return nil, fmt.Errorf("%w: metadata tree has no root", format.ErrCorrupt)
	}
	return &tree, nil
}

// normalize sorts every directory's children by name, recursively.
func normalize(n *Node) {
	sort.Slice(n.Children, func(i, j int) bool {
		return n.Children[i].Name < n.Children[j].Name
	})
	for _, child := range n.Children {
		normalize(child)
	}
}

// References returns every nonzero stream hash the tree references,
// in walk order with duplicates preserved (a hash referenced by two
// files appears twice; reference counting depends on that).
func (t *Tree) References() []format.Hash {
	var refs []format.Hash
	t.Walk(func(n *Node) {
		if !n.Hash.IsZero() {
			refs = append(refs, n.Hash)
		}
		for _, s := range n.Streams {
			if !s.Hash.IsZero() {
				refs = append(refs, s.Hash)
			}
		}
	})
	return refs
}

// Walk visits every node of the tree depth-first, parents before
// children.
func (t *Tree) Walk(visit func(*Node)) {
	if t.Root == nil {
		return
	}
	var walk func(*Node)
	walk = func(n *Node) {
		visit(n)
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(t.Root)
}

// Lookup resolves a slash-separated path within the tree. An empty
// path returns the root.
func (t *Tree) Lookup(path string) *Node {
	node := t.Root
	if path == "" {
		return node
	}
	start := 0
	for start < len(path) {
		end := start
		for end < len(path) && path[end] != '/' {
			end++
		}
		name := path[start:end]
		start = end + 1
		if name == "" {
			continue
		}
		var next *Node
		for _, child := range node.Children {
			if child.Name == name {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		node = next
	}
	return node
}

// NewRoot returns an empty directory tree.
func NewRoot() *Tree {
	return &Tree{
		Version: TreeVersion,
		Root: &Node{
			Attributes: AttrDirectory,
			SecurityID: NoSecurityID,
		},
	}
}

// AddFile inserts a file node at the slash-separated path, creating
// intermediate directories as needed.
func (t *Tree) AddFile(path string, hash format.Hash, size uint64) (*Node, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty file path", format.ErrInvalidParam)
	}
	parent := t.Root
	start := 0
	for {
		end := start
		for end < len(path) && path[end] != '/' {
			end++
		}
		name := path[start:end]
		last := end >= len(path)
		if name == "" {
			if last {
				return nil, fmt.Errorf("%w: path %q ends in a separator", format.ErrInvalidParam, path)
			}
			start = end + 1
			continue
		}

		var existing *Node
		for _, child := range parent.Children {
			if child.Name == name {
				existing = child
				break
			}
		}

		if last {
			if existing != nil {
				return nil, fmt.Errorf("%w: %q already exists", format.ErrInvalidParam, path)
			}
			node := &Node{
				Name:       name,
				Attributes: AttrNormal,
				SecurityID: NoSecurityID,
				Hash:       hash,
				Size:       size,
			}
			parent.Children = append(parent.Children, node)
			return node, nil
		}

		if existing == nil {
			existing = &Node{
				Name:       name,
				Attributes: AttrDirectory,
				SecurityID: NoSecurityID,
			}
			parent.Children = append(parent.Children, existing)
		} else if !existing.IsDirectory() {
			return nil, fmt.Errorf("%w: %q crosses a non-directory", format.ErrInvalidParam, path)
		}
		parent = existing
		start = end + 1
	}
}
