// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package dirtree

import (
	"bytes"
	"testing"

	"github.com/ChloeTigre/wimlib/lib/format"
)

func sampleTree(t *testing.T) *Tree {
	t.Helper()
	tree := NewRoot()
	files := []struct {
		path    string
		content string
	}{
		{"readme.txt", "hello"},
		{"bin/tool", "#!/bin/sh"},
		{"bin/tool2", "#!/bin/sh"}, // same content as tool
		{"data/nested/deep.bin", "payload"},
	}
	for _, f := range files {
		data := []byte(f.content)
		if _, err := tree.AddFile(f.path, format.HashBytes(data), uint64(len(data))); err != nil {
			t.Fatalf("AddFile(%q) failed: %v", f.path, err)
		}
	}
	return tree
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	tree := sampleTree(t)

	data, err := Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	parsed, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, path := range []string{"readme.txt", "bin/tool", "data/nested/deep.bin"} {
		if parsed.Lookup(path) == nil {
			t.Errorf("path %q lost in round trip", path)
		}
	}
	if parsed.Lookup("bin") == nil || !parsed.Lookup("bin").IsDirectory() {
		t.Error("intermediate directory lost or not a directory")
	}
	if parsed.Lookup("missing") != nil {
		t.Error("Lookup invented a node")
	}
}

func TestMarshalDeterministic(t *testing.T) {
	// Two trees with the same files added in different orders must
	// serialize identically.
	a := NewRoot()
	b := NewRoot()
	hash := format.HashBytes([]byte("x"))
	for _, p := range []string{"a.txt", "z.txt", "m/n.txt"} {
		if _, err := a.AddFile(p, hash, 1); err != nil {
			t.Fatal(err)
		}
	}
	for _, p := range []string{"m/n.txt", "z.txt", "a.txt"} {
		if _, err := b.AddFile(p, hash, 1); err != nil {
			t.Fatal(err)
		}
	}

	dataA, err := Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	dataB, err := Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dataA, dataB) {
		t.Error("insertion order leaked into serialized metadata")
	}
}

func TestReferencesCountDuplicates(t *testing.T) {
	tree := sampleTree(t)
	refs := tree.References()

	// 4 files, one shared hash between bin/tool and bin/tool2:
	// references preserve duplicates for refcounting.
	if len(refs) != 4 {
		t.Fatalf("got %d references, want 4", len(refs))
	}
	counts := make(map[format.Hash]int)
	for _, r := range refs {
		counts[r]++
	}
	shared := format.HashBytes([]byte("#!/bin/sh"))
	if counts[shared] != 2 {
		t.Errorf("shared hash counted %d times, want 2", counts[shared])
	}
}

func TestReferencesIncludeNamedStreams(t *testing.T) {
	tree := NewRoot()
	node, err := tree.AddFile("file.bin", format.HashBytes([]byte("main")), 4)
	if err != nil {
		t.Fatal(err)
	}
	adsHash := format.HashBytes([]byte("alternate"))
	node.Streams = append(node.Streams, NamedStream{Name: "ads", Hash: adsHash, Size: 9})

	refs := tree.References()
	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2", len(refs))
	}
	if refs[1] != adsHash {
		t.Error("named stream hash missing from references")
	}
}

func TestAddFileValidation(t *testing.T) {
	tree := sampleTree(t)

	if _, err := tree.AddFile("readme.txt", format.Hash{}, 0); err == nil {
		t.Error("AddFile overwrote an existing path")
	}
	if _, err := tree.AddFile("readme.txt/child", format.Hash{}, 0); err == nil {
		t.Error("AddFile descended through a file")
	}
	if _, err := tree.AddFile("", format.Hash{}, 0); err == nil {
		t.Error("AddFile accepted an empty path")
	}
	if _, err := tree.AddFile("dir/", format.Hash{}, 0); err == nil {
		t.Error("AddFile accepted a trailing separator")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("not cbor at all")); err == nil {
		t.Error("Unmarshal accepted garbage")
	}
}

func TestMarshalRejectsBadRoots(t *testing.T) {
	if _, err := Marshal(&Tree{}); err == nil {
		t.Error("Marshal accepted a rootless tree")
	}
	if _, err := Marshal(&Tree{Root: &Node{Attributes: AttrNormal}}); err == nil {
		t.Error("Marshal accepted a non-directory root")
	}
}

func TestWalkOrder(t *testing.T) {
	tree := sampleTree(t)
	var names []string
	tree.Walk(func(n *Node) { names = append(names, n.Name) })
	if names[0] != "" {
		t.Error("walk did not start at the root")
	}
	// Parents precede children.
	order := make(map[*Node]int)
	tree.Walk(func(n *Node) { order[n] = len(order) })
	tree.Walk(func(n *Node) {
		for _, child := range n.Children {
			if order[child] < order[n] {
				t.Errorf("%q visited before its parent %q", child.Name, n.Name)
			}
		}
	})
	seen := map[string]bool{"": true}
	for _, n := range names {
		seen[n] = true
	}
	if !seen["bin"] || !seen["tool"] || !seen["deep.bin"] {
		t.Errorf("walk missed nodes: %v", names)
	}
}
