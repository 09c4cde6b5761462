// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
)

// HashSize is the size of a stream hash in bytes. The WIM format uses
// SHA-1 for content addressing, lookup table keys, and the integrity
// table, so this is fixed at 20.
const HashSize = sha1.Size

// Hash is a 20-byte SHA-1 digest. A zero Hash means "no hash": it is
// used for directory entries without stream content and for lookup
// entries whose bytes are still being fed (unhashed).
type Hash [HashSize]byte

// IsZero reports whether the hash is the all-zero "no hash" value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded form of the hash. This is the
// canonical format used in logs and CLI output.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashBytes computes the SHA-1 digest of data.
func HashBytes(data []byte) Hash {
	return Hash(sha1.Sum(data))
}

// HashReader computes the SHA-1 digest of everything readable from r.
func HashReader(r io.Reader) (Hash, int64, error) {
	var hash Hash
	digest := sha1.New()
	n, err := io.Copy(digest, r)
	if err != nil {
		return hash, n, fmt.Errorf("hashing stream: %w", err)
	}
	copy(hash[:], digest.Sum(nil))
	return hash, n, nil
}

// ParseHash parses a 40-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing stream hash: %w", err)
	}
	if len(decoded) != HashSize {
		return hash, fmt.Errorf("stream hash is %d bytes, want %d", len(decoded), HashSize)
	}
	copy(hash[:], decoded)
	return hash, nil
}

// Hasher is an incremental SHA-1 hasher producing a Hash. It wraps
// the stdlib hash so callers do not have to repeat the Sum/copy
// dance.
type Hasher struct {
	inner interface {
		io.Writer
		Sum([]byte) []byte
		Reset()
	}
}

// NewHasher creates an incremental hasher.
func NewHasher() *Hasher {
	return &Hasher{inner: sha1.New()}
}

// Write feeds data into the hasher. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.inner.Write(p)
}

// Sum returns the digest of everything written so far.
func (h *Hasher) Sum() Hash {
	var hash Hash
	copy(hash[:], h.inner.Sum(nil))
	return hash
}

// Reset returns the hasher to its initial state.
func (h *Hasher) Reset() {
	h.inner.Reset()
}
