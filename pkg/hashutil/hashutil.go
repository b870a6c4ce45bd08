// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package hashutil streams a file once, producing a primary SHA-256 digest
// plus zero or more auxiliary digests requested by file-origin plugins.
package hashutil

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// DigestSize is the length in bytes of a primary digest.
const DigestSize = sha256.Size

// TruncatedSize is the length in bytes of an intra-archive digest.
const TruncatedSize = 9

// AuxFactory builds a new auxiliary hash.Hash instance (e.g. md5.New),
// named so results can be attributed back to the plugin that requested it.
type AuxFactory struct {
	Name    string
	NewHash func() hash.Hash
}

// Result is the outcome of hashing one file.
type Result struct {
	Primary [DigestSize]byte
	Size    int64
	Aux     map[string][]byte
	// QuickCheck is a non-cryptographic xxhash of the same bytes, computed
	// in the same pass as Primary at no extra I/O cost. The folder cache
	// persists it alongside mtime/size as a cheap tie-break: when a file's
	// mtime moves but its size doesn't, QuickDigestFile lets the scan tell
	// "touched, not modified" from an actual content change without paying
	// for a full SHA-256 recompute.
	QuickCheck uint64
}

// Truncated returns the first TruncatedSize bytes of the primary digest,
// used for intra-archive file entries per the archive index format.
func (r Result) Truncated() [TruncatedSize]byte {
	var out [TruncatedSize]byte
	copy(out[:], r.Primary[:TruncatedSize])
	return out
}

// Hasher computes a primary SHA-256 digest and a configured set of
// auxiliary digests in a single pass over a file's bytes.
type Hasher struct {
	auxFactories []AuxFactory
}

// New creates a Hasher with the given ordered auxiliary digest factories.
// The order is preserved only for deterministic plugin replay; results are
// returned keyed by name.
func New(auxFactories ...AuxFactory) *Hasher {
	return &Hasher{auxFactories: auxFactories}
}

// HashFile streams the file at path, computing the primary digest and all
// configured auxiliary digests in one read pass.
func (h *Hasher) HashFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return h.HashReader(f)
}

// HashReader streams r, computing the primary digest and all configured
// auxiliary digests in one read pass.
func (h *Hasher) HashReader(r io.Reader) (Result, error) {
	primary := sha256.New()
	quick := xxhash.New()
	writers := []io.Writer{primary, quick}

	auxHashes := make(map[string]hash.Hash, len(h.auxFactories))
	for _, f := range h.auxFactories {
		hh := f.NewHash()
		auxHashes[f.Name] = hh
		writers = append(writers, hh)
	}

	mw := io.MultiWriter(writers...)
	size, err := io.Copy(mw, r)
	if err != nil {
		return Result{}, fmt.Errorf("hash stream: %w", err)
	}

	var result Result
	copy(result.Primary[:], primary.Sum(nil))
	result.Size = size
	result.QuickCheck = quick.Sum64()
	if len(auxHashes) > 0 {
		result.Aux = make(map[string][]byte, len(auxHashes))
		for name, hh := range auxHashes {
			result.Aux[name] = hh.Sum(nil)
		}
	}

	return result, nil
}

// QuickDigestFile computes only the xxhash of path's content, skipping the
// SHA-256 pass entirely. The folder cache uses this as a cheap tie-break
// when a file's mtime has moved but its size hasn't: a matching xxhash means
// the content is unchanged (and the stored primary digest is still valid),
// so the expensive full HashFile re-pass can be skipped.
func QuickDigestFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("quick-digest %s: %w", path, err)
	}
	return h.Sum64(), nil
}

// ZeroDigest is the SHA-256 of the empty byte string, the canonical target
// of the zero retriever (spec ZeroRetriever, scenario S5).
var ZeroDigest = sha256.Sum256(nil)

// IsZero reports whether digest is the empty-content digest.
func IsZero(digest [DigestSize]byte) bool {
	return digest == ZeroDigest
}
