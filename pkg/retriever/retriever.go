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

// Package retriever defines the core data model: on-disk files, archives
// and their contents, and the retriever values describing how any known
// file digest can be re-materialised. Retrievers are explicit immutable
// chains rather than back-pointer graphs, so the archive index never
// needs cycle detection to walk one (design notes, "cyclic object
// graphs").
package retriever

import (
	"fmt"
	"sort"
	"strings"

	"github.com/summonmm/summon/pkg/stablejson"
)

// Digest is a primary SHA-256 content digest.
type Digest [32]byte

// String renders the digest as lower-case hex.
func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:])
}

// TruncatedDigest is the first 9 bytes of a primary digest, used for
// intra-archive file entries to keep the archive index compact.
type TruncatedDigest [9]byte

func (d TruncatedDigest) String() string {
	return fmt.Sprintf("%x", d[:])
}

// ZeroDigest is the SHA-256 of the empty byte string — the canonical
// target of the zero retriever.
var ZeroDigest = Digest{
	0xe3, 0xb0, 0xc4, 0x42, 0x98, 0xfc, 0x1c, 0x14,
	0x9a, 0xfb, 0xf4, 0xc8, 0x99, 0x6f, 0xb9, 0x24,
	0x27, 0xae, 0x41, 0xe4, 0x64, 0x9b, 0x93, 0x4c,
	0xa4, 0x95, 0x99, 0x1b, 0x78, 0x52, 0xb8, 0x55,
}

// FileOnDisk is one file observed by a folder cache scan.
type FileOnDisk struct {
	// Path is the canonical (lower-cased, normalised) absolute path.
	Path string
	// Digest is the SHA-256 of the file's content as of ModTime.
	Digest Digest
	// AuxDigests holds auxiliary digests keyed by the plugin name that
	// requested them (folder cache §4.2 "auxiliary digests").
	AuxDigests map[string][]byte
	Size       int64
	ModTime    int64 // unix nanoseconds
	// QuickCheck is a non-cryptographic xxhash of the file's content,
	// computed alongside Digest in the same hashing pass. The scan uses it
	// as a cheap tie-break when mtime moves but size doesn't, to tell a
	// touched-but-unmodified file from an actually-changed one without
	// paying for a full SHA-256 recompute.
	QuickCheck uint64
}

// FolderToCache is a named root directory plus excluded subdirectories.
type FolderToCache struct {
	Root     string
	Excludes []string
}

// Overlaps reports whether two FolderToCache values overlap in a way not
// fully resolved by exclusion — i.e. one root is a prefix of the other and
// the nested root is not listed as an exclusion of the outer one. Folder
// cache construction rejects such overlapping sets (spec §4.2 invariant).
func (f FolderToCache) Overlaps(other FolderToCache) bool {
	if f.Root == other.Root {
		return true
	}
	contains := func(outer, inner FolderToCache) bool {
		if !isUnderDir(inner.Root, outer.Root) {
			return false
		}
		for _, ex := range outer.Excludes {
			if isUnderDir(inner.Root, ex) || inner.Root == ex {
				return false
			}
		}
		return true
	}
	return contains(f, other) || contains(other, f)
}

func isUnderDir(path, dir string) bool {
	dir = strings.TrimRight(dir, "/")
	return path == dir || strings.HasPrefix(path, dir+"/")
}

// IsUnderDir reports whether path is dir itself or a descendant of dir.
// Exported for the folder cache, which needs the same containment check
// to prune excluded subtrees during a scan.
func IsUnderDir(path, dir string) bool {
	return isUnderDir(path, dir)
}

// FileInArchive is one entry inside an indexed archive.
type FileInArchive struct {
	// IntraPath is relative, lower-case, backslash-separated, no leading
	// separator and no drive letter.
	IntraPath string
	Digest    TruncatedDigest
	Size      int64
}

// NormalizeIntraPath lower-cases a path and converts forward slashes to
// backslashes, matching the archive index's on-disk convention, and
// strips any leading separator.
func NormalizeIntraPath(p string) string {
	p = strings.ToLower(p)
	p = strings.ReplaceAll(p, "/", "\\")
	p = strings.TrimLeft(p, "\\")
	return p
}

// StableJSON renders a FileInArchive as {"h": truncated-digest, "s": size}.
func (f FileInArchive) StableJSON() any {
	return stablejson.Object{
		"h": stablejson.Bytes(f.Digest[:]),
		"s": f.Size,
	}
}

// ExtraDatum is one installer plugin's per-archive memoised extra data
// (archive indexer step 4, "ExtraDataFactory"). Err holds the captured
// error message if the plugin raised rather than produced data.
type ExtraDatum struct {
	Data []byte
	Err  string
}

func (d ExtraDatum) StableJSON() any {
	if d.Err != "" {
		return stablejson.Object{"err": d.Err}
	}
	return stablejson.Object{"data": stablejson.Bytes(d.Data)}
}

// Archive is a content-addressed archive record: primary key is Digest.
// Entries are stable-ordered (by IntraPath) when persisted.
type Archive struct {
	Digest      Digest
	Size        int64
	Attribution string
	Files       []FileInArchive
	// ExtraData holds each installer plugin's memoised per-archive data,
	// keyed by plugin name.
	ExtraData map[string]ExtraDatum
}

// StableJSON renders an Archive as the canonical on-disk record: size,
// attribution, the file list keyed by intra-path, and any plugin extra
// data, all as sorted-key objects.
func (a Archive) StableJSON() any {
	files := make(map[string]any, len(a.Files))
	for _, f := range a.Files {
		files[f.IntraPath] = f
	}
	obj := stablejson.Object{
		"x": a.Size,
		"f": files,
	}
	if a.Attribution != "" {
		obj["b"] = a.Attribution
	}
	if len(a.ExtraData) > 0 {
		extra := make(map[string]any, len(a.ExtraData))
		for name, d := range a.ExtraData {
			extra[name] = d
		}
		obj["e"] = extra
	}
	return obj
}

// RetrieverKind distinguishes the three retriever shapes so they can be
// dispatched through a small interface-table, never reflection (design
// notes, "dynamic dispatch").
type RetrieverKind int

const (
	KindZero RetrieverKind = iota
	KindGithub
	KindArchive
)

// Retriever describes one way to re-materialise a file of a given digest.
type Retriever interface {
	Kind() RetrieverKind
	TargetDigest() Digest
}

// ZeroRetriever is the single canonical instance representing the
// zero-length file.
type ZeroRetriever struct{}

func (ZeroRetriever) Kind() RetrieverKind   { return KindZero }
func (ZeroRetriever) TargetDigest() Digest  { return ZeroDigest }

// TheZeroRetriever is the one shared instance (spec: "single canonical
// instance").
var TheZeroRetriever = ZeroRetriever{}

// GithubRetriever describes a file recoverable from a companion
// repository.
type GithubRetriever struct {
	Digest    Digest
	Size      int64
	Author    string
	Project   string
	IntraPath string // relative to the project root
}

func (g GithubRetriever) Kind() RetrieverKind  { return KindGithub }
func (g GithubRetriever) TargetDigest() Digest { return g.Digest }

// ArchiveLink is one hop in an ArchiveRetriever's outer-to-inner chain.
type ArchiveLink struct {
	ArchiveDigest Digest
	File          FileInArchive
	// FileDigest is the full (untruncated) digest of File's content,
	// needed so chain[i].FileDigest == chain[i+1].ArchiveDigest can be
	// checked; the archive index carries only a truncated digest per
	// entry, so the full digest is attached by whatever built the chain
	// (the archive indexer, which hashed the nested archive itself).
	FileDigest Digest
}

// ArchiveRetriever is an explicit, immutable outer-to-inner chain of
// archive links. The last link's file digest is the retriever's target.
// Chains are values, never back-pointer graphs, so there is no cycle to
// detect when walking one (design notes).
type ArchiveRetriever struct {
	Chain []ArchiveLink
}

func (a ArchiveRetriever) Kind() RetrieverKind { return KindArchive }

func (a ArchiveRetriever) TargetDigest() Digest {
	if len(a.Chain) == 0 {
		return Digest{}
	}
	return a.Chain[len(a.Chain)-1].FileDigest
}

// Valid checks the chain invariant: length >= 1 and each link's file
// digest equals the next link's archive digest.
func (a ArchiveRetriever) Valid() bool {
	if len(a.Chain) == 0 {
		return false
	}
	for i := 0; i+1 < len(a.Chain); i++ {
		if a.Chain[i].FileDigest != a.Chain[i+1].ArchiveDigest {
			return false
		}
	}
	return true
}

// Prepend returns a new chain with link placed before the receiver's
// existing chain (used when the resolver discovers an outer archive
// containing an already-known inner archive).
func (a ArchiveRetriever) Prepend(link ArchiveLink) ArchiveRetriever {
	chain := make([]ArchiveLink, 0, len(a.Chain)+1)
	chain = append(chain, link)
	chain = append(chain, a.Chain...)
	return ArchiveRetriever{Chain: chain}
}

// ResolvedVFS is the composed view of enabled mod folders layered into a
// single tree.
type ResolvedVFS struct {
	// SourceToTarget maps an absolute source path to its VFS-relative
	// target path.
	SourceToTarget map[string]string
	// TargetToSources maps a VFS-relative target path to the ordered list
	// of FileOnDisk entries that map to it, in increasing overwrite
	// priority (last wins).
	TargetToSources map[string][]FileOnDisk
}

// NewResolvedVFS returns an empty, initialised ResolvedVFS.
func NewResolvedVFS() *ResolvedVFS {
	return &ResolvedVFS{
		SourceToTarget:  make(map[string]string),
		TargetToSources: make(map[string][]FileOnDisk),
	}
}

// Add records that source maps to target, appending to the overwrite
// order for target.
func (v *ResolvedVFS) Add(source FileOnDisk, target string) {
	v.SourceToTarget[source.Path] = target
	v.TargetToSources[target] = append(v.TargetToSources[target], source)
}

// Winner returns the FileOnDisk that wins at target (last in overwrite
// order), or false if target is unknown.
func (v *ResolvedVFS) Winner(target string) (FileOnDisk, bool) {
	list := v.TargetToSources[target]
	if len(list) == 0 {
		return FileOnDisk{}, false
	}
	return list[len(list)-1], true
}

// TentativeNames tracks, for each archive digest, the set of filenames
// under which it has been observed. Monotonic: entries are only added,
// never removed, since a tentative name remains a useful diagnostic hint
// even after better information arrives.
type TentativeNames struct {
	names map[Digest]map[string]struct{}
}

// NewTentativeNames returns an empty TentativeNames set.
func NewTentativeNames() *TentativeNames {
	return &TentativeNames{names: make(map[Digest]map[string]struct{})}
}

// Add records that digest was observed under filename (lower-cased).
func (t *TentativeNames) Add(digest Digest, filename string) {
	filename = strings.ToLower(filename)
	set, ok := t.names[digest]
	if !ok {
		set = make(map[string]struct{})
		t.names[digest] = set
	}
	set[filename] = struct{}{}
}

// Names returns the sorted list of tentative names for digest.
func (t *TentativeNames) Names(digest Digest) []string {
	set := t.names[digest]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
