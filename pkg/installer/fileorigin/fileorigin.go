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

// Package fileorigin records, for a downloaded archive, which hosting
// site it came from and under what identifier, parsed out of the
// companion ".meta" sidecar files download managers write next to an
// archive (plugins/fileorigins.py's FileOrigin/FileOriginPluginBase,
// and the one concrete origin this module ships, nexus.go, grounded on
// plugins/fileorigin/nexus.py).
package fileorigin

import "github.com/summonmm/summon/pkg/retriever"

// Origin is one hosting-site attribution for an archive's content
// digest.
type Origin interface {
	// Source names the plugin that produced this origin, e.g. "NEXUS".
	Source() string
	// Equal reports whether o names the exact same remote file as this
	// origin (plugins/fileorigins.py's FileOrigin.eq).
	Equal(o Origin) bool
}

// MetaParser incrementally consumes a ".meta" sidecar file's lines and
// produces an Origin once enough fields are known
// (plugins/fileorigins.py's MetaFileParser).
type MetaParser interface {
	TakeLine(line string)
	MakeOrigin() (Origin, bool)
}

// Plugin attributes archive digests to remote files.
type Plugin interface {
	Name() string
	// NewMetaParser returns a MetaParser for one ".meta" file,
	// metaFilePath purely for diagnostics.
	NewMetaParser(metaFilePath string) MetaParser
	// ExtraDigest returns the auxiliary content hasher this plugin
	// needs alongside the primary SHA-256 (e.g. Nexus keys origins by
	// MD5), or nil if none.
	ExtraDigest() func() ExtraHasher
}

// ExtraHasher is a streaming auxiliary digest, mirroring
// pkg/hashutil's primary-hash interface so both can be fed from the
// same io.MultiWriter fan-out.
type ExtraHasher interface {
	Write(p []byte) (int, error)
	Sum() []byte
}

// Store accumulates one plugin's known origins, keyed by the primary
// digest they were observed for, and the plugin's own cross-reference
// from primary digest to its extra digest
// (nexus.py's NexusFileOriginPlugin, generalized past Nexus
// specifically).
type Store struct {
	originsByDigest map[retriever.Digest][]Origin
	extraByDigest   map[retriever.Digest][]byte
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		originsByDigest: make(map[retriever.Digest][]Origin),
		extraByDigest:   make(map[retriever.Digest][]byte),
	}
}

// AddOrigin records o for digest h, skipping it if an equal origin is
// already known (nexus.py's add_file_origin dedup-by-eq).
func (s *Store) AddOrigin(h retriever.Digest, o Origin) bool {
	for _, existing := range s.originsByDigest[h] {
		if existing.Equal(o) {
			return false
		}
	}
	s.originsByDigest[h] = append(s.originsByDigest[h], o)
	return true
}

// AddExtraDigest records the plugin's auxiliary digest for h, asserting
// consistency if it was already known (nexus.py's add_hash_mapping).
func (s *Store) AddExtraDigest(h retriever.Digest, extra []byte) bool {
	if existing, ok := s.extraByDigest[h]; ok {
		return string(existing) == string(extra)
	}
	s.extraByDigest[h] = extra
	return true
}

// OriginsFor returns every known origin for h.
func (s *Store) OriginsFor(h retriever.Digest) []Origin {
	return s.originsByDigest[h]
}
