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

package fileorigin

import (
	"crypto/md5" //nolint:gosec // matches the upstream host's own identity hash, not used for security
	"regexp"
	"strconv"
	"strings"
)

// NexusOrigin identifies one file on the Nexus Mods hosting site
// (nexus.py's NexusFileOrigin).
type NexusOrigin struct {
	GameID int
	ModID  int
	FileID int
}

func (n NexusOrigin) Source() string { return "NEXUS" }

func (n NexusOrigin) Equal(o Origin) bool {
	other, ok := o.(NexusOrigin)
	return ok && other.GameID == n.GameID && other.ModID == n.ModID && other.FileID == n.FileID
}

var (
	nexusModIDPattern  = regexp.MustCompile(`(?i)^modID\s*=\s*([0-9]+)\s*$`)
	nexusFileIDPattern = regexp.MustCompile(`(?i)^fileID\s*=\s*([0-9]+)\s*$`)
	nexusURLPattern    = regexp.MustCompile(`(?i)^url\s*=\s*"([^"]*)"\s*$`)
	nexusHTTPSPattern  = regexp.MustCompile(`(?i)^https://.*\.nexus.*\.com.*/([0-9]*)/([0-9]*)/([^?]*).*[?&]md5=([^&]*)&.*`)
)

// NexusMetaParser extracts the modID/fileID/url triple out of a Nexus
// download manager's ".meta" sidecar file, line by line
// (nexus.py's NexusMetaFileParser).
type NexusMetaParser struct {
	GameIDs      []int
	MetaFilePath string

	gameID *int
	modID  *int
	fileID *int
	url    *string

	onWarn func(string)
}

// NewNexusMetaParser returns a parser that only accepts URLs naming one
// of gameIDs (the game-universe filter nexus.py's
// _NexusGameUniverse.is_nexus_gameid_ok performs); onWarn receives
// diagnostic lines for malformed/mismatching URLs, or may be nil to
// discard them.
func NewNexusMetaParser(gameIDs []int, metaFilePath string, onWarn func(string)) *NexusMetaParser {
	if onWarn == nil {
		onWarn = func(string) {}
	}
	return &NexusMetaParser{GameIDs: gameIDs, MetaFilePath: metaFilePath, onWarn: onWarn}
}

func (p *NexusMetaParser) gameIDOK(id int) bool {
	for _, g := range p.GameIDs {
		if g == id {
			return true
		}
	}
	return false
}

func (p *NexusMetaParser) TakeLine(ln string) {
	if m := nexusModIDPattern.FindStringSubmatch(ln); m != nil {
		v, _ := strconv.Atoi(m[1])
		p.modID = &v
	}
	if m := nexusFileIDPattern.FindStringSubmatch(ln); m != nil {
		v, _ := strconv.Atoi(m[1])
		p.fileID = &v
	}
	m := nexusURLPattern.FindStringSubmatch(ln)
	if m == nil {
		return
	}
	url := m[1]
	p.url = &url

	var filenameFromURL, md5Seen *string
	for _, u := range strings.Split(url, ";") {
		m2 := nexusHTTPSPattern.FindStringSubmatch(u)
		if m2 == nil {
			p.onWarn("meta/nexus: unrecognized url " + u + " in " + p.MetaFilePath)
			continue
		}
		gameID, _ := strconv.Atoi(m2[1])
		modID, _ := strconv.Atoi(m2[2])
		fname := m2[3]
		md5v := m2[4]

		if p.gameIDOK(gameID) {
			if p.gameID == nil {
				p.gameID = &gameID
			} else if *p.gameID != gameID {
				p.onWarn("meta/nexus: mismatching game id in " + p.MetaFilePath)
			}
		} else {
			p.onWarn("meta/nexus: unexpected gameid in " + p.MetaFilePath)
		}
		if p.modID != nil && modID != *p.modID {
			p.onWarn("meta/nexus: unmatching url modid in " + p.MetaFilePath)
		}
		if filenameFromURL == nil {
			filenameFromURL = &fname
		} else if *filenameFromURL != fname {
			p.onWarn("meta/nexus: unmatching url filename in " + p.MetaFilePath)
		}
		if md5Seen == nil {
			md5Seen = &md5v
		} else if *md5Seen != md5v {
			p.onWarn("meta/nexus: unmatching url md5 in " + p.MetaFilePath)
		}
	}
}

// MakeOrigin returns the parsed NexusOrigin once game/mod/file IDs are
// known; the url field is preferred but not required
// (nexus.py's make_file_origin).
func (p *NexusMetaParser) MakeOrigin() (Origin, bool) {
	if p.gameID == nil || p.modID == nil || p.fileID == nil {
		return nil, false
	}
	if p.url == nil {
		p.onWarn("meta/nexus: missing url in " + p.MetaFilePath + ", will do without")
	}
	return NexusOrigin{GameID: *p.gameID, ModID: *p.modID, FileID: *p.fileID}, true
}

// NexusMd5 is the auxiliary digest Nexus keys its origins by
// (nexus.py's NexusMd5Hash — MD5 here is a site-identity key, never a
// security boundary).
type nexusMd5 struct {
	h interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

// NewNexusMd5 returns an ExtraHasher computing the MD5 Nexus uses to
// cross-reference a file against its own download API.
func NewNexusMd5() ExtraHasher {
	return &nexusMd5{h: md5.New()}
}

func (n *nexusMd5) Write(p []byte) (int, error) { return n.h.Write(p) }
func (n *nexusMd5) Sum() []byte                 { return n.h.Sum(nil) }

// NexusPlugin is the fileorigin.Plugin for Nexus Mods
// (nexus.py's NexusFileOriginPlugin).
type NexusPlugin struct {
	GameIDs []int
	OnWarn  func(string)
}

func (p *NexusPlugin) Name() string { return "NEXUS" }

func (p *NexusPlugin) NewMetaParser(metaFilePath string) MetaParser {
	return NewNexusMetaParser(p.GameIDs, metaFilePath, p.OnWarn)
}

func (p *NexusPlugin) ExtraDigest() func() ExtraHasher {
	return NewNexusMd5
}
