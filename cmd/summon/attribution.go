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

package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/summonmm/summon/internal/config"
	"github.com/summonmm/summon/pkg/archiveindex"
	"github.com/summonmm/summon/pkg/foldercache"
	"github.com/summonmm/summon/pkg/installer/fileorigin"
)

// attributeDownloads reads the ".meta" sidecar download managers leave
// next to an archive and records where each downloaded archive came
// from, so the manifest's attribution strings can name the mod page a
// file was pulled from instead of a bare digest. A download with no
// sidecar, or a sidecar that doesn't parse, is skipped silently — not
// every archive a modpack references was downloaded through a manager
// that writes one.
func attributeDownloads(rootCfg *config.GithubModpackConfig, downloads *foldercache.Cache, archives *archiveindex.Index) error {
	if rootCfg == nil {
		return nil
	}
	plugin := nexusPluginFor(rootCfg)
	if plugin == nil {
		return nil
	}

	store := fileorigin.NewStore()
	for _, f := range downloads.AllFiles() {
		metaPath := f.Path + ".meta"
		data, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}

		parser := plugin.NewMetaParser(metaPath)
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			parser.TakeLine(sc.Text())
		}
		origin, ok := parser.MakeOrigin()
		if !ok {
			continue
		}
		if !store.AddOrigin(f.Digest, origin) {
			continue
		}
		if err := archives.SetAttribution(f.Digest, attributionText(origin)); err != nil {
			return err
		}
	}
	return nil
}

// nexusPluginFor builds the Nexus origin plugin from the root modpack's
// "origins.nexus.gameids" config section
// (plugins/fileorigin/nexus.py's NexusFileOriginPlugin construction from
// project config), or returns nil if the section is absent.
func nexusPluginFor(rootCfg *config.GithubModpackConfig) *fileorigin.NexusPlugin {
	nexusCfg, _ := rootCfg.OriginConfigs["nexus"].(map[string]any)
	if nexusCfg == nil {
		return nil
	}
	raw, _ := nexusCfg["gameids"].([]any)
	if len(raw) == 0 {
		return nil
	}
	ids := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			ids = append(ids, int(f))
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return &fileorigin.NexusPlugin{GameIDs: ids}
}

func attributionText(o fileorigin.Origin) string {
	if n, ok := o.(fileorigin.NexusOrigin); ok {
		return fmt.Sprintf("NEXUS:%d/%d/%d", n.GameID, n.ModID, n.FileID)
	}
	return o.Source()
}
