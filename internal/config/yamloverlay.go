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

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overlayFileName is the optional YAML fragment a modpack community
// maintains alongside the generated JSONC project config, for
// modmanager-adapter settings that change more often than the project
// config itself (an MO2 ignore-dir list, generated-profile aliases).
const overlayFileName = "summon.overlay.yaml"

// LoadYAMLOverlay reads configDir's optional overlay file, keyed the same
// way as the project config's own modmanager sections (top-level key is
// the modmanager name). A missing file is not an error: most modpacks have
// no overlay and get nil, which ApplyYAMLOverlay treats as a no-op.
func LoadYAMLOverlay(configDir string) (Document, error) {
	raw, err := os.ReadFile(configDir + overlayFileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read %s%s: %w", configDir, overlayFileName, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s%s: %w", configDir, overlayFileName, err)
	}
	return Document(doc), nil
}

// ApplyYAMLOverlay shallow-merges overlay's mmName section on top of
// section, with the overlay's values winning key-by-key. A nil overlay, or
// one with no section for mmName, leaves section untouched.
func ApplyYAMLOverlay(section Document, overlay Document, mmName string) Document {
	if overlay == nil {
		return section
	}
	overlaySection, ok := overlay[mmName].(map[string]any)
	if !ok {
		return section
	}

	merged := make(Document, len(section)+len(overlaySection))
	for k, v := range section {
		merged[k] = v
	}
	for k, v := range overlaySection {
		merged[k] = v
	}
	return merged
}
