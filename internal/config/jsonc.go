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

// Package config loads and resolves the project configuration file and
// modpack root configs: JSONC parsing, `{dotted.path}`/`{CONFIG-DIR}`
// path interpolation, and the modmanager selection and mod-dependency
// bookkeeping built on top of both
// (helpers/project_config.py's LocalProjectConfig/GithubModpackConfig).
package config

import (
	"encoding/json"
	"fmt"
)

// StripComments removes `//` line comments and `/* */` block comments
// from JSONC source, leaving string literal contents untouched, so the
// result can be fed to encoding/json. No third-party JSON5/JSONC/HJSON
// library appears anywhere in the example corpus (DESIGN.md), so this
// small pre-pass stands in for one.
func StripComments(src []byte) []byte {
	out := make([]byte, 0, len(src))
	inString := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}

		if c == '/' && i+1 < len(src) && src[i+1] == '/' {
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				out = append(out, '\n')
			}
			continue
		}

		if c == '/' && i+1 < len(src) && src[i+1] == '*' {
			i += 2
			for i+1 < len(src) && !(src[i] == '*' && src[i+1] == '/') {
				if src[i] == '\n' {
					out = append(out, '\n')
				}
				i++
			}
			i++ // step onto the '/' of "*/"; the loop's i++ then skips past it
			continue
		}

		out = append(out, c)
	}
	return out
}

// ParseJSONC decodes JSONC bytes into v, stripping comments first.
func ParseJSONC(src []byte, v any) error {
	if err := json.Unmarshal(StripComments(src), v); err != nil {
		return fmt.Errorf("config: parse JSONC: %w", err)
	}
	return nil
}

// Document is a parsed JSONC object, used as the root for
// `{dotted.path}` interpolation lookups.
type Document map[string]any
