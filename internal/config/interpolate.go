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
	"regexp"
	"strings"
)

var interpolationPattern = regexp.MustCompile(`\{([^}]*)}`)

// isWindowsAbsPath reports whether path is an absolute Windows path
// (drive letter or UNC), independent of the host OS this module is
// built on — every path this module manipulates names a Windows
// modpack/game install, regardless of where summon itself runs.
func isWindowsAbsPath(path string) bool {
	if strings.HasPrefix(path, `\\`) {
		return true
	}
	if len(path) >= 3 && path[1] == ':' && (path[2] == '\\' || path[2] == '/') {
		c := path[0]
		return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
	}
	return false
}

// DirPath resolves a config-supplied directory path relative to
// configDir, first substituting a literal "{CONFIG-DIR}" and then, if a
// single "{a.b.c}" placeholder remains, looking up that dotted path in
// doc and substituting its string value. A resolved placeholder can
// itself introduce a further one (e.g. one dotted value containing
// another placeholder), so resolution repeats until none remain
// (modmanagers.py's config_dir_path, which recurses for the same
// reason). The result always ends in a path separator.
func DirPath(path, configDir string, doc Document) (string, error) {
	path = strings.ReplaceAll(path, "{CONFIG-DIR}", configDir)
	if !isWindowsAbsPath(path) {
		path = configDir + path
	}
	path = normalizeDirPath(path)

	m := interpolationPattern.FindStringSubmatch(path)
	if m == nil {
		return path, nil
	}

	found := m[1]
	val, err := lookupDotted(doc, found)
	if err != nil {
		return "", fmt.Errorf("config: unable to resolve {%s}: %w", found, err)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("config: {%s} must resolve to a string, got %v", found, val)
	}
	path = interpolationPattern.ReplaceAllLiteralString(path, str)
	return DirPath(path, configDir, doc)
}

// lookupDotted walks doc following a "a.b.c" dotted path.
func lookupDotted(doc Document, dotted string) (any, error) {
	var cur any = map[string]any(doc)
	for _, name := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if d, ok2 := cur.(Document); ok2 {
				m = map[string]any(d)
			} else {
				return nil, fmt.Errorf("%q is not an object", name)
			}
		}
		v, ok := m[name]
		if !ok {
			return nil, fmt.Errorf("key %q not found", name)
		}
		cur = v
	}
	return cur, nil
}

func normalizeDirPath(p string) string {
	p = strings.ReplaceAll(p, "/", "\\")
	if !strings.HasSuffix(p, "\\") {
		p += "\\"
	}
	return p
}
