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

package archiveindex

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/pkg/retriever"
	"github.com/summonmm/summon/pkg/stablejson"
)

// load reads the persisted index, tolerating a missing file (first run).
func (ix *Index) load() error {
	data, err := os.ReadFile(ix.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewIOError(fmt.Sprintf("read archive index %s", ix.path), err.Error(), "", err)
	}

	tree, err := stablejson.Unmarshal(data)
	if err != nil {
		return errors.NewDataIntegrityError(
			fmt.Sprintf("parse archive index %s", ix.path),
			err.Error(),
			"delete the file to force a full re-index",
			err,
		)
	}

	root, ok := tree.(map[string]any)
	if !ok {
		return errors.NewDataIntegrityError(fmt.Sprintf("parse archive index %s", ix.path), "top-level value is not an object", "delete the file to force a full re-index", nil)
	}
	archivesRaw, _ := root["archives"].(map[string]any)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for hexDigest, v := range archivesRaw {
		digest, err := decodeDigest(hexDigest)
		if err != nil {
			return err
		}
		ar, err := decodeArchive(digest, v)
		if err != nil {
			return err
		}
		ix.archives[digest] = ar
	}
	return nil
}

// save persists the index as canonical stable JSON, atomically, only if
// it has changed since the last save.
func (ix *Index) save() error {
	ix.mu.Lock()
	if !ix.dirty {
		ix.mu.Unlock()
		return nil
	}
	archives := make(map[string]any, len(ix.archives))
	for digest, ar := range ix.archives {
		archives[digest.String()] = ar
	}
	ix.mu.Unlock()

	out, err := stablejson.Marshal(stablejson.Object{"archives": archives})
	if err != nil {
		return errors.NewDataIntegrityError("encode archive index", err.Error(), "", err)
	}

	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return errors.NewIOError(fmt.Sprintf("create directory for %s", ix.path), err.Error(), "", err)
	}
	tmp := ix.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return errors.NewIOError(fmt.Sprintf("write archive index %s", tmp), err.Error(), "", err)
	}
	if err := os.Rename(tmp, ix.path); err != nil {
		return errors.NewIOError(fmt.Sprintf("rename archive index into place %s", ix.path), err.Error(), "", err)
	}

	ix.mu.Lock()
	ix.dirty = false
	ix.mu.Unlock()
	return nil
}

func decodeDigest(hexStr string) (retriever.Digest, error) {
	var d retriever.Digest
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != len(d) {
		return d, errors.NewDataIntegrityError(
			"parse archive index",
			fmt.Sprintf("invalid digest key %q", hexStr),
			"delete the file to force a full re-index",
			err,
		)
	}
	copy(d[:], b)
	return d, nil
}

func decodeTruncatedDigest(s string) (retriever.TruncatedDigest, error) {
	var d retriever.TruncatedDigest
	b, err := stablejson.DecodeBytes(s)
	if err != nil || len(b) != len(d) {
		return d, errors.NewDataIntegrityError("parse archive index", fmt.Sprintf("invalid truncated digest %q", s), "delete the file to force a full re-index", err)
	}
	copy(d[:], b)
	return d, nil
}

func decodeArchive(digest retriever.Digest, v any) (retriever.Archive, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return retriever.Archive{}, errors.NewDataIntegrityError("parse archive index", "archive entry is not an object", "delete the file to force a full re-index", nil)
	}
	ar := retriever.Archive{Digest: digest}
	if x, ok := obj["x"].(float64); ok {
		ar.Size = int64(x)
	}
	if b, ok := obj["b"].(string); ok {
		ar.Attribution = b
	}
	if filesRaw, ok := obj["f"].(map[string]any); ok {
		ar.Files = make([]retriever.FileInArchive, 0, len(filesRaw))
		for intraPath, fv := range filesRaw {
			fobj, ok := fv.(map[string]any)
			if !ok {
				continue
			}
			f := retriever.FileInArchive{IntraPath: intraPath}
			if h, ok := fobj["h"].(string); ok {
				d, err := decodeTruncatedDigest(h)
				if err != nil {
					return retriever.Archive{}, err
				}
				f.Digest = d
			}
			if s, ok := fobj["s"].(float64); ok {
				f.Size = int64(s)
			}
			ar.Files = append(ar.Files, f)
		}
	}
	if extraRaw, ok := obj["e"].(map[string]any); ok {
		ar.ExtraData = make(map[string]retriever.ExtraDatum, len(extraRaw))
		for name, ev := range extraRaw {
			eobj, ok := ev.(map[string]any)
			if !ok {
				continue
			}
			datum := retriever.ExtraDatum{}
			if errMsg, ok := eobj["err"].(string); ok {
				datum.Err = errMsg
			} else if data, ok := eobj["data"].(string); ok {
				decoded, err := stablejson.DecodeBytes(data)
				if err != nil {
					return retriever.Archive{}, errors.NewDataIntegrityError("parse archive index", fmt.Sprintf("invalid extra data for plugin %q", name), "delete the file to force a full re-index", err)
				}
				datum.Data = decoded
			}
			ar.ExtraData[name] = datum
		}
	}
	return ar, nil
}
