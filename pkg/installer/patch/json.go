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

package patch

import (
	"encoding/json"
	"sort"
)

// DiffJSON walks src and dst (both already decoded via
// json.Unmarshal(..., &any)) in lock-step and records every scalar
// field dst overwrites or deletes relative to src, keyed by its JSON
// path (plugins/patch/json.py's JsonPatchPlugin._patch_json_object).
// Arrays are compared element-wise by index, objects by key; a key
// present in src but absent from dst becomes a delete record, a key
// whose scalar value differs becomes an overwrite record, and a key
// whose nested object/array differs recurses. DiffJSON returns nil if
// no field differed, matching the original's "skip when zero keys
// matched" behavior.
func DiffJSON(srcRaw, dstRaw []byte) (*Patch, error) {
	var src, dst any
	if err := json.Unmarshal(srcRaw, &src); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dstRaw, &dst); err != nil {
		return nil, err
	}

	p := &Patch{}
	diffJSONValue(nil, src, dst, p)
	if p.Empty() {
		return nil, nil
	}
	sortOps(p)
	return p, nil
}

func diffJSONValue(path []string, src, dst any, p *Patch) {
	srcObj, srcIsObj := src.(map[string]any)
	dstObj, dstIsObj := dst.(map[string]any)
	if srcIsObj && dstIsObj {
		diffJSONObject(path, srcObj, dstObj, p)
		return
	}

	srcArr, srcIsArr := src.([]any)
	dstArr, dstIsArr := dst.([]any)
	if srcIsArr && dstIsArr {
		diffJSONArray(path, srcArr, dstArr, p)
		return
	}

	if !jsonScalarEqual(src, dst) {
		p.Ops = append(p.Ops, Op{Path: clonePath(path), Value: dst})
	}
}

func diffJSONObject(path []string, src, dst map[string]any, p *Patch) {
	for key, srcVal := range src {
		dstVal, ok := dst[key]
		childPath := append(clonePath(path), key)
		if !ok {
			p.Ops = append(p.Ops, Op{Path: childPath, Delete: true})
			continue
		}
		diffJSONValue(childPath, srcVal, dstVal, p)
	}
	for key, dstVal := range dst {
		if _, ok := src[key]; ok {
			continue
		}
		p.Ops = append(p.Ops, Op{Path: append(clonePath(path), key), Value: dstVal})
	}
}

func diffJSONArray(path []string, src, dst []any, p *Patch) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		childPath := append(clonePath(path), indexKey(i))
		diffJSONValue(childPath, src[i], dst[i], p)
	}
	for i := n; i < len(src); i++ {
		p.Ops = append(p.Ops, Op{Path: append(clonePath(path), indexKey(i)), Delete: true})
	}
	for i := n; i < len(dst); i++ {
		p.Ops = append(p.Ops, Op{Path: append(clonePath(path), indexKey(i)), Value: dst[i]})
	}
}

func jsonScalarEqual(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	return a == nil && b == nil
}

func indexKey(i int) string {
	return "[" + itoa(i) + "]"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

func clonePath(path []string) []string {
	out := make([]string, len(path))
	copy(out, path)
	return out
}

func sortOps(p *Patch) {
	sort.SliceStable(p.Ops, func(i, j int) bool {
		return joinPath(p.Ops[i].Path) < joinPath(p.Ops[j].Path)
	})
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

// ApplyJSON applies p to src, returning the patched document re-encoded
// as sorted-key JSON (the "SORTEDJSON" plugin name: the patched output
// is always re-serialized with keys sorted, so re-applying a patch to
// the same source is byte-stable).
func ApplyJSON(srcRaw []byte, p *Patch) ([]byte, error) {
	var src any
	if err := json.Unmarshal(srcRaw, &src); err != nil {
		return nil, err
	}
	for _, op := range p.Ops {
		src = applyJSONOp(src, op.Path, op)
	}
	return marshalSortedJSON(src)
}

func applyJSONOp(node any, path []string, op Op) any {
	if len(path) == 0 {
		if op.Delete {
			return nil
		}
		return op.Value
	}
	key := path[0]
	if obj, ok := node.(map[string]any); ok {
		if len(path) == 1 {
			if op.Delete {
				delete(obj, key)
			} else {
				obj[key] = op.Value
			}
			return obj
		}
		child, ok := obj[key]
		if !ok {
			child = map[string]any{}
		}
		obj[key] = applyJSONOp(child, path[1:], op)
		return obj
	}
	return node
}

func marshalSortedJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte("{")
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := marshalSortedJSON(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, kb...)
			out = append(out, ':')
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte("[")
		for i, e := range t {
			if i > 0 {
				out = append(out, ',')
			}
			eb, err := marshalSortedJSON(e)
			if err != nil {
				return nil, err
			}
			out = append(out, eb...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(t)
	}
}
