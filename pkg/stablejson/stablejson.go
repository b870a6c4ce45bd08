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

// Package stablejson implements the canonical "stable JSON" form used for
// VCS-friendly persistence: sorted object keys, schema-ordered lists,
// unpadded base64 for byte strings, enums as their integer value, LF
// newlines, indent width 1. Two runs over identical data must produce
// byte-identical output (testable property #3, #4).
//
// Unlike the original Python implementation (summonmm.gitdata.stable_json),
// which walks a declarative per-field schema via reflection, this package
// asks each domain type to assemble its own canonical tree through the
// Marshaler interface. The package's only job is to render that tree
// (object/array/string/number/bool/null/Bytes) deterministically; schema
// knowledge — field order, which lists are already sorted by a primary
// key, which strings are really byte digests — lives with the type that
// owns it, the idiomatic Go analogue of the Python schema declarations.
package stablejson

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshaler is implemented by any domain type that can render itself into
// the canonical value tree. Returned maps need not be pre-sorted; Marshal
// sorts object keys. Returned slices are emitted in the order given, so a
// type whose schema calls for list sorting must sort before returning
// (see SortByKey).
type Marshaler interface {
	StableJSON() any
}

// Bytes marks a []byte value that must be rendered as unpadded base64
// rather than treated as an arbitrary Go byte slice (which encoding/json
// would otherwise base64-pad).
type Bytes []byte

// Object is a canonical-tree map. Plain map[string]any is also accepted by
// Marshal, but Object preserves intent in domain-type code.
type Object map[string]any

// Marshal renders v as canonical stable JSON: UTF-8, LF newlines, indent
// width 1, object keys sorted, Bytes values as unpadded base64, integers
// and enums as plain JSON numbers.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, resolve(v), 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resolve(v any) any {
	if m, ok := v.(Marshaler); ok {
		return resolve(m.StableJSON())
	}
	return v
}

func encodeValue(buf *bytes.Buffer, v any, depth int) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case Marshaler:
		return encodeValue(buf, t.StableJSON(), depth)
	case Bytes:
		return encodeString(buf, base64.RawStdEncoding.EncodeToString(t))
	case []byte:
		return encodeString(buf, base64.RawStdEncoding.EncodeToString(t))
	case string:
		return encodeString(buf, t)
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case int:
		fmt.Fprintf(buf, "%d", t)
		return nil
	case int64:
		fmt.Fprintf(buf, "%d", t)
		return nil
	case uint64:
		fmt.Fprintf(buf, "%d", t)
		return nil
	case float64:
		enc, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	case Object:
		return encodeObject(buf, map[string]any(t), depth)
	case map[string]any:
		return encodeObject(buf, t, depth)
	case []any:
		return encodeArray(buf, t, depth)
	default:
		return fmt.Errorf("stablejson: unsupported value type %T", v)
	}
}

func encodeString(buf *bytes.Buffer, s string) error {
	enc, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(enc)
	return nil
}

func indent(buf *bytes.Buffer, depth int) {
	buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		buf.WriteByte(' ')
	}
}

func encodeObject(buf *bytes.Buffer, m map[string]any, depth int) error {
	if len(m) == 0 {
		buf.WriteString("{}")
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		indent(buf, depth+1)
		if err := encodeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		buf.WriteByte(' ')
		if err := encodeValue(buf, resolve(m[k]), depth+1); err != nil {
			return err
		}
	}
	indent(buf, depth)
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, a []any, depth int) error {
	if len(a) == 0 {
		buf.WriteString("[]")
		return nil
	}
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		indent(buf, depth+1)
		if err := encodeValue(buf, resolve(v), depth+1); err != nil {
			return err
		}
	}
	indent(buf, depth)
	buf.WriteByte(']')
	return nil
}

// SortByKey sorts items in place by a string key extracted by keyFn,
// mirroring the Python schema's "sort list-of-object by declared primary
// key field" rule. Callers assembling a Marshaler's StableJSON tree use
// this before placing the list in the tree.
func SortByKey[T any](items []T, keyFn func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		return keyFn(items[i]) < keyFn(items[j])
	})
}

// Unmarshal decodes canonical stable JSON into a generic tree of
// map[string]any / []any / string / float64 / bool / nil, the same shape
// encoding/json produces for interface{} targets. Byte-string fields
// remain unpadded-base64-encoded strings; it is the caller's
// responsibility (mirroring the domain type's own schema) to know which
// string fields to base64-decode back into Bytes.
func Unmarshal(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("stablejson: unmarshal: %w", err)
	}
	return v, nil
}

// DecodeBytes reverses the unpadded-base64 encoding applied by Marshal to
// Bytes/[]byte values.
func DecodeBytes(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(s)
}
