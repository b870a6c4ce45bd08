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

package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// weightStore persists per-task-name duration estimates (seconds) across
// runs, the way a build system remembers how long each step took last time
// so it can pick a good execution order before it has timed anything in the
// current run. Updates are a smoothed average rather than a plain
// overwrite, so one unusually slow or fast run doesn't whipsaw the
// estimate (checkpoint.go's atomic-rewrite persistence style, applied to a
// float map instead of a progress record).
type weightStore struct {
	mu     sync.Mutex
	path   string
	values map[string]float64
	dirty  bool
}

func newWeightStore(path string) *weightStore {
	return &weightStore{path: path, values: make(map[string]float64)}
}

// loadWeightStore reads path if it exists; a missing file is not an error,
// it just means every task starts with the default weight.
func loadWeightStore(path string) (*weightStore, error) {
	ws := newWeightStore(path)
	if path == "" {
		return ws, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ws, nil
		}
		return nil, fmt.Errorf("read weight file %s: %w", path, err)
	}
	if len(data) == 0 {
		return ws, nil
	}
	if err := json.Unmarshal(data, &ws.values); err != nil {
		return nil, fmt.Errorf("parse weight file %s: %w", path, err)
	}
	return ws, nil
}

// get returns the stored weight for name, or def if none is recorded yet.
func (ws *weightStore) get(name string, def float64) float64 {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if v, ok := ws.values[name]; ok {
		return v
	}
	return def
}

// record applies a smoothed update: new estimate is the average of the
// previous estimate and the just-observed duration. The first observation
// for a name is taken verbatim.
func (ws *weightStore) record(name string, observedSeconds float64) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if prev, ok := ws.values[name]; ok {
		ws.values[name] = (prev + observedSeconds) / 2
	} else {
		ws.values[name] = observedSeconds
	}
	ws.dirty = true
}

// save writes the weight map to path atomically (temp file + rename), the
// same pattern checkpoint.go uses for its progress file.
func (ws *weightStore) save() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.path == "" || !ws.dirty {
		return nil
	}
	data, err := json.MarshalIndent(ws.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal weight file: %w", err)
	}
	dir := filepath.Dir(ws.path)
	tmp, err := os.CreateTemp(dir, ".weights-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp weight file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp weight file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp weight file: %w", err)
	}
	if err := os.Rename(tmpName, ws.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp weight file: %w", err)
	}
	ws.dirty = false
	return nil
}
