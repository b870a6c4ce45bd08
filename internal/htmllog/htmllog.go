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

// Package htmllog writes the full run trace to an HTML file, independent
// of what the console shows. The scheduler's log-drain goroutine can drop
// INFO-and-below lines from the console under backpressure (spec.md §5,
// "Logging"), but every record, dropped or not, still lands here — this
// is the "HTML file log" spec.md §7 requires for capturing a full
// traceback on a task exception.
package htmllog

import (
	"fmt"
	"html"
	"io"
	"os"
	"sync"
	"time"
)

// Level mirrors the handful of severities the scheduler's log queue
// carries.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) cssClass() string {
	switch l {
	case LevelInfo:
		return "lvl-info"
	case LevelWarn:
		return "lvl-warn"
	case LevelError:
		return "lvl-error"
	case LevelCritical:
		return "lvl-critical"
	default:
		return "lvl-info"
	}
}

// Writer appends one HTML table row per record to an open file. It is
// safe for concurrent use by multiple goroutines; the scheduler's single
// log-drain goroutine is the only expected writer, but callers outside
// the drain (startup, fatal errors) may also log directly.
type Writer struct {
	mu     sync.Mutex
	f      io.WriteCloser
	closed bool
}

const htmlHeader = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>summon run log</title>
<style>
body { font-family: monospace; font-size: 13px; }
table { border-collapse: collapse; width: 100%; }
td, th { border-bottom: 1px solid #ddd; padding: 2px 6px; vertical-align: top; }
.lvl-info { color: #222; }
.lvl-warn { color: #9a6700; }
.lvl-error { color: #cf222e; }
.lvl-critical { color: #fff; background: #cf222e; }
pre { margin: 0; white-space: pre-wrap; }
</style></head><body>
<table><thead><tr><th>time</th><th>level</th><th>event</th><th>detail</th></tr></thead><tbody>
`

const htmlFooter = `</tbody></table></body></html>
`

// Create opens path for writing and emits the HTML document header. The
// caller must call Close to emit a well-formed document footer.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create html log %s: %w", path, err)
	}
	if _, err := f.WriteString(htmlHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write html log header: %w", err)
	}
	return &Writer{f: f}, nil
}

// Record appends one row. detail may be empty; when non-empty it is
// rendered inside a <pre> block (e.g. a captured traceback).
func (w *Writer) Record(level Level, event, detail string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	fmt.Fprintf(w.f, "<tr class=%q><td>%s</td><td>%s</td><td>%s</td><td><pre>%s</pre></td></tr>\n",
		level.cssClass(),
		html.EscapeString(time.Now().UTC().Format(time.RFC3339Nano)),
		level.String(),
		html.EscapeString(event),
		html.EscapeString(detail),
	)
}

// Close writes the document footer and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.f.Write([]byte(htmlFooter)); err != nil {
		w.f.Close()
		return fmt.Errorf("write html log footer: %w", err)
	}
	return w.f.Close()
}
