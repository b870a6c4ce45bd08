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

package globaltool

import (
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/summonmm/summon/pkg/retriever"
)

// bodySlideContext is what CreateContext builds from one scan of the
// resolved VFS (bodyslide.py's _BodySlideToolPluginContext).
type bodySlideContext struct {
	// relOutputFiles holds every "data\...\..." path (lower-case, no
	// extension) that the installed SliderSets configuration would
	// (re)generate the next time BodySlide is run.
	relOutputFiles map[string]struct{}
	// targetFiles holds every resolved VFS target path with a .tri or
	// .nif extension.
	targetFiles map[string]struct{}
}

var bodySlideOSPPattern = regexp.MustCompile(`(?i)^data\\calientetools\\bodyslide\\slidersets\\.*\.osp$`)

// BodySlidePlugin explains ".tri"/".nif" body and outfit meshes as the
// output of running the BodySlide tool against the SliderSets group
// configuration installed into the load order
// (plugins/globaltool/bodyslide.py's BodySlideGlobalToolPlugin).
type BodySlidePlugin struct {
	// OnWarn receives diagnostics for malformed ".osp" files, mirroring
	// the Python plugin's warn() calls. May be nil.
	OnWarn func(string)

	// ReadFile reads a file from its on-disk path. Defaults to
	// os.ReadFile; overridable for tests.
	ReadFile func(path string) ([]byte, error)
}

func (p BodySlidePlugin) Name() string             { return "BodySlide" }
func (p BodySlidePlugin) SupportedGames() []string { return []string{"SKYRIM"} }
func (p BodySlidePlugin) Extensions() []string     { return []string{".tri", ".nif"} }

func (p BodySlidePlugin) warn(msg string) {
	if p.OnWarn != nil {
		p.OnWarn(msg)
	}
}

func (p BodySlidePlugin) readFile(path string) ([]byte, error) {
	if p.ReadFile != nil {
		return p.ReadFile(path)
	}
	return os.ReadFile(path)
}

// CreateContext scans every resolved target file once: ".tri"/".nif"
// targets are recorded so CouldBeProduced can pair them up, and the
// last (highest-priority) source of every installed SliderSets ".osp"
// file is parsed to learn which outputs the current configuration
// would actually (re)generate (bodyslide.py's create_context).
func (p BodySlidePlugin) CreateContext(vfs *retriever.ResolvedVFS) (any, error) {
	ctx := &bodySlideContext{
		relOutputFiles: make(map[string]struct{}),
		targetFiles:    make(map[string]struct{}),
	}
	for relpath, sources := range vfs.TargetToSources {
		ext := strings.ToLower(filepath.Ext(relpath))
		if ext == ".tri" || ext == ".nif" {
			ctx.targetFiles[relpath] = struct{}{}
		}
		if bodySlideOSPPattern.MatchString(relpath) && len(sources) > 0 {
			winner := sources[len(sources)-1]
			raw, err := p.readFile(winner.Path)
			if err != nil {
				p.warn("Error reading " + winner.Path + ": " + err.Error())
				continue
			}
			for _, out := range parseOSP(raw, winner.Path, p.warn) {
				ctx.relOutputFiles[out] = struct{}{}
			}
		}
	}
	return ctx, nil
}

// CouldBeProduced judges one ".tri"/".nif" target file against the
// scanned context, applying BodySlide's two companion-file heuristics:
// a ".tri" normally ships alongside "_0.nif"/"_1.nif" weight variants
// or an unweighted ".nif" sharing its base name, and vice versa
// (bodyslide.py's could_be_produced).
func (p BodySlidePlugin) CouldBeProduced(ctxAny any, srcPath, targetPath string) CouldBeProducedByGlobalTool {
	ctx, ok := ctxAny.(*bodySlideContext)
	if !ok {
		return NotFound
	}

	ext := strings.ToLower(filepath.Ext(targetPath))
	base := strings.TrimSuffix(targetPath, filepath.Ext(targetPath))

	if ext == ".tri" {
		if _, ok := ctx.relOutputFiles[base]; ok {
			return WithCurrentConfig
		}
		f0, f1 := base+"_0.nif", base+"_1.nif"
		if _, ok0 := ctx.targetFiles[f0]; ok0 {
			if _, ok1 := ctx.targetFiles[f1]; ok1 {
				return Maybe
			}
		}
		if _, ok := ctx.targetFiles[base+".nif"]; ok {
			return Maybe
		}
		return NotFound
	}

	// ext == ".nif"
	if strings.HasSuffix(base, "_0") || strings.HasSuffix(base, "_1") {
		trimmed := base[:len(base)-2]
		if _, ok := ctx.relOutputFiles[trimmed]; ok {
			return WithCurrentConfig
		}
		f0, f1, ftri := trimmed+"_0.nif", trimmed+"_1.nif", trimmed+".tri"
		_, ok0 := ctx.targetFiles[f0]
		_, ok1 := ctx.targetFiles[f1]
		_, okTri := ctx.targetFiles[ftri]
		if ok0 && ok1 && okTri {
			return Maybe
		}
		return NotFound
	}

	if _, ok := ctx.relOutputFiles[base]; ok {
		return WithCurrentConfig
	}
	if _, ok := ctx.targetFiles[base+".tri"]; ok {
		return Maybe
	}
	return NotFound
}

// parseOSP parses a BodySlide ".osp" SliderSets project file, returning
// every "data\<OutputPath>\<OutputFile>" string (lower-cased) it
// declares (bodyslide.py's _parse_osp).
func parseOSP(raw []byte, fname string, warn func(string)) []string {
	dec := xml.NewDecoder(strings.NewReader(string(raw)))

	var out []string
	var sawRoot bool

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			warn("Error parsing " + fname + ": " + err.Error())
			return nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !sawRoot {
			sawRoot = true
			if !strings.EqualFold(start.Name.Local, "SliderSetInfo") {
				warn("Unexpected root tag " + start.Name.Local + " in " + fname)
				return nil
			}
			continue
		}
		if strings.EqualFold(start.Name.Local, "SliderSet") {
			name := attrValue(start, "name")
			if name == "" {
				name = "?"
			}
			outputFile, outputPath, ok := parseSliderSet(dec, fname, name, warn)
			if !ok {
				continue
			}
			out = append(out, strings.ToLower(`data\`+outputPath+`\`+outputFile))
		}
	}
	return out
}

func attrValue(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value
		}
	}
	return ""
}

// parseSliderSet consumes one <SliderSet>...</SliderSet> subtree,
// extracting its <OutputFile> and <OutputPath> text.
func parseSliderSet(dec *xml.Decoder, fname, slidersetName string, warn func(string)) (outputFile, outputPath string, ok bool) {
	depth := 0
	var haveFile, havePath bool

	for {
		tok, err := dec.Token()
		if err != nil {
			return "", "", false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case strings.EqualFold(t.Name.Local, "OutputFile"):
				if haveFile {
					warn("Duplicate <OutputFile> tag for " + slidersetName + " in " + fname)
				} else {
					outputFile = strings.TrimSpace(readCharData(dec))
					haveFile = true
					depth-- // readCharData consumed </OutputFile>
				}
			case strings.EqualFold(t.Name.Local, "OutputPath"):
				if havePath {
					warn("Duplicate <OutputPath> tag for " + slidersetName + " in " + fname)
				} else {
					outputPath = strings.TrimSpace(readCharData(dec))
					havePath = true
					depth-- // readCharData consumed </OutputPath>
				}
			}
		case xml.EndElement:
			if depth == 0 {
				if !haveFile || !havePath {
					warn("Missing <OutputFile> or <OutputPath> tag for " + slidersetName + " in " + fname)
					return "", "", false
				}
				return outputFile, outputPath, true
			}
			depth--
		}
	}
}

// readCharData reads the character data immediately following a start
// element, stopping at its matching end element.
func readCharData(dec *xml.Decoder) string {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return sb.String()
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return sb.String()
			}
			depth--
		}
	}
}
