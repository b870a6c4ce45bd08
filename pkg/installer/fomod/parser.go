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

package fomod

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/summonmm/summon/internal/errors"
)

// The xmlXxx types mirror ModuleConfig.xml's schema closely enough for
// encoding/xml to unmarshal it directly; Parse then converts the raw
// tree into the domain types in types.go, matching fomod_parser.py's
// element-by-element walk. No XML library appears anywhere in the
// retrieval pack, so this uses the standard library directly (see
// DESIGN.md).

type xmlSrcDst struct {
	Source         string `xml:"source,attr"`
	Destination    string `xml:"destination,attr"`
	Priority       string `xml:"priority,attr"`
	AlwaysInstall  string `xml:"alwaysInstall,attr"`
	InstallIfUsable string `xml:"installIfUsable,attr"`
}

func (x xmlSrcDst) toSrcDst() SrcDst {
	out := SrcDst{Src: x.Source, Dst: x.Destination}
	if x.Priority != "" {
		if n, err := strconv.Atoi(x.Priority); err == nil {
			out.Priority = n
		}
	}
	if x.AlwaysInstall != "" {
		out.Flags |= FlagAlwaysInstall
	}
	if x.InstallIfUsable != "" {
		out.Flags |= FlagInstallIfUsable
	}
	return out
}

type xmlFilesAndFolders struct {
	File   []xmlSrcDst `xml:"file"`
	Folder []xmlSrcDst `xml:"folder"`
}

func (x xmlFilesAndFolders) toDomain() *FilesAndFolders {
	out := &FilesAndFolders{}
	for _, f := range x.File {
		out.Files = append(out.Files, f.toSrcDst())
	}
	for _, f := range x.Folder {
		out.Folders = append(out.Folders, f.toSrcDst())
	}
	return out
}

type xmlFlag struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlFlagDependency struct {
	Flag  string `xml:"flag,attr"`
	Value string `xml:"value,attr"`
}

type xmlFileDependency struct {
	File  string `xml:"file,attr"`
	State string `xml:"state,attr"`
}

func (x xmlFileDependency) toDomain() (FileDependency, error) {
	out := FileDependency{File: x.File}
	switch x.State {
	case "", "Active":
		out.State = FileDependencyActive
	case "Inactive":
		out.State = FileDependencyInactive
	case "Missing":
		out.State = FileDependencyMissing
	default:
		return out, fmt.Errorf("unknown fileDependency state %q", x.State)
	}
	return out, nil
}

type xmlGameDependency struct {
	Version string `xml:"version,attr"`
}

type xmlDependencies struct {
	Operator        string              `xml:"operator,attr"`
	FileDependency  []xmlFileDependency `xml:"fileDependency"`
	FlagDependency  []xmlFlagDependency `xml:"flagDependency"`
	GameDependency  []xmlGameDependency `xml:"gameDependency"`
	Dependencies    []xmlDependencies   `xml:"dependencies"`
}

// toDomain converts an xmlDependencies node. Items are grouped by kind
// (file, flag, game, then nested) rather than kept in document order;
// order only matters for the AND/OR short-circuit evaluation, which is
// commutative, so the grouping gives the same result as the original's
// single recursive-descent loop.
func (x xmlDependencies) toDomain() (*Dependencies, error) {
	out := &Dependencies{Or: strings.EqualFold(x.Operator, "Or")}
	for _, fd := range x.FileDependency {
		dep, err := fd.toDomain()
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, SomeDependency{File: &dep})
	}
	for _, fd := range x.FlagDependency {
		dep := FlagDependency{Name: fd.Flag, Value: fd.Value}
		out.Items = append(out.Items, SomeDependency{Flag: &dep})
	}
	for _, gd := range x.GameDependency {
		dep := GameDependency{Version: gd.Version}
		out.Items = append(out.Items, SomeDependency{Game: &dep})
	}
	for _, nested := range x.Dependencies {
		inner, err := nested.toDomain()
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, SomeDependency{Deps: inner})
	}
	return out, nil
}

type xmlType struct {
	Name string `xml:"name,attr"`
}

func (x xmlType) toDomain() (ModuleType, error) {
	switch x.Name {
	case "Recommended":
		return TypeRecommended, nil
	case "Optional":
		return TypeOptional, nil
	case "Required":
		return TypeRequired, nil
	case "NotUsable":
		return TypeNotUsable, nil
	case "CouldBeUsable":
		return TypeCouldBeUsable, nil
	default:
		return TypeNotInitialized, fmt.Errorf("unknown type name %q", x.Name)
	}
}

type xmlPattern struct {
	Dependencies xmlDependencies    `xml:"dependencies"`
	Type         xmlType            `xml:"type"`
	Files        xmlFilesAndFolders `xml:"files"`
}

func (x xmlPattern) toDomain() (Pattern, error) {
	deps, err := x.Dependencies.toDomain()
	if err != nil {
		return Pattern{}, err
	}
	typ, err := x.Type.toDomain()
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Dependencies: deps, Type: typ, Files: x.Files.toDomain()}, nil
}

type xmlDependencyType struct {
	DefaultType xmlType `xml:"defaultType"`
	Patterns    struct {
		Pattern []xmlPattern `xml:"pattern"`
	} `xml:"patterns"`
}

type xmlTypeDescriptor struct {
	Type           *xmlType           `xml:"type"`
	DependencyType *xmlDependencyType `xml:"dependencyType"`
}

func (x xmlTypeDescriptor) toDomain() (*TypeDescriptor, error) {
	out := &TypeDescriptor{}
	if x.Type != nil {
		typ, err := x.Type.toDomain()
		if err != nil {
			return nil, err
		}
		out.Type = typ
	}
	if x.DependencyType != nil {
		typ, err := x.DependencyType.DefaultType.toDomain()
		if err != nil {
			return nil, err
		}
		out.Type = typ
		for _, p := range x.DependencyType.Patterns.Pattern {
			pd, err := p.toDomain()
			if err != nil {
				return nil, err
			}
			out.Patterns = append(out.Patterns, pd)
		}
	}
	return out, nil
}

type xmlPlugin struct {
	Name        string `xml:"name,attr"`
	Description string `xml:"description"`
	Image       struct {
		Path string `xml:"path,attr"`
	} `xml:"image"`
	Files          xmlFilesAndFolders `xml:"files"`
	TypeDescriptor xmlTypeDescriptor  `xml:"typeDescriptor"`
	ConditionFlags struct {
		Flag []xmlFlag `xml:"flag"`
	} `xml:"conditionFlags"`
}

func (x xmlPlugin) toDomain() (Plugin, error) {
	td, err := x.TypeDescriptor.toDomain()
	if err != nil {
		return Plugin{}, err
	}
	out := Plugin{
		Name:           x.Name,
		Description:    strings.TrimSpace(x.Description),
		Image:          x.Image.Path,
		Files:          x.Files.toDomain(),
		TypeDescriptor: td,
	}
	for _, f := range x.ConditionFlags.Flag {
		out.ConditionFlags = append(out.ConditionFlags, FlagDependency{Name: f.Name, Value: strings.TrimSpace(f.Value)})
	}
	return out, nil
}

type xmlGroup struct {
	Name    string `xml:"name,attr"`
	Type    string `xml:"type,attr"`
	Plugins struct {
		Order  string      `xml:"order,attr"`
		Plugin []xmlPlugin `xml:"plugin"`
	} `xml:"plugins"`
}

func parseOrderAttr(av string) (Order, error) {
	switch av {
	case "", "Ascending":
		return OrderAscending, nil
	case "Explicit":
		return OrderExplicit, nil
	case "Descending":
		// The original's _parse_order_attr maps "Ascending" to Descending
		// in one spot by an evident copy-paste slip; this parser keeps
		// the literal XML value -> Order mapping instead (see
		// SPEC_FULL.md's Open Question on FOMOD heuristics).
		return OrderDescending, nil
	default:
		return OrderAscending, fmt.Errorf("unknown order %q", av)
	}
}

func (x xmlGroup) toDomain() (Group, error) {
	out := Group{Name: x.Name}
	switch x.Type {
	case "SelectAny":
		out.Select = SelectAny
	case "SelectAll":
		out.Select = SelectAll
	case "SelectExactlyOne":
		out.Select = SelectExactlyOne
	case "SelectAtMostOne":
		out.Select = SelectAtMostOne
	case "SelectAtLeastOne":
		out.Select = SelectAtLeastOne
	default:
		return out, fmt.Errorf("unknown group type %q", x.Type)
	}
	order, err := parseOrderAttr(x.Plugins.Order)
	if err != nil {
		return out, err
	}
	out.Order = order
	for _, p := range x.Plugins.Plugin {
		pd, err := p.toDomain()
		if err != nil {
			return out, err
		}
		out.Plugins = append(out.Plugins, pd)
	}
	return out, nil
}

type xmlInstallStep struct {
	Name              string `xml:"name,attr"`
	OptionalFileGroups struct {
		Order string     `xml:"order,attr"`
		Group []xmlGroup `xml:"group"`
	} `xml:"optionalFileGroups"`
	Visible xmlDependencies `xml:"visible"`
}

func (x xmlInstallStep) toDomain() (InstallStep, error) {
	out := InstallStep{Name: x.Name}
	order, err := parseOrderAttr(x.OptionalFileGroups.Order)
	if err != nil {
		return out, err
	}
	out.Order = order
	for _, g := range x.OptionalFileGroups.Group {
		gd, err := g.toDomain()
		if err != nil {
			return out, err
		}
		out.Groups = append(out.Groups, gd)
	}
	vis, err := x.Visible.toDomain()
	if err != nil {
		return out, err
	}
	out.Visible = *vis
	return out, nil
}

type xmlModuleConfig struct {
	XMLName   xml.Name `xml:"config"`
	ModuleName struct {
		Colour   string `xml:"colour,attr"`
		Position string `xml:"position,attr"`
		Value    string `xml:",chardata"`
	} `xml:"moduleName"`
	ModuleImage struct {
		Path      string `xml:"path,attr"`
		ShowImage string `xml:"showImage,attr"`
		Height    string `xml:"height,attr"`
		ShowFade  string `xml:"showFade,attr"`
	} `xml:"moduleImage"`
	ModuleDependencies struct {
		FileDependency []xmlFileDependency `xml:"fileDependency"`
	} `xml:"moduleDependencies"`
	RequiredInstallFiles xmlFilesAndFolders `xml:"requiredInstallFiles"`
	InstallSteps         struct {
		Order       string           `xml:"order,attr"`
		InstallStep []xmlInstallStep `xml:"installStep"`
	} `xml:"installSteps"`
	ConditionalFileInstalls struct {
		Patterns struct {
			Pattern []xmlPattern `xml:"pattern"`
		} `xml:"patterns"`
	} `xml:"conditionalFileInstalls"`
}

// Parse reads a ModuleConfig.xml document and returns its parsed form.
func Parse(r io.Reader) (*ModuleConfig, error) {
	var raw xmlModuleConfig
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.NewDataIntegrityError(
			"parse FOMOD ModuleConfig.xml",
			err.Error(),
			"confirm the archive's ModuleConfig.xml is well-formed FOMOD XML",
			err,
		)
	}

	out := &ModuleConfig{
		ModuleName: strings.TrimSpace(raw.ModuleName.Value),
		EyeCandy:   map[string]string{},
	}
	if raw.ModuleName.Colour != "" {
		out.EyeCandy["colour"] = raw.ModuleName.Colour
	}
	if raw.ModuleName.Position != "" {
		out.EyeCandy["position"] = raw.ModuleName.Position
	}
	if raw.ModuleImage.Path != "" {
		out.EyeCandy["image.path"] = raw.ModuleImage.Path
		out.EyeCandy["image.show"] = raw.ModuleImage.ShowImage
		out.EyeCandy["image.height"] = raw.ModuleImage.Height
		out.EyeCandy["image.showfade"] = raw.ModuleImage.ShowFade
	}

	for _, fd := range raw.ModuleDependencies.FileDependency {
		dep, err := fd.toDomain()
		if err != nil {
			return nil, wrapParseErr(err)
		}
		out.ModuleDependencies = append(out.ModuleDependencies, dep)
	}

	out.Required = *raw.RequiredInstallFiles.toDomain()

	order, err := parseOrderAttr(raw.InstallSteps.Order)
	if err != nil {
		return nil, wrapParseErr(err)
	}
	out.InstallStepsOrder = order
	for _, is := range raw.InstallSteps.InstallStep {
		isd, err := is.toDomain()
		if err != nil {
			return nil, wrapParseErr(err)
		}
		out.InstallSteps = append(out.InstallSteps, isd)
	}

	for _, p := range raw.ConditionalFileInstalls.Patterns.Pattern {
		pd, err := p.toDomain()
		if err != nil {
			return nil, wrapParseErr(err)
		}
		out.ConditionalFileInstalls = append(out.ConditionalFileInstalls, pd)
	}

	return out, nil
}

func wrapParseErr(err error) error {
	return errors.NewDataIntegrityError(
		"parse FOMOD ModuleConfig.xml",
		err.Error(),
		"confirm the archive's ModuleConfig.xml is well-formed FOMOD XML",
		err,
	)
}
