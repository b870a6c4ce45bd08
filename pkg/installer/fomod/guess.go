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
	"github.com/summonmm/summon/pkg/retriever"
)

// maxForks caps the number of simulated installer runs a single FOMOD
// guess will replay before giving up, matching fomod_guess.py's
// hard-coded 50000.
const maxForks = 50000

// tofEntry names one plugin selection together with the files it would
// install, used to later decide whether that plugin must have been
// picked (fomod_guess.py's _FomodGuessPlugins element).
type tofEntry struct {
	sel   Selection
	files *FilesAndFolders
}

// decision is one planned replay step: a forced selection value, or nil
// for "left to the selector to decide freely" (fomod_guess.py's
// _FomodReplaySteps element).
type decision struct {
	sel   Selection
	value *bool
}

// fork is one pending or completed simulation branch
// (fomod_guess.py's _FomodGuessFork).
type fork struct {
	start []decision
	tof   []tofEntry
	oneOf [][]tofEntry
}

func (f *fork) copy() *fork {
	out := &fork{
		start: append([]decision{}, f.start...),
		tof:   append([]tofEntry{}, f.tof...),
	}
	for _, oo := range f.oneOf {
		out.oneOf = append(out.oneOf, append([]tofEntry{}, oo...))
	}
	return out
}

// guessSelector replays one fork's planned decisions and, past the end
// of the plan, decides each new plugin itself following the same
// possible-value reduction fomod_guess.py's _FomodGuessFakeUI.wizard_page
// performs, requesting a new fork whenever both true and false remain
// possible.
type guessSelector struct {
	fork           *fork
	replayIdx      int
	played         []decision
	requestedForks []*fork
}

func newGuessSelector(f *fork) *guessSelector {
	return &guessSelector{fork: f}
}

func (g *guessSelector) ChoosePlugin(ctx PluginContext) (bool, error) {
	cur := Selection{StepName: ctx.Step.Name, GroupName: ctx.Group.Name, PluginName: ctx.Plugin.Name}

	if g.replayIdx < len(g.fork.start) {
		nxt := g.fork.start[g.replayIdx]
		g.replayIdx++
		v := false
		if nxt.value != nil {
			v = *nxt.value
		}
		g.played = append(g.played, decision{sel: cur, value: nxt.value})
		return v, nil
	}

	t, f := true, false
	var possible []*bool
	switch ctx.Group.Select {
	case SelectAll:
		possible = []*bool{&t}
	case SelectAny:
		possible = []*bool{nil}
	case SelectExactlyOne:
		independent := true
		for _, p := range ctx.Group.Plugins {
			if len(p.ConditionFlags) > 0 {
				independent = false
				break
			}
		}
		if independent {
			possible = []*bool{nil}
			if ctx.Index == 0 {
				var alt []tofEntry
				for _, p := range ctx.Group.Plugins {
					alt = append(alt, tofEntry{
						sel:   Selection{StepName: ctx.Step.Name, GroupName: ctx.Group.Name, PluginName: p.Name},
						files: p.Files,
					})
				}
				g.fork.oneOf = append(g.fork.oneOf, alt)
			}
		} else {
			possible = []*bool{&t, &f}
			for i := 0; i < ctx.Index; i++ {
				if ctx.PriorActive[i] {
					possible = []*bool{&f}
					break
				}
			}
			if len(possible) == 2 && ctx.Index == len(ctx.Group.Plugins)-1 {
				possible = []*bool{&t}
			}
		}
	case SelectAtLeastOne:
		possible = []*bool{&t, &f}
		found := false
		for i := 0; i < ctx.Index; i++ {
			if ctx.PriorActive[i] {
				found = true
				break
			}
		}
		if !found && ctx.Index == len(ctx.Group.Plugins)-1 {
			possible = []*bool{&t}
		}
	case SelectAtMostOne:
		possible = []*bool{&t, &f}
		found := false
		for i := 0; i < ctx.Index; i++ {
			if ctx.PriorActive[i] {
				found = true
				break
			}
		}
		if found {
			possible = []*bool{&f}
		}
	default:
		possible = []*bool{&f}
	}

	predetermined := len(possible) == 1 && possible[0] != nil

	var result bool
	willFork := false
	switch {
	case predetermined:
		result = *possible[0]
		g.played = append(g.played, decision{sel: cur, value: possible[0]})
	case len(ctx.Plugin.ConditionFlags) > 0:
		willFork = true
	case possible[0] == nil:
		g.played = append(g.played, decision{sel: cur, value: nil})
		if ctx.Group.Select == SelectAny && ctx.Plugin.Files != nil {
			g.fork.tof = append(g.fork.tof, tofEntry{sel: cur, files: ctx.Plugin.Files})
		}
		result = false
	default:
		willFork = true
	}

	if willFork {
		forked := g.fork.copy()
		forked.start = append(append([]decision{}, g.played...), decision{sel: cur, value: &f})
		g.requestedForks = append(g.requestedForks, forked)
		g.played = append(g.played, decision{sel: cur, value: &t})
		result = true
	}

	return result, nil
}

// processedFork is one completed simulation: the true/false and
// one-of-N plugin candidates it encountered, and the selections the
// engine actually made along this branch (fomod_guess.py's
// _ProcessedFork).
type processedFork struct {
	tof         []tofEntry
	oneOf       [][]tofEntry
	selections  []Selection
}

// ModFile is one file the caller already knows must end up at a given
// destination path, coming from this FOMOD archive — the "ground
// truth" the guesser scores candidate forks against
// (fomod_guess.py's modfiles parameter, an
// ArchiveFileRetriever list keyed by destination path).
type ModFile struct {
	ArchiveDigest retriever.Digest
	FileDigest    retriever.TruncatedDigest
}

// Result is a scored FOMOD install guess.
type Result struct {
	Installer *ArInstaller
	Coverage  int
}

// Guess replays every reachable fork of cfg against archive, scoring
// each completed fork by how many of modfiles' destination paths it
// reproduces, and returns the best-scoring fork
// (fomod_guess.py's fomod_guess). A nil result (with nil error) means no
// completed fork reproduced more than half of its own desired files in
// modfiles, or the fork count exceeded maxForks — the FOMOD recipe does
// not plausibly explain this archive.
func Guess(fomodroot string, cfg *ModuleConfig, archive retriever.Archive, modfiles map[string][]ModFile) (*Result, error) {
	var processed []processedFork
	remaining := []*fork{{}}

	for len(remaining) > 0 {
		if len(processed)+len(remaining) > maxForks {
			return nil, nil
		}
		cur := remaining[0]
		remaining = remaining[1:]

		sel := newGuessSelector(cur)
		engine := NewEngine(cfg)
		selections, _, err := engine.Run(sel)
		if err != nil {
			return nil, err
		}
		processed = append(processed, processedFork{
			tof:        sel.fork.tof,
			oneOf:      sel.fork.oneOf,
			selections: selections,
		})
		remaining = append(remaining, sel.requestedForks...)
	}

	ar4 := NewArchiveIndex(archive)

	var best *ArInstaller
	bestCoverage := 0
	bestDesired := -1

	for _, pf := range processed {
		selected := make(map[Selection]struct{}, len(pf.selections))
		for _, s := range pf.selections {
			selected[s] = struct{}{}
		}
		requiredXofs := findRequiredXofs(ar4, fomodroot, modfiles, pf.tof, pf.oneOf)
		wanted := make(map[Selection]struct{}, len(selected)+len(requiredXofs))
		for s := range selected {
			wanted[s] = struct{}{}
		}
		for s := range requiredXofs {
			wanted[s] = struct{}{}
		}
		var wantedList []Selection
		for s := range wanted {
			wantedList = append(wantedList, s)
		}

		autoplay := NewAutoplaySelector(wantedList)
		engine2 := NewEngine(cfg)
		engSelections, engFiles, err := engine2.Run(autoplay)
		if err != nil {
			return nil, err
		}

		candidate := &ArInstaller{
			Archive:    archive,
			FomodRoot:  fomodroot,
			Files:      engFiles,
			Selections: engSelections,
			index:      ar4,
		}

		n := 0
		ndesired := 0
		for _, entry := range candidate.AllDesiredFiles() {
			ndesired++
			if mf, ok := modfiles[entry.Dst]; ok && len(mf) > 0 && mf[0].FileDigest == entry.File.Digest {
				n++
			}
		}
		if n > ndesired/2 {
			if n > bestCoverage || (n == bestCoverage && (bestDesired < 0 || ndesired < bestDesired)) {
				bestCoverage = n
				best = candidate
				bestDesired = ndesired
			}
			if len(modfiles) == bestDesired && bestDesired == bestCoverage {
				break
			}
		}
	}

	if best == nil {
		return nil, nil
	}
	return &Result{Installer: best, Coverage: bestCoverage}, nil
}

// findRequiredXofs decides, for every ambiguous (true/false or
// one-of-N) plugin candidate, whether modfiles' known file hashes force
// it to have been selected (fomod_guess.py's _find_required_xofs).
func findRequiredXofs(ar4 *ArchiveIndex, fomodroot string, modfiles map[string][]ModFile, tof []tofEntry, oneOf [][]tofEntry) map[Selection]struct{} {
	out := make(map[Selection]struct{})
	if len(tof) == 0 && len(oneOf) == 0 {
		return out
	}
	root1 := fomodroot
	if root1 != "" {
		root1 += `\`
	}

	xofs := make(map[string][]tofEntryHit)
	all := append([]tofEntry{}, tof...)
	for _, oo := range oneOf {
		all = append(all, oo...)
	}
	for _, cand := range all {
		if cand.files == nil {
			continue
		}
		for _, sd := range cand.files.Files {
			src := NormalizeFilePath(root1 + sd.Src)
			dst := NormalizeFilePath(sd.Dst)
			if af, ok := ar4.byPath[src]; ok {
				xofs[dst] = append(xofs[dst], tofEntryHit{sel: cand.sel, file: af})
			}
		}
		for _, sd := range cand.files.Folders {
			src := NormalizeFolderPath(root1 + sd.Src)
			dst := NormalizeFolderPath(sd.Dst)
			ar4.ForAllStartingWith(src, func(remainder string, af retriever.FileInArchive) {
				xofs[dst+remainder] = append(xofs[dst+remainder], tofEntryHit{sel: cand.sel, file: af})
			})
		}
	}

	for modfile, rlist := range modfiles {
		if len(rlist) == 0 {
			continue
		}
		fh := rlist[0].FileDigest
		hits, ok := xofs[modfile]
		if !ok {
			continue
		}
		if len(hits) == 1 && hits[0].file.Digest == fh {
			out[hits[0].sel] = struct{}{}
			continue
		}
		nmatch := 0
		var matched Selection
		for _, h := range hits {
			if h.file.Digest == fh {
				nmatch++
				matched = h.sel
			}
		}
		if nmatch == 1 {
			out[matched] = struct{}{}
		}
	}

	for _, oo := range oneOf {
		n := 0
		for _, of := range oo {
			if _, ok := out[of.sel]; ok {
				n++
			}
		}
		if n == 0 {
			var minSel *Selection
			minSize := -1
			for _, of := range oo {
				size := 0
				if of.files != nil {
					size = len(of.files.AllFiles(fomodroot, ar4))
				}
				if minSize < 0 || size < minSize {
					minSize = size
					sel := of.sel
					minSel = &sel
				}
			}
			if minSel != nil {
				out[*minSel] = struct{}{}
			}
		}
	}
	return out
}

type tofEntryHit struct {
	sel  Selection
	file retriever.FileInArchive
}

// ArInstaller is a resolved FOMOD install: the set of (destination
// path, archive file) pairs a particular selection run produces, along
// with the selections that produced it (fomod_common.py's
// FomodArInstaller).
type ArInstaller struct {
	Archive    retriever.Archive
	FomodRoot  string
	Files      *FilesAndFolders
	Selections []Selection

	index *ArchiveIndex
}

// AllDesiredFiles returns every (destination path, source archive file)
// pair this install produces.
func (a *ArInstaller) AllDesiredFiles() []ResolvedEntry {
	idx := a.index
	if idx == nil {
		idx = NewArchiveIndex(a.Archive)
	}
	return a.Files.AllFiles(a.FomodRoot, idx)
}
