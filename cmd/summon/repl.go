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

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/summonmm/summon/internal/config"
	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/internal/output"
	"github.com/summonmm/summon/internal/ui"
)

const replHelp = `Commands:
  h, help                                 Show this command list
  x, exit                                 Exit cleanly
  github.install <author>/<project>[/sub] Report the companion repository's expected checkout path
  guess                                   Run the resolve/guess pipeline and write project.json
`

// repl runs the interactive command loop spec.md §6 describes: a fixed,
// small set of commands over a bufio.Scanner, mirroring cmd/cie's
// subcommand dispatch but as a single long-lived loop rather than a
// one-shot process per invocation, since a summon run's caches and
// scheduler are worth keeping warm across several "guess" attempts.
func repl(a *app, jsonErrors bool) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "summon> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, rest := fields[0], fields[1:]

		switch cmd {
		case "h", "help":
			fmt.Fprint(os.Stderr, replHelp)

		case "x", "exit":
			return

		case "github.install":
			if len(rest) != 1 {
				ui.Warning(`usage: github.install <author>/<project>[/sub]`)
				continue
			}
			handleGithubInstall(a, rest[0])

		case "guess":
			handleGuess(a, jsonErrors)

		default:
			ui.Warningf("unknown command %q — type \"help\" for the command list", cmd)
		}
	}
}

// handleGithubInstall reports the checkout path a companion repository
// is expected at. Cloning it is the interactive bootstrap installer's
// job (spec.md §1 "out of scope"); this command only tells the operator
// where that clone needs to land and whether it's already there.
func handleGithubInstall(a *app, ref string) {
	gm, err := config.ParseGithubModpack(ref)
	if err != nil {
		ui.Errorf("%s", err)
		return
	}
	folder := gm.Folder(a.pc.GithubRootDir)
	if info, err := os.Stat(folder); err == nil && info.IsDir() {
		ui.Successf("%s is already checked out at %s", gm, folder)
		return
	}
	ui.Infof("%s is not checked out; clone it to %s (cloning companion repositories is handled by the bootstrap installer, not this tool)", gm, folder)
}

// handleGuess runs the installer guesser and reports where the manifest
// landed, or prints a fatal-style formatted error without exiting the
// REPL (only the top-level run() exits the process on error).
func handleGuess(a *app, jsonErrors bool) {
	outPath, err := a.guess()
	if err != nil {
		if se, ok := err.(*errors.SummonError); ok {
			if jsonErrors {
				enc := json.NewEncoder(os.Stderr)
				enc.SetIndent("", "  ")
				_ = enc.Encode(se.ToJSON())
			} else {
				fmt.Fprint(os.Stderr, se.Format(false))
			}
			return
		}
		ui.Errorf("guess: %s", err)
		return
	}
	if jsonErrors {
		_ = output.JSON(guessResult{ProjectPath: outPath})
		return
	}
	ui.Successf("wrote %s", outPath)
}

// guessResult is the --json mode's machine-readable echo of a
// successful "guess" command.
type guessResult struct {
	ProjectPath string `json:"project_path"`
}
