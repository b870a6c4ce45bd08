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

// Package main implements the summon CLI: single-argument invocation with
// the project config path, followed by an interactive command loop
// (spec.md §6 "CLI"). Everything below this entrypoint is orchestration —
// building the caches, registries and scheduler graph a run needs — the
// actual scan/hash/resolve/guess logic lives in the packages it wires
// together (cmd/cie/main.go's flag-parsed, subcommand-free single
// entrypoint is the model this follows; summon has one long-lived command
// loop instead of cie's one-shot subcommands).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		showVersion = pflag.Bool("version", false, "Show version and exit")
		noColor     = pflag.Bool("no-color", false, "Disable colored output")
		jsonErrors  = pflag.Bool("json", false, "Report fatal errors as JSON instead of formatted text")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, `summon - modpack manifest generator

Usage:
  summon <config.json5>

Once running, the command loop accepts:
  h, help                                 Show this command list
  x, exit                                 Exit cleanly
  github.install <author>/<project>[/sub] Report the companion repository's expected checkout path
  guess                                   Run the resolve/guess pipeline and write project.json

Global Options:
  --no-color    Disable colored output
  --json        Report fatal errors as JSON
  --version     Show version and exit
`)
	}
	pflag.Parse()

	ui.InitColors(*noColor)

	if *showVersion {
		fmt.Printf("summon version %s (commit %s, built %s)\n", version, commit, date)
		os.Exit(errors.ExitSuccess)
	}

	args := pflag.Args()
	if len(args) != 1 {
		pflag.Usage()
		os.Exit(errors.ExitConfig)
	}

	run(args[0], *jsonErrors)
}
