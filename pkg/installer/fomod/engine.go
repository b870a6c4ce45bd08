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

// PluginContext is everything a Selector needs to decide whether one
// plugin control should be active, mirroring the state
// fomod_engine.py's FomodEnginePluginSelector exposes while walking a
// wizard page.
type PluginContext struct {
	Step   *InstallStep
	Group  *Group
	Plugin *Plugin
	// Index is this plugin's position within Group.Plugins.
	Index int
	// PriorActive holds the already-decided active/inactive state of
	// Group.Plugins[0:Index], in order.
	PriorActive []bool
}

// Selector decides, one plugin at a time and in step/group/plugin
// document order, whether a FOMOD plugin control is active. Engine
// replays install steps against a Selector the same way fomod_engine.py
// replays them against a LinearUI implementation; GuessSelector and
// AutoplaySelector are the two Selector implementations this package
// provides.
type Selector interface {
	ChoosePlugin(ctx PluginContext) (bool, error)
}

// Engine replays one ModuleConfig's install steps.
type Engine struct {
	Config *ModuleConfig
}

// NewEngine returns an Engine over cfg.
func NewEngine(cfg *ModuleConfig) *Engine {
	return &Engine{Config: cfg}
}

// Run replays every visible install step against sel, returning the
// selections made and the accumulated file/folder install set,
// including the module's required files and any satisfied conditional
// file installs (fomod_engine.py's FomodEngine.run).
func (e *Engine) Run(sel Selector) ([]Selection, *FilesAndFolders, error) {
	rt := &DependencyRuntime{Flags: map[string]string{}}
	files := e.Config.Required.Copy()
	var selections []Selection

	for si := range e.Config.InstallSteps {
		step := &e.Config.InstallSteps[si]
		if !step.Visible.Satisfied(rt) {
			continue
		}
		for gi := range step.Groups {
			group := &step.Groups[gi]
			active := make([]bool, 0, len(group.Plugins))
			for pi := range group.Plugins {
				plugin := &group.Plugins[pi]
				on, err := sel.ChoosePlugin(PluginContext{
					Step:        step,
					Group:       group,
					Plugin:      plugin,
					Index:       pi,
					PriorActive: active,
				})
				if err != nil {
					return nil, nil, err
				}
				active = append(active, on)
				if !on {
					continue
				}
				if plugin.Files != nil {
					files.Merge(plugin.Files)
				}
				for _, cf := range plugin.ConditionFlags {
					rt.Flags[cf.Name] = cf.Value
				}
				selections = append(selections, Selection{
					StepName: step.Name, GroupName: group.Name, PluginName: plugin.Name,
				})
			}
		}
	}

	for _, cond := range e.Config.ConditionalFileInstalls {
		if cond.Dependencies.Satisfied(rt) && cond.Files != nil {
			files.Merge(cond.Files)
		}
	}

	return selections, files, nil
}

// AutoplaySelector activates exactly the plugins named in Wanted,
// replaying steps purely to recompute selections and files in the
// engine's own overwrite order (fomod_engine.py's
// FomodAutoinstallFakeUI — used to re-run a guessed selection set so
// later plugins correctly overwrite earlier ones).
type AutoplaySelector struct {
	Wanted map[Selection]struct{}
	used   map[Selection]struct{}
}

// NewAutoplaySelector builds a Selector that activates exactly the
// given selections.
func NewAutoplaySelector(selections []Selection) *AutoplaySelector {
	wanted := make(map[Selection]struct{}, len(selections))
	for _, s := range selections {
		wanted[s] = struct{}{}
	}
	return &AutoplaySelector{Wanted: wanted, used: make(map[Selection]struct{})}
}

func (a *AutoplaySelector) ChoosePlugin(ctx PluginContext) (bool, error) {
	cur := Selection{StepName: ctx.Step.Name, GroupName: ctx.Group.Name, PluginName: ctx.Plugin.Name}
	_, on := a.Wanted[cur]
	if on {
		a.used[cur] = struct{}{}
	}
	return on, nil
}

// AllUsed reports whether every wanted selection was actually visited
// (a selection can be missing if its install step turned out not
// visible, matching FomodAutoinstallFakeUI.check_done's assertion).
func (a *AutoplaySelector) AllUsed() bool {
	return len(a.used) == len(a.Wanted)
}
