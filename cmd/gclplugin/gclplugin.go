//  Copyright (c) 2024 Uber Technologies, Inc.
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

// Package gclplugin implements golangci-lint's module plugin interface for codeclone, letting it
// run as a private linter alongside the standalone tree-scanning CLI. See more details at
// https://golangci-lint.run/plugins/module-plugins/.
package gclplugin

import (
	"fmt"
	"go/ast"
	"go/token"

	"github.com/golangci/plugin-module-register/register"
	"golang.org/x/tools/go/analysis"

	"github.com/codeclone-go/codeclone/internal/grouping"
	"github.com/codeclone-go/codeclone/internal/pipeline"
)

func init() {
	register.Plugin("codeclone", New)
}

// settings is the plugin's .golangci.yml configuration shape.
type settings struct {
	MinFunctionLOC   int
	MinBlockStmts    int
	SegmentWindow    int
	MinSegmentBlocks int
}

func defaultSettings() settings {
	return settings{MinFunctionLOC: 5, MinBlockStmts: 2, SegmentWindow: 4, MinSegmentBlocks: 3}
}

// New returns the golangci-lint plugin wrapping the codeclone analyzer.
func New(raw any) (register.LinterPlugin, error) {
	s := defaultSettings()
	if m, ok := raw.(map[string]any); ok {
		applySettings(&s, m)
	}
	return &Plugin{settings: s}, nil
}

func applySettings(s *settings, m map[string]any) {
	if v, ok := intSetting(m, "min-function-loc"); ok {
		s.MinFunctionLOC = v
	}
	if v, ok := intSetting(m, "min-block-stmts"); ok {
		s.MinBlockStmts = v
	}
	if v, ok := intSetting(m, "segment-window"); ok {
		s.SegmentWindow = v
	}
	if v, ok := intSetting(m, "min-segment-blocks"); ok {
		s.MinSegmentBlocks = v
	}
}

func intSetting(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Plugin is the codeclone plugin wrapper for golangci-lint.
type Plugin struct {
	settings settings
}

// BuildAnalyzers builds the codeclone analyzer configured with this plugin's settings.
func (p *Plugin) BuildAnalyzers() ([]*analysis.Analyzer, error) {
	return []*analysis.Analyzer{newAnalyzer(p.settings)}, nil
}

// GetLoadMode returns the load mode codeclone needs: syntax trees are enough, we never consult
// type information.
func (p *Plugin) GetLoadMode() string { return register.LoadModeSyntax }

func newAnalyzer(s settings) *analysis.Analyzer {
	return &analysis.Analyzer{
		Name: "codeclone",
		Doc:  "reports structurally duplicated functions and blocks within a package",
		Run: func(pass *analysis.Pass) (any, error) {
			return run(pass, s)
		},
	}
}

func run(pass *analysis.Pass, s settings) (any, error) {
	opts := pipeline.Options{WindowSize: s.SegmentWindow}

	var functions []grouping.FunctionRecord
	var blocks []grouping.BlockRecord
	for _, file := range pass.Files {
		relPath := pass.Fset.Position(file.Pos()).Filename
		res := pipeline.AnalyzeParsedFile(pass.Fset, relPath, file, opts)
		functions = append(functions, res.Functions...)
		blocks = append(blocks, res.Blocks...)
	}

	th := grouping.Thresholds{MinFunctionLOC: s.MinFunctionLOC, MinBlockStmts: s.MinBlockStmts, MinSegmentBlocks: s.MinSegmentBlocks}
	for _, g := range grouping.Functions(functions, th) {
		reportGroup(pass, "function", g)
	}
	for _, g := range grouping.Blocks(blocks, th) {
		reportGroup(pass, "block", g)
	}
	return nil, nil
}

func reportGroup(pass *analysis.Pass, kind string, g grouping.Group) {
	if g.Boilerplate {
		return
	}
	var others string
	for i, m := range g.Members[1:] {
		if i > 0 {
			others += ", "
		}
		others += fmt.Sprintf("%s:%s:%d", m.File, m.FuncName, m.StartLine)
	}

	first := g.Members[0]
	pos := findPos(pass, first.File, first.StartLine)
	pass.Reportf(pos, "%s %q duplicates %s also found at %s", kind, first.FuncName, kind, others)
}

// findPos recovers a token.Pos for a (file, line) pair by scanning the package's parsed files;
// diagnostics need a position in the package currently being analyzed, which first.File always
// is since every record reportGroup sees came from pass.Files in this same run.
func findPos(pass *analysis.Pass, file string, line int) token.Pos {
	for _, f := range pass.Files {
		if pass.Fset.Position(f.Pos()).Filename != file {
			continue
		}
		var found token.Pos
		ast.Inspect(f, func(n ast.Node) bool {
			if n == nil || found != 0 {
				return false
			}
			if pass.Fset.Position(n.Pos()).Line == line {
				found = n.Pos()
				return false
			}
			return true
		})
		if found != 0 {
			return found
		}
		return f.Pos()
	}
	return token.NoPos
}
