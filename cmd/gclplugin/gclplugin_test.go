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

package gclplugin

import (
	"testing"

	"github.com/golangci/plugin-module-register/register"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/analysis/analysistest"
)

func TestAnalyzerReportsStructuralDuplicate(t *testing.T) {
	t.Parallel()

	analyzer := newAnalyzer(defaultSettings())
	analysistest.Run(t, analysistest.TestData(), analyzer, "a")
}

func TestNewAppliesPluginSettings(t *testing.T) {
	t.Parallel()

	plugin, err := New(map[string]any{
		"min-function-loc":   float64(10),
		"min-block-stmts":    float64(3),
		"segment-window":     float64(6),
		"min-segment-blocks": float64(2),
	})
	require.NoError(t, err)

	p, ok := plugin.(*Plugin)
	require.True(t, ok)
	require.Equal(t, settings{MinFunctionLOC: 10, MinBlockStmts: 3, SegmentWindow: 6, MinSegmentBlocks: 2}, p.settings)
}

func TestNewFallsBackToDefaultsOnMissingKeys(t *testing.T) {
	t.Parallel()

	plugin, err := New(map[string]any{})
	require.NoError(t, err)

	p, ok := plugin.(*Plugin)
	require.True(t, ok)
	require.Equal(t, defaultSettings(), p.settings)
}

func TestBuildAnalyzersReturnsOneAnalyzer(t *testing.T) {
	t.Parallel()

	p := &Plugin{settings: defaultSettings()}
	analyzers, err := p.BuildAnalyzers()
	require.NoError(t, err)
	require.Len(t, analyzers, 1)
	require.Equal(t, "codeclone", analyzers[0].Name)
}

func TestGetLoadModeIsSyntax(t *testing.T) {
	t.Parallel()

	p := &Plugin{}
	require.Equal(t, register.LoadModeSyntax, p.GetLoadMode())
}
