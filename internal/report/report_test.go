//  Copyright (c) 2023 Uber Technologies, Inc.
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

package report_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeclone-go/codeclone/internal/grouping"
	"github.com/codeclone-go/codeclone/internal/report"
)

func TestBuildSortsFilesAndGroups(t *testing.T) {
	t.Parallel()

	files := []string{"z.go", "a.go"}
	groups := []grouping.Group{
		{Key: "k2", Members: []grouping.Location{{File: "b.go", FuncName: "G", StartLine: 2}, {File: "a.go", FuncName: "F", StartLine: 1}}},
		{Key: "k1", Members: []grouping.Location{{File: "c.go", FuncName: "H", StartLine: 1}, {File: "d.go", FuncName: "I", StartLine: 1}}},
	}

	r := report.Build(files, groups, nil, nil, nil, nil, nil)

	require.Equal(t, []string{"a.go", "z.go"}, r.Files)
	require.Len(t, r.FunctionGroups, 2)
	require.Equal(t, "k1", r.FunctionGroups[0].Key)
	require.Equal(t, "a.go", r.FunctionGroups[1].Members[0].File)
}

func TestBuildSplitsNewVsKnown(t *testing.T) {
	t.Parallel()

	groups := []grouping.Group{
		{Key: "new1", Members: []grouping.Location{{File: "a.go"}, {File: "b.go"}}},
		{Key: "known1", Members: []grouping.Location{{File: "c.go"}, {File: "d.go"}}},
	}
	known := map[string]bool{"known1": true}

	r := report.Build(nil, groups, nil, nil, nil, known, nil)
	require.Equal(t, []string{"new1"}, r.FunctionGroupsSplit.New)
	require.Equal(t, []string{"known1"}, r.FunctionGroupsSplit.Known)
}

func TestMarshalJSONIsDeterministic(t *testing.T) {
	t.Parallel()

	groups := []grouping.Group{{Key: "k1", Members: []grouping.Location{{File: "a.go"}, {File: "b.go"}}}}
	r := report.Build([]string{"a.go"}, groups, nil, nil, nil, nil, nil)

	j1, err := report.MarshalJSON(r)
	require.NoError(t, err)
	j2, err := report.MarshalJSON(r)
	require.NoError(t, err)
	require.Equal(t, j1, j2)
}

func TestRenderTextIncludesNewGroupSignatures(t *testing.T) {
	t.Parallel()

	groups := []grouping.Group{
		{Key: "k1", Members: []grouping.Location{
			{File: "a.go", FuncName: "F", StartLine: 1, Signature: "F(int) bool"},
			{File: "b.go", FuncName: "G", StartLine: 2, Signature: "G(int) bool"},
		}},
	}
	r := report.Build([]string{"a.go", "b.go"}, groups, nil, nil, nil, nil, nil)

	text := report.RenderText(r)
	require.True(t, strings.Contains(text, "new function clone group k1"))
	require.True(t, strings.Contains(text, "F(int) bool"))
}

func TestRenderHTMLEscapesMemberFields(t *testing.T) {
	t.Parallel()

	groups := []grouping.Group{
		{Key: "k1", Members: []grouping.Location{
			{File: "<script>.go", FuncName: "F", StartLine: 1, Signature: "F(int) bool"},
		}},
	}
	r := report.Build([]string{"<script>.go"}, groups, nil, nil, nil, nil, nil)

	html, err := report.RenderHTML(r)
	require.NoError(t, err)
	require.Contains(t, html, "codeclone report")
	require.Contains(t, html, "F(int) bool")
	require.NotContains(t, html, "<script>.go")
	require.Contains(t, html, "&lt;script&gt;.go")
}
