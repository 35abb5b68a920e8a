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

package pipeline_test

import (
	"context"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeclone-go/codeclone/internal/cache"
	"github.com/codeclone-go/codeclone/internal/pipeline"
	"github.com/codeclone-go/codeclone/internal/sourceio"
)

const sampleSrc = `package p

func DoThingA(x int) int {
	if x > 0 {
		return x + 1
	}
	return x - 1
}

func DoThingB(y int) int {
	if y > 0 {
		return y + 1
	}
	return y - 1
}

func New() *int {
	v := 0
	return &v
}
`

func TestAnalyzeSourceFindsFunctionClone(t *testing.T) {
	t.Parallel()

	fset := token.NewFileSet()
	res, err := pipeline.AnalyzeSource(fset, "sample.go", []byte(sampleSrc), pipeline.Options{WindowSize: 2})
	require.NoError(t, err)

	require.Len(t, res.Functions, 3)

	var constructorSeen bool
	for _, f := range res.Functions {
		if f.Loc.FuncName == "New" {
			constructorSeen = true
			require.True(t, f.IsConstructor)
		}
	}
	require.True(t, constructorSeen)

	require.Equal(t, res.Functions[0].Identity, res.Functions[1].Identity)
}

func TestAnalyzeSourceRejectsUnparsable(t *testing.T) {
	t.Parallel()

	fset := token.NewFileSet()
	_, err := pipeline.AnalyzeSource(fset, "bad.go", []byte("not valid go"), pipeline.Options{})
	require.Error(t, err)
}

func TestAnalyzeTreeOrdersResultsByPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "z.go"), []byte(sampleSrc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte(sampleSrc), 0o644))

	results, stats, err := pipeline.AnalyzeTree(context.Background(), root, sourceio.DefaultPolicy(), 2, pipeline.Options{WindowSize: 2}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a.go", results[0].RelPath)
	require.Equal(t, "z.go", results[1].RelPath)
	require.Zero(t, stats.SkippedSourceIO)
	require.Zero(t, stats.SkippedParse)
}

func TestAnalyzeTreeSkipsUnparsableFileWithoutAbortingTheRun(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte(sampleSrc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.go"), []byte("not valid go"), 0o644))

	results, stats, err := pipeline.AnalyzeTree(context.Background(), root, sourceio.DefaultPolicy(), 2, pipeline.Options{WindowSize: 2}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 1, stats.SkippedParse)
	require.Zero(t, stats.SkippedSourceIO)

	var good, bad pipeline.FileResult
	for _, r := range results {
		if r.RelPath == "a.go" {
			good = r
		} else {
			bad = r
		}
	}
	require.False(t, good.Skipped)
	require.True(t, bad.Skipped)
	require.Equal(t, pipeline.SkipParse, bad.SkipReason)
	require.Error(t, bad.SkipErr)
}

func TestAnalyzeTreeReusesCacheOnUnchangedFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte(sampleSrc), 0o644))

	fresh, _, err := pipeline.AnalyzeTree(context.Background(), root, sourceio.DefaultPolicy(), 1, pipeline.Options{WindowSize: 2}, nil)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	require.False(t, fresh[0].FromCache)

	c := cache.New("go-test", 1)
	funcs, blocks, segs := pipeline.CacheEntries(fresh[0])
	c.Store(fresh[0].RelPath, fresh[0].ModTime, fresh[0].Size, funcs, blocks, segs)

	cached, _, err := pipeline.AnalyzeTree(context.Background(), root, sourceio.DefaultPolicy(), 1, pipeline.Options{WindowSize: 2}, c)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	require.True(t, cached[0].FromCache)
	require.Equal(t, fresh[0].Functions, cached[0].Functions)
	require.Equal(t, fresh[0].Blocks, cached[0].Blocks)
	require.Equal(t, fresh[0].Segments, cached[0].Segments)
}
