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

package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeclone-go/codeclone/internal/cfgbuild"
	"github.com/codeclone-go/codeclone/internal/fingerprint"
	"github.com/codeclone-go/codeclone/internal/ir"
)

func body(names ...string) []ir.Stmt {
	stmts := make([]ir.Stmt, len(names))
	for i, n := range names {
		stmts[i] = &ir.ExprStmt{X: &ir.Ident{Name: n}}
	}
	return stmts
}

func TestFunctionIdenticalShapeSameIdentity(t *testing.T) {
	t.Parallel()

	g1 := cfgbuild.Build(body("a", "b"))
	g2 := cfgbuild.Build(body("x", "y"))

	require.Equal(t, fingerprint.Function(g1, 3), fingerprint.Function(g2, 3))
}

func TestFunctionDifferentShapeDifferentHash(t *testing.T) {
	t.Parallel()

	straight := cfgbuild.Build(body("a"))
	branchy := cfgbuild.Build([]ir.Stmt{&ir.If{Cond: &ir.Ident{Name: "c"}, Body: body("a")}})

	id1 := fingerprint.Function(straight, 3)
	id2 := fingerprint.Function(branchy, 3)
	require.NotEqual(t, id1.Hash, id2.Hash)
}

func TestLOCBucketGrouping(t *testing.T) {
	t.Parallel()

	require.Equal(t, fingerprint.LOCBucket(3), fingerprint.LOCBucket(5))
	require.NotEqual(t, fingerprint.LOCBucket(5), fingerprint.LOCBucket(6))
	require.Equal(t, fingerprint.LOCBucket(1000), fingerprint.LOCBucket(500))
}

func TestStmtWindowsOrderSensitiveDiffersOnReorder(t *testing.T) {
	t.Parallel()

	forward := body("a", "b", "c")
	reversed := body("c", "b", "a")

	fw := fingerprint.StmtWindows(forward, 3)
	rv := fingerprint.StmtWindows(reversed, 3)
	require.Len(t, fw, 1)
	require.Len(t, rv, 1)

	// Same statement shapes in a different order: order-sensitive hash differs, order-insensitive
	// sig matches.
	require.NotEqual(t, fw[0].Hash, rv[0].Hash)
	require.Equal(t, fw[0].Sig, rv[0].Sig)
}

func TestStmtWindowsSizeLargerThanBodyYieldsNone(t *testing.T) {
	t.Parallel()

	require.Nil(t, fingerprint.StmtWindows(body("a"), 1000))
}

func TestStmtWindowsSlideOverTopLevelStatementsNotBlocks(t *testing.T) {
	t.Parallel()

	// An if/else inside the body is one top-level statement regardless of how many blocks its
	// own CFG lowers to, so a 2-statement window still only slides across the 2 top-level
	// statements here, not across however many blocks cfgbuild would produce for them.
	stmts := []ir.Stmt{
		&ir.If{Cond: &ir.Ident{Name: "c"}, Body: body("a")},
		&ir.ExprStmt{X: &ir.Ident{Name: "b"}},
	}
	windows := fingerprint.StmtWindows(stmts, 2)
	require.Len(t, windows, 1)
}

func TestStmtBlocksVaryInLength(t *testing.T) {
	t.Parallel()

	blocks := fingerprint.StmtBlocks(body("a", "b", "c", "d"))
	require.NotEmpty(t, blocks)

	lengths := map[int]bool{}
	for _, w := range blocks {
		lengths[w.End-w.Start] = true
	}
	require.True(t, lengths[2])
	require.True(t, lengths[3])
}

func TestStmtBlocksTooShortBodyYieldsNone(t *testing.T) {
	t.Parallel()

	require.Empty(t, fingerprint.StmtBlocks(body("a")))
}

func TestSerializeDeterministic(t *testing.T) {
	t.Parallel()

	g := cfgbuild.Build(body("a", "b"))
	require.Equal(t, fingerprint.Serialize(g), fingerprint.Serialize(g))
}

func TestParseDigestRoundTrips(t *testing.T) {
	t.Parallel()

	g := cfgbuild.Build(body("a", "b"))
	want := fingerprint.Function(g, 10).Hash

	got, err := fingerprint.ParseDigest(want.String())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestParseDigestRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	_, err := fingerprint.ParseDigest("not-hex")
	require.Error(t, err)

	_, err = fingerprint.ParseDigest("abcd")
	require.Error(t, err, "too short to be a sha1 digest")
}
