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

// Package fingerprint turns a control-flow graph into the stable digests clone grouping keys off
// of: a whole-function fingerprint paired with an LOC bucket for function identity, and sliding-
// window block/segment hashes (one order-sensitive, one order-insensitive) for sub-function clone
// detection.
package fingerprint

import (
	"crypto/sha1" //nolint:gosec // used as a stable structural digest, not for any security property
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/codeclone-go/codeclone/internal/cfgbuild"
	"github.com/codeclone-go/codeclone/internal/ir"
	"github.com/codeclone-go/codeclone/internal/normalize"
)

// Digest is a stable 160-bit structural fingerprint.
type Digest [sha1.Size]byte

// String renders the digest as lowercase hex, the form used in reports and baselines.
func (d Digest) String() string { return fmt.Sprintf("%x", d[:]) }

// ParseDigest parses the hex form produced by String, the inverse used when rehydrating a digest
// out of a cached entry instead of recomputing it.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest %q: %w", s, err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("parse digest %q: want %d bytes, got %d", s, len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

// locBuckets are the upper-bound edges (inclusive) of each bucket; a function's LOC count falls
// into the first bucket whose edge is >= its own LOC, with the final bucket catching everything
// larger. Bucketing absorbs insignificant line-count churn (an added blank line, a renamed
// variable that happens to wrap) without ever merging functions of wildly different size into the
// same identity.
var locBuckets = []int{5, 10, 20, 40, 80, 160, 320}

// LOCBucket maps a raw line count to its bucket index.
func LOCBucket(loc int) int {
	for i, edge := range locBuckets {
		if loc <= edge {
			return i
		}
	}
	return len(locBuckets)
}

// FunctionIdentity is the grouping key for whole-function clones: two functions are clones of one
// another iff their FunctionIdentity values are equal.
type FunctionIdentity struct {
	Hash      Digest
	LOCBucket int
}

// Function computes the whole-function identity for a CFG whose source spanned loc lines.
func Function(g *cfgbuild.Graph, loc int) FunctionIdentity {
	return FunctionIdentity{Hash: hashString(Serialize(g)), LOCBucket: LOCBucket(loc)}
}

// Serialize renders a canonical, deterministic textual dump of a CFG: blocks in id order, each
// line carrying its id, kind marker, normalized statement dumps, and sorted successor ids. Two
// CFGs with the same dump are, by construction, identical up to the erasures normalize performs.
func Serialize(g *cfgbuild.Graph) string {
	var sb strings.Builder
	for _, b := range g.Blocks {
		sb.WriteString(blockLine(b))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func blockLine(b *cfgbuild.Block) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(b.ID))
	sb.WriteByte(':')
	sb.WriteString(kindMarker(b.Kind))
	sb.WriteByte('|')
	for i, s := range b.Stmts {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(dumpStmt(s))
	}
	sb.WriteByte('|')
	succs := make([]string, len(b.Succs))
	for i, e := range b.Succs {
		succs[i] = strconv.Itoa(e.To)
	}
	sort.Strings(succs)
	sb.WriteString(strings.Join(succs, ","))
	return sb.String()
}

func kindMarker(k cfgbuild.BlockKind) string {
	switch k {
	case cfgbuild.KindEntry:
		return "E"
	case cfgbuild.KindExit:
		return "X"
	case cfgbuild.KindBranch:
		return "B"
	case cfgbuild.KindLoopHeader:
		return "L"
	case cfgbuild.KindLoopElse:
		return "LE"
	case cfgbuild.KindTryFinally:
		return "F"
	case cfgbuild.KindHandler:
		return "H"
	case cfgbuild.KindMatchCase:
		return "M"
	case cfgbuild.KindWith:
		return "W"
	default:
		return "P"
	}
}

func dumpStmt(s ir.Stmt) string {
	switch n := s.(type) {
	case *ir.ExprStmt:
		return "expr:" + normalize.Dump(n.X)
	case *ir.Assign:
		return "assign:" + dumpExprs(n.Lhs) + "=" + dumpExprs(n.Rhs)
	case *ir.Return:
		return "return:" + dumpExprs(n.Results)
	case *ir.Raise:
		if n.X == nil {
			return "raise:"
		}
		return "raise:" + normalize.Dump(n.X)
	case *ir.Break:
		return "break"
	case *ir.Continue:
		return "continue"
	default:
		return "stmt"
	}
}

func dumpExprs(es []ir.Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = normalize.Dump(e)
	}
	return strings.Join(parts, ",")
}

func hashString(s string) Digest {
	return sha1.Sum([]byte(s)) //nolint:gosec
}

// StmtWindow is one contiguous run of statements from a function's top-level normalized body,
// considered for sub-function clone detection. Unlike Function/Serialize, a window never looks at
// CFG structure at all — it is purely a slice of the statement sequence the function's body
// lowers to, matching a reader's own sense of "this run of lines looks like that run of lines"
// regardless of how either run happens to branch internally.
type StmtWindow struct {
	Start, End int // statement index range [Start, End)
	// Hash is order-sensitive: the statements must appear in the same relative sequence.
	Hash Digest
	// Sig is order-insensitive: the same set of statement shapes in any order also matches,
	// catching reordered-but-equivalent statements (e.g. independent init lines swapped).
	Sig Digest
}

func stmtWindowLines(stmts []ir.Stmt) []string {
	lines := make([]string, len(stmts))
	for i, s := range stmts {
		lines[i] = dumpStmt(s)
	}
	return lines
}

func stmtWindow(stmts []ir.Stmt, start, end int) StmtWindow {
	lines := stmtWindowLines(stmts)
	ordered := strings.Join(lines, "\n")
	sorted := append([]string(nil), lines...)
	sort.Strings(sorted)
	unordered := strings.Join(sorted, "\n")
	return StmtWindow{Start: start, End: end, Hash: hashString(ordered), Sig: hashString(unordered)}
}

// StmtWindows extracts every contiguous window of exactly size statements (in source order) from
// body, the top-level normalized statement sequence of a function. size <= 0 or larger than the
// statement count yields no windows. This is the segment layer: a fixed window size slid one
// statement at a time.
func StmtWindows(body []ir.Stmt, size int) []StmtWindow {
	if size <= 0 || size > len(body) {
		return nil
	}
	var out []StmtWindow
	for start := 0; start+size <= len(body); start++ {
		out = append(out, stmtWindow(body[start:start+size], start, start+size))
	}
	return out
}

// maxBlockStmts bounds the block layer's window length: a "block" stands in for an arbitrary
// syntactic run of statements (an if/for body), which varies in length, so unlike a segment it
// isn't a single fixed window size — but without some cap the enumeration below is quadratic in
// function length, so runs longer than this are only ever considered up to this many statements.
const maxBlockStmts = 12

// StmtBlocks enumerates every contiguous run of 2 or more statements (up to maxBlockStmts long)
// from body, the top-level normalized statement sequence of a function. This is the block layer:
// unlike StmtWindows' single fixed segment size, a block's length varies, standing in for whatever
// arbitrary statement run a reader would recognize as "the same few lines" independent of any
// particular window width.
func StmtBlocks(body []ir.Stmt) []StmtWindow {
	var out []StmtWindow
	n := len(body)
	max := maxBlockStmts
	if n < max {
		max = n
	}
	for size := 2; size <= max; size++ {
		out = append(out, StmtWindows(body, size)...)
	}
	return out
}
