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

// Package cfgbuild constructs a control-flow graph from a lowered function body.
//
// Construction happens in two conceptual passes folded into one recursive walk: statements are
// threaded into blocks in source order while loop/branch/try structure is built up, and the parts
// a naive block-per-statement walk would lose (loop-else targets, labeled break/continue
// resolution, try/except/finally edges) are resolved as each construct closes rather than in a
// separate fixup step. The builder constructs directly from internal/ir rather than adapting a
// Go-specific AST-to-CFG library, so the same code underlies both the Go front end and any IR
// built by hand in tests.
package cfgbuild

import "github.com/codeclone-go/codeclone/internal/ir"

// BlockKind labels what produced a Block, used by the fingerprint engine's canonical dump.
type BlockKind int

const (
	KindEntry BlockKind = iota
	KindExit
	KindPlain
	KindBranch
	KindLoopHeader
	KindLoopElse
	KindTryFinally
	KindHandler
	KindMatchCase
	KindWith
)

// Block is one basic block: a straight-line run of statements with explicit successor edges.
// Edge labels ("true"/"false"/"next"/"loop"/"raise"/case index) disambiguate otherwise-identical
// out-degree-2 blocks so successor order stays semantically stable across runs.
type Block struct {
	ID      int
	Kind    BlockKind
	Stmts   []ir.Stmt
	Succs   []Edge
	Label   string // loop/case label, when relevant to disambiguation
}

// Edge is a successor edge out of a Block.
type Edge struct {
	To    int
	Label string
}

// Graph is a function's CFG: Entry is always block 0, Exit is always the last block appended.
type Graph struct {
	Blocks []*Block
	Entry  int
	Exit   int
}

func (g *Graph) newBlock(kind BlockKind) *Block {
	b := &Block{ID: len(g.Blocks), Kind: kind}
	g.Blocks = append(g.Blocks, b)
	return b
}

// loopTarget records the after-block (for break) and header/post-entry block (for continue) of
// an enclosing loop, keyed by label for the labeled break/continue extension.
type loopTarget struct {
	label      string
	breakTo    int
	continueTo int
}

type builder struct {
	g     *Graph
	loops []loopTarget
	// unhandledRaise accumulates, for the Try currently being built, handler test blocks whose
	// failure edge still needs to be wired to Finally/the return block once that's known; cleared
	// by finishTry, never shared across sibling or nested Try constructs.
	unhandledRaise []*Block
}

// Build constructs the CFG for a lowered function body. Block id assignment follows a
// deterministic depth-first walk of the statement list in source order, so the same function body
// always produces the same block numbering.
func Build(body []ir.Stmt) *Graph {
	g := &Graph{}
	entry := g.newBlock(KindEntry)
	g.Entry = entry.ID
	b := &builder{g: g}
	last := b.walk(body, entry)
	exit := g.newBlock(KindExit)
	g.Exit = exit.ID
	if last != nil {
		connect(last, exit.ID, "next")
	}
	return g
}

func connect(b *Block, to int, label string) {
	b.Succs = append(b.Succs, Edge{To: to, Label: label})
}

// walk appends stmts to the block chain starting at cur, returning the open-ended block that
// still needs a successor (nil if every path already terminated, e.g. ends in return/raise/break).
func (b *builder) walk(stmts []ir.Stmt, cur *Block) *Block {
	for _, s := range stmts {
		cur = b.walkStmt(s, cur)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func (b *builder) walkStmt(s ir.Stmt, cur *Block) *Block {
	switch n := s.(type) {
	case *ir.Assign, *ir.ExprStmt:
		cur.Stmts = append(cur.Stmts, s)
		return cur

	case *ir.Return:
		cur.Stmts = append(cur.Stmts, s)
		return nil

	case *ir.Raise:
		cur.Stmts = append(cur.Stmts, s)
		return nil

	case *ir.Break:
		target, ok := b.resolveLoop(n.Label)
		if ok {
			connect(cur, target.breakTo, "break")
		}
		return nil

	case *ir.Continue:
		target, ok := b.resolveLoop(n.Label)
		if ok {
			connect(cur, target.continueTo, "continue")
		}
		return nil

	case *ir.If:
		return b.walkIf(n, cur)

	case *ir.Loop:
		return b.walkLoop(n, cur)

	case *ir.Try:
		return b.walkTry(n, cur)

	case *ir.With:
		return b.walkWith(n, cur)

	case *ir.Match:
		return b.walkMatch(n, cur)

	default:
		cur.Stmts = append(cur.Stmts, s)
		return cur
	}
}

func (b *builder) resolveLoop(label string) (loopTarget, bool) {
	if label == "" {
		if len(b.loops) == 0 {
			return loopTarget{}, false
		}
		return b.loops[len(b.loops)-1], true
	}
	for i := len(b.loops) - 1; i >= 0; i-- {
		if b.loops[i].label == label {
			return b.loops[i], true
		}
	}
	return loopTarget{}, false
}

func (b *builder) walkIf(n *ir.If, cur *Block) *Block {
	cur.Kind = KindBranch
	cur.Stmts = append(cur.Stmts, &ir.ExprStmt{X: n.Cond, Pos: n.Pos})

	thenBlock := b.g.newBlock(KindPlain)
	connect(cur, thenBlock.ID, "true")
	thenEnd := b.walk(n.Body, thenBlock)

	var elseEnd *Block
	elseStart := -1
	if n.Else != nil {
		elseBlock := b.g.newBlock(KindPlain)
		elseStart = elseBlock.ID
		elseEnd = b.walk(n.Else, elseBlock)
	}

	merge := b.g.newBlock(KindPlain)
	if elseStart >= 0 {
		connect(cur, elseStart, "false")
	} else {
		connect(cur, merge.ID, "false")
	}
	if thenEnd != nil {
		connect(thenEnd, merge.ID, "next")
	}
	if elseEnd != nil {
		connect(elseEnd, merge.ID, "next")
	}

	if thenEnd == nil && (n.Else == nil || elseEnd == nil) {
		// Both branches terminate: the merge block is unreachable dead code, left in the graph
		// with zero predecessors rather than renumbered or removed.
		return nil
	}
	return merge
}

func (b *builder) walkLoop(n *ir.Loop, cur *Block) *Block {
	if n.Init != nil {
		cur = b.walkStmt(n.Init, cur)
	}

	header := b.g.newBlock(KindLoopHeader)
	header.Label = n.Label
	connect(cur, header.ID, "next")
	if n.Cond != nil {
		header.Stmts = append(header.Stmts, &ir.ExprStmt{X: n.Cond, Pos: n.Pos})
	}

	after := b.g.newBlock(KindPlain)

	elseTarget := after.ID
	if n.Else != nil {
		elseBlock := b.g.newBlock(KindLoopElse)
		elseEnd := b.walk(n.Else, elseBlock)
		if elseEnd != nil {
			connect(elseEnd, after.ID, "next")
		}
		elseTarget = elseBlock.ID
	}

	postTarget := header.ID
	var postBlock *Block
	if n.Post != nil {
		postBlock = b.g.newBlock(KindPlain)
		postTarget = postBlock.ID
	}

	b.loops = append(b.loops, loopTarget{label: n.Label, breakTo: after.ID, continueTo: postTarget})
	bodyStart := b.g.newBlock(KindPlain)
	connect(header, bodyStart.ID, "true")
	bodyEnd := b.walk(n.Body, bodyStart)
	b.loops = b.loops[:len(b.loops)-1]

	connect(header, elseTarget, "false")

	if postBlock != nil {
		if bodyEnd != nil {
			connect(bodyEnd, postBlock.ID, "next")
		}
		postEnd := b.walkStmt(n.Post, postBlock)
		if postEnd != nil {
			connect(postEnd, header.ID, "loop")
		}
	} else if bodyEnd != nil {
		connect(bodyEnd, header.ID, "loop")
	}

	return after
}

// mayRaise reports whether s contains something capable of raising into an enclosing handler: a
// call, an attribute access, an index/subscript, a channel receive (the suspension-yield
// equivalent), or an explicit raise. A statement built only from bare names, literals and
// arithmetic never raises and so never needs an edge into the handler chain at all.
func mayRaise(s ir.Stmt) bool {
	switch n := s.(type) {
	case *ir.ExprStmt:
		return exprMayRaise(n.X)
	case *ir.Assign:
		for _, e := range n.Rhs {
			if exprMayRaise(e) {
				return true
			}
		}
		for _, e := range n.Lhs {
			if exprMayRaise(e) {
				return true
			}
		}
		return false
	case *ir.Return:
		for _, e := range n.Results {
			if exprMayRaise(e) {
				return true
			}
		}
		return false
	case *ir.Raise:
		return true
	default:
		// Compound statements (If, Loop, Try, With, Match) are handled by their own walk* methods,
		// which conservatively wire a raise edge of their own rather than going through mayRaise.
		return false
	}
}

func exprMayRaise(e ir.Expr) bool {
	switch n := e.(type) {
	case nil:
		return false
	case *ir.Ident, *ir.Const:
		return false
	case *ir.Call, *ir.Index, *ir.Attribute:
		return true
	case *ir.UnaryOp:
		if n.Op == "<-" {
			return true
		}
		return exprMayRaise(n.X)
	case *ir.BinOp:
		return exprMayRaise(n.X) || exprMayRaise(n.Y)
	case *ir.BoolOp:
		for _, v := range n.Values {
			if exprMayRaise(v) {
				return true
			}
		}
		return false
	case *ir.InOp:
		return exprMayRaise(n.X) || exprMayRaise(n.Y)
	case *ir.IsOp:
		return exprMayRaise(n.X) || exprMayRaise(n.Y)
	default:
		return true
	}
}

// walkTry builds an ordered handler chain: handler i's test, on a non-match, falls through to
// handler i+1's test, and only a may-raising statement inside the body gets an edge into the
// chain's head at all — a handler chain with no reachable raise edge is dead code, same as
// anywhere else in the graph, and is left in place rather than pruned.
func (b *builder) walkTry(n *ir.Try, cur *Block) *Block {
	if len(n.Handlers) == 0 {
		bodyBlock := b.g.newBlock(KindPlain)
		connect(cur, bodyBlock.ID, "next")
		return b.finishTry(n, b.walk(n.Body, bodyBlock))
	}

	merge := b.g.newBlock(KindPlain)

	testBlocks := make([]*Block, len(n.Handlers))
	for i, h := range n.Handlers {
		hBlock := b.g.newBlock(KindHandler)
		testBlocks[i] = hBlock
		if h.Test != nil {
			hBlock.Stmts = append(hBlock.Stmts, &ir.ExprStmt{X: h.Test, Pos: n.Pos})
		}
		if i > 0 {
			connect(testBlocks[i-1], hBlock.ID, "next")
		}
		handlerStart := b.g.newBlock(KindPlain)
		connect(hBlock, handlerStart.ID, "match")
		if hEnd := b.walk(h.Body, handlerStart); hEnd != nil {
			connect(hEnd, merge.ID, "next")
		}
	}
	lastHandler := n.Handlers[len(n.Handlers)-1]

	bodyBlock := b.g.newBlock(KindPlain)
	connect(cur, bodyBlock.ID, "next")
	bodyEnd := b.walkTryBody(n.Body, bodyBlock, testBlocks[0].ID)
	if bodyEnd != nil {
		connect(bodyEnd, merge.ID, "next")
	}

	// A last handler with a Test (no bare "except:"/default clause) can still fail to match; that
	// failure falls through to finally/the enclosing context exactly like an unhandled body raise
	// would, so it is queued the same way and drained in finishTry below.
	if lastHandler.Test != nil {
		b.unhandledRaise = append(b.unhandledRaise, testBlocks[len(testBlocks)-1])
	}

	return b.finishTry(n, merge)
}

// walkTryBody threads a try's body statements into blocks the same way walk does, except that a
// may-raising statement closes its block with an extra "raise" edge to handlerHead before
// continuing in a fresh block, and a compound statement (If/Loop/Try/With/Match) conservatively
// gets the same treatment before being walked normally, since it may raise from anywhere inside.
func (b *builder) walkTryBody(stmts []ir.Stmt, cur *Block, handlerHead int) *Block {
	for _, s := range stmts {
		switch s.(type) {
		case *ir.If, *ir.Loop, *ir.Try, *ir.With, *ir.Match:
			connect(cur, handlerHead, "raise")
			cur = b.walkStmt(s, cur)
		default:
			if mayRaise(s) {
				cur.Stmts = append(cur.Stmts, s)
				connect(cur, handlerHead, "raise")
				next := b.g.newBlock(KindPlain)
				connect(cur, next.ID, "next")
				cur = next
				continue
			}
			cur = b.walkStmt(s, cur)
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// finishTry wires Finally (always runs, on every exit path) after merge, or returns merge
// unchanged when there is no Finally. Any handler left unable to match (tracked in
// b.unhandledRaise while walking this Try) also drains into Finally/the return value here, then
// the slot is cleared so an outer Try never sees a sibling's leftover state.
func (b *builder) finishTry(n *ir.Try, merge *Block) *Block {
	pending := b.unhandledRaise
	b.unhandledRaise = nil

	if len(n.Finally) == 0 {
		for _, p := range pending {
			connect(p, merge.ID, "raise")
		}
		return merge
	}
	finallyBlock := b.g.newBlock(KindTryFinally)
	if merge != nil {
		connect(merge, finallyBlock.ID, "next")
	}
	for _, p := range pending {
		connect(p, finallyBlock.ID, "raise")
	}
	return b.walk(n.Finally, finallyBlock)
}

func (b *builder) walkWith(n *ir.With, cur *Block) *Block {
	withBlock := b.g.newBlock(KindWith)
	connect(cur, withBlock.ID, "next")
	bodyEnd := b.walk(n.Body, withBlock)
	cleanup := b.g.newBlock(KindWith)
	if bodyEnd != nil {
		connect(bodyEnd, cleanup.ID, "next")
	} else {
		// Cleanup still runs on an early exit from within the with-block, matching the
		// finally-always-runs contract shared with try/except/finally.
		connect(withBlock, cleanup.ID, "raise")
	}
	return cleanup
}

func (b *builder) walkMatch(n *ir.Match, cur *Block) *Block {
	cur.Kind = KindBranch
	merge := b.g.newBlock(KindPlain)
	reachable := false
	prev := cur
	for i, c := range n.Cases {
		testBlock := prev
		if i > 0 {
			testBlock = b.g.newBlock(KindMatchCase)
			connect(prev, testBlock.ID, "next")
		}
		if c.Test != nil {
			testBlock.Stmts = append(testBlock.Stmts, &ir.ExprStmt{X: c.Test, Pos: n.Pos})
		}
		caseBlock := b.g.newBlock(KindPlain)
		connect(testBlock, caseBlock.ID, "case")
		caseEnd := b.walk(c.Body, caseBlock)
		if caseEnd != nil {
			connect(caseEnd, merge.ID, "next")
			reachable = true
		}
		prev = testBlock
	}
	connect(prev, merge.ID, "default")
	reachable = true
	if !reachable {
		return nil
	}
	return merge
}
