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

package gofront_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeclone-go/codeclone/internal/gofront"
	"github.com/codeclone-go/codeclone/internal/ir"
)

func lowerFirstFunc(t *testing.T, src string) *ir.Func {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", "package p\n"+src, 0)
	require.NoError(t, err)

	for _, decl := range file.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok {
			f, ok := gofront.Lower(fd)
			require.True(t, ok)
			return f
		}
	}
	t.Fatal("no function declaration found")
	return nil
}

func TestLowerIfElse(t *testing.T) {
	t.Parallel()

	f := lowerFirstFunc(t, `func f(x int) int {
		if x > 0 {
			return 1
		} else {
			return -1
		}
	}`)

	require.Len(t, f.Body, 1)
	ifStmt, ok := f.Body[0].(*ir.If)
	require.True(t, ok)
	require.Len(t, ifStmt.Body, 1)
	require.Len(t, ifStmt.Else, 1)
}

func TestLowerAugmentedAssignExpands(t *testing.T) {
	t.Parallel()

	f := lowerFirstFunc(t, `func f() {
		x := 0
		x += 1
	}`)

	require.Len(t, f.Body, 2)
	assign, ok := f.Body[1].(*ir.Assign)
	require.True(t, ok)
	require.Len(t, assign.Rhs, 1)
	bin, ok := assign.Rhs[0].(*ir.BinOp)
	require.True(t, ok)
	require.Equal(t, "+", bin.Op)
}

func TestLowerForRangeInsertsHeaderAssign(t *testing.T) {
	t.Parallel()

	f := lowerFirstFunc(t, `func f(xs []int) {
		for i, v := range xs {
			_ = i
			_ = v
		}
	}`)

	require.Len(t, f.Body, 1)
	loop, ok := f.Body[0].(*ir.Loop)
	require.True(t, ok)
	require.Equal(t, ir.LoopRange, loop.Kind)
	require.GreaterOrEqual(t, len(loop.Body), 3)
	assign, ok := loop.Body[0].(*ir.Assign)
	require.True(t, ok)
	require.Len(t, assign.Lhs, 2)
}

func TestLowerDeferRecoverBuildsHandlerChain(t *testing.T) {
	t.Parallel()

	f := lowerFirstFunc(t, `func f() {
		defer func() {
			switch v := recover().(type) {
			case error:
				_ = v
			default:
				_ = v
			}
		}()
	}`)

	require.Len(t, f.Body, 1)
	try, ok := f.Body[0].(*ir.Try)
	require.True(t, ok)
	require.Len(t, try.Handlers, 2)
	require.NotNil(t, try.Handlers[0].Test)
	require.Nil(t, try.Handlers[1].Test)
}

func TestLowerBreakWithLabel(t *testing.T) {
	t.Parallel()

	f := lowerFirstFunc(t, `func f() {
	outer:
		for {
			for {
				break outer
			}
		}
	}`)

	require.Len(t, f.Body, 1)
	outer, ok := f.Body[0].(*ir.Loop)
	require.True(t, ok)
	require.Equal(t, "outer", outer.Label)
}
