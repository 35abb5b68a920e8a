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

// Package asthelper renders Go AST expressions and function signatures back to short, readable
// strings for report output, shortening long expressions rather than spelling them out in full.
package asthelper

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"strings"
)

// astExprToString converts an AST expression to string using the printer package.
func astExprToString(fset *token.FileSet, e ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, e); err != nil {
		return fmt.Sprintf("<unprintable: %v>", err)
	}
	return buf.String()
}

// PrintExpr converts an AST expression to string, shortening long sub-expressions when shorten is
// true (e.g. s.foo(longVarName, anotherLongVarName) becomes s.foo(...)).
func PrintExpr(fset *token.FileSet, e ast.Expr, shorten bool) string {
	if !shorten {
		return astExprToString(fset, e)
	}
	var s strings.Builder
	printExprHelper(fset, e, &s)
	return s.String()
}

// FuncSignaturePreview renders a short "name(argtype, argtype) rettype" preview of a function
// declaration's signature, used by the report to give a human reader something recognizable
// alongside a bare file:line clone-group member.
func FuncSignaturePreview(fset *token.FileSet, fd *ast.FuncDecl) string {
	var sb strings.Builder
	sb.WriteString(fd.Name.Name)
	sb.WriteString("(")
	if fd.Type.Params != nil {
		first := true
		for _, f := range fd.Type.Params.List {
			n := len(f.Names)
			if n == 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				if !first {
					sb.WriteString(", ")
				}
				first = false
				sb.WriteString(PrintExpr(fset, f.Type, true))
			}
		}
	}
	sb.WriteString(")")
	if fd.Type.Results != nil && len(fd.Type.Results.List) > 0 {
		sb.WriteString(" ")
		if len(fd.Type.Results.List) == 1 && len(fd.Type.Results.List[0].Names) == 0 {
			sb.WriteString(PrintExpr(fset, fd.Type.Results.List[0].Type, true))
		} else {
			sb.WriteString("(...)")
		}
	}
	return sb.String()
}

func printExprHelper(fset *token.FileSet, e ast.Expr, s *strings.Builder) {
	// _shortenExprLen is the maximum length of an expression printed in full; short enough that
	// shortening it further would just replace it with an ellipsis of similar length.
	const _shortenExprLen = 3

	fullExpr := func(node ast.Node) (string, bool) {
		switch n := node.(type) {
		case *ast.Ident:
			if len(n.Name) <= _shortenExprLen {
				return n.Name, true
			}
		case *ast.BasicLit:
			if len(n.Value) <= _shortenExprLen {
				return n.Value, true
			}
		}
		return "", false
	}

	switch node := e.(type) {
	case *ast.Ident:
		s.WriteString(node.Name)

	case *ast.StarExpr:
		s.WriteString("*")
		printExprHelper(fset, node.X, s)

	case *ast.SelectorExpr:
		printExprHelper(fset, node.X, s)
		s.WriteString(".")
		s.WriteString(node.Sel.Name)

	case *ast.ArrayType:
		s.WriteString("[]")
		printExprHelper(fset, node.Elt, s)

	case *ast.CallExpr:
		printExprHelper(fset, node.Fun, s)
		s.WriteString("(")
		if len(node.Args) > 0 {
			isShorten := true
			if len(node.Args) == 1 {
				if arg, ok := fullExpr(node.Args[0]); ok {
					s.WriteString(arg)
					isShorten = false
				}
			}
			if isShorten {
				s.WriteString("...")
			}
		}
		s.WriteString(")")

	case *ast.IndexExpr:
		printExprHelper(fset, node.X, s)
		s.WriteString("[")
		if v, ok := fullExpr(node.Index); ok {
			s.WriteString(v)
		} else {
			s.WriteString("...")
		}
		s.WriteString("]")

	default:
		s.WriteString(astExprToString(fset, e))
	}
}
