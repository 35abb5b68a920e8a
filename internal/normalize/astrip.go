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

package normalize

import (
	"go/ast"

	"golang.org/x/tools/go/ast/astutil"
)

// StripLeadingStringStatements removes a function body's leading bare string-literal expression
// statement in place on a copy of file, the Go-syntax shape closest to a docstring. It runs before
// internal/gofront lowers the file, so gofront never has to special-case this rule itself; the IR-
// level Block function still repeats the same check for callers (tests) that build IR directly
// without going through a *ast.File at all.
func StripLeadingStringStatements(file *ast.File) *ast.File {
	astutil.Apply(file, nil, func(c *astutil.Cursor) bool {
		body, ok := c.Node().(*ast.BlockStmt)
		if !ok || len(body.List) == 0 {
			return true
		}
		if es, ok := body.List[0].(*ast.ExprStmt); ok {
			if lit, ok := es.X.(*ast.BasicLit); ok && lit.Kind.String() == "STRING" {
				body.List = body.List[1:]
			}
		}
		return true
	})
	return file
}
