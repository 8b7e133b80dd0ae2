package resolve

import "j5.dev/x07/internal/ast"

// stdlibModule is one compiler-embedded module plus the stdlib "edition"
// it ships with.
type stdlibModule struct {
	edition string
	build   func() *ast.Program
}

// stdlib is the pinned, compiler-embedded module set. Real stdlib modules
// are authored the same way user modules are (x07AST JSON); these builders
// stand in for the handful of modules small enough to construct directly
// rather than load from an embedded archive, covering the surface the
// runtime and package manager exercise directly (byte views, the os
// capability shims).
var stdlib = map[string]stdlibModule{
	"std.bytes": {
		edition: "std/0.1.1",
		build: func() *ast.Program {
			return &ast.Program{
				SchemaVersion: ast.SchemaVersion,
				ModuleID:      "std.bytes",
				Decls: []ast.Decl{
					{
						Kind:   ast.DeclDefn,
						Name:   "view_len",
						Params: []ast.Param{{Name: "v", Type: "bytes_view"}},
						Result: "i32",
						Body:   callExpr("bytes.len", varExpr("v")),
						Export: true,
					},
				},
			}
		},
	},
	"std.text.ascii": {
		edition: "std/0.1.1",
		build: func() *ast.Program {
			return &ast.Program{
				SchemaVersion: ast.SchemaVersion,
				ModuleID:      "std.text.ascii",
				Imports:       []string{"std.bytes"},
				Decls: []ast.Decl{
					{
						Kind:   ast.DeclDefn,
						Name:   "is_digit",
						Params: []ast.Param{{Name: "c", Type: "i32"}},
						Result: "bool",
						Body: callExpr("i32.and",
							callExpr("i32.cmp_ge", varExpr("c"), intExpr('0')),
							callExpr("i32.cmp_le", varExpr("c"), intExpr('9')),
						),
						Export: true,
					},
				},
			}
		},
	},
	"std.os": {
		edition: "std/os/0.2.0",
		build: func() *ast.Program {
			return &ast.Program{
				SchemaVersion: ast.SchemaVersion,
				ModuleID:      "std.os",
				Decls: []ast.Decl{
					{
						Kind:       ast.DeclExtern,
						Name:       "os_read_file",
						Params:     []ast.Param{{Name: "path", Type: "bytes_view"}},
						Result:     "result<bytes,i32>",
						ABI:        "C",
						ExternName: "x07_os_read_file",
						Export:     true,
					},
				},
			}
		},
	},
}

func varExpr(name string) ast.Expr { return ast.Expr{Kind: ast.ExprVar, Var: name} }
func intExpr(n int64) ast.Expr     { return ast.Expr{Kind: ast.ExprInt, Int: n} }
func callExpr(head string, args ...ast.Expr) *ast.Expr {
	e := ast.Expr{Kind: ast.ExprCall, Head: head, Args: args}
	return &e
}

// lookupStdlib returns the embedded module for moduleID, if any, along with
// the stdlib edition it belongs to.
func lookupStdlib(moduleID string) (*ast.Program, string, bool) {
	m, ok := stdlib[moduleID]
	if !ok {
		return nil, "", false
	}
	return m.build(), m.edition, true
}
