// Package ast implements the x07AST model: parsing, canonicalization, and
// RFC 6902 patch application over the JSON-sexpr program representation.
// It is the L0 layer of the toolchain — every later stage (module
// resolution, type checking, C emission) consumes the Program value this
// package produces.
package ast

// SchemaVersion is the schema tag this package emits. "x07.x07ast@0.1.0" is
// still accepted on parse (legacy) but canonicalize always stamps the
// current version: historical 0.1.0 is accepted as a legacy parser input
// but never emitted.
const SchemaVersion = "x07.x07ast@0.3.0"

const legacySchemaVersion = "x07.x07ast@0.1.0"

// ExprKind tags the variant a Expr node holds.
type ExprKind int

const (
	// ExprInt is an i32 integer literal, stored widened to int64 so
	// that out-of-range literals can be rejected with BAD_TYPE_NAME
	// rather than silently truncated during parse.
	ExprInt ExprKind = iota
	// ExprBytes is a byte-string literal decoded from its base64 leaf.
	ExprBytes
	// ExprVar is a bare variable reference.
	ExprVar
	// ExprCall is a head-tagged application: builtins, let, if, begin,
	// try, and every other form in the closed builtin table all lower
	// to ExprCall with a distinguished Head.
	ExprCall
)

// Expr is one node of the x07AST expression tree — a JSON-sexpr leaf or
// head-tagged array. Design decision: an expression head is always a
// plain string naming a builtin or a user-declared function; letting a
// head itself be an arbitrary sub-expression has no use in the closed,
// non-reflective, non-dynamic type surface (there are no function-valued
// expressions), so v1 only accepts string heads and treats any other head
// shape as UNKNOWN_HEAD.
type Expr struct {
	Kind  ExprKind
	Int   int64
	Bytes []byte
	Var   string
	Head  string
	Args  []Expr
}

// Param is one typed parameter of a declaration.
type Param struct {
	Name string
	Type string
}

// DeclKind tags the variant a Decl holds.
type DeclKind int

const (
	DeclDefn DeclKind = iota
	DeclDefasync
	DeclExtern
)

// Decl is one top-level declaration: `defn`, `defasync`, or an extern
// declaration.
type Decl struct {
	Kind   DeclKind
	Name   string
	Params []Param
	Result string
	// Body is present for Defn/Defasync, nil for Extern.
	Body *Expr
	// ABI and ExternName are present only for DeclExtern ({abi:"C", name, ...}).
	ABI        string
	ExternName string
	// Export marks the declaration visible to importing modules.
	Export bool
}

// Program is a fully parsed x07AST module.
type Program struct {
	SchemaVersion string
	ModuleID      string
	// Imports lists the module ids this module depends on.
	Imports []string
	// StdlibVersion pins the embedded stdlib version this module was
	// authored against (e.g. "std/0.1.1") — the stdlib version tag
	// carried alongside the imports array. Empty for modules that import
	// no stdlib symbols.
	StdlibVersion string
	Decls         []Decl
	// Solve is present only for entry modules.
	Solve *Expr
}
