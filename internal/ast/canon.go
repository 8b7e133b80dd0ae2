package ast

import "j5.dev/x07/internal/canon"

// Canonicalize emits p as canonical JSON (UTF-8, sorted object keys, compact
// separators, no whitespace). parse(canonicalize(p)) == p holds for every
// Program Parse accepts.
func Canonicalize(p *Program) []byte {
	return canon.Encode(programValue(p))
}

func programValue(p *Program) canon.Value {
	pairs := []canon.Pair{
		canon.KV("schema_version", canon.Str(SchemaVersion)),
		canon.KV("module_id", canon.Str(p.ModuleID)),
		canon.KV("imports", canon.ArrFrom(p.Imports, func(m string) canon.Value { return canon.Str(m) })),
		canon.KV("decls", canon.ArrFrom(p.Decls, declValue)),
	}
	if p.StdlibVersion != "" {
		pairs = append(pairs, canon.KV("stdlib_version", canon.Str(p.StdlibVersion)))
	}
	if p.Solve != nil {
		pairs = append(pairs, canon.KV("solve", exprValue(*p.Solve)))
	}
	return canon.Obj(pairs...)
}

func declValue(d Decl) canon.Value {
	var kind string
	switch d.Kind {
	case DeclDefn:
		kind = "defn"
	case DeclDefasync:
		kind = "defasync"
	case DeclExtern:
		kind = "extern"
	}
	pairs := []canon.Pair{
		canon.KV("kind", canon.Str(kind)),
		canon.KV("name", canon.Str(d.Name)),
		canon.KV("params", canon.ArrFrom(d.Params, paramValue)),
	}
	if d.Result != "" {
		pairs = append(pairs, canon.KV("result", canon.Str(d.Result)))
	}
	if d.Export {
		pairs = append(pairs, canon.KV("export", canon.Bool(true)))
	}
	switch d.Kind {
	case DeclExtern:
		pairs = append(pairs, canon.KV("abi", canon.Str(d.ABI)))
		if d.ExternName != "" {
			pairs = append(pairs, canon.KV("extern_name", canon.Str(d.ExternName)))
		}
	default:
		if d.Body != nil {
			pairs = append(pairs, canon.KV("body", exprValue(*d.Body)))
		}
	}
	return canon.Obj(pairs...)
}

func paramValue(p Param) canon.Value {
	return canon.Obj(
		canon.KV("name", canon.Str(p.Name)),
		canon.KV("type", canon.Str(p.Type)),
	)
}

func exprValue(e Expr) canon.Value {
	switch e.Kind {
	case ExprInt:
		return canon.Int(e.Int)
	case ExprBytes:
		return canon.Obj(canon.KV("b64", canon.B64(e.Bytes)))
	case ExprVar:
		return canon.Str(e.Var)
	case ExprCall:
		items := make([]canon.Value, 0, len(e.Args)+1)
		items = append(items, canon.Str(e.Head))
		for _, a := range e.Args {
			items = append(items, exprValue(a))
		}
		return canon.Arr(items...)
	default:
		return canon.Null()
	}
}

// Equal reports whether two programs have identical canonical encodings,
// i.e. they are semantically indistinguishable x07AST documents.
func Equal(a, b *Program) bool {
	return string(Canonicalize(a)) == string(Canonicalize(b))
}
