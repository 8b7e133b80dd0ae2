package emit

import "j5.dev/x07/internal/ast"
import "j5.dev/x07/internal/types"

// inferType re-derives the static type of an already-checked expression.
// Emission only ever runs on a program internal/types.Checker has already
// accepted, so this never needs to produce a diagnostic — an expression
// shape it doesn't recognize signals an emitter bug, not a source error.
func (em *Emitter) inferType(e ast.Expr) types.Type {
	switch e.Kind {
	case ast.ExprInt:
		return types.I32
	case ast.ExprBytes:
		return types.Bytes
	case ast.ExprVar:
		return em.scope[e.Var]
	case ast.ExprCall:
		return em.inferCallType(e)
	}
	return types.I32
}

func (em *Emitter) inferCallType(e ast.Expr) types.Type {
	switch e.Head {
	case "begin":
		if len(e.Args) == 0 {
			return types.I32
		}
		return em.inferType(e.Args[len(e.Args)-1])
	case "let":
		return em.inferType(e.Args[1])
	case "if":
		return em.inferType(e.Args[1])
	case "try":
		inner := em.inferType(e.Args[0])
		if inner == types.ResultBytes {
			return types.Bytes
		}
		return types.I32
	case "while", "for-range":
		if len(e.Args) == 0 {
			return types.I32
		}
		return em.inferType(e.Args[len(e.Args)-1])
	}
	if owner, ok := types.ViewBuiltinOwnerType(e.Head); ok {
		_ = owner
		return types.View
	}
	if sig, ok := types.BuiltinSignature(e.Head); ok {
		return sig.Result
	}
	if target := findDecl(em.Modules, e.Head); target != nil {
		if target.Kind == ast.DeclDefasync {
			return types.I32
		}
		return types.Type(target.Result)
	}
	return types.I32
}

func findDecl(modules map[string]*ast.Program, head string) *ast.Decl {
	for _, prog := range modules {
		for i := range prog.Decls {
			if prog.Decls[i].Name == head && prog.Decls[i].Export {
				return &prog.Decls[i]
			}
		}
	}
	return nil
}
