package types

import (
	"fmt"

	"j5.dev/x07/internal/ast"
	"j5.dev/x07/internal/diag"
)

// binding is one variable's checker-tracked state.
type binding struct {
	typ         Type
	moved       bool
	borrowCount int
}

// scope is one lexical block: `begin`, `let`'s body, a function's top
// level, or a loop body. Borrows introduced directly within a scope are
// released when the scope ends: borrows are lexical and end at the end of
// the block that introduced them.
type scope struct {
	vars         map[string]*binding
	parent       *scope
	borrowedOwners []*binding // owners borrowed from within this scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: map[string]*binding{}, parent: parent}
}

func (s *scope) lookup(name string) *binding {
	for cur := s; cur != nil; cur = cur.parent {
		if b, ok := cur.vars[name]; ok {
			return b
		}
	}
	return nil
}

// crossesScope reports whether name is bound in an ancestor of s rather
// than in s itself — used by the loop-body re-move check.
func (s *scope) crossesScope(name string) bool {
	_, local := s.vars[name]
	return !local
}

func (s *scope) releaseBorrows() {
	for _, b := range s.borrowedOwners {
		b.borrowCount--
	}
}

// Checker type-checks declarations against a fixed world and capability
// set, accumulating diagnostics rather than stopping at the first error
// within a module (each decl is independent, so one bad decl shouldn't
// suppress diagnostics in the rest of the module).
type Checker struct {
	World    World
	Caps     Capabilities
	Doc      *diag.Document
	Modules  map[string]*ast.Program // module_id -> resolved program, for cross-module calls
}

// NewChecker constructs a Checker for world w with its default capability
// grant.
func NewChecker(w World, modules map[string]*ast.Program) *Checker {
	return &Checker{World: w, Caps: DefaultCapabilities(w), Doc: diag.NewDocument(), Modules: modules}
}

// CheckModule type-checks every defn/defasync body in prog, recording
// diagnostics on c.Doc. It returns true iff no errors were recorded for
// this module (callers checking many modules should inspect c.Doc as a
// whole once all modules are checked).
func (c *Checker) CheckModule(prog *ast.Program) bool {
	before := len(c.Doc.Errors)
	for i, d := range prog.Decls {
		if d.Body == nil {
			continue
		}
		path := fmt.Sprintf("/decls/%d/body", i)
		top := newScope(nil)
		for _, p := range d.Params {
			top.vars[p.Name] = &binding{typ: Type(p.Type)}
		}
		if _, err := c.checkExpr(*d.Body, top, path, d); err != nil {
			c.Doc.Errors = append(c.Doc.Errors, *err)
		}
	}
	return len(c.Doc.Errors) == before
}

func (c *Checker) errorAt(code diag.Code, path string, args ...any) *diag.Entry {
	e := diag.Entry{Code: code, Path: path}
	c.Doc.AddError(code, path, args...)
	// AddError appended to c.Doc.Errors; pull it back out so callers can
	// return it directly as the expr-level failure without double-adding.
	last := &c.Doc.Errors[len(c.Doc.Errors)-1]
	c.Doc.Errors = c.Doc.Errors[:len(c.Doc.Errors)-1]
	e = *last
	return &e
}

// checkExpr returns the static type of e, or a diagnostic entry on
// failure. On failure the entry has already NOT been added to c.Doc;
// CheckModule adds it once, at the top-level call site, so nested failures
// propagate as a single Go error value up the recursion instead of being
// recorded multiple times.
func (c *Checker) checkExpr(e ast.Expr, s *scope, path string, decl ast.Decl) (Type, *diag.Entry) {
	switch e.Kind {
	case ast.ExprInt:
		return I32, nil
	case ast.ExprBytes:
		return Bytes, nil
	case ast.ExprVar:
		b := s.lookup(e.Var)
		if b == nil {
			return "", c.errorAt(diag.TypeMismatch, path, "a declared binding", "undeclared variable "+e.Var)
		}
		if b.moved {
			return "", c.errorAt(diag.UseAfterMove, path, e.Var)
		}
		return b.typ, nil
	case ast.ExprCall:
		return c.checkCall(e, s, path, decl)
	default:
		return "", c.errorAt(diag.EmitterInternal, path, "unrecognized expression kind")
	}
}

func (c *Checker) checkCall(e ast.Expr, s *scope, path string, decl ast.Decl) (Type, *diag.Entry) {
	switch e.Head {
	case "begin":
		return c.checkBegin(e, s, path, decl)
	case "let":
		return c.checkLet(e, s, path, decl)
	case "if":
		return c.checkIf(e, s, path, decl)
	case "try":
		return c.checkTry(e, s, path, decl)
	case "while", "for-range":
		return c.checkLoop(e, s, path, decl)
	}
	if owner, ok := viewBuiltins[e.Head]; ok {
		return c.checkViewBuiltin(e, s, path, owner)
	}
	if unsafeBuiltins[e.Head] {
		if !c.World.IsStandalone() || !c.Caps.Has(CapFFI) {
			return "", c.errorAt(diag.CapabilityDenied, path, e.Head, CapFFI)
		}
	}
	if worlds, ok := WorldGate(e.Head); ok {
		permitted := false
		for _, w := range worlds {
			if c.World == w {
				permitted = true
				break
			}
		}
		if !permitted {
			return "", c.errorAt(diag.CapabilityDenied, path, e.Head, "fs")
		}
	}
	sig, ok := builtins[e.Head]
	if !ok {
		return c.checkUserCall(e, s, path, decl)
	}
	if len(e.Args) != len(sig.Params) {
		return "", c.errorAt(diag.ArityMismatch, path, e.Head, len(sig.Params), len(e.Args))
	}
	for i, a := range e.Args {
		argPath := fmt.Sprintf("%s/%d", path, i+1)
		at, err := c.checkExpr(a, s, argPath, decl)
		if err != nil {
			return "", err
		}
		if at != sig.Params[i] {
			return "", c.errorAt(diag.TypeMismatch, argPath, string(sig.Params[i]), string(at))
		}
		if mutatingBuiltins[e.Head] && i == 0 {
			if err := c.requireMovable(a, s, argPath); err != nil {
				return "", err
			}
		}
	}
	return sig.Result, nil
}

// checkUserCall resolves e.Head against the current module's own decls
// (cross-module resolution is left to L1's already-flattened import graph:
// c.Modules holds every transitively-imported program, so a head qualified
// as e.g. "std.bytes.view_len" is looked up there too).
func (c *Checker) checkUserCall(e ast.Expr, s *scope, path string, decl ast.Decl) (Type, *diag.Entry) {
	target := findDecl(c.Modules, e.Head)
	if target == nil {
		return "", c.errorAt(diag.UnknownBuiltin, path, e.Head)
	}
	if len(e.Args) != len(target.Params) {
		return "", c.errorAt(diag.ArityMismatch, path, e.Head, len(target.Params), len(e.Args))
	}
	for i, a := range e.Args {
		argPath := fmt.Sprintf("%s/%d", path, i+1)
		at, err := c.checkExpr(a, s, argPath, decl)
		if err != nil {
			return "", err
		}
		want := Type(target.Params[i].Type)
		if at != want {
			return "", c.errorAt(diag.TypeMismatch, argPath, string(want), string(at))
		}
		if want.IsOwning() {
			if err := c.requireMovable(a, s, argPath); err != nil {
				return "", err
			}
			c.moveIfVar(a, s)
		}
	}
	return Type(target.Result), nil
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

func (c *Checker) checkBegin(e ast.Expr, s *scope, path string, decl ast.Decl) (Type, *diag.Entry) {
	inner := newScope(s)
	defer inner.releaseBorrows()
	var last Type
	for i, a := range e.Args {
		t, err := c.checkExpr(a, inner, fmt.Sprintf("%s/%d", path, i+1), decl)
		if err != nil {
			return "", err
		}
		last = t
	}
	return last, nil
}

func (c *Checker) checkLet(e ast.Expr, s *scope, path string, decl ast.Decl) (Type, *diag.Entry) {
	if len(e.Args) != 2 || e.Args[0].Kind != ast.ExprVar {
		return "", c.errorAt(diag.SchemaViolation, path, "let requires [name, value]")
	}
	name := e.Args[0].Var
	vt, err := c.checkExpr(e.Args[1], s, fmt.Sprintf("%s/2", path), decl)
	if err != nil {
		return "", err
	}
	if vt.IsOwning() {
		if merr := c.requireMovable(e.Args[1], s, path); merr != nil {
			return "", merr
		}
		c.moveIfVar(e.Args[1], s)
	}
	s.vars[name] = &binding{typ: vt}
	return vt, nil
}

func (c *Checker) checkIf(e ast.Expr, s *scope, path string, decl ast.Decl) (Type, *diag.Entry) {
	condT, err := c.checkExpr(e.Args[0], s, path+"/1", decl)
	if err != nil {
		return "", err
	}
	if condT != Bool {
		return "", c.errorAt(diag.TypeMismatch, path+"/1", string(Bool), string(condT))
	}

	// Only one arm actually runs, but the checker can't know which, so it
	// checks both against the same starting state and takes the union of
	// what each arm moved — erring toward rejecting reuse stays
	// fail-closed.
	outer := reachable(s)
	snapshot := snapshotMoved(outer)

	thenScope := newScope(s)
	thenT, err := c.checkExpr(e.Args[1], thenScope, path+"/2", decl)
	thenScope.releaseBorrows()
	if err != nil {
		return "", err
	}
	thenMoved := movedSince(outer, snapshot)
	restoreMoved(outer, snapshot)

	elseScope := newScope(s)
	elseT, err := c.checkExpr(e.Args[2], elseScope, path+"/3", decl)
	elseScope.releaseBorrows()
	if err != nil {
		return "", err
	}
	if thenT != elseT {
		return "", c.errorAt(diag.TypeMismatch, path, string(thenT), string(elseT))
	}
	for _, b := range thenMoved {
		b.moved = true
	}
	return thenT, nil
}

// reachable collects every binding visible from s, walking up the scope
// chain. Used to snapshot/restore/union moved-state across the two arms of
// an `if`.
func reachable(s *scope) []*binding {
	var out []*binding
	seen := map[*binding]bool{}
	for cur := s; cur != nil; cur = cur.parent {
		for _, b := range cur.vars {
			if !seen[b] {
				seen[b] = true
				out = append(out, b)
			}
		}
	}
	return out
}

func snapshotMoved(bs []*binding) map[*binding]bool {
	snap := make(map[*binding]bool, len(bs))
	for _, b := range bs {
		snap[b] = b.moved
	}
	return snap
}

func movedSince(bs []*binding, snap map[*binding]bool) []*binding {
	var out []*binding
	for _, b := range bs {
		if b.moved && !snap[b] {
			out = append(out, b)
		}
	}
	return out
}

func restoreMoved(bs []*binding, snap map[*binding]bool) {
	for _, b := range bs {
		b.moved = snap[b]
	}
}

func (c *Checker) checkTry(e ast.Expr, s *scope, path string, decl ast.Decl) (Type, *diag.Entry) {
	if decl.Result != string(ResultI32) && decl.Result != string(ResultBytes) {
		return "", c.errorAt(diag.TypeMismatch, path, "result_i32 or result_bytes", decl.Result)
	}
	t, err := c.checkExpr(e.Args[0], s, path+"/1", decl)
	if err != nil {
		return "", err
	}
	if t != ResultI32 && t != ResultBytes {
		return "", c.errorAt(diag.TypeMismatch, path+"/1", "a result<_> type", string(t))
	}
	if t == ResultI32 {
		return I32, nil
	}
	return Bytes, nil
}

// checkLoop handles both `while` and `for-range`. Because the checker
// doesn't unroll, it conservatively forbids moving any variable bound
// outside the loop body from within the body: a second iteration would
// observe it already moved, which is exactly a USE_AFTER_MOVE in spirit,
// so the loop body's own re-entry is what's flagged rather than a
// hypothetical second pass.
func (c *Checker) checkLoop(e ast.Expr, s *scope, path string, decl ast.Decl) (Type, *diag.Entry) {
	body := newScope(s)
	defer body.releaseBorrows()
	var last Type
	for i, a := range e.Args {
		t, err := c.checkExpr(a, body, fmt.Sprintf("%s/%d", path, i+1), decl)
		if err != nil {
			return "", err
		}
		last = t
	}
	for cur := s; cur != nil; cur = cur.parent {
		for name, b := range cur.vars {
			if b.moved && body.crossesScope(name) {
				return "", c.errorAt(diag.UseAfterMove, path, name)
			}
		}
	}
	return last, nil
}

// checkViewBuiltin type-checks bytes.view/bytes.subview/vec_u8.as_view: the
// first argument must be a bare variable reference naming a live,
// unmoved, correctly-typed owner.
func (c *Checker) checkViewBuiltin(e ast.Expr, s *scope, path string, ownerType Type) (Type, *diag.Entry) {
	if len(e.Args) == 0 || e.Args[0].Kind != ast.ExprVar {
		return "", c.errorAt(diag.BorrowConflict, path, fmt.Sprintf("%s requires a named owner", e.Head))
	}
	name := e.Args[0].Var
	owner := s.lookup(name)
	if owner == nil {
		return "", c.errorAt(diag.TypeMismatch, path, "a declared binding", "undeclared variable "+name)
	}
	if owner.typ != ownerType {
		return "", c.errorAt(diag.TypeMismatch, path, string(ownerType), string(owner.typ))
	}
	if owner.moved {
		return "", c.errorAt(diag.UseAfterMove, path, name)
	}
	for i := 1; i < len(e.Args); i++ {
		t, err := c.checkExpr(e.Args[i], s, fmt.Sprintf("%s/%d", path, i+1), ast.Decl{})
		if err != nil {
			return "", err
		}
		if t != I32 {
			return "", c.errorAt(diag.TypeMismatch, path, string(I32), string(t))
		}
	}
	owner.borrowCount++
	s.borrowedOwners = append(s.borrowedOwners, owner)
	return View, nil
}

// requireMovable enforces that an owner cannot be moved, dropped early, or
// passed to a parameter of owning type while a borrow of it is live.
func (c *Checker) requireMovable(e ast.Expr, s *scope, path string) *diag.Entry {
	if e.Kind != ast.ExprVar {
		return nil
	}
	b := s.lookup(e.Var)
	if b == nil {
		return nil
	}
	if b.borrowCount > 0 {
		return c.errorAt(diag.OwnerMovedWhileBorrow, path, e.Var)
	}
	return nil
}

func (c *Checker) moveIfVar(e ast.Expr, s *scope) {
	if e.Kind != ast.ExprVar {
		return
	}
	if b := s.lookup(e.Var); b != nil {
		b.moved = true
	}
}
