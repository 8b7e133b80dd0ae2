// Package emit implements the L3 C emitter: it lowers an already
// type-checked internal/ast.Program into a single self-contained C11
// translation unit: one module graph compiles to one .c file.
package emit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/ast"
	"j5.dev/x07/internal/types"
)

// Emitter lowers one resolved module graph (entry program plus every
// transitively imported program) to C source.
type Emitter struct {
	World   types.World
	Modules map[string]*ast.Program // module_id -> program, entry included
	Entry   *ast.Program

	scope         map[string]types.Type // current function's local bindings, for type re-derivation
	tmp           int
	currentResult types.Type   // enclosing function's declared result type, for `try`'s early-return
	borrowStack   [][]string   // one frame per open `begin` block; each entry is an owner's address expr
	litCount      int

	dropStack [][]dropVar     // one frame per open scope (function body, begin, if-arm, loop body); names owned in that scope
	moved     map[string]bool // names already moved out (by user call, let-rebind, or a consuming builtin) within the current function
}

// dropVar is one owned (bytes|vec_u8) local tracked for end-of-scope drop
// glue.
type dropVar struct {
	name string
	typ  types.Type
}

func isDroppable(t types.Type) bool { return t == types.Bytes || t == types.Vec }

func dropCall(t types.Type, name string) string {
	if t == types.Bytes {
		return fmt.Sprintf("x07_bytes_drop(&%s)", name)
	}
	return fmt.Sprintf("x07_vec_drop(&%s)", name)
}

func (em *Emitter) pushDropFrame() {
	em.dropStack = append(em.dropStack, nil)
}

// trackOwned registers name as owned by the current innermost open scope,
// a no-op for any non-owning type.
func (em *Emitter) trackOwned(name string, t types.Type) {
	if !isDroppable(t) {
		return
	}
	top := len(em.dropStack) - 1
	em.dropStack[top] = append(em.dropStack[top], dropVar{name: name, typ: t})
}

// popDropFrame closes the current innermost scope: it emits a drop call,
// LIFO, for every owned local declared directly in that scope except ones
// already moved out (consumed by a user call, a let-rebind, or a
// value-consuming builtin) or equal to exceptName — the expression whose
// value is escaping this scope as its result, which therefore still needs
// a live owner in the enclosing scope rather than being dropped here.
func (em *Emitter) popDropFrame(buf *strings.Builder, depth int, exceptName string) {
	top := len(em.dropStack) - 1
	frame := em.dropStack[top]
	em.dropStack = em.dropStack[:top]
	for i := len(frame) - 1; i >= 0; i-- {
		v := frame[i]
		if em.moved[v.name] || v.name == exceptName {
			continue
		}
		fmt.Fprintf(buf, "%s%s;\n", indent(depth), dropCall(v.typ, v.name))
	}
}

// emitUnwindDrops emits (without popping any frame) a drop call, LIFO
// across every currently open scope, for every owned local not already
// moved — used by `try`'s early-return path, the one control-flow exit
// that doesn't go through a matching popDropFrame call.
func (em *Emitter) emitUnwindDrops(buf *strings.Builder, depth int) {
	for i := len(em.dropStack) - 1; i >= 0; i-- {
		frame := em.dropStack[i]
		for j := len(frame) - 1; j >= 0; j-- {
			v := frame[j]
			if em.moved[v.name] {
				continue
			}
			fmt.Fprintf(buf, "%s%s;\n", indent(depth), dropCall(v.typ, v.name))
		}
	}
}

// emitCancelCheckpoint emits a check, immediately after a suspension-point
// builtin (task.yield, task.sleep) resumes, for the running task having
// been cancelled while it was off the scheduler. On a hit it unwinds
// through the same drop glue `try`'s early return uses and hands the
// enclosing function's zero value straight back — task.join.bytes, not
// this function's own return, is what reports err(X07_ERR_CANCELED) to
// the caller that's actually waiting on the task.
func (em *Emitter) emitCancelCheckpoint(buf *strings.Builder, depth int) {
	fmt.Fprintf(buf, "%sif (x07_task_should_cancel()) {\n", indent(depth))
	em.emitUnwindDrops(buf, depth+1)
	fmt.Fprintf(buf, "%sx07_tasks[x07_current_task].status = X07_TS_DONE;\n", indent(depth+1))
	fmt.Fprintf(buf, "%sreturn %s;\n", indent(depth+1), em.cancelZeroValue())
	fmt.Fprintf(buf, "%s}\n", indent(depth))
}

// cancelZeroValue is the placeholder value a checkpoint hands back for the
// enclosing function's declared result type; for plain bytes/vec/view
// there's no error channel to carry X07_ERR_CANCELED through, so the real
// signal stays the task record's own cancelled flag.
func (em *Emitter) cancelZeroValue() string {
	switch em.currentResult {
	case types.ResultBytes:
		return "x07_err_bytes(X07_ERR_CANCELED)"
	case types.ResultI32:
		return "x07_err_i32(X07_ERR_CANCELED)"
	case types.Bytes:
		return "(x07_bytes_t){0}"
	case types.Vec:
		return "(x07_vec_t){0}"
	case types.View:
		return "(x07_view_t){0}"
	default:
		return "0"
	}
}

// NewEmitter constructs an Emitter for a module graph already accepted by
// internal/types.Checker — Emit assumes the program is well-typed and
// panics-free by construction; it does not re-validate.
func NewEmitter(world types.World, entry *ast.Program, modules map[string]*ast.Program) *Emitter {
	return &Emitter{World: world, Modules: modules, Entry: entry}
}

// Emit renders the full translation unit: runtime preamble, tag typedefs,
// every declared function across every module in the graph (sorted by
// module id then name for byte-identical output given byte-identical
// input), and the x07_solve_v2 entry
// point that calls the entry module's `solve` expression.
func (em *Emitter) Emit() (string, error) {
	var out strings.Builder
	out.WriteString(runtimePreamble)
	out.WriteString(tagTypedefs)
	out.WriteString("\n")

	ids := make([]string, 0, len(em.Modules))
	for id := range em.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		prog := em.Modules[id]
		decls := append([]ast.Decl(nil), prog.Decls...)
		sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
		for _, d := range decls {
			if err := em.emitDecl(&out, id, d); err != nil {
				return "", errors.Wrapf(err, "module %s decl %s", id, d.Name)
			}
		}
	}

	if err := em.emitEntryPoint(&out); err != nil {
		return "", err
	}
	return out.String(), nil
}

func mangle(moduleID, name string) string {
	r := strings.NewReplacer(".", "_", "-", "_", ":", "_", "/", "_")
	return "x07_" + r.Replace(moduleID) + "__" + r.Replace(name)
}

func (em *Emitter) emitDecl(out *strings.Builder, moduleID string, d ast.Decl) error {
	switch d.Kind {
	case ast.DeclExtern:
		return em.emitExternDecl(out, moduleID, d)
	case ast.DeclDefn, ast.DeclDefasync:
		return em.emitFuncDecl(out, moduleID, d)
	default:
		return errors.Errorf("unknown decl kind for %s.%s", moduleID, d.Name)
	}
}

// emitExternDecl renders a forward declaration for a C-ABI extern symbol.
// Only the "C" abi is accepted.
func (em *Emitter) emitExternDecl(out *strings.Builder, moduleID string, d ast.Decl) error {
	if d.ABI != "C" {
		return errors.Errorf("unsupported extern abi %q", d.ABI)
	}
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = fmt.Sprintf("%s %s", cType(types.Type(p.Type)), p.Name)
	}
	fmt.Fprintf(out, "extern %s %s(%s);\n", cType(types.Type(d.Result)), d.ExternName, strings.Join(params, ", "))
	return nil
}

func (em *Emitter) emitFuncDecl(out *strings.Builder, moduleID string, d ast.Decl) error {
	em.scope = map[string]types.Type{}
	em.tmp = 0
	em.currentResult = types.Type(d.Result)
	em.borrowStack = nil
	em.moved = map[string]bool{}
	em.dropStack = [][]dropVar{nil}
	for _, p := range d.Params {
		em.scope[p.Name] = types.Type(p.Type)
		em.trackOwned(p.Name, types.Type(p.Type))
	}

	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = fmt.Sprintf("%s %s", cType(types.Type(p.Type)), p.Name)
	}
	if len(params) == 0 {
		params = []string{"void"}
	}

	var body strings.Builder
	resultExpr, err := em.lowerExpr(&body, *d.Body, 1)
	if err != nil {
		return err
	}
	bodyT := em.inferType(*d.Body)
	declResult := types.Type(d.Result)

	// A body ending in `try` checks to the unwrapped payload type, not the
	// enclosing result<_,i32> — so a
	// declared Result return implicitly Oks a payload-typed tail
	// expression, mirroring x07_solve_v2's own entry-point wrapping.
	wrapped := resultExpr
	switch {
	case declResult == types.ResultBytes && bodyT == types.Bytes:
		wrapped = fmt.Sprintf("x07_ok_bytes(%s)", resultExpr)
	case declResult == types.ResultI32 && bodyT == types.I32:
		wrapped = fmt.Sprintf("x07_ok_i32(%s)", resultExpr)
	}

	fmt.Fprintf(out, "static %s %s(%s) {\n", cType(declResult), mangle(moduleID, d.Name), strings.Join(params, ", "))
	out.WriteString(body.String())
	em.popDropFrame(out, 1, resultExpr)
	fmt.Fprintf(out, "\treturn %s;\n}\n\n", wrapped)
	if d.Kind == ast.DeclDefasync {
		em.emitTaskThunk(out, moduleID, d)
	}
	return nil
}

// emitTaskThunk emits the args struct + trampoline thunk a defasync decl's
// call sites spawn through (internal/emit/lower.go's lowerUserCall): the
// scheduler only knows how to run a `void (*)(void *)`, so each defasync
// decl gets its own thunk that unpacks its typed arguments from a heap
// closure and stashes the result on the task record the scheduler reads
// back in task.join.bytes.
func (em *Emitter) emitTaskThunk(out *strings.Builder, moduleID string, d ast.Decl) {
	fn := mangle(moduleID, d.Name)
	argsT := fn + "_args_t"
	out.WriteString("typedef struct {\n")
	for i, p := range d.Params {
		fmt.Fprintf(out, "\t%s a%d;\n", cType(types.Type(p.Type)), i)
	}
	if len(d.Params) == 0 {
		out.WriteString("\tint32_t _unused;\n")
	}
	fmt.Fprintf(out, "} %s;\n", argsT)
	fmt.Fprintf(out, "static void %s_thunk(void *x07_argp) {\n", fn)
	fmt.Fprintf(out, "\t%s *a = (%s *)x07_argp;\n", argsT, argsT)
	names := make([]string, len(d.Params))
	for i := range d.Params {
		names[i] = fmt.Sprintf("a->a%d", i)
	}
	fmt.Fprintf(out, "\tx07_tasks[x07_current_task].result = %s(%s);\n", fn, strings.Join(names, ", "))
	out.WriteString("\tfree(a);\n}\n\n")
}

// newTemp returns a fresh C identifier for a sub-expression result that
// needs its own statement (let bindings, if-results, try-results).
func (em *Emitter) newTemp() string {
	em.tmp++
	return fmt.Sprintf("x07_t%d", em.tmp)
}

func indent(depth int) string { return strings.Repeat("\t", depth) }
