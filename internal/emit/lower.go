package emit

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/ast"
	"j5.dev/x07/internal/types"
)

// i32ArithOps/i32CmpOps/i32BoolOps map the scalar builtin heads straight to
// their C infix operator — these never need a runtime call, since the
// checker has already confirmed both operands are i32/bool.
var i32ArithOps = map[string]string{"i32.add": "+", "i32.sub": "-", "i32.mul": "*"}
var i32CmpOps = map[string]string{"i32.cmp_eq": "==", "i32.cmp_ge": ">=", "i32.cmp_le": "<=", "i32.cmp_gt": ">", "i32.cmp_lt": "<"}
var i32BoolOps = map[string]string{"i32.and": "&&", "i32.or": "||"}

// lowerExpr lowers e into zero or more C statements written to buf (at the
// given indent depth) and returns the C expression string denoting e's
// value. Forms that need control flow (let, if, try, while/for-range,
// begin) emit a declared temporary and return its name; literals and vars
// return an inline expression with no statements at all, and scalar
// builtin calls return an inline expression after writing only their
// x07_fuel_tick statement.
func (em *Emitter) lowerExpr(buf *strings.Builder, e ast.Expr, depth int) (string, error) {
	switch e.Kind {
	case ast.ExprInt:
		return fmt.Sprintf("%d", e.Int), nil
	case ast.ExprVar:
		return e.Var, nil
	case ast.ExprBytes:
		return em.lowerByteLiteral(buf, e.Bytes, depth), nil
	case ast.ExprCall:
		return em.lowerCall(buf, e, depth)
	default:
		return "", errors.New("emit: unrecognized expression kind")
	}
}

func (em *Emitter) lowerByteLiteral(buf *strings.Builder, data []byte, depth int) string {
	em.litCount++
	arrName := fmt.Sprintf("x07_lit%d", em.litCount)
	tmp := em.newTemp()
	elems := make([]string, len(data))
	for i, b := range data {
		elems[i] = fmt.Sprintf("0x%02x", b)
	}
	if len(elems) == 0 {
		fmt.Fprintf(buf, "%sstatic const uint8_t %s[1] = {0};\n", indent(depth), arrName)
	} else {
		fmt.Fprintf(buf, "%sstatic const uint8_t %s[] = {%s};\n", indent(depth), arrName, strings.Join(elems, ", "))
	}
	fmt.Fprintf(buf, "%sx07_bytes_t %s = x07_view_to_bytes((x07_view_t){%s, %d});\n", indent(depth), tmp, arrName, len(data))
	em.trackOwned(tmp, types.Bytes)
	return tmp
}

func (em *Emitter) lowerCall(buf *strings.Builder, e ast.Expr, depth int) (string, error) {
	switch e.Head {
	case "begin":
		return em.lowerBegin(buf, e, depth)
	case "let":
		return em.lowerLet(buf, e, depth)
	case "if":
		return em.lowerIf(buf, e, depth)
	case "try":
		return em.lowerTry(buf, e, depth)
	case "while":
		return em.lowerWhile(buf, e, depth)
	case "for-range":
		return em.lowerForRange(buf, e, depth)
	}
	// Every remaining head is a primitive call (builtin or user-declared
	// function) — a fixed fuel cost is deducted per lowered primitive,
	// not per control-flow form. The cost itself comes from the
	// frozen fuel_costs.json table (see fuelcost.go), not a uniform tick,
	// so a channel op or a filesystem read costs more fuel than an i32 add.
	fmt.Fprintf(buf, "%sx07_fuel_tick(%d);\n", indent(depth), fuelCost(e.Head))
	for i, a := range e.Args {
		if a.Kind == ast.ExprVar && types.ConsumesArg(e.Head, i) {
			em.moved[a.Var] = true
		}
	}
	if owner, ok := types.ViewBuiltinOwnerType(e.Head); ok {
		return em.lowerViewBuiltin(buf, e, owner, depth)
	}
	if op, ok := i32ArithOps[e.Head]; ok {
		a, b, err := em.lowerBinaryArgs(buf, e, depth)
		if err != nil {
			return "", err
		}
		// +/-/* wrap modulo 2^32 — computing through uint32_t
		// makes that wraparound well-defined C instead of signed-overflow UB
		// on int32_t.
		return fmt.Sprintf("((int32_t)((uint32_t)(%s) %s (uint32_t)(%s)))", a, op, b), nil
	}
	if op, ok := i32CmpOps[e.Head]; ok {
		a, b, err := em.lowerBinaryArgs(buf, e, depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", a, op, b), nil
	}
	if op, ok := i32BoolOps[e.Head]; ok {
		a, b, err := em.lowerBinaryArgs(buf, e, depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", a, op, b), nil
	}
	switch e.Head {
	case "i32.div":
		a, b, err := em.lowerBinaryArgs(buf, e, depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sint32_t %s = (%s == 0) ? 0 : (%s / %s);\n", indent(depth), tmp, b, a, b)
		return tmp, nil
	case "i32.mod":
		a, b, err := em.lowerBinaryArgs(buf, e, depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		// modulus by zero yields the numerator, not a trap.
		fmt.Fprintf(buf, "%sint32_t %s = (%s == 0) ? (%s) : (%s %% %s);\n", indent(depth), tmp, b, a, a, b)
		return tmp, nil
	case "i32.not":
		a, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(!%s)", a), nil
	case "bytes.len":
		v, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("x07_view_len(%s)", v), nil
	case "cmp_range":
		a, b, err := em.lowerBinaryArgs(buf, e, depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("x07_cmp_range(%s, %s)", a, b), nil
	case "view.to_bytes":
		v, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sx07_bytes_t %s = x07_view_to_bytes(%s);\n", indent(depth), tmp, v)
		em.trackOwned(tmp, types.Bytes)
		return tmp, nil
	case "vec_u8.len":
		v, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("x07_vec_len(%s)", v), nil
	case "vec_u8.push":
		v, b, err := em.lowerBinaryArgs(buf, e, depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sx07_vec_t %s = x07_vec_push(%s, %s);\n", indent(depth), tmp, v, b)
		em.trackOwned(tmp, types.Vec)
		return tmp, nil
	case "task.yield":
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sint32_t %s = x07_task_yield();\n", indent(depth), tmp)
		em.emitCancelCheckpoint(buf, depth)
		return tmp, nil
	case "task.sleep":
		a, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sint32_t %s = x07_task_sleep(%s);\n", indent(depth), tmp, a)
		em.emitCancelCheckpoint(buf, depth)
		return tmp, nil
	case "task.cancel":
		a, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("x07_task_cancel(%s)", a), nil
	case "task.join.bytes":
		a, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("x07_task_join_bytes(%s)", a), nil
	case "chan.bytes":
		cap, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sx07_chan_t *%s = x07_chan_new(%s);\n", indent(depth), tmp, cap)
		return tmp, nil
	case "chan.send":
		ch, b, err := em.lowerBinaryArgs(buf, e, depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sint32_t %s = x07_chan_send(%s, %s);\n", indent(depth), tmp, ch, b)
		return tmp, nil
	case "chan.recv":
		ch, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sx07_result_bytes_t %s = x07_chan_recv(%s);\n", indent(depth), tmp, ch)
		return tmp, nil
	case "chan.close":
		ch, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sint32_t %s = x07_chan_close(%s);\n", indent(depth), tmp, ch)
		return tmp, nil
	case "fs.read":
		v, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sx07_result_bytes_t %s = x07_fs_read(%s);\n", indent(depth), tmp, v)
		return tmp, nil
	case "ptr.deref_i32":
		a, err := em.lowerExpr(buf, e.Args[0], depth)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(*(%s))", a), nil
	case "ptr.store_i32":
		p, v, err := em.lowerBinaryArgs(buf, e, depth)
		if err != nil {
			return "", err
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sint32_t %s = (*(%s) = %s);\n", indent(depth), tmp, p, v)
		return tmp, nil
	}
	return em.lowerUserCall(buf, e, depth)
}

func (em *Emitter) lowerBinaryArgs(buf *strings.Builder, e ast.Expr, depth int) (string, string, error) {
	if len(e.Args) != 2 {
		return "", "", errors.Errorf("emit: %q expects 2 arguments, got %d", e.Head, len(e.Args))
	}
	a, err := em.lowerExpr(buf, e.Args[0], depth)
	if err != nil {
		return "", "", err
	}
	b, err := em.lowerExpr(buf, e.Args[1], depth)
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

func (em *Emitter) lowerUserCall(buf *strings.Builder, e ast.Expr, depth int) (string, error) {
	target := findDecl(em.Modules, e.Head)
	targetModule := ""
	if target == nil {
		return "", errors.Errorf("emit: unresolved call to %q", e.Head)
	}
	for id, prog := range em.Modules {
		for i := range prog.Decls {
			if &prog.Decls[i] == target {
				targetModule = id
			}
		}
	}
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		v, err := em.lowerExpr(buf, a, depth)
		if err != nil {
			return "", err
		}
		args[i] = v
		if i < len(target.Params) && types.Type(target.Params[i].Type).IsOwning() && a.Kind == ast.ExprVar {
			em.moved[a.Var] = true
		}
	}

	// Calling a defasync decl is x07's spawn point: the call itself doesn't
	// run the body at all — it packs the already-lowered arguments into a
	// heap closure and hands it to the scheduler (x07_task_spawn), which
	// runs it as a real coroutine once it's next in the FIFO ready queue
	// (see emitTaskThunk in emit.go for the generated closure/thunk pair).
	if target.Kind == ast.DeclDefasync {
		argsT := mangle(targetModule, e.Head) + "_args_t"
		argsVar := em.newTemp()
		fmt.Fprintf(buf, "%s%s *%s = (%s *)malloc(sizeof(%s));\n", indent(depth), argsT, argsVar, argsT, argsT)
		if len(args) == 0 {
			fmt.Fprintf(buf, "%s%s->_unused = 0;\n", indent(depth), argsVar)
		}
		for i, a := range args {
			fmt.Fprintf(buf, "%s%s->a%d = %s;\n", indent(depth), argsVar, i, a)
		}
		tmp := em.newTemp()
		fmt.Fprintf(buf, "%sint32_t %s = x07_task_spawn(%s_thunk, %s);\n", indent(depth), tmp, mangle(targetModule, e.Head), argsVar)
		return tmp, nil
	}
	call := fmt.Sprintf("%s(%s)", mangle(targetModule, e.Head), strings.Join(args, ", "))
	return call, nil
}

// lowerBegin lowers every argument as a statement in a fresh C block,
// closing any borrows opened directly within it before the block ends —
// the runtime mirror of internal/types.scope.releaseBorrows: borrows are
// lexical, so the block that opened one is exactly the block responsible
// for closing it.
func (em *Emitter) lowerBegin(buf *strings.Builder, e ast.Expr, depth int) (string, error) {
	em.borrowStack = append(em.borrowStack, nil)
	em.pushDropFrame()
	resultT := em.inferType(e)
	tmp := em.newTemp()
	// tmp is declared in the enclosing scope, not inside the block below —
	// it has to outlive the `{ ... }` it's assigned in, since the caller
	// goes on using it after the block (and its drop frame) closes.
	fmt.Fprintf(buf, "%s%s %s;\n", indent(depth), cType(resultT), tmp)
	fmt.Fprintf(buf, "%s{\n", indent(depth))
	var last string
	for _, a := range e.Args {
		v, err := em.lowerExpr(buf, a, depth+1)
		if err != nil {
			return "", err
		}
		last = v
	}
	if last == "" {
		last = "0"
	}
	fmt.Fprintf(buf, "%s%s = %s;\n", indent(depth+1), tmp, last)
	frame := em.borrowStack[len(em.borrowStack)-1]
	em.borrowStack = em.borrowStack[:len(em.borrowStack)-1]
	for _, owner := range frame {
		fmt.Fprintf(buf, "%sx07_borrow_end(%s);\n", indent(depth+1), owner)
	}
	em.popDropFrame(buf, depth+1, last)
	fmt.Fprintf(buf, "%s}\n", indent(depth))
	em.trackOwned(tmp, resultT)
	return tmp, nil
}

func (em *Emitter) lowerLet(buf *strings.Builder, e ast.Expr, depth int) (string, error) {
	if len(e.Args) != 2 || e.Args[0].Kind != ast.ExprVar {
		return "", errors.New("emit: let requires [name, value]")
	}
	name := e.Args[0].Var
	valT := em.inferType(e.Args[1])
	rhs := e.Args[1]
	v, err := em.lowerExpr(buf, rhs, depth)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(buf, "%s%s %s = %s;\n", indent(depth), cType(valT), name, v)
	em.scope[name] = valT
	// Binding a bare var of an owning type to a new name moves it — the old
	// name no longer owns the value, so it must not be dropped again under
	// its own name at scope exit.
	if rhs.Kind == ast.ExprVar && valT.IsOwning() {
		em.moved[rhs.Var] = true
	}
	em.trackOwned(name, valT)
	return name, nil
}

func (em *Emitter) lowerIf(buf *strings.Builder, e ast.Expr, depth int) (string, error) {
	if len(e.Args) != 3 {
		return "", errors.New("emit: if requires [cond, then, else]")
	}
	cond, err := em.lowerExpr(buf, e.Args[0], depth)
	if err != nil {
		return "", err
	}
	resultT := em.inferType(e.Args[1])
	tmp := em.newTemp()
	fmt.Fprintf(buf, "%s%s %s;\n", indent(depth), cType(resultT), tmp)
	fmt.Fprintf(buf, "%sif (%s) {\n", indent(depth), cond)
	em.pushDropFrame()
	thenV, err := em.lowerExpr(buf, e.Args[1], depth+1)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(buf, "%s%s = %s;\n", indent(depth+1), tmp, thenV)
	em.popDropFrame(buf, depth+1, thenV)
	fmt.Fprintf(buf, "%s} else {\n", indent(depth))
	em.pushDropFrame()
	elseV, err := em.lowerExpr(buf, e.Args[2], depth+1)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(buf, "%s%s = %s;\n", indent(depth+1), tmp, elseV)
	em.popDropFrame(buf, depth+1, elseV)
	fmt.Fprintf(buf, "%s}\n", indent(depth))
	em.trackOwned(tmp, resultT)
	return tmp, nil
}

// lowerTry lowers [try, resultExpr]: on error, it returns early from the
// enclosing function using that function's own declared result type
// (internal/types.Checker.checkTry already confirmed the enclosing decl
// returns result<i32,i32> or result<bytes,i32>, matching the inner
// expression's error type exactly — both error channels are plain i32).
func (em *Emitter) lowerTry(buf *strings.Builder, e ast.Expr, depth int) (string, error) {
	if len(e.Args) != 1 {
		return "", errors.New("emit: try expects exactly one argument")
	}
	innerT := em.inferType(e.Args[0])
	v, err := em.lowerExpr(buf, e.Args[0], depth)
	if err != nil {
		return "", err
	}
	tmp := em.newTemp()
	fmt.Fprintf(buf, "%s%s %s = %s;\n", indent(depth), cType(innerT), tmp, v)
	fmt.Fprintf(buf, "%sif (!%s.is_ok) {\n", indent(depth), tmp)
	// try's early return is the one exit path that skips every enclosing
	// popDropFrame call, so it has to drop everything those open scopes own
	// itself.
	em.emitUnwindDrops(buf, depth+1)
	if em.currentResult == types.ResultBytes {
		fmt.Fprintf(buf, "%sreturn x07_err_bytes(%s.err);\n", indent(depth+1), tmp)
	} else {
		fmt.Fprintf(buf, "%sreturn x07_err_i32(%s.err);\n", indent(depth+1), tmp)
	}
	fmt.Fprintf(buf, "%s}\n", indent(depth))
	return tmp + ".ok", nil
}

func (em *Emitter) lowerWhile(buf *strings.Builder, e ast.Expr, depth int) (string, error) {
	if len(e.Args) < 1 {
		return "", errors.New("emit: while requires at least a condition")
	}
	var bodyBuf strings.Builder
	cond, err := em.lowerExpr(&bodyBuf, e.Args[0], depth+1)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(buf, "%sfor (;;) {\n", indent(depth))
	buf.WriteString(bodyBuf.String())
	fmt.Fprintf(buf, "%sif (!(%s)) break;\n", indent(depth+1), cond)
	em.pushDropFrame()
	var last string
	for _, a := range e.Args[1:] {
		v, err := em.lowerExpr(buf, a, depth+1)
		if err != nil {
			return "", err
		}
		last = v
	}
	_ = last
	em.popDropFrame(buf, depth+1, "")
	fmt.Fprintf(buf, "%s}\n", indent(depth))
	return "0", nil
}

// lowerForRange lowers [for-range, var, start, end, ...body] as a bounded
// i32 range loop. The checker doesn't special-case for-range's argument
// shape beyond treating it like while (see internal/types/checker.go), so
// emission fixes the concrete shape the closed builtin set actually needs:
// a named loop variable and an [start, end) i32 range.
func (em *Emitter) lowerForRange(buf *strings.Builder, e ast.Expr, depth int) (string, error) {
	if len(e.Args) < 3 || e.Args[0].Kind != ast.ExprVar {
		return "", errors.New("emit: for-range requires [var, start, end, ...body]")
	}
	varName := e.Args[0].Var
	start, err := em.lowerExpr(buf, e.Args[1], depth)
	if err != nil {
		return "", err
	}
	end, err := em.lowerExpr(buf, e.Args[2], depth)
	if err != nil {
		return "", err
	}
	em.scope[varName] = types.I32
	fmt.Fprintf(buf, "%sfor (int32_t %s = %s; %s < %s; %s++) {\n", indent(depth), varName, start, varName, end, varName)
	em.pushDropFrame()
	for _, a := range e.Args[3:] {
		if _, err := em.lowerExpr(buf, a, depth+1); err != nil {
			return "", err
		}
	}
	em.popDropFrame(buf, depth+1, "")
	fmt.Fprintf(buf, "%s}\n", indent(depth))
	return "0", nil
}

func (em *Emitter) lowerViewBuiltin(buf *strings.Builder, e ast.Expr, ownerType types.Type, depth int) (string, error) {
	if len(e.Args) == 0 || e.Args[0].Kind != ast.ExprVar {
		return "", errors.Errorf("emit: %s requires a named owner", e.Head)
	}
	owner := "&" + e.Args[0].Var
	tmp := em.newTemp()
	switch e.Head {
	case "bytes.view":
		fmt.Fprintf(buf, "%sx07_view_t %s = x07_bytes_view(%s);\n", indent(depth), tmp, owner)
	case "bytes.subview":
		start, err := em.lowerExpr(buf, e.Args[1], depth)
		if err != nil {
			return "", err
		}
		length, err := em.lowerExpr(buf, e.Args[2], depth)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(buf, "%sx07_view_t %s = x07_bytes_subview(%s, %s, %s);\n", indent(depth), tmp, owner, start, length)
	case "vec_u8.as_view":
		fmt.Fprintf(buf, "%sx07_view_t %s = x07_vec_as_view(%s);\n", indent(depth), tmp, owner)
	}
	fmt.Fprintf(buf, "%sx07_borrow_begin(%s);\n", indent(depth), owner)
	if len(em.borrowStack) > 0 {
		top := len(em.borrowStack) - 1
		em.borrowStack[top] = append(em.borrowStack[top], owner)
	}
	_ = ownerType
	return tmp, nil
}
