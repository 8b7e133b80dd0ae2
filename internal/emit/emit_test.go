package emit

import (
	"strings"
	"testing"

	"j5.dev/x07/internal/ast"
	"j5.dev/x07/internal/types"
)

func parseOne(t *testing.T, doc string) *ast.Program {
	t.Helper()
	p, err := ast.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p
}

func TestEmitSimpleArithmeticFunction(t *testing.T) {
	p := parseOne(t, `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[{"kind":"defn","name":"add_one","export":true,
			"params":[{"name":"x","type":"i32"}],"result":"i32",
			"body":["i32.add","x",1]}],
		"solve":{"b64":"aGk="}
	}`)
	em := NewEmitter(types.WorldSolvePure, p, map[string]*ast.Program{"m": p})
	out, err := em.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, "x07_solve_v2") {
		t.Fatalf("missing entry point in output:\n%s", out)
	}
	if !strings.Contains(out, "x07_m__add_one") {
		t.Fatalf("missing mangled function name in output:\n%s", out)
	}
}

func TestEmitLetAndIf(t *testing.T) {
	p := parseOne(t, `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[{"kind":"defn","name":"pick","export":true,
			"params":[{"name":"x","type":"i32"}],"result":"i32",
			"body":["begin",
				["let","y",["i32.cmp_gt","x",0]],
				["if","y",1,0]
			]}],
		"solve":{"b64":"aGk="}
	}`)
	em := NewEmitter(types.WorldSolvePure, p, map[string]*ast.Program{"m": p})
	out, err := em.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, "if (") {
		t.Fatalf("expected an if statement in output:\n%s", out)
	}
}

func TestEmitBytesViewBorrowRoundTrip(t *testing.T) {
	p := parseOne(t, `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[{"kind":"defn","name":"lenof","export":true,
			"params":[{"name":"b","type":"bytes"}],"result":"i32",
			"body":["begin",
				["let","v",["bytes.view","b"]],
				["bytes.len","v"]
			]}],
		"solve":{"b64":"aGk="}
	}`)
	em := NewEmitter(types.WorldSolvePure, p, map[string]*ast.Program{"m": p})
	out, err := em.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, "x07_bytes_view(") {
		t.Fatalf("expected a bytes_view call in output:\n%s", out)
	}
	if !strings.Contains(out, "x07_borrow_begin(") || !strings.Contains(out, "x07_borrow_end(") {
		t.Fatalf("expected paired borrow_begin/borrow_end calls in output:\n%s", out)
	}
}

func TestEmitTryPropagatesErrorOnResultBytesFunction(t *testing.T) {
	p := parseOne(t, `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[{"kind":"defn","name":"joiner","export":true,
			"params":[{"name":"t","type":"i32"}],"result":"result<bytes,i32>",
			"body":["try",["task.join.bytes","t"]]}],
		"solve":["joiner",1]
	}`)
	em := NewEmitter(types.WorldSolvePure, p, map[string]*ast.Program{"m": p})
	out, err := em.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, "x07_err_bytes(") {
		t.Fatalf("expected an early-return via x07_err_bytes in output:\n%s", out)
	}
}

func TestEmitDefasyncSpawnAndJoin(t *testing.T) {
	p := parseOne(t, `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[
			{"kind":"defasync","name":"fetch","export":true,"params":[],"result":"bytes",
				"body":{"b64":"aGk="}},
			{"kind":"defn","name":"run_it","export":true,"params":[{"name":"x","type":"bytes"}],"result":"result<bytes,i32>",
				"body":["begin",
					["let","t",["fetch"]],
					["try",["task.join.bytes","t"]]
				]}
		],
		"solve":["run_it",{"b64":"aGk="}]
	}`)
	em := NewEmitter(types.WorldSolvePure, p, map[string]*ast.Program{"m": p})
	out, err := em.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, "x07_task_spawn(") {
		t.Fatalf("expected a task spawn in output:\n%s", out)
	}
}

func TestEmitRejectsUnresolvedCall(t *testing.T) {
	p := parseOne(t, `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[{"kind":"defn","name":"f","export":true,"params":[],"result":"i32",
			"body":["not_a_real_head"]}],
		"solve":["f"]
	}`)
	em := NewEmitter(types.WorldSolvePure, p, map[string]*ast.Program{"m": p})
	if _, err := em.Emit(); err == nil {
		t.Fatalf("expected an error for an unresolved call head")
	}
}
