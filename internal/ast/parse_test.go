package ast

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"j5.dev/x07/internal/diag"
)

const minimalDoc = `{
	"schema_version": "x07.x07ast@0.3.0",
	"module_id": "demo/main",
	"imports": [],
	"decls": [
		{
			"kind": "defn",
			"name": "add_one",
			"params": [{"name": "x", "type": "i32"}],
			"result": "i32",
			"body": ["i32.add", "x", 1]
		}
	],
	"solve": ["add_one", 41]
}`

func TestParseMinimal(t *testing.T) {
	p, err := Parse([]byte(minimalDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.ModuleID != "demo/main" {
		t.Fatalf("module_id = %q", p.ModuleID)
	}
	if len(p.Decls) != 1 || p.Decls[0].Name != "add_one" {
		t.Fatalf("decls = %+v", p.Decls)
	}
	if p.Solve == nil || p.Solve.Kind != ExprCall || p.Solve.Head != "add_one" {
		t.Fatalf("solve = %+v", p.Solve)
	}
}

func TestParseLegacySchemaVersionAccepted(t *testing.T) {
	doc := `{"schema_version":"x07.x07ast@0.1.0","module_id":"m","imports":[],"decls":[]}`
	if _, err := Parse([]byte(doc)); err != nil {
		t.Fatalf("Parse: %v", err)
	}
}

func TestParseRejectsUnknownSchemaVersion(t *testing.T) {
	doc := `{"schema_version":"x07.x07ast@9.9.9","module_id":"m","imports":[],"decls":[]}`
	_, err := Parse([]byte(doc))
	assertCode(t, err, diag.SchemaViolation)
}

func TestParseRejectsEmptyModuleID(t *testing.T) {
	doc := `{"schema_version":"x07.x07ast@0.3.0","module_id":"","imports":[],"decls":[]}`
	_, err := Parse([]byte(doc))
	assertCode(t, err, diag.SchemaViolation)
}

func TestParseRejectsBadTypeName(t *testing.T) {
	doc := `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[{"kind":"defn","name":"f","params":[{"name":"x","type":"i99"}],"body":[1]}]
	}`
	_, err := Parse([]byte(doc))
	assertCode(t, err, diag.BadTypeName)
}

func TestParseRejectsArityMismatch(t *testing.T) {
	doc := `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[{"kind":"defn","name":"f","params":[],"body":["if", 1, 2]}]
	}`
	_, err := Parse([]byte(doc))
	assertCode(t, err, diag.ArityMismatch)
}

func TestParseRejectsNonStringHead(t *testing.T) {
	doc := `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[{"kind":"defn","name":"f","params":[],"body":[[1], 2]}]
	}`
	_, err := Parse([]byte(doc))
	assertCode(t, err, diag.UnknownHead)
}

func TestParseByteLiteral(t *testing.T) {
	doc := `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[{"kind":"defn","name":"f","params":[],"result":"bytes","body":{"b64":"aGk="}}]
	}`
	p, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := p.Decls[0].Body
	if got.Kind != ExprBytes || string(got.Bytes) != "hi" {
		t.Fatalf("body = %+v", got)
	}
}

func TestParseExternRequiresCABI(t *testing.T) {
	doc := `{
		"schema_version":"x07.x07ast@0.3.0","module_id":"m","imports":[],
		"decls":[{"kind":"extern","name":"f","params":[],"abi":"stdcall"}]
	}`
	_, err := Parse([]byte(doc))
	assertCode(t, err, diag.SchemaViolation)
}

func TestCanonicalizeRoundTrip(t *testing.T) {
	p, err := Parse([]byte(minimalDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := Canonicalize(p)
	p2, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(Canonicalize(p)): %v", err)
	}
	if !Equal(p, p2) {
		t.Fatalf("round trip mismatch:\n%s\nvs\n%s", Canonicalize(p), Canonicalize(p2))
	}
}

func TestCanonicalizeSortsAndIsStable(t *testing.T) {
	p, err := Parse([]byte(minimalDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a := Canonicalize(p)
	b := Canonicalize(p)
	if diff := cmp.Diff(string(a), string(b)); diff != "" {
		t.Fatalf("Canonicalize not stable (-a +b):\n%s", diff)
	}
}

func assertCode(t *testing.T, err error, want diag.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", want)
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if pe.Code != want {
		t.Fatalf("code = %s, want %s", pe.Code, want)
	}
}
