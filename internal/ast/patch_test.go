package ast

import (
	"bytes"
	"strings"
	"testing"
)

func mustParse(t *testing.T, doc string) *Program {
	t.Helper()
	p, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p
}

func TestApplyPatchReplaceModuleID(t *testing.T) {
	p := mustParse(t, minimalDoc)
	patch := `[{"op":"replace","path":"/module_id","value":"demo/renamed"}]`
	out, err := ApplyPatch(p, []byte(patch))
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if out.ModuleID != "demo/renamed" {
		t.Fatalf("module_id = %q", out.ModuleID)
	}
}

func TestApplyPatchAddImport(t *testing.T) {
	p := mustParse(t, minimalDoc)
	patch := `[{"op":"add","path":"/imports","value":["std/io@0.1.1"]}]`
	out, err := ApplyPatch(p, []byte(patch))
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if len(out.Imports) != 1 || out.Imports[0] != "std/io@0.1.1" {
		t.Fatalf("imports = %+v", out.Imports)
	}
}

func TestApplyPatchTestThenReplace(t *testing.T) {
	p := mustParse(t, minimalDoc)
	patch := `[
		{"op":"test","path":"/module_id","value":"demo/main"},
		{"op":"replace","path":"/module_id","value":"demo/v2"}
	]`
	out, err := ApplyPatch(p, []byte(patch))
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if out.ModuleID != "demo/v2" {
		t.Fatalf("module_id = %q", out.ModuleID)
	}
}

func TestApplyPatchFailedTestAborts(t *testing.T) {
	p := mustParse(t, minimalDoc)
	patch := `[
		{"op":"test","path":"/module_id","value":"not-the-module"},
		{"op":"replace","path":"/module_id","value":"demo/v2"}
	]`
	if _, err := ApplyPatch(p, []byte(patch)); err == nil {
		t.Fatalf("expected test op to fail, got nil error")
	}
}

func TestApplyPatchRemoveField(t *testing.T) {
	p := mustParse(t, minimalDoc)
	patch := `[{"op":"remove","path":"/solve"}]`
	out, err := ApplyPatch(p, []byte(patch))
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if out.Solve != nil {
		t.Fatalf("solve = %+v, want nil", out.Solve)
	}
}

func TestApplyPatchRejectsUnsupportedOp(t *testing.T) {
	p := mustParse(t, minimalDoc)
	patch := `[{"op":"move","from":"/module_id","path":"/decls/0/name"}]`
	if _, err := ApplyPatch(p, []byte(patch)); err == nil {
		t.Fatalf("expected unsupported-op error, got nil")
	}
}

func TestApplyPatchRejectsOversizedPatch(t *testing.T) {
	p := mustParse(t, minimalDoc)
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(strings.Repeat("x", maxPatchBytes))
	sb.WriteByte(']')
	if _, err := ApplyPatch(p, []byte(sb.String())); err == nil {
		t.Fatalf("expected oversized-patch error, got nil")
	}
}

func TestApplyPatchRejectsTooManyOps(t *testing.T) {
	p := mustParse(t, minimalDoc)
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := 0; i < maxPatchOps+1; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"op":"test","path":"/module_id","value":"demo/main"}`)
	}
	buf.WriteByte(']')
	if _, err := ApplyPatch(p, buf.Bytes()); err == nil {
		t.Fatalf("expected too-many-ops error, got nil")
	}
}
