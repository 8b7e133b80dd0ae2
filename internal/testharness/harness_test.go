package testharness

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"j5.dev/x07/internal/ccbuild"
)

const testWorkspaceManifest = `{
	"workspace": {
		"name": "demo",
		"members": ["app"],
		"registries": {},
		"toolchain": {"x07c_version": "0.3.0", "stdlib_lock": "", "stdlib_lock_sha256": ""}
	},
	"paths": {"cache_dir": ".x07/cache", "registry_dir": ".x07/registry", "target_dir": "target"},
	"resolution": {"prefer_highest": true, "allow_yanked": false}
}`

const testPackageManifest = `{
	"package": {"id": "demo:app", "version": "0.1.0"},
	"modules": {"root": "src", "exports": ["app.main"]},
	"deps": {},
	"capabilities": {"worlds_allowed": ["solve-pure"]}
}`

// testGreetingSHA256 is the sha256 of "hi", the fixed output
// testGreetingProgram's solve expression produces.
const testGreetingSHA256 = "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4"

const testGreetingProgram = `{
	"schema_version": "x07.x07ast@0.3.0",
	"module_id": "app.main",
	"imports": [],
	"decls": [
		{"kind":"defn","name":"add_one","export":true,
			"params":[{"name":"x","type":"i32"}],"result":"i32",
			"body":["i32.add","x",1]},
		{"kind":"defn","name":"greet","export":true,
			"params":[],"result":"bytes",
			"body":{"b64":"aGk="}}
	],
	"solve": ["greet"]
}`

const testBrokenProgram = `{
	"schema_version": "x07.x07ast@0.3.0",
	"module_id": "app.main",
	"imports": [],
	"decls": [{"kind":"defn","name":"bad","export":true,
		"params":[{"name":"x","type":"i32"}],"result":"bytes",
		"body":["i32.add","x",1]}],
	"solve": {"b64":"aGk="}
}`

// writeWorkspace lays out a minimal x07 workspace under dir, with
// moduleJSON as app/src/main.x07.json.
func writeWorkspace(t *testing.T, dir, moduleJSON string) {
	t.Helper()
	mustWrite(t, filepath.Join(dir, "x07.workspace.json"), testWorkspaceManifest)
	mustWrite(t, filepath.Join(dir, "app", "x07.package.json"), testPackageManifest)
	mustWrite(t, filepath.Join(dir, "app", "src", "main.x07.json"), moduleJSON)
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func requireCC(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("cc"); err != nil {
		t.Skip("no system cc available")
	}
}

func TestHarnessRunPassesOnMatchingSHA256(t *testing.T) {
	requireCC(t)
	dir := t.TempDir()
	writeWorkspace(t, dir, testGreetingProgram)

	m := &Manifest{
		Program:       "app/src/main.x07.json",
		WorkspaceRoot: dir,
		Profile:       ccbuild.Release,
		Cases: []Case{
			{
				ID:    "add-one",
				World: "solve-pure",
				Input: Input{Bytes: []byte{}},
				Expected: Expected{
					SHA256: testGreetingSHA256,
				},
			},
		},
	}

	h, err := NewHarness(m)
	if err != nil {
		t.Fatalf("NewHarness: %v", err)
	}
	defer h.Close()

	report, err := h.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Total != 1 {
		t.Fatalf("Total = %d, want 1", report.Total)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("unexpected failures: %+v", report.Failed)
	}
	if len(report.Passed) != 1 || report.Passed[0] != "add-one" {
		t.Fatalf("Passed = %+v", report.Passed)
	}
}

func TestHarnessRunFailsOnMismatchedBytes(t *testing.T) {
	requireCC(t)
	dir := t.TempDir()
	writeWorkspace(t, dir, testGreetingProgram)

	m := &Manifest{
		Program:       "app/src/main.x07.json",
		WorkspaceRoot: dir,
		Profile:       ccbuild.Release,
		Cases: []Case{
			{
				ID:       "wrong-expectation",
				World:    "solve-pure",
				Input:    Input{Bytes: []byte{}},
				Expected: Expected{Bytes: []byte("not the real output")},
			},
		},
	}

	h, err := NewHarness(m)
	if err != nil {
		t.Fatalf("NewHarness: %v", err)
	}
	defer h.Close()

	report, err := h.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("got %d failures, want 1: %+v", report.Failed, report.Failed)
	}
	if report.Failed[0].ID != "wrong-expectation" {
		t.Fatalf("Failed[0].ID = %q", report.Failed[0].ID)
	}
}

func TestHarnessRunReportsTypeCheckFailureAsDiagnostics(t *testing.T) {
	requireCC(t)
	dir := t.TempDir()
	writeWorkspace(t, dir, testBrokenProgram)

	m := &Manifest{
		Program:       "app/src/main.x07.json",
		WorkspaceRoot: dir,
		Profile:       ccbuild.Release,
		Cases: []Case{
			{ID: "bad", World: "solve-pure", Input: Input{Bytes: []byte{}}, Expected: Expected{Bytes: []byte{}}},
		},
	}

	h, err := NewHarness(m)
	if err != nil {
		t.Fatalf("NewHarness: %v", err)
	}
	defer h.Close()

	report, err := h.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("got %d failures, want 1", len(report.Failed))
	}
	fc := report.Failed[0]
	if fc.Reason != "type check failed" {
		t.Fatalf("Reason = %q", fc.Reason)
	}
	if fc.Diagnostics == nil || !fc.Diagnostics.HasErrors() {
		t.Fatalf("expected attached diagnostics with errors, got %+v", fc.Diagnostics)
	}
}

func TestHarnessCompileIsMemoizedAcrossCasesSharingAWorld(t *testing.T) {
	requireCC(t)
	dir := t.TempDir()
	writeWorkspace(t, dir, testGreetingProgram)

	m := &Manifest{
		Program:       "app/src/main.x07.json",
		WorkspaceRoot: dir,
		Profile:       ccbuild.Release,
		Cases: []Case{
			{ID: "a", World: "solve-pure", Input: Input{Bytes: []byte{}}, Expected: Expected{
				SHA256: testGreetingSHA256,
			}},
			{ID: "b", World: "solve-pure", Input: Input{Bytes: []byte{}}, Expected: Expected{
				SHA256: testGreetingSHA256,
			}},
		},
	}

	h, err := NewHarness(m)
	if err != nil {
		t.Fatalf("NewHarness: %v", err)
	}
	defer h.Close()

	if _, err := h.Run(context.Background(), m); err != nil {
		t.Fatalf("Run: %v", err)
	}
	count := 0
	h.compiles.Range(func(compileKey, *compileOnce) bool {
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("compiles cache size = %d, want 1 (shared across both cases' world)", count)
	}
}
