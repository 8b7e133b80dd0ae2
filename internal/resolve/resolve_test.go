package resolve

import (
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"

	"j5.dev/x07/internal/ast"
	"j5.dev/x07/internal/diag"
)

func writeFile(t *testing.T, fs billy.Filesystem, p, content string) {
	t.Helper()
	f, err := fs.Create(p)
	if err != nil {
		t.Fatalf("Create(%s): %v", p, err)
	}
	defer f.Close()
	if _, err := f.Write([]byte(content)); err != nil {
		t.Fatalf("Write(%s): %v", p, err)
	}
}

const testWorkspaceManifest = `{
	"workspace": {
		"name": "demo",
		"members": ["app"],
		"registries": {},
		"toolchain": {"x07c_version": "0.3.0", "stdlib_lock": "std/0.1.1", "stdlib_lock_sha256": ""}
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

const testModuleMain = `{
	"schema_version": "x07.x07ast@0.3.0",
	"module_id": "app.main",
	"imports": ["std.bytes"],
	"decls": [],
	"solve": ["std.bytes.view_len", "input"]
}`

func buildTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	fs := memfs.New()
	writeFile(t, fs, "/ws/x07.workspace.json", testWorkspaceManifest)
	writeFile(t, fs, "/ws/app/x07.package.json", testPackageManifest)
	writeFile(t, fs, "/ws/app/src/main.x07.json", testModuleMain)
	ws, err := LoadWorkspace(fs, "/ws")
	if err != nil {
		t.Fatalf("LoadWorkspace: %v", err)
	}
	return ws
}

func TestLoadWorkspaceIndexesMembers(t *testing.T) {
	ws := buildTestWorkspace(t)
	if _, ok := ws.moduleIndex["app.main"]; !ok {
		t.Fatalf("moduleIndex missing app.main: %+v", ws.moduleIndex)
	}
}

func TestResolveWalksStdlibImport(t *testing.T) {
	ws := buildTestWorkspace(t)
	entry, err := ast.Parse([]byte(testModuleMain))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	g, err := ws.Resolve(entry)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := g.Modules["std.bytes"]; !ok {
		t.Fatalf("expected std.bytes in resolved graph, got %+v", g.Order)
	}
	if g.Modules["std.bytes"].Source != SourceStdlib {
		t.Fatalf("std.bytes source = %v, want SourceStdlib", g.Modules["std.bytes"].Source)
	}
	// app.main imports std.bytes, so std.bytes must resolve before it.
	if g.Order[len(g.Order)-1] != "app.main" {
		t.Fatalf("order = %v, want app.main last", g.Order)
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "/ws/x07.workspace.json", testWorkspaceManifest)
	writeFile(t, fs, "/ws/app/x07.package.json", testPackageManifest)
	writeFile(t, fs, "/ws/app/src/a.x07.json", `{"schema_version":"x07.x07ast@0.3.0","module_id":"app.a","imports":["app.b"],"decls":[]}`)
	writeFile(t, fs, "/ws/app/src/b.x07.json", `{"schema_version":"x07.x07ast@0.3.0","module_id":"app.b","imports":["app.a"],"decls":[]}`)
	ws, err := LoadWorkspace(fs, "/ws")
	if err != nil {
		t.Fatalf("LoadWorkspace: %v", err)
	}
	entry, err := ast.Parse([]byte(`{"schema_version":"x07.x07ast@0.3.0","module_id":"app.a","imports":["app.b"],"decls":[]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = ws.Resolve(entry)
	if err == nil {
		t.Fatalf("expected MODULE_CYCLE, got nil error")
	}
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *resolve.Error, got %T: %v", err, err)
	}
	if rerr.Code != diag.ModuleCycle {
		t.Fatalf("code = %s, want %s", rerr.Code, diag.ModuleCycle)
	}
}

func TestResolveRejectsStdlibLockMismatch(t *testing.T) {
	fs := memfs.New()
	mismatched := `{
		"workspace": {
			"name": "demo", "members": ["app"], "registries": {},
			"toolchain": {"x07c_version": "0.3.0", "stdlib_lock": "std/9.9.9", "stdlib_lock_sha256": ""}
		},
		"paths": {"cache_dir": ".x07/cache", "registry_dir": ".x07/registry", "target_dir": "target"},
		"resolution": {"prefer_highest": true, "allow_yanked": false}
	}`
	writeFile(t, fs, "/ws/x07.workspace.json", mismatched)
	writeFile(t, fs, "/ws/app/x07.package.json", testPackageManifest)
	writeFile(t, fs, "/ws/app/src/main.x07.json", testModuleMain)
	ws, err := LoadWorkspace(fs, "/ws")
	if err != nil {
		t.Fatalf("LoadWorkspace: %v", err)
	}
	entry, err := ast.Parse([]byte(testModuleMain))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = ws.Resolve(entry)
	if err == nil {
		t.Fatalf("expected STDLIB_LOCK_MISMATCH, got nil")
	}
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *resolve.Error, got %T: %v", err, err)
	}
	if rerr.Code != diag.StdlibLockMismatch {
		t.Fatalf("code = %s, want %s", rerr.Code, diag.StdlibLockMismatch)
	}
}
