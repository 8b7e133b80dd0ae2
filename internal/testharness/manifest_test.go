package testharness

import (
	"os"
	"path/filepath"
	"testing"

	"j5.dev/x07/internal/ccbuild"
)

const testManifestYAML = `
program: app/src/main.x07.json
profile: debug
cases:
  - id: happy-path
    world: solve-pure
    input:
      bytes: !!binary aGVsbG8=
    expected:
      sha256: 8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4
  - id: with-policy
    world: run-os-sandboxed
    input:
      path: fixtures/in.bin
    expected:
      bytes: !!binary aGk=
    policy:
      anyOf:
        - ruleType: URLMatchRule
          host: example.com
          matchHostBy: full
          path: /
          matchPathBy: prefix
  - id: oracle-compare
    world: solve-pure
    input:
      bytes: !!binary aGk=
    expected:
      program_output:
        program: app/src/reference.x07.json
    caps: [ffi]
    fixture: fixtures/root
`

func TestLoadManifestParsesAllCaseShapes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x07test.manifest.yaml")
	if err := os.WriteFile(path, []byte(testManifestYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Profile != ccbuild.Debug {
		t.Errorf("Profile = %q, want debug", m.Profile)
	}
	if m.WorkspaceRoot != dir {
		t.Errorf("WorkspaceRoot = %q, want %q", m.WorkspaceRoot, dir)
	}
	if len(m.Cases) != 3 {
		t.Fatalf("got %d cases, want 3", len(m.Cases))
	}

	happy := m.Cases[0]
	if happy.Expected.SHA256 != testGreetingSHA256 {
		t.Errorf("happy-path sha256 = %q", happy.Expected.SHA256)
	}
	if string(happy.Input.Bytes) != "hello" {
		t.Errorf("happy-path input = %q, want %q", happy.Input.Bytes, "hello")
	}

	withPolicy := m.Cases[1]
	if withPolicy.Input.Path != "fixtures/in.bin" {
		t.Errorf("with-policy input path = %q", withPolicy.Input.Path)
	}
	if withPolicy.Policy == nil || len(withPolicy.Policy.AnyOf) != 1 {
		t.Fatalf("with-policy Policy = %+v, want one AnyOf rule", withPolicy.Policy)
	}

	oracle := m.Cases[2]
	if oracle.Expected.ProgramOutput == nil || oracle.Expected.ProgramOutput.Program != "app/src/reference.x07.json" {
		t.Fatalf("oracle-compare ProgramOutput = %+v", oracle.Expected.ProgramOutput)
	}
	if len(oracle.Caps) != 1 || oracle.Caps[0] != "ffi" {
		t.Errorf("oracle-compare Caps = %+v", oracle.Caps)
	}
	if oracle.Fixture != "fixtures/root" {
		t.Errorf("oracle-compare Fixture = %q", oracle.Fixture)
	}
}

func TestLoadManifestDefaultsProfileToRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x07test.manifest.yaml")
	doc := "program: app/src/main.x07.json\ncases:\n  - id: c\n    world: solve-pure\n    input:\n      bytes: !!binary ''\n    expected:\n      bytes: !!binary ''\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Profile != ccbuild.Release {
		t.Errorf("Profile = %q, want release", m.Profile)
	}
	if m.Cases[0].Policy != nil {
		t.Errorf("expected no policy when the manifest omits one, got %+v", m.Cases[0].Policy)
	}
}
