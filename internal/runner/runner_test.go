package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"

	"j5.dev/x07/internal/diag"
	"j5.dev/x07/internal/types"
)

func TestTrapCodeMapsKnownTraps(t *testing.T) {
	cases := []struct {
		stderr   string
		wantCode diag.Code
		wantOK   bool
	}{
		{"x07: trap 1\n", diag.FuelExhausted, true},
		{"x07: trap 3\n", diag.MemCapExceeded, true},
		{"x07: trap 2\n", "", false}, // X07_TRAP_OOB has no standalone diag code
		{"x07: solve failed with error 4\n", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		code, ok := TrapCode(c.stderr)
		if ok != c.wantOK || code != c.wantCode {
			t.Errorf("TrapCode(%q) = (%q, %v), want (%q, %v)", c.stderr, code, ok, c.wantCode, c.wantOK)
		}
	}
}

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	report, err := Run(context.Background(), types.WorldSolvePure, Options{
		BinaryPath: "/bin/sh",
		Input:      nil,
		Timestamp:  1234,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", report.ExitCode)
	}
	if len(report.Stdout) != 0 {
		t.Fatalf("Stdout = %q, want empty", report.Stdout)
	}
}

func TestRunReportsNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fail.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 7\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	report, err := Run(context.Background(), types.WorldRunOS, Options{BinaryPath: script})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ExitCode != 7 {
		t.Fatalf("ExitCode = %d, want 7", report.ExitCode)
	}
}

func TestRunWithHardLimitsStillSucceeds(t *testing.T) {
	// A well-behaved process should never notice the backstop rlimits;
	// this just exercises the withHardRlimit plumbing end to end.
	report, err := Run(context.Background(), types.WorldRunOS, Options{
		BinaryPath:      "/bin/sh",
		MaxAddressSpace: 512 << 20,
		MaxCPUSeconds:   30,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", report.ExitCode)
	}
	if report.HardLimitTriggered {
		t.Fatalf("HardLimitTriggered = true for a clean exit")
	}
}

func TestRunCancelsOnTimeout(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "sleep.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	report, err := Run(context.Background(), types.WorldRunOS, Options{
		BinaryPath: script,
		Timeout:    50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Cancelled {
		t.Fatalf("expected Cancelled = true on a timed-out run")
	}
}

func TestReportCanonicalizeIsStable(t *testing.T) {
	r := Report{World: types.WorldSolvePure, ExitCode: 0, Stdout: []byte("hi"), Timestamp: 42}
	a := r.Canonicalize()
	b := r.Canonicalize()
	if string(a) != string(b) {
		t.Fatalf("Canonicalize is not stable across calls")
	}
}

func TestStageFSMaterializesFixtureFiles(t *testing.T) {
	fixture := memfs.New()
	f, err := fixture.Create("dir/hello.txt")
	if err != nil {
		t.Fatalf("fixture.Create: %v", err)
	}
	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	root, cleanup, err := StageFS(fixture)
	if err != nil {
		t.Fatalf("StageFS: %v", err)
	}
	defer cleanup()

	data, err := os.ReadFile(filepath.Join(root, "dir", "hello.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("data = %q, want %q", data, "hello")
	}
}

func TestOsJoinRejectsTraversal(t *testing.T) {
	if _, err := osJoin("/tmp/root", "../../etc/passwd"); err == nil {
		t.Fatalf("expected an error for a traversal path")
	}
}

func TestOsJoinAcceptsOrdinaryPath(t *testing.T) {
	got, err := osJoin("/tmp/root", "a/b.txt")
	if err != nil {
		t.Fatalf("osJoin: %v", err)
	}
	want := filepath.Join("/tmp/root", "a", "b.txt")
	if got != want {
		t.Fatalf("osJoin = %q, want %q", got, want)
	}
}
