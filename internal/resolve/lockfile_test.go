package resolve

import "testing"

func TestLockfileCanonicalizeSortsArrays(t *testing.T) {
	l := &Lockfile{
		SchemaVersion: LockSchemaVersion,
		Toolchain:     LockToolchain{X07CVersion: "0.3.0", StdlibLockSHA256: "abc"},
		Registry:      map[string]string{},
		WorkspaceMembers: []LockMember{
			{Path: "b", PkgID: "demo:b", Version: "0.1.0"},
			{Path: "a", PkgID: "demo:a", Version: "0.1.0"},
		},
		Packages: []LockPackage{
			{
				PkgID: "demo:z", Version: "1.0.0", Source: "registry",
				Artifact: LockArtifact{Format: "x07pkg", SHA256: "deadbeef"},
				Deps: []LockDep{
					{PkgID: "demo:b", Version: "0.1.0"},
					{PkgID: "demo:a", Version: "0.1.0"},
				},
			},
			{
				PkgID: "demo:a", Version: "0.1.0", Source: "registry",
				Artifact: LockArtifact{Format: "x07pkg", SHA256: "cafef00d"},
			},
		},
	}
	out1 := string(l.Canonicalize())
	out2 := string(l.Canonicalize())
	if out1 != out2 {
		t.Fatalf("Canonicalize not stable:\n%s\nvs\n%s", out1, out2)
	}
	// demo:a < demo:z, so demo:a's entry must appear first.
	idxA := indexOf(out1, `"pkg_id":"demo:a"`)
	idxZ := indexOf(out1, `"pkg_id":"demo:z"`)
	if idxA < 0 || idxZ < 0 || idxA > idxZ {
		t.Fatalf("packages not sorted by pkg_id: %s", out1)
	}
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
