package pkgmgr

import (
	"testing"

	"j5.dev/x07/internal/resolve"
)

func TestToLockfileProducesSortedPackagesAndRoots(t *testing.T) {
	sel := &Selection{
		Selected: map[string]string{
			"x07:app":  "1.0.0",
			"x07:core": "1.3.0",
		},
		Edges: map[string][]string{
			"x07:app": {"x07:core"},
		},
		Entries: map[string]*IndexEntry{
			"x07:core": {Pkg: "x07:core", Vers: "1.3.0", Yanked: false},
		},
	}
	artifacts := map[string]ArtifactInfo{
		"x07:app":  {Format: "tar.zst", SHA256: "aaa"},
		"x07:core": {Format: "tar.zst", SHA256: "bbb"},
	}
	memberDeps := map[string]map[string]string{
		".": {"x07:app": "^1.0.0"},
	}
	memberPkgIDs := map[string]string{".": "x07:app"}
	registryPins := map[string]string{"crates-io": "sparse+https://index.example.com/"}

	lf := ToLockfile(sel, artifacts, memberDeps, memberPkgIDs, registryPins, resolve.LockToolchain{X07CVersion: "0.1.0"})

	if lf.SchemaVersion != resolve.LockSchemaVersion {
		t.Errorf("SchemaVersion = %q", lf.SchemaVersion)
	}
	if len(lf.Packages) != 2 {
		t.Fatalf("got %d packages, want 2", len(lf.Packages))
	}
	if lf.Packages[0].PkgID != "x07:app" || lf.Packages[1].PkgID != "x07:core" {
		t.Errorf("packages not sorted by pkg_id: %+v", lf.Packages)
	}
	var appPkg resolve.LockPackage
	for _, p := range lf.Packages {
		if p.PkgID == "x07:app" {
			appPkg = p
		}
	}
	if len(appPkg.Deps) != 1 || appPkg.Deps[0].PkgID != "x07:core" || appPkg.Deps[0].Version != "1.3.0" {
		t.Errorf("x07:app deps = %+v", appPkg.Deps)
	}
	if len(lf.ResolutionGraph.Roots) != 1 || lf.ResolutionGraph.Roots[0].MemberPath != "." {
		t.Errorf("ResolutionGraph.Roots = %+v", lf.ResolutionGraph.Roots)
	}
	if len(lf.WorkspaceMembers) != 1 || lf.WorkspaceMembers[0].Version != "1.0.0" {
		t.Errorf("WorkspaceMembers = %+v", lf.WorkspaceMembers)
	}
}
