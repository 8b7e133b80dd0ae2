package pkgmgr

import (
	"j5.dev/x07/internal/resolve"
)

// ArtifactInfo is what a caller learns about a package's archive after
// fetching it (or, for an already-locked/offline package, what the prior
// lockfile already recorded) — the piece Selection alone doesn't carry,
// since Resolve only pins versions and never downloads anything.
type ArtifactInfo struct {
	Format      string
	URL         string
	SHA256      string
	ModuleIndex []resolve.LockModuleEntry
}

// ToLockfile translates a Selection plus per-package ArtifactInfo into
// the internal/resolve.Lockfile shape `x07 pkg resolve` writes to disk.
// rootDeps maps each workspace member path to its direct dependency
// requirements (the member's own manifest `deps`), which seeds both
// workspace_members-adjacent root edges and resolution_graph.roots;
// registryPins records which registry (by configured name) each package
// id was resolved against, the lockfile's `registry` section.
func ToLockfile(sel *Selection, artifacts map[string]ArtifactInfo, memberDeps map[string]map[string]string, memberPkgIDs map[string]string, registryPins map[string]string, toolchain resolve.LockToolchain) *resolve.Lockfile {
	lf := &resolve.Lockfile{
		SchemaVersion: resolve.LockSchemaVersion,
		Toolchain:     toolchain,
		Registry:      registryPins,
		// GeneratedAtUnix is left zero here; the caller stamps it after
		// this call, the same caller-supplied-timestamp split runner.Run
		// uses for Report.Timestamp, so this translator stays pure.
	}

	for path, pkgID := range memberPkgIDs {
		lf.WorkspaceMembers = append(lf.WorkspaceMembers, resolve.LockMember{
			Path:    path,
			PkgID:   pkgID,
			Version: sel.Selected[pkgID],
		})
	}

	for pkgID, version := range sel.Selected {
		art := artifacts[pkgID]
		entry := sel.Entries[pkgID]
		pkg := resolve.LockPackage{
			PkgID:   pkgID,
			Version: version,
			Source:  "registry",
			Artifact: resolve.LockArtifact{
				Format: art.Format,
				URL:    art.URL,
				SHA256: art.SHA256,
			},
			ModuleIndex: art.ModuleIndex,
		}
		if entry != nil {
			pkg.Yanked = entry.Yanked
		}
		for _, depID := range sel.Edges[pkgID] {
			pkg.Deps = append(pkg.Deps, resolve.LockDep{PkgID: depID, Version: sel.Selected[depID]})
		}
		lf.Packages = append(lf.Packages, pkg)
	}

	for path, deps := range memberDeps {
		var root resolve.LockRoot
		root.MemberPath = path
		for depID := range deps {
			root.Deps = append(root.Deps, resolve.LockDep{PkgID: depID, Version: sel.Selected[depID]})
		}
		lf.ResolutionGraph.Roots = append(lf.ResolutionGraph.Roots, root)
	}

	lf.Sort()
	return lf
}
