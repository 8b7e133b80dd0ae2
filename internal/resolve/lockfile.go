package resolve

import (
	"encoding/json"
	"sort"

	"j5.dev/x07/internal/canon"
)

// Lockfile is the `x07.lock@0.1.0` schema.
type Lockfile struct {
	SchemaVersion   string                   `json:"schema_version"`
	GeneratedAtUnix int64                    `json:"generated_at_unix"`
	Toolchain       LockToolchain            `json:"toolchain"`
	Registry        map[string]string        `json:"registry"`
	WorkspaceMembers []LockMember            `json:"workspace_members"`
	Packages        []LockPackage            `json:"packages"`
	ResolutionGraph LockResolutionGraph      `json:"resolution_graph"`
}

// LockToolchain pins the compiler/stdlib versions a lockfile was generated
// against.
type LockToolchain struct {
	X07CVersion      string `json:"x07c_version"`
	StdlibLockSHA256 string `json:"stdlib_lock_sha256"`
}

// LockMember is one workspace-member root recorded in the lockfile.
type LockMember struct {
	Path    string `json:"path"`
	PkgID   string `json:"pkg_id"`
	Version string `json:"version"`
}

// LockArtifact describes the packed archive backing a locked package.
type LockArtifact struct {
	Format string `json:"format"`
	URL    string `json:"url,omitempty"`
	SHA256 string `json:"sha256"`
}

// LockModuleEntry maps one module id inside a locked package to its
// archive-relative path and content hash.
type LockModuleEntry struct {
	ModuleID string `json:"module_id"`
	Path     string `json:"path"`
	SHA256   string `json:"sha256"`
}

// LockDep is one pinned (pkg_id, version) edge.
type LockDep struct {
	PkgID   string `json:"pkg_id"`
	Version string `json:"version"`
}

// LockPackage is one resolved, pinned package entry.
type LockPackage struct {
	PkgID       string            `json:"pkg_id"`
	Version     string            `json:"version"`
	Source      string            `json:"source"`
	Artifact    LockArtifact      `json:"artifact"`
	ModuleIndex []LockModuleEntry `json:"module_index"`
	Deps        []LockDep         `json:"deps"`
	Yanked      bool              `json:"yanked,omitempty"`
}

// LockResolutionGraph records, for every workspace-member root, the direct
// dependency edges used to produce the lock.
type LockResolutionGraph struct {
	Roots []LockRoot `json:"roots"`
}

// LockRoot is one workspace-member's direct dependency set.
type LockRoot struct {
	MemberPath string    `json:"member_path"`
	Deps       []LockDep `json:"deps"`
}

const LockSchemaVersion = "x07.lock@0.1.0"

// Sort puts every array in the lockfile into its required canonical order:
// packages by (pkg_id, version); workspace_members by path; deps by
// (pkg_id, version); module_index by module_id. Called before every
// canonical write so two successive `x07 pkg lock` runs agree byte-for-byte.
func (l *Lockfile) Sort() {
	sort.Slice(l.WorkspaceMembers, func(i, j int) bool {
		return l.WorkspaceMembers[i].Path < l.WorkspaceMembers[j].Path
	})
	sort.Slice(l.Packages, func(i, j int) bool {
		a, b := l.Packages[i], l.Packages[j]
		if a.PkgID != b.PkgID {
			return a.PkgID < b.PkgID
		}
		return a.Version < b.Version
	})
	for i := range l.Packages {
		sortDeps(l.Packages[i].Deps)
		sort.Slice(l.Packages[i].ModuleIndex, func(a, b int) bool {
			return l.Packages[i].ModuleIndex[a].ModuleID < l.Packages[i].ModuleIndex[b].ModuleID
		})
	}
	for i := range l.ResolutionGraph.Roots {
		sortDeps(l.ResolutionGraph.Roots[i].Deps)
	}
	sort.Slice(l.ResolutionGraph.Roots, func(i, j int) bool {
		return l.ResolutionGraph.Roots[i].MemberPath < l.ResolutionGraph.Roots[j].MemberPath
	})
}

func sortDeps(deps []LockDep) {
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].PkgID != deps[j].PkgID {
			return deps[i].PkgID < deps[j].PkgID
		}
		return deps[i].Version < deps[j].Version
	})
}

// Canonicalize renders the lockfile through internal/canon so its bytes are
// identical to any other writer of the same logical content.
func (l *Lockfile) Canonicalize() []byte {
	l.Sort()
	return canon.Encode(lockValue(l))
}

func lockValue(l *Lockfile) canon.Value {
	registryPairs := make([]canon.Pair, 0, len(l.Registry))
	for name, pin := range l.Registry {
		registryPairs = append(registryPairs, canon.KV(name, canon.Str(pin)))
	}
	return canon.Obj(
		canon.KV("schema_version", canon.Str(l.SchemaVersion)),
		canon.KV("generated_at_unix", canon.Int(l.GeneratedAtUnix)),
		canon.KV("toolchain", canon.Obj(
			canon.KV("x07c_version", canon.Str(l.Toolchain.X07CVersion)),
			canon.KV("stdlib_lock_sha256", canon.Str(l.Toolchain.StdlibLockSHA256)),
		)),
		canon.KV("registry", canon.Obj(registryPairs...)),
		canon.KV("workspace_members", canon.ArrFrom(l.WorkspaceMembers, func(m LockMember) canon.Value {
			return canon.Obj(
				canon.KV("path", canon.Str(m.Path)),
				canon.KV("pkg_id", canon.Str(m.PkgID)),
				canon.KV("version", canon.Str(m.Version)),
			)
		})),
		canon.KV("packages", canon.ArrFrom(l.Packages, packageValue)),
		canon.KV("resolution_graph", canon.Obj(
			canon.KV("roots", canon.ArrFrom(l.ResolutionGraph.Roots, func(r LockRoot) canon.Value {
				return canon.Obj(
					canon.KV("member_path", canon.Str(r.MemberPath)),
					canon.KV("deps", depsValue(r.Deps)),
				)
			})),
		)),
	)
}

func packageValue(p LockPackage) canon.Value {
	pairs := []canon.Pair{
		canon.KV("pkg_id", canon.Str(p.PkgID)),
		canon.KV("version", canon.Str(p.Version)),
		canon.KV("source", canon.Str(p.Source)),
		canon.KV("artifact", canon.Obj(
			canon.OmitIf(p.Artifact.Format == "", "format", canon.Str(p.Artifact.Format)),
			canon.OmitIf(p.Artifact.URL == "", "url", canon.Str(p.Artifact.URL)),
			canon.KV("sha256", canon.Str(p.Artifact.SHA256)),
		)),
		canon.KV("module_index", canon.ArrFrom(p.ModuleIndex, func(m LockModuleEntry) canon.Value {
			return canon.Obj(
				canon.KV("module_id", canon.Str(m.ModuleID)),
				canon.KV("path", canon.Str(m.Path)),
				canon.KV("sha256", canon.Str(m.SHA256)),
			)
		})),
		canon.KV("deps", depsValue(p.Deps)),
	}
	if p.Yanked {
		pairs = append(pairs, canon.KV("yanked", canon.Bool(true)))
	}
	return canon.Obj(pairs...)
}

func depsValue(deps []LockDep) canon.Value {
	return canon.ArrFrom(deps, func(d LockDep) canon.Value {
		return canon.Obj(
			canon.KV("pkg_id", canon.Str(d.PkgID)),
			canon.KV("version", canon.Str(d.Version)),
		)
	})
}

// ParseLockfile decodes a lockfile document without re-sorting it; callers
// that need the canonical byte form should call Canonicalize.
func ParseLockfile(data []byte) (*Lockfile, error) {
	var l Lockfile
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
