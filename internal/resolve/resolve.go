package resolve

import (
	"crypto"
	"encoding/hex"
	"io"
	"io/fs"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"

	"j5.dev/x07/internal/ast"
	"j5.dev/x07/internal/cache"
	"j5.dev/x07/internal/diag"
	"j5.dev/x07/internal/glob"
	"j5.dev/x07/internal/hashext"
)

// Workspace is a loaded workspace: its manifest, every member's package
// manifest, and a module-id index built by walking each member's module
// root. LoadWorkspace populates this and the artifact
// cache once; Resolve then runs purely against in-memory state.
type Workspace struct {
	Root     string
	FS       billy.Filesystem
	Manifest *WorkspaceManifest
	Lock     *Lockfile

	members     map[string]*PackageManifest // member path -> manifest
	moduleIndex map[string]memberModule      // module_id -> workspace-member location
	pathDeps    map[string]*PackageManifest  // resolved path-dependency manifests, by dep path
	pathIndex   map[string]memberModule      // module_id -> path-dependency location

	// registryCache is keyed by module id, populated from the lockfile's
	// module_index pins; each entry's loader checks the pinned sha256.
	registryCache cache.Cache
}

type memberModule struct {
	path string // filesystem path (workspace-relative) to the module's .x07.json
	pkg  *PackageManifest
}

// LoadWorkspace enumerates workspace members, parses each package manifest,
// reads the workspace lockfile if present, and indexes every module_id it
// can see without touching the registry.
func LoadWorkspace(wsfs billy.Filesystem, wsRoot string) (*Workspace, error) {
	manifestBytes, err := readFile(wsfs, path.Join(wsRoot, "x07.workspace.json"))
	if err != nil {
		return nil, errors.Wrap(err, "reading workspace manifest")
	}
	ws, err := ParseWorkspaceManifest(manifestBytes)
	if err != nil {
		return nil, err
	}

	w := &Workspace{
		Root:          wsRoot,
		FS:            wsfs,
		Manifest:      ws,
		members:       map[string]*PackageManifest{},
		moduleIndex:   map[string]memberModule{},
		pathDeps:      map[string]*PackageManifest{},
		pathIndex:     map[string]memberModule{},
		registryCache: cache.NewHierarchicalCache(&cache.CoalescingMemoryCache{}),
	}

	for _, memberPath := range ws.Workspace.Members {
		pkgManifestPath := path.Join(wsRoot, memberPath, "x07.package.json")
		data, err := readFile(wsfs, pkgManifestPath)
		if err != nil {
			return nil, errors.Wrapf(err, "reading package manifest for member %q", memberPath)
		}
		pkg, err := ParsePackageManifest(data)
		if err != nil {
			return nil, errors.Wrapf(err, "member %q", memberPath)
		}
		w.members[memberPath] = pkg
		if err := w.indexModuleRoot(wsfs, path.Join(wsRoot, memberPath, pkg.Modules.Root), pkg, w.moduleIndex); err != nil {
			return nil, err
		}
		for depName, dep := range pkg.Deps {
			if dep.Path == "" {
				continue
			}
			depRoot := path.Join(wsRoot, memberPath, dep.Path)
			if _, already := w.pathDeps[depRoot]; already {
				continue
			}
			depManifestData, err := readFile(wsfs, path.Join(depRoot, "x07.package.json"))
			if err != nil {
				return nil, errors.Wrapf(err, "reading path-dependency %q (%s)", depName, dep.Path)
			}
			depPkg, err := ParsePackageManifest(depManifestData)
			if err != nil {
				return nil, errors.Wrapf(err, "path-dependency %q", depName)
			}
			w.pathDeps[depRoot] = depPkg
			if err := w.indexModuleRoot(wsfs, path.Join(depRoot, depPkg.Modules.Root), depPkg, w.pathIndex); err != nil {
				return nil, err
			}
		}
	}

	if data, err := readFile(wsfs, path.Join(wsRoot, "x07.lock.json")); err == nil {
		lock, err := ParseLockfile(data)
		if err != nil {
			return nil, errors.Wrap(err, "parsing workspace lockfile")
		}
		w.Lock = lock
		w.seedRegistryCache(wsfs, lock)
	}

	return w, nil
}

// indexModuleRoot walks a module root directory recording every *.x07.json
// file's module_id, so later lookups are O(1) instead of re-walking on
// every import.
func (w *Workspace) indexModuleRoot(wsfs billy.Filesystem, root string, pkg *PackageManifest, into map[string]memberModule) error {
	return util.Walk(wsfs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || path.Ext(p) != ".json" {
			return nil
		}
		data, rerr := readFile(wsfs, p)
		if rerr != nil {
			return rerr
		}
		prog, perr := ast.Parse(data)
		if perr != nil {
			// Not every *.json under the module root need be an x07AST
			// module (package.json/README live alongside); skip silently.
			return nil
		}
		into[prog.ModuleID] = memberModule{path: p, pkg: pkg}
		return nil
	})
}

// isExported reports whether moduleID matches one of pkg's declared
// modules.exports glob patterns — a package's public surface. Path
// dependencies only ever see a providing package's exported modules;
// anything else is an implementation detail the providing package never
// promised to keep stable.
func isExported(pkg *PackageManifest, moduleID string) bool {
	for _, pattern := range pkg.Modules.Exports {
		if ok, err := glob.Match(pattern, moduleID); err == nil && ok {
			return true
		}
	}
	return false
}

// seedRegistryCache primes the registry cache from lockfile pins. Entries
// are keyed by module id; each loader reads the module from
// <root>/.x07/cache/sha256/<sha256>/<path> and fails ARTIFACT_HASH_MISMATCH
// when the bytes read do not hash to the pinned sha256.
func (w *Workspace) seedRegistryCache(wsfs billy.Filesystem, lock *Lockfile) {
	for _, pkg := range lock.Packages {
		for _, m := range pkg.ModuleIndex {
			modulePath := path.Join(w.Root, ".x07", "cache", "sha256", m.SHA256, m.Path)
			key := m.ModuleID
			sha := m.SHA256
			w.registryCache.Set(key, func() (any, error) {
				data, err := readFile(wsfs, modulePath)
				if err != nil {
					return nil, err
				}
				if got := sha256Hex(data); got != sha {
					return nil, &Error{
						Code: diag.ArtifactHashMismatch,
						Err:  errors.Errorf("module %q: expected sha256 %s, got %s", m.ModuleID, sha, got),
					}
				}
				return data, nil
			})
		}
	}
}

// Resolve walks every import transitively reachable from entry, applying
// the deterministic search order (workspace members, workspace
// path-dependencies, registry cache, embedded stdlib) and failing closed on
// cycles or a stdlib pin mismatch.
func (w *Workspace) Resolve(entry *ast.Program) (*Graph, error) {
	g := newGraph()
	visiting := map[string]bool{}
	var visit func(prog *ast.Program, source Source, path, sha string) error
	visit = func(prog *ast.Program, source Source, modPath, sha string) error {
		if _, ok := g.Modules[prog.ModuleID]; ok {
			return nil
		}
		if visiting[prog.ModuleID] {
			return &Error{Code: diag.ModuleCycle, Err: errors.Errorf("cycle at module %q", prog.ModuleID)}
		}
		visiting[prog.ModuleID] = true
		defer delete(visiting, prog.ModuleID)

		for _, importID := range prog.Imports {
			childProg, childSource, childPath, childSHA, err := w.load(importID)
			if err != nil {
				return err
			}
			if err := visit(childProg, childSource, childPath, childSHA); err != nil {
				return err
			}
		}
		g.add(&Module{ModuleID: prog.ModuleID, Source: source, SHA256: sha, Path: modPath, Program: prog})
		return nil
	}

	if err := visit(entry, SourceWorkspace, "", sha256HexOfProgram(entry)); err != nil {
		return nil, err
	}
	return g, nil
}

// load fetches one module by id via the search order, without recursing
// into its own imports (Resolve's visit does that).
func (w *Workspace) load(moduleID string) (*ast.Program, Source, string, string, error) {
	if mm, ok := w.moduleIndex[moduleID]; ok {
		data, err := readFile(w.FS, mm.path)
		if err != nil {
			return nil, 0, "", "", err
		}
		prog, err := ast.Parse(data)
		if err != nil {
			return nil, 0, "", "", err
		}
		return prog, SourceWorkspace, mm.path, sha256Hex(data), nil
	}
	if mm, ok := w.pathIndex[moduleID]; ok {
		if !isExported(mm.pkg, moduleID) {
			return nil, 0, "", "", &Error{
				Code: diag.ModuleNotExported,
				Err:  errors.Errorf("module %q exists in %s but is not exported", moduleID, mm.pkg.Package.ID),
			}
		}
		data, err := readFile(w.FS, mm.path)
		if err != nil {
			return nil, 0, "", "", err
		}
		prog, err := ast.Parse(data)
		if err != nil {
			return nil, 0, "", "", err
		}
		return prog, SourcePathDep, mm.path, sha256Hex(data), nil
	}
	if w.registryCache != nil {
		if v, err := w.registryCache.Get(moduleID); err == nil {
			data := v.([]byte)
			prog, err := ast.Parse(data)
			if err != nil {
				return nil, 0, "", "", err
			}
			return prog, SourceRegistry, "", sha256Hex(data), nil
		}
	}
	if prog, edition, ok := lookupStdlib(moduleID); ok {
		if err := w.checkStdlibPin(edition); err != nil {
			return nil, 0, "", "", err
		}
		canon := ast.Canonicalize(prog)
		return prog, SourceStdlib, edition, sha256Hex(canon), nil
	}
	return nil, 0, "", "", &Error{Code: diag.ModuleNotFound, Err: errors.Errorf("module %q could not be resolved", moduleID)}
}

// checkStdlibPin enforces that the workspace's toolchain.stdlib_lock, when
// set, equals the edition of the stdlib module being loaded; a mismatch
// fails STDLIB_LOCK_MISMATCH. toolchain.stdlib_lock_sha256 is not checked.
func (w *Workspace) checkStdlibPin(edition string) error {
	want := w.Manifest.Workspace.Toolchain.StdlibLock
	if want == "" || want == edition {
		return nil
	}
	return &Error{
		Code: diag.StdlibLockMismatch,
		Err:  errors.Errorf("workspace pins stdlib %q, module requires %q", want, edition),
	}
}

func readFile(fsys billy.Filesystem, p string) ([]byte, error) {
	f, err := fsys.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func sha256Hex(data []byte) string {
	h := hashext.NewTypedHash(crypto.SHA256)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256HexOfProgram(p *ast.Program) string {
	return sha256Hex(ast.Canonicalize(p))
}
