// Package resolve implements the L1 module loader and resolver: it turns a
// workspace root plus a set of package manifests into a fully resolved
// module graph, enforcing the deterministic search order and cycle
// detection.
package resolve

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/diag"
)

// Error carries a diag.Code alongside the underlying cause, the same
// convention internal/ast.ParseError uses, so manifest failures route into
// a diag.Document without re-classification.
type Error struct {
	Code diag.Code
	Path string
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// WorkspaceManifest is the `x07.workspace@0.1.0` schema.
type WorkspaceManifest struct {
	Workspace struct {
		Name          string                   `json:"name"`
		Members       []string                 `json:"members"`
		DefaultMember string                   `json:"default_member,omitempty"`
		Registries    map[string]RegistryEntry `json:"registries"`
		Toolchain     Toolchain                `json:"toolchain"`
	} `json:"workspace"`
	Paths struct {
		CacheDir    string `json:"cache_dir"`
		RegistryDir string `json:"registry_dir"`
		TargetDir   string `json:"target_dir"`
	} `json:"paths"`
	Resolution struct {
		PreferHighest bool `json:"prefer_highest"`
		AllowYanked   bool `json:"allow_yanked"`
	} `json:"resolution"`
}

// RegistryEntry describes one named registry in the workspace manifest.
type RegistryEntry struct {
	Index        string `json:"index"`
	API          string `json:"api,omitempty"`
	AuthRequired bool   `json:"auth_required,omitempty"`
}

// Toolchain pins the compiler and stdlib versions a workspace was authored
// against.
type Toolchain struct {
	X07CVersion      string `json:"x07c_version"`
	StdlibLock       string `json:"stdlib_lock"`
	StdlibLockSHA256 string `json:"stdlib_lock_sha256"`
}

// PackageManifest is the `x07.package@0.1.0` schema.
type PackageManifest struct {
	Package struct {
		ID          string   `json:"id"`
		Version     string   `json:"version"`
		License     string   `json:"license,omitempty"`
		Description string   `json:"description,omitempty"`
		Authors     []string `json:"authors,omitempty"`
	} `json:"package"`
	Modules struct {
		Root    string   `json:"root"`
		Exports []string `json:"exports"`
	} `json:"modules"`
	Deps         map[string]Dependency `json:"deps,omitempty"`
	DevDeps      map[string]Dependency `json:"dev_deps,omitempty"`
	Capabilities struct {
		WorldsAllowed []string `json:"worlds_allowed,omitempty"`
		Requires      []string `json:"requires,omitempty"`
		Forbids       []string `json:"forbids,omitempty"`
	} `json:"capabilities"`
}

// Dependency is one entry of a package manifest's deps/dev_deps map.
type Dependency struct {
	Req      string `json:"req,omitempty"`
	Registry string `json:"registry,omitempty"`
	Path     string `json:"path,omitempty"`
}

var pkgIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}:[a-z][a-z0-9_.-]{0,127}$`)

// ParseWorkspaceManifest decodes and minimally validates a workspace
// manifest document.
func ParseWorkspaceManifest(data []byte) (*WorkspaceManifest, error) {
	var w WorkspaceManifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, errors.Wrap(err, "decoding workspace manifest")
	}
	if w.Workspace.Name == "" {
		return nil, schemaErr("/workspace/name", "workspace name must not be empty")
	}
	for _, m := range w.Workspace.Members {
		if err := validateMemberPath(m); err != nil {
			return nil, err
		}
	}
	return &w, nil
}

// ParsePackageManifest decodes and minimally validates a package manifest
// document.
func ParsePackageManifest(data []byte) (*PackageManifest, error) {
	var p PackageManifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Wrap(err, "decoding package manifest")
	}
	if !pkgIDPattern.MatchString(p.Package.ID) {
		return nil, schemaErr("/package/id", "package id %q does not match ^[a-z][a-z0-9_-]{0,63}:[a-z][a-z0-9_.-]{0,127}$", p.Package.ID)
	}
	if p.Modules.Root == "" {
		return nil, schemaErr("/modules/root", "modules.root must not be empty")
	}
	return &p, nil
}

func validateMemberPath(p string) error {
	if p == "" {
		return schemaErr("/workspace/members", "member path must not be empty")
	}
	for i := 0; i+1 < len(p); i++ {
		if p[i] == '.' && p[i+1] == '.' {
			return schemaErr("/workspace/members", "member path %q must not contain '..'", p)
		}
	}
	if p[0] == '\\' || containsBackslash(p) {
		return schemaErr("/workspace/members", "member path %q must use POSIX separators", p)
	}
	return nil
}

func containsBackslash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			return true
		}
	}
	return false
}

func schemaErr(path, format string, args ...any) error {
	return &Error{Code: diag.SchemaViolation, Path: path, Err: errors.Errorf(format, args...)}
}
