package pkgmgr

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/diag"
	"j5.dev/x07/internal/semver"
)

// Error carries a diag.Code the same way internal/resolve.Error does, so
// package-manager failures route into a diag.Document without
// re-classification.
type Error struct {
	Code diag.Code
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// provenance is one requirement on a package, kept so an unsatisfiable
// selection's diagnostic can enumerate "who asked for what".
type provenance struct {
	req  string
	from string // introducing pkg_id@version, or "<workspace root>"
}

// Selection is the output of Resolve: one version pinned per package id,
// plus the dependency edges walked to reach it (for
// Lockfile.ResolutionGraph).
type Selection struct {
	Selected map[string]string      // pkg_id -> version
	Edges    map[string][]string    // pkg_id -> depended-on pkg_ids, each pinned
	Entries  map[string]*IndexEntry // pkg_id -> the selected version's index entry
}

// IndexFetcher is the subset of Registry Resolve needs, so tests can
// supply an in-memory fixture instead of a real Registry.
type IndexFetcher interface {
	Index(ctx context.Context, pkgID string) ([]IndexEntry, error)
}

// Resolve implements the single-version resolver algorithm: maintain
// constraints{pkg -> [(req, provenance)]}, selected{pkg -> version}, and
// an ordered frontier; on each step pop the lexicographically smallest
// pkg from the frontier, fetch its index entries, and pick the highest
// non-yanked version satisfying every accumulated constraint. If the
// selection changes (first selection, or a tighter constraint forces a
// different version), the newly-selected version's deps are enqueued.
// lockedVersions (may be nil) holds pins from an existing lockfile;
// allowYankedIfLocked lets a pin keep a yanked version instead of failing.
func Resolve(ctx context.Context, reg IndexFetcher, rootDeps map[string]string, lockedVersions map[string]string, allowYankedIfLocked bool) (*Selection, error) {
	constraints := map[string][]provenance{}
	selected := map[string]string{}
	edges := map[string][]string{}
	entries := map[string]*IndexEntry{}
	frontier := map[string]bool{}

	for pkgID, req := range rootDeps {
		constraints[pkgID] = append(constraints[pkgID], provenance{req: req, from: "<workspace root>"})
		frontier[pkgID] = true
	}

	for len(frontier) > 0 {
		pkgID := popSmallest(frontier)

		idxEntries, err := reg.Index(ctx, pkgID)
		if err != nil {
			return nil, &Error{Code: diag.ModuleNotFound, Err: errors.Wrapf(err, "resolving %q", pkgID)}
		}

		locked, isLocked := lockedVersions[pkgID]
		version, entry, err := pickVersion(pkgID, idxEntries, constraints[pkgID], locked, isLocked, allowYankedIfLocked)
		if err != nil {
			return nil, err
		}

		if prior, ok := selected[pkgID]; ok && prior == version {
			continue // no change; nothing new to enqueue
		}
		selected[pkgID] = version
		entries[pkgID] = entry

		depIDs := make([]string, 0, len(entry.Deps))
		for _, d := range entry.Deps {
			if d.Optional {
				continue
			}
			depIDs = append(depIDs, d.Pkg)
			constraints[d.Pkg] = append(constraints[d.Pkg], provenance{req: d.Req, from: pkgID + "@" + version})
			frontier[d.Pkg] = true
		}
		sort.Strings(depIDs)
		edges[pkgID] = depIDs
	}

	return &Selection{Selected: selected, Edges: edges, Entries: entries}, nil
}

func popSmallest(frontier map[string]bool) string {
	smallest := ""
	for pkgID := range frontier {
		if smallest == "" || pkgID < smallest {
			smallest = pkgID
		}
	}
	delete(frontier, smallest)
	return smallest
}

// pickVersion finds the single version of pkgID that satisfies every
// accumulated provenance, preferring the highest non-yanked version,
// unless a lockfile pin names a yanked version and allowYankedIfLocked
// is set.
func pickVersion(pkgID string, entries []IndexEntry, provs []provenance, locked string, isLocked, allowYankedIfLocked bool) (string, *IndexEntry, error) {
	constraints := make([]Constraint, 0, len(provs))
	for _, p := range provs {
		c, err := ParseConstraint(p.req)
		if err != nil {
			return "", nil, &Error{Code: diag.VersionReqInvalid, Err: err}
		}
		constraints = append(constraints, c)
	}

	byVersion := map[string]*IndexEntry{}
	for i := range entries {
		byVersion[entries[i].Vers] = &entries[i]
	}

	if isLocked {
		if e, ok := byVersion[locked]; ok && (!e.Yanked || allowYankedIfLocked) && satisfiesAll(locked, constraints) {
			return locked, e, nil
		}
	}

	var candidates []string
	for _, e := range entries {
		if e.Yanked {
			continue
		}
		if satisfiesAll(e.Vers, constraints) {
			candidates = append(candidates, e.Vers)
		}
	}
	if len(candidates) == 0 {
		return "", nil, &Error{
			Code: diag.ResolveNoSatisfyingVersion,
			Err:  errors.Errorf("%q: %s", pkgID, describeProvenance(provs)),
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return semver.Cmp(candidates[i], candidates[j]) < 0 })
	best := candidates[len(candidates)-1]
	return best, byVersion[best], nil
}

func satisfiesAll(version string, constraints []Constraint) bool {
	for _, c := range constraints {
		if !c.Allows(version) {
			return false
		}
	}
	return true
}

func describeProvenance(provs []provenance) string {
	s := ""
	for i, p := range provs {
		if i > 0 {
			s += ", "
		}
		s += p.from + " requires " + p.req
	}
	return s
}
