// Package pkgmgr is the L6 layer: it turns a workspace's path- and
// registry-dependency requirements into a single resolved version per
// package id, fetches and verifies the registry artifacts that entails,
// and writes the result back as a lockfile via internal/resolve.
package pkgmgr

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/semver"
)

// Constraint is one parsed `deps`/`dev_deps` requirement string
// (`x07.package@0.1.0`'s `req` field). x07 manifests write requirements
// the way cargo does: "^1.2.3" (compatible-with, the default), "~1.2.3"
// (patch-level only), "=1.2.3" (exact), or a bare "1.2.3" (same as "^").
type Constraint struct {
	op  byte // '^', '~', '='
	ver semver.Semver
}

// ParseConstraint parses one req string.
func ParseConstraint(req string) (Constraint, error) {
	req = strings.TrimSpace(req)
	if req == "" {
		return Constraint{}, errors.New("pkgmgr: empty version requirement")
	}
	op := byte('^')
	switch req[0] {
	case '^', '~', '=':
		op = req[0]
		req = req[1:]
	}
	v, err := semver.New(req)
	if err != nil {
		return Constraint{}, errors.Wrapf(err, "pkgmgr: parsing version requirement %q", req)
	}
	return Constraint{op: op, ver: v}, nil
}

// Allows reports whether candidate satisfies the constraint.
func (c Constraint) Allows(candidate string) bool {
	cv, err := semver.New(candidate)
	if err != nil {
		return false
	}
	switch c.op {
	case '=':
		return semver.Cmp(candidate, renderSemver(c.ver)) == 0
	case '~':
		return cv.Major == c.ver.Major && cv.Minor == c.ver.Minor && cv.Patch >= c.ver.Patch
	default: // '^'
		if semver.Cmp(candidate, renderSemver(c.ver)) < 0 {
			return false
		}
		if c.ver.Major > 0 {
			return cv.Major == c.ver.Major
		}
		if c.ver.Minor > 0 {
			return cv.Major == 0 && cv.Minor == c.ver.Minor
		}
		return cv.Major == 0 && cv.Minor == 0 && cv.Patch == c.ver.Patch
	}
}

func renderSemver(v semver.Semver) string {
	s := strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}
