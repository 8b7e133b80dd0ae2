// Package ccbuild is the L4 native build driver: it invokes the system C
// compiler on the single translation unit internal/emit produces, with a
// fixed, deterministic flag set per build profile.
package ccbuild

import (
	"context"
	"crypto"
	_ "crypto/sha256"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/hashext"
)

// Profile selects the compiler flag set. Release optimizes; Debug builds
// with -O0 -g and the address/undefined sanitizers. Neither profile
// defines X07_DEBUG, so internal/emit's X07_DEBUG-gated borrow table is
// not compiled in by either.
type Profile string

const (
	Release Profile = "release"
	Debug   Profile = "debug"
)

// Options configures one compile. CC defaults to "cc" (the system
// compiler — x07 never vendors or selects a specific
// toolchain), letting callers override it for cross builds or to pin a
// specific compiler in CI.
type Options struct {
	CC        string
	Profile   Profile
	SourcePath string // path to the emitted .c file
	OutputDir string // directory the output binary/object is written into
	OutputName string
	ExtraObjects []string // staged native backend archives to link, per manifest
}

// Result reports what was built and its content hash, for the determinism
// manifest every build must produce.
type Result struct {
	BinaryPath string
	SHA256     string
}

func flagsFor(p Profile) []string {
	switch p {
	case Debug:
		return []string{"-std=c11", "-O0", "-g", "-fsanitize=address,undefined"}
	default:
		return []string{"-std=c11", "-O2"}
	}
}

// Build invokes the system cc with deterministic flags, producing a
// native binary at OutputDir/OutputName and returning its sha256. Output
// determinism here means "this process's flags and inputs are fixed", not
// "cc itself is guaranteed reproducible" — toolchain-level reproducibility
// is left to the operator's choice of cc, the same way a Go build driver
// leaves `go build`'s own determinism to the Go toolchain rather than
// re-implementing it.
func Build(ctx context.Context, opt Options) (Result, error) {
	cc := opt.CC
	if cc == "" {
		cc = "cc"
	}
	if err := os.MkdirAll(opt.OutputDir, 0o755); err != nil {
		return Result{}, errors.Wrap(err, "ccbuild: creating output dir")
	}
	outPath := filepath.Join(opt.OutputDir, opt.OutputName)

	args := append([]string{}, flagsFor(opt.Profile)...)
	args = append(args, "-o", outPath, opt.SourcePath)
	args = append(args, opt.ExtraObjects...)

	cmd := exec.CommandContext(ctx, cc, args...)
	cmd.Env = append(os.Environ(), "SOURCE_DATE_EPOCH=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, errors.Wrapf(err, "ccbuild: %s failed: %s", cmd.String(), string(out))
	}

	sum, err := sha256File(outPath)
	if err != nil {
		return Result{}, err
	}
	return Result{BinaryPath: outPath, SHA256: sum}, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "ccbuild: hashing output")
	}
	defer f.Close()
	h := hashext.NewTypedHash(crypto.SHA256)
	if _, err := io.Copy(&h, f); err != nil {
		return "", errors.Wrap(err, "ccbuild: hashing output")
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
