package runner

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// osJoin maps a billy (POSIX, "/"-rooted) fixture path onto a concrete OS
// path under root, rejecting anything that would escape root — the same
// check internal/resolve.validateMemberPath applies to workspace member
// paths, reused here because a solve-fs fixture is untrusted input by the
// same reasoning a workspace manifest's member list is.
func osJoin(root, fixturePath string) (string, error) {
	if strings.Contains(fixturePath, "..") {
		return "", errors.Errorf("runner: fixture path %q escapes its root", fixturePath)
	}
	clean := path.Clean("/" + fixturePath)
	if strings.Contains(clean, "..") {
		return "", errors.Errorf("runner: fixture path %q escapes its root", fixturePath)
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

func parentDir(osPath string) string {
	return filepath.Dir(osPath)
}
