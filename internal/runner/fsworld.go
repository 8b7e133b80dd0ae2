package runner

import (
	"io"
	"io/fs"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
)

// StageFS materializes a billy.Filesystem fixture (an in-memory memfs.New()
// in tests, or a real on-disk billy filesystem in production) into a fresh
// OS temp directory so a solve-fs-world child process — a real OS process,
// not an in-process call — can see it. Grounded on internal/billyx.CopyFS's
// use of util.Walk for the same "copy an abstract filesystem onto a
// concrete one" problem, here walking the other direction (billy -> OS)
// instead of OS -> billy.
func StageFS(fixture billy.Filesystem) (root string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "x07-solve-fs-")
	if err != nil {
		return "", nil, errors.Wrap(err, "runner: staging solve-fs fixture")
	}
	cleanup = func() { os.RemoveAll(dir) }

	walkErr := util.Walk(fixture, "/", func(p string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == "/" || p == "" || info.IsDir() {
			return nil
		}
		src, openErr := fixture.Open(p)
		if openErr != nil {
			return openErr
		}
		defer src.Close()
		data, readErr := io.ReadAll(src)
		if readErr != nil {
			return readErr
		}
		osPath, joinErr := osJoin(dir, p)
		if joinErr != nil {
			return joinErr
		}
		if mkErr := os.MkdirAll(parentDir(osPath), 0o755); mkErr != nil {
			return mkErr
		}
		return os.WriteFile(osPath, data, info.Mode().Perm()|0o600)
	})
	if walkErr != nil {
		cleanup()
		return "", nil, errors.Wrap(walkErr, "runner: staging solve-fs fixture")
	}
	return dir, cleanup, nil
}
