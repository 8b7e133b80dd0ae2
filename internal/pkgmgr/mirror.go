package pkgmgr

import (
	"archive/tar"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"j5.dev/x07/pkg/archive"
)

// ExportMirror bundles a workspace's ".x07/cache/index/**" and
// ".x07/cache/sha256/**" trees — the registry index cache and the
// content-addressed artifact cache `x07 pkg vendor` writes to
// — into a single deterministic tar, so an air-gapped install can
// restore both without any network access. cacheDir is the workspace's
// `paths.cache_dir` (joined with "index"/"sha256" here exactly as
// IndexCache and `x07 pkg vendor` already do).
func ExportMirror(cacheDir string) ([]byte, error) {
	var rawTar bytes.Buffer
	tw := tar.NewWriter(&rawTar)
	for _, sub := range []string{"index", "sha256"} {
		root := filepath.Join(cacheDir, sub)
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		var paths []string
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			paths = append(paths, p)
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "pkgmgr: walking mirror cache dir %q", root)
		}
		sort.Strings(paths)
		for _, p := range paths {
			rel, err := filepath.Rel(cacheDir, p)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, err
			}
			hdr := &tar.Header{Name: filepath.ToSlash(rel), Size: int64(len(data)), Mode: int64(fs.ModePerm)}
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, err
			}
			if _, err := tw.Write(data); err != nil {
				return nil, err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	stw := tar.NewWriter(&out)
	if err := archive.StabilizeTar(tar.NewReader(&rawTar), stw, archive.StabilizeOpts{Stabilizers: archive.AllTarStabilizers}); err != nil {
		return nil, errors.Wrap(err, "pkgmgr: stabilizing mirror bundle")
	}
	return out.Bytes(), nil
}

// ImportMirror extracts a bundle produced by ExportMirror back under
// cacheDir, restoring the index and sha256 cache trees it holds.
func ImportMirror(bundle []byte, cacheDir string) error {
	tr := tar.NewReader(bytes.NewReader(bundle))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		dst := filepath.Join(cacheDir, filepath.FromSlash(hdr.Name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode))
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
}
