package pkgmgr

import (
	"archive/tar"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"j5.dev/x07/pkg/archive"
)

// Pack walks root within fsys and produces a deterministic tar.zst
// archive: entries sorted by name and every volatile tar field
// (mtime/uid/gid/xattrs/device numbers) pinned to a fixed value, so
// packing the same tree twice always produces byte-identical output and
// therefore an identical sha256.
//
// The tar-level determinism reuses pkg/archive.StabilizeTar's stabilizer
// set unmodified (it already strips everything a reproducible archive
// format needs to strip); only the outer compression codec differs from
// a plain tar.gz archive, since this archive format is tar.zst.
func Pack(fsys billy.Filesystem, root string) ([]byte, error) {
	var rawTar bytes.Buffer
	tw := tar.NewWriter(&rawTar)
	var names []string
	err := util.Walk(fsys, root, func(p string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		names = append(names, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "pkgmgr: walking package tree")
	}
	sort.Strings(names)
	for _, p := range names {
		f, err := fsys.Open(p)
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		rel, err := relPath(root, p)
		if err != nil {
			return nil, err
		}
		hdr := &tar.Header{Name: rel, Size: int64(len(data)), Mode: int64(fs.ModePerm)}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(data); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	var stabilized bytes.Buffer
	stw := tar.NewWriter(&stabilized)
	if err := archive.StabilizeTar(tar.NewReader(&rawTar), stw, archive.StabilizeOpts{Stabilizers: archive.AllTarStabilizers}); err != nil {
		return nil, errors.Wrap(err, "pkgmgr: stabilizing archive")
	}

	var out bytes.Buffer
	zw, err := zstd.NewWriter(&out, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(stabilized.Bytes()); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Unpack extracts a tar.zst archive produced by Pack into dstRoot within
// fsys.
func Unpack(archiveData []byte, fsys billy.Filesystem, dstRoot string) error {
	zr, err := zstd.NewReader(bytes.NewReader(archiveData))
	if err != nil {
		return err
	}
	defer zr.Close()

	cleanDstRoot := path.Clean(dstRoot)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		entryPath := path.Join(dstRoot, hdr.Name)
		if entryPath != cleanDstRoot && !strings.HasPrefix(entryPath, cleanDstRoot+"/") {
			return errors.Errorf("pkgmgr: archive entry %q escapes extraction root", hdr.Name)
		}
		if err := fsys.MkdirAll(path.Dir(entryPath), 0o755); err != nil {
			return err
		}
		out, err := fsys.OpenFile(entryPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode))
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
}

// relPath trims root off a POSIX billy path; both are "/"-rooted, so a
// plain prefix-strip suffices without pulling in path/filepath (which
// assumes OS separators).
func relPath(root, p string) (string, error) {
	cleanRoot := strings.TrimSuffix(path.Clean(root), "/")
	cleanP := path.Clean(p)
	rel := strings.TrimPrefix(cleanP, cleanRoot)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "", errors.Errorf("pkgmgr: %q is not under root %q", p, root)
	}
	return rel, nil
}
