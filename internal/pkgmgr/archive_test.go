package pkgmgr

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/klauspost/compress/zstd"

	"j5.dev/x07/pkg/archive"
	"j5.dev/x07/pkg/archive/archivetest"
)

func mustWriteFile(t *testing.T, fsys billy.Filesystem, path, contents string) {
	t.Helper()
	f, err := fsys.Create(path)
	if err != nil {
		t.Fatalf("Create(%q): %v", path, err)
	}
	if _, err := f.Write([]byte(contents)); err != nil {
		t.Fatalf("Write(%q): %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close(%q): %v", path, err)
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	fs := memfs.New()
	mustWriteFile(t, fs, "/pkg/x07.package.json", `{"pkg_id":"x07:example","version":"0.1.0"}`)
	mustWriteFile(t, fs, "/pkg/src/main.x07ast.json", `{"kind":"module"}`)

	archive, err := Pack(fs, "/pkg")
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	out := memfs.New()
	if err := Unpack(archive, out, "/extracted"); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	f, err := out.Open("/extracted/x07.package.json")
	if err != nil {
		t.Fatalf("Open extracted manifest: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != `{"pkg_id":"x07:example","version":"0.1.0"}` {
		t.Errorf("extracted manifest = %q", data)
	}

	f2, err := out.Open("/extracted/src/main.x07ast.json")
	if err != nil {
		t.Fatalf("Open extracted src file: %v", err)
	}
	defer f2.Close()
	data2, err := io.ReadAll(f2)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data2) != `{"kind":"module"}` {
		t.Errorf("extracted src file = %q", data2)
	}
}

func TestPackIsDeterministic(t *testing.T) {
	build := func() []byte {
		fs := memfs.New()
		mustWriteFile(t, fs, "/pkg/b.txt", "b")
		mustWriteFile(t, fs, "/pkg/a.txt", "a")
		archive, err := Pack(fs, "/pkg")
		if err != nil {
			t.Fatalf("Pack: %v", err)
		}
		return archive
	}
	first := build()
	second := build()
	if !bytes.Equal(first, second) {
		t.Error("Pack of the same tree twice produced different bytes")
	}
}

func TestRelPathRejectsPathOutsideRoot(t *testing.T) {
	if _, err := relPath("/pkg", "/other/file.txt"); err == nil {
		t.Fatal("expected an error for a path outside root")
	}
}

// TestUnpackRejectsPathTraversal builds a malicious archive by hand — a
// tar entry naming "../escaped.txt" — to confirm Unpack refuses to
// extract outside dstRoot rather than trusting a tar header's path.
func TestUnpackRejectsPathTraversal(t *testing.T) {
	tarBuf, err := archivetest.TarFile([]archive.TarEntry{
		{Header: &tar.Header{Name: "../escaped.txt", Mode: 0o644}, Body: []byte("gotcha")},
	})
	if err != nil {
		t.Fatalf("TarFile: %v", err)
	}

	var archiveBuf bytes.Buffer
	zw, err := zstd.NewWriter(&archiveBuf)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	if _, err := zw.Write(tarBuf.Bytes()); err != nil {
		t.Fatalf("zstd Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd Close: %v", err)
	}

	out := memfs.New()
	if err := Unpack(archiveBuf.Bytes(), out, "/extracted"); err == nil {
		t.Fatal("expected Unpack to reject a traversal entry, got nil error")
	}
	if _, err := out.Stat("/escaped.txt"); err == nil {
		t.Fatal("traversal entry was written outside dstRoot")
	}
}
