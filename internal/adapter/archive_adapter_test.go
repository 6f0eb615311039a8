package adapter

import (
	"archive/tar"
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"

	m "github.com/mouse-blink/libpack/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalArchiveAdapter_Supports(t *testing.T) {
	adapter := NewLocalArchiveAdapter()

	for _, name := range []string{"pkg-1.0-cp312-macosx_11_0_arm64.whl", "bundle.ZIP", "dist.tar.xz", "dist.txz"} {
		assert.True(t, adapter.Supports(m.Path(name)), name)
	}

	for _, name := range []string{"dist.tar.gz", "README", "pkg.egg"} {
		assert.False(t, adapter.Supports(m.Path(name)), name)
	}
}

func TestLocalArchiveAdapter_RoundTrip(t *testing.T) {
	for _, name := range []string{"pkg-1.0-py3-none-any.whl", "pkg.tar.xz"} {
		t.Run(name, func(t *testing.T) {
			adapter := NewLocalArchiveAdapter()

			src := t.TempDir()
			writeTestFile(t, filepath.Join(src, "pkg", "__init__.py"), "")
			writeTestFile(t, filepath.Join(src, "pkg", "ext.so"), "binary")
			require.NoError(t, os.Chmod(filepath.Join(src, "pkg", "ext.so"), 0o755))
			writeTestFile(t, filepath.Join(src, "pkg-1.0.dist-info", "RECORD"), "")
			writeTestFile(t, filepath.Join(src, "pkg-1.0.dist-info", "WHEEL"), "Wheel-Version: 1.0\n")

			archive := filepath.Join(t.TempDir(), name)
			require.NoError(t, adapter.Pack(m.Path(src), m.Path(archive)))

			dest := t.TempDir()
			require.NoError(t, adapter.Unpack(m.Path(archive), m.Path(dest)))

			data, err := os.ReadFile(filepath.Join(dest, "pkg", "ext.so"))
			require.NoError(t, err)
			assert.Equal(t, "binary", string(data))

			info, err := os.Stat(filepath.Join(dest, "pkg", "ext.so"))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

			assert.FileExists(t, filepath.Join(dest, "pkg", "__init__.py"))
			assert.FileExists(t, filepath.Join(dest, "pkg-1.0.dist-info", "WHEEL"))

			leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(archive), ".*.tmp-*"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestLocalArchiveAdapter_PackPutsRecordLast(t *testing.T) {
	adapter := NewLocalArchiveAdapter()

	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "a-1.0.dist-info", "RECORD"), "")
	writeTestFile(t, filepath.Join(src, "a-1.0.dist-info", "WHEEL"), "")
	writeTestFile(t, filepath.Join(src, "z", "mod.py"), "")

	archive := filepath.Join(t.TempDir(), "a-1.0-py3-none-any.whl")
	require.NoError(t, adapter.Pack(m.Path(src), m.Path(archive)))

	r, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}

	assert.Equal(t, []string{"a-1.0.dist-info/WHEEL", "z/mod.py", "a-1.0.dist-info/RECORD"}, names)
}

func TestLocalArchiveAdapter_UnpackRejectsEscapes(t *testing.T) {
	t.Run("zip entry with parent reference", func(t *testing.T) {
		archive := filepath.Join(t.TempDir(), "evil.whl")

		f, err := os.Create(archive)
		require.NoError(t, err)

		zw := zip.NewWriter(f)
		w, err := zw.Create("../outside.txt")
		require.NoError(t, err)
		_, err = w.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())

		dest := filepath.Join(t.TempDir(), "dest")
		mustMkdir(t, dest)

		err = NewLocalArchiveAdapter().Unpack(m.Path(archive), m.Path(dest))
		assert.ErrorIs(t, err, ErrUnsafeArchivePath)
		assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "outside.txt"))
	})

	t.Run("tar symlink pointing outside", func(t *testing.T) {
		archive := filepath.Join(t.TempDir(), "evil.tar.xz")

		f, err := os.Create(archive)
		require.NoError(t, err)

		xzw, err := xz.NewWriter(f)
		require.NoError(t, err)

		tw := tar.NewWriter(xzw)
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "lib/link",
			Typeflag: tar.TypeSymlink,
			Linkname: "../../etc/passwd",
		}))
		require.NoError(t, tw.Close())
		require.NoError(t, xzw.Close())
		require.NoError(t, f.Close())

		err = NewLocalArchiveAdapter().Unpack(m.Path(archive), m.Path(t.TempDir()))
		assert.ErrorIs(t, err, ErrUnsafeArchivePath)
	})
}

func TestLocalArchiveAdapter_Unsupported(t *testing.T) {
	adapter := NewLocalArchiveAdapter()

	err := adapter.Unpack("pkg.tar.gz", m.Path(t.TempDir()))
	assert.ErrorIs(t, err, ErrUnsupportedArchive)

	err = adapter.Pack(m.Path(t.TempDir()), m.Path(filepath.Join(t.TempDir(), "pkg.rar")))
	assert.ErrorIs(t, err, ErrUnsupportedArchive)
}

type tarEntry struct {
	hdr  tar.Header
	body string
}

func writeTarXZ(t *testing.T, archive string, entries ...tarEntry) {
	t.Helper()

	f, err := os.Create(archive)
	require.NoError(t, err)

	xzw, err := xz.NewWriter(f)
	require.NoError(t, err)

	tw := tar.NewWriter(xzw)
	for _, e := range entries {
		hdr := e.hdr
		hdr.Size = int64(len(e.body))
		require.NoError(t, tw.WriteHeader(&hdr))

		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, xzw.Close())
	require.NoError(t, f.Close())
}

func TestLocalArchiveAdapter_TarHardLinks(t *testing.T) {
	t.Run("hard link survives unpack and repack", func(t *testing.T) {
		adapter := NewLocalArchiveAdapter()
		archive := filepath.Join(t.TempDir(), "pkg.tar.xz")

		writeTarXZ(t, archive,
			tarEntry{hdr: tar.Header{Name: "a.txt", Typeflag: tar.TypeReg, Mode: 0o644}, body: "payload"},
			tarEntry{hdr: tar.Header{Name: "sub/b.txt", Typeflag: tar.TypeLink, Linkname: "a.txt"}},
		)

		dest := t.TempDir()
		require.NoError(t, adapter.Unpack(m.Path(archive), m.Path(dest)))

		data, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))

		repacked := filepath.Join(t.TempDir(), "pkg.tar.xz")
		require.NoError(t, adapter.Pack(m.Path(dest), m.Path(repacked)))

		again := t.TempDir()
		require.NoError(t, adapter.Unpack(m.Path(repacked), m.Path(again)))

		for _, name := range []string{"a.txt", filepath.Join("sub", "b.txt")} {
			data, err := os.ReadFile(filepath.Join(again, name))
			require.NoError(t, err)
			assert.Equal(t, "payload", string(data), name)
		}
	})

	t.Run("hard link pointing outside is rejected", func(t *testing.T) {
		archive := filepath.Join(t.TempDir(), "evil.tar.xz")

		writeTarXZ(t, archive,
			tarEntry{hdr: tar.Header{Name: "b.txt", Typeflag: tar.TypeLink, Linkname: "../secret"}},
		)

		err := NewLocalArchiveAdapter().Unpack(m.Path(archive), m.Path(t.TempDir()))
		assert.ErrorIs(t, err, ErrUnsafeArchivePath)
	})
}

func TestLocalArchiveAdapter_UnpackRejectsUnsupportedEntries(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "dev.tar.xz")

	writeTarXZ(t, archive,
		tarEntry{hdr: tar.Header{Name: "a.txt", Typeflag: tar.TypeReg, Mode: 0o644}, body: "x"},
		tarEntry{hdr: tar.Header{Name: "dev/null", Typeflag: tar.TypeChar, Mode: 0o666}},
	)

	err := NewLocalArchiveAdapter().Unpack(m.Path(archive), m.Path(t.TempDir()))
	assert.ErrorIs(t, err, ErrUnsupportedEntry)
}
