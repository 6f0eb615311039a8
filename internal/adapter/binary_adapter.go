package adapter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mouse-blink/libpack/internal/machofile"
	m "github.com/mouse-blink/libpack/internal/model"
)

const defaultInspectCacheSize = 4096

// BinaryAdapter is the Binary Inspector and the reference editor. It is the
// only part of the pipeline that touches binary format bytes.
type BinaryAdapter interface {
	// Inspect reports the self-identifier, dependencies and search paths of
	// the binary at path. ok is false for files that are not a recognized
	// binary format; that is not an error.
	Inspect(path m.Path) (bin m.Binary, ok bool, err error)

	// Rewrite applies rw in place and reports whether the file changed.
	Rewrite(rw m.Rewrite) (bool, error)

	// Forget drops any memoised inspection of path.
	Forget(path m.Path)
}

type inspection struct {
	size    int64
	modTime time.Time
	bin     m.Binary
	ok      bool
}

// LocalBinaryAdapter inspects and edits Mach-O files on disk, memoising
// inspections by path, size and modification time.
type LocalBinaryAdapter struct {
	cache *lru.Cache[m.Path, inspection]
}

// NewLocalBinaryAdapter constructs a LocalBinaryAdapter remembering up to
// cacheSize inspections. A non-positive size selects the default.
func NewLocalBinaryAdapter(cacheSize int) *LocalBinaryAdapter {
	if cacheSize <= 0 {
		cacheSize = defaultInspectCacheSize
	}

	cache, err := lru.New[m.Path, inspection](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("lru cache: %v", err))
	}

	return &LocalBinaryAdapter{cache: cache}
}

// Inspect reads the load commands of the binary at path.
func (a *LocalBinaryAdapter) Inspect(path m.Path) (m.Binary, bool, error) {
	info, err := os.Stat(string(path))
	if err != nil {
		return m.Binary{}, false, err
	}

	if !info.Mode().IsRegular() {
		return m.Binary{}, false, nil
	}

	if hit, ok := a.cache.Get(path); ok && hit.size == info.Size() && hit.modTime.Equal(info.ModTime()) {
		return hit.bin, hit.ok, nil
	}

	bin, ok, err := inspect(path)
	if err != nil {
		return m.Binary{}, false, err
	}

	a.cache.Add(path, inspection{size: info.Size(), modTime: info.ModTime(), bin: bin, ok: ok})

	return bin, ok, nil
}

func inspect(path m.Path) (m.Binary, bool, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return m.Binary{}, false, err
	}

	defer func() { _ = f.Close() }()

	header := make([]byte, 8)
	if _, err := io.ReadFull(f, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return m.Binary{}, false, nil
		}

		return m.Binary{}, false, err
	}

	if !machofile.Sniff(header) {
		return m.Binary{}, false, nil
	}

	rest, err := io.ReadAll(f)
	if err != nil {
		return m.Binary{}, false, err
	}

	mf, err := machofile.Parse(append(header, rest...))
	if errors.Is(err, machofile.ErrNotMachO) {
		return m.Binary{}, false, nil
	}

	if err != nil {
		return m.Binary{}, false, fmt.Errorf("parse %s: %w", path, err)
	}

	deps, partial := mf.Dependencies()

	return m.Binary{
		Path:         path,
		ID:           mf.ID(),
		Dependencies: deps,
		Partial:      partial,
		SearchPaths:  mf.Rpaths(),
		Arches:       mf.Arches(),
		Signed:       mf.Signed(),
	}, true, nil
}

// Rewrite edits the load commands of the binary named by rw.Path.
func (a *LocalBinaryAdapter) Rewrite(rw m.Rewrite) (bool, error) {
	if rw.Empty() {
		return false, nil
	}

	mf, data, err := machofile.ReadFile(string(rw.Path))
	if err != nil {
		return false, err
	}

	changed, err := mf.Apply(data, machofile.Edit{
		ID:           rw.ID,
		Changes:      rw.Changes,
		DeleteRpaths: rw.DeleteRpaths,
	})
	if err != nil {
		return false, err
	}

	if !changed {
		return false, nil
	}

	if err := writeFileAtomic(rw.Path, data); err != nil {
		return false, err
	}

	a.Forget(rw.Path)

	return true, nil
}

// Forget drops the memoised inspection of path.
func (a *LocalBinaryAdapter) Forget(path m.Path) {
	a.cache.Remove(path)
}

// writeFileAtomic replaces path with data through a sibling temp file,
// keeping the permission bits of the original.
func writeFileAtomic(path m.Path, data []byte) error {
	info, err := os.Stat(string(path))
	if err != nil {
		return err
	}

	dir, base := filepath.Split(string(path))

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}

	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()

		return err
	}

	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		_ = tmp.Close()
		cleanup()

		return err
	}

	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tmp.Name(), string(path)); err != nil {
		cleanup()
		return err
	}

	return nil
}
