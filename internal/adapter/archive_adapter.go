package adapter

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ulikunitz/xz"

	m "github.com/mouse-blink/libpack/internal/model"
)

// ErrUnsupportedArchive is returned for archive names without a known format.
var ErrUnsupportedArchive = errors.New("unsupported archive format")

// ErrUnsafeArchivePath is returned when an archive entry would land outside
// the extraction directory.
var ErrUnsafeArchivePath = errors.New("archive entry escapes destination")

// ErrUnsupportedEntry is returned for archive entries that cannot be
// reproduced on disk, such as device files.
var ErrUnsupportedEntry = errors.New("unsupported archive entry")

type archiveFormat int

const (
	formatUnknown archiveFormat = iota
	formatZip
	formatTarXZ
)

func formatOf(name m.Path) archiveFormat {
	lower := strings.ToLower(string(name))

	switch {
	case strings.HasSuffix(lower, ".whl"), strings.HasSuffix(lower, ".zip"):
		return formatZip
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return formatTarXZ
	}

	return formatUnknown
}

// ArchiveAdapter unpacks and repacks package archives.
type ArchiveAdapter interface {
	// Supports reports whether the archive name has a known format.
	Supports(archive m.Path) bool
	// Unpack extracts archive into dest, which must exist.
	Unpack(archive, dest m.Path) error
	// Pack writes the tree under src to archive, replacing it atomically.
	Pack(src, archive m.Path) error
}

// LocalArchiveAdapter handles wheels and zip files through archive/zip and
// xz-compressed tarballs through archive/tar.
type LocalArchiveAdapter struct{}

// NewLocalArchiveAdapter constructs a LocalArchiveAdapter.
func NewLocalArchiveAdapter() *LocalArchiveAdapter {
	return &LocalArchiveAdapter{}
}

// Supports reports whether archive is a zip, wheel or tar.xz.
func (a *LocalArchiveAdapter) Supports(archive m.Path) bool {
	return formatOf(archive) != formatUnknown
}

// Unpack extracts archive into dest.
func (a *LocalArchiveAdapter) Unpack(archive, dest m.Path) error {
	switch formatOf(archive) {
	case formatZip:
		return unpackZip(archive, dest)
	case formatTarXZ:
		return unpackTarXZ(archive, dest)
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedArchive, archive)
}

// Pack archives src into archive through a sibling temp file.
func (a *LocalArchiveAdapter) Pack(src, archive m.Path) error {
	format := formatOf(archive)
	if format == formatUnknown {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, archive)
	}

	entries, err := archiveEntries(src)
	if err != nil {
		return err
	}

	dir, base := filepath.Split(string(archive))
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}

	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if format == formatZip {
		err = packZip(tmp, entries)
	} else {
		err = packTarXZ(tmp, entries)
	}

	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		cleanup()
		return fmt.Errorf("packing %s: %w", archive, err)
	}

	if info, statErr := os.Stat(string(archive)); statErr == nil {
		_ = os.Chmod(tmp.Name(), info.Mode().Perm())
	}

	if err := os.Rename(tmp.Name(), string(archive)); err != nil {
		cleanup()
		return err
	}

	return nil
}

// safeJoin resolves an archive entry name below dest.
func safeJoin(dest m.Path, name string) (string, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if slashed == "" || strings.HasPrefix(slashed, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchivePath, name)
	}

	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafeArchivePath, name)
		}
	}

	return filepath.Join(string(dest), filepath.FromSlash(path.Clean(slashed))), nil
}

func unpackZip(archive, dest m.Path) error {
	r, err := zip.OpenReader(string(archive))
	if err != nil {
		return fmt.Errorf("opening %s: %w", archive, err)
	}

	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}

			continue
		}

		if f.Mode()&os.ModeSymlink != 0 {
			if err := extractZipSymlink(f, dest, target); err != nil {
				return err
			}

			continue
		}

		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}

	return nil
}

func extractZipSymlink(f *zip.File, dest m.Path, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}

	link, err := io.ReadAll(rc)
	_ = rc.Close()

	if err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}

	return makeSymlink(dest, f.Name, string(link), target)
}

// makeSymlink creates a relative link that stays inside dest.
func makeSymlink(dest m.Path, name, link, target string) error {
	if filepath.IsAbs(link) || strings.HasPrefix(link, "/") {
		return fmt.Errorf("%w: %q -> %q", ErrUnsafeArchivePath, name, link)
	}

	if _, err := safeJoin(dest, path.Join(path.Dir(name), link)); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	if err := os.Symlink(link, target); err != nil && !os.IsExist(err) {
		return err
	}

	return nil
}

func extractZipFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}

	defer func() { _ = rc.Close() }()

	return writeEntry(target, rc, entryMode(f.Mode()))
}

func unpackTarXZ(archive, dest m.Path) error {
	f, err := os.Open(string(archive))
	if err != nil {
		return fmt.Errorf("opening %s: %w", archive, err)
	}

	defer func() { _ = f.Close() }()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("creating xz reader: %w", err)
	}

	tr := tar.NewReader(xzr)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}

			if err := writeEntry(target, tr, entryMode(hdr.FileInfo().Mode())); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := makeSymlink(dest, hdr.Name, hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			if err := copyHardLink(dest, hdr.Linkname, target); err != nil {
				return fmt.Errorf("linking %s: %w", hdr.Name, err)
			}
		case tar.TypeXGlobalHeader:
			continue
		default:
			return fmt.Errorf("%w: %q has type %q", ErrUnsupportedEntry, hdr.Name, hdr.Typeflag)
		}
	}
}

// copyHardLink materializes a hard link entry as a copy of its target,
// which earlier entries must already have extracted below dest.
func copyHardLink(dest m.Path, linkname, target string) error {
	source, err := safeJoin(dest, linkname)
	if err != nil {
		return err
	}

	// #nosec G304 - source was checked by safeJoin
	in, err := os.Open(source)
	if err != nil {
		return err
	}

	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: hard link to non-regular file %q", ErrUnsupportedEntry, linkname)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	return writeEntry(target, in, entryMode(info.Mode()))
}

func entryMode(mode fs.FileMode) fs.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0o644
	}

	return perm | 0o200
}

func writeEntry(target string, r io.Reader, mode fs.FileMode) error {
	// #nosec G304 - target was checked by safeJoin
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}

	return out.Close()
}

type archiveEntry struct {
	rel  string
	abs  string
	info fs.FileInfo
}

// archiveEntries lists the tree under src in lexical order with wheel
// RECORD files moved last.
func archiveEntries(src m.Path) ([]archiveEntry, error) {
	var entries []archiveEntry

	err := filepath.Walk(string(src), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if p == string(src) {
			return nil
		}

		rel, err := filepath.Rel(string(src), p)
		if err != nil {
			return err
		}

		entries = append(entries, archiveEntry{rel: filepath.ToSlash(rel), abs: p, info: info})

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := isRecordFile(entries[i].rel), isRecordFile(entries[j].rel)
		if ri != rj {
			return rj
		}

		return entries[i].rel < entries[j].rel
	})

	return entries, nil
}

func packZip(w io.Writer, entries []archiveEntry) error {
	zw := zip.NewWriter(w)

	for _, e := range entries {
		if e.info.IsDir() {
			continue
		}

		hdr, err := zip.FileInfoHeader(e.info)
		if err != nil {
			return err
		}

		hdr.Name = e.rel
		hdr.Method = zip.Deflate

		if e.info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(e.abs)
			if err != nil {
				return err
			}

			fw, err := zw.CreateHeader(hdr)
			if err != nil {
				return err
			}

			if _, err := io.WriteString(fw, target); err != nil {
				return err
			}

			continue
		}

		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		if err := copyFileTo(fw, e.abs); err != nil {
			return err
		}
	}

	return zw.Close()
}

func packTarXZ(w io.Writer, entries []archiveEntry) error {
	xzw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating xz writer: %w", err)
	}

	tw := tar.NewWriter(xzw)

	for _, e := range entries {
		link := ""
		if e.info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(e.abs); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(e.info, link)
		if err != nil {
			return err
		}

		hdr.Name = e.rel
		if e.info.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if e.info.Mode().IsRegular() {
			if err := copyFileTo(tw, e.abs); err != nil {
				return err
			}
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}

	return xzw.Close()
}

func copyFileTo(w io.Writer, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	_, err = io.Copy(w, f)

	return err
}
