// Package adapter contains the infrastructure adapters of the relocation
// pipeline: filesystem, binary format, archive, manifest and signing access.
package adapter

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	m "github.com/mouse-blink/libpack/internal/model"
)

// PackageFSAdapter abstracts the filesystem operations the domain layer
// relies on when scanning and mutating a package tree. It hides direct `os`
// access so the pipeline stages can be tested in isolation.
//
//nolint:interfacebloat // A richer interface keeps the pipeline decoupled from os/fs.
type PackageFSAdapter interface {
	// Walk traverses the provided root path. When recursive is false the
	// implementation should limit itself to the root directory (no sub-dirs).
	Walk(root m.Path, recursive bool, fn FilepathWalkFunc) error

	// FileInfo returns metadata for a path without following symlinks.
	FileInfo(path m.Path) (os.FileInfo, error)

	// IsFile reports whether path names an existing regular file, following
	// symlinks.
	IsFile(path m.Path) bool

	// RealPath returns the absolute path with every symlink resolved.
	RealPath(path m.Path) (m.Path, error)

	// HashFile returns the SHA-256 hex digest of the file at path.
	HashFile(path m.Path) (string, error)

	// SameContent reports whether two files hold identical bytes.
	SameContent(a, b m.Path) (bool, error)

	// CopyFile copies src to dst, keeping the mode bits and making the copy
	// owner-writable.
	CopyFile(src, dst m.Path) error

	// MkdirAll creates a directory and its parents.
	MkdirAll(path m.Path) error

	// IsEmptyDir reports whether path is a directory without entries.
	IsEmptyDir(path m.Path) (bool, error)

	// CreateTempDir creates a scratch directory.
	CreateTempDir(pattern string) (m.Path, error)

	// RemoveAll removes a directory and all its contents.
	RemoveAll(path m.Path) error

	// JoinPath joins path elements into a single path.
	JoinPath(elem ...string) m.Path
}

// FilepathWalkFunc mirrors the callback shape used by filepath.Walk. It is
// defined here to avoid leaking the standard-library type directly into the
// domain layer.
type FilepathWalkFunc func(path string, info os.FileInfo, err error) error

// LocalPackageFSAdapter implements PackageFSAdapter on the local disk.
type LocalPackageFSAdapter struct{}

// NewLocalPackageFSAdapter constructs a LocalPackageFSAdapter instance ready to
// be wired into the workflow.
func NewLocalPackageFSAdapter() *LocalPackageFSAdapter {
	return &LocalPackageFSAdapter{}
}

// Walk iterates over files under root, optionally descending into
// subdirectories. Entries are visited in lexical order.
func (a *LocalPackageFSAdapter) Walk(root m.Path, recursive bool, fn FilepathWalkFunc) error {
	rootStr := string(root)

	return filepath.Walk(rootStr, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fn(path, info, err)
		}

		if info.IsDir() && !recursive && path != rootStr {
			return filepath.SkipDir
		}

		return fn(path, info, nil)
	})
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalPackageFSAdapter) FileInfo(path m.Path) (os.FileInfo, error) {
	return os.Lstat(string(path))
}

// IsFile reports whether path resolves to a regular file.
func (a *LocalPackageFSAdapter) IsFile(path m.Path) bool {
	info, err := os.Stat(string(path))

	return err == nil && info.Mode().IsRegular()
}

// RealPath resolves symlinks and returns an absolute, clean path.
func (a *LocalPackageFSAdapter) RealPath(path m.Path) (m.Path, error) {
	abs, err := filepath.Abs(string(path))
	if err != nil {
		return "", err
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}

	return m.Path(real), nil
}

// HashFile returns the SHA-256 hash of the file at the provided path.
func (a *LocalPackageFSAdapter) HashFile(path m.Path) (string, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// SameContent compares the sizes and then the digests of two files.
func (a *LocalPackageFSAdapter) SameContent(x, y m.Path) (bool, error) {
	xi, err := os.Stat(string(x))
	if err != nil {
		return false, err
	}

	yi, err := os.Stat(string(y))
	if err != nil {
		return false, err
	}

	if xi.Size() != yi.Size() {
		return false, nil
	}

	xh, err := a.HashFile(x)
	if err != nil {
		return false, err
	}

	yh, err := a.HashFile(y)
	if err != nil {
		return false, err
	}

	return xh == yh, nil
}

// CopyFile copies a single file.
func (a *LocalPackageFSAdapter) CopyFile(src, dst m.Path) error {
	// #nosec G304 - src is a resolved dependency path
	sourceFile, err := os.Open(string(src))
	if err != nil {
		return err
	}

	defer func() { _ = sourceFile.Close() }()

	info, err := sourceFile.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(string(dst)), 0o750); err != nil {
		return err
	}

	mode := info.Mode().Perm() | 0o200

	// #nosec G304 - dst is inside the package bundling directory
	destFile, err := os.OpenFile(string(dst), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		_ = destFile.Close()
		return err
	}

	if err := destFile.Close(); err != nil {
		return err
	}

	return os.Chmod(string(dst), mode)
}

// MkdirAll creates path and any missing parents.
func (a *LocalPackageFSAdapter) MkdirAll(path m.Path) error {
	return os.MkdirAll(string(path), 0o755)
}

// IsEmptyDir reports whether path is an existing directory with no entries.
func (a *LocalPackageFSAdapter) IsEmptyDir(path m.Path) (bool, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return false, err
	}

	defer func() { _ = f.Close() }()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}

	return false, err
}

// CreateTempDir creates a temporary directory.
func (a *LocalPackageFSAdapter) CreateTempDir(pattern string) (m.Path, error) {
	tmpDir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", err
	}

	return m.Path(tmpDir), nil
}

// RemoveAll removes a directory and all its contents.
func (a *LocalPackageFSAdapter) RemoveAll(path m.Path) error {
	return os.RemoveAll(string(path))
}

// JoinPath joins path elements into a single path.
func (a *LocalPackageFSAdapter) JoinPath(elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}
