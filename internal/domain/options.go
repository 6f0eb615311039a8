package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	m "github.com/mouse-blink/libpack/internal/model"
)

// DefaultBundleDir is the bundling subdirectory created at a package root.
const DefaultBundleDir = ".dylibs"

// DefaultSystemPrefixes are the platform locations never bundled.
var DefaultSystemPrefixes = []string{"/usr/lib", "/System"}

// Options configures one run.
type Options struct {
	// BundleDir is the bundling subdirectory, relative to each package root.
	BundleDir string
	// SystemPrefixes are path prefixes exempt from bundling.
	SystemPrefixes []string
	// Strict turns unresolvable dependencies and unreadable binaries into
	// fatal errors raised before any mutation.
	Strict bool
	// Parallel bounds the number of files inspected concurrently.
	Parallel int
	// ExecutablePath replaces @executable_path. The dependent binary's own
	// directory is used when empty.
	ExecutablePath string
	// SanitizeRpaths drops absolute search paths that point outside the
	// package from every rewritten binary.
	SanitizeRpaths bool
	// Extensions restricts inspection to files with one of these suffixes.
	// Every regular file is inspected when empty.
	Extensions []string
	// Exclude holds regular expressions matched against declared dependency
	// paths. Matching dependencies are exempt from bundling.
	Exclude []string
	// PackageDirs makes each top-level directory of an archive holding an
	// __init__.py a package root of its own.
	PackageDirs bool
	// OnStage is told about every stage a run enters.
	OnStage func(root m.Path, stage m.Stage)
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BundleDir:      DefaultBundleDir,
		SystemPrefixes: append([]string(nil), DefaultSystemPrefixes...),
		Parallel:       runtime.NumCPU(),
		SanitizeRpaths: true,
	}
}

func (o Options) normalized() Options {
	if o.BundleDir == "" {
		o.BundleDir = DefaultBundleDir
	}

	if o.SystemPrefixes == nil {
		o.SystemPrefixes = append([]string(nil), DefaultSystemPrefixes...)
	}

	if o.Parallel <= 0 {
		o.Parallel = 1
	}

	return o
}

// Validate checks the options that can be malformed.
func (o Options) Validate() error {
	if _, err := compileExcludes(o.Exclude); err != nil {
		return err
	}

	if o.BundleDir != "" && (filepath.IsAbs(o.BundleDir) || strings.HasPrefix(filepath.Clean(o.BundleDir), "..")) {
		return fmt.Errorf("bundle directory %q must be relative to the package root", o.BundleDir)
	}

	return nil
}

func compileExcludes(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}

		out = append(out, re)
	}

	return out, nil
}
