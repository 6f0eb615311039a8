package domain

import (
	"debug/macho"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/libpack/internal/adapter"
	"github.com/mouse-blink/libpack/internal/machotest"
	m "github.com/mouse-blink/libpack/internal/model"
)

// fixture is a package tree plus a directory of external libraries outside
// it, both with symlinks resolved.
type fixture struct {
	t    *testing.T
	root string
	ext  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	return &fixture{t: t, root: realTempDir(t), ext: realTempDir(t)}
}

func realTempDir(t *testing.T) string {
	t.Helper()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	return dir
}

// lib writes an external dylib whose install name is its absolute path.
func (f *fixture) lib(name string, deps ...string) string {
	f.t.Helper()

	path := filepath.Join(f.ext, name)

	return machotest.Write(f.t, path, machotest.Spec{ID: path, Dylibs: deps})
}

// libIn writes an external dylib below dir.
func (f *fixture) libIn(dir, name string, spec machotest.Spec) string {
	f.t.Helper()

	path := filepath.Join(dir, name)
	if spec.ID == "" {
		spec.ID = path
	}

	return machotest.Write(f.t, path, spec)
}

// module writes an extension module at rel below the package root.
func (f *fixture) module(rel string, deps ...string) string {
	f.t.Helper()

	return f.moduleSpec(rel, machotest.Spec{Dylibs: deps})
}

func (f *fixture) moduleSpec(rel string, spec machotest.Spec) string {
	f.t.Helper()

	if spec.Type == 0 {
		spec.Type = macho.TypeBundle
	}

	return machotest.Write(f.t, filepath.Join(f.root, rel), spec)
}

func (f *fixture) bundled(name string) string {
	return filepath.Join(f.root, DefaultBundleDir, name)
}

func newTestWorkflow(signer adapter.Signer) Workflow {
	if signer == nil {
		signer = adapter.NewAdhocSigner()
	}

	return NewWorkflow(
		adapter.NewLocalPackageFSAdapter(),
		adapter.NewLocalBinaryAdapter(0),
		adapter.NewLocalArchiveAdapter(),
		adapter.NewRecordManifestAdapter(),
		signer,
		nil,
	)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Parallel = 4

	return opts
}

func inspect(t *testing.T, path string) m.Binary {
	t.Helper()

	bin, ok, err := adapter.NewLocalBinaryAdapter(0).Inspect(m.Path(path))
	require.NoError(t, err)
	require.True(t, ok, "%s is not a binary", path)

	return bin
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return data
}

// snapshot maps every file below root to its bytes.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()

	out := make(map[string]string)

	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}

			out[strings.TrimPrefix(p, root)] = string(data)
		}

		return nil
	})
	require.NoError(t, err)

	return out
}

// leakedReferences lists absolute dependency references outside root and
// the default system prefixes in every binary below root.
func leakedReferences(t *testing.T, root string) []string {
	t.Helper()

	binaries := adapter.NewLocalBinaryAdapter(0)

	var leaks []string

	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || !info.Mode().IsRegular() {
			return err
		}

		bin, ok, err := binaries.Inspect(m.Path(p))
		if err != nil || !ok {
			return err
		}

		for _, dep := range bin.Dependencies {
			if filepath.IsAbs(dep) && !under(dep, root) && !underAny(dep, DefaultSystemPrefixes) {
				leaks = append(leaks, p+" -> "+dep)
			}
		}

		return nil
	})
	require.NoError(t, err)

	return leaks
}

func mustSymlink(t *testing.T, target, link string) {
	t.Helper()

	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}
