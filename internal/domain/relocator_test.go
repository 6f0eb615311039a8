package domain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/libpack/internal/adapter"
	"github.com/mouse-blink/libpack/internal/machotest"
	m "github.com/mouse-blink/libpack/internal/model"
)

func TestDisambiguate(t *testing.T) {
	a := disambiguate("libz.1.dylib", "/opt/a/libz.1.dylib")
	b := disambiguate("libz.1.dylib", "/opt/b/libz.1.dylib")

	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^libz-[0-9a-f]{8}\.1\.dylib$`, a)
	assert.Equal(t, a, disambiguate("libz.1.dylib", "/opt/a/libz.1.dylib"))

	assert.Regexp(t, `^libz-[0-9a-f]{8}$`, disambiguate("libz", "/opt/libz"))
	assert.Regexp(t, `^\.hidden-[0-9a-f]{8}$`, disambiguate(".hidden", "/opt/.hidden"))
}

func newTestRelocator() (Relocator, adapter.PackageFSAdapter) {
	fs := adapter.NewLocalPackageFSAdapter()

	return NewRelocator(fs, adapter.NewLocalBinaryAdapter(0), nil), fs
}

func plannedRun(t *testing.T, fx *fixture, edges ...m.DependencyEdge) *Run {
	t.Helper()

	run := NewRun(m.Path(fx.root), testOptions(), nil)
	run.Edges = edges

	return run
}

func TestRelocator_Plan(t *testing.T) {
	t.Run("walks the closure without touching the package", func(t *testing.T) {
		fx := newFixture(t)
		libW := fx.lib("libW.dylib")
		libZ := fx.lib("libZ.dylib", libW, libSystem)
		relocator, fs := newTestRelocator()

		run := plannedRun(t, fx, m.DependencyEdge{Declared: libZ, Resolved: m.Path(libZ), Class: m.ClassExternal})

		require.NoError(t, relocator.Plan(context.Background(), run, NewClassifier(fs, run.Root, run.Options)))

		relocations := run.Plan.Relocations()
		require.Len(t, relocations, 2)
		assert.Equal(t, m.Path(libZ), relocations[0].Source)
		assert.Equal(t, m.Path(libW), relocations[1].Source)
		assert.Len(t, run.LibraryEdges[m.Path(libZ)], 2)
		assert.Contains(t, run.Libraries, m.Path(libW))
		assert.NoDirExists(t, string(run.BundleDir))
	})

	t.Run("existing different file in the bundle forces a new name", func(t *testing.T) {
		fx := newFixture(t)
		libX := fx.lib("libX.dylib")
		require.NoError(t, os.MkdirAll(filepath.Join(fx.root, DefaultBundleDir), 0o755))
		machotest.Write(t, fx.bundled("libX.dylib"), machotest.Spec{ID: "@loader_path/libX.dylib"})
		relocator, fs := newTestRelocator()

		run := plannedRun(t, fx, m.DependencyEdge{Declared: libX, Resolved: m.Path(libX), Class: m.ClassExternal})
		require.NoError(t, relocator.Plan(context.Background(), run, NewClassifier(fs, run.Root, run.Options)))

		r, ok := run.Plan.Lookup(m.Path(libX))
		require.True(t, ok)
		assert.True(t, r.Renamed)
		assert.NotEqual(t, m.Path(fx.bundled("libX.dylib")), r.Destination)
	})

	t.Run("identical file in the bundle is reused", func(t *testing.T) {
		fx := newFixture(t)
		libX := fx.lib("libX.dylib")
		require.NoError(t, os.MkdirAll(filepath.Join(fx.root, DefaultBundleDir), 0o755))
		require.NoError(t, os.WriteFile(fx.bundled("libX.dylib"), readFile(t, libX), 0o755))
		relocator, fs := newTestRelocator()

		run := plannedRun(t, fx, m.DependencyEdge{Declared: libX, Resolved: m.Path(libX), Class: m.ClassExternal})
		require.NoError(t, relocator.Plan(context.Background(), run, NewClassifier(fs, run.Root, run.Options)))

		r, _ := run.Plan.Lookup(m.Path(libX))
		assert.False(t, r.Renamed)
		assert.Equal(t, m.Path(fx.bundled("libX.dylib")), r.Destination)
	})

	t.Run("non binary dependency is a warning", func(t *testing.T) {
		fx := newFixture(t)
		text := filepath.Join(fx.ext, "libtext.dylib")
		require.NoError(t, os.WriteFile(text, []byte("not a library"), 0o644))
		relocator, fs := newTestRelocator()

		run := plannedRun(t, fx, m.DependencyEdge{Declared: text, Resolved: m.Path(text), Class: m.ClassExternal})
		require.NoError(t, relocator.Plan(context.Background(), run, NewClassifier(fs, run.Root, run.Options)))

		require.Len(t, run.Report.Warnings, 1)
		assert.Equal(t, m.WarnUnreadable, run.Report.Warnings[0].Kind)
	})

	t.Run("cancelled context stops planning", func(t *testing.T) {
		fx := newFixture(t)
		libX := fx.lib("libX.dylib")
		relocator, fs := newTestRelocator()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		run := plannedRun(t, fx, m.DependencyEdge{Declared: libX, Resolved: m.Path(libX), Class: m.ClassExternal})
		err := relocator.Plan(ctx, run, NewClassifier(fs, run.Root, run.Options))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRelocator_Copy(t *testing.T) {
	t.Run("empty plan creates nothing", func(t *testing.T) {
		fx := newFixture(t)
		relocator, _ := newTestRelocator()
		run := plannedRun(t, fx)

		require.NoError(t, relocator.Copy(context.Background(), run))
		assert.NoDirExists(t, string(run.BundleDir))
		assert.Empty(t, run.Report.Bundled)
	})

	t.Run("copies are owner writable", func(t *testing.T) {
		fx := newFixture(t)
		libX := fx.lib("libX.dylib")
		require.NoError(t, os.Chmod(libX, 0o555))
		relocator, fs := newTestRelocator()

		run := plannedRun(t, fx, m.DependencyEdge{Declared: libX, Resolved: m.Path(libX), Class: m.ClassExternal})
		require.NoError(t, relocator.Plan(context.Background(), run, NewClassifier(fs, run.Root, run.Options)))
		require.NoError(t, relocator.Copy(context.Background(), run))

		info, err := os.Stat(fx.bundled("libX.dylib"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
		assert.Equal(t, readFile(t, libX), readFile(t, fx.bundled("libX.dylib")))
		assert.Len(t, run.Report.Bundled, 1)
	})
	t.Run("failed copy leaves no empty bundle behind", func(t *testing.T) {
		fx := newFixture(t)
		libX := fx.lib("libX.dylib")
		relocator, fs := newTestRelocator()

		run := plannedRun(t, fx, m.DependencyEdge{Declared: libX, Resolved: m.Path(libX), Class: m.ClassExternal})
		require.NoError(t, relocator.Plan(context.Background(), run, NewClassifier(fs, run.Root, run.Options)))
		require.NoError(t, os.Remove(libX))

		err := relocator.Copy(context.Background(), run)
		require.Error(t, err)
		assert.NoDirExists(t, string(run.BundleDir))
		assert.Empty(t, run.Report.Bundled)
	})
}
