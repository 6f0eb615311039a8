package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/libpack/internal/adapter/mocks"
	m "github.com/mouse-blink/libpack/internal/model"
)

func rewriterRun() *Run {
	run := NewRun("/pkg", DefaultOptions(), nil)

	run.Graph.Add(m.Binary{
		Path:         "/pkg/sub/M.so",
		Dependencies: []string{"/opt/libX.dylib", "@rpath/libY.dylib", "/usr/lib/libSystem.B.dylib", "/pkg/libown.dylib", "@loader_path/../libown.dylib"},
		SearchPaths:  []string{"/opt", "/pkg/lib", "/usr/lib", "@loader_path"},
	})
	run.Graph.Add(m.Binary{Path: "/pkg/E", Dependencies: []string{"/usr/lib/libSystem.B.dylib"}})

	run.Edges = []m.DependencyEdge{
		{Dependent: "/pkg/sub/M.so", Declared: "/opt/libX.dylib", Resolved: "/opt/libX.dylib", Class: m.ClassExternal},
		{Dependent: "/pkg/sub/M.so", Declared: "@rpath/libY.dylib", Resolved: "/opt/libY.dylib", Class: m.ClassExternal},
		{Dependent: "/pkg/sub/M.so", Declared: "/usr/lib/libSystem.B.dylib", Resolved: "/usr/lib/libSystem.B.dylib", Class: m.ClassSystem},
		{Dependent: "/pkg/sub/M.so", Declared: "/pkg/libown.dylib", Resolved: "/pkg/libown.dylib", Class: m.ClassOwned},
		{Dependent: "/pkg/sub/M.so", Declared: "@loader_path/../libown.dylib", Resolved: "/pkg/libown.dylib", Class: m.ClassOwned},
		{Dependent: "/pkg/E", Declared: "/usr/lib/libSystem.B.dylib", Resolved: "/usr/lib/libSystem.B.dylib", Class: m.ClassSystem},
	}

	for _, src := range []m.Path{"/opt/libX.dylib", "/opt/libY.dylib"} {
		run.Plan.Insert(src, func(func(m.Path) bool) m.Relocation {
			return m.Relocation{Destination: "/pkg/.dylibs/" + m.Path(src[len("/opt/"):])}
		})
	}

	run.Libraries["/opt/libX.dylib"] = m.Binary{Path: "/opt/libX.dylib", ID: "/opt/libX.dylib", Dependencies: []string{"/opt/libY.dylib"}, SearchPaths: []string{"/opt"}}
	run.Libraries["/opt/libY.dylib"] = m.Binary{Path: "/opt/libY.dylib", ID: "@loader_path/libY.dylib"}
	run.LibraryEdges["/opt/libX.dylib"] = []m.DependencyEdge{
		{Dependent: "/opt/libX.dylib", Declared: "/opt/libY.dylib", Resolved: "/opt/libY.dylib", Class: m.ClassExternal},
	}

	return run
}

func TestRewriter_Plan(t *testing.T) {
	rewrites := NewRewriter(mocks.NewMockBinaryAdapter(t), nil).Plan(rewriterRun())

	require.Len(t, rewrites, 2)

	assert.Equal(t, m.Rewrite{
		Path: "/pkg/sub/M.so",
		Changes: map[string]string{
			"/opt/libX.dylib":   "@loader_path/../.dylibs/libX.dylib",
			"@rpath/libY.dylib": "@loader_path/../.dylibs/libY.dylib",
			"/pkg/libown.dylib": "@loader_path/../libown.dylib",
		},
		DeleteRpaths: []string{"/opt"},
	}, rewrites[0])

	assert.Equal(t, m.Rewrite{
		Path:         "/pkg/.dylibs/libX.dylib",
		ID:           "@loader_path/libX.dylib",
		Changes:      map[string]string{"/opt/libY.dylib": "@loader_path/libY.dylib"},
		DeleteRpaths: []string{"/opt"},
	}, rewrites[1])
}

func TestRewriter_PlanKeepsRpathsStillInUse(t *testing.T) {
	tests := []struct {
		name    string
		kept    m.DependencyEdge
		deleted []string
	}{
		{
			name:    "excluded reference",
			kept:    m.DependencyEdge{Declared: "@rpath/libC.dylib", Resolved: "@rpath/libC.dylib", Class: m.ClassSystem, SearchPath: "/opt/vendor"},
			deleted: []string{"/opt"},
		},
		{
			name:    "owned reference",
			kept:    m.DependencyEdge{Declared: "@rpath/libO.dylib", Resolved: "/opt/vendor/libO.dylib", Class: m.ClassOwned, SearchPath: "/opt/vendor"},
			deleted: []string{"/opt"},
		},
		{
			name: "unresolvable reference",
			kept: m.DependencyEdge{Declared: "@rpath/libU.dylib", Class: m.ClassUnresolvable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := NewRun("/pkg", DefaultOptions(), nil)
			run.Graph.Add(m.Binary{
				Path:         "/pkg/M.so",
				Dependencies: []string{"@rpath/libA.dylib", tt.kept.Declared},
				SearchPaths:  []string{"/opt", "/opt/vendor"},
			})

			kept := tt.kept
			kept.Dependent = "/pkg/M.so"
			run.Edges = []m.DependencyEdge{
				{Dependent: "/pkg/M.so", Declared: "@rpath/libA.dylib", Resolved: "/opt/libA.dylib", Class: m.ClassExternal, SearchPath: "/opt"},
				kept,
			}
			run.Plan.Insert("/opt/libA.dylib", func(func(m.Path) bool) m.Relocation {
				return m.Relocation{Destination: "/pkg/.dylibs/libA.dylib"}
			})

			rewrites := NewRewriter(mocks.NewMockBinaryAdapter(t), nil).Plan(run)

			require.Len(t, rewrites, 1)
			assert.Equal(t, map[string]string{"@rpath/libA.dylib": "@loader_path/.dylibs/libA.dylib"}, rewrites[0].Changes)
			assert.Equal(t, tt.deleted, rewrites[0].DeleteRpaths)
		})
	}
}

func TestRewriter_PlanWithoutSanitizing(t *testing.T) {
	run := rewriterRun()
	run.Options.SanitizeRpaths = false

	rewrites := NewRewriter(mocks.NewMockBinaryAdapter(t), nil).Plan(run)

	require.Len(t, rewrites, 2)
	assert.Empty(t, rewrites[0].DeleteRpaths)
	assert.Empty(t, rewrites[1].DeleteRpaths)
}

func TestRewriter_Apply(t *testing.T) {
	t.Run("records changed binaries", func(t *testing.T) {
		binaries := mocks.NewMockBinaryAdapter(t)
		first := m.Rewrite{Path: "/pkg/a.so", ID: "@loader_path/a.so"}
		second := m.Rewrite{Path: "/pkg/b.so", ID: "@loader_path/b.so"}
		binaries.On("Rewrite", first).Return(true, nil)
		binaries.On("Rewrite", second).Return(false, nil)

		run := NewRun("/pkg", DefaultOptions(), nil)
		require.NoError(t, NewRewriter(binaries, nil).Apply(context.Background(), run, []m.Rewrite{first, second}))

		assert.Equal(t, []m.Path{"/pkg/a.so"}, run.Report.Rewritten)
	})

	t.Run("failure is a rewrite error", func(t *testing.T) {
		binaries := mocks.NewMockBinaryAdapter(t)
		rw := m.Rewrite{Path: "/pkg/a.so", ID: "@loader_path/a-very-long-name.so"}
		cause := errors.New("no room for load commands")
		binaries.On("Rewrite", rw).Return(false, cause)

		run := NewRun("/pkg", DefaultOptions(), nil)
		err := NewRewriter(binaries, nil).Apply(context.Background(), run, []m.Rewrite{rw})

		assert.ErrorIs(t, err, ErrRewrite)
		assert.ErrorIs(t, err, cause)

		var depErr *DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, m.Path("/pkg/a.so"), depErr.Binary)
	})
}
