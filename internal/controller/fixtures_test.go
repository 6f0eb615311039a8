package controller

import (
	m "github.com/mouse-blink/libpack/internal/model"
)

func testScanResult() m.ScanResult {
	graph := m.NewDependencyGraph()
	graph.Add(m.Binary{Path: "pkg/M.so", Dependencies: []string{"/usr/lib/libSystem.B.dylib", "/ext/libA.dylib"}})
	graph.Add(m.Binary{Path: "pkg/N.so", Dependencies: []string{"@rpath/libmissing.dylib"}})

	return m.ScanResult{
		Root:  "pkg",
		Graph: graph,
		Edges: []m.DependencyEdge{
			{Dependent: "pkg/N.so", Declared: "@rpath/libmissing.dylib", Class: m.ClassUnresolvable},
			{Dependent: "pkg/M.so", Declared: "/usr/lib/libSystem.B.dylib", Resolved: "/usr/lib/libSystem.B.dylib", Class: m.ClassSystem},
			{Dependent: "pkg/M.so", Declared: "/ext/libA.dylib", Resolved: "/ext/libA.dylib", Class: m.ClassExternal},
		},
		Warnings: []m.Warning{
			{Kind: m.WarnUnresolvable, Binary: "pkg/N.so", Dependency: "@rpath/libmissing.dylib", Message: "not found on any search path"},
		},
	}
}

func testReport() m.Report {
	return m.Report{
		Root:  "dist/demo-1.0-py3-none-macosx_11_0_arm64.whl",
		Stage: m.StageFinalized,
		Bundled: []m.Relocation{
			{Source: "/ext/libA.dylib", Destination: "demo/.dylibs/libA.dylib"},
			{Source: "/other/libA.dylib", Destination: "demo/.dylibs/libA-1a2b3c4d.dylib", Renamed: true},
		},
		Rewritten: []m.Path{"demo/M.so"},
		Signed:    []m.Path{"demo/M.so"},
		Manifest:  []m.Path{"demo-1.0.dist-info/RECORD"},
		Warnings: []m.Warning{
			{Kind: m.WarnNameCollision, Binary: "demo/M.so", Dependency: "/other/libA.dylib"},
		},
	}
}
