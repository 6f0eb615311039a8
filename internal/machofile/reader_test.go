package machofile

import (
	"debug/macho"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/mouse-blink/libpack/internal/machotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniff(t *testing.T) {
	java := make([]byte, 8)
	binary.BigEndian.PutUint32(java, macho.MagicFat)
	binary.BigEndian.PutUint32(java[4:], 0x34)

	tests := []struct {
		name   string
		header []byte
		want   bool
	}{
		{name: "thin 64-bit", header: machotest.Build(machotest.Spec{})[:8], want: true},
		{name: "universal", header: machotest.BuildFat(machotest.Spec{})[:8], want: true},
		{name: "java class file", header: java, want: false},
		{name: "text file", header: []byte("#!/bin/sh\n"), want: false},
		{name: "too short", header: []byte{0xcf, 0xfa}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff(tt.header))
		})
	}
}

func TestParse_Thin(t *testing.T) {
	data := machotest.Build(machotest.Spec{
		ID:     "/usr/local/lib/libfoo.1.dylib",
		Dylibs: []string{"/usr/local/lib/libbar.dylib", "@rpath/libbaz.dylib", "/usr/lib/libSystem.B.dylib"},
		Rpaths: []string{"@loader_path/../lib", "/opt/local/lib"},
	})

	f, err := Parse(data)
	require.NoError(t, err)

	require.Len(t, f.Slices, 1)
	assert.False(t, f.Fat)
	assert.True(t, f.Slices[0].Is64)
	assert.Equal(t, macho.TypeDylib, f.Slices[0].Type)
	assert.Equal(t, "/usr/local/lib/libfoo.1.dylib", f.ID())

	deps, partial := f.Dependencies()
	assert.Equal(t, []string{"/usr/local/lib/libbar.dylib", "@rpath/libbaz.dylib", "/usr/lib/libSystem.B.dylib"}, deps)
	assert.Empty(t, partial)
	assert.Equal(t, []string{"@loader_path/../lib", "/opt/local/lib"}, f.Rpaths())
	assert.Equal(t, []string{"arm64"}, f.Arches())
	assert.False(t, f.Signed())
}

func TestParse_DuplicateDependenciesCollapse(t *testing.T) {
	f, err := Parse(machotest.Build(machotest.Spec{
		Dylibs: []string{"/a/libx.dylib", "/a/libx.dylib", "/a/liby.dylib"},
	}))
	require.NoError(t, err)

	deps, _ := f.Dependencies()
	assert.Equal(t, []string{"/a/libx.dylib", "/a/liby.dylib"}, deps)
}

func TestParse_FatUnionsSlices(t *testing.T) {
	data := machotest.BuildFat(
		machotest.Spec{Cpu: macho.CpuAmd64, ID: "libm.dylib", Dylibs: []string{"/opt/libshared.dylib", "/opt/libintel.dylib"}},
		machotest.Spec{Cpu: macho.CpuArm64, ID: "libm.dylib", Dylibs: []string{"/opt/libshared.dylib", "/opt/libarm.dylib"}},
	)

	f, err := Parse(data)
	require.NoError(t, err)

	assert.True(t, f.Fat)
	require.Len(t, f.Slices, 2)
	assert.Equal(t, []string{"x86_64", "arm64"}, f.Arches())

	deps, partial := f.Dependencies()
	assert.Equal(t, []string{"/opt/libshared.dylib", "/opt/libintel.dylib", "/opt/libarm.dylib"}, deps)
	assert.Equal(t, []string{"/opt/libintel.dylib", "/opt/libarm.dylib"}, partial)
}

func TestParse_Rejects(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		_, err := Parse([]byte("hello, this is not a binary at all"))
		assert.ErrorIs(t, err, ErrNotMachO)
	})

	t.Run("truncated load commands", func(t *testing.T) {
		data := machotest.Build(machotest.Spec{})
		binary.LittleEndian.PutUint32(data[20:], uint32(len(data)))

		_, err := Parse(data)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("slice out of range", func(t *testing.T) {
		data := machotest.BuildFat(machotest.Spec{})
		binary.BigEndian.PutUint32(data[8+12:], uint32(len(data)*2))

		_, err := Parse(data)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestReadFile_MatchesDebugMacho(t *testing.T) {
	path := machotest.Write(t, filepath.Join(t.TempDir(), "libfoo.dylib"), machotest.Spec{
		ID:     "libfoo.dylib",
		Dylibs: []string{"/usr/local/lib/libbar.dylib", "/usr/lib/libc++.1.dylib"},
	})

	f, _, err := ReadFile(path)
	require.NoError(t, err)

	std, err := macho.Open(path)
	require.NoError(t, err)

	defer func() { _ = std.Close() }()

	want, err := std.ImportedLibraries()
	require.NoError(t, err)

	got, _ := f.Dependencies()
	assert.Equal(t, want, got)
}
