package toolchain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/cpplab/internal/project"
)

// install creates the minimal layout that makes a descriptor available
func install(t *testing.T, d Descriptor) {
	t.Helper()

	require.NoError(t, os.MkdirAll(d.BinDir(), 0o755))
	require.NoError(t, os.WriteFile(d.CXXCompiler(), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(d.CCompiler(), []byte("#!/bin/sh\n"), 0o755))
}

func newInstalledRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()

	dir := t.TempDir()
	r := NewRegistry(dir)
	for _, name := range names {
		d, ok := r.Get(name)
		require.True(t, ok)
		install(t, d)
	}

	return r
}

func spec(graphics bool, pref string) *project.BuildSpec {
	return &project.BuildSpec{
		Name:                "test",
		Root:                "/fake/project",
		Language:            project.LangCPP,
		Standard:            "c++17",
		Features:            project.Features{Graphics: graphics},
		Files:               []string{"src/main.cpp"},
		ToolchainPreference: pref,
	}
}

func TestDescriptor_Paths(t *testing.T) {
	d := Descriptor{Name: MinGW64, Root: filepath.Join("compilers", "mingw64")}

	assert.Equal(t, filepath.Join("compilers", "mingw64", "bin"), d.BinDir())
	assert.Equal(t, filepath.Join("compilers", "mingw64", "include"), d.IncludeDir())
	assert.Equal(t, filepath.Join("compilers", "mingw64", "lib"), d.LibDir())
	assert.Equal(t, d.CCompiler(), d.Compiler(project.LangC))
	assert.Equal(t, d.CXXCompiler(), d.Compiler(project.LangCPP))
}

func TestDescriptor_AvailableIsNotCached(t *testing.T) {
	r := NewRegistry(t.TempDir())
	d, ok := r.Get(MinGW64)
	require.True(t, ok)

	assert.False(t, d.Available())

	install(t, d)
	assert.True(t, d.Available())

	require.NoError(t, os.Remove(d.CXXCompiler()))
	assert.False(t, d.Available())
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name      string
		installed []string
		graphics  bool
		pref      string
		want      string
		wantErr   bool
	}{
		{name: "auto prefers 64-bit", installed: []string{MinGW64, MinGW32}, pref: "auto", want: MinGW64},
		{name: "empty preference is auto", installed: []string{MinGW64, MinGW32}, pref: "", want: MinGW64},
		{name: "explicit mingw32", installed: []string{MinGW64, MinGW32}, pref: MinGW32, want: MinGW32},
		{name: "explicit mingw64", installed: []string{MinGW64, MinGW32}, pref: MinGW64, want: MinGW64},
		{name: "32bit alias", installed: []string{MinGW64, MinGW32}, pref: Alias32, want: MinGW32},
		{name: "unknown preference falls back to auto", installed: []string{MinGW64, MinGW32}, pref: "clang", want: MinGW64},
		{name: "graphics forces 32-bit", installed: []string{MinGW64, MinGW32}, graphics: true, pref: "auto", want: MinGW32},
		{name: "graphics overrides 64bit preference", installed: []string{MinGW64, MinGW32}, graphics: true, pref: Alias64, want: MinGW32},
		{name: "graphics overrides mingw64 preference", installed: []string{MinGW64, MinGW32}, graphics: true, pref: MinGW64, want: MinGW32},
		{name: "graphics without 32-bit install fails", installed: []string{MinGW64}, graphics: true, wantErr: true},
		{name: "auto without 64-bit install fails, no fallback", installed: []string{MinGW32}, pref: "auto", wantErr: true},
		{name: "nothing installed", installed: nil, pref: "auto", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newInstalledRegistry(t, tt.installed...)

			got, err := Select(spec(tt.graphics, tt.pref), r)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrToolchainUnavailable)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestSelect_OnlyThirtyTwoBitRegistered(t *testing.T) {
	dir := t.TempDir()
	d := Descriptor{Name: "legacy", Root: filepath.Join(dir, "legacy"), Is32Bit: true}
	install(t, d)

	r := NewRegistryFrom(d)
	got, err := Select(spec(false, "auto"), r)
	require.NoError(t, err)
	assert.Equal(t, "legacy", got.Name)
}

func TestRegistry_AllAndRefresh(t *testing.T) {
	r := NewRegistry(t.TempDir())

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, MinGW32, all[0].Name)
	assert.True(t, all[0].Is32Bit)
	assert.False(t, all[0].SupportsOpenMP)
	assert.Equal(t, MinGW64, all[1].Name)
	assert.True(t, all[1].SupportsOpenMP)

	r.Refresh()
	assert.Len(t, r.All(), 2)

	explicit := NewRegistryFrom(Descriptor{Name: "custom"})
	explicit.Refresh()
	_, ok := explicit.Get("custom")
	assert.True(t, ok)
}
