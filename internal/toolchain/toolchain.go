// Package toolchain locates compiler installations and picks the one a project must build with.
package toolchain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/Norgate-AV/cpplab/internal/project"
)

// ErrToolchainUnavailable means the selected toolchain's binaries are missing
var ErrToolchainUnavailable = errors.New("toolchain unavailable")

// Well-known toolchain names
const (
	MinGW64 = "mingw64"
	MinGW32 = "mingw32"
)

// Preference aliases accepted in addition to toolchain names
const (
	Alias64 = "64bit"
	Alias32 = "32bit"
)

// Descriptor is one compiler installation
type Descriptor struct {
	Name           string
	Root           string
	Is32Bit        bool
	SupportsOpenMP bool
}

func (d Descriptor) BinDir() string     { return filepath.Join(d.Root, "bin") }
func (d Descriptor) IncludeDir() string { return filepath.Join(d.Root, "include") }
func (d Descriptor) LibDir() string     { return filepath.Join(d.Root, "lib") }

// CCompiler is the path of the C compiler driver
func (d Descriptor) CCompiler() string {
	return filepath.Join(d.BinDir(), exe("gcc"))
}

// CXXCompiler is the path of the C++ compiler driver
func (d Descriptor) CXXCompiler() string {
	return filepath.Join(d.BinDir(), exe("g++"))
}

// Compiler returns the driver used for a project language
func (d Descriptor) Compiler(lang project.Language) string {
	if lang == project.LangC {
		return d.CCompiler()
	}

	return d.CXXCompiler()
}

// Available reports whether the bin directory and C++ driver exist.
// It hits the filesystem on every call since toolchains can be installed or removed between builds.
func (d Descriptor) Available() bool {
	info, err := os.Stat(d.BinDir())
	if err != nil || !info.IsDir() {
		return false
	}

	_, err = os.Stat(d.CXXCompiler())
	return err == nil
}

func exe(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}

	return name
}

// Registry holds the known toolchains. It is constructed explicitly and owned by the orchestrator.
type Registry struct {
	mu      sync.RWMutex
	dir     string
	entries map[string]Descriptor
}

// NewRegistry discovers the bundled toolchains under compilersDir
func NewRegistry(compilersDir string) *Registry {
	r := &Registry{dir: compilersDir}
	r.Refresh()

	return r
}

// NewRegistryFrom builds a registry from explicit descriptors
func NewRegistryFrom(descs ...Descriptor) *Registry {
	r := &Registry{entries: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		r.entries[d.Name] = d
	}

	return r
}

// Refresh rebuilds the descriptor table from the compilers directory.
// Registries built from explicit descriptors keep them.
func (r *Registry) Refresh() {
	if r.dir == "" {
		return
	}

	entries := map[string]Descriptor{
		MinGW64: {
			Name:           MinGW64,
			Root:           filepath.Join(r.dir, MinGW64),
			Is32Bit:        false,
			SupportsOpenMP: true,
		},
		MinGW32: {
			Name:           MinGW32,
			Root:           filepath.Join(r.dir, MinGW32),
			Is32Bit:        true,
			SupportsOpenMP: false,
		},
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
}

// Get returns the named toolchain
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[name]
	return d, ok
}

// All returns every registered toolchain sorted by name
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Descriptor, 0, len(r.entries))
	for _, d := range r.entries {
		all = append(all, d)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// byBitness returns the first registered toolchain (by name) with the given bitness
func (r *Registry) byBitness(is32 bool) (Descriptor, bool) {
	for _, d := range r.All() {
		if d.Is32Bit == is32 {
			return d, true
		}
	}

	return Descriptor{}, false
}

// Select resolves the toolchain a spec must build with.
//
// Graphics projects always get the 32-bit toolchain: the BGI library only ships 32-bit binaries.
// An explicit preference is honoured otherwise, and auto prefers 64-bit. The result is never
// swapped for the other bitness when unavailable, since that changes which libraries link.
func Select(spec *project.BuildSpec, r *Registry) (Descriptor, error) {
	var (
		selected Descriptor
		found    bool
	)

	switch {
	case spec.Features.Graphics:
		selected, found = r.byBitness(true)
		if !found {
			return Descriptor{}, fmt.Errorf("%w: graphics projects require a 32-bit toolchain", ErrToolchainUnavailable)
		}
	default:
		selected, found = preferred(spec.ToolchainPreference, r)
		if !found {
			selected, found = r.byBitness(false)
		}

		if !found {
			selected, found = r.byBitness(true)
		}

		if !found {
			return Descriptor{}, fmt.Errorf("%w: no toolchains registered", ErrToolchainUnavailable)
		}
	}

	if !selected.Available() {
		return Descriptor{}, fmt.Errorf("%w: %q not found at %s", ErrToolchainUnavailable, selected.Name, selected.Root)
	}

	return selected, nil
}

func preferred(pref string, r *Registry) (Descriptor, bool) {
	switch pref {
	case "", project.PreferenceAuto:
		return Descriptor{}, false
	case Alias64:
		return r.byBitness(false)
	case Alias32:
		return r.byBitness(true)
	default:
		return r.Get(pref)
	}
}
