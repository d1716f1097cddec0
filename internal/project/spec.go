// Package project describes the source set a build operates on.
package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidSpec is returned when a build spec cannot be built at all
var ErrInvalidSpec = errors.New("invalid build spec")

// Language is the source language of a project
type Language string

const (
	LangC   Language = "c"
	LangCPP Language = "cpp"
)

// Default language standards
const (
	DefaultCStandard   = "c11"
	DefaultCPPStandard = "c++17"
)

// PreferenceAuto lets the selector pick the toolchain
const PreferenceAuto = "auto"

// Features are the optional capabilities a project links against
type Features struct {
	Graphics bool `json:"graphics" mapstructure:"graphics"`
	OpenMP   bool `json:"openmp" mapstructure:"openmp"`
}

// BuildSpec describes one project build. Files order is significant: it is the link order.
type BuildSpec struct {
	Name     string
	Root     string
	Language Language
	Standard string
	Features Features

	// Files are relative to Root unless absolute
	Files []string

	ToolchainPreference string

	// Deps maps a source file to the headers it includes, supplied by the caller
	Deps map[string][]string
}

// Validate checks the build spec and fills in defaults
func (s *BuildSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: missing project name", ErrInvalidSpec)
	}

	if s.Root == "" {
		return fmt.Errorf("%w: missing project root", ErrInvalidSpec)
	}

	abs, err := filepath.Abs(s.Root)
	if err != nil {
		return fmt.Errorf("%w: invalid project root: %v", ErrInvalidSpec, err)
	}

	s.Root = abs

	switch s.Language {
	case LangC, LangCPP:
	case "":
		s.Language = LangCPP
	default:
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidSpec, s.Language)
	}

	if s.Standard == "" {
		s.Standard = DefaultStandard(s.Language)
	}

	if s.ToolchainPreference == "" {
		s.ToolchainPreference = PreferenceAuto
	}

	if len(s.Files) == 0 {
		return fmt.Errorf("%w: no source files", ErrInvalidSpec)
	}

	// graphics projects link the 32-bit BGI library, which has no OpenMP runtime
	if s.Features.Graphics {
		s.Features.OpenMP = false
	}

	return nil
}

// Clone returns a deep copy so a running build is isolated from caller mutation
func (s *BuildSpec) Clone() *BuildSpec {
	c := *s
	c.Files = append([]string(nil), s.Files...)

	if s.Deps != nil {
		c.Deps = make(map[string][]string, len(s.Deps))
		for src, headers := range s.Deps {
			c.Deps[src] = append([]string(nil), headers...)
		}
	}

	return &c
}

// Resolve returns p as an absolute path, interpreting relative paths against Root
func (s *BuildSpec) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}

	return filepath.Join(s.Root, p)
}

// SourcePaths returns the absolute source paths in declaration order
func (s *BuildSpec) SourcePaths() []string {
	paths := make([]string, len(s.Files))
	for i, f := range s.Files {
		paths[i] = s.Resolve(f)
	}

	return paths
}

// BuildDir is the directory owned by builds of this project
func (s *BuildSpec) BuildDir() string {
	return filepath.Join(s.Root, "build")
}

// ObjectDir holds per-unit object files
func (s *BuildSpec) ObjectDir() string {
	return filepath.Join(s.BuildDir(), "obj")
}

// DefaultStandard returns the language standard used when a project does not name one
func DefaultStandard(lang Language) string {
	if lang == LangC {
		return DefaultCStandard
	}

	return DefaultCPPStandard
}

// LanguageForFile infers the language from a source file extension
func LanguageForFile(path string) Language {
	if strings.EqualFold(filepath.Ext(path), ".c") {
		return LangC
	}

	return LangCPP
}

// ForSingleFile builds a spec for compiling one standalone source file.
// Empty overrides keep the defaults.
func ForSingleFile(path, standardOverride, toolchainPreference string) (*BuildSpec, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	lang := LanguageForFile(abs)
	base := filepath.Base(abs)

	spec := &BuildSpec{
		Name:                strings.TrimSuffix(base, filepath.Ext(base)),
		Root:                filepath.Dir(abs),
		Language:            lang,
		Standard:            DefaultStandard(lang),
		Files:               []string{base},
		ToolchainPreference: PreferenceAuto,
	}

	if standardOverride != "" {
		spec.Standard = standardOverride
	}

	if toolchainPreference != "" {
		spec.ToolchainPreference = toolchainPreference
	}

	return spec, nil
}
