package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// FileBaseName is the project file name without extension
const FileBaseName = ".cpplab"

// Project types
const (
	TypeConsole  = "console"
	TypeGraphics = "graphics"
)

// DepEntry lists the headers one source file depends on
type DepEntry struct {
	Source  string   `mapstructure:"source"`
	Headers []string `mapstructure:"headers"`
}

// File is the on-disk project description
type File struct {
	Name                string     `mapstructure:"name"`
	Language            string     `mapstructure:"language"`
	Standard            string     `mapstructure:"standard"`
	ProjectType         string     `mapstructure:"project_type"`
	Features            Features   `mapstructure:"features"`
	Files               []string   `mapstructure:"files"`
	MainFile            string     `mapstructure:"main_file"`
	ToolchainPreference string     `mapstructure:"toolchain_preference"`
	Deps                []DepEntry `mapstructure:"deps"`
}

// FindFile returns the project file in dir, or "" if there is none
func FindFile(dir string) string {
	for _, ext := range []string{"json", "yml", "yaml", "toml"} {
		path := filepath.Join(dir, FileBaseName+"."+ext)

		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Load reads the project file in dir and converts it into a validated BuildSpec
func Load(dir string) (*BuildSpec, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	path := FindFile(abs)
	if path == "" {
		return nil, fmt.Errorf("no %s project file in %s", FileBaseName, abs)
	}

	// a private instance so project keys never leak into application config
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("language", string(LangCPP))
	v.SetDefault("project_type", TypeConsole)
	v.SetDefault("toolchain_preference", PreferenceAuto)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("failed to decode project file: %w", err)
	}

	spec := f.Spec(abs)
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return spec, nil
}

// Spec converts the project file into a BuildSpec rooted at root
func (f *File) Spec(root string) *BuildSpec {
	features := f.Features
	if f.ProjectType == TypeGraphics {
		features.Graphics = true
	}

	files := append([]string(nil), f.Files...)
	if len(files) == 0 && f.MainFile != "" {
		files = []string{f.MainFile}
	}

	var deps map[string][]string
	if len(f.Deps) > 0 {
		deps = make(map[string][]string, len(f.Deps))
		for _, d := range f.Deps {
			deps[d.Source] = append(deps[d.Source], d.Headers...)
		}
	}

	return &BuildSpec{
		Name:                f.Name,
		Root:                root,
		Language:            Language(f.Language),
		Standard:            f.Standard,
		Features:            features,
		Files:               files,
		ToolchainPreference: f.ToolchainPreference,
		Deps:                deps,
	}
}
