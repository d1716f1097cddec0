package config

import (
	"os"
	"path/filepath"
)

// LocalBaseName is shared with the project file, so a project's .cpplab.json may also carry
// tool settings such as jobs or toolchain
const LocalBaseName = ".cpplab"

// FindLocalConfig finds local config file by walking up directories
func FindLocalConfig(dir string) string {
	for {
		for _, ext := range []string{"yml", "yaml", "json", "toml"} {
			path := filepath.Join(dir, LocalBaseName+"."+ext)

			if _, err := os.Stat(path); err == nil {
				return path
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
