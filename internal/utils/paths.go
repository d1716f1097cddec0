package utils

import (
	"path/filepath"
	"runtime"
	"strings"
)

// ExecutableName returns the artifact file name for a project on the host platform
func ExecutableName(name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}

	return name
}

// objectEscaper folds a relative path into one file name. Every underscore in the output starts
// a two character escape, so distinct paths always give distinct names.
var objectEscaper = strings.NewReplacer(
	"_", "_u",
	"/", "__",
	":", "_c",
)

// ObjectName maps a source path (relative to the project root) to a flat object file name.
// src/a/util.cpp and src/b/util.cpp do not collide, and neither do a/b.cpp and a__b.cpp.
func ObjectName(rel string) string {
	rel = filepath.ToSlash(filepath.Clean(rel))

	return objectEscaper.Replace(rel) + ".o"
}
