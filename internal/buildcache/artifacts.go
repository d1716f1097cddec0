package buildcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Norgate-AV/cpplab/internal/project"
)

// CollectObjects lists the object files in dir
func CollectObjects(dir string) ([]string, error) {
	var objects []string

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Nothing built yet
		}
		return nil, fmt.Errorf("failed to read object directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".o") {
			continue
		}

		objects = append(objects, filepath.Join(dir, entry.Name()))
	}

	return objects, nil
}

// Clean removes the objects, the artifact and the cache file of a project.
// It returns the paths it actually removed.
func Clean(spec *project.BuildSpec, artifact string) ([]string, error) {
	objects, err := CollectObjects(spec.ObjectDir())
	if err != nil {
		return nil, err
	}

	var removed []string
	var errs []error

	for _, p := range append(objects, artifact, Path(spec)) {
		if err := os.Remove(p); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", p, err))
			}
			continue
		}

		removed = append(removed, p)
	}

	// Only succeeds once the directory is empty
	os.Remove(spec.ObjectDir())

	return removed, errors.Join(errs...)
}
