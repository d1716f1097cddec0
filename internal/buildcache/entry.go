package buildcache

// Entry is the on-disk form of a project's build cache
type Entry struct {
	// Hashes maps an absolute file path to the hex digest recorded after the last successful build
	Hashes map[string]string `json:"hashes"`

	// Deps maps an absolute source path to the headers it depends on
	Deps map[string][]string `json:"deps"`
}

func newEntry() Entry {
	return Entry{
		Hashes: make(map[string]string),
		Deps:   make(map[string][]string),
	}
}
