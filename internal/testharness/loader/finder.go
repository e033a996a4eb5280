package loader

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
)

// Finder defaults.
const (
	DefaultTestDirectory     = "src/app/tests/suites/"
	DefaultConfigurationName = "ciTests"

	// AllTests selects every test of every collection.
	AllTests = "all"

	knownPrefix   = "Test_TC_"
	yamlExtension = ".yaml"
	jsonExtension = ".json"
)

// Finder resolves test names to file paths inside a test directory.
//
// A name may be a collection from the configuration file, the keyword
// "all", a file name, a file name without the .yaml extension, or a short
// name completed with the Test_TC_ prefix.
type Finder struct {
	dir         string
	collections map[string][]string
}

// NewFinder creates a Finder. configuration is either a path to a JSON
// collection file or a name resolved as <dir>/<name>.json; a missing
// configuration leaves the finder without collections.
func NewFinder(dir, configuration string) (*Finder, error) {
	f := &Finder{dir: dir}

	path := ""
	if isFile(configuration) {
		path = configuration
	} else if candidate := filepath.Join(dir, configuration+jsonExtension); isFile(candidate) {
		path = candidate
	}
	if path == "" {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read collections", Cause: err}
	}
	if err := json.Unmarshal(data, &f.collections); err != nil {
		return nil, &LoadError{File: path, Message: "invalid collections file", Cause: err}
	}
	return f, nil
}

// Collections returns the collection names listed under the "collection" key.
func (f *Finder) Collections() []string {
	return f.collections["collection"]
}

// Find returns the paths for name.
func (f *Finder) Find(name string) ([]string, error) {
	var names []string
	switch {
	case f.collections != nil && name == AllTests:
		for _, c := range f.collections["collection"] {
			names = append(names, f.collections[c]...)
		}
	case f.collections != nil && len(f.collections[name]) > 0:
		names = f.collections[name]
	default:
		names = []string{name}
	}

	var paths []string
	for _, n := range names {
		found, err := f.paths(n)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

func (f *Finder) paths(name string) ([]string, error) {
	candidates := []string{name, name + yamlExtension, knownPrefix + name + yamlExtension}

	var paths []string
	err := filepath.WalkDir(f.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		for _, c := range candidates {
			if p := filepath.Join(path, c); isFile(p) {
				paths = append(paths, p)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{File: f.dir, Message: "failed to walk test directory", Cause: err}
	}
	return paths, nil
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
