package modstring

import (
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/afero"
)

// resolution is the outcome of resolving a specifier: either a registered
// host module or a file path on the loader's filesystem.
type resolution struct {
	path string
	host HostModule
}

// resolve maps a specifier to its target. Relative and absolute specifiers
// resolve against dir, bare specifiers first hit the host module registry
// (with an optional node: prefix) and then walk the node_modules chain in
// paths.
func (l *Loader) resolve(dir string, paths []string, specifier string) (*resolution, error) {
	if isRelativeSpecifier(specifier) || filepath.IsAbs(specifier) {
		candidate := specifier
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(dir, candidate)
		}
		if found, ok := findScriptFile(l.fs, filepath.Clean(candidate)); ok {
			log.Debugf("Loader: Resolved specifier %s to %s", specifier, found)
			return &resolution{path: found}, nil
		}
		return nil, resolveError(specifier, dir)
	}

	// The node: prefix addresses host provided modules explicitly and is
	// transparent for registry lookups.
	name := strings.TrimPrefix(specifier, "node:")
	if module, ok := l.hostModules[name]; ok {
		log.Debugf("Loader: Resolved specifier %s to host module %s", specifier, name)
		return &resolution{host: module}, nil
	}

	for _, path := range paths {
		if found, ok := findScriptFile(l.fs, filepath.Join(path, name)); ok {
			log.Debugf("Loader: Resolved specifier %s to %s", specifier, found)
			return &resolution{path: found}, nil
		}
	}

	return nil, resolveError(specifier, dir)
}

func isRelativeSpecifier(specifier string) bool {
	return strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		specifier == "." ||
		specifier == ".."
}

// findScriptFile probes the filesystem for the actual file behind a resolved
// base path: the exact name first, then the well-known extensions, then a
// directory index.
func findScriptFile(fs afero.Fs, filename string) (string, bool) {
	if ext := filepath.Ext(filename); ext != "" {
		if fileExists(fs, filename) {
			return filename, true
		}
	}
	candidate := filename + ".js"
	if fileExists(fs, candidate) {
		return candidate, true
	}
	candidate = filename + ".mjs"
	if fileExists(fs, candidate) {
		return candidate, true
	}
	candidate = filename + ".cjs"
	if fileExists(fs, candidate) {
		return candidate, true
	}
	candidate = filename + ".json"
	if fileExists(fs, candidate) {
		return candidate, true
	}
	candidate = filepath.Join(filename, "index.js")
	if fileExists(fs, candidate) {
		return candidate, true
	}
	candidate = filepath.Join(filename, "index.json")
	if fileExists(fs, candidate) {
		return candidate, true
	}
	if fileExists(fs, filename) {
		return filename, true
	}
	return "", false
}

// nodeModulePaths builds the package search chain for a record located in
// dir: every node_modules directory from dir up to the root, followed by the
// chain of the loader base directory when it differs.
func nodeModulePaths(dir, baseDir string) []string {
	paths := walkNodeModules(dir)
	if baseDir != "" && baseDir != dir {
		for _, path := range walkNodeModules(baseDir) {
			if !containsString(paths, path) {
				paths = append(paths, path)
			}
		}
	}
	return paths
}

func walkNodeModules(dir string) []string {
	var paths []string
	current := filepath.Clean(dir)
	for {
		if filepath.Base(current) != "node_modules" {
			paths = append(paths, filepath.Join(current, "node_modules"))
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return paths
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
