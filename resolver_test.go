package modstring

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func TestFindScriptFileProbing(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/app/exact.js", []byte(""), 0644)
	afero.WriteFile(fs, "/app/data.json", []byte("{}"), 0644)
	afero.WriteFile(fs, "/app/pkg/index.js", []byte(""), 0644)

	cases := []struct {
		name     string
		request  string
		expected string
	}{
		{"exact extension", "/app/exact.js", "/app/exact.js"},
		{"appended js", "/app/exact", "/app/exact.js"},
		{"appended json", "/app/data", "/app/data.json"},
		{"directory index", "/app/pkg", "/app/pkg/index.js"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			found, ok := findScriptFile(fs, c.request)
			if !ok || found != c.expected {
				t.Fatalf("expected %s, got %s (ok=%v)", c.expected, found, ok)
			}
		})
	}

	if _, ok := findScriptFile(fs, "/app/nothing"); ok {
		t.Fatal("expected probe miss")
	}
}

func TestNodeModulePathsChain(t *testing.T) {
	paths := nodeModulePaths("/app/src/deep", "/app")

	expectedHead := []string{
		"/app/src/deep/node_modules",
		"/app/src/node_modules",
		"/app/node_modules",
		"/node_modules",
	}
	if len(paths) < len(expectedHead) {
		t.Fatalf("chain too short: %v", paths)
	}
	for i, expected := range expectedHead {
		if paths[i] != expected {
			t.Fatalf("expected %s at position %d, got %v", expected, i, paths)
		}
	}
}

func TestResolveNodePrefixHitsHostModule(t *testing.T) {
	loader, _ := newTestLoader(t, WithHostModules(staticHostModule{
		name:    "path",
		exports: map[string]interface{}{},
	}))

	resolved, err := loader.resolve("/app", nil, "node:path")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.host == nil || resolved.host.Name() != "path" {
		t.Fatalf("node: prefix must be transparent for host modules, got %+v", resolved)
	}
}

func TestResolveRelativeBeatsHostRegistry(t *testing.T) {
	loader, fs := newTestLoader(t, WithHostModules(staticHostModule{
		name:    "x",
		exports: map[string]interface{}{},
	}))
	writeScript(t, fs, "/app/x.js", "module.exports = 1")

	resolved, err := loader.resolve("/app", nil, "./x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.host != nil || resolved.path != "/app/x.js" {
		t.Fatalf("relative specifiers never hit the registry, got %+v", resolved)
	}
}

func TestResolveFailureKind(t *testing.T) {
	loader, _ := newTestLoader(t)

	_, err := loader.resolve("/app", nil, "ghost")
	if !errors.Is(err, ErrResolve) {
		t.Fatalf("expected resolution error kind, got %v", err)
	}
}
