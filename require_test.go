package modstring

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

func newTestLoader(t *testing.T, options ...LoaderOption) (*Loader, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	loader, err := New("/app", append([]LoaderOption{WithFilesystem(fs)}, options...)...)
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	return loader, fs
}

func writeScript(t *testing.T, fs afero.Fs, path, source string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(source), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestRequireModuleExportsValue(t *testing.T) {
	loader, _ := newTestLoader(t)

	value, err := loader.RequireFromString("module.exports = 42", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exported := value.Export(); exported != int64(42) {
		t.Fatalf("expected 42, got %v", exported)
	}
}

func TestRequireExportsProperties(t *testing.T) {
	loader, _ := newTestLoader(t)

	value, err := loader.RequireFromString("exports.a = 1; exports.b = 'two';", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exported, ok := value.Export().(map[string]interface{})
	if !ok {
		t.Fatalf("expected object exports, got %T", value.Export())
	}
	if len(exported) != 2 {
		t.Fatalf("expected exactly two properties, got %v", exported)
	}
	if exported["a"] != int64(1) || exported["b"] != "two" {
		t.Fatalf("unexpected exports: %v", exported)
	}
}

func TestRequireModuleExportsReplacement(t *testing.T) {
	loader, _ := newTestLoader(t)

	value, err := loader.RequireFromString(
		"module.exports = { x: 1 }; exports.ignored = true;", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exported := value.Export().(map[string]interface{})
	if len(exported) != 1 || exported["x"] != int64(1) {
		t.Fatalf("wholesale replacement lost, got %v", exported)
	}
}

func TestRequireRelativeResolution(t *testing.T) {
	loader, fs := newTestLoader(t)
	writeScript(t, fs, "/app/lib/x.js", "module.exports = 'from-x'")

	value, err := loader.RequireFromString("module.exports = require('./x')", &Options{
		Dirname: "lib",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.Export() != "from-x" {
		t.Fatalf("expected relative require against Dirname, got %v", value.Export())
	}
}

func TestRequireJSONModule(t *testing.T) {
	loader, fs := newTestLoader(t)
	writeScript(t, fs, "/app/config.json", `{"name":"demo","port":8080}`)

	value, err := loader.RequireFromString("module.exports = require('./config.json').port", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Integral JSON numbers come back from the engine as int64.
	if value.Export() != int64(8080) {
		t.Fatalf("expected parsed JSON value, got %v", value.Export())
	}
}

func TestRequireNodeModulesChain(t *testing.T) {
	loader, fs := newTestLoader(t)
	writeScript(t, fs, "/app/node_modules/leftpad/index.js", "module.exports = 'pkg'")

	value, err := loader.RequireFromString("module.exports = require('leftpad')", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.Export() != "pkg" {
		t.Fatalf("expected package resolution through node_modules, got %v", value.Export())
	}
}

func TestRequireGlobals(t *testing.T) {
	loader, _ := newTestLoader(t)

	value, err := loader.RequireFromString("module.exports = foo", &Options{
		Globals: map[string]interface{}{"foo": 123},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.Export() != int64(123) {
		t.Fatalf("expected injected global, got %v", value.Export())
	}

	if _, err := loader.RequireFromString("module.exports = foo", nil); err == nil {
		t.Fatal("expected reference error without injected global")
	}
}

func TestRequireGlobalsCannotShadowModuleBindings(t *testing.T) {
	loader, _ := newTestLoader(t)

	value, err := loader.RequireFromString("module.exports = typeof module", &Options{
		Globals: map[string]interface{}{"module": "not-a-module"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.Export() != "object" {
		t.Fatalf("module binding must stay fixed, got %v", value.Export())
	}
}

func TestRequireDirnameFilenameBindings(t *testing.T) {
	loader, _ := newTestLoader(t)

	value, err := loader.RequireFromString("module.exports = [__dirname, __filename]", &Options{
		Filename: "script.js",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exported := value.Export().([]interface{})
	if exported[0] != "/app" || exported[1] != "/app/script.js" {
		t.Fatalf("unexpected file bindings: %v", exported)
	}
}

func TestRequireExecutionErrorPropagates(t *testing.T) {
	loader, _ := newTestLoader(t)

	_, err := loader.RequireFromString("throw new Error('Boom!')", &Options{
		Filename: "boom.js",
	})
	if err == nil {
		t.Fatal("expected execution error")
	}
	if !strings.Contains(err.Error(), "Boom!") {
		t.Fatalf("original message lost: %v", err)
	}
	if !strings.Contains(err.Error(), "boom.js") {
		t.Fatalf("stack does not reference the synthetic filename: %v", err)
	}
}

func TestRequireUnresolvableSpecifier(t *testing.T) {
	loader, _ := newTestLoader(t)

	_, err := loader.RequireFromString("require('./missing')", nil)
	if err == nil {
		t.Fatal("expected resolution error")
	}
	if !strings.Contains(err.Error(), "cannot resolve specifier './missing'") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireEsmOnlyLoader(t *testing.T) {
	loader, _ := newTestLoader(t, EsmOnly())

	_, err := loader.RequireFromString("module.exports = 1", nil)
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "ImportFromString") {
		t.Fatalf("usage error must name the alternative entry point: %v", err)
	}
}

func TestRequireLoadedFlag(t *testing.T) {
	loader, _ := newTestLoader(t)

	value, err := loader.RequireFromString("module.exports = module.loaded", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.Export() != false {
		t.Fatal("loaded flag must be false while the record executes")
	}
}

func TestRequireUseCurrentGlobal(t *testing.T) {
	loader, _ := newTestLoader(t)

	if _, err := loader.RequireFromString("globalThis.shared = 5", &Options{
		UseCurrentGlobal: true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value, err := loader.RequireFromString("module.exports = globalThis.shared", &Options{
		UseCurrentGlobal: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.Export() != int64(5) {
		t.Fatalf("shared global object not shared, got %v", value.Export())
	}

	isolated, err := loader.RequireFromString("module.exports = typeof globalThis.shared", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isolated.Export() != "undefined" {
		t.Fatal("fresh context must not see the shared global object")
	}
}

func TestConcurrentRequiresDoNotInterfere(t *testing.T) {
	loader, _ := newTestLoader(t)

	var wg sync.WaitGroup
	results := make([]interface{}, 2)
	failures := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			value, err := loader.RequireFromString("module.exports = marker", &Options{
				Globals: map[string]interface{}{"marker": n},
			})
			if err != nil {
				failures[n] = err
				return
			}
			results[n] = value.Export()
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if failures[i] != nil {
			t.Fatalf("call %d failed: %v", i, failures[i])
		}
		if results[i] != int64(i) {
			t.Fatalf("call %d observed foreign state: %v", i, results[i])
		}
	}
}

func TestConcurrentUseCurrentGlobalSerialized(t *testing.T) {
	loader, _ := newTestLoader(t)

	const calls = 8
	var wg sync.WaitGroup
	failures := make([]error, calls)

	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := loader.RequireFromString(
				"globalThis.hits = (globalThis.hits || 0) + 1; module.exports = globalThis.hits",
				&Options{UseCurrentGlobal: true})
			failures[n] = err
		}(i)
	}
	wg.Wait()

	for i, err := range failures {
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	value, err := loader.RequireFromString("module.exports = globalThis.hits", &Options{
		UseCurrentGlobal: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.Export() != int64(calls) {
		t.Fatalf("shared runtime calls must serialize, got %v hits", value.Export())
	}
}
