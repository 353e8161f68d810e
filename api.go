// Package modstring executes source text as a fully realized module: either
// a CommonJS-style exports object or an ES module namespace, with working
// __dirname/__filename semantics, relative require/import resolution and
// isolation from the caller's own state.
package modstring

import (
	"context"
	"os"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	goja "github.com/grafana/sobek"
)

// TransformOptions is the configuration handed through to the esbuild
// transform collaborator. Format, Banner and Define are partially overridden
// by the loader (Format is forced, Banner and Define are merged with the
// required compatibility shims), everything else passes through untouched.
type TransformOptions = api.TransformOptions

// Options configures a single load. Every call executes against its own
// freshly constructed module record, no two calls ever share one.
type Options struct {
	// Dirname is the base directory for resolution of nested specifiers and
	// for construction of the synthetic filename. Defaults to the loader's
	// base directory.
	Dirname string

	// Filename overrides the generated unique synthetic filename. Relative
	// names are joined under Dirname. Callers sharing an explicit filename
	// between concurrent loads are on their own.
	Filename string

	// Globals are merged into the execution context and may shadow any
	// default binding except the fixed file and module bindings.
	Globals map[string]interface{}

	// UseCurrentGlobal executes against the loader's shared global object
	// instead of a fresh isolated one.
	UseCurrentGlobal bool

	// Transform is passed through to the transpiler collaborator.
	Transform *TransformOptions
}

// HostModule is a natively implemented module that bare import and require
// specifiers resolve to once registered with a loader.
type HostModule interface {
	Name() string
	Exports() map[string]interface{}
}

// RequireFromString executes source text as a CommonJS module against the
// default loader and returns its module.exports value.
func RequireFromString(code string, options *Options) (goja.Value, error) {
	return Default().RequireFromString(code, options)
}

// ImportFromString executes source text in ES module syntax against the
// default loader and returns the resulting module namespace object. The
// linked module record path is used when the engine supports it, otherwise
// the source is transpiled to CommonJS and executed with RequireFromString
// semantics.
func ImportFromString(ctx context.Context, code string, options *Options) (goja.Value, error) {
	return Default().ImportFromString(ctx, code, options)
}

// ImportFromStringSync is the synchronous variant of ImportFromString. It
// always takes the transpilation path; source the transpiler cannot reduce to
// CommonJS fails with an error naming ImportFromString as the alternative.
func ImportFromStringSync(code string, options *Options) (goja.Value, error) {
	return Default().ImportFromStringSync(code, options)
}

var (
	defaultLoader     *Loader
	defaultLoaderOnce sync.Once
)

// Default returns the shared package level loader, rooted at the process
// working directory and backed by the OS filesystem.
func Default() *Loader {
	defaultLoaderOnce.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			wd = string(os.PathSeparator)
		}
		loader, err := New(wd)
		if err != nil {
			panic(err)
		}
		defaultLoader = loader
	})
	return defaultLoader
}

// mergeOptions overlays override on top of base, key by key. Later values
// shadow earlier ones.
func mergeOptions(base, override *Options) *Options {
	if base == nil {
		return override
	}
	if override == nil {
		merged := *base
		return &merged
	}

	merged := *base
	if override.Dirname != "" {
		merged.Dirname = override.Dirname
	}
	if override.Filename != "" {
		merged.Filename = override.Filename
	}
	if override.Transform != nil {
		merged.Transform = override.Transform
	}
	if override.UseCurrentGlobal {
		merged.UseCurrentGlobal = true
	}
	if len(override.Globals) > 0 {
		globals := make(map[string]interface{}, len(base.Globals)+len(override.Globals))
		for name, value := range base.Globals {
			globals[name] = value
		}
		for name, value := range override.Globals {
			globals[name] = value
		}
		merged.Globals = globals
	}
	return &merged
}

func normalizeOptions(options *Options) *Options {
	if options == nil {
		return &Options{}
	}
	return options
}
