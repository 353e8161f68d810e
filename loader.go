package modstring

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/go-errors/errors"
	goja "github.com/grafana/sobek"
	"github.com/spf13/afero"
)

// Loader owns the ambient pieces every load needs: the base directory used
// when no Dirname is given, the filesystem nested specifiers resolve through,
// the registry of host modules reachable by bare specifiers and the shared
// runtime behind UseCurrentGlobal. Loads themselves stay stateless, a loader
// never caches a synthesized module record.
type Loader struct {
	baseDir       string
	fs            afero.Fs
	esmOnly       bool
	transpileOnly bool
	hostModules   map[string]HostModule

	mu       sync.Mutex
	sharedMu sync.Mutex
	sharedVM *goja.Runtime
}

type LoaderOption func(*Loader)

// WithFilesystem mounts fs as the filesystem all nested require and import
// resolution reads through.
func WithFilesystem(fs afero.Fs) LoaderOption {
	return func(l *Loader) {
		l.fs = fs
	}
}

// WithHostModules registers natively implemented modules that bare
// specifiers resolve to.
func WithHostModules(modules ...HostModule) LoaderOption {
	return func(l *Loader) {
		for _, module := range modules {
			l.hostModules[module.Name()] = module
		}
	}
}

// EsmOnly puts the loader into ES module mode: RequireFromString becomes
// unavailable and fails immediately with a usage error.
func EsmOnly() LoaderOption {
	return func(l *Loader) {
		l.esmOnly = true
	}
}

// TranspileOnly disables the linked module record bridge even when the
// engine supports it, forcing every import through the transpilation path.
func TranspileOnly() LoaderOption {
	return func(l *Loader) {
		l.transpileOnly = true
	}
}

func New(baseDir string, options ...LoaderOption) (*Loader, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("given base directory cannot be empty when creating a new loader")
	}

	if !filepath.IsAbs(baseDir) {
		absBaseDir, err := filepath.Abs(baseDir)
		if err != nil {
			return nil, errors.New(err)
		}
		baseDir = absBaseDir
	}

	loader := &Loader{
		baseDir:     baseDir,
		fs:          afero.NewOsFs(),
		hostModules: make(map[string]HostModule),
	}

	for _, option := range options {
		option(loader)
	}

	log.Debugf("Loader: Created new loader with base directory %s", baseDir)
	return loader, nil
}

func (l *Loader) BaseDir() string {
	return l.baseDir
}

func (l *Loader) Filesystem() afero.Fs {
	return l.fs
}

// RegisterHostModule makes module available to bare specifiers after
// construction. Later registrations shadow earlier ones of the same name.
func (l *Loader) RegisterHostModule(module HostModule) {
	l.hostModules[module.Name()] = module
}

func (l *Loader) RequireFromString(code string, options *Options) (goja.Value, error) {
	if l.esmOnly {
		return nil, usageError("RequireFromString is not available on a loader running in ES module mode, use ImportFromString instead")
	}

	opts := normalizeOptions(options)
	_, filename := l.effectivePaths(opts)
	ectx, err := l.buildContext(opts, false)
	if err != nil {
		return nil, err
	}
	defer ectx.release()
	return l.loadCommonJS(ectx, code, filename)
}

func (l *Loader) ImportFromString(ctx context.Context, code string, options *Options) (goja.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.selectExecutor().importFromString(ctx, l, code, normalizeOptions(options))
}

func (l *Loader) ImportFromStringSync(code string, options *Options) (goja.Value, error) {
	return l.importTranspiled(context.Background(), code, normalizeOptions(options), true)
}

// CreateRequire pre-binds options and returns a call-compatible require
// function. Per-call options shadow the pre-bound ones key by key.
func (l *Loader) CreateRequire(options *Options) func(code string, callOptions *Options) (goja.Value, error) {
	return func(code string, callOptions *Options) (goja.Value, error) {
		return l.RequireFromString(code, mergeOptions(options, callOptions))
	}
}

// CreateImport pre-binds options for ImportFromString.
func (l *Loader) CreateImport(options *Options) func(ctx context.Context, code string, callOptions *Options) (goja.Value, error) {
	return func(ctx context.Context, code string, callOptions *Options) (goja.Value, error) {
		return l.ImportFromString(ctx, code, mergeOptions(options, callOptions))
	}
}

// CreateImportSync pre-binds options for ImportFromStringSync.
func (l *Loader) CreateImportSync(options *Options) func(code string, callOptions *Options) (goja.Value, error) {
	return func(code string, callOptions *Options) (goja.Value, error) {
		return l.ImportFromStringSync(code, mergeOptions(options, callOptions))
	}
}

// effectivePaths determines the directory and the synthetic filename of a
// load: the explicit values when given, the loader base directory and a
// generated unique name otherwise.
func (l *Loader) effectivePaths(options *Options) (string, string) {
	dir := options.Dirname
	if dir == "" {
		dir = l.baseDir
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(l.baseDir, dir)
	}

	filename := options.Filename
	if filename == "" {
		filename = generateRandomIdentifier("module_from_string") + ".js"
	}
	if filepath.IsAbs(filename) {
		return filepath.Dir(filename), filepath.Clean(filename)
	}
	return dir, filepath.Join(dir, filename)
}

// sharedRuntime returns the runtime backing UseCurrentGlobal, creating it on
// first use. The runtime is single-threaded; execution on it is serialized
// separately by buildContext through sharedMu.
func (l *Loader) sharedRuntime() *goja.Runtime {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sharedVM == nil {
		l.sharedVM = goja.New()
		l.installDefaults(l.sharedVM)
	}
	return l.sharedVM
}
