package modstring

import (
	"path/filepath"

	goja "github.com/grafana/sobek"
)

type moduleOrigin struct {
	filename string
	path     string
}

func (o *moduleOrigin) Filename() string {
	return o.filename
}

func (o *moduleOrigin) Path() string {
	return o.path
}

func (o *moduleOrigin) FullPath() string {
	return filepath.Join(o.path, o.filename)
}

// moduleRecord is the synthetic CommonJS module a single load executes
// against. A record is created immediately before execution and discarded
// after its exports have been read back, it is never cached or reused.
type moduleRecord struct {
	loader  *Loader
	vm      *goja.Runtime
	origin  *moduleOrigin
	exports *goja.Object
	module  *goja.Object
	paths   []string
	loaded  bool
}

func newModuleRecord(loader *Loader, vm *goja.Runtime, filename string) *moduleRecord {
	origin := &moduleOrigin{
		filename: filepath.Base(filename),
		path:     filepath.Dir(filename),
	}

	record := &moduleRecord{
		loader:  loader,
		vm:      vm,
		origin:  origin,
		exports: vm.NewObject(),
		// Search paths are inherited from the record's own directory chain
		// plus the loader base, mirroring how a module loaded from disk at
		// that location would resolve packages.
		paths: nodeModulePaths(origin.Path(), loader.baseDir),
	}

	module := vm.NewObject()
	module.Set("id", origin.FullPath())
	module.Set("filename", origin.FullPath())
	module.Set("path", origin.Path())
	module.Set("paths", record.paths)
	module.Set("exports", record.exports)
	module.Set("loaded", false)
	module.Set("require", record.requireFunction())
	record.module = module

	return record
}

// markLoaded flips the record's loaded flag after execution has returned
// normally. Observable by re-entrant code through the module handle.
func (r *moduleRecord) markLoaded() {
	r.loaded = true
	r.module.Set("loaded", true)
}

// finalExports reads module.exports back off the handle, honoring wholesale
// replacement through "module.exports = ..." by executed code.
func (r *moduleRecord) finalExports() goja.Value {
	return r.module.Get("exports")
}

// requireFunction returns the require binding scoped to the record's
// location, so relative specifiers in executed code resolve against the
// record's directory and not against the caller's.
func (r *moduleRecord) requireFunction() goja.Value {
	return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		value, err := r.loader.loadForRequire(r, specifier)
		if err != nil {
			panic(r.vm.NewGoError(err))
		}
		return value
	})
}
