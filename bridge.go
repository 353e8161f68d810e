package modstring

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apex/log"
	"github.com/go-errors/errors"
	goja "github.com/grafana/sobek"
	"github.com/spf13/afero"
)

// importLinked is the linked module bridge: it constructs a genuine source
// text module record for the given code, links it against a resolver that
// loads imported targets through the loader's own machinery and synthesizes
// re-export shim submodules for them, evaluates the graph and returns the
// resulting namespace object.
func (l *Loader) importLinked(ctx context.Context, code string, options *Options) (goja.Value, error) {
	dir, filename := l.effectivePaths(options)

	if options.Transform != nil {
		transformed, err := transformESModule(code, options.Transform)
		if err != nil {
			return nil, err
		}
		code = transformed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ectx, err := l.buildContext(options, true)
	if err != nil {
		return nil, err
	}
	defer ectx.release()

	identifier := fileURL(filename)
	lk := newModuleLinker(l, ectx, dir)

	record, err := goja.ParseModule(identifier, code, lk.resolve)
	if err != nil {
		return nil, errors.New(err)
	}
	lk.urls[record] = identifier

	vm := ectx.vm
	vm.SetGetImportMetaProperties(func(m goja.ModuleRecord) []goja.MetaProperty {
		return []goja.MetaProperty{
			{Key: "url", Value: vm.ToValue(lk.metaURL(m, identifier))},
		}
	})
	vm.SetImportModuleDynamically(func(referencingScriptOrModule interface{}, specifier goja.Value, promiseCapability interface{}) {
		// Resolution happens against the effective directory exactly like a
		// static import, then the host's own import machinery takes over.
		dynamic, resolveErr := lk.resolve(referencingScriptOrModule, specifier.String())
		vm.FinishLoadingImportModule(referencingScriptOrModule, specifier, promiseCapability, dynamic, resolveErr)
	})

	log.Debugf("Loader: Linking module %s", identifier)
	if err := record.Link(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debugf("Loader: Evaluating module %s", identifier)
	promise := record.Evaluate(vm)
	if promise.State() == goja.PromiseStateRejected {
		return nil, evaluationError(identifier, promise.Result())
	}

	return vm.NamespaceObjectFor(record), nil
}

// evaluationError surfaces a rejected module evaluation. When the thrown
// value carries a host-side error, that error stays in the chain so callers
// can still match it with errors.Is; otherwise the thrown value's own stack
// is preferred so the assigned identifier stays visible.
func evaluationError(identifier string, result goja.Value) error {
	if cause := hostErrorOf(result); cause != nil {
		return errors.WrapPrefix(cause, fmt.Sprintf("evaluation of %s failed", identifier), 0)
	}

	message := result.String()
	if object, ok := result.(*goja.Object); ok {
		if stack := object.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			message = stack.String()
		}
	}
	return errors.Errorf("evaluation of %s failed: %s", identifier, message)
}

// hostErrorOf recovers the Go error behind a thrown value when there is one:
// either the value exports an error directly, or it is a GoError carrying
// the original under its value property.
func hostErrorOf(result goja.Value) error {
	if cause, ok := result.Export().(error); ok {
		return cause
	}
	if object, ok := result.(*goja.Object); ok {
		if value := object.Get("value"); value != nil {
			if cause, ok := value.Export().(error); ok {
				return cause
			}
		}
	}
	return nil
}

// moduleLinker resolves the import specifiers encountered while linking one
// top-level record. Loaded targets are memoized by their resolved location
// for the duration of the call, so a dependency shared by several importers
// is parsed, linked and evaluated exactly once per graph and every importer
// links against the same shim record.
type moduleLinker struct {
	loader  *Loader
	ectx    *executionContext
	dir     string
	targets map[string]goja.ModuleRecord
	urls    map[goja.ModuleRecord]string
}

func newModuleLinker(loader *Loader, ectx *executionContext, dir string) *moduleLinker {
	return &moduleLinker{
		loader:  loader,
		ectx:    ectx,
		dir:     dir,
		targets: make(map[string]goja.ModuleRecord),
		urls:    make(map[goja.ModuleRecord]string),
	}
}

// sub derives a linker for a module located in dir. The target memo and the
// record URL table stay shared across the whole graph.
func (lk *moduleLinker) sub(dir string) *moduleLinker {
	return &moduleLinker{
		loader:  lk.loader,
		ectx:    lk.ectx,
		dir:     dir,
		targets: lk.targets,
		urls:    lk.urls,
	}
}

// metaURL answers import.meta.url for the given record: its own identifier
// when the record was parsed by this graph, the top-level identifier
// otherwise.
func (lk *moduleLinker) metaURL(m goja.ModuleRecord, fallback string) string {
	if url, ok := lk.urls[m]; ok {
		return url
	}
	return fallback
}

func (lk *moduleLinker) resolve(_ interface{}, specifier string) (goja.ModuleRecord, error) {
	resolved, err := lk.loader.resolve(lk.dir, nodeModulePaths(lk.dir, lk.loader.baseDir), specifier)
	if err != nil {
		return nil, err
	}

	key := targetKey(resolved)
	if shim, ok := lk.targets[key]; ok {
		return shim, nil
	}

	namespace, shimName, err := lk.loadTarget(resolved, specifier)
	if err != nil {
		return nil, err
	}
	slotEntry, err := lk.ectx.setLink(specifier, namespace)
	if err != nil {
		return nil, errors.New(err)
	}

	source := reexportShimSource(lk.ectx.slotKey, slotEntry, namespace.Keys())
	shim, err := goja.ParseModule(shimName, source, lk.resolve)
	if err != nil {
		return nil, errors.New(err)
	}

	lk.targets[key] = shim
	log.Debugf("Loader: Synthesized re-export shim for %s as %s", specifier, shimName)
	return shim, nil
}

// targetKey identifies a resolved target across referrers: host modules by
// name, files by their resolved path.
func targetKey(resolved *resolution) string {
	if resolved.host != nil {
		return "host:" + resolved.host.Name()
	}
	return resolved.path
}

// loadTarget loads a resolved target: registered host modules surface as
// their exports object, files are parsed, linked and evaluated as modules of
// their own in the same runtime.
func (lk *moduleLinker) loadTarget(resolved *resolution, specifier string) (*goja.Object, string, error) {
	vm := lk.ectx.vm
	if resolved.host != nil {
		namespace := vm.ToValue(resolved.host.Exports()).ToObject(vm)
		return namespace, specifier, nil
	}

	data, err := afero.ReadFile(lk.loader.fs, resolved.path)
	if err != nil {
		return nil, "", errors.New(err)
	}

	subLinker := lk.sub(filepath.Dir(resolved.path))
	subRecord, err := goja.ParseModule(fileURL(resolved.path), string(data), subLinker.resolve)
	if err != nil {
		return nil, "", errors.New(err)
	}
	lk.urls[subRecord] = fileURL(resolved.path)
	if err := subRecord.Link(); err != nil {
		return nil, "", err
	}
	promise := subRecord.Evaluate(vm)
	if promise.State() == goja.PromiseStateRejected {
		return nil, "", evaluationError(resolved.path, promise.Result())
	}

	return vm.NamespaceObjectFor(subRecord), resolved.path, nil
}
