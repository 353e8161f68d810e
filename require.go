package modstring

import (
	"encoding/json"
	"strings"

	"github.com/apex/log"
	"github.com/go-errors/errors"
	goja "github.com/grafana/sobek"
	"github.com/spf13/afero"
)

// The wrapper stays on a single line ahead of the source so reported line
// numbers keep matching the executed text.
const (
	cjsPrelude  = "(function (exports, require, module, __filename, __dirname) { "
	cjsEpilogue = "\n});"
)

// loadCommonJS is the CommonJS synthesizer: it fabricates a fresh module
// record for the synthetic filename, executes the source against it inside
// the given context and returns the record's final exports. Errors thrown by
// the executed source propagate unmodified, stack traces reference the
// synthetic filename and the originating line.
func (l *Loader) loadCommonJS(ectx *executionContext, code, filename string) (goja.Value, error) {
	record := newModuleRecord(l, ectx.vm, filename)
	log.Debugf("Loader: Executing synthetic module %s", filename)
	return l.executeRecord(record, code)
}

func (l *Loader) executeRecord(record *moduleRecord, source string) (goja.Value, error) {
	program, err := compileCommonJS(record.origin.FullPath(), source)
	if err != nil {
		return nil, err
	}

	initializer, err := record.vm.RunProgram(program)
	if err != nil {
		return nil, err
	}

	var call goja.Callable
	if err := record.vm.ExportTo(initializer, &call); err != nil {
		return nil, errors.New(err)
	}

	// exports and module.exports start out as the same object reference, so
	// both accretion onto exports and wholesale replacement work.
	_, err = call(goja.Undefined(),
		record.exports,
		record.module.Get("require"),
		record.module,
		record.vm.ToValue(record.origin.FullPath()),
		record.vm.ToValue(record.origin.Path()))
	if err != nil {
		return nil, err
	}

	record.markLoaded()
	return record.finalExports(), nil
}

// compileCommonJS compiles wrapped source in script mode. When compilation
// fails but the bare source parses cleanly as a module record, the failure
// is reported as the ES module signal instead of a plain syntax error.
func compileCommonJS(filename, source string) (*goja.Program, error) {
	program, err := goja.Compile(filename, cjsPrelude+source+cjsEpilogue, false)
	if err != nil {
		if looksLikeModule(filename, source) {
			return nil, &moduleSyntaxError{filename: filename}
		}
		return nil, err
	}
	return program, nil
}

func looksLikeModule(filename, source string) bool {
	_, err := goja.ParseModule(filename, source, unreachableResolver)
	return err == nil
}

func unreachableResolver(_ interface{}, specifier string) (goja.ModuleRecord, error) {
	return nil, errors.Errorf("unexpected module resolution of %s during parse", specifier)
}

// loadForRequire serves a nested require call issued by executed source.
// Host modules surface as their exports object, JSON files parse into plain
// values, everything else synthesizes a nested record executed in the same
// runtime. No caching happens here, repeated requires re-execute.
func (l *Loader) loadForRequire(parent *moduleRecord, specifier string) (goja.Value, error) {
	resolved, err := l.resolve(parent.origin.Path(), parent.paths, specifier)
	if err != nil {
		return nil, err
	}

	if resolved.host != nil {
		return parent.vm.ToValue(resolved.host.Exports()), nil
	}

	data, err := afero.ReadFile(l.fs, resolved.path)
	if err != nil {
		return nil, errors.New(err)
	}

	if strings.HasSuffix(resolved.path, ".json") {
		var value interface{}
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, errors.New(err)
		}
		return parent.vm.ToValue(value), nil
	}

	record := newModuleRecord(l, parent.vm, resolved.path)
	log.Debugf("Loader: Requiring nested module %s", resolved.path)
	return l.executeRecord(record, string(data))
}
