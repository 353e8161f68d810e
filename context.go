package modstring

import (
	"fmt"
	"strings"

	"github.com/apex/log"
	goja "github.com/grafana/sobek"
)

// executionContext is the isolated namespace a single load executes in. For
// linked execution it additionally carries the hidden slot mapping import
// specifiers to the namespaces of their host-loaded targets; the slot is
// private machinery and never handed to executed code directly.
type executionContext struct {
	vm *goja.Runtime

	// release gives back the shared runtime after the load finishes. A
	// no-op for fresh contexts.
	release func()

	// linked mode only
	slotKey  string
	linkSlot *goja.Object
	linked   map[string]*goja.Object
}

// buildContext assembles the binding set visible to executed source. Fresh
// contexts see the standard engine globals plus the default host bindings and
// the caller supplied globals, nothing of the caller's own scope leaks in.
// With UseCurrentGlobal the loader's shared global object is used instead.
func (l *Loader) buildContext(options *Options, linked bool) (*executionContext, error) {
	var vm *goja.Runtime
	release := func() {}
	if options.UseCurrentGlobal {
		// Runtimes are not goroutine safe; the whole load holds the lock,
		// not just the lazy creation.
		vm = l.sharedRuntime()
		l.sharedMu.Lock()
		release = l.sharedMu.Unlock
	} else {
		vm = goja.New()
		l.installDefaults(vm)
	}

	// Caller globals go in last so they shadow any same-named default. The
	// fixed file and module bindings cannot be shadowed, they are injected
	// as wrapper parameters after this point.
	for name, value := range options.Globals {
		if err := vm.Set(name, value); err != nil {
			release()
			return nil, err
		}
	}

	ectx := &executionContext{vm: vm, release: release}
	if linked {
		ectx.slotKey = generateRandomIdentifier("__module_from_string_links")
		ectx.linkSlot = vm.NewObject()
		ectx.linked = make(map[string]*goja.Object)
		if err := vm.Set(ectx.slotKey, ectx.linkSlot); err != nil {
			release()
			return nil, err
		}
	}
	return ectx, nil
}

// setLink records the namespace a specifier resolved to, both on the Go side
// and in the slot object the synthesized re-export shims read from. Entries
// are keyed by the original specifier; when two referrers resolve the same
// specifier to different targets the later entry gets a disambiguated key,
// which is returned for use in the shim source.
func (e *executionContext) setLink(specifier string, namespace *goja.Object) (string, error) {
	key := specifier
	if existing, ok := e.linked[key]; ok && existing != namespace {
		key = fmt.Sprintf("%s#%d", specifier, len(e.linked))
	}
	e.linked[key] = namespace
	return key, e.linkSlot.Set(key, namespace)
}

// installDefaults registers the host bindings every fresh context starts
// with. Scripts are expected to use the console API for their output.
func (l *Loader) installDefaults(vm *goja.Runtime) {
	emit := func(write func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, argument := range call.Arguments {
				parts[i] = argument.String()
			}
			write("Script: %s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := vm.NewObject()
	console.Set("log", emit(log.Infof))
	console.Set("info", emit(log.Infof))
	console.Set("debug", emit(log.Debugf))
	console.Set("warn", emit(log.Warnf))
	console.Set("error", emit(log.Errorf))
	vm.Set("console", console)

	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return goja.Null()
	})
}
