package modstring

import (
	"context"
	"sync"

	"github.com/apex/log"
	goja "github.com/grafana/sobek"
)

var (
	moduleRecordsOnce      sync.Once
	moduleRecordsAvailable bool
)

// hostSupportsModuleRecords reports whether the engine can construct and
// link source text module records. The capability is probed exactly once by
// parsing a trivial module; engine builds without the support make the probe
// fail and every import falls back to the transpilation path.
func hostSupportsModuleRecords() bool {
	moduleRecordsOnce.Do(func() {
		defer func() {
			if recover() != nil {
				moduleRecordsAvailable = false
			}
		}()
		_, err := goja.ParseModule("module_from_string_probe.js", "export {}", unreachableResolver)
		moduleRecordsAvailable = err == nil
		if !moduleRecordsAvailable {
			log.Debugf("Loader: Engine has no module record support, imports use the transpilation path")
		}
	})
	return moduleRecordsAvailable
}

// executor is the strategy behind ImportFromString. Exactly one of the two
// implementations is selected at the top of each call.
type executor interface {
	importFromString(ctx context.Context, loader *Loader, code string, options *Options) (goja.Value, error)
}

type linkedExecutor struct{}

func (linkedExecutor) importFromString(ctx context.Context, loader *Loader, code string, options *Options) (goja.Value, error) {
	return loader.importLinked(ctx, code, options)
}

type fallbackExecutor struct{}

func (fallbackExecutor) importFromString(ctx context.Context, loader *Loader, code string, options *Options) (goja.Value, error) {
	return loader.importTranspiled(ctx, code, options, false)
}

func (l *Loader) selectExecutor() executor {
	if !l.transpileOnly && hostSupportsModuleRecords() {
		return linkedExecutor{}
	}
	return fallbackExecutor{}
}
