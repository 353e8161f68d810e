package modstring

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/go-errors/errors"
	goja "github.com/grafana/sobek"
)

// importMetaBanner emulates the pieces of import.meta that cannot survive
// the conversion to CommonJS: url is backed by the file URL of the synthetic
// filename, resolve is unavailable in transpiled mode and says so.
func importMetaBanner(filename string) string {
	return fmt.Sprintf(`"use strict";`+
		`var __import_meta_url = %q;`+
		`var __import_meta_resolve = function () { throw new Error("import.meta.resolve is not supported in transpiled mode, use ImportFromString with module record support or provide your own polyfill"); };`,
		fileURL(filename))
}

// transformCommonJS invokes the transpiler collaborator with a forced
// CommonJS output format. Caller supplied banner and define entries are
// preserved alongside the required shims, never instead of them.
func transformCommonJS(code, filename string, options *TransformOptions) (string, error) {
	topts := api.TransformOptions{}
	if options != nil {
		topts = *options
	}
	topts.Format = api.FormatCommonJS

	banner := importMetaBanner(filename)
	if topts.Banner != "" {
		banner = banner + "\n" + topts.Banner
	}
	topts.Banner = banner

	if topts.Define == nil {
		topts.Define = make(map[string]string)
	}
	topts.Define["import.meta.url"] = "__import_meta_url"
	topts.Define["import.meta.resolve"] = "__import_meta_resolve"

	return runTransform(code, topts)
}

// transformESModule pre-transforms source for the linked path, requesting ES
// module output so the module record still sees import and export syntax.
func transformESModule(code string, options *TransformOptions) (string, error) {
	topts := *options
	topts.Format = api.FormatESModule
	return runTransform(code, topts)
}

func runTransform(code string, options api.TransformOptions) (string, error) {
	result := api.Transform(code, options)
	if len(result.Errors) > 0 {
		return "", transformError(result.Errors)
	}
	return string(result.Code), nil
}

func transformError(messages []api.Message) error {
	message := messages[0]
	location := ""
	if message.Location != nil {
		location = fmt.Sprintf(" at line %d, column %d", message.Location.Line, message.Location.Column)
	}
	return errors.Errorf("transform failed%s: %s", location, message.Text)
}

// importTranspiled is the transpilation fallback path behind both
// ImportFromStringSync and, when no module record support is available,
// ImportFromString: wrap and convert the source to CommonJS, then delegate
// to the CommonJS synthesizer. The sync flag only changes which alternative
// the translated error points the caller at.
func (l *Loader) importTranspiled(ctx context.Context, code string, options *Options, sync bool) (goja.Value, error) {
	_, filename := l.effectivePaths(options)

	transformed, err := transformCommonJS(code, filename, options.Transform)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ectx, err := l.buildContext(options, false)
	if err != nil {
		return nil, err
	}
	defer ectx.release()

	value, err := l.loadCommonJS(ectx, transformed, filename)
	if err != nil {
		return nil, translateModuleSyntaxError(err, sync)
	}
	return value, nil
}
