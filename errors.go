package modstring

import (
	"fmt"
	"strings"

	"github.com/go-errors/errors"
)

// Error kinds, checked with errors.Is. Execution, resolution and link
// failures surface as the underlying engine or loader errors untouched,
// nothing is swallowed except the single translation below.
var (
	// ErrUsage marks RequireFromString being called on a loader that runs
	// in ES module mode.
	ErrUsage = errors.Errorf("usage error")

	// ErrUnsupportedSyntax marks ES module syntax handed to an entry point
	// that cannot execute it directly.
	ErrUnsupportedSyntax = errors.Errorf("unsupported module syntax")

	// ErrResolve marks a specifier that resolves to neither a file nor a
	// registered host module.
	ErrResolve = errors.Errorf("unresolvable specifier")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() error {
	return e.kind
}

func usageError(msg string) error {
	return &kindError{kind: ErrUsage, msg: msg}
}

func resolveError(specifier, dir string) error {
	return &kindError{
		kind: ErrResolve,
		msg:  fmt.Sprintf("cannot resolve specifier '%s' from %s", specifier, dir),
	}
}

// moduleSyntaxError is the signal that required source is itself formatted
// as an ES module and was refused by the synchronous CommonJS path. The
// message fragment doubles as the detection key once the error has traveled
// through the engine as a thrown value and lost its Go type.
type moduleSyntaxError struct {
	filename string
}

const moduleSyntaxSignal = "is formatted as an ES module"

func (e *moduleSyntaxError) Error() string {
	return fmt.Sprintf("%s %s and cannot be executed as CommonJS", e.filename, moduleSyntaxSignal)
}

func isModuleSyntaxSignal(err error) bool {
	var syntaxErr *moduleSyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	return strings.Contains(err.Error(), moduleSyntaxSignal)
}

// translateModuleSyntaxError rewrites the "source is an ES module" signal
// into a directive naming the entry point that can actually handle it. Any
// other error passes through unchanged; when the signal cannot be recognized
// the translator fails open rather than swallowing unrelated errors.
func translateModuleSyntaxError(err error, sync bool) error {
	if err == nil || !isModuleSyntaxSignal(err) {
		return err
	}

	if sync {
		return &kindError{
			kind: ErrUnsupportedSyntax,
			msg: "ES module syntax cannot be executed by ImportFromStringSync, " +
				"use ImportFromString instead or replace the static import with a dynamic import()",
		}
	}
	return &kindError{
		kind: ErrUnsupportedSyntax,
		msg: "ES module syntax cannot be executed without module record support, " +
			"use an engine build that provides it or replace the static import with a dynamic import()",
	}
}
