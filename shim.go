package modstring

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// reexportShimSource generates the source text of a re-export submodule: a
// tiny module that reads the namespace a specifier resolved to out of the
// hidden link slot and forwards every exported binding name back out. A
// default export is re-exported as default, every other name as a named
// binding. Values are snapshots taken when the shim evaluates; export names
// that are not plain identifiers cannot be forwarded this way and are
// skipped.
func reexportShimSource(slotKey, specifier string, names []string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "const $ns = globalThis[%q][%q];\n", slotKey, specifier)
	for i, name := range names {
		if name == "default" {
			builder.WriteString("export default $ns[\"default\"];\n")
			continue
		}
		if !identifierPattern.MatchString(name) {
			continue
		}
		fmt.Fprintf(&builder, "const $binding%d = $ns[%q];\nexport { $binding%d as %s };\n", i, name, i, name)
	}
	return builder.String()
}
