package hostmods

import (
	"path"

	modstring "github.com/mdevils/module-from-string"
)

type pathModule struct{}

// NewPathModule provides the "path" module with the slash-separated path
// helpers scripts usually expect.
func NewPathModule() modstring.HostModule {
	return &pathModule{}
}

func (*pathModule) Name() string {
	return "path"
}

func (*pathModule) Exports() map[string]interface{} {
	return map[string]interface{}{
		"join": func(parts ...string) string {
			return path.Join(parts...)
		},
		"dirname":  path.Dir,
		"basename": path.Base,
		"extname":  path.Ext,
		"isAbsolute": func(p string) bool {
			return path.IsAbs(p)
		},
		"normalize": path.Clean,
	}
}
