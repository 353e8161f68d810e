package modstring

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	uuid "github.com/satori/go.uuid"
	"github.com/spf13/afero"
)

func fileExists(fs afero.Fs, filename string) bool {
	if exists, err := afero.Exists(fs, filename); err == nil {
		return exists
	}
	return false
}

// generateRandomIdentifier produces a name unique enough to avoid any
// host-level cache collision between concurrent loads sharing a directory.
func generateRandomIdentifier(prefix string) string {
	id := uuid.NewV4()
	return fmt.Sprintf("%s___%s", prefix, strings.Replace(id.String(), "-", "", -1))
}

// fileURL resolves a path to the absolute file URL string used as a linked
// module's identifier.
func fileURL(path string) string {
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
