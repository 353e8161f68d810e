package hostmods

import (
	"os"

	"github.com/go-errors/errors"
	"github.com/spf13/afero"

	modstring "github.com/mdevils/module-from-string"
)

type filesModule struct {
	fs afero.Fs
}

// NewFilesModule provides the "files" module on top of the given
// filesystem. All paths are interpreted by that filesystem, which does not
// have to be the one the owning loader resolves modules through.
func NewFilesModule(fs afero.Fs) modstring.HostModule {
	return &filesModule{fs: fs}
}

func (*filesModule) Name() string {
	return "files"
}

func (f *filesModule) Exports() map[string]interface{} {
	return map[string]interface{}{
		"readFile": func(path string) (string, error) {
			data, err := afero.ReadFile(f.fs, path)
			if err != nil {
				return "", errors.New(err)
			}
			return string(data), nil
		},
		"writeFile": func(path, content string) error {
			if err := afero.WriteFile(f.fs, path, []byte(content), os.ModePerm); err != nil {
				return errors.New(err)
			}
			return nil
		},
		"exists": func(path string) bool {
			exists, err := afero.Exists(f.fs, path)
			return err == nil && exists
		},
		"readDir": func(path string) ([]string, error) {
			infos, err := afero.ReadDir(f.fs, path)
			if err != nil {
				return nil, errors.New(err)
			}
			names := make([]string, len(infos))
			for i, info := range infos {
				names[i] = info.Name()
			}
			return names, nil
		},
	}
}
