package os

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/conda-tools/condactl/pkg/configs/rwfs"
)

var DefaultFilePerm = fs.FileMode(0o644)

// FS implements rwfs.FS against a directory on disk.
type FS struct {
	rootDir string
}

var _ rwfs.FS = (*FS)(nil)

func DirFS(dir string) rwfs.FS {
	return FS{rootDir: dir}
}

func (fsys FS) Open(name string) (fs.File, error) {
	return os.Open(fsys.fullPath(name))
}

func (fsys FS) OpenAsWritable(name string) (rwfs.File, error) {
	return os.OpenFile(fsys.fullPath(name), os.O_RDWR, DefaultFilePerm)
}

func (fsys FS) Truncate(name string, size int64) error {
	return os.Truncate(fsys.fullPath(name), size)
}

func (fsys FS) Create(name string) (rwfs.File, error) {
	p := fsys.fullPath(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, DefaultFilePerm)
}

func (fsys FS) fullPath(name string) string {
	return filepath.Join(fsys.rootDir, name)
}
