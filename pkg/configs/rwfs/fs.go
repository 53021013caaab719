package rwfs

import (
	"io"
	"io/fs"
)

// FS is a filesystem that supports writing as well as reading. Index-managed
// documents are read through Open and written back through OpenAsWritable,
// Truncate and Create, so implementations can decide whether writes reach
// disk (os) or stay in memory (memfs).
type FS interface {
	Open(name string) (fs.File, error)
	OpenAsWritable(name string) (File, error)
	Truncate(name string, size int64) error
	Create(name string) (File, error)
}

type File interface {
	fs.File
	io.Writer
}
