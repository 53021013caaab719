package memfs

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/conda-tools/condactl/pkg/configs/rwfs"
)

// memWriteFS reads file content from an underlying fs.FS on first access and
// keeps every write in memory, so the files on disk are never modified.
// Tests use this to run real update flows over fixture directories.
type memWriteFS struct {
	underlying fs.FS
	data       map[string]any // *bytes.Buffer for files, memDir for directories
	mu         sync.RWMutex
}

var _ rwfs.FS = (*memWriteFS)(nil)

// New creates a memWriteFS layered over the provided fs.FS.
func New(underlying fs.FS) rwfs.FS {
	return &memWriteFS{
		underlying: underlying,
		data:       make(map[string]any),
	}
}

func (m *memWriteFS) Open(name string) (fs.File, error) {
	return m.openInternal(name, false)
}

func (m *memWriteFS) OpenAsWritable(name string) (rwfs.File, error) {
	return m.openInternal(name, true)
}

func (m *memWriteFS) openInternal(name string, writable bool) (rwfs.File, error) {
	m.mu.RLock()
	data, exists := m.data[name]
	m.mu.RUnlock()

	if exists {
		switch v := data.(type) {
		case *bytes.Buffer:
			return &memFile{
				name:     name,
				buf:      v,
				reader:   bytes.NewReader(v.Bytes()),
				writable: writable,
			}, nil
		case memDir:
			return &memDirFile{name: name, entries: v.entries}, nil
		default:
			return nil, errors.New("unknown data type in memory")
		}
	}

	file, err := m.underlying.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.IsDir() {
		entries, err := fs.ReadDir(m.underlying, name)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.data[name] = memDir{entries: entries}
		m.mu.Unlock()

		return &memDirFile{name: name, entries: entries}, nil
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, file); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.data[name] = buf
	m.mu.Unlock()

	return &memFile{
		name:     name,
		buf:      buf,
		reader:   bytes.NewReader(buf.Bytes()),
		writable: writable,
	}, nil
}

func (m *memWriteFS) Truncate(name string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.data[name]
	if !exists {
		return errors.New("file not found")
	}

	if buf, ok := data.(*bytes.Buffer); ok {
		buf.Truncate(int(size))
	}

	return nil
}

func (m *memWriteFS) Create(name string) (rwfs.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[name].(memDir); ok {
		return nil, &fs.PathError{Op: "create", Path: name, Err: errors.New("is a directory")}
	}

	buf := new(bytes.Buffer)
	m.data[name] = buf

	return &memFile{
		name:     name,
		buf:      buf,
		reader:   bytes.NewReader(nil),
		writable: true,
	}, nil
}

type memFile struct {
	name     string
	buf      *bytes.Buffer
	reader   *bytes.Reader
	writable bool
}

func (f *memFile) Read(p []byte) (int, error) {
	return f.reader.Read(p)
}

func (f *memFile) Write(p []byte) (int, error) {
	if !f.writable {
		return 0, errors.New("file not opened for writing")
	}
	n, err := f.buf.Write(p)
	f.reader = bytes.NewReader(f.buf.Bytes())
	return n, err
}

func (f *memFile) Close() error {
	_, err := f.reader.Seek(0, io.SeekStart)
	return err
}

func (f *memFile) Stat() (fs.FileInfo, error) {
	return &memFileInfo{name: f.name, size: int64(f.buf.Len())}, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	return f.reader.Seek(offset, whence)
}

type memFileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (mfi *memFileInfo) Name() string       { return mfi.name }
func (mfi *memFileInfo) Size() int64        { return mfi.size }
func (mfi *memFileInfo) Mode() fs.FileMode  { return 0o644 }
func (mfi *memFileInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (mfi *memFileInfo) IsDir() bool        { return mfi.isDir }
func (mfi *memFileInfo) Sys() any           { return nil }

type memDir struct {
	entries []fs.DirEntry
}

type memDirFile struct {
	name    string
	entries []fs.DirEntry
	pos     int
}

func (df *memDirFile) Read(_ []byte) (int, error) {
	return 0, errors.New("cannot read from directory")
}

func (df *memDirFile) Write(_ []byte) (int, error) {
	return 0, errors.New("cannot write to directory")
}

func (df *memDirFile) Close() error { return nil }

func (df *memDirFile) Stat() (fs.FileInfo, error) {
	return &memFileInfo{name: df.name, isDir: true}, nil
}

func (df *memDirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if n <= 0 || n > len(df.entries)-df.pos {
		n = len(df.entries) - df.pos
	}
	entries := df.entries[df.pos : df.pos+n]
	df.pos += n
	return entries, nil
}
