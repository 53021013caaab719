package tar

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestCreateUntarRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"casq-1.2.0/setup.py":                    "from setuptools import setup\nsetup()\n",
		"casq-1.2.0/casq/__init__.py":            "",
		"casq-1.2.0/casq/celldesigner2qual.py":   "def main():\n    pass\n",
		"casq-1.2.0/README.md":                   "# CaSQ\n",
	})

	var buf bytes.Buffer
	require.NoError(t, Create(&buf, src))

	dst := t.TempDir()
	require.NoError(t, Untar(bytes.NewReader(buf.Bytes()), dst))

	got, err := os.ReadFile(filepath.Join(dst, "casq-1.2.0", "casq", "celldesigner2qual.py"))
	require.NoError(t, err)
	assert.Equal(t, "def main():\n    pass\n", string(got))
}

func TestSourceRoot(t *testing.T) {
	// Single wrapped directory, the usual sdist layout.
	wrapped := t.TempDir()
	writeTree(t, wrapped, map[string]string{"casq-1.2.0/setup.py": ""})
	root, err := SourceRoot(wrapped)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wrapped, "casq-1.2.0"), root)

	// Files at the top level mean the directory itself is the root.
	flat := t.TempDir()
	writeTree(t, flat, map[string]string{"setup.py": "", "casq/__init__.py": ""})
	root, err = SourceRoot(flat)
	require.NoError(t, err)
	assert.Equal(t, flat, root)
}

func TestExtractFile(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"info/index.json": `{"name": "casq"}`,
		"site-packages/casq/__init__.py": "",
	})

	var buf bytes.Buffer
	require.NoError(t, Create(&buf, src))

	got, err := ExtractFile(bytes.NewReader(buf.Bytes()), "info/index.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "casq"}`, string(got))

	_, err = ExtractFile(bytes.NewReader(buf.Bytes()), "info/missing.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in archive")
}

func TestUntar_RejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../evil.txt",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     4,
	}))
	_, err := tw.Write([]byte("boom"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())

	err = Untar(bytes.NewReader(buf.Bytes()), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tainted")
}

func TestUntar_RejectsUnsupportedTypes(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "dev/null",
		Typeflag: tar.TypeChar,
		Mode:     0o644,
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())

	err := Untar(bytes.NewReader(buf.Bytes()), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported entry type")
}

func TestUntar_Symlink(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "pkg/README",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     5,
	}))
	_, err := tw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "pkg/README.link",
		Typeflag: tar.TypeSymlink,
		Linkname: "README",
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())

	dst := t.TempDir()
	require.NoError(t, Untar(bytes.NewReader(buf.Bytes()), dst))

	got, err := os.ReadFile(filepath.Join(dst, "pkg", "README.link"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}
