package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/chainguard-dev/clog/slogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conda-tools/condactl/pkg/build"
	"github.com/conda-tools/condactl/pkg/tar"
)

// writeArtifact crafts a minimal package archive under the channel and
// returns its sha256.
func writeArtifact(t *testing.T, channel string, entry build.IndexEntry) string {
	t.Helper()

	stage := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(stage, "info"), 0o755))
	doc, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(stage, "info", "index.json"), doc, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(stage, "site-packages", entry.Name), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stage, "site-packages", entry.Name, "__init__.py"), []byte("pass\n"), 0o644))

	archive := bytes.Buffer{}
	require.NoError(t, tar.Create(&archive, stage))

	dir := filepath.Join(channel, entry.Subdir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	name := fmt.Sprintf("%s-%s-%s.tar.gz", entry.Name, entry.Version, entry.Build)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), archive.Bytes(), 0o644))

	return fmt.Sprintf("%x", sha256.Sum256(archive.Bytes()))
}

func TestSubdir(t *testing.T) {
	ctx := slogtest.Context(t)
	channel := t.TempDir()

	casqDigest := writeArtifact(t, channel, build.IndexEntry{
		Name:    "casq",
		Version: "1.2.0",
		Build:   "py_0",
		Depends: []string{"loguru", "networkx >=2.4", "python-libsbml", "python >=3.7"},
		Subdir:  "noarch",
		Noarch:  "python",
		License: "GPL-3.0-or-later",
	})
	writeArtifact(t, channel, build.IndexEntry{
		Name:    "casq-dashboard",
		Version: "0.3.1",
		Build:   "py_0",
		Depends: []string{"casq", "flask >=2.0", "python >=3.8"},
		Subdir:  "noarch",
		Noarch:  "python",
	})

	repodata, err := Subdir(ctx, channel, "noarch")
	require.NoError(t, err)

	assert.Equal(t, "noarch", repodata.Info.Subdir)
	assert.Equal(t, 1, repodata.RepodataVersion)
	assert.Equal(t, []string{
		"casq-1.2.0-py_0.tar.gz",
		"casq-dashboard-0.3.1-py_0.tar.gz",
	}, repodata.Filenames())

	rec := repodata.Packages["casq-1.2.0-py_0.tar.gz"]
	assert.Equal(t, "casq", rec.Name)
	assert.Equal(t, "1.2.0", rec.Version)
	assert.Equal(t, "py_0", rec.Build)
	assert.Equal(t, "GPL-3.0-or-later", rec.License)
	assert.Equal(t, casqDigest, rec.SHA256)
	assert.Len(t, rec.MD5, 32)
	assert.Positive(t, rec.Size)
}

func TestSubdir_MissingDir(t *testing.T) {
	ctx := slogtest.Context(t)
	_, err := Subdir(ctx, t.TempDir(), "noarch")
	require.Error(t, err)
}

func TestSubdir_NotAnArchive(t *testing.T) {
	ctx := slogtest.Context(t)
	channel := t.TempDir()
	dir := filepath.Join(channel, "noarch")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk-1.0-0.tar.gz"), []byte("not gzip"), 0o644))

	_, err := Subdir(ctx, channel, "noarch")
	require.ErrorContains(t, err, "indexing junk-1.0-0.tar.gz")
}

func TestWriteChannelRoundTrip(t *testing.T) {
	ctx := slogtest.Context(t)
	channel := t.TempDir()

	writeArtifact(t, channel, build.IndexEntry{
		Name: "casq", Version: "1.2.0", Build: "py_0", Subdir: "noarch", Noarch: "python",
	})
	writeArtifact(t, channel, build.IndexEntry{
		Name: "python-libsbml", Version: "5.20.2", Build: "0", Subdir: "linux-64",
	})

	require.NoError(t, WriteChannel(ctx, channel))

	noarch, err := Fetch(ctx, filepath.Join(channel, "noarch", Filename))
	require.NoError(t, err)
	assert.Equal(t, []string{"casq-1.2.0-py_0.tar.gz"}, noarch.Filenames())

	linux, err := Fetch(ctx, filepath.Join(channel, "linux-64", Filename))
	require.NoError(t, err)
	assert.Equal(t, "linux-64", linux.Info.Subdir)
	assert.Equal(t, []string{"python-libsbml-5.20.2-0.tar.gz"}, linux.Filenames())
}

func TestFetch_HTTP(t *testing.T) {
	ctx := slogtest.Context(t)
	repodata := &Repodata{
		Info:            Info{Subdir: "noarch"},
		Packages:        map[string]PackageRecord{},
		RepodataVersion: 1,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(repodata))
	}))
	defer server.Close()

	got, err := Fetch(ctx, server.URL+"/noarch/repodata.json")
	require.NoError(t, err)
	assert.Equal(t, "noarch", got.Info.Subdir)
}

func TestFetch_HTTPError(t *testing.T) {
	ctx := slogtest.Context(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := Fetch(ctx, server.URL+"/noarch/repodata.json")
	require.ErrorContains(t, err, "500")
}

func TestPURL(t *testing.T) {
	rec := PackageRecord{
		IndexEntry: build.IndexEntry{
			Name: "casq", Version: "1.2.0", Build: "py_0", Subdir: "noarch",
		},
	}
	assert.Equal(t, "pkg:conda/casq@1.2.0?build=py_0&subdir=noarch", rec.PURL())
}
