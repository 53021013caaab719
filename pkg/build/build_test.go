package build

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/chainguard-dev/clog/slogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conda-tools/condactl/pkg/buildlog"
	"github.com/conda-tools/condactl/pkg/recipe"
	"github.com/conda-tools/condactl/pkg/render"
	"github.com/conda-tools/condactl/pkg/tar"
)

func resolveRecipe(t *testing.T, name string) *render.Resolved {
	t.Helper()
	res, err := render.Resolve(os.DirFS("testdata/recipes"), name)
	require.NoError(t, err)
	return res
}

func newTestBuild(t *testing.T, res *render.Resolved, opts ...Option) (*Build, string) {
	t.Helper()
	out := t.TempDir()
	opts = append([]Option{
		WithOutDir(out),
		WithWorkDir(t.TempDir()),
		WithCacheDir(t.TempDir()),
		WithScriptOutput(io.Discard),
	}, opts...)
	b, err := New(slogtest.Context(t), res, opts...)
	require.NoError(t, err)
	return b, out
}

func extractFromArtifact(t *testing.T, artifact, name string) []byte {
	t.Helper()
	f, err := os.Open(artifact)
	require.NoError(t, err)
	defer f.Close()
	b, err := tar.ExtractFile(f, name)
	require.NoError(t, err)
	return b
}

func TestBuildPackage(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	b, out := newTestBuild(t, res)

	require.NoError(t, b.BuildPackage(ctx))

	artifact := filepath.Join(out, "noarch", "hello-conda-0.1.0-py_0.tar.gz")
	require.FileExists(t, artifact)

	var index IndexEntry
	require.NoError(t, json.Unmarshal(extractFromArtifact(t, artifact, "info/index.json"), &index))
	assert.Equal(t, "hello-conda", index.Name)
	assert.Equal(t, "0.1.0", index.Version)
	assert.Equal(t, "py_0", index.Build)
	assert.Equal(t, 0, index.BuildNumber)
	assert.Equal(t, []string{"loguru", "python >=3.8"}, index.Depends)
	assert.Equal(t, "noarch", index.Subdir)
	assert.Equal(t, "python", index.Noarch)
	assert.Equal(t, "MIT", index.License)
	assert.Positive(t, index.Timestamp)

	var about AboutEntry
	require.NoError(t, json.Unmarshal(extractFromArtifact(t, artifact, "info/about.json"), &about))
	assert.Equal(t, "https://example.org/hello-conda", about.Home)
	assert.Equal(t, "Greeter exercised by the build pipeline", about.Summary)
	assert.Equal(t, "https://example.org/hello-conda/docs", about.DocURL)
	assert.Equal(t, "https://example.org/hello-conda/src", about.DevURL)

	var link linkEntry
	require.NoError(t, json.Unmarshal(extractFromArtifact(t, artifact, "info/link.json"), &link))
	assert.Equal(t, "python", link.Noarch.Type)
	assert.Equal(t, []string{"hello-conda = hello_conda.cli:main"}, link.Noarch.EntryPoints)
	assert.Equal(t, 1, link.PackageMetadataVersion)

	// The payload list covers what the script staged, not the metadata.
	files := extractFromArtifact(t, artifact, "info/files")
	assert.Equal(t, "site-packages/hello_conda/__init__.py\n", string(files))

	payload := extractFromArtifact(t, artifact, "site-packages/hello_conda/__init__.py")
	assert.Equal(t, "version = \"0.1.0\"\n", string(payload))

	manifest := extractFromArtifact(t, artifact, "info/recipe/meta.yaml")
	assert.Equal(t, string(res.Manifest), string(manifest))

	want, err := os.ReadFile(filepath.Join("testdata", "recipes", "hello-conda", "setup-meta.json"))
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(extractFromArtifact(t, artifact, "info/recipe/setup-meta.json")))

	entries, err := buildlog.ParseFile(filepath.Join(out, buildlog.DefaultName))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, buildlog.Entry{Subdir: "noarch", Package: "hello-conda", FullVersion: "0.1.0-py_0"}, entries[0])
}

func TestBuildPackage_ArchEntryPoints(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-tool")
	b, out := newTestBuild(t, res)

	require.NoError(t, b.BuildPackage(ctx))

	artifact := filepath.Join(out, recipe.CurrentSubdir(), "hello-tool-0.2.0-1.tar.gz")
	require.FileExists(t, artifact)

	var index IndexEntry
	require.NoError(t, json.Unmarshal(extractFromArtifact(t, artifact, "info/index.json"), &index))
	assert.Equal(t, "1", index.Build)
	assert.Equal(t, recipe.CurrentSubdir(), index.Subdir)
	assert.Empty(t, index.Noarch)

	// Arch builds ship launcher stubs in the payload instead of link
	// metadata.
	stub := extractFromArtifact(t, artifact, "bin/hello-tool")
	assert.Contains(t, string(stub), "from hello_tool.cli import main")

	f, err := os.Open(artifact)
	require.NoError(t, err)
	defer f.Close()
	_, err = tar.ExtractFile(f, "info/link.json")
	require.ErrorContains(t, err, "not found")

	files := string(extractFromArtifact(t, artifact, "info/files"))
	assert.Contains(t, files, "bin/hello-tool\n")
	assert.Contains(t, files, "lib/python3.11/site-packages/hello_tool/__init__.py\n")

	require.NoError(t, b.Test(ctx))
}

func TestBuildPackage_FetchesSource(t *testing.T) {
	ctx := slogtest.Context(t)

	sdist := t.TempDir()
	root := filepath.Join(sdist, "hello-conda-0.1.0")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "hello_conda"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "setup.py"), []byte("from setuptools import setup\nsetup()\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello_conda", "__init__.py"), []byte("version = \"0.1.0\"\n"), 0o644))

	archive := bytes.Buffer{}
	require.NoError(t, tar.Create(&archive, sdist))
	digest := sha256.Sum256(archive.Bytes())

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write(archive.Bytes())
	}))
	defer server.Close()

	res := resolveRecipe(t, "hello-conda")
	res.Recipe.Source = &recipe.Source{
		URL:    server.URL + "/packages/source/h/hello-conda/hello-conda-0.1.0.tar.gz",
		SHA256: hex.EncodeToString(digest[:]),
	}
	res.Recipe.Build.Script = `test -f setup.py && mkdir -p "$PREFIX/site-packages" && cp -R hello_conda "$PREFIX/site-packages/"`

	cache := t.TempDir()
	b, out := newTestBuild(t, res, WithCacheDir(cache))
	require.NoError(t, b.BuildPackage(ctx))
	assert.Equal(t, 1, requests)

	artifact := filepath.Join(out, "noarch", "hello-conda-0.1.0-py_0.tar.gz")
	payload := extractFromArtifact(t, artifact, "site-packages/hello_conda/__init__.py")
	assert.Equal(t, "version = \"0.1.0\"\n", string(payload))

	// A rebuild reuses the verified archive from the cache.
	b2, _ := newTestBuild(t, res, WithCacheDir(cache), WithForce(true))
	require.NoError(t, b2.BuildPackage(ctx))
	assert.Equal(t, 1, requests)
}

func TestBuildPackage_MissingDigest(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	res.Recipe.Source = &recipe.Source{URL: "https://example.org/hello-conda-0.1.0.tar.gz"}

	b, _ := newTestBuild(t, res)
	err := b.BuildPackage(ctx)
	require.ErrorContains(t, err, "source.sha256")
}

func TestBuildPackage_SkipsExisting(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	b, out := newTestBuild(t, res)
	require.NoError(t, b.BuildPackage(ctx))

	artifact := filepath.Join(out, "noarch", "hello-conda-0.1.0-py_0.tar.gz")
	require.NoError(t, os.WriteFile(artifact, []byte("sentinel"), 0o644))

	b2, err := New(ctx, res, WithOutDir(out), WithWorkDir(t.TempDir()), WithScriptOutput(io.Discard))
	require.NoError(t, err)
	require.NoError(t, b2.BuildPackage(ctx))
	got, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, "sentinel", string(got))

	b3, err := New(ctx, res, WithOutDir(out), WithWorkDir(t.TempDir()), WithScriptOutput(io.Discard), WithForce(true))
	require.NoError(t, err)
	require.NoError(t, b3.BuildPackage(ctx))
	got, err = os.ReadFile(artifact)
	require.NoError(t, err)
	assert.NotEqual(t, "sentinel", string(got))
}

func TestBuildPackage_DryRun(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	b, out := newTestBuild(t, res, WithDryRun(true))

	require.NoError(t, b.BuildPackage(ctx))
	assert.NoFileExists(t, filepath.Join(out, "noarch", "hello-conda-0.1.0-py_0.tar.gz"))
	assert.NoFileExists(t, filepath.Join(out, buildlog.DefaultName))
}

func TestBuildPackage_ValidationFailure(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	res.Recipe.Package.Version = "9.9.9"

	b, out := newTestBuild(t, res)
	err := b.BuildPackage(ctx)
	require.ErrorContains(t, err, "does not match metadata version")
	assert.NoFileExists(t, filepath.Join(out, "noarch", "hello-conda-9.9.9-py_0.tar.gz"))
}

func TestBuildPackage_RejectsFailedTests(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	res.Recipe.Test.Commands = []string{"false"}

	b, out := newTestBuild(t, res)
	err := b.BuildPackage(ctx)
	require.ErrorContains(t, err, `test command "false" for hello-conda failed`)

	// the assembled artifact is rejected and never reaches the build log
	assert.NoFileExists(t, filepath.Join(out, "noarch", "hello-conda-0.1.0-py_0.tar.gz"))
	assert.NoFileExists(t, filepath.Join(out, buildlog.DefaultName))
}

func TestBuildPackage_NoTest(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	res.Recipe.Test.Commands = []string{"false"}

	b, out := newTestBuild(t, res, WithNoTest(true))
	require.NoError(t, b.BuildPackage(ctx))
	assert.FileExists(t, filepath.Join(out, "noarch", "hello-conda-0.1.0-py_0.tar.gz"))
}

func TestBuildPackage_FailingScript(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	res.Recipe.Build.Script = "exit 7"

	b, out := newTestBuild(t, res)
	err := b.BuildPackage(ctx)
	require.ErrorContains(t, err, "build script for hello-conda failed")
	assert.NoFileExists(t, filepath.Join(out, "noarch", "hello-conda-0.1.0-py_0.tar.gz"))
}

func TestTest(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	work := t.TempDir()
	b, _ := newTestBuild(t, res, WithWorkDir(work))

	require.NoError(t, b.BuildPackage(ctx))
	require.NoError(t, b.Test(ctx))

	// Noarch entry points are materialized into the scratch environment so
	// commands can invoke them.
	assert.FileExists(t, filepath.Join(work, "test-env", "bin", "hello-conda"))
}

func TestTest_NotBuilt(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	b, _ := newTestBuild(t, res)

	err := b.Test(ctx)
	require.ErrorContains(t, err, "is not built")
}

func TestTest_FailingCommand(t *testing.T) {
	ctx := slogtest.Context(t)
	res := resolveRecipe(t, "hello-conda")
	b, _ := newTestBuild(t, res)
	require.NoError(t, b.BuildPackage(ctx))

	res.Recipe.Test.Commands = []string{"false"}
	err := b.Test(ctx)
	require.ErrorContains(t, err, `test command "false" for hello-conda failed`)
}

func TestApplyPatches_RequiresRecipeDir(t *testing.T) {
	ctx := slogtest.Context(t)
	b := &Build{}

	err := b.applyPatches(ctx, t.TempDir(), []string{"fix.patch"})
	require.ErrorContains(t, err, "no recipe directory is set")
}

func TestNewIndexEntry(t *testing.T) {
	r := &recipe.Recipe{
		Package: recipe.Package{Name: "casq", Version: "1.2.0"},
		Build:   recipe.Build{Noarch: "python", Number: 0},
		Requirements: recipe.Requirements{
			Run: []string{"loguru", "networkx>=2.4", "python-libsbml", "python >=3.7"},
		},
		About: &recipe.About{License: "GPL-3.0-or-later"},
	}

	entry := NewIndexEntry(r)
	assert.Equal(t, "casq", entry.Name)
	assert.Equal(t, "1.2.0", entry.Version)
	assert.Equal(t, "py_0", entry.Build)
	assert.Equal(t, "noarch", entry.Subdir)
	assert.Equal(t, "GPL-3.0-or-later", entry.License)
	assert.Equal(t, r.Requirements.Run, entry.Depends)
}

func TestPythonPath(t *testing.T) {
	env := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(env, "lib", "python3.11", "site-packages"), 0o755))

	paths := pythonPath(env)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(env, "site-packages"), paths[0])
	assert.Equal(t, filepath.Join(env, "lib", "python3.11", "site-packages"), paths[1])
	assert.Equal(t, env, paths[2])
}
