package configs

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conda-tools/condactl/pkg/configs/rwfs"
	"github.com/conda-tools/condactl/pkg/configs/rwfs/os/memfs"
)

type testDoc struct {
	DocName string            `yaml:"name"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

func (d testDoc) Name() string {
	return d.DocName
}

func testDecodeFunc(fsys rwfs.FS) DecodeFunc[testDoc] {
	return func(_ context.Context, path string) (*testDoc, error) {
		f, err := fsys.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		doc := &testDoc{}
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
}

func newTestIndex(t *testing.T) (*Index[testDoc], rwfs.FS) {
	t.Helper()
	fsys := memfs.New(os.DirFS("testdata/index"))
	index, err := NewIndex[testDoc](context.Background(), fsys, testDecodeFunc(fsys))
	require.NoError(t, err)
	return index, fsys
}

func TestNewIndex(t *testing.T) {
	index, _ := newTestIndex(t)

	assert.Equal(t, 2, index.Len())

	path, err := index.Path("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha.yaml", path)

	_, err = index.Path("gamma")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestSelection(t *testing.T) {
	index, _ := newTestIndex(t)

	s := index.Select()
	assert.Equal(t, 2, s.Len())

	s = s.WhereName("beta")
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "beta", s.Configurations()[0].Name())

	byPath := index.Select().WhereFilePath("alpha.yaml")
	require.Equal(t, 1, byPath.Len())

	entry, ok := byPath.First()
	require.True(t, ok)
	assert.Equal(t, "alpha", entry.Configuration().Name())

	_, ok = index.Select().WhereName("gamma").First()
	assert.False(t, ok)
}

func TestUpdate_PreservesUntouchedContent(t *testing.T) {
	index, fsys := newTestIndex(t)

	u := NewYAMLUpdateFunc[testDoc](NewTargetedYAMLASTMutater[map[string]string, testDoc](
		"labels",
		func(doc testDoc) (map[string]string, error) {
			labels := doc.Labels
			labels["tier"] = "updated"
			return labels, nil
		},
		func(doc testDoc, labels map[string]string) testDoc {
			doc.Labels = labels
			return doc
		},
	))

	err := index.Select().WhereName("alpha").Update(context.Background(), u)
	require.NoError(t, err)

	// The index reflects the new content.
	entry, ok := index.Select().WhereName("alpha").First()
	require.True(t, ok)
	assert.Equal(t, "updated", entry.Configuration().Labels["tier"])

	// The comment above the document survived the rewrite.
	f, err := fsys.Open("alpha.yaml")
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(content), "# alpha carries the channel defaults.")
	assert.Contains(t, string(content), "tier: updated")
}

func TestUpdate_Skip(t *testing.T) {
	index, _ := newTestIndex(t)

	var visited []string
	err := index.Select().Update(context.Background(), func(_ *Index[testDoc], e Entry[testDoc]) error {
		visited = append(visited, e.Configuration().Name())
		return ErrSkip
	})
	require.NoError(t, err)
	assert.Len(t, visited, 2)
}

func TestCreate(t *testing.T) {
	index, fsys := newTestIndex(t)

	err := index.Create(context.Background(), "gamma.yaml", testDoc{
		DocName: "gamma",
		Labels:  map[string]string{"tier": "new"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, index.Len())

	f, err := fsys.Open("gamma.yaml")
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(content), "name: gamma")

	// Creating a second document with the same name is rejected.
	err = index.Create(context.Background(), "gamma2.yaml", testDoc{DocName: "gamma"})
	assert.Error(t, err)
}
