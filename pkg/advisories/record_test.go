package advisories

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conda-tools/condactl/pkg/configs"
	"github.com/conda-tools/condactl/pkg/configs/rwfs"
	"github.com/conda-tools/condactl/pkg/configs/rwfs/os/memfs"
)

func newTestIndex(t *testing.T) (*configs.Index[Document], rwfs.FS) {
	t.Helper()
	fsys := memfs.New(os.DirFS("testdata/advisories"))
	index, err := NewIndex(context.Background(), fsys)
	require.NoError(t, err)
	return index, fsys
}

func readFile(t *testing.T, fsys rwfs.FS, path string) string {
	t.Helper()
	f, err := fsys.Open(path)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(b)
}

func TestCreate_NewDocument(t *testing.T) {
	index, fsys := newTestIndex(t)
	require.Equal(t, 2, index.Len())

	err := Create(context.Background(), index, Request{
		Package:         "python-libsbml",
		VulnerabilityID: "CVE-2024-9999",
		Event:           Event{Timestamp: Now(), Type: EventTypeDetection},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, index.Len())
	content := readFile(t, fsys, "python-libsbml.advisories.yaml")
	assert.Contains(t, content, "name: python-libsbml")
	assert.Contains(t, content, "CVE-2024-9999")
}

func TestCreate_ExistingDocument(t *testing.T) {
	index, fsys := newTestIndex(t)

	err := Create(context.Background(), index, Request{
		Package:         "loguru",
		VulnerabilityID: "CVE-2024-0002",
		Event:           Event{Timestamp: Now(), Type: EventTypeDetection},
	})
	require.NoError(t, err)

	content := readFile(t, fsys, "loguru.advisories.yaml")
	assert.Contains(t, content, "GHSA-w4gr-84f7-3m5v")
	assert.Contains(t, content, "CVE-2024-0002")

	// Still one document for the package.
	assert.Equal(t, 1, index.Select().WhereName("loguru").Len())
}

func TestCreate_DuplicateVulnerability(t *testing.T) {
	index, _ := newTestIndex(t)

	err := Create(context.Background(), index, Request{
		Package:         "loguru",
		VulnerabilityID: "GHSA-w4gr-84f7-3m5v",
		Event:           Event{Timestamp: Now(), Type: EventTypeDetection},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAddEvent(t *testing.T) {
	index, fsys := newTestIndex(t)

	err := AddEvent(context.Background(), index, Request{
		Package:         "networkx",
		VulnerabilityID: "PYSEC-2024-0000",
		Event:           Event{Timestamp: Now(), Type: EventTypeFixed, FixedVersion: "3.2.1"},
	})
	require.NoError(t, err)

	content := readFile(t, fsys, "networkx.advisories.yaml")
	assert.Contains(t, content, "fixed-version: 3.2.1")

	entry, ok := index.Select().WhereName("networkx").First()
	require.True(t, ok)
	adv, ok := entry.Configuration().Advisories.Get("PYSEC-2024-0000")
	require.True(t, ok)
	assert.True(t, adv.Resolved())
}

func TestAddEvent_MissingAdvisory(t *testing.T) {
	index, _ := newTestIndex(t)

	err := AddEvent(context.Background(), index, Request{
		Package:         "networkx",
		VulnerabilityID: "CVE-1999-0001",
		Event:           Event{Timestamp: Now(), Type: EventTypeFixed, FixedVersion: "3.2.1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no advisory")
}

func TestRecord(t *testing.T) {
	index, _ := newTestIndex(t)

	// New vulnerability for an existing package: creates an advisory.
	err := Record(context.Background(), index, Request{
		Package:         "networkx",
		VulnerabilityID: "CVE-2024-0100",
		Event:           Event{Timestamp: Now(), Type: EventTypeDetection},
	})
	require.NoError(t, err)

	// Same vulnerability again: appends an event instead.
	err = Record(context.Background(), index, Request{
		Package:         "networkx",
		VulnerabilityID: "CVE-2024-0100",
		Event:           Event{Timestamp: Now(), Type: EventTypeTruePositive},
	})
	require.NoError(t, err)

	entry, ok := index.Select().WhereName("networkx").First()
	require.True(t, ok)
	adv, ok := entry.Configuration().Advisories.Get("CVE-2024-0100")
	require.True(t, ok)
	assert.Len(t, adv.Events, 2)
}
