package buildlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	f, err := os.Open("testdata/packages.log")
	if err != nil {
		t.Fatalf("unable to open test data: %v", err)
	}
	defer f.Close()

	expected := []Entry{
		{
			Subdir:      "noarch",
			Package:     "casq",
			FullVersion: "1.2.0-py_0",
		},
		{
			Subdir:      "noarch",
			Package:     "casq-dashboard",
			FullVersion: "0.3.1-py_0",
		},
		{
			Subdir:      "linux-64",
			Package:     "python-libsbml",
			FullVersion: "5.20.2-0",
		},
	}

	actual, err := Parse(f)
	assert.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestParse_InvalidLine(t *testing.T) {
	_, err := Parse(strings.NewReader("noarch|casq\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3")
}

func TestWriteRoundTrip(t *testing.T) {
	entries := []Entry{
		{Subdir: "noarch", Package: "casq", FullVersion: "1.2.0-py_0"},
		{Subdir: "linux-64", Package: "python-libsbml", FullVersion: "5.20.2-0"},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, entries))
	assert.Equal(t, "noarch|casq|1.2.0-py_0\nlinux-64|python-libsbml|5.20.2-0\n", buf.String())

	parsed, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, entries, parsed)
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultName)

	require.NoError(t, Append(path, Entry{Subdir: "noarch", Package: "casq", FullVersion: "1.2.0-py_0"}))
	require.NoError(t, Append(path, Entry{Subdir: "noarch", Package: "casq", FullVersion: "1.2.1-py_0"}))

	entries, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1.2.1-py_0", entries[1].FullVersion)
}
