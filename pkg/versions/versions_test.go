package versions

import (
	"sort"
	"testing"

	"github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
)

func TestSortVersions(t *testing.T) {
	baseVersions := []string{"1.2.3", "1.1.1", "2.3.4", "0.1.3"}

	tests := []struct {
		name                  string
		baseVersions          []string
		testVersions          []string
		expectedLatestVersion string
	}{
		{
			name:                  "simple",
			baseVersions:          baseVersions,
			testVersions:          []string{"4.0.1"},
			expectedLatestVersion: "4.0.1",
		},
		{
			name:                  "underscore",
			baseVersions:          baseVersions,
			testVersions:          []string{"5.2_rc4"},
			expectedLatestVersion: "5.2rc4",
		},
		{
			name:                  "build numbers are numeric",
			testVersions:          []string{"1.2.0-0", "1.2.0-10", "1.2.0-2", "1.2.0-9"},
			expectedLatestVersion: "1.2.0-10",
		},
		{
			name:                  "noarch build strings",
			testVersions:          []string{"1.2.0-py_0", "1.2.0-py_2", "1.2.0-py_1"},
			expectedLatestVersion: "1.2.0-py2",
		},
		{
			name:                  "new release beats higher build number",
			testVersions:          []string{"1.2.0-10", "1.2.1-0"},
			expectedLatestVersion: "1.2.1-0",
		},
		{
			name:                  "metadata",
			testVersions:          []string{"1.2.3+1", "1.2.3+2", "1.2.3+5", "1.2.3"},
			expectedLatestVersion: "1.2.3+5",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var versions []*version.Version

			// add test versions to the list first
			for _, v := range test.testVersions {
				semver, err := NewVersion(v)
				assert.NoError(t, err)
				versions = append(versions, semver)
			}

			// next add base versions
			for _, v := range test.baseVersions {
				semver, err := NewVersion(v)
				assert.NoError(t, err)
				versions = append(versions, semver)
			}

			sort.Sort(ByLatest(versions))

			assert.Equal(t, test.expectedLatestVersion, versions[len(versions)-1].Original())
		})
	}
}

func TestSortVersionStrings(t *testing.T) {
	vs := []string{"1.2.0-2", "1.2.0-0", "1.3.0-0", "1.2.0-10"}
	sort.Sort(ByLatestStrings(vs))
	assert.Equal(t, []string{"1.2.0-0", "1.2.0-2", "1.2.0-10", "1.3.0-0"}, vs)
}

func TestLatest(t *testing.T) {
	assert.Equal(t, "2.0.1", Latest([]string{"1.9.9", "2.0.1", "2.0.0"}))
	assert.Equal(t, "", Latest([]string{"not-a-version"}))
}
