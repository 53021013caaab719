package advisories

import (
	"testing"

	"github.com/google/osv-scanner/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conda-tools/condactl/pkg/osv"
)

func TestFilterFindings_InvalidSet(t *testing.T) {
	index, _ := newTestIndex(t)

	_, err := FilterFindings(index, "everything", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter set")
}

func TestFilterFindings(t *testing.T) {
	// The loguru advisory (GHSA-w4gr-84f7-3m5v, alias CVE-2022-0329) is fixed
	// in 0.6.0; the networkx advisory (PYSEC-2024-0000) is an open detection.
	fixedVulnerableVersion := osv.Finding{Package: "loguru", Version: "0.5.0", Vuln: models.Vulnerability{ID: "GHSA-w4gr-84f7-3m5v"}}
	fixedPatchedVersion := osv.Finding{Package: "loguru", Version: "0.6.0", Vuln: models.Vulnerability{ID: "GHSA-w4gr-84f7-3m5v"}}
	fixedByAlias := osv.Finding{Package: "loguru", Version: "0.6.1", Vuln: models.Vulnerability{ID: "CVE-2022-0329"}}
	noAdvisory := osv.Finding{Package: "loguru", Version: "0.6.0", Vuln: models.Vulnerability{ID: "CVE-2030-1111"}}
	openDetection := osv.Finding{Package: "networkx", Version: "3.1", Vuln: models.Vulnerability{ID: "PYSEC-2024-0000"}}
	noDocument := osv.Finding{Package: "requests", Version: "2.0.0", Vuln: models.Vulnerability{ID: "CVE-2018-18074"}}

	all := []osv.Finding{fixedVulnerableVersion, fixedPatchedVersion, fixedByAlias, noAdvisory, openDetection, noDocument}

	cases := []struct {
		name string
		set  string
		want []osv.Finding
	}{
		{
			name: "all hides everything an advisory references",
			set:  FilterSetAll,
			want: []osv.Finding{noAdvisory, noDocument},
		},
		{
			name: "resolved keeps findings the fix does not cover",
			set:  FilterSetResolved,
			want: []osv.Finding{fixedVulnerableVersion, noAdvisory, openDetection, noDocument},
		},
		{
			name: "concluded keeps open detections",
			set:  FilterSetConcluded,
			want: []osv.Finding{noAdvisory, openDetection, noDocument},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			index, _ := newTestIndex(t)

			got, err := FilterFindings(index, tt.set, all)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterFindings_NoVersionOnFinding(t *testing.T) {
	index, _ := newTestIndex(t)

	// Without a version to compare against, a fixed advisory counts as
	// resolved outright.
	findings := []osv.Finding{
		{Package: "loguru", Vuln: models.Vulnerability{ID: "GHSA-w4gr-84f7-3m5v"}},
	}

	got, err := FilterFindings(index, FilterSetResolved, findings)
	require.NoError(t, err)
	assert.Empty(t, got)
}
