package advisories

import (
	"fmt"
	"slices"
	"strings"

	"github.com/conda-tools/condactl/pkg/configs"
	"github.com/conda-tools/condactl/pkg/osv"
)

const (
	// FilterSetResolved excludes findings whose advisory's latest event
	// resolves the vulnerability at the scanned version.
	FilterSetResolved = "resolved"

	// FilterSetAll excludes findings referenced from any advisory, whatever
	// state the investigation is in.
	FilterSetAll = "all"

	// FilterSetConcluded excludes findings whose investigation has moved past
	// the initial detection.
	FilterSetConcluded = "concluded"
)

// ValidFilterSets lists the advisory filter sets scans accept.
var ValidFilterSets = []string{FilterSetResolved, FilterSetAll, FilterSetConcluded}

// FilterFindings returns the findings not excused by the advisory data in
// index. Each finding is matched against the advisory document named for its
// (vulnerable) distribution, by vulnerability ID or alias.
func FilterFindings(index *configs.Index[Document], set string, findings []osv.Finding) ([]osv.Finding, error) {
	if !slices.Contains(ValidFilterSets, set) {
		return nil, fmt.Errorf("invalid filter set %q, must be one of [%s]", set, strings.Join(ValidFilterSets, ", "))
	}

	var kept []osv.Finding
	for _, f := range findings {
		if !findingExcluded(index, set, f) {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

func findingExcluded(index *configs.Index[Document], set string, f osv.Finding) bool {
	entry, ok := index.Select().WhereName(f.Package).First()
	if !ok {
		return false
	}
	doc := entry.Configuration()

	adv, ok := doc.Advisories.Get(f.Vuln.ID)
	if !ok {
		for _, alias := range f.Vuln.Aliases {
			if adv, ok = doc.Advisories.Get(alias); ok {
				break
			}
		}
	}
	if !ok {
		return false
	}

	switch set {
	case FilterSetAll:
		return true
	case FilterSetResolved:
		if f.Version != "" {
			return adv.ResolvedAtVersion(f.Version)
		}
		return adv.Resolved()
	case FilterSetConcluded:
		return adv.Latest().Type != EventTypeDetection
	}
	return false
}
