package advisories

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/osv-scanner/pkg/models"

	"github.com/conda-tools/condactl/pkg/configs"
)

// OSVEcosystem is the ecosystem advisories export under. Recipe payloads
// are Python distributions, so records carry PyPI coordinates.
const OSVEcosystem = "PyPI"

// OSVOptions contains the options for building an OSV dataset.
type OSVOptions struct {
	// Indices are the advisory document indexes to export.
	Indices []*configs.Index[Document]

	// OutputDirectory is where the generated OSV dataset is written.
	OutputDirectory string
}

// BuildOSVDataset exports the advisory database as an OSV dataset: one JSON
// record per vulnerability ID, plus an all.json listing every ID with its
// last-modified time. Only advisories whose latest event is conclusive
// (fixed, or determined a false positive) are exported; open detections
// carry no range information yet.
func BuildOSVDataset(ctx context.Context, opts OSVOptions) error {
	log := clog.FromContext(ctx)
	export := make(map[string]models.Vulnerability)

	for _, index := range opts.Indices {
		for _, doc := range index.Select().Configurations() {
			for _, adv := range doc.Advisories {
				affected, modified, ok := affectedFromAdvisory(doc.Package.Name, adv)
				if !ok {
					continue
				}

				entry, exists := export[adv.ID]
				if !exists {
					export[adv.ID] = models.Vulnerability{
						ID:       adv.ID,
						Aliases:  adv.Aliases,
						Modified: modified,
						Affected: []models.Affected{affected},
					}
					continue
				}

				// the same vulnerability can affect several packages
				entry.Affected = append(entry.Affected, affected)
				entry.Aliases = mergeAliases(entry.Aliases, adv.Aliases)
				if modified.After(entry.Modified) {
					entry.Modified = modified
				}
				export[adv.ID] = entry
			}
		}
	}

	keys := make([]string, 0, len(export))
	for k := range export {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := os.MkdirAll(opts.OutputDirectory, 0o755); err != nil {
		return fmt.Errorf("creating OSV output directory: %w", err)
	}

	all := []models.Vulnerability{}
	for _, k := range keys {
		entry := export[k]
		sort.Slice(entry.Affected, func(i, j int) bool {
			return entry.Affected[i].Package.Name < entry.Affected[j].Package.Name
		})

		// for the all.json we just need the id and modified date
		all = append(all, models.Vulnerability{ID: entry.ID, Modified: entry.Modified})

		b, err := entry.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding OSV record %s: %w", k, err)
		}
		filepath := path.Join(opts.OutputDirectory, fmt.Sprintf("%s.json", k))
		if err := os.WriteFile(filepath, b, 0o644); err != nil {
			return fmt.Errorf("writing OSV record %s: %w", k, err)
		}
	}

	allData, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encoding all.json: %w", err)
	}
	if err := os.WriteFile(path.Join(opts.OutputDirectory, "all.json"), allData, 0o644); err != nil {
		return fmt.Errorf("writing all.json: %w", err)
	}

	log.Infof("wrote %d OSV records to %s", len(keys), opts.OutputDirectory)
	return nil
}

// affectedFromAdvisory maps an advisory's conclusive state onto an OSV
// affected entry. The third return is false when the advisory is still open
// and has nothing to export.
func affectedFromAdvisory(pkg string, adv Advisory) (models.Affected, time.Time, bool) {
	latest := adv.Latest()

	affected := models.Affected{
		Package: models.Package{
			Name:      pkg,
			Ecosystem: models.Ecosystem(OSVEcosystem),
			Purl:      fmt.Sprintf("pkg:pypi/%s", pkg),
		},
	}

	switch latest.Type {
	case EventTypeFixed:
		affected.Ranges = []models.Range{
			{
				Type: models.RangeEcosystem,
				Events: []models.Event{
					{Introduced: "0"},
					{Fixed: latest.FixedVersion},
				},
			},
		}
	case EventTypeFalsePositive:
		affected.Ranges = []models.Range{
			{
				Type: models.RangeEcosystem,
				Events: []models.Event{
					{Introduced: "0"},
					{Fixed: "0"},
				},
				DatabaseSpecific: map[string]interface{}{
					"false_positive": true,
				},
			},
		}
	default:
		return models.Affected{}, time.Time{}, false
	}

	return affected, time.Time(latest.Timestamp), true
}

func mergeAliases(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a] = true
	}
	for _, a := range incoming {
		if !seen[a] {
			existing = append(existing, a)
			seen[a] = true
		}
	}
	sort.Strings(existing)
	return existing
}
