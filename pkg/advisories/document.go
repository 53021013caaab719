// Package advisories defines the per-package security advisory documents
// kept under the repository's advisories/ directory, and the operations that
// record and resolve findings against them. Each document tracks the known
// vulnerabilities of one package as a series of timestamped events.
package advisories

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conda-tools/condactl/pkg/versions"
)

// SchemaVersion is the latest known schema version for advisory documents.
const SchemaVersion = "1.0.0"

type Document struct {
	SchemaVersion string     `yaml:"schema-version"`
	Package       Package    `yaml:"package"`
	Advisories    Advisories `yaml:"advisories,omitempty"`
}

func (doc Document) Name() string {
	return doc.Package.Name
}

func (doc Document) Validate() error {
	if err := errors.Join(
		doc.Package.Validate(),
		doc.Advisories.Validate(),
	); err != nil {
		return fmt.Errorf("advisory document for %q: %w", doc.Name(), err)
	}
	return nil
}

// DecodeDocument reads one advisory document. Unknown fields are rejected.
func DecodeDocument(r io.Reader) (*Document, error) {
	doc := &Document{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(doc); err != nil {
		return nil, err
	}

	if doc.SchemaVersion == "" {
		doc.SchemaVersion = SchemaVersion
	}

	return doc, nil
}

type Package struct {
	Name string `yaml:"name"`
}

func (p Package) Validate() error {
	if p.Name == "" {
		return errors.New("package name must not be empty")
	}
	return nil
}

type Advisories []Advisory

func (advs Advisories) Validate() error {
	if len(advs) == 0 {
		return errors.New("this file should not exist if there are no advisories recorded")
	}

	seen := make(map[string]bool)
	var errs []error
	for _, adv := range advs {
		if seen[adv.ID] {
			errs = append(errs, fmt.Errorf("advisory ID %q listed more than once", adv.ID))
		}
		seen[adv.ID] = true

		if err := adv.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Contains reports whether any advisory cites the given vulnerability ID,
// either as its ID or among its aliases.
func (advs Advisories) Contains(vulnID string) bool {
	for _, adv := range advs {
		if adv.DescribesVulnerability(vulnID) {
			return true
		}
	}
	return false
}

// Get returns the advisory citing the given vulnerability ID.
func (advs Advisories) Get(vulnID string) (Advisory, bool) {
	for _, adv := range advs {
		if adv.DescribesVulnerability(vulnID) {
			return adv, true
		}
	}
	return Advisory{}, false
}

// Update replaces the advisory with the same ID.
func (advs Advisories) Update(updated Advisory) Advisories {
	out := make(Advisories, len(advs))
	copy(out, advs)
	for i := range out {
		if out[i].ID == updated.ID {
			out[i] = updated
			break
		}
	}
	return out
}

type Advisory struct {
	ID string `yaml:"id"`

	// Aliases lists this vulnerability's IDs in other databases (CVE, GHSA).
	Aliases []string `yaml:"aliases,omitempty"`

	// Events records the investigation of the vulnerability over time.
	Events []Event `yaml:"events"`
}

func (adv Advisory) Validate() error {
	var errs []error
	if adv.ID == "" {
		errs = append(errs, errors.New("advisory ID must not be empty"))
	}
	if len(adv.Events) == 0 {
		errs = append(errs, fmt.Errorf("advisory %q has no events", adv.ID))
	}
	for _, event := range adv.Events {
		if err := event.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("advisory %q: %w", adv.ID, err))
		}
	}
	return errors.Join(errs...)
}

// DescribesVulnerability returns true if the advisory cites the given
// vulnerability ID in either its ID or its aliases.
func (adv Advisory) DescribesVulnerability(vulnID string) bool {
	return adv.ID == vulnID || slices.Contains(adv.Aliases, vulnID)
}

// SortedEvents returns the advisory's events sorted oldest to newest.
func (adv Advisory) SortedEvents() []Event {
	sorted := make([]Event, len(adv.Events))
	copy(sorted, adv.Events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// Latest returns the most recent event in the advisory.
func (adv Advisory) Latest() Event {
	if len(adv.Events) == 0 {
		return Event{}
	}
	sorted := adv.SortedEvents()
	return sorted[len(sorted)-1]
}

// Resolved returns true if the advisory's latest event says the
// vulnerability needs no further action.
func (adv Advisory) Resolved() bool {
	switch adv.Latest().Type {
	case EventTypeFalsePositive, EventTypeFixed, EventTypeFixNotPlanned:
		return true
	}
	return false
}

// ResolvedAtVersion returns true if the advisory is resolved with respect
// to the given package version.
func (adv Advisory) ResolvedAtVersion(version string) bool {
	latest := adv.Latest()
	switch latest.Type {
	case EventTypeFalsePositive, EventTypeFixNotPlanned:
		return true
	case EventTypeFixed:
		return fixedVersionCovers(latest.FixedVersion, version)
	}
	return false
}

func fixedVersionCovers(fixedVersion, current string) bool {
	fixed, err := versions.NewVersion(fixedVersion)
	if err != nil {
		return false
	}
	cur, err := versions.NewVersion(current)
	if err != nil {
		return false
	}
	return cur.GreaterThanOrEqual(fixed)
}

const (
	// EventTypeDetection records that a scan matched the package against a
	// vulnerability.
	EventTypeDetection = "detection"

	// EventTypeTruePositive confirms the package is affected.
	EventTypeTruePositive = "true-positive-determination"

	// EventTypeFalsePositive records that the match does not apply.
	EventTypeFalsePositive = "false-positive-determination"

	// EventTypeFixed records the first package version no longer affected.
	EventTypeFixed = "fixed"

	// EventTypeFixNotPlanned records that no fix will be shipped, with a
	// note explaining why.
	EventTypeFixNotPlanned = "fix-not-planned"
)

// EventTypes lists the valid values of Event.Type.
var EventTypes = []string{
	EventTypeDetection,
	EventTypeTruePositive,
	EventTypeFalsePositive,
	EventTypeFixed,
	EventTypeFixNotPlanned,
}

type Event struct {
	Timestamp Timestamp `yaml:"timestamp"`
	Type      string    `yaml:"type"`

	// Note carries free-form context for the event.
	Note string `yaml:"note,omitempty"`

	// FixedVersion is the first version no longer affected. Set only for
	// fixed events.
	FixedVersion string `yaml:"fixed-version,omitempty"`
}

func (e Event) Validate() error {
	var errs []error
	if e.Timestamp.IsZero() {
		errs = append(errs, errors.New("event timestamp must not be zero"))
	}
	if !slices.Contains(EventTypes, e.Type) {
		errs = append(errs, fmt.Errorf("event type %q is not one of [%s]", e.Type, strings.Join(EventTypes, ", ")))
	}
	switch {
	case e.Type == EventTypeFixed && e.FixedVersion == "":
		errs = append(errs, errors.New("fixed event must name a fixed-version"))
	case e.Type != EventTypeFixed && e.FixedVersion != "":
		errs = append(errs, fmt.Errorf("%s event must not name a fixed-version", e.Type))
	case e.Type == EventTypeFixNotPlanned && e.Note == "":
		errs = append(errs, errors.New("fix-not-planned event must carry a note"))
	}
	return errors.Join(errs...)
}
