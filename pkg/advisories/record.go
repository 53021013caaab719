package advisories

import (
	"context"
	"errors"
	"fmt"

	"github.com/conda-tools/condactl/pkg/configs"
)

// Request describes one advisory event to record for a package.
type Request struct {
	Package         string
	VulnerabilityID string
	Aliases         []string
	Event           Event
}

func (req Request) Validate() error {
	var errs []error
	if req.Package == "" {
		errs = append(errs, errors.New("package must not be empty"))
	}
	if req.VulnerabilityID == "" {
		errs = append(errs, errors.New("vulnerability ID must not be empty"))
	}
	if err := req.Event.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Create records a new advisory for the requested package, creating the
// package's advisory document if it does not exist yet. It is an error for
// the vulnerability to already have an advisory.
func Create(ctx context.Context, index *configs.Index[Document], req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	selection := index.Select().WhereName(req.Package)
	switch count := selection.Len(); count {
	case 0:
		return createDocument(ctx, index, req)

	case 1:
		u := NewAdvisoriesSectionUpdater(func(doc Document) (Advisories, error) {
			if doc.Advisories.Contains(req.VulnerabilityID) {
				return nil, fmt.Errorf("advisory %q already exists for %q", req.VulnerabilityID, req.Package)
			}
			return append(doc.Advisories, Advisory{
				ID:      req.VulnerabilityID,
				Aliases: req.Aliases,
				Events:  []Event{req.Event},
			}), nil
		})
		if err := selection.Update(ctx, u); err != nil {
			return fmt.Errorf("unable to create advisory %q for %q: %w", req.VulnerabilityID, req.Package, err)
		}
		return nil

	default:
		return fmt.Errorf("cannot create advisory: found %d advisory documents for package %q", count, req.Package)
	}
}

// AddEvent appends an event to the existing advisory for the requested
// vulnerability.
func AddEvent(ctx context.Context, index *configs.Index[Document], req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	selection := index.Select().WhereName(req.Package)
	if selection.Len() == 0 {
		return fmt.Errorf("no advisory document for package %q", req.Package)
	}

	u := NewAdvisoriesSectionUpdater(func(doc Document) (Advisories, error) {
		adv, ok := doc.Advisories.Get(req.VulnerabilityID)
		if !ok {
			return nil, fmt.Errorf("no advisory %q for package %q", req.VulnerabilityID, req.Package)
		}
		adv.Events = append(adv.Events, req.Event)
		return doc.Advisories.Update(adv), nil
	})
	if err := selection.Update(ctx, u); err != nil {
		return fmt.Errorf("unable to add event to advisory %q for %q: %w", req.VulnerabilityID, req.Package, err)
	}
	return nil
}

// Record creates the advisory if the vulnerability is new for the package,
// and otherwise appends the event to the existing advisory. Scans use this
// to note detections without caring which case applies.
func Record(ctx context.Context, index *configs.Index[Document], req Request) error {
	selection := index.Select().WhereName(req.Package)
	if entry, ok := selection.First(); ok {
		if entry.Configuration().Advisories.Contains(req.VulnerabilityID) {
			return AddEvent(ctx, index, req)
		}
	}
	return Create(ctx, index, req)
}

func createDocument(ctx context.Context, index *configs.Index[Document], req Request) error {
	doc := Document{
		SchemaVersion: SchemaVersion,
		Package:       Package{Name: req.Package},
		Advisories: Advisories{{
			ID:      req.VulnerabilityID,
			Aliases: req.Aliases,
			Events:  []Event{req.Event},
		}},
	}

	path := fmt.Sprintf("%s.advisories.yaml", req.Package)
	if err := index.Create(ctx, path, doc); err != nil {
		return fmt.Errorf("creating advisory document for %q: %w", req.Package, err)
	}
	return nil
}
