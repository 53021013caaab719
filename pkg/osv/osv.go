// Package osv queries the osv.dev vulnerability database for the Python
// distributions a recipe depends on at run time.
package osv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/osv-scanner/pkg/models"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	http2 "github.com/conda-tools/condactl/pkg/http"
	"github.com/conda-tools/condactl/pkg/python"
)

// DefaultBaseURL is the osv.dev API root.
const DefaultBaseURL = "https://api.osv.dev/v1"

// Ecosystem is the OSV ecosystem run requirements are queried under.
const Ecosystem = "PyPI"

// Client talks to the osv.dev API.
type Client struct {
	BaseURL string
	Client  *http2.RLHTTPClient
}

// New returns a client for the public osv.dev API.
func New() *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		// 1 request a second to avoid DOS'ing the service
		Client: http2.NewRetryingClient(rate.NewLimiter(rate.Every(1*time.Second), 1)),
	}
}

// A Query names one package version to check. An empty version asks for
// every vulnerability ever recorded against the package.
type Query struct {
	Name    string
	Version string
}

// A Finding pairs one vulnerable requirement with the OSV record that
// describes the vulnerability.
type Finding struct {
	// Package is the normalized requirement name the query was made for.
	Package string

	// Version is the version the query pinned, or empty when the
	// requirement named no usable floor.
	Version string

	Vuln models.Vulnerability
}

// Severity returns the finding's severity label: the database-specific
// severity when the record carries one, otherwise the first CVSS score.
func (f Finding) Severity() string {
	if s, ok := f.Vuln.DatabaseSpecific["severity"].(string); ok && s != "" {
		return s
	}
	for _, sev := range f.Vuln.Severity {
		if sev.Score != "" {
			return sev.Score
		}
	}
	return "UNKNOWN"
}

// FixedVersion returns the first fixed version the record lists for the
// finding's distribution, or "" when no fix is recorded.
func (f Finding) FixedVersion() string {
	for _, aff := range f.Vuln.Affected {
		if string(aff.Package.Ecosystem) != Ecosystem {
			continue
		}
		if python.NormalizeName(aff.Package.Name) != f.Package {
			continue
		}
		for _, r := range aff.Ranges {
			for _, ev := range r.Events {
				if ev.Fixed != "" {
					return ev.Fixed
				}
			}
		}
	}
	return ""
}

// querybatch wire format, see https://google.github.io/osv.dev/post-v1-querybatch/.
type batchRequest struct {
	Queries []batchQuery `json:"queries"`
}

type batchQuery struct {
	Package batchPackage `json:"package"`
	Version string       `json:"version,omitempty"`
}

type batchPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type batchResponse struct {
	Results []struct {
		Vulns []struct {
			ID string `json:"id"`
		} `json:"vulns"`
	} `json:"results"`
}

// QueryBatch returns, for each query in order, the IDs of the
// vulnerabilities affecting it. Batch results carry IDs only; Vulnerability
// fetches the full record.
func (c *Client) QueryBatch(ctx context.Context, queries []Query) ([][]string, error) {
	body := batchRequest{Queries: make([]batchQuery, 0, len(queries))}
	for _, q := range queries {
		body.Queries = append(body.Queries, batchQuery{
			Package: batchPackage{Name: q.Name, Ecosystem: Ecosystem},
			Version: q.Version,
		})
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encoding querybatch request")
	}

	targetURL := c.BaseURL + "/querybatch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrapf(err, "failed creating POST request %s", targetURL)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed getting URI %s", targetURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non ok http response for URI %s code: %v", targetURL, resp.StatusCode)
	}

	res := batchResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, errors.Wrap(err, "decoding querybatch response")
	}
	if len(res.Results) != len(queries) {
		return nil, fmt.Errorf("querybatch returned %d results for %d queries", len(res.Results), len(queries))
	}

	out := make([][]string, len(res.Results))
	for i, r := range res.Results {
		for _, v := range r.Vulns {
			out[i] = append(out[i], v.ID)
		}
	}
	return out, nil
}

// Vulnerability fetches the full OSV record for one vulnerability ID.
func (c *Client) Vulnerability(ctx context.Context, id string) (*models.Vulnerability, error) {
	targetURL := fmt.Sprintf("%s/vulns/%s", c.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed creating GET request %s", targetURL)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed getting URI %s", targetURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non ok http response for URI %s code: %v", targetURL, resp.StatusCode)
	}

	v := &models.Vulnerability{}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return nil, errors.Wrapf(err, "decoding vulnerability %s", id)
	}
	return v, nil
}

// Scan checks the given requirements against osv.dev and returns the
// findings sorted by package and vulnerability ID. The interpreter pin is
// skipped: "python" names the interpreter, not a PyPI distribution.
func (c *Client) Scan(ctx context.Context, reqs []python.Requirement) ([]Finding, error) {
	log := clog.FromContext(ctx)

	queries := make([]Query, 0, len(reqs))
	for _, req := range reqs {
		name := req.NormalizedName()
		if name == "" || name == "python" {
			continue
		}
		queries = append(queries, Query{Name: name, Version: queryVersion(req)})
	}
	if len(queries) == 0 {
		return nil, nil
	}

	idsPerQuery, err := c.QueryBatch(ctx, queries)
	if err != nil {
		return nil, err
	}

	vulns := map[string]*models.Vulnerability{}
	var findings []Finding
	for i, ids := range idsPerQuery {
		for _, id := range ids {
			v, ok := vulns[id]
			if !ok {
				v, err = c.Vulnerability(ctx, id)
				if err != nil {
					return nil, err
				}
				vulns[id] = v
			}
			findings = append(findings, Finding{
				Package: queries[i].Name,
				Version: queries[i].Version,
				Vuln:    *v,
			})
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Package != findings[j].Package {
			return findings[i].Package < findings[j].Package
		}
		return findings[i].Vuln.ID < findings[j].Vuln.ID
	})

	log.Infof("%d findings across %d dependencies", len(findings), len(queries))
	return findings, nil
}

// queryVersion picks the version a requirement is checked at: an exact pin
// when there is one, otherwise the lower bound the constraints establish.
func queryVersion(req python.Requirement) string {
	for _, c := range req.Constraints {
		if c.Op == "==" || c.Op == "===" {
			return strings.TrimSuffix(c.Version, ".*")
		}
	}
	for _, c := range req.Constraints {
		if c.Op == ">=" || c.Op == "~=" {
			return c.Version
		}
	}
	return ""
}
