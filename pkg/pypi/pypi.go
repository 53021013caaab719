package pypi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	http2 "github.com/conda-tools/condactl/pkg/http"
	"github.com/conda-tools/condactl/pkg/python"
	"github.com/conda-tools/condactl/pkg/versions"
)

// DefaultBaseURL is the JSON API of the main package index.
const DefaultBaseURL = "https://pypi.org/pypi"

// Client talks to a package index's JSON API.
type Client struct {
	BaseURL string
	Client  *http2.RLHTTPClient

	// CacheDir is where downloaded source distributions land. Defaults to
	// the user's XDG cache home.
	CacheDir string
}

// New returns a client for the main package index.
func New() *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		// 1 request a second to avoid DOS'ing the index
		Client:   http2.NewRetryingClient(rate.NewLimiter(rate.Every(1*time.Second), 1)),
		CacheDir: filepath.Join(xdg.CacheHome, "condactl", "sources"),
	}
}

// Project is the index's JSON document for a project, scoped to the fields
// the recipe tooling consumes.
type Project struct {
	Info     Info                     `json:"info"`
	Releases map[string][]ReleaseFile `json:"releases"`
	URLs     []ReleaseFile            `json:"urls"`
}

// Info is the project metadata block.
type Info struct {
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Summary        string            `json:"summary"`
	HomePage       string            `json:"home_page"`
	License        string            `json:"license"`
	RequiresPython string            `json:"requires_python"`
	RequiresDist   []string          `json:"requires_dist"`
	ProjectURLs    map[string]string `json:"project_urls"`
}

// ReleaseFile is one uploaded file of a release.
type ReleaseFile struct {
	Filename    string  `json:"filename"`
	URL         string  `json:"url"`
	PackageType string  `json:"packagetype"`
	Digests     Digests `json:"digests"`
	Yanked      bool    `json:"yanked"`
}

type Digests struct {
	SHA256 string `json:"sha256"`
}

// Project fetches the project document for the latest release.
func (c *Client) Project(ctx context.Context, name string) (*Project, error) {
	return c.get(ctx, fmt.Sprintf("%s/%s/json", c.BaseURL, python.NormalizeName(name)))
}

// Release fetches the project document for one specific release.
func (c *Client) Release(ctx context.Context, name, version string) (*Project, error) {
	return c.get(ctx, fmt.Sprintf("%s/%s/%s/json", c.BaseURL, python.NormalizeName(name), version))
}

func (c *Client) get(ctx context.Context, targetURL string) (*Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed creating GET request %s", targetURL)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed getting URI %s", targetURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non ok http response for URI %s code: %v", targetURL, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading project document")
	}

	p := &Project{}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, errors.Wrap(err, "unmarshalling project document")
	}
	return p, nil
}

// Sdist returns the source distribution of the fetched release.
func (p *Project) Sdist() (*ReleaseFile, error) {
	for i := range p.URLs {
		f := &p.URLs[i]
		if f.PackageType == "sdist" && !f.Yanked {
			return f, nil
		}
	}
	return nil, fmt.Errorf("no source distribution for %s %s", p.Info.Name, p.Info.Version)
}

// LatestStableVersion returns the highest released version that is not a
// pre-release and still has files available.
func (p *Project) LatestStableVersion() (string, error) {
	var stable []string
	for ver, files := range p.Releases {
		v, err := versions.NewVersion(ver)
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if len(files) == 0 || allYanked(files) {
			continue
		}
		stable = append(stable, ver)
	}
	if len(stable) == 0 {
		return "", fmt.Errorf("no stable version found for %s", p.Info.Name)
	}

	sort.Sort(versions.ByLatestStrings(stable))
	return stable[len(stable)-1], nil
}

func allYanked(files []ReleaseFile) bool {
	for _, f := range files {
		if !f.Yanked {
			return false
		}
	}
	return true
}
