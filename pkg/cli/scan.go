package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/savioxavier/termlink"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conda-tools/condactl/pkg/advisories"
	"github.com/conda-tools/condactl/pkg/configs"
	rwos "github.com/conda-tools/condactl/pkg/configs/rwfs/os"
	"github.com/conda-tools/condactl/pkg/dag"
	"github.com/conda-tools/condactl/pkg/osv"
	"github.com/conda-tools/condactl/pkg/python"
	"github.com/conda-tools/condactl/pkg/render"
)

const (
	outputFormatOutline = "outline"
	outputFormatJSON    = "json"
)

var validOutputFormats = []string{outputFormatOutline, outputFormatJSON}

func cmdScan() *cobra.Command {
	p := &scanParams{}
	cmd := &cobra.Command{
		Use:   "scan [ --advisory-filter <set> --advisories-repo-dir <path> ] [recipe...]",
		Short: "Scan recipes' run requirements for vulnerabilities",
		Long: `This command scans the run requirements of one or more recipes for known
vulnerabilities.

## SCANNING

Each named recipe is resolved against its setup metadata, and every
distribution in its run requirements is checked against the osv.dev
database (PyPI ecosystem). The pinned interpreter constraint is skipped:
"python" names the interpreter, not a distribution. With no arguments,
every recipe in the repository is scanned.

## FILTERING

By default, the command will print all vulnerabilities found in the
requirements to stdout. You can filter the findings shown using existing
local advisory data. To do this, you must first clone the advisory data
repository, and specify its path using the --advisories-repo-dir flag.
Then, you can use the "--advisory-filter" flag to specify which set of
advisories to use for filtering. The following sets of advisories are
available:

- "resolved": Only filter out vulnerabilities whose advisory's latest
  event resolves them at the scanned version: a false positive
  determination, a fix covering the version, or fix-not-planned.

- "all": Filter out all vulnerabilities that are referenced from any
  advisory in the advisories repository.

- "concluded": Only filter out vulnerabilities whose investigation has
  moved past the initial detection.

## RECORDING

With the --record flag, findings that survive filtering are written back
into the advisories repository as detection events, creating advisory
documents for distributions that don't have one yet.

## OUTPUT

When a scan finishes, the command will print the results to stdout. There are
two modes of output that can be specified with the --output (or "-o") flag:

- "outline": This is the default output mode. It prints the results in a
  human-readable outline format.

- "json": This mode prints the results in JSON format. This mode is useful for
  machine processing of the results.

The command will exit with a non-zero exit code if any errors occur during the
scan.

The command will also exit with a non-zero exit code if any vulnerabilities are
found and the --require-zero flag is specified.

`,
		Example: `
# Scan a single recipe
condactl scan casq

# Scan multiple recipes
condactl scan casq libsbml

# Scan every recipe in the repository
condactl scan

# Hide findings already resolved by advisories
condactl scan casq -a ./advisories --advisory-filter resolved

# Record new findings as detection events
condactl scan casq -a ./advisories --record
`,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := clog.FromContext(ctx)

			if p.outputFormat == "" {
				p.outputFormat = outputFormatOutline
			}

			advisoriesRepoDir := resolveAdvisoriesDirInput(p.advisoriesRepoDir)

			// Validate inputs

			if !slices.Contains(validOutputFormats, p.outputFormat) {
				return fmt.Errorf(
					"invalid output format %q, must be one of [%s]",
					p.outputFormat,
					strings.Join(validOutputFormats, ", "),
				)
			}

			if p.advisoryFilterSet != "" {
				if !slices.Contains(advisories.ValidFilterSets, p.advisoryFilterSet) {
					return fmt.Errorf(
						"invalid advisory filter set %q, must be one of [%s]",
						p.advisoryFilterSet,
						strings.Join(advisories.ValidFilterSets, ", "),
					)
				}

				if advisoriesRepoDir == "" {
					return errors.New("advisory-based filtering requested, but no advisories repo dir was provided")
				}

				logger.Info("scan results will be filtered using advisory data", "filterSet", p.advisoryFilterSet, "advisoriesRepoDir", advisoriesRepoDir)
			}

			if p.recordDetections && advisoriesRepoDir == "" {
				return errors.New("recording detections requested, but no advisories repo dir was provided")
			}

			var advisoryDocumentIndex *configs.Index[advisories.Document]

			if advisoriesRepoDir != "" {
				if p.advisoryFilterSet == "" && !p.recordDetections {
					return errors.New("advisories repo dir provided, but no advisory filter set was specified (see -f/--advisory-filter)")
				}

				dir := advisoriesRepoDir
				advisoryFsys := rwos.DirFS(dir)
				index, err := advisories.NewIndex(ctx, advisoryFsys)
				if err != nil {
					return fmt.Errorf("unable to index advisory documents for directory %q: %w", dir, err)
				}
				advisoryDocumentIndex = index
			}

			g, err := dag.NewGraph(ctx, os.DirFS(filepath.Join(p.dir, "recipes")))
			if err != nil {
				return err
			}

			packages := args
			if len(packages) == 0 {
				packages = g.Nodes()
			} else {
				for _, pkg := range packages {
					if g.Resolved(pkg) == nil {
						return fmt.Errorf("package %q not found in %s", pkg, p.dir)
					}
				}
			}

			scans, failingRequireZero, err := p.scanEverything(ctx, g, packages, advisoryDocumentIndex)
			if err != nil {
				return err
			}

			if p.outputFormat == outputFormatJSON {
				enc := json.NewEncoder(os.Stdout)
				if err := enc.Encode(scans); err != nil {
					return fmt.Errorf("failed to marshal scans to JSON: %w", err)
				}
			}

			if len(failingRequireZero) > 0 {
				return fmt.Errorf("vulnerabilities found in the following package(s):\n%s", strings.Join(failingRequireZero, "\n"))
			}

			return nil
		},
	}

	p.addFlagsTo(cmd)
	return cmd
}

type scanResult struct {
	Package  string        `json:"package"`
	Version  string        `json:"version"`
	Findings []osv.Finding `json:"findings"`
}

func (p *scanParams) scanEverything(ctx context.Context, g *dag.Graph, packages []string, advisoryDocumentIndex *configs.Index[advisories.Document]) ([]scanResult, []string, error) {
	// Queries run concurrently; results are handled sequentially so the
	// output order stays deterministic.
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0) + 1)

	// done is a slice of pseudo-promises that get closed when findings[i] is
	// ready to be handled.
	done := make([]chan struct{}, len(packages))
	for i := range packages {
		done[i] = make(chan struct{})
	}

	findings := make([][]osv.Finding, len(packages))
	scans := make([]scanResult, len(packages))
	errs := make([]error, len(packages))

	var failingRequireZero []string

	client := osv.New()

	eg.Go(func() error {
		for i, ch := range done {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ch:
			}

			pkg := packages[i]

			if err := errs[i]; err != nil {
				if p.outputFormat == outputFormatOutline {
					fmt.Printf("❌ Skipping %q: scan failed: %v\n", pkg, err)
				}
				continue
			}

			res := g.Resolved(pkg)

			if p.outputFormat == outputFormatOutline {
				fmt.Printf("🔎 Scanning %s-%s\n", res.Recipe.Name(), res.Recipe.Version())
			}

			result, err := p.handleSingleResult(ctx, res, findings[i], advisoryDocumentIndex)
			if err != nil {
				return fmt.Errorf("failed to scan %q: %w", pkg, err)
			}

			scans[i] = *result

			if p.requireZeroFindings && len(result.Findings) > 0 {
				// Accumulate the list of failures to be returned at the end, so all scans still complete
				failingRequireZero = append(failingRequireZero, pkg)
			}
		}

		return nil
	})

	for i, pkg := range packages {
		eg.Go(func() error {
			findings[i], errs[i] = scanSingle(ctx, client, g.Resolved(pkg))

			// Signals to the handler goroutine that packages[i] is ready.
			close(done[i])

			return nil
		})
	}

	return scans, failingRequireZero, errors.Join(eg.Wait(), errors.Join(errs...))
}

func scanSingle(ctx context.Context, client *osv.Client, res *render.Resolved) ([]osv.Finding, error) {
	reqs := make([]python.Requirement, 0, len(res.Recipe.Requirements.Run))
	for _, spec := range res.Recipe.Requirements.Run {
		req, err := python.ParseRequirement(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid run requirement %q: %w", spec, err)
		}
		reqs = append(reqs, req)
	}

	return client.Scan(ctx, reqs)
}

func (p *scanParams) handleSingleResult(ctx context.Context, res *render.Resolved, findings []osv.Finding, advisoryDocumentIndex *configs.Index[advisories.Document]) (*scanResult, error) {
	// If requested, filter scan results using advisories

	if set := p.advisoryFilterSet; set != "" {
		var err error
		findings, err = advisories.FilterFindings(advisoryDocumentIndex, set, findings)
		if err != nil {
			return nil, fmt.Errorf("failed to filter scan results with advisories: %w", err)
		}
	}

	// If requested, record what's left as detection events

	if p.recordDetections {
		for _, f := range findings {
			req := advisories.Request{
				Package:         f.Package,
				VulnerabilityID: f.Vuln.ID,
				Aliases:         f.Vuln.Aliases,
				Event: advisories.Event{
					Timestamp: advisories.Now(),
					Type:      advisories.EventTypeDetection,
					Note:      fmt.Sprintf("found while scanning %s-%s", res.Recipe.Name(), res.Recipe.Version()),
				},
			}
			if err := advisories.Record(ctx, advisoryDocumentIndex, req); err != nil {
				return nil, fmt.Errorf("failed to record detection for %q: %w", f.Vuln.ID, err)
			}
		}
	}

	// Handle CLI options

	if p.outputFormat == outputFormatOutline {
		// Print output immediately

		if len(findings) == 0 {
			fmt.Println("✅ No vulnerabilities found")
		} else {
			tree := newFindingsTree(findings)
			fmt.Println(tree.render())
		}
	}

	return &scanResult{
		Package:  res.Recipe.Name(),
		Version:  res.Recipe.Version(),
		Findings: findings,
	}, nil
}

type scanParams struct {
	dir                 string
	requireZeroFindings bool
	outputFormat        string
	advisoryFilterSet   string
	advisoriesRepoDir   string
	recordDetections    bool
}

func (p *scanParams) addFlagsTo(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.dir, "dir", "d", ".", "directory containing the recipe repository")
	cmd.Flags().BoolVar(&p.requireZeroFindings, "require-zero", false, "exit 1 if any vulnerabilities are found")
	cmd.Flags().StringVarP(&p.outputFormat, "output", "o", "", fmt.Sprintf("output format (%s), defaults to %s", strings.Join(validOutputFormats, "|"), outputFormatOutline))
	cmd.Flags().StringVarP(&p.advisoryFilterSet, "advisory-filter", "f", "", fmt.Sprintf("exclude findings that are referenced from the specified set of advisories (%s)", strings.Join(advisories.ValidFilterSets, "|")))
	addAdvisoriesDirFlag(&p.advisoriesRepoDir, cmd)
	cmd.Flags().BoolVar(&p.recordDetections, "record", false, "record new findings as detection events in the advisories repository")
}

type findingsTree struct {
	findingsByPackage map[string][]osv.Finding
	versionsByPackage map[string]string
}

func newFindingsTree(findings []osv.Finding) *findingsTree {
	tree := make(map[string][]osv.Finding)
	versions := make(map[string]string)

	for i := range findings {
		f := findings[i]
		tree[f.Package] = append(tree[f.Package], f)
		versions[f.Package] = f.Version
	}

	return &findingsTree{
		findingsByPackage: tree,
		versionsByPackage: versions,
	}
}

func (t findingsTree) render() string {
	packages := lo.Keys(t.findingsByPackage)
	sort.Strings(packages)

	var lines []string
	for i, pkg := range packages {
		var treeStem, verticalLine string
		if i == len(packages)-1 {
			treeStem = "└── "
			verticalLine = " "
		} else {
			treeStem = "├── "
			verticalLine = "│"
		}

		label := pkg
		if version := t.versionsByPackage[pkg]; version != "" {
			label += " " + version
		}
		line := treeStem + fmt.Sprintf("📦 %s %s", label, styleSubtle.Render("(PyPI)"))
		lines = append(lines, line)

		findings := t.findingsByPackage[pkg]
		sort.SliceStable(findings, func(i, j int) bool {
			return findings[i].Vuln.ID < findings[j].Vuln.ID
		})

		for i := range findings {
			f := findings[i]
			line := fmt.Sprintf(
				"%s       %s %s%s",
				verticalLine,
				renderSeverity(f.Severity()),
				renderVulnerabilityID(f),
				renderFixedIn(f),
			)
			lines = append(lines, line)
		}

		lines = append(lines, verticalLine)
	}

	return strings.Join(lines, "\n")
}

func renderSeverity(severity string) string {
	switch severity {
	case "LOW":
		return styleLow.Render(severity)
	case "MODERATE", "MEDIUM":
		return styleMedium.Render(severity)
	case "HIGH":
		return styleHigh.Render(severity)
	case "CRITICAL":
		return styleCritical.Render(severity)
	case "UNKNOWN":
		return styleUnknown.Render(severity)
	default:
		return severity
	}
}

func renderVulnerabilityID(f osv.Finding) string {
	var cveID string

	for _, alias := range f.Vuln.Aliases {
		if strings.HasPrefix(alias, "CVE-") {
			cveID = alias
			break
		}
	}

	if cveID == "" {
		return hyperlinkVulnerabilityID(f.Vuln.ID)
	}

	return fmt.Sprintf(
		"%s %s",
		hyperlinkVulnerabilityID(cveID),

		styleSubtle.Render(hyperlinkVulnerabilityID(f.Vuln.ID)),
	)
}

var termSupportsHyperlinks = termlink.SupportsHyperlinks()

func hyperlinkVulnerabilityID(id string) string {
	if !termSupportsHyperlinks {
		return id
	}

	switch {
	case strings.HasPrefix(id, "CVE-"):
		return termlink.Link(id, fmt.Sprintf("https://nvd.nist.gov/vuln/detail/%s", id))

	case strings.HasPrefix(id, "GHSA-"):
		return termlink.Link(id, fmt.Sprintf("https://github.com/advisories/%s", id))

	case strings.HasPrefix(id, "PYSEC-"):
		return termlink.Link(id, fmt.Sprintf("https://osv.dev/vulnerability/%s", id))
	}

	return id
}

func renderFixedIn(f osv.Finding) string {
	fixed := f.FixedVersion()
	if fixed == "" {
		return ""
	}

	return fmt.Sprintf(" fixed in %s", fixed)
}

var (
	styleSubtle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))

	styleUnknown  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	styleLow      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff00"))
	styleMedium   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffff00"))
	styleHigh     = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff9900"))
	styleCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff0000"))
)
