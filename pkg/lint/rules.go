package lint

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/github/go-spdx/v2/spdxexp"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/conda-tools/condactl/pkg/python"
)

var (
	reValidSHA256 = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

	// knownSourceHosts are the hosts recipes conventionally fetch sdists
	// from. A host a small edit distance away from one of these is treated
	// as a typosquat.
	knownSourceHosts = []string{
		"pypi.io",
		"pypi.org",
		"files.pythonhosted.org",
		"github.com",
		"gitlab.com",
	}
)

// AllRules is a list of all available rules to evaluate.
var AllRules = func(l *Linter) Rules {
	return Rules{
		{
			Name:        "lower-case-name",
			Description: "package names are always lower case",
			Severity:    SeverityError,
			LintFunc: func(t Target) error {
				name := t.Resolved.Recipe.Name()
				if name != strings.ToLower(name) {
					return fmt.Errorf("package name %q is not lower-case", name)
				}
				return nil
			},
		},
		{
			Name:        "version-matches-metadata",
			Description: "the manifest version must equal the metadata version",
			Severity:    SeverityError,
			LintFunc: func(t Target) error {
				mdVersion, err := t.Resolved.Metadata.Version()
				if err != nil {
					return err
				}
				if v := t.Resolved.Recipe.Version(); v != mdVersion {
					return fmt.Errorf("manifest version %s does not match metadata version %s", v, mdVersion)
				}
				return nil
			},
		},
		{
			Name:        "empty-requirements",
			Description: "host and run dependency sequences must not be empty",
			Severity:    SeverityError,
			LintFunc: func(t Target) error {
				r := t.Resolved.Recipe
				if len(r.Requirements.Host) == 0 {
					return fmt.Errorf("requirements.host is empty")
				}
				if len(r.Requirements.Run) == 0 {
					return fmt.Errorf("requirements.run is empty")
				}
				return nil
			},
		},
		{
			Name:        "missing-python-pin",
			Description: "host and run must carry a constrained python entry",
			Severity:    SeverityError,
			LintFunc: func(t Target) error {
				r := t.Resolved.Recipe
				if !hasPythonPin(r.Requirements.Host) {
					return fmt.Errorf("requirements.host has no constrained python entry")
				}
				if !hasPythonPin(r.Requirements.Run) {
					return fmt.Errorf("requirements.run has no constrained python entry")
				}
				return nil
			},
		},
		{
			Name:        "invalid-sha256",
			Description: "source archives must carry a well-formed sha256 digest",
			Severity:    SeverityError,
			LintFunc: func(t Target) error {
				src := t.Resolved.Recipe.Source
				if src.SHA256 == "" {
					return fmt.Errorf("source.sha256 is missing")
				}
				if !reValidSHA256.MatchString(src.SHA256) {
					return fmt.Errorf("source.sha256 is not valid SHA256")
				}
				return nil
			},
			ConditionFuncs: []ConditionFunc{hasSource},
		},
		{
			Name:        "uri-mimic",
			Description: "source hosts must not mimic well-known hosts",
			Severity:    SeverityError,
			LintFunc: func(t Target) error {
				u, err := url.Parse(t.Resolved.Recipe.Source.URL)
				if err != nil {
					return fmt.Errorf("source.url is not a valid URL")
				}
				host := u.Hostname()
				for _, known := range knownSourceHosts {
					if host == known || strings.HasSuffix(host, "."+known) {
						return nil
					}
				}
				for _, known := range knownSourceHosts {
					d := levenshtein.DistanceForStrings([]rune(host), []rune(known), levenshtein.DefaultOptions)
					if d <= 2 {
						return fmt.Errorf("%q too similar to %q", host, known)
					}
				}
				return nil
			},
			ConditionFuncs: []ConditionFunc{hasSource},
		},
		{
			Name:        "single-entry-point",
			Description: "console packages declare exactly one entry point",
			Severity:    SeverityWarning,
			LintFunc: func(t Target) error {
				eps, err := t.Resolved.Recipe.EntryPoints()
				if err != nil {
					return err
				}
				seen := map[string]bool{}
				for _, ep := range eps {
					if seen[ep.Name] {
						return fmt.Errorf("entry point %q is declared more than once", ep.Name)
					}
					seen[ep.Name] = true
				}
				if len(eps) > 1 {
					return fmt.Errorf("declares %d entry points", len(eps))
				}
				return nil
			},
			ConditionFuncs: []ConditionFunc{
				func(t Target) bool { return len(t.Resolved.Recipe.Build.EntryPoints) > 0 },
			},
		},
		{
			Name:        "no-test-commands",
			Description: "every package needs an installability smoke test",
			Severity:    SeverityError,
			LintFunc: func(t Target) error {
				tst := t.Resolved.Recipe.Test
				if tst == nil || len(tst.Commands) == 0 {
					return fmt.Errorf("test.commands is empty")
				}
				return nil
			},
		},
		{
			Name:        "valid-spdx-license",
			Description: "license must be a valid SPDX expression",
			Severity:    SeverityWarning,
			LintFunc: func(t Target) error {
				license := t.Resolved.Recipe.About.License
				if valid, _ := spdxexp.ValidateLicenses([]string{license}); !valid {
					return fmt.Errorf("license %q is not a valid SPDX expression", license)
				}
				return nil
			},
			ConditionFuncs: []ConditionFunc{hasLicense},
		},
		{
			Name:        "about-urls-present",
			Description: "about should carry home, doc and dev URLs",
			Severity:    SeverityWarning,
			LintFunc: func(t Target) error {
				about := t.Resolved.Recipe.About
				if about == nil {
					return fmt.Errorf("about section is missing")
				}
				var missing []string
				if about.Home == "" {
					missing = append(missing, "home")
				}
				if about.DocURL == "" {
					missing = append(missing, "doc_url")
				}
				if about.DevURL == "" {
					missing = append(missing, "dev_url")
				}
				if len(missing) > 0 {
					return fmt.Errorf("about is missing %s", strings.Join(missing, ", "))
				}
				return nil
			},
		},
		{
			Name:        "source-url-templated",
			Description: "source urls should reference the version via substitution",
			Severity:    SeverityWarning,
			LintFunc: func(t Target) error {
				version := t.Resolved.Recipe.Version()
				for _, line := range strings.Split(string(t.Template), "\n") {
					trimmed := strings.TrimSpace(line)
					if !strings.HasPrefix(trimmed, "url:") {
						continue
					}
					if strings.Contains(trimmed, version) {
						return fmt.Errorf("source url hardcodes version %s instead of a substitution", version)
					}
				}
				return nil
			},
			ConditionFuncs: []ConditionFunc{hasSource},
		},
	}
}

func hasSource(t Target) bool {
	src := t.Resolved.Recipe.Source
	return src != nil && src.URL != ""
}

func hasLicense(t Target) bool {
	return t.Resolved.Recipe.About != nil && t.Resolved.Recipe.About.License != ""
}

// hasPythonPin reports whether any entry names the python interpreter
// with at least one version constraint.
func hasPythonPin(reqs []string) bool {
	for _, raw := range reqs {
		req, err := python.ParseRequirement(raw)
		if err != nil {
			continue
		}
		if req.NormalizedName() == "python" && len(req.Constraints) > 0 {
			return true
		}
	}
	return false
}
