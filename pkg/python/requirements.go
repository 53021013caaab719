// Package python models Python package requirement strings the way they
// appear in recipe dependency lists and in upstream packaging metadata:
// "libsbml", "python >=3.7", "lxml[html] >=4.2,<5".
package python

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
)

var (
	namePattern   = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?`)
	normalizeRuns = regexp.MustCompile(`[-_.]+`)

	constraintOps = []string{"===", "==", "!=", "<=", ">=", "~=", "<", ">"}
)

// NormalizeName normalizes a package name following PEP 503: lower-cased,
// with runs of "-", "_" and "." replaced by a single "-".
func NormalizeName(name string) string {
	return normalizeRuns.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Constraint is a single version comparison, e.g. ">=3.7".
type Constraint struct {
	Op      string
	Version string
}

func (c Constraint) String() string {
	return c.Op + c.Version
}

// Requirement is one parsed entry of a dependency sequence.
type Requirement struct {
	// Name is the package name exactly as authored.
	Name string

	// Extras lists requested extras ("lxml[html,cssselect]").
	Extras []string

	// Constraints are the version comparisons, in authored order.
	Constraints []Constraint

	// Marker carries a trailing environment marker verbatim
	// ("; python_version < '3.8'"), without the semicolon. Markers are
	// preserved but never evaluated here.
	Marker string
}

// NormalizedName returns the requirement's name normalized per PEP 503.
func (r Requirement) NormalizedName() string {
	return NormalizeName(r.Name)
}

// String renders the requirement in the form dependency lists use:
// name, one space, comma-joined constraints ("python >=3.7").
func (r Requirement) String() string {
	sb := strings.Builder{}
	sb.WriteString(r.Name)
	if len(r.Extras) > 0 {
		sb.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if len(r.Constraints) > 0 {
		specs := make([]string, 0, len(r.Constraints))
		for _, c := range r.Constraints {
			specs = append(specs, c.String())
		}
		sb.WriteString(" " + strings.Join(specs, ","))
	}
	return sb.String()
}

// Matches reports whether the given version satisfies every constraint of
// the requirement. A requirement without constraints matches anything.
func (r Requirement) Matches(v string) (bool, error) {
	if len(r.Constraints) == 0 {
		return true, nil
	}
	candidate, err := version.NewVersion(v)
	if err != nil {
		return false, fmt.Errorf("parsing candidate version %q: %w", v, err)
	}
	specs := make([]string, 0, len(r.Constraints))
	for _, c := range r.Constraints {
		spec, err := c.goConstraint()
		if err != nil {
			return false, err
		}
		specs = append(specs, spec)
	}
	constraints, err := version.NewConstraint(strings.Join(specs, ", "))
	if err != nil {
		return false, fmt.Errorf("building constraint from %q: %w", r.String(), err)
	}
	return constraints.Check(candidate), nil
}

// goConstraint translates a PEP 440 comparison into go-version constraint
// syntax. "~=" is the compatible-release operator, which is go-version's
// pessimistic "~>"; "==X.Y.*" prefix matches become pessimistic constraints
// on "X.Y.0".
func (c Constraint) goConstraint() (string, error) {
	v := c.Version
	switch c.Op {
	case "==":
		if strings.HasSuffix(v, ".*") {
			return "~> " + strings.TrimSuffix(v, ".*") + ".0", nil
		}
		return "= " + v, nil
	case "===":
		return "= " + v, nil
	case "~=":
		return "~> " + v, nil
	case "!=", ">", "<", ">=", "<=":
		if strings.HasSuffix(v, ".*") {
			return "", fmt.Errorf("wildcard version %q only allowed with ==", c.String())
		}
		return c.Op + " " + v, nil
	}
	return "", fmt.Errorf("unknown constraint operator %q", c.Op)
}

// ParseRequirement parses a requirement string in either the dependency-list
// form ("python >=3.7") or the upstream metadata form
// ("libsbml (>=5.18) ; extra == 'test'").
func ParseRequirement(s string) (Requirement, error) {
	r := Requirement{}

	s, marker, found := strings.Cut(s, ";")
	if found {
		r.Marker = strings.TrimSpace(marker)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return r, fmt.Errorf("empty requirement")
	}

	name := namePattern.FindString(s)
	if name == "" {
		return r, fmt.Errorf("requirement %q has no package name", s)
	}
	r.Name = name
	rest := strings.TrimSpace(s[len(name):])

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return r, fmt.Errorf("requirement %q has an unterminated extras list", s)
		}
		for _, extra := range strings.Split(rest[1:end], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				r.Extras = append(r.Extras, extra)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return r, nil
	}

	for _, spec := range strings.Split(rest, ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		c, err := parseConstraint(spec)
		if err != nil {
			return r, fmt.Errorf("requirement %q: %w", s, err)
		}
		r.Constraints = append(r.Constraints, c)
	}

	return r, nil
}

func parseConstraint(spec string) (Constraint, error) {
	for _, op := range constraintOps {
		if strings.HasPrefix(spec, op) {
			v := strings.TrimSpace(strings.TrimPrefix(spec, op))
			if v == "" {
				return Constraint{}, fmt.Errorf("constraint %q has no version", spec)
			}
			return Constraint{Op: op, Version: v}, nil
		}
	}

	// A bare version ("libsbml 5.18") pins exactly.
	if _, err := version.NewVersion(spec); err != nil {
		return Constraint{}, fmt.Errorf("constraint %q has no comparison operator and is not a version", spec)
	}
	return Constraint{Op: "==", Version: spec}, nil
}

// InterpreterPin composes the pinned interpreter requirement from a
// python_requires expression, e.g. ">=3.7" becomes "python >=3.7".
func InterpreterPin(pythonRequires string) (Requirement, error) {
	spec := strings.ReplaceAll(pythonRequires, " ", "")
	if spec == "" {
		return Requirement{}, fmt.Errorf("empty python_requires")
	}
	r, err := ParseRequirement("python " + spec)
	if err != nil {
		return Requirement{}, fmt.Errorf("composing interpreter pin from %q: %w", pythonRequires, err)
	}
	return r, nil
}
