package lint

import (
	"github.com/hashicorp/go-multierror"

	"github.com/conda-tools/condactl/pkg/render"
)

// Target is one recipe as the linter sees it: its directory name, the raw
// template text, and the resolved form.
type Target struct {
	// Name is the recipe directory name.
	Name string

	// Template is the unrendered manifest template.
	Template []byte

	// Resolved is the rendered and parsed recipe.
	Resolved *render.Resolved
}

// LintFunc is a function that lints a single recipe.
type LintFunc func(Target) error

// ConditionFunc is a function that checks if a rule should be executed.
type ConditionFunc func(Target) bool

// Severity is the severity of a rule.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Rule represents a linter rule.
type Rule struct {
	// Name is the name of the rule.
	Name string

	// Description is the description of the rule.
	Description string

	// Severity is the severity of the rule.
	Severity Severity

	// LintFunc is the function that lints a single recipe.
	LintFunc LintFunc

	// ConditionFuncs is a list of and-conditioned functions that check if
	// the rule should be executed.
	ConditionFuncs []ConditionFunc
}

// Rules is a list of Rule.
type Rules []Rule

// EvalRuleError pairs a failed rule with its rendered finding.
type EvalRuleError struct {
	Rule  Rule
	Error error
}

// EvalRuleErrors is a list of EvalRuleError.
type EvalRuleErrors []EvalRuleError

// WrapErrors folds the collected findings into a single error.
func (e EvalRuleErrors) WrapErrors() error {
	var errs *multierror.Error
	for _, re := range e {
		errs = multierror.Append(errs, re.Error)
	}
	return errs.ErrorOrNil()
}

// EvalResult represents the result of an evaluation for a single recipe.
type EvalResult struct {
	// File is the name of the recipe that was evaluated against.
	File string

	// Errors is a list of rule findings.
	Errors EvalRuleErrors
}

// Result is a list of EvalResult.
type Result []EvalResult

// HasErrorSeverity reports whether any finding carries ERROR severity.
// Lint exits non-zero only when this holds.
func (r Result) HasErrorSeverity() bool {
	for _, res := range r {
		for _, e := range res.Errors {
			if e.Rule.Severity == SeverityError {
				return true
			}
		}
	}
	return false
}
