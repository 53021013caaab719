// Package lint evaluates recipe directories against a rule set covering
// manifest identity, dependency hygiene, source integrity and metadata
// completeness.
package lint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conda-tools/condactl/pkg/recipe"
	"github.com/conda-tools/condactl/pkg/render"
)

// Linter represents a linter instance.
type Linter struct {
	// options are the options to configure the linter.
	options Options

	// logger is the logger to use.
	logger *log.Logger
}

// New initializes a new instance of Linter.
func New(opts ...Option) *Linter {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Linter{
		options: o,
		logger:  log.New(log.Writer(), "", log.LstdFlags|log.Lmsgprefix),
	}
}

var nolintDirective = regexp.MustCompile(`#\s*nolint:([A-Za-z0-9,_-]+)`)

// resolveRule is reported when a recipe cannot be rendered at all; no
// other rule runs for that recipe.
var resolveRule = Rule{
	Name:        "resolves",
	Description: "every recipe should render against its setup metadata",
	Severity:    SeverityError,
}

// Lint evaluates all rules against every recipe under the configured path
// and returns the result.
func (l *Linter) Lint(ctx context.Context) (Result, error) {
	rules := AllRules(l)

	skip := make(map[string]bool, len(l.options.SkipRules))
	for _, name := range l.options.SkipRules {
		skip[name] = true
	}

	targets, err := l.collectTargets()
	if err != nil {
		return Result{}, err
	}

	results := make(Result, 0)
	for _, dir := range targets {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		name := dir
		if name == "." {
			name = filepath.Base(filepath.Clean(l.options.Path))
		}

		failedRules := l.lintOne(dir, rules, skip)
		if len(failedRules) > 0 {
			results = append(results, EvalResult{
				File:   name,
				Errors: failedRules,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })
	return results, nil
}

func (l *Linter) lintOne(dir string, rules Rules, skip map[string]bool) EvalRuleErrors {
	failedRules := make(EvalRuleErrors, 0)
	fsys := os.DirFS(l.options.Path)

	template, err := fs.ReadFile(fsys, filepath.Join(dir, recipe.Filename))
	if err != nil {
		return append(failedRules, ruleError(resolveRule, err))
	}
	nolint := parseNolint(template)

	res, err := render.Resolve(fsys, dir)
	if err != nil {
		return append(failedRules, ruleError(resolveRule, err))
	}

	target := Target{Name: dir, Template: template, Resolved: res}

	for _, rule := range rules {
		if skip[rule.Name] || nolint[rule.Name] {
			if l.options.Verbose {
				l.logger.Printf("%s: skipping rule %s\n", dir, rule.Name)
			}
			continue
		}

		// Check if we should evaluate this rule at all.
		shouldEvaluate := true
		for _, cond := range rule.ConditionFuncs {
			if !cond(target) {
				shouldEvaluate = false
				break
			}
		}
		if !shouldEvaluate {
			if l.options.Verbose {
				l.logger.Printf("%s: skipping rule %s because condition is not met\n", dir, rule.Name)
			}
			continue
		}

		if err := rule.LintFunc(target); err != nil {
			failedRules = append(failedRules, ruleError(rule, err))
		}
	}

	return failedRules
}

func ruleError(rule Rule, err error) EvalRuleError {
	msg := fmt.Sprintf("[%s]: %s (%s)", rule.Name, err.Error(), rule.Severity)
	return EvalRuleError{Rule: rule, Error: errors.New(msg)}
}

// collectTargets lists the recipe directories to lint: either the
// configured path itself, when it holds a manifest, or each of its
// subdirectories that does.
func (l *Linter) collectTargets() ([]string, error) {
	if _, err := os.Stat(filepath.Join(l.options.Path, recipe.Filename)); err == nil {
		return []string{"."}, nil
	}

	entries, err := os.ReadDir(l.options.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", l.options.Path, err)
	}

	var targets []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.options.Path, entry.Name(), recipe.Filename)); err != nil {
			continue
		}
		targets = append(targets, entry.Name())
	}
	sort.Strings(targets)
	return targets, nil
}

// parseNolint collects the rule names named by "#nolint:" directives in
// the template's comments.
func parseNolint(template []byte) map[string]bool {
	skip := map[string]bool{}
	for _, m := range nolintDirective.FindAllSubmatch(template, -1) {
		for _, name := range strings.Split(string(m[1]), ",") {
			if name = strings.TrimSpace(name); name != "" {
				skip[name] = true
			}
		}
	}
	return skip
}

// Print prints the result to stdout.
func (l *Linter) Print(result Result) {
	foundAny := false
	for _, res := range result {
		if res.Errors.WrapErrors() != nil {
			foundAny = true
			l.logger.Printf("Recipe: %s: %s\n", res.File, res.Errors.WrapErrors())
		}
	}
	if !foundAny {
		l.logger.Println("No linting issues found!")
	}
}

// PrintRules prints the rules to stdout.
func (l *Linter) PrintRules() {
	l.logger.Println("Available rules:")
	for _, rule := range AllRules(l) {
		l.logger.Printf("* %s: %s (%s)\n", rule.Name, cases.Title(language.Und).String(rule.Description), rule.Severity)
	}
}
