package lint

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinter_Rules(t *testing.T) {
	tests := []struct {
		dir  string
		want EvalResult
	}{
		{
			dir: "upper-name",
			want: EvalResult{
				File: "upper-name",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "lower-case-name", Severity: SeverityError},
						Error: fmt.Errorf(`[lower-case-name]: package name "Upper-Name" is not lower-case (ERROR)`),
					},
				},
			},
		},
		{
			dir: "version-drift",
			want: EvalResult{
				File: "version-drift",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "version-matches-metadata", Severity: SeverityError},
						Error: fmt.Errorf("[version-matches-metadata]: manifest version 2.0.0 does not match metadata version 1.0.0 (ERROR)"),
					},
				},
			},
		},
		{
			dir: "no-python-pin",
			want: EvalResult{
				File: "no-python-pin",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "missing-python-pin", Severity: SeverityError},
						Error: fmt.Errorf("[missing-python-pin]: requirements.run has no constrained python entry (ERROR)"),
					},
				},
			},
		},
		{
			dir: "no-tests",
			want: EvalResult{
				File: "no-tests",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "no-test-commands", Severity: SeverityError},
						Error: fmt.Errorf("[no-test-commands]: test.commands is empty (ERROR)"),
					},
				},
			},
		},
		{
			dir: "bad-license",
			want: EvalResult{
				File: "bad-license",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "valid-spdx-license", Severity: SeverityWarning},
						Error: fmt.Errorf(`[valid-spdx-license]: license "GPLv3" is not a valid SPDX expression (WARNING)`),
					},
				},
			},
		},
		{
			dir: "sparse-about",
			want: EvalResult{
				File: "sparse-about",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "about-urls-present", Severity: SeverityWarning},
						Error: fmt.Errorf("[about-urls-present]: about is missing home, doc_url, dev_url (WARNING)"),
					},
				},
			},
		},
		{
			// The nolint directive suppresses the license finding; the
			// missing dev_url still surfaces.
			dir: "nolint",
			want: EvalResult{
				File: "nolint",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "about-urls-present", Severity: SeverityWarning},
						Error: fmt.Errorf("[about-urls-present]: about is missing dev_url (WARNING)"),
					},
				},
			},
		},
		{
			dir: "multi-entry",
			want: EvalResult{
				File: "multi-entry",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "single-entry-point", Severity: SeverityWarning},
						Error: fmt.Errorf("[single-entry-point]: declares 2 entry points (WARNING)"),
					},
				},
			},
		},
		{
			dir: "bad-digest",
			want: EvalResult{
				File: "bad-digest",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "invalid-sha256", Severity: SeverityError},
						Error: fmt.Errorf("[invalid-sha256]: source.sha256 is not valid SHA256 (ERROR)"),
					},
				},
			},
		},
		{
			dir: "typosquat",
			want: EvalResult{
				File: "typosquat",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "uri-mimic", Severity: SeverityError},
						Error: fmt.Errorf(`[uri-mimic]: "files.pythonh0sted.org" too similar to "files.pythonhosted.org" (ERROR)`),
					},
				},
			},
		},
		{
			dir: "hardcoded-url",
			want: EvalResult{
				File: "hardcoded-url",
				Errors: EvalRuleErrors{
					{
						Rule:  Rule{Name: "source-url-templated", Severity: SeverityWarning},
						Error: fmt.Errorf("[source-url-templated]: source url hardcodes version 1.0.0 instead of a substitution (WARNING)"),
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			l := newTestLinter(tt.dir)
			got, err := l.Lint(context.Background())
			require.NoError(t, err)

			// Always should be a single element array.
			require.Len(t, got, 1)
			g := got[0]

			assert.Equal(t, tt.want.File, g.File)
			require.Len(t, g.Errors, len(tt.want.Errors))

			for i, e := range g.Errors {
				assert.Equal(t, tt.want.Errors[i].Rule.Name, e.Rule.Name)
				assert.Equal(t, tt.want.Errors[i].Rule.Severity, e.Rule.Severity)
				assert.Equal(t, tt.want.Errors[i].Error.Error(), e.Error.Error())
			}
		})
	}
}

func TestHasPythonPin(t *testing.T) {
	assert.True(t, hasPythonPin([]string{"loguru", "python >=3.7"}))
	assert.False(t, hasPythonPin([]string{"loguru"}))
	// An unconstrained interpreter entry is not a pin.
	assert.False(t, hasPythonPin([]string{"python"}))
}
