package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conda-tools/condactl/pkg/recipe"
	"github.com/conda-tools/condactl/pkg/setupmeta"
)

func md(doc map[string]any) *setupmeta.Metadata {
	return setupmeta.New(doc, "setup-meta.json")
}

func TestRender_SetAndSubstitute(t *testing.T) {
	template := `{% set name = "CaSQ" %}
{% set version = data.get('version') %}
package:
  name: {{ name|lower }}
  version: {{ version }}
`
	out, err := Render([]byte(template), md(map[string]any{"version": "1.2.0"}))
	require.NoError(t, err)
	assert.Equal(t, `package:
  name: casq
  version: 1.2.0
`, string(out))
}

func TestRender_ForLoop(t *testing.T) {
	template := `run:
{% for dep in data.get('install_requires') %}
  - {{ dep }}
{% endfor %}
  - python {{ data.get('python_requires') }}
`
	out, err := Render([]byte(template), md(map[string]any{
		"install_requires": []any{"libsbml"},
		"python_requires":  ">=3.7",
	}))
	require.NoError(t, err)
	assert.Equal(t, `run:
  - libsbml
  - python >=3.7
`, string(out))
}

func TestRender_GetDefault(t *testing.T) {
	template := `license: {{ data.get('license', 'GPL-3.0-or-later') }}`

	out, err := Render([]byte(template), md(map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, "license: GPL-3.0-or-later", string(out))

	out, err = Render([]byte(template), md(map[string]any{"license": "MIT"}))
	require.NoError(t, err)
	assert.Equal(t, "license: MIT", string(out))
}

func TestRender_Filters(t *testing.T) {
	tests := []struct {
		name     string
		template string
		doc      map[string]any
		expected string
	}{
		{
			name:     "lower",
			template: `{{ data.get('name') | lower }}`,
			doc:      map[string]any{"name": "CaSQ"},
			expected: "casq",
		},
		{
			name:     "upper",
			template: `{{ 'noarch' | upper }}`,
			doc:      map[string]any{},
			expected: "NOARCH",
		},
		{
			name:     "trim",
			template: `{{ data.get('description') | trim }}`,
			doc:      map[string]any{"description": "  padded  "},
			expected: "padded",
		},
		{
			name:     "replace",
			template: `{{ data.get('name') | replace('_', '-') }}`,
			doc:      map[string]any{"name": "typing_extensions"},
			expected: "typing-extensions",
		},
		{
			name:     "join",
			template: `{{ data.get('install_requires') | join(' ') }}`,
			doc:      map[string]any{"install_requires": []any{"loguru", "networkx"}},
			expected: "loguru networkx",
		},
		{
			name:     "chained",
			template: `{{ data.get('name') | lower | replace('.', '-') }}`,
			doc:      map[string]any{"name": "Ruamel.YAML"},
			expected: "ruamel-yaml",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Render([]byte(tc.template), md(tc.doc))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(out))
		})
	}
}

func TestRender_Comments(t *testing.T) {
	template := `{# build metadata #}
package:
  name: casq {# inline #}
`
	out, err := Render([]byte(template), md(map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, `package:
  name: casq
`, string(out))
}

func TestRender_MissingKey(t *testing.T) {
	tests := []struct {
		name     string
		template string
		doc      map[string]any
		wantErr  string
	}{
		{
			name:     "get without default",
			template: `version: {{ data.get('version') }}`,
			doc:      map[string]any{},
			wantErr:  `key "version" not found`,
		},
		{
			name:     "index lookup",
			template: `doc_url: {{ data['project_urls']['Documentation'] }}`,
			doc: map[string]any{
				"project_urls": map[string]any{"Code": "https://github.com/soli/casq"},
			},
			wantErr: `key "Documentation" not found`,
		},
		{
			name:     "attribute lookup",
			template: `doc_url: {{ data.project_urls.Documentation }}`,
			doc:      map[string]any{},
			wantErr:  `key "project_urls" not found`,
		},
		{
			name:     "undefined variable",
			template: `version: {{ version }}`,
			doc:      map[string]any{},
			wantErr:  `undefined variable "version"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Render([]byte(tc.template), md(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name     string
		template string
		doc      map[string]any
		wantErr  string
	}{
		{
			name:     "unsupported directive",
			template: "{% if osx %}\n  - clang\n{% endif %}",
			doc:      map[string]any{},
			wantErr:  "unsupported",
		},
		{
			name:     "endfor without for",
			template: "{% endfor %}",
			doc:      map[string]any{},
			wantErr:  "endfor without a matching for",
		},
		{
			name:     "unterminated for",
			template: "{% for dep in data.get('install_requires') %}\n  - {{ dep }}",
			doc:      map[string]any{"install_requires": []any{"libsbml"}},
			wantErr:  "without a matching endfor",
		},
		{
			name:     "for over scalar",
			template: "{% for dep in data.get('version') %}\n  - {{ dep }}\n{% endfor %}",
			doc:      map[string]any{"version": "1.2.0"},
			wantErr:  "not a list",
		},
		{
			name:     "substituting a list",
			template: `deps: {{ data.get('install_requires') }}`,
			doc:      map[string]any{"install_requires": []any{"libsbml"}},
			wantErr:  "cannot render a list",
		},
		{
			name:     "unbalanced braces",
			template: `version: {{ data.get('version')`,
			doc:      map[string]any{"version": "1.2.0"},
			wantErr:  "unbalanced",
		},
		{
			name:     "unterminated comment",
			template: `{# note`,
			doc:      map[string]any{},
			wantErr:  "unterminated comment",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Render([]byte(tc.template), md(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRender_ErrorNamesLine(t *testing.T) {
	template := "package:\n  name: casq\n  version: {{ data.get('version') }}\n"
	_, err := Render([]byte(template), md(map[string]any{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

// Rendering the scenario template against minimal metadata must yield the
// expected identity and run requirements.
func TestRender_RunRequirementsFromMetadata(t *testing.T) {
	template := `{% set version = data.get('version') %}
package:
  name: casq
  version: {{ version }}

build:
  noarch: python
  number: 0
  script: python setup.py install --single-version-externally-managed --record=record.txt

requirements:
  host:
    - pip
    - python {{ data.get('python_requires') }}
  run:
{% for dep in data.get('install_requires') %}
    - {{ dep }}
{% endfor %}
    - python {{ data.get('python_requires') }}
`
	out, err := Render([]byte(template), md(map[string]any{
		"version":          "1.2.0",
		"install_requires": []any{"libsbml"},
		"python_requires":  ">=3.7",
	}))
	require.NoError(t, err)

	r, err := recipe.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "casq", r.Name())
	assert.Equal(t, "1.2.0", r.Version())
	assert.Equal(t, []string{"libsbml", "python >=3.7"}, r.Requirements.Run)
}

// Rendering output must be a fixed point: rendering an already rendered
// manifest changes nothing.
func TestRender_Idempotent(t *testing.T) {
	metadata := md(map[string]any{
		"version":          "1.2.0",
		"install_requires": []any{"libsbml"},
		"python_requires":  ">=3.7",
	})
	template := `{% set version = data.get('version') %}
package:
  name: casq
  version: {{ version }}
requirements:
  run:
{% for dep in data.get('install_requires') %}
    - {{ dep }}
{% endfor %}
    - python {{ data.get('python_requires') }}
`
	once, err := Render([]byte(template), metadata)
	require.NoError(t, err)
	twice, err := Render(once, metadata)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))
}

func TestRender_Deterministic(t *testing.T) {
	metadata := md(map[string]any{"version": "1.2.0"})
	template := `version: {{ data.get('version') }}`

	first, err := Render([]byte(template), metadata)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Render([]byte(template), metadata)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestRender_LoopVariableScoping(t *testing.T) {
	template := `{% set dep = "outer" %}
{% for dep in data.get('install_requires') %}
- {{ dep }}
{% endfor %}
after: {{ dep }}
`
	out, err := Render([]byte(template), md(map[string]any{
		"install_requires": []any{"a", "b"},
	}))
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{"- a", "- b", "after: outer", ""}, "\n"), string(out))
}
