package python

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{name: "casq", expected: "casq"},
		{name: "CaSQ", expected: "casq"},
		{name: "python-libsbml", expected: "python-libsbml"},
		{name: "ruamel.yaml", expected: "ruamel-yaml"},
		{name: "typing_extensions", expected: "typing-extensions"},
		{name: "weird.-_.name", expected: "weird-name"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeName(tc.name))
		})
	}
}

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		input    string
		expected Requirement
	}{
		{
			input:    "libsbml",
			expected: Requirement{Name: "libsbml"},
		},
		{
			input: "python >=3.7",
			expected: Requirement{
				Name:        "python",
				Constraints: []Constraint{{Op: ">=", Version: "3.7"}},
			},
		},
		{
			input: "lxml>=4.2,<5",
			expected: Requirement{
				Name: "lxml",
				Constraints: []Constraint{
					{Op: ">=", Version: "4.2"},
					{Op: "<", Version: "5"},
				},
			},
		},
		{
			input: "loguru (>=0.4.1)",
			expected: Requirement{
				Name:        "loguru",
				Constraints: []Constraint{{Op: ">=", Version: "0.4.1"}},
			},
		},
		{
			input: "networkx ~=2.4",
			expected: Requirement{
				Name:        "networkx",
				Constraints: []Constraint{{Op: "~=", Version: "2.4"}},
			},
		},
		{
			input: "libsbml 5.19.0",
			expected: Requirement{
				Name:        "libsbml",
				Constraints: []Constraint{{Op: "==", Version: "5.19.0"}},
			},
		},
		{
			input: "lxml[html,cssselect] >=4.2",
			expected: Requirement{
				Name:        "lxml",
				Extras:      []string{"html", "cssselect"},
				Constraints: []Constraint{{Op: ">=", Version: "4.2"}},
			},
		},
		{
			input: "importlib-metadata ; python_version < '3.8'",
			expected: Requirement{
				Name:   "importlib-metadata",
				Marker: "python_version < '3.8'",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseRequirement(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseRequirement_Invalid(t *testing.T) {
	for _, input := range []string{
		"",
		"   ",
		">=3.7",
		"lxml >=",
		"lxml [html",
		"lxml banana",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseRequirement(input)
			assert.Error(t, err)
		})
	}
}

func TestRequirementString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "libsbml", expected: "libsbml"},
		{input: "python>=3.7", expected: "python >=3.7"},
		{input: "loguru (>=0.4.1)", expected: "loguru >=0.4.1"},
		{input: "lxml >= 4.2 , < 5", expected: "lxml >=4.2,<5"},
		{input: "lxml[html] >=4.2", expected: "lxml[html] >=4.2"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			r, err := ParseRequirement(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, r.String())
		})
	}
}

func TestRequirementMatches(t *testing.T) {
	tests := []struct {
		requirement string
		version     string
		matches     bool
	}{
		{requirement: "libsbml", version: "5.19.0", matches: true},
		{requirement: "python >=3.7", version: "3.7.0", matches: true},
		{requirement: "python >=3.7", version: "3.6.9", matches: false},
		{requirement: "lxml >=4.2,<5", version: "4.9.1", matches: true},
		{requirement: "lxml >=4.2,<5", version: "5.0.0", matches: false},
		{requirement: "networkx ~=2.4", version: "2.8.0", matches: true},
		{requirement: "networkx ~=2.4", version: "3.0.0", matches: false},
		{requirement: "casq ==1.2.*", version: "1.2.7", matches: true},
		{requirement: "casq ==1.2.*", version: "1.3.0", matches: false},
	}

	for _, tc := range tests {
		t.Run(tc.requirement+" "+tc.version, func(t *testing.T) {
			r, err := ParseRequirement(tc.requirement)
			require.NoError(t, err)
			got, err := r.Matches(tc.version)
			require.NoError(t, err)
			assert.Equal(t, tc.matches, got)
		})
	}
}

func TestInterpreterPin(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: ">=3.7", expected: "python >=3.7"},
		{input: ">= 3.7", expected: "python >=3.7"},
		{input: ">=3.7,<3.12", expected: "python >=3.7,<3.12"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			pin, err := InterpreterPin(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, pin.String())
		})
	}

	_, err := InterpreterPin("")
	assert.Error(t, err)
}
