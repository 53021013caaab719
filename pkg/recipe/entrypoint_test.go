package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntryPoint(t *testing.T) {
	tests := []struct {
		input    string
		expected EntryPoint
	}{
		{
			input:    "casq = casq.celldesigner2qual:main",
			expected: EntryPoint{Name: "casq", Module: "casq.celldesigner2qual", Function: "main"},
		},
		{
			input:    "black=black:patched_main",
			expected: EntryPoint{Name: "black", Module: "black", Function: "patched_main"},
		},
		{
			input:    "pip3 = pip._internal.cli.main:main",
			expected: EntryPoint{Name: "pip3", Module: "pip._internal.cli.main", Function: "main"},
		},
		{
			input:    "tool = pkg.mod:cli.main",
			expected: EntryPoint{Name: "tool", Module: "pkg.mod", Function: "cli.main"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			ep, err := ParseEntryPoint(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ep)
		})
	}
}

func TestParseEntryPoint_Invalid(t *testing.T) {
	for _, input := range []string{
		"",
		"casq",
		"casq = casq.celldesigner2qual",
		" = casq:main",
		"casq = :main",
		"casq = casq:",
		"casq = 1casq:main",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseEntryPoint(input)
			assert.Error(t, err)
		})
	}
}

func TestEntryPointString(t *testing.T) {
	ep, err := ParseEntryPoint("casq=casq.celldesigner2qual:main")
	require.NoError(t, err)
	assert.Equal(t, "casq = casq.celldesigner2qual:main", ep.String())
}

func TestEntryPointScript(t *testing.T) {
	ep := EntryPoint{Name: "casq", Module: "casq.celldesigner2qual", Function: "main"}
	script := ep.Script()
	assert.Contains(t, script, "from casq.celldesigner2qual import main")
	assert.Contains(t, script, "sys.exit(main())")

	dotted := EntryPoint{Name: "tool", Module: "pkg.mod", Function: "cli.main"}
	script = dotted.Script()
	assert.Contains(t, script, "from pkg.mod import cli")
	assert.Contains(t, script, "sys.exit(cli.main())")
}
