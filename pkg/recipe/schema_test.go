package recipe

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchema(t *testing.T) {
	b, err := os.ReadFile("testdata/casq.yaml")
	require.NoError(t, err)
	assert.NoError(t, ValidateSchema(b))
}

func TestValidateSchema_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{
			name: "missing package section",
			manifest: `
build:
  number: 0
`,
		},
		{
			name: "upper-case name",
			manifest: `
package:
  name: CaSQ
  version: 1.2.0
build:
  number: 0
requirements:
  run:
    - libsbml
`,
		},
		{
			name: "version as number",
			manifest: `
package:
  name: casq
  version: 1.2
build:
  number: 0
requirements:
  run:
    - libsbml
`,
		},
		{
			name: "short sha256",
			manifest: `
package:
  name: casq
  version: 1.2.0
source:
  url: https://example.org/casq.tar.gz
  sha256: abc123
build:
  number: 0
requirements:
  run:
    - libsbml
`,
		},
		{
			name: "unknown section",
			manifest: `
package:
  name: casq
  version: 1.2.0
build:
  number: 0
requirements:
  run:
    - libsbml
outputs:
  - name: casq
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, ValidateSchema([]byte(tc.manifest)))
		})
	}
}
