package recipe

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed meta.schema.json
var schemaJSON []byte

// SchemaJSON returns the manifest's JSON schema document.
func SchemaJSON() []byte {
	return schemaJSON
}

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("meta.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("meta.schema.json")
})

// ValidateSchema checks a raw manifest document against the schema. It
// catches structural problems (wrong types, unknown sections, malformed
// digests) before the document is decoded into a Recipe.
func ValidateSchema(manifest []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compiling manifest schema: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(manifest, &doc); err != nil {
		return fmt.Errorf("decoding manifest: %w", err)
	}

	// The validator expects values as encoding/json produces them.
	jb, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("converting manifest to JSON: %w", err)
	}
	var jdoc any
	if err := json.Unmarshal(jb, &jdoc); err != nil {
		return err
	}

	if err := schema.Validate(jdoc); err != nil {
		return fmt.Errorf("manifest does not match schema: %w", err)
	}
	return nil
}
