package orchestration

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// patternSchema is the JSON Schema every pattern document must satisfy
// before semantic validation runs. It covers shape only; forward-reference
// and capability checks live in Pattern.Validate.
const patternSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "version", "inputs", "outputs", "steps"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "category": {"type": "string"},
    "description": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "rights_required": {"type": "array", "items": {"type": "string"}},
    "display": {"type": "object"},
    "inputs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"enum": ["string", "integer", "date", "uuid", "boolean", "decimal", "enum"]},
          "required": {"type": "boolean"},
          "default": {},
          "values": {"type": "array", "items": {"type": "string"}},
          "description": {"type": "string"}
        },
        "additionalProperties": false
      }
    },
    "outputs": {"type": "object"},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "capability"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "capability": {"type": "string", "pattern": "^[a-z0-9_]+\\.[a-z0-9_]+$"},
          "args": {"type": "object"},
          "save_as": {"type": "string", "minLength": 1},
          "condition": {"type": "string"},
          "fallback": {},
          "ttl": {"type": "integer", "minimum": 0},
          "parallel_group": {"type": "string", "minLength": 1},
          "optional": {"type": "boolean"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var patternSchemaLoader = gojsonschema.NewStringLoader(patternSchema)

// validateSchema checks raw pattern bytes against the document schema,
// collecting every violation into one diagnostic.
func validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(patternSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("schema validation: %s", strings.Join(msgs, "; "))
}
