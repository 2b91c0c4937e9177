package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// manifestSchema rejects unknown keys and wrong shapes before decoding.
const manifestSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["pipeline"],
  "properties": {
    "pipeline": {
      "type": "object",
      "additionalProperties": false,
      "required": ["protocols"],
      "properties": {
        "name": {"type": "string"},
        "protocols": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
      }
    },
    "max_retries": {"type": "integer", "minimum": 0},
    "backoff": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "initial_delay_ms": {"type": "integer", "minimum": 0},
        "backoff_factor": {"type": "number", "exclusiveMinimum": 0},
        "max_delay_ms": {"type": "integer", "minimum": 0},
        "jitter": {"type": "boolean"}
      }
    },
    "order": {
      "type": "object",
      "additionalProperties": {"type": "array", "items": {"type": "string", "minLength": 1}}
    },
    "disable": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["match"],
        "properties": {
          "match": {"type": "string", "minLength": 1},
          "reason": {"type": "string"},
          "when": {"type": "string"}
        }
      }
    },
    "vars": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "components": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "protocols": {"type": "array", "items": {"type": "string", "minLength": 1}},
          "run_after": {"type": "array", "items": {"type": "string", "minLength": 1}},
          "emits": {"type": "array", "items": {"type": "string"}},
          "fail_first": {"type": "integer", "minimum": 0},
          "fail_scope": {"enum": ["component", "protocol", "pipeline"]},
          "enabled": {"type": "boolean"},
          "disabled_reason": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("manifest.schema.json", manifestSchema)

// validateSchema checks the raw YAML document against the manifest schema.
// The document is round-tripped through encoding/json so the validator sees
// canonical JSON types.
func validateSchema(b []byte) error {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	jb, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize manifest: %w", err)
	}
	var v any
	if err := json.Unmarshal(jb, &v); err != nil {
		return fmt.Errorf("normalize manifest: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("manifest schema: %s", strings.TrimSpace(err.Error()))
	}
	return nil
}
