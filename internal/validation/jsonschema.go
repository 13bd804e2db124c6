package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/chainrun/chainrun/pkg/schema"
)

// chainSchemaJSON is the JSON Schema for ChainDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const chainSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://chainrun.dev/schemas/chain.json",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "name": { "type": "string" },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["operation"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "operation": { "type": "string", "minLength": 1 },
        "inputs": { "type": "object" },
        "on_success": { "$ref": "#/$defs/success_policy" },
        "on_failure": { "$ref": "#/$defs/failure_policy" }
      },
      "additionalProperties": false
    },
    "success_policy": {
      "type": "object",
      "properties": {
        "output_mappings": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "next": { "type": "string" }
      },
      "additionalProperties": false
    },
    "failure_policy": {
      "type": "object",
      "properties": {
        "action": { "type": "string", "enum": ["stop", "retry", "continue"] },
        "max_retries": { "type": "integer", "minimum": 1 },
        "continue_on_max_retries": { "type": "boolean" },
        "next": { "type": "string" },
        "backoff": { "type": "string", "enum": ["none", "constant", "linear", "exponential"] },
        "delay": { "type": "string", "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$" },
        "max_delay": { "type": "string", "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates raw JSON chain definitions against the
// embedded JSON Schema before they are unmarshalled.
type JSONSchemaValidator struct {
	chainSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the embedded chain schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(chainSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal chain schema: %w", err)
	}
	if err := c.AddResource("https://chainrun.dev/schemas/chain.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add chain schema resource: %w", err)
	}

	compiled, err := c.Compile("https://chainrun.dev/schemas/chain.json")
	if err != nil {
		return nil, fmt.Errorf("compile chain schema: %w", err)
	}

	return &JSONSchemaValidator{chainSchema: compiled}, nil
}

// ValidateRaw checks a raw JSON document against the chain schema.
func (v *JSONSchemaValidator) ValidateRaw(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "chain definition is not valid JSON").WithCause(err)
	}
	if err := v.chainSchema.Validate(doc); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "chain definition schema violation: %s", err.Error()).WithCause(err)
	}
	return nil
}

// ParseDefinition validates raw JSON structurally and unmarshals it into a
// ChainDefinition. Semantic checks (jump targets, retry policies) are a
// separate stage, see ValidateDefinition.
func (v *JSONSchemaValidator) ParseDefinition(raw []byte) (*schema.ChainDefinition, error) {
	if err := v.ValidateRaw(raw); err != nil {
		return nil, err
	}
	var def schema.ChainDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "unmarshal chain definition").WithCause(err)
	}
	return &def, nil
}
