package transport

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaURL = "https://propsync.local/schemas/envelope.json"

const envelopeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["success"],
  "properties": {
    "success": {"type": "boolean"},
    "error": {"type": ["string", "null"]},
    "message": {"type": ["string", "null"]},
    "total": {"type": "integer", "minimum": 0},
    "page": {"type": "integer", "minimum": 0},
    "limit": {"type": "integer", "minimum": 0},
    "totalPages": {"type": "integer", "minimum": 0}
  }
}`

var envelopeSchema = mustCompileEnvelopeSchema()

func mustCompileEnvelopeSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("envelope schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(envelopeSchemaURL, doc); err != nil {
		panic(fmt.Sprintf("envelope schema: %v", err))
	}
	schema, err := compiler.Compile(envelopeSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("envelope schema: %v", err))
	}
	return schema
}

// validateEnvelope checks that payload is JSON shaped like a response envelope.
func validateEnvelope(payload []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return malformed(err, "response is not valid JSON")
	}
	if err := envelopeSchema.Validate(inst); err != nil {
		return malformed(err, "response does not match the envelope contract")
	}
	return nil
}
