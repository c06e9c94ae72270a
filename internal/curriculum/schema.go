package curriculum

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const bundleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["chapters"],
  "properties": {
    "chapters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "order": {"type": "integer"},
          "concepts": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "name": {"type": "string"},
                "prerequisites": {"type": "array", "items": {"type": "string"}},
                "questions": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["id", "difficulty"],
                    "properties": {
                      "id": {"type": "string", "minLength": 1},
                      "content": {"type": "string"},
                      "difficulty": {"type": "integer"},
                      "options": {"type": "array"}
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(bundleSchema)

// Validate checks a decoded YAML document against the bundle schema.
func Validate(doc any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate bundle: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid bundle: %s", strings.Join(msgs, "; "))
}
