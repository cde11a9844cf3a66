package appconfig

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// configSchema is the JSON schema every config document must satisfy.
const configSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "models": {"type": "array", "minItems": 1, "uniqueItems": true, "items": {"type": "string", "minLength": 1}},
    "profile": {"type": "string", "enum": ["", "quick", "standard", "publication"]},
    "repetitions": {"type": "integer", "minimum": 1},
    "participants": {"type": "integer", "minimum": 1},
    "trials": {"type": "integer", "minimum": 1},
    "rewardProbabilities": {"type": "array", "minItems": 2, "items": {"type": "number", "minimum": 0, "maximum": 1}},
    "designPath": {"type": "string"},
    "numberOfStarts": {"type": "integer", "minimum": 1},
    "maxIterations": {"type": "integer", "minimum": 1},
    "parallel": {"type": "boolean"},
    "workers": {"type": "integer", "minimum": 1},
    "seed": {"type": "integer", "minimum": 0},
    "outputDir": {"type": "string"},
    "sqlitePath": {"type": "string"},
    "logFile": {"type": "string"},
    "debug": {"type": "boolean"}
  }
}`

func isYAML(ext string) bool {
	ext = strings.ToLower(ext)
	return ext == ".yaml" || ext == ".yml"
}

// ValidateDocument checks a raw config document against the schema. ext picks
// the decoder: .yaml/.yml documents are decoded first, anything else is JSON.
func ValidateDocument(ext string, data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(configSchema)

	var documentLoader gojsonschema.JSONLoader
	if isYAML(ext) {
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("invalid YAML: %w", err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
		documentLoader = gojsonschema.NewGoLoader(doc)
	} else {
		documentLoader = gojsonschema.NewBytesLoader(data)
	}

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("config failed validation: %s", strings.Join(details, "; "))
}
