package modelclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/deskagent/core/internal/coreerrors"
	"github.com/deskagent/core/pkg/models"
)

// ParseDecisionBundle decodes the model's text into a DecisionBundle.
// The parser tolerates a ```json fence around the payload and leading or
// trailing prose, per the provider contract; everything else is a parse
// error. Structural validation against the generated schema runs before
// decoding so malformed payloads fail with a schema path instead of a
// zero-valued struct.
func ParseDecisionBundle(text string) (*models.DecisionBundle, error) {
	raw := extractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", coreerrors.ErrModelParse)
	}

	if err := validateAgainstSchema(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrModelParse, err)
	}

	var bundle models.DecisionBundle
	decoder := json.NewDecoder(strings.NewReader(raw))
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrModelParse, err)
	}
	return &bundle, nil
}

var compiledSchema = func() *schemavalidate.Schema {
	compiler := schemavalidate.NewCompiler()
	if err := compiler.AddResource("decision_bundle.json", bytes.NewReader(DecisionBundleSchema())); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("decision_bundle.json")
	if err != nil {
		panic(err)
	}
	return schema
}()

func validateAgainstSchema(raw string) error {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return err
	}
	// Providers emit explicit nulls for absent optional fields
	// (execute_now in a completion bundle); strip them so they read as
	// omitted rather than as type mismatches.
	if obj, ok := value.(map[string]any); ok {
		for k, v := range obj {
			if v == nil {
				delete(obj, k)
			}
		}
	}
	return compiledSchema.Validate(value)
}

// extractJSON strips a markdown code fence if present, then trims to the
// outermost {...} span.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
	} else if idx := strings.Index(text, "```"); idx == 0 {
		rest := text[3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		}
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}
