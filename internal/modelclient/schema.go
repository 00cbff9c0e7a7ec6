package modelclient

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/deskagent/core/pkg/models"
)

var (
	schemaOnce sync.Once
	schemaJSON json.RawMessage
)

// DecisionBundleSchema returns the JSON Schema of models.DecisionBundle,
// generated once from the struct tags so the wire contract and the Go
// type cannot drift apart. The result is passed to providers as the
// response format and reused by the parser for pre-validation.
func DecisionBundleSchema() json.RawMessage {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			DoNotReference: true,
			ExpandedStruct: true,
		}
		schema := reflector.Reflect(&models.DecisionBundle{})
		payload, err := json.Marshal(schema)
		if err != nil {
			// Reflection over our own static struct cannot fail at
			// runtime; a marshal error here is a programming bug.
			panic(err)
		}
		schemaJSON = payload
	})
	return schemaJSON
}
