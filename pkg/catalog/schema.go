package catalog

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// JSONSchema describes the two accepted forms of a requires rule
func (Requirement) JSONSchema() *jsonschema.Schema {
	ids := &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}

	obj := &jsonschema.Schema{Type: "object", Properties: jsonschema.NewProperties(), Required: []string{"skills"}}
	obj.Properties.Set("mode", &jsonschema.Schema{Type: "string", Enum: []any{string(RequireAll), string(RequireAny)}})
	obj.Properties.Set("skills", ids)
	obj.Properties.Set("reason", &jsonschema.Schema{Type: "string"})

	return &jsonschema.Schema{OneOf: []*jsonschema.Schema{ids, obj}}
}

// JSONSchema describes the two accepted forms of a relation
func (Relation) JSONSchema() *jsonschema.Schema {
	obj := &jsonschema.Schema{Type: "object", Properties: jsonschema.NewProperties(), Required: []string{"id"}}
	obj.Properties.Set("id", &jsonschema.Schema{Type: "string"})
	obj.Properties.Set("reason", &jsonschema.Schema{Type: "string"})

	return &jsonschema.Schema{OneOf: []*jsonschema.Schema{{Type: "string"}, obj}}
}

// MetadataSchema returns the JSON Schema of a skill metadata document.
// Unknown fields are allowed since they are passed through untouched.
func MetadataSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	schema := r.Reflect(&Metadata{})
	schema.Title = "Skill metadata"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal metadata schema")
	}
	return out, nil
}
