package validator

// FieldKind is the expected JSON shape of a schema field.
type FieldKind string

const (
	// FieldList expects a JSON array.
	FieldList FieldKind = "list"
	// FieldString expects a JSON string.
	FieldString FieldKind = "string"
	// FieldNumber expects a JSON number.
	FieldNumber FieldKind = "number"
)

// FieldSpec describes one payload field. A field with a non-nil Default is
// auto-fixable when missing; a Required field without a Default has no safe
// substitute and a payload missing it stays invalid.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool
	MinItems int // minimum entries for FieldList, 0 = no minimum
	Default  any // neutral fill-in for AutoFix, nil = none
}

// Schema is the domain schema a worker result for one category is checked
// against.
type Schema struct {
	Category string
	Fields   []FieldSpec
}

// JSONSchemaDoc renders the schema as a JSON Schema document for the strict
// structural pass.
func (s Schema) JSONSchemaDoc() map[string]any {
	properties := make(map[string]any, len(s.Fields))
	var required []string
	for _, f := range s.Fields {
		var prop map[string]any
		switch f.Kind {
		case FieldList:
			prop = map[string]any{"type": "array"}
			if f.MinItems > 0 {
				prop["minItems"] = f.MinItems
			}
		case FieldNumber:
			prop = map[string]any{"type": "number"}
		default:
			prop = map[string]any{"type": "string"}
		}
		properties[f.Name] = prop
		if f.Required || f.Default != nil {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// recommendationFields is the field set shared by every outfit category.
func recommendationFields() []FieldSpec {
	return []FieldSpec{
		{Name: "items", Kind: FieldList, Required: true, MinItems: 1},
		{Name: "colors", Kind: FieldList, Default: []any{}},
		{Name: "styles", Kind: FieldList, Default: []any{}},
		{Name: "reasons", Kind: FieldList, Default: []any{}},
		{Name: "price_range", Kind: FieldString, Default: ""},
	}
}

// DefaultSchemas returns the built-in domain schemas, one per outfit
// category. Items carry no safe default: a result without them cannot be
// repaired and stays invalid.
func DefaultSchemas() []Schema {
	categories := []string{"head", "top", "bottom", "shoes"}
	out := make([]Schema, 0, len(categories))
	for _, c := range categories {
		out = append(out, Schema{Category: c, Fields: recommendationFields()})
	}
	return out
}
