package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Level selects how strictly a payload is judged.
type Level string

const (
	// LevelStrict rejects on any error or warning and additionally runs the
	// payload through a compiled JSON Schema.
	LevelStrict Level = "strict"
	// LevelNormal reports errors for missing or mistyped fields; fixable
	// issues remain errors until AutoFix repairs them.
	LevelNormal Level = "normal"
	// LevelLenient checks only that required collections are present and
	// non-empty.
	LevelLenient Level = "lenient"
)

// Issue is a single validation finding.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// Result is the outcome of a Validate call.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Options configures a Validator.
type Options struct {
	// Logger is used for validation diagnostics.
	Logger logging.Logger
}

// Validator checks worker result payloads against per-category schemas.
type Validator struct {
	mu       sync.RWMutex
	schemas  map[string]Schema
	compiled map[string]*jsonschema.Schema
	logger   logging.Logger
}

// New creates a Validator preloaded with the default category schemas.
func New(optFns ...func(o *Options)) (*Validator, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	v := &Validator{
		schemas:  make(map[string]Schema),
		compiled: make(map[string]*jsonschema.Schema),
		logger:   opts.Logger,
	}

	for _, s := range DefaultSchemas() {
		if err := v.RegisterSchema(s); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// RegisterSchema adds or replaces the schema for a category. The JSON Schema
// form used by the strict level is compiled eagerly so a malformed schema
// surfaces here rather than on the first Validate call.
func (v *Validator) RegisterSchema(s Schema) error {
	raw, err := json.Marshal(s.JSONSchemaDoc())
	if err != nil {
		return core.WrapError(core.KindSerialization, err, fmt.Sprintf("marshal schema for category %q", s.Category))
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return core.WrapError(core.KindSerialization, err, fmt.Sprintf("parse schema for category %q", s.Category))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return core.WrapError(core.KindValidation, err, fmt.Sprintf("add schema resource for category %q", s.Category))
	}

	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return core.WrapError(core.KindValidation, err, fmt.Sprintf("compile schema for category %q", s.Category))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.schemas[s.Category] = s
	v.compiled[s.Category] = compiled

	return nil
}

// Schema returns the registered schema for a category.
func (v *Validator) Schema(category string) (Schema, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s, ok := v.schemas[category]

	return s, ok
}

// Validate checks a payload against the schema registered for the category.
// An unknown category is itself a validation error.
func (v *Validator) Validate(payload map[string]any, category string, level Level) Result {
	v.mu.RLock()
	schema, ok := v.schemas[category]
	compiled := v.compiled[category]
	v.mu.RUnlock()

	if !ok {
		return Result{
			Valid:  false,
			Errors: []Issue{{Field: "category", Message: fmt.Sprintf("no schema registered for category %q", category)}},
		}
	}

	var res Result

	if payload == nil {
		res.Errors = append(res.Errors, Issue{Field: "payload", Message: "payload is nil"})
		return res
	}

	for _, f := range schema.Fields {
		value, present := payload[f.Name]

		if !present {
			switch {
			case level == LevelLenient && !f.Required:
				// lenient ignores missing optional fields entirely
			case f.Required:
				res.Errors = append(res.Errors, Issue{Field: f.Name, Message: "required field is missing"})
			default:
				res.Errors = append(res.Errors, Issue{Field: f.Name, Message: "field is missing (auto-fixable)"})
			}
			continue
		}

		if level == LevelLenient {
			if f.Kind == FieldList && f.Required && listLen(value) == 0 {
				res.Errors = append(res.Errors, Issue{Field: f.Name, Message: "required collection is empty"})
			}
			continue
		}

		switch f.Kind {
		case FieldList:
			items, isList := asList(value)
			if !isList {
				res.Errors = append(res.Errors, Issue{Field: f.Name, Message: fmt.Sprintf("expected a list, got %T", value)})
				continue
			}
			if len(items) < f.MinItems {
				res.Errors = append(res.Errors, Issue{Field: f.Name, Message: fmt.Sprintf("expected at least %d entries, got %d", f.MinItems, len(items))})
			}
		case FieldString:
			if _, isString := value.(string); !isString {
				res.Errors = append(res.Errors, Issue{Field: f.Name, Message: fmt.Sprintf("expected a string, got %T", value)})
			}
		case FieldNumber:
			if !isNumber(value) {
				res.Errors = append(res.Errors, Issue{Field: f.Name, Message: fmt.Sprintf("expected a number, got %T", value)})
			}
		}
	}

	if level != LevelLenient {
		for name := range payload {
			if !schema.hasField(name) {
				res.Warnings = append(res.Warnings, Issue{Field: name, Message: "field not in schema"})
			}
		}
	}

	if level == LevelStrict && len(res.Errors) == 0 && compiled != nil {
		if err := v.validateStrict(compiled, payload); err != nil {
			res.Errors = append(res.Errors, Issue{Field: "payload", Message: err.Error()})
		}
	}

	if level == LevelStrict && len(res.Warnings) > 0 {
		res.Errors = append(res.Errors, res.Warnings...)
		res.Warnings = nil
	}

	res.Valid = len(res.Errors) == 0

	if !res.Valid {
		v.logger.Debug("payload validation failed", "category", category, "level", string(level), "errors", len(res.Errors))
	}

	return res
}

// AutoFix returns a repaired copy of the payload. Missing fields with a safe
// default are filled in and scalars in list positions are wrapped into
// single-element lists. Required fields without a default are left untouched,
// so an unfixable payload still fails a subsequent Validate.
func (v *Validator) AutoFix(payload map[string]any, category string) map[string]any {
	v.mu.RLock()
	schema, ok := v.schemas[category]
	v.mu.RUnlock()

	fixed := make(map[string]any, len(payload))
	for k, val := range payload {
		fixed[k] = val
	}

	if !ok {
		return fixed
	}

	for _, f := range schema.Fields {
		value, present := fixed[f.Name]

		if !present {
			if f.Default != nil {
				fixed[f.Name] = f.Default
			}
			continue
		}

		switch f.Kind {
		case FieldList:
			if _, isList := asList(value); !isList && value != nil {
				fixed[f.Name] = []any{value}
			}
		case FieldString:
			if _, isString := value.(string); !isString && value != nil {
				fixed[f.Name] = fmt.Sprintf("%v", value)
			}
		}
	}

	return fixed
}

func (v *Validator) validateStrict(compiled *jsonschema.Schema, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	return compiled.Validate(doc)
}

func (s Schema) hasField(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}

	return false
}

func asList(value any) ([]any, bool) {
	switch t := value.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func listLen(value any) int {
	items, ok := asList(value)
	if !ok {
		return 0
	}

	return len(items)
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int32, int64, float32, float64, json.Number:
		return true
	default:
		return false
	}
}
