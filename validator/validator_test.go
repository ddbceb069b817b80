package validator

import (
	"testing"
)

func validPayload() map[string]any {
	return map[string]any{
		"items":       []any{"wool beanie"},
		"colors":      []any{"charcoal"},
		"styles":      []any{"casual"},
		"reasons":     []any{"keeps warm on autumn walks"},
		"price_range": "$15-30",
	}
}

func TestValidate_ValidPayloadAllLevels(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	for _, level := range []Level{LevelLenient, LevelNormal, LevelStrict} {
		res := v.Validate(validPayload(), "head", level)
		if !res.Valid {
			t.Fatalf("level %s: expected valid, errors: %v", level, res.Errors)
		}
	}
}

func TestValidate_UnknownCategory(t *testing.T) {
	v, _ := New()
	res := v.Validate(validPayload(), "gloves", LevelNormal)
	if res.Valid || len(res.Errors) != 1 || res.Errors[0].Field != "category" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestValidate_NilPayload(t *testing.T) {
	v, _ := New()
	if res := v.Validate(nil, "head", LevelLenient); res.Valid {
		t.Fatal("nil payload must fail even leniently")
	}
}

func TestValidate_MissingRequiredField(t *testing.T) {
	v, _ := New()
	payload := validPayload()
	delete(payload, "items")

	for _, level := range []Level{LevelLenient, LevelNormal, LevelStrict} {
		res := v.Validate(payload, "top", level)
		if res.Valid {
			t.Fatalf("level %s: missing items must fail", level)
		}
	}
}

func TestValidate_LenientSkipsOptionalChecks(t *testing.T) {
	v, _ := New()
	payload := map[string]any{
		"items":       []any{"chelsea boots"},
		"colors":      "brown", // wrong type
		"price_range": 42,      // wrong type
		"extra":       true,    // unknown field
	}

	res := v.Validate(payload, "shoes", LevelLenient)
	if !res.Valid {
		t.Fatalf("lenient only checks required presence and non-emptiness: %v", res.Errors)
	}

	if res := v.Validate(payload, "shoes", LevelNormal); res.Valid {
		t.Fatal("normal must reject type mismatches")
	}
}

func TestValidate_LenientRejectsEmptyRequiredList(t *testing.T) {
	v, _ := New()
	payload := validPayload()
	payload["items"] = []any{}

	if res := v.Validate(payload, "bottom", LevelLenient); res.Valid {
		t.Fatal("empty required collection must fail")
	}
}

func TestValidate_UnknownFieldsWarnNormallyFailStrictly(t *testing.T) {
	v, _ := New()
	payload := validPayload()
	payload["brand"] = "unbranded"

	normal := v.Validate(payload, "head", LevelNormal)
	if !normal.Valid || len(normal.Warnings) != 1 {
		t.Fatalf("normal should warn, not fail: %+v", normal)
	}

	strict := v.Validate(payload, "head", LevelStrict)
	if strict.Valid || len(strict.Warnings) != 0 {
		t.Fatalf("strict escalates warnings to errors: %+v", strict)
	}
}

func TestAutoFix_RepairsThenValidates(t *testing.T) {
	v, _ := New()
	broken := map[string]any{
		"items":       "leather jacket", // scalar in list position
		"price_range": 80,               // number in string position
		// colors, styles, reasons absent
	}

	if res := v.Validate(broken, "top", LevelNormal); res.Valid {
		t.Fatal("broken payload must fail before the fix")
	}

	fixed := v.AutoFix(broken, "top")
	res := v.Validate(fixed, "top", LevelNormal)
	if !res.Valid {
		t.Fatalf("fixed payload must pass: %v", res.Errors)
	}

	items, ok := fixed["items"].([]any)
	if !ok || len(items) != 1 || items[0] != "leather jacket" {
		t.Fatalf("scalar must be wrapped into a list: %v", fixed["items"])
	}
	if fixed["price_range"] != "80" {
		t.Fatalf("number must be stringified: %v", fixed["price_range"])
	}
	if _, ok := fixed["colors"].([]any); !ok {
		t.Fatalf("missing optional list must default to empty: %v", fixed["colors"])
	}

	// original payload is left untouched
	if _, isList := broken["items"].([]any); isList {
		t.Fatal("fix must operate on a copy")
	}
}

func TestAutoFix_CannotInventRequiredItems(t *testing.T) {
	v, _ := New()
	payload := map[string]any{"price_range": "$20-40"}

	fixed := v.AutoFix(payload, "shoes")
	if _, present := fixed["items"]; present {
		t.Fatal("required field without a default must stay absent")
	}
	if res := v.Validate(fixed, "shoes", LevelNormal); res.Valid {
		t.Fatal("unfixable payload must still fail")
	}
}

func TestRegisterSchema_CustomCategory(t *testing.T) {
	v, _ := New()
	err := v.RegisterSchema(Schema{
		Category: "accessories",
		Fields: []FieldSpec{
			{Name: "items", Kind: FieldList, Required: true, MinItems: 1},
			{Name: "occasion", Kind: FieldString, Default: ""},
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res := v.Validate(map[string]any{"items": []any{"silk scarf"}, "occasion": "dinner"}, "accessories", LevelStrict)
	if !res.Valid {
		t.Fatalf("expected valid, errors: %v", res.Errors)
	}
}
