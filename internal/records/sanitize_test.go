package records

import (
	"testing"

	"github.com/agrivo/farmcore/internal/apperr"
	"github.com/agrivo/farmcore/internal/schema"
)

func TestSanitizeIdentifier(t *testing.T) {
	good := []string{"tasks", "farm_id", "Column9", "_hidden"}
	for _, name := range good {
		quoted, err := SanitizeIdentifier(name)
		if err != nil {
			t.Errorf("%q should be valid: %v", name, err)
		}
		if quoted != "`"+name+"`" {
			t.Errorf("%q quoted as %q", name, quoted)
		}
	}

	bad := []string{"", "ta sks", "tasks;drop table users", "a-b", "col`", "näme", "a.b"}
	for _, name := range bad {
		if _, err := SanitizeIdentifier(name); err == nil {
			t.Errorf("%q should be rejected", name)
		} else if apperr.KindOf(err) != apperr.Validation {
			t.Errorf("%q rejection should be a validation error", name)
		}
	}
}

func TestCoerceNumber(t *testing.T) {
	col := &schema.Column{Name: "priority", Type: schema.FieldNumber, DataType: "int", ColumnType: "int(11)"}

	if v, keep := CoerceValue(col, 3.9); !keep || v != int64(3) {
		t.Errorf("float should truncate to 3, got %v keep=%v", v, keep)
	}
	if v, keep := CoerceValue(col, "42"); !keep || v != int64(42) {
		t.Errorf("numeric string should coerce to 42, got %v", v)
	}

	flag := &schema.Column{Name: "is_active", Type: schema.FieldNumber, DataType: "tinyint", ColumnType: "tinyint(1)"}
	if v, _ := CoerceValue(flag, true); v != 1 {
		t.Errorf("true should coerce to 1 on tinyint(1), got %v", v)
	}
	if v, _ := CoerceValue(flag, false); v != 0 {
		t.Errorf("false should coerce to 0 on tinyint(1), got %v", v)
	}
}

func TestCoerceDecimalAndDate(t *testing.T) {
	dec := &schema.Column{Name: "weight_kg", Type: schema.FieldDecimal, DataType: "decimal"}
	if v, _ := CoerceValue(dec, "12.5"); v != 12.5 {
		t.Errorf("decimal string should parse, got %v", v)
	}

	date := &schema.Column{Name: "born_on", Type: schema.FieldDate, DataType: "date"}
	if v, _ := CoerceValue(date, "2026-08-29T10:30:00Z"); v != "2026-08-29" {
		t.Errorf("date should truncate to 10 chars, got %v", v)
	}
	if v, _ := CoerceValue(date, "2026-08-29"); v != "2026-08-29" {
		t.Errorf("short date should pass through, got %v", v)
	}
}

func TestCoerceJSON(t *testing.T) {
	col := &schema.Column{Name: "meta", Type: schema.FieldJSON, DataType: "json"}
	if v, _ := CoerceValue(col, map[string]interface{}{"a": 1}); v != `{"a":1}` {
		t.Errorf("non-string json input should re-serialize, got %v", v)
	}
	if v, _ := CoerceValue(col, `{"raw":true}`); v != `{"raw":true}` {
		t.Errorf("string json input should pass through, got %v", v)
	}
}

func TestCoerceEnum(t *testing.T) {
	col := &schema.Column{
		Name: "status", Type: schema.FieldString, DataType: "enum",
		ColumnType: "enum('OPEN','DONE')", EnumValues: []string{"OPEN", "DONE"},
	}

	if v, keep := CoerceValue(col, "open"); !keep || v != "OPEN" {
		t.Errorf("enum match is case-insensitive and canonical, got %v keep=%v", v, keep)
	}
	if _, keep := CoerceValue(col, "CANCELLED"); keep {
		t.Error("unknown enum value should be dropped, not rejected")
	}
}

func TestCoerceNull(t *testing.T) {
	nullable := &schema.Column{Name: "notes", Type: schema.FieldText, Nullable: true}
	if v, keep := CoerceValue(nullable, nil); !keep || v != nil {
		t.Errorf("null on nullable column should pass, got %v", v)
	}

	required := &schema.Column{Name: "title", Type: schema.FieldString, Nullable: false}
	if v, keep := CoerceValue(required, nil); !keep || v != nil {
		t.Errorf("null on non-nullable column passes through unchanged, got %v keep=%v", v, keep)
	}
}
